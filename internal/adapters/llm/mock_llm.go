package llm

import (
	"context"
	"fmt"

	"github.com/PabloGalante/farum-groupchat/internal/domain"
)

// MockLLM answers every persona with a fixed line. Useful for local runs
// without credentials.
type MockLLM struct{}

func NewMockLLM() *MockLLM {
	return &MockLLM{}
}

func (m *MockLLM) GenerateText(ctx context.Context, req domain.GenerationRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("hello from %s", req.PersonaName), nil
}
