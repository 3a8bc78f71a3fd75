package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/PabloGalante/farum-groupchat/internal/domain"
)

// GeminiConfig selects the Gemini backend. An API key selects the Gemini
// API; otherwise Project and Location select Vertex AI.
type GeminiConfig struct {
	APIKey    string
	Project   string
	Location  string
	ModelName string
	Timeout   time.Duration
}

type GeminiClient struct {
	client    *genai.Client
	modelName string
	timeout   time.Duration
}

var _ domain.LLMClient = (*GeminiClient)(nil)

// NewGeminiClient creates an LLMClient backed by Gemini.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	cc := &genai.ClientConfig{}
	switch {
	case cfg.APIKey != "":
		cc.APIKey = cfg.APIKey
		cc.Backend = genai.BackendGeminiAPI
	case cfg.Project != "" && cfg.Location != "":
		cc.Project = cfg.Project
		cc.Location = cfg.Location
		cc.Backend = genai.BackendVertexAI
	default:
		return nil, fmt.Errorf("gemini: either an API key or a GCP project and location must be set")
	}

	modelName := cfg.ModelName
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	return &GeminiClient{
		client:    client,
		modelName: modelName,
		timeout:   cfg.Timeout,
	}, nil
}

// GenerateText implements domain.LLMClient. Failures come back as
// *domain.GenerationError so the gateway can decide on retries.
func (g *GeminiClient) GenerateText(ctx context.Context, req domain.GenerationRequest) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	temp := req.Temperature
	budget := int32(0)

	cfg := &genai.GenerateContentConfig{
		Temperature: &temp,
		ThinkingConfig: &genai.ThinkingConfig{
			ThinkingBudget: &budget,
		},
	}

	res, err := g.client.Models.GenerateContent(ctx, g.modelName, genai.Text(req.Prompt), cfg)
	if err != nil {
		return "", Classify(err)
	}

	text := strings.TrimSpace(res.Text())
	if text == "" {
		return "", &domain.GenerationError{
			Kind: domain.KindEmptyResponse,
			Err:  errors.New("gemini returned empty text"),
		}
	}
	return text, nil
}
