package llm

import (
	"errors"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/PabloGalante/farum-groupchat/internal/domain"
)

// Classify maps a backend error onto the generation error taxonomy.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var gerr *domain.GenerationError
	if errors.As(err, &gerr) {
		return err
	}

	code, status := 0, ""
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code, status = apiErr.Code, apiErr.Status
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		code, status = apiErrPtr.Code, apiErrPtr.Status
	}

	return &domain.GenerationError{
		Kind:       kindFor(code, status, err.Error()),
		StatusCode: code,
		Err:        err,
	}
}

func kindFor(code int, status, msg string) domain.ErrorKind {
	switch {
	case code == http.StatusTooManyRequests,
		strings.Contains(status, "RESOURCE_EXHAUSTED"),
		strings.Contains(msg, "RESOURCE_EXHAUSTED"):
		return domain.KindRateLimited
	case code == http.StatusInternalServerError,
		code == http.StatusServiceUnavailable,
		status == "UNAVAILABLE":
		return domain.KindTransientServer
	default:
		return domain.KindOther
	}
}
