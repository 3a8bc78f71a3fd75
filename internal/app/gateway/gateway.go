package gateway

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/PabloGalante/farum-groupchat/internal/domain"
	"github.com/PabloGalante/farum-groupchat/internal/observability"
)

const (
	// MaxRetries is the number of attempts made after the first one.
	MaxRetries = 3
	// BaseDelay is the wait before the first retry; it doubles each time.
	BaseDelay = 2 * time.Second

	DefaultLanguage    = "Simplified Chinese (简体中文)"
	defaultTemperature = float32(0.8)
)

// Config tunes the gateway.
type Config struct {
	Language    string
	Temperature float32
	MaxRetries  int
	BaseDelay   time.Duration
}

func DefaultConfig() Config {
	return Config{
		Language:    DefaultLanguage,
		Temperature: defaultTemperature,
		MaxRetries:  MaxRetries,
		BaseDelay:   BaseDelay,
	}
}

// Gateway turns a persona and a conversation into a prompt for the LLM
// backend and retries rate-limited or transient failures.
type Gateway struct {
	llm domain.LLMClient
	cfg Config

	// newTimer lets tests observe backoff waits without sleeping.
	newTimer func() backoff.Timer
}

var _ domain.ReplyGenerator = (*Gateway)(nil)

func New(llm domain.LLMClient, cfg Config) *Gateway {
	def := DefaultConfig()
	if cfg.Language == "" {
		cfg.Language = def.Language
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = def.Temperature
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	return &Gateway{
		llm:      llm,
		cfg:      cfg,
		newTimer: func() backoff.Timer { return &realTimer{} },
	}
}

// GenerateReply asks the backend for persona's next message.
//
// Cancelling ctx interrupts backoff waits only. A backend call already
// started is not cancelled; the caller decides whether to keep its result.
func (g *Gateway) GenerateReply(
	ctx context.Context,
	persona domain.Participant,
	roster []domain.Participant,
	history []domain.Message,
) (string, error) {
	if persona.IsUser {
		return "", domain.ErrNotAPersona
	}

	log := observability.LoggerFromContext(ctx).With(
		"persona_id", persona.ID,
		"persona", persona.Name,
	)

	req := domain.GenerationRequest{
		PersonaID:   persona.ID,
		PersonaName: persona.Name,
		Prompt:      BuildPersonaPrompt(persona, roster, history, g.cfg.Language),
		Temperature: g.cfg.Temperature,
	}

	callCtx := context.WithoutCancel(ctx)
	attempt := 0
	var reply string

	op := func() error {
		attempt++
		text, err := g.llm.GenerateText(callCtx, req)
		if err != nil {
			if domain.IsRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return backoff.Permanent(&domain.GenerationError{
				Kind: domain.KindEmptyResponse,
				Err:  errors.New("backend returned empty text"),
			})
		}
		reply = text
		return nil
	}

	notify := func(err error, wait time.Duration) {
		log.Warn("generation attempt failed, retrying",
			"attempt", attempt,
			"kind", domain.KindOf(err),
			"retry_in_ms", wait.Milliseconds(),
			"error", err)
	}

	err := backoff.RetryNotifyWithTimer(op, g.policy(ctx), notify, g.newTimer())
	if err != nil {
		return "", err
	}
	return reply, nil
}

// policy waits BaseDelay * 2^retry between attempts, without jitter.
func (g *Gateway) policy(ctx context.Context) backoff.BackOffContext {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = g.cfg.BaseDelay
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = g.cfg.BaseDelay << g.cfg.MaxRetries
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(g.cfg.MaxRetries)), ctx)
}

type realTimer struct {
	timer *time.Timer
}

func (t *realTimer) Start(d time.Duration) {
	if t.timer == nil {
		t.timer = time.NewTimer(d)
		return
	}
	t.timer.Reset(d)
}

func (t *realTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *realTimer) C() <-chan time.Time {
	return t.timer.C
}
