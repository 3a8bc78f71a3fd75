package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/farum-groupchat/internal/domain"
)

// scriptedLLM returns the queued results in order, repeating the last one.
type scriptedLLM struct {
	mu       sync.Mutex
	results  []result
	requests []domain.GenerationRequest
}

type result struct {
	text string
	err  error
}

func (s *scriptedLLM) GenerateText(ctx context.Context, req domain.GenerationRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	r := s.results[0]
	if len(s.results) > 1 {
		s.results = s.results[1:]
	}
	return r.text, r.err
}

func (s *scriptedLLM) attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// instantTimer fires immediately and records every wait it was asked for.
type instantTimer struct {
	waits []time.Duration
	c     chan time.Time
}

func newInstantTimer() *instantTimer {
	return &instantTimer{c: make(chan time.Time, 1)}
}

func (t *instantTimer) Start(d time.Duration) {
	t.waits = append(t.waits, d)
	t.c <- time.Now()
}

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time { return t.c }

// stuckTimer never fires.
type stuckTimer struct{ started chan struct{} }

func (t *stuckTimer) Start(time.Duration) { close(t.started) }
func (t *stuckTimer) Stop()               {}
func (t *stuckTimer) C() <-chan time.Time { return nil }

var (
	alpha  = domain.Participant{ID: "a", Name: "Alpha", Instruction: "You are Alpha."}
	user   = domain.Participant{ID: "user-1", Name: "You", IsUser: true}
	roster = []domain.Participant{user, alpha}
)

func rateLimited() error {
	return &domain.GenerationError{Kind: domain.KindRateLimited, StatusCode: 429, Err: errors.New("RESOURCE_EXHAUSTED")}
}

func newTestGateway(llm domain.LLMClient) (*Gateway, *instantTimer) {
	g := New(llm, DefaultConfig())
	timer := newInstantTimer()
	g.newTimer = func() backoff.Timer { return timer }
	return g, timer
}

func history(texts ...string) []domain.Message {
	out := make([]domain.Message, 0, len(texts))
	for _, s := range texts {
		out = append(out, domain.Message{SenderID: "user-1", Content: s})
	}
	return out
}

func TestGenerateReply_RetriesRateLimitThenSucceeds(t *testing.T) {
	llm := &scriptedLLM{results: []result{
		{err: rateLimited()},
		{err: rateLimited()},
		{text: "  hello from Alpha \n"},
	}}
	g, timer := newTestGateway(llm)

	reply, err := g.GenerateReply(context.Background(), alpha, roster, history("hi"))
	require.NoError(t, err)
	require.Equal(t, "hello from Alpha", reply)
	require.Equal(t, 3, llm.attempts())
	require.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, timer.waits)
}

func TestGenerateReply_GivesUpAfterThreeRetries(t *testing.T) {
	llm := &scriptedLLM{results: []result{{err: rateLimited()}}}
	g, timer := newTestGateway(llm)

	_, err := g.GenerateReply(context.Background(), alpha, roster, history("hi"))
	require.Error(t, err)
	require.Equal(t, domain.KindRateLimited, domain.KindOf(err))
	require.Equal(t, 4, llm.attempts())
	require.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, timer.waits)
}

func TestGenerateReply_RetriesTransientServerErrors(t *testing.T) {
	llm := &scriptedLLM{results: []result{
		{err: &domain.GenerationError{Kind: domain.KindTransientServer, StatusCode: 503, Err: errors.New("UNAVAILABLE")}},
		{text: "back"},
	}}
	g, timer := newTestGateway(llm)

	reply, err := g.GenerateReply(context.Background(), alpha, roster, history("hi"))
	require.NoError(t, err)
	require.Equal(t, "back", reply)
	require.Equal(t, []time.Duration{2 * time.Second}, timer.waits)
}

func TestGenerateReply_EmptyTextFailsWithoutWaiting(t *testing.T) {
	llm := &scriptedLLM{results: []result{{text: "   "}}}
	g, timer := newTestGateway(llm)

	_, err := g.GenerateReply(context.Background(), alpha, roster, history("hi"))
	require.Equal(t, domain.KindEmptyResponse, domain.KindOf(err))
	require.Equal(t, 1, llm.attempts())
	require.Empty(t, timer.waits)
}

func TestGenerateReply_OtherErrorsAreNotRetried(t *testing.T) {
	boom := errors.New("permission denied")
	llm := &scriptedLLM{results: []result{{err: boom}}}
	g, timer := newTestGateway(llm)

	_, err := g.GenerateReply(context.Background(), alpha, roster, history("hi"))
	require.ErrorIs(t, err, boom)
	require.Equal(t, domain.KindOther, domain.KindOf(err))
	require.Equal(t, 1, llm.attempts())
	require.Empty(t, timer.waits)
}

func TestGenerateReply_CancelStopsBackoffWait(t *testing.T) {
	llm := &scriptedLLM{results: []result{{err: rateLimited()}}}
	g := New(llm, DefaultConfig())
	timer := &stuckTimer{started: make(chan struct{})}
	g.newTimer = func() backoff.Timer { return timer }

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := g.GenerateReply(ctx, alpha, roster, history("hi"))
		errc <- err
	}()

	<-timer.started
	cancel()

	select {
	case err := <-errc:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("backoff wait was not interrupted")
	}
	require.Equal(t, 1, llm.attempts())
}

func TestGenerateReply_RejectsUser(t *testing.T) {
	g, _ := newTestGateway(&scriptedLLM{results: []result{{text: "x"}}})
	_, err := g.GenerateReply(context.Background(), user, roster, nil)
	require.ErrorIs(t, err, domain.ErrNotAPersona)
}

func TestGenerateReply_SendsPersonaPrompt(t *testing.T) {
	llm := &scriptedLLM{results: []result{{text: "ok"}}}
	g, _ := newTestGateway(llm)

	_, err := g.GenerateReply(context.Background(), alpha, roster, history("hi"))
	require.NoError(t, err)

	req := llm.requests[0]
	require.Equal(t, alpha.ID, req.PersonaID)
	require.Equal(t, "Alpha", req.PersonaName)
	require.InDelta(t, 0.8, req.Temperature, 1e-6)
	require.Contains(t, req.Prompt, "Your name is: Alpha")
	require.Contains(t, req.Prompt, "You: hi\n")
	require.Contains(t, req.Prompt, "IMPORTANT: Respond in "+DefaultLanguage)
}

func TestNew_AppliesDefaults(t *testing.T) {
	g := New(nil, Config{MaxRetries: -1})
	require.Equal(t, DefaultLanguage, g.cfg.Language)
	require.Equal(t, 0, g.cfg.MaxRetries)
	require.Equal(t, BaseDelay, g.cfg.BaseDelay)
}
