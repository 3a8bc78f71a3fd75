package groupchat

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/PabloGalante/farum-groupchat/internal/domain"
	"github.com/PabloGalante/farum-groupchat/internal/observability"
)

// TurnPolicy decides what happens when a human message arrives while a
// previous turn of the same conversation is still running.
type TurnPolicy string

const (
	// TurnPolicySerial queues turns; a queued turn starts from the log as it
	// is when the previous turn finishes.
	TurnPolicySerial TurnPolicy = "serial"
	// TurnPolicyConcurrent starts every turn immediately. Turns of the same
	// epoch may interleave their replies.
	TurnPolicyConcurrent TurnPolicy = "concurrent"
)

// OrchestratorConfig tunes the persona loop.
type OrchestratorConfig struct {
	ThinkMin time.Duration
	ThinkMax time.Duration
	Policy   TurnPolicy
}

// DefaultOrchestratorConfig waits 1.0s to 2.5s before each persona speaks.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		ThinkMin: 1000 * time.Millisecond,
		ThinkMax: 2500 * time.Millisecond,
		Policy:   TurnPolicySerial,
	}
}

// Orchestrator runs the personas of a conversation one after the other in
// response to a human message.
type Orchestrator struct {
	gen    domain.ReplyGenerator
	policy TurnPolicy

	thinkTime func() time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
	shuffle   func([]domain.Participant)
}

func NewOrchestrator(gen domain.ReplyGenerator, cfg OrchestratorConfig) *Orchestrator {
	policy := cfg.Policy
	if policy != TurnPolicyConcurrent {
		policy = TurnPolicySerial
	}
	return &Orchestrator{
		gen:       gen,
		policy:    policy,
		thinkTime: uniformDuration(cfg.ThinkMin, cfg.ThinkMax),
		sleep:     sleepContext,
		shuffle:   shuffleParticipants,
	}
}

// TurnResult summarises one turn.
type TurnResult struct {
	Order     []domain.ParticipantID // order chosen at turn start
	Replied   []domain.ParticipantID
	Failed    []domain.ParticipantID
	Skipped   []domain.ParticipantID // removed from the roster mid-turn, or empty reply
	Cancelled bool
}

// Turn is the handle of an asynchronous turn started by a human message.
type Turn struct {
	Message domain.Message
	Epoch   domain.Epoch

	done   chan struct{}
	result TurnResult
}

// Done is closed when the turn has finished or was abandoned.
func (t *Turn) Done() <-chan struct{} {
	return t.done
}

// Result is only meaningful after Done is closed.
func (t *Turn) Result() TurnResult {
	<-t.done
	return t.result
}

// OnHumanMessage appends content as a message from the user and starts the
// persona turn in the background. The turn outlives ctx but keeps its
// values (request id, logger fields); it stops when the epoch changes.
func (o *Orchestrator) OnHumanMessage(ctx context.Context, conv *Conversation, content string) (*Turn, error) {
	ctx = observability.WithConversationID(ctx, string(conv.ID()))
	msg, ticket, err := conv.appendHuman(content)
	if err != nil {
		return nil, err
	}
	epoch := ticket.epoch
	history := conv.Messages()

	turnCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(ticket.epochCtx, cancel)

	turn := &Turn{Message: msg, Epoch: epoch, done: make(chan struct{})}
	go func() {
		defer close(turn.done)
		defer cancel()
		defer stop()

		if o.policy == TurnPolicySerial {
			if err := acquireTurn(turnCtx, ticket.slot); err != nil {
				turn.result.Cancelled = true
				return
			}
			defer releaseTurn(ticket.slot)
			if conv.Epoch() != epoch {
				turn.result.Cancelled = true
				return
			}
			history = conv.Messages()
		}

		turn.result = o.RunTurn(turnCtx, conv, history, epoch)
	}()

	return turn, nil
}

// RunTurn lets every persona of the roster reply once, in a random order,
// each seeing the replies given before it in the same turn. It stops as
// soon as the conversation leaves epoch.
func (o *Orchestrator) RunTurn(
	ctx context.Context,
	conv *Conversation,
	history []domain.Message,
	epoch domain.Epoch,
) TurnResult {
	var res TurnResult

	ctx = observability.WithConversationID(ctx, string(conv.ID()))
	log := observability.LoggerFromContext(ctx).With("epoch", epoch)

	if epochCtx, ok := conv.epochContext(epoch); ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		defer cancel()
		defer context.AfterFunc(epochCtx, cancel)()
	} else {
		res.Cancelled = true
		return res
	}

	personas := domain.Personas(conv.Roster())
	o.shuffle(personas)
	for _, p := range personas {
		res.Order = append(res.Order, p.ID)
	}
	log.Info("turn started", "personas_count", len(personas))

	buf := append([]domain.Message(nil), history...)

	for _, p := range personas {
		if conv.Epoch() != epoch {
			res.Cancelled = true
			break
		}
		if !conv.setTyping(epoch, p.ID) {
			res.Cancelled = true
			break
		}

		if err := o.sleep(ctx, o.thinkTime()); err != nil && conv.Epoch() == epoch {
			// shutting down, not a reset
			conv.clearTyping(epoch, p.ID)
			res.Cancelled = true
			break
		}
		if conv.Epoch() != epoch {
			conv.clearTyping(epoch, p.ID)
			res.Cancelled = true
			break
		}

		roster := conv.Roster()
		if _, ok := domain.FindParticipant(roster, p.ID); !ok {
			log.Info("persona left the conversation, skipping", "persona_id", p.ID)
			conv.clearTyping(epoch, p.ID)
			res.Skipped = append(res.Skipped, p.ID)
			continue
		}

		start := time.Now()
		log.Info("persona reply start", "persona_id", p.ID, "persona", p.Name)

		text, err := o.gen.GenerateReply(ctx, p, roster, buf)

		if conv.Epoch() != epoch {
			conv.clearTyping(epoch, p.ID)
			res.Cancelled = true
			break
		}

		elapsed := time.Since(start)
		switch {
		case err != nil:
			log.Error("persona failed to reply",
				"persona_id", p.ID,
				"persona", p.Name,
				"kind", domain.KindOf(err),
				"elapsed_ms", elapsed.Milliseconds(),
				"error", err)
			res.Failed = append(res.Failed, p.ID)
		case strings.TrimSpace(text) == "":
			res.Skipped = append(res.Skipped, p.ID)
		default:
			msg, ok := conv.appendIfEpoch(epoch, p.ID, text)
			if !ok {
				conv.clearTyping(epoch, p.ID)
				res.Cancelled = true
				break
			}
			buf = append(buf, msg)
			res.Replied = append(res.Replied, p.ID)
			log.Info("persona reply end", "persona_id", p.ID, "elapsed_ms", elapsed.Milliseconds())
		}
		if res.Cancelled {
			break
		}

		conv.clearTyping(epoch, p.ID)
	}

	log.Info("turn end",
		"replied", len(res.Replied),
		"failed", len(res.Failed),
		"cancelled", res.Cancelled)
	return res
}

// Reset invalidates every running turn of conv and clears it.
func (o *Orchestrator) Reset(ctx context.Context, conv *Conversation) domain.Epoch {
	epoch := conv.Reset()
	ctx = observability.WithConversationID(ctx, string(conv.ID()))
	observability.LoggerFromContext(ctx).Info("conversation reset", "epoch", epoch)
	return epoch
}

func shuffleParticipants(ps []domain.Participant) {
	rand.Shuffle(len(ps), func(i, j int) { ps[i], ps[j] = ps[j], ps[i] })
}

func uniformDuration(lo, hi time.Duration) func() time.Duration {
	if lo < 0 {
		lo = 0
	}
	if hi <= lo {
		return func() time.Duration { return lo }
	}
	span := int64(hi - lo)
	return func() time.Duration {
		return lo + time.Duration(rand.Int64N(span+1))
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
