package groupchat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/farum-groupchat/internal/domain"
)

// Conversation holds the shared state of one group chat: the append-only
// message log, the roster, the typing marks and the epoch guarding them.
//
// Every write that an orchestration loop performs carries the epoch the loop
// captured. Writes for a stale epoch are dropped under the same lock that
// Reset takes, so nothing a stale loop does can survive a reset.
type Conversation struct {
	id  domain.ConversationID
	now func() time.Time

	mu          sync.RWMutex
	epoch       domain.Epoch
	epochCtx    context.Context
	cancelEpoch context.CancelFunc
	messages    []domain.Message
	roster      []domain.Participant
	typing      map[domain.ParticipantID]int

	feed *Feed

	// turnSlot serialises turns of the current epoch when the serial policy
	// is active. Reset replaces it, so a stale loop never holds up the next
	// session.
	turnSlot chan struct{}
}

// turnTicket is what a turn captures when its human message is appended.
type turnTicket struct {
	epoch    domain.Epoch
	epochCtx context.Context
	slot     chan struct{}
}

// NewConversation creates an empty conversation at epoch 0.
func NewConversation(id domain.ConversationID, roster []domain.Participant) *Conversation {
	if id == "" {
		id = domain.ConversationID(uuid.NewString())
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Conversation{
		id:          id,
		now:         time.Now,
		epochCtx:    ctx,
		cancelEpoch: cancel,
		roster:      append([]domain.Participant(nil), roster...),
		typing:      make(map[domain.ParticipantID]int),
		feed:        NewFeed(),
		turnSlot:    make(chan struct{}, 1),
	}
}

func (c *Conversation) ID() domain.ConversationID {
	return c.id
}

// Epoch returns the current epoch.
func (c *Conversation) Epoch() domain.Epoch {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}

// Snapshot is a consistent read-only copy of the conversation state.
type Snapshot struct {
	ID       domain.ConversationID
	Epoch    domain.Epoch
	Messages []domain.Message
	Roster   []domain.Participant
	Typing   map[domain.ParticipantID]bool
}

func (c *Conversation) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		ID:       c.id,
		Epoch:    c.epoch,
		Messages: append([]domain.Message(nil), c.messages...),
		Roster:   append([]domain.Participant(nil), c.roster...),
		Typing:   c.typingLocked(),
	}
}

func (c *Conversation) Messages() []domain.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.Message(nil), c.messages...)
}

func (c *Conversation) Roster() []domain.Participant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.Participant(nil), c.roster...)
}

// Typing returns the personas currently generating a reply.
func (c *Conversation) Typing() map[domain.ParticipantID]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.typingLocked()
}

func (c *Conversation) typingLocked() map[domain.ParticipantID]bool {
	out := make(map[domain.ParticipantID]bool, len(c.typing))
	for id := range c.typing {
		out[id] = true
	}
	return out
}

// Subscribe registers a listener on the conversation's event feed.
// The returned func unsubscribes and closes the channel.
func (c *Conversation) Subscribe(buffer int) (<-chan Event, func()) {
	return c.feed.Subscribe(buffer)
}

// AppendMessage appends a message regardless of epoch. Missing id and
// timestamp are filled in.
func (c *Conversation) AppendMessage(msg domain.Message) domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appendLocked(msg)
}

func (c *Conversation) appendLocked(msg domain.Message) domain.Message {
	if msg.ID == "" {
		msg.ID = domain.MessageID(uuid.NewString())
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = c.now()
	}
	if n := len(c.messages); n > 0 && msg.CreatedAt.Before(c.messages[n-1].CreatedAt) {
		msg.CreatedAt = c.messages[n-1].CreatedAt
	}
	c.messages = append(c.messages, msg)
	c.feed.Publish(Event{Type: EventMessage, ConversationID: c.id, Epoch: c.epoch, Message: &msg})
	return msg
}

// appendHuman appends a message from the user participant and returns it
// together with the epoch state current at the moment of the append.
func (c *Conversation) appendHuman(content string) (domain.Message, turnTicket, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Message{}, turnTicket{}, domain.ErrEmptyMessage
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	user, ok := domain.UserOf(c.roster)
	if !ok {
		return domain.Message{}, turnTicket{}, domain.ErrNoUserParticipant
	}
	msg := c.appendLocked(domain.Message{SenderID: user.ID, Content: content})
	return msg, turnTicket{epoch: c.epoch, epochCtx: c.epochCtx, slot: c.turnSlot}, nil
}

// appendIfEpoch appends a persona reply only while epoch is still current.
func (c *Conversation) appendIfEpoch(epoch domain.Epoch, sender domain.ParticipantID, content string) (domain.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return domain.Message{}, false
	}
	return c.appendLocked(domain.Message{SenderID: sender, Content: content}), true
}

// setTyping marks a persona as generating. It refuses stale epochs.
func (c *Conversation) setTyping(epoch domain.Epoch, id domain.ParticipantID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return false
	}
	c.typing[id]++
	if c.typing[id] == 1 {
		c.publishTypingLocked()
	}
	return true
}

// clearTyping removes one typing mark. For a stale epoch the marks were
// already wiped by Reset and the ones present belong to newer loops.
func (c *Conversation) clearTyping(epoch domain.Epoch, id domain.ParticipantID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return
	}
	n, ok := c.typing[id]
	if !ok {
		return
	}
	if n <= 1 {
		delete(c.typing, id)
		c.publishTypingLocked()
		return
	}
	c.typing[id] = n - 1
}

func (c *Conversation) publishTypingLocked() {
	c.feed.Publish(Event{Type: EventTyping, ConversationID: c.id, Epoch: c.epoch, Typing: c.typingLocked()})
}

// epochContext returns a context cancelled once epoch stops being current.
// ok is false when epoch is already stale.
func (c *Conversation) epochContext(epoch domain.Epoch) (context.Context, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.epoch != epoch {
		return nil, false
	}
	return c.epochCtx, true
}

// Reset starts a new epoch and clears the log and the typing marks. Turns
// of the new epoch queue on a fresh turn slot.
func (c *Conversation) Reset() domain.Epoch {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	c.cancelEpoch()
	c.epochCtx, c.cancelEpoch = context.WithCancel(context.Background())
	c.messages = nil
	c.typing = make(map[domain.ParticipantID]int)
	c.turnSlot = make(chan struct{}, 1)

	c.feed.Publish(Event{Type: EventReset, ConversationID: c.id, Epoch: c.epoch})
	return c.epoch
}

// AddParticipant adds a persona to the roster. The user is fixed at creation.
func (c *Conversation) AddParticipant(p domain.Participant) (domain.Participant, error) {
	if p.IsUser {
		return domain.Participant{}, domain.ErrUserImmutable
	}
	if strings.TrimSpace(p.Name) == "" {
		return domain.Participant{}, domain.ErrInvalidParticipant
	}
	if p.ID == "" {
		p.ID = domain.ParticipantID(uuid.NewString())
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := domain.FindParticipant(c.roster, p.ID); exists {
		return domain.Participant{}, domain.ErrDuplicateParticipant
	}
	c.roster = append(c.roster, p)
	c.publishRosterLocked()
	return p, nil
}

// RemoveParticipant drops a persona. Its messages stay in the log.
func (c *Conversation) RemoveParticipant(id domain.ParticipantID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, p := range c.roster {
		if p.ID != id {
			continue
		}
		if p.IsUser {
			return domain.ErrUserImmutable
		}
		c.roster = append(c.roster[:i:i], c.roster[i+1:]...)
		c.publishRosterLocked()
		return nil
	}
	return domain.ErrParticipantNotFound
}

func (c *Conversation) publishRosterLocked() {
	c.feed.Publish(Event{
		Type:           EventRoster,
		ConversationID: c.id,
		Epoch:          c.epoch,
		Roster:         append([]domain.Participant(nil), c.roster...),
	})
}

// currentSlot returns the turn slot of the current epoch.
func (c *Conversation) currentSlot() chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.turnSlot
}

// acquireTurn waits for slot, the serial turn slot of one epoch.
func acquireTurn(ctx context.Context, slot chan struct{}) error {
	select {
	case slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func releaseTurn(slot chan struct{}) {
	<-slot
}

// Close cancels the current epoch context and drops all subscribers.
func (c *Conversation) Close() {
	c.mu.Lock()
	c.cancelEpoch()
	c.mu.Unlock()
	c.feed.Close()
}
