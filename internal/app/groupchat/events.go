package groupchat

import (
	"sync"

	"github.com/PabloGalante/farum-groupchat/internal/domain"
	"github.com/PabloGalante/farum-groupchat/internal/observability"
)

type EventType string

const (
	EventMessage EventType = "message"
	EventTyping  EventType = "typing"
	EventReset   EventType = "reset"
	EventRoster  EventType = "roster"
)

// Event is a change of conversation state pushed to presentation adapters.
type Event struct {
	Type           EventType
	ConversationID domain.ConversationID
	Epoch          domain.Epoch

	Message *domain.Message               // EventMessage
	Typing  map[domain.ParticipantID]bool // EventTyping
	Roster  []domain.Participant          // EventRoster
}

// Feed fans events out to subscribers. Publishing never blocks: a subscriber
// whose buffer is full misses the event and is expected to resync from a
// snapshot.
type Feed struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
	closed bool
}

func NewFeed() *Feed {
	return &Feed{subs: make(map[int]chan Event)}
}

func (f *Feed) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		close(ch)
		return ch, func() {}
	}
	id := f.nextID
	f.nextID++
	f.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if sub, ok := f.subs[id]; ok {
				delete(f.subs, id)
				close(sub)
			}
		})
	}
}

func (f *Feed) Publish(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, ch := range f.subs {
		select {
		case ch <- ev:
		default:
			observability.WithFields(
				"conversation_id", ev.ConversationID,
				"subscriber", id,
				"event", ev.Type,
			).Warn("feed subscriber is lagging, event dropped")
		}
	}
}

// Close closes every subscriber channel.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}
