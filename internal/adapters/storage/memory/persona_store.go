package memory

import (
	"context"
	"sync"

	"github.com/PabloGalante/farum-groupchat/internal/domain"
)

// PersonaStore keeps the persona library in memory, in insertion order.
type PersonaStore struct {
	mu       sync.RWMutex
	order    []domain.ParticipantID
	personas map[domain.ParticipantID]domain.Participant
}

func NewPersonaStore(seed ...domain.Participant) *PersonaStore {
	s := &PersonaStore{
		personas: make(map[domain.ParticipantID]domain.Participant),
	}
	for _, p := range seed {
		_ = s.SavePersona(context.Background(), p)
	}
	return s
}

func (s *PersonaStore) ListPersonas(ctx context.Context) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Participant, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.personas[id])
	}
	return out, nil
}

// SavePersona inserts or replaces a persona. Users are rejected.
func (s *PersonaStore) SavePersona(ctx context.Context, p domain.Participant) error {
	if p.IsUser {
		return domain.ErrNotAPersona
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.personas[p.ID]; !exists {
		s.order = append(s.order, p.ID)
	}
	s.personas[p.ID] = p
	return nil
}

func (s *PersonaStore) DeletePersona(ctx context.Context, id domain.ParticipantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.personas[id]; !exists {
		return domain.ErrPersonaNotFound
	}
	delete(s.personas, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}
