package groupchat

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/PabloGalante/farum-groupchat/internal/domain"
	"github.com/PabloGalante/farum-groupchat/internal/observability"
)

// Service owns the conversations of the process. Conversations are
// independent: each has its own roster, log and epoch.
type Service struct {
	personas     domain.PersonaStore
	orchestrator *Orchestrator
	user         domain.Participant

	mu            sync.RWMutex
	conversations map[domain.ConversationID]*Conversation
}

// DefaultUser is the human participant of new conversations.
func DefaultUser() domain.Participant {
	return domain.Participant{
		ID:     "user-1",
		Name:   "你",
		Avatar: "https://api.dicebear.com/9.x/adventurer/svg?seed=Felix",
		IsUser: true,
		Color:  "#3b82f6",
	}
}

func NewService(personas domain.PersonaStore, orchestrator *Orchestrator, user domain.Participant) *Service {
	if user.ID == "" {
		user = DefaultUser()
	}
	user.IsUser = true
	return &Service{
		personas:      personas,
		orchestrator:  orchestrator,
		user:          user,
		conversations: make(map[domain.ConversationID]*Conversation),
	}
}

type CreateConversationInput struct {
	ID domain.ConversationID // optional

	// PersonaIDs restricts the seeded personas. Empty means the whole library.
	PersonaIDs []domain.ParticipantID
}

// CreateConversation seeds a new conversation with the user and the
// personas of the library.
func (s *Service) CreateConversation(ctx context.Context, in CreateConversationInput) (*Conversation, error) {
	log := observability.LoggerFromContext(ctx)

	library, err := s.personas.ListPersonas(ctx)
	if err != nil {
		log.Error("failed to list personas", "error", err)
		return nil, fmt.Errorf("loading personas: %w", err)
	}

	roster := []domain.Participant{s.user}
	if len(in.PersonaIDs) == 0 {
		roster = append(roster, domain.Personas(library)...)
	} else {
		for _, id := range in.PersonaIDs {
			p, ok := domain.FindParticipant(library, id)
			if !ok {
				return nil, fmt.Errorf("%w: %s", domain.ErrPersonaNotFound, id)
			}
			roster = append(roster, p)
		}
	}

	id := in.ID
	if id == "" {
		id = domain.ConversationID(uuid.NewString())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.conversations[id]; exists {
		return nil, fmt.Errorf("%w: %s", domain.ErrConversationExists, id)
	}
	conv := NewConversation(id, roster)
	s.conversations[id] = conv

	log.Info("conversation created", "conversation_id", id, "personas_count", len(roster)-1)
	return conv, nil
}

func (s *Service) Conversation(id domain.ConversationID) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	return conv, nil
}

// SendMessage appends a human message and starts the persona turn.
func (s *Service) SendMessage(ctx context.Context, id domain.ConversationID, text string) (*Turn, error) {
	conv, err := s.Conversation(id)
	if err != nil {
		return nil, err
	}
	turn, err := s.orchestrator.OnHumanMessage(ctx, conv, text)
	if err != nil {
		return nil, err
	}
	observability.LoggerFromContext(ctx).Info("human message appended",
		"conversation_id", id,
		"message_id", turn.Message.ID,
		"epoch", turn.Epoch)
	return turn, nil
}

func (s *Service) Reset(ctx context.Context, id domain.ConversationID) (domain.Epoch, error) {
	conv, err := s.Conversation(id)
	if err != nil {
		return 0, err
	}
	return s.orchestrator.Reset(ctx, conv), nil
}

func (s *Service) AddParticipant(ctx context.Context, id domain.ConversationID, p domain.Participant) (domain.Participant, error) {
	conv, err := s.Conversation(id)
	if err != nil {
		return domain.Participant{}, err
	}
	added, err := conv.AddParticipant(p)
	if err != nil {
		return domain.Participant{}, err
	}
	observability.LoggerFromContext(ctx).Info("participant added",
		"conversation_id", id,
		"participant_id", added.ID)
	return added, nil
}

func (s *Service) RemoveParticipant(ctx context.Context, id domain.ConversationID, pid domain.ParticipantID) error {
	conv, err := s.Conversation(id)
	if err != nil {
		return err
	}
	if err := conv.RemoveParticipant(pid); err != nil {
		return err
	}
	observability.LoggerFromContext(ctx).Info("participant removed",
		"conversation_id", id,
		"participant_id", pid)
	return nil
}

// DeleteConversation drops the conversation and stops its running turns.
func (s *Service) DeleteConversation(ctx context.Context, id domain.ConversationID) error {
	s.mu.Lock()
	conv, ok := s.conversations[id]
	delete(s.conversations, id)
	s.mu.Unlock()
	if !ok {
		return domain.ErrConversationNotFound
	}
	conv.Reset()
	conv.Close()
	observability.LoggerFromContext(ctx).Info("conversation deleted", "conversation_id", id)
	return nil
}

func (s *Service) ListPersonas(ctx context.Context) ([]domain.Participant, error) {
	return s.personas.ListPersonas(ctx)
}

// SavePersona stores a persona in the library. It does not touch running
// conversations.
func (s *Service) SavePersona(ctx context.Context, p domain.Participant) (domain.Participant, error) {
	if p.IsUser {
		return domain.Participant{}, domain.ErrNotAPersona
	}
	if strings.TrimSpace(p.Name) == "" {
		return domain.Participant{}, domain.ErrInvalidParticipant
	}
	if p.ID == "" {
		p.ID = domain.ParticipantID(uuid.NewString())
	}
	if err := s.personas.SavePersona(ctx, p); err != nil {
		return domain.Participant{}, err
	}
	return p, nil
}

func (s *Service) DeletePersona(ctx context.Context, id domain.ParticipantID) error {
	return s.personas.DeletePersona(ctx, id)
}

// Close stops every conversation.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, conv := range s.conversations {
		conv.Close()
		delete(s.conversations, id)
	}
}
