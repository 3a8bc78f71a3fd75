package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PabloGalante/farum-groupchat/internal/domain"
)

// Store keeps the persona library in Firestore. Conversations themselves
// are never persisted.
type Store struct {
	client *firestore.Client
	now    func() time.Time
}

var _ domain.PersonaStore = (*Store)(nil)

// NewStore creates a Firestore store for the given project.
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) personasCol() *firestore.CollectionRef {
	return s.client.Collection("personas")
}

func (s *Store) personaDoc(id domain.ParticipantID) *firestore.DocumentRef {
	return s.personasCol().Doc(string(id))
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type personaDoc struct {
	Name        string    `firestore:"name"`
	Avatar      string    `firestore:"avatar"`
	Color       string    `firestore:"color"`
	Instruction string    `firestore:"instruction"`
	CreatedAt   time.Time `firestore:"created_at"`
	UpdatedAt   time.Time `firestore:"updated_at"`
}

func toPersonaDoc(p domain.Participant, now time.Time) personaDoc {
	return personaDoc{
		Name:        p.Name,
		Avatar:      p.Avatar,
		Color:       p.Color,
		Instruction: p.Instruction,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func fromPersonaDoc(id string, doc personaDoc) domain.Participant {
	return domain.Participant{
		ID:          domain.ParticipantID(id),
		Name:        doc.Name,
		Avatar:      doc.Avatar,
		Color:       doc.Color,
		Instruction: doc.Instruction,
	}
}

// ─────────────────────────────────────────
// PersonaStore implementation
// ─────────────────────────────────────────

func (s *Store) ListPersonas(ctx context.Context) ([]domain.Participant, error) {
	iter := s.personasCol().OrderBy("created_at", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var out []domain.Participant
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore ListPersonas: %w", err)
		}

		var doc personaDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode personaDoc: %w", err)
		}
		out = append(out, fromPersonaDoc(snap.Ref.ID, doc))
	}
	return out, nil
}

// SavePersona upserts a persona. created_at is kept on updates.
func (s *Store) SavePersona(ctx context.Context, p domain.Participant) error {
	if p.IsUser {
		return domain.ErrNotAPersona
	}

	now := s.now()
	ref := s.personaDoc(p.ID)

	_, err := ref.Create(ctx, toPersonaDoc(p, now))
	if err == nil {
		return nil
	}
	if status.Code(err) != codes.AlreadyExists {
		return fmt.Errorf("firestore SavePersona: %w", err)
	}

	update := map[string]interface{}{
		"name":        p.Name,
		"avatar":      p.Avatar,
		"color":       p.Color,
		"instruction": p.Instruction,
		"updated_at":  now,
	}
	if _, err := ref.Set(ctx, update, firestore.MergeAll); err != nil {
		return fmt.Errorf("firestore SavePersona: %w", err)
	}
	return nil
}

func (s *Store) DeletePersona(ctx context.Context, id domain.ParticipantID) error {
	ref := s.personaDoc(id)
	if _, err := ref.Get(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return domain.ErrPersonaNotFound
		}
		return fmt.Errorf("firestore DeletePersona: %w", err)
	}
	if _, err := ref.Delete(ctx); err != nil {
		return fmt.Errorf("firestore DeletePersona: %w", err)
	}
	return nil
}

// Seed stores personas that are not in the library yet.
func (s *Store) Seed(ctx context.Context, personas []domain.Participant) error {
	now := s.now()
	for i, p := range personas {
		// keep seed order stable under created_at ordering
		doc := toPersonaDoc(p, now.Add(time.Duration(i)*time.Millisecond))
		if _, err := s.personaDoc(p.ID).Create(ctx, doc); err != nil && status.Code(err) != codes.AlreadyExists {
			return fmt.Errorf("firestore Seed %s: %w", p.ID, err)
		}
	}
	return nil
}
