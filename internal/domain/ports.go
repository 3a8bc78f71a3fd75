package domain

import "context"

// LLMClient is the raw text-generation backend.
type LLMClient interface {
	GenerateText(ctx context.Context, req GenerationRequest) (string, error)
}

// GenerationRequest is what a backend needs to produce one persona reply.
type GenerationRequest struct {
	PersonaID   ParticipantID
	PersonaName string
	Prompt      string
	Temperature float32
}

// ReplyGenerator produces the next reply of a persona given the conversation so far.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, persona Participant, roster []Participant, history []Message) (string, error)
}

// PersonaStore keeps the library of personas new conversations are seeded from.
type PersonaStore interface {
	ListPersonas(ctx context.Context) ([]Participant, error)
	SavePersona(ctx context.Context, p Participant) error
	DeletePersona(ctx context.Context, id ParticipantID) error
}
