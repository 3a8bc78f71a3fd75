package domain

// Participant is anyone in the group chat: the single human or an AI persona.
type Participant struct {
	ID     ParticipantID
	Name   string
	Avatar string // URL
	IsUser bool
	Color  string

	// Instruction conditions the persona's replies. Ignored for the user.
	Instruction string
}

// Message is one entry of the timeline. Messages are never mutated after append.
type Message struct {
	ID        MessageID
	SenderID  ParticipantID // may dangle once the sender is removed
	Content   string
	CreatedAt Timestamp
	IsError   bool
}

// FindParticipant returns the participant with the given id, if present.
func FindParticipant(roster []Participant, id ParticipantID) (Participant, bool) {
	for _, p := range roster {
		if p.ID == id {
			return p, true
		}
	}
	return Participant{}, false
}

// Personas filters the roster down to the non-user participants, keeping order.
func Personas(roster []Participant) []Participant {
	out := make([]Participant, 0, len(roster))
	for _, p := range roster {
		if !p.IsUser {
			out = append(out, p)
		}
	}
	return out
}

// UserOf returns the human participant of the roster.
func UserOf(roster []Participant) (Participant, bool) {
	for _, p := range roster {
		if p.IsUser {
			return p, true
		}
	}
	return Participant{}, false
}
