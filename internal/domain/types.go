package domain

import "time"

type ConversationID string
type ParticipantID string
type MessageID string

// Epoch identifies one session of a conversation. Reset bumps it.
type Epoch uint64

type Timestamp = time.Time
