package gateway

import (
	"fmt"
	"strings"

	"github.com/PabloGalante/farum-groupchat/internal/domain"
)

// HistoryWindow is how many of the most recent messages a persona sees.
const HistoryWindow = 20

const defaultInstruction = "You are a helpful assistant."

const personaPromptTemplate = `
You are participating in a group chat.
Your name is: %s
Your persona/instruction is: %s

The current conversation history is:
---
%s---

Please provide your response to the conversation as %s.
Do not prefix your response with your name (e.g. "Name: ..."), just provide the message content directly.
Keep your response concise and conversational, suitable for a group chat setting.
IMPORTANT: Respond in %s.
`

// RecentHistory returns the last HistoryWindow messages, oldest first.
func RecentHistory(history []domain.Message) []domain.Message {
	if len(history) > HistoryWindow {
		return history[len(history)-HistoryWindow:]
	}
	return history
}

// RenderTranscript renders messages as "speaker: text" lines.
func RenderTranscript(roster []domain.Participant, history []domain.Message) string {
	var b strings.Builder
	for _, m := range history {
		name := "Unknown"
		if sender, ok := domain.FindParticipant(roster, m.SenderID); ok {
			name = sender.Name
		}
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// BuildPersonaPrompt builds the full prompt asking persona for its next
// message in the group chat.
func BuildPersonaPrompt(persona domain.Participant, roster []domain.Participant, history []domain.Message, language string) string {
	instruction := strings.TrimSpace(persona.Instruction)
	if instruction == "" {
		instruction = defaultInstruction
	}
	transcript := RenderTranscript(roster, RecentHistory(history))
	return fmt.Sprintf(personaPromptTemplate, persona.Name, instruction, transcript, persona.Name, language)
}
