package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/PabloGalante/farum-groupchat/internal/app/groupchat"
	"github.com/PabloGalante/farum-groupchat/internal/domain"
	"github.com/PabloGalante/farum-groupchat/internal/observability"
)

type Server struct {
	svc  *groupchat.Service
	feed *feedHandler
}

func NewServer(svc *groupchat.Service) http.Handler {
	s := &Server{svc: svc, feed: newFeedHandler(svc)}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)

	mux.HandleFunc("POST /conversations", s.handleCreateConversation)
	mux.HandleFunc("GET /conversations/{id}", s.handleGetConversation)
	mux.HandleFunc("DELETE /conversations/{id}", s.handleDeleteConversation)
	mux.HandleFunc("POST /conversations/{id}/messages", s.handleSendMessage)
	mux.HandleFunc("POST /conversations/{id}/reset", s.handleReset)
	mux.HandleFunc("GET /conversations/{id}/typing", s.handleTyping)
	mux.HandleFunc("POST /conversations/{id}/participants", s.handleAddParticipant)
	mux.HandleFunc("DELETE /conversations/{id}/participants/{pid}", s.handleRemoveParticipant)
	mux.Handle("GET /conversations/{id}/ws", s.feed)

	mux.HandleFunc("GET /personas", s.handleListPersonas)
	mux.HandleFunc("POST /personas", s.handleSavePersona)
	mux.HandleFunc("DELETE /personas/{id}", s.handleDeletePersona)

	return chainMiddlewares(mux, withLogging, withRequestID, withCORS)
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type createConversationRequest struct {
	ID         string   `json:"id,omitempty"`
	PersonaIDs []string `json:"persona_ids,omitempty"`
}

type participantDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Avatar      string `json:"avatar,omitempty"`
	IsUser      bool   `json:"is_user"`
	Color       string `json:"color,omitempty"`
	Instruction string `json:"instruction,omitempty"`
}

type messageResponse struct {
	ID        string    `json:"id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	IsError   bool      `json:"is_error,omitempty"`
}

type conversationResponse struct {
	ID       string            `json:"id"`
	Epoch    uint64            `json:"epoch"`
	Roster   []participantDTO  `json:"participants"`
	Messages []messageResponse `json:"messages"`
	Typing   []string          `json:"typing"`
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type sendMessageResponse struct {
	Message messageResponse `json:"message"`
	Epoch   uint64          `json:"epoch"`
}

type resetResponse struct {
	Epoch uint64 `json:"epoch"`
}

// ─────────────────────────────────────────────
// Handlers
// ─────────────────────────────────────────────

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "invalid JSON body")
			return
		}
	}

	in := groupchat.CreateConversationInput{ID: domain.ConversationID(req.ID)}
	for _, id := range req.PersonaIDs {
		in.PersonaIDs = append(in.PersonaIDs, domain.ParticipantID(id))
	}

	conv, err := s.svc.CreateConversation(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toConversationResponse(conv.Snapshot()))
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.svc.Conversation(conversationID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toConversationResponse(conv.Snapshot()))
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteConversation(r.Context(), conversationID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSendMessage answers as soon as the human message is in the log;
// persona replies arrive on the websocket feed or through polling.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		badRequest(w, "text is required")
		return
	}

	turn, err := s.svc.SendMessage(r.Context(), conversationID(r), req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, sendMessageResponse{
		Message: toMessageResponse(turn.Message),
		Epoch:   uint64(turn.Epoch),
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	epoch, err := s.svc.Reset(r.Context(), conversationID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resetResponse{Epoch: uint64(epoch)})
}

func (s *Server) handleTyping(w http.ResponseWriter, r *http.Request) {
	conv, err := s.svc.Conversation(conversationID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"typing": typingIDs(conv.Typing())})
}

func (s *Server) handleAddParticipant(w http.ResponseWriter, r *http.Request) {
	var req participantDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	added, err := s.svc.AddParticipant(r.Context(), conversationID(r), fromParticipantDTO(req))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toParticipantDTO(added))
}

func (s *Server) handleRemoveParticipant(w http.ResponseWriter, r *http.Request) {
	pid := domain.ParticipantID(r.PathValue("pid"))
	if err := s.svc.RemoveParticipant(r.Context(), conversationID(r), pid); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListPersonas(w http.ResponseWriter, r *http.Request) {
	personas, err := s.svc.ListPersonas(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]participantDTO, 0, len(personas))
	for _, p := range personas {
		out = append(out, toParticipantDTO(p))
	}
	writeJSON(w, http.StatusOK, map[string][]participantDTO{"personas": out})
}

func (s *Server) handleSavePersona(w http.ResponseWriter, r *http.Request) {
	var req participantDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	saved, err := s.svc.SavePersona(r.Context(), fromParticipantDTO(req))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toParticipantDTO(saved))
}

func (s *Server) handleDeletePersona(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeletePersona(r.Context(), domain.ParticipantID(r.PathValue("id"))); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─────────────────────────────────────────────
// Conversion helpers
// ─────────────────────────────────────────────

func conversationID(r *http.Request) domain.ConversationID {
	return domain.ConversationID(r.PathValue("id"))
}

func toConversationResponse(snap groupchat.Snapshot) conversationResponse {
	roster := make([]participantDTO, 0, len(snap.Roster))
	for _, p := range snap.Roster {
		roster = append(roster, toParticipantDTO(p))
	}
	return conversationResponse{
		ID:       string(snap.ID),
		Epoch:    uint64(snap.Epoch),
		Roster:   roster,
		Messages: toMessagesResponse(snap.Messages),
		Typing:   typingIDs(snap.Typing),
	}
}

func toParticipantDTO(p domain.Participant) participantDTO {
	return participantDTO{
		ID:          string(p.ID),
		Name:        p.Name,
		Avatar:      p.Avatar,
		IsUser:      p.IsUser,
		Color:       p.Color,
		Instruction: p.Instruction,
	}
}

func fromParticipantDTO(d participantDTO) domain.Participant {
	return domain.Participant{
		ID:          domain.ParticipantID(d.ID),
		Name:        d.Name,
		Avatar:      d.Avatar,
		IsUser:      d.IsUser,
		Color:       d.Color,
		Instruction: d.Instruction,
	}
}

func toMessageResponse(m domain.Message) messageResponse {
	return messageResponse{
		ID:        string(m.ID),
		SenderID:  string(m.SenderID),
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
		IsError:   m.IsError,
	}
}

func toMessagesResponse(msgs []domain.Message) []messageResponse {
	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageResponse(m))
	}
	return out
}

func typingIDs(typing map[domain.ParticipantID]bool) []string {
	out := make([]string, 0, len(typing))
	for id, on := range typing {
		if on {
			out = append(out, string(id))
		}
	}
	return out
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error": msg,
	})
}

// writeError maps domain errors onto status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrConversationNotFound),
		errors.Is(err, domain.ErrParticipantNotFound),
		errors.Is(err, domain.ErrPersonaNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrEmptyMessage),
		errors.Is(err, domain.ErrUserImmutable),
		errors.Is(err, domain.ErrNotAPersona),
		errors.Is(err, domain.ErrInvalidParticipant),
		errors.Is(err, domain.ErrNoUserParticipant):
		badRequest(w, err.Error())
	case errors.Is(err, domain.ErrDuplicateParticipant),
		errors.Is(err, domain.ErrConversationExists):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		observability.LoggerFromContext(r.Context()).Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal server error",
		})
	}
}
