package httpadapter_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/PabloGalante/farum-groupchat/internal/adapters/http"
	"github.com/PabloGalante/farum-groupchat/internal/adapters/llm"
	"github.com/PabloGalante/farum-groupchat/internal/adapters/storage/memory"
	"github.com/PabloGalante/farum-groupchat/internal/app/gateway"
	"github.com/PabloGalante/farum-groupchat/internal/app/groupchat"
	"github.com/PabloGalante/farum-groupchat/internal/domain"
)

type participant struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	IsUser bool   `json:"is_user"`
}

type message struct {
	ID       string `json:"id"`
	SenderID string `json:"sender_id"`
	Content  string `json:"content"`
}

type conversation struct {
	ID           string        `json:"id"`
	Epoch        uint64        `json:"epoch"`
	Participants []participant `json:"participants"`
	Messages     []message     `json:"messages"`
	Typing       []string      `json:"typing"`
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	personas := memory.NewPersonaStore(
		domain.Participant{ID: "bot-1", Name: "Alpha", Instruction: "You are Alpha."},
		domain.Participant{ID: "bot-2", Name: "Beta", Instruction: "You are Beta."},
	)
	gw := gateway.New(llm.NewMockLLM(), gateway.DefaultConfig())
	orch := groupchat.NewOrchestrator(gw, groupchat.OrchestratorConfig{})
	svc := groupchat.NewService(personas, orch, groupchat.DefaultUser())
	t.Cleanup(svc.Close)

	return httpadapter.NewServer(svc)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return serve(h, method, path, body)
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func createConversation(t *testing.T, h http.Handler, id string) conversation {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/conversations", `{"id":"`+id+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[conversation](t, rec)
}

func waitForMessages(t *testing.T, h http.Handler, id string, n int) conversation {
	t.Helper()
	var conv conversation
	require.Eventually(t, func() bool {
		rec := serve(h, http.MethodGet, "/conversations/"+id, "")
		if rec.Code != http.StatusOK {
			return false
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &conv); err != nil {
			return false
		}
		return len(conv.Messages) == n && len(conv.Typing) == 0
	}, 5*time.Second, 10*time.Millisecond)
	return conv
}

func TestHealthz(t *testing.T) {
	h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCreateConversation(t *testing.T) {
	h := newTestServer(t)

	conv := createConversation(t, h, "c1")
	require.Equal(t, "c1", conv.ID)
	require.Len(t, conv.Participants, 3)
	require.True(t, conv.Participants[0].IsUser)
	require.Empty(t, conv.Messages)

	rec := do(t, h, http.MethodPost, "/conversations", `{"id":"c1"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/conversations", `{"persona_ids":["nobody"]}`)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/conversations", `{"persona_ids":["bot-2"]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, decode[conversation](t, rec).Participants, 2)
}

func TestSendMessage_PersonasReply(t *testing.T) {
	h := newTestServer(t)
	createConversation(t, h, "c1")

	rec := do(t, h, http.MethodPost, "/conversations/c1/messages", `{"text":"hi"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	conv := waitForMessages(t, h, "c1", 3)
	require.Equal(t, "hi", conv.Messages[0].Content)
	require.Equal(t, "user-1", conv.Messages[0].SenderID)

	var replies []string
	for _, m := range conv.Messages[1:] {
		replies = append(replies, m.Content)
	}
	require.ElementsMatch(t, []string{"hello from Alpha", "hello from Beta"}, replies)
}

func TestSendMessage_Errors(t *testing.T) {
	h := newTestServer(t)
	createConversation(t, h, "c1")

	rec := do(t, h, http.MethodPost, "/conversations/c1/messages", `{"text":"   "}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/conversations/c1/messages", `not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/conversations/missing/messages", `{"text":"hi"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReset(t *testing.T) {
	h := newTestServer(t)
	createConversation(t, h, "c1")

	do(t, h, http.MethodPost, "/conversations/c1/messages", `{"text":"hi"}`)
	waitForMessages(t, h, "c1", 3)

	rec := do(t, h, http.MethodPost, "/conversations/c1/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, map[string]uint64{"epoch": 1}, decode[map[string]uint64](t, rec))

	rec = do(t, h, http.MethodGet, "/conversations/c1", "")
	conv := decode[conversation](t, rec)
	require.Equal(t, uint64(1), conv.Epoch)
	require.Empty(t, conv.Messages)

	rec = do(t, h, http.MethodGet, "/conversations/c1/typing", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, decode[map[string][]string](t, rec)["typing"])
}

func TestParticipants(t *testing.T) {
	h := newTestServer(t)
	createConversation(t, h, "c1")

	rec := do(t, h, http.MethodPost, "/conversations/c1/participants", `{"name":"Nova","instruction":"curious"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	added := decode[participant](t, rec)
	require.NotEmpty(t, added.ID)

	rec = do(t, h, http.MethodPost, "/conversations/c1/participants", `{"id":"`+added.ID+`","name":"Nova"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/conversations/c1/participants", `{"name":"Me","is_user":true}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodDelete, "/conversations/c1/participants/user-1", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodDelete, "/conversations/c1/participants/"+added.ID, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodDelete, "/conversations/c1/participants/"+added.ID, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteConversation(t *testing.T) {
	h := newTestServer(t)
	createConversation(t, h, "c1")

	require.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/conversations/c1", "").Code)
	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/conversations/c1", "").Code)
}

func TestPersonas(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/personas", `{"name":"Lulu","instruction":"gentle"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	saved := decode[participant](t, rec)

	rec = do(t, h, http.MethodGet, "/personas", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[map[string][]participant](t, rec)["personas"], 3)

	rec = do(t, h, http.MethodPost, "/personas", `{"name":""}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	require.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/personas/"+saved.ID, "").Code)
	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/personas/"+saved.ID, "").Code)
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(t)
	rec := do(t, h, http.MethodOptions, "/conversations", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

type frame struct {
	Type     string        `json:"type"`
	Epoch    uint64        `json:"epoch"`
	Message  *message      `json:"message"`
	Snapshot *conversation `json:"snapshot"`
}

func TestFeed_StreamsSnapshotThenEvents(t *testing.T) {
	h := newTestServer(t)
	createConversation(t, h, "c1")

	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/conversations/c1/ws"
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first frame
	require.NoError(t, conn.ReadJSON(&first))
	require.Equal(t, "snapshot", first.Type)
	require.NotNil(t, first.Snapshot)
	require.Len(t, first.Snapshot.Participants, 3)

	rec := do(t, h, http.MethodPost, "/conversations/c1/messages", `{"text":"hi"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var contents []string
	for len(contents) < 3 {
		var f frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type == "message" {
			require.NotNil(t, f.Message)
			contents = append(contents, f.Message.Content)
		}
	}
	require.Equal(t, "hi", contents[0])
	require.ElementsMatch(t, []string{"hello from Alpha", "hello from Beta"}, contents[1:])
}

func TestFeed_UnknownConversation(t *testing.T) {
	h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/conversations/missing/ws", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
