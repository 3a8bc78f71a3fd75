package httpadapter

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/PabloGalante/farum-groupchat/internal/app/groupchat"
	"github.com/PabloGalante/farum-groupchat/internal/observability"
)

const (
	feedWriteWait  = 10 * time.Second
	feedPongWait   = 60 * time.Second
	feedPingPeriod = (feedPongWait * 9) / 10
	feedBuffer     = 128
)

// feedFrame is one JSON frame on the conversation websocket.
type feedFrame struct {
	Type           string                `json:"type"`
	ConversationID string                `json:"conversation_id"`
	Epoch          uint64                `json:"epoch"`
	Message        *messageResponse      `json:"message,omitempty"`
	Typing         []string              `json:"typing,omitempty"`
	Participants   []participantDTO      `json:"participants,omitempty"`
	Snapshot       *conversationResponse `json:"snapshot,omitempty"`
}

// feedHandler streams conversation events to websocket clients. The first
// frame is always a snapshot, then one frame per event.
type feedHandler struct {
	svc      *groupchat.Service
	upgrader websocket.Upgrader
}

func newFeedHandler(svc *groupchat.Service) *feedHandler {
	return &feedHandler{
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *feedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conv, err := h.svc.Conversation(conversationID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	log := observability.LoggerFromContext(observability.WithConversationID(r.Context(), string(conv.ID())))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// subscribe before the snapshot so no event falls in between
	events, unsubscribe := conv.Subscribe(feedBuffer)
	defer unsubscribe()

	snap := toConversationResponse(conv.Snapshot())
	if err := writeFrame(conn, feedFrame{
		Type:           "snapshot",
		ConversationID: snap.ID,
		Epoch:          snap.Epoch,
		Snapshot:       &snap,
	}); err != nil {
		return
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(4096)
		_ = conn.SetReadDeadline(time.Now().Add(feedPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(feedPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(feedPingPeriod)
	defer ping.Stop()

	log.Info("feed client attached")
	defer log.Info("feed client detached")

	for {
		select {
		case <-closed:
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "conversation closed"),
					time.Now().Add(feedWriteWait))
				return
			}
			if err := writeFrame(conn, toFeedFrame(ev)); err != nil {
				log.Warn("feed write failed, dropping client", "error", err)
				return
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, frame feedFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func toFeedFrame(ev groupchat.Event) feedFrame {
	frame := feedFrame{
		Type:           string(ev.Type),
		ConversationID: string(ev.ConversationID),
		Epoch:          uint64(ev.Epoch),
	}
	switch ev.Type {
	case groupchat.EventMessage:
		if ev.Message != nil {
			m := toMessageResponse(*ev.Message)
			frame.Message = &m
		}
	case groupchat.EventTyping:
		frame.Typing = typingIDs(ev.Typing)
	case groupchat.EventRoster:
		for _, p := range ev.Roster {
			frame.Participants = append(frame.Participants, toParticipantDTO(p))
		}
	}
	return frame
}
