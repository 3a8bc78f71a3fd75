package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

type ctxKey string

const (
	ctxKeyRequestID      ctxKey = "request_id"
	ctxKeyConversationID ctxKey = "conversation_id"
)

var logger atomic.Pointer[slog.Logger]

func init() {
	logger.Store(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
}

// Logger returns the process logger, JSON to stdout unless Setup ran.
func Logger() *slog.Logger {
	return logger.Load()
}

// Setup replaces the process logger. The terminal UI points it at a file so
// log lines do not tear the screen.
func Setup(w io.Writer, level slog.Level) {
	logger.Store(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})))
}

// WithFields returns a logger with additional fields.
func WithFields(kv ...any) *slog.Logger {
	return Logger().With(kv...)
}

// WithRequestID stores a request_id in the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, requestID)
}

// WithConversationID tags everything logged under ctx with the conversation.
// Turns started from a request keep the tag after the request ends.
func WithConversationID(ctx context.Context, conversationID string) context.Context {
	return context.WithValue(ctx, ctxKeyConversationID, conversationID)
}

// LoggerFromContext adds request_id and conversation_id when present.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	l := Logger()
	if reqID, _ := ctx.Value(ctxKeyRequestID).(string); reqID != "" {
		l = l.With("request_id", reqID)
	}
	if convID, _ := ctx.Value(ctxKeyConversationID).(string); convID != "" {
		l = l.With("conversation_id", convID)
	}
	return l
}
