package mail

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/enrollment-engine/internal/pkg/logger"
)

// LogSender records messages instead of sending them. Used for local runs
// and as a dry-run provider.
type LogSender struct {
	mu   sync.Mutex
	sent []Message
	log  *logger.Logger
}

// NewLogSender creates a dry-run sender.
func NewLogSender() *LogSender {
	return &LogSender{log: logger.With("component", "mail", "provider", "log")}
}

// Name identifies the provider.
func (s *LogSender) Name() string { return "log" }

// Send logs the message and reports success.
func (s *LogSender) Send(ctx context.Context, msg *Message) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := uuid.New().String()
	s.mu.Lock()
	s.sent = append(s.sent, *msg)
	s.mu.Unlock()

	s.log.Info("email dispatched (dry run)",
		"to", msg.To, "subject", msg.Subject, "enrollment_id", msg.EnrollmentID, "step", msg.Step, "message_id", id)
	return &Result{Success: true, MessageID: id, Provider: "log", SentAt: time.Now()}, nil
}

// Sent returns a copy of every message sent so far.
func (s *LogSender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sent...)
}
