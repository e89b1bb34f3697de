// Package mail delivers rendered campaign emails through a provider.
package mail

import (
	"context"
	"fmt"
	"time"
)

// Message is one rendered email.
type Message struct {
	EnrollmentID string
	CampaignID   string
	ContactID    string
	UserID       string
	Step         int
	To           string
	ToName       string
	FromName     string
	FromEmail    string
	ReplyTo      string
	Subject      string
	HTMLContent  string
	Headers      map[string]string
}

// Result is the provider's verdict on a message. A nil error with
// Success=false means the provider rejected the message.
type Result struct {
	Success   bool
	MessageID string
	Error     error
	Provider  string
	SentAt    time.Time
}

// Dispatcher sends a single message.
type Dispatcher interface {
	Send(ctx context.Context, msg *Message) (*Result, error)
	Name() string
}

// WithTimeout bounds every Send with d.
func WithTimeout(d Dispatcher, timeout time.Duration) Dispatcher {
	if timeout <= 0 {
		return d
	}
	return &timeoutDispatcher{next: d, timeout: timeout}
}

type timeoutDispatcher struct {
	next    Dispatcher
	timeout time.Duration
}

func (t *timeoutDispatcher) Name() string { return t.next.Name() }

func (t *timeoutDispatcher) Send(ctx context.Context, msg *Message) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := t.next.Send(ctx, msg)
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		return o.res, o.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%s send timed out after %s: %w", t.next.Name(), t.timeout, ctx.Err())
	}
}

// customArgs are attached to every message so provider webhooks can be
// mapped back to the contact and enrollment.
func customArgs(msg *Message) map[string]string {
	return map[string]string{
		"user_id":       msg.UserID,
		"contact_id":    msg.ContactID,
		"campaign_id":   msg.CampaignID,
		"enrollment_id": msg.EnrollmentID,
		"step":          fmt.Sprintf("%d", msg.Step),
	}
}
