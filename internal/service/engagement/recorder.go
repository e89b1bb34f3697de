// Package engagement applies recipient activity to contacts: heat score
// changes, last engagement time and unsubscribes. The enrollment engine
// only reads these fields.
package engagement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/enrollment-engine/internal/domain"
	"github.com/ignite/enrollment-engine/internal/pkg/logger"
)

// EventType is a kind of recipient activity.
type EventType string

const (
	EventOpen        EventType = "open"
	EventClick       EventType = "click"
	EventReply       EventType = "reply"
	EventBounce      EventType = "bounce"
	EventUnsubscribe EventType = "unsubscribe"
)

// ErrUnknownEvent is returned for event types the recorder does not handle.
var ErrUnknownEvent = errors.New("unknown engagement event")

// heatDelta is the heat score change per event.
var heatDelta = map[EventType]int{
	EventOpen:   1,
	EventClick:  2,
	EventReply:  5,
	EventBounce: -2,
}

// Event is one piece of recipient activity. The contact is identified by
// ContactID, or by UserID and Email when the id is unknown.
type Event struct {
	ContactID string    `json:"contact_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Email     string    `json:"email,omitempty"`
	Type      EventType `json:"type"`
	At        time.Time `json:"at"`
}

// Repository resolves contacts and applies engagement changes atomically.
type Repository interface {
	FindContactByEmail(ctx context.Context, userID, email string) (*domain.Contact, error)
	ApplyEngagement(ctx context.Context, id string, u domain.EngagementUpdate) (*domain.Contact, error)
}

// Recorder applies events to contacts.
type Recorder struct {
	repo Repository
	log  *logger.Logger
}

// NewRecorder creates a recorder.
func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo, log: logger.With("component", "engagement")}
}

// ParseEventType normalises a provider event name.
func ParseEventType(s string) (EventType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open", "opened":
		return EventOpen, true
	case "click", "clicked":
		return EventClick, true
	case "reply", "replied":
		return EventReply, true
	case "bounce", "bounced", "dropped":
		return EventBounce, true
	case "unsubscribe", "group_unsubscribe", "spamreport", "complaint":
		return EventUnsubscribe, true
	default:
		return "", false
	}
}

// Record applies ev and returns the updated contact.
func (r *Recorder) Record(ctx context.Context, ev Event) (*domain.Contact, error) {
	if _, ok := heatDelta[ev.Type]; !ok && ev.Type != EventUnsubscribe {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
	}

	id, err := r.resolve(ctx, ev)
	if err != nil {
		return nil, err
	}

	u := domain.EngagementUpdate{At: ev.At}
	switch ev.Type {
	case EventUnsubscribe:
		u.Unsubscribe = true
	case EventBounce:
		u.HeatDelta = heatDelta[ev.Type]
	default:
		u.HeatDelta = heatDelta[ev.Type]
		at := ev.At
		u.EngagedAt = &at
	}

	c, err := r.repo.ApplyEngagement(ctx, id, u)
	if err != nil {
		return nil, fmt.Errorf("contact %s: %w", id, err)
	}
	r.log.Debug("engagement recorded", "contact_id", c.ID, "type", string(ev.Type), "heat_score", c.HeatScore)
	return c, nil
}

func (r *Recorder) resolve(ctx context.Context, ev Event) (string, error) {
	if ev.ContactID != "" {
		return ev.ContactID, nil
	}
	if ev.UserID == "" || ev.Email == "" {
		return "", fmt.Errorf("event has no contact reference: %w", domain.ErrNotFound)
	}
	c, err := r.repo.FindContactByEmail(ctx, ev.UserID, ev.Email)
	if err != nil {
		return "", fmt.Errorf("contact by email: %w", err)
	}
	return c.ID, nil
}
