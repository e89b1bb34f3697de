package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/ignite/enrollment-engine/internal/domain"
	"github.com/ignite/enrollment-engine/internal/pkg/httputil"
	"github.com/ignite/enrollment-engine/internal/service/engagement"
)

// maxWebhookBody bounds one SendGrid batch.
const maxWebhookBody = 5 << 20

// SendGridEvent is one entry of a SendGrid event webhook batch. Custom
// arguments attached at send time come back as top-level fields.
type SendGridEvent struct {
	Event       string `json:"event"`
	Email       string `json:"email"`
	SGMessageID string `json:"sg_message_id"`
	Timestamp   int64  `json:"timestamp"`
	ContactID   string `json:"contact_id"`
	UserID      string `json:"user_id"`
}

// WebhookResult summarises how a batch was applied.
type WebhookResult struct {
	Received int `json:"received"`
	Applied  int `json:"applied"`
	Ignored  int `json:"ignored"`
	Failed   int `json:"failed"`
}

// HandleSendGridWebhook handles POST /webhooks/sendgrid. Events the recorder
// does not track (processed, delivered, deferred) are ignored. The batch is
// always acknowledged so the provider does not retry it.
func (h *Handlers) HandleSendGridWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		httputil.BadRequest(w, "failed to read body")
		return
	}

	var events []SendGridEvent
	if err := json.Unmarshal(body, &events); err != nil {
		httputil.BadRequest(w, "invalid JSON")
		return
	}

	res := WebhookResult{Received: len(events)}
	for _, ev := range events {
		typ, ok := engagement.ParseEventType(ev.Event)
		if !ok || (ev.ContactID == "" && (ev.UserID == "" || ev.Email == "")) {
			res.Ignored++
			continue
		}
		at := h.now()
		if ev.Timestamp > 0 {
			at = time.Unix(ev.Timestamp, 0).UTC()
		}
		_, err := h.deps.Engagement.Record(r.Context(), engagement.Event{
			ContactID: ev.ContactID,
			UserID:    ev.UserID,
			Email:     ev.Email,
			Type:      typ,
			At:        at,
		})
		switch {
		case errors.Is(err, domain.ErrNotFound):
			res.Ignored++
		case err != nil:
			res.Failed++
			h.log.Error("sendgrid event failed", "event", ev.Event, "sg_message_id", ev.SGMessageID, "error", err.Error())
		default:
			res.Applied++
		}
	}

	h.log.Info("sendgrid webhook", "received", res.Received, "applied", res.Applied, "ignored", res.Ignored, "failed", res.Failed)
	httputil.OK(w, res)
}
