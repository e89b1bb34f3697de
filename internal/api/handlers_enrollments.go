package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/enrollment-engine/internal/domain"
	"github.com/ignite/enrollment-engine/internal/pkg/httputil"
	"github.com/ignite/enrollment-engine/internal/service/enrollment"
)

// EnrollBody is the JSON body of POST /api/enrollments.
type EnrollBody struct {
	ContactID         string `json:"contact_id"`
	CampaignID        string `json:"campaign_id"`
	DelayDays         int    `json:"delay_days,omitempty"`
	StartDelaySeconds int64  `json:"start_delay_seconds,omitempty"`
	Reason            string `json:"reason,omitempty"`
}

// CreateEnrollment handles POST /api/enrollments. A new enrollment answers
// 201; a campaign queued behind an open enrollment answers 200.
func (h *Handlers) CreateEnrollment(w http.ResponseWriter, r *http.Request) {
	var body EnrollBody
	if !httputil.Decode(w, r, &body) {
		return
	}
	ctx := r.Context()
	res, err := h.deps.Enrollments.Enroll(ctx, UserID(ctx), enrollment.EnrollRequest{
		ContactID:  body.ContactID,
		CampaignID: body.CampaignID,
		StartDelay: time.Duration(body.StartDelaySeconds) * time.Second,
		DelayDays:  body.DelayDays,
		Reason:     body.Reason,
	}, h.now())
	if err != nil {
		writeError(w, err, nil)
		return
	}
	if res.Created {
		httputil.Created(w, res)
		return
	}
	httputil.OK(w, res)
}

// GetEnrollment handles GET /api/enrollments/{id}
func (h *Handlers) GetEnrollment(w http.ResponseWriter, r *http.Request) {
	e, err := h.deps.Enrollments.Get(r.Context(), UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	httputil.OK(w, e)
}

// GetEnrollmentLogs handles GET /api/enrollments/{id}/logs
func (h *Handlers) GetEnrollmentLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.deps.Enrollments.Logs(r.Context(), UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	if logs == nil {
		logs = []domain.EmailLog{}
	}
	httputil.OK(w, map[string]interface{}{"logs": logs, "count": len(logs)})
}

// CancelEnrollment handles POST /api/enrollments/{id}/cancel with an
// optional {"reason": "..."} body.
func (h *Handlers) CancelEnrollment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength > 0 && !httputil.Decode(w, r, &body) {
		return
	}
	if body.Reason == "" {
		body.Reason = "cancelled by user"
	}
	ctx := r.Context()
	e, err := h.deps.Enrollments.Cancel(ctx, UserID(ctx), chi.URLParam(r, "id"), body.Reason, h.now())
	if err != nil {
		writeError(w, err, nil)
		return
	}
	httputil.OK(w, e)
}

// RunTick handles POST /api/engine/tick, running one engine pass inline.
func (h *Handlers) RunTick(w http.ResponseWriter, r *http.Request) {
	report, err := h.deps.Enrollments.Tick(r.Context(), h.now())
	if err != nil {
		writeError(w, err, nil)
		return
	}
	httputil.OK(w, report)
}
