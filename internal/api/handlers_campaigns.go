package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/enrollment-engine/internal/domain"
	"github.com/ignite/enrollment-engine/internal/pkg/httputil"
	"github.com/ignite/enrollment-engine/internal/service/campaign"
)

// ListCampaigns handles GET /api/campaigns?status=
func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := domain.CampaignStatus(r.URL.Query().Get("status"))
	campaigns, err := h.deps.Campaigns.List(ctx, UserID(ctx), status)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	if campaigns == nil {
		campaigns = []domain.Campaign{}
	}
	httputil.OK(w, map[string]interface{}{"campaigns": campaigns, "count": len(campaigns)})
}

// CreateCampaign handles POST /api/campaigns
func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var in campaign.CreateInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	ctx := r.Context()
	c, err := h.deps.Campaigns.Create(ctx, UserID(ctx), in, h.now())
	if err != nil {
		writeError(w, err, nil)
		return
	}
	httputil.Created(w, c)
}

// GetCampaign handles GET /api/campaigns/{id}
func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.deps.Campaigns.Get(r.Context(), UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	httputil.OK(w, c)
}

// UpdateCampaign handles PATCH /api/campaigns/{id}
func (h *Handlers) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	var u campaign.UpdateFields
	if !httputil.Decode(w, r, &u) {
		return
	}
	ctx := r.Context()
	c, err := h.deps.Campaigns.Update(ctx, UserID(ctx), chi.URLParam(r, "id"), u, h.now())
	if err != nil {
		writeError(w, err, nil)
		return
	}
	httputil.OK(w, c)
}

// SetCampaignStatus handles POST /api/campaigns/{id}/status with
// {"status": "active|paused|archived"}.
func (h *Handlers) SetCampaignStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status domain.CampaignStatus `json:"status"`
	}
	if !httputil.Decode(w, r, &body) {
		return
	}
	ctx := r.Context()
	c, err := h.deps.Campaigns.SetStatus(ctx, UserID(ctx), chi.URLParam(r, "id"), body.Status, h.now())
	if err != nil {
		writeError(w, err, nil)
		return
	}
	httputil.OK(w, c)
}

// DeleteCampaign handles DELETE /api/campaigns/{id}
func (h *Handlers) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Campaigns.Delete(r.Context(), UserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeError(w, err, nil)
		return
	}
	httputil.NoContent(w)
}

// CreateTemplate handles POST /api/templates
func (h *Handlers) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	h.saveTemplate(w, r, "")
}

// UpdateTemplate handles PUT /api/templates/{id}
func (h *Handlers) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	h.saveTemplate(w, r, chi.URLParam(r, "id"))
}

func (h *Handlers) saveTemplate(w http.ResponseWriter, r *http.Request, id string) {
	var in campaign.TemplateInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	ctx := r.Context()
	t, err := h.deps.Campaigns.SaveTemplate(ctx, UserID(ctx), id, in, h.now())
	if err != nil {
		writeError(w, err, nil)
		return
	}
	if id == "" {
		httputil.Created(w, t)
		return
	}
	httputil.OK(w, t)
}

// GetTemplate handles GET /api/templates/{id}
func (h *Handlers) GetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := h.deps.Campaigns.GetTemplate(r.Context(), UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	httputil.OK(w, t)
}
