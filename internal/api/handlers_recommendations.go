package api

import (
	"net/http"
	"time"

	"github.com/ignite/enrollment-engine/internal/domain"
	"github.com/ignite/enrollment-engine/internal/pkg/httputil"
	"github.com/ignite/enrollment-engine/internal/service/recommendation"
)

// RecommendationsResponse wraps a generated recommendation list.
type RecommendationsResponse struct {
	Policy          recommendation.Policy   `json:"policy"`
	Recommendations []domain.Recommendation `json:"recommendations"`
	Count           int                     `json:"count"`
}

// GetQuota handles GET /api/quota
func (h *Handlers) GetQuota(w http.ResponseWriter, r *http.Request) {
	q, err := h.deps.Quota.ComputeQuota(r.Context(), UserID(r.Context()), h.now())
	if err != nil {
		writeError(w, err, nil)
		return
	}
	httputil.OK(w, q)
}

// GetRecommendations handles GET /api/recommendations?policy=
func (h *Handlers) GetRecommendations(w http.ResponseWriter, r *http.Request) {
	h.recommendations(w, r, false)
}

// RefreshRecommendations handles POST /api/recommendations/refresh?policy=
func (h *Handlers) RefreshRecommendations(w http.ResponseWriter, r *http.Request) {
	h.recommendations(w, r, true)
}

func (h *Handlers) recommendations(w http.ResponseWriter, r *http.Request, refresh bool) {
	ctx := r.Context()
	userID := UserID(ctx)
	policy, err := recommendation.ParsePolicy(r.URL.Query().Get("policy"))
	if err != nil {
		writeError(w, err, nil)
		return
	}

	now := h.now()
	recs, err := h.deps.Recommender.Generate(ctx, userID, policy, now, refresh)
	if err != nil {
		writeError(w, err, h.quotaDetails(r, userID))
		return
	}
	if recs == nil {
		recs = []domain.Recommendation{}
	}
	httputil.OK(w, RecommendationsResponse{Policy: policy, Recommendations: recs, Count: len(recs)})
}

// GetRecommendationHistory handles GET /api/recommendations/history?day=YYYY-MM-DD&policy=
// Day defaults to today (UTC).
func (h *Handlers) GetRecommendationHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	policy, err := recommendation.ParsePolicy(r.URL.Query().Get("policy"))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	day := h.now().UTC()
	if v := r.URL.Query().Get("day"); v != "" {
		day, err = time.Parse("2006-01-02", v)
		if err != nil {
			httputil.BadRequest(w, "day must be YYYY-MM-DD")
			return
		}
	}

	recs, err := h.deps.Recommender.History(ctx, UserID(ctx), policy, day)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	httputil.OK(w, RecommendationsResponse{Policy: policy, Recommendations: recs, Count: len(recs)})
}

// CreateRecommendationTasks handles POST /api/recommendations/tasks
func (h *Handlers) CreateRecommendationTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := UserID(ctx)
	tasks, err := h.deps.Recommender.CreateTasks(ctx, userID, h.now())
	if err != nil {
		writeError(w, err, h.quotaDetails(r, userID))
		return
	}
	if tasks == nil {
		tasks = []*domain.AutomationTask{}
	}
	httputil.Created(w, map[string]interface{}{"tasks": tasks, "count": len(tasks)})
}

// quotaDetails attaches the current budget to quota refusals when available.
func (h *Handlers) quotaDetails(r *http.Request, userID string) any {
	if h.deps.Quota == nil {
		return nil
	}
	q, err := h.deps.Quota.ComputeQuota(r.Context(), userID, h.now())
	if err != nil {
		return nil
	}
	return q
}
