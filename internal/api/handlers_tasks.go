package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/enrollment-engine/internal/domain"
	"github.com/ignite/enrollment-engine/internal/pkg/httputil"
)

// ReviewerHeader optionally names the person approving or rejecting a task.
const ReviewerHeader = "X-Reviewer"

var taskStatuses = map[domain.TaskStatus]bool{
	domain.TaskPending:  true,
	domain.TaskApproved: true,
	domain.TaskRejected: true,
	domain.TaskExecuted: true,
	domain.TaskFailed:   true,
}

// ListTasks handles GET /api/tasks?status=
func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	status := domain.TaskStatus(strings.ToLower(r.URL.Query().Get("status")))
	if status != "" && !taskStatuses[status] {
		httputil.BadRequest(w, "unknown task status: "+string(status))
		return
	}
	tasks, err := h.deps.Tasks.List(r.Context(), UserID(r.Context()), status)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	if tasks == nil {
		tasks = []domain.AutomationTask{}
	}
	httputil.OK(w, map[string]interface{}{"tasks": tasks, "count": len(tasks)})
}

// GetTask handles GET /api/tasks/{id}
func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.deps.Tasks.Get(r.Context(), UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	httputil.OK(w, t)
}

// ApproveTask handles POST /api/tasks/{id}/approve. Approval executes the
// task; a quota refusal leaves it approved and answers 429 with the task.
func (h *Handlers) ApproveTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := UserID(ctx)
	t, err := h.deps.Tasks.Approve(ctx, userID, chi.URLParam(r, "id"), reviewer(r, userID), h.now())
	if err != nil {
		var details any
		if t != nil {
			details = t
		}
		writeError(w, err, details)
		return
	}
	httputil.OK(w, t)
}

// ExecuteTask handles POST /api/tasks/{id}/execute, retrying an approved
// task that an earlier quota refusal left unexecuted.
func (h *Handlers) ExecuteTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t, err := h.deps.Tasks.Execute(ctx, UserID(ctx), chi.URLParam(r, "id"), h.now())
	if err != nil {
		var details any
		if t != nil {
			details = t
		}
		writeError(w, err, details)
		return
	}
	httputil.OK(w, t)
}

// RejectTask handles POST /api/tasks/{id}/reject
func (h *Handlers) RejectTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := UserID(ctx)
	t, err := h.deps.Tasks.Reject(ctx, userID, chi.URLParam(r, "id"), reviewer(r, userID), h.now())
	if err != nil {
		writeError(w, err, nil)
		return
	}
	httputil.OK(w, t)
}

func reviewer(r *http.Request, userID string) string {
	if v := strings.TrimSpace(r.Header.Get(ReviewerHeader)); v != "" {
		return v
	}
	return userID
}
