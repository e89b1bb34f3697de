package api

import (
	"errors"
	"net/http"

	"github.com/ignite/enrollment-engine/internal/domain"
	"github.com/ignite/enrollment-engine/internal/pkg/httputil"
	"github.com/ignite/enrollment-engine/internal/service/campaign"
	"github.com/ignite/enrollment-engine/internal/service/engagement"
	"github.com/ignite/enrollment-engine/internal/service/enrollment"
	"github.com/ignite/enrollment-engine/internal/service/quota"
	"github.com/ignite/enrollment-engine/internal/service/recommendation"
	"github.com/ignite/enrollment-engine/internal/service/task"
)

// errorCode pairs an HTTP status with a stable machine-readable code.
type errorCode struct {
	status int
	code   string
}

var errorCodes = []struct {
	err error
	errorCode
}{
	{enrollment.ErrInvalidRequest, errorCode{http.StatusBadRequest, "invalid_request"}},
	{recommendation.ErrUnknownPolicy, errorCode{http.StatusBadRequest, "unknown_policy"}},
	{engagement.ErrUnknownEvent, errorCode{http.StatusBadRequest, "unknown_event"}},
	{campaign.ErrInvalidCampaign, errorCode{http.StatusBadRequest, "invalid_campaign"}},
	{campaign.ErrInvalidTemplate, errorCode{http.StatusBadRequest, "invalid_template"}},
	{domain.ErrNotFound, errorCode{http.StatusNotFound, "not_found"}},
	{recommendation.ErrHistoryUnavailable, errorCode{http.StatusNotFound, "history_unavailable"}},
	{enrollment.ErrCampaignInactive, errorCode{http.StatusConflict, "campaign_inactive"}},
	{enrollment.ErrContactUnsubscribed, errorCode{http.StatusConflict, "contact_unsubscribed"}},
	{enrollment.ErrAlreadyEnrolled, errorCode{http.StatusConflict, "already_enrolled"}},
	{enrollment.ErrAlreadyTerminal, errorCode{http.StatusConflict, "already_terminal"}},
	{enrollment.ErrLockBusy, errorCode{http.StatusConflict, "busy"}},
	{task.ErrInvalidTransition, errorCode{http.StatusConflict, "invalid_transition"}},
	{campaign.ErrInvalidTransition, errorCode{http.StatusConflict, "invalid_transition"}},
	{campaign.ErrInUse, errorCode{http.StatusConflict, "campaign_in_use"}},
	{domain.ErrVersionConflict, errorCode{http.StatusConflict, "version_conflict"}},
	{domain.ErrAlreadyExists, errorCode{http.StatusConflict, "already_exists"}},
	{quota.ErrNearEmailLimit, errorCode{http.StatusTooManyRequests, "near_email_limit"}},
	{quota.ErrTaskLimitReached, errorCode{http.StatusTooManyRequests, "task_limit_reached"}},
}

func classify(err error) (errorCode, bool) {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.errorCode, true
		}
	}
	return errorCode{}, false
}

// writeError maps service errors onto HTTP responses. details, when set, is
// attached to quota refusals so clients can show the current budget.
func writeError(w http.ResponseWriter, err error, details any) {
	ec, ok := classify(err)
	switch {
	case !ok:
		httputil.InternalError(w, err)
	case ec.status == http.StatusTooManyRequests:
		httputil.TooManyRequests(w, ec.code, err.Error(), details)
	default:
		httputil.JSON(w, ec.status, httputil.ErrorResponse{Error: err.Error(), Code: ec.code})
	}
}
