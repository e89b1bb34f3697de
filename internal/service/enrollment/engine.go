package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ignite/enrollment-engine/internal/domain"
	"github.com/ignite/enrollment-engine/internal/mail"
	"github.com/ignite/enrollment-engine/internal/pkg/distlock"
	"github.com/ignite/enrollment-engine/internal/pkg/logger"
	"github.com/ignite/enrollment-engine/internal/service/quota"
)

// Outcome summarises what one Process call did.
type Outcome string

const (
	OutcomeNoop      Outcome = "noop"
	OutcomeSkipped   Outcome = "skipped" // lock held by another worker
	OutcomeUpdated   Outcome = "updated"
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
	OutcomeRefused   Outcome = "refused" // quota guard
	OutcomeRetry     Outcome = "retry"   // dispatch failed, retried next tick
	OutcomeConflict  Outcome = "conflict"
)

// ProcessResult reports the effect of processing one enrollment.
type ProcessResult struct {
	EnrollmentID string                  `json:"enrollment_id"`
	Outcome      Outcome                 `json:"outcome"`
	Status       domain.EnrollmentStatus `json:"status,omitempty"`
	Sent         int                     `json:"sent"`
	Reason       string                  `json:"reason,omitempty"`
}

// TickReport aggregates one pass over all non-terminal enrollments.
type TickReport struct {
	Listed    int             `json:"listed"`
	Sent      int             `json:"sent"`
	Errors    int             `json:"errors"`
	Outcomes  map[Outcome]int `json:"outcomes"`
	StartedAt time.Time       `json:"started_at"`
	Duration  time.Duration   `json:"duration"`
}

// Options configure the engine.
type Options struct {
	Concurrency int
	LockTTL     time.Duration
	SendTimeout time.Duration
	FromName    string
	FromEmail   string
}

// Engine owns enrollment state transitions.
type Engine struct {
	repo     Repository
	mail     mail.Dispatcher
	guard    SendGuard
	locks    distlock.Provider
	renderer *Renderer
	opts     Options
	log      *logger.Logger
}

// NewEngine wires an engine. A nil lock provider uses in-process locks.
func NewEngine(repo Repository, dispatcher mail.Dispatcher, guard SendGuard, locks distlock.Provider, opts Options) *Engine {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 90 * time.Second
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 20 * time.Second
	}
	if locks == nil {
		locks = distlock.NewLocalProvider()
	}
	return &Engine{
		repo:     repo,
		mail:     mail.WithTimeout(dispatcher, opts.SendTimeout),
		guard:    guard,
		locks:    locks,
		renderer: NewRenderer(),
		opts:     opts,
		log:      logger.With("component", "enrollment_engine"),
	}
}

// Tick processes every non-terminal enrollment independently, with bounded
// parallelism. Per-enrollment errors are counted and logged, not returned.
func (en *Engine) Tick(ctx context.Context, now time.Time) (*TickReport, error) {
	started := time.Now()
	ids, err := en.repo.ListActiveEnrollmentIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active enrollments: %w", err)
	}

	report := &TickReport{Listed: len(ids), Outcomes: map[Outcome]int{}, StartedAt: now}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(en.opts.Concurrency)
	for _, id := range ids {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			res, err := en.Process(ctx, id, now)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Errors++
				en.log.Error("process enrollment failed", "enrollment_id", id, "error", err.Error())
				return nil
			}
			report.Outcomes[res.Outcome]++
			report.Sent += res.Sent
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = time.Since(started)
	log.Printf("[EnrollmentEngine] Tick processed %d enrollments: sent=%d errors=%d outcomes=%v (%s)",
		report.Listed, report.Sent, report.Errors, report.Outcomes, report.Duration.Round(time.Millisecond))
	return report, nil
}

// Process advances one enrollment as far as it is due at now. Only one
// worker processes an enrollment at a time; a busy lock yields OutcomeSkipped.
func (en *Engine) Process(ctx context.Context, enrollmentID string, now time.Time) (*ProcessResult, error) {
	lock := en.locks.Lock("enrollment:"+enrollmentID, en.opts.LockTTL)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire enrollment lock: %w", err)
	}
	if !acquired {
		return &ProcessResult{EnrollmentID: enrollmentID, Outcome: OutcomeSkipped}, nil
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil {
			en.log.Warn("release enrollment lock failed", "enrollment_id", enrollmentID, "error", err.Error())
		}
	}()

	stored, err := en.repo.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, fmt.Errorf("load enrollment: %w", err)
	}
	if stored.Status.IsTerminal() {
		return &ProcessResult{EnrollmentID: enrollmentID, Outcome: OutcomeNoop, Status: stored.Status}, nil
	}

	r := &run{engine: en, e: stored.Clone(), now: now, lock: lock}
	if err := r.advance(ctx); err != nil {
		return nil, err
	}

	res := &ProcessResult{EnrollmentID: enrollmentID, Outcome: r.outcome(), Status: r.e.Status, Sent: r.sent, Reason: r.reason}
	if !r.changed {
		return res, nil
	}

	r.e.UpdatedAt = now
	if err := en.repo.UpdateEnrollment(ctx, r.e); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			if r.sent > 0 {
				en.log.Error("enrollment changed concurrently after send; step may be resent",
					"enrollment_id", enrollmentID, "sent", r.sent)
			} else {
				en.log.Warn("enrollment version conflict", "enrollment_id", enrollmentID)
			}
			res.Outcome = OutcomeConflict
			return res, nil
		}
		return nil, fmt.Errorf("save enrollment: %w", err)
	}
	return res, nil
}

// run holds the in-memory working copy for one Process call.
type run struct {
	engine   *Engine
	e        *domain.Enrollment
	now      time.Time
	campaign *domain.Campaign
	contact  *domain.Contact
	lock     distlock.DistLock

	changed  bool
	lockLost bool
	sent     int
	refused  bool
	retry    bool
	reason   string
}

func (r *run) outcome() Outcome {
	switch {
	case r.e.Status == domain.EnrollmentCompleted && r.changed:
		return OutcomeCompleted
	case r.e.Status == domain.EnrollmentCancelled && r.changed:
		return OutcomeCancelled
	case r.e.Status == domain.EnrollmentFailed && r.changed:
		return OutcomeFailed
	case r.refused:
		return OutcomeRefused
	case r.retry:
		return OutcomeRetry
	case r.changed:
		return OutcomeUpdated
	case r.lockLost:
		return OutcomeSkipped
	default:
		return OutcomeNoop
	}
}

func (r *run) finish(status domain.EnrollmentStatus, reason string) {
	r.e.Status = status
	r.e.TerminalReason = reason
	r.e.WaitingForNextStep = false
	r.e.NextStepReadyAt = nil
	at := r.now
	r.e.CompletedAt = &at
	r.reason = reason
	r.changed = true
}

// advance applies every transition due at r.now.
func (r *run) advance(ctx context.Context) error {
	en := r.engine
	e := r.e

	campaign, err := en.repo.GetCampaign(ctx, e.CampaignID)
	if errors.Is(err, domain.ErrNotFound) {
		r.finish(domain.EnrollmentFailed, "campaign deleted")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load campaign: %w", err)
	}
	r.campaign = campaign

	contact, err := en.repo.GetContact(ctx, e.ContactID)
	if errors.Is(err, domain.ErrNotFound) {
		r.finish(domain.EnrollmentFailed, "contact deleted")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load contact: %w", err)
	}
	r.contact = contact

	if contact.Unsubscribed {
		r.finish(domain.EnrollmentCancelled, "contact unsubscribed")
		return nil
	}

	if e.Status == domain.EnrollmentPending {
		if e.StartAt != nil && r.now.Before(*e.StartAt) {
			return nil
		}
		e.Status = domain.EnrollmentActive
		r.waitForStep()
		r.changed = true
	}

	// Each step takes at most two passes: one to leave a wait, one to send.
	for i := 0; i < 2*len(campaign.Steps)+2; i++ {
		if e.WaitingForNextStep {
			if e.NextStepReadyAt == nil {
				e.WaitingForNextStep = false
				e.NeedsRepair = true
				r.changed = true
				en.log.Warn("enrollment waiting without ready time; cleared for repair",
					"enrollment_id", e.ID, "current_step", e.CurrentStep)
				return nil
			}
			if r.now.Before(*e.NextStepReadyAt) {
				return nil
			}
			e.WaitingForNextStep = false
			e.NextStepReadyAt = nil
			if sentCurrent(e) {
				e.CurrentStep++
			}
			r.changed = true
		}

		if e.CurrentStep >= len(campaign.Steps) {
			r.finish(domain.EnrollmentCompleted, "")
			return nil
		}

		if sentCurrent(e) {
			// Sent but never advanced.
			e.CurrentStep++
			r.waitForStep()
			r.changed = true
			continue
		}

		done, err := r.sendCurrent(ctx)
		if err != nil || !done {
			return err
		}
	}
	return nil
}

// sendCurrent dispatches the current step. It reports whether the step was
// sent and state advanced.
func (r *run) sendCurrent(ctx context.Context) (bool, error) {
	en := r.engine
	e := r.e
	stepIdx := e.CurrentStep
	step, _ := r.campaign.StepAt(stepIdx)

	// Renew the hold before every send so a run of zero-delay steps cannot
	// outlive the lock. Once it has lapsed another worker may own the record.
	if err := distlock.Extend(ctx, r.lock, en.opts.LockTTL); err != nil {
		if !errors.Is(err, distlock.ErrNotHeld) {
			return false, fmt.Errorf("extend enrollment lock: %w", err)
		}
		r.lockLost = true
		r.reason = "enrollment lock lost"
		en.log.Warn("enrollment lock lapsed; stopping before send",
			"enrollment_id", e.ID, "step", stepIdx, "sent", r.sent)
		return false, nil
	}

	already, err := en.repo.HasSentStep(ctx, e.ID, stepIdx)
	if err != nil {
		return false, fmt.Errorf("check email log: %w", err)
	}
	if already {
		en.log.Warn("step already in email log; advancing without resend",
			"enrollment_id", e.ID, "step", stepIdx)
		r.markSent(stepIdx)
		return true, nil
	}

	tmpl, err := en.repo.GetTemplate(ctx, step.TemplateID)
	if errors.Is(err, domain.ErrNotFound) {
		r.finish(domain.EnrollmentFailed, fmt.Sprintf("template %s missing for step %d", step.TemplateID, stepIdx))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load template: %w", err)
	}

	if _, err := en.guard.CheckSend(ctx, e.UserID, r.now); err != nil {
		if errors.Is(err, quota.ErrNearEmailLimit) {
			r.refused = true
			r.reason = err.Error()
			return false, nil
		}
		return false, fmt.Errorf("check quota: %w", err)
	}

	rendered, err := en.renderer.Render(tmpl, r.contact, r.campaign, step)
	if err != nil {
		r.finish(domain.EnrollmentFailed, fmt.Sprintf("step %d: %v", stepIdx, err))
		return false, nil
	}

	msg := &mail.Message{
		EnrollmentID: e.ID,
		CampaignID:   e.CampaignID,
		ContactID:    e.ContactID,
		UserID:       e.UserID,
		Step:         stepIdx,
		To:           r.contact.Email,
		ToName:       r.contact.FullName(),
		FromName:     en.opts.FromName,
		FromEmail:    en.opts.FromEmail,
		Subject:      rendered.Subject,
		HTMLContent:  rendered.HTML,
	}
	res, sendErr := en.mail.Send(ctx, msg)
	if sendErr == nil && (res == nil || !res.Success) {
		sendErr = errors.New("provider rejected message")
		if res != nil && res.Error != nil {
			sendErr = res.Error
		}
	}

	entry := &domain.EmailLog{
		ID:           uuid.New().String(),
		UserID:       e.UserID,
		EnrollmentID: e.ID,
		ContactID:    e.ContactID,
		CampaignID:   e.CampaignID,
		Step:         stepIdx,
		ToAddress:    r.contact.Email,
		Subject:      rendered.Subject,
		SentAt:       r.now,
	}

	if sendErr != nil {
		entry.Status = domain.EmailLogFailed
		entry.Error = sendErr.Error()
		if err := en.repo.AppendEmailLog(ctx, entry); err != nil {
			en.log.Warn("append failed email log", "enrollment_id", e.ID, "error", err.Error())
		}
		e.LastError = sendErr.Error()
		r.retry = true
		r.reason = sendErr.Error()
		r.changed = true
		en.log.Warn("dispatch failed; step will be retried",
			"enrollment_id", e.ID, "step", stepIdx, "provider", en.mail.Name(), "error", sendErr.Error())
		return false, nil
	}

	entry.Status = domain.EmailLogSent
	entry.ProviderID = res.MessageID
	if err := en.repo.AppendEmailLog(ctx, entry); err != nil {
		// The send happened; keep going so the enrollment records it.
		en.log.Error("append email log after send", "enrollment_id", e.ID, "step", stepIdx, "error", err.Error())
	}
	en.guard.RecordSend(ctx, e.UserID, r.now)
	r.sent++
	e.LastError = ""
	r.markSent(stepIdx)

	en.log.Info("campaign step sent",
		"enrollment_id", e.ID, "step", stepIdx, "to", r.contact.Email, "message_id", res.MessageID)
	return true, nil
}

func (r *run) markSent(stepIdx int) {
	sent := stepIdx
	r.e.LastStepSent = &sent
	r.e.CurrentStep = stepIdx + 1
	r.waitForStep()
	r.changed = true
}

// waitForStep starts the delay that precedes the current step, if any.
func (r *run) waitForStep() {
	step, ok := r.campaign.StepAt(r.e.CurrentStep)
	if !ok || step.Delay() <= 0 {
		return
	}
	ready := r.now.Add(step.Delay())
	r.e.WaitingForNextStep = true
	r.e.NextStepReadyAt = &ready
}

func sentCurrent(e *domain.Enrollment) bool {
	return e.LastStepSent != nil && *e.LastStepSent == e.CurrentStep
}
