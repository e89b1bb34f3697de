// Package memory is an in-process store used for local runs and tests. It
// honours the same contracts as the persistent stores: optimistic version
// checks and one open enrollment per contact and campaign.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ignite/enrollment-engine/internal/domain"
)

// Store keeps every collection in maps guarded by one mutex.
type Store struct {
	mu          sync.RWMutex
	contacts    map[string]domain.Contact
	campaigns   map[string]domain.Campaign
	templates   map[string]domain.EmailTemplate
	settings    map[string]domain.UserSettings
	enrollments map[string]*domain.Enrollment
	openPairs   map[string]string // PairKey -> enrollment id
	emailLogs   []domain.EmailLog
	tasks       map[string]*domain.AutomationTask
}

// New creates an empty store.
func New() *Store {
	return &Store{
		contacts:    map[string]domain.Contact{},
		campaigns:   map[string]domain.Campaign{},
		templates:   map[string]domain.EmailTemplate{},
		settings:    map[string]domain.UserSettings{},
		enrollments: map[string]*domain.Enrollment{},
		openPairs:   map[string]string{},
		tasks:       map[string]*domain.AutomationTask{},
	}
}

// ===== CONTACTS =====

func (s *Store) GetContact(_ context.Context, id string) (*domain.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contacts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (s *Store) ListContacts(_ context.Context, userID string) ([]domain.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Contact
	for _, c := range s.contacts {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) FindContactByEmail(_ context.Context, userID, email string) (*domain.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.contacts {
		if c.UserID == userID && strings.EqualFold(c.Email, email) {
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) SaveContact(_ context.Context, c *domain.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[c.ID] = *c
	return nil
}

// ApplyEngagement applies u under the store lock and returns the result.
func (s *Store) ApplyEngagement(_ context.Context, id string, u domain.EngagementUpdate) (*domain.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	u.Apply(&c)
	s.contacts[id] = c
	return &c, nil
}

// ===== CAMPAIGNS AND TEMPLATES =====

func (s *Store) GetCampaign(_ context.Context, id string) (*domain.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (s *Store) ListCampaigns(_ context.Context, userID string) ([]domain.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Campaign
	for _, c := range s.campaigns {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SaveCampaign(_ context.Context, c *domain.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns[c.ID] = *c
	return nil
}

func (s *Store) DeleteCampaign(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.campaigns, id)
	return nil
}

func (s *Store) GetTemplate(_ context.Context, id string) (*domain.EmailTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &t, nil
}

func (s *Store) SaveTemplate(_ context.Context, t *domain.EmailTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.ID] = *t
	return nil
}

// ===== USER SETTINGS =====

func (s *Store) GetUserSettings(_ context.Context, userID string) (*domain.UserSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	us, ok := s.settings[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &us, nil
}

func (s *Store) SaveUserSettings(_ context.Context, us *domain.UserSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[us.UserID] = *us
	return nil
}

// ListUserIDs returns every user that owns contacts or settings.
func (s *Store) ListUserIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[string]bool{}
	for id := range s.settings {
		seen[id] = true
	}
	for _, c := range s.contacts {
		seen[c.UserID] = true
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// ===== ENROLLMENTS =====

func (s *Store) GetEnrollment(_ context.Context, id string) (*domain.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.enrollments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return e.Clone(), nil
}

func (s *Store) CreateEnrollment(_ context.Context, e *domain.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.enrollments[e.ID]; ok {
		return domain.ErrAlreadyExists
	}
	key := domain.PairKey(e.ContactID, e.CampaignID)
	if e.Status.IsOpen() {
		if _, taken := s.openPairs[key]; taken {
			return domain.ErrAlreadyExists
		}
		s.openPairs[key] = e.ID
	}
	e.Version = 1
	s.enrollments[e.ID] = e.Clone()
	return nil
}

func (s *Store) UpdateEnrollment(_ context.Context, e *domain.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.enrollments[e.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version != e.Version {
		return domain.ErrVersionConflict
	}
	key := domain.PairKey(e.ContactID, e.CampaignID)
	if !e.Status.IsOpen() && s.openPairs[key] == e.ID {
		delete(s.openPairs, key)
	}
	e.Version++
	s.enrollments[e.ID] = e.Clone()
	return nil
}

// ListOpenEnrollments returns the user's pending and active enrollments.
func (s *Store) ListOpenEnrollments(_ context.Context, userID string) ([]domain.Enrollment, error) {
	return s.filterEnrollments(func(e *domain.Enrollment) bool {
		return e.UserID == userID && e.Status.IsOpen()
	}), nil
}

func (s *Store) ListOpenEnrollmentsForContact(_ context.Context, userID, contactID string) ([]domain.Enrollment, error) {
	return s.filterEnrollments(func(e *domain.Enrollment) bool {
		return e.UserID == userID && e.ContactID == contactID && e.Status.IsOpen()
	}), nil
}

// ListActiveEnrollmentIDs returns every non-terminal enrollment id.
func (s *Store) ListActiveEnrollmentIDs(_ context.Context) ([]string, error) {
	var ids []string
	for _, e := range s.filterEnrollments(func(e *domain.Enrollment) bool { return !e.Status.IsTerminal() }) {
		ids = append(ids, e.ID)
	}
	return ids, nil
}

func (s *Store) filterEnrollments(keep func(*domain.Enrollment) bool) []domain.Enrollment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Enrollment
	for _, e := range s.enrollments {
		if keep(e) {
			out = append(out, *e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ===== EMAIL LOG =====

func (s *Store) AppendEmailLog(_ context.Context, l *domain.EmailLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emailLogs = append(s.emailLogs, *l)
	return nil
}

func (s *Store) HasSentStep(_ context.Context, enrollmentID string, step int) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.emailLogs {
		if l.EnrollmentID == enrollmentID && l.Step == step && l.Status == domain.EmailLogSent {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListEmailLogs(_ context.Context, enrollmentID string) ([]domain.EmailLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.EmailLog
	for _, l := range s.emailLogs {
		if l.EnrollmentID == enrollmentID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *Store) CountEmailsSince(_ context.Context, userID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, l := range s.emailLogs {
		if l.UserID == userID && l.Status == domain.EmailLogSent && !l.SentAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// ===== TASKS =====

func (s *Store) CreateTask(_ context.Context, t *domain.AutomationTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.ID]; ok {
		return domain.ErrAlreadyExists
	}
	t.Version = 1
	cp := *t
	s.tasks[t.ID] = &cp
	return nil
}

func (s *Store) GetTask(_ context.Context, id string) (*domain.AutomationTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *Store) UpdateTask(_ context.Context, t *domain.AutomationTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.tasks[t.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version != t.Version {
		return domain.ErrVersionConflict
	}
	t.Version++
	cp := *t
	s.tasks[t.ID] = &cp
	return nil
}

func (s *Store) ListTasks(_ context.Context, userID string, status domain.TaskStatus) ([]domain.AutomationTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.AutomationTask
	for _, t := range s.tasks {
		if t.UserID == userID && (status == "" || t.Status == status) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) CountTasksSince(_ context.Context, userID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, t := range s.tasks {
		if t.UserID == userID && !t.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}
