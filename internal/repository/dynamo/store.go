package dynamo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/ignite/enrollment-engine/internal/domain"
)

// ===== CONTACTS =====

func (s *Store) GetContact(ctx context.Context, id string) (*domain.Contact, error) {
	var it contactItem
	ok, err := s.getItem(ctx, "CONTACT#"+id, meta, &it)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &it.Contact, nil
}

func (s *Store) ListContacts(ctx context.Context, userID string) ([]domain.Contact, error) {
	items, err := query[contactItem](ctx, s, gsi1, "GSI1PK = :pk", map[string]types.AttributeValue{
		":pk": str("USER#" + userID + "#CONTACT"),
	})
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	out := make([]domain.Contact, 0, len(items))
	for _, it := range items {
		out = append(out, it.Contact)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) FindContactByEmail(ctx context.Context, userID, email string) (*domain.Contact, error) {
	contacts, err := s.ListContacts(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range contacts {
		if strings.EqualFold(contacts[i].Email, email) {
			return &contacts[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) SaveContact(ctx context.Context, c *domain.Contact) error {
	if err := s.putItem(ctx, newContactItem(c), "", nil); err != nil {
		return fmt.Errorf("putting contact to DynamoDB: %w", err)
	}
	if err := s.putItem(ctx, newUserItem(c.UserID), "", nil); err != nil {
		return fmt.Errorf("putting user to DynamoDB: %w", err)
	}
	return nil
}

// maxEngagementAttempts bounds the read-modify-write loop under contention.
const maxEngagementAttempts = 5

// ApplyEngagement applies u with a conditional put on the contact's Rev and
// retries from a fresh read when another writer got there first.
func (s *Store) ApplyEngagement(ctx context.Context, id string, u domain.EngagementUpdate) (*domain.Contact, error) {
	for attempt := 0; attempt < maxEngagementAttempts; attempt++ {
		var it contactItem
		ok, err := s.getItem(ctx, "CONTACT#"+id, meta, &it)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domain.ErrNotFound
		}

		cond := "Rev = :rev"
		values := map[string]types.AttributeValue{":rev": str(it.Rev)}
		if it.Rev == "" {
			cond, values = "attribute_not_exists(Rev)", nil
		}
		c := it.Contact
		u.Apply(&c)
		err = s.putItem(ctx, newContactItem(&c), cond, values)
		if err == nil {
			return &c, nil
		}
		if !isConditionFailed(err) {
			return nil, fmt.Errorf("putting contact to DynamoDB: %w", err)
		}
	}
	return nil, fmt.Errorf("apply engagement to %s: %w", id, domain.ErrVersionConflict)
}

// ===== CAMPAIGNS AND TEMPLATES =====

func (s *Store) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	var it campaignItem
	ok, err := s.getItem(ctx, "CAMPAIGN#"+id, meta, &it)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &it.Campaign, nil
}

func (s *Store) ListCampaigns(ctx context.Context, userID string) ([]domain.Campaign, error) {
	items, err := query[campaignItem](ctx, s, gsi1, "GSI1PK = :pk", map[string]types.AttributeValue{
		":pk": str("USER#" + userID + "#CAMPAIGN"),
	})
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	out := make([]domain.Campaign, 0, len(items))
	for _, it := range items {
		out = append(out, it.Campaign)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SaveCampaign(ctx context.Context, c *domain.Campaign) error {
	if err := s.putItem(ctx, newCampaignItem(c), "", nil); err != nil {
		return fmt.Errorf("putting campaign to DynamoDB: %w", err)
	}
	return nil
}

func (s *Store) DeleteCampaign(ctx context.Context, id string) error {
	_, err := s.db.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       key("CAMPAIGN#"+id, meta),
	})
	if err != nil {
		return fmt.Errorf("deleting campaign from DynamoDB: %w", err)
	}
	return nil
}

func (s *Store) GetTemplate(ctx context.Context, id string) (*domain.EmailTemplate, error) {
	var it templateItem
	ok, err := s.getItem(ctx, "TEMPLATE#"+id, meta, &it)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &it.EmailTemplate, nil
}

func (s *Store) SaveTemplate(ctx context.Context, t *domain.EmailTemplate) error {
	it := templateItem{Keys: Keys{PK: "TEMPLATE#" + t.ID, SK: meta}, EmailTemplate: *t}
	if err := s.putItem(ctx, it, "", nil); err != nil {
		return fmt.Errorf("putting template to DynamoDB: %w", err)
	}
	return nil
}

// ===== USER SETTINGS =====

func (s *Store) GetUserSettings(ctx context.Context, userID string) (*domain.UserSettings, error) {
	var it settingsItem
	ok, err := s.getItem(ctx, "USER#"+userID, "SETTINGS", &it)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &it.UserSettings, nil
}

func (s *Store) SaveUserSettings(ctx context.Context, us *domain.UserSettings) error {
	it := settingsItem{Keys: Keys{PK: "USER#" + us.UserID, SK: "SETTINGS"}, UserSettings: *us}
	if err := s.putItem(ctx, it, "", nil); err != nil {
		return fmt.Errorf("putting settings to DynamoDB: %w", err)
	}
	if err := s.putItem(ctx, newUserItem(us.UserID), "", nil); err != nil {
		return fmt.Errorf("putting user to DynamoDB: %w", err)
	}
	return nil
}

// ListUserIDs reads the user directory partition of GSI2.
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	items, err := query[userItem](ctx, s, gsi2, "GSI2PK = :pk", map[string]types.AttributeValue{
		":pk": str("USERS"),
	})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.UserID)
	}
	sort.Strings(ids)
	return ids, nil
}

// ===== EMAIL LOG =====

func (s *Store) AppendEmailLog(ctx context.Context, l *domain.EmailLog) error {
	if err := s.putItem(ctx, newEmailLogItem(l), "", nil); err != nil {
		return fmt.Errorf("putting email log to DynamoDB: %w", err)
	}
	return nil
}

func (s *Store) HasSentStep(ctx context.Context, enrollmentID string, step int) (bool, error) {
	items, err := query[emailLogItem](ctx, s, "", "PK = :pk AND begins_with(SK, :prefix)", map[string]types.AttributeValue{
		":pk":     str("ENROLLMENT#" + enrollmentID),
		":prefix": str(emailLogPrefix(step)),
	})
	if err != nil {
		return false, fmt.Errorf("has sent step: %w", err)
	}
	for _, it := range items {
		if it.Status == domain.EmailLogSent {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListEmailLogs(ctx context.Context, enrollmentID string) ([]domain.EmailLog, error) {
	items, err := query[emailLogItem](ctx, s, "", "PK = :pk AND begins_with(SK, :prefix)", map[string]types.AttributeValue{
		":pk":     str("ENROLLMENT#" + enrollmentID),
		":prefix": str("EMAIL#"),
	})
	if err != nil {
		return nil, fmt.Errorf("list email logs: %w", err)
	}
	out := make([]domain.EmailLog, 0, len(items))
	for _, it := range items {
		out = append(out, it.EmailLog)
	}
	return out, nil
}

func (s *Store) CountEmailsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	return s.countSince(ctx, "USER#"+userID+"#EMAIL#"+string(domain.EmailLogSent), since)
}

func (s *Store) countSince(ctx context.Context, pk string, since time.Time) (int, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		IndexName:              aws.String(gsi1),
		KeyConditionExpression: aws.String("GSI1PK = :pk AND GSI1SK >= :since"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":    str(pk),
			":since": str(since.UTC().Format(timeKey)),
		},
		Select: types.SelectCount,
	}
	n := 0
	p := dynamodb.NewQueryPaginator(s.db, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("counting %s: %w", pk, err)
		}
		n += int(page.Count)
	}
	return n, nil
}

// ===== TASKS =====

func (s *Store) CreateTask(ctx context.Context, t *domain.AutomationTask) error {
	cp := *t
	cp.Version = 1
	if err := s.putItem(ctx, newTaskItem(&cp), "attribute_not_exists(PK)", nil); err != nil {
		if isConditionFailed(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("putting task to DynamoDB: %w", err)
	}
	t.Version = 1
	return nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*domain.AutomationTask, error) {
	var it taskItem
	ok, err := s.getItem(ctx, "TASK#"+id, meta, &it)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &it.AutomationTask, nil
}

func (s *Store) UpdateTask(ctx context.Context, t *domain.AutomationTask) error {
	cp := *t
	cp.Version = t.Version + 1
	err := s.putItem(ctx, newTaskItem(&cp), "Version = :v", versionValue(t.Version))
	if err != nil {
		if isConditionFailed(err) {
			return s.conflictOrMissing(ctx, "TASK#"+t.ID)
		}
		return fmt.Errorf("putting task to DynamoDB: %w", err)
	}
	t.Version = cp.Version
	return nil
}

// ListTasks returns the user's tasks newest first, optionally filtered by status.
func (s *Store) ListTasks(ctx context.Context, userID string, status domain.TaskStatus) ([]domain.AutomationTask, error) {
	items, err := query[taskItem](ctx, s, gsi1, "GSI1PK = :pk", map[string]types.AttributeValue{
		":pk": str("USER#" + userID + "#TASK"),
	})
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	var out []domain.AutomationTask
	for i := len(items) - 1; i >= 0; i-- {
		if status == "" || items[i].Status == status {
			out = append(out, items[i].AutomationTask)
		}
	}
	return out, nil
}

func (s *Store) CountTasksSince(ctx context.Context, userID string, since time.Time) (int, error) {
	return s.countSince(ctx, "USER#"+userID+"#TASK", since)
}

// ===== HELPERS =====

func versionValue(v int64) map[string]types.AttributeValue {
	av, _ := attributevalue.Marshal(v)
	return map[string]types.AttributeValue{":v": av}
}

// conflictOrMissing resolves a failed version check into the right sentinel.
func (s *Store) conflictOrMissing(ctx context.Context, pk string) error {
	var probe Keys
	ok, err := s.getItem(ctx, pk, meta, &probe)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotFound
	}
	return domain.ErrVersionConflict
}
