package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/ignite/enrollment-engine/internal/domain"
)

func (s *Store) GetEnrollment(ctx context.Context, id string) (*domain.Enrollment, error) {
	var it enrollmentItem
	ok, err := s.getItem(ctx, "ENROLLMENT#"+id, meta, &it)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &it.Enrollment, nil
}

// CreateEnrollment writes e at version 1. Open enrollments also reserve the
// contact/campaign pair item in the same transaction. A reservation left
// behind by an enrollment that has since ended is taken over.
func (s *Store) CreateEnrollment(ctx context.Context, e *domain.Enrollment) error {
	cp := e.Clone()
	cp.Version = 1
	if !cp.Status.IsOpen() {
		if err := s.putItem(ctx, newEnrollmentItem(cp), "attribute_not_exists(PK)", nil); err != nil {
			if isConditionFailed(err) {
				return domain.ErrAlreadyExists
			}
			return fmt.Errorf("putting enrollment to DynamoDB: %w", err)
		}
		e.Version = 1
		return nil
	}

	err := s.reservePair(ctx, cp, "")
	var stale string
	if errors.Is(err, errPairTaken) {
		stale, err = s.stalePairOwner(ctx, cp)
		if err == nil {
			err = s.reservePair(ctx, cp, stale)
		}
	}
	if errors.Is(err, errPairTaken) {
		return domain.ErrAlreadyExists
	}
	if err != nil {
		return err
	}
	e.Version = 1
	return nil
}

var errPairTaken = errors.New("pair reserved")

// reservePair puts the enrollment and its pair item atomically. When owner
// is set the pair item must still belong to that enrollment.
func (s *Store) reservePair(ctx context.Context, e *domain.Enrollment, owner string) error {
	eav, err := attributevalue.MarshalMap(newEnrollmentItem(e))
	if err != nil {
		return fmt.Errorf("marshaling enrollment: %w", err)
	}
	pair := pairItem{Keys: Keys{PK: pairPK(e.ContactID, e.CampaignID), SK: "OPEN"}, EnrollmentID: e.ID}
	pav, err := attributevalue.MarshalMap(pair)
	if err != nil {
		return fmt.Errorf("marshaling pair: %w", err)
	}

	pairPut := &types.Put{TableName: aws.String(s.table), Item: pav,
		ConditionExpression: aws.String("attribute_not_exists(PK)")}
	if owner != "" {
		pairPut.ConditionExpression = aws.String("EnrollmentID = :owner")
		pairPut.ExpressionAttributeValues = map[string]types.AttributeValue{":owner": str(owner)}
	}

	_, err = s.db.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: pairPut},
			{Put: &types.Put{TableName: aws.String(s.table), Item: eav,
				ConditionExpression: aws.String("attribute_not_exists(PK)")}},
		},
	})
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		for _, r := range tce.CancellationReasons {
			if aws.ToString(r.Code) == "ConditionalCheckFailed" {
				return errPairTaken
			}
		}
	}
	if err != nil {
		return fmt.Errorf("reserving enrollment pair: %w", err)
	}
	return nil
}

// stalePairOwner returns the id of the enrollment holding e's pair when that
// enrollment is gone or terminal. A live owner yields errPairTaken.
func (s *Store) stalePairOwner(ctx context.Context, e *domain.Enrollment) (string, error) {
	var pair pairItem
	ok, err := s.getItem(ctx, pairPK(e.ContactID, e.CampaignID), "OPEN", &pair)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errPairTaken
	}
	owner, err := s.GetEnrollment(ctx, pair.EnrollmentID)
	if errors.Is(err, domain.ErrNotFound) {
		return pair.EnrollmentID, nil
	}
	if err != nil {
		return "", err
	}
	if owner.Status.IsOpen() {
		return "", errPairTaken
	}
	return owner.ID, nil
}

// UpdateEnrollment writes e only if the stored version still matches
// e.Version. Terminal enrollments release their pair reservation.
func (s *Store) UpdateEnrollment(ctx context.Context, e *domain.Enrollment) error {
	cp := e.Clone()
	cp.Version = e.Version + 1
	err := s.putItem(ctx, newEnrollmentItem(cp), "Version = :v", versionValue(e.Version))
	if err != nil {
		if isConditionFailed(err) {
			return s.conflictOrMissing(ctx, "ENROLLMENT#"+e.ID)
		}
		return fmt.Errorf("putting enrollment to DynamoDB: %w", err)
	}
	e.Version = cp.Version

	if !e.Status.IsOpen() {
		_, err := s.db.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName:                 aws.String(s.table),
			Key:                       key(pairPK(e.ContactID, e.CampaignID), "OPEN"),
			ConditionExpression:       aws.String("EnrollmentID = :id"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":id": str(e.ID)},
		})
		if err != nil && !isConditionFailed(err) {
			return fmt.Errorf("releasing enrollment pair: %w", err)
		}
	}
	return nil
}

// ListOpenEnrollments returns the user's pending and active enrollments.
func (s *Store) ListOpenEnrollments(ctx context.Context, userID string) ([]domain.Enrollment, error) {
	return s.userEnrollments(ctx, userID, func(e *domain.Enrollment) bool { return e.Status.IsOpen() })
}

func (s *Store) ListOpenEnrollmentsForContact(ctx context.Context, userID, contactID string) ([]domain.Enrollment, error) {
	return s.userEnrollments(ctx, userID, func(e *domain.Enrollment) bool {
		return e.ContactID == contactID && e.Status.IsOpen()
	})
}

// ListActiveEnrollmentIDs reads the sparse open-enrollment partition of GSI2.
func (s *Store) ListActiveEnrollmentIDs(ctx context.Context) ([]string, error) {
	items, err := query[Keys](ctx, s, gsi2, "GSI2PK = :pk", map[string]types.AttributeValue{
		":pk": str("OPEN#ENROLLMENT"),
	})
	if err != nil {
		return nil, fmt.Errorf("list active enrollments: %w", err)
	}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.GSI2SK)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) userEnrollments(ctx context.Context, userID string, keep func(*domain.Enrollment) bool) ([]domain.Enrollment, error) {
	items, err := query[enrollmentItem](ctx, s, gsi1, "GSI1PK = :pk", map[string]types.AttributeValue{
		":pk": str("USER#" + userID + "#ENROLLMENT"),
	})
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	var out []domain.Enrollment
	for i := range items {
		if keep(&items[i].Enrollment) {
			out = append(out, items[i].Enrollment)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
