package recommendation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/enrollment-engine/internal/domain"
)

// S3API is the subset of the S3 client the archive uses.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Archive writes daily recommendation snapshots to S3 so past
// suggestions can be audited after the cache expires.
type S3Archive struct {
	client S3API
	bucket string
	prefix string
}

// snapshot is the JSON structure stored in S3.
type snapshot struct {
	UserID          string                  `json:"user_id"`
	Day             string                  `json:"day"`
	Policy          Policy                  `json:"policy"`
	ArchivedAt      time.Time               `json:"archived_at"`
	Recommendations []domain.Recommendation `json:"recommendations"`
}

// NewS3Archive loads the default AWS config and creates an archive for bucket.
func NewS3Archive(ctx context.Context, bucket, region, prefix string) (*S3Archive, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config for recommendation archive: %w", err)
	}
	return NewS3ArchiveWithClient(s3.NewFromConfig(cfg), bucket, prefix), nil
}

// NewS3ArchiveWithClient creates an archive on an existing client.
func NewS3ArchiveWithClient(client S3API, bucket, prefix string) *S3Archive {
	if prefix == "" {
		prefix = "recommendations"
	}
	return &S3Archive{client: client, bucket: bucket, prefix: strings.TrimSuffix(prefix, "/")}
}

func (a *S3Archive) key(userID string, day time.Time, policy Policy) string {
	return fmt.Sprintf("%s/%s/%s/%s.json", a.prefix, userID, day.UTC().Format("2006-01-02"), policy)
}

// Save writes the snapshot, replacing any earlier one for the same day.
func (a *S3Archive) Save(ctx context.Context, userID string, day time.Time, policy Policy, recs []domain.Recommendation) error {
	key := a.key(userID, day, policy)
	body, err := json.Marshal(snapshot{
		UserID:          userID,
		Day:             day.UTC().Format("2006-01-02"),
		Policy:          policy,
		ArchivedAt:      time.Now().UTC(),
		Recommendations: recs,
	})
	if err != nil {
		return fmt.Errorf("marshaling recommendation snapshot: %w", err)
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("S3 PutObject %s/%s: %w", a.bucket, key, err)
	}

	log.Printf("[RecommendationArchive] saved %d recommendations to s3://%s/%s", len(recs), a.bucket, key)
	return nil
}

// Load reads a snapshot back. A missing object returns nil without error.
func (a *S3Archive) Load(ctx context.Context, userID string, day time.Time, policy Policy) ([]domain.Recommendation, error) {
	key := a.key(userID, day, policy)
	resp, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("S3 GetObject %s/%s: %w", a.bucket, key, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading S3 object body: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("unmarshaling recommendation snapshot: %w", err)
	}
	return snap.Recommendations, nil
}

func isNotFound(err error) bool {
	msg := err.Error()
	for _, keyword := range []string{"NoSuchKey", "NotFound", "404"} {
		if strings.Contains(msg, keyword) {
			return true
		}
	}
	return false
}
