package mail

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/enrollment-engine/internal/config"
)

func testMessage() *Message {
	return &Message{
		EnrollmentID: "enr-1",
		CampaignID:   "camp-1",
		ContactID:    "c-1",
		UserID:       "u-1",
		Step:         2,
		To:           "ada@example.com",
		ToName:       "Ada",
		FromName:     "Acme",
		FromEmail:    "hello@acme.test",
		Subject:      "Hi Ada",
		HTMLContent:  "<p>Hello</p>",
	}
}

// ===== SENDGRID =====

func TestSendGridSender_Send(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/mail/send", r.URL.Path)
		assert.Equal(t, "Bearer key-123", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("X-Message-Id", "sg-msg-1")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewSendGridSender("key-123", srv.URL)
	res, err := s.Send(context.Background(), testMessage())

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "sg-msg-1", res.MessageID)
	assert.Equal(t, "Hi Ada", got["subject"])

	p := got["personalizations"].([]interface{})[0].(map[string]interface{})
	args := p["custom_args"].(map[string]interface{})
	assert.Equal(t, "c-1", args["contact_id"])
	assert.Equal(t, "enr-1", args["enrollment_id"])
	assert.Equal(t, "2", args["step"])
}

func TestSendGridSender_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad from"}]}`))
	}))
	defer srv.Close()

	res, err := NewSendGridSender("key", srv.URL).Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error.Error(), "bad from")
}

func TestSendGridSender_NoKey(t *testing.T) {
	_, err := NewSendGridSender("", "").Send(context.Background(), testMessage())
	assert.Error(t, err)
}

// ===== SES =====

type fakeSES struct {
	in  *sesv2.SendEmailInput
	err error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

func TestSESSender_Send(t *testing.T) {
	client := &fakeSES{}
	res, err := NewSESSenderWithClient(client).Send(context.Background(), testMessage())

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "ses-1", res.MessageID)
	assert.Equal(t, "Acme <hello@acme.test>", *client.in.FromEmailAddress)
	assert.Equal(t, []string{"ada@example.com"}, client.in.Destination.ToAddresses)
	assert.Len(t, client.in.EmailTags, 5)
}

func TestSESSender_Failure(t *testing.T) {
	client := &fakeSES{err: errors.New("throttled")}
	res, err := NewSESSenderWithClient(client).Send(context.Background(), testMessage())

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.EqualError(t, res.Error, "throttled")
}

// ===== TIMEOUT =====

type slowDispatcher struct{ delay time.Duration }

func (s slowDispatcher) Name() string { return "slow" }

func (s slowDispatcher) Send(ctx context.Context, _ *Message) (*Result, error) {
	select {
	case <-time.After(s.delay):
		return &Result{Success: true}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestWithTimeout(t *testing.T) {
	d := WithTimeout(slowDispatcher{delay: time.Second}, 20*time.Millisecond)
	_, err := d.Send(context.Background(), testMessage())
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	d = WithTimeout(slowDispatcher{delay: time.Millisecond}, time.Second)
	res, err := d.Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.True(t, res.Success)
}

// ===== FACTORY =====

func TestFromConfig(t *testing.T) {
	d, err := FromConfig(context.Background(), config.MailConfig{Provider: "log"})
	require.NoError(t, err)
	assert.Equal(t, "log", d.Name())

	_, err = FromConfig(context.Background(), config.MailConfig{Provider: "sendgrid"})
	assert.Error(t, err)

	_, err = FromConfig(context.Background(), config.MailConfig{Provider: "pigeon"})
	assert.Error(t, err)
}

func TestLogSender_RecordsMessages(t *testing.T) {
	s := NewLogSender()
	_, err := s.Send(context.Background(), testMessage())
	require.NoError(t, err)
	require.Len(t, s.Sent(), 1)
	assert.Equal(t, "enr-1", s.Sent()[0].EnrollmentID)
}
