package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/enrollment-engine/internal/pkg/httpretry"
	"github.com/ignite/enrollment-engine/internal/pkg/logger"
)

// SendGridSender sends emails via the SendGrid v3 Mail Send API.
type SendGridSender struct {
	apiKey  string
	baseURL string
	client  httpretry.HTTPDoer
}

// NewSendGridSender creates a SendGrid sender. An empty baseURL uses the
// public API.
func NewSendGridSender(apiKey, baseURL string) *SendGridSender {
	if baseURL == "" {
		baseURL = "https://api.sendgrid.com/v3"
	}
	return &SendGridSender{
		apiKey:  apiKey,
		baseURL: baseURL,
		client: httpretry.NewRetryClient(&http.Client{Timeout: 60 * time.Second}, httpretry.Options{
			MaxRetries: 2,
			BaseDelay:  500 * time.Millisecond,
			MaxDelay:   5 * time.Second,
			RetryOn:    httpretry.NotProcessedStatuses,
		}),
	}
}

// Name identifies the provider.
func (s *SendGridSender) Name() string { return "sendgrid" }

// Send delivers a single email through SendGrid.
func (s *SendGridSender) Send(ctx context.Context, msg *Message) (*Result, error) {
	if s.apiKey == "" {
		return nil, fmt.Errorf("SendGrid API key not configured")
	}

	to := map[string]string{"email": msg.To}
	if msg.ToName != "" {
		to["name"] = msg.ToName
	}
	personalization := map[string]interface{}{
		"to":          []map[string]string{to},
		"custom_args": customArgs(msg),
	}
	if len(msg.Headers) > 0 {
		personalization["headers"] = msg.Headers
	}

	payload := map[string]interface{}{
		"personalizations": []map[string]interface{}{personalization},
		"from":             map[string]string{"email": msg.FromEmail, "name": msg.FromName},
		"subject":          msg.Subject,
		"content":          []map[string]string{{"type": "text/html", "value": msg.HTMLContent}},
		"tracking_settings": map[string]interface{}{
			"click_tracking": map[string]bool{"enable": true},
			"open_tracking":  map[string]bool{"enable": true},
		},
	}
	if msg.ReplyTo != "" {
		payload["reply_to"] = map[string]string{"email": msg.ReplyTo}
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/mail/send", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 400 {
		return &Result{Success: false, Error: fmt.Errorf("SendGrid error %d: %s", resp.StatusCode, string(body)), Provider: "sendgrid"}, nil
	}

	messageID := resp.Header.Get("X-Message-Id")
	if messageID == "" {
		messageID = uuid.New().String()
	}

	log.Printf("[SendGrid] Sent to %s (id: %s)", logger.RedactEmail(msg.To), messageID)
	return &Result{Success: true, MessageID: messageID, Provider: "sendgrid", SentAt: time.Now()}, nil
}
