package mail

import (
	"context"
	"fmt"

	"github.com/ignite/enrollment-engine/internal/config"
)

// FromConfig builds the configured dispatcher. Callers bound sends with
// WithTimeout.
func FromConfig(ctx context.Context, cfg config.MailConfig) (Dispatcher, error) {
	var d Dispatcher
	switch cfg.Provider {
	case "sendgrid":
		if cfg.SendGridAPIKey == "" {
			return nil, fmt.Errorf("mail provider sendgrid requires SENDGRID_API_KEY")
		}
		d = NewSendGridSender(cfg.SendGridAPIKey, cfg.SendGridBaseURL)
	case "ses":
		s, err := NewSESSender(ctx, cfg.SESAccessKey, cfg.SESSecretKey, cfg.SESRegion)
		if err != nil {
			return nil, err
		}
		d = s
	case "log", "":
		d = NewLogSender()
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.Provider)
	}
	return d, nil
}
