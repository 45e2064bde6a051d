package email

import (
	"context"
	"fmt"

	"github.com/wastetrack/wastetrack/internal/config"
	"github.com/wastetrack/wastetrack/internal/logger"
)

// Sender is the interface that all email providers must implement.
type Sender interface {
	// Send sends an email to the specified recipient.
	Send(ctx context.Context, msg Message) error
}

// Message represents an email message to be sent.
type Message struct {
	To       string // recipient email address
	Subject  string // email subject
	HTMLBody string // HTML email body
	TextBody string // plain-text fallback body
}

// LogSender writes messages to the log instead of delivering them. It is the
// default provider for local runs.
type LogSender struct {
	log *logger.Logger
}

// NewLogSender creates a LogSender
func NewLogSender(log *logger.Logger) *LogSender {
	return &LogSender{log: log.WithComponent("email")}
}

// Send logs the message metadata
func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.log.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Int("text_len", len(msg.TextBody)).
		Msg("email not delivered (log provider)")
	return nil
}

// NewSender builds the configured provider
func NewSender(ctx context.Context, cfg config.EmailConfig, log *logger.Logger) (Sender, error) {
	switch cfg.Provider {
	case "", "log":
		return NewLogSender(log), nil
	case "gmail":
		g := cfg.Gmail
		if g.CredentialsJSON != "" {
			return NewGmailSender(ctx, GmailConfig{
				CredentialsJSON: g.CredentialsJSON,
				SenderAddress:   g.SenderAddress,
				SenderName:      g.SenderName,
			})
		}
		return NewGmailSenderWithToken(ctx, g.ClientID, g.ClientSecret, g.RefreshToken, g.SenderAddress, g.SenderName)
	default:
		return nil, fmt.Errorf("email: unknown provider %q", cfg.Provider)
	}
}
