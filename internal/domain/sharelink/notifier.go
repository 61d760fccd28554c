package sharelink

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"
)

// Notifier delivers share notifications to recipients.
type Notifier interface {
	NotifyLinkCreated(ctx context.Context, link *Link, shareURL, message string) error
}

// NopNotifier discards notifications. Used when SMTP is not configured.
type NopNotifier struct{}

func (NopNotifier) NotifyLinkCreated(ctx context.Context, link *Link, shareURL, message string) error {
	return nil
}

// SMTPConfig holds mail relay settings.
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
}

// SMTPNotifier sends share emails through a configured relay.
type SMTPNotifier struct {
	cfg SMTPConfig
}

func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg}
}

func (n *SMTPNotifier) NotifyLinkCreated(ctx context.Context, link *Link, shareURL, message string) error {
	if link.RecipientEmail == "" {
		return nil
	}

	var body strings.Builder
	fmt.Fprintf(&body, "From: %s\r\n", n.cfg.FromEmail)
	fmt.Fprintf(&body, "To: %s\r\n", link.RecipientEmail)
	fmt.Fprintf(&body, "Subject: Medical records shared with you\r\n")
	fmt.Fprintf(&body, "\r\n")
	if link.RecipientName != "" {
		fmt.Fprintf(&body, "Dear %s,\r\n\r\n", link.RecipientName)
	}
	fmt.Fprintf(&body, "Medical records have been securely shared with you.\r\n\r\n")
	if message != "" {
		fmt.Fprintf(&body, "%s\r\n\r\n", message)
	}
	fmt.Fprintf(&body, "Access link: %s\r\n", shareURL)
	fmt.Fprintf(&body, "This link expires at %s.\r\n", link.ExpiresAt.Format(time.RFC1123))
	if link.RequiresPassword {
		fmt.Fprintf(&body, "A password is required; it will be provided to you separately.\r\n")
	}

	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}
	return smtp.SendMail(addr, auth, n.cfg.FromEmail, []string{link.RecipientEmail}, []byte(body.String()))
}
