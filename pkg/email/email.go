// Package email provides the transactional email sender used for
// subscription lifecycle notifications.
package email

import (
	"context"
	"errors"
	"regexp"
)

var (
	ErrInvalidConfig = errors.New("invalid email configuration")
	ErrSendFailed    = errors.New("failed to send email")
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// SendParams describes a single transactional email.
type SendParams struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
	Tag      string // provider-side category for delivery analytics
}

// Sender delivers transactional email. Implementations: Postmark for
// production, DevSender for local development and tests.
type Sender interface {
	Send(ctx context.Context, params SendParams) error
}

// Config carries sender settings.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"EMAIL_SENDER_ADDRESS"`
	SupportEmail         string `env:"EMAIL_SUPPORT_ADDRESS"`
}
