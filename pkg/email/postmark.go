package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrz1836/postmark"
)

type postmarkSender struct {
	client *postmark.Client
	config Config
}

// NewPostmarkSender creates a Postmark-backed Sender. All tokens and
// addresses are required so a misconfigured deployment fails at startup
// instead of dropping mail silently.
func NewPostmarkSender(cfg Config) (Sender, error) {
	if cfg.PostmarkServerToken == "" {
		return nil, fmt.Errorf("%w: PostmarkServerToken is required", ErrInvalidConfig)
	}
	if cfg.PostmarkAccountToken == "" {
		return nil, fmt.Errorf("%w: PostmarkAccountToken is required", ErrInvalidConfig)
	}
	if !emailRegex.MatchString(cfg.SenderEmail) {
		return nil, fmt.Errorf("%w: SenderEmail must be a valid email address", ErrInvalidConfig)
	}
	if cfg.SupportEmail != "" && !emailRegex.MatchString(cfg.SupportEmail) {
		return nil, fmt.Errorf("%w: SupportEmail must be a valid email address", ErrInvalidConfig)
	}

	return &postmarkSender{
		client: postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		config: cfg,
	}, nil
}

// MustNewPostmarkSender panics on invalid config, failing fast at startup.
func MustNewPostmarkSender(cfg Config) Sender {
	s, err := NewPostmarkSender(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *postmarkSender) Send(ctx context.Context, params SendParams) error {
	if !emailRegex.MatchString(params.To) {
		return fmt.Errorf("%w: invalid recipient %q", ErrSendFailed, params.To)
	}

	msg := postmark.Email{
		From:       s.config.SenderEmail,
		To:         params.To,
		Subject:    params.Subject,
		HTMLBody:   params.HTMLBody,
		TextBody:   params.TextBody,
		Tag:        params.Tag,
		ReplyTo:    s.config.SupportEmail,
		TrackOpens: true,
	}

	res, err := s.client.SendEmail(ctx, msg)
	if err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	if res.ErrorCode != 0 {
		return fmt.Errorf("%w: postmark error %d: %s", ErrSendFailed, res.ErrorCode, res.Message)
	}
	return nil
}
