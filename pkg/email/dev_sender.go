package email

import (
	"context"
	"log/slog"
	"sync"
)

// DevSender logs messages instead of delivering them and records them for
// assertions in tests.
type DevSender struct {
	log *slog.Logger

	mu   sync.Mutex
	sent []SendParams
}

func NewDevSender(log *slog.Logger) *DevSender {
	if log == nil {
		log = slog.Default()
	}
	return &DevSender{log: log}
}

func (s *DevSender) Send(ctx context.Context, params SendParams) error {
	s.mu.Lock()
	s.sent = append(s.sent, params)
	s.mu.Unlock()

	s.log.InfoContext(ctx, "dev email sender",
		"to", params.To, "subject", params.Subject, "tag", params.Tag)
	return nil
}

// Sent returns a copy of all messages passed to Send.
func (s *DevSender) Sent() []SendParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SendParams, len(s.sent))
	copy(out, s.sent)
	return out
}
