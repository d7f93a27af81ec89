package mail

import (
	"context"
	"log/slog"

	"github.com/aussiebroadwan/contacts/internal/auth/domain"
	"github.com/aussiebroadwan/contacts/pkg/slogx"
)

// LogSender writes emails to the log instead of delivering them. Useful in
// development, where the action link can be copied from the output.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(_ context.Context, msg domain.EmailMessage) error {
	s.Logger.Info("email (not delivered)",
		slog.String("kind", string(msg.Kind)),
		slogx.Email(msg.To),
		slog.String("subject", msg.Subject()),
		slog.String("link", msg.Link()),
	)
	return nil
}
