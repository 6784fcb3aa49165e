package notifxconsole

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tillgate/tillgate/pkg/notifx"
)

// ConsoleProvider logs emails instead of sending them. Intended for
// development and testing.
type ConsoleProvider struct{}

// NewConsoleProvider creates a new console email provider.
func NewConsoleProvider() *ConsoleProvider {
	return &ConsoleProvider{}
}

// SendEmail logs the email details instead of sending it.
func (p *ConsoleProvider) SendEmail(_ context.Context, msg notifx.EmailMessage) error {
	log.Info().
		Str("from", msg.From).
		Str("to", strings.Join(msg.To, ", ")).
		Str("subject", msg.Subject).
		Msg("notifx/console: email sent (dev mode)")

	if msg.TextBody != "" {
		log.Debug().Msg("notifx/console: text body:\n" + msg.TextBody)
	}
	if msg.HTMLBody != "" {
		log.Debug().Msg("notifx/console: html body:\n" + msg.HTMLBody)
	}

	return nil
}
