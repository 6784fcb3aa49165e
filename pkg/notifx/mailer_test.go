package notifx_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tillgate/tillgate/pkg/invite"
	"github.com/tillgate/tillgate/pkg/notifx"
)

type captureSender struct {
	last notifx.EmailMessage
}

func (c *captureSender) SendEmail(_ context.Context, msg notifx.EmailMessage) error {
	c.last = msg
	return nil
}

func TestInviteMailer_Onboarding(t *testing.T) {
	sender := &captureSender{}
	mailer, err := notifx.NewInviteMailer(sender, "noreply@tillgate.example", "https://pay.tillgate.example")
	require.NoError(t, err)

	err = mailer.SendInvite(context.Background(), "mgr@example.com", "Branch Manager", "tok-abc/xyz", invite.PurposeOnboarding)
	require.NoError(t, err)

	assert.Equal(t, []string{"mgr@example.com"}, sender.last.To)
	assert.Equal(t, "Activate your account", sender.last.Subject)
	assert.Contains(t, sender.last.HTMLBody, "Branch Manager")
	assert.Contains(t, sender.last.HTMLBody, "https://pay.tillgate.example/set-credential?token=tok-abc%2Fxyz")
	assert.Contains(t, sender.last.HTMLBody, "24 hours")
}

func TestTemplateRegistry(t *testing.T) {
	reg, err := notifx.NewTemplateRegistry(map[string]string{"greet": "Hello {{.Name}}"})
	require.NoError(t, err)

	out, err := reg.Render("greet", struct{ Name string }{Name: "Till"})
	require.NoError(t, err)
	assert.Equal(t, "Hello Till", out)

	_, err = reg.Render("missing", nil)
	assert.Error(t, err)

	_, err = notifx.NewTemplateRegistry(map[string]string{"bad": "{{.Unclosed"})
	assert.Error(t, err)
}

func TestInviteMailer_Reset(t *testing.T) {
	sender := &captureSender{}
	mailer, err := notifx.NewInviteMailer(sender, "noreply@tillgate.example", "https://pay.tillgate.example")
	require.NoError(t, err)

	err = mailer.SendInvite(context.Background(), "mgr@example.com", "", "tok-reset", invite.PurposeReset)
	require.NoError(t, err)

	assert.Equal(t, "Reset your PIN", sender.last.Subject)
	assert.Contains(t, sender.last.HTMLBody, "token=tok-reset")
	assert.Contains(t, sender.last.HTMLBody, "1 hour")
}