package notifx

import (
	"context"
	"fmt"
	"net/url"

	"github.com/tillgate/tillgate/pkg/invite"
)

const (
	templateOnboarding = "invite-onboarding"
	templateReset      = "invite-reset"
)

const onboardingTemplate = `<p>Hello {{.Name}},</p>
<p>An account has been created for you. Choose your PIN within the next
{{.TTLHours}} hours to activate it:</p>
<p><a href="{{.Link}}">{{.Link}}</a></p>
<p>If you were not expecting this email you can ignore it.</p>`

const resetTemplate = `<p>Hello{{if .Name}} {{.Name}}{{end}},</p>
<p>A PIN reset was requested for your account. The link below is valid for
{{.TTLHours}} hour:</p>
<p><a href="{{.Link}}">{{.Link}}</a></p>
<p>If you did not request this, no action is needed.</p>`

// InviteMailer turns invite tokens into credential-setup emails. It is the
// production implementation of the provisioner's Notifier port.
type InviteMailer struct {
	client  *Client
	from    string
	baseURL string
}

// NewInviteMailer creates an InviteMailer sending through provider. baseURL is
// the public origin the setup link points at.
func NewInviteMailer(provider EmailSender, from, baseURL string) (*InviteMailer, error) {
	templates, err := NewTemplateRegistry(map[string]string{
		templateOnboarding: onboardingTemplate,
		templateReset:      resetTemplate,
	})
	if err != nil {
		return nil, err
	}

	return &InviteMailer{client: NewClient(provider, templates), from: from, baseURL: baseURL}, nil
}

// SendInvite delivers the credential-setup link for the raw token.
func (m *InviteMailer) SendInvite(ctx context.Context, email, nameHint, rawToken string, purpose invite.Purpose) error {
	templateName := templateOnboarding
	subject := "Activate your account"
	if purpose == invite.PurposeReset {
		templateName = templateReset
		subject = "Reset your PIN"
	}

	data := struct {
		Name     string
		Link     string
		TTLHours int
	}{
		Name:     nameHint,
		Link:     m.setupLink(rawToken),
		TTLHours: int(purpose.TTL().Hours()),
	}

	return m.client.SendTemplatedEmail(ctx, templateName, data, EmailMessage{
		From:    m.from,
		To:      []string{email},
		Subject: subject,
	})
}

func (m *InviteMailer) setupLink(rawToken string) string {
	return fmt.Sprintf("%s/set-credential?token=%s", m.baseURL, url.QueryEscape(rawToken))
}
