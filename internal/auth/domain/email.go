package domain

import "strings"

// EmailKind selects the template a mail transport renders.
type EmailKind string

const (
	EmailConfirm       EmailKind = "confirm_email"
	EmailResetPassword EmailKind = "reset_password"
)

// EmailMessage is a transactional email waiting to be delivered. Rendering
// is left to the transport; the message only carries the template inputs.
type EmailMessage struct {
	Kind     EmailKind `json:"kind"`
	To       string    `json:"to"`
	Username string    `json:"username"`
	Token    string    `json:"token"`
	BaseURL  string    `json:"base_url"`
}

// Subject returns the subject line for the message kind.
func (m EmailMessage) Subject() string {
	switch m.Kind {
	case EmailResetPassword:
		return "Password reset instructions"
	default:
		return "Confirm your email"
	}
}

// Link returns the action link embedded in the email body.
func (m EmailMessage) Link() string {
	base := strings.TrimSuffix(m.BaseURL, "/")
	switch m.Kind {
	case EmailResetPassword:
		return base + "/api/auth/reset-password?token=" + m.Token
	default:
		return base + "/api/auth/confirmed_email/" + m.Token
	}
}
