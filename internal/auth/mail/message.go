// Package mail holds the transports that deliver transactional emails.
package mail

import (
	"fmt"
	"strings"

	"github.com/aussiebroadwan/contacts/internal/auth/domain"
)

// Body returns the plain text body for msg.
func Body(msg domain.EmailMessage) string {
	name := msg.Username
	if name == "" {
		name = "there"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\r\n\r\n", name)
	switch msg.Kind {
	case domain.EmailResetPassword:
		b.WriteString("Someone asked to reset the password for this account. If it was you, open the link below:\r\n\r\n")
	default:
		b.WriteString("Thanks for signing up. Please confirm your email address by opening the link below:\r\n\r\n")
	}
	b.WriteString(msg.Link())
	b.WriteString("\r\n\r\nIf you did not request this email you can ignore it.\r\n")
	return b.String()
}

// compose renders msg as an RFC 5322 message.
func compose(from string, msg domain.EmailMessage) []byte {
	return []byte(
		"From: " + from + "\r\n" +
			"To: " + msg.To + "\r\n" +
			"Subject: " + msg.Subject() + "\r\n" +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/plain; charset=utf-8\r\n" +
			"\r\n" + Body(msg))
}
