// Package notify is the notification-sender collaborator, used by the
// e-reader push feature. Failures are surfaced to the caller once and
// never retried.
package notify

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"
)

// Sender delivers a message with optional file attachments.
type Sender interface {
	Send(ctx context.Context, recipient, subject string, attachments ...string) error
}

// SMTPSender implements Sender over plain SMTP.
type SMTPSender struct {
	addr   string // host:port
	sender string
	auth   smtp.Auth
}

// NewSMTPSender creates a sender authenticating as user against addr.
func NewSMTPSender(addr, sender, user, pass string) *SMTPSender {
	host := addr
	if i := strings.IndexByte(addr, ':'); i >= 0 {
		host = addr[:i]
	}
	return &SMTPSender{
		addr:   addr,
		sender: sender,
		auth:   smtp.PlainAuth("", user, pass, host),
	}
}

// Send builds a MIME message with the attachments inlined as base64 and
// submits it in one SMTP transaction.
func (s *SMTPSender) Send(ctx context.Context, recipient, subject string, attachments ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := s.buildMessage(recipient, subject, attachments)
	if err != nil {
		return err
	}
	if err := smtp.SendMail(s.addr, s.auth, s.sender, []string{recipient}, msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", recipient, err)
	}
	return nil
}

func (s *SMTPSender) buildMessage(recipient, subject string, attachments []string) ([]byte, error) {
	const boundary = "filelist-attachment-boundary"

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.sender)
	fmt.Fprintf(&b, "To: %s\r\n", recipient)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", boundary)

	for _, path := range attachments {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read attachment %s: %w", path, err)
		}
		name := filepath.Base(path)
		fmt.Fprintf(&b, "--%s\r\n", boundary)
		fmt.Fprintf(&b, "Content-Type: application/octet-stream; name=%q\r\n", name)
		b.WriteString("Content-Transfer-Encoding: base64\r\n")
		fmt.Fprintf(&b, "Content-Disposition: attachment; filename=%q\r\n\r\n", name)

		encoded := base64.StdEncoding.EncodeToString(data)
		for len(encoded) > 76 {
			b.WriteString(encoded[:76])
			b.WriteString("\r\n")
			encoded = encoded[76:]
		}
		b.WriteString(encoded)
		b.WriteString("\r\n")
	}
	fmt.Fprintf(&b, "--%s--\r\n", boundary)

	return []byte(b.String()), nil
}
