// Package email sends the report workbook over SMTP.
package email

import (
	"context"
	"log/slog"

	"github.com/wneessen/go-mail"

	"reportd/internal/shared"
)

// Message is an outbound mail with a single attachment.
type Message struct {
	From       string
	To         string
	Subject    string
	Body       string
	Attachment string // file path; empty sends without attachment
}

// Sender delivers messages through one SMTP endpoint using STARTTLS.
type Sender struct {
	host string
	port int
	log  *slog.Logger
}

// NewSender creates a Sender for the given SMTP endpoint.
func NewSender(host string, port int, log *slog.Logger) *Sender {
	return &Sender{host: host, port: port, log: log}
}

// Send authenticates as msg.From with the given password and delivers
// the message. Delivery is single-shot; transient SMTP failures
// surface to the caller as a failed run.
func (s *Sender) Send(ctx context.Context, msg Message, password string) error {
	m := mail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return shared.MarkKind(shared.Wrap(err, "from address"), shared.KindValidation)
	}
	if err := m.To(msg.To); err != nil {
		return shared.MarkKind(shared.Wrap(err, "to address"), shared.KindValidation)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	if msg.Attachment != "" {
		m.AttachFile(msg.Attachment)
	}

	client, err := mail.NewClient(s.host,
		mail.WithPort(s.port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(msg.From),
		mail.WithPassword(password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return shared.MarkKind(shared.Wrap(err, "smtp client"), shared.KindInternal)
	}

	s.log.Info("sending report email",
		slog.String("from", msg.From),
		slog.String("to", msg.To),
		slog.String("attachment", msg.Attachment))

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return shared.MarkKind(shared.Wrapf(err, "send via %s:%d", s.host, s.port), shared.KindDependencyFailure)
	}

	s.log.Info("report email sent", slog.String("to", msg.To))
	return nil
}
