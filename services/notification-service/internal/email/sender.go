package email

import (
	"fmt"
	"mime"
	"net/smtp"
	"strings"
)

const DefaultFrom = "no-reply@allowork.ga"

type Sender interface {
	Send(to string, subject string, body string) error
	ProviderID() string
}

// SMTPSender sends email via SMTP, authenticating with PLAIN auth when a
// username is configured.
type SMTPSender struct {
	addr string
	from string
	auth smtp.Auth
}

type SMTPConfig struct {
	Host     string
	Port     string
	From     string
	Username string
	Password string
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	host := strings.TrimSpace(cfg.Host)
	port := strings.TrimSpace(cfg.Port)
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		from = DefaultFrom
	}
	s := &SMTPSender{
		addr: fmt.Sprintf("%s:%s", host, port),
		from: from,
	}
	if cfg.Username != "" {
		s.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, host)
	}
	return s
}

func (s *SMTPSender) ProviderID() string {
	return "smtp"
}

func (s *SMTPSender) Send(to string, subject string, body string) error {
	msg := buildMessage(s.from, to, subject, body)
	return smtp.SendMail(s.addr, s.auth, s.from, []string{to}, []byte(msg))
}

func buildMessage(from, to, subject, body string) string {
	// Subjects carry accents, so they are Q-encoded.
	return fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		from,
		to,
		mime.QEncoding.Encode("utf-8", subject),
		body,
	)
}

type NoopSender struct{}

func NewNoopSender() *NoopSender {
	return &NoopSender{}
}

func (s *NoopSender) ProviderID() string {
	return "email-noop"
}

func (s *NoopSender) Send(string, string, string) error {
	return nil
}
