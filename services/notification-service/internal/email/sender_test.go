package email

import (
	"strings"
	"testing"
)

func TestBuildMessage(t *testing.T) {
	msg := buildMessage("no-reply@allowork.ga", "jean@bricole.ga", "Nouvelle réservation", "Bonjour Jean")
	for _, want := range []string{
		"From: no-reply@allowork.ga\r\n",
		"To: jean@bricole.ga\r\n",
		"Subject: =?utf-8?q?Nouvelle_r=C3=A9servation?=\r\n",
		"Content-Type: text/plain; charset=utf-8\r\n\r\nBonjour Jean\r\n",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestNewSMTPSenderDefaults(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: " mailpit ", Port: "1025"})
	if s.addr != "mailpit:1025" || s.from != DefaultFrom || s.auth != nil {
		t.Fatalf("unexpected sender %+v", s)
	}
	s = NewSMTPSender(SMTPConfig{Host: "smtp.allowork.ga", Port: "587", Username: "bot", Password: "pw"})
	if s.auth == nil {
		t.Fatal("expected plain auth when username is set")
	}
}
