// Package delivery sends marketplace notifications by e-mail and SMS.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/allowork/allowork/services/notification-service/internal/email"
	"github.com/allowork/allowork/services/notification-service/internal/sms"
	"github.com/allowork/allowork/services/notification-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// NotificationCreated is the marketplace.notification.created.v1 payload.
type NotificationCreated struct {
	NotificationID string `json:"notification_id"`
	UserID         string `json:"user_id"`
	Type           string `json:"type"`
	Message        string `json:"message"`
	LinkTo         string `json:"link_to,omitempty"`
	RecipientName  string `json:"recipient_name"`
	RecipientEmail string `json:"recipient_email,omitempty"`
	RecipientPhone string `json:"recipient_phone,omitempty"`
	CreatedAt      string `json:"created_at"`
}

var subjects = map[string]string{
	"request_match":  "Allowork : nouvelle demande dans votre spécialité",
	"booking_update": "Allowork : nouvelle réservation",
	"proposal":       "Allowork : nouvelle proposition",
	"new_message":    "Allowork : nouveau message",
}

const defaultSubject = "Allowork : nouvelle notification"

type Config struct {
	// BaseURL prefixes link targets in e-mails.
	BaseURL string
	// FailSuffix makes deliveries to recipients ending with it fail without
	// sending. Empty disables it.
	FailSuffix string
}

type Service struct {
	email    email.Sender
	sms      sms.Sender
	recorder storage.Recorder
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
}

func NewService(emailSender email.Sender, smsSender sms.Sender, recorder storage.Recorder, logger *slog.Logger, cfg Config) *Service {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	return &Service{email: emailSender, sms: smsSender, recorder: recorder, logger: logger, cfg: cfg, now: time.Now}
}

// Handle delivers one notification event. Malformed payloads are logged and
// skipped; only failures to record an outcome are returned.
func (s *Service) Handle(ctx context.Context, msg kafka.Message) error {
	var n NotificationCreated
	if err := json.Unmarshal(msg.Value, &n); err != nil {
		s.logger.Error("invalid notification payload", "err", err, "topic", msg.Topic)
		return nil
	}
	if n.NotificationID == "" || n.UserID == "" || strings.TrimSpace(n.Message) == "" {
		s.logger.Error("missing notification fields", "topic", msg.Topic, "notification_id", n.NotificationID)
		return nil
	}
	return s.Deliver(ctx, n)
}

func (s *Service) Deliver(ctx context.Context, n NotificationCreated) error {
	if strings.TrimSpace(n.RecipientEmail) == "" && strings.TrimSpace(n.RecipientPhone) == "" {
		s.logger.Info("notification has no contact; nothing to deliver", "notification_id", n.NotificationID)
		return nil
	}
	sent := 0
	if addr := strings.TrimSpace(n.RecipientEmail); addr != "" {
		subject, body := s.renderEmail(n)
		err := s.attempt(addr, func() error { return s.email.Send(addr, subject, body) })
		if err := s.record(ctx, n, ChannelEmail, addr, s.email.ProviderID(), err); err != nil {
			return err
		}
		if err == nil {
			sent++
		}
	}
	if phone := strings.TrimSpace(n.RecipientPhone); phone != "" {
		body := "Allowork : " + n.Message
		err := s.attempt(phone, func() error { return s.sms.Send(ctx, phone, body) })
		if err := s.record(ctx, n, ChannelSMS, phone, s.sms.ProviderID(), err); err != nil {
			return err
		}
		if err == nil {
			sent++
		}
	}
	s.logger.Info("notification processed", "notification_id", n.NotificationID, "type", n.Type, "sent", sent)
	return nil
}

func (s *Service) attempt(recipient string, send func() error) error {
	if s.cfg.FailSuffix != "" && strings.HasSuffix(recipient, s.cfg.FailSuffix) {
		return fmt.Errorf("simulated failure")
	}
	return send()
}

func (s *Service) record(ctx context.Context, n NotificationCreated, channel, recipient, providerID string, sendErr error) error {
	d := storage.Delivery{
		NotificationID: n.NotificationID,
		UserID:         n.UserID,
		Channel:        channel,
		Recipient:      recipient,
		ProviderID:     providerID,
		Status:         storage.StatusSent,
		AttemptedAt:    s.now().UTC(),
	}
	if sendErr != nil {
		d.Status = storage.StatusFailed
		d.Error = sendErr.Error()
		d.ProviderID = ""
		s.logger.Error("notification send failed", "channel", channel, "notification_id", n.NotificationID, "err", sendErr)
	}
	if err := s.recorder.Insert(ctx, d); err != nil {
		return fmt.Errorf("record %s delivery: %w", channel, err)
	}
	return nil
}

func (s *Service) renderEmail(n NotificationCreated) (string, string) {
	subject, ok := subjects[n.Type]
	if !ok {
		subject = defaultSubject
	}
	var b strings.Builder
	name := strings.TrimSpace(n.RecipientName)
	if name == "" {
		b.WriteString("Bonjour,\n\n")
	} else {
		fmt.Fprintf(&b, "Bonjour %s,\n\n", name)
	}
	b.WriteString(n.Message)
	b.WriteString("\n")
	if n.LinkTo != "" && s.cfg.BaseURL != "" {
		fmt.Fprintf(&b, "\nVoir : %s/%s\n", s.cfg.BaseURL, strings.TrimLeft(n.LinkTo, "/"))
	}
	b.WriteString("\nL'équipe Allowork")
	return subject, b.String()
}
