package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/allowork/allowork/services/notification-service/internal/storage"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentEmail struct{ to, subject, body string }

type fakeEmail struct {
	sent []sentEmail
	err  error
}

func (f *fakeEmail) Send(to, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentEmail{to, subject, body})
	return nil
}

func (f *fakeEmail) ProviderID() string { return "fake-email" }

type fakeSMS struct {
	sent []string
	err  error
}

func (f *fakeSMS) Send(_ context.Context, to, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to+"|"+body)
	return nil
}

func (f *fakeSMS) ProviderID() string { return "fake-sms" }

type failingRecorder struct{}

func (failingRecorder) Insert(context.Context, storage.Delivery) error { return errors.New("db down") }

func newTestService(cfg Config) (*Service, *fakeEmail, *fakeSMS, *storage.Memory) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	em, sm, rec := &fakeEmail{}, &fakeSMS{}, storage.NewMemory()
	return NewService(em, sm, rec, logger, cfg), em, sm, rec
}

func event(t *testing.T, n NotificationCreated) kafka.Message {
	t.Helper()
	raw, err := json.Marshal(n)
	require.NoError(t, err)
	return kafka.Message{Topic: "marketplace.notification.created.v1", Value: raw}
}

var bookingNotification = NotificationCreated{
	NotificationID: "n1",
	UserID:         "p1",
	Type:           "booking_update",
	Message:        "📅 Nouvelle réservation de Client Test pour Plomberie d'urgence.",
	LinkTo:         "dashboard",
	RecipientName:  "Jean Bricole",
	RecipientEmail: "jean@bricole.ga",
	RecipientPhone: "066 99 88 77",
}

func TestHandleSendsEmailAndSMS(t *testing.T) {
	svc, em, sm, rec := newTestService(Config{BaseURL: "https://allowork.ga/"})

	require.NoError(t, svc.Handle(context.Background(), event(t, bookingNotification)))

	require.Len(t, em.sent, 1)
	assert.Equal(t, "jean@bricole.ga", em.sent[0].to)
	assert.Equal(t, "Allowork : nouvelle réservation", em.sent[0].subject)
	assert.Contains(t, em.sent[0].body, "Bonjour Jean Bricole,")
	assert.Contains(t, em.sent[0].body, "Voir : https://allowork.ga/dashboard")

	require.Len(t, sm.sent, 1)
	assert.Equal(t, "066 99 88 77|Allowork : "+bookingNotification.Message, sm.sent[0])

	deliveries := rec.List()
	require.Len(t, deliveries, 2)
	assert.Equal(t, ChannelEmail, deliveries[0].Channel)
	assert.Equal(t, storage.StatusSent, deliveries[0].Status)
	assert.Equal(t, "fake-email", deliveries[0].ProviderID)
	assert.Equal(t, ChannelSMS, deliveries[1].Channel)
}

func TestHandleRecordsSendFailures(t *testing.T) {
	svc, em, _, rec := newTestService(Config{})
	em.err = errors.New("smtp refused")

	n := bookingNotification
	n.RecipientPhone = ""
	require.NoError(t, svc.Handle(context.Background(), event(t, n)))

	deliveries := rec.List()
	require.Len(t, deliveries, 1)
	assert.Equal(t, storage.StatusFailed, deliveries[0].Status)
	assert.Equal(t, "smtp refused", deliveries[0].Error)
	assert.Empty(t, deliveries[0].ProviderID)
}

func TestHandleFailSuffix(t *testing.T) {
	svc, em, _, rec := newTestService(Config{FailSuffix: "@fail.test"})
	n := bookingNotification
	n.RecipientEmail = "jean@fail.test"
	n.RecipientPhone = ""
	require.NoError(t, svc.Handle(context.Background(), event(t, n)))
	assert.Empty(t, em.sent)
	require.Len(t, rec.List(), 1)
	assert.Equal(t, storage.StatusFailed, rec.List()[0].Status)
}

func TestHandleSkipsMalformedPayloads(t *testing.T) {
	svc, em, sm, rec := newTestService(Config{})
	ctx := context.Background()

	require.NoError(t, svc.Handle(ctx, kafka.Message{Value: []byte("not json")}))
	require.NoError(t, svc.Handle(ctx, event(t, NotificationCreated{UserID: "p1", Message: "x"})))
	require.NoError(t, svc.Handle(ctx, event(t, NotificationCreated{NotificationID: "n2", UserID: "u3", Message: "x"})))

	assert.Empty(t, em.sent)
	assert.Empty(t, sm.sent)
	assert.Empty(t, rec.List())
}

func TestHandleReturnsRecorderErrors(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(&fakeEmail{}, &fakeSMS{}, failingRecorder{}, logger, Config{})
	err := svc.Handle(context.Background(), event(t, bookingNotification))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record email delivery")
}

func TestRenderEmailDefaults(t *testing.T) {
	svc, _, _, _ := newTestService(Config{})
	subject, body := svc.renderEmail(NotificationCreated{Type: "other", Message: "Salut", LinkTo: "requests"})
	assert.Equal(t, defaultSubject, subject)
	assert.Equal(t, "Bonjour,\n\nSalut\n\nL'équipe Allowork", body)
}
