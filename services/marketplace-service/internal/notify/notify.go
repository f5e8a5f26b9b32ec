// Package notify creates in-app notifications for marketplace events.
package notify

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/allowork/allowork/services/marketplace-service/internal/model"
	"github.com/allowork/allowork/services/marketplace-service/internal/outbox"
	"github.com/allowork/allowork/services/marketplace-service/internal/storage"
	"github.com/google/uuid"
)

const (
	LinkRequests  = "requests"
	LinkDashboard = "dashboard"
)

type Service struct {
	store   storage.Store
	emitter *outbox.Emitter
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(store storage.Store, emitter *outbox.Emitter, logger *slog.Logger) *Service {
	return &Service{store: store, emitter: emitter, logger: logger, now: time.Now}
}

// MatchProviders returns the providers whose specialty is exactly category.
func MatchProviders(users []model.User, category string) []model.User {
	var out []model.User
	for _, u := range users {
		if u.Role == model.RoleProvider && u.Specialty == category {
			out = append(out, u)
		}
	}
	return out
}

// RequestPosted notifies every provider matching the request category and
// returns the notifications created.
func (s *Service) RequestPosted(ctx context.Context, req model.ServiceRequest) ([]model.Notification, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	text := fmt.Sprintf("🔔 Nouvelle demande en %s : \"%s\" à %s.", req.Category, req.Title, req.Location)

	var created []model.Notification
	for _, provider := range MatchProviders(users, req.Category) {
		n, err := s.create(ctx, provider, model.NotificationRequestMatch, text, LinkRequests)
		if err != nil {
			return created, err
		}
		created = append(created, n)
	}
	return created, nil
}

func (s *Service) BookingCreated(ctx context.Context, booking model.Booking, service model.Service, client model.User) (model.Notification, error) {
	provider, err := s.store.GetUser(ctx, booking.ProviderID)
	if err != nil {
		return model.Notification{}, fmt.Errorf("booking provider: %w", err)
	}
	text := fmt.Sprintf("📅 Nouvelle réservation de %s pour %s.", client.Name, service.Title)
	return s.create(ctx, provider, model.NotificationBookingUpdate, text, LinkDashboard)
}

func (s *Service) ProposalSubmitted(ctx context.Context, req model.ServiceRequest, provider model.User) (model.Notification, error) {
	owner, err := s.store.GetUser(ctx, req.UserID)
	if err != nil {
		return model.Notification{}, fmt.Errorf("request owner: %w", err)
	}
	text := fmt.Sprintf("💬 %s vous a fait une proposition pour \"%s\".", provider.Name, req.Title)
	return s.create(ctx, owner, model.NotificationProposal, text, LinkRequests)
}

// List returns the user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]model.Notification, error) {
	list, err := s.store.ListNotifications(ctx, userID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.Notification{}
	}
	slices.SortStableFunc(list, func(a, b model.Notification) int {
		return cmp.Compare(b.Date.UnixNano(), a.Date.UnixNano())
	})
	return list, nil
}

func (s *Service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return s.store.MarkNotificationsRead(ctx, userID)
}

func (s *Service) create(ctx context.Context, recipient model.User, typ model.NotificationType, text, link string) (model.Notification, error) {
	n := model.Notification{
		ID:      uuid.NewString(),
		UserID:  recipient.ID,
		Message: text,
		Date:    s.now().UTC(),
		Type:    typ,
		LinkTo:  link,
	}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		return model.Notification{}, fmt.Errorf("create notification: %w", err)
	}
	s.emitter.Emit(ctx, "notification", n.ID, outbox.TopicNotificationCreated, outbox.NotificationCreated{
		NotificationID: n.ID,
		UserID:         n.UserID,
		Type:           string(n.Type),
		Message:        n.Message,
		LinkTo:         n.LinkTo,
		RecipientName:  recipient.Name,
		RecipientEmail: recipient.Email,
		RecipientPhone: recipient.PhoneNumber,
		CreatedAt:      n.Date.Format(time.RFC3339),
	})
	s.logger.Debug("notification created", "user_id", n.UserID, "type", n.Type)
	return n, nil
}
