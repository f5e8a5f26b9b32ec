package storage

import (
	"context"
	"errors"

	"github.com/allowork/allowork/services/marketplace-service/internal/model"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// Store is the marketplace state. Implementations serialize mutations, and
// the closure-taking methods apply their closure atomically with the write.
type Store interface {
	CreateUser(ctx context.Context, u model.User) error
	GetUser(ctx context.Context, id string) (model.User, error)
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)

	CreateService(ctx context.Context, s model.Service) error
	GetService(ctx context.Context, id string) (model.Service, error)
	ListServices(ctx context.Context) ([]model.Service, error)

	CreateRequest(ctx context.Context, r model.ServiceRequest) error
	GetRequest(ctx context.Context, id string) (model.ServiceRequest, error)
	ListRequests(ctx context.Context) ([]model.ServiceRequest, error)
	UpdateRequest(ctx context.Context, id string, fn func(*model.ServiceRequest) error) (model.ServiceRequest, error)

	CreateBooking(ctx context.Context, b model.Booking) error
	GetBooking(ctx context.Context, id string) (model.Booking, error)
	ListBookings(ctx context.Context) ([]model.Booking, error)
	UpdateBooking(ctx context.Context, id string, fn func(*model.Booking) error) (model.Booking, error)

	CreateConversation(ctx context.Context, c model.Conversation) error
	GetConversation(ctx context.Context, id string) (model.Conversation, error)
	FindConversation(ctx context.Context, a, b string) (model.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]model.Conversation, error)
	// AppendMessage stores m and lets fn update the conversation it belongs to.
	AppendMessage(ctx context.Context, m model.Message, fn func(*model.Conversation) error) (model.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]model.Message, error)
	// MarkMessageRead flips one message to read. It reports whether the
	// message changed.
	MarkMessageRead(ctx context.Context, conversationID, messageID string) (bool, error)
	// MarkConversationRead flips every message addressed to readerID and
	// returns how many changed.
	MarkConversationRead(ctx context.Context, conversationID, readerID string) (int, error)

	CreateNotification(ctx context.Context, n model.Notification) error
	ListNotifications(ctx context.Context, userID string) ([]model.Notification, error)
	MarkNotificationsRead(ctx context.Context, userID string) (int, error)
}
