package storage

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/allowork/allowork/services/marketplace-service/internal/model"
)

// Memory is the default store. Slices keep insertion order so listings are
// stable across calls.
type Memory struct {
	mu            sync.RWMutex
	users         []model.User
	services      []model.Service
	requests      []model.ServiceRequest
	bookings      []model.Booking
	conversations []model.Conversation
	messages      []model.Message
	notifications []model.Notification
}

func NewMemory() *Memory {
	return &Memory{}
}

var _ Store = (*Memory)(nil)

func (m *Memory) CreateUser(_ context.Context, u model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.ID == u.ID || strings.EqualFold(existing.Email, u.Email) {
			return fmt.Errorf("user %s: %w", u.Email, ErrConflict)
		}
	}
	m.users = append(m.users, u)
	return nil
}

func (m *Memory) GetUser(_ context.Context, id string) (model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return model.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return model.User{}, fmt.Errorf("user %s: %w", email, ErrNotFound)
}

func (m *Memory) ListUsers(context.Context) ([]model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.users), nil
}

func (m *Memory) CreateService(_ context.Context, s model.Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if slices.ContainsFunc(m.services, func(e model.Service) bool { return e.ID == s.ID }) {
		return fmt.Errorf("service %s: %w", s.ID, ErrConflict)
	}
	m.services = append(m.services, cloneService(s))
	return nil
}

func (m *Memory) GetService(_ context.Context, id string) (model.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.services {
		if s.ID == id {
			return cloneService(s), nil
		}
	}
	return model.Service{}, fmt.Errorf("service %s: %w", id, ErrNotFound)
}

func (m *Memory) ListServices(context.Context) ([]model.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Service, 0, len(m.services))
	for _, s := range m.services {
		out = append(out, cloneService(s))
	}
	return out, nil
}

func (m *Memory) CreateRequest(_ context.Context, r model.ServiceRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if slices.ContainsFunc(m.requests, func(e model.ServiceRequest) bool { return e.ID == r.ID }) {
		return fmt.Errorf("request %s: %w", r.ID, ErrConflict)
	}
	m.requests = append(m.requests, r)
	return nil
}

func (m *Memory) GetRequest(_ context.Context, id string) (model.ServiceRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.requests {
		if r.ID == id {
			return r, nil
		}
	}
	return model.ServiceRequest{}, fmt.Errorf("request %s: %w", id, ErrNotFound)
}

func (m *Memory) ListRequests(context.Context) ([]model.ServiceRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.requests), nil
}

func (m *Memory) UpdateRequest(_ context.Context, id string, fn func(*model.ServiceRequest) error) (model.ServiceRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.requests {
		if m.requests[i].ID != id {
			continue
		}
		next := m.requests[i]
		if err := fn(&next); err != nil {
			return model.ServiceRequest{}, err
		}
		m.requests[i] = next
		return next, nil
	}
	return model.ServiceRequest{}, fmt.Errorf("request %s: %w", id, ErrNotFound)
}

func (m *Memory) CreateBooking(_ context.Context, b model.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if slices.ContainsFunc(m.bookings, func(e model.Booking) bool { return e.ID == b.ID }) {
		return fmt.Errorf("booking %s: %w", b.ID, ErrConflict)
	}
	m.bookings = append(m.bookings, b)
	return nil
}

func (m *Memory) GetBooking(_ context.Context, id string) (model.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.bookings {
		if b.ID == id {
			return b, nil
		}
	}
	return model.Booking{}, fmt.Errorf("booking %s: %w", id, ErrNotFound)
}

func (m *Memory) ListBookings(context.Context) ([]model.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.bookings), nil
}

func (m *Memory) UpdateBooking(_ context.Context, id string, fn func(*model.Booking) error) (model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.bookings {
		if m.bookings[i].ID != id {
			continue
		}
		next := m.bookings[i]
		if err := fn(&next); err != nil {
			return model.Booking{}, err
		}
		m.bookings[i] = next
		return next, nil
	}
	return model.Booking{}, fmt.Errorf("booking %s: %w", id, ErrNotFound)
}

func (m *Memory) CreateConversation(_ context.Context, c model.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.conversations {
		if e.ID == c.ID || samePair(e, c.Participants[0], c.Participants[1]) {
			return fmt.Errorf("conversation %s: %w", c.ID, ErrConflict)
		}
	}
	c.TypingUserID = ""
	m.conversations = append(m.conversations, c)
	return nil
}

func (m *Memory) GetConversation(_ context.Context, id string) (model.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i := m.conversationIndex(id); i >= 0 {
		return m.conversations[i], nil
	}
	return model.Conversation{}, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
}

func (m *Memory) FindConversation(_ context.Context, a, b string) (model.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.conversations {
		if samePair(c, a, b) {
			return c, nil
		}
	}
	return model.Conversation{}, fmt.Errorf("conversation %s/%s: %w", a, b, ErrNotFound)
}

func (m *Memory) ListConversations(_ context.Context, userID string) ([]model.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Conversation
	for _, c := range m.conversations {
		if c.HasParticipant(userID) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Memory) AppendMessage(_ context.Context, msg model.Message, fn func(*model.Conversation) error) (model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.conversationIndex(msg.ConversationID)
	if i < 0 {
		return model.Conversation{}, fmt.Errorf("conversation %s: %w", msg.ConversationID, ErrNotFound)
	}
	next := m.conversations[i]
	if err := fn(&next); err != nil {
		return model.Conversation{}, err
	}
	m.messages = append(m.messages, msg)
	m.conversations[i] = next
	return next, nil
}

func (m *Memory) ListMessages(_ context.Context, conversationID string) ([]model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Message
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID {
			out = append(out, msg)
		}
	}
	slices.SortStableFunc(out, func(a, b model.Message) int { return a.Timestamp.Compare(b.Timestamp) })
	return out, nil
}

func (m *Memory) MarkMessageRead(_ context.Context, conversationID, messageID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ci := m.conversationIndex(conversationID)
	if ci < 0 {
		return false, fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}
	for i := range m.messages {
		msg := &m.messages[i]
		if msg.ID != messageID || msg.ConversationID != conversationID {
			continue
		}
		changed := !msg.Read
		msg.Read = true
		if m.conversations[ci].LastMessage.ID == messageID {
			m.conversations[ci].LastMessage.Read = true
		}
		return changed, nil
	}
	return false, fmt.Errorf("message %s: %w", messageID, ErrNotFound)
}

func (m *Memory) MarkConversationRead(_ context.Context, conversationID, readerID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ci := m.conversationIndex(conversationID)
	if ci < 0 {
		return 0, fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}
	n := 0
	for i := range m.messages {
		msg := &m.messages[i]
		if msg.ConversationID == conversationID && msg.ReceiverID == readerID && !msg.Read {
			msg.Read = true
			n++
		}
	}
	conv := &m.conversations[ci]
	if conv.LastMessage.ReceiverID == readerID {
		conv.LastMessage.Read = true
		conv.UnreadCount = 0
	}
	return n, nil
}

func (m *Memory) CreateNotification(_ context.Context, n model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, n)
	return nil
}

func (m *Memory) ListNotifications(_ context.Context, userID string) ([]model.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Notification
	for _, n := range m.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *Memory) MarkNotificationsRead(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for i := range m.notifications {
		if m.notifications[i].UserID == userID && !m.notifications[i].Read {
			m.notifications[i].Read = true
			n++
		}
	}
	return n, nil
}

func (m *Memory) conversationIndex(id string) int {
	for i := range m.conversations {
		if m.conversations[i].ID == id {
			return i
		}
	}
	return -1
}

func samePair(c model.Conversation, a, b string) bool {
	return c.HasParticipant(a) && c.HasParticipant(b)
}

func cloneService(s model.Service) model.Service {
	s.Reviews = slices.Clone(s.Reviews)
	if s.Reviews == nil {
		s.Reviews = []model.Review{}
	}
	return s
}
