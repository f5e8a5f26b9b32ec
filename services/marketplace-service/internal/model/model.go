package model

import "time"

type Role string

const (
	RoleClient   Role = "client"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
)

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PhoneNumber  string    `json:"phone_number,omitempty"`
	Role         Role      `json:"role"`
	Specialty    string    `json:"specialty,omitempty"`
	Location     string    `json:"location,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type Review struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	UserName string    `json:"user_name"`
	Rating   float64   `json:"rating"`
	Comment  string    `json:"comment"`
	Date     time.Time `json:"date"`
}

type Service struct {
	ID           string   `json:"id"`
	ProviderID   string   `json:"provider_id"`
	ProviderName string   `json:"provider_name"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Category     string   `json:"category"`
	Price        int64    `json:"price"`
	Location     string   `json:"location"`
	Rating       float64  `json:"rating"`
	Reviews      []Review `json:"reviews"`
	ImageURL     string   `json:"image_url"`
	Available    bool     `json:"is_available"`
}

type RequestStatus string

const (
	RequestOpen      RequestStatus = "open"
	RequestFulfilled RequestStatus = "fulfilled"
)

type ServiceRequest struct {
	ID          string        `json:"id"`
	UserID      string        `json:"user_id"`
	UserName    string        `json:"user_name"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Category    string        `json:"category"`
	Location    string        `json:"location"`
	Budget      int64         `json:"budget"`
	Date        string        `json:"date"`
	Status      RequestStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
}

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingCompleted, BookingCancelled:
		return true
	}
	return false
}

type Booking struct {
	ID         string        `json:"id"`
	ServiceID  string        `json:"service_id"`
	ClientID   string        `json:"client_id"`
	ProviderID string        `json:"provider_id"`
	Date       string        `json:"date"`
	Status     BookingStatus `json:"status"`
	TotalPrice int64         `json:"total_price"`
	CreatedAt  time.Time     `json:"created_at"`
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	ReceiverID     string    `json:"receiver_id"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
	Read           bool      `json:"read"`
}

type Conversation struct {
	ID           string    `json:"id"`
	Participants [2]string `json:"participants"`
	LastMessage  Message   `json:"last_message"`
	UnreadCount  int       `json:"unread_count"`
	// TypingUserID is filled from the typing tracker, never stored.
	TypingUserID string `json:"typing_user_id,omitempty"`
}

func (c Conversation) HasParticipant(userID string) bool {
	return c.Participants[0] == userID || c.Participants[1] == userID
}

// Counterpart returns the other participant, or "" when userID is not one.
func (c Conversation) Counterpart(userID string) string {
	switch userID {
	case c.Participants[0]:
		return c.Participants[1]
	case c.Participants[1]:
		return c.Participants[0]
	}
	return ""
}

type NotificationType string

const (
	NotificationRequestMatch  NotificationType = "request_match"
	NotificationBookingUpdate NotificationType = "booking_update"
	NotificationProposal      NotificationType = "proposal"
	NotificationNewMessage    NotificationType = "new_message"
)

type Notification struct {
	ID      string           `json:"id"`
	UserID  string           `json:"user_id"`
	Message string           `json:"message"`
	Date    time.Time        `json:"date"`
	Read    bool             `json:"read"`
	Type    NotificationType `json:"type"`
	LinkTo  string           `json:"link_to,omitempty"`
}
