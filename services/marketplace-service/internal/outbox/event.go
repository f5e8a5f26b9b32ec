package outbox

import (
	"encoding/json"
	"fmt"
)

// Topics. The Kafka topic name equals the event type.
const (
	TopicUserRegistered       = "marketplace.user.registered.v1"
	TopicRequestPosted        = "marketplace.request.posted.v1"
	TopicBookingCreated       = "marketplace.booking.created.v1"
	TopicBookingStatusChanged = "marketplace.booking.status_changed.v1"
	TopicMessageSent          = "marketplace.message.sent.v1"
	TopicNotificationCreated  = "marketplace.notification.created.v1"
)

// Event is the domain event envelope written to the outbox.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// NewEvent marshals payload into an Event.
func NewEvent(aggregateType, aggregateID, eventType string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{AggregateType: aggregateType, AggregateID: aggregateID, EventType: eventType, Payload: raw}, nil
}

// NotificationCreated is consumed by the notification-service for e-mail and
// SMS delivery.
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
