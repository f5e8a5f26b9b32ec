package kafkax

import (
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	HeaderEventID    = "event_id"
	HeaderEventType  = "event_type"
	HeaderOccurredAt = "occurred_at"
)

// EventMeta is the metadata carried on every marketplace event.
type EventMeta struct {
	EventID    string
	EventType  string
	OccurredAt time.Time
}

// ExtractEventMeta reads the metadata headers. Without an event_id header the
// id is the record position (topic/partition/offset): it is stable across
// redelivery of the same record and never shared by two records. The message
// key is not used since it is the aggregate id, shared by every event of the
// aggregate.
func ExtractEventMeta(msg kafka.Message) EventMeta {
	meta := EventMeta{
		EventID:   HeaderValue(msg.Headers, HeaderEventID),
		EventType: HeaderValue(msg.Headers, HeaderEventType),
	}
	if meta.EventID == "" {
		meta.EventID = fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
	}
	if meta.EventType == "" {
		meta.EventType = msg.Topic
	}
	if raw := HeaderValue(msg.Headers, HeaderOccurredAt); raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			meta.OccurredAt = ts
		}
	}
	if meta.OccurredAt.IsZero() {
		meta.OccurredAt = msg.Time
	}
	return meta
}

// Headers renders meta as Kafka headers.
func (m EventMeta) Headers() []kafka.Header {
	headers := []kafka.Header{
		{Key: HeaderEventID, Value: []byte(m.EventID)},
		{Key: HeaderEventType, Value: []byte(m.EventType)},
	}
	if !m.OccurredAt.IsZero() {
		headers = append(headers, kafka.Header{Key: HeaderOccurredAt, Value: []byte(m.OccurredAt.UTC().Format(time.RFC3339Nano))})
	}
	return headers
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
