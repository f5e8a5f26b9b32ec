package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/allowork/allowork/services/marketplace-service/internal/model"
	"github.com/allowork/allowork/services/marketplace-service/internal/scheduler"
	"github.com/google/uuid"
)

const CannedReply = "Merci pour votre message. Je vous réponds dès que possible."

// Task kinds of the reply simulation.
const (
	TaskPrefix      = "simulation:"
	TaskReadReceipt = TaskPrefix + "read_receipt"
	TaskTypingStart = TaskPrefix + "typing_start"
	TaskReply       = TaskPrefix + "reply"
)

// Timing holds the delays of the simulation steps, measured from the send.
type Timing struct {
	ReadReceipt time.Duration
	TypingStart time.Duration
	Reply       time.Duration
}

var DefaultTiming = Timing{
	ReadReceipt: 1500 * time.Millisecond,
	TypingStart: 2500 * time.Millisecond,
	Reply:       5 * time.Second,
}

// typingTTL outlives the gap between typing start and reply.
const typingTTL = 10 * time.Second

type simulationStep struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	SenderID       string `json:"sender_id"`
	ReceiverID     string `json:"receiver_id"`
}

func (s *Service) scheduleSimulation(ctx context.Context, msg model.Message) {
	payload, err := json.Marshal(simulationStep{
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		SenderID:       msg.SenderID,
		ReceiverID:     msg.ReceiverID,
	})
	if err != nil {
		s.logger.Error("encode simulation step", "err", err)
		return
	}
	steps := []struct {
		kind  string
		delay time.Duration
	}{
		{TaskReadReceipt, s.timing.ReadReceipt},
		{TaskTypingStart, s.timing.TypingStart},
		{TaskReply, s.timing.Reply},
	}
	for _, step := range steps {
		if err := s.scheduler.Schedule(ctx, scheduler.Task{Kind: step.kind, Payload: payload}, step.delay); err != nil {
			s.logger.Error("schedule simulation step", "kind", step.kind, "message_id", msg.ID, "err", err)
		}
	}
}

// HandleTask runs one simulation step. It is the scheduler handler.
func (s *Service) HandleTask(ctx context.Context, t scheduler.Task) error {
	var step simulationStep
	if err := json.Unmarshal(t.Payload, &step); err != nil {
		return fmt.Errorf("decode %s: %w", t.Kind, err)
	}
	switch t.Kind {
	case TaskReadReceipt:
		return s.readReceipt(ctx, step)
	case TaskTypingStart:
		return s.typingStart(ctx, step)
	case TaskReply:
		return s.reply(ctx, step)
	default:
		return fmt.Errorf("unknown simulation step %q", t.Kind)
	}
}

func (s *Service) readReceipt(ctx context.Context, step simulationStep) error {
	changed, err := s.store.MarkMessageRead(ctx, step.ConversationID, step.MessageID)
	if err != nil {
		return fmt.Errorf("read receipt: %w", err)
	}
	if changed {
		s.publish(step.ConversationID, EventMessageRead, map[string]any{
			"message_id": step.MessageID,
			"reader_id":  step.ReceiverID,
		})
	}
	return nil
}

func (s *Service) typingStart(ctx context.Context, step simulationStep) error {
	if err := s.typing.SetTyping(ctx, step.ConversationID, step.ReceiverID, typingTTL); err != nil {
		return fmt.Errorf("set typing: %w", err)
	}
	s.publish(step.ConversationID, EventTyping, map[string]any{"user_id": step.ReceiverID, "active": true})
	return nil
}

func (s *Service) reply(ctx context.Context, step simulationStep) error {
	if err := s.typing.ClearTyping(ctx, step.ConversationID); err != nil {
		s.logger.Warn("clear typing failed", "conversation_id", step.ConversationID, "err", err)
	}
	s.publish(step.ConversationID, EventTyping, map[string]any{"user_id": step.ReceiverID, "active": false})

	return s.append(ctx, model.Message{
		ID:             uuid.NewString(),
		ConversationID: step.ConversationID,
		SenderID:       step.ReceiverID,
		ReceiverID:     step.SenderID,
		Content:        CannedReply,
		Timestamp:      s.now().UTC(),
	})
}
