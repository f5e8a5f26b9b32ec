// Package messaging implements conversations between users and the scripted
// reply simulation that follows every sent message.
package messaging

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/allowork/allowork/services/marketplace-service/internal/model"
	"github.com/allowork/allowork/services/marketplace-service/internal/outbox"
	"github.com/allowork/allowork/services/marketplace-service/internal/scheduler"
	"github.com/allowork/allowork/services/marketplace-service/internal/storage"
	"github.com/google/uuid"
)

var (
	ErrForbidden = errors.New("not a participant")
	ErrInvalid   = errors.New("invalid message")
)

const NewConversationText = "Nouvelle conversation démarrée"

// Realtime event types.
const (
	EventMessageNew  = "message.new"
	EventMessageRead = "message.read"
	EventTyping      = "typing"
)

// Broadcaster pushes events to clients watching a conversation.
type Broadcaster interface {
	Publish(conversationID, eventType string, data any)
}

type Service struct {
	store     storage.Store
	scheduler scheduler.Scheduler
	typing    TypingTracker
	hub       Broadcaster
	emitter   *outbox.Emitter
	logger    *slog.Logger
	now       func() time.Time
	simulate  bool
	timing    Timing
}

type Options struct {
	// Simulate enables the read receipt, typing and canned reply steps.
	Simulate bool
	Timing   Timing
	// Now overrides the message clock.
	Now func() time.Time
}

func NewService(store storage.Store, sched scheduler.Scheduler, typing TypingTracker, hub Broadcaster, emitter *outbox.Emitter, logger *slog.Logger, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Timing == (Timing{}) {
		opts.Timing = DefaultTiming
	}
	if typing == nil {
		typing = NewMemoryTyping()
	}
	return &Service{
		store:     store,
		scheduler: sched,
		typing:    typing,
		hub:       hub,
		emitter:   emitter,
		logger:    logger,
		now:       opts.Now,
		simulate:  opts.Simulate && sched != nil,
		timing:    opts.Timing,
	}
}

// StartConversation returns the conversation between the two users, creating
// it when missing.
func (s *Service) StartConversation(ctx context.Context, userID, counterpartID string) (model.Conversation, bool, error) {
	if userID == counterpartID {
		return model.Conversation{}, false, fmt.Errorf("%w: cannot start a conversation with yourself", ErrInvalid)
	}
	for _, id := range []string{userID, counterpartID} {
		if _, err := s.store.GetUser(ctx, id); err != nil {
			return model.Conversation{}, false, err
		}
	}

	existing, err := s.store.FindConversation(ctx, userID, counterpartID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return model.Conversation{}, false, err
	}

	id := uuid.NewString()
	conv := model.Conversation{
		ID:           id,
		Participants: [2]string{userID, counterpartID},
		LastMessage: model.Message{
			ID:             uuid.NewString(),
			ConversationID: id,
			SenderID:       userID,
			ReceiverID:     counterpartID,
			Content:        NewConversationText,
			Timestamp:      s.now().UTC(),
			Read:           true,
		},
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			// Lost a race with the other participant.
			existing, ferr := s.store.FindConversation(ctx, userID, counterpartID)
			return existing, false, ferr
		}
		return model.Conversation{}, false, err
	}
	return conv, true, nil
}

// ListConversations returns the user's conversations, most recent first.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]model.Conversation, error) {
	convs, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, err
	}
	if convs == nil {
		convs = []model.Conversation{}
	}
	slices.SortStableFunc(convs, func(a, b model.Conversation) int {
		return cmp.Compare(b.LastMessage.Timestamp.UnixNano(), a.LastMessage.Timestamp.UnixNano())
	})
	for i := range convs {
		typing, err := s.typing.Typing(ctx, convs[i].ID)
		if err != nil {
			s.logger.Warn("typing lookup failed", "conversation_id", convs[i].ID, "err", err)
			continue
		}
		convs[i].TypingUserID = typing
	}
	return convs, nil
}

// Conversation returns one conversation the user participates in.
func (s *Service) Conversation(ctx context.Context, userID, conversationID string) (model.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return model.Conversation{}, err
	}
	if !conv.HasParticipant(userID) {
		return model.Conversation{}, ErrForbidden
	}
	return conv, nil
}

func (s *Service) ListMessages(ctx context.Context, userID, conversationID string) ([]model.Message, error) {
	if _, err := s.Conversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	return msgs, nil
}

// SendMessage appends a message from userID to the other participant and
// schedules the reply simulation.
func (s *Service) SendMessage(ctx context.Context, userID, conversationID, content string) (model.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return model.Message{}, fmt.Errorf("%w: content is empty", ErrInvalid)
	}
	conv, err := s.Conversation(ctx, userID, conversationID)
	if err != nil {
		return model.Message{}, err
	}

	msg := model.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		SenderID:       userID,
		ReceiverID:     conv.Counterpart(userID),
		Content:        content,
		Timestamp:      s.now().UTC(),
	}
	if err := s.append(ctx, msg); err != nil {
		return model.Message{}, err
	}
	if s.simulate {
		s.scheduleSimulation(ctx, msg)
	}
	return msg, nil
}

func (s *Service) append(ctx context.Context, msg model.Message) error {
	if _, err := s.store.AppendMessage(ctx, msg, func(c *model.Conversation) error {
		applyAppend(c, msg)
		return nil
	}); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	s.publish(msg.ConversationID, EventMessageNew, msg)
	s.emitter.Emit(ctx, "conversation", msg.ConversationID, outbox.TopicMessageSent, map[string]any{
		"message_id":      msg.ID,
		"conversation_id": msg.ConversationID,
		"sender_id":       msg.SenderID,
		"receiver_id":     msg.ReceiverID,
		"sent_at":         msg.Timestamp.Format(time.RFC3339Nano),
	})
	return nil
}

// applyAppend makes msg the last message. The counter restarts when the
// previous last message was addressed to the new sender, since they have
// seen it by replying.
func applyAppend(c *model.Conversation, msg model.Message) {
	if c.LastMessage.ReceiverID == msg.SenderID {
		c.UnreadCount = 0
	}
	c.UnreadCount++
	c.LastMessage = msg
}

// MarkRead marks every message addressed to userID in the conversation as
// read and returns how many changed.
func (s *Service) MarkRead(ctx context.Context, userID, conversationID string) (int, error) {
	if _, err := s.Conversation(ctx, userID, conversationID); err != nil {
		return 0, err
	}
	n, err := s.store.MarkConversationRead(ctx, conversationID, userID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.publish(conversationID, EventMessageRead, map[string]any{"reader_id": userID, "count": n})
	}
	return n, nil
}

// UnreadCount sums the unread counters of conversations whose last message
// is addressed to userID and still unread.
func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	convs, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, c := range convs {
		if c.LastMessage.ReceiverID == userID && !c.LastMessage.Read {
			total += c.UnreadCount
		}
	}
	return total, nil
}

func (s *Service) publish(conversationID, eventType string, data any) {
	if s.hub != nil {
		s.hub.Publish(conversationID, eventType, data)
	}
}
