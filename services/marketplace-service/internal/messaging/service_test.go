package messaging

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/allowork/allowork/services/marketplace-service/internal/model"
	"github.com/allowork/allowork/services/marketplace-service/internal/outbox"
	"github.com/allowork/allowork/services/marketplace-service/internal/scheduler"
	"github.com/allowork/allowork/services/marketplace-service/internal/scheduler/schedulertest"
	"github.com/allowork/allowork/services/marketplace-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedEvent struct {
	room string
	typ  string
	data any
}

type recordingHub struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (h *recordingHub) Publish(room, eventType string, data any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, recordedEvent{room: room, typ: eventType, data: data})
}

func (h *recordingHub) types() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, e := range h.events {
		out = append(out, e.typ)
	}
	return out
}

type fixture struct {
	svc    *Service
	store  *storage.Memory
	clock  *schedulertest.ManualClock
	sched  *scheduler.InProcess
	hub    *recordingHub
	outbox *outbox.MemoryRepository
}

func newFixture(t *testing.T, simulate bool) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	base := time.Now()
	store := storage.NewMemory()
	require.NoError(t, storage.SeedDemo(context.Background(), store, "x", base))

	clock := schedulertest.NewManualClock()
	sched := scheduler.NewInProcess(clock, logger)
	t.Cleanup(sched.Close)
	hub := &recordingHub{}
	repo := outbox.NewMemoryRepository(100)

	svc := NewService(store, sched, NewMemoryTyping(), hub, outbox.NewEmitter(repo, logger), logger, Options{
		Simulate: simulate,
		Now:      func() time.Time { return base.Add(clock.Elapsed()) },
	})
	sched.Handle(svc.HandleTask)
	return &fixture{svc: svc, store: store, clock: clock, sched: sched, hub: hub, outbox: repo}
}

func TestSendMessageRunsSimulationInOrder(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	sent, err := f.svc.SendMessage(ctx, "u2", "c1", "  Vous êtes libre samedi ?  ")
	require.NoError(t, err)
	assert.Equal(t, "Vous êtes libre samedi ?", sent.Content)
	assert.Equal(t, "p1", sent.ReceiverID)
	assert.False(t, sent.Read)

	msgs, _ := f.store.ListMessages(ctx, "c1")
	require.Len(t, msgs, 3)
	assert.False(t, msgs[2].Read)
	conv, _ := f.store.GetConversation(ctx, "c1")
	assert.Equal(t, sent.ID, conv.LastMessage.ID)
	assert.Equal(t, 1, conv.UnreadCount)
	assert.Equal(t, []string{EventMessageNew}, f.hub.types())

	f.clock.Advance(1499 * time.Millisecond)
	msgs, _ = f.store.ListMessages(ctx, "c1")
	assert.False(t, msgs[2].Read)

	f.clock.Advance(time.Millisecond)
	msgs, _ = f.store.ListMessages(ctx, "c1")
	assert.True(t, msgs[2].Read)
	conv, _ = f.store.GetConversation(ctx, "c1")
	assert.True(t, conv.LastMessage.Read)

	f.clock.Advance(time.Second)
	convs, err := f.svc.ListConversations(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "p1", convs[0].TypingUserID)

	f.clock.Advance(2500 * time.Millisecond)
	convs, _ = f.svc.ListConversations(ctx, "u2")
	assert.Empty(t, convs[0].TypingUserID)

	msgs, _ = f.store.ListMessages(ctx, "c1")
	require.Len(t, msgs, 4)
	reply := msgs[3]
	assert.Equal(t, CannedReply, reply.Content)
	assert.Equal(t, "p1", reply.SenderID)
	assert.Equal(t, "u2", reply.ReceiverID)
	assert.False(t, reply.Read)

	conv, _ = f.store.GetConversation(ctx, "c1")
	assert.Equal(t, reply.ID, conv.LastMessage.ID)
	assert.Equal(t, 1, conv.UnreadCount)

	unread, _ := f.svc.UnreadCount(ctx, "u2")
	assert.Equal(t, 1, unread)
	unread, _ = f.svc.UnreadCount(ctx, "p1")
	assert.Equal(t, 0, unread)

	assert.Equal(t, []string{EventMessageNew, EventMessageRead, EventTyping, EventTyping, EventMessageNew}, f.hub.types())
	assert.Len(t, f.outbox.Pending(), 2)
}

func TestTwoSendsYieldTwoReplies(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.svc.SendMessage(ctx, "u2", "c1", "Premier")
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	_, err = f.svc.SendMessage(ctx, "u2", "c1", "Second")
	require.NoError(t, err)

	conv, _ := f.store.GetConversation(ctx, "c1")
	assert.Equal(t, 2, conv.UnreadCount)

	f.clock.Advance(10 * time.Second)
	msgs, _ := f.store.ListMessages(ctx, "c1")
	replies := 0
	for _, m := range msgs {
		if m.Content == CannedReply {
			replies++
		}
	}
	assert.Equal(t, 2, replies)
	assert.Zero(t, f.sched.Pending())
}

func TestSimulationDisabled(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.svc.SendMessage(context.Background(), "u2", "c1", "Bonjour")
	require.NoError(t, err)
	assert.Zero(t, f.sched.Pending())
}

func TestSendMessageValidation(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.svc.SendMessage(ctx, "u2", "c1", "   ")
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = f.svc.SendMessage(ctx, "p2", "c1", "Bonjour")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.SendMessage(ctx, "u2", "missing", "Bonjour")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	msgs, _ := f.store.ListMessages(ctx, "c1")
	assert.Len(t, msgs, 2)
	assert.Zero(t, f.sched.Pending())
}

func TestStartConversation(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	conv, created, err := f.svc.StartConversation(ctx, "p1", "u2")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "c1", conv.ID)

	conv, created, err = f.svc.StartConversation(ctx, "u2", "p2")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, [2]string{"u2", "p2"}, conv.Participants)
	assert.Equal(t, NewConversationText, conv.LastMessage.Content)
	assert.True(t, conv.LastMessage.Read)
	assert.Zero(t, conv.UnreadCount)

	again, created, err := f.svc.StartConversation(ctx, "p2", "u2")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, conv.ID, again.ID)

	_, _, err = f.svc.StartConversation(ctx, "u2", "u2")
	assert.ErrorIs(t, err, ErrInvalid)
	_, _, err = f.svc.StartConversation(ctx, "u2", "ghost")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	unread, _ := f.svc.UnreadCount(ctx, "p2")
	assert.Zero(t, unread)
}

func TestListConversationsMostRecentFirst(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	f.clock.Advance(time.Minute)
	newer, _, err := f.svc.StartConversation(ctx, "u2", "p3")
	require.NoError(t, err)

	convs, err := f.svc.ListConversations(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, newer.ID, convs[0].ID)
	assert.Equal(t, "c1", convs[1].ID)
}

func TestMarkReadAndUnreadCount(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	unread, err := f.svc.UnreadCount(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	_, err = f.svc.MarkRead(ctx, "p3", "c1")
	assert.ErrorIs(t, err, ErrForbidden)

	n, err := f.svc.MarkRead(ctx, "u2", "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	unread, _ = f.svc.UnreadCount(ctx, "u2")
	assert.Zero(t, unread)
	assert.Equal(t, []string{EventMessageRead}, f.hub.types())

	msgs, err := f.svc.ListMessages(ctx, "u2", "c1")
	require.NoError(t, err)
	for _, m := range msgs {
		assert.True(t, m.Read, m.ID)
	}
}

func TestApplyAppend(t *testing.T) {
	c := model.Conversation{LastMessage: model.Message{SenderID: "a", ReceiverID: "b"}, UnreadCount: 3}

	applyAppend(&c, model.Message{ID: "1", SenderID: "a", ReceiverID: "b"})
	assert.Equal(t, 4, c.UnreadCount)

	applyAppend(&c, model.Message{ID: "2", SenderID: "b", ReceiverID: "a"})
	assert.Equal(t, 1, c.UnreadCount)
	assert.Equal(t, "2", c.LastMessage.ID)
}

func TestRedisTyping(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	ctx := context.Background()
	tr := NewRedisTyping(rdb)

	who, err := tr.Typing(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, who)

	require.NoError(t, tr.SetTyping(ctx, "c1", "p1", 10*time.Second))
	who, _ = tr.Typing(ctx, "c1")
	assert.Equal(t, "p1", who)

	mr.FastForward(11 * time.Second)
	who, _ = tr.Typing(ctx, "c1")
	assert.Empty(t, who)

	require.NoError(t, tr.SetTyping(ctx, "c1", "p1", 10*time.Second))
	require.NoError(t, tr.ClearTyping(ctx, "c1"))
	who, _ = tr.Typing(ctx, "c1")
	assert.Empty(t, who)
}

func TestMemoryTypingExpires(t *testing.T) {
	tr := NewMemoryTyping()
	now := time.Now()
	tr.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, tr.SetTyping(ctx, "c1", "p1", time.Second))
	who, _ := tr.Typing(ctx, "c1")
	assert.Equal(t, "p1", who)

	now = now.Add(2 * time.Second)
	who, _ = tr.Typing(ctx, "c1")
	assert.Empty(t, who)
}
