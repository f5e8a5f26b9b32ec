package handlers

import (
	"net/http"
	"strings"

	"github.com/allowork/allowork/libs/httpx"
)

type startConversationRequest struct {
	CounterpartID string `json:"counterpart_id"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

type chatRequest struct {
	Message string `json:"message"`
}

func (a *API) ListConversations(w http.ResponseWriter, r *http.Request) {
	list, err := a.Messaging.ListConversations(r.Context(), userID(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"conversations": list})
}

// StartConversation answers 201 for a new conversation and 200 when the pair
// already had one.
func (a *API) StartConversation(w http.ResponseWriter, r *http.Request) {
	var req startConversationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), httpx.DecodeStatus(err))
		return
	}
	req.CounterpartID = strings.TrimSpace(req.CounterpartID)
	if req.CounterpartID == "" {
		http.Error(w, "counterpart_id is required", http.StatusBadRequest)
		return
	}
	conv, created, err := a.Messaging.StartConversation(r.Context(), userID(r), req.CounterpartID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httpx.WriteJSON(w, status, conv)
}

func (a *API) ListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := a.Messaging.ListMessages(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (a *API) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), httpx.DecodeStatus(err))
		return
	}
	msg, err := a.Messaging.SendMessage(r.Context(), userID(r), r.PathValue("id"), req.Content)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, msg)
}

func (a *API) MarkConversationRead(w http.ResponseWriter, r *http.Request) {
	n, err := a.Messaging.MarkRead(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]int{"marked": n})
}

func (a *API) UnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := a.Messaging.UnreadCount(r.Context(), userID(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]int{"unread": n})
}

// ConversationSocket streams the conversation's realtime events to a
// participant.
func (a *API) ConversationSocket(w http.ResponseWriter, r *http.Request) {
	conv, err := a.Messaging.Conversation(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.Hub.Serve(w, r, conv.ID); err != nil {
		// The upgrader has already answered the client.
		a.Logger.Warn("websocket upgrade failed", "conversation_id", conv.ID, "err", err)
	}
}

func (a *API) ListNotifications(w http.ResponseWriter, r *http.Request) {
	list, err := a.Notify.List(r.Context(), userID(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	unread := 0
	for _, n := range list {
		if !n.Read {
			unread++
		}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"notifications": list, "unread": unread})
}

func (a *API) MarkNotificationsRead(w http.ResponseWriter, r *http.Request) {
	n, err := a.Notify.MarkAllRead(r.Context(), userID(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]int{"marked": n})
}

func (a *API) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), httpx.DecodeStatus(err))
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"reply": a.Assistant.ChatReply(r.Context(), req.Message)})
}
