// Package handlers exposes the marketplace over HTTP/JSON.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/allowork/allowork/libs/auth"
	"github.com/allowork/allowork/services/marketplace-service/internal/accounts"
	"github.com/allowork/allowork/services/marketplace-service/internal/assistant"
	"github.com/allowork/allowork/services/marketplace-service/internal/marketplace"
	"github.com/allowork/allowork/services/marketplace-service/internal/messaging"
	"github.com/allowork/allowork/services/marketplace-service/internal/model"
	"github.com/allowork/allowork/services/marketplace-service/internal/notify"
	"github.com/allowork/allowork/services/marketplace-service/internal/realtime"
	"github.com/allowork/allowork/services/marketplace-service/internal/search"
	"github.com/allowork/allowork/services/marketplace-service/internal/storage"
)

type Deps struct {
	Accounts    *accounts.Service
	Marketplace *marketplace.Service
	Search      *search.Service
	Messaging   *messaging.Service
	Notify      *notify.Service
	Assistant   *assistant.Assistant
	Hub         *realtime.Hub
	Verifier    auth.Verifier
	Logger      *slog.Logger
}

type API struct {
	Deps
}

func New(d Deps) *API {
	return &API{Deps: d}
}

// Routes mounts every /api/v1 route on mux.
func (a *API) Routes(mux *http.ServeMux) {
	authed := auth.RequireAuth(a.Verifier, false)
	admin := func(h http.Handler) http.Handler {
		return authed(auth.RequireRole(string(model.RoleAdmin))(h))
	}
	private := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, authed(h))
	}

	mux.HandleFunc("POST /api/v1/auth/register", a.Register)
	mux.HandleFunc("POST /api/v1/auth/login", a.Login)
	private("GET /api/v1/auth/me", a.Me)

	mux.HandleFunc("GET /api/v1/categories", a.Categories)
	mux.HandleFunc("GET /api/v1/quartiers", a.Quartiers)

	mux.HandleFunc("GET /api/v1/services", a.ListServices)
	mux.HandleFunc("GET /api/v1/services/{id}", a.GetService)
	mux.HandleFunc("GET /api/v1/services/{id}/recommendation", a.Recommendation)
	private("POST /api/v1/services", a.CreateService)
	mux.HandleFunc("GET /api/v1/search", a.SearchServices)

	mux.HandleFunc("GET /api/v1/requests", a.ListRequests)
	private("POST /api/v1/requests", a.PostRequest)
	private("POST /api/v1/requests/description", a.RequestDescription)
	private("POST /api/v1/requests/{id}/fulfill", a.FulfillRequest)
	private("POST /api/v1/requests/{id}/proposals", a.SubmitProposal)

	private("GET /api/v1/bookings", a.ListBookings)
	private("POST /api/v1/bookings", a.CreateBooking)
	private("POST /api/v1/bookings/{id}/status", a.UpdateBookingStatus)
	private("GET /api/v1/bookings/{id}/qr", a.BookingQRCode)

	private("GET /api/v1/conversations", a.ListConversations)
	private("POST /api/v1/conversations", a.StartConversation)
	private("GET /api/v1/conversations/{id}/messages", a.ListMessages)
	private("POST /api/v1/conversations/{id}/messages", a.SendMessage)
	private("POST /api/v1/conversations/{id}/read", a.MarkConversationRead)
	mux.Handle("GET /api/v1/conversations/{id}/ws", auth.RequireAuth(a.Verifier, true)(http.HandlerFunc(a.ConversationSocket)))
	private("GET /api/v1/messages/unread-count", a.UnreadCount)

	private("GET /api/v1/notifications", a.ListNotifications)
	private("POST /api/v1/notifications/read", a.MarkNotificationsRead)

	mux.HandleFunc("POST /api/v1/assistant/chat", a.Chat)

	private("GET /api/v1/me/dashboard", a.Dashboard)
	mux.Handle("GET /api/v1/admin/stats", admin(http.HandlerFunc(a.AdminStats)))
	mux.Handle("GET /api/v1/admin/bookings/export", admin(http.HandlerFunc(a.ExportBookings)))
}

func userID(r *http.Request) string {
	p, _ := auth.PrincipalFromContext(r.Context())
	return p.UserID
}

// writeError maps domain errors to status codes. Unknown errors are logged
// and reported as 500 without detail.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		a.Logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		http.Error(w, "internal error", status)
		return
	}
	http.Error(w, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, accounts.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, marketplace.ErrForbidden), errors.Is(err, messaging.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, accounts.ErrEmailTaken), errors.Is(err, storage.ErrConflict),
		errors.Is(err, marketplace.ErrTransition):
		return http.StatusConflict
	case errors.Is(err, accounts.ErrInvalid), errors.Is(err, marketplace.ErrInvalid),
		errors.Is(err, messaging.ErrInvalid):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
