// Package marketplace implements listings, service requests, bookings and
// the dashboards built on them.
package marketplace

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
	"github.com/allowork/allowork/services/marketplace-service/internal/notify"
	"github.com/allowork/allowork/services/marketplace-service/internal/outbox"
	"github.com/allowork/allowork/services/marketplace-service/internal/storage"
	"github.com/google/uuid"
)

var (
	ErrForbidden  = errors.New("forbidden")
	ErrInvalid    = errors.New("invalid input")
	ErrTransition = errors.New("invalid status transition")
)

type Service struct {
	store   storage.Store
	notify  *notify.Service
	emitter *outbox.Emitter
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(store storage.Store, notifier *notify.Service, emitter *outbox.Emitter, logger *slog.Logger) *Service {
	return &Service{store: store, notify: notifier, emitter: emitter, logger: logger, now: time.Now}
}

func (s *Service) today() string {
	return s.now().UTC().Format(time.DateOnly)
}

func (s *Service) user(ctx context.Context, id string) (model.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return model.User{}, fmt.Errorf("load user: %w", err)
	}
	return u, nil
}

type ServiceInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Price       int64  `json:"price"`
	Location    string `json:"location"`
	ImageURL    string `json:"image_url"`
}

// CreateService lists a new service for a provider.
func (s *Service) CreateService(ctx context.Context, providerID string, in ServiceInput) (model.Service, error) {
	provider, err := s.user(ctx, providerID)
	if err != nil {
		return model.Service{}, err
	}
	if provider.Role != model.RoleProvider {
		return model.Service{}, fmt.Errorf("%w: only providers can list services", ErrForbidden)
	}
	in.Title = strings.TrimSpace(in.Title)
	switch {
	case in.Title == "":
		return model.Service{}, fmt.Errorf("%w: title is required", ErrInvalid)
	case !model.IsCategory(in.Category):
		return model.Service{}, fmt.Errorf("%w: unknown category %q", ErrInvalid, in.Category)
	case !model.IsQuartier(in.Location):
		return model.Service{}, fmt.Errorf("%w: unknown quartier %q", ErrInvalid, in.Location)
	case in.Price <= 0:
		return model.Service{}, fmt.Errorf("%w: price must be positive", ErrInvalid)
	}

	svc := model.Service{
		ID:           uuid.NewString(),
		ProviderID:   provider.ID,
		ProviderName: provider.Name,
		Title:        in.Title,
		Description:  strings.TrimSpace(in.Description),
		Category:     in.Category,
		Price:        in.Price,
		Location:     in.Location,
		Reviews:      []model.Review{},
		ImageURL:     strings.TrimSpace(in.ImageURL),
		Available:    true,
	}
	if err := s.store.CreateService(ctx, svc); err != nil {
		return model.Service{}, err
	}
	return svc, nil
}

func (s *Service) GetService(ctx context.Context, id string) (model.Service, error) {
	return s.store.GetService(ctx, id)
}

func (s *Service) ListServices(ctx context.Context) ([]model.Service, error) {
	return s.store.ListServices(ctx)
}

type RequestInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Location    string `json:"location"`
	Budget      int64  `json:"budget"`
}

// PostRequest stores an open request and notifies matching providers. It
// returns the request and how many providers were notified.
func (s *Service) PostRequest(ctx context.Context, userID string, in RequestInput) (model.ServiceRequest, int, error) {
	owner, err := s.user(ctx, userID)
	if err != nil {
		return model.ServiceRequest{}, 0, err
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	switch {
	case in.Title == "" || in.Description == "":
		return model.ServiceRequest{}, 0, fmt.Errorf("%w: title and description are required", ErrInvalid)
	case !model.IsCategory(in.Category):
		return model.ServiceRequest{}, 0, fmt.Errorf("%w: unknown category %q", ErrInvalid, in.Category)
	case !model.IsQuartier(in.Location):
		return model.ServiceRequest{}, 0, fmt.Errorf("%w: unknown quartier %q", ErrInvalid, in.Location)
	}
	budget := in.Budget
	if budget < 0 {
		budget = 0
	}

	req := model.ServiceRequest{
		ID:          uuid.NewString(),
		UserID:      owner.ID,
		UserName:    owner.Name,
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		Location:    in.Location,
		Budget:      budget,
		Date:        s.today(),
		Status:      model.RequestOpen,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.CreateRequest(ctx, req); err != nil {
		return model.ServiceRequest{}, 0, err
	}

	notified, err := s.notify.RequestPosted(ctx, req)
	if err != nil {
		// The request stands even if some notifications were not written.
		s.logger.Error("request fan-out failed", "request_id", req.ID, "err", err)
	}
	s.emitter.Emit(ctx, "request", req.ID, outbox.TopicRequestPosted, map[string]any{
		"request_id": req.ID,
		"user_id":    req.UserID,
		"category":   req.Category,
		"location":   req.Location,
		"budget":     req.Budget,
		"notified":   len(notified),
	})
	return req, len(notified), nil
}

// ListRequests returns open requests, newest first. An empty category or
// "Tous" lists every category.
func (s *Service) ListRequests(ctx context.Context, category string) ([]model.ServiceRequest, error) {
	all, err := s.store.ListRequests(ctx)
	if err != nil {
		return nil, err
	}
	out := []model.ServiceRequest{}
	for _, r := range all {
		if r.Status != model.RequestOpen {
			continue
		}
		if category != "" && category != model.AllCategories && r.Category != category {
			continue
		}
		out = append(out, r)
	}
	sortRequestsNewestFirst(out)
	return out, nil
}

func sortRequestsNewestFirst(list []model.ServiceRequest) {
	slices.SortStableFunc(list, func(a, b model.ServiceRequest) int {
		return cmp.Compare(b.CreatedAt.UnixNano(), a.CreatedAt.UnixNano())
	})
}

// FulfillRequest lets the owner close an open request.
func (s *Service) FulfillRequest(ctx context.Context, userID, requestID string) (model.ServiceRequest, error) {
	return s.store.UpdateRequest(ctx, requestID, func(r *model.ServiceRequest) error {
		if r.UserID != userID {
			return fmt.Errorf("%w: only the owner can fulfill a request", ErrForbidden)
		}
		if r.Status != model.RequestOpen {
			return fmt.Errorf("%w: request is already %s", ErrTransition, r.Status)
		}
		r.Status = model.RequestFulfilled
		return nil
	})
}

// SubmitProposal notifies the request owner that a provider is interested.
func (s *Service) SubmitProposal(ctx context.Context, providerID, requestID string) (model.Notification, error) {
	provider, err := s.user(ctx, providerID)
	if err != nil {
		return model.Notification{}, err
	}
	if provider.Role != model.RoleProvider {
		return model.Notification{}, fmt.Errorf("%w: only providers can submit proposals", ErrForbidden)
	}
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return model.Notification{}, err
	}
	if req.Status != model.RequestOpen {
		return model.Notification{}, fmt.Errorf("%w: request is %s", ErrTransition, req.Status)
	}
	if req.UserID == provider.ID {
		return model.Notification{}, fmt.Errorf("%w: cannot propose on your own request", ErrInvalid)
	}
	return s.notify.ProposalSubmitted(ctx, req, provider)
}

// CreateBooking books a service for a client at the listed price.
func (s *Service) CreateBooking(ctx context.Context, clientID, serviceID string) (model.Booking, error) {
	client, err := s.user(ctx, clientID)
	if err != nil {
		return model.Booking{}, err
	}
	svc, err := s.store.GetService(ctx, serviceID)
	if err != nil {
		return model.Booking{}, err
	}
	if svc.ProviderID == client.ID {
		return model.Booking{}, fmt.Errorf("%w: cannot book your own service", ErrInvalid)
	}
	if !svc.Available {
		return model.Booking{}, fmt.Errorf("%w: service is not available", ErrInvalid)
	}

	b := model.Booking{
		ID:         uuid.NewString(),
		ServiceID:  svc.ID,
		ClientID:   client.ID,
		ProviderID: svc.ProviderID,
		Date:       s.today(),
		Status:     model.BookingPending,
		TotalPrice: svc.Price,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.CreateBooking(ctx, b); err != nil {
		return model.Booking{}, err
	}
	if _, err := s.notify.BookingCreated(ctx, b, svc, client); err != nil {
		s.logger.Error("booking notification failed", "booking_id", b.ID, "err", err)
	}
	s.emitter.Emit(ctx, "booking", b.ID, outbox.TopicBookingCreated, b)
	return b, nil
}

// UpdateBookingStatus applies a status change by one of the booking's
// parties. Providers confirm and complete; either party cancels.
func (s *Service) UpdateBookingStatus(ctx context.Context, userID, bookingID string, next model.BookingStatus) (model.Booking, error) {
	if !next.Valid() {
		return model.Booking{}, fmt.Errorf("%w: unknown status %q", ErrInvalid, next)
	}
	var prev model.BookingStatus
	b, err := s.store.UpdateBooking(ctx, bookingID, func(b *model.Booking) error {
		isProvider := b.ProviderID == userID
		isClient := b.ClientID == userID
		if !isProvider && !isClient {
			return fmt.Errorf("%w: not a party to this booking", ErrForbidden)
		}
		if err := checkTransition(b.Status, next, isProvider); err != nil {
			return err
		}
		prev = b.Status
		b.Status = next
		return nil
	})
	if err != nil {
		return model.Booking{}, err
	}
	s.emitter.Emit(ctx, "booking", b.ID, outbox.TopicBookingStatusChanged, map[string]any{
		"booking_id": b.ID,
		"from":       prev,
		"to":         b.Status,
		"changed_by": userID,
	})
	return b, nil
}

func checkTransition(from, to model.BookingStatus, isProvider bool) error {
	switch {
	case from == model.BookingPending && to == model.BookingConfirmed,
		from == model.BookingConfirmed && to == model.BookingCompleted:
		if !isProvider {
			return fmt.Errorf("%w: only the provider can set %s", ErrForbidden, to)
		}
		return nil
	case to == model.BookingCancelled && (from == model.BookingPending || from == model.BookingConfirmed):
		return nil
	}
	return fmt.Errorf("%w: %s to %s", ErrTransition, from, to)
}

// Dashboard is what a signed-in user sees on their dashboard.
type Dashboard struct {
	User     model.User             `json:"user"`
	Bookings []model.Booking        `json:"bookings"`
	Requests []model.ServiceRequest `json:"requests"`
}

func (s *Service) Dashboard(ctx context.Context, userID string) (Dashboard, error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return Dashboard{}, err
	}
	bookings, err := s.store.ListBookings(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	requests, err := s.store.ListRequests(ctx)
	if err != nil {
		return Dashboard{}, err
	}

	d := Dashboard{User: u, Bookings: []model.Booking{}, Requests: []model.ServiceRequest{}}
	for _, b := range bookings {
		if b.ClientID == userID || b.ProviderID == userID {
			d.Bookings = append(d.Bookings, b)
		}
	}
	for _, r := range requests {
		if r.UserID == userID {
			d.Requests = append(d.Requests, r)
		}
	}
	sortRequestsNewestFirst(d.Requests)
	return d, nil
}

// Booking returns a booking visible to userID: its parties and admins.
func (s *Service) Booking(ctx context.Context, userID, bookingID string) (model.Booking, error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return model.Booking{}, err
	}
	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return model.Booking{}, err
	}
	if u.Role != model.RoleAdmin && b.ClientID != userID && b.ProviderID != userID {
		return model.Booking{}, fmt.Errorf("%w: not a party to this booking", ErrForbidden)
	}
	return b, nil
}

type Stats struct {
	TotalUsers     int   `json:"total_users"`
	TotalProviders int   `json:"total_providers"`
	TotalRevenue   int64 `json:"total_revenue"`
	ActiveBookings int   `json:"active_bookings"`
	TotalRequests  int   `json:"total_requests"`
}

// AdminStats summarizes the marketplace. Revenue is the sum of every
// booking price whatever its status; active bookings are the pending ones.
func (s *Service) AdminStats(ctx context.Context) (Stats, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return Stats{}, err
	}
	bookings, err := s.store.ListBookings(ctx)
	if err != nil {
		return Stats{}, err
	}
	requests, err := s.store.ListRequests(ctx)
	if err != nil {
		return Stats{}, err
	}

	st := Stats{TotalUsers: len(users), TotalRequests: len(requests)}
	for _, u := range users {
		if u.Role == model.RoleProvider {
			st.TotalProviders++
		}
	}
	for _, b := range bookings {
		st.TotalRevenue += b.TotalPrice
		if b.Status == model.BookingPending {
			st.ActiveBookings++
		}
	}
	return st, nil
}

// BookingRow is a booking joined with the names an export needs.
type BookingRow struct {
	Booking      model.Booking
	ServiceTitle string
	ClientName   string
	ProviderName string
}

func (s *Service) BookingRows(ctx context.Context) ([]BookingRow, error) {
	bookings, err := s.store.ListBookings(ctx)
	if err != nil {
		return nil, err
	}
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	services, err := s.store.ListServices(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Name
	}
	titles := make(map[string]string, len(services))
	for _, svc := range services {
		titles[svc.ID] = svc.Title
	}

	rows := make([]BookingRow, 0, len(bookings))
	for _, b := range bookings {
		rows = append(rows, BookingRow{
			Booking:      b,
			ServiceTitle: titles[b.ServiceID],
			ClientName:   names[b.ClientID],
			ProviderName: names[b.ProviderID],
		})
	}
	return rows, nil
}
