package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/allowork/allowork/libs/httpx"
	"github.com/allowork/allowork/services/marketplace-service/internal/marketplace"
	"github.com/allowork/allowork/services/marketplace-service/internal/model"
	"github.com/allowork/allowork/services/marketplace-service/internal/reports"
)

type postRequestResponse struct {
	Request  model.ServiceRequest `json:"request"`
	Notified int                  `json:"notified"`
}

type createBookingRequest struct {
	ServiceID string `json:"service_id"`
}

type bookingStatusRequest struct {
	Status model.BookingStatus `json:"status"`
}

type descriptionRequest struct {
	Title    string `json:"title"`
	Category string `json:"category"`
}

func (a *API) ListServices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := a.Search.Browse(r.Context(), q.Get("category"), q.Get("location"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"services": list})
}

func (a *API) GetService(w http.ResponseWriter, r *http.Request) {
	svc, err := a.Marketplace.GetService(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, svc)
}

func (a *API) CreateService(w http.ResponseWriter, r *http.Request) {
	var req marketplace.ServiceInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), httpx.DecodeStatus(err))
		return
	}
	svc, err := a.Marketplace.CreateService(r.Context(), userID(r), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, svc)
}

func (a *API) Recommendation(w http.ResponseWriter, r *http.Request) {
	svc, err := a.Marketplace.GetService(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	text := a.Assistant.GenerateServiceRecommendation(r.Context(), svc)
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"service_id": svc.ID, "text": text})
}

func (a *API) SearchServices(w http.ResponseWriter, r *http.Request) {
	res, err := a.Search.Search(r.Context(), strings.TrimSpace(r.URL.Query().Get("q")))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (a *API) ListRequests(w http.ResponseWriter, r *http.Request) {
	list, err := a.Marketplace.ListRequests(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"requests": list})
}

func (a *API) PostRequest(w http.ResponseWriter, r *http.Request) {
	var req marketplace.RequestInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), httpx.DecodeStatus(err))
		return
	}
	created, notified, err := a.Marketplace.PostRequest(r.Context(), userID(r), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, postRequestResponse{Request: created, Notified: notified})
}

func (a *API) RequestDescription(w http.ResponseWriter, r *http.Request) {
	var req descriptionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), httpx.DecodeStatus(err))
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		http.Error(w, "title is required", http.StatusBadRequest)
		return
	}
	text := a.Assistant.GenerateRequestDescription(r.Context(), req.Title, req.Category)
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"description": text})
}

func (a *API) FulfillRequest(w http.ResponseWriter, r *http.Request) {
	req, err := a.Marketplace.FulfillRequest(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, req)
}

func (a *API) SubmitProposal(w http.ResponseWriter, r *http.Request) {
	n, err := a.Marketplace.SubmitProposal(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, n)
}

func (a *API) ListBookings(w http.ResponseWriter, r *http.Request) {
	d, err := a.Marketplace.Dashboard(r.Context(), userID(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"bookings": d.Bookings})
}

func (a *API) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), httpx.DecodeStatus(err))
		return
	}
	if strings.TrimSpace(req.ServiceID) == "" {
		http.Error(w, "service_id is required", http.StatusBadRequest)
		return
	}
	b, err := a.Marketplace.CreateBooking(r.Context(), userID(r), req.ServiceID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, b)
}

func (a *API) UpdateBookingStatus(w http.ResponseWriter, r *http.Request) {
	var req bookingStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), httpx.DecodeStatus(err))
		return
	}
	b, err := a.Marketplace.UpdateBookingStatus(r.Context(), userID(r), r.PathValue("id"), req.Status)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, b)
}

func (a *API) BookingQRCode(w http.ResponseWriter, r *http.Request) {
	b, err := a.Marketplace.Booking(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	png, err := reports.BookingQRCode(b)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	_, _ = w.Write(png)
}

func (a *API) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := a.Marketplace.Dashboard(r.Context(), userID(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, d)
}

func (a *API) AdminStats(w http.ResponseWriter, r *http.Request) {
	st, err := a.Marketplace.AdminStats(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, st)
}

func (a *API) ExportBookings(w http.ResponseWriter, r *http.Request) {
	rows, err := a.Marketplace.BookingRows(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	data, err := reports.ExportBookings(rows)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	name := fmt.Sprintf("allowork-reservations-%s.xlsx", time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", reports.XLSXContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}
