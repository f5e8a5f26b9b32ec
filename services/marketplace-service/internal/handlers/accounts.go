package handlers

import (
	"net/http"

	"github.com/allowork/allowork/libs/httpx"
	"github.com/allowork/allowork/services/marketplace-service/internal/accounts"
	"github.com/allowork/allowork/services/marketplace-service/internal/model"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) Register(w http.ResponseWriter, r *http.Request) {
	var req accounts.RegisterInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), httpx.DecodeStatus(err))
		return
	}
	sess, err := a.Accounts.Register(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, sess)
}

func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), httpx.DecodeStatus(err))
		return
	}
	if req.Email == "" || req.Password == "" {
		http.Error(w, "email and password are required", http.StatusBadRequest)
		return
	}
	sess, err := a.Accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sess)
}

func (a *API) Me(w http.ResponseWriter, r *http.Request) {
	u, err := a.Accounts.Me(r.Context(), userID(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, u)
}

func (a *API) Categories(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"categories": model.Categories})
}

func (a *API) Quartiers(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"quartiers": model.Quartiers})
}
