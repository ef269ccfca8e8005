/**
 * @description
 * HTTP handlers for the market service. Handlers decode the request, call the
 * application services and write the JSON response; every failure goes through
 * writeError so the status code follows the error kind.
 */
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/transfa/market-service/internal/domain"
)

const maxBodyBytes = 1 << 20

// AuthAPI is the account surface used by the handlers. *app.AuthService satisfies it.
type AuthAPI interface {
	Register(ctx context.Context, req domain.CredentialsRequest) (*domain.UserCredential, error)
	Login(ctx context.Context, req domain.CredentialsRequest) (*domain.SessionToken, error)
}

// MarketAPI is the market-data surface used by the handlers. *app.PriceService satisfies it.
type MarketAPI interface {
	GetLatest(ctx context.Context, symbol string) (*domain.PriceRecord, error)
	GetHistory(ctx context.Context, symbol, start, end string) ([]domain.Bar, error)
	GetCompanyInfo(ctx context.Context, symbol string) (*domain.CompanyInfo, error)
}

// Recommender produces trading signals. *app.SignalEngine satisfies it.
type Recommender interface {
	Recommend(ctx context.Context, symbol string) (*domain.Recommendation, error)
}

// Handlers holds the application services the HTTP handlers use.
type Handlers struct {
	auth    AuthAPI
	market  MarketAPI
	signals Recommender
	logger  *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(auth AuthAPI, market MarketAPI, signals Recommender, logger *slog.Logger) *Handlers {
	return &Handlers{auth: auth, market: market, signals: signals, logger: logger}
}

type registerResponse struct {
	Message  string `json:"message"`
	Username string `json:"username"`
}

func (h *Handlers) handleRegister(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}

	user, err := h.auth.Register(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, registerResponse{Message: "user registered successfully", Username: user.Username})
}

func (h *Handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}

	session, err := h.auth.Login(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, session)
}

func (h *Handlers) handleCompanyInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.market.GetCompanyInfo(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

func (h *Handlers) handleLatestPrice(w http.ResponseWriter, r *http.Request) {
	record, err := h.market.GetLatest(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, record)
}

func (h *Handlers) handleHistorical(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	bars, err := h.market.GetHistory(r.Context(), chi.URLParam(r, "symbol"), q.Get("start"), q.Get("end"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	byDate := make(map[string]domain.Bar, len(bars))
	for _, bar := range bars {
		byDate[bar.DateKey()] = bar
	}
	h.writeJSON(w, http.StatusOK, byDate)
}

func (h *Handlers) handleInsights(w http.ResponseWriter, r *http.Request) {
	rec, err := h.signals.Recommend(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handlers) decodeCredentials(w http.ResponseWriter, r *http.Request) (domain.CredentialsRequest, bool) {
	var req domain.CredentialsRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, domain.ValidationError("invalid request body"))
		return req, false
	}
	return req, true
}

// writeJSON is a helper for writing JSON responses.
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, data, h.logger)
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, err, h.logger)
}
