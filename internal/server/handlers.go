package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chtrembl/petstoreapp/internal/inbound"
	"github.com/chtrembl/petstoreapp/internal/metrics"
	"github.com/chtrembl/petstoreapp/internal/requestctx"
	"github.com/chtrembl/petstoreapp/internal/service"
	"github.com/chtrembl/petstoreapp/internal/session"
)

// HeaderDegraded is set on catalog responses served without downstream data.
const HeaderDegraded = "X-Degraded"

type handlers struct {
	services Services
	sessions *session.Store
}

type errorResponse struct {
	Error string `json:"error"`
}

type sessionResponse struct {
	SessionID     string `json:"session_id"`
	HTTPSessionID string `json:"http_session_id,omitempty"`
	RequestID     string `json:"request_id"`
	TraceID       string `json:"trace_id"`
	SpanID        string `json:"span_id"`
	UserName      string `json:"user_name"`
	UserEmail     string `json:"user_email,omitempty"`
	AuthType      string `json:"auth_type"`
	Authenticated bool   `json:"authenticated"`
	Sessions      int    `json:"sessions"`
}

func (h *handlers) pets(w http.ResponseWriter, r *http.Request) {
	category, ok := requiredQuery(w, r, "category")
	if !ok {
		return
	}

	pets, err := h.services.Pets.ByCategory(r.Context(), category)
	if err != nil {
		degraded(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, pets)
}

func (h *handlers) products(w http.ResponseWriter, r *http.Request) {
	category, ok := requiredQuery(w, r, "category")
	if !ok {
		return
	}

	products, err := h.services.Products.ByCategory(r.Context(), category, r.URL.Query().Get("tag"))
	if err != nil {
		degraded(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, products)
}

func (h *handlers) updateCart(w http.ResponseWriter, r *http.Request) {
	var update service.CartUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		inbound.RecordError(r.Context(), err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid cart update"})
		return
	}

	if !update.Complete && (update.ProductID <= 0 || update.Quantity == 0) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "productId and quantity are required"})
		return
	}

	order, err := h.services.Orders.Update(r.Context(), update)
	if err != nil {
		failed(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

func (h *handlers) order(w http.ResponseWriter, r *http.Request) {
	order, err := h.services.Orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		failed(w, r, err)
		return
	}

	if order == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "order not found"})
		return
	}

	writeJSON(w, http.StatusOK, order)
}

func (h *handlers) session(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestctx.FromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "no request context"})
		return
	}
	s := rc.Snapshot()

	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID:     s.SessionID,
		HTTPSessionID: s.HTTPSessionID,
		RequestID:     s.RequestID,
		TraceID:       s.TraceID,
		SpanID:        s.SpanID,
		UserName:      s.UserName,
		UserEmail:     s.UserEmail,
		AuthType:      s.AuthType,
		Authenticated: s.IsAuthenticated,
		Sessions:      h.sessions.Len(),
	})
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	report := h.services.Health.Check(r.Context())

	status := http.StatusOK
	if !report.Up() {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, report)
}

func requiredQuery(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	value := r.URL.Query().Get(name)
	if value == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: name + " is required"})
		return "", false
	}

	return value, true
}

// degraded answers a catalog request whose downstream call failed with an
// empty list.
func degraded(w http.ResponseWriter, r *http.Request, err error) {
	var domainErr *service.Error
	if !errors.As(err, &domainErr) {
		failed(w, r, err)
		return
	}

	inbound.RecordError(r.Context(), err)
	metrics.DegradedResponsesTotal.WithLabelValues(string(domainErr.Domain)).Inc()

	w.Header().Set(HeaderDegraded, fmt.Sprintf("%s; status=%d", domainErr.Domain, domainErr.Status()))
	writeJSON(w, http.StatusOK, []struct{}{})
}

func failed(w http.ResponseWriter, r *http.Request, err error) {
	inbound.RecordError(r.Context(), err)

	status := http.StatusInternalServerError
	if errors.Is(err, service.ErrNoSession) {
		status = http.StatusBadRequest
	} else if errors.As(err, new(*service.Error)) {
		status = http.StatusBadGateway
	}

	writeJSON(w, status, errorResponse{Error: http.StatusText(status)})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(body)
}
