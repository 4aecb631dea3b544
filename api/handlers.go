/*
handlers.go - HTTP API handlers for the alimony tracker

PURPOSE:
  Exposes accounts, children and payments via a REST API. Handles HTTP
  request/response, JSON serialization, ownership checks, and delegates
  validation and debt computation to the ledger package.

ENDPOINTS:
  Accounts (auth.go):
    POST   /api/register               Create an account
    POST   /api/login                  Open a session (cookie)
    POST   /api/logout                 Close the session
    POST   /api/forgot-password        Issue a reset token (logged)
    POST   /api/reset-password         Set a new password with a token

  Children:
    GET    /api/children               List the user's children
    POST   /api/children               Create a child
    GET    /api/children/{id}          Child details
    PUT    /api/children/{id}          Partial update (incl. enabled_years)
    DELETE /api/children/{id}          Delete child and its payments
    GET    /api/children/{id}/ledger   Year view + debt summary (?year=YYYY)

  Payments:
    POST   /api/payments               Record a payment
    GET    /api/payments/{child_id}    Payments of a child, by date
    PUT    /api/payments/{payment_id}  Edit a payment
    DELETE /api/payments/{payment_id}  Delete a payment

REQUEST FLOW:
  1. Session middleware resolves the user
  2. Parse HTTP request
  3. Check ownership (404 for children, 403 for payments)
  4. Validate with ledger rules
  5. Persist and serialize response

ERROR HANDLING:
  Every error is {"message": "..."} with the status:
  - 400: Validation errors, invalid input
  - 401: No valid session (adds "redirect": "index.html")
  - 403: Payment belongs to another user's child
  - 404: Resource not found or not owned
  - 409: Duplicate email
  - 500: Internal errors (details only in the log)

SEE ALSO:
  - auth.go: Account endpoints
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/warp/alimony-tracker/ledger"
	"github.com/warp/alimony-tracker/logging"
	"github.com/warp/alimony-tracker/store/sqlite"
)

// Messages returned to the web front-end.
const (
	msgUnauthorized     = "Não autorizado"
	msgInternal         = "Erro interno do servidor"
	msgBadBody          = "Erro ao processar os dados da requisição."
	msgMissingData      = "Dados em falta"
	msgChildNotFound    = "Filho não encontrado ou não autorizado"
	msgChildNotOwned    = "Filho não encontrado ou não autorizado para este utilizador"
	msgBadChildData     = "Formato de data ou valor inválido"
	msgBadDate          = "Formato de data inválido"
	msgBadAlimony       = "Formato de valor de pensão mensal inválido"
	msgBadEnabledYears  = "Formato de anos habilitados inválido. Deve ser uma lista."
	msgBadPaymentData   = "Formato de data, valor, mês ou ano inválido"
	msgBadAmount        = "Formato de valor inválido"
	msgBadMonth         = "Formato de mês de referência inválido"
	msgBadYearReference = "Formato de ano de referência inválido"
	msgFuturePayment    = "A data de pagamento não pode ser no futuro"
	msgPaymentNotFound  = "Pagamento não encontrado"
	msgPaymentForbidden = "Não autorizado: O pagamento não pertence ao seu filho"
	msgBadYear          = "Ano inválido"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store *sqlite.Store

	logger         *slog.Logger
	now            func() time.Time
	frontendURL    string
	sessionTTL     time.Duration
	resetTTL       time.Duration
	cookieSecure   bool
	allowedOrigins []string
	hashCost       int
	demo           bool

	// Track currently loaded scenario
	scenarioMu      sync.Mutex
	currentScenario string
}

type Option func(*Handler)

func WithLogger(l *slog.Logger) Option     { return func(h *Handler) { h.logger = l } }
func WithClock(now func() time.Time) Option { return func(h *Handler) { h.now = now } }
func WithFrontendURL(u string) Option {
	return func(h *Handler) { h.frontendURL = strings.TrimRight(u, "/") }
}
func WithSessionTTL(d time.Duration) Option { return func(h *Handler) { h.sessionTTL = d } }
func WithSecureCookies(on bool) Option      { return func(h *Handler) { h.cookieSecure = on } }
func WithAllowedOrigins(origins ...string) Option {
	return func(h *Handler) { h.allowedOrigins = origins }
}

// WithHashCost sets the bcrypt cost. Tests use bcrypt.MinCost.
func WithHashCost(cost int) Option { return func(h *Handler) { h.hashCost = cost } }

// WithDemo exposes the scenario endpoints.
func WithDemo(on bool) Option { return func(h *Handler) { h.demo = on } }

// NewHandler creates a new handler with the given store.
func NewHandler(store *sqlite.Store, opts ...Option) *Handler {
	h := &Handler{
		Store:          store,
		logger:         slog.Default(),
		now:            time.Now,
		frontendURL:    "http://127.0.0.1:5500",
		sessionTTL:     24 * time.Hour,
		resetTTL:       time.Hour,
		allowedOrigins: []string{"http://localhost:5500", "http://127.0.0.1:5500"},
		hashCost:       bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = logging.Component(h.logger, "api")
	return h
}

func (h *Handler) today() ledger.Date {
	return ledger.DateOf(h.now())
}

// =============================================================================
// CHILD ENDPOINTS
// =============================================================================

// ListChildren handles GET /api/children
func (h *Handler) ListChildren(w http.ResponseWriter, r *http.Request) {
	uid := userID(r.Context())
	children, err := h.Store.ListChildren(r.Context(), uid)
	if err != nil {
		h.internalError(w, "failed to list children", err)
		return
	}
	writeJSON(w, http.StatusOK, toChildDTOs(uid, children))
}

// GetChild handles GET /api/children/{id}
func (h *Handler) GetChild(w http.ResponseWriter, r *http.Request) {
	child, ok := h.ownedChild(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toChildDTO(userID(r.Context()), child))
}

// CreateChild handles POST /api/children
func (h *Handler) CreateChild(w http.ResponseWriter, r *http.Request) {
	var req ChildRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if isBlank(req.FullName) || isBlank(req.Gender) || isBlank(req.DateOfBirth) || req.MonthlyAlimonyValue == nil {
		writeError(w, http.StatusBadRequest, msgMissingData)
		return
	}

	child := ledger.Child{
		FullName:          strings.TrimSpace(*req.FullName),
		Gender:            strings.TrimSpace(*req.Gender),
		DateOfBirth:       strings.TrimSpace(*req.DateOfBirth),
		MonthlyObligation: *req.MonthlyAlimonyValue,
	}
	if err := child.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, msgBadChildData)
		return
	}

	if len(req.EnabledYears) == 0 {
		child.EnabledYears = ledger.DefaultEnabledYears(h.today())
	} else {
		years, ok := parseEnabledYears(req.EnabledYears)
		if !ok {
			writeError(w, http.StatusBadRequest, msgBadEnabledYears)
			return
		}
		child.EnabledYears = years
	}

	uid := userID(r.Context())
	created, err := h.Store.CreateChild(r.Context(), uid, child)
	if err != nil {
		h.internalError(w, "failed to create child", err)
		return
	}

	h.logger.Info("child created", logging.FieldUserID, uid, logging.FieldChildID, created.ID)
	writeJSON(w, http.StatusCreated, ChildResponse{
		Message: "Filho adicionado com sucesso",
		Child:   toChildDTO(uid, created),
	})
}

// UpdateChild handles PUT /api/children/{id}. Only the fields present in
// the body change; enabled_years, when present, must be a list.
func (h *Handler) UpdateChild(w http.ResponseWriter, r *http.Request) {
	child, ok := h.ownedChild(w, r)
	if !ok {
		return
	}

	var req ChildRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if req.FullName != nil && strings.TrimSpace(*req.FullName) != "" {
		child.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.Gender != nil {
		child.Gender = strings.TrimSpace(*req.Gender)
	}
	if !isBlank(req.DateOfBirth) {
		dob := strings.TrimSpace(*req.DateOfBirth)
		if _, err := ledger.ParseISODate(dob); err != nil {
			writeError(w, http.StatusBadRequest, msgBadDate)
			return
		}
		child.DateOfBirth = dob
	}
	if req.MonthlyAlimonyValue != nil {
		if req.MonthlyAlimonyValue.IsNegative() {
			writeError(w, http.StatusBadRequest, msgBadAlimony)
			return
		}
		child.MonthlyObligation = *req.MonthlyAlimonyValue
	}
	if len(req.EnabledYears) > 0 && string(req.EnabledYears) != "null" {
		years, ok := parseEnabledYears(req.EnabledYears)
		if !ok {
			writeError(w, http.StatusBadRequest, msgBadEnabledYears)
			return
		}
		child.EnabledYears = years
	}

	uid := userID(r.Context())
	if err := h.Store.UpdateChild(r.Context(), uid, child); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			writeError(w, http.StatusNotFound, msgChildNotFound)
			return
		}
		h.internalError(w, "failed to update child", err)
		return
	}

	writeJSON(w, http.StatusOK, ChildResponse{
		Message: "Filho atualizado com sucesso",
		Child:   toChildDTO(uid, child),
	})
}

// DeleteChild handles DELETE /api/children/{id}
func (h *Handler) DeleteChild(w http.ResponseWriter, r *http.Request) {
	child, ok := h.ownedChild(w, r)
	if !ok {
		return
	}
	uid := userID(r.Context())
	if err := h.Store.DeleteChild(r.Context(), uid, child.ID); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			writeError(w, http.StatusNotFound, msgChildNotFound)
			return
		}
		h.internalError(w, "failed to delete child", err)
		return
	}
	h.logger.Info("child deleted", logging.FieldUserID, uid, logging.FieldChildID, child.ID)
	writeMessage(w, http.StatusOK, "Filho excluído com sucesso")
}

// GetLedger handles GET /api/children/{id}/ledger?year=YYYY
// The year defaults to the current one. A child whose enabled years were
// never set is computed with the current year enabled.
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	child, ok := h.ownedChild(w, r)
	if !ok {
		return
	}

	today := h.today()
	year := today.Year()
	if raw := r.URL.Query().Get("year"); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil || y < 1000 || y > 9999 {
			writeError(w, http.StatusBadRequest, msgBadYear)
			return
		}
		year = y
	}

	payments, err := h.Store.ListPayments(r.Context(), child.ID)
	if err != nil {
		h.internalError(w, "failed to list payments", err)
		return
	}

	if child.EnabledYears == nil {
		child.EnabledYears = ledger.DefaultEnabledYears(today)
	}
	organized := ledger.Organize(payments)
	summary := ledger.ComputeDebt(child, organized, today)
	view := ledger.BuildYearView(child, organized, year, today)

	writeJSON(w, http.StatusOK, toLedgerDTO(view, summary, child.EnabledYears))
}

// ownedChild loads the {id} child of the session user, answering 404 when
// it does not exist or belongs to someone else.
func (h *Handler) ownedChild(w http.ResponseWriter, r *http.Request) (ledger.Child, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, msgChildNotFound)
		return ledger.Child{}, false
	}
	child, err := h.Store.GetChild(r.Context(), userID(r.Context()), ledger.ChildID(id))
	if err != nil {
		h.internalError(w, "failed to get child", err)
		return ledger.Child{}, false
	}
	if child == nil {
		writeError(w, http.StatusNotFound, msgChildNotFound)
		return ledger.Child{}, false
	}
	return *child, true
}

// parseEnabledYears accepts a JSON list of years. null yields a nil set,
// stored as NULL.
func parseEnabledYears(raw json.RawMessage) (ledger.YearSet, bool) {
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if string(raw) == "null" {
		return nil, true
	}
	if len(raw) == 0 || raw[0] != '[' {
		return nil, false
	}
	var years []int
	if err := json.Unmarshal(raw, &years); err != nil {
		return nil, false
	}
	return ledger.NewYearSet(years...), true
}

// =============================================================================
// PAYMENT ENDPOINTS
// =============================================================================

// ListPayments handles GET /api/payments/{child_id}
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, msgChildNotFound)
		return
	}
	child, err := h.Store.GetChild(r.Context(), userID(r.Context()), ledger.ChildID(id))
	if err != nil {
		h.internalError(w, "failed to get child", err)
		return
	}
	if child == nil {
		writeError(w, http.StatusNotFound, msgChildNotFound)
		return
	}

	payments, err := h.Store.ListPayments(r.Context(), child.ID)
	if err != nil {
		h.internalError(w, "failed to list payments", err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTOs(payments))
}

// CreatePayment handles POST /api/payments
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ChildID == nil || *req.ChildID == 0 || req.Amount == nil || isBlank(req.PaymentDate) {
		writeError(w, http.StatusBadRequest, msgMissingData)
		return
	}

	uid := userID(r.Context())
	child, err := h.Store.GetChild(r.Context(), uid, ledger.ChildID(*req.ChildID))
	if err != nil {
		h.internalError(w, "failed to get child", err)
		return
	}
	if child == nil {
		writeError(w, http.StatusNotFound, msgChildNotOwned)
		return
	}

	date, err := ledger.ParseISODate(strings.TrimSpace(*req.PaymentDate))
	if err != nil {
		writeError(w, http.StatusBadRequest, msgBadPaymentData)
		return
	}
	p := ledger.Payment{
		ChildID:     child.ID,
		Amount:      *req.Amount,
		PaymentDate: date,
	}
	if req.MonthReference != nil {
		p.MonthReference = *req.MonthReference
	}
	if req.YearReference != nil {
		p.YearReference = *req.YearReference
	}
	if !h.validatePayment(w, p, msgBadPaymentData) {
		return
	}

	created, err := h.Store.CreatePayment(r.Context(), p)
	if err != nil {
		h.internalError(w, "failed to create payment", err)
		return
	}

	h.logger.Info("payment created",
		logging.FieldUserID, uid,
		logging.FieldChildID, child.ID,
		"payment_id", created.ID,
		"amount", created.Amount.String(),
	)
	writeJSON(w, http.StatusCreated, PaymentResponse{
		Message: "Pagamento adicionado com sucesso",
		Payment: toPaymentDTO(created),
	})
}

// UpdatePayment handles PUT /api/payments/{payment_id}
func (h *Handler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	record, ok := h.ownedPayment(w, r)
	if !ok {
		return
	}

	p := record.Payment
	if req.Amount != nil {
		p.Amount = *req.Amount
	}
	if !isBlank(req.PaymentDate) {
		date, err := ledger.ParseISODate(strings.TrimSpace(*req.PaymentDate))
		if err != nil {
			writeError(w, http.StatusBadRequest, msgBadDate)
			return
		}
		p.PaymentDate = date
	}
	if req.MonthReference != nil {
		p.MonthReference = *req.MonthReference
	}
	if req.YearReference != nil {
		p.YearReference = *req.YearReference
	}
	if !h.validatePayment(w, p, msgBadAmount) {
		return
	}

	if err := h.Store.UpdatePayment(r.Context(), p); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			writeError(w, http.StatusNotFound, msgPaymentNotFound)
			return
		}
		h.internalError(w, "failed to update payment", err)
		return
	}

	h.logger.Info("payment updated", logging.FieldUserID, record.UserID, "payment_id", p.ID)
	writeJSON(w, http.StatusOK, PaymentResponse{
		Message: "Pagamento atualizado com sucesso",
		Payment: toPaymentDTO(p),
	})
}

// DeletePayment handles DELETE /api/payments/{payment_id}
func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	record, ok := h.ownedPayment(w, r)
	if !ok {
		return
	}
	if err := h.Store.DeletePayment(r.Context(), record.ID); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			writeError(w, http.StatusNotFound, msgPaymentNotFound)
			return
		}
		h.internalError(w, "failed to delete payment", err)
		return
	}
	h.logger.Info("payment deleted", logging.FieldUserID, record.UserID, "payment_id", record.ID)
	writeMessage(w, http.StatusOK, "Pagamento excluído com sucesso")
}

// ownedPayment loads the {id} payment: 404 when unknown, 403 when its child
// belongs to another user.
func (h *Handler) ownedPayment(w http.ResponseWriter, r *http.Request) (*sqlite.PaymentRecord, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, msgPaymentNotFound)
		return nil, false
	}
	record, err := h.Store.GetPayment(r.Context(), ledger.PaymentID(id))
	if err != nil {
		h.internalError(w, "failed to get payment", err)
		return nil, false
	}
	if record == nil {
		writeError(w, http.StatusNotFound, msgPaymentNotFound)
		return nil, false
	}
	if record.UserID != userID(r.Context()) {
		writeError(w, http.StatusForbidden, msgPaymentForbidden)
		return nil, false
	}
	return record, true
}

// validatePayment applies ledger.Payment.Validate and maps its field to a
// message. fallback covers the amount and date fields.
func (h *Handler) validatePayment(w http.ResponseWriter, p ledger.Payment, fallback string) bool {
	err := p.Validate(h.today())
	if err == nil {
		return true
	}
	var verr *ledger.ValidationError
	msg := fallback
	if errors.As(err, &verr) {
		switch {
		case verr.Field == "payment_date" && p.PaymentDate.After(h.today()):
			msg = msgFuturePayment
		case verr.Field == "month_reference":
			msg = msgBadMonth
		case verr.Field == "year_reference":
			msg = msgBadYearReference
		}
	}
	writeError(w, http.StatusBadRequest, msg)
	return false
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, MessageResponse{Message: message})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, MessageResponse{Message: message})
}

func writeUnauthorized(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, MessageResponse{Message: msgUnauthorized, Redirect: "index.html"})
}

func (h *Handler) internalError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, logging.FieldError, err)
	writeError(w, http.StatusInternalServerError, msgInternal)
}

// decodeBody reads a JSON body into dst, answering 400 on malformed input.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, msgBadBody)
		return false
	}
	return true
}

func isBlank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}
