/*
handlers.go - HTTP API handlers for the installment reconciliation engine

PURPOSE:
  Exposes the engine to the dashboard via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to installment.Engine.

ENDPOINTS:
  Contracts:
    GET    /api/contracts                          List all contracts
    POST   /api/contracts                          Create contract
    GET    /api/contracts/{id}                     Get contract
    GET    /api/contracts/{id}/schedule            Schedule with allocation status
    GET    /api/contracts/{id}/history             Edit history, oldest first

  Payments:
    GET    /api/contracts/{id}/payments            Payment records
    POST   /api/contracts/{id}/payments            Record a payment
    POST   /api/contracts/{id}/payments/{pid}/confirm
    POST   /api/contracts/{id}/payments/{pid}/reject

  Terms:
    PUT    /api/contracts/{id}/terms               Edit terms (reclassifies payments)
    POST   /api/contracts/{id}/terms/preview       Impact of an edit, nothing written

  Scenarios:
    GET    /api/scenarios                          List demo scenarios
    POST   /api/scenarios/load                     Load a demo scenario

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input shape (body, dates)
  3. Call the engine
  4. Serialize response
  5. Map engine errors to HTTP status

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid input or invalid terms
  - 404: Contract or payment not found
  - 409: Already settled, duplicate contract, concurrency conflict
  - 500: Schedule corrupt, internal errors
  - 504: Storage timeout (nothing was written)

SECURITY NOTE:
  Currently NO authentication or authorization. The editedBy/confirmedBy
  fields are taken from the request body as-is.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/installment-engine/installment"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Resetter wipes all stored data. Both store implementations provide it.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *installment.Engine
	Store  Resetter
	Logger *slog.Logger
	Now    func() time.Time

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler around the engine.
func NewHandler(engine *installment.Engine, store Resetter) *Handler {
	return &Handler{
		Engine: engine,
		Store:  store,
		Logger: slog.Default(),
		Now:    time.Now,
	}
}

// =============================================================================
// CONTRACT HANDLERS
// =============================================================================

// ListContracts returns all contracts.
func (h *Handler) ListContracts(w http.ResponseWriter, r *http.Request) {
	contracts, err := h.Engine.ListContracts(r.Context())
	if err != nil {
		h.writeEngineError(w, "Failed to list contracts", err)
		return
	}

	dtos := make([]ContractDTO, len(contracts))
	for i, c := range contracts {
		dtos[i] = toContractDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateContract creates a new contract.
func (h *Handler) CreateContract(w http.ResponseWriter, r *http.Request) {
	var req CreateContractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	c, err := h.Engine.CreateContract(r.Context(), installment.ContractID(req.ID), req.CustomerID, req.Terms)
	if err != nil {
		h.writeEngineError(w, "Failed to create contract", err)
		return
	}
	writeJSON(w, http.StatusCreated, toContractDTO(c))
}

// GetContract returns a single contract.
func (h *Handler) GetContract(w http.ResponseWriter, r *http.Request) {
	c, err := h.Engine.Contract(r.Context(), contractID(r))
	if err != nil {
		h.writeEngineError(w, "Failed to get contract", err)
		return
	}
	writeJSON(w, http.StatusOK, toContractDTO(c))
}

// GetSchedule returns the installments with allocated amounts and status.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	id := contractID(r)
	lines, err := h.Engine.GetSchedule(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, "Failed to get schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTO(id, lines))
}

// GetHistory returns the contract's edit events.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.Engine.History(r.Context(), contractID(r))
	if err != nil {
		h.writeEngineError(w, "Failed to get edit history", err)
		return
	}
	if history == nil {
		history = []installment.ContractEditEvent{}
	}
	writeJSON(w, http.StatusOK, history)
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// ListPayments returns the contract's payments in recording order.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.Engine.Payments(r.Context(), contractID(r))
	if err != nil {
		h.writeEngineError(w, "Failed to list payments", err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTOs(payments))
}

// RecordPayment classifies and stores an incoming payment.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req RecordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	date := installment.FromTime(h.now())
	if req.Date != "" {
		parsed, err := installment.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
			return
		}
		date = parsed
	}

	rec, err := h.Engine.RecordPayment(r.Context(), contractID(r), req.Amount, date, req.Notes)
	if err != nil {
		h.writeEngineError(w, "Failed to record payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentDTO(rec))
}

// ConfirmPayment stamps a payment as confirmed.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req ConfirmPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rec, err := h.Engine.ConfirmPayment(r.Context(), contractID(r), paymentID(r), req.ConfirmedBy)
	if err != nil {
		h.writeEngineError(w, "Failed to confirm payment", err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(rec))
}

// RejectPayment takes a payment out of allocation and returns the edit event.
func (h *Handler) RejectPayment(w http.ResponseWriter, r *http.Request) {
	var req RejectPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	event, err := h.Engine.RejectPayment(r.Context(), contractID(r), paymentID(r), req.EditedBy, req.Reason)
	if err != nil {
		h.writeEngineError(w, "Failed to reject payment", err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// =============================================================================
// TERMS HANDLERS
// =============================================================================

// EditTerms replaces the contract's terms and returns the edit event.
func (h *Handler) EditTerms(w http.ResponseWriter, r *http.Request) {
	var req EditTermsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	event, err := h.Engine.EditContractTerms(r.Context(), contractID(r), req.Terms, req.EditedBy)
	if err != nil {
		h.writeEngineError(w, "Failed to edit contract terms", err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// PreviewTerms returns the impact an edit would have.
func (h *Handler) PreviewTerms(w http.ResponseWriter, r *http.Request) {
	var req EditTermsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	impact, err := h.Engine.PreviewImpact(r.Context(), contractID(r), req.Terms)
	if err != nil {
		h.writeEngineError(w, "Failed to preview impact", err)
		return
	}
	writeJSON(w, http.StatusOK, impact)
}

// =============================================================================
// HELPERS
// =============================================================================

func contractID(r *http.Request) installment.ContractID {
	return installment.ContractID(chi.URLParam(r, "id"))
}

func paymentID(r *http.Request) installment.PaymentID {
	return installment.PaymentID(chi.URLParam(r, "paymentID"))
}

func (h *Handler) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// errorStatus maps the engine's error taxonomy onto HTTP.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, installment.ErrInvalidTerms):
		return http.StatusBadRequest, "invalid_terms"
	case errors.Is(err, installment.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case installment.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, installment.ErrContractAlreadySettled):
		return http.StatusConflict, "contract_settled"
	case errors.Is(err, installment.ErrDuplicateContract):
		return http.StatusConflict, "duplicate_contract"
	case errors.Is(err, installment.ErrConcurrencyConflict):
		return http.StatusConflict, "concurrency_conflict"
	case errors.Is(err, installment.ErrStorageTimeout):
		return http.StatusGatewayTimeout, "storage_timeout"
	case errors.Is(err, installment.ErrScheduleCorrupt):
		return http.StatusInternalServerError, "schedule_corrupt"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (h *Handler) writeEngineError(w http.ResponseWriter, message string, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger().Error(message, "code", code, "error", err)
	}
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: err.Error()})
}
