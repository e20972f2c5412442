/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - Absent-vs-zero money fields (remainingAmount, excessAmount)
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Contract:
    ContractDTO, CreateContractRequest, EditTermsRequest

  Payment:
    PaymentDTO, RecordPaymentRequest, ConfirmPaymentRequest,
    RejectPaymentRequest

  Schedule:
    ScheduleDTO (wraps installment.ScheduleLine)

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

MONEY:
  Amounts are decimal strings on the wire ("120.50"). Clients may send
  numbers; decimal.Decimal accepts both.

SEE ALSO:
  - handlers.go: Uses these types
  - installment/types.go: Domain types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/installment-engine/installment"
)

// =============================================================================
// CONTRACTS
// =============================================================================

// ContractDTO represents a contract in API responses.
type ContractDTO struct {
	ID             string                    `json:"id"`
	CustomerID     string                    `json:"customerId,omitempty"`
	Terms          installment.ContractTerms `json:"terms"`
	PrepaidBalance decimal.Decimal           `json:"prepaidBalance"`
	Version        int64                     `json:"version"`
	EditCount      int                       `json:"editCount"`
	CreatedAt      string                    `json:"createdAt"`
	UpdatedAt      string                    `json:"updatedAt"`
}

// CreateContractRequest is the body of POST /api/contracts.
type CreateContractRequest struct {
	ID         string                    `json:"id,omitempty"`
	CustomerID string                    `json:"customerId,omitempty"`
	Terms      installment.ContractTerms `json:"terms"`
}

// EditTermsRequest is the body of PUT /api/contracts/{id}/terms. EditedBy is
// ignored by the preview endpoint.
type EditTermsRequest struct {
	Terms    installment.ContractTerms `json:"terms"`
	EditedBy string                    `json:"editedBy"`
}

// =============================================================================
// PAYMENTS
// =============================================================================

// PaymentDTO represents a payment record. Zero remaining/excess amounts are
// omitted.
type PaymentDTO struct {
	ID               string           `json:"id"`
	ContractID       string           `json:"contractId"`
	Seq              int64            `json:"seq"`
	Amount           decimal.Decimal  `json:"amount"`
	Date             string           `json:"date"`
	PaymentType      string           `json:"paymentType"`
	Status           string           `json:"status"`
	InstallmentIndex int              `json:"installmentIndex"`
	ExpectedAmount   decimal.Decimal  `json:"expectedAmount"`
	RemainingAmount  *decimal.Decimal `json:"remainingAmount,omitempty"`
	ExcessAmount     *decimal.Decimal `json:"excessAmount,omitempty"`
	LinkedPaymentID  string           `json:"linkedPaymentId,omitempty"`
	Notes            string           `json:"notes,omitempty"`
	ConfirmedAt      *string          `json:"confirmedAt,omitempty"`
	ConfirmedBy      string           `json:"confirmedBy,omitempty"`
	CreatedAt        string           `json:"createdAt"`
}

// RecordPaymentRequest is the body of POST /api/contracts/{id}/payments.
// Date is YYYY-MM-DD; empty means today.
type RecordPaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Date   string          `json:"date"`
	Notes  string          `json:"notes,omitempty"`
}

type ConfirmPaymentRequest struct {
	ConfirmedBy string `json:"confirmedBy"`
}

type RejectPaymentRequest struct {
	EditedBy string `json:"editedBy"`
	Reason   string `json:"reason"`
}

// =============================================================================
// SCHEDULE
// =============================================================================

// ScheduleDTO is the contract's schedule with allocation status.
type ScheduleDTO struct {
	ContractID string                     `json:"contractId"`
	Lines      []installment.ScheduleLine `json:"installments"`
	Expected   decimal.Decimal            `json:"totalExpected"`
	Allocated  decimal.Decimal            `json:"totalAllocated"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the request to load a demo scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toContractDTO(c installment.Contract) ContractDTO {
	return ContractDTO{
		ID:             string(c.ID),
		CustomerID:     c.CustomerID,
		Terms:          c.Terms,
		PrepaidBalance: c.PrepaidBalance,
		Version:        c.Version,
		EditCount:      len(c.EditHistory),
		CreatedAt:      c.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      c.UpdatedAt.Format(time.RFC3339),
	}
}

func toPaymentDTO(p installment.PaymentRecord) PaymentDTO {
	dto := PaymentDTO{
		ID:               string(p.ID),
		ContractID:       string(p.ContractID),
		Seq:              p.Seq,
		Amount:           p.Amount,
		Date:             p.Date.String(),
		PaymentType:      string(p.PaymentType),
		Status:           string(p.Status),
		InstallmentIndex: p.InstallmentIndex,
		ExpectedAmount:   p.ExpectedAmount,
		LinkedPaymentID:  string(p.LinkedPaymentID),
		Notes:            p.Notes,
		ConfirmedBy:      p.ConfirmedBy,
		CreatedAt:        p.CreatedAt.Format(time.RFC3339),
	}
	if !p.RemainingAmount.IsZero() {
		remaining := p.RemainingAmount
		dto.RemainingAmount = &remaining
	}
	if !p.ExcessAmount.IsZero() {
		excess := p.ExcessAmount
		dto.ExcessAmount = &excess
	}
	if p.ConfirmedAt != nil {
		at := p.ConfirmedAt.Format(time.RFC3339)
		dto.ConfirmedAt = &at
	}
	return dto
}

func toPaymentDTOs(payments []installment.PaymentRecord) []PaymentDTO {
	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toPaymentDTO(p)
	}
	return dtos
}

func toScheduleDTO(id installment.ContractID, lines []installment.ScheduleLine) ScheduleDTO {
	dto := ScheduleDTO{
		ContractID: string(id),
		Lines:      lines,
		Expected:   decimal.Zero,
		Allocated:  decimal.Zero,
	}
	for _, l := range lines {
		dto.Expected = dto.Expected.Add(l.ExpectedAmount)
		dto.Allocated = dto.Allocated.Add(l.AllocatedAmount)
	}
	return dto
}
