/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with contracts
	and payments demonstrating classification, cascade and edit impact, so
	the dashboard has something to show.

AVAILABLE SCENARIOS:

	exact-payment:    Installment paid exactly -> PAID
	overpayment:      150 against 100 -> OVERPAID, 50 cascades to the next installment
	underpayment:     60 against 100 -> UNDERPAID, then a linked 40 closes it
	edit-impact:      Monthly payment raised 100 -> 120 after a PAID installment
	all:              Every scenario above, one contract each

HOW SCENARIOS WORK:
 1. Drop cached schedules and reset the database
 2. Create contracts through the engine
 3. Record payments and edits through the engine, so every derived field
    comes out of the same code paths as live traffic

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "edit-impact"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, engine)
 3. Add it to 'loaders'

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler struct
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/installment-engine/installment"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "exact-payment",
		Name:        "Exact Payment",
		Description: "100 paid against a 100 installment: PAID, nothing remaining",
	},
	{
		ID:          "overpayment",
		Name:        "Overpayment Cascade",
		Description: "150 paid against a 100 installment: OVERPAID, 50 carried to the next installment",
	},
	{
		ID:          "underpayment",
		Name:        "Underpayment + Supplemental",
		Description: "60 paid against 100: UNDERPAID, then a linked 40 payment closes the shortfall",
	},
	{
		ID:          "edit-impact",
		Name:        "Contract Edit Impact",
		Description: "Monthly payment raised from 100 to 120 after installment 1 was paid",
	},
	{
		ID:          "all",
		Name:        "All Scenarios",
		Description: "One contract per scenario",
	},
}

type scenarioLoader func(ctx context.Context, e *installment.Engine) ([]installment.ContractID, error)

var loaders = map[string]scenarioLoader{
	"exact-payment": loadExactPaymentScenario,
	"overpayment":   loadOverpaymentScenario,
	"underpayment":  loadUnderpaymentScenario,
	"edit-impact":   loadEditImpactScenario,
	"all":           loadAllScenarios,
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns available demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads a demo scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	load, ok := loaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	ids, err := load(ctx, h.Engine)
	if err != nil {
		h.writeEngineError(w, "Failed to load scenario", err)
		return
	}
	h.currentScenario = req.ScenarioID
	h.logger().Info("scenario loaded", "scenario", req.ScenarioID, "contracts", len(ids))

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"scenario":  req.ScenarioID,
		"contracts": ids,
	})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// reset drops cached schedules, then all stored data. Callers hold h.mu.
func (h *Handler) reset(ctx context.Context) error {
	if h.Engine.Cache != nil {
		contracts, err := h.Engine.ListContracts(ctx)
		if err != nil {
			return err
		}
		for _, c := range contracts {
			if err := h.Engine.Cache.Invalidate(ctx, c.ID); err != nil {
				h.logger().Warn("schedule cache invalidation failed", "contract_id", c.ID, "error", err)
			}
		}
	}
	if err := h.Store.Reset(ctx); err != nil {
		return err
	}
	h.currentScenario = ""
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// demoTerms: no initial payment, so the first payment lands on installment 1.
func demoTerms(product string, monthly int64, period int) installment.ContractTerms {
	total := decimal.NewFromInt(monthly * int64(period))
	return installment.ContractTerms{
		ProductName:    product,
		OriginalPrice:  total,
		Price:          total,
		InitialPayment: decimal.Zero,
		Percentage:     decimal.Zero,
		Period:         period,
		MonthlyPayment: decimal.NewFromInt(monthly),
		TotalPrice:     total,
		StartDate:      installment.NewTimePoint(2024, time.January, 1),
	}
}

type demoPayment struct {
	amount int64
	date   installment.TimePoint
	notes  string
}

func seedContract(ctx context.Context, e *installment.Engine, id installment.ContractID, terms installment.ContractTerms, payments ...demoPayment) error {
	if _, err := e.CreateContract(ctx, id, "demo-customer", terms); err != nil {
		return fmt.Errorf("create %s: %w", id, err)
	}
	for _, p := range payments {
		if _, err := e.RecordPayment(ctx, id, decimal.NewFromInt(p.amount), p.date, p.notes); err != nil {
			return fmt.Errorf("pay %d on %s: %w", p.amount, id, err)
		}
	}
	return nil
}

func loadExactPaymentScenario(ctx context.Context, e *installment.Engine) ([]installment.ContractID, error) {
	id := installment.ContractID("demo-exact")
	err := seedContract(ctx, e, id, demoTerms("Phone", 100, 3),
		demoPayment{amount: 100, date: installment.NewTimePoint(2024, time.February, 1)},
	)
	return []installment.ContractID{id}, err
}

func loadOverpaymentScenario(ctx context.Context, e *installment.Engine) ([]installment.ContractID, error) {
	id := installment.ContractID("demo-overpayment")
	err := seedContract(ctx, e, id, demoTerms("Tablet", 100, 3),
		demoPayment{amount: 100, date: installment.NewTimePoint(2024, time.February, 1)},
		demoPayment{amount: 150, date: installment.NewTimePoint(2024, time.March, 1), notes: "paid extra"},
	)
	return []installment.ContractID{id}, err
}

func loadUnderpaymentScenario(ctx context.Context, e *installment.Engine) ([]installment.ContractID, error) {
	id := installment.ContractID("demo-underpayment")
	err := seedContract(ctx, e, id, demoTerms("Laptop", 100, 3),
		demoPayment{amount: 60, date: installment.NewTimePoint(2024, time.February, 1)},
		demoPayment{amount: 40, date: installment.NewTimePoint(2024, time.February, 15), notes: "closes shortfall"},
	)
	return []installment.ContractID{id}, err
}

func loadEditImpactScenario(ctx context.Context, e *installment.Engine) ([]installment.ContractID, error) {
	id := installment.ContractID("demo-edit")
	terms := demoTerms("Television", 100, 3)
	if err := seedContract(ctx, e, id, terms,
		demoPayment{amount: 100, date: installment.NewTimePoint(2024, time.February, 1)},
	); err != nil {
		return nil, err
	}

	edited := terms
	edited.MonthlyPayment = decimal.NewFromInt(120)
	edited.TotalPrice = decimal.NewFromInt(360)
	edited.Price = edited.TotalPrice
	if _, err := e.EditContractTerms(ctx, id, edited, "demo-admin"); err != nil {
		return nil, fmt.Errorf("edit %s: %w", id, err)
	}
	return []installment.ContractID{id}, nil
}

func loadAllScenarios(ctx context.Context, e *installment.Engine) ([]installment.ContractID, error) {
	var ids []installment.ContractID
	for _, load := range []scenarioLoader{
		loadExactPaymentScenario,
		loadOverpaymentScenario,
		loadUnderpaymentScenario,
		loadEditImpactScenario,
	} {
		loaded, err := load(ctx, e)
		if err != nil {
			return nil, err
		}
		ids = append(ids, loaded...)
	}
	return ids, nil
}
