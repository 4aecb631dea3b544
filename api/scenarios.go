/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with a demo
	account, children and payments. Each scenario shows one situation of
	the debt computation.

AVAILABLE SCENARIOS:

	getting-started:   One child, current year enabled, no payments yet
	partial-payments:  Last year with a full month, a partial month and gaps
	multiple-children: One child fully paid, one with no enabled years

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create the demo account
 3. Create children with their enabled years
 4. Add payments (always in the past, relative to today)

USAGE VIA API (server started with -demo):

	POST /api/scenarios/load
	{"scenario_id": "partial-payments"}

USAGE AT STARTUP:

	./server -seed=partial-payments

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Child and payment endpoints
  - cmd/server/main.go: -seed and -demo flags
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/alimony-tracker/ledger"
	"github.com/warp/alimony-tracker/logging"
	"github.com/warp/alimony-tracker/store/sqlite"
)

// Demo account created by every scenario.
const (
	DemoEmail    = "demo@pensao.local"
	DemoPassword = "demo1234"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "getting-started",
		Name:        "Getting Started",
		Description: "One child with the current year enabled and no payments",
	},
	{
		ID:          "partial-payments",
		Name:        "Partial Payments",
		Description: "Last year enabled: January paid, February partial, the rest unpaid",
	},
	{
		ID:          "multiple-children",
		Name:        "Multiple Children",
		Description: "One child fully paid last year, one with no enabled years",
	},
}

// Scenarios lists the available scenario ids.
func Scenarios() []string {
	ids := make([]string, 0, len(scenarios))
	for _, s := range scenarios {
		ids = append(ids, s.ID)
	}
	return ids
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	current := h.CurrentScenario()
	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario handles POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !knownScenario(req.ScenarioID) {
		writeError(w, http.StatusBadRequest, "Cenário desconhecido")
		return
	}
	if err := h.SeedScenario(r.Context(), req.ScenarioID); err != nil {
		h.internalError(w, "failed to load scenario", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// CurrentScenario is the id of the last loaded scenario, "" when none.
func (h *Handler) CurrentScenario() string {
	h.scenarioMu.Lock()
	defer h.scenarioMu.Unlock()
	return h.currentScenario
}

// SeedScenario resets the database and loads scenario id.
func (h *Handler) SeedScenario(ctx context.Context, id string) error {
	if !knownScenario(id) {
		return fmt.Errorf("unknown scenario %q (available: %v)", id, Scenarios())
	}

	h.scenarioMu.Lock()
	defer h.scenarioMu.Unlock()

	if err := h.Store.Reset(ctx); err != nil {
		return fmt.Errorf("reset database: %w", err)
	}
	h.currentScenario = ""

	user, err := h.createDemoUser(ctx)
	if err != nil {
		return err
	}

	today := h.today()
	switch id {
	case "getting-started":
		err = h.loadGettingStartedScenario(ctx, user.ID, today)
	case "partial-payments":
		err = h.loadPartialPaymentsScenario(ctx, user.ID, today)
	case "multiple-children":
		err = h.loadMultipleChildrenScenario(ctx, user.ID, today)
	}
	if err != nil {
		return fmt.Errorf("load scenario %s: %w", id, err)
	}

	h.currentScenario = id
	h.logger.Info("scenario loaded", "scenario", id, logging.FieldUserID, user.ID, "email", DemoEmail)
	return nil
}

func knownScenario(id string) bool {
	for _, s := range scenarios {
		if s.ID == id {
			return true
		}
	}
	return false
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) createDemoUser(ctx context.Context) (sqlite.User, error) {
	hash, err := h.hashPassword(DemoPassword)
	if err != nil {
		return sqlite.User{}, err
	}
	return h.Store.CreateUser(ctx, sqlite.User{
		Name:         "Demo",
		Surname:      "Pensão",
		Email:        DemoEmail,
		PasswordHash: hash,
	})
}

func (h *Handler) loadGettingStartedScenario(ctx context.Context, userID int64, today ledger.Date) error {
	_, err := h.Store.CreateChild(ctx, userID, ledger.Child{
		FullName:          "Beatriz Demo",
		Gender:            "Feminino",
		DateOfBirth:       "2015-08-12",
		MonthlyObligation: ledger.MustParseMoney("650.00"),
		EnabledYears:      ledger.DefaultEnabledYears(today),
	})
	return err
}

// loadPartialPaymentsScenario mirrors the worked example of the debt rules:
// 500 a month, January paid in full, February 200, nothing after.
func (h *Handler) loadPartialPaymentsScenario(ctx context.Context, userID int64, today ledger.Date) error {
	year := today.Year() - 1
	child, err := h.Store.CreateChild(ctx, userID, ledger.Child{
		FullName:          "Ana Demo",
		Gender:            "Feminino",
		DateOfBirth:       "2010-05-20",
		MonthlyObligation: ledger.MustParseMoney("500.00"),
		EnabledYears:      ledger.NewYearSet(year),
	})
	if err != nil {
		return err
	}

	return h.addPayments(ctx, child.ID, year, map[time.Month]string{
		time.January:  "500.00",
		time.February: "200.00",
	})
}

func (h *Handler) loadMultipleChildrenScenario(ctx context.Context, userID int64, today ledger.Date) error {
	year := today.Year() - 1
	paid, err := h.Store.CreateChild(ctx, userID, ledger.Child{
		FullName:          "Carlos Demo",
		Gender:            "Masculino",
		DateOfBirth:       "2012-02-29",
		MonthlyObligation: ledger.MustParseMoney("300.00"),
		EnabledYears:      ledger.NewYearSet(year),
	})
	if err != nil {
		return err
	}
	months := make(map[time.Month]string, 12)
	for m := time.January; m <= time.December; m++ {
		months[m] = "300.00"
	}
	if err := h.addPayments(ctx, paid.ID, year, months); err != nil {
		return err
	}

	_, err = h.Store.CreateChild(ctx, userID, ledger.Child{
		FullName:          "Daniela Demo",
		Gender:            "Feminino",
		DateOfBirth:       "2018-11-03",
		MonthlyObligation: ledger.MustParseMoney("400.00"),
		EnabledYears:      ledger.YearSet{},
	})
	return err
}

// addPayments records one payment on the 10th of each listed month.
func (h *Handler) addPayments(ctx context.Context, childID ledger.ChildID, year int, amounts map[time.Month]string) error {
	for m := time.January; m <= time.December; m++ {
		amount, ok := amounts[m]
		if !ok {
			continue
		}
		_, err := h.Store.CreatePayment(ctx, ledger.Payment{
			ChildID:        childID,
			Amount:         ledger.MustParseMoney(amount),
			PaymentDate:    ledger.NewDate(year, m, 10),
			MonthReference: int(m),
			YearReference:  year,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
