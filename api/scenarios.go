/*
scenarios.go - Canned review sessions for demonstrations and tests

PURPOSE:
  Provides small, self-contained review sessions (a spreadsheet export
  plus a canonical account list) that exercise the cases reviewers meet
  in the real data. Loading one replaces the session under review; the
  record store is never touched.

AVAILABLE SCENARIOS:
  partial-match:     A spreadsheet name that only partially matches an
                     account and must be confirmed before import
  unparseable-value: A history value that falls back to a full day
  unknown-staff:     A name with no account, flagged for provisioning

HOW SCENARIOS WORK:
 1. Parse the embedded CSV export
 2. Resolve every name against the scenario's accounts
 3. Replace the handler's workbook and mapping

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "partial-match"}

ADDING NEW SCENARIOS:
 1. Add an entry to the 'scenarios' slice
 2. Give it accounts and an export in the spreadsheet layout

SEE ALSO:
  - handlers.go: Session handling
  - sheet/sheet.go: Export layout
*/
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/MagicManBen/CheckLoops/identity"
	"github.com/MagicManBen/CheckLoops/sheet"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	ScenarioDTO
	accounts []identity.Account
	export   string
}

const exportHeader = "Date,StaffName,Value,Name,Role,Entitlement," +
	"Dr Monday Hours,Dr Tuesday Hours,Dr Wednesday Hours,Dr Thursday Hours,Dr Friday Hours," +
	"Staff Monday Hours (HH:MM),Staff Tuesday Hours (HH:MM),Staff Wednesday Hours (HH:MM),Staff Thursday Hours (HH:MM),Staff Friday Hours (HH:MM)\n"

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "partial-match",
			Name:        "Partial Match",
			Description: "'Ben Howard' in the spreadsheet only partially matches 'Benjamin Howard'; his rows stay blocked until confirmed",
		},
		accounts: []identity.Account{
			{ID: "6f1c2d1e-0000-4000-8000-000000000001", DisplayName: "Benjamin Howard"},
			{ID: "6f1c2d1e-0000-4000-8000-000000000002", DisplayName: "Amy Lee"},
		},
		export: exportHeader +
			"2024-04-01,Ben Howard,1,Ben Howard,GP,44,2,2,,1,,,,,,\n" +
			"2024-04-02,Ben Howard,1,Amy Lee,Nurse,187:30:00,,,,,,07:30,07:30,,07:30,\n" +
			"2024-04-03,Amy Lee,07:30,,,,,,,,,,,,,\n",
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "unparseable-value",
			Name:        "Unparseable Value",
			Description: "A history value of 'N/A' falls back to a full 8-hour day with a warning",
		},
		accounts: []identity.Account{
			{ID: "6f1c2d1e-0000-4000-8000-000000000003", DisplayName: "Tom Donlan"},
		},
		export: exportHeader +
			"2024-01-02,Tom Donlan,N/A,Tom Donlan,Admin,150:00:00,,,,,,08:00,08:00,08:00,08:00,08:00\n" +
			"2024-01-03,Tom Donlan,04:00,,,,,,,,,,,,,\n",
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "unknown-staff",
			Name:        "Unknown Staff",
			Description: "A member of staff with no account is flagged for provisioning with a suggested e-mail",
		},
		accounts: []identity.Account{
			{ID: "6f1c2d1e-0000-4000-8000-000000000004", DisplayName: "Sam Cole"},
		},
		export: exportHeader +
			"2024-05-07,Jo O'Neill,07:30,Jo O'Neill,Reception,112:30:00,,,,,,07:30,07:30,07:30,,\n" +
			",,,Sam Cole,Health Care Assistant,150:00:00,,,,,,08:00,08:00,,,\n",
	},
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// =============================================================================
// SCENARIO HANDLERS
// =============================================================================

// ListScenarios returns every scenario.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		dtos[i] = s.ScenarioDTO
		dtos[i].Accounts = len(s.accounts)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	current := h.currentScenario
	h.mu.RUnlock()

	s, ok := findScenario(current)
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	dto := s.ScenarioDTO
	dto.Accounts = len(s.accounts)
	writeJSON(w, http.StatusOK, dto)
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	s, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown scenario", nil)
		return
	}
	if err := h.loadScenario(s); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "loaded",
		"scenario": s.ID,
	})
}

func (h *Handler) loadScenario(s scenario) error {
	wb, err := sheet.NewReader(nil).Read(strings.NewReader(s.export))
	if err != nil {
		return err
	}
	mapping := identity.NewResolver(s.accounts).Map(wb.StaffNames(), wb.HistoryNames(), h.deps.EmailDomain)

	h.mu.Lock()
	h.workbook = wb
	h.mapping = mapping
	h.currentScenario = s.ID
	h.mu.Unlock()

	h.logger.Info("api: scenario loaded", zap.String("scenario", s.ID), zap.Int("names", len(mapping.Entries())))
	return nil
}
