/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures of the review API. Domain types that are
  already serializable (mapping entries, references, statements) are
  embedded as-is; these types add summaries and request bodies.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Mapping:
    MappingResponse, ConfirmRequest

  References:
    ReferenceReportDTO, NameCountDTO

  Verification:
    VerificationDTO

  Statements:
    StatementsResponse

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/MagicManBen/CheckLoops/analyzer"
	"github.com/MagicManBen/CheckLoops/generic"
	"github.com/MagicManBen/CheckLoops/identity"
	"github.com/MagicManBen/CheckLoops/migration"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// MappingResponse lists mapping entries with a review summary.
type MappingResponse struct {
	Entries []identity.MappingEntry `json:"entries"`
	Pending int                     `json:"pending"`
	Tally   generic.Tally           `json:"tally"`
}

// ConfirmRequest binds a legacy name to a canonical account.
type ConfirmRequest struct {
	AccountID string `json:"account_id"`
}

// NameCountDTO is the per-table summary of a scan.
type NameCountDTO struct {
	Name        string `json:"name"`
	Hard        int    `json:"hard"`
	Descriptive int    `json:"descriptive"`
}

// ReferenceReportDTO is a scan report grouped for display.
type ReferenceReportDTO struct {
	FilesScanned int                                  `json:"files_scanned"`
	Files        []string                             `json:"files"`
	ByFile       map[string][]analyzer.TableReference `json:"by_file"`
	Counts       []NameCountDTO                       `json:"counts"`
	Tally        generic.Tally                        `json:"tally"`
	Errors       []string                             `json:"errors,omitempty"`
}

// VerificationDTO is the verification report.
type VerificationDTO struct {
	Pass      bool                      `json:"pass"`
	Strict    bool                      `json:"strict"`
	Residual  []analyzer.TableReference `json:"residual_references"`
	Files     []string                  `json:"files"`
	CheckedAt time.Time                 `json:"checked_at"`
	Error     string                    `json:"error,omitempty"`
}

// StatementsResponse is the emitted import plan.
type StatementsResponse struct {
	Statements []migration.Statement `json:"statements"`
	Blocked    int                   `json:"blocked"`
	Warnings   []migration.Warning   `json:"warnings"`
	Tally      generic.Tally         `json:"tally"`
}

// ScenarioDTO describes a canned review session.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Accounts    int    `json:"accounts"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse represents an error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
