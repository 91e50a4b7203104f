/*
handlers.go - HTTP API handlers for the consolidation review surface

PURPOSE:
  Exposes the read-only reports of the consolidation stages and the one
  human decision the pipeline needs: confirming which canonical account
  a legacy spreadsheet name belongs to. Confirming an identity unblocks
  its statements the next time the import plan is read.

ENDPOINTS:
  Identity mapping:
    GET    /api/mapping                   List entries (?pending=true)
    GET    /api/mapping/{name}            Get one entry
    POST   /api/mapping/{name}/confirm    Bind a name to an account id

  Source tree:
    GET    /api/references                Scan report for deprecated tables
    GET    /api/reports/verify            Verification (?fresh=true re-scans)

  Import plan:
    GET    /api/statements                Emitted statements (?blocked=only|none)
    GET    /api/statements/script         Reviewable SQL script
    POST   /api/import                    Write unblocked statements

  Scenarios:
    GET    /api/scenarios                 List canned review sessions
    POST   /api/scenarios/load            Load one

ARCHITECTURE:
  Handler holds the stage components plus the current review session
  (workbook + mapping). The session is swapped under a lock when a
  scenario is loaded; the mapping itself is safe for concurrent use.

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call the stage (scan, verify, normalize + emit, import)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Unknown legacy name or scenario
  - 503: No review session loaded / stage not configured
  - 500: Internal errors

SECURITY NOTE:
  No authentication. Run it on a trusted host only; the import endpoint
  writes with the service key.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Canned review sessions
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/MagicManBen/CheckLoops/analyzer"
	"github.com/MagicManBen/CheckLoops/generic"
	"github.com/MagicManBen/CheckLoops/identity"
	"github.com/MagicManBen/CheckLoops/migration"
	"github.com/MagicManBen/CheckLoops/sheet"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Dependencies are the stage components the handlers call into.
type Dependencies struct {
	Analyzer   *analyzer.Analyzer
	Tree       analyzer.Tree
	Deprecated []string
	Strict     bool

	Orchestrator *migration.Orchestrator
	Emitter      *migration.Emitter
	// Importer is nil when the server must not write.
	Importer *migration.Importer

	// SaveMapping persists the mapping after each confirmation.
	SaveMapping func(ctx context.Context, m *identity.Mapping) error
	EmailDomain string
	Logger      *zap.Logger
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	deps   Dependencies
	logger *zap.Logger

	mu              sync.RWMutex
	workbook        *sheet.Workbook
	mapping         *identity.Mapping
	currentScenario string

	// Last verification run by the scheduler.
	latest   *analyzer.Verification
	latestAt time.Time
}

// NewHandler creates a new handler.
func NewHandler(deps Dependencies) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{deps: deps, logger: logger}
}

// SetSession replaces the workbook and mapping under review.
func (h *Handler) SetSession(wb *sheet.Workbook, mapping *identity.Mapping) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.workbook = wb
	h.mapping = mapping
}

func (h *Handler) session() (*sheet.Workbook, *identity.Mapping) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.workbook, h.mapping
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// MAPPING HANDLERS
// =============================================================================

// ListMapping returns the mapping entries.
func (h *Handler) ListMapping(w http.ResponseWriter, r *http.Request) {
	_, mapping := h.session()
	if mapping == nil {
		writeError(w, http.StatusServiceUnavailable, "No identity mapping loaded", nil)
		return
	}
	pending := mapping.Pending()
	entries := mapping.Entries()
	if r.URL.Query().Get("pending") == "true" {
		entries = pending
	}
	if entries == nil {
		entries = []identity.MappingEntry{}
	}
	writeJSON(w, http.StatusOK, MappingResponse{
		Entries: entries,
		Pending: len(pending),
		Tally:   mapping.Tally(),
	})
}

// GetMappingEntry returns a single entry.
func (h *Handler) GetMappingEntry(w http.ResponseWriter, r *http.Request) {
	_, mapping := h.session()
	if mapping == nil {
		writeError(w, http.StatusServiceUnavailable, "No identity mapping loaded", nil)
		return
	}
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid name", err)
		return
	}
	entry, ok := mapping.Lookup(name)
	if !ok {
		writeError(w, http.StatusNotFound, "Legacy name not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// ConfirmMapping records a human decision for an ambiguous or unknown name.
func (h *Handler) ConfirmMapping(w http.ResponseWriter, r *http.Request) {
	_, mapping := h.session()
	if mapping == nil {
		writeError(w, http.StatusServiceUnavailable, "No identity mapping loaded", nil)
		return
	}
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid name", err)
		return
	}
	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	entry, err := mapping.Confirm(name, req.AccountID)
	switch {
	case errors.Is(err, identity.ErrNoAccount):
		writeError(w, http.StatusBadRequest, "account_id is required", err)
		return
	case generic.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Legacy name not found", err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Failed to confirm identity", err)
		return
	}
	h.logger.Info("api: identity confirmed", zap.String("legacy_name", name), zap.String("account_id", entry.CanonicalID))

	if h.deps.SaveMapping != nil {
		if err := h.deps.SaveMapping(r.Context(), mapping); err != nil {
			writeError(w, http.StatusInternalServerError, "Confirmed but failed to save mapping", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, entry)
}

// =============================================================================
// SOURCE TREE HANDLERS
// =============================================================================

// GetReferences scans the tree for deprecated table names.
func (h *Handler) GetReferences(w http.ResponseWriter, r *http.Request) {
	if h.deps.Analyzer == nil {
		writeError(w, http.StatusServiceUnavailable, "Analyzer not configured", nil)
		return
	}
	report, err := h.deps.Analyzer.Scan(r.Context(), h.deps.Tree, h.deps.Deprecated)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to scan tree", err)
		return
	}
	writeJSON(w, http.StatusOK, toReferenceReportDTO(report))
}

func toReferenceReportDTO(report *analyzer.Report) ReferenceReportDTO {
	dto := ReferenceReportDTO{
		FilesScanned: report.FilesScanned,
		Files:        report.Files(),
		ByFile:       report.ByFile(),
		Tally:        report.Tally,
	}
	if dto.Files == nil {
		dto.Files = []string{}
	}
	counts := report.CountByName()
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := counts[name]
		dto.Counts = append(dto.Counts, NameCountDTO{Name: name, Hard: c.Hard, Descriptive: c.Descriptive})
	}
	for _, err := range multierr.Errors(report.Err) {
		dto.Errors = append(dto.Errors, err.Error())
	}
	return dto
}

// GetVerification returns the latest verification, re-running it when
// none is cached or ?fresh=true is given.
func (h *Handler) GetVerification(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	cached, at := h.latest, h.latestAt
	h.mu.RUnlock()

	if cached == nil || r.URL.Query().Get("fresh") == "true" {
		if h.deps.Analyzer == nil {
			writeError(w, http.StatusServiceUnavailable, "Analyzer not configured", nil)
			return
		}
		v, err := h.runVerification(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to verify tree", err)
			return
		}
		cached, at = v, time.Now()
	}
	writeJSON(w, http.StatusOK, toVerificationDTO(cached, at))
}

func (h *Handler) runVerification(ctx context.Context) (*analyzer.Verification, error) {
	v, err := h.deps.Analyzer.Verify(ctx, h.deps.Tree, h.deps.Deprecated, h.deps.Strict)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.latest = v
	h.latestAt = time.Now()
	h.mu.Unlock()
	return v, nil
}

func toVerificationDTO(v *analyzer.Verification, at time.Time) VerificationDTO {
	dto := VerificationDTO{Pass: v.Pass, Strict: v.Strict, Residual: v.Residual, Files: []string{}, CheckedAt: at}
	seen := map[string]bool{}
	for _, ref := range v.Residual {
		if !seen[ref.File] {
			seen[ref.File] = true
			dto.Files = append(dto.Files, ref.File)
		}
	}
	sort.Strings(dto.Files)
	if err := v.Err(); err != nil {
		dto.Error = err.Error()
	}
	return dto
}

// =============================================================================
// IMPORT PLAN HANDLERS
// =============================================================================

// plan normalizes the current workbook and emits statements.
func (h *Handler) plan() (*migration.Normalized, []migration.Statement, bool) {
	wb, mapping := h.session()
	if wb == nil || h.deps.Orchestrator == nil || h.deps.Emitter == nil {
		return nil, nil, false
	}
	normalized := h.deps.Orchestrator.Normalize(wb, mapping)
	return normalized, h.deps.Emitter.Emit(normalized.Entities), true
}

// ListStatements returns the import plan.
func (h *Handler) ListStatements(w http.ResponseWriter, r *http.Request) {
	normalized, statements, ok := h.plan()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "No workbook loaded", nil)
		return
	}
	resp := StatementsResponse{
		Statements: []migration.Statement{},
		Warnings:   normalized.Warnings,
		Tally:      normalized.Tally,
	}
	if resp.Warnings == nil {
		resp.Warnings = []migration.Warning{}
	}
	filter := r.URL.Query().Get("blocked")
	for _, s := range statements {
		if s.Blocked {
			resp.Blocked++
		}
		if (filter == "only" && !s.Blocked) || (filter == "none" && s.Blocked) {
			continue
		}
		resp.Statements = append(resp.Statements, s)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetScript renders the import plan as SQL.
func (h *Handler) GetScript(w http.ResponseWriter, r *http.Request) {
	_, statements, ok := h.plan()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "No workbook loaded", nil)
		return
	}
	w.Header().Set("Content-Type", "application/sql; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := migration.WriteSQL(w, statements, time.Now()); err != nil {
		h.logger.Warn("api: failed to write script", zap.Error(err))
	}
}

// RunImport writes every unblocked statement.
func (h *Handler) RunImport(w http.ResponseWriter, r *http.Request) {
	if h.deps.Importer == nil {
		writeError(w, http.StatusServiceUnavailable, "Import is disabled on this server", nil)
		return
	}
	_, statements, ok := h.plan()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "No workbook loaded", nil)
		return
	}
	result := h.deps.Importer.Import(r.Context(), statements)
	status := http.StatusOK
	if !result.Tally.OK() {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, result)
}

// =============================================================================
// HELPERS
// =============================================================================

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
