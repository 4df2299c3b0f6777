/*
handlers.go - HTTP handlers for the scheduling engine

PURPOSE:
  The thin HTTP surface over the engine: a manual batch trigger, read-only
  recurrence listings, an occurrence preview, and the transactions already
  materialized for a recurrence. Recurrence CRUD belongs to the surrounding
  finance application, not to this service.

ENDPOINTS:
  POST /api/batch/run                          Trigger a batch run now
  GET  /api/recurrences                        List active recurrences
  GET  /api/recurrences/{id}                   One recurrence + watermark
  GET  /api/recurrences/{id}/occurrences       Preview dates in [from, to]
  GET  /api/recurrences/{id}/transactions      Materialized transactions

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - scheduler.go: Automatic batch cadence
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/warp/recurrence-engine/recurrence"
	"github.com/warp/recurrence-engine/schedule"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Recurrences schedule.RecurrenceStore
	Watermarks  schedule.WatermarkStore
	Ledger      schedule.Ledger
	Driver      *schedule.Driver
}

// NewHandler creates a handler around an assembled driver.
func NewHandler(driver *schedule.Driver, ledger schedule.Ledger) *Handler {
	return &Handler{
		Recurrences: driver.Recurrences,
		Watermarks:  driver.Watermarks,
		Ledger:      ledger,
		Driver:      driver,
	}
}

// =============================================================================
// BATCH HANDLERS
// =============================================================================

// RunBatch triggers a batch run.
// POST /api/batch/run
func (h *Handler) RunBatch(w http.ResponseWriter, r *http.Request) {
	var req RunBatchRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	asOf := recurrence.Today()
	if req.AsOf != "" {
		parsed, err := recurrence.ParseDate(req.AsOf)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of date, want YYYY-MM-DD", err)
			return
		}
		asOf = parsed
	}

	result, err := h.Driver.RunBatch(r.Context(), asOf)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Batch run failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchResultDTO(asOf, result))
}

// =============================================================================
// RECURRENCE HANDLERS
// =============================================================================

// ListRecurrences returns all active recurrences with their watermarks.
// GET /api/recurrences
func (h *Handler) ListRecurrences(w http.ResponseWriter, r *http.Request) {
	recs, err := h.Recurrences.ListActive(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list recurrences", err)
		return
	}

	dtos := make([]RecurrenceDTO, 0, len(recs))
	for _, rec := range recs {
		watermark, err := h.Watermarks.Latest(r.Context(), rec.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to read watermark", err)
			return
		}
		dtos = append(dtos, toRecurrenceDTO(rec, watermark))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetRecurrence returns one recurrence.
// GET /api/recurrences/{id}
func (h *Handler) GetRecurrence(w http.ResponseWriter, r *http.Request) {
	id := recurrence.RecurrenceID(chi.URLParam(r, "id"))

	rec, err := h.Recurrences.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, recurrence.ErrRecurrenceNotFound) {
			writeError(w, http.StatusNotFound, "Recurrence not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get recurrence", err)
		return
	}

	watermark, err := h.Watermarks.Latest(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read watermark", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecurrenceDTO(*rec, watermark))
}

// PreviewOccurrences computes the occurrence dates falling in [from, to]
// without materializing anything.
// GET /api/recurrences/{id}/occurrences?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *Handler) PreviewOccurrences(w http.ResponseWriter, r *http.Request) {
	id := recurrence.RecurrenceID(chi.URLParam(r, "id"))

	from, err := recurrence.ParseDate(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or missing 'from' date", err)
		return
	}
	to, err := recurrence.ParseDate(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or missing 'to' date", err)
		return
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "'to' must not be before 'from'", nil)
		return
	}

	rec, err := h.Recurrences.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, recurrence.ErrRecurrenceNotFound) {
			writeError(w, http.StatusNotFound, "Recurrence not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get recurrence", err)
		return
	}

	// A synthetic watermark one day before the window turns the due-batch
	// computation into a pure preview of [from, to].
	windowStart := from.AddDays(-1)
	dates, err := recurrence.DueOccurrences(*rec, &windowStart, to)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Cannot compute occurrences", err)
		return
	}

	preview := OccurrencePreviewDTO{
		RecurrenceID: string(id),
		From:         from.String(),
		To:           to.String(),
		Occurrences:  make([]string, 0, len(dates)),
	}
	for _, d := range dates {
		preview.Occurrences = append(preview.Occurrences, d.String())
	}
	writeJSON(w, http.StatusOK, preview)
}

// ListTransactions returns the transactions materialized for a recurrence.
// GET /api/recurrences/{id}/transactions
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	id := recurrence.RecurrenceID(chi.URLParam(r, "id"))

	if _, err := h.Recurrences.Get(r.Context(), id); err != nil {
		if errors.Is(err, recurrence.ErrRecurrenceNotFound) {
			writeError(w, http.StatusNotFound, "Recurrence not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get recurrence", err)
		return
	}

	txs, err := h.Ledger.TransactionsByRecurrence(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load transactions", err)
		return
	}

	dtos := make([]TransactionDTO, 0, len(txs))
	for _, tx := range txs {
		dtos = append(dtos, toTransactionDTO(tx))
	}
	writeJSON(w, http.StatusOK, dtos)
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
