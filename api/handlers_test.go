package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/recurrence-engine/recurrence"
	"github.com/warp/recurrence-engine/schedule"
	"github.com/warp/recurrence-engine/schedule/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	driver := schedule.NewDriver(mem, mem, mem)
	handler := NewHandler(driver, mem)
	srv := httptest.NewServer(NewRouter(handler))
	t.Cleanup(srv.Close)
	return srv, mem
}

func seedRecurrence(t *testing.T, mem *store.Memory, id recurrence.RecurrenceID) {
	t.Helper()
	require.NoError(t, mem.PutRecurrence(recurrence.Recurrence{
		ID:           id,
		Title:        "Rent",
		AnchorDate:   recurrence.NewTimePoint(2025, time.January, 15),
		Active:       true,
		EndCondition: recurrence.EndCondition{Type: recurrence.EndNever},
		Rule: recurrence.RepetitionRule{
			PeriodType:    recurrence.PeriodMonthly,
			WeekendPolicy: recurrence.WeekendKeep,
		},
		Template: recurrence.TransactionTemplate{
			Description:     "Monthly rent",
			Amount:          decimal.RequireFromString("1200.00"),
			CurrencyCode:    "EUR",
			Kind:            recurrence.KindExpense,
			SourceAccountID: "acct-checking",
		},
	}))
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestRunBatchEndpoint(t *testing.T) {
	srv, mem := newTestServer(t)
	seedRecurrence(t, mem, "rec-1")

	resp, err := http.Post(srv.URL+"/api/batch/run", "application/json",
		strings.NewReader(`{"as_of": "2025-03-20"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decodeBody[BatchResultDTO](t, resp)
	assert.Equal(t, "2025-03-20", result.AsOf)
	assert.Equal(t, 3, result.Materialized)
	assert.Empty(t, result.Failures)
}

func TestRunBatchEndpoint_EmptyBodyDefaultsToToday(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/batch/run", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decodeBody[BatchResultDTO](t, resp)
	assert.Equal(t, recurrence.Today().String(), result.AsOf)
}

func TestRunBatchEndpoint_RejectsMalformedDate(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/batch/run", "application/json",
		strings.NewReader(`{"as_of": "20-03-2025"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListRecurrencesEndpoint(t *testing.T) {
	srv, mem := newTestServer(t)
	seedRecurrence(t, mem, "rec-1")
	seedRecurrence(t, mem, "rec-2")
	mem.SetWatermark("rec-1", recurrence.NewTimePoint(2025, time.February, 15))

	resp, err := http.Get(srv.URL + "/api/recurrences")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	dtos := decodeBody[[]RecurrenceDTO](t, resp)
	require.Len(t, dtos, 2)
	assert.Equal(t, "rec-1", dtos[0].ID)
	require.NotNil(t, dtos[0].Watermark)
	assert.Equal(t, "2025-02-15", *dtos[0].Watermark)
	assert.Nil(t, dtos[1].Watermark, "rec-2 has never materialized")
}

func TestGetRecurrenceEndpoint(t *testing.T) {
	srv, mem := newTestServer(t)
	seedRecurrence(t, mem, "rec-1")

	resp, err := http.Get(srv.URL + "/api/recurrences/rec-1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	dto := decodeBody[RecurrenceDTO](t, resp)
	assert.Equal(t, "rec-1", dto.ID)
	assert.Equal(t, "2025-01-15", dto.AnchorDate)
	assert.Equal(t, "monthly", dto.PeriodType)
	assert.Equal(t, "1200", dto.Amount)
}

func TestGetRecurrenceEndpoint_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/recurrences/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPreviewOccurrencesEndpoint(t *testing.T) {
	srv, mem := newTestServer(t)
	seedRecurrence(t, mem, "rec-1")

	resp, err := http.Get(srv.URL + "/api/recurrences/rec-1/occurrences?from=2025-02-01&to=2025-04-30")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	preview := decodeBody[OccurrencePreviewDTO](t, resp)
	assert.Equal(t, []string{"2025-02-15", "2025-03-15", "2025-04-15"}, preview.Occurrences)
}

func TestPreviewOccurrencesEndpoint_IsPure(t *testing.T) {
	// Previewing must not write transactions or move the watermark.
	srv, mem := newTestServer(t)
	seedRecurrence(t, mem, "rec-1")

	resp, err := http.Get(srv.URL + "/api/recurrences/rec-1/occurrences?from=2025-01-01&to=2025-06-30")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	txs, err := mem.TransactionsByRecurrence(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.Empty(t, txs)

	wm, err := mem.Latest(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.Nil(t, wm)
}

func TestPreviewOccurrencesEndpoint_RejectsBadWindow(t *testing.T) {
	srv, mem := newTestServer(t)
	seedRecurrence(t, mem, "rec-1")

	for _, query := range []string{
		"?from=2025-04-30&to=2025-02-01", // inverted
		"?to=2025-04-30",                 // missing from
		"?from=banana&to=2025-04-30",     // malformed
	} {
		resp, err := http.Get(srv.URL + "/api/recurrences/rec-1/occurrences" + query)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "query %s", query)
	}
}

func TestListTransactionsEndpoint(t *testing.T) {
	srv, mem := newTestServer(t)
	seedRecurrence(t, mem, "rec-1")

	// Materialize through the API, then list.
	resp, err := http.Post(srv.URL+"/api/batch/run", "application/json",
		strings.NewReader(`{"as_of": "2025-02-20"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/recurrences/rec-1/transactions")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	txs := decodeBody[[]TransactionDTO](t, resp)
	require.Len(t, txs, 2)
	assert.Equal(t, "2025-01-15", txs[0].OccurrenceDate)
	assert.Equal(t, "2025-02-15", txs[1].OccurrenceDate)
	assert.Equal(t, "1200", txs[0].Amount)
	assert.Equal(t, "expense", txs[0].Kind)
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
