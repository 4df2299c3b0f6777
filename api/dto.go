/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupling the internal
  domain model from the external API contract. DTOs are pure data carriers;
  validation happens in handlers.
*/
package api

import (
	"time"

	"github.com/warp/recurrence-engine/recurrence"
	"github.com/warp/recurrence-engine/schedule"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// RunBatchRequest optionally pins the batch horizon; empty means "today".
type RunBatchRequest struct {
	AsOf string `json:"as_of,omitempty"`
}

// BatchResultDTO summarizes one batch run.
type BatchResultDTO struct {
	AsOf         string            `json:"as_of"`
	Materialized int               `json:"materialized"`
	Failures     []BatchFailureDTO `json:"failures"`
}

type BatchFailureDTO struct {
	RecurrenceID string `json:"recurrence_id"`
	Error        string `json:"error"`
}

// RecurrenceDTO represents a recurrence definition in API responses.
type RecurrenceDTO struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	AnchorDate    string  `json:"anchor_date"`
	EndType       string  `json:"end_type"`
	EndDate       *string `json:"end_date,omitempty"`
	EndCount      int     `json:"end_count,omitempty"`
	Active        bool    `json:"active"`
	PeriodType    string  `json:"period_type"`
	Skip          int     `json:"skip"`
	WeekendPolicy string  `json:"weekend_policy"`
	Description   string  `json:"description"`
	Amount        string  `json:"amount"`
	Currency      string  `json:"currency"`
	Kind          string  `json:"kind"`
	Watermark     *string `json:"latest_materialized_date,omitempty"`
}

// OccurrencePreviewDTO lists upcoming occurrence dates without materializing.
type OccurrencePreviewDTO struct {
	RecurrenceID string   `json:"recurrence_id"`
	From         string   `json:"from"`
	To           string   `json:"to"`
	Occurrences  []string `json:"occurrences"`
}

// TransactionDTO represents a materialized ledger transaction.
type TransactionDTO struct {
	ID             string `json:"id"`
	RecurrenceID   string `json:"recurrence_id"`
	OccurrenceDate string `json:"occurrence_date"`
	Description    string `json:"description"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	Kind           string `json:"kind"`
	CreatedAt      string `json:"created_at"`
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// MAPPERS
// =============================================================================

func toRecurrenceDTO(rec recurrence.Recurrence, watermark *recurrence.TimePoint) RecurrenceDTO {
	dto := RecurrenceDTO{
		ID:            string(rec.ID),
		Title:         rec.Title,
		AnchorDate:    rec.AnchorDate.String(),
		EndType:       string(rec.EndCondition.Type),
		EndCount:      rec.EndCondition.Count,
		Active:        rec.Active,
		PeriodType:    string(rec.Rule.PeriodType),
		Skip:          rec.Rule.Skip,
		WeekendPolicy: string(rec.Rule.WeekendPolicy),
		Description:   rec.Template.Description,
		Amount:        rec.Template.Amount.String(),
		Currency:      rec.Template.CurrencyCode,
		Kind:          string(rec.Template.Kind),
	}
	if rec.EndCondition.Type == recurrence.EndOnDate {
		d := rec.EndCondition.Date.String()
		dto.EndDate = &d
	}
	if watermark != nil {
		w := watermark.String()
		dto.Watermark = &w
	}
	return dto
}

func toTransactionDTO(tx recurrence.MaterializedTransaction) TransactionDTO {
	return TransactionDTO{
		ID:             string(tx.ID),
		RecurrenceID:   string(tx.RecurrenceID),
		OccurrenceDate: tx.OccurrenceDate.String(),
		Description:    tx.Description,
		Amount:         tx.Amount.String(),
		Currency:       tx.CurrencyCode,
		Kind:           string(tx.Kind),
		CreatedAt:      tx.CreatedAt.Format(time.RFC3339),
	}
}

func toBatchResultDTO(asOf recurrence.TimePoint, result schedule.BatchResult) BatchResultDTO {
	dto := BatchResultDTO{
		AsOf:         asOf.String(),
		Materialized: result.Materialized,
		Failures:     []BatchFailureDTO{},
	}
	for _, f := range result.Failures {
		dto.Failures = append(dto.Failures, BatchFailureDTO{
			RecurrenceID: string(f.RecurrenceID),
			Error:        f.Err.Error(),
		})
	}
	return dto
}
