// Package journal persists one row per finished job. Rows are advisory:
// a journal failure is logged and never fails the job that produced it.
package journal

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lensworks/mediagate/internal/domain"
	"github.com/lensworks/mediagate/internal/platform/requestid"
)

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

type Entry struct {
	RecordedAt  time.Time
	BatchID     string
	JobID       string
	Operation   string
	Status      string
	FailureKind string
	Message     string
	Diagnostics string
	DurationMs  int64
	OutputBytes int64
}

type QueryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (e Entry) Validate() error {
	if e.RecordedAt.IsZero() {
		return errors.New("RecordedAt is required")
	}
	if strings.TrimSpace(e.JobID) == "" {
		return errors.New("JobID is required")
	}
	if strings.TrimSpace(e.Operation) == "" {
		return errors.New("Operation is required")
	}
	if e.Status != StatusSucceeded && e.Status != StatusFailed {
		return fmt.Errorf("Status must be %q or %q", StatusSucceeded, StatusFailed)
	}
	if e.Status == StatusFailed && strings.TrimSpace(e.FailureKind) == "" {
		return errors.New("FailureKind is required for failed entries")
	}
	return nil
}

// EntryFromOutcome maps a finished job to its journal row. Output bytes
// are only counted for successes; failures carry kind and diagnostics.
func EntryFromOutcome(recordedAt time.Time, batchID string, out domain.JobOutcome) Entry {
	entry := Entry{
		RecordedAt:  recordedAt,
		BatchID:     batchID,
		JobID:       out.JobID,
		Operation:   out.Operation,
		Status:      StatusSucceeded,
		DurationMs:  out.Elapsed.Milliseconds(),
		OutputBytes: int64(len(out.Output)),
	}
	if out.Failure != nil {
		entry.Status = StatusFailed
		entry.FailureKind = string(out.Failure.Kind)
		entry.Message = out.Failure.Message
		entry.Diagnostics = out.Failure.Diagnostics
		entry.OutputBytes = 0
	}
	return entry
}

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS job_outcomes (
		entry_id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		recorded_at TIMESTAMPTZ NOT NULL,
		batch_id TEXT,
		job_id TEXT NOT NULL,
		operation TEXT NOT NULL,
		status TEXT NOT NULL,
		failure_kind TEXT,
		message TEXT,
		diagnostics TEXT,
		duration_ms BIGINT NOT NULL,
		output_bytes BIGINT NOT NULL,
		integrity_sha256 TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("ensure job_outcomes: %w", err)
	}
	return nil
}

func Insert(ctx context.Context, q QueryRower, entry Entry) (int64, error) {
	if q == nil {
		return 0, errors.New("queryer is required")
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now().UTC()
	}
	if err := entry.Validate(); err != nil {
		return 0, err
	}

	integrity, err := ComputeIntegritySHA256(entry)
	if err != nil {
		return 0, err
	}

	var batchID sql.NullString
	if strings.TrimSpace(entry.BatchID) != "" {
		batchID = sql.NullString{String: strings.TrimSpace(entry.BatchID), Valid: true}
	}
	var failureKind sql.NullString
	if strings.TrimSpace(entry.FailureKind) != "" {
		failureKind = sql.NullString{String: strings.TrimSpace(entry.FailureKind), Valid: true}
	}
	var message sql.NullString
	if strings.TrimSpace(entry.Message) != "" {
		message = sql.NullString{String: strings.TrimSpace(entry.Message), Valid: true}
	}
	var diagnostics sql.NullString
	if strings.TrimSpace(entry.Diagnostics) != "" {
		diagnostics = sql.NullString{String: entry.Diagnostics, Valid: true}
	}

	var id int64
	err = q.QueryRowContext(
		ctx,
		`INSERT INTO job_outcomes (
			recorded_at,
			batch_id,
			job_id,
			operation,
			status,
			failure_kind,
			message,
			diagnostics,
			duration_ms,
			output_bytes,
			integrity_sha256
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING entry_id`,
		entry.RecordedAt.UTC(),
		batchID,
		strings.TrimSpace(entry.JobID),
		strings.TrimSpace(entry.Operation),
		entry.Status,
		failureKind,
		message,
		diagnostics,
		entry.DurationMs,
		entry.OutputBytes,
		integrity,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert job outcome: %w", err)
	}
	return id, nil
}

func ComputeIntegritySHA256(entry Entry) (string, error) {
	type integrityInput struct {
		RecordedAt  time.Time `json:"recorded_at"`
		BatchID     string    `json:"batch_id,omitempty"`
		JobID       string    `json:"job_id"`
		Operation   string    `json:"operation"`
		Status      string    `json:"status"`
		FailureKind string    `json:"failure_kind,omitempty"`
		Message     string    `json:"message,omitempty"`
		Diagnostics string    `json:"diagnostics,omitempty"`
		DurationMs  int64     `json:"duration_ms"`
		OutputBytes int64     `json:"output_bytes"`
	}

	in := integrityInput{
		RecordedAt:  entry.RecordedAt.UTC(),
		BatchID:     strings.TrimSpace(entry.BatchID),
		JobID:       strings.TrimSpace(entry.JobID),
		Operation:   strings.TrimSpace(entry.Operation),
		Status:      entry.Status,
		FailureKind: strings.TrimSpace(entry.FailureKind),
		Message:     strings.TrimSpace(entry.Message),
		Diagnostics: entry.Diagnostics,
		DurationMs:  entry.DurationMs,
		OutputBytes: entry.OutputBytes,
	}

	blob, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("marshal integrity: %w", err)
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}

// Writer records batch outcomes to the database. It satisfies the
// dispatch recorder contract; a nil receiver or DB records nothing.
type Writer struct {
	DB     *sql.DB
	Logger *slog.Logger
}

func (w *Writer) Record(ctx context.Context, batchID string, outcomes []domain.JobOutcome) {
	if w == nil || w.DB == nil {
		return
	}
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := time.Now().UTC()
	for _, out := range outcomes {
		entry := EntryFromOutcome(now, batchID, out)
		if _, err := Insert(ctx, w.DB, entry); err != nil {
			logger.Warn("journal write failed",
				"job_id", requestid.Short(out.JobID),
				"operation", out.Operation,
				"error", err)
		}
	}
}
