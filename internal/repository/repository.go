package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/septivank/biometric-pipeline/internal/biometric"
	"github.com/septivank/biometric-pipeline/internal/db"
)

// Tx is an alias for pgx.Tx
type Tx = pgx.Tx

// Repository handles database operations
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// BeginTx starts a new transaction
func (r *Repository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// InsertReadingTx persists an accepted reading within a transaction.
func (r *Repository) InsertReadingTx(ctx context.Context, tx pgx.Tx, reading *db.StoredReading) error {
	query := `
		INSERT INTO biometric_readings (
			reading_id, user_id, device_id, reading_timestamp,
			received_at, heart_rate_bpm, stress_level, activity_intensity,
			validation_status, payload
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := tx.Exec(ctx, query,
		reading.ReadingID,
		reading.UserID,
		reading.DeviceID,
		reading.ReadingTimestamp,
		reading.ReceivedAt,
		reading.HeartRateBPM,
		reading.StressLevel,
		reading.ActivityIntensity,
		reading.ValidationStatus,
		reading.Payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert biometric reading: %w", err)
	}
	return nil
}

// RecentReadings returns the accepted readings for a user since the given
// time, oldest first. Implements the orchestrator's reading source.
func (r *Repository) RecentReadings(ctx context.Context, userID string, since time.Time) ([]*biometric.Reading, error) {
	query := `
		SELECT payload
		FROM biometric_readings
		WHERE user_id = $1 AND reading_timestamp >= $2 AND validation_status = 'accepted'
		ORDER BY reading_timestamp ASC
	`

	rows, err := r.pool.Query(ctx, query, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent readings: %w", err)
	}
	defer rows.Close()

	var readings []*biometric.Reading
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan reading payload: %w", err)
		}
		var reading biometric.Reading
		if err := json.Unmarshal(payload, &reading); err != nil {
			return nil, fmt.Errorf("failed to unmarshal reading payload: %w", err)
		}
		readings = append(readings, &reading)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return readings, nil
}

// PruneReadings removes persisted readings older than the cutoff for a user.
// Used by retention enforcement.
func (r *Repository) PruneReadings(ctx context.Context, userID string, before time.Time) (int64, error) {
	query := `
		DELETE FROM biometric_readings
		WHERE user_id = $1 AND reading_timestamp < $2
	`

	tag, err := r.pool.Exec(ctx, query, userID, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune readings: %w", err)
	}
	return tag.RowsAffected(), nil
}
