package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/septivank/biometric-pipeline/internal/biometric"
	"github.com/septivank/biometric-pipeline/internal/config"
	"github.com/septivank/biometric-pipeline/internal/db"
	"github.com/septivank/biometric-pipeline/internal/logging"
	"github.com/septivank/biometric-pipeline/internal/mq"
	"github.com/septivank/biometric-pipeline/internal/orchestrator"
	"github.com/septivank/biometric-pipeline/internal/repository"
)

// IngestMessage is the envelope raw readings arrive in over the queue.
type IngestMessage struct {
	RequestID  string               `json:"request_id"`
	UserID     string               `json:"user_id"`
	DeviceID   string               `json:"device_id"`
	ReceivedAt time.Time            `json:"received_at"`
	Readings   []*biometric.Reading `json:"readings"`
}

// IngestService drives queued readings through the orchestrator pipeline,
// persists accepted ones and publishes events after commit.
type IngestService struct {
	orch      *orchestrator.Orchestrator
	repo      *repository.Repository // optional
	publisher *mq.Publisher          // optional
	cfg       *config.Config
	logger    *zap.Logger
}

// NewIngestService creates the ingest service. Repository and publisher may
// be nil when persistence or MQ output is disabled.
func NewIngestService(
	orch *orchestrator.Orchestrator,
	repo *repository.Repository,
	publisher *mq.Publisher,
	cfg *config.Config,
	logger *zap.Logger,
) *IngestService {
	return &IngestService{
		orch:      orch,
		repo:      repo,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
	}
}

// ProcessMessage handles one ingest envelope. An unparseable envelope is a
// hard failure (dead-lettered by the consumer); per-reading rejections are
// handled inside the pipeline and never fail the message.
func (s *IngestService) ProcessMessage(ctx context.Context, body []byte) error {
	var msg IngestMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal ingest message: %w",
			&biometric.ValidationError{Errors: []string{err.Error()}})
	}
	if msg.UserID == "" {
		return &biometric.ValidationError{Errors: []string{"ingest message missing user_id"}}
	}

	reqLogger := logging.WithRequestID(s.logger, msg.RequestID)
	reqLogger.Info("processing ingest message",
		zap.String("user_id", msg.UserID),
		zap.Int("reading_count", len(msg.Readings)),
	)

	accepted, err := s.orch.IngestReadings(ctx, msg.UserID, msg.Readings)
	if err != nil {
		reqLogger.Error("pipeline failed for ingest message", zap.Error(err))
		return fmt.Errorf("pipeline failed: %w", err)
	}

	if s.repo != nil && len(accepted) > 0 {
		if err := s.persist(ctx, &msg, accepted); err != nil {
			reqLogger.Error("failed to persist accepted readings", zap.Error(err))
			return err
		}
	}

	// Publish events only after persistence succeeded.
	if s.publisher != nil {
		for _, r := range accepted {
			if err := s.publisher.PublishReadingAccepted(ctx, r, s.cfg.RabbitMQ.ReadingRoutingKey); err != nil {
				// Log but do not fail the message: the reading is already stored.
				reqLogger.Error("failed to publish accepted reading",
					zap.Error(err),
					zap.String("reading_id", r.ID),
				)
			}
		}
	}

	reqLogger.Info("ingest message processed",
		zap.Int("accepted", len(accepted)),
		zap.Int("rejected", len(msg.Readings)-len(accepted)),
	)
	return nil
}

func (s *IngestService) persist(ctx context.Context, msg *IngestMessage, accepted []*biometric.Reading) error {
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	receivedAt := msg.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	for _, r := range accepted {
		stored, err := toStoredReading(r, receivedAt)
		if err != nil {
			return err
		}
		if err := s.repo.InsertReadingTx(ctx, tx, stored); err != nil {
			return fmt.Errorf("failed to insert reading %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func toStoredReading(r *biometric.Reading, receivedAt time.Time) (*db.StoredReading, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reading %s: %w", r.ID, err)
	}

	stored := &db.StoredReading{
		ReadingID:        r.ID,
		UserID:           r.UserID,
		DeviceID:         r.DeviceID,
		ReadingTimestamp: r.Timestamp,
		ReceivedAt:       receivedAt,
		ValidationStatus: "accepted",
		Payload:          payload,
	}
	if r.HeartRate != nil {
		stored.HeartRateBPM = &r.HeartRate.BPM
	}
	if r.Stress != nil {
		stored.StressLevel = &r.Stress.Level
	}
	if r.Activity != nil {
		stored.ActivityIntensity = &r.Activity.Intensity
	}
	return stored, nil
}

// PublishAlert forwards a wellness alert to the events exchange. Wired as
// the orchestrator's alert publisher when MQ output is enabled.
func (s *IngestService) PublishAlert(ctx context.Context, alert *biometric.Alert) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishAlert(ctx, alert, s.cfg.RabbitMQ.AlertRoutingKey); err != nil {
		s.logger.Error("failed to publish wellness alert",
			zap.Error(err),
			zap.String("user_id", alert.UserID),
		)
	}
}
