package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/septivank/biometric-pipeline/internal/biometric"
	"github.com/septivank/biometric-pipeline/internal/config"
	"github.com/septivank/biometric-pipeline/internal/device"
	"github.com/septivank/biometric-pipeline/internal/logging"
	"github.com/septivank/biometric-pipeline/internal/privacy"
	"github.com/septivank/biometric-pipeline/internal/store"
	"github.com/septivank/biometric-pipeline/internal/stream"
	"github.com/septivank/biometric-pipeline/internal/validation"
)

// ReadingSource provides recently persisted readings for health-metric
// queries. Optional; when absent the orchestrator collects from devices.
type ReadingSource interface {
	RecentReadings(ctx context.Context, userID string, since time.Time) ([]*biometric.Reading, error)
}

// Orchestrator owns per-user state (devices, profiles, alerts, the active
// stream) and drives readings through privacy filter, validation engine and
// real-time processor.
type Orchestrator struct {
	stores    *store.Stores
	privacy   *privacy.Manager
	validator *validation.Engine
	streams   *stream.Manager
	registry  *device.Registry
	cfg       *config.Config
	logger    *zap.Logger

	readings ReadingSource // optional
	publish  func(ctx context.Context, alert *biometric.Alert)

	userLocks sync.Map // userID -> *sync.Mutex
	now       func() time.Time
}

// New wires the orchestrator and registers itself as the stream alert sink.
func New(
	stores *store.Stores,
	priv *privacy.Manager,
	validator *validation.Engine,
	streams *stream.Manager,
	registry *device.Registry,
	cfg *config.Config,
	logger *zap.Logger,
) *Orchestrator {
	o := &Orchestrator{
		stores:    stores,
		privacy:   priv,
		validator: validator,
		streams:   streams,
		registry:  registry,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
	streams.SetAlertSink(o.handleAlert)
	return o
}

// SetReadingSource wires an optional persisted-readings source.
func (o *Orchestrator) SetReadingSource(src ReadingSource) { o.readings = src }

// SetAlertPublisher wires an optional downstream alert publisher (MQ).
func (o *Orchestrator) SetAlertPublisher(fn func(ctx context.Context, alert *biometric.Alert)) {
	o.publish = fn
}

// lockUser serializes device operations per user. Operations for different
// users run concurrently.
func (o *Orchestrator) lockUser(userID string) func() {
	v, _ := o.userLocks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (o *Orchestrator) adapterCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(o.cfg.Adapter.TimeoutSeconds)*time.Second)
}

// ConnectDevice validates credentials through the vendor adapter, registers
// the device and starts the user's stream if it is not already running.
// Connecting a second device attaches to the same stream.
func (o *Orchestrator) ConnectDevice(ctx context.Context, userID, deviceType string, creds device.Credentials) (*biometric.Device, error) {
	unlock := o.lockUser(userID)
	defer unlock()

	adapter, err := o.registry.Lookup(deviceType)
	if err != nil {
		return nil, err
	}

	actx, cancel := o.adapterCtx(ctx)
	defer cancel()

	res, err := adapter.Connect(actx, userID, creds)
	if err != nil {
		return nil, fmt.Errorf("device connect failed: %w", err)
	}
	if !res.Success {
		return nil, &biometric.ServiceError{
			Code:    biometric.CodeConnectionFailed,
			Message: fmt.Sprintf("vendor rejected connection: %s", res.Error),
			UserID:  userID,
		}
	}

	caps, err := adapter.GetCapabilities(actx, deviceType)
	if err != nil {
		o.logger.Warn("failed to fetch device capabilities, assuming all",
			zap.Error(err), zap.String("device_type", deviceType))
		caps = biometric.AllDataTypes
	}

	dev := &biometric.Device{
		DeviceID:   res.DeviceID,
		UserID:     userID,
		DeviceType: deviceType,
		Status:     biometric.StatusConnected,
		DataTypes:  caps,
		LastSync:   o.now(),
	}
	if err := o.stores.Devices.SaveDevice(ctx, dev); err != nil {
		return nil, fmt.Errorf("failed to register device: %w", err)
	}

	if err := o.ensureProfile(ctx, userID); err != nil {
		return nil, err
	}

	o.streams.Start(userID)
	o.logger.Info("device connected",
		zap.String("user_id", userID),
		zap.String("device_id", dev.DeviceID),
		zap.String("device_type", deviceType),
	)
	return dev, nil
}

// ensureProfile creates the default baseline profile on first connection.
func (o *Orchestrator) ensureProfile(ctx context.Context, userID string) error {
	_, err := o.stores.Profiles.GetProfile(ctx, userID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to load profile: %w", err)
	}

	now := o.now()
	profile := &biometric.Profile{
		UserID:           userID,
		RestingHeartRate: 60,
		MaxHeartRate:     190,
		StressBaseline:   30,
		FatigueBaseline:  30,
		SleepBaseline:    480,
		ActivityBaseline: 0.5,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := o.stores.Profiles.SaveProfile(ctx, profile); err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// DisconnectDevice removes the device registration. When the last device
// goes, the user's stream pipeline stops.
func (o *Orchestrator) DisconnectDevice(ctx context.Context, userID, deviceID string) error {
	unlock := o.lockUser(userID)
	defer unlock()

	if err := o.stores.Devices.DeleteDevice(ctx, userID, deviceID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &biometric.ServiceError{
				Code:     biometric.CodeDeviceNotFound,
				Message:  "device not registered",
				UserID:   userID,
				DeviceID: deviceID,
			}
		}
		return fmt.Errorf("failed to remove device: %w", err)
	}

	remaining, err := o.stores.Devices.ListDevices(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}
	if len(remaining) == 0 {
		o.streams.Stop(userID)
	}

	o.logger.Info("device disconnected",
		zap.String("user_id", userID),
		zap.String("device_id", deviceID),
		zap.Int("remaining_devices", len(remaining)),
	)
	return nil
}

// ListDevices returns the user's registered devices.
func (o *Orchestrator) ListDevices(ctx context.Context, userID string) ([]*biometric.Device, error) {
	return o.stores.Devices.ListDevices(ctx, userID)
}

// SyncDevice pulls readings produced since the device's last sync, runs them
// through the pipeline and feeds accepted readings into the live stream.
func (o *Orchestrator) SyncDevice(ctx context.Context, userID, deviceID string) (int, error) {
	unlock := o.lockUser(userID)
	defer unlock()

	dev, err := o.stores.Devices.GetDevice(ctx, userID, deviceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, &biometric.ServiceError{
				Code:     biometric.CodeDeviceNotFound,
				Message:  "device not registered",
				UserID:   userID,
				DeviceID: deviceID,
			}
		}
		return 0, fmt.Errorf("failed to load device: %w", err)
	}

	adapter, err := o.registry.Lookup(dev.DeviceType)
	if err != nil {
		return 0, err
	}

	actx, cancel := o.adapterCtx(ctx)
	defer cancel()

	now := o.now()
	raw, err := adapter.Collect(actx, deviceID, dev.DataTypes, device.TimeRange{Start: dev.LastSync, End: now})
	if err != nil {
		// A non-responding adapter is a failed sync: mark the device.
		dev.Status = biometric.StatusError
		if saveErr := o.stores.Devices.SaveDevice(ctx, dev); saveErr != nil {
			o.logger.Error("failed to mark device errored", zap.Error(saveErr))
		}
		return 0, fmt.Errorf("device sync failed: %w", err)
	}

	accepted, err := o.runPipeline(ctx, userID, raw)
	if err != nil {
		return 0, err
	}
	for _, r := range accepted {
		if err := o.streams.Offer(userID, r); err != nil {
			o.logger.Warn("reading not delivered to stream", zap.Error(err), zap.String("user_id", userID))
		}
	}

	dev.Status = biometric.StatusConnected
	dev.LastSync = now
	if err := o.stores.Devices.SaveDevice(ctx, dev); err != nil {
		return len(accepted), fmt.Errorf("failed to update device sync time: %w", err)
	}
	return len(accepted), nil
}

// CollectBiometricData pulls raw readings from all connected devices over the
// time range and returns only validated, privacy-compliant readings.
func (o *Orchestrator) CollectBiometricData(ctx context.Context, userID string, tr device.TimeRange) ([]*biometric.Reading, error) {
	devices, err := o.stores.Devices.ListDevices(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	var raw []*biometric.Reading
	for _, dev := range devices {
		if dev.Status != biometric.StatusConnected {
			continue
		}
		adapter, err := o.registry.Lookup(dev.DeviceType)
		if err != nil {
			o.logger.Warn("skipping device with unknown type",
				zap.String("device_id", dev.DeviceID), zap.String("device_type", dev.DeviceType))
			continue
		}

		actx, cancel := o.adapterCtx(ctx)
		readings, err := adapter.Collect(actx, dev.DeviceID, dev.DataTypes, tr)
		cancel()
		if err != nil {
			// Per-device failures degrade the batch, they do not abort it.
			o.logger.Warn("device collection failed",
				zap.Error(err), zap.String("device_id", dev.DeviceID))
			continue
		}
		raw = append(raw, readings...)
	}

	return o.runPipeline(ctx, userID, raw)
}

// runPipeline applies the privacy filter and the validation engine, in the
// configured order. Per-reading failures drop the reading and continue.
func (o *Orchestrator) runPipeline(ctx context.Context, userID string, raw []*biometric.Reading) ([]*biometric.Reading, error) {
	logger := logging.WithUserID(o.logger, userID)
	if o.cfg.Privacy.FilterFirst {
		filtered, err := o.privacy.ApplyPrivacySettings(ctx, userID, raw)
		if err != nil {
			return nil, err
		}
		return o.validateBatch(logger, filtered), nil
	}

	validated := o.validateBatch(logger, raw)
	return o.privacy.ApplyPrivacySettings(ctx, userID, validated)
}

func (o *Orchestrator) validateBatch(logger *zap.Logger, readings []*biometric.Reading) []*biometric.Reading {
	out := make([]*biometric.Reading, 0, len(readings))
	for _, r := range readings {
		res := o.validator.Validate(r)
		if !res.IsValid {
			logger.Debug("reading rejected by validation",
				zap.String("reading_id", r.ID),
				zap.Strings("errors", res.Errors),
			)
			continue
		}
		if res.Corrected != nil {
			out = append(out, res.Corrected)
			continue
		}
		out = append(out, r)
	}
	return out
}

// StreamBiometricData subscribes the caller to the user's live feed.
func (o *Orchestrator) StreamBiometricData(userID string) (<-chan stream.Event, func(), error) {
	return o.streams.Subscribe(userID)
}

// IngestReadings is the entry point for readings arriving over the message
// queue: pipeline first, then stream delivery. Returns the accepted readings.
func (o *Orchestrator) IngestReadings(ctx context.Context, userID string, raw []*biometric.Reading) ([]*biometric.Reading, error) {
	accepted, err := o.runPipeline(ctx, userID, raw)
	if err != nil {
		return nil, err
	}
	for _, r := range accepted {
		if err := o.streams.Offer(userID, r); err != nil {
			o.logger.Debug("no active stream for ingested reading", zap.String("user_id", userID))
			break
		}
	}
	return accepted, nil
}

// GetProfile loads the user's baseline profile.
func (o *Orchestrator) GetProfile(ctx context.Context, userID string) (*biometric.Profile, error) {
	profile, err := o.stores.Profiles.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &biometric.ServiceError{
				Code:    biometric.CodeProfileNotFound,
				Message: "no biometric profile for user",
				UserID:  userID,
			}
		}
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return profile, nil
}

// UpdateProfile mutates the stored baseline snapshot.
func (o *Orchestrator) UpdateProfile(ctx context.Context, profile *biometric.Profile) error {
	existing, err := o.GetProfile(ctx, profile.UserID)
	if err != nil {
		return err
	}
	profile.CreatedAt = existing.CreatedAt
	profile.UpdatedAt = o.now()
	if err := o.stores.Profiles.SaveProfile(ctx, profile); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// ListAlerts returns the user's retained wellness alerts.
func (o *Orchestrator) ListAlerts(ctx context.Context, userID string) ([]*biometric.Alert, error) {
	return o.stores.Alerts.ListAlerts(ctx, userID)
}

// AcknowledgeAlert flags an alert as seen.
func (o *Orchestrator) AcknowledgeAlert(ctx context.Context, userID, alertID string) error {
	if err := o.stores.Alerts.AcknowledgeAlert(ctx, userID, alertID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &biometric.ServiceError{
				Code:    biometric.CodeAlertNotFound,
				Message: "alert not found",
				UserID:  userID,
			}
		}
		return err
	}
	return nil
}

// ClearAlerts removes all of the user's alerts.
func (o *Orchestrator) ClearAlerts(ctx context.Context, userID string) error {
	return o.stores.Alerts.ClearAlerts(ctx, userID)
}

// handleAlert is the stream manager's alert sink: persist, then publish.
func (o *Orchestrator) handleAlert(ctx context.Context, alert *biometric.Alert) {
	if err := o.stores.Alerts.SaveAlert(ctx, alert); err != nil {
		o.logger.Error("failed to persist wellness alert",
			zap.Error(err),
			zap.String("user_id", alert.UserID),
			zap.String("type", alert.Type),
		)
	}
	if o.publish != nil {
		o.publish(ctx, alert)
	}
	o.logger.Info("wellness alert raised",
		zap.String("user_id", alert.UserID),
		zap.String("type", alert.Type),
		zap.String("severity", string(alert.Severity)),
	)
}
