package store

import (
	"context"
	"errors"
	"time"

	"github.com/septivank/biometric-pipeline/internal/biometric"
)

// ErrNotFound is returned when a key has no value.
var ErrNotFound = errors.New("not found")

// ProfileStore keeps per-user baseline profiles. Profiles are created on
// first device connection and updated in place, never deleted automatically.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*biometric.Profile, error)
	SaveProfile(ctx context.Context, profile *biometric.Profile) error
}

// DeviceStore keeps connected-device registrations.
type DeviceStore interface {
	SaveDevice(ctx context.Context, device *biometric.Device) error
	GetDevice(ctx context.Context, userID, deviceID string) (*biometric.Device, error)
	ListDevices(ctx context.Context, userID string) ([]*biometric.Device, error)
	DeleteDevice(ctx context.Context, userID, deviceID string) error
}

// ConsentStore keeps per-user consent settings. Updates must be atomic per
// key: concurrent readers never observe a partial write.
type ConsentStore interface {
	GetConsent(ctx context.Context, userID string) (*biometric.ConsentSettings, error)
	SaveConsent(ctx context.Context, settings *biometric.ConsentSettings) error
	ListConsents(ctx context.Context) ([]*biometric.ConsentSettings, error)
}

// AuditStore is append-only.
type AuditStore interface {
	AppendAudit(ctx context.Context, entry *biometric.AuditEntry) error
	ListAudit(ctx context.Context, userID string, start, end *time.Time) ([]*biometric.AuditEntry, error)
	PruneAudit(ctx context.Context, userID string, before time.Time) (int, error)
}

// AlertStore keeps wellness alerts until they are cleared.
type AlertStore interface {
	SaveAlert(ctx context.Context, alert *biometric.Alert) error
	ListAlerts(ctx context.Context, userID string) ([]*biometric.Alert, error)
	AcknowledgeAlert(ctx context.Context, userID, alertID string) error
	ClearAlerts(ctx context.Context, userID string) error
	PruneAlerts(ctx context.Context, userID string, before time.Time) (int, error)
}

// Stores bundles the per-concern key-value contracts behind one handle.
type Stores struct {
	Profiles ProfileStore
	Devices  DeviceStore
	Consent  ConsentStore
	Audit    AuditStore
	Alerts   AlertStore
}
