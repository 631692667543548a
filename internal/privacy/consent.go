package privacy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/septivank/biometric-pipeline/internal/biometric"
	"github.com/septivank/biometric-pipeline/internal/config"
	"github.com/septivank/biometric-pipeline/internal/store"
)

// Manager is the privacy filter: it owns consent lookups, the audit trail,
// field-level anonymization and k-anonymous team aggregation.
type Manager struct {
	consent         store.ConsentStore
	audit           store.AuditStore
	minParticipants int
	logger          *zap.Logger
	now             func() time.Time
}

// NewManager creates the privacy manager.
func NewManager(consent store.ConsentStore, audit store.AuditStore, cfg config.PrivacyConfig, logger *zap.Logger) *Manager {
	return &Manager{
		consent:         consent,
		audit:           audit,
		minParticipants: cfg.MinParticipants,
		logger:          logger,
		now:             time.Now,
	}
}

// CheckConsentStatus returns the user's consent settings, creating the
// deny-all default on first access.
func (m *Manager) CheckConsentStatus(ctx context.Context, userID string) (*biometric.ConsentSettings, error) {
	settings, err := m.consent.GetConsent(ctx, userID)
	if err == nil {
		return settings, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to load consent for %s: %w", userID, err)
	}

	settings = biometric.DefaultConsent(userID)
	settings.UpdatedAt = m.now()
	if err := m.consent.SaveConsent(ctx, settings); err != nil {
		return nil, fmt.Errorf("failed to save default consent for %s: %w", userID, err)
	}
	return settings, nil
}

// UpdateConsentSettings validates and stores new consent settings and records
// the change in the audit log.
func (m *Manager) UpdateConsentSettings(ctx context.Context, settings *biometric.ConsentSettings) error {
	if !biometric.ValidSharingLevel(settings.SharingLevel) {
		return &biometric.ServiceError{
			Code:    biometric.CodeConsentInvalid,
			Message: fmt.Sprintf("invalid sharing level %q", settings.SharingLevel),
			UserID:  settings.UserID,
		}
	}
	if settings.RetentionDays < biometric.MinRetentionDays || settings.RetentionDays > biometric.MaxRetentionDays {
		return &biometric.ServiceError{
			Code: biometric.CodeConsentInvalid,
			Message: fmt.Sprintf("retention period %d outside [%d, %d] days",
				settings.RetentionDays, biometric.MinRetentionDays, biometric.MaxRetentionDays),
			UserID: settings.UserID,
		}
	}

	settings.UpdatedAt = m.now()
	if err := m.consent.SaveConsent(ctx, settings); err != nil {
		return fmt.Errorf("failed to save consent for %s: %w", settings.UserID, err)
	}

	m.recordAudit(ctx, settings.UserID, "consent_updated", "", true)
	return nil
}

// GetAuditLog returns audit entries, optionally filtered by user and time
// range. An empty userID returns all users.
func (m *Manager) GetAuditLog(ctx context.Context, userID string, start, end *time.Time) ([]*biometric.AuditEntry, error) {
	entries, err := m.audit.ListAudit(ctx, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return entries, nil
}

// ComplianceReport summarises consent coverage and logged violations.
type ComplianceReport struct {
	TeamID         string                     `json:"team_id"`
	GeneratedAt    time.Time                  `json:"generated_at"`
	TotalUsers     int                        `json:"total_users"`
	ConsentedUsers map[biometric.DataType]int `json:"consented_users"`
	ViolationCount int                        `json:"violation_count"`
}

// GenerateComplianceReport counts consented users per data type and the total
// number of logged privacy violations.
func (m *Manager) GenerateComplianceReport(ctx context.Context, teamID string) (*ComplianceReport, error) {
	consents, err := m.consent.ListConsents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list consents: %w", err)
	}

	report := &ComplianceReport{
		TeamID:         teamID,
		GeneratedAt:    m.now(),
		TotalUsers:     len(consents),
		ConsentedUsers: make(map[biometric.DataType]int, len(biometric.AllDataTypes)),
	}
	for _, t := range biometric.AllDataTypes {
		report.ConsentedUsers[t] = 0
	}
	for _, c := range consents {
		for _, t := range biometric.AllDataTypes {
			if c.Allows(t) {
				report.ConsentedUsers[t]++
			}
		}
	}

	entries, err := m.audit.ListAudit(ctx, "", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	for _, e := range entries {
		if e.Action == actionPrivacyViolation {
			report.ViolationCount++
		}
	}
	return report, nil
}

const (
	actionPrivacyViolation = "privacy_violation"
	actionEmergencyAccess  = "emergency_access"
)

// recordAudit appends an entry; audit failures are logged, never fatal.
func (m *Manager) recordAudit(ctx context.Context, userID, action string, dataType biometric.DataType, approved bool) {
	entry := &biometric.AuditEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Action:    action,
		DataType:  dataType,
		Timestamp: m.now(),
		Approved:  approved,
	}
	if err := m.audit.AppendAudit(ctx, entry); err != nil {
		m.logger.Error("failed to append audit entry",
			zap.Error(err),
			zap.String("user_id", userID),
			zap.String("action", action),
		)
	}
}
