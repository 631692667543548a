package privacy

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/septivank/biometric-pipeline/internal/biometric"
)

// Emergency thresholds: extreme physiological values that may bypass a
// missing consent when the user has opted into emergencyOverride.
const (
	emergencyHeartRateHigh = 180
	emergencyHeartRateLow  = 40
	emergencyStressLevel   = 90
)

// Anonymization bucket sizes per field.
const (
	bucketHeartRate     = 10
	bucketStress        = 20
	bucketSteps         = 100
	bucketCalories      = 50
	bucketSleepDuration = 30
	bucketSleepQuality  = 25
)

// ApplyPrivacySettings enforces per-user consent on a batch of readings.
// A reading carrying any sub-reading the user has not consented to is dropped
// whole (never partially released) and a privacy_violation audit entry is
// recorded per violated data type, unless the emergency override applies.
// Surviving readings are anonymized per field when the sharing level allows
// data to leave the trust boundary.
func (m *Manager) ApplyPrivacySettings(ctx context.Context, userID string, readings []*biometric.Reading) ([]*biometric.Reading, error) {
	settings, err := m.CheckConsentStatus(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]*biometric.Reading, 0, len(readings))
	for _, r := range readings {
		var violated []biometric.DataType
		for _, t := range r.DataTypes() {
			if !settings.Allows(t) {
				violated = append(violated, t)
			}
		}

		if len(violated) > 0 {
			if settings.EmergencyOverride && IsEmergencyScenario(r) {
				m.recordAudit(ctx, userID, actionEmergencyAccess, violated[0], true)
				m.logger.Warn("emergency override released unconsented reading",
					zap.String("user_id", userID),
					zap.String("reading_id", r.ID),
				)
				out = append(out, r)
				continue
			}
			for _, t := range violated {
				m.recordAudit(ctx, userID, actionPrivacyViolation, t, false)
			}
			m.logger.Debug("reading dropped for missing consent",
				zap.String("reading_id", r.ID),
				zap.Error(ErrNoConsent(userID, violated[0])),
			)
			continue
		}

		filtered := m.anonymize(r, settings)
		if filtered == nil || !filtered.HasData() {
			continue
		}
		out = append(out, filtered)
	}
	return out, nil
}

// IsEmergencyScenario reports whether the reading carries values extreme
// enough to qualify for the consent override path.
func IsEmergencyScenario(r *biometric.Reading) bool {
	if r.HeartRate != nil && (r.HeartRate.BPM > emergencyHeartRateHigh || r.HeartRate.BPM < emergencyHeartRateLow) {
		return true
	}
	if r.Stress != nil && r.Stress.Level > emergencyStressLevel {
		return true
	}
	return false
}

// anonymize returns a copy of the reading with fields coarsened to their
// bucket sizes when the sharing level releases data beyond the user, or the
// reading unchanged when sharing is disabled (nothing leaves the trust
// boundary, so precision is kept for the user's own pipeline).
func (m *Manager) anonymize(r *biometric.Reading, settings *biometric.ConsentSettings) *biometric.Reading {
	if settings.SharingLevel == biometric.SharingNone {
		return r
	}

	out := r.Clone()
	if out.HeartRate != nil {
		out.HeartRate.BPM = roundTo(out.HeartRate.BPM, bucketHeartRate)
		out.HeartRate.Variability = nil
	}
	if out.Stress != nil {
		out.Stress.Level = roundTo(out.Stress.Level, bucketStress)
	}
	if out.Activity != nil {
		if out.Activity.Steps != nil {
			s := int(roundTo(float64(*out.Activity.Steps), bucketSteps))
			out.Activity.Steps = &s
		}
		if out.Activity.Calories != nil {
			c := roundTo(*out.Activity.Calories, bucketCalories)
			out.Activity.Calories = &c
		}
		out.Activity.DistanceKM = nil
	}
	if out.Sleep != nil {
		out.Sleep.DurationMinutes = roundTo(out.Sleep.DurationMinutes, bucketSleepDuration)
		out.Sleep.Quality = roundTo(out.Sleep.Quality, bucketSleepQuality)
		out.Sleep.DeepSleepMinutes = nil
		out.Sleep.RemSleepMinutes = nil
	}
	return out
}

func roundTo(v, bucket float64) float64 {
	return math.Round(v/bucket) * bucket
}

// ErrNoConsent builds the typed privacy error for a data type.
func ErrNoConsent(userID string, t biometric.DataType) error {
	return fmt.Errorf("privacy filter: %w", &biometric.PrivacyViolationError{UserID: userID, DataType: t})
}
