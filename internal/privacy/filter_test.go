package privacy_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/septivank/biometric-pipeline/internal/biometric"
	"github.com/septivank/biometric-pipeline/internal/config"
	"github.com/septivank/biometric-pipeline/internal/privacy"
	"github.com/septivank/biometric-pipeline/internal/store"
)

func testManager() (*privacy.Manager, *store.Stores) {
	stores := store.NewMemoryStores()
	m := privacy.NewManager(stores.Consent, stores.Audit, config.PrivacyConfig{MinParticipants: 3}, zap.NewNop())
	return m, stores
}

func heartRateReading(id, userID string, bpm float64, ts time.Time) *biometric.Reading {
	return &biometric.Reading{
		ID:        id,
		UserID:    userID,
		DeviceID:  "device-1",
		Timestamp: ts,
		HeartRate: &biometric.HeartRateData{BPM: bpm, Confidence: 0.9},
		Quality:   &biometric.QualityMetrics{Accuracy: 0.95, Completeness: 1, Reliability: 0.9},
	}
}

func saveConsent(t *testing.T, stores *store.Stores, settings *biometric.ConsentSettings) {
	t.Helper()
	if err := stores.Consent.SaveConsent(context.Background(), settings); err != nil {
		t.Fatalf("Failed to save consent: %v", err)
	}
}

func TestApplyPrivacySettings_DefaultConsentDropsEverything(t *testing.T) {
	m, stores := testManager()
	ctx := context.Background()

	readings := []*biometric.Reading{
		heartRateReading("r1", "user-1", 72, time.Now()),
		heartRateReading("r2", "user-1", 75, time.Now()),
	}

	out, err := m.ApplyPrivacySettings(ctx, "user-1", readings)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("Expected all readings dropped under default consent, got %d", len(out))
	}

	entries, err := stores.Audit.ListAudit(ctx, "user-1", nil, nil)
	if err != nil {
		t.Fatalf("Failed to list audit: %v", err)
	}
	violations := 0
	for _, e := range entries {
		if e.Action == "privacy_violation" {
			violations++
		}
	}
	if violations != 2 {
		t.Errorf("Expected 2 privacy_violation audit entries, got %d", violations)
	}
}

func TestErrNoConsent(t *testing.T) {
	err := privacy.ErrNoConsent("user-1", biometric.DataTypeHeartRate)

	var pvErr *biometric.PrivacyViolationError
	if !errors.As(err, &pvErr) {
		t.Fatalf("Expected a privacy violation error, got %v", err)
	}
	if pvErr.UserID != "user-1" || pvErr.DataType != biometric.DataTypeHeartRate {
		t.Errorf("Expected user-1/heart_rate in violation, got %s/%s", pvErr.UserID, pvErr.DataType)
	}
}

func TestApplyPrivacySettings_ConsentedReadingPasses(t *testing.T) {
	m, stores := testManager()
	ctx := context.Background()

	settings := biometric.DefaultConsent("user-1")
	settings.DataTypes[biometric.DataTypeHeartRate] = true
	saveConsent(t, stores, settings)

	readings := []*biometric.Reading{heartRateReading("r1", "user-1", 72, time.Now())}
	out, err := m.ApplyPrivacySettings(ctx, "user-1", readings)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("Expected 1 reading, got %d", len(out))
	}
	// Sharing is off, so precision is kept for the user's own pipeline.
	if out[0].HeartRate.BPM != 72 {
		t.Errorf("Expected bpm 72 unchanged, got %f", out[0].HeartRate.BPM)
	}
}

func TestApplyPrivacySettings_MixedReadingDroppedWhole(t *testing.T) {
	m, stores := testManager()
	ctx := context.Background()

	settings := biometric.DefaultConsent("user-1")
	settings.DataTypes[biometric.DataTypeHeartRate] = true
	saveConsent(t, stores, settings)

	r := heartRateReading("r1", "user-1", 72, time.Now())
	r.Stress = &biometric.StressData{Level: 40, Confidence: 0.9}

	out, err := m.ApplyPrivacySettings(ctx, "user-1", []*biometric.Reading{r})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("Expected reading with an unconsented sub-reading dropped whole, got %d", len(out))
	}
}

func TestApplyPrivacySettings_EmergencyOverrideReleases(t *testing.T) {
	m, stores := testManager()
	ctx := context.Background()

	settings := biometric.DefaultConsent("user-1")
	settings.EmergencyOverride = true
	saveConsent(t, stores, settings)

	r := heartRateReading("r1", "user-1", 200, time.Now())
	out, err := m.ApplyPrivacySettings(ctx, "user-1", []*biometric.Reading{r})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("Expected emergency reading released, got %d readings", len(out))
	}

	entries, _ := stores.Audit.ListAudit(ctx, "user-1", nil, nil)
	found := false
	for _, e := range entries {
		if e.Action == "emergency_access" && e.Approved {
			found = true
		}
	}
	if !found {
		t.Error("Expected an approved emergency_access audit entry")
	}
}

func TestApplyPrivacySettings_EmergencyValuesWithoutOptIn(t *testing.T) {
	m, stores := testManager()
	ctx := context.Background()

	settings := biometric.DefaultConsent("user-1")
	settings.EmergencyOverride = false
	saveConsent(t, stores, settings)

	r := heartRateReading("r1", "user-1", 200, time.Now())
	out, err := m.ApplyPrivacySettings(ctx, "user-1", []*biometric.Reading{r})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(out) != 0 {
		t.Error("Expected emergency values dropped when the user never opted in")
	}
}

func TestApplyPrivacySettings_NormalValuesWithOverrideStillDropped(t *testing.T) {
	m, stores := testManager()
	ctx := context.Background()

	settings := biometric.DefaultConsent("user-1")
	settings.EmergencyOverride = true
	saveConsent(t, stores, settings)

	r := heartRateReading("r1", "user-1", 72, time.Now())
	out, err := m.ApplyPrivacySettings(ctx, "user-1", []*biometric.Reading{r})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(out) != 0 {
		t.Error("Expected unconsented non-emergency reading dropped despite the override opt-in")
	}
}

func TestApplyPrivacySettings_AnonymizesWhenShared(t *testing.T) {
	m, stores := testManager()
	ctx := context.Background()

	settings := biometric.DefaultConsent("user-1")
	settings.DataTypes[biometric.DataTypeHeartRate] = true
	settings.SharingLevel = biometric.SharingTeam
	saveConsent(t, stores, settings)

	variability := 42.5
	r := heartRateReading("r1", "user-1", 73, time.Now())
	r.HeartRate.Variability = &variability

	out, err := m.ApplyPrivacySettings(ctx, "user-1", []*biometric.Reading{r})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("Expected 1 reading, got %d", len(out))
	}
	if out[0].HeartRate.BPM != 70 {
		t.Errorf("Expected bpm bucketed to 70, got %f", out[0].HeartRate.BPM)
	}
	if out[0].HeartRate.Variability != nil {
		t.Error("Expected variability stripped from shared reading")
	}
	if r.HeartRate.BPM != 73 {
		t.Errorf("Expected original reading untouched, got %f", r.HeartRate.BPM)
	}
}

func TestIsEmergencyScenario(t *testing.T) {
	cases := []struct {
		name    string
		reading *biometric.Reading
		want    bool
	}{
		{"high heart rate", heartRateReading("r", "u", 190, time.Now()), true},
		{"low heart rate", heartRateReading("r", "u", 35, time.Now()), true},
		{"normal heart rate", heartRateReading("r", "u", 72, time.Now()), false},
		{"extreme stress", &biometric.Reading{Stress: &biometric.StressData{Level: 95}}, true},
		{"normal stress", &biometric.Reading{Stress: &biometric.StressData{Level: 50}}, false},
	}
	for _, tc := range cases {
		if got := privacy.IsEmergencyScenario(tc.reading); got != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}
