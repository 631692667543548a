package privacy_test

import (
	"context"
	"errors"
	"testing"

	"github.com/septivank/biometric-pipeline/internal/biometric"
)

func TestCheckConsentStatus_CreatesDenyAllDefault(t *testing.T) {
	m, stores := testManager()
	ctx := context.Background()

	settings, err := m.CheckConsentStatus(ctx, "user-1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	for _, dt := range biometric.AllDataTypes {
		if settings.Allows(dt) {
			t.Errorf("Expected default consent to deny %s", dt)
		}
	}
	if settings.SharingLevel != biometric.SharingNone {
		t.Errorf("Expected sharing level none, got %s", settings.SharingLevel)
	}

	// The default must be persisted, not recreated per call.
	stored, err := stores.Consent.GetConsent(ctx, "user-1")
	if err != nil {
		t.Fatalf("Expected default consent persisted: %v", err)
	}
	if stored.UserID != "user-1" {
		t.Errorf("Expected stored consent for user-1, got %s", stored.UserID)
	}
}

func TestUpdateConsentSettings_RejectsInvalidSharingLevel(t *testing.T) {
	m, _ := testManager()

	settings := biometric.DefaultConsent("user-1")
	settings.SharingLevel = "everyone"

	err := m.UpdateConsentSettings(context.Background(), settings)
	var svcErr *biometric.ServiceError
	if !errors.As(err, &svcErr) || svcErr.Code != biometric.CodeConsentInvalid {
		t.Fatalf("Expected consent-invalid error, got %v", err)
	}
}

func TestUpdateConsentSettings_RejectsRetentionOutOfBounds(t *testing.T) {
	m, _ := testManager()

	for _, days := range []int{0, 3000} {
		settings := biometric.DefaultConsent("user-1")
		settings.RetentionDays = days

		err := m.UpdateConsentSettings(context.Background(), settings)
		var svcErr *biometric.ServiceError
		if !errors.As(err, &svcErr) || svcErr.Code != biometric.CodeConsentInvalid {
			t.Errorf("Expected consent-invalid error for %d days, got %v", days, err)
		}
	}
}

func TestUpdateConsentSettings_PersistsAndAudits(t *testing.T) {
	m, stores := testManager()
	ctx := context.Background()

	settings := biometric.DefaultConsent("user-1")
	settings.DataTypes[biometric.DataTypeHeartRate] = true
	settings.SharingLevel = biometric.SharingTeam

	if err := m.UpdateConsentSettings(ctx, settings); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	stored, err := stores.Consent.GetConsent(ctx, "user-1")
	if err != nil {
		t.Fatalf("Expected consent persisted: %v", err)
	}
	if !stored.Allows(biometric.DataTypeHeartRate) {
		t.Error("Expected heart rate consent persisted")
	}
	if stored.UpdatedAt.IsZero() {
		t.Error("Expected UpdatedAt stamped")
	}

	entries, _ := stores.Audit.ListAudit(ctx, "user-1", nil, nil)
	found := false
	for _, e := range entries {
		if e.Action == "consent_updated" {
			found = true
		}
	}
	if !found {
		t.Error("Expected a consent_updated audit entry")
	}
}

func TestGenerateComplianceReport(t *testing.T) {
	m, stores := testManager()
	ctx := context.Background()

	for _, userID := range []string{"user-1", "user-2"} {
		settings := biometric.DefaultConsent(userID)
		settings.DataTypes[biometric.DataTypeHeartRate] = true
		saveConsent(t, stores, settings)
	}
	settings := biometric.DefaultConsent("user-3")
	saveConsent(t, stores, settings)

	report, err := m.GenerateComplianceReport(ctx, "team-1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if report.TotalUsers != 3 {
		t.Errorf("Expected 3 users, got %d", report.TotalUsers)
	}
	if report.ConsentedUsers[biometric.DataTypeHeartRate] != 2 {
		t.Errorf("Expected 2 heart rate consents, got %d", report.ConsentedUsers[biometric.DataTypeHeartRate])
	}
	if report.ConsentedUsers[biometric.DataTypeSleep] != 0 {
		t.Errorf("Expected 0 sleep consents, got %d", report.ConsentedUsers[biometric.DataTypeSleep])
	}
}
