package orchestrator_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/septivank/biometric-pipeline/internal/biometric"
	"github.com/septivank/biometric-pipeline/internal/device"
)

// fakeSource serves canned persisted readings keyed by user.
type fakeSource struct {
	readings map[string][]*biometric.Reading
}

func (f *fakeSource) RecentReadings(ctx context.Context, userID string, since time.Time) ([]*biometric.Reading, error) {
	return f.readings[userID], nil
}

func stressReading(id, userID string, level float64) *biometric.Reading {
	r := pipelineReading(id, userID, 72)
	r.Stress = &biometric.StressData{Level: level, Confidence: 0.9}
	return r
}

func TestCalculateStressLevel(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t, &fakeAdapter{})
	ctx := context.Background()
	if _, err := orch.ConnectDevice(ctx, "user-1", "fitbit", device.Credentials{AccessToken: "tok"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	orch.SetReadingSource(&fakeSource{readings: map[string][]*biometric.Reading{
		"user-1": {
			stressReading("r1", "user-1", 40),
			stressReading("r2", "user-1", 60),
		},
	}})

	report, err := orch.CalculateStressLevel(ctx, "user-1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if report.Level != 50 {
		t.Errorf("Expected mean stress 50, got %f", report.Level)
	}
	if report.Baseline != 30 {
		t.Errorf("Expected default baseline 30, got %f", report.Baseline)
	}
	if report.Deviation != 20 {
		t.Errorf("Expected deviation 20, got %f", report.Deviation)
	}
	if report.SampleCount != 2 {
		t.Errorf("Expected 2 samples, got %d", report.SampleCount)
	}
}

func TestCalculateStressLevel_RequiresProfile(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t, nil)

	_, err := orch.CalculateStressLevel(context.Background(), "nobody")
	var svcErr *biometric.ServiceError
	if !errors.As(err, &svcErr) || svcErr.Code != biometric.CodeProfileNotFound {
		t.Fatalf("Expected profile-not-found error, got %v", err)
	}
}

func TestDetectFatigue(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t, &fakeAdapter{})
	ctx := context.Background()
	if _, err := orch.ConnectDevice(ctx, "user-1", "fitbit", device.Credentials{AccessToken: "tok"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	high := stressReading("r1", "user-1", 90)
	high.HeartRate.BPM = 170
	orch.SetReadingSource(&fakeSource{readings: map[string][]*biometric.Reading{
		"user-1": {high},
	}})

	report, err := orch.DetectFatigue(ctx, "user-1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	// 0.5*90 + clamp((170-60)/120*50, 0, 50) = 45 + 45.83
	if !report.Fatigued {
		t.Errorf("Expected fatigue detected at score %f", report.Score)
	}
	if math.Abs(report.Score-90.83) > 0.1 {
		t.Errorf("Expected score near 90.83, got %f", report.Score)
	}
}

func TestAssessWellnessScore_NoData(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t, &fakeAdapter{})
	ctx := context.Background()
	if _, err := orch.ConnectDevice(ctx, "user-1", "fitbit", device.Credentials{AccessToken: "tok"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	orch.SetReadingSource(&fakeSource{readings: map[string][]*biometric.Reading{}})

	report, err := orch.AssessWellnessScore(ctx, "user-1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if report.Score != 50 {
		t.Errorf("Expected neutral score 50 with no data, got %f", report.Score)
	}
	if report.SampleCount != 0 {
		t.Errorf("Expected 0 samples, got %d", report.SampleCount)
	}
}

func TestAnalyzeHeartRateVariability_PrefersDeviceSamples(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t, &fakeAdapter{})
	ctx := context.Background()
	if _, err := orch.ConnectDevice(ctx, "user-1", "fitbit", device.Credentials{AccessToken: "tok"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	v1, v2 := 55.0, 65.0
	r1 := pipelineReading("r1", "user-1", 70)
	r1.HeartRate.Variability = &v1
	r2 := pipelineReading("r2", "user-1", 72)
	r2.HeartRate.Variability = &v2
	orch.SetReadingSource(&fakeSource{readings: map[string][]*biometric.Reading{
		"user-1": {r1, r2},
	}})

	report, err := orch.AnalyzeHeartRateVariability(ctx, "user-1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if report.RMSSD != 60 {
		t.Errorf("Expected RMSSD 60 from device samples, got %f", report.RMSSD)
	}
	if report.Assessment != "good recovery" {
		t.Errorf("Expected 'good recovery', got %q", report.Assessment)
	}
}

func TestAnalyzeHeartRateVariability_FallsBackToSuccessiveDiffs(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t, &fakeAdapter{})
	ctx := context.Background()
	if _, err := orch.ConnectDevice(ctx, "user-1", "fitbit", device.Credentials{AccessToken: "tok"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	orch.SetReadingSource(&fakeSource{readings: map[string][]*biometric.Reading{
		"user-1": {
			pipelineReading("r1", "user-1", 70),
			pipelineReading("r2", "user-1", 80),
			pipelineReading("r3", "user-1", 70),
		},
	}})

	report, err := orch.AnalyzeHeartRateVariability(ctx, "user-1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	// diffs 10 and -10: sqrt((100+100)/2) = 10
	if math.Abs(report.RMSSD-10) > 1e-9 {
		t.Errorf("Expected RMSSD 10 from successive diffs, got %f", report.RMSSD)
	}
}

func TestTeamAggregates_RespectsConsentAndFloor(t *testing.T) {
	orch, stores, _ := newTestOrchestrator(t, &fakeAdapter{})
	ctx := context.Background()

	window := time.Now().Truncate(time.Hour)
	source := &fakeSource{readings: map[string][]*biometric.Reading{}}
	members := []string{"user-1", "user-2", "user-3"}
	for i, userID := range members {
		if _, err := orch.ConnectDevice(ctx, userID, "fitbit", device.Credentials{AccessToken: "tok"}); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		settings := biometric.DefaultConsent(userID)
		settings.DataTypes[biometric.DataTypeHeartRate] = true
		settings.SharingLevel = biometric.SharingTeam
		if err := stores.Consent.SaveConsent(ctx, settings); err != nil {
			t.Fatalf("Failed to save consent: %v", err)
		}
		r := pipelineReading("r", userID, 60+float64(i)*10)
		r.ID = r.ID + userID
		r.Timestamp = window.Add(time.Duration(i+1) * time.Minute)
		source.readings[userID] = []*biometric.Reading{r}
	}
	orch.SetReadingSource(source)

	aggs, err := orch.TeamAggregates(ctx, "team-1", members)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(aggs) != 1 {
		t.Fatalf("Expected 1 aggregate window, got %d", len(aggs))
	}
	if aggs[0].ParticipantCount != 3 {
		t.Errorf("Expected 3 participants, got %d", aggs[0].ParticipantCount)
	}
	// Heart rates 60/70/80 bucket to 60/70/80 and average to 70.
	if aggs[0].AvgHeartRate == nil || *aggs[0].AvgHeartRate != 70 {
		t.Errorf("Expected average heart rate 70, got %v", aggs[0].AvgHeartRate)
	}

	// One member withdrawing sharing pushes the window below the floor.
	withdrawn := biometric.DefaultConsent("user-3")
	withdrawn.SharingLevel = biometric.SharingNone
	if err := stores.Consent.SaveConsent(ctx, withdrawn); err != nil {
		t.Fatalf("Failed to save consent: %v", err)
	}

	aggs, err = orch.TeamAggregates(ctx, "team-1", members)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(aggs) != 0 {
		t.Errorf("Expected no aggregates below the participant floor, got %d", len(aggs))
	}
}
