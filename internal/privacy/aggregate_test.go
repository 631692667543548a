package privacy_test

import (
	"testing"
	"time"

	"github.com/septivank/biometric-pipeline/internal/biometric"
)

func TestAnonymizeForTeamReporting_BelowFloorDiscarded(t *testing.T) {
	m, _ := testManager()
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	readings := []*biometric.Reading{
		heartRateReading("r1", "user-1", 70, base.Add(5*time.Minute)),
		heartRateReading("r2", "user-2", 80, base.Add(10*time.Minute)),
	}

	aggs := m.AnonymizeForTeamReporting("team-1", readings)
	if len(aggs) != 0 {
		t.Errorf("Expected no aggregates for 2 participants, got %d", len(aggs))
	}
}

func TestAnonymizeForTeamReporting_AggregatesFullWindow(t *testing.T) {
	m, _ := testManager()
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	readings := []*biometric.Reading{
		heartRateReading("r1", "user-1", 60, base.Add(5*time.Minute)),
		heartRateReading("r2", "user-2", 70, base.Add(10*time.Minute)),
		heartRateReading("r3", "user-3", 80, base.Add(15*time.Minute)),
	}

	aggs := m.AnonymizeForTeamReporting("team-1", readings)
	if len(aggs) != 1 {
		t.Fatalf("Expected 1 aggregate window, got %d", len(aggs))
	}

	agg := aggs[0]
	if agg.ParticipantCount != 3 {
		t.Errorf("Expected 3 participants, got %d", agg.ParticipantCount)
	}
	if !agg.WindowStart.Equal(base) {
		t.Errorf("Expected window start %v, got %v", base, agg.WindowStart)
	}
	if agg.AvgHeartRate == nil || *agg.AvgHeartRate != 70 {
		t.Errorf("Expected average heart rate 70, got %v", agg.AvgHeartRate)
	}
	if agg.AvgStressLevel != nil {
		t.Error("Expected no stress average when no stress samples exist")
	}
	if agg.ConfidenceLow >= agg.ConfidenceHigh {
		t.Error("Expected a non-empty confidence interval")
	}
}

func TestAnonymizeForTeamReporting_WindowsIndependent(t *testing.T) {
	m, _ := testManager()
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	// First hour has 3 users, second hour only 2.
	readings := []*biometric.Reading{
		heartRateReading("r1", "user-1", 60, base.Add(5*time.Minute)),
		heartRateReading("r2", "user-2", 70, base.Add(10*time.Minute)),
		heartRateReading("r3", "user-3", 80, base.Add(15*time.Minute)),
		heartRateReading("r4", "user-1", 65, base.Add(65*time.Minute)),
		heartRateReading("r5", "user-2", 75, base.Add(70*time.Minute)),
	}

	aggs := m.AnonymizeForTeamReporting("team-1", readings)
	if len(aggs) != 1 {
		t.Fatalf("Expected only the full window to survive, got %d aggregates", len(aggs))
	}
	if !aggs[0].WindowStart.Equal(base) {
		t.Errorf("Expected surviving window at %v, got %v", base, aggs[0].WindowStart)
	}
}

func TestAnonymizeForTeamReporting_SameUserCountedOnce(t *testing.T) {
	m, _ := testManager()
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	// Many readings, but only two distinct users.
	readings := []*biometric.Reading{
		heartRateReading("r1", "user-1", 60, base.Add(1*time.Minute)),
		heartRateReading("r2", "user-1", 62, base.Add(2*time.Minute)),
		heartRateReading("r3", "user-1", 64, base.Add(3*time.Minute)),
		heartRateReading("r4", "user-2", 70, base.Add(4*time.Minute)),
	}

	aggs := m.AnonymizeForTeamReporting("team-1", readings)
	if len(aggs) != 0 {
		t.Errorf("Expected no aggregates for 2 distinct users, got %d", len(aggs))
	}
}
