package validation_test

import (
	"strings"
	"testing"
	"time"

	"github.com/septivank/biometric-pipeline/internal/biometric"
)

func TestInterpolate_FillsLargeGap(t *testing.T) {
	e := testEngine()
	start := time.Now().Add(-2 * time.Hour)
	a := testReading("a", start)
	a.HeartRate.BPM = 60
	b := testReading("b", start.Add(time.Hour))
	b.HeartRate.BPM = 100

	out := e.InterpolateMissingData([]*biometric.Reading{a, b})

	// A one-hour gap with a 15-minute maximum needs 3 synthetic points.
	if len(out) != 5 {
		t.Fatalf("Expected 5 readings after interpolation, got %d", len(out))
	}

	mid := out[2]
	if !strings.HasSuffix(mid.ID, "-interp-2") {
		t.Errorf("Expected interpolated id suffix, got %q", mid.ID)
	}
	if mid.HeartRate.BPM != 80 {
		t.Errorf("Expected midpoint bpm 80, got %f", mid.HeartRate.BPM)
	}
	if mid.Quality.Accuracy != 0.7 {
		t.Errorf("Expected reduced accuracy 0.7, got %f", mid.Quality.Accuracy)
	}
	if mid.Quality.Reliability != 0.6 {
		t.Errorf("Expected reduced reliability 0.6, got %f", mid.Quality.Reliability)
	}
	if mid.HeartRate.Confidence != 0.6 {
		t.Errorf("Expected reduced confidence 0.6, got %f", mid.HeartRate.Confidence)
	}

	expectedMid := start.Add(30 * time.Minute)
	if !mid.Timestamp.Equal(expectedMid) {
		t.Errorf("Expected midpoint timestamp %v, got %v", expectedMid, mid.Timestamp)
	}
}

func TestInterpolate_SmallGapUntouched(t *testing.T) {
	e := testEngine()
	start := time.Now().Add(-time.Hour)
	a := testReading("a", start)
	b := testReading("b", start.Add(5*time.Minute))

	out := e.InterpolateMissingData([]*biometric.Reading{a, b})

	if len(out) != 2 {
		t.Errorf("Expected no synthetic readings for a 5-minute gap, got %d readings", len(out))
	}
}

func TestInterpolate_SortsByTimestamp(t *testing.T) {
	e := testEngine()
	start := time.Now().Add(-time.Hour)
	a := testReading("a", start)
	b := testReading("b", start.Add(10*time.Minute))

	out := e.InterpolateMissingData([]*biometric.Reading{b, a})

	if out[0].ID != "a" || out[1].ID != "b" {
		t.Errorf("Expected output sorted by timestamp, got %s then %s", out[0].ID, out[1].ID)
	}
}

func TestInterpolate_SkipsFieldsMissingOnOneEndpoint(t *testing.T) {
	e := testEngine()
	start := time.Now().Add(-2 * time.Hour)
	a := testReading("a", start)
	a.Stress = &biometric.StressData{Level: 40, Confidence: 0.9}
	b := testReading("b", start.Add(time.Hour))

	out := e.InterpolateMissingData([]*biometric.Reading{a, b})

	for _, r := range out[1 : len(out)-1] {
		if r.Stress != nil {
			t.Error("Expected no interpolated stress when one endpoint lacks it")
		}
		if r.HeartRate == nil {
			t.Error("Expected interpolated heart rate present on both endpoints")
		}
	}
}
