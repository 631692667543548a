package stream

import (
	"math"
	"testing"
	"time"

	"github.com/septivank/biometric-pipeline/internal/biometric"
)

func sampleReading(id string, bpm float64) *biometric.Reading {
	return &biometric.Reading{
		ID:        id,
		UserID:    "user-1",
		DeviceID:  "device-1",
		Timestamp: time.Now(),
		HeartRate: &biometric.HeartRateData{BPM: bpm, Confidence: 0.9},
		Quality:   &biometric.QualityMetrics{Accuracy: 0.95, Completeness: 1, Reliability: 0.9},
	}
}

func TestProcess_FirstSamplePassesThrough(t *testing.T) {
	p := NewProcessor(0.8)
	var state smoothState

	pr, err := p.Process(sampleReading("r1", 100), nil, &state)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if pr.Smoothed.HeartRate == nil || *pr.Smoothed.HeartRate != 100 {
		t.Errorf("Expected first sample unsmoothed at 100, got %v", pr.Smoothed.HeartRate)
	}
}

func TestProcess_SmoothsAgainstPrevious(t *testing.T) {
	p := NewProcessor(0.8)
	var state smoothState

	if _, err := p.Process(sampleReading("r1", 100), nil, &state); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	pr, err := p.Process(sampleReading("r2", 50), nil, &state)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// 0.8*50 + 0.2*100 = 60
	if pr.Smoothed.HeartRate == nil || math.Abs(*pr.Smoothed.HeartRate-60) > 1e-9 {
		t.Errorf("Expected smoothed value 60, got %v", pr.Smoothed.HeartRate)
	}
}

func TestProcess_RejectsUnacceptableReading(t *testing.T) {
	p := NewProcessor(0.8)
	var state smoothState

	r := sampleReading("", 80)
	if _, err := p.Process(r, nil, &state); err == nil {
		t.Error("Expected error for reading without an id")
	}
	if _, err := p.Process(nil, nil, &state); err == nil {
		t.Error("Expected error for nil reading")
	}
}

func TestDetectAnomaly_HeartRateWinsOverStress(t *testing.T) {
	p := NewProcessor(0.8)
	r := sampleReading("r1", 210)
	r.Stress = &biometric.StressData{Level: 99, Confidence: 0.9}

	res := p.detectAnomaly(r, &defaultBaseline)
	if !res.Detected {
		t.Fatal("Expected an anomaly")
	}
	if res.Metric != "heart_rate" {
		t.Errorf("Expected heart rate anomaly reported first, got %s", res.Metric)
	}
	if res.Severity != biometric.SeverityCritical {
		t.Errorf("Expected critical severity, got %s", res.Severity)
	}
}

func TestDetectAnomaly_StressAboveBaseline(t *testing.T) {
	p := NewProcessor(0.8)
	r := sampleReading("r1", 75)
	r.Stress = &biometric.StressData{Level: 60, Confidence: 0.9}

	res := p.detectAnomaly(r, &defaultBaseline)
	if !res.Detected || res.Metric != "stress" {
		t.Errorf("Expected stress anomaly, got %+v", res)
	}
	if res.Severity != biometric.SeverityHigh {
		t.Errorf("Expected high severity, got %s", res.Severity)
	}
}

func TestDetectAnomaly_CleanReading(t *testing.T) {
	p := NewProcessor(0.8)
	res := p.detectAnomaly(sampleReading("r1", 72), &defaultBaseline)
	if res.Detected {
		t.Errorf("Expected no anomaly for resting values, got %+v", res)
	}
}

func TestHeartRateZone(t *testing.T) {
	cases := []struct {
		hr   float64
		want int
	}{
		{80, 1},   // 42% of 190
		{100, 2},  // 52%
		{125, 3},  // 65%
		{145, 4},  // 76%
		{165, 5},  // 86%
		{185, 6},  // 97%
	}
	for _, tc := range cases {
		if got := heartRateZone(tc.hr, 190); got != tc.want {
			t.Errorf("heartRateZone(%f, 190): expected %d, got %d", tc.hr, tc.want, got)
		}
	}
}

func TestDegrade(t *testing.T) {
	p := NewProcessor(0.8)
	r := sampleReading("r1", 72)

	pr := p.Degrade(r)
	if pr.Confidence != 0.1 {
		t.Errorf("Expected degraded confidence 0.1, got %f", pr.Confidence)
	}
	if pr.Reading != r {
		t.Error("Expected original reading passed through")
	}
}

func TestAlerts_FatigueHeuristic(t *testing.T) {
	p := NewProcessor(0.8)
	r := sampleReading("r1", 170)
	r.Stress = &biometric.StressData{Level: 80, Confidence: 0.9}
	var state smoothState

	pr, err := p.Process(r, nil, &state)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// 0.5*80 + clamp((170-60)/120*50) = 40 + 45.8 > 70
	alerts := p.Alerts(pr)
	found := false
	for _, a := range alerts {
		if a.Type == "fatigue" {
			found = true
			if a.Severity != biometric.SeverityHigh {
				t.Errorf("Expected high severity fatigue alert, got %s", a.Severity)
			}
		}
	}
	if !found {
		t.Error("Expected a fatigue alert")
	}
}

func TestAlerts_Inactivity(t *testing.T) {
	p := NewProcessor(0.8)
	r := sampleReading("r1", 65)
	r.Activity = &biometric.ActivityData{Intensity: 0.05}
	var state smoothState

	pr, err := p.Process(r, nil, &state)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	alerts := p.Alerts(pr)
	found := false
	for _, a := range alerts {
		if a.Type == "inactivity" && a.Severity == biometric.SeverityLow {
			found = true
		}
	}
	if !found {
		t.Error("Expected a low severity inactivity alert")
	}
}

func TestDerive_WellnessScoreDefaults(t *testing.T) {
	p := NewProcessor(0.8)
	r := &biometric.Reading{
		ID: "r1", UserID: "u", DeviceID: "d", Timestamp: time.Now(),
		Sleep:   &biometric.SleepData{DurationMinutes: 480, Quality: 90},
		Quality: &biometric.QualityMetrics{Reliability: 0.9},
	}

	m := p.Derive(r, nil)
	if m.WellnessScore != 90 {
		t.Errorf("Expected wellness score 90 from sleep quality alone, got %f", m.WellnessScore)
	}
}
