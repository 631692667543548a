package stream

import (
	"time"

	"github.com/septivank/biometric-pipeline/internal/biometric"
)

// EventKind discriminates the three event types on the live feed.
type EventKind string

const (
	EventConnected EventKind = "connected"
	EventData      EventKind = "data"
	EventError     EventKind = "error"
)

// Event is one item on a user's live feed, delivered in timestamp order.
type Event struct {
	Kind      EventKind         `json:"kind"`
	UserID    string            `json:"user_id"`
	Timestamp time.Time         `json:"timestamp"`
	Reading   *ProcessedReading `json:"reading,omitempty"`
	Message   string            `json:"message,omitempty"`
}

// SmoothedValues are the single-pole filtered metric values.
type SmoothedValues struct {
	HeartRate *float64 `json:"heart_rate,omitempty"`
	Stress    *float64 `json:"stress,omitempty"`
	Intensity *float64 `json:"intensity,omitempty"`
}

// DerivedMetrics are computed per reading from the smoothed values and the
// user's baseline.
type DerivedMetrics struct {
	HeartRateZone      int     `json:"heart_rate_zone,omitempty"`
	HeartRateReserve   float64 `json:"heart_rate_reserve,omitempty"`
	StressIndex        float64 `json:"stress_index,omitempty"`
	StressDeviation    float64 `json:"stress_deviation,omitempty"`
	ActivityEfficiency float64 `json:"activity_efficiency,omitempty"`
	WellnessScore      float64 `json:"wellness_score"`
}

// AnomalyResult is the outcome of the priority-ordered anomaly check.
type AnomalyResult struct {
	Detected bool                    `json:"detected"`
	Metric   string                  `json:"metric,omitempty"`
	Severity biometric.AlertSeverity `json:"severity"`
	Message  string                  `json:"message,omitempty"`
}

// ProcessedReading is the output of the real-time processor for one input
// reading.
type ProcessedReading struct {
	Reading     *biometric.Reading `json:"reading"`
	Smoothed    SmoothedValues     `json:"smoothed"`
	Metrics     DerivedMetrics     `json:"metrics"`
	Anomaly     AnomalyResult      `json:"anomaly"`
	Confidence  float64            `json:"confidence"`
	ProcessedAt time.Time          `json:"processed_at"`
}
