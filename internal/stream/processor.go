package stream

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/septivank/biometric-pipeline/internal/biometric"
)

// Processor holds the pure per-reading transform: smoothing, derived metrics,
// anomaly detection and alert heuristics. It carries no per-user state; the
// previous smoothed values live in the pipeline and are passed in.
type Processor struct {
	alpha float64 // smoothing factor
}

// NewProcessor creates a processor with the given smoothing factor in (0,1].
func NewProcessor(smoothingFactor float64) *Processor {
	return &Processor{alpha: smoothingFactor}
}

// smoothState carries the previous smoothed value per metric between
// readings of one user's stream.
type smoothState struct {
	heartRate *float64
	stress    *float64
	intensity *float64
}

// Fallback baselines used when no profile exists yet.
var defaultBaseline = biometric.Profile{
	RestingHeartRate: 60,
	MaxHeartRate:     190,
	StressBaseline:   30,
	ActivityBaseline: 0.5,
}

// Acceptable reports whether a reading may enter the stream at all. Readings
// failing this filter are dropped silently.
func Acceptable(r *biometric.Reading) bool {
	return r != nil && r.ID != "" && r.UserID != "" && r.DeviceID != "" &&
		!r.Timestamp.IsZero() && r.HasData()
}

// Process runs one reading through smoothing, derived metrics and anomaly
// detection. The state is updated in place with the new smoothed values.
func (p *Processor) Process(r *biometric.Reading, profile *biometric.Profile, state *smoothState) (*ProcessedReading, error) {
	if !Acceptable(r) {
		return nil, fmt.Errorf("reading %q not acceptable for streaming", readingID(r))
	}
	if profile == nil {
		profile = &defaultBaseline
	}

	out := &ProcessedReading{
		Reading:     r,
		Confidence:  readingConfidence(r),
		ProcessedAt: time.Now(),
	}

	p.smooth(r, state, &out.Smoothed)
	p.derive(r, profile, out)
	out.Anomaly = p.detectAnomaly(r, profile)
	return out, nil
}

// Derive computes the derived metrics for a reading against a baseline
// without touching any stream state. Used by on-demand health queries.
func (p *Processor) Derive(r *biometric.Reading, profile *biometric.Profile) DerivedMetrics {
	if profile == nil {
		profile = &defaultBaseline
	}
	out := &ProcessedReading{Reading: r}
	p.derive(r, profile, out)
	return out.Metrics
}

// Degrade builds the minimal-confidence passthrough record emitted when
// processing a reading failed.
func (p *Processor) Degrade(r *biometric.Reading) *ProcessedReading {
	return &ProcessedReading{
		Reading:     r,
		Metrics:     DerivedMetrics{WellnessScore: defaultWellnessScore},
		Anomaly:     AnomalyResult{Severity: biometric.SeverityLow},
		Confidence:  0.1,
		ProcessedAt: time.Now(),
	}
}

// smooth applies the single-pole filter per metric: alpha*value +
// (1-alpha)*previous. The first sample of a metric passes through unchanged.
func (p *Processor) smooth(r *biometric.Reading, state *smoothState, out *SmoothedValues) {
	if r.HeartRate != nil {
		v := p.blend(r.HeartRate.BPM, state.heartRate)
		state.heartRate = &v
		out.HeartRate = &v
	}
	if r.Stress != nil {
		v := p.blend(r.Stress.Level, state.stress)
		state.stress = &v
		out.Stress = &v
	}
	if r.Activity != nil {
		v := p.blend(r.Activity.Intensity, state.intensity)
		state.intensity = &v
		out.Intensity = &v
	}
}

func (p *Processor) blend(value float64, prev *float64) float64 {
	if prev == nil {
		return value
	}
	return p.alpha*value + (1-p.alpha)*(*prev)
}

const defaultWellnessScore = 50

func (p *Processor) derive(r *biometric.Reading, profile *biometric.Profile, out *ProcessedReading) {
	m := &out.Metrics
	var scores []float64

	if r.HeartRate != nil {
		hr := r.HeartRate.BPM
		m.HeartRateZone = heartRateZone(hr, profile.MaxHeartRate)
		if profile.MaxHeartRate > profile.RestingHeartRate {
			m.HeartRateReserve = (hr - profile.RestingHeartRate) /
				(profile.MaxHeartRate - profile.RestingHeartRate) * 100
		}
		// Deviation measured in 10 bpm steps off the resting baseline.
		deviation := math.Abs(hr-profile.RestingHeartRate) / 10
		scores = append(scores, clampScore(100-deviation*20))
	}
	if r.Stress != nil {
		m.StressIndex = r.Stress.Level
		m.StressDeviation = r.Stress.Level - profile.StressBaseline
		scores = append(scores, clampScore(100-0.3*r.Stress.Level))
	}
	if r.Activity != nil {
		m.ActivityEfficiency = 1 - math.Abs(r.Activity.Intensity-profile.ActivityBaseline)
		scores = append(scores, clampScore(50+m.ActivityEfficiency*50))
	}
	if r.Sleep != nil {
		scores = append(scores, clampScore(r.Sleep.Quality))
	}

	if len(scores) == 0 {
		m.WellnessScore = defaultWellnessScore
		return
	}
	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	m.WellnessScore = sum / float64(len(scores))
}

// heartRateZone maps a heart rate to training zones 1-6 by percentage of the
// user's max heart rate.
func heartRateZone(hr, maxHR float64) int {
	if maxHR <= 0 {
		return 0
	}
	pct := hr / maxHR * 100
	switch {
	case pct < 50:
		return 1
	case pct < 60:
		return 2
	case pct < 70:
		return 3
	case pct < 80:
		return 4
	case pct < 90:
		return 5
	default:
		return 6
	}
}

// detectAnomaly checks metrics in priority order heart rate, stress,
// activity. The first anomaly found wins.
func (p *Processor) detectAnomaly(r *biometric.Reading, profile *biometric.Profile) AnomalyResult {
	if r.HeartRate != nil {
		hr := r.HeartRate.BPM
		switch {
		case hr < 30 || hr > 200:
			return AnomalyResult{
				Detected: true, Metric: "heart_rate", Severity: biometric.SeverityCritical,
				Message: fmt.Sprintf("heart rate %.0f bpm indicates a spike or drop", hr),
			}
		case hr > 0.9*profile.MaxHeartRate:
			return AnomalyResult{
				Detected: true, Metric: "heart_rate", Severity: biometric.SeverityHigh,
				Message: fmt.Sprintf("heart rate %.0f bpm above 90%% of max (%.0f)", hr, profile.MaxHeartRate),
			}
		case hr < 0.7*profile.RestingHeartRate:
			return AnomalyResult{
				Detected: true, Metric: "heart_rate", Severity: biometric.SeverityMedium,
				Message: fmt.Sprintf("heart rate %.0f bpm well below resting baseline (%.0f)", hr, profile.RestingHeartRate),
			}
		}
	}
	if r.Stress != nil {
		switch {
		case r.Stress.Level > 95:
			return AnomalyResult{
				Detected: true, Metric: "stress", Severity: biometric.SeverityCritical,
				Message: fmt.Sprintf("stress level %.0f critically high", r.Stress.Level),
			}
		case r.Stress.Level > profile.StressBaseline+20:
			return AnomalyResult{
				Detected: true, Metric: "stress", Severity: biometric.SeverityHigh,
				Message: fmt.Sprintf("stress level %.0f well above baseline %.0f", r.Stress.Level, profile.StressBaseline),
			}
		}
	}
	if r.Activity != nil && r.Activity.Intensity > 0.95 {
		return AnomalyResult{
			Detected: true, Metric: "activity", Severity: biometric.SeverityMedium,
			Message: fmt.Sprintf("activity intensity %.2f near maximum", r.Activity.Intensity),
		}
	}
	return AnomalyResult{Severity: biometric.SeverityLow}
}

// Alerts derives the wellness alerts for one processed reading: the primary
// anomaly alert for anything above low severity, plus the independent fatigue
// and inactivity heuristics.
func (p *Processor) Alerts(pr *ProcessedReading) []*biometric.Alert {
	r := pr.Reading
	var alerts []*biometric.Alert

	if pr.Anomaly.Detected && pr.Anomaly.Severity.Above(biometric.SeverityLow) {
		alerts = append(alerts, newAlert(r, pr.Anomaly.Metric+"_anomaly", pr.Anomaly.Severity,
			pr.Anomaly.Message, map[string]interface{}{"metric": pr.Anomaly.Metric}))
	}

	if r.HeartRate != nil && r.Stress != nil {
		fatigue := 0.5*r.Stress.Level + clampScoreRange((r.HeartRate.BPM-60)/120*50, 0, 50)
		if fatigue > 70 {
			alerts = append(alerts, newAlert(r, "fatigue", biometric.SeverityHigh,
				fmt.Sprintf("fatigue score %.0f exceeds threshold 70", fatigue),
				map[string]interface{}{"fatigue_score": fatigue}))
		}
	}

	if r.Activity != nil && r.Activity.Intensity < 0.1 {
		alerts = append(alerts, newAlert(r, "inactivity", biometric.SeverityLow,
			fmt.Sprintf("activity intensity %.2f indicates prolonged inactivity", r.Activity.Intensity),
			map[string]interface{}{"intensity": r.Activity.Intensity}))
	}
	return alerts
}

func newAlert(r *biometric.Reading, alertType string, severity biometric.AlertSeverity, message string, data map[string]interface{}) *biometric.Alert {
	return &biometric.Alert{
		ID:        uuid.NewString(),
		UserID:    r.UserID,
		Type:      alertType,
		Severity:  severity,
		Message:   message,
		Timestamp: r.Timestamp,
		Data:      data,
	}
}

func readingConfidence(r *biometric.Reading) float64 {
	if r.Quality == nil {
		return 0.5
	}
	return clampScoreRange(r.Quality.Reliability, 0, 1)
}

func readingID(r *biometric.Reading) string {
	if r == nil {
		return ""
	}
	return r.ID
}

func clampScore(v float64) float64 {
	return clampScoreRange(v, 0, 100)
}

func clampScoreRange(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
