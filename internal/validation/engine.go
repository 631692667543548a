package validation

import (
	"fmt"
	"time"

	"github.com/septivank/biometric-pipeline/internal/biometric"
	"github.com/septivank/biometric-pipeline/internal/config"
)

// Result holds the outcome of validating a single reading. Corrected is set
// whenever a soft correction (clamp) was applied, even if the reading is valid.
type Result struct {
	IsValid    bool
	Errors     []string
	Warnings   []string
	Confidence float64
	Corrected  *biometric.Reading
}

// Engine is the stateless statistical validator and cleaner for biometric
// readings. All methods are pure: they never mutate their input.
type Engine struct {
	maxReadingAge time.Duration
	maxGap        time.Duration
	iqrMultiplier float64
	minSamples    int
	now           func() time.Time
}

// NewEngine creates a validation engine with the given settings.
func NewEngine(cfg config.ValidationConfig) *Engine {
	return &Engine{
		maxReadingAge: time.Duration(cfg.MaxReadingAgeDays) * 24 * time.Hour,
		maxGap:        time.Duration(cfg.InterpolationGapMinutes) * time.Minute,
		iqrMultiplier: cfg.OutlierIQRMultiplier,
		minSamples:    cfg.MinOutlierSamples,
		now:           time.Now,
	}
}

// rule policies: how an out-of-range value is treated.
type policy int

const (
	policyError policy = iota // reject the reading
	policyWarn                // flag, keep the value
	policyClamp               // clamp into range, surface via Corrected
)

// fieldRule is one entry of the table-driven per-field rule set.
type fieldRule struct {
	name       string
	min, max   float64
	policy     policy
	multiplier float64 // confidence multiplier applied when the rule fires
}

var (
	ruleHeartRateRange   = fieldRule{"heart_rate.bpm", 30, 220, policyError, 0.5}
	ruleHeartRateTypical = fieldRule{"heart_rate.bpm", 50, 180, policyWarn, 0.9}
	ruleVariability      = fieldRule{"heart_rate.variability", 0, 100, policyClamp, 0.8}
	ruleStressLevel      = fieldRule{"stress.level", 0, 100, policyClamp, 0.8}
	ruleSteps            = fieldRule{"activity.steps", 0, 50000, policyError, 0.5}
	ruleCalories         = fieldRule{"activity.calories", 0, 1e9, policyError, 0.5}
	ruleIntensity        = fieldRule{"activity.intensity", 0, 1, policyClamp, 0.8}
	ruleDistance         = fieldRule{"activity.distance_km", 0, 100, policyWarn, 0.9}
	ruleSleepDuration    = fieldRule{"sleep.duration_minutes", 60, 1440, policyError, 0.5}
	ruleSleepQuality     = fieldRule{"sleep.quality", 0, 100, policyClamp, 0.8}
)

const (
	multMissingField   = 0.3
	multLowConfidence  = 0.85
	multCrossField     = 0.9
	multStaleTimestamp = 0.9
	multFutureStamp    = 0.5
)

// resultBuilder accumulates errors, warnings and the running confidence
// product while a reading is checked.
type resultBuilder struct {
	errors     []string
	warnings   []string
	confidence float64
	corrected  bool
}

func newResultBuilder() *resultBuilder {
	return &resultBuilder{confidence: 1.0}
}

func (b *resultBuilder) errorf(mult float64, format string, args ...interface{}) {
	b.errors = append(b.errors, fmt.Sprintf(format, args...))
	b.confidence *= mult
}

func (b *resultBuilder) warnf(mult float64, format string, args ...interface{}) {
	b.warnings = append(b.warnings, fmt.Sprintf(format, args...))
	b.confidence *= mult
}

// apply runs one rule over a value and returns the possibly corrected value.
func (b *resultBuilder) apply(r fieldRule, value float64) float64 {
	if value >= r.min && value <= r.max {
		return value
	}
	switch r.policy {
	case policyError:
		b.errorf(r.multiplier, "%s %.2f outside valid range [%.0f, %.0f]", r.name, value, r.min, r.max)
	case policyWarn:
		b.warnf(r.multiplier, "%s %.2f outside expected range [%.0f, %.0f]", r.name, value, r.min, r.max)
	case policyClamp:
		clamped := clampFloat(value, r.min, r.max)
		b.warnf(r.multiplier, "%s %.2f clamped into [%.0f, %.0f]", r.name, value, r.min, r.max)
		b.corrected = true
		return clamped
	}
	return value
}

// Validate checks a single reading against the structural, per-field and
// cross-field rules. Hard violations produce errors; soft violations are
// corrected or flagged as warnings. The overall confidence is the product of
// all per-field confidence multipliers, clamped to [0,1].
func (e *Engine) Validate(r *biometric.Reading) Result {
	b := newResultBuilder()

	e.checkStructure(r, b)
	if len(b.errors) > 0 && (r == nil || !r.HasData()) {
		return b.result(nil)
	}

	corrected := r.Clone()

	e.checkTimestamp(r.Timestamp, b)

	if r.HeartRate != nil {
		e.checkHeartRate(corrected.HeartRate, b)
	}
	if r.Stress != nil {
		e.checkStress(corrected.Stress, b)
	}
	if r.Activity != nil {
		e.checkActivity(corrected.Activity, b)
	}
	if r.Sleep != nil {
		e.checkSleep(corrected.Sleep, b)
	}

	e.checkConsistency(r, b)

	if !b.corrected {
		corrected = nil
	}
	return b.result(corrected)
}

func (b *resultBuilder) result(corrected *biometric.Reading) Result {
	return Result{
		IsValid:    len(b.errors) == 0,
		Errors:     b.errors,
		Warnings:   b.warnings,
		Confidence: clampFloat(b.confidence, 0, 1),
		Corrected:  corrected,
	}
}

func (e *Engine) checkStructure(r *biometric.Reading, b *resultBuilder) {
	if r == nil {
		b.errorf(multMissingField, "reading is nil")
		return
	}
	if r.ID == "" {
		b.errorf(multMissingField, "reading id is required")
	}
	if r.UserID == "" {
		b.errorf(multMissingField, "user id is required")
	}
	if r.DeviceID == "" {
		b.errorf(multMissingField, "device id is required")
	}
	if r.Timestamp.IsZero() {
		b.errorf(multMissingField, "timestamp is required")
	}
	if r.Quality == nil {
		b.errorf(multMissingField, "quality metrics are required")
	}
	if !r.HasData() {
		b.errorf(multMissingField, "at least one biometric measurement is required")
	}
}

func (e *Engine) checkTimestamp(ts time.Time, b *resultBuilder) {
	if ts.IsZero() {
		return
	}
	now := e.now()
	if ts.After(now) {
		b.errorf(multFutureStamp, "timestamp %s is in the future", ts.Format(time.RFC3339))
		return
	}
	if now.Sub(ts) > e.maxReadingAge {
		b.warnf(multStaleTimestamp, "reading is older than %s", e.maxReadingAge)
	}
}

func (e *Engine) checkHeartRate(hr *biometric.HeartRateData, b *resultBuilder) {
	hardBefore := len(b.errors)
	b.apply(ruleHeartRateRange, hr.BPM)
	if len(b.errors) == hardBefore {
		// Typical-band warning only applies to otherwise valid values.
		b.apply(ruleHeartRateTypical, hr.BPM)
	}
	if hr.Variability != nil {
		*hr.Variability = b.apply(ruleVariability, *hr.Variability)
	}
	if hr.Confidence < 0.5 {
		b.warnf(multLowConfidence, "heart rate confidence %.2f below 0.5", hr.Confidence)
	}
}

func (e *Engine) checkStress(st *biometric.StressData, b *resultBuilder) {
	st.Level = b.apply(ruleStressLevel, st.Level)
	if st.Confidence < 0.3 {
		b.warnf(multLowConfidence, "stress confidence %.2f below 0.3", st.Confidence)
	}
}

func (e *Engine) checkActivity(act *biometric.ActivityData, b *resultBuilder) {
	if act.Steps != nil {
		b.apply(ruleSteps, float64(*act.Steps))
	}
	if act.Calories != nil && *act.Calories < 0 {
		b.errorf(ruleCalories.multiplier, "%s %.2f must not be negative", ruleCalories.name, *act.Calories)
	}
	act.Intensity = b.apply(ruleIntensity, act.Intensity)
	if act.DistanceKM != nil {
		b.apply(ruleDistance, *act.DistanceKM)
	}
}

func (e *Engine) checkSleep(sl *biometric.SleepData, b *resultBuilder) {
	b.apply(ruleSleepDuration, sl.DurationMinutes)
	sl.Quality = b.apply(ruleSleepQuality, sl.Quality)
	if sl.DeepSleepMinutes != nil && sl.RemSleepMinutes != nil {
		if *sl.DeepSleepMinutes+*sl.RemSleepMinutes > sl.DurationMinutes {
			b.warnf(multCrossField, "deep + REM sleep (%.0f min) exceeds total duration (%.0f min)",
				*sl.DeepSleepMinutes+*sl.RemSleepMinutes, sl.DurationMinutes)
		}
	}
}

// checkConsistency runs the cross-field plausibility checks. These only ever
// produce warnings.
func (e *Engine) checkConsistency(r *biometric.Reading, b *resultBuilder) {
	for _, w := range consistencyWarnings(r) {
		b.warnf(multCrossField, "%s", w)
	}
}

// consistencyWarnings returns the cross-field warnings for a reading without
// touching confidence, so data-quality assessment can reuse the same checks.
func consistencyWarnings(r *biometric.Reading) []string {
	var warnings []string
	if r.HeartRate != nil && r.Stress != nil {
		lo := 60 + 0.3*r.Stress.Level - 20
		hi := 80 + 0.8*r.Stress.Level + 20
		if r.HeartRate.BPM < lo || r.HeartRate.BPM > hi {
			warnings = append(warnings, fmt.Sprintf(
				"heart rate %.0f bpm inconsistent with stress level %.0f (expected %.0f-%.0f)",
				r.HeartRate.BPM, r.Stress.Level, lo, hi))
		}
	}
	if r.HeartRate != nil && r.Activity != nil {
		lo := 60 + 40*r.Activity.Intensity - 15
		hi := 80 + 80*r.Activity.Intensity + 15
		if r.HeartRate.BPM < lo || r.HeartRate.BPM > hi {
			warnings = append(warnings, fmt.Sprintf(
				"heart rate %.0f bpm inconsistent with activity intensity %.2f (expected %.0f-%.0f)",
				r.HeartRate.BPM, r.Activity.Intensity, lo, hi))
		}
	}
	return warnings
}

func clampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
