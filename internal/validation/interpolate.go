package validation

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/septivank/biometric-pipeline/internal/biometric"
)

// quality scores assigned to synthetic readings
const (
	interpAccuracy    = 0.7
	interpReliability = 0.6
	interpConfidence  = 0.6
)

// InterpolateMissingData fills gaps larger than the configured maximum with
// evenly spaced synthetic readings, linearly interpolated per numeric field.
// Synthetic readings carry reduced quality scores and an id suffix marking
// them as interpolated. Gaps at or below the maximum are left untouched.
func (e *Engine) InterpolateMissingData(readings []*biometric.Reading) []*biometric.Reading {
	if len(readings) < 2 {
		return readings
	}

	sorted := make([]*biometric.Reading, len(readings))
	copy(sorted, readings)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	out := make([]*biometric.Reading, 0, len(sorted))
	for i := 0; i < len(sorted)-1; i++ {
		prev, next := sorted[i], sorted[i+1]
		out = append(out, prev)

		gap := next.Timestamp.Sub(prev.Timestamp)
		if gap <= e.maxGap {
			continue
		}

		// Number of synthetic points needed so no remaining gap exceeds maxGap.
		points := int(math.Ceil(float64(gap)/float64(e.maxGap))) - 1
		step := gap / time.Duration(points+1)
		for k := 1; k <= points; k++ {
			frac := float64(k) / float64(points+1)
			out = append(out, synthesize(prev, next, prev.Timestamp.Add(time.Duration(k)*step), frac, k))
		}
	}
	out = append(out, sorted[len(sorted)-1])
	return out
}

// synthesize builds one interpolated reading between a and b at fraction frac.
// Only sub-readings present on both endpoints are interpolated.
func synthesize(a, b *biometric.Reading, ts time.Time, frac float64, seq int) *biometric.Reading {
	r := &biometric.Reading{
		ID:        fmt.Sprintf("%s-interp-%d", a.ID, seq),
		UserID:    a.UserID,
		DeviceID:  a.DeviceID,
		Timestamp: ts,
		Quality: &biometric.QualityMetrics{
			Accuracy:     interpAccuracy,
			Completeness: qualityOr(a, func(q *biometric.QualityMetrics) float64 { return q.Completeness }),
			Reliability:  interpReliability,
		},
	}

	if a.HeartRate != nil && b.HeartRate != nil {
		hr := &biometric.HeartRateData{
			BPM:        lerp(a.HeartRate.BPM, b.HeartRate.BPM, frac),
			Confidence: interpConfidence,
		}
		if a.HeartRate.Variability != nil && b.HeartRate.Variability != nil {
			v := lerp(*a.HeartRate.Variability, *b.HeartRate.Variability, frac)
			hr.Variability = &v
		}
		r.HeartRate = hr
	}
	if a.Stress != nil && b.Stress != nil {
		r.Stress = &biometric.StressData{
			Level:      lerp(a.Stress.Level, b.Stress.Level, frac),
			Confidence: interpConfidence,
		}
	}
	if a.Activity != nil && b.Activity != nil {
		act := &biometric.ActivityData{
			Intensity: lerp(a.Activity.Intensity, b.Activity.Intensity, frac),
		}
		if a.Activity.Steps != nil && b.Activity.Steps != nil {
			s := int(lerp(float64(*a.Activity.Steps), float64(*b.Activity.Steps), frac))
			act.Steps = &s
		}
		if a.Activity.Calories != nil && b.Activity.Calories != nil {
			c := lerp(*a.Activity.Calories, *b.Activity.Calories, frac)
			act.Calories = &c
		}
		r.Activity = act
	}
	if a.Sleep != nil && b.Sleep != nil {
		r.Sleep = &biometric.SleepData{
			DurationMinutes: lerp(a.Sleep.DurationMinutes, b.Sleep.DurationMinutes, frac),
			Quality:         lerp(a.Sleep.Quality, b.Sleep.Quality, frac),
		}
	}
	return r
}

func lerp(a, b, frac float64) float64 {
	return a + (b-a)*frac
}

func qualityOr(r *biometric.Reading, get func(*biometric.QualityMetrics) float64) float64 {
	if r.Quality == nil {
		return 0
	}
	return get(r.Quality)
}
