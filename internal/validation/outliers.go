package validation

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/septivank/biometric-pipeline/internal/biometric"
)

// OutlierResult reports which readings the IQR rule flagged.
type OutlierResult struct {
	Outliers   []*biometric.Reading
	Method     string
	Threshold  float64
	Confidence float64
}

// metricSample pairs an extracted metric value with its source reading.
type metricSample struct {
	value   float64
	reading *biometric.Reading
}

// outlierMetrics are the per-metric extractors the IQR rule runs over.
var outlierMetrics = map[string]func(*biometric.Reading) (float64, bool){
	"heart_rate": func(r *biometric.Reading) (float64, bool) {
		if r.HeartRate == nil {
			return 0, false
		}
		return r.HeartRate.BPM, true
	},
	"stress": func(r *biometric.Reading) (float64, bool) {
		if r.Stress == nil {
			return 0, false
		}
		return r.Stress.Level, true
	},
	"activity_intensity": func(r *biometric.Reading) (float64, bool) {
		if r.Activity == nil {
			return 0, false
		}
		return r.Activity.Intensity, true
	},
}

// DetectOutliers applies the interquartile-range rule independently to heart
// rate, stress level and activity intensity. A reading is an outlier if any
// of its metrics falls outside [Q1 - k*IQR, Q3 + k*IQR]. Metrics with fewer
// than the configured minimum of samples are skipped. Results are
// de-duplicated by reading id.
func (e *Engine) DetectOutliers(readings []*biometric.Reading) OutlierResult {
	result := OutlierResult{
		Method:    "iqr",
		Threshold: e.iqrMultiplier,
	}

	seen := make(map[string]bool)
	maxSamples := 0

	for _, extract := range outlierMetrics {
		var samples []metricSample
		for _, r := range readings {
			if v, ok := extract(r); ok {
				samples = append(samples, metricSample{value: v, reading: r})
			}
		}
		if len(samples) < e.minSamples {
			continue
		}
		if len(samples) > maxSamples {
			maxSamples = len(samples)
		}

		values := make([]float64, len(samples))
		for i, s := range samples {
			values[i] = s.value
		}
		sort.Float64s(values)

		q1 := stat.Quantile(0.25, stat.Empirical, values, nil)
		q3 := stat.Quantile(0.75, stat.Empirical, values, nil)
		iqr := q3 - q1
		lower := q1 - e.iqrMultiplier*iqr
		upper := q3 + e.iqrMultiplier*iqr

		for _, s := range samples {
			if s.value < lower || s.value > upper {
				if !seen[s.reading.ID] {
					seen[s.reading.ID] = true
					result.Outliers = append(result.Outliers, s.reading)
				}
			}
		}
	}

	// Confidence in the bounds grows with sample size.
	if maxSamples > 0 {
		result.Confidence = clampFloat(float64(maxSamples)/10, 0.3, 1)
	}
	return result
}
