package validation

import (
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/septivank/biometric-pipeline/internal/biometric"
)

// QualityReport scores a reading set along four dimensions plus an overall
// mean. All scores are in [0,1].
type QualityReport struct {
	Accuracy       float64
	Completeness   float64
	Consistency    float64
	Timeliness     float64
	OverallQuality float64
	Issues         []string
}

// expected optional sub-readings per reading
const expectedFieldsPerReading = 4

// AssessDataQuality scores a batch of readings. Accuracy is the fraction that
// validate cleanly, completeness the ratio of populated optional fields,
// consistency the fraction passing cross-field checks and timeliness the
// fraction no older than 24 hours.
func (e *Engine) AssessDataQuality(readings []*biometric.Reading) QualityReport {
	if len(readings) == 0 {
		return QualityReport{Issues: []string{"No data available"}}
	}

	var validCount, consistentCount, timelyCount, populatedFields int
	now := e.now()

	for _, r := range readings {
		res := e.Validate(r)
		if res.IsValid {
			validCount++
		}
		if len(consistencyWarnings(r)) == 0 {
			consistentCount++
		}
		if now.Sub(r.Timestamp) <= 24*time.Hour {
			timelyCount++
		}
		populatedFields += len(r.DataTypes())
	}

	n := float64(len(readings))
	report := QualityReport{
		Accuracy:     float64(validCount) / n,
		Completeness: float64(populatedFields) / (n * expectedFieldsPerReading),
		Consistency:  float64(consistentCount) / n,
		Timeliness:   float64(timelyCount) / n,
	}
	report.OverallQuality = stat.Mean([]float64{
		report.Accuracy, report.Completeness, report.Consistency, report.Timeliness,
	}, nil)

	if report.Accuracy < 0.8 {
		report.Issues = append(report.Issues, "more than 20% of readings fail validation")
	}
	if report.Completeness < 0.5 {
		report.Issues = append(report.Issues, "fewer than half of expected measurements are present")
	}
	if report.Consistency < 0.8 {
		report.Issues = append(report.Issues, "cross-field consistency checks failing frequently")
	}
	if report.Timeliness < 0.5 {
		report.Issues = append(report.Issues, "most readings are older than 24 hours")
	}
	return report
}
