package orchestrator

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/septivank/biometric-pipeline/internal/biometric"
	"github.com/septivank/biometric-pipeline/internal/device"
	"github.com/septivank/biometric-pipeline/internal/stream"
)

// Health-metric queries are derived, read-only views computed on demand from
// the last hour of data plus the stored baseline. They all fail with a typed
// profile-not-found error when the user has no profile.

// StressReport is the output of CalculateStressLevel.
type StressReport struct {
	Level       float64 `json:"level"`
	Baseline    float64 `json:"baseline"`
	Deviation   float64 `json:"deviation"`
	SampleCount int     `json:"sample_count"`
}

// FatigueReport is the output of DetectFatigue.
type FatigueReport struct {
	Score     float64 `json:"score"`
	Threshold float64 `json:"threshold"`
	Fatigued  bool    `json:"fatigued"`
}

// WellnessReport is the output of AssessWellnessScore.
type WellnessReport struct {
	Score       float64 `json:"score"`
	SampleCount int     `json:"sample_count"`
}

// HRVReport is the output of AnalyzeHeartRateVariability.
type HRVReport struct {
	RMSSD       float64 `json:"rmssd"`
	SampleCount int     `json:"sample_count"`
	Assessment  string  `json:"assessment"`
}

const fatigueThreshold = 70

// recentReadings returns the user's last hour of pipeline-compliant data,
// from the persisted source when one is wired, otherwise live from devices.
func (o *Orchestrator) recentReadings(ctx context.Context, userID string) ([]*biometric.Reading, error) {
	now := o.now()
	since := now.Add(-time.Hour)
	if o.readings != nil {
		return o.readings.RecentReadings(ctx, userID, since)
	}
	return o.CollectBiometricData(ctx, userID, device.TimeRange{Start: since, End: now})
}

// CalculateStressLevel averages the last hour of stress samples against the
// stored baseline.
func (o *Orchestrator) CalculateStressLevel(ctx context.Context, userID string) (*StressReport, error) {
	profile, err := o.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	readings, err := o.recentReadings(ctx, userID)
	if err != nil {
		return nil, err
	}

	var levels []float64
	for _, r := range readings {
		if r.Stress != nil {
			levels = append(levels, r.Stress.Level)
		}
	}

	report := &StressReport{Baseline: profile.StressBaseline, SampleCount: len(levels)}
	if len(levels) > 0 {
		report.Level = stat.Mean(levels, nil)
		report.Deviation = report.Level - profile.StressBaseline
	}
	return report, nil
}

// DetectFatigue combines average stress and heart rate into the fatigue
// heuristic used by the real-time processor.
func (o *Orchestrator) DetectFatigue(ctx context.Context, userID string) (*FatigueReport, error) {
	if _, err := o.GetProfile(ctx, userID); err != nil {
		return nil, err
	}
	readings, err := o.recentReadings(ctx, userID)
	if err != nil {
		return nil, err
	}

	var stressLevels, heartRates []float64
	for _, r := range readings {
		if r.Stress != nil {
			stressLevels = append(stressLevels, r.Stress.Level)
		}
		if r.HeartRate != nil {
			heartRates = append(heartRates, r.HeartRate.BPM)
		}
	}

	report := &FatigueReport{Threshold: fatigueThreshold}
	if len(stressLevels) == 0 && len(heartRates) == 0 {
		return report, nil
	}

	var stressPart, hrPart float64
	if len(stressLevels) > 0 {
		stressPart = 0.5 * stat.Mean(stressLevels, nil)
	}
	if len(heartRates) > 0 {
		hrPart = (stat.Mean(heartRates, nil) - 60) / 120 * 50
		hrPart = math.Max(0, math.Min(50, hrPart))
	}
	report.Score = stressPart + hrPart
	report.Fatigued = report.Score > fatigueThreshold
	return report, nil
}

// AssessWellnessScore averages the instantaneous wellness score over the
// last hour of readings.
func (o *Orchestrator) AssessWellnessScore(ctx context.Context, userID string) (*WellnessReport, error) {
	profile, err := o.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	readings, err := o.recentReadings(ctx, userID)
	if err != nil {
		return nil, err
	}

	proc := stream.NewProcessor(o.cfg.Stream.SmoothingFactor)
	var scores []float64
	for _, r := range readings {
		scores = append(scores, proc.Derive(r, profile).WellnessScore)
	}

	report := &WellnessReport{SampleCount: len(scores)}
	if len(scores) == 0 {
		report.Score = 50
		return report, nil
	}
	report.Score = stat.Mean(scores, nil)
	return report, nil
}

// TeamAggregates builds k-anonymous hourly aggregates over the given team
// members' last hour of data. Members who have not opted into team sharing
// contribute nothing; survivors still pass through the per-type privacy
// filter before aggregation.
func (o *Orchestrator) TeamAggregates(ctx context.Context, teamID string, memberIDs []string) ([]*biometric.TeamAggregate, error) {
	var pool []*biometric.Reading
	for _, userID := range memberIDs {
		settings, err := o.privacy.CheckConsentStatus(ctx, userID)
		if err != nil {
			return nil, err
		}
		if settings.SharingLevel == biometric.SharingNone {
			continue
		}

		readings, err := o.recentReadings(ctx, userID)
		if err != nil {
			o.logger.Warn("skipping team member with unreadable data",
				zap.Error(err),
				zap.String("user_id", userID),
			)
			continue
		}
		filtered, err := o.privacy.ApplyPrivacySettings(ctx, userID, readings)
		if err != nil {
			return nil, err
		}
		pool = append(pool, filtered...)
	}
	return o.privacy.AnonymizeForTeamReporting(teamID, pool), nil
}

// AnalyzeHeartRateVariability computes RMSSD over the last hour, preferring
// device-reported variability samples and falling back to successive BPM
// differences.
func (o *Orchestrator) AnalyzeHeartRateVariability(ctx context.Context, userID string) (*HRVReport, error) {
	if _, err := o.GetProfile(ctx, userID); err != nil {
		return nil, err
	}
	readings, err := o.recentReadings(ctx, userID)
	if err != nil {
		return nil, err
	}

	var samples []float64
	for _, r := range readings {
		if r.HeartRate != nil && r.HeartRate.Variability != nil {
			samples = append(samples, *r.HeartRate.Variability)
		}
	}

	report := &HRVReport{}
	if len(samples) > 0 {
		report.RMSSD = stat.Mean(samples, nil)
		report.SampleCount = len(samples)
	} else {
		var bpms []float64
		for _, r := range readings {
			if r.HeartRate != nil {
				bpms = append(bpms, r.HeartRate.BPM)
			}
		}
		if len(bpms) >= 2 {
			var sumSq float64
			for i := 1; i < len(bpms); i++ {
				d := bpms[i] - bpms[i-1]
				sumSq += d * d
			}
			report.RMSSD = math.Sqrt(sumSq / float64(len(bpms)-1))
			report.SampleCount = len(bpms)
		}
	}

	switch {
	case report.SampleCount == 0:
		report.Assessment = "insufficient data"
	case report.RMSSD >= 50:
		report.Assessment = "good recovery"
	case report.RMSSD >= 20:
		report.Assessment = "moderate"
	default:
		report.Assessment = "elevated strain"
	}
	return report, nil
}
