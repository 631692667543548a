package privacy

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/septivank/biometric-pipeline/internal/biometric"
)

// AnonymizeForTeamReporting buckets readings into fixed one-hour windows and
// aggregates each window into a TeamAggregate. Windows with fewer distinct
// participants than the k-anonymity floor are discarded entirely: no
// aggregate ever represents fewer than minParticipants people.
func (m *Manager) AnonymizeForTeamReporting(teamID string, readings []*biometric.Reading) []*biometric.TeamAggregate {
	type window struct {
		users     map[string]bool
		heartRate []float64
		stress    []float64
		intensity []float64
	}

	windows := make(map[time.Time]*window)
	for _, r := range readings {
		start := r.Timestamp.Truncate(time.Hour)
		w, ok := windows[start]
		if !ok {
			w = &window{users: make(map[string]bool)}
			windows[start] = w
		}
		w.users[r.UserID] = true
		if r.HeartRate != nil {
			w.heartRate = append(w.heartRate, r.HeartRate.BPM)
		}
		if r.Stress != nil {
			w.stress = append(w.stress, r.Stress.Level)
		}
		if r.Activity != nil {
			w.intensity = append(w.intensity, r.Activity.Intensity)
		}
	}

	var out []*biometric.TeamAggregate
	for start, w := range windows {
		if len(w.users) < m.minParticipants {
			continue
		}

		margin := 1.96 / math.Sqrt(float64(len(w.users)))
		agg := &biometric.TeamAggregate{
			TeamID:           teamID,
			WindowStart:      start,
			ParticipantCount: len(w.users),
			ConfidenceLow:    clamp01(1 - margin),
			ConfidenceHigh:   clamp01(1 + margin),
		}
		if len(w.heartRate) > 0 {
			v := stat.Mean(w.heartRate, nil)
			agg.AvgHeartRate = &v
		}
		if len(w.stress) > 0 {
			v := stat.Mean(w.stress, nil)
			agg.AvgStressLevel = &v
		}
		if len(w.intensity) > 0 {
			v := stat.Mean(w.intensity, nil)
			agg.AvgActivityIntensity = &v
		}
		out = append(out, agg)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].WindowStart.Before(out[j].WindowStart) })
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
