package biometric

import (
	"time"
)

// DataType identifies a category of biometric data a device can produce.
type DataType string

const (
	DataTypeHeartRate DataType = "heart_rate"
	DataTypeStress    DataType = "stress"
	DataTypeActivity  DataType = "activity"
	DataTypeSleep     DataType = "sleep"
)

// AllDataTypes lists every data type the pipeline understands.
var AllDataTypes = []DataType{DataTypeHeartRate, DataTypeStress, DataTypeActivity, DataTypeSleep}

// HeartRateData is a single heart rate sample.
type HeartRateData struct {
	BPM         float64  `json:"bpm"`
	Variability *float64 `json:"variability,omitempty"` // RMSSD in ms, 0-100
	Confidence  float64  `json:"confidence"`
}

// StressData is a device-derived stress estimate on a 0-100 scale.
type StressData struct {
	Level      float64 `json:"level"`
	Confidence float64 `json:"confidence"`
}

// ActivityData carries movement metrics for the sample window.
type ActivityData struct {
	Steps         *int     `json:"steps,omitempty"`
	Calories      *float64 `json:"calories,omitempty"`
	DistanceKM    *float64 `json:"distance_km,omitempty"`
	ActiveMinutes *int     `json:"active_minutes,omitempty"`
	Intensity     float64  `json:"intensity"` // 0-1
}

// SleepData summarises a sleep session.
type SleepData struct {
	DurationMinutes  float64  `json:"duration_minutes"`
	Quality          float64  `json:"quality"` // 0-100
	DeepSleepMinutes *float64 `json:"deep_sleep_minutes,omitempty"`
	RemSleepMinutes  *float64 `json:"rem_sleep_minutes,omitempty"`
	Efficiency       *float64 `json:"efficiency,omitempty"`
}

// QualityMetrics describes how trustworthy a reading is.
type QualityMetrics struct {
	Accuracy        float64 `json:"accuracy"`
	Completeness    float64 `json:"completeness"`
	Reliability     float64 `json:"reliability"`
	OutlierDetected bool    `json:"outlier_detected"`
}

// Reading is one biometric sample from a wearable device. At least one of the
// optional sub-readings must be present.
type Reading struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`

	HeartRate *HeartRateData `json:"heart_rate,omitempty"`
	Stress    *StressData    `json:"stress,omitempty"`
	Activity  *ActivityData  `json:"activity,omitempty"`
	Sleep     *SleepData     `json:"sleep,omitempty"`

	Quality *QualityMetrics `json:"quality"`
}

// DataTypes returns the data types present on the reading.
func (r *Reading) DataTypes() []DataType {
	var types []DataType
	if r.HeartRate != nil {
		types = append(types, DataTypeHeartRate)
	}
	if r.Stress != nil {
		types = append(types, DataTypeStress)
	}
	if r.Activity != nil {
		types = append(types, DataTypeActivity)
	}
	if r.Sleep != nil {
		types = append(types, DataTypeSleep)
	}
	return types
}

// HasData reports whether at least one sub-reading is present.
func (r *Reading) HasData() bool {
	return r.HeartRate != nil || r.Stress != nil || r.Activity != nil || r.Sleep != nil
}

// Clone returns a deep copy of the reading.
func (r *Reading) Clone() *Reading {
	out := *r
	if r.HeartRate != nil {
		hr := *r.HeartRate
		if r.HeartRate.Variability != nil {
			v := *r.HeartRate.Variability
			hr.Variability = &v
		}
		out.HeartRate = &hr
	}
	if r.Stress != nil {
		st := *r.Stress
		out.Stress = &st
	}
	if r.Activity != nil {
		act := *r.Activity
		act.Steps = cloneInt(r.Activity.Steps)
		act.Calories = cloneFloat(r.Activity.Calories)
		act.DistanceKM = cloneFloat(r.Activity.DistanceKM)
		act.ActiveMinutes = cloneInt(r.Activity.ActiveMinutes)
		out.Activity = &act
	}
	if r.Sleep != nil {
		sl := *r.Sleep
		sl.DeepSleepMinutes = cloneFloat(r.Sleep.DeepSleepMinutes)
		sl.RemSleepMinutes = cloneFloat(r.Sleep.RemSleepMinutes)
		sl.Efficiency = cloneFloat(r.Sleep.Efficiency)
		out.Sleep = &sl
	}
	if r.Quality != nil {
		q := *r.Quality
		out.Quality = &q
	}
	return &out
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func cloneInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}

// Profile is a user's baseline snapshot used for anomaly detection and
// derived health metrics.
type Profile struct {
	UserID            string    `json:"user_id"`
	RestingHeartRate  float64   `json:"resting_heart_rate"`
	MaxHeartRate      float64   `json:"max_heart_rate"`
	StressBaseline    float64   `json:"stress_baseline"`
	FatigueBaseline   float64   `json:"fatigue_baseline"`
	SleepBaseline     float64   `json:"sleep_baseline"`    // typical nightly minutes
	ActivityBaseline  float64   `json:"activity_baseline"` // preferred intensity 0-1
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ConnectionStatus is the device link state.
type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusError        ConnectionStatus = "error"
)

// Device is a wearable registered for a user.
type Device struct {
	DeviceID   string           `json:"device_id"`
	UserID     string           `json:"user_id"`
	DeviceType string           `json:"device_type"`
	Status     ConnectionStatus `json:"status"`
	DataTypes  []DataType       `json:"data_types"`
	LastSync   time.Time        `json:"last_sync"`
}

// SharingLevel controls how far anonymized data may travel.
type SharingLevel string

const (
	SharingNone         SharingLevel = "none"
	SharingTeam         SharingLevel = "team"
	SharingOrganization SharingLevel = "organization"
)

// ValidSharingLevel reports whether s is one of the accepted levels.
func ValidSharingLevel(s SharingLevel) bool {
	return s == SharingNone || s == SharingTeam || s == SharingOrganization
}

// Retention period bounds in days.
const (
	MinRetentionDays = 1
	MaxRetentionDays = 2555
)

// ConsentSettings records what a user has agreed to share. First access
// yields the deny-all default.
type ConsentSettings struct {
	UserID            string            `json:"user_id"`
	DataTypes         map[DataType]bool `json:"data_types"`
	SharingLevel      SharingLevel      `json:"sharing_level"`
	RetentionDays     int               `json:"retention_days"`
	AllowResearch     bool              `json:"allow_research"`
	EmergencyOverride bool              `json:"emergency_override"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// DefaultConsent returns the deny-all settings handed out on first access.
func DefaultConsent(userID string) *ConsentSettings {
	dt := make(map[DataType]bool, len(AllDataTypes))
	for _, t := range AllDataTypes {
		dt[t] = false
	}
	return &ConsentSettings{
		UserID:        userID,
		DataTypes:     dt,
		SharingLevel:  SharingNone,
		RetentionDays: 365,
	}
}

// Allows reports whether the user consented to sharing the given data type.
func (c *ConsentSettings) Allows(t DataType) bool {
	return c.DataTypes[t]
}

// AlertSeverity orders wellness alerts by urgency.
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

var severityRank = map[AlertSeverity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Above reports whether s is strictly more severe than other.
func (s AlertSeverity) Above(other AlertSeverity) bool {
	return severityRank[s] > severityRank[other]
}

// Alert is a wellness alert raised by the real-time processor. It is retained
// until cleared and mutated only through acknowledge/clear.
type Alert struct {
	ID           string                 `json:"id"`
	UserID       string                 `json:"user_id"`
	Type         string                 `json:"type"`
	Severity     AlertSeverity          `json:"severity"`
	Message      string                 `json:"message"`
	Timestamp    time.Time              `json:"timestamp"`
	Data         map[string]interface{} `json:"data,omitempty"`
	Acknowledged bool                   `json:"acknowledged"`
}

// TeamAggregate is a k-anonymous hourly bucket of team biometrics. It never
// represents fewer than the k-anonymity floor of distinct users.
type TeamAggregate struct {
	TeamID               string    `json:"team_id"`
	WindowStart          time.Time `json:"window_start"`
	AvgHeartRate         *float64  `json:"avg_heart_rate,omitempty"`
	AvgStressLevel       *float64  `json:"avg_stress_level,omitempty"`
	AvgActivityIntensity *float64  `json:"avg_activity_intensity,omitempty"`
	ParticipantCount     int       `json:"participant_count"`
	ConfidenceLow        float64   `json:"confidence_low"`
	ConfidenceHigh       float64   `json:"confidence_high"`
}

// AuditEntry is an append-only record of a privacy-relevant action.
type AuditEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Action    string    `json:"action"`
	DataType  DataType  `json:"data_type,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Approved  bool      `json:"approved"`
}
