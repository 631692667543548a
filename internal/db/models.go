package db

import (
	"time"

	"github.com/google/uuid"
)

// StoredReading is an accepted biometric reading as persisted. The full
// reading travels in Payload; the extracted columns exist for querying.
type StoredReading struct {
	ID                uuid.UUID
	ReadingID         string
	UserID            string
	DeviceID          string
	ReadingTimestamp  time.Time
	ReceivedAt        time.Time
	HeartRateBPM      *float64
	StressLevel       *float64
	ActivityIntensity *float64
	ValidationStatus  string
	Payload           []byte
}
