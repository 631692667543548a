package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/septivank/biometric-pipeline/internal/biometric"
)

// MemoryStore is the in-process backend. All maps are guarded by one RWMutex;
// values are copied on the way in and out so callers cannot mutate stored
// state behind the lock.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]biometric.Profile
	devices  map[string]map[string]biometric.Device // userID -> deviceID -> device
	consent  map[string]biometric.ConsentSettings
	audit    map[string][]biometric.AuditEntry
	alerts   map[string][]biometric.Alert
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[string]biometric.Profile),
		devices:  make(map[string]map[string]biometric.Device),
		consent:  make(map[string]biometric.ConsentSettings),
		audit:    make(map[string][]biometric.AuditEntry),
		alerts:   make(map[string][]biometric.Alert),
	}
}

// NewMemoryStores returns a Stores bundle backed by a single MemoryStore.
func NewMemoryStores() *Stores {
	m := NewMemoryStore()
	return &Stores{Profiles: m, Devices: m, Consent: m, Audit: m, Alerts: m}
}

func (m *MemoryStore) GetProfile(_ context.Context, userID string) (*biometric.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := p
	return &cp, nil
}

func (m *MemoryStore) SaveProfile(_ context.Context, profile *biometric.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[profile.UserID] = *profile
	return nil
}

func (m *MemoryStore) SaveDevice(_ context.Context, device *biometric.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.devices[device.UserID] == nil {
		m.devices[device.UserID] = make(map[string]biometric.Device)
	}
	m.devices[device.UserID][device.DeviceID] = *device
	return nil
}

func (m *MemoryStore) GetDevice(_ context.Context, userID, deviceID string) (*biometric.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.devices[userID][deviceID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := d
	return &cp, nil
}

func (m *MemoryStore) ListDevices(_ context.Context, userID string) ([]*biometric.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*biometric.Device, 0, len(m.devices[userID]))
	for _, d := range m.devices[userID] {
		cp := d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out, nil
}

func (m *MemoryStore) DeleteDevice(_ context.Context, userID, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[userID][deviceID]; !ok {
		return ErrNotFound
	}
	delete(m.devices[userID], deviceID)
	return nil
}

func (m *MemoryStore) GetConsent(_ context.Context, userID string) (*biometric.ConsentSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.consent[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyConsent(&c), nil
}

func (m *MemoryStore) SaveConsent(_ context.Context, settings *biometric.ConsentSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consent[settings.UserID] = *copyConsent(settings)
	return nil
}

func (m *MemoryStore) ListConsents(_ context.Context) ([]*biometric.ConsentSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*biometric.ConsentSettings, 0, len(m.consent))
	for _, c := range m.consent {
		cp := c
		out = append(out, copyConsent(&cp))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *MemoryStore) AppendAudit(_ context.Context, entry *biometric.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit[entry.UserID] = append(m.audit[entry.UserID], *entry)
	return nil
}

func (m *MemoryStore) ListAudit(_ context.Context, userID string, start, end *time.Time) ([]*biometric.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*biometric.AuditEntry
	appendMatching := func(entries []biometric.AuditEntry) {
		for i := range entries {
			e := entries[i]
			if start != nil && e.Timestamp.Before(*start) {
				continue
			}
			if end != nil && e.Timestamp.After(*end) {
				continue
			}
			out = append(out, &e)
		}
	}

	if userID != "" {
		appendMatching(m.audit[userID])
	} else {
		var users []string
		for u := range m.audit {
			users = append(users, u)
		}
		sort.Strings(users)
		for _, u := range users {
			appendMatching(m.audit[u])
		}
	}
	return out, nil
}

func (m *MemoryStore) PruneAudit(_ context.Context, userID string, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.audit[userID][:0]
	removed := 0
	for _, e := range m.audit[userID] {
		if e.Timestamp.Before(before) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	m.audit[userID] = kept
	return removed, nil
}

func (m *MemoryStore) SaveAlert(_ context.Context, alert *biometric.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, a := range m.alerts[alert.UserID] {
		if a.ID == alert.ID {
			m.alerts[alert.UserID][i] = *alert
			return nil
		}
	}
	m.alerts[alert.UserID] = append(m.alerts[alert.UserID], *alert)
	return nil
}

func (m *MemoryStore) ListAlerts(_ context.Context, userID string) ([]*biometric.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*biometric.Alert, 0, len(m.alerts[userID]))
	for i := range m.alerts[userID] {
		a := m.alerts[userID][i]
		out = append(out, &a)
	}
	return out, nil
}

func (m *MemoryStore) AcknowledgeAlert(_ context.Context, userID, alertID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, a := range m.alerts[userID] {
		if a.ID == alertID {
			m.alerts[userID][i].Acknowledged = true
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryStore) ClearAlerts(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.alerts, userID)
	return nil
}

func (m *MemoryStore) PruneAlerts(_ context.Context, userID string, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.alerts[userID][:0]
	removed := 0
	for _, a := range m.alerts[userID] {
		if a.Timestamp.Before(before) {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	m.alerts[userID] = kept
	return removed, nil
}

// copyConsent deep-copies settings so the stored map is never shared.
func copyConsent(c *biometric.ConsentSettings) *biometric.ConsentSettings {
	cp := *c
	cp.DataTypes = make(map[biometric.DataType]bool, len(c.DataTypes))
	for k, v := range c.DataTypes {
		cp.DataTypes[k] = v
	}
	return &cp
}
