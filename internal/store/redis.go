package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/septivank/biometric-pipeline/internal/biometric"
)

// Key layout:
//
//	biometric:profile:{userID}
//	biometric:device:{userID}:{deviceID}
//	biometric:consent:{userID}
//	biometric:audit:{userID}          (list of JSON entries)
//	biometric:alert:{userID}:{alertID}
type RedisStore struct {
	c *redis.Client
}

// NewRedisStore wraps a Redis client with the store contracts.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{c: client}
}

// NewRedisStores returns a Stores bundle backed by a single RedisStore.
func NewRedisStores(client *redis.Client) *Stores {
	r := NewRedisStore(client)
	return &Stores{Profiles: r, Devices: r, Consent: r, Audit: r, Alerts: r}
}

func (r *RedisStore) getJSON(ctx context.Context, key string, out interface{}) error {
	val, err := r.c.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return ErrNotFound
		}
		return fmt.Errorf("redis get %s: %w", key, err)
	}
	return json.Unmarshal([]byte(val), out)
}

func (r *RedisStore) setJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return r.c.Set(ctx, key, data, ttl).Err()
}

func (r *RedisStore) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		k, next, err := r.c.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan %s: %w", pattern, err)
		}
		keys = append(keys, k...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

func (r *RedisStore) GetProfile(ctx context.Context, userID string) (*biometric.Profile, error) {
	var p biometric.Profile
	if err := r.getJSON(ctx, "biometric:profile:"+userID, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *RedisStore) SaveProfile(ctx context.Context, profile *biometric.Profile) error {
	return r.setJSON(ctx, "biometric:profile:"+profile.UserID, profile, 0)
}

func deviceKey(userID, deviceID string) string {
	return fmt.Sprintf("biometric:device:%s:%s", userID, deviceID)
}

func (r *RedisStore) SaveDevice(ctx context.Context, device *biometric.Device) error {
	return r.setJSON(ctx, deviceKey(device.UserID, device.DeviceID), device, 0)
}

func (r *RedisStore) GetDevice(ctx context.Context, userID, deviceID string) (*biometric.Device, error) {
	var d biometric.Device
	if err := r.getJSON(ctx, deviceKey(userID, deviceID), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *RedisStore) ListDevices(ctx context.Context, userID string) ([]*biometric.Device, error) {
	keys, err := r.scanKeys(ctx, fmt.Sprintf("biometric:device:%s:*", userID))
	if err != nil {
		return nil, err
	}
	out := make([]*biometric.Device, 0, len(keys))
	for _, key := range keys {
		var d biometric.Device
		if err := r.getJSON(ctx, key, &d); err != nil {
			if err == ErrNotFound {
				continue
			}
			return nil, err
		}
		out = append(out, &d)
	}
	return out, nil
}

func (r *RedisStore) DeleteDevice(ctx context.Context, userID, deviceID string) error {
	n, err := r.c.Del(ctx, deviceKey(userID, deviceID)).Result()
	if err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RedisStore) GetConsent(ctx context.Context, userID string) (*biometric.ConsentSettings, error) {
	var c biometric.ConsentSettings
	if err := r.getJSON(ctx, "biometric:consent:"+userID, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *RedisStore) SaveConsent(ctx context.Context, settings *biometric.ConsentSettings) error {
	return r.setJSON(ctx, "biometric:consent:"+settings.UserID, settings, 0)
}

func (r *RedisStore) ListConsents(ctx context.Context) ([]*biometric.ConsentSettings, error) {
	keys, err := r.scanKeys(ctx, "biometric:consent:*")
	if err != nil {
		return nil, err
	}
	out := make([]*biometric.ConsentSettings, 0, len(keys))
	for _, key := range keys {
		var c biometric.ConsentSettings
		if err := r.getJSON(ctx, key, &c); err != nil {
			if err == ErrNotFound {
				continue
			}
			return nil, err
		}
		out = append(out, &c)
	}
	return out, nil
}

func (r *RedisStore) AppendAudit(ctx context.Context, entry *biometric.AuditEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	return r.c.RPush(ctx, "biometric:audit:"+entry.UserID, data).Err()
}

func (r *RedisStore) ListAudit(ctx context.Context, userID string, start, end *time.Time) ([]*biometric.AuditEntry, error) {
	keys := []string{"biometric:audit:" + userID}
	if userID == "" {
		var err error
		keys, err = r.scanKeys(ctx, "biometric:audit:*")
		if err != nil {
			return nil, err
		}
	}

	var out []*biometric.AuditEntry
	for _, key := range keys {
		vals, err := r.c.LRange(ctx, key, 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lrange %s: %w", key, err)
		}
		for _, v := range vals {
			var e biometric.AuditEntry
			if err := json.Unmarshal([]byte(v), &e); err != nil {
				return nil, fmt.Errorf("unmarshal audit entry: %w", err)
			}
			if start != nil && e.Timestamp.Before(*start) {
				continue
			}
			if end != nil && e.Timestamp.After(*end) {
				continue
			}
			out = append(out, &e)
		}
	}
	return out, nil
}

func (r *RedisStore) PruneAudit(ctx context.Context, userID string, before time.Time) (int, error) {
	key := "biometric:audit:" + userID
	vals, err := r.c.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("redis lrange %s: %w", key, err)
	}

	removed := 0
	kept := make([]interface{}, 0, len(vals))
	for _, v := range vals {
		var e biometric.AuditEntry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			continue
		}
		if e.Timestamp.Before(before) {
			removed++
			continue
		}
		kept = append(kept, v)
	}
	if removed == 0 {
		return 0, nil
	}

	pipe := r.c.TxPipeline()
	pipe.Del(ctx, key)
	if len(kept) > 0 {
		pipe.RPush(ctx, key, kept...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis prune %s: %w", key, err)
	}
	return removed, nil
}

func alertKey(userID, alertID string) string {
	return fmt.Sprintf("biometric:alert:%s:%s", userID, alertID)
}

func (r *RedisStore) SaveAlert(ctx context.Context, alert *biometric.Alert) error {
	return r.setJSON(ctx, alertKey(alert.UserID, alert.ID), alert, 0)
}

func (r *RedisStore) ListAlerts(ctx context.Context, userID string) ([]*biometric.Alert, error) {
	keys, err := r.scanKeys(ctx, fmt.Sprintf("biometric:alert:%s:*", userID))
	if err != nil {
		return nil, err
	}
	out := make([]*biometric.Alert, 0, len(keys))
	for _, key := range keys {
		var a biometric.Alert
		if err := r.getJSON(ctx, key, &a); err != nil {
			if err == ErrNotFound {
				continue
			}
			return nil, err
		}
		out = append(out, &a)
	}
	return out, nil
}

func (r *RedisStore) AcknowledgeAlert(ctx context.Context, userID, alertID string) error {
	var a biometric.Alert
	if err := r.getJSON(ctx, alertKey(userID, alertID), &a); err != nil {
		return err
	}
	a.Acknowledged = true
	return r.setJSON(ctx, alertKey(userID, alertID), &a, 0)
}

func (r *RedisStore) ClearAlerts(ctx context.Context, userID string) error {
	keys, err := r.scanKeys(ctx, fmt.Sprintf("biometric:alert:%s:*", userID))
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return r.c.Del(ctx, keys...).Err()
}

func (r *RedisStore) PruneAlerts(ctx context.Context, userID string, before time.Time) (int, error) {
	alerts, err := r.ListAlerts(ctx, userID)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, a := range alerts {
		if a.Timestamp.Before(before) {
			if err := r.c.Del(ctx, alertKey(userID, a.ID)).Err(); err != nil {
				return removed, fmt.Errorf("redis del alert: %w", err)
			}
			removed++
		}
	}
	return removed, nil
}
