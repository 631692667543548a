package device_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/septivank/biometric-pipeline/internal/biometric"
	"github.com/septivank/biometric-pipeline/internal/config"
	"github.com/septivank/biometric-pipeline/internal/device"
)

func newAdapter(t *testing.T, handler http.Handler) *device.RESTAdapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := config.AdapterConfig{TimeoutSeconds: 5, MaxRetries: 0}
	return device.NewRESTAdapter("fitbit", srv.URL, cfg, zap.NewNop())
}

func TestRegistry(t *testing.T) {
	registry := device.NewRegistry()
	adapter := newAdapter(t, http.NotFoundHandler())
	registry.Register("fitbit", adapter)

	got, err := registry.Lookup("fitbit")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != adapter {
		t.Error("Expected the registered adapter back")
	}

	_, err = registry.Lookup("pebble")
	var svcErr *biometric.ServiceError
	if !errors.As(err, &svcErr) || svcErr.Code != biometric.CodeDeviceNotFound {
		t.Fatalf("Expected device-not-found error, got %v", err)
	}

	if types := registry.Types(); len(types) != 1 || types[0] != "fitbit" {
		t.Errorf("Expected one registered type, got %v", types)
	}
}

func TestRESTAdapter_Connect(t *testing.T) {
	var gotAuth string
	adapter := newAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/devices/connect" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]any{
			"success":   true,
			"device_id": "d1",
			"status":    "connected",
		})
	}))

	result, err := adapter.Connect(context.Background(), "user-1", device.Credentials{AccessToken: "tok"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !result.Success || result.DeviceID != "d1" {
		t.Errorf("Unexpected result: %+v", result)
	}
	if result.Status != biometric.StatusConnected {
		t.Errorf("Expected connected status, got %s", result.Status)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("Expected bearer token forwarded, got %q", gotAuth)
	}
}

func TestRESTAdapter_ConnectServerError(t *testing.T) {
	adapter := newAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := adapter.Connect(context.Background(), "user-1", device.Credentials{AccessToken: "tok"})
	var connErr *biometric.ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("Expected a connection error, got %v", err)
	}
	if connErr.Attempts != 1 {
		t.Errorf("Expected 1 attempt recorded, got %d", connErr.Attempts)
	}
}

func TestRESTAdapter_CollectNormalizesTimestamps(t *testing.T) {
	adapter := newAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("start") == "" || r.URL.Query().Get("end") == "" {
			t.Error("Expected start and end query params")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"readings": []map[string]any{
				{
					"id":         "r1",
					"user_id":    "user-1",
					"timestamp":  "2026-08-29T10:30:00Z",
					"heart_rate": map[string]any{"bpm": 72, "confidence": 0.9},
				},
				{
					"id":         "r2",
					"user_id":    "user-1",
					"timestamp":  "2026-08-29T10:31:00",
					"heart_rate": map[string]any{"bpm": 74, "confidence": 0.9},
				},
				{
					"id":        "r3",
					"user_id":   "user-1",
					"timestamp": "half past ten",
				},
			},
		})
	}))

	tr := device.TimeRange{Start: time.Now().Add(-time.Hour), End: time.Now()}
	readings, err := adapter.Collect(context.Background(), "d1", []biometric.DataType{biometric.DataTypeHeartRate}, tr)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(readings) != 2 {
		t.Fatalf("Expected 2 readings after dropping the unparseable one, got %d", len(readings))
	}
	if readings[0].Timestamp.Minute() != 30 || readings[1].Timestamp.Minute() != 31 {
		t.Errorf("Unexpected timestamps: %v %v", readings[0].Timestamp, readings[1].Timestamp)
	}
	if readings[1].HeartRate == nil || readings[1].HeartRate.BPM != 74 {
		t.Errorf("Expected heart rate carried through, got %+v", readings[1].HeartRate)
	}
}

func TestRESTAdapter_CollectServerError(t *testing.T) {
	adapter := newAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	tr := device.TimeRange{Start: time.Now().Add(-time.Hour), End: time.Now()}
	_, err := adapter.Collect(context.Background(), "d1", nil, tr)
	var connErr *biometric.ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("Expected a connection error, got %v", err)
	}
	if connErr.DeviceID != "d1" {
		t.Errorf("Expected device id in error, got %q", connErr.DeviceID)
	}
}
