package device

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/septivank/biometric-pipeline/internal/biometric"
	"github.com/septivank/biometric-pipeline/internal/config"
	"github.com/septivank/biometric-pipeline/tools/timeparser"
)

// RESTAdapter talks to a vendor's REST API. All three supported vendors are
// reached through the same endpoint shape, so one implementation per base URL
// covers them. Every call carries the configured timeout and is retried with
// backoff before a ConnectionError surfaces.
type RESTAdapter struct {
	client     *resty.Client
	vendor     string
	maxRetries int
	logger     *zap.Logger
}

// DefaultVendors maps the built-in device types to their API base URLs.
// Base URLs can be overridden per vendor via BIOMETRIC_<VENDOR>_BASE_URL.
func DefaultVendors() map[string]string {
	vendors := map[string]string{
		"fitbit":      "https://api.fitbit.com",
		"apple_watch": "https://api.apple-health.example.com",
		"garmin":      "https://apis.garmin.com",
	}
	for vendor := range vendors {
		key := "BIOMETRIC_" + strings.ToUpper(vendor) + "_BASE_URL"
		if v := os.Getenv(key); v != "" {
			vendors[vendor] = v
		}
	}
	return vendors
}

// NewRESTAdapter creates an adapter for one vendor API.
func NewRESTAdapter(vendor, baseURL string, cfg config.AdapterConfig, logger *zap.Logger) *RESTAdapter {
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second)

	return &RESTAdapter{
		client:     client,
		vendor:     vendor,
		maxRetries: cfg.MaxRetries,
		logger:     logger,
	}
}

type connectResponse struct {
	Success  bool   `json:"success"`
	DeviceID string `json:"device_id"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

func (a *RESTAdapter) Connect(ctx context.Context, userID string, creds Credentials) (*ConnectResult, error) {
	var out connectResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetAuthToken(creds.AccessToken).
		SetBody(map[string]string{"user_id": userID, "external_id": creds.ExternalID}).
		SetResult(&out).
		ForceContentType("application/json").
		Post("/v1/devices/connect")
	if err != nil {
		return nil, &biometric.ConnectionError{Attempts: a.maxRetries + 1, Err: err}
	}
	if resp.IsError() {
		return nil, &biometric.ConnectionError{
			Attempts: a.maxRetries + 1,
			Err:      fmt.Errorf("%s connect returned status %d", a.vendor, resp.StatusCode()),
		}
	}

	return &ConnectResult{
		Success:  out.Success,
		DeviceID: out.DeviceID,
		Status:   connectionStatus(out.Status, out.Success),
		Error:    out.Error,
	}, nil
}

func (a *RESTAdapter) GetCapabilities(ctx context.Context, deviceType string) ([]biometric.DataType, error) {
	var out struct {
		DataTypes []biometric.DataType `json:"data_types"`
	}
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParam("device_type", deviceType).
		SetResult(&out).
		ForceContentType("application/json").
		Get("/v1/devices/capabilities")
	if err != nil {
		return nil, &biometric.ConnectionError{Attempts: a.maxRetries + 1, Err: err}
	}
	if resp.IsError() {
		return nil, &biometric.ConnectionError{
			Attempts: a.maxRetries + 1,
			Err:      fmt.Errorf("%s capabilities returned status %d", a.vendor, resp.StatusCode()),
		}
	}
	return out.DataTypes, nil
}

func (a *RESTAdapter) Collect(ctx context.Context, deviceID string, dataTypes []biometric.DataType, tr TimeRange) ([]*biometric.Reading, error) {
	types := make([]string, len(dataTypes))
	for i, t := range dataTypes {
		types[i] = string(t)
	}

	var out struct {
		Readings []vendorReading `json:"readings"`
	}
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParamsFromValues(map[string][]string{"data_type": types}).
		SetQueryParam("start", tr.Start.Format(time.RFC3339)).
		SetQueryParam("end", tr.End.Format(time.RFC3339)).
		SetResult(&out).
		ForceContentType("application/json").
		Get("/v1/devices/" + deviceID + "/readings")
	if err != nil {
		return nil, &biometric.ConnectionError{DeviceID: deviceID, Attempts: a.maxRetries + 1, Err: err}
	}
	if resp.IsError() {
		return nil, &biometric.ConnectionError{
			DeviceID: deviceID,
			Attempts: a.maxRetries + 1,
			Err:      fmt.Errorf("%s collect returned status %d", a.vendor, resp.StatusCode()),
		}
	}

	readings := make([]*biometric.Reading, 0, len(out.Readings))
	for _, vr := range out.Readings {
		ts, err := timeparser.ParseDeviceTimestamp(vr.Timestamp)
		if err != nil {
			a.logger.Warn("dropping reading with unparseable timestamp",
				zap.String("vendor", a.vendor),
				zap.String("reading_id", vr.ID),
				zap.Error(err),
			)
			continue
		}
		r := vr.Reading
		r.Timestamp = ts
		readings = append(readings, &r)
	}

	a.logger.Debug("collected readings from vendor",
		zap.String("vendor", a.vendor),
		zap.String("device_id", deviceID),
		zap.Int("count", len(readings)),
	)
	return readings, nil
}

// vendorReading carries the raw timestamp string so vendor-specific formats
// can be normalized before the reading enters the pipeline.
type vendorReading struct {
	biometric.Reading
	Timestamp string `json:"timestamp"`
}

func (a *RESTAdapter) Refresh(ctx context.Context, deviceID string) (*ConnectResult, error) {
	var out connectResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetResult(&out).
		ForceContentType("application/json").
		Post("/v1/devices/" + deviceID + "/refresh")
	if err != nil {
		return nil, &biometric.ConnectionError{DeviceID: deviceID, Attempts: a.maxRetries + 1, Err: err}
	}
	if resp.IsError() {
		return nil, &biometric.ConnectionError{
			DeviceID: deviceID,
			Attempts: a.maxRetries + 1,
			Err:      fmt.Errorf("%s refresh returned status %d", a.vendor, resp.StatusCode()),
		}
	}
	return &ConnectResult{
		Success:  out.Success,
		DeviceID: deviceID,
		Status:   connectionStatus(out.Status, out.Success),
		Error:    out.Error,
	}, nil
}

func connectionStatus(s string, success bool) biometric.ConnectionStatus {
	switch biometric.ConnectionStatus(s) {
	case biometric.StatusConnected, biometric.StatusDisconnected, biometric.StatusError:
		return biometric.ConnectionStatus(s)
	}
	if success {
		return biometric.StatusConnected
	}
	return biometric.StatusError
}
