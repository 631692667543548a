package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/septivank/biometric-pipeline/internal/biometric"
)

// Credentials carries what a vendor needs to authorize a connection. Token
// refresh is the vendor's concern, not ours.
type Credentials struct {
	AccessToken string `json:"access_token"`
	ExternalID  string `json:"external_id,omitempty"`
}

// ConnectResult is the outcome of a vendor connect call.
type ConnectResult struct {
	Success  bool
	DeviceID string
	Status   biometric.ConnectionStatus
	Error    string
}

// TimeRange bounds a collection request.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Adapter is the uniform contract every vendor integration implements. All
// calls must respect the context deadline.
type Adapter interface {
	Connect(ctx context.Context, userID string, creds Credentials) (*ConnectResult, error)
	GetCapabilities(ctx context.Context, deviceType string) ([]biometric.DataType, error)
	Collect(ctx context.Context, deviceID string, dataTypes []biometric.DataType, tr TimeRange) ([]*biometric.Reading, error)
	Refresh(ctx context.Context, deviceID string) (*ConnectResult, error)
}

// Registry maps device types to their adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register binds an adapter to a device type, replacing any previous binding.
func (r *Registry) Register(deviceType string, a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[deviceType] = a
}

// Lookup returns the adapter for a device type.
func (r *Registry) Lookup(deviceType string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[deviceType]
	if !ok {
		return nil, biometric.NewServiceError(biometric.CodeDeviceNotFound,
			fmt.Sprintf("no adapter registered for device type %q", deviceType))
	}
	return a, nil
}

// Types lists the registered device types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.adapters))
	for t := range r.adapters {
		out = append(out, t)
	}
	return out
}
