package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/septivank/biometric-pipeline/internal/biometric"
	"github.com/septivank/biometric-pipeline/internal/config"
	"github.com/septivank/biometric-pipeline/internal/store"
)

// AlertSink receives every alert the processor generates.
type AlertSink func(ctx context.Context, alert *biometric.Alert)

// ProfileFunc resolves a user's baseline profile.
type ProfileFunc func(ctx context.Context, userID string) (*biometric.Profile, error)

// Manager owns one pipeline per streaming user. Pipelines are started
// idempotently when the first device connects and stopped when the last
// device disconnects.
type Manager struct {
	cfg      config.StreamConfig
	proc     *Processor
	profiles ProfileFunc
	logger   *zap.Logger

	mu        sync.Mutex
	pipelines map[string]*Pipeline
	alerts    AlertSink
}

// NewManager creates the stream manager.
func NewManager(cfg config.StreamConfig, profiles ProfileFunc, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:       cfg,
		proc:      NewProcessor(cfg.SmoothingFactor),
		profiles:  profiles,
		logger:    logger,
		pipelines: make(map[string]*Pipeline),
	}
}

// SetAlertSink wires the consumer of generated alerts. Must be called before
// the first pipeline starts.
func (m *Manager) SetAlertSink(sink AlertSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = sink
}

// Pipeline is one user's live processing stream.
type Pipeline struct {
	userID      string
	in          chan *biometric.Reading
	broadcaster *Broadcaster
	cancel      context.CancelFunc
	done        chan struct{}
}

// Start launches the user's pipeline if it is not already running.
// Connecting a second device attaches to the same stream.
func (m *Manager) Start(userID string) *Pipeline {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.pipelines[userID]; ok {
		return p
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		userID:      userID,
		in:          make(chan *biometric.Reading, 64),
		broadcaster: NewBroadcaster(m.cfg.SubscriberBuffer),
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	m.pipelines[userID] = p

	go m.run(ctx, p)
	m.logger.Info("stream pipeline started", zap.String("user_id", userID))
	return p
}

// Stop shuts the user's pipeline down and closes all its subscribers.
func (m *Manager) Stop(userID string) {
	m.mu.Lock()
	p, ok := m.pipelines[userID]
	if ok {
		delete(m.pipelines, userID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	p.cancel()
	<-p.done
	m.logger.Info("stream pipeline stopped", zap.String("user_id", userID))
}

// StopAll shuts down every pipeline. Used on application shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	pipelines := make([]*Pipeline, 0, len(m.pipelines))
	for _, p := range m.pipelines {
		pipelines = append(pipelines, p)
	}
	m.pipelines = make(map[string]*Pipeline)
	m.mu.Unlock()

	for _, p := range pipelines {
		p.cancel()
		<-p.done
	}
}

// Active reports whether the user has a running pipeline.
func (m *Manager) Active(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pipelines[userID]
	return ok
}

// Subscribe attaches a consumer to the user's live feed. Unsubscribing stops
// delivery for this consumer only; the pipeline keeps running for others.
func (m *Manager) Subscribe(userID string) (<-chan Event, func(), error) {
	m.mu.Lock()
	p, ok := m.pipelines[userID]
	m.mu.Unlock()
	if !ok {
		return nil, nil, &biometric.ServiceError{
			Code:    biometric.CodeStreamClosed,
			Message: "no active stream for user",
			UserID:  userID,
		}
	}

	ch, cancel := p.broadcaster.SubscribeWith(Event{
		Kind:      EventConnected,
		UserID:    userID,
		Timestamp: time.Now(),
	})
	return ch, cancel, nil
}

// Offer pushes a reading into the user's pipeline. Readings offered while no
// pipeline runs are discarded with an error.
func (m *Manager) Offer(userID string, r *biometric.Reading) error {
	m.mu.Lock()
	p, ok := m.pipelines[userID]
	m.mu.Unlock()
	if !ok {
		return &biometric.ServiceError{
			Code:    biometric.CodeStreamClosed,
			Message: "no active stream for user",
			UserID:  userID,
		}
	}

	select {
	case p.in <- r:
		return nil
	default:
		// Input buffer full: the debounce window will coalesce anyway, so
		// dropping the oldest pending reading keeps the stream fresh.
		select {
		case <-p.in:
		default:
		}
		select {
		case p.in <- r:
		default:
		}
		return nil
	}
}

// run is the single-threaded per-user loop: debounce-coalesce incoming
// readings, process the most recent one, fan results out. Readings are
// processed in non-decreasing timestamp order; stale arrivals are dropped.
func (m *Manager) run(ctx context.Context, p *Pipeline) {
	defer close(p.done)
	defer p.broadcaster.Close()

	debounce := time.Duration(m.cfg.DebounceMillis) * time.Millisecond
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	var (
		pending  *biometric.Reading
		state    smoothState
		lastTS   time.Time
		failures int
	)

	for {
		select {
		case <-ctx.Done():
			return

		case r := <-p.in:
			if !Acceptable(r) || r.Timestamp.Before(lastTS) {
				continue
			}
			if pending == nil {
				timer.Reset(debounce)
			}
			pending = r // coalesce to the most recent reading

		case <-timer.C:
			if pending == nil {
				continue
			}
			r := pending
			pending = nil

			pr, err := m.processOne(ctx, r, &state)
			if err != nil {
				failures++
				p.broadcaster.Publish(Event{
					Kind:      EventError,
					UserID:    p.userID,
					Timestamp: time.Now(),
					Message:   err.Error(),
				})
				if failures > m.cfg.MaxRetries {
					m.logger.Error("stream pipeline failing persistently, shutting down",
						zap.String("user_id", p.userID),
						zap.Int("failures", failures),
						zap.Error(err),
					)
					p.broadcaster.Publish(Event{
						Kind:      EventError,
						UserID:    p.userID,
						Timestamp: time.Now(),
						Message:   "stream terminated after repeated processing failures",
					})
					m.remove(p)
					return
				}
				// Degrade to a minimal-confidence passthrough record.
				pr = m.proc.Degrade(r)
			} else {
				failures = 0
			}

			lastTS = r.Timestamp
			p.broadcaster.Publish(Event{
				Kind:      EventData,
				UserID:    p.userID,
				Timestamp: r.Timestamp,
				Reading:   pr,
			})

			if err == nil {
				for _, alert := range m.proc.Alerts(pr) {
					m.dispatchAlert(ctx, alert)
				}
			}
		}
	}
}

// remove drops a pipeline that terminated on its own, so a later Start can
// re-create it. Guards against racing a Stop that already replaced the entry.
func (m *Manager) remove(p *Pipeline) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.pipelines[p.userID]; ok && cur == p {
		delete(m.pipelines, p.userID)
	}
}

func (m *Manager) processOne(ctx context.Context, r *biometric.Reading, state *smoothState) (*ProcessedReading, error) {
	profile, err := m.profiles(ctx, r.UserID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return m.proc.Process(r, profile, state)
}

func (m *Manager) dispatchAlert(ctx context.Context, alert *biometric.Alert) {
	m.mu.Lock()
	sink := m.alerts
	m.mu.Unlock()
	if sink == nil {
		return
	}
	sink(ctx, alert)
}
