package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/naulify/naulify/internal/identity"
	"github.com/naulify/naulify/internal/logging"
)

// ErrDeviceRequired is returned when no device id was supplied.
var ErrDeviceRequired = errors.New("device id is required")

// FeedFunc returns the identity source for a device.
type FeedFunc func(deviceID string) IdentitySource

// Device is a gate together with the location it drives.
type Device struct {
	Gate     *Gate
	Location *Location

	lastSeen time.Time
}

// Manager keeps one started gate per client device. Devices that go unused
// for the idle timeout are evicted once StartEviction runs.
type Manager struct {
	feeds    FeedFunc
	profiles ProfileFetcher
	opts     []Option
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	devices   map[string]*Device
	closed    bool
	sweepStop chan struct{}
	sweeping  sync.WaitGroup
}

// NewManager creates a manager. opts apply to every gate it starts.
func NewManager(feeds FeedFunc, profiles ProfileFetcher, logger *slog.Logger, opts ...Option) *Manager {
	logger = logging.Component(logger, "session")
	return &Manager{
		feeds:    feeds,
		profiles: profiles,
		opts:     append([]Option{WithLogger(logger)}, opts...),
		logger:   logger,
		now:      time.Now,
		devices:  make(map[string]*Device),
	}
}

// Device returns the device's gate, creating and starting it on first use.
func (m *Manager) Device(deviceID string) (*Device, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, ErrDeviceRequired
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if d, ok := m.devices[deviceID]; ok {
		d.lastSeen = m.now()
		return d, nil
	}

	loc := NewLocation("/")
	gate := New(m.profiles, loc, m.opts...)
	if err := gate.Start(m.feeds(deviceID)); err != nil {
		return nil, err
	}
	d := &Device{Gate: gate, Location: loc, lastSeen: m.now()}
	m.devices[deviceID] = d
	m.logger.Debug("session started", slog.String("device_id", deviceID))
	return d, nil
}

// Len reports how many devices hold a gate.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.devices)
}

// Reload re-resolves the device's session, for example after its profile
// changed. A device without a gate has nothing to reload.
func (m *Manager) Reload(ctx context.Context, deviceID string) error {
	m.mu.Lock()
	d, ok := m.devices[strings.TrimSpace(deviceID)]
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if !ok {
		return nil
	}
	return d.Gate.Reload(ctx)
}

// Locate records that the device moved to path and re-evaluates its gate, so
// a device that wanders outside its allowed group is sent back.
func (m *Manager) Locate(deviceID, path string) (*Device, error) {
	d, err := m.Device(deviceID)
	if err != nil {
		return nil, err
	}
	d.Location.Visit(path)
	d.Gate.Evaluate()
	return d, nil
}

// Anonymous settles a throwaway gate for a client that named no device. It
// is never registered, so it holds nothing once the call returns.
func (m *Manager) Anonymous(ctx context.Context, path string) (View, error) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return View{}, ErrClosed
	}

	loc := NewLocation(path)
	gate := New(m.profiles, loc, m.opts...)
	defer gate.Close()
	if err := gate.Start(signedOut{}); err != nil {
		return View{}, err
	}
	_, err := gate.Await(ctx)
	return (&Device{Gate: gate, Location: loc}).View(), err
}

// signedOut is an identity source that only ever reports no identity.
type signedOut struct{}

func (signedOut) Subscribe(fn func(*identity.Identity)) func() {
	fn(nil)
	return func() {}
}

// Forget closes and drops one device's gate.
func (m *Manager) Forget(deviceID string) error {
	m.mu.Lock()
	d, ok := m.devices[deviceID]
	delete(m.devices, deviceID)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return d.Gate.Close()
}

// EvictIdle closes every gate unused for longer than maxIdle and returns how
// many were dropped.
func (m *Manager) EvictIdle(maxIdle time.Duration) int {
	cutoff := m.now().Add(-maxIdle)
	m.mu.Lock()
	var idle []*Device
	for id, d := range m.devices {
		if d.lastSeen.Before(cutoff) {
			idle = append(idle, d)
			delete(m.devices, id)
		}
	}
	m.mu.Unlock()

	for _, d := range idle {
		if err := d.Gate.Close(); err != nil {
			m.logger.Warn("close idle session", slog.Any("error", err))
		}
	}
	if len(idle) > 0 {
		m.logger.Debug("idle sessions evicted", slog.Int("count", len(idle)))
	}
	return len(idle)
}

// StartEviction runs EvictIdle every interval until Close. Later calls do
// nothing.
func (m *Manager) StartEviction(maxIdle, interval time.Duration) {
	if maxIdle <= 0 || interval <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.sweepStop != nil {
		return
	}
	stop := make(chan struct{})
	m.sweepStop = stop
	m.sweeping.Add(1)
	go func() {
		defer m.sweeping.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.EvictIdle(maxIdle)
			}
		}
	}()
}

// Close closes every gate. Later calls to Device fail with ErrClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	devices := m.devices
	m.devices = make(map[string]*Device)
	if m.sweepStop != nil {
		close(m.sweepStop)
	}
	m.mu.Unlock()
	m.sweeping.Wait()

	var errs []error
	for _, d := range devices {
		if err := d.Gate.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
