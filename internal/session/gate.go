package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/naulify/naulify/internal/identity"
	"github.com/naulify/naulify/internal/logging"
	"github.com/naulify/naulify/internal/profile"
)

// DefaultFetchTimeout bounds a single profile lookup.
const DefaultFetchTimeout = 10 * time.Second

var (
	ErrClosed         = errors.New("session gate closed")
	ErrAlreadyStarted = errors.New("session gate already started")
)

// IdentitySource delivers the current identity immediately on Subscribe and
// then once per sign-in or sign-out.
type IdentitySource interface {
	Subscribe(fn func(*identity.Identity)) (unsubscribe func())
}

// ProfileFetcher looks up the profile for an identity. A missing profile is
// reported as profile.ErrNotFound.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, identityID string) (profile.Profile, error)
}

// Navigator is the device's location. Replace must discard back-history.
// The gate calls it under its own lock, so it must not call back into the
// gate.
type Navigator interface {
	CurrentGroup() Group
	Replace(target Group)
}

// Option configures a Gate.
type Option func(*Gate)

// WithFetchTimeout overrides DefaultFetchTimeout.
func WithFetchTimeout(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithLogger sets the gate's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logging.Component(logger, "session")
	}
}

// Gate owns one device's session state and keeps its location in the group
// that state requires.
type Gate struct {
	profiles ProfileFetcher
	nav      Navigator
	timeout  time.Duration
	logger   *slog.Logger

	// ctx is cancelled on Close so in-flight lookups stop early.
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	state       State
	gen         uint64
	latest      *identity.Identity
	dispatched  bool
	started     bool
	closed      bool
	unsubscribe func()
	subs        map[uint64]chan State
	nextSub     uint64

	wg sync.WaitGroup
}

// New creates a gate in the initial loading state. It does nothing until
// Start subscribes it to an identity source.
func New(profiles ProfileFetcher, nav Navigator, opts ...Option) *Gate {
	ctx, cancel := context.WithCancel(context.Background())
	g := &Gate{
		profiles: profiles,
		nav:      nav,
		timeout:  DefaultFetchTimeout,
		logger:   logging.Component(nil, "session"),
		ctx:      ctx,
		cancel:   cancel,
		state:    State{Loading: true},
		subs:     make(map[uint64]chan State),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Start subscribes the gate to src. The subscription is held until Close.
func (g *Gate) Start(src IdentitySource) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrClosed
	}
	if g.started {
		g.mu.Unlock()
		return ErrAlreadyStarted
	}
	g.started = true
	g.mu.Unlock()

	// Subscribe calls back synchronously, so g.mu must not be held here.
	unsubscribe := src.Subscribe(g.OnIdentityChanged)

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		unsubscribe()
		return ErrClosed
	}
	g.unsubscribe = unsubscribe
	g.mu.Unlock()
	return nil
}

// OnIdentityChanged starts resolving the session for id. It returns without
// waiting for the profile lookup, so it is safe to call from an identity
// source's callback.
func (g *Gate) OnIdentityChanged(id *identity.Identity) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.dispatched = true
	gen := g.beginLocked(id)
	g.wg.Add(1)
	g.mu.Unlock()

	go func() {
		defer g.wg.Done()
		g.resolve(gen, id)
	}()
}

// Reload re-resolves the session for the most recently dispatched identity,
// typically after the profile was created or edited. It waits for the result
// unless ctx ends first, in which case resolution continues in the
// background. Before the first identity event it does nothing.
func (g *Gate) Reload(ctx context.Context) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrClosed
	}
	if !g.dispatched {
		g.mu.Unlock()
		return nil
	}
	id := g.latest
	gen := g.beginLocked(id)
	g.wg.Add(1)
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer g.wg.Done()
		defer close(done)
		g.resolve(gen, id)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// beginLocked takes a new generation and enters the loading state.
func (g *Gate) beginLocked(id *identity.Identity) uint64 {
	g.gen++
	g.latest = id
	if !g.state.Loading {
		g.state.Loading = true
		g.publishLocked()
	}
	return g.gen
}

func (g *Gate) resolve(gen uint64, id *identity.Identity) {
	var p *profile.Profile
	if id != nil {
		p = g.fetch(id)
	}
	g.commit(gen, id, p)
}

// fetch looks up the profile for id. Every failure, including the timeout,
// resolves to no profile.
func (g *Gate) fetch(id *identity.Identity) *profile.Profile {
	ctx, cancel := context.WithTimeout(g.ctx, g.timeout)
	defer cancel()

	type result struct {
		p   profile.Profile
		err error
	}
	ch := make(chan result, 1)
	go func() {
		p, err := g.profiles.FetchProfile(ctx, id.ID)
		ch <- result{p: p, err: err}
	}()

	var r result
	select {
	case r = <-ch:
	case <-ctx.Done():
		r.err = ctx.Err()
	}

	switch {
	case r.err == nil:
		return &r.p
	case errors.Is(r.err, profile.ErrNotFound):
		g.logger.Debug("no profile on file", slog.String("user_id", id.ID))
	case errors.Is(r.err, context.Canceled) && g.ctx.Err() != nil:
		// Closing; the commit is discarded anyway.
	default:
		g.logger.Warn("profile lookup failed, treating as not onboarded",
			slog.String("user_id", id.ID),
			slog.Any("error", r.err),
		)
	}
	return nil
}

// commit applies a resolution unless a newer trigger superseded it. The
// location is brought in line before subscribers hear about the new state.
func (g *Gate) commit(gen uint64, id *identity.Identity, p *profile.Profile) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed || gen != g.gen {
		g.logger.Debug("dropping superseded session resolution", slog.Uint64("generation", gen))
		return false
	}
	if id == nil {
		p = nil
	}
	g.state = State{Identity: id, Profile: p}
	g.evaluateLocked()
	g.publishLocked()
	return true
}

// Evaluate applies Transition to the current state and the navigator's
// current group, replacing the location when required. It reports the
// target and whether a replace was issued.
func (g *Gate) Evaluate() (Group, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.evaluateLocked()
}

func (g *Gate) evaluateLocked() (Group, bool) {
	if g.nav == nil || g.closed {
		return GroupNone, false
	}
	target, ok := Transition(g.nav.CurrentGroup(), g.state)
	if ok {
		g.nav.Replace(target)
		g.logger.Debug("navigation replaced",
			slog.String("decision", g.state.Decision().String()),
			slog.String("target", string(target)),
		)
	}
	return target, ok
}

// Holder returns the most recently dispatched identity. While a fetch is in
// flight it is ahead of State().Identity.
func (g *Gate) Holder() *identity.Identity {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.latest
}

// State returns the current snapshot.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Subscribe returns a channel that always holds the latest state. A slow
// reader skips intermediate states but never misses the newest one. The
// channel is closed by cancel or by Close.
func (g *Gate) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	ch <- g.state
	g.nextSub++
	id := g.nextSub
	g.subs[id] = ch
	g.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			if c, ok := g.subs[id]; ok {
				delete(g.subs, id)
				close(c)
			}
		})
	}
}

// publishLocked replaces whatever each subscriber has not read yet. Sends
// happen only under g.mu, so the drained buffer always has room.
func (g *Gate) publishLocked() {
	for _, ch := range g.subs {
		select {
		case <-ch:
		default:
		}
		ch <- g.state
	}
}

// Await blocks until the gate is not loading and returns that state.
func (g *Gate) Await(ctx context.Context) (State, error) {
	ch, cancel := g.Subscribe()
	defer cancel()
	for {
		select {
		case st, ok := <-ch:
			if !ok {
				return g.State(), ErrClosed
			}
			if !st.Loading {
				return st, nil
			}
		case <-ctx.Done():
			return g.State(), ctx.Err()
		}
	}
}

// Close releases the identity subscription, discards in-flight lookups and
// waits for their goroutines to finish. It is safe to call more than once.
func (g *Gate) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	g.gen++
	unsubscribe := g.unsubscribe
	g.unsubscribe = nil
	for id, ch := range g.subs {
		delete(g.subs, id)
		close(ch)
	}
	g.mu.Unlock()

	// The identity source may be calling OnIdentityChanged under its own lock,
	// so unsubscribe only after releasing g.mu.
	if unsubscribe != nil {
		unsubscribe()
	}
	g.cancel()
	g.wg.Wait()
	return nil
}
