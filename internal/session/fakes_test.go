package session

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/naulify/naulify/internal/identity"
	"github.com/naulify/naulify/internal/profile"
)

// fakeSource calls subscribers under its lock, like the identity service.
type fakeSource struct {
	mu      sync.Mutex
	current *identity.Identity
	subs    map[int]func(*identity.Identity)
	next    int
}

func newFakeSource(initial *identity.Identity) *fakeSource {
	return &fakeSource{current: initial, subs: make(map[int]func(*identity.Identity))}
}

func (s *fakeSource) Subscribe(fn func(*identity.Identity)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := s.next
	s.subs[id] = fn
	fn(s.current)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *fakeSource) Emit(id *identity.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = id
	for _, fn := range s.subs {
		fn(id)
	}
}

func (s *fakeSource) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// stubFetcher serves profiles from a map. A blocked id waits until released
// or its context ends; the profile map is read after the wait.
type stubFetcher struct {
	mu       sync.Mutex
	profiles map[string]profile.Profile
	blocked  map[string]chan struct{}
	err      error
	jitter   *rand.Rand
	maxDelay time.Duration
	calls    int
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		profiles: make(map[string]profile.Profile),
		blocked:  make(map[string]chan struct{}),
	}
}

func (f *stubFetcher) FetchProfile(ctx context.Context, id string) (profile.Profile, error) {
	f.mu.Lock()
	f.calls++
	gate := f.blocked[id]
	var delay time.Duration
	if f.jitter != nil && f.maxDelay > 0 {
		delay = time.Duration(f.jitter.Int63n(int64(f.maxDelay)))
	}
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return profile.Profile{}, ctx.Err()
		}
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return profile.Profile{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return profile.Profile{}, f.err
	}
	p, ok := f.profiles[id]
	if !ok {
		return profile.Profile{}, profile.ErrNotFound
	}
	return p, nil
}

func (f *stubFetcher) put(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[id] = profile.Profile{UID: id, OwnerName: "Owner " + id, VehicleRegistration: "KDA 001A"}
}

func (f *stubFetcher) block(id string) func() {
	ch := make(chan struct{})
	f.mu.Lock()
	f.blocked[id] = ch
	f.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.blocked, id)
			f.mu.Unlock()
			close(ch)
		})
	}
}

func (f *stubFetcher) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// recordingNav is a Navigator that remembers every replace.
type recordingNav struct {
	mu       sync.Mutex
	group    Group
	replaces []Group
}

func (n *recordingNav) CurrentGroup() Group {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.group
}

func (n *recordingNav) Replace(target Group) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.group = target
	n.replaces = append(n.replaces, target)
}

func (n *recordingNav) moveTo(g Group) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.group = g
}

func (n *recordingNav) Replaces() []Group {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Group(nil), n.replaces...)
}

func user(id string) *identity.Identity {
	return &identity.Identity{ID: id, Email: id + "@example.com"}
}
