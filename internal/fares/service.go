package fares

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/naulify/naulify/internal/logging"
)

var (
	ErrEmptyDescription = errors.New("route description cannot be empty")
	ErrInvalidFare      = errors.New("fare must be a positive number")
	ErrNotFound         = errors.New("route not found")
	ErrClosed           = errors.New("fares service closed")
)

// Service manages an operator's routes and streams changes to watchers.
type Service struct {
	repo   Repository
	hub    *hub
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds a fares service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		hub:    newHub(),
		logger: logging.Component(logger, "fares"),
		now:    time.Now,
	}
}

// Add creates a route for owner.
func (s *Service) Add(ctx context.Context, ownerID string, in Input) (Route, error) {
	in, err := validate(in)
	if err != nil {
		return Route{}, err
	}
	route := Route{
		ID:          uuid.New().String(),
		OwnerID:     ownerID,
		Description: in.Description,
		Fare:        in.Fare,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.Insert(ctx, route); err != nil {
		return Route{}, err
	}
	s.hub.notify(ownerID)
	return route, nil
}

// Update replaces a route's description and fare.
func (s *Service) Update(ctx context.Context, ownerID, id string, in Input) (Route, error) {
	in, err := validate(in)
	if err != nil {
		return Route{}, err
	}
	route, err := s.repo.Get(ctx, ownerID, id)
	if err != nil {
		return Route{}, err
	}
	route.Description = in.Description
	route.Fare = in.Fare
	if err := s.repo.Update(ctx, route); err != nil {
		return Route{}, err
	}
	s.hub.notify(ownerID)
	return route, nil
}

// Delete removes a route.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	if err := s.repo.Delete(ctx, ownerID, id); err != nil {
		return err
	}
	s.hub.notify(ownerID)
	return nil
}

// List returns the owner's routes, newest first.
func (s *Service) List(ctx context.Context, ownerID string) ([]Route, error) {
	routes, err := s.repo.List(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if routes == nil {
		routes = []Route{}
	}
	return routes, nil
}

// Watch streams snapshots of the owner's routes: the current list first, then
// a fresh list after every change. Changes made while the reader is busy
// coalesce into one snapshot. The channel closes when ctx ends or the service
// is closed. Calling Watch again starts a new stream from the current list.
func (s *Service) Watch(ctx context.Context, ownerID string) (<-chan []Route, error) {
	signal, unsubscribe, err := s.hub.subscribe(ownerID)
	if err != nil {
		return nil, err
	}
	first, err := s.List(ctx, ownerID)
	if err != nil {
		unsubscribe()
		return nil, err
	}

	out := make(chan []Route)
	go func() {
		defer close(out)
		defer unsubscribe()
		// List never returns a nil slice, so nil means nothing to send.
		snapshot := first
		for {
			if snapshot != nil {
				select {
				case out <- snapshot:
				case <-ctx.Done():
					return
				case <-s.hub.done:
					return
				}
			}

			select {
			case <-signal:
			case <-ctx.Done():
				return
			case <-s.hub.done:
				return
			}

			next, err := s.List(ctx, ownerID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn("route snapshot failed", slog.String("owner_id", ownerID), slog.Any("error", err))
				snapshot = nil
				continue
			}
			snapshot = next
		}
	}()
	return out, nil
}

// Close ends every open Watch stream.
func (s *Service) Close() {
	s.hub.close()
}

func validate(in Input) (Input, error) {
	in.Description = strings.TrimSpace(in.Description)
	if in.Description == "" {
		return in, ErrEmptyDescription
	}
	if in.Fare <= 0 {
		return in, ErrInvalidFare
	}
	return in, nil
}

// hub wakes watchers when an owner's routes change. Each watcher has a
// one-slot signal channel, so bursts of changes coalesce into one wake-up.
type hub struct {
	mu     sync.Mutex
	subs   map[string]map[uint64]chan struct{}
	next   uint64
	closed bool
	done   chan struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[uint64]chan struct{}), done: make(chan struct{})}
}

func (h *hub) subscribe(owner string) (<-chan struct{}, func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, nil, ErrClosed
	}
	h.next++
	id := h.next
	ch := make(chan struct{}, 1)
	if h.subs[owner] == nil {
		h.subs[owner] = make(map[uint64]chan struct{})
	}
	h.subs[owner][id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[owner], id)
			if len(h.subs[owner]) == 0 {
				delete(h.subs, owner)
			}
		})
	}, nil
}

func (h *hub) notify(owner string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[owner] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.done)
}
