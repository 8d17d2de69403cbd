package fares

import (
	"context"
	"sort"
	"sync"
)

type memoryRepository struct {
	mu     sync.RWMutex
	routes map[string]map[string]Route
}

// NewMemoryRepository constructs an in-memory repository for development and tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{routes: make(map[string]map[string]Route)}
}

func (r *memoryRepository) Insert(_ context.Context, route Route) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.routes[route.OwnerID] == nil {
		r.routes[route.OwnerID] = make(map[string]Route)
	}
	r.routes[route.OwnerID][route.ID] = route
	return nil
}

func (r *memoryRepository) Update(_ context.Context, route Route) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.routes[route.OwnerID][route.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Description = route.Description
	existing.Fare = route.Fare
	r.routes[route.OwnerID][route.ID] = existing
	return nil
}

func (r *memoryRepository) Delete(_ context.Context, ownerID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.routes[ownerID][id]; !ok {
		return ErrNotFound
	}
	delete(r.routes[ownerID], id)
	return nil
}

func (r *memoryRepository) Get(_ context.Context, ownerID, id string) (Route, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	route, ok := r.routes[ownerID][id]
	if !ok {
		return Route{}, ErrNotFound
	}
	return route, nil
}

func (r *memoryRepository) List(_ context.Context, ownerID string) ([]Route, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Route, 0, len(r.routes[ownerID]))
	for _, route := range r.routes[ownerID] {
		out = append(out, route)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
