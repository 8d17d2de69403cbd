package payments

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryRepository struct {
	mu       sync.RWMutex
	payments map[string][]Payment
	receipts map[string]struct{}
}

// NewMemoryRepository constructs an in-memory repository for development and tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		payments: make(map[string][]Payment),
		receipts: make(map[string]struct{}),
	}
}

func (r *memoryRepository) Insert(_ context.Context, p Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, seen := r.receipts[p.MpesaReceiptNumber]; seen {
		return ErrDuplicatePayment
	}
	r.receipts[p.MpesaReceiptNumber] = struct{}{}
	p.Selections = append([]Selection{}, p.Selections...)
	r.payments[p.OwnerID] = append(r.payments[p.OwnerID], p)
	return nil
}

func (r *memoryRepository) ListRange(_ context.Context, ownerID string, from, to time.Time) ([]Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []Payment{}
	for _, p := range r.payments[ownerID] {
		if p.PaidAt.Before(from) || p.PaidAt.After(to) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PaidAt.Equal(out[j].PaidAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].PaidAt.After(out[j].PaidAt)
	})
	return out, nil
}
