package app

import (
	"sort"
	"sync"
)

// CommitmentRegistry hands out exclusive claims on (exchange, currency)
// balances. A plan claims every balance it will touch before its first
// order goes out, so two plans can never spend the same funds.
type CommitmentRegistry struct {
	mu   sync.Mutex
	held map[string]string // "exchange/currency" -> plan ID
}

func NewCommitmentRegistry() *CommitmentRegistry {
	return &CommitmentRegistry{held: make(map[string]string)}
}

// CommitmentKey builds the registry key for one balance.
func CommitmentKey(exchange, currency string) string {
	return exchange + "/" + currency
}

// TryAcquire claims all keys for planID atomically. Returns false and the
// first contended key if any key is already held by another plan.
func (r *CommitmentRegistry) TryAcquire(planID string, keys []string) (bool, string) {
	// Sorted inspection gives deterministic contention reporting.
	sorted := make([]string, len(keys))
	copy(sorted, keys)
	sort.Strings(sorted)

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, key := range sorted {
		if holder, ok := r.held[key]; ok && holder != planID {
			return false, key
		}
	}
	for _, key := range sorted {
		r.held[key] = planID
	}
	return true, ""
}

// Release drops every claim held by planID.
func (r *CommitmentRegistry) Release(planID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, holder := range r.held {
		if holder == planID {
			delete(r.held, key)
		}
	}
}

// Held reports whether the key is currently claimed.
func (r *CommitmentRegistry) Held(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.held[key]
	return ok
}
