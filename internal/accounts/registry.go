package accounts

import (
	"context"
	"fmt"
	"sync"
)

// SystemAccountSource loads the seeded system accounts.
type SystemAccountSource interface {
	ListSystemAccounts(ctx context.Context) ([]Account, error)
}

// Registry resolves logical roles to account ids. It is an explicitly
// constructed dependency, not a process global: the cached result lives for
// the life of the Registry and Refresh rebuilds it after seeding changes.
type Registry struct {
	source SystemAccountSource

	mu       sync.RWMutex
	resolved map[Role]int64
}

// NewRegistry constructs the registry.
func NewRegistry(source SystemAccountSource) *Registry {
	return &Registry{source: source}
}

// Resolve returns the role -> account id map, loading it on first use.
// Every required role must resolve or the whole call fails. The caller gets
// its own copy; mutating it cannot corrupt the cache.
func (r *Registry) Resolve(ctx context.Context) (map[Role]int64, error) {
	resolved, err := r.resolve(ctx)
	if err != nil {
		return nil, err
	}
	return copyRoles(resolved), nil
}

// AccountFor resolves one role.
func (r *Registry) AccountFor(ctx context.Context, role Role) (int64, error) {
	resolved, err := r.resolve(ctx)
	if err != nil {
		return 0, err
	}
	id, ok := resolved[role]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingSystemAccount, role)
	}
	return id, nil
}

// Refresh reloads system accounts and swaps the cached map. Like Resolve it
// returns a copy.
func (r *Registry) Refresh(ctx context.Context) (map[Role]int64, error) {
	resolved, err := r.refresh(ctx)
	if err != nil {
		return nil, err
	}
	return copyRoles(resolved), nil
}

// resolve serves the cached map for internal reads. The map is shared, so
// callers must never mutate it.
func (r *Registry) resolve(ctx context.Context) (map[Role]int64, error) {
	r.mu.RLock()
	cached := r.resolved
	r.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}
	return r.refresh(ctx)
}

func (r *Registry) refresh(ctx context.Context) (map[Role]int64, error) {
	list, err := r.source.ListSystemAccounts(ctx)
	if err != nil {
		return nil, err
	}
	resolved := make(map[Role]int64, len(list))
	for _, acc := range list {
		if acc.Role == "" || !acc.IsActive {
			continue
		}
		if _, exists := resolved[acc.Role]; exists {
			continue // first seeded account wins
		}
		resolved[acc.Role] = acc.ID
	}
	for _, role := range RequiredRoles {
		if _, ok := resolved[role]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingSystemAccount, role)
		}
	}
	r.mu.Lock()
	r.resolved = resolved
	r.mu.Unlock()
	return resolved, nil
}

func copyRoles(in map[Role]int64) map[Role]int64 {
	out := make(map[Role]int64, len(in))
	for role, id := range in {
		out[role] = id
	}
	return out
}
