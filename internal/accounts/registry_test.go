package accounts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubSource struct {
	accounts []Account
	calls    int
}

func (s *stubSource) ListSystemAccounts(ctx context.Context) ([]Account, error) {
	s.calls++
	return s.accounts, nil
}

func fullSeed() []Account {
	seed := make([]Account, 0, len(RequiredRoles))
	for i, role := range RequiredRoles {
		seed = append(seed, Account{ID: int64(i + 1), Code: string(role), Role: role, IsSystem: true, IsActive: true})
	}
	return seed
}

func TestRegistryResolvesAllRoles(t *testing.T) {
	source := &stubSource{accounts: fullSeed()}
	reg := NewRegistry(source)

	resolved, err := reg.Resolve(context.Background())
	require.NoError(t, err)
	require.Len(t, resolved, len(RequiredRoles))
	for _, role := range RequiredRoles {
		require.NotZero(t, resolved[role])
	}
}

func TestRegistryCachesUntilRefresh(t *testing.T) {
	source := &stubSource{accounts: fullSeed()}
	reg := NewRegistry(source)
	ctx := context.Background()

	_, err := reg.Resolve(ctx)
	require.NoError(t, err)
	_, err = reg.Resolve(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, source.calls)

	_, err = reg.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, source.calls)
}

func TestRegistryResolveReturnsDetachedCopy(t *testing.T) {
	source := &stubSource{accounts: fullSeed()}
	reg := NewRegistry(source)
	ctx := context.Background()

	resolved, err := reg.Resolve(ctx)
	require.NoError(t, err)
	want := resolved[RoleCash]

	// Mutating the returned map must not leak into the cache.
	resolved[RoleCash] = 999
	delete(resolved, RoleInventory)

	id, err := reg.AccountFor(ctx, RoleCash)
	require.NoError(t, err)
	require.Equal(t, want, id)

	again, err := reg.Resolve(ctx)
	require.NoError(t, err)
	require.Equal(t, want, again[RoleCash])
	require.Contains(t, again, RoleInventory)
	require.Equal(t, 1, source.calls)
}

func TestRegistryFailsFastOnMissingRole(t *testing.T) {
	seed := fullSeed()
	// Drop the COGS account from the seed.
	trimmed := seed[:0]
	for _, acc := range seed {
		if acc.Role == RoleCOGS {
			continue
		}
		trimmed = append(trimmed, acc)
	}
	reg := NewRegistry(&stubSource{accounts: trimmed})

	_, err := reg.Resolve(context.Background())
	require.ErrorIs(t, err, ErrMissingSystemAccount)
	require.ErrorContains(t, err, string(RoleCOGS))
}

func TestRegistryIgnoresInactiveAccounts(t *testing.T) {
	seed := fullSeed()
	for i := range seed {
		if seed[i].Role == RoleCash {
			seed[i].IsActive = false
		}
	}
	reg := NewRegistry(&stubSource{accounts: seed})

	_, err := reg.Resolve(context.Background())
	require.ErrorIs(t, err, ErrMissingSystemAccount)
}

func TestAccountFor(t *testing.T) {
	reg := NewRegistry(&stubSource{accounts: fullSeed()})
	id, err := reg.AccountFor(context.Background(), RoleInventory)
	require.NoError(t, err)
	require.NotZero(t, id)
}
