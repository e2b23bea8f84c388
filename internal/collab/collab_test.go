package collab

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/calibrator/internal/calibration"
)

const fixtureYAML = `
registries:
  - address: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
    items:
      - id: 1
        owner: "0x1111111111111111111111111111111111111111"
        variant: 2
      - id: 2
        owner: "0x1111111111111111111111111111111111111111"
        variant: 4
        approved: "0x3333333333333333333333333333333333333333"
    operators:
      - owner: "0x1111111111111111111111111111111111111111"
        operator: "0x2222222222222222222222222222222222222222"
staking:
  contract: "0x5555555555555555555555555555555555555555"
  vault:
    use_external_vault: true
    vault_address: "0x6666666666666666666666666666666666666666"
  stakes:
    - group: 7
      item: 1
      staker: "0x1111111111111111111111111111111111111111"
groups:
  - id: 7
    source: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
    enabled: true
    regen_multiplier: 150
balances:
  - currency: "0xcccccccccccccccccccccccccccccccccccccccc"
    holder: "0x1111111111111111111111111111111111111111"
    amount: 500
`

var (
	owner    = calibration.MustAddress("0x1111111111111111111111111111111111111111")
	operator = calibration.MustAddress("0x2222222222222222222222222222222222222222")
	approved = calibration.MustAddress("0x3333333333333333333333333333333333333333")
	registry = calibration.MustAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
)

func TestParseFixtures(t *testing.T) {
	f, err := ParseFixtures([]byte(fixtureYAML))
	require.NoError(t, err)

	require.Len(t, f.Registries, 1)
	assert.Equal(t, registry, f.Registries[0].Address)
	assert.Len(t, f.Registries[0].Items, 2)
	assert.True(t, f.Staking.Vault.UseExternalVault)
	require.Len(t, f.Groups, 1)
	assert.Equal(t, 150, f.Groups[0].RegenMultiplier)
	require.Len(t, f.Balances, 1)
	assert.Equal(t, uint64(500), f.Balances[0].Amount)
}

func TestParseFixturesRejectsBadAddress(t *testing.T) {
	_, err := ParseFixtures([]byte(`registries: [{address: "0x12"}]`))
	assert.Error(t, err)

	_, err = ParseFixtures([]byte(`registries: [{items: []}]`))
	assert.Error(t, err)
}

func TestBuildFixtures(t *testing.T) {
	ctx := context.Background()
	f, err := ParseFixtures([]byte(fixtureYAML))
	require.NoError(t, err)

	set, staking := f.Build()
	reg, ok := set.Registry(registry)
	require.True(t, ok)

	got, err := reg.OwnerOf(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, owner, got)

	_, err = reg.OwnerOf(ctx, 99)
	assert.True(t, errors.Is(err, ErrUnknownItem))

	ok, err = reg.IsApprovedOperator(ctx, owner, operator)
	require.NoError(t, err)
	assert.True(t, ok)

	caller, err := reg.GetApprovedCaller(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, approved, caller)

	variant, err := reg.ItemVariant(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, uint8(4), variant)

	isStaker, err := staking.IsStaker(ctx, 7, 1, owner)
	require.NoError(t, err)
	assert.True(t, isStaker)

	isStaker, _ = staking.IsStaker(ctx, 7, 1, operator)
	assert.False(t, isStaker)

	_, ok = set.Registry(owner)
	assert.False(t, ok)
}

func TestMemoryRegistryTransfer(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()
	reg.Put(MemoryItem{ID: 1, Owner: owner, Variant: 1, Approved: approved})

	require.NoError(t, reg.Transfer(1, operator))
	got, _ := reg.OwnerOf(ctx, 1)
	assert.Equal(t, operator, got)
	cleared, _ := reg.GetApprovedCaller(ctx, 1)
	assert.True(t, cleared.IsZero())

	assert.True(t, errors.Is(reg.Transfer(2, owner), ErrUnknownItem))
	assert.Equal(t, []string{"ownerOf:1", "getApproved:1"}, reg.Calls)
}

func TestMemoryStakingPush(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStaking()

	ok, err := s.PushTokenUpdate(ctx, TokenUpdate{GroupID: 7, ItemID: 1, Level: 2})
	require.NoError(t, err)
	assert.True(t, ok)

	s.Reject = true
	ok, err = s.PushTokenUpdate(ctx, TokenUpdate{GroupID: 7, ItemID: 1})
	require.NoError(t, err)
	assert.False(t, ok)

	s.PushErr = errors.New("staking down")
	_, err = s.PushTokenUpdate(ctx, TokenUpdate{GroupID: 7, ItemID: 1})
	assert.Error(t, err)
	assert.Equal(t, 3, s.PushCount())
}
