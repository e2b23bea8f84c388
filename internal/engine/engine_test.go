package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/calibrator/internal/calibration"
	"github.com/lazypower/calibrator/internal/collab"
	"github.com/lazypower/calibrator/internal/store"
)

var (
	ownerA      = calibration.MustAddress("0x1111111111111111111111111111111111111111")
	processorB  = calibration.MustAddress("0x2222222222222222222222222222222222222222")
	strangerC   = calibration.MustAddress("0x3333333333333333333333333333333333333333")
	stakingAddr = calibration.MustAddress("0x5555555555555555555555555555555555555555")
	vaultAddr   = calibration.MustAddress("0x6666666666666666666666666666666666666666")
	beneficiary = calibration.MustAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	currency    = calibration.MustAddress("0xcccccccccccccccccccccccccccccccccccccccc")
	registryA   = calibration.MustAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
)

const (
	t0      = int64(1_700_000_000)
	groupID = uint64(7)
)

type recorder struct {
	mu     sync.Mutex
	events []store.Event
}

func (r *recorder) Emit(e store.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) count(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) last(kind string) *store.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind == kind {
			e := r.events[i]
			return &e
		}
	}
	return nil
}

type harness struct {
	eng     *Engine
	db      *store.DB
	reg     *collab.MemoryRegistry
	staking *collab.MemoryStaking
	events  *recorder
	now     int64
}

// newHarness wires an engine over an in-memory store with group 7 backed by
// a registry holding items 1..5, all owned by ownerA with variant 1.
func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h := &harness{
		db:      db,
		reg:     collab.NewMemoryRegistry(),
		staking: collab.NewMemoryStaking(),
		events:  &recorder{},
		now:     t0,
	}
	for id := uint64(1); id <= 5; id++ {
		h.reg.Put(collab.MemoryItem{ID: id, Owner: ownerA, Variant: 1})
	}
	h.eng = New(db, collab.RegistrySet{registryA: h.reg})
	h.eng.SetNowFunc(func() int64 { return h.now })
	h.eng.SetEmitter(h.events)

	_, err = h.eng.RegisterGroup(context.Background(), calibration.Group{
		ID: groupID, Source: registryA, Enabled: true,
	})
	require.NoError(t, err)
	return h
}

func (h *harness) advance(d time.Duration) {
	h.now += int64(d / time.Second)
}

func (h *harness) withFee(t *testing.T, gid uint64, amount uint64, burn bool) {
	t.Helper()
	s := calibration.DefaultSettings()
	s.FeeCurrency = currency
	s.FeeAmount = amount
	s.FeeBeneficiary = beneficiary
	s.BurnOnCollect = burn
	require.NoError(t, h.eng.SetSettings(context.Background(), gid, s))
}

func (h *harness) balance(t *testing.T, holder calibration.Address) uint64 {
	t.Helper()
	b, err := h.db.Balance(currency, holder)
	require.NoError(t, err)
	return b
}

func (h *harness) record(t *testing.T, gid, item uint64) *calibration.Record {
	t.Helper()
	rec, err := h.db.GetRecord(gid, item)
	require.NoError(t, err)
	return rec
}

func TestInspectFirstTouch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.reg.Put(collab.MemoryItem{ID: 2, Owner: ownerA, Variant: 4})

	// A long gap before the first inspection must not change the bonus.
	h.advance(90 * 24 * time.Hour)

	res, err := h.eng.Inspect(ctx, groupID, 1, ownerA)
	require.NoError(t, err)
	assert.Equal(t, uint64(3*(10+1*5)), res.ExperienceGained)
	assert.Equal(t, ViaOwner, res.Via)

	rec := h.record(t, groupID, 1)
	require.NotNil(t, rec)
	assert.Equal(t, uint64(45), rec.Experience)
	assert.Equal(t, 1, rec.Level)
	assert.Equal(t, uint64(1), rec.CalibrationCount)
	assert.Equal(t, 51, rec.Kinship)
	assert.Equal(t, h.now, rec.LastInteraction)
	assert.Equal(t, h.now, rec.LastRecalibration)
	assert.Equal(t, ownerA, rec.Owner)

	res, err = h.eng.Inspect(ctx, groupID, 2, ownerA)
	require.NoError(t, err)
	assert.Equal(t, uint64(3*(10+4*5)), res.ExperienceGained)

	assert.Equal(t, 2, h.events.count(EventInspected))
	assert.Equal(t, 2, h.events.count(EventExperienceGained))
}

func TestInspectCooldown(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.withFee(t, groupID, 10, false)
	require.NoError(t, h.eng.Mint(ctx, currency, ownerA, 100))

	_, err := h.eng.Inspect(ctx, groupID, 1, ownerA)
	require.NoError(t, err)
	assert.Equal(t, uint64(90), h.balance(t, ownerA))

	h.advance(11 * time.Hour)
	_, err = h.eng.Inspect(ctx, groupID, 1, ownerA)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotReady))
	assert.True(t, errors.Is(err, ErrState))

	var engErr *Error
	require.True(t, errors.As(err, &engErr))
	assert.Equal(t, "inspect", engErr.Op)
	assert.Equal(t, groupID, engErr.GroupID)
	assert.Equal(t, uint64(1), engErr.ItemID)
	assert.Equal(t, ownerA, engErr.Actor)

	// No state change and no fee.
	assert.Equal(t, uint64(1), h.record(t, groupID, 1).CalibrationCount)
	assert.Equal(t, uint64(90), h.balance(t, ownerA))

	p, err := h.eng.Probe(ctx, groupID, 1)
	require.NoError(t, err)
	assert.Equal(t, calibration.StatusCoolingDown, p.Status)
	assert.Equal(t, t0+12*3600, p.ReadyAt)

	h.advance(time.Hour)
	res, err := h.eng.Inspect(ctx, groupID, 1, ownerA)
	require.NoError(t, err)
	// Zero days since the last calibration at level 1: base experience only.
	assert.Equal(t, uint64(15), res.ExperienceGained)
	assert.Equal(t, uint64(80), h.balance(t, ownerA))
}

func TestInspectMultiLevelJump(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	seed := calibration.NewRecord(groupID, 1, ownerA, t0-30*24*3600)
	seed.Experience = 1590
	seed.CalibrationCount = 5
	seed.LastInteraction = t0 - 30*24*3600
	seed.LastRecalibration = t0 - 30*24*3600
	require.NoError(t, h.db.PutRecord(seed))

	res, err := h.eng.Inspect(ctx, groupID, 1, ownerA)
	require.NoError(t, err)

	// 30 days: time factor 150 + 5*isqrt(23) = 170, level factor 100.
	assert.Equal(t, uint64(15*170*100/10000), res.ExperienceGained)
	assert.Equal(t, uint64(1615), res.Record.Experience)
	assert.Equal(t, 4, res.Record.Level)
	require.Len(t, res.LevelUps, 3)
	for i, g := range res.LevelUps {
		assert.Equal(t, 2+i, g.Level)
	}
	assert.GreaterOrEqual(t, res.Record.Prowess, 0)
	assert.Equal(t, 3, h.events.count(EventLevelUp))

	// Four weeks of wear committed, minus the luck roll if it hit.
	if res.WearReduced {
		assert.Equal(t, 3, res.Record.Wear)
	} else {
		assert.Equal(t, 4, res.Record.Wear)
	}
}

func TestInvariantsHoldAcrossOperations(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.reg.Put(collab.MemoryItem{ID: 1, Owner: ownerA, Variant: 4})

	// Inspections interleaved with repairs, charge refreshes and lock
	// toggles. Maintenance calls may be refused by their own gates; that is
	// fine as long as nothing moves backwards.
	var prev calibration.Record
	for i := 0; i < 80; i++ {
		var err error
		switch i % 4 {
		case 0:
			_, err = h.eng.Inspect(ctx, groupID, 1, ownerA)
			require.NoError(t, err)
		case 1:
			_, err = h.eng.Repair(ctx, groupID, 1, ownerA, 2)
		case 2:
			_, err = h.eng.Charge(ctx, groupID, 1, ownerA)
		case 3:
			_, err = h.eng.SetLocked(ctx, groupID, 1, ownerA, i%8 == 3)
		}
		if err != nil {
			require.ErrorIs(t, err, ErrState, "step %d", i)
		}
		rec := h.record(t, groupID, 1)

		assert.True(t, rec.Kinship >= 0 && rec.Kinship <= calibration.MaxKinship)
		assert.True(t, rec.Wear >= 0 && rec.Wear <= calibration.MaxWear)
		assert.True(t, rec.Charge >= 0 && rec.Charge <= calibration.BaseMaxCharge)
		assert.True(t, rec.Level >= calibration.MinLevel && rec.Level <= calibration.MaxLevel)
		assert.GreaterOrEqual(t, rec.Level, prev.Level, "step %d", i)
		assert.GreaterOrEqual(t, rec.Experience, prev.Experience, "step %d", i)
		assert.GreaterOrEqual(t, rec.Prowess, prev.Prowess)
		assert.GreaterOrEqual(t, rec.Agility, prev.Agility)
		assert.GreaterOrEqual(t, rec.Intelligence, prev.Intelligence)
		assert.GreaterOrEqual(t, rec.CalibrationCount, prev.CalibrationCount)
		prev = *rec

		h.advance(time.Duration(13+i*5) * time.Hour)
	}
}

func TestAuthorizeResolutionOrder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.eng.SetProcessor(ctx, ownerA, true))
	require.NoError(t, h.eng.SetProcessor(ctx, processorB, true))

	// An owner who is also a processor resolves as owner.
	auth, err := h.eng.Authorize(ctx, groupID, 1, ownerA)
	require.NoError(t, err)
	assert.Equal(t, ViaOwner, auth.Via)
	assert.Equal(t, ownerA, auth.Owner)

	auth, err = h.eng.Authorize(ctx, groupID, 1, processorB)
	require.NoError(t, err)
	assert.Equal(t, ViaProcessor, auth.Via)
	assert.Equal(t, ownerA, auth.Owner)

	_, err = h.eng.Authorize(ctx, groupID, 1, strangerC)
	assert.True(t, errors.Is(err, ErrNotAuthorized))
	assert.True(t, errors.Is(err, ErrAuthorization))

	// Registry-level approvals count as processor access.
	h.reg.SetOperator(ownerA, strangerC, true)
	auth, err = h.eng.Authorize(ctx, groupID, 1, strangerC)
	require.NoError(t, err)
	assert.Equal(t, ViaProcessor, auth.Via)
	h.reg.SetOperator(ownerA, strangerC, false)

	h.reg.Put(collab.MemoryItem{ID: 2, Owner: ownerA, Variant: 1, Approved: strangerC})
	auth, err = h.eng.Authorize(ctx, groupID, 2, strangerC)
	require.NoError(t, err)
	assert.Equal(t, ViaProcessor, auth.Via)
	_, err = h.eng.Authorize(ctx, groupID, 3, strangerC)
	assert.True(t, errors.Is(err, ErrNotAuthorized))

	// Unknown items are not found, not unauthorized.
	_, err = h.eng.Authorize(ctx, groupID, 99, ownerA)
	assert.True(t, errors.Is(err, ErrItemNotFound))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrAuthorization))

	_, err = h.eng.Authorize(ctx, 42, 1, ownerA)
	assert.True(t, errors.Is(err, ErrGroupNotFound))

	_, err = h.eng.Authorize(ctx, groupID, 1, calibration.ZeroAddress)
	assert.True(t, errors.Is(err, ErrInput))
}

func TestAuthorizeStakingCustody(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.reg.Transfer(3, stakingAddr))
	require.NoError(t, h.eng.SetStakingContract(ctx, stakingAddr))
	h.staking.Stake(collab.Stake{GroupID: groupID, ItemID: 3, Staker: ownerA})

	// Without a staking collaborator custody cannot be delegated.
	_, err := h.eng.Authorize(ctx, groupID, 3, ownerA)
	assert.True(t, errors.Is(err, ErrNotAuthorized))

	h.eng.SetStaking(h.staking)
	auth, err := h.eng.Authorize(ctx, groupID, 3, ownerA)
	require.NoError(t, err)
	assert.Equal(t, ViaStaker, auth.Via)
	assert.Equal(t, ownerA, auth.Owner)

	_, err = h.eng.Authorize(ctx, groupID, 3, strangerC)
	assert.True(t, errors.Is(err, ErrNotAuthorized))

	// External vault custody delegates the same way.
	require.NoError(t, h.reg.Transfer(4, vaultAddr))
	h.staking.SetVaultConfig(collab.VaultConfig{UseExternalVault: true, VaultAddress: vaultAddr})
	h.staking.Stake(collab.Stake{GroupID: groupID, ItemID: 4, Staker: strangerC})
	auth, err = h.eng.Authorize(ctx, groupID, 4, strangerC)
	require.NoError(t, err)
	assert.Equal(t, ViaVault, auth.Via)
	assert.Equal(t, strangerC, auth.Owner)

	h.staking.SetVaultConfig(collab.VaultConfig{UseExternalVault: false, VaultAddress: vaultAddr})
	_, err = h.eng.Authorize(ctx, groupID, 4, strangerC)
	assert.True(t, errors.Is(err, ErrNotAuthorized))
}

func TestBatchSkipsIneligible(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.withFee(t, groupID, 10, false)
	require.NoError(t, h.eng.Mint(ctx, currency, ownerA, 100))

	// Items 2 and 4 are inactive in the registry.
	h.reg.Put(collab.MemoryItem{ID: 2, Owner: ownerA, Variant: 0})
	h.reg.Put(collab.MemoryItem{ID: 4, Owner: ownerA, Variant: 9})

	keys, err := Pairs([]uint64{7, 7, 7, 7, 7}, []uint64{1, 2, 3, 4, 5})
	require.NoError(t, err)
	res, err := h.eng.InspectBatch(ctx, keys, ownerA)
	require.NoError(t, err)

	assert.Equal(t, 5, res.Requested)
	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, []calibration.Key{{GroupID: 7, ItemID: 1}, {GroupID: 7, ItemID: 3}, {GroupID: 7, ItemID: 5}}, res.Items)
	assert.Equal(t, uint64(30), res.Fee)
	assert.NotEmpty(t, res.BatchID)

	assert.Equal(t, uint64(70), h.balance(t, ownerA))
	assert.Equal(t, uint64(30), h.balance(t, beneficiary))
	assert.Nil(t, h.record(t, groupID, 2))
	assert.Nil(t, h.record(t, groupID, 4))

	assert.Equal(t, 3, h.events.count(EventInspected))
	assert.Equal(t, 1, h.events.count(EventFeeCollected))
	fee := h.events.last(EventFeeCollected)
	require.NotNil(t, fee)
	assert.Equal(t, 3, fee.Attrs["units"])
	batch := h.events.last(EventBatchInspected)
	require.NotNil(t, batch)
	assert.Equal(t, res.BatchID, batch.Attrs["batch_id"])
}

func TestBatchNothingProcessedChargesNothing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.withFee(t, groupID, 10, false)
	require.NoError(t, h.eng.Mint(ctx, currency, ownerA, 100))

	keys := []calibration.Key{{GroupID: groupID, ItemID: 99}, {GroupID: 42, ItemID: 1}}
	res, err := h.eng.InspectBatch(ctx, keys, ownerA)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)
	assert.Equal(t, uint64(0), res.Fee)
	assert.Equal(t, uint64(100), h.balance(t, ownerA))
	assert.Equal(t, 0, h.events.count(EventFeeCollected))

	_, err = h.eng.InspectBatch(ctx, nil, ownerA)
	assert.True(t, errors.Is(err, ErrEmptyBatch))
}

func TestBatchDuplicateKeyProcessedOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	keys := []calibration.Key{{GroupID: groupID, ItemID: 1}, {GroupID: groupID, ItemID: 1}}
	res, err := h.eng.InspectBatch(ctx, keys, ownerA)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, uint64(1), h.record(t, groupID, 1).CalibrationCount)
}

func TestBatchUsesFirstGroupSettings(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.eng.RegisterGroup(ctx, calibration.Group{ID: 8, Source: registryA, Enabled: true})
	require.NoError(t, err)
	h.withFee(t, groupID, 10, false)
	h.withFee(t, 8, 50, false)
	require.NoError(t, h.eng.Mint(ctx, currency, ownerA, 1000))

	keys := []calibration.Key{{GroupID: groupID, ItemID: 1}, {GroupID: 8, ItemID: 1}}
	res, err := h.eng.InspectBatch(ctx, keys, ownerA)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, uint64(20), res.Fee)
}

func TestFeeFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.withFee(t, groupID, 10, false)

	// No balance minted.
	_, err := h.eng.Inspect(ctx, groupID, 1, ownerA)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPayment))
	assert.True(t, errors.Is(err, ErrExternal))
	assert.True(t, errors.Is(err, store.ErrInsufficientBalance))

	assert.Nil(t, h.record(t, groupID, 1))
	assert.Equal(t, 0, h.events.count(EventInspected))
	events, err := h.db.ListItemEvents(groupID, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

type failingBurn struct {
	collab.Payments
}

func (failingBurn) Burn(calibration.Address, calibration.Address, uint64, string) error {
	return errors.New("burn disabled")
}

func TestBurnFailureRollsBackTransfer(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.withFee(t, groupID, 10, true)
	require.NoError(t, h.eng.Mint(ctx, currency, ownerA, 100))
	h.eng.SetPayments(func(tx *store.Repo) collab.Payments { return failingBurn{tx} })

	_, err := h.eng.Inspect(ctx, groupID, 1, ownerA)
	assert.True(t, errors.Is(err, ErrPayment))
	assert.Equal(t, uint64(100), h.balance(t, ownerA))
	assert.Equal(t, uint64(0), h.balance(t, beneficiary))
	assert.Nil(t, h.record(t, groupID, 1))
}

func TestFeeBurnOnCollect(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.withFee(t, groupID, 10, true)
	require.NoError(t, h.eng.Mint(ctx, currency, ownerA, 100))

	res, err := h.eng.Inspect(ctx, groupID, 1, ownerA)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), res.Fee)
	assert.Equal(t, uint64(90), h.balance(t, ownerA))
	assert.Equal(t, uint64(0), h.balance(t, beneficiary))

	burned, err := h.db.BurnedTotal(currency)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), burned)
	assert.Equal(t, 1, h.events.count(EventFeeCollected))
	assert.Equal(t, 1, h.events.count(EventFeeBurned))
}

func TestStakingSync(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.eng.SetStaking(h.staking)

	// No contract configured: nothing is pushed.
	_, err := h.eng.Inspect(ctx, groupID, 1, ownerA)
	require.NoError(t, err)
	assert.Equal(t, 0, h.staking.PushCount())

	require.NoError(t, h.eng.SetStakingContract(ctx, stakingAddr))
	_, err = h.eng.Inspect(ctx, groupID, 2, ownerA)
	require.NoError(t, err)
	require.Equal(t, 1, h.staking.PushCount())
	push := h.staking.Pushes[0]
	assert.Equal(t, collab.TokenUpdate{GroupID: groupID, ItemID: 2, Level: 1, Experience: 45, Charge: 100}, push)

	evt := h.events.last(EventStakingSync)
	require.NotNil(t, evt)
	assert.Equal(t, true, evt.Attrs["success"])
}

func TestStakingFailureDoesNotRollBack(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.eng.SetStaking(h.staking)
	require.NoError(t, h.eng.SetStakingContract(ctx, stakingAddr))
	h.staking.PushErr = errors.New("staking offline")

	res, err := h.eng.Inspect(ctx, groupID, 1, ownerA)
	require.NoError(t, err)
	assert.Equal(t, uint64(45), res.Record.Experience)
	assert.NotNil(t, h.record(t, groupID, 1))

	evt := h.events.last(EventStakingSync)
	require.NotNil(t, evt)
	assert.Equal(t, false, evt.Attrs["success"])

	// The sync outcome is persisted too.
	events, err := h.db.ListItemEvents(groupID, 1, 20)
	require.NoError(t, err)
	var found bool
	for _, e := range events {
		if e.Kind == EventStakingSync {
			found = true
			assert.Equal(t, false, e.Attrs["success"])
		}
	}
	assert.True(t, found)

	h.staking.PushErr = nil
	h.staking.Reject = true
	_, err = h.eng.Inspect(ctx, groupID, 2, ownerA)
	require.NoError(t, err)
	assert.Equal(t, false, h.events.last(EventStakingSync).Attrs["success"])
}

func TestBatchFeeBeyondLedgerRangeRejected(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.withFee(t, groupID, calibration.MaxAmount, false)

	keys := []calibration.Key{{GroupID: groupID, ItemID: 1}, {GroupID: groupID, ItemID: 2}}
	_, err := h.eng.InspectBatch(ctx, keys, ownerA)
	assert.ErrorIs(t, err, ErrFeeOverflow)
	assert.ErrorIs(t, err, ErrInput)
	assert.Nil(t, h.record(t, groupID, 1), "batch must roll back")
}

func TestReentrantCallRejected(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.eng.SetStaking(h.staking)
	require.NoError(t, h.eng.SetStakingContract(ctx, stakingAddr))

	var reentryErr, probeErr error
	var probed calibration.Projection
	h.staking.OnPush = func(cbCtx context.Context, u collab.TokenUpdate) {
		_, reentryErr = h.eng.Inspect(cbCtx, groupID, 2, ownerA)
		probed, probeErr = h.eng.Probe(cbCtx, u.GroupID, u.ItemID)
	}

	_, err := h.eng.Inspect(ctx, groupID, 1, ownerA)
	require.NoError(t, err)

	assert.True(t, errors.Is(reentryErr, ErrReentrant))
	assert.True(t, errors.Is(reentryErr, ErrState))
	assert.Nil(t, h.record(t, groupID, 2))

	// Read-only probes stay available to collaborators.
	require.NoError(t, probeErr)
	assert.Equal(t, 51, probed.Kinship)
}

func TestReentrantCallWithFreshContextRejected(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.eng.SetStaking(h.staking)
	require.NoError(t, h.eng.SetStakingContract(ctx, stakingAddr))

	var reentryErr error
	h.staking.OnPush = func(context.Context, collab.TokenUpdate) {
		// The callback drops the engine's context on purpose.
		_, reentryErr = h.eng.Inspect(context.Background(), groupID, 2, ownerA)
	}

	done := make(chan error, 1)
	go func() {
		_, err := h.eng.Inspect(ctx, groupID, 1, ownerA)
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("outer inspection did not return")
	}
	assert.ErrorIs(t, reentryErr, ErrReentrant)
	assert.Nil(t, h.record(t, groupID, 2))

	// The engine is usable again once the callback has returned.
	h.staking.OnPush = nil
	_, err := h.eng.Inspect(ctx, groupID, 2, ownerA)
	require.NoError(t, err)
}

func TestLegacyGroupMirrors(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.eng.RegisterGroup(ctx, calibration.Group{ID: 1, Source: registryA, Enabled: true})
	require.NoError(t, err)

	res, err := h.eng.Inspect(ctx, 1, 3, ownerA)
	require.NoError(t, err)

	legacy, err := h.db.GetLegacyRecord(3)
	require.NoError(t, err)
	require.NotNil(t, legacy)
	assert.Equal(t, res.Record.Kinship, legacy.Kinship)
	assert.Equal(t, res.Record.Experience, legacy.Experience)

	// Group 7 is past the legacy threshold.
	_, err = h.eng.Inspect(ctx, groupID, 4, ownerA)
	require.NoError(t, err)
	legacy, err = h.db.GetLegacyRecord(4)
	require.NoError(t, err)
	assert.Nil(t, legacy)
}

func TestDisabledAndDeregisteredGroups(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.eng.UpdateGroup(ctx, calibration.Group{ID: groupID, Source: registryA, Enabled: false})
	require.NoError(t, err)
	_, err = h.eng.Inspect(ctx, groupID, 1, ownerA)
	assert.True(t, errors.Is(err, ErrGroupDisabled))
	assert.True(t, errors.Is(err, ErrState))

	require.NoError(t, h.eng.DeregisterGroup(ctx, groupID))
	_, err = h.eng.Inspect(ctx, groupID, 1, ownerA)
	assert.True(t, errors.Is(err, ErrGroupNotFound))

	err = h.eng.DeregisterGroup(ctx, groupID)
	assert.True(t, errors.Is(err, ErrGroupNotFound))
	assert.Equal(t, 1, h.events.count(EventGroupDeregistered))
}

func TestProbeIsSideEffectFree(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	p, err := h.eng.Probe(ctx, groupID, 1)
	require.NoError(t, err)
	assert.Equal(t, calibration.StatusUninitialized, p.Status)

	_, err = h.eng.Inspect(ctx, groupID, 1, ownerA)
	require.NoError(t, err)
	before := *h.record(t, groupID, 1)

	h.advance(10 * 24 * time.Hour)
	first, err := h.eng.Probe(ctx, groupID, 1)
	require.NoError(t, err)
	second, err := h.eng.Probe(ctx, groupID, 1)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, before, *h.record(t, groupID, 1))

	// 10 days at interact period 12: 10 kinship lost; 10 days of charge
	// loss at 5%; one week of wear.
	assert.Equal(t, calibration.StatusReady, first.Status)
	assert.Equal(t, 41, first.Kinship)
	assert.Equal(t, 50, first.Charge)
	assert.Equal(t, 1, first.Wear)
	assert.Equal(t, (41+50+99)/3, first.BioLevel)

	exists, err := h.eng.BatchExists(ctx, []calibration.Key{{GroupID: groupID, ItemID: 1}, {GroupID: groupID, ItemID: 2}})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, exists)

	ok, err := h.eng.Exists(ctx, groupID, 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPairsLengthMismatch(t *testing.T) {
	_, err := Pairs([]uint64{1, 2}, []uint64{1})
	assert.True(t, errors.Is(err, ErrLengthMismatch))
	assert.True(t, errors.Is(err, ErrInput))
}

func TestClass(t *testing.T) {
	assert.Equal(t, ErrState, Class(&Error{Op: "x", Err: ErrNotReady}))
	assert.Equal(t, ErrInput, Class(detail(ErrZeroAmount, "points %d", 0)))
	assert.Nil(t, Class(errors.New("disk full")))
}
