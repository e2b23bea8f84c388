package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/lazypower/calibrator/internal/calibration"
	"github.com/lazypower/calibrator/internal/collab"
)

// Access branches, in resolution order.
const (
	ViaOwner     = "owner"
	ViaProcessor = "processor"
	ViaStaker    = "staker"
	ViaVault     = "vault"
)

// Authorization is a granted access decision.
type Authorization struct {
	// Owner is the effective owner: the registry owner, or the staker when
	// the item sits in staking custody.
	Owner calibration.Address `json:"owner"`
	Via   string              `json:"via"`
}

// Authorize decides whether caller may act on (groupID, itemID). The first
// matching branch wins: direct owner, approved processor, staking custody,
// external vault custody. An item the registry does not know fails with
// ErrItemNotFound, never ErrNotAuthorized.
func (e *Engine) Authorize(ctx context.Context, groupID, itemID uint64, caller calibration.Address) (Authorization, error) {
	group, err := e.DB.GetGroup(groupID)
	if err != nil {
		return Authorization{}, opError("authorize", groupID, itemID, caller, err)
	}
	if group == nil {
		return Authorization{}, opError("authorize", groupID, itemID, caller, ErrGroupNotFound)
	}
	auth, err := e.authorize(ctx, *group, itemID, caller)
	return auth, opError("authorize", groupID, itemID, caller, err)
}

func (e *Engine) authorize(ctx context.Context, group calibration.Group, itemID uint64, caller calibration.Address) (Authorization, error) {
	if caller.IsZero() {
		return Authorization{}, ErrZeroAddress
	}
	reg, err := e.registry(group)
	if err != nil {
		return Authorization{}, err
	}
	defer e.collaborating()()

	owner, err := reg.OwnerOf(ctx, itemID)
	if errors.Is(err, collab.ErrUnknownItem) {
		return Authorization{}, ErrItemNotFound
	}
	if err != nil {
		return Authorization{}, fmt.Errorf("%w: owner of %d: %w", ErrLookup, itemID, err)
	}

	// (a) direct owner
	if caller == owner {
		return Authorization{Owner: owner, Via: ViaOwner}, nil
	}

	// (b) processor: engine allowlist, then the registry's own approvals
	processor, err := e.isProcessor(ctx, reg, owner, itemID, caller)
	if err != nil {
		return Authorization{}, err
	}
	if processor {
		return Authorization{Owner: owner, Via: ViaProcessor}, nil
	}

	if e.Staking == nil {
		return Authorization{}, ErrNotAuthorized
	}

	// (c) staking custody
	contract, err := e.DB.StakingContract()
	if err != nil {
		return Authorization{}, err
	}
	if !contract.IsZero() && owner == contract {
		return e.delegateToStaker(ctx, group.ID, itemID, caller, ViaStaker)
	}

	// (d) external vault custody
	vault, err := e.Staking.GetVaultConfig(ctx)
	if err != nil {
		return Authorization{}, fmt.Errorf("%w: vault config: %w", ErrLookup, err)
	}
	if vault.UseExternalVault && heldBy(owner, vault.VaultAddress, vault.ActualVaultAddress) {
		return e.delegateToStaker(ctx, group.ID, itemID, caller, ViaVault)
	}
	return Authorization{}, ErrNotAuthorized
}

func (e *Engine) isProcessor(ctx context.Context, reg collab.ItemRegistry, owner calibration.Address, itemID uint64, caller calibration.Address) (bool, error) {
	ok, err := e.DB.IsProcessor(caller)
	if err != nil || ok {
		return ok, err
	}
	ok, err = reg.IsApprovedOperator(ctx, owner, caller)
	if err != nil {
		return false, fmt.Errorf("%w: operator approval: %w", ErrLookup, err)
	}
	if ok {
		return true, nil
	}
	approved, err := reg.GetApprovedCaller(ctx, itemID)
	if err != nil {
		return false, fmt.Errorf("%w: approved caller of %d: %w", ErrLookup, itemID, err)
	}
	return !approved.IsZero() && approved == caller, nil
}

func (e *Engine) delegateToStaker(ctx context.Context, groupID, itemID uint64, caller calibration.Address, via string) (Authorization, error) {
	ok, err := e.Staking.IsStaker(ctx, groupID, itemID, caller)
	if err != nil {
		return Authorization{}, fmt.Errorf("%w: staker check: %w", ErrLookup, err)
	}
	if !ok {
		return Authorization{}, ErrNotAuthorized
	}
	return Authorization{Owner: caller, Via: via}, nil
}

func (e *Engine) registry(group calibration.Group) (collab.ItemRegistry, error) {
	if e.Registries == nil {
		return nil, ErrRegistryNotFound
	}
	reg, ok := e.Registries.Registry(group.RegistryAddress())
	if !ok {
		return nil, detail(ErrRegistryNotFound, "%s", group.RegistryAddress())
	}
	return reg, nil
}

// variant resolves the item's variant, mapping out-of-range values to
// ErrItemInactive.
func (e *Engine) variant(ctx context.Context, group calibration.Group, itemID uint64) (uint8, error) {
	reg, err := e.registry(group)
	if err != nil {
		return 0, err
	}
	done := e.collaborating()
	v, err := reg.ItemVariant(ctx, itemID)
	done()
	if errors.Is(err, collab.ErrUnknownItem) {
		return 0, ErrItemNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("%w: variant of %d: %w", ErrLookup, itemID, err)
	}
	if !calibration.ValidVariant(v) {
		return 0, detail(ErrItemInactive, "variant %d", v)
	}
	return v, nil
}

func heldBy(owner calibration.Address, vaults ...calibration.Address) bool {
	for _, v := range vaults {
		if !v.IsZero() && owner == v {
			return true
		}
	}
	return false
}
