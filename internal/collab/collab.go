// Package collab defines the external systems the engine depends on: item
// ownership registries, the staking subsystem and the payment token. The
// engine only ever sees these interfaces.
package collab

import (
	"context"
	"errors"

	"github.com/lazypower/calibrator/internal/calibration"
)

// ErrUnknownItem is returned by OwnerOf when the registry has no such item.
var ErrUnknownItem = errors.New("unknown item")

// ItemRegistry answers ownership questions for one item source.
type ItemRegistry interface {
	OwnerOf(ctx context.Context, itemID uint64) (calibration.Address, error)
	IsApprovedOperator(ctx context.Context, owner, caller calibration.Address) (bool, error)
	GetApprovedCaller(ctx context.Context, itemID uint64) (calibration.Address, error)
	// ItemVariant returns 1..4; anything else marks the item invalid.
	ItemVariant(ctx context.Context, itemID uint64) (uint8, error)
}

// Registries resolves the registry deployed at a group's registry address.
type Registries interface {
	Registry(addr calibration.Address) (ItemRegistry, bool)
}

// RegistrySet is a static Registries keyed by address.
type RegistrySet map[calibration.Address]ItemRegistry

// Registry implements Registries.
func (s RegistrySet) Registry(addr calibration.Address) (ItemRegistry, bool) {
	r, ok := s[addr]
	return r, ok
}

// VaultConfig describes the staking subsystem's custody wiring.
type VaultConfig struct {
	UseExternalVault   bool                `json:"use_external_vault" yaml:"use_external_vault"`
	VaultAddress       calibration.Address `json:"vault_address" yaml:"vault_address"`
	ActualVaultAddress calibration.Address `json:"actual_vault_address" yaml:"actual_vault_address"`
}

// Staking is the staking subsystem. PushTokenUpdate is best-effort: the
// engine logs and records failures but never rolls back because of them.
type Staking interface {
	IsStaker(ctx context.Context, groupID, itemID uint64, caller calibration.Address) (bool, error)
	PushTokenUpdate(ctx context.Context, u TokenUpdate) (bool, error)
	GetVaultConfig(ctx context.Context) (VaultConfig, error)
}

// TokenUpdate is the derived state pushed to staking after a mutation.
type TokenUpdate struct {
	GroupID    uint64 `json:"group_id"`
	ItemID     uint64 `json:"item_id"`
	Level      int    `json:"level"`
	Experience uint64 `json:"experience"`
	Charge     int    `json:"charge"`
}

// Payments is the fee token primitive. The store's balance ledger satisfies
// it, which keeps fee movements inside the engine's transaction.
type Payments interface {
	TransferFrom(currency, from, to calibration.Address, amount uint64) error
	Burn(currency, holder calibration.Address, amount uint64, reason string) error
}
