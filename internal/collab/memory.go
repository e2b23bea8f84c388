package collab

import (
	"context"
	"fmt"
	"sync"

	"github.com/lazypower/calibrator/internal/calibration"
)

// MemoryItem is one entry in a MemoryRegistry.
type MemoryItem struct {
	ID       uint64              `yaml:"id"`
	Owner    calibration.Address `yaml:"owner"`
	Variant  uint8               `yaml:"variant"`
	Approved calibration.Address `yaml:"approved"`
}

// MemoryRegistry is an in-process ItemRegistry. It records every call so
// tests can assert on lookup order.
type MemoryRegistry struct {
	mu        sync.Mutex
	items     map[uint64]MemoryItem
	operators map[[2]calibration.Address]bool
	Calls     []string
}

// NewMemoryRegistry returns an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		items:     make(map[uint64]MemoryItem),
		operators: make(map[[2]calibration.Address]bool),
	}
}

// Put adds or replaces an item.
func (m *MemoryRegistry) Put(item MemoryItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = item
}

// Transfer changes an item's owner and clears its single-item approval.
func (m *MemoryRegistry) Transfer(itemID uint64, to calibration.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[itemID]
	if !ok {
		return fmt.Errorf("transfer item %d: %w", itemID, ErrUnknownItem)
	}
	item.Owner = to
	item.Approved = calibration.ZeroAddress
	m.items[itemID] = item
	return nil
}

// SetOperator grants or revokes operator over all of owner's items.
func (m *MemoryRegistry) SetOperator(owner, operator calibration.Address, approved bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operators[[2]calibration.Address{owner, operator}] = approved
}

func (m *MemoryRegistry) record(call string) {
	m.Calls = append(m.Calls, call)
}

func (m *MemoryRegistry) OwnerOf(_ context.Context, itemID uint64) (calibration.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(fmt.Sprintf("ownerOf:%d", itemID))
	item, ok := m.items[itemID]
	if !ok {
		return calibration.ZeroAddress, fmt.Errorf("owner of %d: %w", itemID, ErrUnknownItem)
	}
	return item.Owner, nil
}

func (m *MemoryRegistry) IsApprovedOperator(_ context.Context, owner, caller calibration.Address) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("isApprovedOperator")
	return m.operators[[2]calibration.Address{owner, caller}], nil
}

func (m *MemoryRegistry) GetApprovedCaller(_ context.Context, itemID uint64) (calibration.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(fmt.Sprintf("getApproved:%d", itemID))
	item, ok := m.items[itemID]
	if !ok {
		return calibration.ZeroAddress, fmt.Errorf("approved for %d: %w", itemID, ErrUnknownItem)
	}
	return item.Approved, nil
}

func (m *MemoryRegistry) ItemVariant(_ context.Context, itemID uint64) (uint8, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(fmt.Sprintf("variant:%d", itemID))
	item, ok := m.items[itemID]
	if !ok {
		return 0, fmt.Errorf("variant of %d: %w", itemID, ErrUnknownItem)
	}
	return item.Variant, nil
}

// Stake is one custody entry in a MemoryStaking.
type Stake struct {
	GroupID uint64              `yaml:"group"`
	ItemID  uint64              `yaml:"item"`
	Staker  calibration.Address `yaml:"staker"`
}

// MemoryStaking is an in-process Staking double.
type MemoryStaking struct {
	mu     sync.Mutex
	stakes map[calibration.Key]calibration.Address
	vault  VaultConfig

	// PushErr, when set, fails every PushTokenUpdate.
	PushErr error
	// Reject makes PushTokenUpdate report false without an error.
	Reject bool
	// OnPush runs inside PushTokenUpdate before it returns.
	OnPush func(ctx context.Context, u TokenUpdate)

	Pushes []TokenUpdate
}

// NewMemoryStaking returns staking with no stakes and no external vault.
func NewMemoryStaking() *MemoryStaking {
	return &MemoryStaking{stakes: make(map[calibration.Key]calibration.Address)}
}

// Stake records staker as the depositor of an item.
func (m *MemoryStaking) Stake(s Stake) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stakes[calibration.Key{GroupID: s.GroupID, ItemID: s.ItemID}] = s.Staker
}

// SetVaultConfig replaces the vault wiring.
func (m *MemoryStaking) SetVaultConfig(v VaultConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vault = v
}

func (m *MemoryStaking) IsStaker(_ context.Context, groupID, itemID uint64, caller calibration.Address) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	staker, ok := m.stakes[calibration.Key{GroupID: groupID, ItemID: itemID}]
	return ok && staker == caller, nil
}

func (m *MemoryStaking) PushTokenUpdate(ctx context.Context, u TokenUpdate) (bool, error) {
	m.mu.Lock()
	m.Pushes = append(m.Pushes, u)
	hook, err, reject := m.OnPush, m.PushErr, m.Reject
	m.mu.Unlock()

	if hook != nil {
		hook(ctx, u)
	}
	if err != nil {
		return false, err
	}
	return !reject, nil
}

func (m *MemoryStaking) GetVaultConfig(_ context.Context) (VaultConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vault, nil
}

// PushCount returns how many updates were pushed.
func (m *MemoryStaking) PushCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Pushes)
}
