package collab

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lazypower/calibrator/internal/calibration"
)

// Fixtures describes an in-memory collaborator world: item registries, the
// staking subsystem, and optional groups and balances to seed the store with.
type Fixtures struct {
	Registries []RegistryFixture   `yaml:"registries"`
	Staking    StakingFixture      `yaml:"staking"`
	Groups     []calibration.Group `yaml:"groups"`
	Balances   []BalanceFixture    `yaml:"balances"`
}

// RegistryFixture is one item registry deployed at Address.
type RegistryFixture struct {
	Address   calibration.Address `yaml:"address"`
	Items     []MemoryItem        `yaml:"items"`
	Operators []OperatorFixture   `yaml:"operators"`
}

// OperatorFixture grants Operator control over all of Owner's items.
type OperatorFixture struct {
	Owner    calibration.Address `yaml:"owner"`
	Operator calibration.Address `yaml:"operator"`
}

// StakingFixture configures a MemoryStaking.
type StakingFixture struct {
	Contract calibration.Address `yaml:"contract"`
	Vault    VaultConfig         `yaml:"vault"`
	Stakes   []Stake             `yaml:"stakes"`
}

// BalanceFixture mints Amount of Currency to Holder.
type BalanceFixture struct {
	Currency calibration.Address `yaml:"currency"`
	Holder   calibration.Address `yaml:"holder"`
	Amount   uint64              `yaml:"amount"`
}

// LoadFixtures reads a fixtures YAML file.
func LoadFixtures(path string) (*Fixtures, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseFixtures(raw)
}

// ParseFixtures decodes fixtures from YAML.
func ParseFixtures(raw []byte) (*Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("fixtures: %w", err)
	}
	for i, r := range f.Registries {
		if r.Address.IsZero() {
			return nil, fmt.Errorf("fixtures: registry %d has no address", i)
		}
	}
	return &f, nil
}

// Build constructs the in-memory registries and staking the fixtures describe.
func (f *Fixtures) Build() (RegistrySet, *MemoryStaking) {
	set := make(RegistrySet, len(f.Registries))
	for _, rf := range f.Registries {
		reg := NewMemoryRegistry()
		for _, item := range rf.Items {
			reg.Put(item)
		}
		for _, op := range rf.Operators {
			reg.SetOperator(op.Owner, op.Operator, true)
		}
		set[rf.Address] = reg
	}

	staking := NewMemoryStaking()
	staking.SetVaultConfig(f.Staking.Vault)
	for _, s := range f.Staking.Stakes {
		staking.Stake(s)
	}
	return set, staking
}
