// Package calibration holds the vitality record model and the pure math that
// projects it through time: kinship, charge and wear decay, the leveling
// curve, experience gain and per-level stat growth.
//
// Nothing in this package mutates storage. Projections take a record and a
// unix timestamp and return values; committing a new baseline is the job of
// the engine's write path.
package calibration

import (
	"fmt"
	"math"
)

const (
	MaxKinship    = 100
	MaxWear       = 100
	BaseMaxCharge = 100
	MinLevel      = 1
	MaxLevel      = 99

	// InitialKinship is the kinship a record starts with on first interaction.
	InitialKinship = 50

	// MaxAmount is the largest token amount the balance ledger can hold.
	MaxAmount uint64 = math.MaxInt64

	// DefaultRegenMultiplier leaves charge loss unscaled (percent).
	DefaultRegenMultiplier = 100

	// LegacyGroupThreshold: groups with an id below this are mirrored into the
	// single-group legacy record table.
	LegacyGroupThreshold uint64 = 3
)

// IsLegacyGroup reports whether writes for groupID are mirrored to the
// legacy store.
func IsLegacyGroup(groupID uint64) bool {
	return groupID != 0 && groupID < LegacyGroupThreshold
}

// Key addresses one record.
type Key struct {
	GroupID uint64 `json:"group_id"`
	ItemID  uint64 `json:"item_id"`
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%d", k.GroupID, k.ItemID)
}

// Record is the mutable vitality state of one item within one group.
// An ItemID of zero marks a record that does not exist.
type Record struct {
	GroupID uint64  `json:"group_id"`
	ItemID  uint64  `json:"item_id"`
	Owner   Address `json:"owner"`

	Kinship    int    `json:"kinship"`
	Experience uint64 `json:"experience"`
	Level      int    `json:"level"`
	Charge     int    `json:"charge"`
	Wear       int    `json:"wear"`

	Prowess      int `json:"prowess"`
	Agility      int `json:"agility"`
	Intelligence int `json:"intelligence"`

	LastInteraction   int64 `json:"last_interaction"`
	LastCharge        int64 `json:"last_charge"`
	LastRecalibration int64 `json:"last_recalibration"`

	CalibrationCount uint64 `json:"calibration_count"`
	Locked           bool   `json:"locked"`
}

// NewRecord returns the state an item starts from on its first authorized
// interaction. Charge starts full and counts as charged at creation.
func NewRecord(groupID, itemID uint64, owner Address, now int64) Record {
	return Record{
		GroupID:    groupID,
		ItemID:     itemID,
		Owner:      owner,
		Kinship:    InitialKinship,
		Level:      MinLevel,
		Charge:     BaseMaxCharge,
		LastCharge: now,
	}
}

// Key returns the record's composite key.
func (r Record) Key() Key {
	return Key{GroupID: r.GroupID, ItemID: r.ItemID}
}

// Exists reports whether r refers to a stored record.
func (r Record) Exists() bool {
	return r.ItemID != 0
}

// Group is a registered source of items sharing one settings profile.
type Group struct {
	ID              uint64  `json:"id" yaml:"id"`
	Source          Address `json:"source" yaml:"source"`
	Enabled         bool    `json:"enabled" yaml:"enabled"`
	RegenMultiplier int     `json:"regen_multiplier" yaml:"regen_multiplier"`
	MaxChargeBonus  int     `json:"max_charge_bonus" yaml:"max_charge_bonus"`
	Repository      Address `json:"repository" yaml:"repository"`
}

// RegistryAddress returns the address whose item registry answers ownership
// questions for the group: the repository override when set, else the source.
func (g Group) RegistryAddress() Address {
	if !g.Repository.IsZero() {
		return g.Repository
	}
	return g.Source
}

// MaxCharge is the charge ceiling for items in the group.
func (g Group) MaxCharge() int {
	return BaseMaxCharge + g.MaxChargeBonus
}

// Regen returns the regen multiplier, substituting the default for unset values.
func (g Group) Regen() int {
	if g.RegenMultiplier <= 0 {
		return DefaultRegenMultiplier
	}
	return g.RegenMultiplier
}

// Validate checks the registration fields that must be set.
func (g Group) Validate() error {
	if g.ID == 0 {
		return fmt.Errorf("group id must be non-zero")
	}
	if g.Source.IsZero() {
		return fmt.Errorf("group %d: source address is zero", g.ID)
	}
	if g.RegenMultiplier < 0 {
		return fmt.Errorf("group %d: regen multiplier %d is negative", g.ID, g.RegenMultiplier)
	}
	if g.MaxChargeBonus < 0 {
		return fmt.Errorf("group %d: max charge bonus %d is negative", g.ID, g.MaxChargeBonus)
	}
	return nil
}

// Settings parameterizes timing, tuning and fees for a group. Periods are
// hour multipliers.
type Settings struct {
	InteractPeriod int64 `json:"interact_period" yaml:"interact_period"`
	ChargePeriod   int64 `json:"charge_period" yaml:"charge_period"`
	RecalPeriod    int64 `json:"recal_period" yaml:"recal_period"`

	FeeCurrency    Address `json:"fee_currency" yaml:"fee_currency"`
	FeeAmount      uint64  `json:"fee_amount" yaml:"fee_amount"`
	FeeBeneficiary Address `json:"fee_beneficiary" yaml:"fee_beneficiary"`
	BurnOnCollect  bool    `json:"burn_on_collect" yaml:"burn_on_collect"`

	TuneValue      int `json:"tune_value" yaml:"tune_value"`
	BonusValue     int `json:"bonus_value" yaml:"bonus_value"`
	BonusThreshold int `json:"bonus_threshold" yaml:"bonus_threshold"`
}

// DefaultSettings is the global profile used when neither the group nor the
// store carries one.
func DefaultSettings() Settings {
	return Settings{
		InteractPeriod: 12,
		ChargePeriod:   24,
		RecalPeriod:    1,
		TuneValue:      1,
		BonusValue:     1,
		BonusThreshold: 40,
	}
}

// Validate rejects settings that would stall or divide by zero.
func (s Settings) Validate() error {
	if s.InteractPeriod < 1 {
		return fmt.Errorf("interact period must be at least 1, got %d", s.InteractPeriod)
	}
	if s.ChargePeriod < 0 || s.RecalPeriod < 0 {
		return fmt.Errorf("periods must not be negative")
	}
	if s.TuneValue < 1 {
		return fmt.Errorf("tune value must be at least 1, got %d", s.TuneValue)
	}
	if s.BonusValue < 0 || s.BonusThreshold < 0 {
		return fmt.Errorf("bonus value and threshold must not be negative")
	}
	if s.FeeAmount > MaxAmount {
		return fmt.Errorf("fee amount %d exceeds %d", s.FeeAmount, MaxAmount)
	}
	if s.FeeAmount > 0 && (s.FeeCurrency.IsZero() || s.FeeBeneficiary.IsZero()) {
		return fmt.Errorf("fee of %d needs a currency and a beneficiary", s.FeeAmount)
	}
	return nil
}
