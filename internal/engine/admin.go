package engine

import (
	"context"
	"log"

	"github.com/lazypower/calibrator/internal/calibration"
	"github.com/lazypower/calibrator/internal/store"
)

// RegisterGroup adds a new item group. A zero regen multiplier is replaced
// by the default of 100.
func (e *Engine) RegisterGroup(ctx context.Context, g calibration.Group) (*calibration.Group, error) {
	const op = "register group"
	ctx, unlock, err := e.enter(ctx)
	if err != nil {
		return nil, opError(op, g.ID, 0, calibration.ZeroAddress, err)
	}
	defer unlock()

	if g.RegenMultiplier == 0 {
		g.RegenMultiplier = calibration.DefaultRegenMultiplier
	}
	if err := g.Validate(); err != nil {
		return nil, opError(op, g.ID, 0, calibration.ZeroAddress, detail(ErrInvalidGroup, "%v", err))
	}
	existing, err := e.DB.GetGroup(g.ID)
	if err != nil {
		return nil, opError(op, g.ID, 0, calibration.ZeroAddress, err)
	}
	if existing != nil {
		return nil, opError(op, g.ID, 0, calibration.ZeroAddress, ErrGroupExists)
	}

	err = e.commit(ctx, func(tx *store.Repo, j *journal) error {
		if err := tx.PutGroup(g); err != nil {
			return err
		}
		j.add(e.event(EventGroupRegistered, g.ID, 0, calibration.ZeroAddress, groupAttrs(g)))
		return nil
	})
	if err != nil {
		return nil, opError(op, g.ID, 0, calibration.ZeroAddress, err)
	}
	log.Printf("groups: registered %d source %s", g.ID, g.Source)
	return &g, nil
}

// UpdateGroup replaces an existing group's registration.
func (e *Engine) UpdateGroup(ctx context.Context, g calibration.Group) (*calibration.Group, error) {
	const op = "update group"
	ctx, unlock, err := e.enter(ctx)
	if err != nil {
		return nil, opError(op, g.ID, 0, calibration.ZeroAddress, err)
	}
	defer unlock()

	if g.RegenMultiplier == 0 {
		g.RegenMultiplier = calibration.DefaultRegenMultiplier
	}
	if err := g.Validate(); err != nil {
		return nil, opError(op, g.ID, 0, calibration.ZeroAddress, detail(ErrInvalidGroup, "%v", err))
	}
	existing, err := e.DB.GetGroup(g.ID)
	if err != nil {
		return nil, opError(op, g.ID, 0, calibration.ZeroAddress, err)
	}
	if existing == nil {
		return nil, opError(op, g.ID, 0, calibration.ZeroAddress, ErrGroupNotFound)
	}

	err = e.commit(ctx, func(tx *store.Repo, j *journal) error {
		if err := tx.PutGroup(g); err != nil {
			return err
		}
		j.add(e.event(EventGroupUpdated, g.ID, 0, calibration.ZeroAddress, groupAttrs(g)))
		return nil
	})
	if err != nil {
		return nil, opError(op, g.ID, 0, calibration.ZeroAddress, err)
	}
	return &g, nil
}

// DeregisterGroup removes a registration. Its records stay in the store but
// can no longer be mutated.
func (e *Engine) DeregisterGroup(ctx context.Context, groupID uint64) error {
	const op = "deregister group"
	ctx, unlock, err := e.enter(ctx)
	if err != nil {
		return opError(op, groupID, 0, calibration.ZeroAddress, err)
	}
	defer unlock()

	err = e.commit(ctx, func(tx *store.Repo, j *journal) error {
		ok, err := tx.DeleteGroup(groupID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrGroupNotFound
		}
		j.add(e.event(EventGroupDeregistered, groupID, 0, calibration.ZeroAddress, nil))
		return nil
	})
	if err != nil {
		return opError(op, groupID, 0, calibration.ZeroAddress, err)
	}
	log.Printf("groups: deregistered %d", groupID)
	return nil
}

// SetSettings stores the settings profile for groupID. Group 0 is the global
// default every group without its own profile falls back to.
func (e *Engine) SetSettings(ctx context.Context, groupID uint64, s calibration.Settings) error {
	const op = "set settings"
	ctx, unlock, err := e.enter(ctx)
	if err != nil {
		return opError(op, groupID, 0, calibration.ZeroAddress, err)
	}
	defer unlock()

	if err := s.Validate(); err != nil {
		return opError(op, groupID, 0, calibration.ZeroAddress, detail(ErrInvalidSettings, "%v", err))
	}
	if groupID != store.DefaultSettingsGroup {
		g, err := e.DB.GetGroup(groupID)
		if err != nil {
			return opError(op, groupID, 0, calibration.ZeroAddress, err)
		}
		if g == nil {
			return opError(op, groupID, 0, calibration.ZeroAddress, ErrGroupNotFound)
		}
	}

	err = e.commit(ctx, func(tx *store.Repo, j *journal) error {
		if err := tx.PutSettings(groupID, s); err != nil {
			return err
		}
		j.add(e.event(EventSettingsUpdated, groupID, 0, calibration.ZeroAddress, map[string]any{
			"interact_period": s.InteractPeriod,
			"charge_period":   s.ChargePeriod,
			"recal_period":    s.RecalPeriod,
			"fee_amount":      s.FeeAmount,
			"burn_on_collect": s.BurnOnCollect,
			"tune_value":      s.TuneValue,
		}))
		return nil
	})
	return opError(op, groupID, 0, calibration.ZeroAddress, err)
}

// SeedDefaultSettings stores s as the global default unless one exists.
func (e *Engine) SeedDefaultSettings(ctx context.Context, s calibration.Settings) error {
	existing, err := e.DB.GetSettings(store.DefaultSettingsGroup)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	return e.SetSettings(ctx, store.DefaultSettingsGroup, s)
}

// SetProcessor adds addr to, or removes it from, the processor allowlist.
func (e *Engine) SetProcessor(ctx context.Context, addr calibration.Address, approved bool) error {
	const op = "set processor"
	if addr.IsZero() {
		return opError(op, 0, 0, addr, ErrZeroAddress)
	}
	ctx, unlock, err := e.enter(ctx)
	if err != nil {
		return opError(op, 0, 0, addr, err)
	}
	defer unlock()

	err = e.commit(ctx, func(tx *store.Repo, j *journal) error {
		if err := tx.SetProcessor(addr, approved); err != nil {
			return err
		}
		j.add(e.event(EventProcessorChanged, 0, 0, addr, map[string]any{"approved": approved}))
		return nil
	})
	return opError(op, 0, 0, addr, err)
}

// SetStakingContract configures the staking custody address. The zero
// address disconnects staking delegation and sync.
func (e *Engine) SetStakingContract(ctx context.Context, addr calibration.Address) error {
	const op = "set staking contract"
	ctx, unlock, err := e.enter(ctx)
	if err != nil {
		return opError(op, 0, 0, addr, err)
	}
	defer unlock()

	err = e.commit(ctx, func(tx *store.Repo, j *journal) error {
		if err := tx.SetStakingContract(addr); err != nil {
			return err
		}
		j.add(e.event(EventStakingContractChanged, 0, 0, calibration.ZeroAddress, map[string]any{
			"contract": addr.String(),
		}))
		return nil
	})
	return opError(op, 0, 0, addr, err)
}

// Mint credits fee token balance to holder on the built-in ledger.
func (e *Engine) Mint(ctx context.Context, currency, holder calibration.Address, amount uint64) error {
	const op = "mint"
	if currency.IsZero() || holder.IsZero() {
		return opError(op, 0, 0, holder, ErrZeroAddress)
	}
	if amount == 0 {
		return opError(op, 0, 0, holder, ErrZeroAmount)
	}
	if amount > calibration.MaxAmount {
		return opError(op, 0, 0, holder, detail(ErrAmountRange, "%d", amount))
	}
	ctx, unlock, err := e.enter(ctx)
	if err != nil {
		return opError(op, 0, 0, holder, err)
	}
	defer unlock()

	err = e.commit(ctx, func(tx *store.Repo, j *journal) error {
		if err := tx.Mint(currency, holder, amount); err != nil {
			return err
		}
		j.add(e.event(EventMinted, 0, 0, holder, map[string]any{
			"currency": currency.String(),
			"amount":   amount,
		}))
		return nil
	})
	return opError(op, 0, 0, holder, err)
}

func groupAttrs(g calibration.Group) map[string]any {
	attrs := map[string]any{
		"source":           g.Source.String(),
		"enabled":          g.Enabled,
		"regen_multiplier": g.RegenMultiplier,
		"max_charge_bonus": g.MaxChargeBonus,
	}
	if !g.Repository.IsZero() {
		attrs["repository"] = g.Repository.String()
	}
	return attrs
}
