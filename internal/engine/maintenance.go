package engine

import (
	"context"
	"log"

	"github.com/lazypower/calibrator/internal/calibration"
	"github.com/lazypower/calibrator/internal/store"
)

// RepairResult describes a committed wear repair.
type RepairResult struct {
	Record   calibration.Record `json:"record"`
	Repaired int                `json:"repaired"`
	Fee      uint64             `json:"fee"`
}

// target is an existing record the caller is authorized to maintain.
type target struct {
	group    calibration.Group
	settings calibration.Settings
	rec      calibration.Record
	via      string
}

func (e *Engine) loadTarget(ctx context.Context, groupID, itemID uint64, caller calibration.Address) (*target, error) {
	group, err := e.enabledGroup(groupID)
	if err != nil {
		return nil, err
	}
	settings, err := e.DB.ResolveSettings(groupID)
	if err != nil {
		return nil, err
	}
	auth, err := e.authorize(ctx, *group, itemID, caller)
	if err != nil {
		return nil, err
	}
	rec, err := e.DB.GetRecord(groupID, itemID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrRecordNotFound
	}
	return &target{group: *group, settings: settings, rec: *rec, via: auth.Via}, nil
}

// Repair removes up to points of wear. Projected wear is committed first,
// then reduced by min(points, wear), and the wear baseline restarts at now.
// The same timestamp gates inspection, so a repair also starts a cooldown.
// Repairs are refused on locked records and within RecalPeriod hours of the
// last recalibration, and they charge the group's fee once.
func (e *Engine) Repair(ctx context.Context, groupID, itemID uint64, caller calibration.Address, points int) (*RepairResult, error) {
	const op = "repair"
	if points <= 0 {
		return nil, opError(op, groupID, itemID, caller, ErrZeroAmount)
	}
	ctx, unlock, err := e.enter(ctx)
	if err != nil {
		return nil, opError(op, groupID, itemID, caller, err)
	}
	defer unlock()
	now := e.now()

	t, err := e.loadTarget(ctx, groupID, itemID, caller)
	if err != nil {
		return nil, opError(op, groupID, itemID, caller, err)
	}
	if t.rec.Locked {
		return nil, opError(op, groupID, itemID, caller, ErrLocked)
	}
	if last := t.rec.LastRecalibration; last != 0 && now < last+t.settings.RecalPeriod*3600 {
		return nil, opError(op, groupID, itemID, caller,
			detail(ErrNotReady, "repair available at %d", last+t.settings.RecalPeriod*3600))
	}

	rec := t.rec
	wear := calibration.ProjectWear(rec, now)
	repaired := points
	if repaired > wear {
		repaired = wear
	}
	rec.Wear = wear - repaired
	rec.LastRecalibration = now

	res := &RepairResult{Record: rec, Repaired: repaired}
	err = e.commit(ctx, func(tx *store.Repo, j *journal) error {
		if err := tx.PutRecord(rec); err != nil {
			return err
		}
		j.add(e.event(EventWearRepaired, groupID, itemID, caller, map[string]any{
			"requested": points,
			"repaired":  repaired,
			"prior":     wear,
			"wear":      rec.Wear,
		}))
		fee, err := e.collectFee(tx, j, t.settings, caller, 1, reasonRepair, rec.Key())
		res.Fee = fee
		return err
	})
	if err != nil {
		return nil, opError(op, groupID, itemID, caller, err)
	}
	log.Printf("repair: %s wear %d -> %d", rec.Key(), wear, rec.Wear)
	return res, nil
}

// Charge refreshes the record's charge to the group ceiling. It is the
// external charging process: refused on locked records and within
// ChargePeriod hours of the previous charge.
func (e *Engine) Charge(ctx context.Context, groupID, itemID uint64, caller calibration.Address) (*calibration.Record, error) {
	const op = "charge"
	ctx, unlock, err := e.enter(ctx)
	if err != nil {
		return nil, opError(op, groupID, itemID, caller, err)
	}
	defer unlock()
	now := e.now()

	t, err := e.loadTarget(ctx, groupID, itemID, caller)
	if err != nil {
		return nil, opError(op, groupID, itemID, caller, err)
	}
	if t.rec.Locked {
		return nil, opError(op, groupID, itemID, caller, ErrLocked)
	}
	if last := t.rec.LastCharge; last != 0 && now < last+t.settings.ChargePeriod*3600 {
		return nil, opError(op, groupID, itemID, caller,
			detail(ErrChargeCooldown, "charge available at %d", last+t.settings.ChargePeriod*3600))
	}

	rec := t.rec
	prior := calibration.ProjectCharge(rec, t.group.Regen(), now)
	rec.Charge = t.group.MaxCharge()
	rec.LastCharge = now

	err = e.commit(ctx, func(tx *store.Repo, j *journal) error {
		if err := tx.PutRecord(rec); err != nil {
			return err
		}
		j.add(e.event(EventChargeUpdated, groupID, itemID, caller, map[string]any{
			"prior":  prior,
			"charge": rec.Charge,
		}))
		return nil
	})
	if err != nil {
		return nil, opError(op, groupID, itemID, caller, err)
	}
	log.Printf("charge: %s %d -> %d", rec.Key(), prior, rec.Charge)

	e.syncStaking(ctx, t.group, rec, now)
	return &rec, nil
}

// SetLocked sets the record's lock flag. Inspection ignores it; repair and
// charge refuse locked records.
func (e *Engine) SetLocked(ctx context.Context, groupID, itemID uint64, caller calibration.Address, locked bool) (*calibration.Record, error) {
	const op = "set locked"
	ctx, unlock, err := e.enter(ctx)
	if err != nil {
		return nil, opError(op, groupID, itemID, caller, err)
	}
	defer unlock()

	t, err := e.loadTarget(ctx, groupID, itemID, caller)
	if err != nil {
		return nil, opError(op, groupID, itemID, caller, err)
	}
	rec := t.rec
	if rec.Locked == locked {
		return &rec, nil
	}
	rec.Locked = locked

	err = e.commit(ctx, func(tx *store.Repo, j *journal) error {
		if err := tx.PutRecord(rec); err != nil {
			return err
		}
		j.add(e.event(EventStatusUpdated, groupID, itemID, caller, map[string]any{
			"locked": locked,
		}))
		return nil
	})
	if err != nil {
		return nil, opError(op, groupID, itemID, caller, err)
	}
	return &rec, nil
}
