package engine

import (
	"context"
	"log"

	"github.com/google/uuid"

	"github.com/lazypower/calibrator/internal/calibration"
	"github.com/lazypower/calibrator/internal/store"
)

// InspectResult describes one committed inspection.
type InspectResult struct {
	Record           calibration.Record     `json:"record"`
	BioLevel         int                    `json:"bio_level"`
	ExperienceGained uint64                 `json:"experience_gained"`
	LevelUps         []calibration.StatGain `json:"level_ups,omitempty"`
	WearReduced      bool                   `json:"wear_reduced"`
	Fee              uint64                 `json:"fee"`
	Via              string                 `json:"via"`
}

// BatchResult is the aggregate outcome of InspectBatch. Items lists the keys
// that were processed; skipped keys are simply absent.
type BatchResult struct {
	BatchID   string            `json:"batch_id"`
	Requested int               `json:"requested"`
	Processed int               `json:"processed"`
	Items     []calibration.Key `json:"items"`
	Fee       uint64            `json:"fee"`
}

// inspection is a validated, not yet committed inspection of one item.
type inspection struct {
	group       calibration.Group
	via         string
	variant     uint8
	before      calibration.Record
	after       calibration.Record
	gained      uint64
	gains       []calibration.StatGain
	wearReduced bool
}

// Inspect runs one inspection of (groupID, itemID) on behalf of caller. It
// rejects with ErrNotReady while the item is cooling down, without touching
// state or charging the fee. A fee failure rolls the whole inspection back;
// a staking sync failure does not.
func (e *Engine) Inspect(ctx context.Context, groupID, itemID uint64, caller calibration.Address) (*InspectResult, error) {
	const op = "inspect"
	ctx, unlock, err := e.enter(ctx)
	if err != nil {
		return nil, opError(op, groupID, itemID, caller, err)
	}
	defer unlock()
	now := e.now()

	group, err := e.enabledGroup(groupID)
	if err != nil {
		return nil, opError(op, groupID, itemID, caller, err)
	}
	settings, err := e.DB.ResolveSettings(groupID)
	if err != nil {
		return nil, opError(op, groupID, itemID, caller, err)
	}
	in, err := e.prepare(ctx, *group, settings, itemID, caller, now, nil)
	if err != nil {
		return nil, opError(op, groupID, itemID, caller, err)
	}

	res := &InspectResult{
		Record:           in.after,
		BioLevel:         bioLevel(in.after, *group, now),
		ExperienceGained: in.gained,
		LevelUps:         in.gains,
		WearReduced:      in.wearReduced,
		Via:              in.via,
	}
	err = e.commit(ctx, func(tx *store.Repo, j *journal) error {
		if err := tx.PutRecord(in.after); err != nil {
			return err
		}
		e.journalInspection(j, in, caller, now, "")
		fee, err := e.collectFee(tx, j, settings, caller, 1, reasonInspection, in.after.Key())
		res.Fee = fee
		return err
	})
	if err != nil {
		return nil, opError(op, groupID, itemID, caller, err)
	}
	log.Printf("inspect: %s level %d xp +%d (%s)", in.after.Key(), in.after.Level, in.gained, in.via)

	e.syncStaking(ctx, *group, in.after, now)
	return res, nil
}

// InspectBatch inspects every key on behalf of caller using one settings
// snapshot, resolved for the first key's group. Keys that fail group,
// authorization, variant or cooldown checks are skipped silently: they are
// logged, absent from the result, and never billed. Only storage failures
// abort the batch. The fee is charged once, for the processed count, and
// only if that count is non-zero.
func (e *Engine) InspectBatch(ctx context.Context, keys []calibration.Key, caller calibration.Address) (*BatchResult, error) {
	const op = "inspect batch"
	if len(keys) == 0 {
		return nil, opError(op, 0, 0, caller, ErrEmptyBatch)
	}
	if caller.IsZero() {
		return nil, opError(op, 0, 0, caller, ErrZeroAddress)
	}
	ctx, unlock, err := e.enter(ctx)
	if err != nil {
		return nil, opError(op, 0, 0, caller, err)
	}
	defer unlock()
	now := e.now()

	settings, err := e.DB.ResolveSettings(keys[0].GroupID)
	if err != nil {
		return nil, opError(op, keys[0].GroupID, 0, caller, err)
	}

	res := &BatchResult{BatchID: uuid.NewString(), Requested: len(keys)}
	groups := make(map[uint64]*calibration.Group)
	pending := make(map[calibration.Key]calibration.Record)
	var batch []*inspection

	for _, key := range keys {
		group, ok := groups[key.GroupID]
		if !ok {
			group, err = e.enabledGroup(key.GroupID)
			if err != nil && Class(err) == nil {
				return nil, opError(op, key.GroupID, key.ItemID, caller, err)
			}
			groups[key.GroupID] = group
		}
		if group == nil || !group.Enabled {
			log.Printf("inspect: batch %s skip %s: group unavailable", res.BatchID, key)
			continue
		}
		in, err := e.prepare(ctx, *group, settings, key.ItemID, caller, now, pending)
		if err != nil {
			if Class(err) == nil {
				return nil, opError(op, key.GroupID, key.ItemID, caller, err)
			}
			log.Printf("inspect: batch %s skip %s: %v", res.BatchID, key, err)
			continue
		}
		pending[key] = in.after
		batch = append(batch, in)
	}

	res.Processed = len(batch)
	res.Items = make([]calibration.Key, 0, len(batch))
	for _, in := range batch {
		res.Items = append(res.Items, in.after.Key())
	}
	if len(batch) == 0 {
		log.Printf("inspect: batch %s processed 0/%d", res.BatchID, len(keys))
		return res, nil
	}

	err = e.commit(ctx, func(tx *store.Repo, j *journal) error {
		for _, in := range batch {
			if err := tx.PutRecord(in.after); err != nil {
				return err
			}
			e.journalInspection(j, in, caller, now, res.BatchID)
		}
		fee, err := e.collectFee(tx, j, settings, caller, len(batch), reasonInspection, calibration.Key{})
		if err != nil {
			return err
		}
		res.Fee = fee
		j.add(e.event(EventBatchInspected, 0, 0, caller, map[string]any{
			"batch_id":  res.BatchID,
			"requested": len(keys),
			"processed": len(batch),
			"fee":       fee,
		}))
		return nil
	})
	if err != nil {
		return nil, opError(op, 0, 0, caller, err)
	}
	log.Printf("inspect: batch %s processed %d/%d", res.BatchID, len(batch), len(keys))

	for _, in := range batch {
		e.syncStaking(ctx, in.group, in.after, now)
	}
	return res, nil
}

// prepare validates one item and computes its post-inspection record without
// writing anything. pending holds records already inspected earlier in the
// same batch.
func (e *Engine) prepare(ctx context.Context, group calibration.Group, s calibration.Settings, itemID uint64, caller calibration.Address, now int64, pending map[calibration.Key]calibration.Record) (*inspection, error) {
	auth, err := e.authorize(ctx, group, itemID, caller)
	if err != nil {
		return nil, err
	}
	variant, err := e.variant(ctx, group, itemID)
	if err != nil {
		return nil, err
	}

	key := calibration.Key{GroupID: group.ID, ItemID: itemID}
	rec, ok := pending[key]
	if !ok {
		stored, err := e.DB.GetRecord(group.ID, itemID)
		if err != nil {
			return nil, err
		}
		if stored != nil {
			rec = *stored
		} else {
			rec = calibration.NewRecord(group.ID, itemID, auth.Owner, now)
		}
	}
	if calibration.StatusAt(rec, s.InteractPeriod, now) == calibration.StatusCoolingDown {
		return nil, detail(ErrNotReady, "ready at %d", calibration.CooldownEnd(rec, s.InteractPeriod))
	}

	in := &inspection{
		group:   group,
		via:     auth.Via,
		variant: variant,
		before:  rec,
	}
	rec.Owner = auth.Owner
	in.after, in.gained, in.gains, in.wearReduced = applyInspection(rec, variant, s, caller, now)
	return in, nil
}

// applyInspection is the pure inspection transition: tune kinship, commit
// projected wear and roll for the luck repair, stamp the interaction and
// recalibration baselines, then award experience and resolve levels.
func applyInspection(rec calibration.Record, variant uint8, s calibration.Settings, caller calibration.Address, now int64) (calibration.Record, uint64, []calibration.StatGain, bool) {
	// Experience reads the previous recalibration time, so compute it first.
	gained := calibration.ExperienceGain(rec, variant, now)

	rec.Kinship = calibration.TuneKinship(rec, s, now)
	rec.Wear = calibration.ProjectWear(rec, now)
	lucky := rec.Wear > 0 && calibration.LuckRoll(now, rec.ItemID, caller)
	if lucky {
		rec.Wear--
	}

	rec.LastInteraction = now
	rec.LastRecalibration = now
	rec.CalibrationCount++

	rec.Experience = calibration.AddExperience(rec.Experience, gained)
	rec, gains := calibration.LevelUp(rec, variant, now)
	return rec, gained, gains, lucky
}

func (e *Engine) journalInspection(j *journal, in *inspection, caller calibration.Address, now int64, batchID string) {
	key := in.after.Key()
	with := func(attrs map[string]any) map[string]any {
		if batchID != "" {
			attrs["batch_id"] = batchID
		}
		return attrs
	}

	j.add(e.event(EventExperienceGained, key.GroupID, key.ItemID, caller, with(map[string]any{
		"gained":     in.gained,
		"experience": in.after.Experience,
	})))
	for _, g := range in.gains {
		j.add(e.event(EventLevelUp, key.GroupID, key.ItemID, caller, with(map[string]any{
			"level":        g.Level,
			"prowess":      g.Prowess,
			"agility":      g.Agility,
			"intelligence": g.Intelligence,
		})))
	}
	if in.after.Wear != in.before.Wear {
		j.add(e.event(EventWearChanged, key.GroupID, key.ItemID, caller, with(map[string]any{
			"wear":  in.after.Wear,
			"luck":  in.wearReduced,
			"prior": in.before.Wear,
		})))
	}
	j.add(e.event(EventInspected, key.GroupID, key.ItemID, caller, with(map[string]any{
		"kinship":           in.after.Kinship,
		"level":             in.after.Level,
		"experience":        in.after.Experience,
		"wear":              in.after.Wear,
		"bio_level":         bioLevel(in.after, in.group, now),
		"calibration_count": in.after.CalibrationCount,
		"via":               in.via,
	})))
}

// enabledGroup loads a group that must exist and be enabled.
func (e *Engine) enabledGroup(groupID uint64) (*calibration.Group, error) {
	group, err := e.DB.GetGroup(groupID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, ErrGroupNotFound
	}
	if !group.Enabled {
		return group, ErrGroupDisabled
	}
	return group, nil
}

func bioLevel(rec calibration.Record, group calibration.Group, now int64) int {
	return calibration.BioLevel(rec.Kinship, calibration.ProjectCharge(rec, group.Regen(), now), rec.Wear)
}
