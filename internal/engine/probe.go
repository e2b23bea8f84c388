package engine

import (
	"context"

	"github.com/lazypower/calibrator/internal/calibration"
	"github.com/lazypower/calibrator/internal/store"
)

// The read-only surface. None of these take the mutation lock or the
// re-entrancy guard, so collaborators may call them from callbacks.

// Probe projects the stored record of (groupID, itemID) to the current time
// without writing anything. A missing record projects as uninitialized.
func (e *Engine) Probe(ctx context.Context, groupID, itemID uint64) (calibration.Projection, error) {
	const op = "probe"
	group, err := e.DB.GetGroup(groupID)
	if err != nil {
		return calibration.Projection{}, opError(op, groupID, itemID, calibration.ZeroAddress, err)
	}
	if group == nil {
		return calibration.Projection{}, opError(op, groupID, itemID, calibration.ZeroAddress, ErrGroupNotFound)
	}
	settings, err := e.DB.ResolveSettings(groupID)
	if err != nil {
		return calibration.Projection{}, opError(op, groupID, itemID, calibration.ZeroAddress, err)
	}
	rec, err := e.DB.GetRecord(groupID, itemID)
	if err != nil {
		return calibration.Projection{}, opError(op, groupID, itemID, calibration.ZeroAddress, err)
	}
	var r calibration.Record
	if rec != nil {
		r = *rec
	}
	return calibration.Project(r, *group, settings, e.now()), nil
}

// Exists reports whether a record exists for (groupID, itemID).
func (e *Engine) Exists(ctx context.Context, groupID, itemID uint64) (bool, error) {
	ok, err := e.DB.RecordExists(groupID, itemID)
	return ok, opError("exists", groupID, itemID, calibration.ZeroAddress, err)
}

// BatchExists reports existence for each key, in order.
func (e *Engine) BatchExists(ctx context.Context, keys []calibration.Key) ([]bool, error) {
	records, err := e.BatchRecords(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make([]bool, len(records))
	for i, r := range records {
		out[i] = r.Exists()
	}
	return out, nil
}

// BatchRecords returns the raw stored records for keys, in order. Missing
// records come back zero-valued with ItemID 0.
func (e *Engine) BatchRecords(ctx context.Context, keys []calibration.Key) ([]calibration.Record, error) {
	if len(keys) == 0 {
		return nil, opError("batch records", 0, 0, calibration.ZeroAddress, ErrEmptyBatch)
	}
	records, err := e.DB.GetRecords(keys)
	return records, opError("batch records", 0, 0, calibration.ZeroAddress, err)
}

// Pairs zips parallel group and item id slices into keys.
func Pairs(groupIDs, itemIDs []uint64) ([]calibration.Key, error) {
	if len(groupIDs) != len(itemIDs) {
		return nil, &Error{Op: "pairs", Err: detail(ErrLengthMismatch, "%d groups, %d items", len(groupIDs), len(itemIDs))}
	}
	keys := make([]calibration.Key, len(groupIDs))
	for i := range groupIDs {
		keys[i] = calibration.Key{GroupID: groupIDs[i], ItemID: itemIDs[i]}
	}
	return keys, nil
}

// Group returns a registered group.
func (e *Engine) Group(ctx context.Context, groupID uint64) (*calibration.Group, error) {
	g, err := e.DB.GetGroup(groupID)
	if err != nil {
		return nil, opError("get group", groupID, 0, calibration.ZeroAddress, err)
	}
	if g == nil {
		return nil, opError("get group", groupID, 0, calibration.ZeroAddress, ErrGroupNotFound)
	}
	return g, nil
}

// Groups lists every registered group.
func (e *Engine) Groups(ctx context.Context) ([]calibration.Group, error) {
	return e.DB.ListGroups()
}

// Settings returns the effective settings for groupID.
func (e *Engine) Settings(ctx context.Context, groupID uint64) (calibration.Settings, error) {
	s, err := e.DB.ResolveSettings(groupID)
	return s, opError("get settings", groupID, 0, calibration.ZeroAddress, err)
}

// Events returns the most recent events. A non-zero key narrows them to one
// record.
func (e *Engine) Events(ctx context.Context, key calibration.Key, limit int) ([]store.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	if key.ItemID != 0 {
		return e.DB.ListItemEvents(key.GroupID, key.ItemID, limit)
	}
	return e.DB.ListEvents(limit)
}

// Balance returns holder's fee token balance on the built-in ledger.
func (e *Engine) Balance(ctx context.Context, currency, holder calibration.Address) (uint64, error) {
	return e.DB.Balance(currency, holder)
}
