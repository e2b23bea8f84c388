package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lazypower/calibrator/internal/calibration"
)

const recordColumns = `owner, kinship, experience, level, charge, wear, prowess, agility, intelligence,
	last_interaction, last_charge, last_recalibration, calibration_count, locked`

// PutRecord is the single write path for calibration records. It always
// writes the canonical (group, item) row and, for legacy groups, mirrors the
// same values into the item-keyed legacy row. The mirror is one-directional:
// nothing reconciles the two if they drift.
func (r *Repo) PutRecord(rec calibration.Record) error {
	if !rec.Exists() {
		return fmt.Errorf("put record: item id is zero")
	}
	now := time.Now().Unix()
	args := recordArgs(rec)

	_, err := r.q.Exec(`
		INSERT INTO calibrations (group_id, item_id, `+recordColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(group_id, item_id) DO UPDATE SET `+upsertAssignments+`
	`, append(append([]any{int64(rec.GroupID), int64(rec.ItemID)}, args...), now)...)
	if err != nil {
		return fmt.Errorf("put record %s: %w", rec.Key(), err)
	}

	if !calibration.IsLegacyGroup(rec.GroupID) {
		return nil
	}
	_, err = r.q.Exec(`
		INSERT INTO legacy_calibrations (item_id, `+recordColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET `+upsertAssignments+`
	`, append(append([]any{int64(rec.ItemID)}, args...), now)...)
	if err != nil {
		return fmt.Errorf("mirror legacy record %d: %w", rec.ItemID, err)
	}
	return nil
}

const upsertAssignments = `
	owner = excluded.owner,
	kinship = excluded.kinship,
	experience = excluded.experience,
	level = excluded.level,
	charge = excluded.charge,
	wear = excluded.wear,
	prowess = excluded.prowess,
	agility = excluded.agility,
	intelligence = excluded.intelligence,
	last_interaction = excluded.last_interaction,
	last_charge = excluded.last_charge,
	last_recalibration = excluded.last_recalibration,
	calibration_count = excluded.calibration_count,
	locked = excluded.locked,
	updated_at = excluded.updated_at`

func recordArgs(rec calibration.Record) []any {
	return []any{
		rec.Owner.String(), rec.Kinship, int64(rec.Experience), rec.Level, rec.Charge, rec.Wear,
		rec.Prowess, rec.Agility, rec.Intelligence,
		rec.LastInteraction, rec.LastCharge, rec.LastRecalibration,
		int64(rec.CalibrationCount), boolInt(rec.Locked),
	}
}

// GetRecord returns the record for (groupID, itemID), or nil if none exists.
// When the canonical row is missing and the group is a legacy group, the
// legacy row is returned instead, re-keyed to groupID. There is no deeper
// fallback.
func (r *Repo) GetRecord(groupID, itemID uint64) (*calibration.Record, error) {
	rec, err := r.getCanonical(groupID, itemID)
	if err != nil || rec != nil {
		return rec, err
	}
	if !calibration.IsLegacyGroup(groupID) {
		return nil, nil
	}
	rec, err = r.GetLegacyRecord(itemID)
	if err != nil || rec == nil {
		return nil, err
	}
	rec.GroupID = groupID
	return rec, nil
}

func (r *Repo) getCanonical(groupID, itemID uint64) (*calibration.Record, error) {
	row := r.q.QueryRow(`
		SELECT `+recordColumns+` FROM calibrations WHERE group_id = ? AND item_id = ?
	`, int64(groupID), int64(itemID))
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record %d/%d: %w", groupID, itemID, err)
	}
	rec.GroupID, rec.ItemID = groupID, itemID
	return rec, nil
}

// GetLegacyRecord returns the single-group legacy row for itemID, or nil.
// The returned record has GroupID zero.
func (r *Repo) GetLegacyRecord(itemID uint64) (*calibration.Record, error) {
	row := r.q.QueryRow(`
		SELECT `+recordColumns+` FROM legacy_calibrations WHERE item_id = ?
	`, int64(itemID))
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get legacy record %d: %w", itemID, err)
	}
	rec.ItemID = itemID
	return rec, nil
}

// RecordExists reports whether GetRecord would find a record.
func (r *Repo) RecordExists(groupID, itemID uint64) (bool, error) {
	rec, err := r.GetRecord(groupID, itemID)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// GetRecords fetches records for keys in order. Missing keys yield a zero
// Record, whose ItemID of 0 marks it as absent.
func (r *Repo) GetRecords(keys []calibration.Key) ([]calibration.Record, error) {
	out := make([]calibration.Record, len(keys))
	for i, k := range keys {
		rec, err := r.GetRecord(k.GroupID, k.ItemID)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			out[i] = *rec
		}
	}
	return out, nil
}

// ListRecords returns every canonical record ordered by group then item.
func (r *Repo) ListRecords() ([]calibration.Record, error) {
	rows, err := r.q.Query(`
		SELECT group_id, item_id, ` + recordColumns + ` FROM calibrations ORDER BY group_id, item_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []calibration.Record
	for rows.Next() {
		var groupID, itemID int64
		rec, err := scanRecordInto(rows, &groupID, &itemID)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.GroupID, rec.ItemID = uint64(groupID), uint64(itemID)
		records = append(records, *rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*calibration.Record, error) {
	return scanRecordInto(s)
}

// scanRecordInto scans any leading columns into prefix, then the
// recordColumns block.
func scanRecordInto(s scanner, prefix ...any) (*calibration.Record, error) {
	var (
		rec        calibration.Record
		owner      string
		experience int64
		count      int64
		locked     int
	)
	dest := append(prefix,
		&owner, &rec.Kinship, &experience, &rec.Level, &rec.Charge, &rec.Wear,
		&rec.Prowess, &rec.Agility, &rec.Intelligence,
		&rec.LastInteraction, &rec.LastCharge, &rec.LastRecalibration,
		&count, &locked,
	)
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}
	addr, err := calibration.ParseAddress(owner)
	if err != nil {
		return nil, fmt.Errorf("owner: %w", err)
	}
	rec.Owner = addr
	rec.Experience = uint64(experience)
	rec.CalibrationCount = uint64(count)
	rec.Locked = locked != 0
	return &rec, nil
}
