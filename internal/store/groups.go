package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lazypower/calibrator/internal/calibration"
)

// PutGroup inserts or replaces a group registration.
func (r *Repo) PutGroup(g calibration.Group) error {
	now := time.Now().Unix()
	_, err := r.q.Exec(`
		INSERT INTO item_groups (id, source, enabled, regen_multiplier, max_charge_bonus, repository, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, NULLIF(?, ''), ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source = excluded.source,
			enabled = excluded.enabled,
			regen_multiplier = excluded.regen_multiplier,
			max_charge_bonus = excluded.max_charge_bonus,
			repository = excluded.repository,
			updated_at = excluded.updated_at
	`, int64(g.ID), g.Source.String(), boolInt(g.Enabled), g.RegenMultiplier, g.MaxChargeBonus,
		optionalAddress(g.Repository), now, now)
	if err != nil {
		return fmt.Errorf("put group %d: %w", g.ID, err)
	}
	return nil
}

// GetGroup returns a group by id, or nil if it is not registered.
func (r *Repo) GetGroup(id uint64) (*calibration.Group, error) {
	var (
		g          calibration.Group
		rawID      int64
		source     string
		enabled    int
		repository sql.NullString
	)
	err := r.q.QueryRow(`
		SELECT id, source, enabled, regen_multiplier, max_charge_bonus, repository
		FROM item_groups WHERE id = ?
	`, int64(id)).Scan(&rawID, &source, &enabled, &g.RegenMultiplier, &g.MaxChargeBonus, &repository)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get group %d: %w", id, err)
	}
	g.ID = uint64(rawID)
	g.Enabled = enabled != 0
	if g.Source, err = calibration.ParseAddress(source); err != nil {
		return nil, fmt.Errorf("group %d source: %w", id, err)
	}
	if g.Repository, err = parseOptionalAddress(repository); err != nil {
		return nil, fmt.Errorf("group %d repository: %w", id, err)
	}
	return &g, nil
}

// ListGroups returns every registered group ordered by id.
func (r *Repo) ListGroups() ([]calibration.Group, error) {
	rows, err := r.q.Query(`SELECT id FROM item_groups ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	var ids []uint64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan group id: %w", err)
		}
		ids = append(ids, uint64(id))
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	groups := make([]calibration.Group, 0, len(ids))
	for _, id := range ids {
		g, err := r.GetGroup(id)
		if err != nil {
			return nil, err
		}
		if g != nil {
			groups = append(groups, *g)
		}
	}
	return groups, nil
}

// DeleteGroup removes a registration. Records for the group stay in place.
// Returns false if the group was not registered.
func (r *Repo) DeleteGroup(id uint64) (bool, error) {
	result, err := r.q.Exec(`DELETE FROM item_groups WHERE id = ?`, int64(id))
	if err != nil {
		return false, fmt.Errorf("delete group %d: %w", id, err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func optionalAddress(a calibration.Address) string {
	if a.IsZero() {
		return ""
	}
	return a.String()
}

func parseOptionalAddress(s sql.NullString) (calibration.Address, error) {
	if !s.Valid || s.String == "" {
		return calibration.ZeroAddress, nil
	}
	return calibration.ParseAddress(s.String)
}
