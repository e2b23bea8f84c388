package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lazypower/calibrator/internal/calibration"
)

// Event is one persisted state transition.
type Event struct {
	ID        int64               `json:"id"`
	Kind      string              `json:"kind"`
	GroupID   uint64              `json:"group_id,omitempty"`
	ItemID    uint64              `json:"item_id,omitempty"`
	Actor     calibration.Address `json:"actor"`
	Attrs     map[string]any      `json:"attrs,omitempty"`
	CreatedAt int64               `json:"created_at"`
}

// AppendEvent stores e. The caller assigns the id.
func (r *Repo) AppendEvent(e Event) error {
	var attrs []byte
	if len(e.Attrs) > 0 {
		var err error
		attrs, err = json.Marshal(e.Attrs)
		if err != nil {
			return fmt.Errorf("encode event attrs: %w", err)
		}
	}
	_, err := r.q.Exec(`
		INSERT INTO events (id, kind, group_id, item_id, actor, attrs, created_at)
		VALUES (?, ?, ?, ?, NULLIF(?, ''), ?, ?)
	`, e.ID, e.Kind, int64(e.GroupID), int64(e.ItemID), optionalAddress(e.Actor), nullableBytes(attrs), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append event %s: %w", e.Kind, err)
	}
	return nil
}

// ListEvents returns the most recent events, newest first.
func (r *Repo) ListEvents(limit int) ([]Event, error) {
	rows, err := r.q.Query(`
		SELECT id, kind, group_id, item_id, actor, attrs, created_at
		FROM events ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListItemEvents returns the most recent events for one record, newest first.
func (r *Repo) ListItemEvents(groupID, itemID uint64, limit int) ([]Event, error) {
	rows, err := r.q.Query(`
		SELECT id, kind, group_id, item_id, actor, attrs, created_at
		FROM events WHERE group_id = ? AND item_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?
	`, int64(groupID), int64(itemID), limit)
	if err != nil {
		return nil, fmt.Errorf("list item events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var (
			e                Event
			groupID, itemID  int64
			actor            sql.NullString
			attrs            sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Kind, &groupID, &itemID, &actor, &attrs, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.GroupID, e.ItemID = uint64(groupID), uint64(itemID)
		addr, err := parseOptionalAddress(actor)
		if err != nil {
			return nil, fmt.Errorf("event %d actor: %w", e.ID, err)
		}
		e.Actor = addr
		if attrs.Valid && attrs.String != "" {
			if err := json.Unmarshal([]byte(attrs.String), &e.Attrs); err != nil {
				return nil, fmt.Errorf("decode event %d attrs: %w", e.ID, err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
