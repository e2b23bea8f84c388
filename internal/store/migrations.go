package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "item_groups and settings: registered item sources and their calibration profiles",
		SQL: `
CREATE TABLE item_groups (
    id               INTEGER PRIMARY KEY,
    source           TEXT NOT NULL,
    enabled          INTEGER NOT NULL DEFAULT 1,
    regen_multiplier INTEGER NOT NULL DEFAULT 100 CHECK (regen_multiplier >= 0),
    max_charge_bonus INTEGER NOT NULL DEFAULT 0 CHECK (max_charge_bonus >= 0),
    repository       TEXT,
    created_at       INTEGER NOT NULL,
    updated_at       INTEGER NOT NULL
);

-- group_id 0 holds the global default profile
CREATE TABLE settings (
    group_id        INTEGER PRIMARY KEY,
    interact_period INTEGER NOT NULL CHECK (interact_period >= 1),
    charge_period   INTEGER NOT NULL,
    recal_period    INTEGER NOT NULL,
    fee_currency    TEXT,
    fee_amount      INTEGER NOT NULL DEFAULT 0,
    fee_beneficiary TEXT,
    burn_on_collect INTEGER NOT NULL DEFAULT 0,
    tune_value      INTEGER NOT NULL CHECK (tune_value >= 1),
    bonus_value     INTEGER NOT NULL DEFAULT 0,
    bonus_threshold INTEGER NOT NULL DEFAULT 0,
    updated_at      INTEGER NOT NULL
);
`,
	},
	{
		Version:     2,
		Description: "calibrations: per-group vitality records",
		SQL: `
CREATE TABLE calibrations (
    group_id           INTEGER NOT NULL,
    item_id            INTEGER NOT NULL CHECK (item_id > 0),
    owner              TEXT NOT NULL,
    kinship            INTEGER NOT NULL CHECK (kinship BETWEEN 0 AND 100),
    experience         INTEGER NOT NULL DEFAULT 0,
    level              INTEGER NOT NULL CHECK (level BETWEEN 1 AND 99),
    charge             INTEGER NOT NULL CHECK (charge >= 0),
    wear               INTEGER NOT NULL CHECK (wear BETWEEN 0 AND 100),
    prowess            INTEGER NOT NULL DEFAULT 0,
    agility            INTEGER NOT NULL DEFAULT 0,
    intelligence       INTEGER NOT NULL DEFAULT 0,
    last_interaction   INTEGER NOT NULL DEFAULT 0,
    last_charge        INTEGER NOT NULL DEFAULT 0,
    last_recalibration INTEGER NOT NULL DEFAULT 0,
    calibration_count  INTEGER NOT NULL DEFAULT 0,
    locked             INTEGER NOT NULL DEFAULT 0,
    updated_at         INTEGER NOT NULL,
    PRIMARY KEY (group_id, item_id)
);

CREATE INDEX idx_calibrations_owner ON calibrations(owner);
`,
	},
	{
		Version:     3,
		Description: "legacy_calibrations: single-group records kept for old readers",
		SQL: `
CREATE TABLE legacy_calibrations (
    item_id            INTEGER PRIMARY KEY CHECK (item_id > 0),
    owner              TEXT NOT NULL,
    kinship            INTEGER NOT NULL,
    experience         INTEGER NOT NULL DEFAULT 0,
    level              INTEGER NOT NULL,
    charge             INTEGER NOT NULL,
    wear               INTEGER NOT NULL,
    prowess            INTEGER NOT NULL DEFAULT 0,
    agility            INTEGER NOT NULL DEFAULT 0,
    intelligence       INTEGER NOT NULL DEFAULT 0,
    last_interaction   INTEGER NOT NULL DEFAULT 0,
    last_charge        INTEGER NOT NULL DEFAULT 0,
    last_recalibration INTEGER NOT NULL DEFAULT 0,
    calibration_count  INTEGER NOT NULL DEFAULT 0,
    locked             INTEGER NOT NULL DEFAULT 0,
    updated_at         INTEGER NOT NULL
);
`,
	},
	{
		Version:     4,
		Description: "processors and engine_config: access allowlist and staking wiring",
		SQL: `
CREATE TABLE processors (
    address    TEXT PRIMARY KEY,
    approved   INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE engine_config (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);
`,
	},
	{
		Version:     5,
		Description: "balances: fee token ledger",
		SQL: `
CREATE TABLE balances (
    currency TEXT NOT NULL,
    holder   TEXT NOT NULL,
    amount   INTEGER NOT NULL CHECK (amount >= 0),
    PRIMARY KEY (currency, holder)
);

CREATE TABLE burns (
    id         INTEGER PRIMARY KEY,
    currency   TEXT NOT NULL,
    holder     TEXT NOT NULL,
    amount     INTEGER NOT NULL,
    reason     TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
`,
	},
	{
		Version:     6,
		Description: "events: observable state transitions",
		SQL: `
CREATE TABLE events (
    id         INTEGER PRIMARY KEY,
    kind       TEXT NOT NULL,
    group_id   INTEGER NOT NULL DEFAULT 0,
    item_id    INTEGER NOT NULL DEFAULT 0,
    actor      TEXT,
    attrs      TEXT,
    created_at INTEGER NOT NULL
);

CREATE INDEX idx_events_item    ON events(group_id, item_id);
CREATE INDEX idx_events_created ON events(created_at DESC);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
