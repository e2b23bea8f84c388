package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lazypower/calibrator/internal/calibration"
)

const stakingContractKey = "staking_contract"

// SetProcessor adds or removes addr from the approved-processor allowlist.
func (r *Repo) SetProcessor(addr calibration.Address, approved bool) error {
	_, err := r.q.Exec(`
		INSERT INTO processors (address, approved, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET approved = excluded.approved, updated_at = excluded.updated_at
	`, addr.String(), boolInt(approved), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("set processor %s: %w", addr, err)
	}
	return nil
}

// IsProcessor reports whether addr is on the allowlist.
func (r *Repo) IsProcessor(addr calibration.Address) (bool, error) {
	var approved int
	err := r.q.QueryRow(`SELECT approved FROM processors WHERE address = ?`, addr.String()).Scan(&approved)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check processor %s: %w", addr, err)
	}
	return approved != 0, nil
}

// SetStakingContract records the staking contract address; the zero address
// clears it.
func (r *Repo) SetStakingContract(addr calibration.Address) error {
	if addr.IsZero() {
		if _, err := r.q.Exec(`DELETE FROM engine_config WHERE key = ?`, stakingContractKey); err != nil {
			return fmt.Errorf("clear staking contract: %w", err)
		}
		return nil
	}
	_, err := r.q.Exec(`
		INSERT INTO engine_config (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, stakingContractKey, addr.String(), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("set staking contract: %w", err)
	}
	return nil
}

// StakingContract returns the configured staking contract, or the zero
// address when none is set.
func (r *Repo) StakingContract() (calibration.Address, error) {
	var value string
	err := r.q.QueryRow(`SELECT value FROM engine_config WHERE key = ?`, stakingContractKey).Scan(&value)
	if err == sql.ErrNoRows {
		return calibration.ZeroAddress, nil
	}
	if err != nil {
		return calibration.ZeroAddress, fmt.Errorf("get staking contract: %w", err)
	}
	return calibration.ParseAddress(value)
}
