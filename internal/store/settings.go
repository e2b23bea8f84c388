package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lazypower/calibrator/internal/calibration"
)

// DefaultSettingsGroup is the settings key of the global profile.
const DefaultSettingsGroup uint64 = 0

// PutSettings stores the profile for groupID (DefaultSettingsGroup for the
// global default).
func (r *Repo) PutSettings(groupID uint64, s calibration.Settings) error {
	_, err := r.q.Exec(`
		INSERT INTO settings (group_id, interact_period, charge_period, recal_period,
			fee_currency, fee_amount, fee_beneficiary, burn_on_collect,
			tune_value, bonus_value, bonus_threshold, updated_at)
		VALUES (?, ?, ?, ?, NULLIF(?, ''), ?, NULLIF(?, ''), ?, ?, ?, ?, ?)
		ON CONFLICT(group_id) DO UPDATE SET
			interact_period = excluded.interact_period,
			charge_period = excluded.charge_period,
			recal_period = excluded.recal_period,
			fee_currency = excluded.fee_currency,
			fee_amount = excluded.fee_amount,
			fee_beneficiary = excluded.fee_beneficiary,
			burn_on_collect = excluded.burn_on_collect,
			tune_value = excluded.tune_value,
			bonus_value = excluded.bonus_value,
			bonus_threshold = excluded.bonus_threshold,
			updated_at = excluded.updated_at
	`, int64(groupID), s.InteractPeriod, s.ChargePeriod, s.RecalPeriod,
		optionalAddress(s.FeeCurrency), int64(s.FeeAmount), optionalAddress(s.FeeBeneficiary), boolInt(s.BurnOnCollect),
		s.TuneValue, s.BonusValue, s.BonusThreshold, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("put settings %d: %w", groupID, err)
	}
	return nil
}

// GetSettings returns the profile stored for groupID, or nil if none.
func (r *Repo) GetSettings(groupID uint64) (*calibration.Settings, error) {
	var (
		s                     calibration.Settings
		currency, beneficiary sql.NullString
		feeAmount             int64
		burn                  int
	)
	err := r.q.QueryRow(`
		SELECT interact_period, charge_period, recal_period, fee_currency, fee_amount,
			fee_beneficiary, burn_on_collect, tune_value, bonus_value, bonus_threshold
		FROM settings WHERE group_id = ?
	`, int64(groupID)).Scan(&s.InteractPeriod, &s.ChargePeriod, &s.RecalPeriod, &currency, &feeAmount,
		&beneficiary, &burn, &s.TuneValue, &s.BonusValue, &s.BonusThreshold)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get settings %d: %w", groupID, err)
	}
	s.FeeAmount = uint64(feeAmount)
	s.BurnOnCollect = burn != 0
	if s.FeeCurrency, err = parseOptionalAddress(currency); err != nil {
		return nil, fmt.Errorf("settings %d fee currency: %w", groupID, err)
	}
	if s.FeeBeneficiary, err = parseOptionalAddress(beneficiary); err != nil {
		return nil, fmt.Errorf("settings %d fee beneficiary: %w", groupID, err)
	}
	return &s, nil
}

// ResolveSettings returns the group's own profile, falling back to the stored
// global default and then to calibration.DefaultSettings.
func (r *Repo) ResolveSettings(groupID uint64) (calibration.Settings, error) {
	if groupID != DefaultSettingsGroup {
		s, err := r.GetSettings(groupID)
		if err != nil {
			return calibration.Settings{}, err
		}
		if s != nil {
			return *s, nil
		}
	}
	s, err := r.GetSettings(DefaultSettingsGroup)
	if err != nil {
		return calibration.Settings{}, err
	}
	if s != nil {
		return *s, nil
	}
	return calibration.DefaultSettings(), nil
}

// DeleteSettings drops a group's override so it falls back to the default.
func (r *Repo) DeleteSettings(groupID uint64) error {
	if _, err := r.q.Exec(`DELETE FROM settings WHERE group_id = ?`, int64(groupID)); err != nil {
		return fmt.Errorf("delete settings %d: %w", groupID, err)
	}
	return nil
}
