package engine

import (
	"fmt"
	"log"

	"github.com/lazypower/calibrator/internal/calibration"
	"github.com/lazypower/calibrator/internal/collab"
	"github.com/lazypower/calibrator/internal/store"
)

// Burn reasons.
const (
	reasonInspection = "calibration fee"
	reasonRepair     = "repair fee"
)

func (e *Engine) paymentsFor(tx *store.Repo) collab.Payments {
	if e.payments != nil {
		return e.payments(tx)
	}
	return tx
}

// collectFee charges payer the settings' fee once per unit. It moves the
// total to the beneficiary and, when burn-on-collect is set, burns it from
// the beneficiary right away. Any failure is returned wrapped in ErrPayment;
// the caller's transaction must roll back on it. Zero fees are a no-op.
func (e *Engine) collectFee(tx *store.Repo, j *journal, s calibration.Settings, payer calibration.Address, units int, reason string, key calibration.Key) (uint64, error) {
	if s.FeeAmount == 0 || units <= 0 {
		return 0, nil
	}
	if s.FeeAmount > calibration.MaxAmount/uint64(units) {
		return 0, detail(ErrFeeOverflow, "%d x %d", s.FeeAmount, units)
	}
	amount := s.FeeAmount * uint64(units)

	pay := e.paymentsFor(tx)
	if err := pay.TransferFrom(s.FeeCurrency, payer, s.FeeBeneficiary, amount); err != nil {
		log.Printf("fee: transfer %d from %s: %v", amount, payer, err)
		return 0, settle("fee", fatal, fmt.Errorf("%w: transfer: %w", ErrPayment, err))
	}
	j.add(e.event(EventFeeCollected, key.GroupID, key.ItemID, payer, map[string]any{
		"currency":    s.FeeCurrency.String(),
		"beneficiary": s.FeeBeneficiary.String(),
		"amount":      amount,
		"units":       units,
	}))

	if s.BurnOnCollect {
		if err := pay.Burn(s.FeeCurrency, s.FeeBeneficiary, amount, reason); err != nil {
			log.Printf("fee: burn %d from %s: %v", amount, s.FeeBeneficiary, err)
			return 0, settle("fee", fatal, fmt.Errorf("%w: burn: %w", ErrPayment, err))
		}
		j.add(e.event(EventFeeBurned, key.GroupID, key.ItemID, payer, map[string]any{
			"currency": s.FeeCurrency.String(),
			"amount":   amount,
			"reason":   reason,
		}))
	}
	return amount, nil
}
