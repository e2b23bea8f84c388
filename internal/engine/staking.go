package engine

import (
	"context"
	"errors"
	"log"

	"github.com/lazypower/calibrator/internal/calibration"
	"github.com/lazypower/calibrator/internal/collab"
)

// failurePolicy decides what a collaborator failure does to the operation
// that made the call.
type failurePolicy int

const (
	// fatal failures are returned and roll the transaction back.
	fatal failurePolicy = iota
	// logged failures are written to the log and dropped.
	logged
)

// settle applies policy to the outcome of a collaborator call at site.
func settle(site string, policy failurePolicy, err error) error {
	if err == nil {
		return nil
	}
	if policy == logged {
		log.Printf("%s: %v (continuing)", site, err)
		return nil
	}
	return err
}

var errPushRejected = errors.New("update rejected")

// syncStaking pushes the record's derived state to staking when a staking
// contract is configured. The outcome is recorded as a staking_sync event
// either way; a failure never affects the already committed mutation.
func (e *Engine) syncStaking(ctx context.Context, group calibration.Group, rec calibration.Record, now int64) bool {
	if e.Staking == nil {
		return false
	}
	contract, err := e.DB.StakingContract()
	if err != nil {
		settle("staking", logged, err)
		return false
	}
	if contract.IsZero() {
		return false
	}

	update := collab.TokenUpdate{
		GroupID:    rec.GroupID,
		ItemID:     rec.ItemID,
		Level:      rec.Level,
		Experience: rec.Experience,
		Charge:     calibration.ProjectCharge(rec, group.Regen(), now),
	}
	done := e.collaborating()
	ok, err := e.Staking.PushTokenUpdate(ctx, update)
	done()
	if err == nil && !ok {
		err = errPushRejected
	}
	success := err == nil
	settle("staking: push "+rec.Key().String(), logged, err)

	e.record(e.event(EventStakingSync, rec.GroupID, rec.ItemID, calibration.ZeroAddress, map[string]any{
		"success":    success,
		"contract":   contract.String(),
		"level":      update.Level,
		"experience": update.Experience,
		"charge":     update.Charge,
	}))
	return success
}
