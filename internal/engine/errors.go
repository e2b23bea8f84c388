package engine

import (
	"errors"
	"fmt"

	"github.com/lazypower/calibrator/internal/calibration"
)

// Error classes. Every engine error wraps exactly one of these, so callers
// can branch on errors.Is(err, ErrState) without knowing the specific cause.
var (
	ErrAuthorization = errors.New("authorization")
	ErrNotFound      = errors.New("not found")
	ErrState         = errors.New("state")
	ErrInput         = errors.New("input")
	ErrExternal      = errors.New("external")
)

type classError struct {
	msg   string
	class error
}

func (e *classError) Error() string { return e.msg }
func (e *classError) Unwrap() error { return e.class }

func classed(class error, msg string) error {
	return &classError{msg: msg, class: class}
}

var (
	ErrNotAuthorized = classed(ErrAuthorization, "caller may not act on item")

	ErrGroupNotFound    = classed(ErrNotFound, "group not registered")
	ErrRegistryNotFound = classed(ErrNotFound, "no item registry at group address")
	ErrItemNotFound     = classed(ErrNotFound, "item unknown to registry")
	ErrRecordNotFound   = classed(ErrNotFound, "no calibration record")

	ErrGroupDisabled  = classed(ErrState, "group disabled")
	ErrGroupExists    = classed(ErrState, "group already registered")
	ErrItemInactive   = classed(ErrState, "item has no valid variant")
	ErrNotReady       = classed(ErrState, "cooldown not elapsed")
	ErrLocked         = classed(ErrState, "record locked")
	ErrChargeCooldown = classed(ErrState, "charge period not elapsed")
	ErrReentrant      = classed(ErrState, "re-entrant engine call")

	ErrZeroAddress     = classed(ErrInput, "zero address")
	ErrZeroAmount      = classed(ErrInput, "zero amount")
	ErrEmptyBatch      = classed(ErrInput, "empty batch")
	ErrLengthMismatch  = classed(ErrInput, "batch array lengths differ")
	ErrInvalidGroup    = classed(ErrInput, "invalid group")
	ErrInvalidSettings = classed(ErrInput, "invalid settings")
	ErrFeeOverflow     = classed(ErrInput, "fee total overflows")
	ErrAmountRange     = classed(ErrInput, "amount exceeds ledger range")

	ErrPayment = classed(ErrExternal, "fee collection failed")
	ErrLookup  = classed(ErrExternal, "collaborator lookup failed")
)

// Error is the structured failure every engine operation returns. It names
// the operation and the (group, item, actor) it was attempted for.
type Error struct {
	Op      string
	GroupID uint64
	ItemID  uint64
	Actor   calibration.Address
	Err     error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.GroupID != 0 || e.ItemID != 0 {
		msg += fmt.Sprintf(" %d/%d", e.GroupID, e.ItemID)
	}
	if !e.Actor.IsZero() {
		msg += " by " + e.Actor.String()
	}
	return msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func opError(op string, groupID, itemID uint64, actor calibration.Address, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return &Error{Op: op, GroupID: groupID, ItemID: itemID, Actor: actor, Err: err}
}

// detail attaches a message to a sentinel while keeping it matchable.
func detail(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

// Class returns the error class err belongs to, or nil for unclassified
// errors such as storage failures.
func Class(err error) error {
	for _, class := range []error{ErrAuthorization, ErrNotFound, ErrState, ErrInput, ErrExternal} {
		if errors.Is(err, class) {
			return class
		}
	}
	return nil
}
