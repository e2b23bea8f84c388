package store

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/lazypower/calibrator/internal/calibration"
)

// ErrInsufficientBalance is returned when a transfer or burn exceeds the
// holder's balance.
var ErrInsufficientBalance = errors.New("insufficient balance")

// Balance returns holder's balance of currency.
func (r *Repo) Balance(currency, holder calibration.Address) (uint64, error) {
	var amount int64
	err := r.q.QueryRow(`
		SELECT amount FROM balances WHERE currency = ? AND holder = ?
	`, currency.String(), holder.String()).Scan(&amount)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return uint64(amount), nil
}

// Mint credits amount of currency to holder.
func (r *Repo) Mint(currency, holder calibration.Address, amount uint64) error {
	if err := r.credit(currency, holder, amount); err != nil {
		return fmt.Errorf("mint: %w", err)
	}
	return nil
}

// TransferFrom moves amount of currency from one holder to another. It
// implements the payment token primitive on top of the balances table, so a
// transfer inside a transaction rolls back with it.
func (r *Repo) TransferFrom(currency, from, to calibration.Address, amount uint64) error {
	if err := r.debit(currency, from, amount); err != nil {
		return fmt.Errorf("transfer %d from %s: %w", amount, from, err)
	}
	if err := r.credit(currency, to, amount); err != nil {
		return fmt.Errorf("transfer %d to %s: %w", amount, to, err)
	}
	return nil
}

// Burn destroys amount of holder's currency and records the reason.
func (r *Repo) Burn(currency, holder calibration.Address, amount uint64, reason string) error {
	if err := r.debit(currency, holder, amount); err != nil {
		return fmt.Errorf("burn %d from %s: %w", amount, holder, err)
	}
	_, err := r.q.Exec(`
		INSERT INTO burns (currency, holder, amount, reason, created_at) VALUES (?, ?, ?, ?, ?)
	`, currency.String(), holder.String(), int64(amount), reason, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("record burn: %w", err)
	}
	return nil
}

// BurnedTotal sums every burn of currency.
func (r *Repo) BurnedTotal(currency calibration.Address) (uint64, error) {
	var total int64
	err := r.q.QueryRow(`
		SELECT COALESCE(SUM(amount), 0) FROM burns WHERE currency = ?
	`, currency.String()).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum burns: %w", err)
	}
	return uint64(total), nil
}

// checkAmount rejects amounts the signed INTEGER column cannot hold.
func checkAmount(amount uint64) error {
	if amount > math.MaxInt64 {
		return fmt.Errorf("amount %d exceeds ledger range", amount)
	}
	return nil
}

func (r *Repo) credit(currency, holder calibration.Address, amount uint64) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	_, err := r.q.Exec(`
		INSERT INTO balances (currency, holder, amount) VALUES (?, ?, ?)
		ON CONFLICT(currency, holder) DO UPDATE SET amount = amount + excluded.amount
	`, currency.String(), holder.String(), int64(amount))
	return err
}

func (r *Repo) debit(currency, holder calibration.Address, amount uint64) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	result, err := r.q.Exec(`
		UPDATE balances SET amount = amount - ?
		WHERE currency = ? AND holder = ? AND amount >= ?
	`, int64(amount), currency.String(), holder.String(), int64(amount))
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrInsufficientBalance
	}
	return nil
}
