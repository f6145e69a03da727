package ledger

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Sentinel errors raised by the atomic stored procedures. The
// procedures signal them via RAISE EXCEPTION with a well-known
// message; mapProcError translates the Postgres error back into a
// typed sentinel the callers can branch on.
var (
	// ErrNotOpen is returned by close_position_atomic when the
	// position is no longer open. This is a benign race: another
	// path (manual close, another evaluator) got there first.
	ErrNotOpen = errors.New("position not open")

	// ErrAccountNotFound is returned when the account is missing,
	// inactive, or breached.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInsufficientMargin is returned by place_market_order when
	// the requested margin exceeds the account's available margin.
	ErrInsufficientMargin = errors.New("insufficient margin")
)

// mapProcError converts a RAISE EXCEPTION from one of the stored
// procedures into its sentinel. Anything else passes through
// unchanged and is treated as transient by the monitor loop.
func mapProcError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case strings.Contains(pgErr.Message, "not_open"):
		return ErrNotOpen
	case strings.Contains(pgErr.Message, "account_not_found"):
		return ErrAccountNotFound
	case strings.Contains(pgErr.Message, "insufficient_margin"):
		return ErrInsufficientMargin
	}
	return err
}
