package ledger

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapProcErrorSentinels(t *testing.T) {
	cases := []struct {
		message string
		want    error
	}{
		{"not_open", ErrNotOpen},
		{"account_not_found", ErrAccountNotFound},
		{"insufficient_margin", ErrInsufficientMargin},
	}
	for _, c := range cases {
		err := fmt.Errorf("exec: %w", &pgconn.PgError{Message: c.message, Code: "P0001"})
		if got := mapProcError(err); !errors.Is(got, c.want) {
			t.Errorf("mapProcError(%q) = %v, want %v", c.message, got, c.want)
		}
	}
}

func TestMapProcErrorPassthrough(t *testing.T) {
	plain := errors.New("connection refused")
	if got := mapProcError(plain); got != plain {
		t.Errorf("plain error should pass through, got %v", got)
	}

	pgErr := &pgconn.PgError{Message: "deadlock detected", Code: "40P01"}
	if got := mapProcError(pgErr); !errors.As(got, new(*pgconn.PgError)) {
		t.Errorf("unrecognized pg error should pass through, got %v", got)
	}

	if got := mapProcError(nil); got != nil {
		t.Errorf("nil should stay nil, got %v", got)
	}
}

func TestTradingDayIsUTC(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	local := time.Date(2026, 3, 14, 23, 30, 0, 0, est)
	if got := TradingDay(local); got != "2026-03-15" {
		t.Errorf("TradingDay = %s, want 2026-03-15", got)
	}
}
