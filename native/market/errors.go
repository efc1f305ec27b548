package market

import (
	"errors"
	"fmt"
)

// Failure categories. Every operation fails all-or-nothing into exactly one of
// these; callers branch with errors.Is.
var (
	ErrPrecondition   = errors.New("market: precondition violated")
	ErrTransferFailed = errors.New("market: external transfer failed")
	ErrReentrancy     = errors.New("market: reentrant call")
	ErrInvalidConfig  = errors.New("market: invalid configuration")
)

var (
	ErrListingNotFound = fmt.Errorf("%w: listing not found", ErrPrecondition)
	ErrListingExists   = fmt.Errorf("%w: listing already exists", ErrPrecondition)
	ErrAuctionNotFound = fmt.Errorf("%w: auction not found", ErrPrecondition)
	ErrAuctionExists   = fmt.Errorf("%w: active auction already exists", ErrPrecondition)
	ErrNoLiveBid       = fmt.Errorf("%w: no live bid for caller", ErrPrecondition)
	ErrDuplicateBid    = fmt.Errorf("%w: bidder already holds a live bid", ErrPrecondition)
	ErrEscrowEmpty     = fmt.Errorf("%w: escrow list empty", ErrPrecondition)
	ErrUnauthorized    = fmt.Errorf("%w: unauthorized caller", ErrPrecondition)

	errNilState    = errors.New("market engine: state not configured")
	errNilPayments = errors.New("market engine: payment adapter not configured")
	errNilAssets   = errors.New("market engine: asset resolver not configured")
)

func preconditionf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrPrecondition, fmt.Sprintf(format, args...))
}

func transferFailed(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrTransferFailed, err)
}

func configViolation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
