package sentinel

import "errors"

// Sentinel errors for storage facts. Stores return these (optionally wrapped) and
// services translate them into coded domain errors.
//
//   - ErrNotFound: record does not exist
//   - ErrAlreadyUsed: unique key is taken (duplicate submission, reused payout reference)
//   - ErrInvalidState: record is in the wrong state for a conditional write
//   - ErrUnavailable: backing service temporarily unavailable
var (
	ErrNotFound     = errors.New("not found")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
