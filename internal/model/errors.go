package model

import "errors"

var (
	// ErrContestNotFound is returned when a contest id does not exist
	ErrContestNotFound = errors.New("contest not found")
	// ErrInvalidContest is returned when contest attributes break an invariant
	ErrInvalidContest = errors.New("invalid contest")
	// ErrSoldOut is returned by the ledger when no code is available.
	// The allocation engine converts it to a loss.
	ErrSoldOut = errors.New("no available prize codes")
	// ErrAllocationFailed wraps storage failures during allocation.
	// The whole call is safe to retry.
	ErrAllocationFailed = errors.New("allocation failed")
)
