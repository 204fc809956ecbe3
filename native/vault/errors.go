package vault

import "errors"

var (
	// ErrInvalidInput rejects zero or malformed amounts, durations and addresses.
	ErrInvalidInput = errors.New("vault: invalid input")
	// ErrAlreadyActive rejects opening a stake while one is active for the owner.
	ErrAlreadyActive = errors.New("vault: stake already active")
	// ErrNoActiveStake rejects operations on an absent or closed stake.
	ErrNoActiveStake = errors.New("vault: no active stake")
	// ErrPeriodNotComplete rejects a scheduled closure before the duration elapsed.
	ErrPeriodNotComplete = errors.New("vault: staking period not complete")
	// ErrPeriodComplete rejects the early closure path after natural completion.
	ErrPeriodComplete = errors.New("vault: staking period already complete")
	// ErrTransferFailed signals a custody move that could not be satisfied.
	ErrTransferFailed = errors.New("vault: transfer failed")
	// ErrInvalidShares guards the pricing ratchet against a zero share count.
	ErrInvalidShares = errors.New("vault: invalid share count")
	// ErrUnauthorized rejects privileged operations from non-authority callers.
	ErrUnauthorized = errors.New("vault: unauthorized")
)
