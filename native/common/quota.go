package common

import (
	"errors"
	"math"
)

var (
	// ErrQuotaRequestsExceeded rejects a request that would pass the per-epoch
	// request ceiling.
	ErrQuotaRequestsExceeded = errors.New("quota: requests exceeded")
	// ErrQuotaAmountExceeded rejects a request that would pass the per-epoch
	// token ceiling.
	ErrQuotaAmountExceeded = errors.New("quota: amount exceeded")
	// ErrQuotaCounterOverflow rejects usage that no longer fits the counters.
	ErrQuotaCounterOverflow = errors.New("quota: counter overflow")
)

// Quota caps how often, and for how much value, a single address may use a
// metered operation within one epoch. A zero ceiling leaves that dimension
// unlimited; the zero Quota meters nothing.
type Quota struct {
	MaxRequestsPerEpoch uint32
	MaxAmountPerEpoch   uint64
	EpochSeconds        uint32
}

// Enforced reports whether the quota constrains anything at all.
func (q Quota) Enforced() bool {
	return q.MaxRequestsPerEpoch > 0 || q.MaxAmountPerEpoch > 0
}

// Epoch buckets a unix timestamp into the quota's epoch index. Timestamps at
// or before zero share epoch zero.
func (q Quota) Epoch(now int64) uint64 {
	if now <= 0 {
		return 0
	}
	seconds := uint64(q.EpochSeconds)
	if seconds == 0 {
		seconds = 86_400
	}
	return uint64(now) / seconds
}

// QuotaUsage carries an address's consumption counters for one epoch.
type QuotaUsage struct {
	Requests uint32
	Amount   uint64
	EpochID  uint64
}

// Apply charges one request of the given amount against the usage recorded in
// prev. Counters reset when the epoch has rolled over since prev was taken. On
// success the returned usage reflects the charge; on a ceiling or overflow
// failure prev is returned untouched so the caller can persist it unchanged.
func (q Quota) Apply(nowEpoch uint64, prev QuotaUsage, amount uint64) (QuotaUsage, error) {
	next := prev
	if prev.EpochID != nowEpoch {
		next = QuotaUsage{EpochID: nowEpoch}
	}

	if next.Requests == math.MaxUint32 {
		return prev, ErrQuotaCounterOverflow
	}
	next.Requests++
	if q.MaxRequestsPerEpoch > 0 && next.Requests > q.MaxRequestsPerEpoch {
		return prev, ErrQuotaRequestsExceeded
	}

	if amount > 0 {
		if next.Amount > math.MaxUint64-amount {
			return prev, ErrQuotaCounterOverflow
		}
		next.Amount += amount
	}
	if q.MaxAmountPerEpoch > 0 && next.Amount > q.MaxAmountPerEpoch {
		return prev, ErrQuotaAmountExceeded
	}

	return next, nil
}
