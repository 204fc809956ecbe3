package common

import (
	"errors"
	"testing"
)

func TestQuotaApplyRequestCeiling(t *testing.T) {
	q := Quota{MaxRequestsPerEpoch: 3, EpochSeconds: 3600}

	usage := QuotaUsage{EpochID: 7}
	var err error
	for i := 0; i < 3; i++ {
		usage, err = q.Apply(7, usage, 0)
		if err != nil {
			t.Fatalf("request %d: unexpected error: %v", i+1, err)
		}
	}
	if usage.Requests != 3 {
		t.Fatalf("unexpected request count: %d", usage.Requests)
	}

	denied, err := q.Apply(7, usage, 0)
	if !errors.Is(err, ErrQuotaRequestsExceeded) {
		t.Fatalf("expected ErrQuotaRequestsExceeded, got %v", err)
	}
	if denied != usage {
		t.Fatalf("denial must not mutate usage: %+v", denied)
	}

	rolled, err := q.Apply(8, usage, 0)
	if err != nil {
		t.Fatalf("unexpected error after epoch rollover: %v", err)
	}
	if rolled.EpochID != 8 || rolled.Requests != 1 {
		t.Fatalf("unexpected usage after rollover: %+v", rolled)
	}
}

func TestQuotaApplyAmountCeiling(t *testing.T) {
	q := Quota{MaxAmountPerEpoch: 1_000}

	usage, err := q.Apply(2, QuotaUsage{EpochID: 2}, 1_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if usage.Amount != 1_000 {
		t.Fatalf("unexpected amount used: %d", usage.Amount)
	}

	denied, err := q.Apply(2, usage, 1)
	if !errors.Is(err, ErrQuotaAmountExceeded) {
		t.Fatalf("expected ErrQuotaAmountExceeded, got %v", err)
	}
	if denied != usage {
		t.Fatalf("denial must not mutate usage: %+v", denied)
	}

	rolled, err := q.Apply(3, usage, 400)
	if err != nil {
		t.Fatalf("unexpected error after epoch rollover: %v", err)
	}
	if rolled.Amount != 400 || rolled.Requests != 1 {
		t.Fatalf("unexpected usage after rollover: %+v", rolled)
	}
}

func TestQuotaEpochBuckets(t *testing.T) {
	q := Quota{EpochSeconds: 3600}
	if got := q.Epoch(0); got != 0 {
		t.Fatalf("epoch at zero: %d", got)
	}
	if got := q.Epoch(3599); got != 0 {
		t.Fatalf("epoch before rollover: %d", got)
	}
	if got := q.Epoch(3600); got != 1 {
		t.Fatalf("epoch after rollover: %d", got)
	}

	daily := Quota{}
	if got := daily.Epoch(86_400 * 5); got != 5 {
		t.Fatalf("default epoch width: %d", got)
	}
}

func TestQuotaEnforced(t *testing.T) {
	if (Quota{}).Enforced() {
		t.Fatal("zero quota must not be enforced")
	}
	if !(Quota{MaxRequestsPerEpoch: 1}).Enforced() {
		t.Fatal("request ceiling must enforce")
	}
	if !(Quota{MaxAmountPerEpoch: 1}).Enforced() {
		t.Fatal("amount ceiling must enforce")
	}
}
