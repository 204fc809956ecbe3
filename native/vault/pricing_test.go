package vault

import (
	"errors"
	"math/big"
	"testing"
)

func TestRatchetPriceRejectsZeroShares(t *testing.T) {
	if _, _, err := RatchetPrice(big.NewInt(10_000), big.NewInt(1_000_000), big.NewInt(0), 365); !errors.Is(err, ErrInvalidShares) {
		t.Fatalf("expected ErrInvalidShares, got %v", err)
	}
	if _, _, err := RatchetPrice(big.NewInt(10_000), big.NewInt(1_000_000), nil, 365); !errors.Is(err, ErrInvalidShares) {
		t.Fatalf("expected ErrInvalidShares for nil shares, got %v", err)
	}
}

func TestRatchetPriceRejectsInvalidInput(t *testing.T) {
	if _, _, err := RatchetPrice(big.NewInt(0), big.NewInt(1), big.NewInt(1), 1); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for zero price, got %v", err)
	}
	if _, _, err := RatchetPrice(big.NewInt(10_000), big.NewInt(-1), big.NewInt(1), 1); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for negative payout, got %v", err)
	}
}

func TestRatchetPriceAdoptsHigherCandidate(t *testing.T) {
	price, adopted, err := RatchetPrice(big.NewInt(10_000), big.NewInt(1_001_200), big.NewInt(1_200_000), 365)
	if err != nil {
		t.Fatalf("ratchet: %v", err)
	}
	if !adopted {
		t.Fatalf("expected the candidate to be adopted")
	}
	if price.Cmp(big.NewInt(10_018)) != 0 {
		t.Fatalf("unexpected price: got %s want 10018", price)
	}
}

func TestRatchetPriceKeepsHigherCurrent(t *testing.T) {
	price, adopted, err := RatchetPrice(big.NewInt(11_000), big.NewInt(1_001_200), big.NewInt(1_200_000), 365)
	if err != nil {
		t.Fatalf("ratchet: %v", err)
	}
	if adopted {
		t.Fatalf("candidate below the current price must not be adopted")
	}
	if price.Cmp(big.NewInt(11_000)) != 0 {
		t.Fatalf("price must stay at 11000, got %s", price)
	}
}

func TestRatchetPriceNeverDecreases(t *testing.T) {
	current := big.NewInt(10_000)
	payouts := []int64{0, 10, 50_000, 1_001_200, 90_000_000}
	for _, paid := range payouts {
		price, _, err := RatchetPrice(current, big.NewInt(paid), big.NewInt(1_200_000), 365)
		if err != nil {
			t.Fatalf("ratchet with payout %d: %v", paid, err)
		}
		if price.Cmp(current) < 0 {
			t.Fatalf("price decreased from %s to %s at payout %d", current, price, paid)
		}
		current = price
	}
}

func TestRatchetPriceDustSharesKeepPrice(t *testing.T) {
	// One share over a decade truncates the weighted denominator to zero;
	// the update is skipped rather than failed.
	price, adopted, err := RatchetPrice(big.NewInt(10_000), big.NewInt(5_000_000), big.NewInt(1), 7000)
	if err != nil {
		t.Fatalf("ratchet: %v", err)
	}
	if adopted || price.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("expected the price to hold at 10000, got %s (adopted=%v)", price, adopted)
	}
}

func TestRatchetPriceFallsBackBeyondFixedWidth(t *testing.T) {
	totalPaid := new(big.Int).Lsh(big.NewInt(1), 300)
	shares := new(big.Int).Exp(big.NewInt(10), big.NewInt(50), nil)
	current := big.NewInt(10_000)

	price, adopted, err := RatchetPrice(current, totalPaid, shares, 365)
	if err != nil {
		t.Fatalf("ratchet: %v", err)
	}

	qualifying := new(big.Int).Add(bigRatchetQuantityDivisor, bigRatchetQuantityCap)
	numerator := new(big.Int).Mul(qualifying, totalPaid)
	numerator.Mul(numerator, bigPriceScale)
	weighted := new(big.Int).Mul(bigRatchetTimeDivisor, shares)
	weighted.Quo(weighted, big.NewInt(RatchetTimeDivisor+364))
	denominator := weighted.Mul(weighted, bigRatchetQuantityDivisor)
	expected := numerator.Quo(numerator, denominator)

	if !adopted {
		t.Fatalf("expected adoption for an oversized payout")
	}
	if price.Cmp(expected) != 0 {
		t.Fatalf("fallback candidate mismatch: got %s want %s", price, expected)
	}
}
