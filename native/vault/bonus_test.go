package vault

import (
	"errors"
	"math/big"
	"testing"
)

func TestQuantityBonusSchedule(t *testing.T) {
	cases := []struct {
		name   string
		amount *big.Int
		want   int64
	}{
		{"nil amount", nil, 0},
		{"negative amount", big.NewInt(-5), 0},
		{"below divisor truncates to zero", big.NewInt(1_000_000), 0},
		{"at cap", big.NewInt(QuantityBonusCap), 1},
		{"above cap clamps", big.NewInt(3 * QuantityBonusCap), 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := QuantityBonus(tc.amount)
			if got.Cmp(big.NewInt(tc.want)) != 0 {
				t.Fatalf("quantity bonus: got %s want %d", got, tc.want)
			}
		})
	}
}

func TestTimeBonusSchedule(t *testing.T) {
	amount := big.NewInt(1_000_000)
	cases := []struct {
		name string
		days uint64
		want int64
	}{
		{"zero days", 0, 0},
		{"single day", 1, 0},
		{"one year", 365, 200_000},
		{"exactly at ceiling", 5461, 3_000_000},
		{"beyond ceiling clamps", 7000, 3_000_000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := TimeBonus(amount, tc.days)
			if got.Cmp(big.NewInt(tc.want)) != 0 {
				t.Fatalf("time bonus: got %s want %d", got, tc.want)
			}
		})
	}
}

func TestTimeBonusMonotonicInDuration(t *testing.T) {
	amount := big.NewInt(123_457)
	previous := big.NewInt(-1)
	for days := uint64(0); days <= 6000; days += 91 {
		bonus := TimeBonus(amount, days)
		if bonus.Cmp(previous) < 0 {
			t.Fatalf("time bonus decreased at %d days: %s after %s", days, bonus, previous)
		}
		previous = bonus
	}
}

func TestStakeSharesYearLongQuote(t *testing.T) {
	quote, err := StakeShares(big.NewInt(1_000_000), 365, big.NewInt(10_000))
	if err != nil {
		t.Fatalf("stake shares: %v", err)
	}
	if quote.QuantityBonus.Sign() != 0 {
		t.Fatalf("unexpected quantity bonus: %s", quote.QuantityBonus)
	}
	if quote.TimeBonus.Cmp(big.NewInt(200_000)) != 0 {
		t.Fatalf("unexpected time bonus: %s", quote.TimeBonus)
	}
	if quote.Effective.Cmp(big.NewInt(1_200_000)) != 0 {
		t.Fatalf("unexpected effective amount: %s", quote.Effective)
	}
	if quote.Shares.Cmp(big.NewInt(1_200_000)) != 0 {
		t.Fatalf("unexpected shares: %s", quote.Shares)
	}
}

func TestStakeSharesScaleWithPrice(t *testing.T) {
	quote, err := StakeShares(big.NewInt(1_000_000), 365, big.NewInt(20_000))
	if err != nil {
		t.Fatalf("stake shares: %v", err)
	}
	if quote.Shares.Cmp(big.NewInt(600_000)) != 0 {
		t.Fatalf("doubled price should halve shares, got %s", quote.Shares)
	}
}

func TestStakeSharesRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		name   string
		amount *big.Int
		days   uint64
		price  *big.Int
	}{
		{"nil amount", nil, 365, big.NewInt(10_000)},
		{"zero amount", big.NewInt(0), 365, big.NewInt(10_000)},
		{"zero duration", big.NewInt(1_000_000), 0, big.NewInt(10_000)},
		{"nil price", big.NewInt(1_000_000), 365, nil},
		{"zero price", big.NewInt(1_000_000), 365, big.NewInt(0)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := StakeShares(tc.amount, tc.days, tc.price); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}
