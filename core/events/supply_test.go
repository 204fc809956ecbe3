package events

import (
	"math/big"
	"testing"
)

func TestTokenSupplyEventAttributes(t *testing.T) {
	evt := TokenSupply{
		Total:  big.NewInt(12_500),
		Delta:  big.NewInt(500),
		Reason: SupplyReasonTopUp,
		At:     1_700_000_100,
	}.Event()
	if evt.Type != TypeTokenSupply {
		t.Fatalf("wrong event type %q", evt.Type)
	}
	want := map[string]string{
		"total":  "12500",
		"delta":  "500",
		"reason": SupplyReasonTopUp,
		"at":     "1700000100",
	}
	for key, expect := range want {
		if got := evt.Attributes[key]; got != expect {
			t.Fatalf("attribute %s = %q, want %q", key, got, expect)
		}
	}
	if len(evt.Attributes) != len(want) {
		t.Fatalf("unexpected extra attributes: %+v", evt.Attributes)
	}
}

func TestTokenSupplyEventOmitsEmptyFields(t *testing.T) {
	evt := TokenSupply{Total: big.NewInt(9)}.Event()
	if got := evt.Attributes["total"]; got != "9" {
		t.Fatalf("total = %q, want 9", got)
	}
	for _, key := range []string{"delta", "reason", "at"} {
		if value, ok := evt.Attributes[key]; ok {
			t.Fatalf("expected %s to be omitted, got %q", key, value)
		}
	}
}
