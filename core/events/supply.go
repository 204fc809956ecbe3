package events

import (
	"math/big"
	"strconv"
	"strings"

	"tenure/core/types"
)

// TypeTokenSupply marks a change to the circulating native token supply.
const TypeTokenSupply = "token.supply"

// Reasons recorded on supply events. The faucet mints to individual
// accounts; top-ups mint straight into the reward pool.
const (
	SupplyReasonFaucet = "faucet"
	SupplyReasonTopUp  = "pool-topup"
)

// TokenSupply announces the new total after a mint, together with the
// delta that produced it.
type TokenSupply struct {
	Total  *big.Int
	Delta  *big.Int
	Reason string
	At     int64
}

func (TokenSupply) EventType() string { return TypeTokenSupply }

// Event flattens the supply change into stream attributes. Nil deltas,
// blank reasons and zero timestamps are omitted rather than encoded.
func (e TokenSupply) Event() *types.Event {
	evt := &types.Event{Type: TypeTokenSupply, Attributes: map[string]string{
		"total": formatAmount(e.Total),
	}}
	if e.Delta != nil {
		evt.Attributes["delta"] = e.Delta.String()
	}
	if reason := strings.TrimSpace(e.Reason); reason != "" {
		evt.Attributes["reason"] = reason
	}
	if e.At > 0 {
		evt.Attributes["at"] = strconv.FormatInt(e.At, 10)
	}
	return evt
}
