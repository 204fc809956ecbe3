package state

var (
	accountPrefix        = []byte("acct/")
	vaultStakePrefix     = []byte("vault/stake/")
	vaultAggregatesKey   = []byte("vault/agg")
	nativeSupplyKeyLabel = []byte("supply")
)
