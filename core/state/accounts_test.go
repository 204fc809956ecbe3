package state

import (
	"math/big"
	"testing"

	"tenure/core/types"
	"tenure/crypto"
	"tenure/storage"
)

func testAddress(suffix byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[crypto.AddressLength-1] = suffix
	return crypto.MustNewAddress(crypto.TenurePrefix, raw)
}

func TestAccountRoundTrip(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	manager := NewManager(db)

	addr := testAddress(0x01)
	got, err := manager.GetAccount(addr)
	if err != nil {
		t.Fatalf("get unknown account: %v", err)
	}
	if got != nil {
		t.Fatalf("unknown account must be nil, got %+v", got)
	}

	account := &types.Account{Nonce: 7, Balance: big.NewInt(1_000_000)}
	if err := manager.PutAccount(addr, account); err != nil {
		t.Fatalf("put account: %v", err)
	}
	got, err = manager.GetAccount(addr)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if got == nil {
		t.Fatalf("stored account missing")
	}
	if got.Nonce != 7 {
		t.Fatalf("nonce mismatch: got %d want 7", got.Nonce)
	}
	if got.Balance.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("balance mismatch: got %s", got.Balance)
	}
}

func TestPutAccountStoresCopy(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	manager := NewManager(db)

	addr := testAddress(0x02)
	account := &types.Account{Balance: big.NewInt(500)}
	if err := manager.PutAccount(addr, account); err != nil {
		t.Fatalf("put account: %v", err)
	}
	account.Balance.SetInt64(0)

	got, err := manager.GetAccount(addr)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if got.Balance.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("stored balance tracked caller mutation: got %s", got.Balance)
	}
}

func TestPutAccountRejectsInvalid(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	manager := NewManager(db)

	addr := testAddress(0x03)
	if err := manager.PutAccount(addr, nil); err == nil {
		t.Fatalf("nil account must be rejected")
	}
	if err := manager.PutAccount(addr, &types.Account{Balance: big.NewInt(-1)}); err == nil {
		t.Fatalf("negative balance must be rejected")
	}
	if err := manager.PutAccount(crypto.Address{}, &types.Account{}); err == nil {
		t.Fatalf("zero-value address must be rejected")
	}
}
