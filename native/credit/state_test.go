package credit

import (
	"errors"
	"testing"

	sdkmath "cosmossdk.io/math"

	"creditcore/native/health"
	"creditcore/native/vault"
	"creditcore/storage"
)

func TestStateAccountsPage(t *testing.T) {
	state := NewState(storage.NewMemDB())
	for id := uint64(1); id <= 5; id++ {
		if err := state.PutAccount(Account{ID: id, Kind: health.AccountKindDefault}); err != nil {
			t.Fatalf("put account %d: %v", id, err)
		}
	}

	page, err := state.AccountsPage(0, 3)
	if err != nil || len(page) != 3 {
		t.Fatalf("first page: %v err %v", page, err)
	}
	if page[0].ID != 1 || page[2].ID != 3 {
		t.Fatalf("page out of order: %v", page)
	}
	page, err = state.AccountsPage(3, 0)
	if err != nil || len(page) != 2 || page[0].ID != 4 || page[1].ID != 5 {
		t.Fatalf("cursor page: %v err %v", page, err)
	}

	if err := state.DeleteAccount(2); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := state.Account(2); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("deleted account still loads: %v", err)
	}
	page, err = state.AccountsPage(1, 2)
	if err != nil || len(page) != 2 || page[0].ID != 3 || page[1].ID != 4 {
		t.Fatalf("page after delete: %v err %v", page, err)
	}
}

func TestStateDepositAccounting(t *testing.T) {
	state := NewState(storage.NewMemDB())
	if err := state.AddDeposit(1, coin(t, "uatom", 70)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := state.AddDeposit(1, coin(t, "uatom", 30)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := state.AddDeposit(1, coin(t, "uosmo", 25)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := state.AddDeposit(2, coin(t, "uatom", 50)); err != nil {
		t.Fatalf("add: %v", err)
	}

	coins, err := state.Deposits(1)
	if err != nil || len(coins) != 2 {
		t.Fatalf("deposits: %s err %v", coins, err)
	}
	if coins[0].Denom != "uatom" || !coins[0].Amount.Equal(sdkmath.NewInt(100)) {
		t.Fatalf("aggregated deposit: %s", coins)
	}
	total, err := state.TotalDeposited("uatom")
	if err != nil || !total.Equal(sdkmath.NewInt(150)) {
		t.Fatalf("total: %s err %v", total, err)
	}

	// Draining a balance removes the record entirely.
	if err := state.SubDeposit(1, coin(t, "uatom", 100)); err != nil {
		t.Fatalf("sub: %v", err)
	}
	coins, err = state.Deposits(1)
	if err != nil || len(coins) != 1 || coins[0].Denom != "uosmo" {
		t.Fatalf("deposits after drain: %s err %v", coins, err)
	}
	amount, err := state.DepositAmount(1, "uatom")
	if err != nil || !amount.IsZero() {
		t.Fatalf("drained amount: %s err %v", amount, err)
	}
	total, err = state.TotalDeposited("uatom")
	if err != nil || !total.Equal(sdkmath.NewInt(50)) {
		t.Fatalf("total after drain: %s err %v", total, err)
	}

	if err := state.SubDeposit(2, coin(t, "uatom", 60)); !errors.Is(err, ErrInsufficientDeposit) {
		t.Fatalf("overdraw: %v", err)
	}
	total, err = state.TotalDeposited("uatom")
	if err != nil || !total.Equal(sdkmath.NewInt(50)) {
		t.Fatalf("failed sub moved the total: %s err %v", total, err)
	}
}

func TestStateUnlockIDsAreSequential(t *testing.T) {
	state := NewState(storage.NewMemDB())
	for want := uint64(1); want <= 3; want++ {
		got, err := state.NextUnlockID()
		if err != nil || got != want {
			t.Fatalf("unlock id: got %d want %d err %v", got, want, err)
		}
	}
}

func TestStateVaultPositions(t *testing.T) {
	state := NewState(storage.NewMemDB())
	if _, found, err := state.VaultPosition(1, "cred1beta"); err != nil || found {
		t.Fatalf("empty state reported a position: found %v err %v", found, err)
	}

	beta := vault.NewPosition(vault.PositionUnlocked)
	beta.Unlocked = sdkmath.NewInt(40)
	if err := state.PutVaultPosition(1, "cred1beta", beta); err != nil {
		t.Fatalf("put: %v", err)
	}
	alpha := vault.NewPosition(vault.PositionLocking)
	alpha.Locked = sdkmath.NewInt(15)
	alpha.Unlocking = []vault.UnlockingPosition{{ID: 7, Shares: sdkmath.NewInt(5), CooldownEnd: 1_700_003_600}}
	if err := state.PutVaultPosition(1, "cred1alpha", alpha); err != nil {
		t.Fatalf("put: %v", err)
	}

	loaded, found, err := state.VaultPosition(1, "cred1alpha")
	if err != nil || !found {
		t.Fatalf("load: found %v err %v", found, err)
	}
	if loaded.Kind != vault.PositionLocking || !loaded.Locked.Equal(sdkmath.NewInt(15)) {
		t.Fatalf("locking position: %+v", loaded)
	}
	if len(loaded.Unlocking) != 1 || loaded.Unlocking[0].ID != 7 || loaded.Unlocking[0].CooldownEnd != 1_700_003_600 {
		t.Fatalf("unlocking entries: %+v", loaded.Unlocking)
	}

	entries, err := state.VaultPositions(1)
	if err != nil || len(entries) != 2 {
		t.Fatalf("list: %v err %v", entries, err)
	}
	if entries[0].Addr != "cred1alpha" || entries[1].Addr != "cred1beta" {
		t.Fatalf("list order: %+v", entries)
	}

	// Writing an emptied position deletes the record.
	if err := state.PutVaultPosition(1, "cred1beta", vault.NewPosition(vault.PositionUnlocked)); err != nil {
		t.Fatalf("put empty: %v", err)
	}
	if _, found, err := state.VaultPosition(1, "cred1beta"); err != nil || found {
		t.Fatalf("emptied position survived: found %v err %v", found, err)
	}
	entries, err = state.VaultPositions(1)
	if err != nil || len(entries) != 1 {
		t.Fatalf("list after delete: %v err %v", entries, err)
	}
}

func TestStateConfigRoundTrip(t *testing.T) {
	state := NewState(storage.NewMemDB())
	if _, err := state.Config(); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("unconfigured state: %v", err)
	}

	cfg := DefaultConfig(testAddress(t, 0xE0), "uusd")
	if err := state.PutConfig(cfg); err != nil {
		t.Fatalf("put: %v", err)
	}
	loaded, err := state.Config()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Owner != cfg.Owner || loaded.BaseDenom != "uusd" || loaded.MarketAddr != cfg.MarketAddr {
		t.Fatalf("config fields: %+v", loaded)
	}
	if !loaded.MaxSlippage.Equal(cfg.MaxSlippage) || !loaded.MaxValueForBurn.IsZero() {
		t.Fatalf("config limits: %+v", loaded)
	}
}
