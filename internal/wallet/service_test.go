package wallet

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"

	"github.com/hbarwallet/hbarwallet/internal/ledger"
)

const startingBalance = 10 * ledger.TinybarsPerHbar

type countingLedger struct {
	ledger.Client
	creates atomic.Int32
}

func (l *countingLedger) CreateAccount(ctx context.Context, initial int64) (ledger.Account, error) {
	l.creates.Add(1)
	return l.Client.CreateAccount(ctx, initial)
}

func newTestService(t *testing.T) (*Service, ledger.Client) {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	sealer, err := NewKeySealer(key)
	if err != nil {
		t.Fatalf("sealer: %v", err)
	}
	led := ledger.NewInMemory()
	svc := NewService(NewMemoryRepository(), led, Options{
		StartingBalance: startingBalance,
		OperatorAddress: "0.0.2",
		Sealer:          sealer,
	})
	return svc, led
}

func TestServiceCreateAndBalance(t *testing.T) {
	svc, led := newTestService(t)
	ctx := context.Background()
	owner := uuid.NewString()

	wallet, created, err := svc.Create(ctx, owner)
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	if !created {
		t.Fatalf("expected a new wallet")
	}
	if wallet.CachedBalance != startingBalance {
		t.Fatalf("expected cached balance %d, got %d", startingBalance, wallet.CachedBalance)
	}

	fetched, err := svc.GetByOwner(ctx, owner)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if fetched.ID != wallet.ID || fetched.LedgerAddress != wallet.LedgerAddress {
		t.Fatalf("expected wallet %s, got %s", wallet.ID, fetched.ID)
	}

	ledger.SeedBalance(led, wallet.LedgerAddress, "", 2_500)

	balance, err := svc.Balance(ctx, wallet.LedgerAddress)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Amount != 2_500 || balance.Cached {
		t.Fatalf("expected fresh balance 2500, got %+v", balance)
	}
}

func TestServiceCreateIsIdempotent(t *testing.T) {
	base := ledger.NewInMemory()
	spy := &countingLedger{Client: base}
	svc := NewService(NewMemoryRepository(), spy, Options{StartingBalance: startingBalance})
	ctx := context.Background()

	first, _, err := svc.Create(ctx, "alice")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, created, err := svc.Create(ctx, "alice")
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if created {
		t.Fatalf("expected existing wallet to be returned")
	}
	if first.ID != second.ID || first.LedgerAddress != second.LedgerAddress {
		t.Fatalf("expected same wallet, got %s and %s", first.ID, second.ID)
	}
	if got := spy.creates.Load(); got != 1 {
		t.Fatalf("expected one ledger account, got %d", got)
	}
}

func TestServiceCreateConcurrentSameOwner(t *testing.T) {
	spy := &countingLedger{Client: ledger.NewInMemory()}
	svc := NewService(NewMemoryRepository(), spy, Options{StartingBalance: startingBalance})
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w, _, err := svc.Create(ctx, "bob")
			if err != nil {
				t.Errorf("create %d: %v", i, err)
				return
			}
			ids[i] = w.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("expected a single wallet, got %v", ids)
		}
	}
	if got := spy.creates.Load(); got != 1 {
		t.Fatalf("expected one ledger account, got %d", got)
	}
}

func TestServiceCreateLedgerFailure(t *testing.T) {
	svc, led := newTestService(t)
	ledger.SetFailure(led, ledger.ErrUnavailable)

	_, _, err := svc.Create(context.Background(), "carol")
	if !errors.Is(err, ErrLedgerUnavailable) {
		t.Fatalf("expected ledger unavailable, got %v", err)
	}
	if _, err := svc.GetByOwner(context.Background(), "carol"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected no wallet persisted, got %v", err)
	}
}

func TestServiceCreateRecordsOpeningBalance(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	w, _, err := svc.Create(ctx, "dave")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	records, err := svc.Transactions(ctx, w.LedgerAddress)
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one opening record, got %d", len(records))
	}
	if records[0].Kind != KindReceive || records[0].Amount != startingBalance || records[0].Counterparty != "0.0.2" {
		t.Fatalf("unexpected opening record %+v", records[0])
	}
}

func TestServiceSealsPrivateKey(t *testing.T) {
	svc, led := newTestService(t)
	ctx := context.Background()
	w, _, err := svc.Create(ctx, "erin")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	key, err := svc.SigningKey(w)
	if err != nil {
		t.Fatalf("signing key: %v", err)
	}
	if key == w.Keys.PrivateKey {
		t.Fatalf("expected stored key to be sealed")
	}

	other, _, _ := svc.Create(ctx, "frank")
	if _, err := led.SubmitTransfer(ctx, ledger.Transfer{
		From:    w.LedgerAddress,
		FromKey: key,
		Legs:    []ledger.Leg{{To: other.LedgerAddress, Amount: 1}},
	}); err != nil {
		t.Fatalf("unsealed key should sign: %v", err)
	}
}

func TestServiceAppendIsAppendOnlyAndClamps(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	w, _, _ := svc.Create(ctx, "gina")

	before, _ := svc.Transactions(ctx, w.LedgerAddress)
	updated, err := svc.Append(ctx, w.ID, -(startingBalance + 1), Transaction{Kind: KindSend, Amount: -(startingBalance + 1)})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if updated.CachedBalance != 0 {
		t.Fatalf("expected balance clamped at zero, got %d", updated.CachedBalance)
	}

	after, _ := svc.Transactions(ctx, w.LedgerAddress)
	if len(after) != len(before)+1 {
		t.Fatalf("expected one more record, got %d -> %d", len(before), len(after))
	}
	// newest first: earlier records keep their content at the tail
	for i := range before {
		if after[i+1] != before[i] {
			t.Fatalf("record %d changed: %+v -> %+v", i, before[i], after[i+1])
		}
	}
	if after[0].Kind != KindSend || after[0].Status != StatusCompleted {
		t.Fatalf("unexpected newest record %+v", after[0])
	}
}

func TestServiceGetMissing(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.GetByOwner(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.GetByAddress(context.Background(), "0.0.9999"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestServiceEnsureAdmin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	admin, err := svc.EnsureAdmin(ctx, "0.0.4515756")
	if err != nil {
		t.Fatalf("ensure admin: %v", err)
	}
	if !admin.IsAdmin() || admin.Keys.PrivateKey != "" {
		t.Fatalf("unexpected admin wallet %+v", admin)
	}
	again, err := svc.EnsureAdmin(ctx, "0.0.4515756")
	if err != nil || again.ID != admin.ID {
		t.Fatalf("expected same admin wallet, got %v %v", again.ID, err)
	}
	if _, _, err := svc.Create(ctx, AdminOwner); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected reserved owner rejection, got %v", err)
	}
}

func TestServiceEnsureAdminRejectsMovedFeeAccount(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.EnsureAdmin(ctx, "0.0.4515756"); err != nil {
		t.Fatalf("ensure admin: %v", err)
	}
	if _, err := svc.EnsureAdmin(ctx, "0.0.4515757"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for a different fee account, got %v", err)
	}
}

func TestServiceLinkNFT(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	w, _, _ := svc.Create(ctx, "hank")

	if _, err := svc.LinkNFT(ctx, "hank", "not-a-token", nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	updated, err := svc.LinkNFT(ctx, "hank", "0.0.7001", []int64{1, 2})
	if err != nil {
		t.Fatalf("link nft: %v", err)
	}
	if updated.NFTTokenID == nil || *updated.NFTTokenID != "0.0.7001" {
		t.Fatalf("expected token linked, got %v", updated.NFTTokenID)
	}
	if updated.CachedBalance != w.CachedBalance {
		t.Fatalf("linking must not change balance")
	}

	holdings, err := svc.NFTs(ctx, "hank")
	if err != nil {
		t.Fatalf("nfts: %v", err)
	}
	if holdings.TokenID != "0.0.7001" || len(holdings.Mints) != 2 {
		t.Fatalf("unexpected holdings %+v", holdings)
	}
	if holdings.Mints[0].ExternalReference != "0.0.7001/1" || holdings.Mints[0].Amount != 0 {
		t.Fatalf("unexpected mint record %+v", holdings.Mints[0])
	}
}

func TestServiceRecentTransactionsMergesWallets(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	a, _, err := svc.Create(ctx, "mia")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	b, _, err := svc.Create(ctx, "noah")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Append(ctx, a.ID, 5, Transaction{Kind: KindReceive, Amount: 5, Counterparty: b.LedgerAddress}); err != nil {
		t.Fatalf("append: %v", err)
	}

	entries, err := svc.RecentTransactions(ctx, 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].WalletID != a.ID || entries[0].Amount != 5 {
		t.Fatalf("expected newest record first, got %+v", entries[0])
	}
	if entries[1].Owner != "noah" || entries[2].Owner != "mia" {
		t.Fatalf("unexpected order %s, %s", entries[1].Owner, entries[2].Owner)
	}

	limited, err := svc.RecentTransactions(ctx, 2)
	if err != nil || len(limited) != 2 {
		t.Fatalf("expected 2 entries, got %d (%v)", len(limited), err)
	}
}
