package wallet

import (
	"context"
	"sync"
	"time"
)

type memoryRepository struct {
	mu        sync.RWMutex
	storage   map[string]Wallet
	byOwner   map[string]string
	byAddress map[string]string
	records   map[string][]Transaction
	// order remembers which wallet each appended record went to.
	order []string
}

// NewMemoryRepository constructs an in-memory repository for tests and local development.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		storage:   make(map[string]Wallet),
		byOwner:   make(map[string]string),
		byAddress: make(map[string]string),
		records:   make(map[string][]Transaction),
	}
}

func (r *memoryRepository) Create(_ context.Context, wallet Wallet, records ...Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storage[wallet.ID]; exists {
		return errConflict
	}
	if _, exists := r.byOwner[wallet.Owner]; exists {
		return errConflict
	}
	if _, exists := r.byAddress[wallet.LedgerAddress]; exists {
		return errConflict
	}
	r.storage[wallet.ID] = wallet
	r.byOwner[wallet.Owner] = wallet.ID
	r.byAddress[wallet.LedgerAddress] = wallet.ID
	r.appendRecords(wallet.ID, records)
	return nil
}

func (r *memoryRepository) GetByOwner(_ context.Context, owner string) (Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byOwner[owner]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	return r.storage[id], nil
}

func (r *memoryRepository) GetByAddress(_ context.Context, address string) (Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byAddress[address]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	return r.storage[id], nil
}

func (r *memoryRepository) Append(_ context.Context, walletID string, delta int64, records ...Transaction) (Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wallet, ok := r.storage[walletID]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	wallet.CachedBalance += delta
	if wallet.CachedBalance < 0 {
		wallet.CachedBalance = 0
	}
	wallet.UpdatedAt = time.Now().UTC()
	r.storage[walletID] = wallet
	r.appendRecords(walletID, records)
	return wallet, nil
}

func (r *memoryRepository) SetBalance(_ context.Context, walletID string, balance int64) (Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wallet, ok := r.storage[walletID]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	if balance < 0 {
		balance = 0
	}
	wallet.CachedBalance = balance
	wallet.UpdatedAt = time.Now().UTC()
	r.storage[walletID] = wallet
	return wallet, nil
}

func (r *memoryRepository) SetNFT(_ context.Context, walletID, tokenID string, records ...Transaction) (Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wallet, ok := r.storage[walletID]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	token := tokenID
	wallet.NFTTokenID = &token
	wallet.UpdatedAt = time.Now().UTC()
	r.storage[walletID] = wallet
	r.appendRecords(walletID, records)
	return wallet, nil
}

func (r *memoryRepository) Transactions(_ context.Context, walletID string) ([]Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.storage[walletID]; !ok {
		return nil, ErrNotFound
	}
	out := make([]Transaction, len(r.records[walletID]))
	copy(out, r.records[walletID])
	return out, nil
}

func (r *memoryRepository) appendRecords(walletID string, records []Transaction) {
	r.records[walletID] = append(r.records[walletID], normalize(records)...)
	for range records {
		r.order = append(r.order, walletID)
	}
}

func (r *memoryRepository) RecentTransactions(_ context.Context, limit int) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]int, len(r.records))
	for _, id := range r.order {
		seen[id]++
	}
	var out []Entry
	for i := len(r.order) - 1; i >= 0 && len(out) < limit; i-- {
		id := r.order[i]
		seen[id]--
		w := r.storage[id]
		out = append(out, Entry{
			Transaction:   r.records[id][seen[id]],
			WalletID:      id,
			Owner:         w.Owner,
			LedgerAddress: w.LedgerAddress,
		})
	}
	return out, nil
}

func normalize(records []Transaction) []Transaction {
	out := make([]Transaction, len(records))
	for i, t := range records {
		if t.Status == "" {
			t.Status = StatusCompleted
		}
		if t.Timestamp.IsZero() {
			t.Timestamp = time.Now().UTC()
		}
		out[i] = t
	}
	return out
}
