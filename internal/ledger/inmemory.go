package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type inMemoryLedger struct {
	mu       sync.RWMutex
	balances map[string]int64
	keys     map[string]string
	nextNum  int64
	failure  error
}

// NewInMemory creates a concurrency-safe in-memory ledger useful for unit tests
// and local development.
func NewInMemory() Client {
	return &inMemoryLedger{
		balances: make(map[string]int64),
		keys:     make(map[string]string),
		nextNum:  1000,
	}
}

func (l *inMemoryLedger) CreateAccount(_ context.Context, initialBalance int64) (Account, error) {
	if initialBalance < 0 {
		return Account{}, &RejectedError{Status: "INVALID_INITIAL_BALANCE"}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failure != nil {
		return Account{}, l.failure
	}

	l.nextNum++
	address := fmt.Sprintf("0.0.%d", l.nextNum)
	private := "mem-priv-" + uuid.NewString()
	l.balances[address] = initialBalance
	l.keys[address] = private

	return Account{
		Address:       address,
		PublicKey:     "mem-pub-" + strings.TrimPrefix(private, "mem-priv-"),
		PrivateKey:    private,
		TransactionID: transactionID(address),
	}, nil
}

func (l *inMemoryLedger) SubmitTransfer(_ context.Context, transfer Transfer) (Receipt, error) {
	total := transfer.Total()
	if total <= 0 || len(transfer.Legs) == 0 {
		return Receipt{}, &RejectedError{Status: "INVALID_ACCOUNT_AMOUNTS"}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failure != nil {
		return Receipt{}, l.failure
	}

	txID := transactionID(transfer.From)

	fromBalance, ok := l.balances[transfer.From]
	if !ok {
		return Receipt{}, &RejectedError{Status: "INVALID_ACCOUNT_ID", TransactionID: txID}
	}
	if key, ok := l.keys[transfer.From]; ok && key != transfer.FromKey {
		return Receipt{}, &RejectedError{Status: "INVALID_SIGNATURE", TransactionID: txID}
	}
	for _, leg := range transfer.Legs {
		if leg.Amount < 0 {
			return Receipt{}, &RejectedError{Status: "INVALID_ACCOUNT_AMOUNTS", TransactionID: txID}
		}
		if _, ok := l.balances[leg.To]; !ok && !IsEVMAddress(leg.To) {
			return Receipt{}, &RejectedError{Status: "INVALID_ACCOUNT_ID", TransactionID: txID}
		}
	}
	if fromBalance < total {
		return Receipt{}, &RejectedError{Status: "INSUFFICIENT_ACCOUNT_BALANCE", TransactionID: txID}
	}

	// all legs settle together
	l.balances[transfer.From] = fromBalance - total
	for _, leg := range transfer.Legs {
		l.balances[leg.To] += leg.Amount
	}

	return Receipt{Status: StatusSuccess, TransactionID: txID}, nil
}

func (l *inMemoryLedger) QueryBalance(_ context.Context, address string) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.failure != nil {
		return 0, l.failure
	}
	balance, exists := l.balances[address]
	if !exists {
		return 0, &RejectedError{Status: "INVALID_ACCOUNT_ID"}
	}
	return balance, nil
}

func (l *inMemoryLedger) ValidateAddress(address string) error {
	return validateAddress(address)
}

func transactionID(payer string) string {
	now := time.Now().UTC()
	return fmt.Sprintf("%s@%d.%09d", payer, now.Unix(), now.Nanosecond())
}
