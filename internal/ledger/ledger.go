package ledger

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnavailable occurs when the remote ledger cannot be reached or refuses
	// the request for reasons unrelated to its content. Callers may retry.
	ErrUnavailable = errors.New("ledger unavailable")

	// ErrTimeout indicates a submitted transaction was not confirmed within the
	// receipt polling budget. The transaction may still reach consensus.
	ErrTimeout = errors.New("ledger confirmation timed out")

	// ErrRejected indicates the ledger explicitly refused the transaction.
	ErrRejected = errors.New("ledger rejected transaction")

	// ErrInvalidAddress is returned for account identifiers the ledger cannot parse.
	ErrInvalidAddress = errors.New("invalid ledger address")
)

const (
	// StatusSuccess is the receipt status of a confirmed transaction.
	StatusSuccess = "SUCCESS"
)

// RejectedError carries the ledger status code of a refused transaction.
type RejectedError struct {
	Status        string
	TransactionID string
}

func (e *RejectedError) Error() string {
	if e.TransactionID == "" {
		return fmt.Sprintf("ledger rejected transaction: %s", e.Status)
	}
	return fmt.Sprintf("ledger rejected transaction %s: %s", e.TransactionID, e.Status)
}

// Is lets errors.Is(err, ErrRejected) match any RejectedError.
func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}

// Account is a freshly created ledger account and its key pair.
type Account struct {
	Address    string
	PublicKey  string
	PrivateKey string
	// TransactionID is the ledger transaction that created the account.
	TransactionID string
}

// Leg credits Amount tinybars to To.
type Leg struct {
	To     string
	Amount int64
}

// Transfer describes a single ledger transaction debiting From by the sum of
// all legs. FromKey signs the debit.
type Transfer struct {
	From    string
	FromKey string
	Legs    []Leg
}

// Total returns the amount debited from the source account.
func (t Transfer) Total() int64 {
	var total int64
	for _, leg := range t.Legs {
		total += leg.Amount
	}
	return total
}

// Receipt is the confirmed outcome of a submitted transfer.
type Receipt struct {
	Status        string
	TransactionID string
}

// Client is the contract implemented by ledger backends (e.g. Hedera).
type Client interface {
	CreateAccount(ctx context.Context, initialBalance int64) (Account, error)
	SubmitTransfer(ctx context.Context, transfer Transfer) (Receipt, error)
	QueryBalance(ctx context.Context, address string) (int64, error)
	ValidateAddress(address string) error
}
