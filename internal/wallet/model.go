package wallet

import "time"

// AdminOwner is the reserved owner of the wallet that collects platform fees.
const AdminOwner = "admin"

// Kind classifies a transaction record.
type Kind string

const (
	KindSend           Kind = "send"
	KindReceive        Kind = "receive"
	KindMint           Kind = "mint"
	KindBurn           Kind = "burn"
	KindPlatformFee    Kind = "platform_fee"
	KindTransactionFee Kind = "transaction_fee"
)

// Status is the settlement state of a transaction record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// KeyMaterial is the wallet's ledger key pair. PrivateKey holds the sealed
// form; use Service.SigningKey to recover the plaintext.
type KeyMaterial struct {
	PublicKey  string
	PrivateKey string
}

// Wallet is a custodial account mirrored from the ledger.
type Wallet struct {
	ID            string
	Owner         string
	LedgerAddress string
	Keys          KeyMaterial
	// CachedBalance is the last known balance in tinybars. It is never negative.
	CachedBalance int64
	NFTTokenID    *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsAdmin reports whether w is the platform fee wallet.
func (w Wallet) IsAdmin() bool {
	return w.Owner == AdminOwner
}

// Transaction is one entry of a wallet's append-only log. Amount is signed:
// debits are negative.
type Transaction struct {
	Kind              Kind
	Amount            int64
	Counterparty      string
	Timestamp         time.Time
	Status            Status
	ExternalReference string
}

// Entry is a transaction together with the wallet it belongs to.
type Entry struct {
	Transaction
	WalletID      string
	Owner         string
	LedgerAddress string
}

// Balance is the result of a reconciliation.
type Balance struct {
	Address string
	Amount  int64
	// Cached is true when the ledger could not be reached and Amount is the
	// stored balance.
	Cached bool
	AsOf   time.Time
}

// NFTHoldings lists the token linked to a wallet and its mint records.
type NFTHoldings struct {
	TokenID string
	Mints   []Transaction
}
