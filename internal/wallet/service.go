package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/hbarwallet/hbarwallet/internal/ledger"
	"github.com/hbarwallet/hbarwallet/internal/lock"
	"github.com/hbarwallet/hbarwallet/internal/logging"
	"github.com/hbarwallet/hbarwallet/internal/metrics"
)

// Options configures a Service. Zero values fall back to sensible defaults.
type Options struct {
	// StartingBalance funds every new ledger account, in tinybars.
	StartingBalance int64
	// OperatorAddress is recorded as the counterparty of the opening balance.
	OperatorAddress string
	Sealer          *KeySealer
	Locker          lock.Locker
	Logger          *slog.Logger
}

// Service exposes wallet operations backed by the ledger.
type Service struct {
	repo   Repository
	ledger ledger.Client
	opts   Options
	now    func() time.Time
}

// NewService builds a wallet service instance.
func NewService(repo Repository, led ledger.Client, opts Options) *Service {
	if opts.Locker == nil {
		opts.Locker = lock.NewLocal()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Service{repo: repo, ledger: led, opts: opts, now: func() time.Time { return time.Now().UTC() }}
}

// Locker returns the lock shared by wallet mutations.
func (s *Service) Locker() lock.Locker {
	return s.opts.Locker
}

// Create returns the owner's wallet, provisioning a ledger account the first
// time. created reports whether a new wallet was made.
func (s *Service) Create(ctx context.Context, owner string) (w Wallet, created bool, err error) {
	const op = "wallet.Create"
	if owner == "" {
		return Wallet{}, false, Validationf(op, "owner is required")
	}
	if owner == AdminOwner {
		return Wallet{}, false, Validationf(op, "owner %q is reserved", owner)
	}

	release, err := s.opts.Locker.Acquire(ctx, "create:"+owner)
	if err != nil {
		return Wallet{}, false, E(ErrPersistence, op, err)
	}
	defer release()

	existing, err := s.repo.GetByOwner(ctx, owner)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Wallet{}, false, E(ErrPersistence, op, err)
	}

	acct, err := s.ledger.CreateAccount(ctx, s.opts.StartingBalance)
	if err != nil {
		if errors.Is(err, ledger.ErrTimeout) {
			return Wallet{}, false, E(ErrTimeout, op, err)
		}
		return Wallet{}, false, E(ErrLedgerUnavailable, op, err)
	}

	sealed := acct.PrivateKey
	if s.opts.Sealer != nil {
		if sealed, err = s.opts.Sealer.Seal(acct.PrivateKey); err != nil {
			s.logOrphan(owner, acct.Address, err)
			return Wallet{}, false, E(ErrPersistence, op, err)
		}
	}

	now := s.now()
	w = Wallet{
		ID:            uuid.NewString(),
		Owner:         owner,
		LedgerAddress: acct.Address,
		Keys:          KeyMaterial{PublicKey: acct.PublicKey, PrivateKey: sealed},
		CachedBalance: s.opts.StartingBalance,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var records []Transaction
	if s.opts.StartingBalance > 0 {
		records = append(records, Transaction{
			Kind:              KindReceive,
			Amount:            s.opts.StartingBalance,
			Counterparty:      s.opts.OperatorAddress,
			Timestamp:         now,
			Status:            StatusCompleted,
			ExternalReference: acct.TransactionID,
		})
	}

	if err := s.repo.Create(ctx, w, records...); err != nil {
		s.logOrphan(owner, acct.Address, err)
		if errors.Is(err, errConflict) {
			if existing, getErr := s.repo.GetByOwner(ctx, owner); getErr == nil {
				return existing, false, nil
			}
		}
		return Wallet{}, false, E(ErrPersistence, op, err)
	}

	metrics.WalletCreated()
	s.opts.Logger.Info("wallet created",
		slog.String("wallet_id", w.ID),
		slog.String("owner", owner),
		slog.String("ledger_address", w.LedgerAddress),
	)
	return w, true, nil
}

func (s *Service) logOrphan(owner, address string, err error) {
	s.opts.Logger.Error("ledger account orphaned: wallet not persisted",
		slog.String("owner", owner),
		slog.String("ledger_address", address),
		slog.Any("error", err),
	)
}

// EnsureAdmin registers the platform fee wallet for an existing ledger
// address. The admin wallet holds no key material.
func (s *Service) EnsureAdmin(ctx context.Context, address string) (Wallet, error) {
	const op = "wallet.EnsureAdmin"
	existing, err := s.repo.GetByOwner(ctx, AdminOwner)
	if err == nil {
		if existing.LedgerAddress != address {
			return Wallet{}, Validationf(op, "admin wallet holds %s but the fee account is configured as %s",
				existing.LedgerAddress, address)
		}
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Wallet{}, E(ErrPersistence, op, err)
	}
	if err := s.ledger.ValidateAddress(address); err != nil {
		return Wallet{}, E(ErrValidation, op, err)
	}

	now := s.now()
	w := Wallet{
		ID:            uuid.NewString(),
		Owner:         AdminOwner,
		LedgerAddress: address,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, w); err != nil {
		if errors.Is(err, errConflict) {
			return s.GetByOwner(ctx, AdminOwner)
		}
		return Wallet{}, E(ErrPersistence, op, err)
	}
	s.opts.Logger.Info("admin wallet registered", slog.String("ledger_address", address))
	return w, nil
}

// GetByOwner returns the wallet owned by owner.
func (s *Service) GetByOwner(ctx context.Context, owner string) (Wallet, error) {
	w, err := s.repo.GetByOwner(ctx, owner)
	if err != nil {
		return Wallet{}, repoError("wallet.GetByOwner", err)
	}
	return w, nil
}

// GetByAddress returns the wallet holding the ledger address.
func (s *Service) GetByAddress(ctx context.Context, address string) (Wallet, error) {
	w, err := s.repo.GetByAddress(ctx, address)
	if err != nil {
		return Wallet{}, repoError("wallet.GetByAddress", err)
	}
	return w, nil
}

// Append atomically applies delta and appends records to the wallet.
func (s *Service) Append(ctx context.Context, walletID string, delta int64, records ...Transaction) (Wallet, error) {
	w, err := s.repo.Append(ctx, walletID, delta, records...)
	if err != nil {
		return Wallet{}, repoError("wallet.Append", err)
	}
	return w, nil
}

// Transactions returns the wallet log for address, newest first.
func (s *Service) Transactions(ctx context.Context, address string) ([]Transaction, error) {
	w, err := s.GetByAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	records, err := s.repo.Transactions(ctx, w.ID)
	if err != nil {
		return nil, repoError("wallet.Transactions", err)
	}
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

const (
	defaultRecentLimit = 100
	maxRecentLimit     = 500
)

// RecentTransactions lists records across every wallet, newest first. limit
// is clamped to (0, 500] and defaults to 100.
func (s *Service) RecentTransactions(ctx context.Context, limit int) ([]Entry, error) {
	switch {
	case limit <= 0:
		limit = defaultRecentLimit
	case limit > maxRecentLimit:
		limit = maxRecentLimit
	}
	entries, err := s.repo.RecentTransactions(ctx, limit)
	if err != nil {
		return nil, repoError("wallet.RecentTransactions", err)
	}
	return entries, nil
}

// SigningKey recovers the plaintext private key of w.
func (s *Service) SigningKey(w Wallet) (string, error) {
	if w.Keys.PrivateKey == "" {
		return "", Validationf("wallet.SigningKey", "wallet %s holds no signing key", w.LedgerAddress)
	}
	if s.opts.Sealer == nil {
		return w.Keys.PrivateKey, nil
	}
	key, err := s.opts.Sealer.Open(w.Keys.PrivateKey)
	if err != nil {
		return "", E(ErrPersistence, "wallet.SigningKey", err)
	}
	return key, nil
}

// LinkNFT associates tokenID with the owner's wallet and records one mint
// per serial.
func (s *Service) LinkNFT(ctx context.Context, owner, tokenID string, serials []int64) (Wallet, error) {
	const op = "wallet.LinkNFT"
	if !ledger.IsNativeAddress(tokenID) {
		return Wallet{}, Validationf(op, "token id %q must have the shard.realm.num form", tokenID)
	}
	w, err := s.GetByOwner(ctx, owner)
	if err != nil {
		return Wallet{}, err
	}

	now := s.now()
	mint := func(ref string) Transaction {
		return Transaction{
			Kind:              KindMint,
			Counterparty:      w.LedgerAddress,
			Timestamp:         now,
			Status:            StatusCompleted,
			ExternalReference: ref,
		}
	}
	var records []Transaction
	if len(serials) == 0 {
		records = append(records, mint(tokenID))
	}
	for _, serial := range serials {
		if serial <= 0 {
			return Wallet{}, Validationf(op, "serial %d must be positive", serial)
		}
		records = append(records, mint(tokenID+"/"+strconv.FormatInt(serial, 10)))
	}

	updated, err := s.repo.SetNFT(ctx, w.ID, tokenID, records...)
	if err != nil {
		return Wallet{}, repoError(op, err)
	}
	s.opts.Logger.Info("nft linked",
		slog.String("wallet_id", w.ID),
		slog.String("token_id", tokenID),
		slog.Int("serials", len(serials)),
	)
	return updated, nil
}

// NFTs returns the token linked to the owner's wallet and its mint records.
func (s *Service) NFTs(ctx context.Context, owner string) (NFTHoldings, error) {
	w, err := s.GetByOwner(ctx, owner)
	if err != nil {
		return NFTHoldings{}, err
	}
	records, err := s.repo.Transactions(ctx, w.ID)
	if err != nil {
		return NFTHoldings{}, repoError("wallet.NFTs", err)
	}
	var out NFTHoldings
	if w.NFTTokenID != nil {
		out.TokenID = *w.NFTTokenID
	}
	for _, t := range records {
		if t.Kind == KindMint {
			out.Mints = append(out.Mints, t)
		}
	}
	return out, nil
}

func repoError(op string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return E(ErrNotFound, op, nil)
	}
	var werr *Error
	if errors.As(err, &werr) {
		return err
	}
	return E(ErrPersistence, op, fmt.Errorf("repository: %w", err))
}
