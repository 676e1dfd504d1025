package wallet

import (
	"context"
	"log/slog"

	"github.com/hbarwallet/hbarwallet/internal/metrics"
)

// Reconcile returns the ledger's balance for w and stores it as the cached
// balance when it differs. When the ledger cannot be queried the cached
// balance is returned with Cached set; this is not an error.
//
// The ledger read and the cache write happen under the wallet lock held by
// transfers, so a reconcile never lands between a ledger submit and its
// bookkeeping.
func (s *Service) Reconcile(ctx context.Context, w Wallet) (Balance, error) {
	release, err := s.opts.Locker.Acquire(ctx, "wallet:"+w.ID)
	if err != nil {
		metrics.Reconciled("fallback")
		s.opts.Logger.Warn("wallet busy, serving cached balance",
			slog.String("wallet_id", w.ID),
			slog.Any("error", err),
		)
		return s.cached(w), nil
	}
	defer release()

	// a transfer may have booked while we waited
	fresh, err := s.repo.GetByAddress(ctx, w.LedgerAddress)
	if err != nil {
		return Balance{}, repoError("wallet.Reconcile", err)
	}
	w = fresh

	amount, err := s.ledger.QueryBalance(ctx, w.LedgerAddress)
	if err != nil {
		metrics.Reconciled("fallback")
		s.opts.Logger.Warn("balance query failed, serving cached balance",
			slog.String("wallet_id", w.ID),
			slog.String("ledger_address", w.LedgerAddress),
			slog.Any("error", err),
		)
		return s.cached(w), nil
	}

	if amount == w.CachedBalance {
		metrics.Reconciled("unchanged")
		return Balance{Address: w.LedgerAddress, Amount: amount, AsOf: s.now()}, nil
	}

	if _, err := s.repo.SetBalance(ctx, w.ID, amount); err != nil {
		s.opts.Logger.Error("persist reconciled balance",
			slog.String("wallet_id", w.ID),
			slog.Int64("ledger_balance", amount),
			slog.Any("error", err),
		)
	} else {
		s.opts.Logger.Info("cached balance corrected",
			slog.String("wallet_id", w.ID),
			slog.Int64("cached", w.CachedBalance),
			slog.Int64("ledger", amount),
		)
	}
	metrics.Reconciled("synced")
	return Balance{Address: w.LedgerAddress, Amount: amount, AsOf: s.now()}, nil
}

func (s *Service) cached(w Wallet) Balance {
	return Balance{Address: w.LedgerAddress, Amount: w.CachedBalance, Cached: true, AsOf: w.UpdatedAt}
}

// Balance reconciles the wallet holding address.
func (s *Service) Balance(ctx context.Context, address string) (Balance, error) {
	w, err := s.GetByAddress(ctx, address)
	if err != nil {
		return Balance{}, err
	}
	return s.Reconcile(ctx, w)
}
