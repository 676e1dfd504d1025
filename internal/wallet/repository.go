package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists wallets and their transaction logs. Absent wallets are
// reported as ErrNotFound.
type Repository interface {
	Create(ctx context.Context, wallet Wallet, records ...Transaction) error
	GetByOwner(ctx context.Context, owner string) (Wallet, error)
	GetByAddress(ctx context.Context, address string) (Wallet, error)
	// Append applies delta to the cached balance, clamped at zero, and appends
	// records in one atomic operation.
	Append(ctx context.Context, walletID string, delta int64, records ...Transaction) (Wallet, error)
	SetBalance(ctx context.Context, walletID string, balance int64) (Wallet, error)
	SetNFT(ctx context.Context, walletID, tokenID string, records ...Transaction) (Wallet, error)
	// Transactions returns the log oldest first.
	Transactions(ctx context.Context, walletID string) ([]Transaction, error)
	// RecentTransactions returns up to limit records across all wallets,
	// newest first.
	RecentTransactions(ctx context.Context, limit int) ([]Entry, error)
}

// PostgresRepository stores wallets in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const walletColumns = `id, owner, ledger_address, public_key, private_key_sealed, cached_balance, nft_token_id, created_at, updated_at`

// Create inserts a wallet and its initial records.
func (r *PostgresRepository) Create(ctx context.Context, wallet Wallet, records ...Transaction) error {
	walletID, err := uuid.Parse(wallet.ID)
	if err != nil {
		return err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `INSERT INTO wallets (`+walletColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		walletID, wallet.Owner, wallet.LedgerAddress, wallet.Keys.PublicKey, wallet.Keys.PrivateKey,
		wallet.CachedBalance, wallet.NFTTokenID, wallet.CreatedAt.UTC(), wallet.UpdatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return errConflict
		}
		return err
	}
	if err := insertRecords(ctx, tx, walletID, records); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetByOwner fetches the wallet owned by owner.
func (r *PostgresRepository) GetByOwner(ctx context.Context, owner string) (Wallet, error) {
	row := r.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE owner = $1`, owner)
	return scanWallet(row)
}

// GetByAddress fetches the wallet holding the ledger address.
func (r *PostgresRepository) GetByAddress(ctx context.Context, address string) (Wallet, error) {
	row := r.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE ledger_address = $1`, address)
	return scanWallet(row)
}

// Append locks the wallet row, applies delta and inserts records in one transaction.
func (r *PostgresRepository) Append(ctx context.Context, walletID string, delta int64, records ...Transaction) (Wallet, error) {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return Wallet{}, ErrNotFound
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return Wallet{}, err
	}
	defer tx.Rollback(ctx)

	var current int64
	if err := tx.QueryRow(ctx, `SELECT cached_balance FROM wallets WHERE id = $1 FOR UPDATE`, id).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrNotFound
		}
		return Wallet{}, err
	}

	row := tx.QueryRow(ctx, `UPDATE wallets SET cached_balance = GREATEST(cached_balance + $2, 0), updated_at = $3
        WHERE id = $1 RETURNING `+walletColumns, id, delta, time.Now().UTC())
	wallet, err := scanWallet(row)
	if err != nil {
		return Wallet{}, err
	}

	if err := insertRecords(ctx, tx, id, records); err != nil {
		return Wallet{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Wallet{}, err
	}
	return wallet, nil
}

// SetBalance overwrites the cached balance.
func (r *PostgresRepository) SetBalance(ctx context.Context, walletID string, balance int64) (Wallet, error) {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return Wallet{}, ErrNotFound
	}
	if balance < 0 {
		balance = 0
	}
	row := r.db.QueryRow(ctx, `UPDATE wallets SET cached_balance = $2, updated_at = $3
        WHERE id = $1 RETURNING `+walletColumns, id, balance, time.Now().UTC())
	return scanWallet(row)
}

// SetNFT links tokenID to the wallet and appends records.
func (r *PostgresRepository) SetNFT(ctx context.Context, walletID, tokenID string, records ...Transaction) (Wallet, error) {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return Wallet{}, ErrNotFound
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return Wallet{}, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `UPDATE wallets SET nft_token_id = $2, updated_at = $3
        WHERE id = $1 RETURNING `+walletColumns, id, tokenID, time.Now().UTC())
	wallet, err := scanWallet(row)
	if err != nil {
		return Wallet{}, err
	}
	if err := insertRecords(ctx, tx, id, records); err != nil {
		return Wallet{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Wallet{}, err
	}
	return wallet, nil
}

// Transactions lists the wallet's records in insertion order.
func (r *PostgresRepository) Transactions(ctx context.Context, walletID string) ([]Transaction, error) {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return nil, ErrNotFound
	}
	rows, err := r.db.Query(ctx, `SELECT kind, amount, counterparty, status, external_reference, created_at
        FROM wallet_transactions WHERE wallet_id = $1 ORDER BY id ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		var kind, status string
		if err := rows.Scan(&kind, &t.Amount, &t.Counterparty, &status, &t.ExternalReference, &t.Timestamp); err != nil {
			return nil, err
		}
		t.Kind = Kind(kind)
		t.Status = Status(status)
		t.Timestamp = t.Timestamp.UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

// RecentTransactions merges every wallet's log, newest first.
func (r *PostgresRepository) RecentTransactions(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := r.db.Query(ctx, `SELECT w.id, w.owner, w.ledger_address,
            t.kind, t.amount, t.counterparty, t.status, t.external_reference, t.created_at
        FROM wallet_transactions t JOIN wallets w ON w.id = t.wallet_id
        ORDER BY t.id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e            Entry
			id           uuid.UUID
			kind, status string
		)
		if err := rows.Scan(&id, &e.Owner, &e.LedgerAddress,
			&kind, &e.Amount, &e.Counterparty, &status, &e.ExternalReference, &e.Timestamp); err != nil {
			return nil, err
		}
		e.WalletID = id.String()
		e.Kind = Kind(kind)
		e.Status = Status(status)
		e.Timestamp = e.Timestamp.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func insertRecords(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, records []Transaction) error {
	for _, t := range records {
		status := t.Status
		if status == "" {
			status = StatusCompleted
		}
		ts := t.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		if _, err := tx.Exec(ctx, `INSERT INTO wallet_transactions (wallet_id, kind, amount, counterparty, status, external_reference, created_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			walletID, string(t.Kind), t.Amount, t.Counterparty, string(status), t.ExternalReference, ts.UTC()); err != nil {
			return fmt.Errorf("insert %s record: %w", t.Kind, err)
		}
	}
	return nil
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var w Wallet
	var id uuid.UUID
	if err := row.Scan(&id, &w.Owner, &w.LedgerAddress, &w.Keys.PublicKey, &w.Keys.PrivateKey,
		&w.CachedBalance, &w.NFTTokenID, &w.CreatedAt, &w.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrNotFound
		}
		return Wallet{}, err
	}
	w.ID = id.String()
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	return w, nil
}
