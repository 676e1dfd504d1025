package server

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/hbarwallet/hbarwallet/internal/auth"
	"github.com/hbarwallet/hbarwallet/internal/config"
	"github.com/hbarwallet/hbarwallet/internal/identity"
	"github.com/hbarwallet/hbarwallet/internal/ledger"
	"github.com/hbarwallet/hbarwallet/internal/lock"
	"github.com/hbarwallet/hbarwallet/internal/notification"
	"github.com/hbarwallet/hbarwallet/internal/payments"
	"github.com/hbarwallet/hbarwallet/internal/reconcile"
	"github.com/hbarwallet/hbarwallet/internal/wallet"
)

// components holds the services shared by handlers and background workers.
type components struct {
	ledger       ledger.Client
	identityRepo identity.Repository
	identity     *identity.Service
	auth         *auth.Service
	wallets      *wallet.Service
	payments     *payments.Service
	inbox        notification.Inbox
	worker       *reconcile.Worker
	closers      []func() error
}

func (c *components) close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	return errors.Join(errs...)
}

// build wires the domain services. Postgres and Redis are optional in
// development; the in-memory stand-ins are used when they are absent.
func build(ctx context.Context, cfg config.Config, db *pgxpool.Pool, cache *redis.Client, logger *slog.Logger) (_ *components, err error) {
	c := &components{}
	defer func() {
		if err != nil {
			_ = c.close()
		}
	}()

	operator, err := c.buildLedger(cfg, logger)
	if err != nil {
		return nil, err
	}

	sealer, err := buildSealer(cfg, logger)
	if err != nil {
		return nil, err
	}

	startingBalance, err := ledger.ToTinybars(cfg.StartingBalance)
	if err != nil {
		return nil, fmt.Errorf("WALLET_STARTING_BALANCE: %w", err)
	}
	fee, err := ledger.ToTinybars(cfg.PlatformFee)
	if err != nil {
		return nil, fmt.Errorf("PLATFORM_FEE: %w", err)
	}

	var (
		walletRepo wallet.Repository
		locker     lock.Locker
		queue      reconcile.Queue
	)
	if db != nil {
		walletRepo = wallet.NewPostgresRepository(db)
		c.identityRepo = identity.NewPostgresRepository(db)
	} else {
		walletRepo = wallet.NewMemoryRepository()
		c.identityRepo = identity.NewMemoryRepository()
	}
	if cache != nil {
		locker = lock.NewRedis(cache, 0, logger)
		queue = reconcile.NewRedisQueue(cache)
	} else {
		locker = lock.NewLocal()
		queue = reconcile.NewMemoryQueue()
	}

	c.wallets = wallet.NewService(walletRepo, c.ledger, wallet.Options{
		StartingBalance: startingBalance,
		OperatorAddress: operator,
		Sealer:          sealer,
		Locker:          locker,
		Logger:          logger,
	})
	if _, err := c.wallets.EnsureAdmin(ctx, cfg.FeeAccountID); err != nil {
		return nil, fmt.Errorf("register fee account: %w", err)
	}

	notifier, err := c.buildNotifier(cfg, cache, logger)
	if err != nil {
		return nil, err
	}

	c.payments = payments.NewService(c.ledger, c.wallets, notifier, queue, payments.Config{
		PlatformFee: fee,
		FeeAccount:  cfg.FeeAccountID,
		ExplorerURL: cfg.ExplorerURL,
	}, logger)

	c.identity = identity.NewService(c.identityRepo)
	c.auth = auth.NewService(cfg, c.identityRepo)
	c.worker = reconcile.NewWorker(queue, c.wallets, cfg.ReconcileSchedule, logger)

	return c, nil
}

// buildLedger selects the ledger backend and returns the operator address
// recorded as the source of opening balances.
func (c *components) buildLedger(cfg config.Config, logger *slog.Logger) (string, error) {
	if cfg.LedgerBackend == config.LedgerHedera {
		h, err := ledger.NewHedera(ledger.HederaConfig{
			Network:        cfg.HederaNetwork,
			OperatorID:     cfg.HederaOperatorID,
			OperatorKey:    cfg.HederaOperatorKey,
			ReceiptTimeout: cfg.HederaReceiptTimeout,
		}, logger)
		if err != nil {
			return "", fmt.Errorf("hedera client: %w", err)
		}
		c.ledger = h
		c.closers = append(c.closers, h.Close)
		return h.OperatorID(), nil
	}

	mem := ledger.NewInMemory()
	// The fee account must exist before the first transfer credits it.
	ledger.SeedBalance(mem, cfg.FeeAccountID, "", 0)
	c.ledger = mem
	logger.Warn("using in-memory ledger, balances are lost on restart")
	return cfg.HederaOperatorID, nil
}

func buildSealer(cfg config.Config, logger *slog.Logger) (*wallet.KeySealer, error) {
	var key []byte
	if cfg.KeyEncryptionKey != "" {
		parsed, err := wallet.ParseSealKey(cfg.KeyEncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("KEY_ENCRYPTION_KEY: %w", err)
		}
		key = parsed
	} else {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, err
		}
		logger.Warn("KEY_ENCRYPTION_KEY not set, sealing wallet keys with an ephemeral key")
	}
	return wallet.NewKeySealer(key)
}

func (c *components) buildNotifier(cfg config.Config, cache *redis.Client, logger *slog.Logger) (notification.Notifier, error) {
	multi := notification.Multi{notification.NewLoggerNotifier(logger)}
	if cache != nil {
		c.inbox = notification.NewRedisInbox(cache)
		multi = append(multi, notification.NewRedisNotifier(cache))
	} else {
		c.inbox = notification.NewMemoryInbox()
	}
	multi = append(multi, c.inbox)
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := notification.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, fmt.Errorf("kafka notifier: %w", err)
		}
		c.closers = append(c.closers, kafka.Close)
		multi = append(multi, kafka)
	}
	return multi, nil
}
