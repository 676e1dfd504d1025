package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hbarwallet/hbarwallet/internal/metrics"
	"github.com/hbarwallet/hbarwallet/internal/wallet"
)

const (
	defaultSchedule = "@every 1m"
	sweepBatch      = 100
	sweepTimeout    = 45 * time.Second
)

// Wallets is the subset of wallet.Service the worker needs.
type Wallets interface {
	GetByAddress(ctx context.Context, address string) (wallet.Wallet, error)
	Reconcile(ctx context.Context, w wallet.Wallet) (wallet.Balance, error)
}

// Worker periodically drains the queue and reconciles each wallet.
type Worker struct {
	queue    Queue
	wallets  Wallets
	logger   *slog.Logger
	schedule string
	cron     *cron.Cron
}

// NewWorker builds a worker running on a cron schedule such as "@every 30s".
func NewWorker(queue Queue, wallets Wallets, schedule string, logger *slog.Logger) *Worker {
	if schedule == "" {
		schedule = defaultSchedule
	}
	return &Worker{queue: queue, wallets: wallets, logger: logger, schedule: schedule}
}

// Start schedules the sweep. Overlapping runs are skipped.
func (w *Worker) Start() error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(w.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		if _, err := w.Sweep(ctx); err != nil {
			w.logger.Error("reconcile sweep failed", slog.Any("error", err))
		}
	}); err != nil {
		return fmt.Errorf("schedule reconcile %q: %w", w.schedule, err)
	}
	w.cron = c
	c.Start()
	w.logger.Info("reconcile worker started", slog.String("schedule", w.schedule))
	return nil
}

// Stop waits for a running sweep to finish or ctx to end.
func (w *Worker) Stop(ctx context.Context) {
	if w.cron == nil {
		return
	}
	select {
	case <-w.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// Sweep reconciles one batch of queued wallets and returns how many were
// brought in line with the ledger. Wallets whose ledger query failed are
// queued again.
func (w *Worker) Sweep(ctx context.Context) (int, error) {
	addresses, err := w.queue.Drain(ctx, sweepBatch)
	if err != nil {
		return 0, err
	}

	synced := 0
	var retry []string
	for _, address := range addresses {
		wal, err := w.wallets.GetByAddress(ctx, address)
		if errors.Is(err, wallet.ErrNotFound) {
			w.logger.Warn("reconcile: unknown address dropped", slog.String("ledger_address", address))
			continue
		}
		if err != nil {
			retry = append(retry, address)
			continue
		}

		bal, err := w.wallets.Reconcile(ctx, wal)
		if err != nil || bal.Cached {
			retry = append(retry, address)
			continue
		}
		synced++
	}

	if len(retry) > 0 {
		if err := w.queue.Enqueue(ctx, retry...); err != nil {
			return synced, err
		}
	}
	if n, err := w.queue.Len(ctx); err == nil {
		metrics.ReconcileBacklog(n)
	}
	if len(addresses) > 0 {
		w.logger.Info("reconcile sweep",
			slog.Int("drained", len(addresses)),
			slog.Int("synced", synced),
			slog.Int("requeued", len(retry)),
		)
	}
	return synced, nil
}
