// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hbarwallet"

var (
	ledgerCalls = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ledger_call_duration_seconds",
		Help:      "Latency of ledger client calls including receipt polling.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"op", "outcome"})

	transfers = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transfers_total",
		Help:      "Transfers and withdrawals by outcome.",
	}, []string{"kind", "outcome"})

	feesCollected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "platform_fees_tinybars_total",
		Help:      "Platform fees routed to the admin wallet.",
	})

	walletsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "wallets_created_total",
		Help:      "Wallets provisioned on the ledger.",
	})

	reconciliations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconciliations_total",
		Help:      "Balance reconciliations by outcome (synced, unchanged, fallback).",
	}, []string{"outcome"})

	reconcileBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "reconcile_queue_depth",
		Help:      "Wallets waiting for a background reconciliation.",
	})
)

// ObserveLedgerCall records the duration and outcome of a ledger call. It is
// meant to be deferred with a pointer to the named error result.
func ObserveLedgerCall(op string, start time.Time, errp *error) {
	outcome := "ok"
	if errp != nil && *errp != nil {
		outcome = "error"
	}
	ledgerCalls.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
}

// TransferOutcome counts a finished transfer. kind is "transfer" or "withdraw";
// outcome is "ok" or an error kind name.
func TransferOutcome(kind, outcome string) {
	transfers.WithLabelValues(kind, outcome).Inc()
}

// FeeCollected adds a platform fee to the running total.
func FeeCollected(tinybars int64) {
	if tinybars > 0 {
		feesCollected.Add(float64(tinybars))
	}
}

// WalletCreated counts a newly provisioned wallet.
func WalletCreated() {
	walletsCreated.Inc()
}

// Reconciled counts a reconciliation outcome.
func Reconciled(outcome string) {
	reconciliations.WithLabelValues(outcome).Inc()
}

// ReconcileBacklog sets the current queue depth.
func ReconcileBacklog(n int64) {
	reconcileBacklog.Set(float64(n))
}

