package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	hedera "github.com/hashgraph/hedera-sdk-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hbarwallet/hbarwallet/internal/metrics"
)

const defaultReceiptTimeout = 30 * time.Second

var tracer = otel.Tracer("github.com/hbarwallet/hbarwallet/internal/ledger")

// HederaConfig holds the operator credentials and network used by the Hedera client.
type HederaConfig struct {
	Network        string
	OperatorID     string
	OperatorKey    string
	ReceiptTimeout time.Duration
}

// Hedera implements Client on top of the Hedera SDK. The operator account pays
// transaction fees; transfers are additionally signed by the source wallet key.
type Hedera struct {
	client         *hedera.Client
	operatorID     hedera.AccountID
	receiptTimeout time.Duration
	logger         *slog.Logger
}

// NewHedera builds a Hedera client for the configured network and operator.
func NewHedera(cfg HederaConfig, logger *slog.Logger) (*Hedera, error) {
	if cfg.OperatorID == "" || cfg.OperatorKey == "" {
		return nil, errors.New("hedera operator id and key are required")
	}
	network := cfg.Network
	if network == "" {
		network = "testnet"
	}

	client, err := hedera.ClientForName(network)
	if err != nil {
		return nil, fmt.Errorf("hedera client for %s: %w", network, err)
	}

	operatorID, err := hedera.AccountIDFromString(cfg.OperatorID)
	if err != nil {
		return nil, fmt.Errorf("parse operator id: %w", err)
	}
	operatorKey, err := parsePrivateKey(cfg.OperatorKey)
	if err != nil {
		return nil, fmt.Errorf("parse operator key: %w", err)
	}
	client.SetOperator(operatorID, operatorKey)

	timeout := cfg.ReceiptTimeout
	if timeout <= 0 {
		timeout = defaultReceiptTimeout
	}

	return &Hedera{client: client, operatorID: operatorID, receiptTimeout: timeout, logger: logger}, nil
}

// OperatorID returns the account paying transaction fees.
func (h *Hedera) OperatorID() string {
	return h.operatorID.String()
}

// Close releases the underlying network connections.
func (h *Hedera) Close() error {
	return h.client.Close()
}

// CreateAccount generates an ECDSA key pair and creates a funded account for it.
func (h *Hedera) CreateAccount(ctx context.Context, initialBalance int64) (acct Account, err error) {
	ctx, span := tracer.Start(ctx, "ledger.CreateAccount")
	defer func() { endSpan(span, err) }()
	defer metrics.ObserveLedgerCall("create_account", time.Now(), &err)

	if err := ctx.Err(); err != nil {
		return Account{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	key, err := hedera.PrivateKeyGenerateEcdsa()
	if err != nil {
		return Account{}, fmt.Errorf("generate account key: %w", err)
	}

	resp, err := hedera.NewAccountCreateTransaction().
		SetKey(key.PublicKey()).
		SetInitialBalance(hedera.HbarFromTinybar(initialBalance)).
		Execute(h.client)
	if err != nil {
		return Account{}, classifyExecute(err)
	}

	receipt, err := h.waitReceipt(ctx, resp)
	if err != nil {
		return Account{}, err
	}
	if receipt.AccountID == nil {
		return Account{}, fmt.Errorf("%w: receipt for %s has no account id", ErrUnavailable, resp.TransactionID.String())
	}

	return Account{
		Address:       receipt.AccountID.String(),
		PublicKey:     key.PublicKey().String(),
		PrivateKey:    key.String(),
		TransactionID: resp.TransactionID.String(),
	}, nil
}

// SubmitTransfer signs and executes one transfer transaction covering every leg.
func (h *Hedera) SubmitTransfer(ctx context.Context, transfer Transfer) (rec Receipt, err error) {
	ctx, span := tracer.Start(ctx, "ledger.SubmitTransfer")
	span.SetAttributes(
		attribute.String("ledger.from", transfer.From),
		attribute.Int64("ledger.total_tinybars", transfer.Total()),
	)
	defer func() { endSpan(span, err) }()
	defer metrics.ObserveLedgerCall("submit_transfer", time.Now(), &err)

	if err := ctx.Err(); err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	from, err := accountID(transfer.From)
	if err != nil {
		return Receipt{}, err
	}
	key, err := parsePrivateKey(transfer.FromKey)
	if err != nil {
		return Receipt{}, fmt.Errorf("parse signing key for %s: %w", transfer.From, err)
	}

	tx := hedera.NewTransferTransaction().
		AddHbarTransfer(from, hedera.HbarFromTinybar(-transfer.Total()))
	for _, leg := range mergeLegs(transfer.Legs) {
		to, err := accountID(leg.To)
		if err != nil {
			return Receipt{}, err
		}
		tx.AddHbarTransfer(to, hedera.HbarFromTinybar(leg.Amount))
	}

	frozen, err := tx.FreezeWith(h.client)
	if err != nil {
		return Receipt{}, fmt.Errorf("freeze transfer: %w", err)
	}

	resp, err := frozen.Sign(key).Execute(h.client)
	if err != nil {
		return Receipt{}, classifyExecute(err)
	}

	receipt, err := h.waitReceipt(ctx, resp)
	if err != nil {
		return Receipt{}, err
	}

	h.logger.Info("ledger transfer confirmed",
		slog.String("ledger_tx", resp.TransactionID.String()),
		slog.String("from", transfer.From),
		slog.Int64("tinybars", transfer.Total()),
	)

	return Receipt{Status: receipt.Status.String(), TransactionID: resp.TransactionID.String()}, nil
}

// QueryBalance returns the account's HBAR balance in tinybars.
func (h *Hedera) QueryBalance(ctx context.Context, address string) (balance int64, err error) {
	_, span := tracer.Start(ctx, "ledger.QueryBalance")
	defer func() { endSpan(span, err) }()
	defer metrics.ObserveLedgerCall("query_balance", time.Now(), &err)

	id, err := accountID(address)
	if err != nil {
		return 0, err
	}

	result, err := hedera.NewAccountBalanceQuery().
		SetAccountID(id).
		Execute(h.client)
	if err != nil {
		return 0, classifyExecute(err)
	}
	return result.Hbars.AsTinybar(), nil
}

// ValidateAddress checks the syntax of a native or EVM address.
func (h *Hedera) ValidateAddress(address string) error {
	return validateAddress(address)
}

// waitReceipt polls for the transaction receipt with a bounded exponential
// backoff. Exhausting the budget yields ErrTimeout.
func (h *Hedera) waitReceipt(ctx context.Context, resp hedera.TransactionResponse) (hedera.TransactionReceipt, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxInterval = 3 * time.Second
	policy.MaxElapsedTime = h.receiptTimeout

	txID := resp.TransactionID.String()
	attempts := 0

	receipt, err := backoff.RetryWithData(func() (hedera.TransactionReceipt, error) {
		attempts++
		r, err := hedera.NewTransactionReceiptQuery().
			SetTransactionID(resp.TransactionID).
			SetNodeAccountIDs([]hedera.AccountID{resp.NodeID}).
			Execute(h.client)
		if err != nil {
			var statusErr hedera.ErrHederaReceiptStatus
			if errors.As(err, &statusErr) && !isPending(statusErr.Status) {
				return r, backoff.Permanent(&RejectedError{Status: statusErr.Status.String(), TransactionID: txID})
			}
			return r, err
		}
		if isPending(r.Status) {
			return r, fmt.Errorf("receipt for %s still %s", txID, r.Status.String())
		}
		if r.Status != hedera.StatusSuccess {
			return r, backoff.Permanent(&RejectedError{Status: r.Status.String(), TransactionID: txID})
		}
		return r, nil
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		var rejected *RejectedError
		if errors.As(err, &rejected) {
			return receipt, rejected
		}
		h.logger.Warn("ledger receipt not confirmed",
			slog.String("ledger_tx", txID),
			slog.Int("attempts", attempts),
			slog.Any("error", err),
		)
		return receipt, fmt.Errorf("%w: %s after %d attempts: %v", ErrTimeout, txID, attempts, err)
	}
	return receipt, nil
}

func isPending(status hedera.Status) bool {
	switch status {
	case hedera.StatusUnknown, hedera.StatusReceiptNotFound, hedera.StatusBusy:
		return true
	default:
		return false
	}
}

func classifyExecute(err error) error {
	var precheck hedera.ErrHederaPreCheckStatus
	if errors.As(err, &precheck) {
		switch precheck.Status {
		case hedera.StatusBusy, hedera.StatusPlatformNotActive:
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return &RejectedError{Status: precheck.Status.String(), TransactionID: precheck.TxID.String()}
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func accountID(address string) (hedera.AccountID, error) {
	if err := validateAddress(address); err != nil {
		return hedera.AccountID{}, err
	}
	if IsEVMAddress(address) {
		id, err := hedera.AccountIDFromEvmAddress(0, 0, strings.TrimPrefix(address, "0x"))
		if err != nil {
			return hedera.AccountID{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
		}
		return id, nil
	}
	id, err := hedera.AccountIDFromString(address)
	if err != nil {
		return hedera.AccountID{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return id, nil
}

// parsePrivateKey accepts DER encoded keys as well as raw hex ECDSA keys.
func parsePrivateKey(s string) (hedera.PrivateKey, error) {
	if key, err := hedera.PrivateKeyFromString(s); err == nil {
		return key, nil
	}
	return hedera.PrivateKeyFromStringECDSA(s)
}

func mergeLegs(legs []Leg) []Leg {
	merged := make([]Leg, 0, len(legs))
	index := make(map[string]int, len(legs))
	for _, leg := range legs {
		if leg.Amount == 0 {
			continue
		}
		if i, ok := index[leg.To]; ok {
			merged[i].Amount += leg.Amount
			continue
		}
		index[leg.To] = len(merged)
		merged = append(merged, leg)
	}
	return merged
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
