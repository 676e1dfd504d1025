package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hbarwallet/hbarwallet/internal/ledger"
	"github.com/hbarwallet/hbarwallet/internal/logging"
	"github.com/hbarwallet/hbarwallet/internal/metrics"
	"github.com/hbarwallet/hbarwallet/internal/notification"
	"github.com/hbarwallet/hbarwallet/internal/wallet"
)

var tracer = otel.Tracer("github.com/hbarwallet/hbarwallet/internal/payments")

// Enqueuer schedules wallets for background reconciliation.
type Enqueuer interface {
	Enqueue(ctx context.Context, addresses ...string) error
}

// Config holds the fee policy and presentation settings.
type Config struct {
	// PlatformFee is charged on top of every transfer, in tinybars.
	PlatformFee int64
	// FeeAccount is the ledger address of the admin wallet.
	FeeAccount  string
	ExplorerURL string
}

// Service orchestrates ledger transfers and the matching wallet bookkeeping.
type Service struct {
	ledger   ledger.Client
	wallets  *wallet.Service
	notifier notification.Notifier
	queue    Enqueuer
	cfg      Config
	logger   *slog.Logger
}

// NewService constructs a payment service.
func NewService(led ledger.Client, wallets *wallet.Service, notifier notification.Notifier, queue Enqueuer, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{ledger: led, wallets: wallets, notifier: notifier, queue: queue, cfg: cfg, logger: logger}
}

// TransferInput moves Amount tinybars from the sender's wallet to a ledger address.
type TransferInput struct {
	SenderOwner     string
	ReceiverAddress string
	Amount          int64
}

// WithdrawInput moves Amount tinybars to an external EVM address.
type WithdrawInput struct {
	SenderOwner string
	Recipient   string
	Amount      int64
}

// Result describes a transfer accepted by the ledger. Warnings list
// bookkeeping steps that failed afterwards; those wallets are queued for
// reconciliation.
type Result struct {
	TransactionID   string
	ExplorerURL     string
	Status          string
	Amount          int64
	Fee             int64
	SenderAddress   string
	Recipient       string
	SenderBalance   int64
	ReceiverBalance *int64
	Warnings        []string
	CompletedAt     time.Time
}

type transferKind string

const (
	kindTransfer transferKind = "transfer"
	kindWithdraw transferKind = "withdraw"
)

// Transfer sends HBAR from the sender's wallet to another account, charging
// the platform fee in the same ledger transaction.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (Result, error) {
	const op = "payments.Transfer"
	if err := s.ledger.ValidateAddress(input.ReceiverAddress); err != nil {
		return Result{}, s.finish(kindTransfer, wallet.E(wallet.ErrValidation, op, err))
	}
	res, err := s.execute(ctx, op, kindTransfer, input.SenderOwner, input.ReceiverAddress, input.Amount)
	return res, s.finish(kindTransfer, err)
}

// Withdraw sends HBAR to an external EVM address.
func (s *Service) Withdraw(ctx context.Context, input WithdrawInput) (Result, error) {
	const op = "payments.Withdraw"
	if !ledger.IsEVMAddress(input.Recipient) {
		return Result{}, s.finish(kindWithdraw, wallet.Validationf(op, "recipient %q is not an EVM address", input.Recipient))
	}
	res, err := s.execute(ctx, op, kindWithdraw, input.SenderOwner, input.Recipient, input.Amount)
	return res, s.finish(kindWithdraw, err)
}

func (s *Service) finish(kind transferKind, err error) error {
	outcome := "ok"
	if err != nil {
		outcome = wallet.KindName(err)
	}
	metrics.TransferOutcome(string(kind), outcome)
	return err
}

func (s *Service) execute(ctx context.Context, op string, kind transferKind, senderOwner, recipient string, amount int64) (res Result, err error) {
	ctx, span := tracer.Start(ctx, op)
	span.SetAttributes(
		attribute.String("transfer.kind", string(kind)),
		attribute.String("transfer.recipient", recipient),
		attribute.Int64("transfer.amount_tinybars", amount),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if amount <= 0 {
		return Result{}, wallet.Validationf(op, "amount must be positive")
	}
	fee := s.cfg.PlatformFee
	if fee > 0 && s.cfg.FeeAccount == "" {
		return Result{}, wallet.E(wallet.ErrValidation, op, errors.New("platform fee account is not configured"))
	}

	sender, err := s.wallets.GetByOwner(ctx, senderOwner)
	if err != nil {
		return Result{}, err
	}
	if sender.LedgerAddress == recipient {
		return Result{}, wallet.Validationf(op, "cannot transfer to the sending wallet")
	}

	release, err := s.wallets.Locker().Acquire(ctx, "wallet:"+sender.ID)
	if err != nil {
		return Result{}, wallet.E(wallet.ErrPersistence, op, err)
	}
	defer release()

	// balance may have moved while waiting for the lock
	sender, err = s.wallets.GetByOwner(ctx, senderOwner)
	if err != nil {
		return Result{}, err
	}

	total := amount + fee
	if sender.CachedBalance < total {
		return Result{}, wallet.E(wallet.ErrInsufficientFunds, op,
			fmt.Errorf("balance %s HBAR, need %s HBAR", ledger.ToHbar(sender.CachedBalance), ledger.ToHbar(total)))
	}

	key, err := s.wallets.SigningKey(sender)
	if err != nil {
		return Result{}, err
	}

	legs := []ledger.Leg{{To: recipient, Amount: amount}}
	if fee > 0 {
		legs = append(legs, ledger.Leg{To: s.cfg.FeeAccount, Amount: fee})
	}

	receipt, err := s.ledger.SubmitTransfer(ctx, ledger.Transfer{From: sender.LedgerAddress, FromKey: key, Legs: legs})
	if err != nil {
		if errors.Is(err, ledger.ErrTimeout) {
			// the transaction may still reach consensus
			s.enqueue(ctx, sender.LedgerAddress)
		}
		s.logger.Warn("ledger transfer not completed",
			slog.String("op", op),
			slog.String("wallet_id", sender.ID),
			slog.String("recipient", recipient),
			slog.Any("error", err),
		)
		return Result{}, wallet.FromLedger(op, err)
	}
	if receipt.Status != ledger.StatusSuccess {
		return Result{}, &wallet.Error{Kind: wallet.ErrTransferFailed, Op: op, LedgerStatus: receipt.Status}
	}
	span.SetAttributes(attribute.String("ledger.transaction_id", receipt.TransactionID))

	res = Result{
		TransactionID: receipt.TransactionID,
		ExplorerURL:   s.explorerLink(receipt.TransactionID),
		Status:        receipt.Status,
		Amount:        amount,
		Fee:           fee,
		SenderAddress: sender.LedgerAddress,
		Recipient:     recipient,
		SenderBalance: sender.CachedBalance - total,
		CompletedAt:   time.Now().UTC(),
	}
	s.book(ctx, kind, sender, receipt, &res)

	metrics.FeeCollected(fee)
	return res, nil
}

// book records the confirmed transfer on the sender, receiver and admin
// wallets. Failures become warnings; the ledger already moved the funds.
func (s *Service) book(ctx context.Context, kind transferKind, sender wallet.Wallet, receipt ledger.Receipt, res *Result) {
	now := res.CompletedAt
	record := func(k wallet.Kind, amount int64, counterparty string) wallet.Transaction {
		return wallet.Transaction{
			Kind:              k,
			Amount:            amount,
			Counterparty:      counterparty,
			Timestamp:         now,
			Status:            wallet.StatusCompleted,
			ExternalReference: receipt.TransactionID,
		}
	}
	warn := func(address, step string, err error) {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s not recorded for %s", step, address))
		s.logger.Error("bookkeeping failed after ledger success",
			slog.String("step", step),
			slog.String("ledger_address", address),
			slog.String("ledger_tx", receipt.TransactionID),
			slog.Any("error", err),
		)
		s.enqueue(ctx, address)
	}

	total := res.Amount + res.Fee
	senderRecords := []wallet.Transaction{record(wallet.KindSend, -total, res.Recipient)}
	if res.Fee > 0 {
		senderRecords = append(senderRecords, record(wallet.KindPlatformFee, -res.Fee, s.cfg.FeeAccount))
	}
	if updated, err := s.wallets.Append(ctx, sender.ID, -total, senderRecords...); err != nil {
		warn(sender.LedgerAddress, "sender debit", err)
	} else {
		res.SenderBalance = updated.CachedBalance
	}

	if kind == kindTransfer {
		receiver, err := s.wallets.GetByAddress(ctx, res.Recipient)
		switch {
		case wallet.IsNotFound(err):
			// external account
		case err != nil:
			warn(res.Recipient, "receiver credit", err)
		default:
			updated, err := s.wallets.Append(ctx, receiver.ID, res.Amount, record(wallet.KindReceive, res.Amount, sender.LedgerAddress))
			if err != nil {
				warn(res.Recipient, "receiver credit", err)
				break
			}
			bal := updated.CachedBalance
			res.ReceiverBalance = &bal
			s.notify(ctx, notification.Message{
				Kind:        notification.KindTransferReceived,
				Destination: receiver.Owner,
				Body:        fmt.Sprintf("You received %s HBAR from %s", ledger.ToHbar(res.Amount), sender.LedgerAddress),
				Reference:   receipt.TransactionID,
			})
		}
	}

	if res.Fee > 0 {
		admin, err := s.wallets.GetByAddress(ctx, s.cfg.FeeAccount)
		if err != nil {
			warn(s.cfg.FeeAccount, "platform fee credit", err)
		} else if _, err := s.wallets.Append(ctx, admin.ID, res.Fee, record(wallet.KindTransactionFee, res.Fee, sender.LedgerAddress)); err != nil {
			warn(s.cfg.FeeAccount, "platform fee credit", err)
		}
	}

	s.notify(ctx, notification.Message{
		Kind:        notification.KindTransferSent,
		Destination: sender.Owner,
		Body:        fmt.Sprintf("Sent %s HBAR to %s (fee %s HBAR)", ledger.ToHbar(res.Amount), res.Recipient, ledger.ToHbar(res.Fee)),
		Reference:   receipt.TransactionID,
	})

	s.logger.Info("transfer completed",
		slog.String("kind", string(kind)),
		slog.String("wallet_id", sender.ID),
		slog.String("ledger_tx", receipt.TransactionID),
		slog.Int64("amount", res.Amount),
		slog.Int64("fee", res.Fee),
		slog.Int("warnings", len(res.Warnings)),
	)
}

func (s *Service) enqueue(ctx context.Context, address string) {
	if s.queue == nil {
		return
	}
	// the request context may already be cancelled
	qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.queue.Enqueue(qctx, address); err != nil {
		s.logger.Error("reconcile enqueue failed", slog.String("ledger_address", address), slog.Any("error", err))
	}
}

func (s *Service) notify(ctx context.Context, msg notification.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("notification failed",
			slog.String("kind", msg.Kind),
			slog.String("destination", msg.Destination),
			slog.Any("error", err),
		)
	}
}

func (s *Service) explorerLink(txID string) string {
	if s.cfg.ExplorerURL == "" || txID == "" {
		return ""
	}
	return s.cfg.ExplorerURL + "/tx/" + txID
}
