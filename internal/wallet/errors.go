package wallet

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/hbarwallet/hbarwallet/internal/ledger"
)

// Error kinds. Match them with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrLedgerUnavailable = errors.New("ledger unavailable")
	ErrTransferFailed    = errors.New("transfer failed")
	ErrPersistence       = errors.New("persistence error")
	ErrValidation        = errors.New("validation error")
	ErrTimeout           = errors.New("ledger timeout")
)

// errConflict is returned by repositories when a unique owner or address already exists.
var errConflict = errors.New("wallet already exists")

// Error is the error type returned by wallet and transfer operations.
type Error struct {
	Kind error
	Op   string
	Err  error
	// LedgerStatus is set for ErrTransferFailed.
	LedgerStatus string
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.LedgerStatus != "" {
		msg += " (" + e.LedgerStatus + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the error's kind.
func (e *Error) Is(target error) bool { return target == e.Kind }

// E builds an Error of the given kind.
func E(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Validationf builds an ErrValidation error with a formatted message.
func Validationf(op, format string, args ...any) *Error {
	return &Error{Kind: ErrValidation, Op: op, Err: fmt.Errorf(format, args...)}
}

// FromLedger classifies a ledger client error.
func FromLedger(op string, err error) error {
	var rejected *ledger.RejectedError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &rejected):
		return &Error{Kind: ErrTransferFailed, Op: op, Err: err, LedgerStatus: rejected.Status}
	case errors.Is(err, ledger.ErrTimeout):
		return E(ErrTimeout, op, err)
	case errors.Is(err, ledger.ErrInvalidAddress):
		return E(ErrValidation, op, err)
	default:
		return E(ErrLedgerUnavailable, op, err)
	}
}

// KindName returns the wire name of err's kind.
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrLedgerUnavailable):
		return "ledger_unavailable"
	case errors.Is(err, ErrTransferFailed):
		return "transfer_failed"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	default:
		return "internal"
	}
}

// HTTPStatus maps err to a response status code.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrTransferFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrLedgerUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Kind         string `json:"kind"`
	Message      string `json:"message"`
	LedgerStatus string `json:"ledger_status,omitempty"`
}

// WriteError renders err as the JSON error envelope. Persistence and unknown
// errors are reported without their cause.
func WriteError(c *fiber.Ctx, err error) error {
	status := HTTPStatus(err)
	body := errorBody{Kind: KindName(err), Message: err.Error()}

	var werr *Error
	if errors.As(err, &werr) {
		body.LedgerStatus = werr.LedgerStatus
		body.Message = werr.Kind.Error()
		if werr.Err != nil && status < http.StatusInternalServerError {
			body.Message += ": " + werr.Err.Error()
		}
	}
	if status == http.StatusInternalServerError {
		body.Message = http.StatusText(status)
	}
	return c.Status(status).JSON(fiber.Map{"error": body})
}
