package domain

import "errors"

// Pre-submission errors. Nothing irreversible has happened when one of these
// is returned, so callers may retry freely.
var (
	ErrInvalidToken             = errors.New("invalid token")
	ErrInvalidWallet            = errors.New("invalid wallet address")
	ErrValidationTimeout        = errors.New("token validation timed out")
	ErrInvalidAmount            = errors.New("invalid amount")
	ErrNoLiquidity              = errors.New("no liquidity")
	ErrQuoteProviderUnavailable = errors.New("quote provider unavailable")
	ErrNoRoute                  = errors.New("no bridge route")
	ErrPlanInfeasible           = errors.New("plan infeasible")
	ErrContestInactive          = errors.New("contest is not active")
	ErrUnsupportedChain         = errors.New("unsupported chain")
)

// Post-submission errors. Each one is terminal for the step it happened on.
var (
	ErrSubmissionRejected  = errors.New("submission rejected")
	ErrUserRejected        = errors.New("user rejected")
	ErrSignerUnavailable   = errors.New("signer unavailable")
	ErrTransactionReverted = errors.New("transaction reverted")
	ErrConfirmationTimeout = errors.New("confirmation timeout")
)

// Store and lifecycle errors.
var (
	ErrConcurrentUpdateConflict = errors.New("concurrent update conflict")
	ErrInvalidTransition        = errors.New("invalid status transition")
	ErrCancelNotAllowed         = errors.New("plan can no longer be cancelled")
	ErrUnknownStep              = errors.New("unknown step")
)

// Failure reasons recorded on steps.
const (
	ReasonUserRejected        = "user_rejected"
	ReasonSubmissionRejected  = "submission_rejected"
	ReasonTransactionReverted = "transaction_reverted"
	ReasonConfirmationTimeout = "confirmation_timeout"
	ReasonDependencyFailed    = "dependency_failed"
	ReasonCancelled           = "cancelled"
	ReasonNoLiquidity         = "no_liquidity"
	ReasonQuoteUnavailable    = "quote_unavailable"
)

// FailureReason maps a step error onto its recorded reason code.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, ErrUserRejected):
		return ReasonUserRejected
	case errors.Is(err, ErrTransactionReverted):
		return ReasonTransactionReverted
	case errors.Is(err, ErrConfirmationTimeout):
		return ReasonConfirmationTimeout
	case errors.Is(err, ErrNoLiquidity):
		return ReasonNoLiquidity
	case errors.Is(err, ErrQuoteProviderUnavailable):
		return ReasonQuoteUnavailable
	default:
		return ReasonSubmissionRejected
	}
}
