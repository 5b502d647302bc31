// Package apperr defines the error taxonomy shared by the services and the
// HTTP layer. Errors are wrapped with fmt.Errorf("%w: ...") and matched with
// errors.Is.
package apperr

import "errors"

var (
	// ErrAuth means the credential was missing or could not be verified.
	ErrAuth = errors.New("unauthorized")
	// ErrForbidden means the principal is authenticated but lacks the role or ownership.
	ErrForbidden = errors.New("forbidden")
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("conflict")
	// ErrPaymentRequired is a soft business rejection: no settled payment exists.
	ErrPaymentRequired = errors.New("payment required")
	// ErrGateway means the payment processor was unreachable, timed out or
	// answered with an unexpected shape. Callers may retry.
	ErrGateway    = errors.New("payment gateway error")
	ErrValidation = errors.New("validation error")
)

// Retryable reports whether the caller may safely repeat the operation.
func Retryable(err error) bool {
	return errors.Is(err, ErrGateway)
}
