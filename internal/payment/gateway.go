// Package payment talks to the external payment processor.
package payment

import (
	"context"

	"github.com/shopspring/decimal"
)

// StatusPaid is the normalized status of a settled session.
const StatusPaid = "paid"

// StatusNotFound marks a session the gateway has no transaction for yet.
const StatusNotFound = "not_found"

// Metadata keys attached to every checkout session.
const (
	MetaContestID        = "contestId"
	MetaParticipantEmail = "participantEmail"
	MetaParticipantName  = "participantName"
)

type SessionRequest struct {
	SessionID        string
	AmountMinorUnits int64
	Currency         string
	Description      string
	CustomerEmail    string
	Metadata         map[string]string
	SuccessURL       string
	CancelURL        string
}

type Session struct {
	ID            string
	PaymentStatus string
	CustomerEmail string
	Currency      string
	TransactionID string
	Metadata      map[string]string
}

// Gateway is the checkout-session capability of the payment processor.
// Implementations return errors wrapping apperr.ErrGateway.
type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (string, error)
	GetSession(ctx context.Context, sessionID string) (*Session, error)
}

// ToMinorUnits converts a major-unit amount to minor units, truncating
// fractions of a minor unit.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Truncate(0).IntPart()
}
