package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"contest-platform/internal/apperr"
	"contest-platform/internal/metrics"
	"contest-platform/internal/models"
	"contest-platform/internal/payment"
	"contest-platform/internal/store"
)

// CheckoutConfig carries the gateway settings that do not vary per request.
type CheckoutConfig struct {
	Currency   string
	SuccessURL string // "{SESSION_ID}" is replaced with the session ID
	CancelURL  string
	Timeout    time.Duration
}

// Reconciler creates checkout sessions and applies settled payments exactly
// once: one payment row per transaction, one enrollment per participant.
type Reconciler struct {
	contests store.ContestStore
	payments store.PaymentStore
	gateway  payment.Gateway
	cfg      CheckoutConfig
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	now      func() time.Time
}

func NewReconciler(contests store.ContestStore, payments store.PaymentStore, gateway payment.Gateway,
	cfg CheckoutConfig, m *metrics.Metrics, logger zerolog.Logger) *Reconciler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Reconciler{
		contests: contests,
		payments: payments,
		gateway:  gateway,
		cfg:      cfg,
		metrics:  m,
		logger:   logger.With().Str("component", "reconciler").Logger(),
		now:      time.Now,
	}
}

type CheckoutRequest struct {
	ContestID        string          `json:"contestId" binding:"required"`
	ContestName      string          `json:"contestName"`
	ParticipantEmail string          `json:"-"`
	ParticipantName  string          `json:"participantName"`
	// Cost is optional; when sent it must equal the contest's entry fee.
	Cost decimal.Decimal `json:"cost"`
}

type CheckoutSession struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// CreateCheckoutSession asks the gateway for a hosted checkout page for the
// contest's entry fee, tagged with the contest ID.
func (r *Reconciler) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	contestID, err := parseID(req.ContestID)
	if err != nil {
		return nil, err
	}
	email := normalizeEmail(req.ParticipantEmail)
	if !validEmail(email) {
		return nil, fmt.Errorf("%w: participant email is required", apperr.ErrValidation)
	}

	contest, err := r.contests.GetContest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	// The charge is always the stored entry fee. A client-quoted cost must match it.
	if !req.Cost.IsZero() && !req.Cost.Equal(contest.EntryFee) {
		return nil, fmt.Errorf("%w: cost %s does not match entry fee %s", apperr.ErrValidation, req.Cost, contest.EntryFee)
	}
	amount := payment.ToMinorUnits(contest.EntryFee)
	if amount <= 0 {
		return nil, fmt.Errorf("%w: contest has no entry fee to charge", apperr.ErrValidation)
	}
	if contest.Participants.Contains(email) {
		return nil, fmt.Errorf("%w: already enrolled", apperr.ErrConflict)
	}
	name := req.ContestName
	if name == "" {
		name = contest.Name
	}

	sessionID := "CONTEST-" + uuid.NewString()
	gctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	url, err := r.gateway.CreateSession(gctx, payment.SessionRequest{
		SessionID:        sessionID,
		AmountMinorUnits: amount,
		Currency:         r.cfg.Currency,
		Description:      name,
		CustomerEmail:    email,
		Metadata: map[string]string{
			payment.MetaContestID:        contestID,
			payment.MetaParticipantEmail: email,
			payment.MetaParticipantName:  req.ParticipantName,
		},
		SuccessURL: strings.ReplaceAll(r.cfg.SuccessURL, "{SESSION_ID}", sessionID),
		CancelURL:  r.cfg.CancelURL,
	})
	r.metrics.IncGateway("create_session", err)
	if err != nil {
		return nil, err
	}

	r.logger.Info().Str("sessionId", sessionID).Str("contestId", contestID).Int64("amount", amount).Msg("Checkout session created")
	return &CheckoutSession{SessionID: sessionID, URL: url}, nil
}

type Participant struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type ReconciliationResult struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	ContestID       string `json:"contestId,omitempty"`
	TransactionID   string `json:"transactionId,omitempty"`
	PaymentInserted bool   `json:"paymentInserted"`
	Enrolled        bool   `json:"enrolled"`
}

const (
	MsgNotSettled      = "payment not settled"
	MsgAlreadyEnrolled = "already enrolled"
	MsgEnrolled        = "enrolled"
)

// ConfirmPayment verifies the session with the gateway and, when it is
// paid, records the payment and enrolls the participant. Re-running it for
// the same session is safe: a payment persisted by an earlier call whose
// enrollment failed is reused and the enrollment completes.
//
// An empty participant email is taken from the session.
func (r *Reconciler) ConfirmPayment(ctx context.Context, sessionID string, p Participant) (*ReconciliationResult, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("%w: session id is required", apperr.ErrValidation)
	}

	gctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	sess, err := r.gateway.GetSession(gctx, sessionID)
	r.metrics.IncGateway("get_session", err)
	if err != nil {
		r.metrics.IncConfirmation("gateway_error")
		return nil, err
	}

	if sess.PaymentStatus != payment.StatusPaid {
		r.logger.Info().Str("sessionId", sessionID).Str("status", sess.PaymentStatus).Msg("Session not settled")
		r.metrics.IncConfirmation("not_settled")
		return &ReconciliationResult{Success: false, Message: MsgNotSettled}, nil
	}
	if sess.TransactionID == "" {
		return nil, fmt.Errorf("%w: settled session %s has no transaction id", apperr.ErrGateway, sessionID)
	}

	contestID, err := parseID(sess.Metadata[payment.MetaContestID])
	if err != nil {
		return nil, fmt.Errorf("%w: session %s carries no contest id", apperr.ErrGateway, sessionID)
	}

	email := normalizeEmail(p.Email)
	sessEmail := normalizeEmail(sess.CustomerEmail)
	switch {
	case email == "":
		email = sessEmail
	case sessEmail != "" && email != sessEmail:
		return nil, fmt.Errorf("%w: session %s was paid by another customer", apperr.ErrForbidden, sessionID)
	}
	if email == "" {
		return nil, fmt.Errorf("%w: session %s carries no customer email", apperr.ErrGateway, sessionID)
	}
	name := p.Name
	if name == "" {
		name = sess.Metadata[payment.MetaParticipantName]
	}

	contest, err := r.contests.GetContest(ctx, contestID)
	if err != nil {
		return nil, err
	}

	result := &ReconciliationResult{Success: true, ContestID: contestID, TransactionID: sess.TransactionID}
	if contest.Participants.Contains(email) {
		r.logger.Info().Str("contestId", contestID).Str("email", email).Msg("Duplicate confirmation, already enrolled")
		r.metrics.IncConfirmation("already_enrolled")
		result.Message = MsgAlreadyEnrolled
		return result, nil
	}

	now := r.now().UTC()
	currency := sess.Currency
	if currency == "" {
		currency = r.cfg.Currency
	}
	settled, err := r.payments.RecordSettlement(ctx, &models.Payment{
		ID:            uuid.NewString(),
		CustomerEmail: email,
		ContestID:     contestID,
		Currency:      currency,
		TransactionID: sess.TransactionID,
		PaidAt:        now,
	}, models.Participant{Email: email, Name: name, EnrolledAt: now})
	if err != nil {
		r.metrics.IncConfirmation("error")
		return nil, err
	}

	result.PaymentInserted = settled.PaymentInserted
	result.Enrolled = settled.Enrolled
	if settled.Enrolled {
		result.Message = MsgEnrolled
		r.metrics.IncConfirmation("enrolled")
	} else {
		// A concurrent confirmation won the enrollment.
		result.Message = MsgAlreadyEnrolled
		r.metrics.IncConfirmation("already_enrolled")
	}

	r.logger.Info().
		Str("contestId", contestID).
		Str("email", email).
		Str("transactionId", sess.TransactionID).
		Bool("paymentInserted", settled.PaymentInserted).
		Bool("enrolled", settled.Enrolled).
		Msg("Payment reconciled")
	return result, nil
}
