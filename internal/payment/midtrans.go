package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/rs/zerolog"

	"contest-platform/internal/apperr"
)

// Midtrans creates sessions through Snap and reads settlement through the
// Core API. The session ID is the Midtrans order ID; metadata travels in the
// three custom fields.
type Midtrans struct {
	SnapClient snap.Client
	CoreClient coreapi.Client
	logger     zerolog.Logger
}

func NewMidtrans(serverKey string, production bool, logger zerolog.Logger) *Midtrans {
	env := midtrans.Sandbox
	if production {
		env = midtrans.Production
	}

	var s snap.Client
	s.New(serverKey, env)

	var c coreapi.Client
	c.New(serverKey, env)

	return &Midtrans{
		SnapClient: s,
		CoreClient: c,
		logger:     logger.With().Str("component", "midtrans").Logger(),
	}
}

// call runs fn and gives up when ctx is done. The SDK has no context support,
// so an abandoned call finishes in the background and its result is dropped.
func call[T any](ctx context.Context, fn func() (T, *midtrans.Error)) (T, error) {
	type result struct {
		val T
		err *midtrans.Error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("%w: %v", apperr.ErrGateway, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return r.val, fmt.Errorf("%w: %w", apperr.ErrGateway, r.err)
		}
		return r.val, nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func (m *Midtrans) CreateSession(ctx context.Context, req SessionRequest) (string, error) {
	snapReq := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.SessionID,
			GrossAmt: req.AmountMinorUnits,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: req.Metadata[MetaParticipantName],
			Email: req.CustomerEmail,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:    req.Metadata[MetaContestID],
				Name:  truncate(req.Description, 50),
				Price: req.AmountMinorUnits,
				Qty:   1,
			},
		},
		// Snap sends both outcomes to the finish URL; the cancel URL has no slot.
		Callbacks: &snap.Callbacks{
			Finish: req.SuccessURL,
		},
		CustomField1: req.Metadata[MetaContestID],
		CustomField2: req.Metadata[MetaParticipantEmail],
		CustomField3: req.Metadata[MetaParticipantName],
	}

	resp, err := call(ctx, func() (*snap.Response, *midtrans.Error) {
		return m.SnapClient.CreateTransaction(snapReq)
	})
	if err != nil {
		m.logger.Error().Err(err).Str("orderId", req.SessionID).Msg("Failed to create Snap transaction")
		return "", err
	}
	if resp == nil || resp.RedirectURL == "" {
		return "", fmt.Errorf("%w: empty snap response", apperr.ErrGateway)
	}
	return resp.RedirectURL, nil
}

// normalizeStatus maps Midtrans transaction states onto "paid" for settled
// charges; everything else passes through unchanged.
func normalizeStatus(status, fraud string) string {
	switch status {
	case "settlement":
		return StatusPaid
	case "capture":
		if fraud == "" || fraud == "accept" {
			return StatusPaid
		}
	}
	return status
}

func (m *Midtrans) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	resp, err := call(ctx, func() (*coreapi.TransactionStatusResponse, *midtrans.Error) {
		return m.CoreClient.CheckTransaction(sessionID)
	})
	// Core API knows an order only once a payment method was chosen; until
	// then, or after the customer abandons Snap, it answers 404.
	var merr *midtrans.Error
	if errors.As(err, &merr) && merr.StatusCode == http.StatusNotFound {
		m.logger.Info().Str("orderId", sessionID).Msg("Transaction not found")
		return &Session{ID: sessionID, PaymentStatus: StatusNotFound}, nil
	}
	if err != nil {
		m.logger.Error().Err(err).Str("orderId", sessionID).Msg("Failed to check transaction")
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: empty status response", apperr.ErrGateway)
	}

	return &Session{
		ID:            resp.OrderID,
		PaymentStatus: normalizeStatus(resp.TransactionStatus, resp.FraudStatus),
		CustomerEmail: strings.ToLower(resp.CustomField2),
		Currency:      strings.ToLower(resp.Currency),
		TransactionID: resp.TransactionID,
		Metadata: map[string]string{
			MetaContestID:        resp.CustomField1,
			MetaParticipantEmail: resp.CustomField2,
			MetaParticipantName:  resp.CustomField3,
		},
	}, nil
}
