package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"contest-platform/internal/apperr"
	"contest-platform/internal/models"
	"contest-platform/internal/payment"
)

func TestCreateCheckoutSession(t *testing.T) {
	env := newEnv(t)
	c := env.addContest(t, "a@x.com", models.StatusApproved, time.Now().Add(time.Hour))

	sess, err := env.reconciler.CreateCheckoutSession(context.Background(), CheckoutRequest{
		ContestID:        c.ID,
		ParticipantEmail: "P@x.com",
		ParticipantName:  "Pat",
		Cost:             decimal.NewFromInt(50000),
	})
	if err != nil {
		t.Fatalf("CreateCheckoutSession: %v", err)
	}
	if !strings.HasPrefix(sess.SessionID, "CONTEST-") {
		t.Errorf("SessionID = %q, want CONTEST- prefix", sess.SessionID)
	}
	if sess.URL == "" {
		t.Error("empty checkout URL")
	}

	if len(env.gateway.created) != 1 {
		t.Fatalf("gateway saw %d sessions, want 1", len(env.gateway.created))
	}
	req := env.gateway.created[0]
	if req.AmountMinorUnits != 5000000 {
		t.Errorf("AmountMinorUnits = %d, want 5000000", req.AmountMinorUnits)
	}
	if req.Metadata[payment.MetaContestID] != c.ID {
		t.Errorf("metadata contestId = %q, want %q", req.Metadata[payment.MetaContestID], c.ID)
	}
	if req.CustomerEmail != "p@x.com" {
		t.Errorf("CustomerEmail = %q, want lowercased", req.CustomerEmail)
	}
	if req.Description != c.Name {
		t.Errorf("Description = %q, want contest name", req.Description)
	}
	if !strings.HasSuffix(req.SuccessURL, sess.SessionID) {
		t.Errorf("SuccessURL = %q, want session id substituted", req.SuccessURL)
	}
}

func TestCreateCheckoutSessionRejects(t *testing.T) {
	env := newEnv(t)
	c := env.addContest(t, "a@x.com", models.StatusApproved, time.Now().Add(time.Hour))
	env.enroll(t, c.ID, "p@x.com", "tx1")
	free := &models.Contest{
		ID: uuid.NewString(), CreatorEmail: "a@x.com", Name: "Free", Status: models.StatusApproved,
		Deadline: time.Now().Add(time.Hour), Participants: models.Participants{}, CreatedAt: time.Now(),
	}
	if err := env.store.InsertContest(context.Background(), free); err != nil {
		t.Fatalf("InsertContest: %v", err)
	}

	cases := []struct {
		name string
		req  CheckoutRequest
		want error
	}{
		{"bad id", CheckoutRequest{ContestID: "nope", ParticipantEmail: "q@x.com", Cost: decimal.NewFromInt(1)}, apperr.ErrValidation},
		{"free contest", CheckoutRequest{ContestID: free.ID, ParticipantEmail: "q@x.com"}, apperr.ErrValidation},
		{"cost below entry fee", CheckoutRequest{ContestID: c.ID, ParticipantEmail: "q@x.com", Cost: decimal.RequireFromString("0.01")}, apperr.ErrValidation},
		{"cost above entry fee", CheckoutRequest{ContestID: c.ID, ParticipantEmail: "q@x.com", Cost: decimal.NewFromInt(60000)}, apperr.ErrValidation},
		{"unknown contest", CheckoutRequest{ContestID: "6f1c0b39-2d0a-4d5e-9d1e-0f3f1f3c9a11", ParticipantEmail: "q@x.com", Cost: decimal.NewFromInt(1)}, apperr.ErrNotFound},
		{"already enrolled", CheckoutRequest{ContestID: c.ID, ParticipantEmail: "P@x.com"}, apperr.ErrConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.reconciler.CreateCheckoutSession(context.Background(), tc.req)
			if !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
	if len(env.gateway.created) != 0 {
		t.Errorf("gateway saw %d sessions, want 0", len(env.gateway.created))
	}
}

func TestCreateCheckoutSessionChargesEntryFee(t *testing.T) {
	env := newEnv(t)
	c := env.addContest(t, "a@x.com", models.StatusApproved, time.Now().Add(time.Hour))

	if _, err := env.reconciler.CreateCheckoutSession(context.Background(), CheckoutRequest{
		ContestID: c.ID, ParticipantEmail: "p@x.com",
	}); err != nil {
		t.Fatalf("CreateCheckoutSession without cost: %v", err)
	}
	if len(env.gateway.created) != 1 {
		t.Fatalf("gateway saw %d sessions, want 1", len(env.gateway.created))
	}
	if got := env.gateway.created[0].AmountMinorUnits; got != 5000000 {
		t.Errorf("AmountMinorUnits = %d, want entry fee 5000000", got)
	}

	// An underpaying quote never reaches the gateway, so it cannot lead to enrollment.
	_, err := env.reconciler.CreateCheckoutSession(context.Background(), CheckoutRequest{
		ContestID: c.ID, ParticipantEmail: "q@x.com", Cost: decimal.RequireFromString("0.01"),
	})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if len(env.gateway.created) != 1 {
		t.Errorf("gateway saw %d sessions, want 1", len(env.gateway.created))
	}
}

func TestCreateCheckoutSessionGatewayError(t *testing.T) {
	env := newEnv(t)
	c := env.addContest(t, "a@x.com", models.StatusApproved, time.Now().Add(time.Hour))
	env.gateway.CreateSessionFunc = func(context.Context, payment.SessionRequest) (string, error) {
		return "", apperr.ErrGateway
	}

	_, err := env.reconciler.CreateCheckoutSession(context.Background(), CheckoutRequest{
		ContestID: c.ID, ParticipantEmail: "p@x.com", Cost: decimal.NewFromInt(50000),
	})
	if !apperr.Retryable(err) {
		t.Errorf("err = %v, want retryable gateway error", err)
	}
	if got := testutil.ToFloat64(env.metrics.GatewayRequests.WithLabelValues("create_session", "error")); got != 1 {
		t.Errorf("gateway error counter = %v, want 1", got)
	}
}

func TestConfirmPaymentNotSettled(t *testing.T) {
	env := newEnv(t)
	c := env.addContest(t, "a@x.com", models.StatusApproved, time.Now().Add(time.Hour))
	for _, status := range []string{"pending", "expire", payment.StatusNotFound} {
		env.gateway.GetSessionFunc = func(_ context.Context, id string) (*payment.Session, error) {
			return &payment.Session{ID: id, PaymentStatus: status, Metadata: map[string]string{payment.MetaContestID: c.ID}}, nil
		}
		res, err := env.reconciler.ConfirmPayment(context.Background(), "CONTEST-1", Participant{Email: "p@x.com"})
		if err != nil {
			t.Fatalf("ConfirmPayment(%s): %v", status, err)
		}
		if res.Success || res.Message != MsgNotSettled {
			t.Errorf("%s: result = %+v, want not settled", status, res)
		}
	}

	got, _ := env.store.GetContest(context.Background(), c.ID)
	if got.ParticipantsCount != 0 {
		t.Errorf("ParticipantsCount = %d, want 0", got.ParticipantsCount)
	}
	if ok, _ := env.store.HasPayment(context.Background(), c.ID, "p@x.com"); ok {
		t.Error("payment recorded for unsettled session")
	}
}

func TestConfirmPaymentIdempotent(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	c := env.addContest(t, "a@x.com", models.StatusApproved, time.Now().Add(time.Hour))
	env.gateway.GetSessionFunc = paidSession(c.ID, "p@x.com", "tx1")

	first, err := env.reconciler.ConfirmPayment(ctx, "CONTEST-1", Participant{Email: "p@x.com", Name: "Pat"})
	if err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	if !first.Success || first.Message != MsgEnrolled || !first.PaymentInserted || !first.Enrolled {
		t.Errorf("first = %+v", first)
	}

	second, err := env.reconciler.ConfirmPayment(ctx, "CONTEST-1", Participant{Email: "P@X.com"})
	if err != nil {
		t.Fatalf("ConfirmPayment again: %v", err)
	}
	if !second.Success || second.Message != MsgAlreadyEnrolled || second.Enrolled {
		t.Errorf("second = %+v", second)
	}

	got, _ := env.store.GetContest(ctx, c.ID)
	if got.ParticipantsCount != 1 || len(got.Participants) != 1 {
		t.Errorf("participants = %d/%d, want 1/1", got.ParticipantsCount, len(got.Participants))
	}
	if got.Participants[0].Name != "Pat" {
		t.Errorf("participant name = %q, want Pat", got.Participants[0].Name)
	}
}

func TestConfirmPaymentConcurrent(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	c := env.addContest(t, "a@x.com", models.StatusApproved, time.Now().Add(time.Hour))
	env.gateway.GetSessionFunc = paidSession(c.ID, "p@x.com", "tx1")

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		enrolled int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := env.reconciler.ConfirmPayment(ctx, "CONTEST-1", Participant{Email: "p@x.com"})
			if err != nil {
				t.Errorf("ConfirmPayment: %v", err)
				return
			}
			if res.Enrolled {
				mu.Lock()
				enrolled++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if enrolled != 1 {
		t.Errorf("enrolled %d times, want 1", enrolled)
	}
	got, _ := env.store.GetContest(ctx, c.ID)
	if got.ParticipantsCount != len(got.Participants) || got.ParticipantsCount != 1 {
		t.Errorf("participants = %d/%d, want 1/1", got.ParticipantsCount, len(got.Participants))
	}
}

// A payment persisted by an earlier call whose enrollment never happened is
// completed on the next confirmation.
func TestConfirmPaymentResumesAfterPartialWrite(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	c := env.addContest(t, "a@x.com", models.StatusApproved, time.Now().Add(time.Hour))

	// Payment row for tx1 present, p@x.com not yet a participant.
	_, err := env.store.RecordSettlement(ctx, &models.Payment{
		CustomerEmail: "p@x.com", ContestID: c.ID, TransactionID: "tx1",
	}, models.Participant{Email: "someone-else@x.com"})
	if err != nil {
		t.Fatalf("RecordSettlement: %v", err)
	}

	env.gateway.GetSessionFunc = paidSession(c.ID, "p@x.com", "tx1")
	res, err := env.reconciler.ConfirmPayment(ctx, "CONTEST-1", Participant{Email: "p@x.com"})
	if err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	if res.PaymentInserted {
		t.Error("payment row for tx1 inserted twice")
	}
	if !res.Enrolled || res.Message != MsgEnrolled {
		t.Errorf("result = %+v, want enrolled", res)
	}
}

func TestConfirmPaymentErrors(t *testing.T) {
	env := newEnv(t)
	c := env.addContest(t, "a@x.com", models.StatusApproved, time.Now().Add(time.Hour))

	cases := []struct {
		name    string
		session func(context.Context, string) (*payment.Session, error)
		email   string
		want    error
	}{
		{
			name:    "gateway down",
			session: func(context.Context, string) (*payment.Session, error) { return nil, apperr.ErrGateway },
			email:   "p@x.com",
			want:    apperr.ErrGateway,
		},
		{
			name:    "missing transaction id",
			session: paidSession(c.ID, "p@x.com", ""),
			email:   "p@x.com",
			want:    apperr.ErrGateway,
		},
		{
			name:    "missing contest id",
			session: paidSession("", "p@x.com", "tx9"),
			email:   "p@x.com",
			want:    apperr.ErrGateway,
		},
		{
			name:    "paid by someone else",
			session: paidSession(c.ID, "owner@x.com", "tx9"),
			email:   "thief@x.com",
			want:    apperr.ErrForbidden,
		},
		{
			name:    "contest deleted",
			session: paidSession("6f1c0b39-2d0a-4d5e-9d1e-0f3f1f3c9a11", "p@x.com", "tx9"),
			email:   "p@x.com",
			want:    apperr.ErrNotFound,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env.gateway.GetSessionFunc = tc.session
			_, err := env.reconciler.ConfirmPayment(context.Background(), "CONTEST-9", Participant{Email: tc.email})
			if !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}

	if _, err := env.reconciler.ConfirmPayment(context.Background(), " ", Participant{}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("empty session err = %v, want ErrValidation", err)
	}
}

func TestConfirmPaymentUsesSessionEmail(t *testing.T) {
	env := newEnv(t)
	c := env.addContest(t, "a@x.com", models.StatusApproved, time.Now().Add(time.Hour))
	env.gateway.GetSessionFunc = paidSession(c.ID, "p@x.com", "tx1")

	res, err := env.reconciler.ConfirmPayment(context.Background(), "CONTEST-1", Participant{})
	if err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	if !res.Enrolled {
		t.Fatalf("result = %+v, want enrolled", res)
	}
	got, _ := env.store.GetContest(context.Background(), c.ID)
	if !got.Participants.Contains("p@x.com") {
		t.Error("participant from session email not enrolled")
	}
	if got.Participants[0].Name != "Participant" {
		t.Errorf("name = %q, want the session's participant name", got.Participants[0].Name)
	}
	if v := testutil.ToFloat64(env.metrics.PaymentConfirmations.WithLabelValues("enrolled")); v != 1 {
		t.Errorf("enrolled counter = %v, want 1", v)
	}
}
