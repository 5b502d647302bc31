package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"contest-platform/internal/auth"
	"contest-platform/internal/metrics"
	"contest-platform/internal/models"
	"contest-platform/internal/payment"
	"contest-platform/internal/store/memory"
)

// fakeGateway implements payment.Gateway for testing.
type fakeGateway struct {
	mu                sync.Mutex
	CreateSessionFunc func(ctx context.Context, req payment.SessionRequest) (string, error)
	GetSessionFunc    func(ctx context.Context, id string) (*payment.Session, error)
	created           []payment.SessionRequest
	lookups           int
}

func (g *fakeGateway) CreateSession(ctx context.Context, req payment.SessionRequest) (string, error) {
	g.mu.Lock()
	g.created = append(g.created, req)
	g.mu.Unlock()
	if g.CreateSessionFunc != nil {
		return g.CreateSessionFunc(ctx, req)
	}
	return "https://pay.example.com/" + req.SessionID, nil
}

func (g *fakeGateway) GetSession(ctx context.Context, id string) (*payment.Session, error) {
	g.mu.Lock()
	g.lookups++
	g.mu.Unlock()
	if g.GetSessionFunc != nil {
		return g.GetSessionFunc(ctx, id)
	}
	return nil, nil
}

// paidSession returns a GetSessionFunc reporting a settled payment.
func paidSession(contestID, email, txID string) func(context.Context, string) (*payment.Session, error) {
	return func(_ context.Context, id string) (*payment.Session, error) {
		return &payment.Session{
			ID:            id,
			PaymentStatus: payment.StatusPaid,
			CustomerEmail: email,
			Currency:      "idr",
			TransactionID: txID,
			Metadata: map[string]string{
				payment.MetaContestID:        contestID,
				payment.MetaParticipantEmail: email,
				payment.MetaParticipantName:  "Participant",
			},
		}, nil
	}
}

type testEnv struct {
	store       *memory.Store
	gateway     *fakeGateway
	metrics     *metrics.Metrics
	users       *UserService
	contests    *ContestService
	submissions *SubmissionService
	stats       *StatsService
	reconciler  *Reconciler
}

type staticIssuer struct{}

func (staticIssuer) Issue(email string) (string, error) { return "token-" + email, nil }

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	st := memory.New()
	gw := &fakeGateway{}
	m := metrics.New(prometheus.NewRegistry())
	roles := auth.UserRoles{Users: st}
	logger := zerolog.Nop()

	return &testEnv{
		store:       st,
		gateway:     gw,
		metrics:     m,
		users:       NewUserService(st, roles, staticIssuer{}, logger),
		contests:    NewContestService(st, roles, logger),
		submissions: NewSubmissionService(st, roles, nil, m, logger),
		stats:       NewStatsService(st, nil, logger),
		reconciler: NewReconciler(st, st, gw, CheckoutConfig{
			Currency:   "idr",
			SuccessURL: "https://app.example.com/ok?session_id={SESSION_ID}",
			CancelURL:  "https://app.example.com/cancel",
			Timeout:    time.Second,
		}, m, logger),
	}
}

func (e *testEnv) addUser(t *testing.T, email, name string, role models.Role) {
	t.Helper()
	err := e.store.InsertUser(context.Background(), &models.User{
		Email:       email,
		DisplayName: name,
		PhotoURL:    "https://img.example.com/" + name,
		Role:        role,
	})
	if err != nil {
		t.Fatalf("InsertUser(%s): %v", email, err)
	}
}

func (e *testEnv) addContest(t *testing.T, creator string, status models.ContestStatus, deadline time.Time) *models.Contest {
	t.Helper()
	c := &models.Contest{
		ID:           uuid.NewString(),
		CreatorEmail: creator,
		Name:         "Short Story",
		Type:         "Article Writing",
		EntryFee:     decimal.NewFromInt(50000),
		PrizeMoney:   decimal.NewFromInt(1000000),
		Deadline:     deadline,
		Status:       status,
		Participants: models.Participants{},
		CreatedAt:    time.Now(),
	}
	if err := e.store.InsertContest(context.Background(), c); err != nil {
		t.Fatalf("InsertContest: %v", err)
	}
	return c
}

// enroll drives a settled payment through the reconciler.
func (e *testEnv) enroll(t *testing.T, contestID, email, txID string) {
	t.Helper()
	e.gateway.GetSessionFunc = paidSession(contestID, email, txID)
	res, err := e.reconciler.ConfirmPayment(context.Background(), "CONTEST-"+txID, Participant{Email: email, Name: email})
	if err != nil {
		t.Fatalf("ConfirmPayment(%s): %v", email, err)
	}
	if !res.Success {
		t.Fatalf("ConfirmPayment(%s) = %+v", email, res)
	}
}
