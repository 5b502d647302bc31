package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"contest-platform/internal/apperr"
	"contest-platform/internal/models"
)

// testStore connects to TEST_DSN and migrates it. Rows use fresh UUIDs, so
// a shared database is fine.
func testStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DSN")
	if dsn == "" {
		t.Skip("TEST_DSN not set")
	}
	ctx := context.Background()
	s, err := New(ctx, dsn, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s
}

func insertTestContest(t *testing.T, s *Store) *models.Contest {
	t.Helper()
	c := &models.Contest{
		ID:           uuid.NewString(),
		CreatorEmail: "creator@x.com",
		Name:         "Poster",
		Type:         "Design",
		EntryFee:     decimal.NewFromInt(50000),
		PrizeMoney:   decimal.NewFromInt(1000000),
		Deadline:     time.Now().Add(time.Hour).UTC(),
		Status:       models.StatusApproved,
		Participants: models.Participants{},
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.InsertContest(context.Background(), c); err != nil {
		t.Fatalf("InsertContest: %v", err)
	}
	return c
}

func settlement(contestID, email, txID string) (*models.Payment, models.Participant) {
	now := time.Now().UTC()
	return &models.Payment{
			ID: uuid.NewString(), CustomerEmail: email, ContestID: contestID,
			Currency: "idr", TransactionID: txID, PaidAt: now,
		},
		models.Participant{Email: email, Name: email, EnrolledAt: now}
}

func TestRecordSettlementOnce(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	c := insertTestContest(t, s)
	txID := "tx-" + uuid.NewString()

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
		enrolled int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, part := settlement(c.ID, "p@x.com", txID)
			res, err := s.RecordSettlement(ctx, p, part)
			if err != nil {
				t.Errorf("RecordSettlement: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if res.PaymentInserted {
				inserted++
			}
			if res.Enrolled {
				enrolled++
			}
		}()
	}
	wg.Wait()

	if inserted != 1 || enrolled != 1 {
		t.Errorf("inserted = %d, enrolled = %d, want 1 and 1", inserted, enrolled)
	}

	// A second transaction for the same participant records the payment only.
	p, part := settlement(c.ID, "p@x.com", "tx-"+uuid.NewString())
	res, err := s.RecordSettlement(ctx, p, part)
	if err != nil {
		t.Fatalf("RecordSettlement second tx: %v", err)
	}
	if !res.PaymentInserted || res.Enrolled {
		t.Errorf("second tx result = %+v, want payment only", res)
	}

	got, err := s.GetContest(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetContest: %v", err)
	}
	if got.ParticipantsCount != 1 || len(got.Participants) != 1 {
		t.Errorf("participants = %d (%d listed), want 1", got.ParticipantsCount, len(got.Participants))
	}
	if ok, _ := s.HasPayment(ctx, c.ID, "P@x.com"); !ok {
		t.Error("HasPayment = false after settlement")
	}

	p, part = settlement(uuid.NewString(), "p@x.com", "tx-"+uuid.NewString())
	if _, err := s.RecordSettlement(ctx, p, part); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown contest err = %v, want ErrNotFound", err)
	}
	if _, err := s.GetPaymentByTransaction(ctx, p.TransactionID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("payment for unknown contest was kept: %v", err)
	}
}

func TestDeclareWinnerOnce(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	c := insertTestContest(t, s)

	candidates := []string{"a@x.com", "b@x.com", "c@x.com", "d@x.com"}
	errs := make([]error, len(candidates))
	var wg sync.WaitGroup
	for i, email := range candidates {
		i, email := i, email
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.DeclareWinner(ctx, c.ID, models.WinnerInfo{Name: email, Email: email}, &models.Winner{
				ID: uuid.NewString(), Name: email, Email: email, ContestID: c.ID,
				ContestName: c.Name, PrizeMoney: c.PrizeMoney, DeclaredAt: time.Now().UTC(),
			})
		}()
	}
	wg.Wait()

	var winner string
	for i, err := range errs {
		switch {
		case err == nil:
			if winner != "" {
				t.Errorf("both %s and %s were declared", winner, candidates[i])
			}
			winner = candidates[i]
		case !errors.Is(err, apperr.ErrConflict):
			t.Errorf("DeclareWinner(%s) err = %v, want ErrConflict", candidates[i], err)
		}
	}
	if winner == "" {
		t.Fatal("no winner declared")
	}

	got, _ := s.GetContest(ctx, c.ID)
	if got.Winner.Email != winner {
		t.Errorf("contest winner = %q, want %q", got.Winner.Email, winner)
	}
	records, err := s.WinnersByEmail(ctx, winner)
	if err != nil {
		t.Fatalf("WinnersByEmail: %v", err)
	}
	var forContest int
	for _, r := range records {
		if r.ContestID == c.ID {
			forContest++
		}
	}
	if forContest != 1 {
		t.Errorf("winner rows for contest = %d, want 1", forContest)
	}

	if err := s.DeclareWinner(ctx, uuid.NewString(), models.WinnerInfo{Email: "a@x.com"}, &models.Winner{}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown contest err = %v, want ErrNotFound", err)
	}
}

func TestInsertSubmissionConstraints(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	c := insertTestContest(t, s)

	first := &models.Submission{
		ID: uuid.NewString(), ContestID: c.ID, ParticipantEmail: "p@x.com",
		Content: "draft", IsPaid: true, SubmittedAt: time.Now().UTC(),
	}
	if err := s.InsertSubmission(ctx, first); err != nil {
		t.Fatalf("InsertSubmission: %v", err)
	}
	if first.ContestIsEnded {
		t.Error("ContestIsEnded = true for an open contest")
	}

	dup := *first
	dup.ID = uuid.NewString()
	dup.ParticipantEmail = "P@X.com"
	if err := s.InsertSubmission(ctx, &dup); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("duplicate err = %v, want ErrConflict", err)
	}

	if _, err := s.SetContestEnded(ctx, c.ID, true); err != nil {
		t.Fatalf("SetContestEnded: %v", err)
	}
	late := &models.Submission{
		ID: uuid.NewString(), ContestID: c.ID, ParticipantEmail: "q@x.com",
		Content: "late", IsPaid: true, SubmittedAt: time.Now().UTC(),
	}
	if err := s.InsertSubmission(ctx, late); err != nil {
		t.Fatalf("InsertSubmission after end: %v", err)
	}
	if !late.ContestIsEnded {
		t.Error("ContestIsEnded not taken from the ended contest")
	}
	subs, err := s.ListSubmissions(ctx, c.ID)
	if err != nil {
		t.Fatalf("ListSubmissions: %v", err)
	}
	for _, sub := range subs {
		if !sub.ContestIsEnded {
			t.Errorf("submission %s has ContestIsEnded = false", sub.ParticipantEmail)
		}
	}

	orphan := &models.Submission{ID: uuid.NewString(), ContestID: uuid.NewString(), ParticipantEmail: "p@x.com", Content: "x"}
	if err := s.InsertSubmission(ctx, orphan); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown contest err = %v, want ErrNotFound", err)
	}
}
