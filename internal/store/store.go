// Package store declares the persistence capability the services depend on.
// Every uniqueness and single-writer rule (one payment per transaction, one
// enrollment per email, one submission per participant, one winner per
// contest) is enforced by the store with conditional writes, never by the
// caller holding a lock.
package store

import (
	"context"
	"time"

	"contest-platform/internal/models"
)

// ContestFilter narrows ListContests. Empty fields are ignored; the rest are ANDed.
type ContestFilter struct {
	CreatorEmail string
	Status       models.ContestStatus
	Type         string
	// Search is a case-insensitive substring match against the contest type.
	Search string
	// EndedBefore selects contests still open whose deadline is at or before
	// the given time.
	EndedBefore *time.Time
	// HasWinner selects contests with a declared winner.
	HasWinner bool
}

// SettlementResult reports what RecordSettlement changed.
type SettlementResult struct {
	PaymentInserted bool
	Enrolled        bool
}

type ContestStore interface {
	InsertContest(ctx context.Context, c *models.Contest) error
	GetContest(ctx context.Context, id string) (*models.Contest, error)
	ListContests(ctx context.Context, f ContestFilter) ([]models.Contest, error)
	// PopularContests orders by participants count descending; limit 0 means no limit.
	PopularContests(ctx context.Context, limit int, status models.ContestStatus) ([]models.Contest, error)
	UpdateContestFields(ctx context.Context, id string, f models.ContestFields) error
	SetContestStatus(ctx context.Context, id string, status models.ContestStatus) error
	// SetContestEnded updates the contest flag and mirrors it onto every
	// submission of the contest. It returns the number of submissions touched.
	SetContestEnded(ctx context.Context, id string, ended bool) (int, error)
	DeleteContest(ctx context.Context, id string) error
}

type UserStore interface {
	// InsertUser fails with apperr.ErrConflict when the email exists.
	InsertUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateProfile(ctx context.Context, email, displayName, photoURL, bio string) error
	SetRole(ctx context.Context, email string, role models.Role) error
}

type PaymentStore interface {
	// RecordSettlement inserts p unless its TransactionID exists, then appends
	// participant to the contest unless the email is already enrolled.
	// Payment is written before enrollment.
	RecordSettlement(ctx context.Context, p *models.Payment, participant models.Participant) (SettlementResult, error)
	GetPaymentByTransaction(ctx context.Context, transactionID string) (*models.Payment, error)
	HasPayment(ctx context.Context, contestID, email string) (bool, error)
	// PaidContests joins the email's payments to their contests, one row per contest.
	PaidContests(ctx context.Context, email string) ([]models.Contest, error)
}

type SubmissionStore interface {
	// InsertSubmission fails with apperr.ErrConflict for a second
	// submission from the same participant to the same contest, and with
	// apperr.ErrNotFound when the contest is gone. s.ContestIsEnded is set
	// from the contest in the same write.
	InsertSubmission(ctx context.Context, s *models.Submission) error
	ListSubmissions(ctx context.Context, contestID string) ([]models.Submission, error)
}

type WinnerStore interface {
	// DeclareWinner sets the contest winner only if none is set, and appends
	// rec. It fails with apperr.ErrConflict when a winner already exists.
	DeclareWinner(ctx context.Context, contestID string, w models.WinnerInfo, rec *models.Winner) error
	// InsertWinnerRecord appends rec unless a record for its contest exists.
	// It reports whether a row was written.
	InsertWinnerRecord(ctx context.Context, rec *models.Winner) (bool, error)
	WinnersByEmail(ctx context.Context, email string) ([]models.Winner, error)
	// WinCounts maps winner email to the number of audit rows.
	WinCounts(ctx context.Context) (map[string]int, error)
}

// Store is the full document-store capability over the five collections.
type Store interface {
	ContestStore
	UserStore
	PaymentStore
	SubmissionStore
	WinnerStore
	Close() error
}
