package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"contest-platform/internal/apperr"
	"contest-platform/internal/auth"
	"contest-platform/internal/cache"
	"contest-platform/internal/metrics"
	"contest-platform/internal/models"
	"contest-platform/internal/store"
)

// SubmissionService accepts paid submissions and declares contest winners.
type SubmissionService struct {
	store   store.Store
	roles   auth.RoleStore
	cache   cache.Leaderboard
	metrics *metrics.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

// NewSubmissionService builds the service; lb may be nil.
func NewSubmissionService(st store.Store, roles auth.RoleStore, lb cache.Leaderboard, m *metrics.Metrics, logger zerolog.Logger) *SubmissionService {
	return &SubmissionService{
		store:   st,
		roles:   roles,
		cache:   lb,
		metrics: m,
		logger:  logger.With().Str("component", "submissions").Logger(),
		now:     time.Now,
	}
}

type SubmitRequest struct {
	ContestID string `json:"contestId" binding:"required"`
	Content   string `json:"content" binding:"required"`
}

// Submit stores the principal's entry. It fails with ErrPaymentRequired
// without a settled payment and with ErrConflict on a second entry.
func (s *SubmissionService) Submit(ctx context.Context, principal string, req SubmitRequest) (*models.Submission, error) {
	email := normalizeEmail(principal)
	contestID, err := parseID(req.ContestID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("%w: content is required", apperr.ErrValidation)
	}

	if _, err := s.store.GetContest(ctx, contestID); err != nil {
		return nil, err
	}

	paid, err := s.store.HasPayment(ctx, contestID, email)
	if err != nil {
		return nil, err
	}
	if !paid {
		s.metrics.IncSubmission("payment_required")
		return nil, fmt.Errorf("%w: no settled payment for contest %s", apperr.ErrPaymentRequired, contestID)
	}

	sub := &models.Submission{
		ID:               uuid.NewString(),
		ContestID:        contestID,
		ParticipantEmail: email,
		Content:          req.Content,
		IsPaid:           true,
		SubmittedAt:      s.now().UTC(),
	}
	// The store fills ContestIsEnded from the contest row it inserts against.
	if err := s.store.InsertSubmission(ctx, sub); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			s.metrics.IncSubmission("duplicate")
		}
		return nil, err
	}

	s.metrics.IncSubmission("accepted")
	s.logger.Info().Str("contestId", contestID).Str("email", email).Msg("Submission accepted")
	return sub, nil
}

// Submissions lists a contest's entries for its creator or an admin.
func (s *SubmissionService) Submissions(ctx context.Context, principal, contestID string) ([]models.Submission, error) {
	principal = normalizeEmail(principal)
	role, err := auth.RequireRole(ctx, s.roles, principal, models.RoleCreator, models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	contestID, err = parseID(contestID)
	if err != nil {
		return nil, err
	}
	contest, err := s.store.GetContest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if role != models.RoleAdmin && !strings.EqualFold(contest.CreatorEmail, principal) {
		return nil, fmt.Errorf("%w: contest %s belongs to another creator", apperr.ErrForbidden, contestID)
	}
	return s.store.ListSubmissions(ctx, contestID)
}

type WinnerRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required,email"`
}

// DeclareWinner sets the contest's only winner and appends the audit row in
// one store operation. The row snapshots the contest name and prize.
func (s *SubmissionService) DeclareWinner(ctx context.Context, principal, contestID string, w WinnerRequest) (*models.Winner, error) {
	principal = normalizeEmail(principal)
	if _, err := auth.RequireRole(ctx, s.roles, principal, models.RoleCreator); err != nil {
		return nil, err
	}
	contestID, err := parseID(contestID)
	if err != nil {
		return nil, err
	}

	contest, err := s.store.GetContest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(contest.CreatorEmail, principal) {
		return nil, fmt.Errorf("%w: contest %s belongs to another creator", apperr.ErrForbidden, contestID)
	}
	if contest.Winner.Declared() {
		return nil, fmt.Errorf("%w: winner already declared", apperr.ErrConflict)
	}

	email := normalizeEmail(w.Email)
	if !contest.Participants.Contains(email) {
		return nil, fmt.Errorf("%w: %s is not a participant of contest %s", apperr.ErrValidation, email, contestID)
	}

	// Photo lookup is best-effort.
	var photo string
	if u, err := s.store.GetUser(ctx, email); err == nil {
		photo = u.PhotoURL
	} else if !errors.Is(err, apperr.ErrNotFound) {
		s.logger.Warn().Err(err).Str("email", email).Msg("Winner profile lookup failed")
	}

	info := models.WinnerInfo{Name: w.Name, Email: email, PhotoURL: photo}
	rec := &models.Winner{
		ID:          uuid.NewString(),
		Name:        w.Name,
		Email:       email,
		PhotoURL:    photo,
		ContestID:   contestID,
		ContestName: contest.Name,
		PrizeMoney:  contest.PrizeMoney,
		DeclaredAt:  s.now().UTC(),
	}
	if err := s.store.DeclareWinner(ctx, contestID, info, rec); err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
	s.metrics.IncWinners()
	s.logger.Info().Str("contestId", contestID).Str("winner", email).Msg("Winner declared")
	return rec, nil
}

// ReconcileWinnerRecords appends the audit row for every contest whose
// winner is set but has no row yet. It returns the number of rows written.
func (s *SubmissionService) ReconcileWinnerRecords(ctx context.Context) (int, error) {
	contests, err := s.store.ListContests(ctx, store.ContestFilter{HasWinner: true})
	if err != nil {
		return 0, err
	}

	written := 0
	for _, c := range contests {
		ok, err := s.store.InsertWinnerRecord(ctx, &models.Winner{
			ID:          uuid.NewString(),
			Name:        c.Winner.Name,
			Email:       c.Winner.Email,
			PhotoURL:    c.Winner.PhotoURL,
			ContestID:   c.ID,
			ContestName: c.Name,
			PrizeMoney:  c.PrizeMoney,
			DeclaredAt:  s.now().UTC(),
		})
		if err != nil {
			return written, fmt.Errorf("contest %s: %w", c.ID, err)
		}
		if ok {
			written++
			s.logger.Warn().Str("contestId", c.ID).Msg("Restored missing winner record")
		}
	}

	if written > 0 && s.cache != nil {
		s.cache.Invalidate(ctx)
	}
	return written, nil
}
