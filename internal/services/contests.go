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
	"contest-platform/internal/models"
	"contest-platform/internal/store"
)

type ContestService struct {
	contests store.ContestStore
	roles    auth.RoleStore
	logger   zerolog.Logger
	now      func() time.Time
}

func NewContestService(contests store.ContestStore, roles auth.RoleStore, logger zerolog.Logger) *ContestService {
	return &ContestService{
		contests: contests,
		roles:    roles,
		logger:   logger.With().Str("component", "contests").Logger(),
		now:      time.Now,
	}
}

func validateFields(f models.ContestFields) error {
	var problems []string
	if strings.TrimSpace(f.Name) == "" {
		problems = append(problems, "name is required")
	}
	if f.Deadline.IsZero() {
		problems = append(problems, "deadline is required")
	}
	if f.EntryFee.IsNegative() {
		problems = append(problems, "entryFee must not be negative")
	}
	if f.PrizeMoney.IsNegative() {
		problems = append(problems, "prizeMoney must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", apperr.ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}

// Create publishes a pending contest owned by principal, who must be a creator.
func (s *ContestService) Create(ctx context.Context, principal string, f models.ContestFields) (*models.Contest, error) {
	creator := normalizeEmail(principal)
	if _, err := auth.RequireRole(ctx, s.roles, creator, models.RoleCreator); err != nil {
		return nil, err
	}
	if err := validateFields(f); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	c := &models.Contest{
		ID:                uuid.NewString(),
		CreatorEmail:      creator,
		Name:              f.Name,
		Description:       f.Description,
		Type:              f.Type,
		Image:             f.Image,
		Instructions:      f.Instructions,
		EntryFee:          f.EntryFee,
		PrizeMoney:        f.PrizeMoney,
		Deadline:          f.Deadline.UTC(),
		Status:            models.StatusPending,
		IsEnded:           !f.Deadline.After(now),
		Participants:      models.Participants{},
		ParticipantsCount: 0,
		CreatedAt:         now,
	}
	if err := s.contests.InsertContest(ctx, c); err != nil {
		return nil, err
	}

	s.logger.Info().Str("contestId", c.ID).Str("creator", creator).Bool("isEnded", c.IsEnded).Msg("Contest created")
	return c, nil
}

func (s *ContestService) Get(ctx context.Context, id string) (*models.Contest, error) {
	id, err := parseID(id)
	if err != nil {
		return nil, err
	}
	return s.contests.GetContest(ctx, id)
}

func (s *ContestService) List(ctx context.Context, f store.ContestFilter) ([]models.Contest, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", apperr.ErrValidation, f.Status)
	}
	f.CreatorEmail = normalizeEmail(f.CreatorEmail)
	return s.contests.ListContests(ctx, f)
}

// Popular returns contests by participant count, most first. limit 0 means
// no limit.
func (s *ContestService) Popular(ctx context.Context, limit int, status models.ContestStatus) ([]models.Contest, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", apperr.ErrValidation)
	}
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", apperr.ErrValidation, status)
	}
	return s.contests.PopularContests(ctx, limit, status)
}

// ownedContest loads the contest and checks principal created it. Admins
// pass the ownership check when adminOK is set.
func (s *ContestService) ownedContest(ctx context.Context, principal, id string, adminOK bool) (*models.Contest, error) {
	allowed := []models.Role{models.RoleCreator}
	if adminOK {
		allowed = append(allowed, models.RoleAdmin)
	}
	role, err := auth.RequireRole(ctx, s.roles, principal, allowed...)
	if err != nil {
		return nil, err
	}

	id, err = parseID(id)
	if err != nil {
		return nil, err
	}
	c, err := s.contests.GetContest(ctx, id)
	if err != nil {
		return nil, err
	}
	if role == models.RoleAdmin && adminOK {
		return c, nil
	}
	if !strings.EqualFold(c.CreatorEmail, principal) {
		return nil, fmt.Errorf("%w: contest %s belongs to another creator", apperr.ErrForbidden, id)
	}
	return c, nil
}

// Update replaces the display fields only; participants, winner, status and
// the ended flag are never touched here.
func (s *ContestService) Update(ctx context.Context, principal, id string, f models.ContestFields) (*models.Contest, error) {
	c, err := s.ownedContest(ctx, normalizeEmail(principal), id, false)
	if err != nil {
		return nil, err
	}
	if err := validateFields(f); err != nil {
		return nil, err
	}
	f.Deadline = f.Deadline.UTC()
	if err := s.contests.UpdateContestFields(ctx, c.ID, f); err != nil {
		return nil, err
	}

	s.logger.Info().Str("contestId", c.ID).Msg("Contest updated")
	return s.contests.GetContest(ctx, c.ID)
}

// Delete removes the contest. Payments, submissions and winner rows that
// reference it are kept.
func (s *ContestService) Delete(ctx context.Context, principal, id string) error {
	c, err := s.ownedContest(ctx, normalizeEmail(principal), id, true)
	if err != nil {
		return err
	}
	if err := s.contests.DeleteContest(ctx, c.ID); err != nil {
		return err
	}

	s.logger.Info().Str("contestId", c.ID).Str("by", principal).Msg("Contest deleted")
	return nil
}

// SetStatus overwrites the status. Any of pending, approved and rejected may
// follow any other; only the admin role is checked.
func (s *ContestService) SetStatus(ctx context.Context, principal, id string, status models.ContestStatus) error {
	if _, err := auth.RequireRole(ctx, s.roles, normalizeEmail(principal), models.RoleAdmin); err != nil {
		return err
	}
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", apperr.ErrValidation, status)
	}
	id, err := parseID(id)
	if err != nil {
		return err
	}
	if err := s.contests.SetContestStatus(ctx, id, status); err != nil {
		return err
	}

	s.logger.Info().Str("contestId", id).Str("status", string(status)).Msg("Contest status changed")
	return nil
}

// SetEnded sets the ended flag and re-syncs the mirror on every submission of
// the contest. It is the only writer of Submission.ContestIsEnded after insert.
func (s *ContestService) SetEnded(ctx context.Context, id string, ended bool) error {
	id, err := parseID(id)
	if err != nil {
		return err
	}
	touched, err := s.contests.SetContestEnded(ctx, id, ended)
	if err != nil {
		return err
	}

	s.logger.Info().Str("contestId", id).Bool("isEnded", ended).Int("submissions", touched).Msg("Contest ended flag set")
	return nil
}

// SetEndedAs is SetEnded on behalf of the contest's creator or an admin.
func (s *ContestService) SetEndedAs(ctx context.Context, principal, id string, ended bool) error {
	c, err := s.ownedContest(ctx, normalizeEmail(principal), id, true)
	if err != nil {
		return err
	}
	return s.SetEnded(ctx, c.ID, ended)
}

// SweepEnded ends every open contest whose deadline has passed. Nothing runs
// it on a timer; the sweep-ended command and the contest.ended topic call it.
func (s *ContestService) SweepEnded(ctx context.Context) (int, error) {
	now := s.now().UTC()
	due, err := s.contests.ListContests(ctx, store.ContestFilter{EndedBefore: &now})
	if err != nil {
		return 0, err
	}

	var (
		ended int
		errs  []error
	)
	for _, c := range due {
		if err := s.SetEnded(ctx, c.ID, true); err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				continue
			}
			errs = append(errs, fmt.Errorf("contest %s: %w", c.ID, err))
			continue
		}
		ended++
	}

	s.logger.Info().Int("due", len(due)).Int("ended", ended).Msg("Deadline sweep finished")
	return ended, errors.Join(errs...)
}
