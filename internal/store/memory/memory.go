// Package memory is an in-process Store. A single mutex makes every method
// atomic, which stands in for the transactions and unique constraints of the
// postgres store. It is used by tests and by `serve` with STORE=memory.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"contest-platform/internal/apperr"
	"contest-platform/internal/models"
	"contest-platform/internal/store"
)

type Store struct {
	mu          sync.RWMutex
	contests    map[string]*models.Contest
	contestSeq  []string
	users       map[string]*models.User
	userSeq     []string
	payments    []models.Payment
	submissions []models.Submission
	winners     []models.Winner
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		contests: make(map[string]*models.Contest),
		users:    make(map[string]*models.User),
	}
}

func (s *Store) Close() error { return nil }

func copyContest(c *models.Contest) models.Contest {
	out := *c
	out.Participants = append(models.Participants{}, c.Participants...)
	return out
}

func (s *Store) InsertContest(_ context.Context, c *models.Contest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contests[c.ID]; ok {
		return fmt.Errorf("%w: contest %s exists", apperr.ErrConflict, c.ID)
	}
	cp := copyContest(c)
	s.contests[c.ID] = &cp
	s.contestSeq = append(s.contestSeq, c.ID)
	return nil
}

func (s *Store) GetContest(_ context.Context, id string) (*models.Contest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.contests[id]
	if !ok {
		return nil, fmt.Errorf("%w: contest %s", apperr.ErrNotFound, id)
	}
	out := copyContest(c)
	return &out, nil
}

func matches(c *models.Contest, f store.ContestFilter) bool {
	if f.CreatorEmail != "" && !strings.EqualFold(c.CreatorEmail, f.CreatorEmail) {
		return false
	}
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if f.Type != "" && c.Type != f.Type {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(c.Type), strings.ToLower(f.Search)) {
		return false
	}
	if f.EndedBefore != nil && (c.IsEnded || c.Deadline.After(*f.EndedBefore)) {
		return false
	}
	if f.HasWinner && !c.Winner.Declared() {
		return false
	}
	return true
}

func (s *Store) ListContests(_ context.Context, f store.ContestFilter) ([]models.Contest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Contest{}
	for _, id := range s.contestSeq {
		if c := s.contests[id]; matches(c, f) {
			out = append(out, copyContest(c))
		}
	}
	return out, nil
}

func (s *Store) PopularContests(ctx context.Context, limit int, status models.ContestStatus) ([]models.Contest, error) {
	out, _ := s.ListContests(ctx, store.ContestFilter{Status: status})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ParticipantsCount > out[j].ParticipantsCount
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) mutateContest(id string, fn func(c *models.Contest)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contests[id]
	if !ok {
		return fmt.Errorf("%w: contest %s", apperr.ErrNotFound, id)
	}
	fn(c)
	return nil
}

func (s *Store) UpdateContestFields(_ context.Context, id string, f models.ContestFields) error {
	return s.mutateContest(id, func(c *models.Contest) {
		c.Name = f.Name
		c.Description = f.Description
		c.Type = f.Type
		c.Image = f.Image
		c.Instructions = f.Instructions
		c.EntryFee = f.EntryFee
		c.PrizeMoney = f.PrizeMoney
		c.Deadline = f.Deadline
	})
}

func (s *Store) SetContestStatus(_ context.Context, id string, status models.ContestStatus) error {
	return s.mutateContest(id, func(c *models.Contest) { c.Status = status })
}

func (s *Store) SetContestEnded(_ context.Context, id string, ended bool) (int, error) {
	touched := 0
	err := s.mutateContest(id, func(c *models.Contest) {
		c.IsEnded = ended
		for i := range s.submissions {
			if s.submissions[i].ContestID == id {
				s.submissions[i].ContestIsEnded = ended
				touched++
			}
		}
	})
	return touched, err
}

func (s *Store) DeleteContest(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contests[id]; !ok {
		return fmt.Errorf("%w: contest %s", apperr.ErrNotFound, id)
	}
	delete(s.contests, id)
	for i, cid := range s.contestSeq {
		if cid == id {
			s.contestSeq = append(s.contestSeq[:i], s.contestSeq[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) InsertUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(u.Email)
	if _, ok := s.users[key]; ok {
		return fmt.Errorf("%w: user %s exists", apperr.ErrConflict, u.Email)
	}
	cp := *u
	s.users[key] = &cp
	s.userSeq = append(s.userSeq, key)
	return nil
}

func (s *Store) GetUser(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[strings.ToLower(email)]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", apperr.ErrNotFound, email)
	}
	cp := *u
	return &cp, nil
}

func (s *Store) ListUsers(_ context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.User, 0, len(s.userSeq))
	for _, key := range s.userSeq {
		out = append(out, *s.users[key])
	}
	return out, nil
}

func (s *Store) mutateUser(email string, fn func(u *models.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[strings.ToLower(email)]
	if !ok {
		return fmt.Errorf("%w: user %s", apperr.ErrNotFound, email)
	}
	fn(u)
	return nil
}

func (s *Store) UpdateProfile(_ context.Context, email, displayName, photoURL, bio string) error {
	return s.mutateUser(email, func(u *models.User) {
		u.DisplayName = displayName
		u.PhotoURL = photoURL
		u.Bio = bio
	})
}

func (s *Store) SetRole(_ context.Context, email string, role models.Role) error {
	return s.mutateUser(email, func(u *models.User) { u.Role = role })
}

func (s *Store) RecordSettlement(_ context.Context, p *models.Payment, participant models.Participant) (store.SettlementResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res store.SettlementResult
	c, ok := s.contests[p.ContestID]
	if !ok {
		return res, fmt.Errorf("%w: contest %s", apperr.ErrNotFound, p.ContestID)
	}

	exists := false
	for _, existing := range s.payments {
		if existing.TransactionID == p.TransactionID {
			exists = true
			break
		}
	}
	if !exists {
		s.payments = append(s.payments, *p)
		res.PaymentInserted = true
	}

	if !c.Participants.Contains(participant.Email) {
		c.Participants = append(c.Participants, participant)
		c.ParticipantsCount++
		res.Enrolled = true
	}
	return res, nil
}

func (s *Store) GetPaymentByTransaction(_ context.Context, transactionID string) (*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.payments {
		if p.TransactionID == transactionID {
			cp := p
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: payment %s", apperr.ErrNotFound, transactionID)
}

func (s *Store) HasPayment(_ context.Context, contestID, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.payments {
		if p.ContestID == contestID && strings.EqualFold(p.CustomerEmail, email) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) PaidContests(_ context.Context, email string) ([]models.Contest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	out := []models.Contest{}
	for _, p := range s.payments {
		if !strings.EqualFold(p.CustomerEmail, email) || seen[p.ContestID] {
			continue
		}
		seen[p.ContestID] = true
		// Payments outlive deleted contests; the join drops them.
		if c, ok := s.contests[p.ContestID]; ok {
			out = append(out, copyContest(c))
		}
	}
	return out, nil
}

func (s *Store) InsertSubmission(_ context.Context, sub *models.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contests[sub.ContestID]
	if !ok {
		return fmt.Errorf("%w: contest %s", apperr.ErrNotFound, sub.ContestID)
	}
	for _, existing := range s.submissions {
		if existing.ContestID == sub.ContestID && strings.EqualFold(existing.ParticipantEmail, sub.ParticipantEmail) {
			return fmt.Errorf("%w: submission already exists", apperr.ErrConflict)
		}
	}
	sub.ContestIsEnded = c.IsEnded
	s.submissions = append(s.submissions, *sub)
	return nil
}

func (s *Store) ListSubmissions(_ context.Context, contestID string) ([]models.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Submission{}
	for _, sub := range s.submissions {
		if sub.ContestID == contestID {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *Store) DeclareWinner(_ context.Context, contestID string, w models.WinnerInfo, rec *models.Winner) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contests[contestID]
	if !ok {
		return fmt.Errorf("%w: contest %s", apperr.ErrNotFound, contestID)
	}
	if c.Winner.Declared() {
		return fmt.Errorf("%w: winner already declared", apperr.ErrConflict)
	}
	c.Winner = w
	s.winners = append(s.winners, *rec)
	return nil
}

func (s *Store) InsertWinnerRecord(_ context.Context, rec *models.Winner) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.winners {
		if existing.ContestID == rec.ContestID {
			return false, nil
		}
	}
	s.winners = append(s.winners, *rec)
	return true, nil
}

func (s *Store) WinnersByEmail(_ context.Context, email string) ([]models.Winner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Winner{}
	for i := len(s.winners) - 1; i >= 0; i-- {
		if strings.EqualFold(s.winners[i].Email, email) {
			out = append(out, s.winners[i])
		}
	}
	return out, nil
}

func (s *Store) WinCounts(_ context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, w := range s.winners {
		counts[strings.ToLower(w.Email)]++
	}
	return counts, nil
}
