package services

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"contest-platform/internal/cache"
	"contest-platform/internal/models"
	"contest-platform/internal/store"
)

// StatsService computes the aggregate views: win percentage, leaderboard and
// a user's paid contests.
type StatsService struct {
	store  store.Store
	cache  cache.Leaderboard
	logger zerolog.Logger
}

// NewStatsService builds the service; lb may be nil.
func NewStatsService(st store.Store, lb cache.Leaderboard, logger zerolog.Logger) *StatsService {
	return &StatsService{
		store:  st,
		cache:  lb,
		logger: logger.With().Str("component", "stats").Logger(),
	}
}

// WinPercentage counts the distinct contests email paid for and how many of
// those it won.
func (s *StatsService) WinPercentage(ctx context.Context, email string) (models.WinStats, error) {
	email = normalizeEmail(email)
	contests, err := s.store.PaidContests(ctx, email)
	if err != nil {
		return models.WinStats{}, err
	}

	stats := models.WinStats{ParticipatedCount: len(contests)}
	for _, c := range contests {
		if strings.EqualFold(c.Winner.Email, email) {
			stats.WonCount++
		}
	}
	if stats.ParticipatedCount > 0 {
		pct := float64(stats.WonCount) / float64(stats.ParticipatedCount) * 100
		stats.WinPercentage = math.Round(pct*100) / 100
	}
	return stats, nil
}

// Leaderboard lists every user with their win count, most wins first and
// ties by email.
func (s *StatsService) Leaderboard(ctx context.Context) ([]models.LeaderboardEntry, error) {
	if s.cache != nil {
		if entries, ok := s.cache.Get(ctx); ok {
			return entries, nil
		}
	}

	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.store.WinCounts(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]models.LeaderboardEntry, 0, len(users))
	for _, u := range users {
		entries = append(entries, models.LeaderboardEntry{
			UserID:      u.Email,
			DisplayName: u.DisplayName,
			Email:       u.Email,
			PhotoURL:    u.PhotoURL,
			TotalWins:   counts[strings.ToLower(u.Email)],
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].TotalWins != entries[j].TotalWins {
			return entries[i].TotalWins > entries[j].TotalWins
		}
		return entries[i].Email < entries[j].Email
	})

	if s.cache != nil {
		s.cache.Set(ctx, entries)
	}
	return entries, nil
}

// MyPaidContests returns the approved contests email paid for, earliest
// deadline first.
func (s *StatsService) MyPaidContests(ctx context.Context, email string) ([]models.Contest, error) {
	contests, err := s.store.PaidContests(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}

	out := make([]models.Contest, 0, len(contests))
	for _, c := range contests {
		if c.Status == models.StatusApproved {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Deadline.Before(out[j].Deadline)
	})
	return out, nil
}

// WinHistory returns email's winner records, newest first.
func (s *StatsService) WinHistory(ctx context.Context, email string) ([]models.Winner, error) {
	return s.store.WinnersByEmail(ctx, normalizeEmail(email))
}
