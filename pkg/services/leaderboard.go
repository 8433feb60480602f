package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/moham7dreza/structured-docs-engine/pkg/logging"
	"github.com/moham7dreza/structured-docs-engine/pkg/models"
	"github.com/moham7dreza/structured-docs-engine/pkg/repositories"
)

// RankEntries ranks users with a positive score by descending score, ties
// broken by ascending user id. previous holds the ranks of the last generation.
func RankEntries(users []models.RankedUser, previous map[int64]int) []models.LeaderboardEntry {
	ranked := make([]models.RankedUser, 0, len(users))
	for _, u := range users {
		if u.TotalScore.IsPositive() {
			ranked = append(ranked, u)
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if c := ranked[i].TotalScore.Cmp(ranked[j].TotalScore); c != 0 {
			return c > 0
		}
		return ranked[i].UserID < ranked[j].UserID
	})

	entries := make([]models.LeaderboardEntry, len(ranked))
	for i, u := range ranked {
		grade := u.Grade
		if grade == "" {
			grade = GradeFor(u.TotalScore)
		}
		entry := models.LeaderboardEntry{
			UserID:     u.UserID,
			UserName:   u.UserName,
			Rank:       i + 1,
			TotalScore: u.TotalScore,
			Grade:      grade,
		}
		if prev, ok := previous[u.UserID]; ok {
			entry.PreviousRank = &prev
			entry.RankChange = prev - entry.Rank
		}
		entries[i] = entry
	}
	return entries
}

// LeaderboardService maintains the ranked snapshot of user scores.
type LeaderboardService interface {
	// RecomputeLeaderboard replaces the current generation. Readers see either
	// the old or the new generation in full.
	RecomputeLeaderboard(ctx context.Context) (*models.LeaderboardSnapshot, error)

	// GetLeaderboard returns up to limit entries of the current generation.
	GetLeaderboard(ctx context.Context, limit int) (*models.LeaderboardSnapshot, error)
}

type leaderboardService struct {
	repo         repositories.LeaderboardRepository
	mirror       LeaderboardMirror
	defaultLimit int
	logger       *zap.Logger
	now          func() time.Time
}

// NewLeaderboardService creates a new leaderboard service. mirror may be nil.
func NewLeaderboardService(
	repo repositories.LeaderboardRepository,
	mirror LeaderboardMirror,
	defaultLimit int,
	logger *zap.Logger,
) LeaderboardService {
	return &leaderboardService{
		repo:         repo,
		mirror:       mirror,
		defaultLimit: defaultLimit,
		logger:       logger.Named("leaderboard"),
		now:          time.Now,
	}
}

var _ LeaderboardService = (*leaderboardService)(nil)

func (s *leaderboardService) RecomputeLeaderboard(ctx context.Context) (*models.LeaderboardSnapshot, error) {
	snapshot, err := s.repo.Replace(ctx, s.now().UTC(), RankEntries)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Leaderboard recomputed",
		zap.Int64("snapshot_id", snapshot.ID),
		zap.Int("entries", len(snapshot.Entries)))

	if s.mirror != nil {
		if err := s.mirror.Publish(ctx, snapshot); err != nil {
			s.logger.Warn("Failed to mirror leaderboard",
				zap.Int64("snapshot_id", snapshot.ID),
				logging.Error(err))
			// An older mirrored generation must not outlive the database.
			if err := s.mirror.Invalidate(ctx); err != nil {
				s.logger.Error("Failed to invalidate leaderboard mirror", logging.Error(err))
			}
		}
	}
	return snapshot, nil
}

func (s *leaderboardService) GetLeaderboard(ctx context.Context, limit int) (*models.LeaderboardSnapshot, error) {
	if limit <= 0 {
		limit = s.defaultLimit
	}

	if s.mirror != nil {
		snapshot, err := s.mirror.Current(ctx, limit)
		if err == nil {
			return snapshot, nil
		}
		if !errors.Is(err, ErrMirrorMiss) {
			s.logger.Warn("Leaderboard mirror read failed, using database",
				logging.Error(err))
		}
	}

	return s.repo.Current(ctx, limit)
}
