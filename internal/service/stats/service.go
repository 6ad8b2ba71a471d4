package stats

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"arc-stats-service/internal/model"
	appErr "arc-stats-service/pkg/errors"
	"arc-stats-service/pkg/lock"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DefaultMinTurns         = 10
	DefaultMinVictoryPoints = 10
	DefaultStatsVersion     = 1
	DefaultRatingVersion    = 1
)

type Service struct {
	db      *gorm.DB
	runLock *lock.RunLock
}

func NewService(db *gorm.DB, runLock *lock.RunLock) *Service {
	return &Service{db: db, runLock: runLock}
}

type RecomputeParams struct {
	MinTurns         int
	MinVictoryPoints int
	StatsVersion     int
	RatingVersion    int
}

type Summary struct {
	StatsVersion     int       `json:"statsVersion"`
	RatingVersion    int       `json:"ratingVersion"`
	MinTurns         int       `json:"minTurns"`
	MinVictoryPoints int       `json:"minVictoryPoints"`
	GamesTotal       int       `json:"gamesTotal"`
	GamesValid       int       `json:"gamesValid"`
	PlayersTotal     int       `json:"playersTotal"`
	PlayersValid     int       `json:"playersValid"`
	PlayersRated     int       `json:"playersRated"`
	Timestamp        time.Time `json:"timestamp"`
}

// Recompute rebuilds every derived table from the raw results. The whole
// rebuild runs inside one transaction, so a failure anywhere leaves the
// previous snapshot untouched and the operation can simply be re-invoked.
func (s *Service) Recompute(ctx context.Context, token string, params RecomputeParams) (*Summary, error) {
	if err := s.checkToken(ctx, token); err != nil {
		return nil, err
	}

	if err := s.runLock.Acquire(ctx); err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, appErr.ErrRecomputeInProgress
		}
		return nil, err
	}
	defer s.runLock.Release(ctx)

	started := time.Now()

	var rows []model.GameResult
	if err := s.db.WithContext(ctx).
		Where("navigation_count > ?", params.MinTurns).
		Order("ended_at asc nulls last, game_id asc, victory_points desc").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	matches := Assemble(rows, params.MinVictoryPoints)
	replay := Replay(matches, params.RatingVersion, started)

	summary := &Summary{
		StatsVersion:     params.StatsVersion,
		RatingVersion:    params.RatingVersion,
		MinTurns:         params.MinTurns,
		MinVictoryPoints: params.MinVictoryPoints,
		GamesTotal:       len(matches),
		PlayersRated:     len(replay.Ratings),
		Timestamp:        started.UTC(),
	}
	for _, m := range matches {
		summary.PlayersTotal += m.PlayerCountActual
		if m.IsValid {
			summary.GamesValid++
			summary.PlayersValid += len(m.Participants)
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wipe := []interface{}{
			&model.PlayerRatingEvent{},
			&model.PlayerRating{},
			&model.VerifiedMatchPlayer{},
			&model.VerifiedMatch{},
		}
		for _, m := range wipe {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(m).Error; err != nil {
				return err
			}
		}

		for _, m := range matches {
			row := model.VerifiedMatch{
				GameID:              m.GameID,
				StartedAt:           m.StartedAt,
				EndedAt:             m.EndedAt,
				NavigationCount:     m.NavigationCount,
				PlayerCountExpected: m.PlayerCountExpected,
				PlayerCountActual:   m.PlayerCountActual,
				IsValid:             m.IsValid,
				StatsVersion:        params.StatsVersion,
				ProcessedAt:         started,
			}
			if m.InvalidReason != "" {
				reason := m.InvalidReason
				row.InvalidReason = &reason
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}

			if !m.IsValid {
				continue
			}
			for _, p := range m.Players {
				player := model.VerifiedMatchPlayer{
					GameID:            m.GameID,
					PlayerColor:       p.PlayerColor,
					UsernameKey:       p.UsernameKey,
					Username:          p.Username,
					RawUsername:       p.RawUsername,
					SelectedCharacter: p.SelectedCharacter,
					VictoryPoints:     p.VictoryPoints,
					Placement:         p.Placement,
				}
				if err := tx.Create(&player).Error; err != nil {
					return err
				}
			}
		}

		if len(replay.Events) > 0 {
			if err := tx.Create(&replay.Events).Error; err != nil {
				return err
			}
		}
		if len(replay.Ratings) > 0 {
			if err := tx.Create(&replay.Ratings).Error; err != nil {
				return err
			}
		}

		summaryJSON, err := json.Marshal(summary)
		if err != nil {
			return err
		}
		run := model.RecomputeRun{
			MinTurns:         params.MinTurns,
			MinVictoryPoints: params.MinVictoryPoints,
			StatsVersion:     params.StatsVersion,
			RatingVersion:    params.RatingVersion,
			SummaryJSON:      summaryJSON,
			DurationMS:       time.Since(started).Milliseconds(),
			CreatedAt:        started,
		}
		return tx.Create(&run).Error
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("recompute finished",
		zap.Int("gamesTotal", summary.GamesTotal),
		zap.Int("gamesValid", summary.GamesValid),
		zap.Int("playersRated", summary.PlayersRated),
		zap.Duration("took", time.Since(started)),
	)

	return summary, nil
}

// checkToken compares the caller-provided secret against the internal
// tokens table. Any mismatch, including a missing secret row, reads as
// forbidden; derived tables are never touched on that path.
func (s *Service) checkToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return appErr.ErrForbidden
	}

	var row model.InternalToken
	err := s.db.WithContext(ctx).
		Where("key = ?", model.RecomputeTokenKey).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return appErr.ErrForbidden
		}
		return err
	}
	if row.Value == "" || row.Value != token {
		return appErr.ErrForbidden
	}
	return nil
}
