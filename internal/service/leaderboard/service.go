package leaderboard

import (
	"context"
	"errors"

	"arc-stats-service/internal/model"
	appErr "arc-stats-service/pkg/errors"

	"gorm.io/gorm"
)

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

type RatingsPage struct {
	Items []model.PlayerRating `json:"items"`
	Total int64                `json:"total"`
}

func (s *Service) ListRatings(ctx context.Context, page, size int) (*RatingsPage, error) {
	var result RatingsPage
	if err := s.db.WithContext(ctx).Model(&model.PlayerRating{}).Count(&result.Total).Error; err != nil {
		return nil, err
	}
	err := s.db.WithContext(ctx).
		Order("mu desc, username_key asc").
		Offset((page - 1) * size).
		Limit(size).
		Find(&result.Items).Error
	if err != nil {
		return nil, err
	}
	return &result, nil
}

type MatchWithPlayers struct {
	model.VerifiedMatch
	Players []model.VerifiedMatchPlayer `json:"players"`
}

type MatchesPage struct {
	Items []MatchWithPlayers `json:"items"`
	Total int64              `json:"total"`
}

// ListMatches returns the newest matches first, invalid ones included so an
// operator can see why a game was excluded.
func (s *Service) ListMatches(ctx context.Context, page, size int) (*MatchesPage, error) {
	var result MatchesPage
	if err := s.db.WithContext(ctx).Model(&model.VerifiedMatch{}).Count(&result.Total).Error; err != nil {
		return nil, err
	}

	var matches []model.VerifiedMatch
	if err := s.db.WithContext(ctx).
		Order("ended_at desc nulls last, game_id asc").
		Offset((page - 1) * size).
		Limit(size).
		Find(&matches).Error; err != nil {
		return nil, err
	}

	gameIDs := make([]string, 0, len(matches))
	for _, m := range matches {
		gameIDs = append(gameIDs, m.GameID)
	}

	playersByGame := make(map[string][]model.VerifiedMatchPlayer)
	if len(gameIDs) > 0 {
		var players []model.VerifiedMatchPlayer
		if err := s.db.WithContext(ctx).
			Where("game_id IN ?", gameIDs).
			Order("game_id asc, placement asc").
			Find(&players).Error; err != nil {
			return nil, err
		}
		for _, p := range players {
			playersByGame[p.GameID] = append(playersByGame[p.GameID], p)
		}
	}

	result.Items = make([]MatchWithPlayers, 0, len(matches))
	for _, m := range matches {
		result.Items = append(result.Items, MatchWithPlayers{
			VerifiedMatch: m,
			Players:       playersByGame[m.GameID],
		})
	}
	return &result, nil
}

type PlayerHistory struct {
	Rating model.PlayerRating        `json:"rating"`
	Events []model.PlayerRatingEvent `json:"events"`
}

func (s *Service) PlayerHistory(ctx context.Context, usernameKey string) (*PlayerHistory, error) {
	var history PlayerHistory
	err := s.db.WithContext(ctx).
		Where("username_key = ?", usernameKey).
		First(&history.Rating).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErr.ErrPlayerNotFound
		}
		return nil, err
	}

	if err := s.db.WithContext(ctx).
		Where("username_key = ?", usernameKey).
		Order("ended_at asc, id asc").
		Find(&history.Events).Error; err != nil {
		return nil, err
	}
	return &history, nil
}
