package model

import (
	"time"

	"gorm.io/datatypes"
)

// Key of the internal_tokens row holding the recompute shared secret.
const RecomputeTokenKey = "recompute_stats_token"

// 2.1 Raw input
//
// GameResult rows are written by the ingestion pipeline, one per
// (game, player). This service only ever reads them.

type GameResult struct {
	ID                int64 `gorm:"primaryKey;autoIncrement"`
	GameID            string
	StartedAt         *time.Time
	EndedAt           *time.Time
	NavigationCount   int
	PlayerColor       string
	Username          *string
	RawUsername       *string
	SelectedCharacter string
	VictoryPoints     int
	PlayerCount       int
}

func (GameResult) TableName() string {
	return "game_results_verified"
}

// 2.2 Derived match tables
//
// Everything below game_results_verified is disposable: a recompute run
// deletes and regenerates it in full.

type VerifiedMatch struct {
	ID                  int64  `gorm:"primaryKey;autoIncrement"`
	GameID              string `gorm:"uniqueIndex;not null"`
	StartedAt           *time.Time
	EndedAt             *time.Time
	NavigationCount     int
	PlayerCountExpected int
	PlayerCountActual   int
	IsValid             bool
	InvalidReason       *string
	StatsVersion        int
	ProcessedAt         time.Time
}

type VerifiedMatchPlayer struct {
	ID                int64  `gorm:"primaryKey;autoIncrement"`
	GameID            string `gorm:"index"`
	PlayerColor       string
	UsernameKey       string `gorm:"index"`
	Username          string
	RawUsername       *string
	SelectedCharacter string
	VictoryPoints     int
	Placement         int
}

// 2.3 Ratings

type PlayerRatingEvent struct {
	ID            int64  `gorm:"primaryKey;autoIncrement"`
	GameID        string `gorm:"index"`
	EndedAt       *time.Time
	UsernameKey   string `gorm:"index"`
	Username      string
	Placement     int
	MuBefore      float64
	SigmaBefore   float64
	MuAfter       float64
	SigmaAfter    float64
	RatingVersion int
}

type PlayerRating struct {
	UsernameKey   string `gorm:"primaryKey"`
	Username      string
	Mu            float64
	Sigma         float64
	GamesPlayed   int
	LastGameID    *string
	LastGameAt    *time.Time
	RatingVersion int
	UpdatedAt     time.Time
}

// 2.4 Operational

type InternalToken struct {
	Key   string `gorm:"primaryKey"`
	Value string `gorm:"not null"`
}

func (InternalToken) TableName() string {
	return "internal_tokens"
}

type Admin struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	Username     string `gorm:"unique;not null"`
	PasswordHash string `gorm:"not null"`
	DisplayName  string
	Status       string `gorm:"default:active;not null"` // active/disabled
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RecomputeRun is the append-only audit trail of recompute invocations.
// Unlike the derived tables it survives subsequent runs.
type RecomputeRun struct {
	ID               int64 `gorm:"primaryKey;autoIncrement"`
	MinTurns         int
	MinVictoryPoints int
	StatsVersion     int
	RatingVersion    int
	SummaryJSON      datatypes.JSON `gorm:"type:jsonb"`
	DurationMS       int64
	CreatedAt        time.Time
}
