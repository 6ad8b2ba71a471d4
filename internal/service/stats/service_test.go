package stats_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"arc-stats-service/internal/model"
	"arc-stats-service/internal/service/stats"
	appErr "arc-stats-service/pkg/errors"
	"arc-stats-service/pkg/lock"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testToken = "super-secret"

func newService(t *testing.T) (*gorm.DB, *stats.Service) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&model.GameResult{},
		&model.VerifiedMatch{},
		&model.VerifiedMatchPlayer{},
		&model.PlayerRatingEvent{},
		&model.PlayerRating{},
		&model.InternalToken{},
		&model.RecomputeRun{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	if err := db.Create(&model.InternalToken{Key: model.RecomputeTokenKey, Value: testToken}).Error; err != nil {
		t.Fatalf("failed to seed token: %v", err)
	}

	runLock := lock.New(nil, "test:recompute", time.Minute)
	return db, stats.NewService(db, runLock)
}

func defaultParams() stats.RecomputeParams {
	return stats.RecomputeParams{
		MinTurns:         stats.DefaultMinTurns,
		MinVictoryPoints: stats.DefaultMinVictoryPoints,
		StatsVersion:     stats.DefaultStatsVersion,
		RatingVersion:    stats.DefaultRatingVersion,
	}
}

func seedHistory(t *testing.T, db *gorm.DB) {
	t.Helper()

	ended1 := timePtr(baseTime)
	ended2 := timePtr(baseTime.Add(time.Hour))

	// Rows deliberately inserted out of placement and chronological order;
	// only timestamps and ids may matter.
	rows := []model.GameResult{
		resultRow("G2", "red", "Dave", 20, 2, ended2),
		resultRow("G1", "red", "Alice", 15, 3, ended1),
		resultRow("G2", "blue", "Erin", 20, 2, ended2),
		resultRow("G1", "blue", "Bob", 22, 3, ended1),
		resultRow("G1", "green", "Cara", 18, 3, ended1),
	}
	if err := db.Create(&rows).Error; err != nil {
		t.Fatalf("failed to seed raw results: %v", err)
	}
}

func TestRecomputeRejectsBadToken(t *testing.T) {
	ctx := context.Background()
	db, svc := newService(t)
	seedHistory(t, db)

	// Pre-existing derived state must survive a rejected call untouched.
	if err := db.Create(&model.VerifiedMatch{GameID: "stale", StatsVersion: 1, ProcessedAt: baseTime}).Error; err != nil {
		t.Fatalf("failed to seed stale match: %v", err)
	}

	for _, token := range []string{"", "wrong-token"} {
		if _, err := svc.Recompute(ctx, token, defaultParams()); err != appErr.ErrForbidden {
			t.Fatalf("token %q: expected ErrForbidden, got %v", token, err)
		}
	}

	var count int64
	if err := db.Model(&model.VerifiedMatch{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("derived tables changed on auth failure, match count=%d", count)
	}
}

func TestRecomputeRebuildsDerivedState(t *testing.T) {
	ctx := context.Background()
	db, svc := newService(t)
	seedHistory(t, db)

	summary, err := svc.Recompute(ctx, testToken, defaultParams())
	if err != nil {
		t.Fatalf("recompute failed: %v", err)
	}

	if summary.GamesTotal != 2 || summary.GamesValid != 1 {
		t.Fatalf("unexpected game counts: %+v", summary)
	}
	if summary.PlayersTotal != 5 || summary.PlayersValid != 3 || summary.PlayersRated != 3 {
		t.Fatalf("unexpected player counts: %+v", summary)
	}

	var matches []model.VerifiedMatch
	if err := db.Order("game_id asc").Find(&matches).Error; err != nil {
		t.Fatalf("load matches: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 match rows, got %d", len(matches))
	}
	if !matches[0].IsValid {
		t.Fatalf("G1 should be valid: %+v", matches[0])
	}
	if matches[1].IsValid || matches[1].InvalidReason == nil {
		t.Fatalf("G2 should be invalid with a reason: %+v", matches[1])
	}
	if matches[1].PlayerCountActual != 2 {
		t.Fatalf("invalid match should still report actual players: %+v", matches[1])
	}

	var playerCount int64
	db.Model(&model.VerifiedMatchPlayer{}).Count(&playerCount)
	if playerCount != 3 {
		t.Fatalf("expected 3 match player rows (valid match only), got %d", playerCount)
	}

	var events []model.PlayerRatingEvent
	if err := db.Order("id asc").Find(&events).Error; err != nil {
		t.Fatalf("load events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 rating events, got %d", len(events))
	}
	if events[0].UsernameKey != "bob" || events[0].Placement != 1 {
		t.Fatalf("expected bob first with placement 1, got %+v", events[0])
	}

	var ratings []model.PlayerRating
	if err := db.Order("username_key asc").Find(&ratings).Error; err != nil {
		t.Fatalf("load ratings: %v", err)
	}
	if len(ratings) != 3 {
		t.Fatalf("expected 3 rating rows, got %d", len(ratings))
	}
	for _, r := range ratings {
		if r.GamesPlayed != 1 || r.LastGameID == nil || *r.LastGameID != "G1" {
			t.Fatalf("unexpected rating row: %+v", r)
		}
	}

	var runs int64
	db.Model(&model.RecomputeRun{}).Count(&runs)
	if runs != 1 {
		t.Fatalf("expected 1 audit row, got %d", runs)
	}
}

func TestRecomputeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, svc := newService(t)
	seedHistory(t, db)

	if _, err := svc.Recompute(ctx, testToken, defaultParams()); err != nil {
		t.Fatalf("first recompute failed: %v", err)
	}
	var firstEvents []model.PlayerRatingEvent
	if err := db.Order("id asc").Find(&firstEvents).Error; err != nil {
		t.Fatalf("load events: %v", err)
	}

	if _, err := svc.Recompute(ctx, testToken, defaultParams()); err != nil {
		t.Fatalf("second recompute failed: %v", err)
	}
	var secondEvents []model.PlayerRatingEvent
	if err := db.Order("id asc").Find(&secondEvents).Error; err != nil {
		t.Fatalf("load events: %v", err)
	}

	if len(firstEvents) != len(secondEvents) {
		t.Fatalf("event counts differ: %d vs %d", len(firstEvents), len(secondEvents))
	}
	for i := range firstEvents {
		a, b := firstEvents[i], secondEvents[i]
		if a.GameID != b.GameID || a.UsernameKey != b.UsernameKey || a.Placement != b.Placement ||
			a.MuBefore != b.MuBefore || a.SigmaBefore != b.SigmaBefore ||
			a.MuAfter != b.MuAfter || a.SigmaAfter != b.SigmaAfter {
			t.Fatalf("event %d differs between runs:\n%+v\n%+v", i, a, b)
		}
	}

	var matchCount int64
	db.Model(&model.VerifiedMatch{}).Count(&matchCount)
	if matchCount != 2 {
		t.Fatalf("expected stable match count after rerun, got %d", matchCount)
	}
}

func TestRecomputeHonorsMinTurns(t *testing.T) {
	ctx := context.Background()
	db, svc := newService(t)

	ended := timePtr(baseTime)
	short := []model.GameResult{
		resultRow("SHORT", "red", "Alice", 20, 2, ended),
		resultRow("SHORT", "blue", "Bob", 15, 2, ended),
	}
	for i := range short {
		short[i].NavigationCount = 5
	}
	if err := db.Create(&short).Error; err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	summary, err := svc.Recompute(ctx, testToken, defaultParams())
	if err != nil {
		t.Fatalf("recompute failed: %v", err)
	}
	if summary.GamesTotal != 0 {
		t.Fatalf("games below the turn threshold must be ignored, got %d", summary.GamesTotal)
	}
}
