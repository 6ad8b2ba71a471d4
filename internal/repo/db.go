package repo

import (
	"log"

	"arc-stats-service/internal/config"
	"arc-stats-service/internal/model"
	"arc-stats-service/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func InitDB() {
	dsn := config.GlobalConfig.Database.DSN
	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		logger.Log.Fatal("Failed to connect to database",
			zap.Error(err),
		)
	}

	// game_results_verified is owned by the ingestion pipeline and is
	// deliberately absent here.
	models := []interface{}{
		&model.VerifiedMatch{},
		&model.VerifiedMatchPlayer{},
		&model.PlayerRatingEvent{},
		&model.PlayerRating{},
		&model.InternalToken{},
		&model.Admin{},
		&model.RecomputeRun{},
	}

	if err := DB.AutoMigrate(models...); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
}
