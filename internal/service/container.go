package service

import (
	"context"
	"time"

	"arc-stats-service/internal/config"
	"arc-stats-service/internal/service/admin"
	"arc-stats-service/internal/service/leaderboard"
	"arc-stats-service/internal/service/stats"
	"arc-stats-service/pkg/lock"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	Admin       *admin.Service
	Stats       *stats.Service
	Leaderboard *leaderboard.Service
}

func NewContainer(db *gorm.DB, rdb *redis.Client) *Container {
	ttl := 300
	if config.GlobalConfig != nil && config.GlobalConfig.Recompute.LockTTLSeconds > 0 {
		ttl = config.GlobalConfig.Recompute.LockTTLSeconds
	}
	runLock := lock.New(rdb, "arc:stats:recompute", time.Duration(ttl)*time.Second)

	return &Container{
		Admin:       admin.NewService(db),
		Stats:       stats.NewService(db, runLock),
		Leaderboard: leaderboard.NewService(db),
	}
}

func (c *Container) Start(ctx context.Context) error {
	return c.Admin.EnsureDefaultAdmin(ctx)
}
