package data

import (
	"context"

	"github.com/888wing/sixarms-landing/internal/biz/model"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type checkRepo struct {
	db  pinger
	rdb *redis.Client
	l   *zap.Logger
}

// CheckRepo 依赖组件的就绪检查
type CheckRepo interface {
	Ready(context.Context, model.HealthCheckReq) (model.HealthCheckReply, error)
}

func NewCheckRepo(data *Data, l *zap.Logger) CheckRepo {
	return &checkRepo{
		db:  data.db,
		rdb: data.rdb,
		l:   l,
	}
}

// Ready 依次检查 PostgreSQL 与 Redis，返回第一个失败的组件
func (c *checkRepo) Ready(ctx context.Context, _ model.HealthCheckReq) (model.HealthCheckReply, error) {
	if err := c.db.Ping(ctx); err != nil {
		c.l.Warn("Database not ready", zap.Error(err))
		return model.HealthCheckReply{
			Status: model.StatusUnhealthy,
			Details: map[string]string{
				"Components": "PostgreSQL",
				"Message":    err.Error(),
			},
		}, err
	}
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		c.l.Warn("Redis not ready", zap.Error(err))
		return model.HealthCheckReply{
			Status: model.StatusUnhealthy,
			Details: map[string]string{
				"Components": "Redis",
				"Message":    err.Error(),
			},
		}, err
	}
	return model.HealthCheckReply{Status: model.StatusReady}, nil
}
