package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/888wing/sixarms-landing/internal/biz/model"
	conf "github.com/888wing/sixarms-landing/internal/conf/v1"
	"github.com/888wing/sixarms-landing/internal/data/models"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// SubscriptionRepo 订阅激活
type SubscriptionRepo interface {
	// Activate 幂等激活，credits 只在首次激活时发放
	Activate(ctx context.Context, userID string, credits int32) (*model.Subscription, error)
	GetSubscription(ctx context.Context, userID string) (*model.Subscription, error)
}

type subscriptionRepo struct {
	queries models.Querier
	rdb     *redis.Client
	ttl     time.Duration
	l       *zap.Logger
}

func NewSubscriptionRepo(data *Data, cfg *conf.Bootstrap, logger *zap.Logger) SubscriptionRepo {
	return &subscriptionRepo{
		queries: data.queries(),
		rdb:     data.rdb,
		ttl:     time.Duration(cfg.Checkout.ActivationCacheSecs) * time.Second,
		l:       logger,
	}
}

func activeSubscriptionKey(userID string) string {
	return fmt.Sprintf("subscription:active:%s", userID)
}

// cachedSubscription Redis 中缓存的激活结果
type cachedSubscription struct {
	Status      string    `json:"status"`
	Credits     int32     `json:"credits"`
	ActivatedAt time.Time `json:"activated_at"`
}

func (r *subscriptionRepo) Activate(ctx context.Context, userID string, credits int32) (*model.Subscription, error) {
	if sub, ok := r.cached(ctx, userID); ok {
		return sub, nil
	}

	row, err := r.queries.ActivateSubscription(ctx, models.ActivateSubscriptionParams{
		UserID:  userID,
		Credits: credits,
	})
	if err != nil {
		return nil, fmt.Errorf("activate subscription: %w", err)
	}

	sub := &model.Subscription{
		UserID:      row.UserID,
		Status:      row.Status,
		Credits:     row.Credits,
		ActivatedAt: row.ActivatedAt,
		Created:     row.Created,
	}
	r.store(ctx, sub)
	return sub, nil
}

func (r *subscriptionRepo) GetSubscription(ctx context.Context, userID string) (*model.Subscription, error) {
	if sub, ok := r.cached(ctx, userID); ok {
		return sub, nil
	}
	row, err := r.queries.GetSubscription(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return &model.Subscription{
		UserID:      row.UserID,
		Status:      row.Status,
		Credits:     row.Credits,
		ActivatedAt: row.ActivatedAt,
	}, nil
}

// cached 缓存读取失败时退回数据库，不影响激活
func (r *subscriptionRepo) cached(ctx context.Context, userID string) (*model.Subscription, bool) {
	raw, err := r.rdb.Get(ctx, activeSubscriptionKey(userID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.l.Warn("Read activation cache failed", zap.String("user_id", userID), zap.Error(err))
		}
		return nil, false
	}
	var c cachedSubscription
	if err := json.Unmarshal(raw, &c); err != nil {
		r.l.Warn("Corrupt activation cache entry", zap.String("user_id", userID), zap.Error(err))
		return nil, false
	}
	return &model.Subscription{
		UserID:      userID,
		Status:      c.Status,
		Credits:     c.Credits,
		ActivatedAt: c.ActivatedAt,
	}, true
}

func (r *subscriptionRepo) store(ctx context.Context, sub *model.Subscription) {
	if r.ttl <= 0 {
		return
	}
	raw, err := json.Marshal(cachedSubscription{
		Status:      sub.Status,
		Credits:     sub.Credits,
		ActivatedAt: sub.ActivatedAt,
	})
	if err != nil {
		return
	}
	if err := r.rdb.SetEx(ctx, activeSubscriptionKey(sub.UserID), raw, r.ttl).Err(); err != nil {
		r.l.Warn("Write activation cache failed", zap.String("user_id", sub.UserID), zap.Error(err))
	}
}
