package data

import (
	"context"
	"fmt"

	"github.com/888wing/sixarms-landing/internal/data/models"

	"go.uber.org/zap"
)

// WaitlistRepo 候补名单
type WaitlistRepo interface {
	// AddSubscriber 返回是否为新加入的邮箱
	AddSubscriber(ctx context.Context, email, source string) (bool, error)
}

type waitlistRepo struct {
	queries models.Querier
	l       *zap.Logger
}

func NewWaitlistRepo(data *Data, logger *zap.Logger) WaitlistRepo {
	return &waitlistRepo{
		queries: data.queries(),
		l:       logger,
	}
}

func (r *waitlistRepo) AddSubscriber(ctx context.Context, email, source string) (bool, error) {
	n, err := r.queries.InsertSubscriber(ctx, models.InsertSubscriberParams{
		Email:  email,
		Source: source,
	})
	if err != nil {
		return false, fmt.Errorf("insert subscriber: %w", err)
	}
	return n > 0, nil
}
