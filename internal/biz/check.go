package biz

import (
	"context"

	"github.com/888wing/sixarms-landing/internal/biz/model"
	"github.com/888wing/sixarms-landing/internal/data"

	"connectrpc.com/connect"
)

type CheckUseCase struct {
	repo data.CheckRepo
}

func NewCheckUseCase(repo data.CheckRepo) (model.CheckUseCase, error) {
	return &CheckUseCase{
		repo: repo,
	}, nil
}

// Ready 未就绪时同时返回详情和 Unavailable 错误
func (c CheckUseCase) Ready(ctx context.Context, req model.HealthCheckReq) (model.HealthCheckReply, error) {
	reply, err := c.repo.Ready(ctx, req)
	if err != nil {
		return reply, connect.NewError(connect.CodeUnavailable, err)
	}
	return reply, nil
}
