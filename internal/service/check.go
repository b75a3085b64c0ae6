package service

import (
	"context"
	"errors"

	v1 "github.com/888wing/sixarms-landing/api/landing/v1"
	"github.com/888wing/sixarms-landing/api/landing/v1/landingv1connect"
	"github.com/888wing/sixarms-landing/internal/biz/model"

	"connectrpc.com/connect"
)

var _ landingv1connect.CheckServiceHandler = (*CheckService)(nil)

type CheckService struct {
	uc model.CheckUseCase
}

func NewCheckService(uc model.CheckUseCase) landingv1connect.CheckServiceHandler {
	return &CheckService{
		uc: uc,
	}
}

// Ready 未就绪时把组件详情放进错误 metadata
func (c *CheckService) Ready(ctx context.Context, _ *connect.Request[v1.ReadyCheckReq]) (*connect.Response[v1.ReadyCheckReply], error) {
	ready, err := c.uc.Ready(ctx, model.HealthCheckReq{})
	if err != nil {
		var cerr *connect.Error
		if errors.As(err, &cerr) {
			for k, v := range ready.Details {
				cerr.Meta().Set("x-check-"+k, v)
			}
			return nil, cerr
		}
		return nil, err
	}
	return connect.NewResponse(&v1.ReadyCheckReply{
		Status:  ready.Status,
		Details: ready.Details,
	}), nil
}
