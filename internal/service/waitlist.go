package service

import (
	"context"

	v1 "github.com/888wing/sixarms-landing/api/landing/v1"
	"github.com/888wing/sixarms-landing/api/landing/v1/landingv1connect"
	"github.com/888wing/sixarms-landing/internal/biz/model"

	"connectrpc.com/connect"
)

type WaitlistService struct {
	uc model.WaitlistUseCase
}

var _ landingv1connect.WaitlistServiceHandler = (*WaitlistService)(nil)

func NewWaitlistService(uc model.WaitlistUseCase) landingv1connect.WaitlistServiceHandler {
	return &WaitlistService{uc: uc}
}

func (s *WaitlistService) Subscribe(ctx context.Context, req *connect.Request[v1.SubscribeRequest]) (*connect.Response[v1.SubscribeResponse], error) {
	res, err := s.uc.Subscribe(ctx, req.Msg.Email, req.Msg.Source)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&v1.SubscribeResponse{
		Success: true,
		Message: res.Message,
	}), nil
}
