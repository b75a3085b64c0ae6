package service

import (
	"context"

	v1 "github.com/888wing/sixarms-landing/api/landing/v1"
	"github.com/888wing/sixarms-landing/api/landing/v1/landingv1connect"
	"github.com/888wing/sixarms-landing/internal/biz/model"

	"connectrpc.com/connect"
)

// SubscriptionService 支付与订阅激活，调用前需经过鉴权拦截器
type SubscriptionService struct {
	uc model.SubscriptionUseCase
}

var _ landingv1connect.SubscriptionServiceHandler = (*SubscriptionService)(nil)

func NewSubscriptionService(uc model.SubscriptionUseCase) landingv1connect.SubscriptionServiceHandler {
	return &SubscriptionService{uc: uc}
}

func (s *SubscriptionService) CreatePaymentIntent(ctx context.Context, req *connect.Request[v1.CreatePaymentIntentRequest]) (*connect.Response[v1.CreatePaymentIntentResponse], error) {
	intent, err := s.uc.CreatePaymentIntent(ctx, req.Msg.Email)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&v1.CreatePaymentIntentResponse{
		IntentId:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       intent.Amount,
		Currency:     intent.Currency,
	}), nil
}

func (s *SubscriptionService) ConfirmPayment(ctx context.Context, req *connect.Request[v1.ConfirmPaymentRequest]) (*connect.Response[v1.ConfirmPaymentResponse], error) {
	intent, err := s.uc.ConfirmPayment(ctx, req.Msg.ClientSecret, req.Msg.PaymentMethod)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&v1.ConfirmPaymentResponse{
		IntentId: intent.ID,
		Status:   intent.Status,
	}), nil
}

func (s *SubscriptionService) Activate(ctx context.Context, req *connect.Request[v1.ActivateSubscriptionRequest]) (*connect.Response[v1.ActivateSubscriptionResponse], error) {
	sub, err := s.uc.Activate(ctx, req.Msg.UserId)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(toActivateResponse(sub)), nil
}

func toActivateResponse(sub *model.Subscription) *v1.ActivateSubscriptionResponse {
	return &v1.ActivateSubscriptionResponse{
		Status:  sub.Status,
		Credits: sub.Credits,
		Created: sub.Created,
	}
}
