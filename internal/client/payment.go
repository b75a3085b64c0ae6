package client

import (
	"context"
	"errors"
	"fmt"
	"strings"

	v1 "github.com/888wing/sixarms-landing/api/landing/v1"
	"github.com/888wing/sixarms-landing/api/landing/v1/landingv1connect"
	"github.com/888wing/sixarms-landing/internal/biz/model"
	"github.com/888wing/sixarms-landing/internal/flow"

	"connectrpc.com/connect"
	"go.uber.org/zap"
)

// CardSource 采集卡信息，返回支付处理方的 payment method id（如 pm_card_visa）
type CardSource interface {
	PaymentMethod(ctx context.Context) (string, error)
}

// StaticCard 固定的 payment method id
type StaticCard string

func (s StaticCard) PaymentMethod(context.Context) (string, error) {
	if s == "" {
		return "", errors.New("Please enter your card details")
	}
	return string(s), nil
}

// PaymentCollector 创建支付意图后用服务端下发的 client secret 确认支付
type PaymentCollector struct {
	subs landingv1connect.SubscriptionServiceClient
	card CardSource
	l    *zap.Logger
}

var _ flow.PaymentCollector = (*PaymentCollector)(nil)

func NewPaymentCollector(opts Options, identity *IdentityClient, card CardSource) *PaymentCollector {
	return &PaymentCollector{
		subs: newSubscriptionClient(opts, identity),
		card: card,
		l:    opts.logger(),
	}
}

// CollectAndConfirm 返回的错误文本直接展示给用户
func (p *PaymentCollector) CollectAndConfirm(ctx context.Context, email string) error {
	if p.card == nil {
		return errors.New("Please enter your card details")
	}
	pm, err := p.card.PaymentMethod(ctx)
	if err != nil {
		return err
	}

	intent, err := p.subs.CreatePaymentIntent(ctx, connect.NewRequest(&v1.CreatePaymentIntentRequest{Email: email}))
	if err != nil {
		p.l.Warn("Failed to create payment intent", zap.Error(err))
		return userError(err)
	}
	if intent.Msg.ClientSecret == "" {
		return errors.New(flow.MsgPaymentFailed)
	}

	resp, err := p.subs.ConfirmPayment(ctx, connect.NewRequest(&v1.ConfirmPaymentRequest{
		ClientSecret:  intent.Msg.ClientSecret,
		PaymentMethod: pm,
	}))
	if err != nil {
		return userError(err)
	}

	// processing 表示处理方已受理扣款，和 succeeded 一样算作已支付
	switch resp.Msg.Status {
	case model.PaymentStatusSucceeded, model.PaymentStatusProcessing:
		p.l.Info("Payment confirmed",
			zap.String("intent_id", resp.Msg.IntentId),
			zap.String("status", resp.Msg.Status),
		)
		return nil
	default:
		return fmt.Errorf("%s (status %s)", flow.MsgPaymentFailed, resp.Msg.Status)
	}
}

func newSubscriptionClient(opts Options, identity *IdentityClient) landingv1connect.SubscriptionServiceClient {
	var clientOpts []connect.ClientOption
	if identity != nil {
		clientOpts = append(clientOpts, connect.WithInterceptors(identity.BearerInterceptor()))
	}
	return landingv1connect.NewSubscriptionServiceClient(
		opts.httpClient(),
		strings.TrimRight(opts.BaseURL, "/"),
		clientOpts...,
	)
}
