package client

import (
	"context"

	v1 "github.com/888wing/sixarms-landing/api/landing/v1"
	"github.com/888wing/sixarms-landing/api/landing/v1/landingv1connect"
	"github.com/888wing/sixarms-landing/internal/flow"

	"connectrpc.com/connect"
	"go.uber.org/zap"
)

// ActivationClient 调用订阅激活接口
type ActivationClient struct {
	subs landingv1connect.SubscriptionServiceClient
	l    *zap.Logger
}

var _ flow.Activator = (*ActivationClient)(nil)

func NewActivationClient(opts Options, identity *IdentityClient) *ActivationClient {
	return &ActivationClient{
		subs: newSubscriptionClient(opts, identity),
		l:    opts.logger(),
	}
}

func (a *ActivationClient) Activate(ctx context.Context, userID string) error {
	resp, err := a.subs.Activate(ctx, connect.NewRequest(&v1.ActivateSubscriptionRequest{UserId: userID}))
	if err != nil {
		return err
	}
	a.l.Info("Subscription activated",
		zap.String("user_id", userID),
		zap.String("status", resp.Msg.Status),
		zap.Int32("credits", resp.Msg.Credits),
		zap.Bool("created", resp.Msg.Created),
	)
	return nil
}
