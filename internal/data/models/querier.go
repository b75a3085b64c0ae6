package models

import (
	"context"
)

type Querier interface {
	ActivateSubscription(ctx context.Context, arg ActivateSubscriptionParams) (ActivateSubscriptionRow, error)
	CreatePayment(ctx context.Context, arg CreatePaymentParams) (Payment, error)
	CreateUser(ctx context.Context, arg CreateUserParams) (User, error)
	GetPayment(ctx context.Context, intentID string) (Payment, error)
	GetSubscription(ctx context.Context, userID string) (Subscription, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	InsertSubscriber(ctx context.Context, arg InsertSubscriberParams) (int64, error)
	UpdatePaymentStatus(ctx context.Context, arg UpdatePaymentStatusParams) error
}

var _ Querier = (*Queries)(nil)
