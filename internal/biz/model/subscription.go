package model

import (
	"context"
	"time"
)

// PaymentIntent 支付意图，ClientSecret 下发给客户端用于确认支付
type PaymentIntent struct {
	ID           string
	ClientSecret string
	Amount       int64
	Currency     string
	Status       string
	Email        string
	// LastError 支付处理方返回的最后一次失败原因
	LastError string
}

// 支付意图状态，与 Stripe 的取值一致
const (
	PaymentStatusSucceeded      = "succeeded"
	PaymentStatusRequiresAction = "requires_action"
	PaymentStatusProcessing     = "processing"
	PaymentStatusCreated        = "requires_payment_method"
)

// PaymentDeclinedError 支付被拒绝，Message 直接展示给用户
type PaymentDeclinedError struct {
	Message string
}

func (e *PaymentDeclinedError) Error() string {
	return e.Message
}

// Payment 支付记录
type Payment struct {
	IntentID  string
	UserID    string
	Email     string
	Amount    int64
	Currency  string
	Status    string
	CreatedAt time.Time
}

// Subscription 订阅状态
type Subscription struct {
	UserID      string
	Status      string
	Credits     int32
	ActivatedAt time.Time
	// Created 本次调用是否首次激活
	Created bool
}

// SubscriptionUseCase 支付与订阅激活用例。所有方法要求 ctx 中带有已认证用户。
type SubscriptionUseCase interface {
	CreatePaymentIntent(ctx context.Context, email string) (*PaymentIntent, error)
	ConfirmPayment(ctx context.Context, clientSecret, paymentMethod string) (*PaymentIntent, error)
	Activate(ctx context.Context, userID string) (*Subscription, error)
}
