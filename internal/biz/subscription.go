package biz

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/888wing/sixarms-landing/internal/biz/model"
	conf "github.com/888wing/sixarms-landing/internal/conf/v1"
	"github.com/888wing/sixarms-landing/internal/data"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultSignupCredits = 500

type SubscriptionUseCase struct {
	payments data.PaymentRepo
	gateway  data.PaymentGateway
	subs     data.SubscriptionRepo
	credits  int32
	l        *zap.Logger
}

func NewSubscriptionUseCase(
	payments data.PaymentRepo,
	gateway data.PaymentGateway,
	subs data.SubscriptionRepo,
	cfg *conf.Bootstrap,
	logger *zap.Logger,
) model.SubscriptionUseCase {
	credits := int32(defaultSignupCredits)
	if cfg.Checkout != nil && cfg.Checkout.SignupCredits > 0 {
		credits = cfg.Checkout.SignupCredits
	}
	return &SubscriptionUseCase{
		payments: payments,
		gateway:  gateway,
		subs:     subs,
		credits:  credits,
		l:        logger,
	}
}

func sessionUser(ctx context.Context) (model.User, error) {
	u, ok := model.SessionUserFromContext(ctx)
	if !ok {
		return model.User{}, connect.NewError(connect.CodeUnauthenticated, errMissingToken)
	}
	return u, nil
}

// intentIDFromSecret client secret 的格式为 <intent id>_secret_<随机串>
func intentIDFromSecret(secret string) (string, bool) {
	i := strings.Index(secret, "_secret_")
	if i <= 0 || i+len("_secret_") == len(secret) {
		return "", false
	}
	return secret[:i], true
}

// CreatePaymentIntent 为当前用户创建月付支付意图，email 为空时使用账号邮箱
func (uc *SubscriptionUseCase) CreatePaymentIntent(ctx context.Context, email string) (*model.PaymentIntent, error) {
	user, err := sessionUser(ctx)
	if err != nil {
		return nil, err
	}

	email = normalizeEmail(email)
	if email == "" {
		email = user.Email
	}
	if !validEmail(email) {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("invalid email address"))
	}

	intent, err := uc.gateway.CreateIntent(ctx, user.ID, email)
	if err != nil {
		return nil, connect.NewError(connect.CodeUnavailable, errors.New("payment processor unavailable"))
	}

	err = uc.payments.CreatePayment(ctx, &model.Payment{
		IntentID: intent.ID,
		UserID:   user.ID,
		Email:    email,
		Amount:   intent.Amount,
		Currency: intent.Currency,
		Status:   intent.Status,
	})
	if err != nil {
		uc.l.Error("Record payment failed", zap.String("intent_id", intent.ID), zap.Error(err))
		return nil, connect.NewError(connect.CodeInternal, errors.New("record payment failed"))
	}

	uc.l.Info("Payment intent created",
		zap.String("user_id", user.ID),
		zap.String("intent_id", intent.ID),
		zap.Int64("amount", intent.Amount),
	)
	return intent, nil
}

// ConfirmPayment 用 client secret 找到支付意图并确认。已成功的意图直接返回，不会重复扣款。
func (uc *SubscriptionUseCase) ConfirmPayment(ctx context.Context, clientSecret, paymentMethod string) (*model.PaymentIntent, error) {
	user, err := sessionUser(ctx)
	if err != nil {
		return nil, err
	}
	intentID, ok := intentIDFromSecret(clientSecret)
	if !ok {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("invalid client secret"))
	}
	if paymentMethod == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("payment method is required"))
	}

	payment, err := uc.payments.GetPayment(ctx, intentID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, connect.NewError(connect.CodeNotFound, errors.New("payment not found"))
		}
		return nil, connect.NewError(connect.CodeInternal, errors.New("load payment failed"))
	}
	if payment.UserID != user.ID {
		return nil, connect.NewError(connect.CodePermissionDenied, errors.New("payment belongs to another user"))
	}

	intent, err := uc.gateway.GetIntent(ctx, intentID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, connect.NewError(connect.CodeNotFound, errors.New("payment not found"))
		}
		return nil, connect.NewError(connect.CodeUnavailable, errors.New("payment processor unavailable"))
	}
	if subtle.ConstantTimeCompare([]byte(intent.ClientSecret), []byte(clientSecret)) != 1 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("invalid client secret"))
	}
	if intent.Status == model.PaymentStatusSucceeded {
		return intent, nil
	}

	confirmed, err := uc.gateway.ConfirmIntent(ctx, intentID, paymentMethod)
	if err != nil {
		var declined *model.PaymentDeclinedError
		if errors.As(err, &declined) {
			uc.l.Info("Payment declined", zap.String("intent_id", intentID), zap.String("reason", declined.Message))
			return nil, connect.NewError(connect.CodeFailedPrecondition, declined)
		}
		uc.l.Error("Confirm payment failed", zap.String("intent_id", intentID), zap.Error(err))
		return nil, connect.NewError(connect.CodeUnavailable, errors.New("payment processor unavailable"))
	}

	if err := uc.payments.UpdatePaymentStatus(ctx, intentID, confirmed.Status); err != nil {
		// 支付已在处理方完成，记录失败只告警
		uc.l.Warn("Update payment status failed", zap.String("intent_id", intentID), zap.Error(err))
	}

	// processing 视为已受理，与 succeeded 同样放行激活
	switch confirmed.Status {
	case model.PaymentStatusSucceeded, model.PaymentStatusProcessing:
		uc.l.Info("Payment confirmed", zap.String("intent_id", intentID), zap.String("status", confirmed.Status))
		return confirmed, nil
	case model.PaymentStatusRequiresAction:
		return nil, connect.NewError(connect.CodeFailedPrecondition, errors.New("payment requires additional authentication"))
	default:
		return nil, connect.NewError(connect.CodeFailedPrecondition, errors.New("Payment failed"))
	}
}

// Activate 幂等激活订阅，只能激活自己的账号
func (uc *SubscriptionUseCase) Activate(ctx context.Context, userID string) (*model.Subscription, error) {
	user, err := sessionUser(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(userID); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("invalid user id"))
	}
	if userID != user.ID {
		return nil, connect.NewError(connect.CodePermissionDenied, errors.New("cannot activate another user's subscription"))
	}

	sub, err := uc.subs.Activate(ctx, userID, uc.credits)
	if err != nil {
		uc.l.Error("Activate subscription failed", zap.String("user_id", userID), zap.Error(err))
		return nil, connect.NewError(connect.CodeInternal, errors.New("activate subscription failed"))
	}

	if sub.Created {
		uc.l.Info("Subscription activated", zap.String("user_id", userID), zap.Int32("credits", sub.Credits))
	}
	return sub, nil
}
