package data

import (
	"context"
	"errors"
	"fmt"

	"github.com/888wing/sixarms-landing/internal/biz/model"
	conf "github.com/888wing/sixarms-landing/internal/conf/v1"
	"github.com/888wing/sixarms-landing/internal/data/models"

	"github.com/jackc/pgx/v5"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/zap"
)

// PaymentRepo 支付记录
type PaymentRepo interface {
	CreatePayment(ctx context.Context, p *model.Payment) error
	GetPayment(ctx context.Context, intentID string) (*model.Payment, error)
	UpdatePaymentStatus(ctx context.Context, intentID, status string) error
}

type paymentRepo struct {
	queries models.Querier
	l       *zap.Logger
}

func NewPaymentRepo(data *Data, logger *zap.Logger) PaymentRepo {
	return &paymentRepo{
		queries: data.queries(),
		l:       logger,
	}
}

func (r *paymentRepo) CreatePayment(ctx context.Context, p *model.Payment) error {
	_, err := r.queries.CreatePayment(ctx, models.CreatePaymentParams{
		IntentID: p.IntentID,
		UserID:   p.UserID,
		Email:    p.Email,
		Amount:   p.Amount,
		Currency: p.Currency,
		Status:   p.Status,
	})
	if err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

func (r *paymentRepo) GetPayment(ctx context.Context, intentID string) (*model.Payment, error) {
	p, err := r.queries.GetPayment(ctx, intentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return &model.Payment{
		IntentID:  p.IntentID,
		UserID:    p.UserID,
		Email:     p.Email,
		Amount:    p.Amount,
		Currency:  p.Currency,
		Status:    p.Status,
		CreatedAt: p.CreatedAt,
	}, nil
}

func (r *paymentRepo) UpdatePaymentStatus(ctx context.Context, intentID, status string) error {
	err := r.queries.UpdatePaymentStatus(ctx, models.UpdatePaymentStatusParams{
		IntentID: intentID,
		Status:   status,
	})
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	return nil
}

// PaymentGateway 支付处理方
type PaymentGateway interface {
	CreateIntent(ctx context.Context, userID, email string) (*model.PaymentIntent, error)
	GetIntent(ctx context.Context, intentID string) (*model.PaymentIntent, error)
	// ConfirmIntent 卡被拒绝时返回 *model.PaymentDeclinedError
	ConfirmIntent(ctx context.Context, intentID, paymentMethod string) (*model.PaymentIntent, error)
}

// intentBackend 与 *paymentintent.Client 方法一致，测试中替换
type intentBackend interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Confirm(id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error)
}

type stripeGateway struct {
	intents intentBackend
	cfg     *conf.Payment
	l       *zap.Logger
}

func NewPaymentGateway(cfg *conf.Bootstrap, logger *zap.Logger) PaymentGateway {
	sc := client.New(cfg.Payment.SecretKey, nil)
	return newStripeGateway(sc.PaymentIntents, cfg.Payment, logger)
}

func newStripeGateway(intents intentBackend, cfg *conf.Payment, logger *zap.Logger) *stripeGateway {
	return &stripeGateway{intents: intents, cfg: cfg, l: logger}
}

func (g *stripeGateway) CreateIntent(ctx context.Context, userID, email string) (*model.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(g.cfg.PriceAmount),
		Currency:    stripe.String(g.cfg.Currency),
		Description: stripe.String(g.cfg.Description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	if email != "" {
		params.ReceiptEmail = stripe.String(email)
	}
	params.Context = ctx
	params.AddMetadata("user_id", userID)
	params.AddMetadata("email", email)

	pi, err := g.intents.New(params)
	if err != nil {
		g.l.Error("Create payment intent failed", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	return toPaymentIntent(pi), nil
}

func (g *stripeGateway) GetIntent(ctx context.Context, intentID string) (*model.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.intents.Get(intentID, params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.HTTPStatusCode == 404 {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get payment intent: %w", err)
	}
	return toPaymentIntent(pi), nil
}

func (g *stripeGateway) ConfirmIntent(ctx context.Context, intentID, paymentMethod string) (*model.PaymentIntent, error) {
	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(paymentMethod),
	}
	params.Context = ctx

	pi, err := g.intents.Confirm(intentID, params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.Type == stripe.ErrorTypeCard {
			g.l.Info("Card declined",
				zap.String("intent_id", intentID),
				zap.String("code", string(se.Code)),
				zap.String("decline_code", string(se.DeclineCode)),
			)
			return nil, &model.PaymentDeclinedError{Message: se.Msg}
		}
		return nil, fmt.Errorf("confirm payment intent: %w", err)
	}

	intent := toPaymentIntent(pi)
	if intent.Status == model.PaymentStatusCreated && intent.LastError != "" {
		return nil, &model.PaymentDeclinedError{Message: intent.LastError}
	}
	return intent, nil
}

func toPaymentIntent(pi *stripe.PaymentIntent) *model.PaymentIntent {
	intent := &model.PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Status:       string(pi.Status),
		Email:        pi.ReceiptEmail,
	}
	if pi.LastPaymentError != nil {
		intent.LastError = pi.LastPaymentError.Msg
	}
	return intent
}
