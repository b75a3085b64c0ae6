// checkout 在命令行中走完 注册/登录 → 支付 → 激活 的结账流程
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/888wing/sixarms-landing/internal/client"
	"github.com/888wing/sixarms-landing/internal/flow"

	"go.uber.org/zap"
)

var (
	serverURL = flag.String("server", "http://localhost:8080", "landing server base URL")
	mode      = flag.String("mode", "signup", "signup or signin")
	email     = flag.String("email", "", "account email")
	password  = flag.String("password", "", "account password, falls back to $CHECKOUT_PASSWORD")
	card      = flag.String("card", "pm_card_visa", "payment method id")
	retries   = flag.Int("activation-retries", 2, "activation retries after a confirmed payment")
	timeout   = flag.Duration("timeout", 2*time.Minute, "overall timeout")
	verbose   = flag.Bool("v", false, "verbose logging")
)

func main() {
	flag.Parse()

	logger := newLogger(*verbose)
	defer func() { _ = logger.Sync() }()

	if err := run(logger); err != nil {
		logger.Error("Checkout failed", zap.Error(err))
		os.Exit(1)
	}
}

func newLogger(verbose bool) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func run(logger *zap.Logger) error {
	authMode, err := flow.ParseAuthMode(*mode)
	if err != nil {
		return err
	}
	if *email == "" {
		return errors.New("--email is required")
	}
	pw := *password
	if pw == "" {
		pw = os.Getenv("CHECKOUT_PASSWORD")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	opts := client.Options{
		BaseURL:     *serverURL,
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
		Credentials: client.StaticCredentials{Email: *email, Password: pw},
		Logger:      logger,
	}
	identity := client.SharedIdentity(opts)

	done := make(chan flow.SessionUser, 1)
	controller := flow.New(
		identity,
		client.NewPaymentCollector(opts, identity, client.StaticCard(*card)),
		client.NewActivationClient(opts, identity),
		flow.WithLogger(logger),
		flow.WithOnComplete(func(u flow.SessionUser) { done <- u }),
		flow.WithOnChange(func(s flow.Snapshot) {
			logger.Debug("Flow changed",
				zap.Bool("visible", s.Visible),
				zap.Stringer("step", s.Step()),
				zap.String("error", s.Error()),
			)
		}),
	)
	defer controller.Close()

	controller.Start()
	if err := controller.Authenticate(ctx, authMode); err != nil {
		return fmt.Errorf("%s: %w", authMode, err)
	}

	err = controller.SubmitPayment(ctx)
	for attempt := 0; err != nil && controller.Snapshot().Step() == flow.StepPayment; attempt++ {
		paid := false
		if p, ok := controller.Snapshot().View.(flow.PaymentStep); ok {
			paid = p.Paid
		}
		// 只有支付已确认、激活失败时才重试
		if !paid || attempt >= *retries {
			return errors.New(controller.Snapshot().Error())
		}
		logger.Warn("Retrying activation", zap.Int("attempt", attempt+1), zap.Error(err))
		err = controller.RetryActivation(ctx)
	}
	if err != nil {
		return err
	}

	select {
	case u := <-done:
		logger.Info("Subscription active", zap.String("user_id", u.ID), zap.String("email", u.Email))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
