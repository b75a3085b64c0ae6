package biz

import (
	"context"
	"errors"
	"strings"

	"github.com/888wing/sixarms-landing/internal/biz/model"
	"github.com/888wing/sixarms-landing/internal/data"

	"connectrpc.com/connect"
	"go.uber.org/zap"
)

const (
	msgSubscribed        = "Successfully subscribed!"
	msgAlreadySubscribed = "Already subscribed!"
	msgInvalidEmail      = "Invalid email address"
	msgServerError       = "Server error, please try again"
)

type WaitlistUseCase struct {
	repo data.WaitlistRepo
	l    *zap.Logger
}

func NewWaitlistUseCase(repo data.WaitlistRepo, logger *zap.Logger) model.WaitlistUseCase {
	return &WaitlistUseCase{repo: repo, l: logger}
}

// Subscribe 重复订阅也算成功
func (uc *WaitlistUseCase) Subscribe(ctx context.Context, email, source string) (*model.SubscribeResult, error) {
	email = normalizeEmail(email)
	if !validEmail(email) {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New(msgInvalidEmail))
	}
	source = strings.TrimSpace(source)
	if source == "" {
		source = model.DefaultWaitlistSource
	}

	created, err := uc.repo.AddSubscriber(ctx, email, source)
	if err != nil {
		uc.l.Error("Add waitlist subscriber failed", zap.String("source", source), zap.Error(err))
		return nil, connect.NewError(connect.CodeInternal, errors.New(msgServerError))
	}
	if !created {
		return &model.SubscribeResult{Created: false, Message: msgAlreadySubscribed}, nil
	}

	uc.l.Info("Waitlist subscriber added", zap.String("source", source))
	return &model.SubscribeResult{Created: true, Message: msgSubscribed}, nil
}
