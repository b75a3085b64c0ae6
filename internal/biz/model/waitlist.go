package model

import "context"

const DefaultWaitlistSource = "windows-waitlist"

// SubscribeResult 候补名单订阅结果
type SubscribeResult struct {
	Created bool
	Message string
}

// WaitlistUseCase 候补名单用例
type WaitlistUseCase interface {
	Subscribe(ctx context.Context, email, source string) (*SubscribeResult, error)
}
