// Package flow 实现注册登录 → 支付 → 订阅激活的三步结账流程控制器。
//
// 控制器只负责状态迁移、错误记录和成功后的自动关闭计时，
// 身份、支付、激活三个外部协作方通过接口注入。
package flow

import (
	"context"
	"errors"
	"fmt"
)

// Step 流程所处的步骤
type Step int

const (
	StepAuth Step = iota
	StepPayment
	StepSuccess
)

func (s Step) String() string {
	switch s {
	case StepAuth:
		return "auth"
	case StepPayment:
		return "payment"
	case StepSuccess:
		return "success"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// AuthMode 身份认证方式
type AuthMode int

const (
	ModeSignUp AuthMode = iota
	ModeSignIn
)

func (m AuthMode) String() string {
	if m == ModeSignIn {
		return "signin"
	}
	return "signup"
}

// ParseAuthMode 解析 signin / signup
func ParseAuthMode(s string) (AuthMode, error) {
	switch s {
	case "signup", "sign-up", "":
		return ModeSignUp, nil
	case "signin", "sign-in", "login":
		return ModeSignIn, nil
	default:
		return ModeSignUp, fmt.Errorf("unknown auth mode %q", s)
	}
}

// SessionUser 身份提供方认证成功后返回的用户
type SessionUser struct {
	ID    string
	Email string
}

// IdentityProvider 登录/注册。失败由实现方自行处理，控制器只关心成功的结果。
type IdentityProvider interface {
	Authenticate(ctx context.Context, mode AuthMode) (*SessionUser, error)
}

// PaymentCollector 采集卡信息并用服务端下发的 secret 确认支付。
// 返回的 error 文本会原样展示给用户。
type PaymentCollector interface {
	CollectAndConfirm(ctx context.Context, email string) error
}

// Activator 调用激活接口，要求幂等
type Activator interface {
	Activate(ctx context.Context, userID string) error
}

const (
	MsgActivationFailed = "Failed to activate subscription"
	MsgPaymentFailed    = "Payment failed"
	MsgUnexpected       = "Something went wrong"
)

var (
	ErrInvalidTransition = errors.New("flow: invalid transition")
	ErrSubmitInFlight    = errors.New("flow: a request is already in flight")
	// ErrFlowReset 请求返回前流程已被关闭或重新开始，结果被丢弃
	ErrFlowReset = errors.New("flow: flow was reset while the request was in flight")
	ErrNotPaid   = errors.New("flow: payment has not been confirmed")
)

// StepError 协作方失败，消息已记录为 FlowError
type StepError struct {
	Step    Step
	Message string
	Err     error
}

func (e *StepError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s step: %s: %v", e.Step, e.Message, e.Err)
	}
	return fmt.Sprintf("%s step: %s", e.Step, e.Message)
}

func (e *StepError) Unwrap() error { return e.Err }

// View 每个步骤对应的视图数据，只能是 AuthStep、PaymentStep、SuccessStep 之一
type View interface {
	Step() Step
	isView()
}

// AuthStep 认证步骤不携带数据
type AuthStep struct{}

// PaymentStep 支付步骤
type PaymentStep struct {
	User SessionUser
	// Err 为空表示没有错误
	Err        string
	Submitting bool
	// Paid 本轮已确认支付，只差激活
	Paid bool
}

// SuccessStep 激活成功
type SuccessStep struct {
	User SessionUser
}

func (AuthStep) Step() Step    { return StepAuth }
func (PaymentStep) Step() Step { return StepPayment }
func (SuccessStep) Step() Step { return StepSuccess }

func (AuthStep) isView()    {}
func (PaymentStep) isView() {}
func (SuccessStep) isView() {}

// Snapshot 流程当前状态
type Snapshot struct {
	Visible bool
	View    View
}

// Step 便捷方法
func (s Snapshot) Step() Step {
	return s.View.Step()
}

// Error 返回当前 FlowError，只有支付步骤可能有错误
func (s Snapshot) Error() string {
	if p, ok := s.View.(PaymentStep); ok {
		return p.Err
	}
	return ""
}

// User 返回当前用户，认证步骤返回 nil
func (s Snapshot) User() *SessionUser {
	switch v := s.View.(type) {
	case PaymentStep:
		u := v.User
		return &u
	case SuccessStep:
		u := v.User
		return &u
	default:
		return nil
	}
}
