package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// DefaultSuccessDelay 成功页停留时间，到期后触发完成回调并关闭流程
const DefaultSuccessDelay = 3 * time.Second

// Controller 结账流程状态机，可并发使用。
//
// 状态只会按 Auth → Payment → Success 前进，关闭或重新开始时回到 Auth。
// 每次重置都会递增 generation，重置前发出的请求返回后结果被丢弃。
type Controller struct {
	identity  IdentityProvider
	payment   PaymentCollector
	activator Activator

	clock      Clock
	delay      time.Duration
	onComplete func(SessionUser)
	onChange   func(Snapshot)
	logger     *zap.Logger
	transition metric.Int64Counter

	mu       sync.Mutex
	visible  bool
	step     Step
	user     *SessionUser
	flowErr  string
	authBusy bool
	payBusy  bool
	paid     bool
	gen      uint64
	timer    Timer
}

// Option 配置 Controller
type Option func(*Controller)

// WithOnComplete 每次成功流程结束时调用一次，重置或取消时不会调用
func WithOnComplete(fn func(SessionUser)) Option {
	return func(c *Controller) { c.onComplete = fn }
}

// WithOnChange 状态变化监听，回调在锁外执行
func WithOnChange(fn func(Snapshot)) Option {
	return func(c *Controller) { c.onChange = fn }
}

func WithClock(clock Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

func WithSuccessDelay(d time.Duration) Option {
	return func(c *Controller) { c.delay = d }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// New 创建处于 Auth 步骤、未显示的控制器
func New(identity IdentityProvider, payment PaymentCollector, activator Activator, opts ...Option) *Controller {
	c := &Controller{
		identity:  identity,
		payment:   payment,
		activator: activator,
		clock:     RealClock(),
		delay:     DefaultSuccessDelay,
		logger:    zap.NewNop(),
		step:      StepAuth,
	}
	for _, opt := range opts {
		opt(c)
	}

	counter, err := otel.Meter("github.com/888wing/sixarms-landing/internal/flow").Int64Counter(
		"checkout.flow.transitions",
		metric.WithDescription("结账流程步骤迁移次数"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		c.logger.Warn("Failed to create flow transition counter", zap.Error(err))
	} else {
		c.transition = counter
	}

	return c
}

// Start 打开流程，总是先重置到 Auth
func (c *Controller) Start() {
	c.mu.Lock()
	c.resetLocked()
	c.visible = true
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Debug("Checkout flow started")
	c.notify(snap)
}

// Close 隐藏并完全重置流程，进行中的请求不会被取消，但其结果会被丢弃
func (c *Controller) Close() {
	c.mu.Lock()
	c.resetLocked()
	c.visible = false
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Debug("Checkout flow closed")
	c.notify(snap)
}

// Snapshot 返回当前状态
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Authenticate 调用身份提供方，成功后进入支付步骤。
// 身份提供方的失败原样返回，不写入 FlowError。
func (c *Controller) Authenticate(ctx context.Context, mode AuthMode) error {
	c.mu.Lock()
	if c.step != StepAuth {
		c.mu.Unlock()
		return fmt.Errorf("%w: authenticate in %s step", ErrInvalidTransition, c.step)
	}
	if c.authBusy {
		c.mu.Unlock()
		return ErrSubmitInFlight
	}
	c.authBusy = true
	gen := c.gen
	c.mu.Unlock()

	var user *SessionUser
	err := guard(func() error {
		var err error
		user, err = c.identity.Authenticate(ctx, mode)
		return err
	})
	if err == nil && (user == nil || user.ID == "") {
		err = errors.New("identity provider returned no user")
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return ErrFlowReset
	}
	if c.step != StepAuth {
		// 认证期间已经通过 Authenticated 迁移
		c.mu.Unlock()
		return fmt.Errorf("%w: already authenticated", ErrInvalidTransition)
	}
	c.authBusy = false
	if err != nil {
		c.mu.Unlock()
		c.logger.Info("Authentication did not succeed", zap.String("mode", mode.String()), zap.Error(err))
		return err
	}
	snap := c.enterPaymentLocked(*user)
	c.mu.Unlock()

	c.afterTransition(ctx, snap)
	return nil
}

// Authenticated 应用身份提供方通知的认证成功（例如会话变化回调）
func (c *Controller) Authenticated(user SessionUser) error {
	if user.ID == "" {
		return fmt.Errorf("%w: session user has no id", ErrInvalidTransition)
	}

	c.mu.Lock()
	if c.step != StepAuth {
		c.mu.Unlock()
		return fmt.Errorf("%w: authenticated in %s step", ErrInvalidTransition, c.step)
	}
	snap := c.enterPaymentLocked(user)
	c.mu.Unlock()

	c.afterTransition(context.Background(), snap)
	return nil
}

// SubmitPayment 确认支付并激活订阅。
// 同一时刻只允许一个提交；本轮已确认支付时只重试激活，不会重复扣款。
func (c *Controller) SubmitPayment(ctx context.Context) error {
	c.mu.Lock()
	if c.step != StepPayment {
		c.mu.Unlock()
		return fmt.Errorf("%w: submit payment in %s step", ErrInvalidTransition, c.step)
	}
	if c.payBusy {
		c.mu.Unlock()
		return ErrSubmitInFlight
	}
	c.payBusy = true
	gen, user, paid := c.gen, *c.user, c.paid
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)

	if !paid {
		err := guard(func() error {
			return c.payment.CollectAndConfirm(ctx, user.Email)
		})

		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			return ErrFlowReset
		}
		if err != nil {
			msg := paymentMessage(err)
			c.flowErr = msg
			c.payBusy = false
			snap := c.snapshotLocked()
			c.mu.Unlock()

			c.logger.Warn("Payment confirmation failed",
				zap.String("user_id", user.ID),
				zap.String("message", msg),
				zap.Error(err),
			)
			c.notify(snap)
			return &StepError{Step: StepPayment, Message: msg, Err: err}
		}
		c.paid = true
		c.flowErr = ""
		snap := c.snapshotLocked()
		c.mu.Unlock()

		c.logger.Info("Payment confirmed", zap.String("user_id", user.ID))
		c.notify(snap)
	}

	return c.activate(ctx, gen, user)
}

// RetryActivation 支付已确认但激活失败时单独重试激活
func (c *Controller) RetryActivation(ctx context.Context) error {
	c.mu.Lock()
	if c.step != StepPayment {
		c.mu.Unlock()
		return fmt.Errorf("%w: retry activation in %s step", ErrInvalidTransition, c.step)
	}
	if !c.paid {
		c.mu.Unlock()
		return ErrNotPaid
	}
	if c.payBusy {
		c.mu.Unlock()
		return ErrSubmitInFlight
	}
	c.payBusy = true
	gen, user := c.gen, *c.user
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)

	return c.activate(ctx, gen, user)
}

// activate 调用激活接口。调用方已占用 payBusy。
func (c *Controller) activate(ctx context.Context, gen uint64, user SessionUser) error {
	err := guard(func() error {
		return c.activator.Activate(ctx, user.ID)
	})

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return ErrFlowReset
	}
	c.payBusy = false
	if err != nil {
		c.flowErr = MsgActivationFailed
		snap := c.snapshotLocked()
		c.mu.Unlock()

		c.logger.Error("Subscription activation failed", zap.String("user_id", user.ID), zap.Error(err))
		c.notify(snap)
		return &StepError{Step: StepPayment, Message: MsgActivationFailed, Err: err}
	}

	c.step = StepSuccess
	c.flowErr = ""
	c.timer = c.clock.AfterFunc(c.delay, func() { c.complete(gen) })
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Info("Subscription activated", zap.String("user_id", user.ID))
	c.afterTransition(ctx, snap)
	return nil
}

// complete 成功计时到期。只有同一轮且仍处于 Success 时才生效。
func (c *Controller) complete(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.step != StepSuccess {
		c.mu.Unlock()
		return
	}
	user := *c.user
	c.resetLocked()
	c.visible = false
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Debug("Checkout flow completed", zap.String("user_id", user.ID))
	c.notify(snap)
	if c.onComplete != nil {
		c.onComplete(user)
	}
}

func (c *Controller) enterPaymentLocked(user SessionUser) Snapshot {
	c.user = &user
	c.step = StepPayment
	c.flowErr = ""
	c.authBusy = false
	c.payBusy = false
	c.paid = false
	return c.snapshotLocked()
}

func (c *Controller) resetLocked() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.step = StepAuth
	c.user = nil
	c.flowErr = ""
	c.authBusy = false
	c.payBusy = false
	c.paid = false
}

func (c *Controller) snapshotLocked() Snapshot {
	var view View
	switch c.step {
	case StepPayment:
		view = PaymentStep{User: *c.user, Err: c.flowErr, Submitting: c.payBusy, Paid: c.paid}
	case StepSuccess:
		view = SuccessStep{User: *c.user}
	default:
		view = AuthStep{}
	}
	return Snapshot{Visible: c.visible, View: view}
}

func (c *Controller) afterTransition(ctx context.Context, snap Snapshot) {
	if c.transition != nil {
		c.transition.Add(ctx, 1, metric.WithAttributes(attribute.String("step", snap.Step().String())))
	}
	c.notify(snap)
}

func (c *Controller) notify(snap Snapshot) {
	if c.onChange != nil {
		c.onChange(snap)
	}
}

// guard 把协作方的 panic 转为 error，保证状态不会停在半途
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return fn()
}

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("unexpected failure: %v", e.value)
}

// paymentMessage 支付失败信息原样展示，panic 与空消息使用通用文案
func paymentMessage(err error) string {
	var pe *panicError
	if errors.As(err, &pe) {
		return MsgUnexpected
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return MsgPaymentFailed
}
