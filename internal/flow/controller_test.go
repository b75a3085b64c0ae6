package flow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

// MockIdentity 是 IdentityProvider 的模拟实现
type MockIdentity struct {
	mock.Mock
}

func (m *MockIdentity) Authenticate(ctx context.Context, mode AuthMode) (*SessionUser, error) {
	args := m.Called(ctx, mode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*SessionUser), args.Error(1)
}

// MockPayment 是 PaymentCollector 的模拟实现
type MockPayment struct {
	mock.Mock
}

func (m *MockPayment) CollectAndConfirm(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

// MockActivator 是 Activator 的模拟实现
type MockActivator struct {
	mock.Mock
}

func (m *MockActivator) Activate(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// manualClock 只有在 Advance 时才触发定时器
type manualClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	at      time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now + d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Advance 推进时间并在锁外执行到期的回调
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []func()
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.at <= c.now {
			t.fired = true
			due = append(due, t.fn)
		}
	}
	c.mu.Unlock()

	for _, fn := range due {
		fn()
	}
}

func (c *manualClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

var testUser = &SessionUser{ID: "u1", Email: "a@b.com"}

// ControllerTestSuite 是 Controller 的测试套件
type ControllerTestSuite struct {
	suite.Suite
	identity  *MockIdentity
	payment   *MockPayment
	activator *MockActivator
	clock     *manualClock
	completed []SessionUser
	ctrl      *Controller
	ctx       context.Context
}

func (s *ControllerTestSuite) SetupTest() {
	s.identity = new(MockIdentity)
	s.payment = new(MockPayment)
	s.activator = new(MockActivator)
	s.clock = &manualClock{}
	s.completed = nil
	s.ctx = context.Background()

	logger, _ := zap.NewDevelopment()
	s.ctrl = New(s.identity, s.payment, s.activator,
		WithClock(s.clock),
		WithLogger(logger),
		WithOnComplete(func(u SessionUser) {
			s.completed = append(s.completed, u)
		}),
	)
}

// toPayment 启动流程并完成认证
func (s *ControllerTestSuite) toPayment() {
	s.identity.On("Authenticate", s.ctx, ModeSignUp).Return(testUser, nil).Once()
	s.ctrl.Start()
	require.NoError(s.T(), s.ctrl.Authenticate(s.ctx, ModeSignUp))
}

// toSuccess 完成支付与激活
func (s *ControllerTestSuite) toSuccess() {
	s.toPayment()
	s.payment.On("CollectAndConfirm", s.ctx, "a@b.com").Return(nil).Once()
	s.activator.On("Activate", s.ctx, "u1").Return(nil).Once()
	require.NoError(s.T(), s.ctrl.SubmitPayment(s.ctx))
}

func (s *ControllerTestSuite) assertReset(snap Snapshot) {
	assert.Equal(s.T(), StepAuth, snap.Step())
	assert.Nil(s.T(), snap.User())
	assert.Empty(s.T(), snap.Error())
}

func (s *ControllerTestSuite) TestNewStartsAtAuthHidden() {
	snap := s.ctrl.Snapshot()

	assert.False(s.T(), snap.Visible)
	s.assertReset(snap)
}

func (s *ControllerTestSuite) TestStartOpensAtAuth() {
	s.ctrl.Start()

	snap := s.ctrl.Snapshot()
	assert.True(s.T(), snap.Visible)
	assert.IsType(s.T(), AuthStep{}, snap.View)
}

func (s *ControllerTestSuite) TestAuthenticateMovesToPayment() {
	s.toPayment()

	snap := s.ctrl.Snapshot()
	require.IsType(s.T(), PaymentStep{}, snap.View)
	p := snap.View.(PaymentStep)
	assert.Equal(s.T(), *testUser, p.User)
	assert.Empty(s.T(), p.Err)
	assert.False(s.T(), p.Paid)
}

func (s *ControllerTestSuite) TestAuthenticateFailureStaysOnAuthWithoutFlowError() {
	s.ctrl.Start()
	s.identity.On("Authenticate", s.ctx, ModeSignIn).Return(nil, errors.New("invalid login credentials")).Once()

	err := s.ctrl.Authenticate(s.ctx, ModeSignIn)

	assert.EqualError(s.T(), err, "invalid login credentials")
	s.assertReset(s.ctrl.Snapshot())
}

func (s *ControllerTestSuite) TestAuthenticateRejectsEmptyUser() {
	s.ctrl.Start()
	s.identity.On("Authenticate", s.ctx, ModeSignUp).Return(&SessionUser{}, nil).Once()

	err := s.ctrl.Authenticate(s.ctx, ModeSignUp)

	assert.Error(s.T(), err)
	assert.Equal(s.T(), StepAuth, s.ctrl.Snapshot().Step())
}

func (s *ControllerTestSuite) TestAuthenticatedNotification() {
	s.ctrl.Start()

	require.NoError(s.T(), s.ctrl.Authenticated(*testUser))

	assert.Equal(s.T(), StepPayment, s.ctrl.Snapshot().Step())
	assert.ErrorIs(s.T(), s.ctrl.Authenticated(*testUser), ErrInvalidTransition)
}

func (s *ControllerTestSuite) TestPaymentEmailComesFromSessionUser() {
	s.toPayment()
	s.payment.On("CollectAndConfirm", s.ctx, "a@b.com").Return(errors.New("declined")).Once()

	_ = s.ctrl.SubmitPayment(s.ctx)

	s.payment.AssertCalled(s.T(), "CollectAndConfirm", s.ctx, "a@b.com")
}

func (s *ControllerTestSuite) TestSuccessfulRunCompletesOnceAfterDelay() {
	s.toSuccess()

	snap := s.ctrl.Snapshot()
	assert.IsType(s.T(), SuccessStep{}, snap.View)
	assert.Empty(s.T(), snap.Error())
	s.activator.AssertCalled(s.T(), "Activate", s.ctx, "u1")

	s.clock.Advance(DefaultSuccessDelay - time.Millisecond)
	assert.Empty(s.T(), s.completed, "onComplete must not fire before the delay")

	s.clock.Advance(time.Millisecond)
	require.Len(s.T(), s.completed, 1)
	assert.Equal(s.T(), *testUser, s.completed[0])

	// 完成后流程关闭并重置
	snap = s.ctrl.Snapshot()
	assert.False(s.T(), snap.Visible)
	s.assertReset(snap)

	s.clock.Advance(time.Hour)
	assert.Len(s.T(), s.completed, 1)
}

func (s *ControllerTestSuite) TestActivationFailureStaysOnPayment() {
	s.toPayment()
	s.payment.On("CollectAndConfirm", s.ctx, "a@b.com").Return(nil).Once()
	s.activator.On("Activate", s.ctx, "u1").Return(errors.New("unavailable")).Once()

	err := s.ctrl.SubmitPayment(s.ctx)

	var stepErr *StepError
	require.ErrorAs(s.T(), err, &stepErr)
	assert.Equal(s.T(), MsgActivationFailed, stepErr.Message)

	snap := s.ctrl.Snapshot()
	require.IsType(s.T(), PaymentStep{}, snap.View)
	p := snap.View.(PaymentStep)
	assert.Equal(s.T(), "Failed to activate subscription", p.Err)
	assert.True(s.T(), p.Paid)
	assert.False(s.T(), p.Submitting)

	s.clock.Advance(time.Hour)
	assert.Empty(s.T(), s.completed)
	assert.Zero(s.T(), s.clock.pending())
}

func (s *ControllerTestSuite) TestResubmitAfterActivationFailureDoesNotChargeAgain() {
	s.toPayment()
	s.payment.On("CollectAndConfirm", s.ctx, "a@b.com").Return(nil).Once()
	s.activator.On("Activate", s.ctx, "u1").Return(errors.New("unavailable")).Once()
	_ = s.ctrl.SubmitPayment(s.ctx)

	s.activator.On("Activate", s.ctx, "u1").Return(nil).Once()
	require.NoError(s.T(), s.ctrl.SubmitPayment(s.ctx))

	s.payment.AssertNumberOfCalls(s.T(), "CollectAndConfirm", 1)
	s.activator.AssertNumberOfCalls(s.T(), "Activate", 2)
	assert.Equal(s.T(), StepSuccess, s.ctrl.Snapshot().Step())
}

func (s *ControllerTestSuite) TestRetryActivation() {
	s.toPayment()

	assert.ErrorIs(s.T(), s.ctrl.RetryActivation(s.ctx), ErrNotPaid)

	s.payment.On("CollectAndConfirm", s.ctx, "a@b.com").Return(nil).Once()
	s.activator.On("Activate", s.ctx, "u1").Return(errors.New("timeout")).Once()
	_ = s.ctrl.SubmitPayment(s.ctx)

	s.activator.On("Activate", s.ctx, "u1").Return(nil).Once()
	require.NoError(s.T(), s.ctrl.RetryActivation(s.ctx))

	assert.Equal(s.T(), StepSuccess, s.ctrl.Snapshot().Step())
	s.clock.Advance(DefaultSuccessDelay)
	assert.Len(s.T(), s.completed, 1)
}

func (s *ControllerTestSuite) TestPaymentFailureMessageVerbatim() {
	s.toPayment()
	s.payment.On("CollectAndConfirm", s.ctx, "a@b.com").Return(errors.New("Your card was declined.")).Once()

	err := s.ctrl.SubmitPayment(s.ctx)

	assert.Error(s.T(), err)
	snap := s.ctrl.Snapshot()
	assert.Equal(s.T(), StepPayment, snap.Step())
	assert.Equal(s.T(), "Your card was declined.", snap.Error())
	s.activator.AssertNotCalled(s.T(), "Activate", mock.Anything, mock.Anything)
}

func (s *ControllerTestSuite) TestPaymentRetryAfterDeclineClearsError() {
	s.toPayment()
	s.payment.On("CollectAndConfirm", s.ctx, "a@b.com").Return(errors.New("declined")).Once()
	_ = s.ctrl.SubmitPayment(s.ctx)

	s.payment.On("CollectAndConfirm", s.ctx, "a@b.com").Return(nil).Once()
	s.activator.On("Activate", s.ctx, "u1").Return(nil).Once()
	require.NoError(s.T(), s.ctrl.SubmitPayment(s.ctx))

	snap := s.ctrl.Snapshot()
	assert.Equal(s.T(), StepSuccess, snap.Step())
	assert.Empty(s.T(), snap.Error())
}

func (s *ControllerTestSuite) TestPaymentPanicBecomesFlowError() {
	s.toPayment()
	s.payment.On("CollectAndConfirm", s.ctx, "a@b.com").Run(func(mock.Arguments) {
		panic("card element missing")
	}).Return(nil).Once()

	err := s.ctrl.SubmitPayment(s.ctx)

	assert.Error(s.T(), err)
	snap := s.ctrl.Snapshot()
	assert.Equal(s.T(), StepPayment, snap.Step())
	assert.Equal(s.T(), MsgUnexpected, snap.Error())
	assert.False(s.T(), snap.View.(PaymentStep).Submitting)
}

func (s *ControllerTestSuite) TestActivationPanicBecomesFlowError() {
	s.toPayment()
	s.payment.On("CollectAndConfirm", s.ctx, "a@b.com").Return(nil).Once()
	s.activator.On("Activate", s.ctx, "u1").Run(func(mock.Arguments) {
		panic("nil response")
	}).Return(nil).Once()

	err := s.ctrl.SubmitPayment(s.ctx)

	assert.Error(s.T(), err)
	assert.Equal(s.T(), MsgActivationFailed, s.ctrl.Snapshot().Error())
	assert.Equal(s.T(), StepPayment, s.ctrl.Snapshot().Step())
}

func (s *ControllerTestSuite) TestSubmitPaymentOutsidePaymentStep() {
	s.ctrl.Start()

	assert.ErrorIs(s.T(), s.ctrl.SubmitPayment(s.ctx), ErrInvalidTransition)
	assert.ErrorIs(s.T(), s.ctrl.RetryActivation(s.ctx), ErrInvalidTransition)
}

func (s *ControllerTestSuite) TestResetFromEveryStep() {
	// Auth
	s.ctrl.Start()
	s.ctrl.Close()
	s.assertReset(s.ctrl.Snapshot())

	// Payment，带错误
	s.toPayment()
	s.payment.On("CollectAndConfirm", s.ctx, "a@b.com").Return(errors.New("declined")).Once()
	_ = s.ctrl.SubmitPayment(s.ctx)
	require.NotEmpty(s.T(), s.ctrl.Snapshot().Error())
	s.ctrl.Close()
	s.assertReset(s.ctrl.Snapshot())

	// Success
	s.toSuccess()
	s.ctrl.Close()
	snap := s.ctrl.Snapshot()
	assert.False(s.T(), snap.Visible)
	s.assertReset(snap)
}

func (s *ControllerTestSuite) TestCloseDuringSuccessCancelsCompletion() {
	s.toSuccess()
	require.Equal(s.T(), 1, s.clock.pending())

	s.ctrl.Close()

	assert.Zero(s.T(), s.clock.pending())
	s.clock.Advance(time.Hour)
	assert.Empty(s.T(), s.completed)
}

func (s *ControllerTestSuite) TestStartDuringSuccessCancelsCompletion() {
	s.toSuccess()

	s.ctrl.Start()

	s.clock.Advance(time.Hour)
	assert.Empty(s.T(), s.completed)
	assert.True(s.T(), s.ctrl.Snapshot().Visible)
	s.assertReset(s.ctrl.Snapshot())
}

func (s *ControllerTestSuite) TestOnChangeSeesEverySnapshot() {
	var steps []Step
	ctrl := New(s.identity, s.payment, s.activator,
		WithClock(s.clock),
		WithSuccessDelay(time.Second),
		WithOnChange(func(snap Snapshot) { steps = append(steps, snap.Step()) }),
	)
	s.identity.On("Authenticate", s.ctx, ModeSignUp).Return(testUser, nil).Once()
	s.payment.On("CollectAndConfirm", s.ctx, "a@b.com").Return(nil).Once()
	s.activator.On("Activate", s.ctx, "u1").Return(nil).Once()

	ctrl.Start()
	require.NoError(s.T(), ctrl.Authenticate(s.ctx, ModeSignUp))
	require.NoError(s.T(), ctrl.SubmitPayment(s.ctx))
	s.clock.Advance(time.Second)

	assert.Equal(s.T(), []Step{StepAuth, StepPayment, StepPayment, StepPayment, StepSuccess, StepAuth}, steps)
}

func (s *ControllerTestSuite) TestConfirmedPaymentPublishedBeforeActivation() {
	var views []PaymentStep
	ctrl := New(s.identity, s.payment, s.activator,
		WithClock(s.clock),
		WithOnChange(func(snap Snapshot) {
			if p, ok := snap.View.(PaymentStep); ok {
				views = append(views, p)
			}
		}),
	)
	s.identity.On("Authenticate", s.ctx, ModeSignUp).Return(testUser, nil).Once()
	s.payment.On("CollectAndConfirm", s.ctx, "a@b.com").Return(errors.New("declined")).Once()
	s.payment.On("CollectAndConfirm", s.ctx, "a@b.com").Return(nil).Once()

	var atActivation []PaymentStep
	s.activator.On("Activate", s.ctx, "u1").Return(nil).Once().Run(func(mock.Arguments) {
		atActivation = append([]PaymentStep(nil), views...)
	})

	ctrl.Start()
	require.NoError(s.T(), ctrl.Authenticate(s.ctx, ModeSignUp))
	require.Error(s.T(), ctrl.SubmitPayment(s.ctx))
	require.NoError(s.T(), ctrl.SubmitPayment(s.ctx))

	// 激活开始前，观察者已经看到支付确认且旧错误已清除
	require.NotEmpty(s.T(), atActivation)
	last := atActivation[len(atActivation)-1]
	assert.True(s.T(), last.Paid)
	assert.Empty(s.T(), last.Err)
	assert.True(s.T(), last.Submitting)
}

func TestControllerTestSuite(t *testing.T) {
	suite.Run(t, new(ControllerTestSuite))
}

// blockingPayment 在 release 关闭前阻塞
type blockingPayment struct {
	started chan struct{}
	release chan struct{}
	err     error
}

func (b *blockingPayment) CollectAndConfirm(ctx context.Context, email string) error {
	close(b.started)
	<-b.release
	return b.err
}

func TestSubmitPaymentRejectsConcurrentSubmit(t *testing.T) {
	identity := new(MockIdentity)
	identity.On("Authenticate", mock.Anything, ModeSignUp).Return(testUser, nil)
	activator := new(MockActivator)
	activator.On("Activate", mock.Anything, "u1").Return(nil)
	payment := &blockingPayment{started: make(chan struct{}), release: make(chan struct{})}

	ctrl := New(identity, payment, activator, WithClock(&manualClock{}))
	ctrl.Start()
	require.NoError(t, ctrl.Authenticate(context.Background(), ModeSignUp))

	done := make(chan error, 1)
	go func() { done <- ctrl.SubmitPayment(context.Background()) }()
	<-payment.started

	assert.True(t, ctrl.Snapshot().View.(PaymentStep).Submitting)
	assert.ErrorIs(t, ctrl.SubmitPayment(context.Background()), ErrSubmitInFlight)

	close(payment.release)
	require.NoError(t, <-done)
	assert.Equal(t, StepSuccess, ctrl.Snapshot().Step())
	activator.AssertNumberOfCalls(t, "Activate", 1)
}

func TestStaleResultDoesNotLeakIntoNewRun(t *testing.T) {
	identity := new(MockIdentity)
	identity.On("Authenticate", mock.Anything, ModeSignUp).Return(testUser, nil)
	activator := new(MockActivator)
	payment := &blockingPayment{started: make(chan struct{}), release: make(chan struct{})}
	clock := &manualClock{}

	var completed int
	ctrl := New(identity, payment, activator,
		WithClock(clock),
		WithOnComplete(func(SessionUser) { completed++ }),
	)
	ctrl.Start()
	require.NoError(t, ctrl.Authenticate(context.Background(), ModeSignUp))

	done := make(chan error, 1)
	go func() { done <- ctrl.SubmitPayment(context.Background()) }()
	<-payment.started

	// 支付进行中关闭并重新开始
	ctrl.Close()
	ctrl.Start()

	close(payment.release)
	assert.ErrorIs(t, <-done, ErrFlowReset)

	snap := ctrl.Snapshot()
	assert.True(t, snap.Visible)
	assert.Equal(t, StepAuth, snap.Step())
	assert.Nil(t, snap.User())
	activator.AssertNotCalled(t, "Activate", mock.Anything, mock.Anything)
	clock.Advance(time.Hour)
	assert.Zero(t, completed)
}

func TestScenarioActivationServerError(t *testing.T) {
	ctx := context.Background()
	identity := new(MockIdentity)
	identity.On("Authenticate", ctx, ModeSignUp).Return(&SessionUser{ID: "u1", Email: "a@b.com"}, nil)
	payment := new(MockPayment)
	payment.On("CollectAndConfirm", ctx, "a@b.com").Return(nil)
	activator := new(MockActivator)
	activator.On("Activate", ctx, "u1").Return(errors.New("activation endpoint returned 500"))

	var completed int
	clock := &manualClock{}
	ctrl := New(identity, payment, activator, WithClock(clock), WithOnComplete(func(SessionUser) { completed++ }))

	ctrl.Start()
	require.NoError(t, ctrl.Authenticate(ctx, ModeSignUp))
	require.Equal(t, StepPayment, ctrl.Snapshot().Step())
	_ = ctrl.SubmitPayment(ctx)

	snap := ctrl.Snapshot()
	assert.Equal(t, StepPayment, snap.Step())
	assert.Equal(t, "Failed to activate subscription", snap.Error())
	clock.Advance(10 * time.Second)
	assert.Zero(t, completed)
}

func TestRealClockFiresCompletion(t *testing.T) {
	identity := new(MockIdentity)
	identity.On("Authenticate", mock.Anything, ModeSignIn).Return(testUser, nil)
	payment := new(MockPayment)
	payment.On("CollectAndConfirm", mock.Anything, "a@b.com").Return(nil)
	activator := new(MockActivator)
	activator.On("Activate", mock.Anything, "u1").Return(nil)

	done := make(chan SessionUser, 1)
	ctrl := New(identity, payment, activator,
		WithSuccessDelay(10*time.Millisecond),
		WithOnComplete(func(u SessionUser) { done <- u }),
	)
	ctrl.Start()
	require.NoError(t, ctrl.Authenticate(context.Background(), ModeSignIn))
	require.NoError(t, ctrl.SubmitPayment(context.Background()))

	select {
	case u := <-done:
		assert.Equal(t, "u1", u.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("completion callback did not fire")
	}
}

func TestParseAuthMode(t *testing.T) {
	mode, err := ParseAuthMode("signin")
	assert.NoError(t, err)
	assert.Equal(t, ModeSignIn, mode)

	mode, err = ParseAuthMode("")
	assert.NoError(t, err)
	assert.Equal(t, ModeSignUp, mode)

	_, err = ParseAuthMode("magic-link")
	assert.Error(t, err)
}
