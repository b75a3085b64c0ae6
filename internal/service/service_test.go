package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	v1 "github.com/888wing/sixarms-landing/api/landing/v1"
	"github.com/888wing/sixarms-landing/api/landing/v1/landingv1connect"
	"github.com/888wing/sixarms-landing/internal/biz/model"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

// MockUserUseCase 是 UserUseCase 的模拟实现
type MockUserUseCase struct {
	mock.Mock
}

func (m *MockUserUseCase) session(args mock.Arguments) (*model.Session, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *MockUserUseCase) SignUp(ctx context.Context, email, password string) (*model.Session, error) {
	return m.session(m.Called(ctx, email, password))
}

func (m *MockUserUseCase) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	return m.session(m.Called(ctx, email, password))
}

func (m *MockUserUseCase) GetSession(ctx context.Context, token string) (*model.Session, error) {
	return m.session(m.Called(ctx, token))
}

func (m *MockUserUseCase) RefreshSession(ctx context.Context, token string) (*model.Session, error) {
	return m.session(m.Called(ctx, token))
}

func (m *MockUserUseCase) SignOut(ctx context.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}

// MockSubscriptionUseCase 是 SubscriptionUseCase 的模拟实现
type MockSubscriptionUseCase struct {
	mock.Mock
}

func (m *MockSubscriptionUseCase) CreatePaymentIntent(ctx context.Context, email string) (*model.PaymentIntent, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PaymentIntent), args.Error(1)
}

func (m *MockSubscriptionUseCase) ConfirmPayment(ctx context.Context, clientSecret, paymentMethod string) (*model.PaymentIntent, error) {
	args := m.Called(ctx, clientSecret, paymentMethod)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PaymentIntent), args.Error(1)
}

func (m *MockSubscriptionUseCase) Activate(ctx context.Context, userID string) (*model.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Subscription), args.Error(1)
}

// MockWaitlistUseCase 是 WaitlistUseCase 的模拟实现
type MockWaitlistUseCase struct {
	mock.Mock
}

func (m *MockWaitlistUseCase) Subscribe(ctx context.Context, email, source string) (*model.SubscribeResult, error) {
	args := m.Called(ctx, email, source)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SubscribeResult), args.Error(1)
}

// MockCheckUseCase 是 CheckUseCase 的模拟实现
type MockCheckUseCase struct {
	mock.Mock
}

func (m *MockCheckUseCase) Ready(ctx context.Context, req model.HealthCheckReq) (model.HealthCheckReply, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(model.HealthCheckReply), args.Error(1)
}

var testSession = &model.Session{
	User:      model.User{ID: "u1", Email: "a@b.com"},
	Token:     "tok",
	TokenID:   "jti",
	ExpiresAt: time.Unix(1700000000, 0),
}

// AuthServiceTestSuite 是 AuthService 的测试套件
type AuthServiceTestSuite struct {
	suite.Suite
	userUseCase *MockUserUseCase
	authService landingv1connect.AuthServiceHandler
	ctx         context.Context
}

func (suite *AuthServiceTestSuite) SetupTest() {
	suite.userUseCase = new(MockUserUseCase)
	suite.authService = NewAuthService(suite.userUseCase)
	suite.ctx = context.Background()
}

func (suite *AuthServiceTestSuite) TestSignUp_Success() {
	suite.userUseCase.On("SignUp", suite.ctx, "a@b.com", "correct-horse").Return(testSession, nil)

	resp, err := suite.authService.SignUp(suite.ctx, connect.NewRequest(&v1.SignUpRequest{
		Email: "a@b.com", Password: "correct-horse",
	}))

	suite.Require().NoError(err)
	suite.Equal("u1", resp.Msg.User.Id)
	suite.Equal("a@b.com", resp.Msg.User.Email)
	suite.Equal("tok", resp.Msg.AccessToken)
	suite.Equal(int64(1700000000), resp.Msg.ExpiresAt)
}

func (suite *AuthServiceTestSuite) TestSignIn_Error() {
	expectedError := connect.NewError(connect.CodeUnauthenticated, errors.New("authentication failed"))
	suite.userUseCase.On("SignIn", suite.ctx, "a@b.com", "nope").Return(nil, expectedError)

	resp, err := suite.authService.SignIn(suite.ctx, connect.NewRequest(&v1.SignInRequest{
		Email: "a@b.com", Password: "nope",
	}))

	suite.Nil(resp)
	suite.Equal(expectedError, err)
}

func (suite *AuthServiceTestSuite) TestGetSession_ReadsBearerToken() {
	suite.userUseCase.On("GetSession", suite.ctx, "tok").Return(testSession, nil)

	req := connect.NewRequest(&v1.GetSessionRequest{})
	req.Header().Set("Authorization", "Bearer tok")
	resp, err := suite.authService.GetSession(suite.ctx, req)

	suite.Require().NoError(err)
	suite.Equal("u1", resp.Msg.User.Id)
}

func (suite *AuthServiceTestSuite) TestRefreshAndSignOut() {
	refreshed := *testSession
	refreshed.Token = "tok2"
	suite.userUseCase.On("RefreshSession", suite.ctx, "tok").Return(&refreshed, nil)
	suite.userUseCase.On("SignOut", suite.ctx, "tok2").Return(nil)

	req := connect.NewRequest(&v1.RefreshSessionRequest{})
	req.Header().Set("Authorization", "Bearer tok")
	resp, err := suite.authService.RefreshSession(suite.ctx, req)
	suite.Require().NoError(err)
	suite.Equal("tok2", resp.Msg.AccessToken)

	out := connect.NewRequest(&v1.SignOutRequest{})
	out.Header().Set("Authorization", "bearer tok2")
	_, err = suite.authService.SignOut(suite.ctx, out)
	suite.NoError(err)
}

// SubscriptionServiceTestSuite 是 SubscriptionService 的测试套件
type SubscriptionServiceTestSuite struct {
	suite.Suite
	uc      *MockSubscriptionUseCase
	service landingv1connect.SubscriptionServiceHandler
	ctx     context.Context
}

func (suite *SubscriptionServiceTestSuite) SetupTest() {
	suite.uc = new(MockSubscriptionUseCase)
	suite.service = NewSubscriptionService(suite.uc)
	suite.ctx = model.WithSessionUser(context.Background(), testSession.User)
}

func (suite *SubscriptionServiceTestSuite) TestCreatePaymentIntent() {
	suite.uc.On("CreatePaymentIntent", suite.ctx, "a@b.com").Return(&model.PaymentIntent{
		ID: "pi_1", ClientSecret: "pi_1_secret_x", Amount: 1000, Currency: "usd",
	}, nil)

	resp, err := suite.service.CreatePaymentIntent(suite.ctx, connect.NewRequest(&v1.CreatePaymentIntentRequest{Email: "a@b.com"}))

	suite.Require().NoError(err)
	suite.Equal("pi_1_secret_x", resp.Msg.ClientSecret)
	suite.Equal(int64(1000), resp.Msg.Amount)
}

func (suite *SubscriptionServiceTestSuite) TestConfirmPayment_DeclinePassesThrough() {
	declined := connect.NewError(connect.CodeFailedPrecondition, &model.PaymentDeclinedError{Message: "Your card was declined."})
	suite.uc.On("ConfirmPayment", suite.ctx, "pi_1_secret_x", "pm_card_visa").Return(nil, declined)

	_, err := suite.service.ConfirmPayment(suite.ctx, connect.NewRequest(&v1.ConfirmPaymentRequest{
		ClientSecret: "pi_1_secret_x", PaymentMethod: "pm_card_visa",
	}))

	suite.Equal(declined, err)
}

func (suite *SubscriptionServiceTestSuite) TestActivate() {
	suite.uc.On("Activate", suite.ctx, "u1").Return(&model.Subscription{
		UserID: "u1", Status: "active", Credits: 500, Created: true,
	}, nil)

	resp, err := suite.service.Activate(suite.ctx, connect.NewRequest(&v1.ActivateSubscriptionRequest{UserId: "u1"}))

	suite.Require().NoError(err)
	suite.Equal("active", resp.Msg.Status)
	suite.Equal(int32(500), resp.Msg.Credits)
	suite.True(resp.Msg.Created)
}

// CheckServiceTestSuite 是 CheckService 的测试套件
type CheckServiceTestSuite struct {
	suite.Suite
	checkUseCase *MockCheckUseCase
	checkService landingv1connect.CheckServiceHandler
}

func (suite *CheckServiceTestSuite) SetupTest() {
	suite.checkUseCase = new(MockCheckUseCase)
	suite.checkService = NewCheckService(suite.checkUseCase)
}

func (suite *CheckServiceTestSuite) TestReady_Success() {
	ctx := context.Background()
	suite.checkUseCase.On("Ready", ctx, model.HealthCheckReq{}).Return(model.HealthCheckReply{Status: model.StatusReady}, nil)

	resp, err := suite.checkService.Ready(ctx, connect.NewRequest(&v1.ReadyCheckReq{}))

	suite.Require().NoError(err)
	suite.Equal("Ready", resp.Msg.Status)
}

func (suite *CheckServiceTestSuite) TestReady_Unhealthy() {
	ctx := context.Background()
	suite.checkUseCase.On("Ready", ctx, model.HealthCheckReq{}).Return(model.HealthCheckReply{
		Status:  model.StatusUnhealthy,
		Details: map[string]string{"Components": "Redis"},
	}, connect.NewError(connect.CodeUnavailable, errors.New("redis down")))

	resp, err := suite.checkService.Ready(ctx, connect.NewRequest(&v1.ReadyCheckReq{}))

	suite.Nil(resp)
	var cerr *connect.Error
	suite.Require().ErrorAs(err, &cerr)
	suite.Equal(connect.CodeUnavailable, cerr.Code())
	suite.Equal("Redis", cerr.Meta().Get("x-check-Components"))
}

// 运行测试套件
func TestAuthServiceTestSuite(t *testing.T) {
	suite.Run(t, new(AuthServiceTestSuite))
}

func TestSubscriptionServiceTestSuite(t *testing.T) {
	suite.Run(t, new(SubscriptionServiceTestSuite))
}

func TestCheckServiceTestSuite(t *testing.T) {
	suite.Run(t, new(CheckServiceTestSuite))
}

func TestWaitlistService_Subscribe(t *testing.T) {
	uc := new(MockWaitlistUseCase)
	svc := NewWaitlistService(uc)
	ctx := context.Background()
	uc.On("Subscribe", ctx, "a@b.com", "").Return(&model.SubscribeResult{Created: true, Message: "Successfully subscribed!"}, nil)

	resp, err := svc.Subscribe(ctx, connect.NewRequest(&v1.SubscribeRequest{Email: "a@b.com"}))

	require.NoError(t, err)
	assert.True(t, resp.Msg.Success)
	assert.Equal(t, "Successfully subscribed!", resp.Msg.Message)
}

// RESTHandlerTestSuite 是 REST 兼容路由的测试套件
type RESTHandlerTestSuite struct {
	suite.Suite
	users    *MockUserUseCase
	subs     *MockSubscriptionUseCase
	waitlist *MockWaitlistUseCase
	mux      *http.ServeMux
}

func (suite *RESTHandlerTestSuite) SetupTest() {
	suite.users = new(MockUserUseCase)
	suite.subs = new(MockSubscriptionUseCase)
	suite.waitlist = new(MockWaitlistUseCase)
	suite.mux = http.NewServeMux()
	NewRESTHandler(suite.users, suite.subs, suite.waitlist, zap.NewNop()).Register(suite.mux)
}

func (suite *RESTHandlerTestSuite) do(method, path, body, token string) (*httptest.ResponseRecorder, map[string]any) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	suite.mux.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		suite.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func (suite *RESTHandlerTestSuite) TestPreflight() {
	rec, _ := suite.do(http.MethodOptions, RouteSubscribe, "", "")

	suite.Equal(http.StatusNoContent, rec.Code)
	suite.Equal("*", rec.Header().Get("Access-Control-Allow-Origin"))
	suite.Contains(rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func (suite *RESTHandlerTestSuite) TestMethodNotAllowed() {
	rec, _ := suite.do(http.MethodGet, RouteSubscribe, "", "")
	suite.Equal(http.StatusMethodNotAllowed, rec.Code)
}

func (suite *RESTHandlerTestSuite) TestSubscribe() {
	suite.waitlist.On("Subscribe", mock.Anything, "a@b.com", "").Return(&model.SubscribeResult{
		Created: false, Message: "Already subscribed!",
	}, nil)

	rec, out := suite.do(http.MethodPost, RouteSubscribe, `{"email":"a@b.com"}`, "")

	suite.Equal(http.StatusOK, rec.Code)
	suite.Equal("*", rec.Header().Get("Access-Control-Allow-Origin"))
	suite.Equal(true, out["success"])
	suite.Equal("Already subscribed!", out["message"])
}

func (suite *RESTHandlerTestSuite) TestSubscribe_InvalidEmail() {
	suite.waitlist.On("Subscribe", mock.Anything, "nope", "").
		Return(nil, connect.NewError(connect.CodeInvalidArgument, errors.New("Invalid email address")))

	rec, out := suite.do(http.MethodPost, RouteSubscribe, `{"email":"nope"}`, "")

	suite.Equal(http.StatusBadRequest, rec.Code)
	suite.Equal(false, out["success"])
	suite.Equal("Invalid email address", out["error"])
}

func (suite *RESTHandlerTestSuite) TestSubscribe_MalformedBody() {
	rec, out := suite.do(http.MethodPost, RouteSubscribe, `{`, "")

	suite.Equal(http.StatusBadRequest, rec.Code)
	suite.Equal("Invalid email address", out["error"])
}

func (suite *RESTHandlerTestSuite) TestActivate_RequiresSession() {
	suite.users.On("GetSession", mock.Anything, "").
		Return(nil, connect.NewError(connect.CodeUnauthenticated, errors.New("missing session token")))

	rec, _ := suite.do(http.MethodPost, RouteActivateSubscription, `{"userId":"u1"}`, "")

	suite.Equal(http.StatusUnauthorized, rec.Code)
	suite.subs.AssertNotCalled(suite.T(), "Activate", mock.Anything, mock.Anything)
}

func (suite *RESTHandlerTestSuite) TestActivate() {
	suite.users.On("GetSession", mock.Anything, "tok").Return(testSession, nil)
	suite.subs.On("Activate", mock.MatchedBy(func(ctx context.Context) bool {
		u, ok := model.SessionUserFromContext(ctx)
		return ok && u.ID == "u1"
	}), "u1").Return(&model.Subscription{UserID: "u1", Status: "active", Credits: 500}, nil)

	rec, out := suite.do(http.MethodPost, RouteActivateSubscription, `{"userId":"u1"}`, "tok")

	suite.Equal(http.StatusOK, rec.Code)
	suite.Equal(true, out["success"])
	suite.Equal("active", out["status"])
	suite.Equal(float64(500), out["credits"])
}

func (suite *RESTHandlerTestSuite) TestActivate_ServerError() {
	suite.users.On("GetSession", mock.Anything, "tok").Return(testSession, nil)
	suite.subs.On("Activate", mock.Anything, "u1").Return(nil, errors.New("boom"))

	rec, out := suite.do(http.MethodPost, RouteActivateSubscription, `{"userId":"u1"}`, "tok")

	suite.Equal(http.StatusInternalServerError, rec.Code)
	suite.Equal(false, out["success"])
}

func (suite *RESTHandlerTestSuite) TestCreatePaymentIntent() {
	suite.users.On("GetSession", mock.Anything, "tok").Return(testSession, nil)
	suite.subs.On("CreatePaymentIntent", mock.Anything, "a@b.com").Return(&model.PaymentIntent{
		ID: "pi_1", ClientSecret: "pi_1_secret_x", Amount: 1000, Currency: "usd",
	}, nil)

	rec, out := suite.do(http.MethodPost, RouteCreatePaymentIntent, `{"email":"a@b.com"}`, "tok")

	suite.Equal(http.StatusOK, rec.Code)
	suite.Equal("pi_1_secret_x", out["clientSecret"])
}

func TestRESTHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(RESTHandlerTestSuite))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, httpStatus(connect.CodeInvalidArgument))
	assert.Equal(t, http.StatusForbidden, httpStatus(connect.CodePermissionDenied))
	assert.Equal(t, http.StatusConflict, httpStatus(connect.CodeAlreadyExists))
	assert.Equal(t, http.StatusServiceUnavailable, httpStatus(connect.CodeUnavailable))
	assert.Equal(t, http.StatusInternalServerError, httpStatus(connect.CodeInternal))
}
