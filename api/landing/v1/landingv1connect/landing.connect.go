package landingv1connect

import (
	"context"
	"net/http"
	"strings"

	v1 "github.com/888wing/sixarms-landing/api/landing/v1"

	"connectrpc.com/connect"
)

const (
	AuthServiceName         = "landing.v1.AuthService"
	SubscriptionServiceName = "landing.v1.SubscriptionService"
	WaitlistServiceName     = "landing.v1.WaitlistService"
	CheckServiceName        = "landing.v1.CheckService"
)

const (
	AuthServiceSignUpProcedure         = "/landing.v1.AuthService/SignUp"
	AuthServiceSignInProcedure         = "/landing.v1.AuthService/SignIn"
	AuthServiceGetSessionProcedure     = "/landing.v1.AuthService/GetSession"
	AuthServiceRefreshSessionProcedure = "/landing.v1.AuthService/RefreshSession"
	AuthServiceSignOutProcedure        = "/landing.v1.AuthService/SignOut"

	SubscriptionServiceCreatePaymentIntentProcedure = "/landing.v1.SubscriptionService/CreatePaymentIntent"
	SubscriptionServiceConfirmPaymentProcedure      = "/landing.v1.SubscriptionService/ConfirmPayment"
	SubscriptionServiceActivateProcedure            = "/landing.v1.SubscriptionService/Activate"

	WaitlistServiceSubscribeProcedure = "/landing.v1.WaitlistService/Subscribe"

	CheckServiceReadyProcedure = "/landing.v1.CheckService/Ready"
)

// handlerOptions 总是先注册 JSON 编解码
func handlerOptions(opts []connect.HandlerOption) connect.HandlerOption {
	return connect.WithHandlerOptions(append([]connect.HandlerOption{connect.WithCodec(JSONCodec{})}, opts...)...)
}

func clientOptions(opts []connect.ClientOption) connect.ClientOption {
	return connect.WithClientOptions(append([]connect.ClientOption{connect.WithCodec(JSONCodec{})}, opts...)...)
}

// route 按 procedure 分发到对应 handler
func route(handlers map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := handlers[r.URL.Path]; ok {
			h.ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
	})
}

// AuthServiceHandler 身份服务
type AuthServiceHandler interface {
	SignUp(context.Context, *connect.Request[v1.SignUpRequest]) (*connect.Response[v1.SessionResponse], error)
	SignIn(context.Context, *connect.Request[v1.SignInRequest]) (*connect.Response[v1.SessionResponse], error)
	GetSession(context.Context, *connect.Request[v1.GetSessionRequest]) (*connect.Response[v1.SessionResponse], error)
	RefreshSession(context.Context, *connect.Request[v1.RefreshSessionRequest]) (*connect.Response[v1.SessionResponse], error)
	SignOut(context.Context, *connect.Request[v1.SignOutRequest]) (*connect.Response[v1.SignOutResponse], error)
}

func NewAuthServiceHandler(svc AuthServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	o := handlerOptions(opts)
	return "/" + AuthServiceName + "/", route(map[string]http.Handler{
		AuthServiceSignUpProcedure:         connect.NewUnaryHandler(AuthServiceSignUpProcedure, svc.SignUp, o),
		AuthServiceSignInProcedure:         connect.NewUnaryHandler(AuthServiceSignInProcedure, svc.SignIn, o),
		AuthServiceGetSessionProcedure:     connect.NewUnaryHandler(AuthServiceGetSessionProcedure, svc.GetSession, o),
		AuthServiceRefreshSessionProcedure: connect.NewUnaryHandler(AuthServiceRefreshSessionProcedure, svc.RefreshSession, o),
		AuthServiceSignOutProcedure:        connect.NewUnaryHandler(AuthServiceSignOutProcedure, svc.SignOut, o),
	})
}

// AuthServiceClient 身份服务客户端
type AuthServiceClient interface {
	SignUp(context.Context, *connect.Request[v1.SignUpRequest]) (*connect.Response[v1.SessionResponse], error)
	SignIn(context.Context, *connect.Request[v1.SignInRequest]) (*connect.Response[v1.SessionResponse], error)
	GetSession(context.Context, *connect.Request[v1.GetSessionRequest]) (*connect.Response[v1.SessionResponse], error)
	RefreshSession(context.Context, *connect.Request[v1.RefreshSessionRequest]) (*connect.Response[v1.SessionResponse], error)
	SignOut(context.Context, *connect.Request[v1.SignOutRequest]) (*connect.Response[v1.SignOutResponse], error)
}

type authServiceClient struct {
	signUp         *connect.Client[v1.SignUpRequest, v1.SessionResponse]
	signIn         *connect.Client[v1.SignInRequest, v1.SessionResponse]
	getSession     *connect.Client[v1.GetSessionRequest, v1.SessionResponse]
	refreshSession *connect.Client[v1.RefreshSessionRequest, v1.SessionResponse]
	signOut        *connect.Client[v1.SignOutRequest, v1.SignOutResponse]
}

func NewAuthServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) AuthServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	o := clientOptions(opts)
	return &authServiceClient{
		signUp:         connect.NewClient[v1.SignUpRequest, v1.SessionResponse](httpClient, baseURL+AuthServiceSignUpProcedure, o),
		signIn:         connect.NewClient[v1.SignInRequest, v1.SessionResponse](httpClient, baseURL+AuthServiceSignInProcedure, o),
		getSession:     connect.NewClient[v1.GetSessionRequest, v1.SessionResponse](httpClient, baseURL+AuthServiceGetSessionProcedure, o),
		refreshSession: connect.NewClient[v1.RefreshSessionRequest, v1.SessionResponse](httpClient, baseURL+AuthServiceRefreshSessionProcedure, o),
		signOut:        connect.NewClient[v1.SignOutRequest, v1.SignOutResponse](httpClient, baseURL+AuthServiceSignOutProcedure, o),
	}
}

func (c *authServiceClient) SignUp(ctx context.Context, req *connect.Request[v1.SignUpRequest]) (*connect.Response[v1.SessionResponse], error) {
	return c.signUp.CallUnary(ctx, req)
}

func (c *authServiceClient) SignIn(ctx context.Context, req *connect.Request[v1.SignInRequest]) (*connect.Response[v1.SessionResponse], error) {
	return c.signIn.CallUnary(ctx, req)
}

func (c *authServiceClient) GetSession(ctx context.Context, req *connect.Request[v1.GetSessionRequest]) (*connect.Response[v1.SessionResponse], error) {
	return c.getSession.CallUnary(ctx, req)
}

func (c *authServiceClient) RefreshSession(ctx context.Context, req *connect.Request[v1.RefreshSessionRequest]) (*connect.Response[v1.SessionResponse], error) {
	return c.refreshSession.CallUnary(ctx, req)
}

func (c *authServiceClient) SignOut(ctx context.Context, req *connect.Request[v1.SignOutRequest]) (*connect.Response[v1.SignOutResponse], error) {
	return c.signOut.CallUnary(ctx, req)
}

// SubscriptionServiceHandler 支付与订阅激活服务
type SubscriptionServiceHandler interface {
	CreatePaymentIntent(context.Context, *connect.Request[v1.CreatePaymentIntentRequest]) (*connect.Response[v1.CreatePaymentIntentResponse], error)
	ConfirmPayment(context.Context, *connect.Request[v1.ConfirmPaymentRequest]) (*connect.Response[v1.ConfirmPaymentResponse], error)
	Activate(context.Context, *connect.Request[v1.ActivateSubscriptionRequest]) (*connect.Response[v1.ActivateSubscriptionResponse], error)
}

func NewSubscriptionServiceHandler(svc SubscriptionServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	o := handlerOptions(opts)
	return "/" + SubscriptionServiceName + "/", route(map[string]http.Handler{
		SubscriptionServiceCreatePaymentIntentProcedure: connect.NewUnaryHandler(SubscriptionServiceCreatePaymentIntentProcedure, svc.CreatePaymentIntent, o),
		SubscriptionServiceConfirmPaymentProcedure:      connect.NewUnaryHandler(SubscriptionServiceConfirmPaymentProcedure, svc.ConfirmPayment, o),
		SubscriptionServiceActivateProcedure:            connect.NewUnaryHandler(SubscriptionServiceActivateProcedure, svc.Activate, o),
	})
}

// SubscriptionServiceClient 支付与订阅激活客户端
type SubscriptionServiceClient interface {
	CreatePaymentIntent(context.Context, *connect.Request[v1.CreatePaymentIntentRequest]) (*connect.Response[v1.CreatePaymentIntentResponse], error)
	ConfirmPayment(context.Context, *connect.Request[v1.ConfirmPaymentRequest]) (*connect.Response[v1.ConfirmPaymentResponse], error)
	Activate(context.Context, *connect.Request[v1.ActivateSubscriptionRequest]) (*connect.Response[v1.ActivateSubscriptionResponse], error)
}

type subscriptionServiceClient struct {
	createPaymentIntent *connect.Client[v1.CreatePaymentIntentRequest, v1.CreatePaymentIntentResponse]
	confirmPayment      *connect.Client[v1.ConfirmPaymentRequest, v1.ConfirmPaymentResponse]
	activate            *connect.Client[v1.ActivateSubscriptionRequest, v1.ActivateSubscriptionResponse]
}

func NewSubscriptionServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) SubscriptionServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	o := clientOptions(opts)
	return &subscriptionServiceClient{
		createPaymentIntent: connect.NewClient[v1.CreatePaymentIntentRequest, v1.CreatePaymentIntentResponse](httpClient, baseURL+SubscriptionServiceCreatePaymentIntentProcedure, o),
		confirmPayment:      connect.NewClient[v1.ConfirmPaymentRequest, v1.ConfirmPaymentResponse](httpClient, baseURL+SubscriptionServiceConfirmPaymentProcedure, o),
		activate:            connect.NewClient[v1.ActivateSubscriptionRequest, v1.ActivateSubscriptionResponse](httpClient, baseURL+SubscriptionServiceActivateProcedure, o),
	}
}

func (c *subscriptionServiceClient) CreatePaymentIntent(ctx context.Context, req *connect.Request[v1.CreatePaymentIntentRequest]) (*connect.Response[v1.CreatePaymentIntentResponse], error) {
	return c.createPaymentIntent.CallUnary(ctx, req)
}

func (c *subscriptionServiceClient) ConfirmPayment(ctx context.Context, req *connect.Request[v1.ConfirmPaymentRequest]) (*connect.Response[v1.ConfirmPaymentResponse], error) {
	return c.confirmPayment.CallUnary(ctx, req)
}

func (c *subscriptionServiceClient) Activate(ctx context.Context, req *connect.Request[v1.ActivateSubscriptionRequest]) (*connect.Response[v1.ActivateSubscriptionResponse], error) {
	return c.activate.CallUnary(ctx, req)
}

// WaitlistServiceHandler 候补名单
type WaitlistServiceHandler interface {
	Subscribe(context.Context, *connect.Request[v1.SubscribeRequest]) (*connect.Response[v1.SubscribeResponse], error)
}

func NewWaitlistServiceHandler(svc WaitlistServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	o := handlerOptions(opts)
	return "/" + WaitlistServiceName + "/", route(map[string]http.Handler{
		WaitlistServiceSubscribeProcedure: connect.NewUnaryHandler(WaitlistServiceSubscribeProcedure, svc.Subscribe, o),
	})
}

// CheckServiceHandler 就绪检查
type CheckServiceHandler interface {
	Ready(context.Context, *connect.Request[v1.ReadyCheckReq]) (*connect.Response[v1.ReadyCheckReply], error)
}

func NewCheckServiceHandler(svc CheckServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	o := handlerOptions(opts)
	return "/" + CheckServiceName + "/", route(map[string]http.Handler{
		CheckServiceReadyProcedure: connect.NewUnaryHandler(CheckServiceReadyProcedure, svc.Ready, o),
	})
}
