package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/888wing/sixarms-landing/api/landing/v1/landingv1connect"
	conf "github.com/888wing/sixarms-landing/internal/conf/v1"
	"github.com/888wing/sixarms-landing/internal/service"

	"connectrpc.com/connect"
	connectcors "connectrpc.com/cors"
	"connectrpc.com/otelconnect"
	"github.com/rs/cors"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// HealthPath 存活检查，供 Consul HTTP check 使用
const HealthPath = "/healthz"

var Module = fx.Module("server",
	fx.Provide(
		NewHandler,
		NewHTTPServer,
	),
)

// HandlerParams 组装路由所需的依赖
type HandlerParams struct {
	fx.In

	Config          *conf.Bootstrap
	Auth            landingv1connect.AuthServiceHandler
	Subscription    landingv1connect.SubscriptionServiceHandler
	Waitlist        landingv1connect.WaitlistServiceHandler
	Check           landingv1connect.CheckServiceHandler
	REST            *service.RESTHandler
	Monitoring      func(http.Handler) http.Handler
	Interceptor     connect.UnaryInterceptorFunc
	AuthInterceptor AuthInterceptor
	Limiter         *ClientRateLimiter
}

// NewHandler 处理链：监控 -> 限流 -> 路由。
// Connect 路由经过 CORS 中间件，REST 兼容路由自行返回 Allow-Origin: *。
func NewHandler(p HandlerParams) (http.Handler, error) {
	otelInterceptor, err := otelconnect.NewInterceptor(
		otelconnect.WithoutServerPeerAttributes(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create otel interceptor: %w", err)
	}

	// 顺序：追踪 -> 监控 -> 鉴权
	interceptors := connect.WithInterceptors(
		otelInterceptor,
		p.Interceptor,
		connect.UnaryInterceptorFunc(p.AuthInterceptor),
	)

	rpc := http.NewServeMux()
	rpc.Handle(landingv1connect.NewAuthServiceHandler(p.Auth, interceptors))
	rpc.Handle(landingv1connect.NewSubscriptionServiceHandler(p.Subscription, interceptors))
	rpc.Handle(landingv1connect.NewWaitlistServiceHandler(p.Waitlist, interceptors))
	rpc.Handle(landingv1connect.NewCheckServiceHandler(p.Check, interceptors))

	origins := p.Config.Server.Http.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   connectcors.AllowedMethods(),
		AllowedHeaders:   append(connectcors.AllowedHeaders(), "Authorization"),
		ExposedHeaders:   connectcors.ExposedHeaders(),
		MaxAge:           7200,
		AllowCredentials: false,
	})

	root := http.NewServeMux()
	root.HandleFunc(HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	p.REST.Register(root)
	root.Handle("/", corsHandler.Handler(rpc))

	limited := p.Limiter.Middleware(
		landingv1connect.AuthServiceSignUpProcedure,
		landingv1connect.AuthServiceSignInProcedure,
		landingv1connect.WaitlistServiceSubscribeProcedure,
		service.RouteSubscribe,
	)

	return p.Monitoring(limited(root)), nil
}

func NewHTTPServer(
	lc fx.Lifecycle,
	cfg *conf.Bootstrap,
	handler http.Handler,
	logger *zap.Logger,
) *http.Server {
	server := &http.Server{
		Addr:              cfg.Server.Http.Addr,
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// 同步监听，端口占用时启动直接失败
			ln, err := net.Listen("tcp", server.Addr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", server.Addr, err)
			}
			logger.Info("HTTP server starting", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Fatal("HTTP server stopped unexpectedly", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("HTTP server shutting down...")
			return server.Shutdown(ctx)
		},
	})

	return server
}
