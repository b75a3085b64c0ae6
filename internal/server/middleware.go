package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/888wing/sixarms-landing/internal/biz/model"

	"connectrpc.com/connect"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/888wing/sixarms-landing/internal/server"

// metrics HTTP 与 RPC 共用的监控指标
type metrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

var (
	metricsOnce sync.Once
	sharedStats *metrics
)

// loadMetrics 指标创建失败时返回 nil，调用方跳过记录
func loadMetrics(logger *zap.Logger) *metrics {
	metricsOnce.Do(func() {
		m, err := newMetrics(otel.GetMeterProvider().Meter(instrumentationName))
		if err != nil {
			logger.Error("Failed to initialize metrics", zap.Error(err))
			return
		}
		sharedStats = m
	})
	return sharedStats
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	requests, err := meter.Int64Counter(
		"http.server.request.count",
		metric.WithDescription("请求总数"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}
	duration, err := meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("请求耗时"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}
	errs, err := meter.Int64Counter(
		"http.server.error.count",
		metric.WithDescription("错误总数"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}
	return &metrics{requests: requests, duration: duration, errors: errs}, nil
}

func (m *metrics) record(ctx context.Context, start time.Time, failed bool, attrs ...attribute.KeyValue) {
	if m == nil {
		return
	}
	opt := metric.WithAttributes(attrs...)
	m.requests.Add(ctx, 1, opt)
	m.duration.Record(ctx, float64(time.Since(start).Milliseconds()), opt)
	if failed {
		m.errors.Add(ctx, 1, opt)
	}
}

// MonitoringMiddleware 为每个 HTTP 请求创建 span 并记录指标
func MonitoringMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	stats := loadMetrics(logger)
	tracer := otel.GetTracerProvider().Tracer(instrumentationName)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path)
			defer span.End()
			span.SetAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", r.URL.Path),
				attribute.String("http.user_agent", r.UserAgent()),
			)

			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(ww, r.WithContext(ctx))

			failed := ww.statusCode >= http.StatusBadRequest
			stats.record(ctx, start, failed,
				attribute.String("http.method", r.Method),
				attribute.String("http.route", r.URL.Path),
				attribute.Int("http.status_code", ww.statusCode),
			)
			span.SetAttributes(attribute.Int("http.status_code", ww.statusCode))

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.statusCode),
				zap.Duration("duration", time.Since(start)),
			}
			if failed {
				span.SetStatus(codes.Error, http.StatusText(ww.statusCode))
				logger.Warn("HTTP request error", append(fields, zap.String("user_agent", r.UserAgent()))...)
				return
			}
			span.SetStatus(codes.Ok, "OK")
			logger.Debug("HTTP request completed", fields...)
		})
	}
}

// ConnectMonitoringInterceptor 记录 RPC 指标，错误码作为属性
func ConnectMonitoringInterceptor(logger *zap.Logger) connect.UnaryInterceptorFunc {
	stats := loadMetrics(logger)

	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			procedure := req.Spec().Procedure

			resp, err := next(ctx, req)

			code := "ok"
			if err != nil {
				code = connect.CodeOf(err).String()
			}
			stats.record(ctx, start, err != nil,
				attribute.String("rpc.system", "connect_rpc"),
				attribute.String("rpc.method", procedure),
				attribute.String("rpc.connect_rpc.error_code", code),
			)

			if err != nil {
				// 客户端错误只记 Info
				level := logger.Info
				if isServerFault(connect.CodeOf(err)) {
					level = logger.Error
				}
				level("RPC request failed",
					zap.String("procedure", procedure),
					zap.String("code", code),
					zap.Duration("duration", time.Since(start)),
					zap.Error(err),
				)
			} else {
				logger.Debug("RPC request completed",
					zap.String("procedure", procedure),
					zap.Duration("duration", time.Since(start)),
				)
			}
			return resp, err
		}
	}
}

func isServerFault(code connect.Code) bool {
	switch code {
	case connect.CodeInternal, connect.CodeUnknown, connect.CodeUnavailable, connect.CodeDataLoss:
		return true
	default:
		return false
	}
}

// AuthInterceptor 对 SubscriptionService 的调用校验 Bearer token，并把用户放入 context
type AuthInterceptor connect.UnaryInterceptorFunc

func NewAuthInterceptor(users model.UserUseCase) AuthInterceptor {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if !requiresSession(req.Spec().Procedure) {
				return next(ctx, req)
			}
			session, err := users.GetSession(ctx, model.TokenFromHeader(req.Header()))
			if err != nil {
				return nil, err
			}
			return next(model.WithSessionUser(ctx, session.User), req)
		}
	}
}

func requiresSession(procedure string) bool {
	return strings.HasPrefix(procedure, "/landing.v1.SubscriptionService/")
}

// responseWriter 包装 http.ResponseWriter 来捕获状态码
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.statusCode = http.StatusOK
		rw.written = true
	}
	return rw.ResponseWriter.Write(b)
}

// Flush 流式响应需要
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// MiddlewareModule 提供 Fx 模块
var MiddlewareModule = fx.Module("server.middleware",
	fx.Provide(
		func(logger *zap.Logger) func(http.Handler) http.Handler {
			return MonitoringMiddleware(logger)
		},
		ConnectMonitoringInterceptor,
		NewAuthInterceptor,
		NewRateLimiterFromConfig,
	),
)
