package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	v1 "github.com/888wing/sixarms-landing/api/landing/v1"
	"github.com/888wing/sixarms-landing/internal/biz/model"

	"connectrpc.com/connect"
	"go.uber.org/zap"
)

// REST 兼容路由，供落地页直接 fetch 调用
const (
	RouteActivateSubscription = "/api/activate-subscription"
	RouteCreatePaymentIntent  = "/api/create-payment-intent"
	RouteSubscribe            = "/api/subscribe"
)

const maxBodyBytes = 1 << 16

// RESTHandler 把 JSON POST 请求转给用例，错误码按 connect code 映射为 HTTP 状态码
type RESTHandler struct {
	users    model.UserUseCase
	subs     model.SubscriptionUseCase
	waitlist model.WaitlistUseCase
	l        *zap.Logger
}

func NewRESTHandler(
	users model.UserUseCase,
	subs model.SubscriptionUseCase,
	waitlist model.WaitlistUseCase,
	logger *zap.Logger,
) *RESTHandler {
	return &RESTHandler{users: users, subs: subs, waitlist: waitlist, l: logger}
}

// Register 注册到 mux
func (h *RESTHandler) Register(mux *http.ServeMux) {
	mux.Handle(RouteActivateSubscription, h.endpoint(h.authenticated(h.activate)))
	mux.Handle(RouteCreatePaymentIntent, h.endpoint(h.authenticated(h.createPaymentIntent)))
	mux.Handle(RouteSubscribe, h.endpoint(h.subscribe))
}

type restFunc func(ctx context.Context, r *http.Request) (any, error)

// errorBody 与落地页约定的错误格式
type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (h *RESTHandler) endpoint(fn restFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST, OPTIONS")
			writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "Method not allowed"})
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		resp, err := fn(r.Context(), r)
		if err != nil {
			status, msg := httpError(err)
			if status >= http.StatusInternalServerError {
				h.l.Error("REST request failed", zap.String("path", r.URL.Path), zap.Error(err))
			}
			writeJSON(w, status, errorBody{Error: msg})
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})
}

// authenticated 校验 Bearer token 并把用户放入 context
func (h *RESTHandler) authenticated(fn restFunc) restFunc {
	return func(ctx context.Context, r *http.Request) (any, error) {
		session, err := h.users.GetSession(ctx, model.TokenFromHeader(r.Header))
		if err != nil {
			return nil, err
		}
		return fn(model.WithSessionUser(ctx, session.User), r)
	}
}

func (h *RESTHandler) activate(ctx context.Context, r *http.Request) (any, error) {
	var req v1.ActivateSubscriptionRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	sub, err := h.subs.Activate(ctx, req.UserId)
	if err != nil {
		return nil, err
	}
	return struct {
		Success bool `json:"success"`
		*v1.ActivateSubscriptionResponse
	}{true, toActivateResponse(sub)}, nil
}

func (h *RESTHandler) createPaymentIntent(ctx context.Context, r *http.Request) (any, error) {
	var req v1.CreatePaymentIntentRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	intent, err := h.subs.CreatePaymentIntent(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	return &v1.CreatePaymentIntentResponse{
		IntentId:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       intent.Amount,
		Currency:     intent.Currency,
	}, nil
}

func (h *RESTHandler) subscribe(ctx context.Context, r *http.Request) (any, error) {
	var req v1.SubscribeRequest
	if err := decode(r, &req); err != nil {
		// 请求体无法解析时按无效邮箱处理
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("Invalid email address"))
	}
	res, err := h.waitlist.Subscribe(ctx, req.Email, req.Source)
	if err != nil {
		return nil, err
	}
	return &v1.SubscribeResponse{Success: true, Message: res.Message}, nil
}

func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return connect.NewError(connect.CodeInvalidArgument, errors.New("invalid request body"))
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// httpError connect 错误码到 HTTP 状态码，其他错误按 500 处理
func httpError(err error) (int, string) {
	var cerr *connect.Error
	if !errors.As(err, &cerr) {
		return http.StatusInternalServerError, "Server error, please try again"
	}
	return httpStatus(cerr.Code()), cerr.Message()
}

func httpStatus(code connect.Code) int {
	switch code {
	case connect.CodeInvalidArgument, connect.CodeOutOfRange:
		return http.StatusBadRequest
	case connect.CodeUnauthenticated:
		return http.StatusUnauthorized
	case connect.CodePermissionDenied:
		return http.StatusForbidden
	case connect.CodeNotFound:
		return http.StatusNotFound
	case connect.CodeAlreadyExists, connect.CodeAborted:
		return http.StatusConflict
	case connect.CodeFailedPrecondition:
		return http.StatusPreconditionFailed
	case connect.CodeResourceExhausted:
		return http.StatusTooManyRequests
	case connect.CodeCanceled:
		return 499
	case connect.CodeUnimplemented:
		return http.StatusNotImplemented
	case connect.CodeUnavailable:
		return http.StatusServiceUnavailable
	case connect.CodeDeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
