// Package client 实现结账流程的三个协作方，通过 Connect 调用落地页后端。
package client

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	v1 "github.com/888wing/sixarms-landing/api/landing/v1"
	"github.com/888wing/sixarms-landing/api/landing/v1/landingv1connect"
	"github.com/888wing/sixarms-landing/internal/flow"

	"connectrpc.com/connect"
	"go.uber.org/zap"
)

var errNoCredentials = errors.New("no credential source configured")

// Credentials 登录或注册使用的凭据
type Credentials struct {
	Email    string
	Password string
}

// CredentialSource 按认证方式提供凭据，例如命令行参数或交互输入
type CredentialSource interface {
	Credentials(ctx context.Context, mode flow.AuthMode) (Credentials, error)
}

// StaticCredentials 固定凭据
type StaticCredentials Credentials

func (s StaticCredentials) Credentials(context.Context, flow.AuthMode) (Credentials, error) {
	return Credentials(s), nil
}

// Session 客户端持有的会话
type Session struct {
	User      flow.SessionUser
	Token     string
	ExpiresAt time.Time
}

// Options 客户端公共配置
type Options struct {
	BaseURL     string
	HTTPClient  connect.HTTPClient
	Credentials CredentialSource
	Logger      *zap.Logger
}

func (o Options) httpClient() connect.HTTPClient {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return http.DefaultClient
}

func (o Options) logger() *zap.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return zap.NewNop()
}

// IdentityClient 进程内唯一的会话持有者，会话变化时通知订阅者。
// 实现 flow.IdentityProvider。
type IdentityClient struct {
	auth  landingv1connect.AuthServiceClient
	creds CredentialSource
	l     *zap.Logger

	mu        sync.RWMutex
	session   *Session
	listeners map[uint64]func(*Session)
	nextID    uint64
}

var _ flow.IdentityProvider = (*IdentityClient)(nil)

func NewIdentityClient(opts Options) *IdentityClient {
	c := &IdentityClient{
		creds:     opts.Credentials,
		l:         opts.logger(),
		listeners: make(map[uint64]func(*Session)),
	}
	c.auth = landingv1connect.NewAuthServiceClient(
		opts.httpClient(),
		strings.TrimRight(opts.BaseURL, "/"),
		connect.WithInterceptors(c.BearerInterceptor()),
	)
	return c
}

var (
	sharedOnce     sync.Once
	sharedIdentity *IdentityClient
)

// SharedIdentity 返回进程共享的身份客户端，只有第一次调用的 opts 生效
func SharedIdentity(opts Options) *IdentityClient {
	sharedOnce.Do(func() {
		sharedIdentity = NewIdentityClient(opts)
	})
	return sharedIdentity
}

// Authenticate 从凭据来源取得凭据后注册或登录
func (c *IdentityClient) Authenticate(ctx context.Context, mode flow.AuthMode) (*flow.SessionUser, error) {
	if c.creds == nil {
		return nil, errNoCredentials
	}
	creds, err := c.creds.Credentials(ctx, mode)
	if err != nil {
		return nil, err
	}

	var s *Session
	if mode == flow.ModeSignIn {
		s, err = c.SignIn(ctx, creds.Email, creds.Password)
	} else {
		s, err = c.SignUp(ctx, creds.Email, creds.Password)
	}
	if err != nil {
		return nil, err
	}
	user := s.User
	return &user, nil
}

func (c *IdentityClient) SignUp(ctx context.Context, email, password string) (*Session, error) {
	resp, err := c.auth.SignUp(ctx, connect.NewRequest(&v1.SignUpRequest{Email: email, Password: password}))
	if err != nil {
		return nil, userError(err)
	}
	return c.store(resp.Msg), nil
}

func (c *IdentityClient) SignIn(ctx context.Context, email, password string) (*Session, error) {
	resp, err := c.auth.SignIn(ctx, connect.NewRequest(&v1.SignInRequest{Email: email, Password: password}))
	if err != nil {
		return nil, userError(err)
	}
	return c.store(resp.Msg), nil
}

// GetSession 向服务端校验当前会话，失效时清空本地会话
func (c *IdentityClient) GetSession(ctx context.Context) (*Session, error) {
	if c.Token() == "" {
		return nil, nil
	}
	resp, err := c.auth.GetSession(ctx, connect.NewRequest(&v1.GetSessionRequest{}))
	if err != nil {
		if connect.CodeOf(err) == connect.CodeUnauthenticated {
			c.set(nil)
			return nil, nil
		}
		return nil, err
	}
	return c.store(resp.Msg), nil
}

// Refresh 用当前 token 换取新 token
func (c *IdentityClient) Refresh(ctx context.Context) (*Session, error) {
	resp, err := c.auth.RefreshSession(ctx, connect.NewRequest(&v1.RefreshSessionRequest{}))
	if err != nil {
		return nil, userError(err)
	}
	return c.store(resp.Msg), nil
}

// SignOut 服务端吊销失败时也会清空本地会话
func (c *IdentityClient) SignOut(ctx context.Context) error {
	if c.Token() == "" {
		return nil
	}
	_, err := c.auth.SignOut(ctx, connect.NewRequest(&v1.SignOutRequest{}))
	c.set(nil)
	if err != nil {
		c.l.Warn("Failed to revoke session", zap.Error(err))
		return err
	}
	return nil
}

// Session 当前会话，未登录时返回 nil
func (c *IdentityClient) Session() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return nil
	}
	s := *c.session
	return &s
}

func (c *IdentityClient) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return ""
	}
	return c.session.Token
}

// OnChange 订阅会话变化，登出时回调参数为 nil。返回取消订阅函数。
func (c *IdentityClient) OnChange(fn func(*Session)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// BearerInterceptor 为请求附加 Authorization 头
func (c *IdentityClient) BearerInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if token := c.Token(); token != "" && req.Spec().IsClient {
				req.Header().Set("Authorization", "Bearer "+token)
			}
			return next(ctx, req)
		}
	}
}

func (c *IdentityClient) store(msg *v1.SessionResponse) *Session {
	s := &Session{Token: msg.AccessToken}
	if msg.User != nil {
		s.User = flow.SessionUser{ID: msg.User.Id, Email: msg.User.Email}
	}
	if msg.ExpiresAt > 0 {
		s.ExpiresAt = time.Unix(msg.ExpiresAt, 0)
	}
	c.set(s)
	out := *s
	return &out
}

// set 更新会话并在锁外通知订阅者
func (c *IdentityClient) set(s *Session) {
	c.mu.Lock()
	c.session = s
	listeners := make([]func(*Session), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		if s == nil {
			fn(nil)
			continue
		}
		cp := *s
		fn(&cp)
	}
}

// userError 取出 connect 错误中可展示给用户的消息
func userError(err error) error {
	var cerr *connect.Error
	if errors.As(err, &cerr) && cerr.Message() != "" {
		return errors.New(cerr.Message())
	}
	return err
}
