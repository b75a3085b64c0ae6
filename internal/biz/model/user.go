package model

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrNotFound          = errors.New("not found")
)

// User 业务层用户模型
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Session 登录会话
type Session struct {
	User      User
	Token     string
	TokenID   string
	ExpiresAt time.Time
}

// UserUseCase 身份用例接口
type UserUseCase interface {
	SignUp(ctx context.Context, email, password string) (*Session, error)
	SignIn(ctx context.Context, email, password string) (*Session, error)
	GetSession(ctx context.Context, token string) (*Session, error)
	RefreshSession(ctx context.Context, token string) (*Session, error)
	SignOut(ctx context.Context, token string) error
}

type sessionUserKey struct{}

// WithSessionUser 把已认证用户放入 context
func WithSessionUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, sessionUserKey{}, u)
}

// SessionUserFromContext 取出已认证用户
func SessionUserFromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(sessionUserKey{}).(User)
	return u, ok
}

// TokenFromHeader 解析 Authorization: Bearer <token>
func TokenFromHeader(h http.Header) string {
	auth := h.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
