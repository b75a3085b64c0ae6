package biz

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/888wing/sixarms-landing/internal/biz/model"
	conf "github.com/888wing/sixarms-landing/internal/conf/v1"
	"github.com/888wing/sixarms-landing/internal/data"

	"connectrpc.com/connect"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var (
	errAuthFailed     = errors.New("authentication failed")
	errInvalidSession = errors.New("invalid session")
	errMissingToken   = errors.New("missing session token")
)

// normalizeEmail 去掉首尾空白并转小写
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// sessionClaims JWT 载荷，sub 为用户 ID，jti 用于吊销
type sessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type UserUseCase struct {
	repo   data.UserRepo
	cfg    *conf.Auth
	secret []byte
	now    func() time.Time
	l      *zap.Logger
}

func NewUserUseCase(repo data.UserRepo, cfg *conf.Bootstrap, logger *zap.Logger) (model.UserUseCase, error) {
	var secret []byte
	if cfg.Auth.JwtSecret != "" {
		secret = []byte(cfg.Auth.JwtSecret)
	} else {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate jwt secret failed: %w", err)
		}
		logger.Warn("WARNING: Using auto-generated JWT secret, set auth.jwt_secret in config for production")
	}

	return &UserUseCase{
		repo:   repo,
		cfg:    cfg.Auth,
		secret: secret,
		now:    time.Now,
		l:      logger,
	}, nil
}

func (uc *UserUseCase) SignUp(ctx context.Context, email, password string) (*model.Session, error) {
	email = normalizeEmail(email)
	if !validEmail(email) {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("invalid email address"))
	}
	if len(password) < minPasswordLength {
		return nil, connect.NewError(connect.CodeInvalidArgument,
			fmt.Errorf("password must be at least %d characters", minPasswordLength))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("password is too long"))
		}
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("hash password: %w", err))
	}

	user, err := uc.repo.CreateUser(ctx, &model.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
	})
	if err != nil {
		if errors.Is(err, model.ErrUserAlreadyExists) {
			return nil, connect.NewError(connect.CodeAlreadyExists, model.ErrUserAlreadyExists)
		}
		uc.l.Error("Create user failed", zap.String("email", email), zap.Error(err))
		return nil, connect.NewError(connect.CodeInternal, errors.New("create user failed"))
	}

	uc.l.Info("User signed up", zap.String("user_id", user.ID))
	return uc.issue(*user)
}

// SignIn 任何不匹配都返回同一个错误，避免用户枚举
func (uc *UserUseCase) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	email = normalizeEmail(email)

	user, err := uc.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, connect.NewError(connect.CodeUnauthenticated, errAuthFailed)
		}
		uc.l.Error("Load user failed", zap.String("email", email), zap.Error(err))
		return nil, connect.NewError(connect.CodeInternal, errors.New("sign in failed"))
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, connect.NewError(connect.CodeUnauthenticated, errAuthFailed)
	}

	return uc.issue(*user)
}

func (uc *UserUseCase) GetSession(ctx context.Context, token string) (*model.Session, error) {
	claims, err := uc.parse(token)
	if err != nil {
		return nil, err
	}

	revoked, err := uc.repo.IsTokenRevoked(ctx, claims.ID)
	if err != nil {
		uc.l.Error("Check token revocation failed", zap.Error(err))
		return nil, connect.NewError(connect.CodeUnavailable, errors.New("session store unavailable"))
	}
	if revoked {
		return nil, connect.NewError(connect.CodeUnauthenticated, errInvalidSession)
	}

	user, err := uc.repo.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, connect.NewError(connect.CodeUnauthenticated, errInvalidSession)
		}
		return nil, connect.NewError(connect.CodeInternal, errors.New("load session user failed"))
	}

	return &model.Session{
		User:      *user,
		Token:     token,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// RefreshSession 吊销旧 token 后签发新 token
func (uc *UserUseCase) RefreshSession(ctx context.Context, token string) (*model.Session, error) {
	current, err := uc.GetSession(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := uc.repo.RevokeToken(ctx, current.TokenID, current.ExpiresAt.Sub(uc.now())); err != nil {
		uc.l.Error("Revoke token failed", zap.Error(err))
		return nil, connect.NewError(connect.CodeUnavailable, errors.New("session store unavailable"))
	}
	return uc.issue(current.User)
}

// SignOut 幂等，已过期的 token 直接视为成功
func (uc *UserUseCase) SignOut(ctx context.Context, token string) error {
	claims, err := uc.parse(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil
		}
		return err
	}
	if err := uc.repo.RevokeToken(ctx, claims.ID, claims.ExpiresAt.Time.Sub(uc.now())); err != nil {
		uc.l.Error("Revoke token failed", zap.Error(err))
		return connect.NewError(connect.CodeUnavailable, errors.New("session store unavailable"))
	}
	uc.l.Info("User signed out", zap.String("user_id", claims.Subject))
	return nil
}

func (uc *UserUseCase) issue(user model.User) (*model.Session, error) {
	expireHours := uc.cfg.JwtExpireHours
	if expireHours <= 0 {
		expireHours = 24
	}

	now := uc.now()
	expiresAt := now.Add(time.Duration(expireHours) * time.Hour)
	jti := uuid.NewString()

	claims := sessionClaims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    uc.cfg.Issuer,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(uc.secret)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("sign token: %w", err))
	}

	return &model.Session{
		User:      user,
		Token:     signed,
		TokenID:   jti,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (uc *UserUseCase) parse(token string) (*sessionClaims, error) {
	if token == "" {
		return nil, connect.NewError(connect.CodeUnauthenticated, errMissingToken)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(uc.now),
	}
	if uc.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(uc.cfg.Issuer))
	}

	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return uc.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, connect.NewError(connect.CodeUnauthenticated, jwt.ErrTokenExpired)
		}
		return nil, connect.NewError(connect.CodeUnauthenticated, errInvalidSession)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, connect.NewError(connect.CodeUnauthenticated, errInvalidSession)
	}
	return claims, nil
}
