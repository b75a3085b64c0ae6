package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/888wing/sixarms-landing/internal/biz/model"
	"github.com/888wing/sixarms-landing/internal/data/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// pgUniqueViolation 唯一约束冲突
const pgUniqueViolation = "23505"

// UserRepo 用户数据访问接口
type UserRepo interface {
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	CreateUser(ctx context.Context, user *model.User) (*model.User, error)
	// RevokeToken 吊销 jti 直到 ttl 到期
	RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error
	IsTokenRevoked(ctx context.Context, tokenID string) (bool, error)
}

type userRepo struct {
	queries models.Querier
	rdb     *redis.Client
	l       *zap.Logger
}

func NewUserRepo(data *Data, logger *zap.Logger) UserRepo {
	return &userRepo{
		queries: data.queries(),
		rdb:     data.rdb,
		l:       logger,
	}
}

func revokedTokenKey(tokenID string) string {
	return fmt.Sprintf("session:revoked:%s", tokenID)
}

func (r *userRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	dbUser, err := r.queries.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return toUser(dbUser), nil
}

func (r *userRepo) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	dbUser, err := r.queries.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return toUser(dbUser), nil
}

func (r *userRepo) CreateUser(ctx context.Context, req *model.User) (*model.User, error) {
	dbUser, err := r.queries.CreateUser(ctx, models.CreateUserParams{
		ID:           req.ID,
		Email:        req.Email,
		PasswordHash: req.PasswordHash,
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, model.ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return toUser(dbUser), nil
}

func (r *userRepo) RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		// 已过期的 token 不需要记录
		return nil
	}
	if err := r.rdb.SetEx(ctx, revokedTokenKey(tokenID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (r *userRepo) IsTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.rdb.Exists(ctx, revokedTokenKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("check token revocation: %w", err)
	}
	return n > 0, nil
}

func toUser(u models.User) *model.User {
	return &model.User{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
	}
}
