package models

import (
	"context"
	"time"
)

const createUser = `-- name: CreateUser :one
INSERT INTO users (id, email, password_hash)
VALUES ($1::uuid, $2, $3)
RETURNING id::text, email, password_hash, created_at
`

type CreateUserParams struct {
	ID           string
	Email        string
	PasswordHash string
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRow(ctx, createUser, arg.ID, arg.Email, arg.PasswordHash)
	var i User
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.PasswordHash,
		&i.CreatedAt,
	)
	return i, err
}

const getUserByEmail = `-- name: GetUserByEmail :one
SELECT id::text, email, password_hash, created_at
FROM users
WHERE email = $1
`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := q.db.QueryRow(ctx, getUserByEmail, email)
	var i User
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.PasswordHash,
		&i.CreatedAt,
	)
	return i, err
}

const getUserByID = `-- name: GetUserByID :one
SELECT id::text, email, password_hash, created_at
FROM users
WHERE id = $1::uuid
`

func (q *Queries) GetUserByID(ctx context.Context, id string) (User, error) {
	row := q.db.QueryRow(ctx, getUserByID, id)
	var i User
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.PasswordHash,
		&i.CreatedAt,
	)
	return i, err
}

const createPayment = `-- name: CreatePayment :one
INSERT INTO payments (intent_id, user_id, email, amount, currency, status)
VALUES ($1, $2::uuid, $3, $4, $5, $6)
RETURNING intent_id, user_id::text, email, amount, currency, status, created_at, updated_at
`

type CreatePaymentParams struct {
	IntentID string
	UserID   string
	Email    string
	Amount   int64
	Currency string
	Status   string
}

func (q *Queries) CreatePayment(ctx context.Context, arg CreatePaymentParams) (Payment, error) {
	row := q.db.QueryRow(ctx, createPayment,
		arg.IntentID,
		arg.UserID,
		arg.Email,
		arg.Amount,
		arg.Currency,
		arg.Status,
	)
	var i Payment
	err := row.Scan(
		&i.IntentID,
		&i.UserID,
		&i.Email,
		&i.Amount,
		&i.Currency,
		&i.Status,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getPayment = `-- name: GetPayment :one
SELECT intent_id, user_id::text, email, amount, currency, status, created_at, updated_at
FROM payments
WHERE intent_id = $1
`

func (q *Queries) GetPayment(ctx context.Context, intentID string) (Payment, error) {
	row := q.db.QueryRow(ctx, getPayment, intentID)
	var i Payment
	err := row.Scan(
		&i.IntentID,
		&i.UserID,
		&i.Email,
		&i.Amount,
		&i.Currency,
		&i.Status,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const updatePaymentStatus = `-- name: UpdatePaymentStatus :exec
UPDATE payments
SET status = $2, updated_at = now()
WHERE intent_id = $1
`

type UpdatePaymentStatusParams struct {
	IntentID string
	Status   string
}

func (q *Queries) UpdatePaymentStatus(ctx context.Context, arg UpdatePaymentStatusParams) error {
	_, err := q.db.Exec(ctx, updatePaymentStatus, arg.IntentID, arg.Status)
	return err
}

const activateSubscription = `-- name: ActivateSubscription :one
INSERT INTO subscriptions (user_id, status, credits, activated_at, updated_at)
VALUES ($1::uuid, 'active', $2, now(), now())
ON CONFLICT (user_id) DO UPDATE SET status = 'active', updated_at = now()
RETURNING user_id::text, status, credits, activated_at, updated_at, (xmax = 0) AS created
`

type ActivateSubscriptionParams struct {
	UserID  string
	Credits int32
}

type ActivateSubscriptionRow struct {
	UserID      string
	Status      string
	Credits     int32
	ActivatedAt time.Time
	UpdatedAt   time.Time
	Created     bool
}

func (q *Queries) ActivateSubscription(ctx context.Context, arg ActivateSubscriptionParams) (ActivateSubscriptionRow, error) {
	row := q.db.QueryRow(ctx, activateSubscription, arg.UserID, arg.Credits)
	var i ActivateSubscriptionRow
	err := row.Scan(
		&i.UserID,
		&i.Status,
		&i.Credits,
		&i.ActivatedAt,
		&i.UpdatedAt,
		&i.Created,
	)
	return i, err
}

const getSubscription = `-- name: GetSubscription :one
SELECT user_id::text, status, credits, activated_at, updated_at
FROM subscriptions
WHERE user_id = $1::uuid
`

func (q *Queries) GetSubscription(ctx context.Context, userID string) (Subscription, error) {
	row := q.db.QueryRow(ctx, getSubscription, userID)
	var i Subscription
	err := row.Scan(
		&i.UserID,
		&i.Status,
		&i.Credits,
		&i.ActivatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const insertSubscriber = `-- name: InsertSubscriber :execrows
INSERT INTO subscribers (email, source)
VALUES ($1, $2)
ON CONFLICT (email) DO NOTHING
`

type InsertSubscriberParams struct {
	Email  string
	Source string
}

func (q *Queries) InsertSubscriber(ctx context.Context, arg InsertSubscriberParams) (int64, error) {
	result, err := q.db.Exec(ctx, insertSubscriber, arg.Email, arg.Source)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
