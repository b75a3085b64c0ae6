package models

import (
	"time"
)

type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

type Payment struct {
	IntentID  string
	UserID    string
	Email     string
	Amount    int64
	Currency  string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Subscription struct {
	UserID      string
	Status      string
	Credits     int32
	ActivatedAt time.Time
	UpdatedAt   time.Time
}

type Subscriber struct {
	Email     string
	Source    string
	CreatedAt time.Time
}
