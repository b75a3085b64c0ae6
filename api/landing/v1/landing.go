// Package v1 定义落地页后端的请求与响应消息，使用 JSON 编码传输
package v1

// User 对外暴露的用户信息
type User struct {
	Id    string `json:"id"`
	Email string `json:"email"`
}

type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse 登录、注册、刷新返回的会话
type SessionResponse struct {
	User        *User  `json:"user"`
	AccessToken string `json:"accessToken"`
	ExpiresAt   int64  `json:"expiresAt"`
}

type GetSessionRequest struct{}

type RefreshSessionRequest struct{}

type SignOutRequest struct{}

type SignOutResponse struct{}

type CreatePaymentIntentRequest struct {
	Email string `json:"email"`
}

type CreatePaymentIntentResponse struct {
	IntentId     string `json:"intentId"`
	ClientSecret string `json:"clientSecret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

type ConfirmPaymentRequest struct {
	ClientSecret  string `json:"clientSecret"`
	PaymentMethod string `json:"paymentMethod"`
}

type ConfirmPaymentResponse struct {
	IntentId string `json:"intentId"`
	Status   string `json:"status"`
}

type ActivateSubscriptionRequest struct {
	UserId string `json:"userId"`
}

type ActivateSubscriptionResponse struct {
	Status  string `json:"status"`
	Credits int32  `json:"credits"`
	// Created 为 false 表示此前已激活
	Created bool `json:"created"`
}

type SubscribeRequest struct {
	Email  string `json:"email"`
	Source string `json:"source,omitempty"`
}

type SubscribeResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type ReadyCheckReq struct{}

type ReadyCheckReply struct {
	Status  string            `json:"status"`
	Details map[string]string `json:"details,omitempty"`
}
