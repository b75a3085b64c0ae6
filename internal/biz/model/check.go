package model

import "context"

const (
	StatusReady     = "Ready"
	StatusUnhealthy = "Unhealthy"
)

// CheckUseCase 就绪检查
type CheckUseCase interface {
	Ready(ctx context.Context, req HealthCheckReq) (HealthCheckReply, error)
}

type (
	HealthCheckReq   struct{}
	HealthCheckReply struct {
		Status  string
		Details map[string]string
	}
)
