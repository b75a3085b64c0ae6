package registry

import (
	"context"
	"fmt"

	conf "github.com/888wing/sixarms-landing/internal/conf/v1"

	"github.com/hashicorp/consul/api"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module 提供 Consul 注册
var Module = fx.Module("registry",
	fx.Provide(NewConsulRegistry),
)

// ConsulRegistry 在启动时注册服务，停止时注销。未启用时 client 为 nil。
type ConsulRegistry struct {
	client    *api.Client
	serviceID string
	logger    *zap.Logger
}

// NewConsulRegistry 创建注册器并挂载生命周期钩子
func NewConsulRegistry(lc fx.Lifecycle, cfg *conf.Bootstrap, serviceName string, logger *zap.Logger) (*ConsulRegistry, error) {
	r := &ConsulRegistry{logger: logger}

	if cfg.Registry == nil || cfg.Registry.Consul == nil || !cfg.Registry.Consul.Enabled {
		logger.Info("Consul registry disabled")
		return r, nil
	}
	consulCfg := cfg.Registry.Consul

	apiCfg := api.DefaultConfig()
	if consulCfg.Address != "" {
		apiCfg.Address = consulCfg.Address
	}
	if consulCfg.Scheme != "" {
		apiCfg.Scheme = consulCfg.Scheme
	}
	apiCfg.Token = consulCfg.Token

	client, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("create consul client: %w", err)
	}
	r.client = client
	r.serviceID = fmt.Sprintf("%s-%s-%d", serviceName, consulCfg.ServiceAddress, consulCfg.ServicePort)

	registration := Registration(serviceName, r.serviceID, consulCfg)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Agent().ServiceRegister(registration); err != nil {
				return fmt.Errorf("register service to consul: %w", err)
			}
			logger.Info("Service registered to consul",
				zap.String("id", r.serviceID),
				zap.String("consul", apiCfg.Address),
			)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Deregistering service from consul", zap.String("id", r.serviceID))
			return client.Agent().ServiceDeregister(r.serviceID)
		},
	})

	return r, nil
}

// Registration 构造带 HTTP 健康检查的注册信息
func Registration(serviceName, serviceID string, c *conf.Consul) *api.AgentServiceRegistration {
	interval := c.HealthInterval
	if interval == "" {
		interval = "10s"
	}

	return &api.AgentServiceRegistration{
		ID:      serviceID,
		Name:    serviceName,
		Address: c.ServiceAddress,
		Port:    int(c.ServicePort),
		Tags:    c.Tags,
		Check: &api.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/healthz", c.ServiceAddress, c.ServicePort),
			Interval:                       interval,
			Timeout:                        "3s",
			DeregisterCriticalServiceAfter: "1m",
		},
	}
}

// Enabled 返回是否启用了注册
func (r *ConsulRegistry) Enabled() bool {
	return r.client != nil
}
