package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"

	"github.com/888wing/sixarms-landing/internal/biz"
	confv1 "github.com/888wing/sixarms-landing/internal/conf/v1"
	"github.com/888wing/sixarms-landing/internal/data"
	"github.com/888wing/sixarms-landing/internal/pkg/config"
	logger "github.com/888wing/sixarms-landing/internal/pkg/log"
	"github.com/888wing/sixarms-landing/internal/pkg/otel"
	"github.com/888wing/sixarms-landing/internal/pkg/registry"
	"github.com/888wing/sixarms-landing/internal/server"
	"github.com/888wing/sixarms-landing/internal/service"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var serviceName = "sixarms-landing"

func main() {
	flag.Parse()

	fxApp := NewApp()

	if err := fxApp.Start(context.Background()); err != nil {
		log.Printf("Failed to start app: %v\n", err)
		os.Exit(1)
	}

	// 等待中断信号
	<-fxApp.Done()

	if err := fxApp.Stop(context.Background()); err != nil {
		log.Printf("Failed to stop app gracefully: %v\n", err)
		os.Exit(1)
	}
}

// NewApp 创建并配置 FX 应用
func NewApp() *fx.App {
	return fx.New(
		config.Module,
		logger.Module,
		registry.Module,

		// 按依赖顺序
		data.Module,
		biz.Module,
		service.Module,
		server.MiddlewareModule,
		server.Module,

		fx.Supply(serviceName),

		fx.Invoke(
			func(conf *confv1.Bootstrap) error {
				return config.ValidateConfig(conf)
			},

			// OTel 先于服务器启动，停止时最后关闭
			func(lc fx.Lifecycle, conf *confv1.Bootstrap, logger *zap.Logger) error {
				otelShutdown, err := otel.SetupOTelSDK(context.Background(), conf.Trace, logger)
				if err != nil {
					return err
				}
				lc.Append(fx.Hook{
					OnStop: func(ctx context.Context) error {
						if otelShutdown == nil {
							return nil
						}
						if err := otelShutdown(ctx); err != nil {
							logger.Error("Failed to shutdown OTel", zap.Error(err))
						}
						return nil
					},
				})
				return nil
			},

			// 先监听再注册，停止时先注销再关闭
			func(_ *http.Server) {},
			func(_ *registry.ConsulRegistry) {},
		),
	)
}
