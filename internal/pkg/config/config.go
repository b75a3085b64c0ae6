package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	confv1 "github.com/888wing/sixarms-landing/internal/conf/v1"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

// Module 提供 Fx 模块
var Module = fx.Module("config",
	fx.Provide(
		func() (*confv1.Bootstrap, error) {
			configPath := getConfigPath()

			conf, err := Load(configPath)
			if err != nil {
				return nil, err
			}
			fmt.Printf("Configuration loaded successfully from: %s\n", configPath)
			return conf, nil
		},
	),
)

// Load 从本地 YAML 文件读取配置，环境变量 SIXARMS_* 可以覆盖同名键
func Load(configPath string) (*confv1.Bootstrap, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("sixarms")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	// 敏感配置只从环境变量读取时需要显式绑定，否则 AllSettings 不包含它们
	for _, key := range []string{"auth.jwt_secret", "payment.secret_key", "data.database.password", "data.redis.password"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	localConf := &confv1.Bootstrap{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		// 使用 json tag 匹配 snake_case 键
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           localConf,
	})
	if err != nil {
		return nil, fmt.Errorf("create config decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	applyDefaults(localConf)
	return localConf, nil
}

// applyDefaults 为可选配置填充默认值
func applyDefaults(conf *confv1.Bootstrap) {
	if conf.Auth == nil {
		conf.Auth = &confv1.Auth{}
	}
	if conf.Auth.JwtExpireHours == 0 {
		conf.Auth.JwtExpireHours = 24
	}
	if conf.Auth.Issuer == "" {
		conf.Auth.Issuer = "sixarms"
	}
	if conf.Payment == nil {
		conf.Payment = &confv1.Payment{}
	}
	if conf.Payment.PriceAmount == 0 {
		conf.Payment.PriceAmount = 1000
	}
	if conf.Payment.Currency == "" {
		conf.Payment.Currency = "usd"
	}
	if conf.Payment.Description == "" {
		conf.Payment.Description = "SIXARMS monthly subscription"
	}
	if conf.Checkout == nil {
		conf.Checkout = &confv1.Checkout{}
	}
	if conf.Checkout.SignupCredits == 0 {
		conf.Checkout.SignupCredits = 500
	}
	if conf.Checkout.ActivationCacheSecs == 0 {
		conf.Checkout.ActivationCacheSecs = 86400
	}
	if conf.Log == nil {
		conf.Log = &confv1.Log{Level: "info", Format: "json"}
	}
}

// getConfigPath 从环境变量获取配置路径
func getConfigPath() string {
	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		return configPath
	}

	// 容器中配置文件位于 /app/configs/config.yaml
	if isRunningInContainer() {
		return "/app/configs/config.yaml"
	}

	return "configs/config.yaml"
}

// isRunningInContainer 检查是否在容器中运行
func isRunningInContainer() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}

	if cgroup, err := os.ReadFile("/proc/1/cgroup"); err == nil {
		if strings.Contains(string(cgroup), "docker") || strings.Contains(string(cgroup), "kubepods") {
			return true
		}
	}

	return os.Getenv("KUBERNETES_SERVICE_HOST") != "" || os.Getenv("CONTAINER") != ""
}

// ValidateConfig 验证配置的完整性
func ValidateConfig(conf *confv1.Bootstrap) error {
	if conf == nil {
		return errors.New("configuration is nil")
	}

	if conf.Server == nil || conf.Server.Http == nil || conf.Server.Http.Addr == "" {
		return errors.New("server configuration is required")
	}

	if conf.Data == nil || conf.Data.Database == nil {
		return errors.New("database configuration is required")
	}

	if conf.Data.Redis == nil {
		return errors.New("redis configuration is required")
	}

	if conf.Payment == nil || conf.Payment.SecretKey == "" {
		return errors.New("payment.secret_key is required")
	}

	return nil
}
