// Package v1 定义服务的配置结构，字段通过 json tag 与 YAML 键对应
package v1

// Bootstrap 配置根节点
type Bootstrap struct {
	Server   *Server   `json:"server"`
	Data     *Data     `json:"data"`
	Auth     *Auth     `json:"auth"`
	Payment  *Payment  `json:"payment"`
	Checkout *Checkout `json:"checkout"`
	Log      *Log      `json:"log"`
	Trace    *Trace    `json:"trace"`
	Registry *Registry `json:"registry"`
}

type Server struct {
	Http      *HTTPServer `json:"http"`
	RateLimit *RateLimit  `json:"rate_limit"`
}

type HTTPServer struct {
	Addr string `json:"addr"`
	// AllowedOrigins 为空时允许所有来源
	AllowedOrigins []string `json:"allowed_origins"`
}

// RateLimit 公共接口（注册、登录、候补名单）的限流配置
type RateLimit struct {
	RequestsPerMinute int32 `json:"requests_per_minute"`
	Burst             int32 `json:"burst"`

	// TrustedProxies 反向代理的地址或 CIDR，只有来自这些地址的请求才读取 X-Forwarded-For / X-Real-IP
	TrustedProxies []string `json:"trusted_proxies"`
}

type Data struct {
	Database *Database `json:"database"`
	Redis    *Redis    `json:"redis"`
}

type Database struct {
	Host     string `json:"host"`
	Port     int32  `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DbName   string `json:"db_name"`
	SslMode  string `json:"ssl_mode"`
	Timezone string `json:"timezone"`
	MaxConns int32  `json:"max_conns"`
}

type Redis struct {
	Host         string `json:"host"`
	Port         int32  `json:"port"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	Db           int32  `json:"db"`
	DialTimeout  int32  `json:"dial_timeout"`
	ReadTimeout  int32  `json:"read_timeout"`
	WriteTimeout int32  `json:"write_timeout"`
	PoolSize     int32  `json:"pool_size"`
	MinIdleConns int32  `json:"min_idle_conns"`
}

type Auth struct {
	JwtSecret      string `json:"jwt_secret"`
	JwtExpireHours int32  `json:"jwt_expire_hours"`
	Issuer         string `json:"issuer"`
}

// Payment Stripe 支付配置
type Payment struct {
	SecretKey string `json:"secret_key"`
	// 每月订阅价格，单位为最小货币单位（美分）
	PriceAmount int64  `json:"price_amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
}

// Checkout 订阅激活相关配置
type Checkout struct {
	SignupCredits int32 `json:"signup_credits"`
	// 激活结果在 Redis 中的缓存时间，重复激活直接命中缓存
	ActivationCacheSecs int32 `json:"activation_cache_secs"`
}

type Log struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

type Trace struct {
	Enabled     bool    `json:"enabled"`
	Endpoint    string  `json:"endpoint"`
	Insecure    bool    `json:"insecure"`
	ServiceName string  `json:"service_name"`
	SampleRatio float64 `json:"sample_ratio"`
}

type Registry struct {
	Consul *Consul `json:"consul"`
}

type Consul struct {
	Enabled bool     `json:"enabled"`
	Address string   `json:"address"`
	Scheme  string   `json:"scheme"`
	Token   string   `json:"token"`
	Tags    []string `json:"tags"`
	// 注册到 Consul 的对外地址与端口
	ServiceAddress string `json:"service_address"`
	ServicePort    int32  `json:"service_port"`
	HealthInterval string `json:"health_interval"`
}
