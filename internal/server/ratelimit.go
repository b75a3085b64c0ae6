package server

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	conf "github.com/888wing/sixarms-landing/internal/conf/v1"

	"golang.org/x/time/rate"
)

const (
	defaultRequestsPerMinute = 30
	defaultBurst             = 10
	limiterIdleTTL           = 10 * time.Minute
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientRateLimiter 按客户端 IP 限流
type ClientRateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*clientLimiter
	limit     rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
	trusted   []netip.Prefix
}

func NewClientRateLimiter(cfg *conf.RateLimit) *ClientRateLimiter {
	reqPerMin, burst := defaultRequestsPerMinute, defaultBurst
	if cfg != nil {
		if cfg.RequestsPerMinute > 0 {
			reqPerMin = int(cfg.RequestsPerMinute)
		}
		if cfg.Burst > 0 {
			burst = int(cfg.Burst)
		}
	}
	var trusted []netip.Prefix
	if cfg != nil {
		// 非法条目在 NewRateLimiterFromConfig 中报错，这里直接跳过
		trusted, _ = ParseTrustedProxies(cfg.TrustedProxies)
	}
	return &ClientRateLimiter{
		limiters: make(map[string]*clientLimiter),
		limit:    rate.Every(time.Minute / time.Duration(reqPerMin)),
		burst:    burst,
		now:      time.Now,
		trusted:  trusted,
	}
}

// NewRateLimiterFromConfig 可信代理配置非法时启动失败
func NewRateLimiterFromConfig(cfg *conf.Bootstrap) (*ClientRateLimiter, error) {
	rl := cfg.Server.RateLimit
	if rl != nil {
		if _, err := ParseTrustedProxies(rl.TrustedProxies); err != nil {
			return nil, err
		}
	}
	return NewClientRateLimiter(rl), nil
}

// ParseTrustedProxies 解析 IP 或 CIDR 列表，返回成功解析的部分和第一个错误
func ParseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	var (
		out      []netip.Prefix
		firstErr error
	)
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if strings.Contains(e, "/") {
			p, err := netip.ParsePrefix(e)
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("invalid trusted proxy %q: %w", e, err)
				}
				continue
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("invalid trusted proxy %q: %w", e, err)
			}
			continue
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, firstErr
}

// Allow 消耗 key 的一个令牌
func (l *ClientRateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweepLocked(now)

	cl, ok := l.limiters[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = cl
	}
	cl.lastSeen = now
	return cl.limiter.AllowN(now, 1)
}

// sweepLocked 每分钟最多清理一次长时间未出现的客户端
func (l *ClientRateLimiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < time.Minute {
		return
	}
	l.lastSweep = now
	for k, cl := range l.limiters {
		if now.Sub(cl.lastSeen) > limiterIdleTTL {
			delete(l.limiters, k)
		}
	}
}

func (l *ClientRateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// Middleware 只对 paths 中的路径限流
func (l *ClientRateLimiter) Middleware(paths ...string) func(http.Handler) http.Handler {
	limited := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		limited[p] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := limited[r.URL.Path]; !ok || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			if !l.Allow(l.clientIP(r)) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "60")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"success": false,
					"error":   "Too many requests, please try again later",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP 对端不在可信代理列表时直接使用 RemoteAddr。
// 可信代理转发的请求从 X-Forwarded-For 右侧向左取第一个非代理地址。
func (l *ClientRateLimiter) clientIP(r *http.Request) string {
	peer := remoteHost(r.RemoteAddr)
	if !l.isTrusted(peer) {
		return peer
	}

	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if _, err := netip.ParseAddr(hop); err != nil {
				// 无法解析的条目不可信，停在最近的有效地址
				break
			}
			peer = hop
			if !l.isTrusted(hop) {
				return hop
			}
		}
		return peer
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		if _, err := netip.ParseAddr(ip); err == nil {
			return ip
		}
	}
	return peer
}

func (l *ClientRateLimiter) isTrusted(host string) bool {
	if len(l.trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range l.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func remoteHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
