// Package isarmiddleware file: internal/isarmiddleware/limiter.go
package isarmiddleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// limiterEntry 存储限制器和最后访问时间，用于清理
type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter 按客户端 IP 做令牌桶限流，并对持续超限的客户端
// 施加临时锁定：限流命中达到 maxStrikes 次后，该 IP 在 lockoutDuration
// 内的所有请求都被直接拒绝。
type IPRateLimiter struct {
	limiters map[string]*limiterEntry
	mu       sync.Mutex
	rate     rate.Limit
	burst    int

	strikeCache     *cache.Cache
	maxStrikes      int
	lockoutDuration time.Duration
}

// NewIPRateLimiter 创建一个新的 IP 速率限制器。
func NewIPRateLimiter(r rate.Limit, burst int, maxStrikes int, lockout time.Duration) *IPRateLimiter {
	l := &IPRateLimiter{
		limiters:        make(map[string]*limiterEntry),
		rate:            r,
		burst:           burst,
		strikeCache:     cache.New(5*time.Minute, 10*time.Minute),
		maxStrikes:      maxStrikes,
		lockoutDuration: lockout,
	}
	go l.cleanupDaemon()
	return l
}

// getClientIP 从请求中获取客户端IP地址，考虑代理情况
func getClientIP(r *http.Request) string {
	ip := r.Header.Get("X-Forwarded-For")
	ip = strings.TrimSpace(strings.Split(ip, ",")[0])
	if ip != "" {
		return ip
	}
	ip = r.Header.Get("X-Real-IP")
	if ip != "" {
		return ip
	}
	ip, _, _ = net.SplitHostPort(r.RemoteAddr)
	return ip
}

// getLimiter 返回或创建指定IP的速率限制器
func (l *IPRateLimiter) getLimiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, exists := l.limiters[ip]
	if !exists {
		limiter := rate.NewLimiter(l.rate, l.burst)
		l.limiters[ip] = &limiterEntry{limiter: limiter, lastSeen: time.Now()}
		return limiter
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

// cleanupDaemon 定期清理不活跃的IP条目
func (l *IPRateLimiter) cleanupDaemon() {
	for {
		time.Sleep(10 * time.Minute)
		l.mu.Lock()
		for ip, entry := range l.limiters {
			if time.Since(entry.lastSeen) > 15*time.Minute {
				delete(l.limiters, ip)
			}
		}
		l.mu.Unlock()
	}
}

// Middleware 返回 gin 中间件。
func (l *IPRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := getClientIP(c.Request)
		lockKey := "lock:" + ip

		if _, locked := l.strikeCache.Get(lockKey); locked {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "请求方已被临时锁定，请稍后再试"})
			return
		}

		if !l.getLimiter(ip).Allow() {
			l.recordStrike(ip, lockKey)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "请求过于频繁，请稍后再试"})
			return
		}
		c.Next()
	}
}

// recordStrike 给超限的 IP 记一次违规，达到阈值后临时锁定。
func (l *IPRateLimiter) recordStrike(ip, lockKey string) {
	strikeKey := "strikes:" + ip
	if err := l.strikeCache.Increment(strikeKey, int64(1)); err != nil {
		l.strikeCache.Set(strikeKey, int64(1), cache.DefaultExpiration)
	}

	var strikes int
	if x, found := l.strikeCache.Get(strikeKey); found {
		strikes = int(x.(int64))
	}
	if strikes >= l.maxStrikes {
		l.strikeCache.Set(lockKey, true, l.lockoutDuration)
		l.strikeCache.Delete(strikeKey)
		slog.Warn("客户端因持续超限被临时锁定", "ip", ip, "duration", l.lockoutDuration)
	}
}
