package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IPAttemptTracker counts token-endpoint attempts per client IP so repeated
// credential guessing can be slowed down.
type IPAttemptTracker struct {
	attempts     map[string]*ipAttemptInfo
	mu           sync.RWMutex
	cleanupEvery time.Duration
	stop         chan struct{}
	once         sync.Once
}

type ipAttemptInfo struct {
	Count       int
	LastAttempt time.Time
	Blocked     bool
}

func NewIPAttemptTracker() *IPAttemptTracker {
	tracker := &IPAttemptTracker{
		attempts:     make(map[string]*ipAttemptInfo),
		cleanupEvery: 5 * time.Minute,
		stop:         make(chan struct{}),
	}

	go tracker.startCleanup()

	return tracker
}

func (t *IPAttemptTracker) startCleanup() {
	ticker := time.NewTicker(t.cleanupEvery)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.cleanOldEntries()
		}
	}
}

func (t *IPAttemptTracker) Close() {
	t.once.Do(func() { close(t.stop) })
}

func (t *IPAttemptTracker) cleanOldEntries() {
	t.mu.Lock()
	defer t.mu.Unlock()

	expiry := time.Now().Add(-30 * time.Second)
	for ip, info := range t.attempts {
		if info.LastAttempt.Before(expiry) {
			delete(t.attempts, ip)
		}
	}
}

func (t *IPAttemptTracker) RecordAttempt(ip string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, exists := t.attempts[ip]
	if !exists {
		info = &ipAttemptInfo{}
		t.attempts[ip] = info
	}

	info.Count++
	info.LastAttempt = time.Now()

	if info.Count > 5 {
		info.Blocked = true
	}
}

func (t *IPAttemptTracker) ShouldDelay(ip string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	info, exists := t.attempts[ip]
	if !exists {
		return false
	}

	return info.Blocked
}

type RequestMiddleware struct {
	logger         *zap.Logger
	attemptTracker *IPAttemptTracker
}

func NewRequestMiddleware(logger *zap.Logger) *RequestMiddleware {
	return &RequestMiddleware{
		logger:         logger,
		attemptTracker: NewIPAttemptTracker(),
	}
}

// Close stops the attempt tracker's cleanup goroutine.
func (rm *RequestMiddleware) Close() {
	rm.attemptTracker.Close()
}

func (rm *RequestMiddleware) ProcessRequest() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.New().String()
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		rm.logger.Info("Request completed",
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", duration),
			zap.Int("size", c.Writer.Size()),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// TokenAttemptMiddleware delays clients hammering the token endpoint.
func (rm *RequestMiddleware) TokenAttemptMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == "POST" && c.FullPath() == "/api/auth/token" {
			clientIP := c.ClientIP()
			rm.attemptTracker.RecordAttempt(clientIP)
			if rm.attemptTracker.ShouldDelay(clientIP) {
				rm.logger.Warn("Delaying token request due to repeated attempts",
					zap.String("client_ip", clientIP))
				time.Sleep(2 * time.Second)
			}
		}
		c.Next()
	}
}

func (rm *RequestMiddleware) RecoverPanic() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				requestID := c.GetString("request_id")
				rm.logger.Error("Panic recovered",
					zap.String("request_id", requestID),
					zap.Any("error", err),
					zap.Stack("stack"))
				c.AbortWithStatusJSON(500, gin.H{
					"error": "Internal server error",
				})
			}
		}()
		c.Next()
	}
}
