package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/tenant-access/internal/core/port"
)

const (
	throttleProblemType  = "about:blank#too-many-attempts"
	throttleProblemTitle = "Too Many Attempts"
)

// IdentifierFunc extracts the identity a rule counts attempts against.
type IdentifierFunc func(*gin.Context) (string, bool)

// ThrottleRule is one sliding-window limit.
type ThrottleRule struct {
	Name       string
	Limit      int
	Window     time.Duration
	Identifier IdentifierFunc
}

// Throttle enforces sliding-window attempt limits on credential endpoints.
type Throttle struct {
	store  port.AttemptStore
	logger *zap.Logger
	now    func() time.Time
}

type verdict struct {
	allowed    bool
	limit      int
	remaining  int
	reset      time.Time
	retryAfter time.Duration
}

// ProblemDetails is an RFC 9457 payload for throttled requests.
type ProblemDetails struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Status     int    `json:"status"`
	Detail     string `json:"detail"`
	Instance   string `json:"instance"`
	RetryAfter int    `json:"retry_after"`
	TraceID    string `json:"trace_id,omitempty"`
}

// NewThrottle builds a throttle over store. A nil store disables throttling.
func NewThrottle(store port.AttemptStore, logger *zap.Logger) *Throttle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Throttle{store: store, logger: logger, now: time.Now}
}

// WithClock allows injection of a custom clock (primarily for testing).
func (t *Throttle) WithClock(now func() time.Time) *Throttle {
	if now != nil {
		t.now = now
	}
	return t
}

// ClientIPIdentifier keys attempts by the request's client IP.
func ClientIPIdentifier() IdentifierFunc {
	return func(c *gin.Context) (string, bool) {
		ip := c.ClientIP()
		return ip, ip != ""
	}
}

// Limit returns a middleware enforcing rules in order. Store failures fail open and are logged.
func (t *Throttle) Limit(rules ...ThrottleRule) gin.HandlerFunc {
	active := make([]ThrottleRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Identifier == nil || rule.Limit <= 0 || rule.Window <= 0 {
			continue
		}
		if rule.Name == "" {
			rule.Name = "default"
		}
		active = append(active, rule)
	}

	return func(c *gin.Context) {
		if len(active) == 0 || t.store == nil {
			c.Next()
			return
		}

		now := t.now()
		var tightest *verdict

		for _, rule := range active {
			identifier, ok := rule.Identifier(c)
			if !ok {
				continue
			}

			v, err := t.evaluate(c, rule, rule.Name+":"+identifier, now)
			if err != nil {
				t.logger.Warn("throttle check failed",
					zap.String("rule", rule.Name),
					zap.String("request_id", c.GetString("request_id")),
					zap.Error(err),
				)
				continue
			}

			if !v.allowed {
				t.applyHeaders(c, v)
				t.reject(c, v)
				return
			}
			if tightest == nil || v.remaining < tightest.remaining {
				snapshot := v
				tightest = &snapshot
			}
		}

		if tightest != nil {
			t.applyHeaders(c, *tightest)
		}
		c.Next()
	}
}

func (t *Throttle) evaluate(c *gin.Context, rule ThrottleRule, key string, now time.Time) (verdict, error) {
	ctx := c.Request.Context()

	if err := t.store.TrimWindow(ctx, key, rule.Window, now); err != nil {
		return verdict{}, err
	}
	count, err := t.store.CountAttempts(ctx, key, rule.Window, now)
	if err != nil {
		return verdict{}, err
	}
	oldest, hasAttempts, err := t.store.OldestAttempt(ctx, key, rule.Window, now)
	if err != nil {
		return verdict{}, err
	}

	v := verdict{allowed: true, limit: rule.Limit, reset: now.Add(rule.Window)}
	if hasAttempts {
		v.reset = oldest.Add(rule.Window)
	}
	v.retryAfter = max(v.reset.Sub(now), 0)

	if count >= rule.Limit {
		v.allowed = false
		return v, nil
	}

	if err := t.store.RecordAttempt(ctx, key, now); err != nil {
		return verdict{}, err
	}
	v.remaining = max(rule.Limit-count-1, 0)
	return v, nil
}

func (t *Throttle) applyHeaders(c *gin.Context, v verdict) {
	headers := c.Writer.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(v.limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(v.remaining))
	headers.Set("X-RateLimit-Reset", strconv.FormatInt(v.reset.Unix(), 10))
	if !v.allowed {
		headers.Set("Retry-After", strconv.Itoa(retrySeconds(v)))
	}
}

func (t *Throttle) reject(c *gin.Context, v verdict) {
	seconds := retrySeconds(v)
	instance := c.FullPath()
	if instance == "" {
		instance = c.Request.URL.Path
	}

	c.AbortWithStatusJSON(http.StatusTooManyRequests, ProblemDetails{
		Type:       throttleProblemType,
		Title:      throttleProblemTitle,
		Status:     http.StatusTooManyRequests,
		Detail:     fmt.Sprintf("Too many attempts. Try again in %d seconds.", seconds),
		Instance:   instance,
		RetryAfter: seconds,
		TraceID:    GetTraceID(c),
	})
}

func retrySeconds(v verdict) int {
	return int(math.Ceil(v.retryAfter.Seconds()))
}
