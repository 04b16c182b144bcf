package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/charlesng35/learnhub/pkg/errors"
	"github.com/charlesng35/learnhub/pkg/response"
)

// idleLimiterTTL is how long a caller's bucket survives without requests.
const idleLimiterTTL = 10 * time.Minute

// WriteLimiter meters authoring requests with one token bucket per caller
// and route. Callers are identified by user id when authenticated and by
// client IP otherwise.
type WriteLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	every   rate.Limit
	burst   int
	now     func() time.Time
	swept   time.Time
}

type bucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

// NewWriteLimiter admits perMinute requests per caller and route, with bursts
// of the same size. perMinute <= 0 disables limiting and returns nil.
func NewWriteLimiter(perMinute int) *WriteLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &WriteLimiter{
		buckets: make(map[string]*bucket),
		every:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   perMinute,
		now:     time.Now,
	}
}

// Handler returns the middleware. A nil limiter admits every request.
func (l *WriteLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil {
			c.Next()
			return
		}
		reservation := l.reserve(callerKey(c) + " " + routeLabel(c))
		if delay := reservation.DelayFrom(l.now()); delay > 0 {
			reservation.CancelAt(l.now())
			c.Header("Retry-After", strconv.Itoa(int(delay.Round(time.Second)/time.Second)+1))
			response.Error(c, errors.ErrTooManyRequests)
			c.Abort()
			return
		}
		c.Next()
	}
}

func (l *WriteLimiter) reserve(key string) *rate.Reservation {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.swept) > idleLimiterTTL {
		for k, b := range l.buckets {
			if now.Sub(b.seen) > idleLimiterTTL {
				delete(l.buckets, k)
			}
		}
		l.swept = now
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.every, l.burst)}
		l.buckets[key] = b
	}
	b.seen = now
	return b.limiter.ReserveN(now, 1)
}

func callerKey(c *gin.Context) string {
	if id := c.GetString(CtxUserIDKey); id != "" {
		return "user:" + id
	}
	return "ip:" + c.ClientIP()
}
