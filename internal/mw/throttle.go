package mw

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

// PickupThrottle counts rejected pickup codes per client IP. Once a client
// reaches the limit it is locked out until the window that started with its
// first failure expires.
type PickupThrottle struct {
	failures *cache.Cache
	max      int
	window   time.Duration
}

// NewPickupThrottle creates a throttle. A max of zero or less disables it.
func NewPickupThrottle(max int, window time.Duration) *PickupThrottle {
	return &PickupThrottle{
		failures: cache.New(window, window),
		max:      max,
		window:   window,
	}
}

// Blocked reports whether ip has used up its failed attempts.
func (t *PickupThrottle) Blocked(ip string) bool {
	if t.max <= 0 {
		return false
	}
	n, ok := t.failures.Get(ip)
	return ok && n.(int) >= t.max
}

// RecordFailure counts one rejected code and returns the running total.
func (t *PickupThrottle) RecordFailure(ip string) int {
	if err := t.failures.Add(ip, 1, t.window); err == nil {
		return 1
	}
	n, err := t.failures.IncrementInt(ip, 1)
	if err != nil {
		// Expired between Add and IncrementInt.
		t.failures.Set(ip, 1, t.window)
		return 1
	}
	return n
}

// Reset forgets the failures of ip.
func (t *PickupThrottle) Reset(ip string) {
	t.failures.Delete(ip)
}

// Middleware rejects locked-out clients and counts 403 responses.
func (t *PickupThrottle) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if t.Blocked(ip) {
			abortThrottled(c, "too many failed pickup attempts")
			return
		}

		c.Next()

		switch status := c.Writer.Status(); {
		case status == http.StatusForbidden:
			t.RecordFailure(ip)
		case status >= 200 && status < 300:
			t.Reset(ip)
		}
	}
}
