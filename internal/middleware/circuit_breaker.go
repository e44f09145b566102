package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"drone-fleet/internal/pkg/apperrors"
)

type circuitState int

const (
	stateClosed circuitState = iota
	stateOpen
	stateHalfOpen
)

// circuitBreaker trips after threshold consecutive server errors on one
// route. After cooldown a single probe request decides whether it closes.
type circuitBreaker struct {
	mu        sync.Mutex
	state     circuitState
	failures  int
	threshold int
	cooldown  time.Duration
	openedAt  time.Time
	probing   bool
	now       func() time.Time
}

func newCircuitBreaker(threshold int, cooldown time.Duration) *circuitBreaker {
	return &circuitBreaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

func (cb *circuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case stateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			return false
		}
		cb.state = stateHalfOpen
		cb.probing = true
		return true
	case stateHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	}
	return true
}

// record reports whether this result opened the circuit.
func (cb *circuitBreaker) record(failed bool) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.probing = false
	if !failed {
		cb.failures = 0
		cb.state = stateClosed
		return false
	}

	cb.failures++
	if cb.state == stateHalfOpen || cb.failures >= cb.threshold {
		opened := cb.state != stateOpen
		cb.state = stateOpen
		cb.openedAt = cb.now()
		return opened
	}
	return false
}

// CircuitBreaker sheds requests to a route that keeps failing with 5xx,
// which in this service means the store is unreachable.
func CircuitBreaker(threshold int, cooldown time.Duration) gin.HandlerFunc {
	var breakers sync.Map

	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		val, _ := breakers.LoadOrStore(route, newCircuitBreaker(threshold, cooldown))
		cb := val.(*circuitBreaker)

		if !cb.allow() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, apperrors.ErrorResponse{
				Error: apperrors.ErrorBody{
					Code:    "CIRCUIT_OPEN",
					Message: "service temporarily unavailable",
				},
			})
			return
		}

		c.Next()

		if cb.record(c.Writer.Status() >= 500) {
			slog.WarnContext(c.Request.Context(), "circuit opened",
				slog.String("route", route),
				slog.Duration("cooldown", cooldown),
			)
		}
	}
}
