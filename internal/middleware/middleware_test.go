package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"drone-fleet/internal/jwt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, method, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth(t *testing.T) {
	svc := jwt.NewService("secret", time.Hour)
	operator, _ := svc.GenerateToken("alice", jwt.RoleOperator)
	viewer, _ := svc.GenerateToken("bob", jwt.RoleViewer)

	r := gin.New()
	r.Use(Auth(svc))
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	r.GET("/health", ok)
	r.GET("/ws/drone", ok)
	r.GET("/drones", RoleGuard(jwt.RoleOperator, jwt.RoleViewer), ok)
	r.POST("/missions", RoleGuard(jwt.RoleOperator), ok)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		status int
	}{
		{"health is public", http.MethodGet, "/health", "", http.StatusOK},
		{"websocket is public", http.MethodGet, "/ws/drone", "", http.StatusOK},
		{"missing token", http.MethodGet, "/drones", "", http.StatusUnauthorized},
		{"garbage token", http.MethodGet, "/drones", "nope", http.StatusUnauthorized},
		{"viewer reads", http.MethodGet, "/drones", viewer, http.StatusOK},
		{"viewer cannot mutate", http.MethodPost, "/missions", viewer, http.StatusForbidden},
		{"operator mutates", http.MethodPost, "/missions", operator, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := map[string]string{}
			if tt.token != "" {
				header["Authorization"] = "Bearer " + tt.token
			}
			if w := serve(r, tt.method, tt.path, header); w.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, w.Code)
			}
		})
	}
}

func TestBulkhead_RejectsOverCapacity(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})

	r := gin.New()
	r.GET("/slow", Bulkhead("test", 1), func(c *gin.Context) {
		close(entered)
		<-release
		c.Status(http.StatusOK)
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		serve(r, http.MethodGet, "/slow", nil)
	}()
	<-entered

	if w := serve(r, http.MethodGet, "/slow", nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while the pool is full, got %d", w.Code)
	}
	close(release)
	wg.Wait()
}

func TestCircuitBreaker_OpensAndProbes(t *testing.T) {
	cb := newCircuitBreaker(2, time.Minute)
	now := time.Now()
	cb.now = func() time.Time { return now }

	cb.record(true)
	if !cb.allow() {
		t.Fatal("one failure should not open the circuit")
	}
	if opened := cb.record(true); !opened {
		t.Fatal("expected second failure to open the circuit")
	}
	if cb.allow() {
		t.Fatal("open circuit should reject")
	}

	now = now.Add(2 * time.Minute)
	if !cb.allow() {
		t.Fatal("expected a probe after cooldown")
	}
	if cb.allow() {
		t.Fatal("only one probe at a time")
	}
	cb.record(false)
	if !cb.allow() {
		t.Fatal("successful probe should close the circuit")
	}
}

func TestCircuitBreaker_Middleware(t *testing.T) {
	r := gin.New()
	r.GET("/missions", CircuitBreaker(1, time.Hour), func(c *gin.Context) {
		c.Status(http.StatusServiceUnavailable)
	})

	serve(r, http.MethodGet, "/missions", nil)
	w := serve(r, http.MethodGet, "/missions", nil)
	if w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), "CIRCUIT_OPEN") {
		t.Fatalf("expected CIRCUIT_OPEN, got %d %s", w.Code, w.Body.String())
	}
}

type memIdempotency struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func (m *memIdempotency) Check(_ context.Context, caller, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, false, m.err
	}
	v, ok := m.data[caller+"|"+key]
	return v, ok, nil
}

func (m *memIdempotency) Set(_ context.Context, caller, key string, response []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[caller+"|"+key] = response
	return nil
}

func TestIdempotency_ReplaysStatusAndBody(t *testing.T) {
	store := &memIdempotency{data: map[string][]byte{}}
	calls := 0

	r := gin.New()
	r.POST("/missions", RequireIdempotencyKey(), Idempotency(store), func(c *gin.Context) {
		calls++
		c.JSON(http.StatusCreated, gin.H{"n": calls})
	})

	key := map[string]string{"Idempotency-Key": "k1"}
	first := serve(r, http.MethodPost, "/missions", key)
	second := serve(r, http.MethodPost, "/missions", key)

	if calls != 1 {
		t.Fatalf("handler ran %d times", calls)
	}
	if second.Code != http.StatusCreated || second.Body.String() != first.Body.String() {
		t.Fatalf("replay mismatch: %d %s vs %d %s", second.Code, second.Body.String(), first.Code, first.Body.String())
	}
	if second.Header().Get("Idempotent-Replay") != "true" {
		t.Fatal("expected replay header")
	}

	if w := serve(r, http.MethodPost, "/missions", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without key, got %d", w.Code)
	}
}

func TestIdempotency_FailsOpen(t *testing.T) {
	store := &memIdempotency{data: map[string][]byte{}, err: errors.New("redis down")}
	calls := 0

	r := gin.New()
	r.POST("/missions", Idempotency(store), func(c *gin.Context) {
		calls++
		c.Status(http.StatusCreated)
	})
	key := map[string]string{"Idempotency-Key": "k1"}
	serve(r, http.MethodPost, "/missions", key)
	serve(r, http.MethodPost, "/missions", key)
	if calls != 2 {
		t.Fatalf("expected both requests to reach the handler, got %d", calls)
	}
}

type countingLimiter struct {
	max  int
	seen int
	err  error
}

func (l *countingLimiter) Allow(context.Context, string) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	l.seen++
	return l.seen <= l.max, nil
}

func TestRateLimit(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(&countingLimiter{max: 1}, 30*time.Second))
	r.GET("/drones", func(c *gin.Context) { c.Status(http.StatusOK) })

	if w := serve(r, http.MethodGet, "/drones", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	w := serve(r, http.MethodGet, "/drones", nil)
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") != "30" {
		t.Fatalf("expected 429 with Retry-After, got %d %q", w.Code, w.Header().Get("Retry-After"))
	}

	open := gin.New()
	open.Use(RateLimit(&countingLimiter{err: errors.New("redis down")}, time.Minute))
	open.GET("/drones", func(c *gin.Context) { c.Status(http.StatusOK) })
	if w := serve(open, http.MethodGet, "/drones", nil); w.Code != http.StatusOK {
		t.Fatalf("limiter failure should let requests through, got %d", w.Code)
	}
}

func TestLogger_SetsRequestID(t *testing.T) {
	r := gin.New()
	r.Use(Logger())
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(requestIDKey)) })

	w := serve(r, http.MethodGet, "/x", map[string]string{requestIDHeader: "abc"})
	if w.Body.String() != "abc" || w.Header().Get(requestIDHeader) != "abc" {
		t.Fatalf("expected caller request id to be kept, got %q", w.Body.String())
	}
	if w := serve(r, http.MethodGet, "/x", nil); w.Body.String() == "" {
		t.Fatal("expected a generated request id")
	}
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery())
	r.GET("/panic", func(*gin.Context) { panic("boom") })
	if w := serve(r, http.MethodGet, "/panic", nil); w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}
