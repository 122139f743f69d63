package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/ehr/medledger/internal/platform/auth"
)

type limitedCall struct {
	user, department, ip string
}

func callLimited(t *testing.T, h echo.HandlerFunc, call limitedCall) (*httptest.ResponseRecorder, error) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if call.ip != "" {
		req.RemoteAddr = call.ip + ":41000"
	}
	if call.user != "" {
		req = req.WithContext(auth.WithIdentity(context.Background(), call.user, []string{auth.RolePharmacist}))
	}
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	if call.department != "" {
		c.Set("jwt_department", call.department)
	}
	return rec, h(c)
}

func okHandler(c echo.Context) error { return c.String(http.StatusOK, "ok") }

func TestRateLimit_BurstThenReject(t *testing.T) {
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2})(okHandler)

	for i := 0; i < 2; i++ {
		rec, err := callLimited(t, h, limitedCall{})
		if err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "1" {
			t.Errorf("request %d: X-RateLimit-Limit = %q", i+1, got)
		}
	}

	rec, err := callLimited(t, h, limitedCall{})
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("expected X-RateLimit-Remaining 0, got %q", rec.Header().Get("X-RateLimit-Remaining"))
	}
	if ra, err := strconv.Atoi(rec.Header().Get("Retry-After")); err != nil || ra < 1 {
		t.Errorf("bad Retry-After %q", rec.Header().Get("Retry-After"))
	}
}

func TestRateLimit_SeparateBuckets(t *testing.T) {
	tests := []struct {
		name          string
		first, second limitedCall
	}{
		{"users", limitedCall{user: "pharm-1"}, limitedCall{user: "pharm-2"}},
		{"departments", limitedCall{user: "pharm-1", department: "pharmacy"}, limitedCall{user: "pharm-1", department: "stores"}},
		{"client ips", limitedCall{ip: "10.0.0.1"}, limitedCall{ip: "10.0.0.2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})(okHandler)
			if _, err := callLimited(t, h, tt.first); err != nil {
				t.Fatalf("first: %v", err)
			}
			if _, err := callLimited(t, h, tt.first); err == nil {
				t.Fatal("expected the first caller to be limited on its second request")
			}
			if _, err := callLimited(t, h, tt.second); err != nil {
				t.Fatalf("second caller shares a bucket: %v", err)
			}
		})
	}
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:5000"
	c := echo.New().NewContext(req, httptest.NewRecorder())
	if got := clientKey(c); got != "ip:10.1.2.3" {
		t.Errorf("anonymous key = %q", got)
	}

	c.SetRequest(req.WithContext(auth.WithIdentity(req.Context(), "doc-9", nil)))
	c.Set("jwt_department", "pharmacy")
	if got := clientKey(c); got != "pharmacy/user:doc-9" {
		t.Errorf("authenticated key = %q", got)
	}
}

func TestLimiterStore_SweepsIdleClients(t *testing.T) {
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	store := newLimiterStore(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5, IdleTTL: time.Minute})
	store.now = func() time.Time { return now }

	a := store.get("a")
	if store.get("a") != a {
		t.Error("expected the same limiter for the same key")
	}
	store.get("b")
	if a.Burst() != 5 {
		t.Errorf("burst = %d", a.Burst())
	}

	now = now.Add(30 * time.Second)
	store.get("b")
	now = now.Add(45 * time.Second)
	store.get("c")

	if store.size() != 2 {
		t.Errorf("expected idle client a to be swept, have %d clients", store.size())
	}
	if store.get("a") == a {
		t.Error("expected a fresh limiter after the sweep")
	}
}

func TestDefaultRateLimitConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	if cfg.RequestsPerSecond != 100 || cfg.BurstSize != 200 || cfg.IdleTTL != 10*time.Minute {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestRetryAfter(t *testing.T) {
	fast := rate.NewLimiter(rate.Limit(100), 1)
	fast.Allow()
	if ra := retryAfter(fast); ra != 1 {
		t.Errorf("expected 1 for a fast limiter, got %d", ra)
	}

	slow := rate.NewLimiter(rate.Every(10*time.Second), 1)
	slow.Allow()
	if ra := retryAfter(slow); ra < 9 || ra > 10 {
		t.Errorf("expected about 10, got %d", ra)
	}
}
