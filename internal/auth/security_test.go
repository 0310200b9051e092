package auth

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestSecurityHeadersMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(SecurityHeadersMiddleware())
	router.GET("/api/books", func(c *gin.Context) { c.Status(http.StatusOK) })

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/books", nil))

	want := map[string]string{
		"X-Frame-Options":        "DENY",
		"X-Content-Type-Options": "nosniff",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	}
	for header, value := range want {
		if got := rr.Header().Get(header); got != value {
			t.Errorf("%s = %q, want %q", header, got, value)
		}
	}
	if csp := rr.Header().Get("Content-Security-Policy"); csp == "" {
		t.Error("Content-Security-Policy should be set")
	}
}

func TestStrictTransportSecurityMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(StrictTransportSecurityMiddleware(365 * 24 * time.Hour))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name    string
		prepare func(r *http.Request)
		want    string
	}{
		{"plain http", func(r *http.Request) {}, ""},
		{"tls", func(r *http.Request) { r.TLS = &tls.ConnectionState{} }, "max-age=31536000; includeSubDomains"},
		{"proxied https", func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "https") }, "max-age=31536000; includeSubDomains"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.prepare(req)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			if got := rr.Header().Get("Strict-Transport-Security"); got != tt.want {
				t.Errorf("HSTS = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoginLimiter(t *testing.T) {
	limiter := NewLoginLimiter(3, time.Minute)
	defer limiter.Stop()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	if ok, _ := limiter.Allow("10.0.0.1", "reader"); !ok {
		t.Fatal("first attempt should be allowed")
	}
	for i := 0; i < 3; i++ {
		limiter.RecordFailure("10.0.0.1", "reader")
	}

	ok, retryAfter := limiter.Allow("10.0.0.1", "reader")
	if ok {
		t.Fatal("fourth attempt should be throttled")
	}
	if retryAfter <= 0 || retryAfter > 25*time.Second {
		t.Errorf("retryAfter = %v, want about 20s", retryAfter)
	}

	if ok, _ := limiter.Allow("10.0.0.2", "reader"); !ok {
		t.Error("another IP should not be throttled")
	}
	if ok, _ := limiter.Allow("10.0.0.1", "someone-else"); !ok {
		t.Error("another login should not be throttled")
	}

	now = now.Add(25 * time.Second)
	if ok, _ := limiter.Allow("10.0.0.1", "reader"); !ok {
		t.Error("one attempt should have refilled after a third of the window")
	}

	limiter.RecordSuccess("10.0.0.1", "reader")
	limiter.mu.Lock()
	remaining := len(limiter.clients)
	limiter.mu.Unlock()
	if remaining != 0 {
		t.Errorf("RecordSuccess should clear the bucket, %d left", remaining)
	}
}

func TestLoginLimiter_Cleanup(t *testing.T) {
	limiter := NewLoginLimiter(2, time.Minute)
	defer limiter.Stop()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	limiter.RecordFailure("10.0.0.1", "reader")
	limiter.cleanup()
	if len(limiter.clients) != 1 {
		t.Fatal("a recent failure should be kept")
	}

	now = now.Add(2 * time.Minute)
	limiter.cleanup()
	if len(limiter.clients) != 0 {
		t.Error("a refilled bucket should be dropped")
	}
}
