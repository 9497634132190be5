package api

import (
	"net/http/httptest"
	"testing"
	"time"
)

// TestIPRateLimiterAllow tests burst behavior per IP.
func TestIPRateLimiterAllow(t *testing.T) {
	rl := NewIPRateLimiter(RateLimitConfig{
		RequestsPerSecond: 1,
		Burst:             3,
		CleanupInterval:   time.Minute,
	})
	defer rl.Stop()

	allowed := 0
	for i := 0; i < 10; i++ {
		if rl.Allow("10.0.0.1") {
			allowed++
		}
	}
	if allowed != 3 {
		t.Errorf("Expected 3 allowed from burst, got %d", allowed)
	}

	// A different IP gets its own bucket
	if !rl.Allow("10.0.0.2") {
		t.Error("Expected fresh IP to be allowed")
	}

	stats := rl.GetStats()
	if stats["allowed"] != 4 {
		t.Errorf("Expected 4 allowed total, got %d", stats["allowed"])
	}
	if stats["rejected"] != 7 {
		t.Errorf("Expected 7 rejected, got %d", stats["rejected"])
	}
}

// TestIPRateLimiterStop tests that Stop is idempotent.
func TestIPRateLimiterStop(t *testing.T) {
	rl := NewIPRateLimiter(DefaultRateLimitConfig)
	rl.Stop()
	rl.Stop()
}

// TestGetClientIP tests header precedence for client IP extraction.
func TestGetClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.5:9999"

	if ip := GetClientIP(r); ip != "203.0.113.5" {
		t.Errorf("Expected RemoteAddr host, got %q", ip)
	}

	r.Header.Set("X-Real-IP", "198.51.100.7")
	if ip := GetClientIP(r); ip != "198.51.100.7" {
		t.Errorf("Expected X-Real-IP, got %q", ip)
	}

	r.Header.Set("X-Forwarded-For", "192.0.2.1, 198.51.100.7")
	if ip := GetClientIP(r); ip != "192.0.2.1" {
		t.Errorf("Expected first X-Forwarded-For entry, got %q", ip)
	}

	r.Header.Set("X-Forwarded-For", "192.0.2.9")
	if ip := GetClientIP(r); ip != "192.0.2.9" {
		t.Errorf("Expected single X-Forwarded-For entry, got %q", ip)
	}
}

// TestWebSocketRateLimiter tests per-IP connection counting.
func TestWebSocketRateLimiter(t *testing.T) {
	wrl := NewWebSocketRateLimiter(2)

	if !wrl.Allow("10.0.0.1") || !wrl.Allow("10.0.0.1") {
		t.Fatal("Expected first two connections allowed")
	}
	if wrl.Allow("10.0.0.1") {
		t.Error("Expected third connection rejected")
	}
	if wrl.GetConnectionCount("10.0.0.1") != 2 {
		t.Errorf("Expected count 2, got %d", wrl.GetConnectionCount("10.0.0.1"))
	}

	wrl.Release("10.0.0.1")
	if !wrl.Allow("10.0.0.1") {
		t.Error("Expected connection allowed after release")
	}

	if !wrl.Allow("10.0.0.2") {
		t.Error("Expected other IP unaffected")
	}

	stats := wrl.GetStats()
	if stats["rejected"] != 1 {
		t.Errorf("Expected 1 rejection, got %d", stats["rejected"])
	}
}

// TestIsAllowedOrigin tests the origin allow list.
func TestIsAllowedOrigin(t *testing.T) {
	cases := []struct {
		origin  string
		allowed bool
	}{
		{"http://localhost", true},
		{"http://localhost:3000", true},
		{"http://127.0.0.1:8080", true},
		{"", false},
		{"http://evil.example.com", false},
		{"https://graphsim.example.com", false},
	}

	for _, tc := range cases {
		if got := IsAllowedOrigin(tc.origin); got != tc.allowed {
			t.Errorf("IsAllowedOrigin(%q) = %v, want %v", tc.origin, got, tc.allowed)
		}
	}
}
