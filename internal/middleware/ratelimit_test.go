package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestRateLimiter(requestsPerMinute int, burst int) *RateLimiter {
	cfg := RateLimiterConfig{
		Rate:            rate.Limit(float64(requestsPerMinute) / 60.0),
		Burst:           burst,
		CleanupInterval: time.Minute,
	}
	return NewRateLimiter(cfg, newTestLogger())
}

func TestRateLimiter_AllowsWithinBurst(t *testing.T) {
	rl := newTestRateLimiter(60, 3)
	defer rl.Stop()

	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/preview", nil)
		req.RemoteAddr = "192.0.2.1:12345"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("%d回目のリクエスト: status = %d, want 200", i+1, rec.Code)
		}
	}
}

func TestRateLimiter_RejectsOverBurst(t *testing.T) {
	rl := newTestRateLimiter(60, 2)
	defer rl.Stop()

	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var lastRec *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/preview", nil)
		req.RemoteAddr = "192.0.2.1:12345"
		lastRec = httptest.NewRecorder()
		handler.ServeHTTP(lastRec, req)
	}

	if lastRec.Code != http.StatusTooManyRequests {
		t.Fatalf("バースト超過時: status = %d, want 429", lastRec.Code)
	}
	if lastRec.Header().Get("Retry-After") == "" {
		t.Error("429レスポンスにRetry-Afterヘッダーが含まれるべき")
	}
}

// クライアントIPごとに独立したリミッターが使われることを検証する。
func TestRateLimiter_IndependentPerClient(t *testing.T) {
	rl := newTestRateLimiter(60, 1)
	defer rl.Stop()

	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// 1番目のクライアントはバーストを使い切る
	req1 := httptest.NewRequest(http.MethodGet, "/", nil)
	req1.RemoteAddr = "192.0.2.1:1111"
	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, req1)

	rec1b := httptest.NewRecorder()
	handler.ServeHTTP(rec1b, req1)
	if rec1b.Code != http.StatusTooManyRequests {
		t.Errorf("1番目のクライアントの2回目: status = %d, want 429", rec1b.Code)
	}

	// 2番目のクライアントは影響を受けない
	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	req2.RemoteAddr = "192.0.2.2:2222"
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Errorf("2番目のクライアント: status = %d, want 200", rec2.Code)
	}

	if got := rl.LimiterCount(); got != 2 {
		t.Errorf("LimiterCount() = %d, want 2", got)
	}
}

func TestRateLimiter_CleanupRemovesStaleEntries(t *testing.T) {
	rl := newTestRateLimiter(60, 1)
	defer rl.Stop()

	rl.getOrCreateLimiter("192.0.2.1")
	rl.getOrCreateLimiter("192.0.2.2")

	// 1番目のエントリのみTTLを超過させる
	rl.mu.Lock()
	rl.limiters["192.0.2.1"].lastAccess = time.Now().Add(-3 * time.Minute)
	rl.mu.Unlock()

	rl.cleanup()

	if got := rl.LimiterCount(); got != 1 {
		t.Errorf("クリーンアップ後のLimiterCount() = %d, want 1", got)
	}
}

func TestClientIPFromRequest(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		want       string
	}{
		{name: "ポート付きIPv4", remoteAddr: "192.0.2.1:12345", want: "192.0.2.1"},
		{name: "ポート付きIPv6", remoteAddr: "[2001:db8::1]:443", want: "2001:db8::1"},
		{name: "ポートなしはそのまま", remoteAddr: "192.0.2.1", want: "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if got := clientIPFromRequest(req); got != tt.want {
				t.Errorf("clientIPFromRequest() = %q, want %q", got, tt.want)
			}
		})
	}
}
