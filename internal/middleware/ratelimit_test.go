package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

// testRateLimiterConfig はテスト用の小さいレート制限設定を返す。
// クリーンアップ間隔は長めにしてテスト中の干渉を避ける。
func testRateLimiterConfig(generalBurst, llmBurst int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(0.001), // 補充をほぼ止める
		GeneralBurst:    generalBurst,
		LLMRate:         rate.Limit(0.001),
		LLMBurst:        llmBurst,
		CleanupInterval: time.Hour,
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(t *testing.T, handler http.Handler, userID string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	req = req.WithContext(ContextWithUserID(req.Context(), userID))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w.Result()
}

func TestRateLimiter_General_AllowsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(3, 1))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 3; i++ {
		resp := doRequest(t, handler, "user-1")
		if resp.StatusCode != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i+1, resp.StatusCode, http.StatusOK)
		}
	}
}

func TestRateLimiter_General_RejectsOverBurst(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(2, 1))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	doRequest(t, handler, "user-1")
	doRequest(t, handler, "user-1")
	resp := doRequest(t, handler, "user-1")

	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusTooManyRequests)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("Retry-Afterヘッダーが設定されるべき")
	}
}

func TestRateLimiter_General_IsolatedPerUser(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(1, 1))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	doRequest(t, handler, "user-1")
	resp1 := doRequest(t, handler, "user-1")
	resp2 := doRequest(t, handler, "user-2")

	if resp1.StatusCode != http.StatusTooManyRequests {
		t.Errorf("user-1 status = %d, want %d", resp1.StatusCode, http.StatusTooManyRequests)
	}
	if resp2.StatusCode != http.StatusOK {
		t.Errorf("user-2 status = %d, want %d（ユーザーごとに独立した上限）", resp2.StatusCode, http.StatusOK)
	}
}

func TestRateLimiter_LLM_IndependentOfGeneral(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(10, 1))
	defer rl.Stop()

	generalHandler := rl.GeneralMiddleware()(okHandler())
	llmHandler := rl.LLMMiddleware()(okHandler())

	// LLM側のバーストを使い切る
	doRequest(t, llmHandler, "user-1")
	llmResp := doRequest(t, llmHandler, "user-1")
	if llmResp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("llm status = %d, want %d", llmResp.StatusCode, http.StatusTooManyRequests)
	}

	// API全般側は影響を受けない
	generalResp := doRequest(t, generalHandler, "user-1")
	if generalResp.StatusCode != http.StatusOK {
		t.Errorf("general status = %d, want %d（LLM制限とは独立）", generalResp.StatusCode, http.StatusOK)
	}
}

func TestRateLimiter_MissingUserID_Returns401(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(1, 1))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestRateLimiter_Cleanup_RemovesStaleEntries(t *testing.T) {
	config := testRateLimiterConfig(1, 1)
	config.CleanupInterval = 10 * time.Millisecond
	rl := NewRateLimiter(config)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())
	doRequest(t, handler, "user-1")

	if got := rl.GeneralLimiterCount(); got != 1 {
		t.Fatalf("GeneralLimiterCount() = %d, want 1", got)
	}

	// TTL（CleanupInterval*2）経過後にクリーンアップされること
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if rl.GeneralLimiterCount() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("期限切れエントリがクリーンアップされていない")
}
