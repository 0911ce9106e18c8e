package worker

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_New(t *testing.T) {
	limiter := NewLimiter(10, 5)
	if limiter.defaultBurst != 5 {
		t.Errorf("expected burst 5, got %d", limiter.defaultBurst)
	}

	l2 := NewLimiter(10, -1)
	if l2.defaultBurst != 1 {
		t.Errorf("expected default burst 1 for negative input, got %d", l2.defaultBurst)
	}
}

func TestLimiter_Wait(t *testing.T) {
	limiter := NewLimiter(100, 1)
	ctx := context.Background()

	if err := limiter.Wait(ctx, "https://wcca.wicourts.gov/jsonPost"); err != nil {
		t.Errorf("wait failed: %v", err)
	}
	if err := limiter.Wait(ctx, "http://127.0.0.1:8080/advanced.html"); err != nil {
		t.Errorf("wait failed: %v", err)
	}
}

func TestLimiter_Unlimited(t *testing.T) {
	limiter := NewLimiter(0, 1)
	for i := 0; i < 50; i++ {
		if !limiter.Allow("https://wcca.wicourts.gov") {
			t.Fatalf("request %d denied with pacing disabled", i)
		}
	}
}

func TestLimiter_RateLimit(t *testing.T) {
	limiter := NewLimiter(1, 1)
	ctx := context.Background()
	url := "https://wcca.wicourts.gov/jsonPost/advancedCaseSearch"

	if err := limiter.Wait(ctx, url); err != nil {
		t.Errorf("first wait failed: %v", err)
	}

	// same host, token already spent
	if limiter.Allow("https://wcca.wicourts.gov/caseDetail.html") {
		t.Errorf("expected allow to fail (exhausted tokens)")
	}

	if !limiter.Allow("http://other.example") {
		t.Errorf("expected allow for other host")
	}
}

func TestLimiter_SetHostRate(t *testing.T) {
	limiter := NewLimiter(10, 10)
	host := "slow.example"

	limiter.SetHostRate(host, 0.1, 1)

	if !limiter.Allow("http://" + host) {
		t.Errorf("first request should pass")
	}
	if limiter.Allow("http://" + host) {
		t.Errorf("second request should fail")
	}
	if !limiter.Allow("http://fast.example") {
		t.Errorf("other host should pass")
	}
}

func TestLimiter_ApplyCrawlDelay(t *testing.T) {
	limiter := NewLimiter(10, 10)
	url := "https://wcca.wicourts.gov/jsonPost"

	changed, err := limiter.ApplyCrawlDelay(url, 2*time.Second)
	if err != nil {
		t.Fatalf("apply crawl delay: %v", err)
	}
	if !changed {
		t.Fatal("a 2s crawl delay is stricter than 10 req/s")
	}
	if !limiter.Allow(url) {
		t.Errorf("first request should pass")
	}
	if limiter.Allow(url) {
		t.Errorf("second request should wait out the crawl delay")
	}

	slow := NewLimiter(0.1, 1)
	changed, err = slow.ApplyCrawlDelay(url, time.Second)
	if err != nil {
		t.Fatalf("apply crawl delay: %v", err)
	}
	if changed {
		t.Errorf("a looser crawl delay must not speed the host up")
	}

	unlimited := NewLimiter(0, 1)
	if changed, _ := unlimited.ApplyCrawlDelay(url, time.Second); !changed {
		t.Errorf("crawl delay should pace a host with pacing disabled")
	}
	if changed, _ := unlimited.ApplyCrawlDelay(url, 0); changed {
		t.Errorf("zero delay should change nothing")
	}
}

func TestLimiter_WaitJitter(t *testing.T) {
	limiter := NewLimiter(100, 1)
	var gotMin, gotMax time.Duration
	limiter.jitter = func(min, max time.Duration) time.Duration {
		gotMin, gotMax = min, max
		return 30 * time.Millisecond
	}

	start := time.Now()
	slept, err := limiter.WaitJitter(context.Background(), "https://wcca.wicourts.gov", 500*time.Millisecond, 1500*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitJitter failed: %v", err)
	}
	if slept != 30*time.Millisecond {
		t.Errorf("expected 30ms, got %v", slept)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Errorf("returned before the jitter elapsed")
	}
	if gotMin != 500*time.Millisecond || gotMax != 1500*time.Millisecond {
		t.Errorf("jitter bounds not forwarded: %v %v", gotMin, gotMax)
	}
}

func TestLimiter_WaitJitterCancelled(t *testing.T) {
	limiter := NewLimiter(100, 1)
	limiter.jitter = func(min, max time.Duration) time.Duration { return time.Hour }

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := limiter.WaitJitter(ctx, "https://wcca.wicourts.gov", 0, time.Hour); err == nil {
		t.Error("expected context error")
	}
}

func TestUniformJitter(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := uniformJitter(500*time.Millisecond, 1500*time.Millisecond)
		if d < 500*time.Millisecond || d > 1500*time.Millisecond {
			t.Fatalf("jitter %v out of range", d)
		}
	}
	if d := uniformJitter(time.Second, time.Second); d != time.Second {
		t.Errorf("expected fixed delay, got %v", d)
	}
}

func TestExtractHost(t *testing.T) {
	host, err := extractHost("https://wcca.wicourts.gov/caseDetail.html?caseNo=1")
	if err != nil {
		t.Fatalf("extractHost failed: %v", err)
	}
	if host != "wcca.wicourts.gov" {
		t.Errorf("expected wcca.wicourts.gov, got %s", host)
	}

	if _, err := extractHost("::invalid"); err == nil {
		t.Errorf("expected error for invalid URL")
	}
}
