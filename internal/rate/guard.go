package rate

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimitError is returned when calls are blocked.
type RateLimitError struct {
	Provider string
	Reason   string
	RetryAt  time.Time
}

func (e RateLimitError) Error() string {
	if e.RetryAt.IsZero() {
		return fmt.Sprintf("%s rate limited: %s", e.Provider, e.Reason)
	}
	return fmt.Sprintf("%s rate limited: %s (retry at %s)", e.Provider, e.Reason, e.RetryAt.UTC().Format(time.RFC3339))
}

type Decision struct {
	Allowed bool
	Reason  string
	RetryAt time.Time
}

// Guard enforces a token bucket plus any server-requested cooldown.
type Guard struct {
	decl Declaration

	mu       sync.Mutex
	tokens   float64
	last     time.Time
	cooldown time.Time
}

func NewGuard(decl Declaration) *Guard {
	return &Guard{decl: decl, tokens: float64(decl.PerMinute())}
}

// WrapHTTP wraps an http.Client with rate-limit enforcement.
func WrapHTTP(decl Declaration, base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	client := *base
	transport := client.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	client.Transport = &roundTripper{base: transport, guard: NewGuard(decl)}
	return &client
}

type roundTripper struct {
	base  http.RoundTripper
	guard *Guard
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if !rt.guard.decl.Guards(req.Method) {
		return rt.base.RoundTrip(req)
	}

	decision := rt.guard.ShouldCall(time.Now())
	if !decision.Allowed {
		blockedCounter.WithLabelValues(rt.guard.decl.ProviderName(), decision.Reason).Inc()
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, RateLimitError{
			Provider: rt.guard.decl.ProviderName(),
			Reason:   decision.Reason,
			RetryAt:  decision.RetryAt,
		}
	}

	resp, err := rt.base.RoundTrip(req)
	if err != nil {
		return resp, err
	}
	rt.guard.RecordResponse(time.Now(), resp.StatusCode, resp.Header)
	return resp, nil
}

func (g *Guard) ShouldCall(now time.Time) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.cooldown.IsZero() && now.Before(g.cooldown) {
		return Decision{Allowed: false, Reason: "cooldown", RetryAt: g.cooldown}
	}
	if !g.decl.HasLimits() {
		return Decision{Allowed: true}
	}

	capacity := float64(g.decl.PerMinute())
	if !g.last.IsZero() {
		elapsed := now.Sub(g.last).Seconds()
		g.tokens = min(capacity, g.tokens+elapsed*capacity/time.Minute.Seconds())
	}
	g.last = now
	remainingGauge.WithLabelValues(g.decl.ProviderName()).Set(g.tokens)

	if g.tokens < 1 {
		wait := time.Duration((1 - g.tokens) / capacity * float64(time.Minute))
		return Decision{Allowed: false, Reason: "budget", RetryAt: now.Add(wait)}
	}
	g.tokens--
	return Decision{Allowed: true}
}

// RecordResponse honours Retry-After on throttling responses.
func (g *Guard) RecordResponse(now time.Time, status int, headers http.Header) {
	lastStatusGauge.WithLabelValues(g.decl.ProviderName()).Set(float64(status))
	if status != http.StatusTooManyRequests && status != http.StatusServiceUnavailable {
		return
	}
	seconds, err := strconv.Atoi(headers.Get("Retry-After"))
	if err != nil || seconds <= 0 {
		return
	}

	g.mu.Lock()
	g.cooldown = now.Add(time.Duration(seconds) * time.Second)
	g.mu.Unlock()
	retryAfterGauge.WithLabelValues(g.decl.ProviderName()).Set(float64(seconds))
}
