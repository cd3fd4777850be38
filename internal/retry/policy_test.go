package retry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		status int
		err    error
		want   Kind
	}{
		{"rate limited", 429, nil, KindRateLimit},
		{"unauthorized", 401, nil, KindAuthExpired},
		{"forbidden", 403, nil, KindAuthExpired},
		{"server error", 500, nil, KindServerError},
		{"bad gateway", 502, nil, KindServerError},
		{"network failure", 0, errors.New("connection reset"), KindConnectionLost},
		{"not found", 404, nil, KindUnknown},
		{"nothing", 0, nil, KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.status, tc.err))
		})
	}
}

func TestRateLimitBackoffLadder(t *testing.T) {
	p := NewPolicy()

	// Three consecutive 429s retry at 2s, 4s, 8s; the fourth failure
	// is terminal.
	wantDelays := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	for attempt := 1; attempt <= 3; attempt++ {
		assert.True(t, p.ShouldRetry(KindRateLimit, attempt), "attempt %d", attempt)
		assert.Equal(t, wantDelays[attempt-1], p.Delay(KindRateLimit, attempt))
	}
	assert.False(t, p.ShouldRetry(KindRateLimit, 4))
}

func TestDelayClampsBeyondLadder(t *testing.T) {
	p := NewPolicy()
	assert.Equal(t, 8*time.Second, p.Delay(KindServerError, 7))
}

func TestConnectionLostRetriedOnceWithFixedDelay(t *testing.T) {
	p := NewPolicy()
	assert.True(t, p.ShouldRetry(KindConnectionLost, 1))
	assert.Equal(t, 2*time.Second, p.Delay(KindConnectionLost, 1))
	assert.False(t, p.ShouldRetry(KindConnectionLost, 2))
}

func TestAuthExpiredAndUnknownNeverRetried(t *testing.T) {
	p := NewPolicy()
	assert.False(t, p.ShouldRetry(KindAuthExpired, 1))
	assert.False(t, p.ShouldRetry(KindUnknown, 1))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "rate_limit", KindRateLimit.String())
	assert.Equal(t, "auth_expired", KindAuthExpired.String())
	assert.Equal(t, "server_error", KindServerError.String())
	assert.Equal(t, "connection_lost", KindConnectionLost.String())
	assert.Equal(t, "unknown", KindUnknown.String())
}
