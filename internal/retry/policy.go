package retry

import "time"

// Kind classifies a transport failure for retry handling.
type Kind int

const (
	KindUnknown Kind = iota
	KindRateLimit
	KindAuthExpired
	KindServerError
	KindConnectionLost
)

func (k Kind) String() string {
	switch k {
	case KindRateLimit:
		return "rate_limit"
	case KindAuthExpired:
		return "auth_expired"
	case KindServerError:
		return "server_error"
	case KindConnectionLost:
		return "connection_lost"
	default:
		return "unknown"
	}
}

// Classify maps an HTTP status and/or a transport error to a failure
// kind. A zero status with a non-nil error is a network or abort style
// failure; statuses outside the known set are unknown and terminal.
func Classify(status int, err error) Kind {
	switch {
	case status == 429:
		return KindRateLimit
	case status == 401 || status == 403:
		return KindAuthExpired
	case status >= 500:
		return KindServerError
	case status == 0 && err != nil:
		return KindConnectionLost
	default:
		return KindUnknown
	}
}

// Policy decides whether and when to reconnect after a classified
// failure. It carries no transport or UI dependencies so it can be
// tested in isolation; the coordinator owns the attempt counters.
type Policy struct {
	// MaxAttempts bounds rate_limit/server_error retries.
	MaxAttempts int
	// Delays is indexed by attempt number (1-based, clamped to the
	// last entry).
	Delays []time.Duration
	// MaxLostRetries and LostDelay govern connection_lost, which gets
	// its own counter independent of MaxAttempts.
	MaxLostRetries int
	LostDelay      time.Duration
}

// NewPolicy returns the production policy: three attempts at
// 2s/4s/8s, one connection_lost reconnect after 2s.
func NewPolicy() *Policy {
	return &Policy{
		MaxAttempts:    3,
		Delays:         []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second},
		MaxLostRetries: 1,
		LostDelay:      2 * time.Second,
	}
}

// ShouldRetry reports whether failure number attempt (1-based, counted
// per kind family) warrants another connection. auth_expired and
// unknown are always terminal.
func (p *Policy) ShouldRetry(kind Kind, attempt int) bool {
	switch kind {
	case KindRateLimit, KindServerError:
		return attempt <= p.MaxAttempts
	case KindConnectionLost:
		return attempt <= p.MaxLostRetries
	default:
		return false
	}
}

// Delay returns the wait before retrying failure number attempt.
func (p *Policy) Delay(kind Kind, attempt int) time.Duration {
	if kind == KindConnectionLost {
		return p.LostDelay
	}
	if len(p.Delays) == 0 {
		return 0
	}
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(p.Delays) {
		idx = len(p.Delays) - 1
	}
	return p.Delays[idx]
}
