package adapter

import (
	"math"
	"math/rand"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/btc-l2/anchorcore/pkg/errs"
)

// RetryPolicy implements spec section 4.7's jittered exponential
// backoff: wait = base * min(8, 2^attempt) + uniform(0, wait/4).
type RetryPolicy struct {
	Base        time.Duration
	MaxAttempts int
	rnd         *rand.Rand
}

// NewRetryPolicy returns a policy with the spec's default broadcast/
// heartbeat attempt bound of 5.
func NewRetryPolicy(base time.Duration) RetryPolicy {
	return RetryPolicy{Base: base, MaxAttempts: 5, rnd: rand.New(rand.NewSource(1))}
}

// Wait computes the backoff duration before the given attempt (0-based).
func (p RetryPolicy) Wait(attempt int) time.Duration {
	factor := math.Min(8, math.Pow(2, float64(attempt)))
	wait := time.Duration(float64(p.Base) * factor)
	if wait <= 0 {
		return 0
	}
	jitter := time.Duration(p.rnd.Int63n(int64(wait)/4 + 1))
	return wait + jitter
}

// Do retries fn until it succeeds, a non-transient error is returned, or
// MaxAttempts is exhausted. sleep is injected for testability.
func (p RetryPolicy) Do(fn func(attempt int) error, sleep func(time.Duration)) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if !errs.Is(err, errs.Transient) {
			return err
		}
		if attempt < maxAttempts-1 && sleep != nil {
			sleep(p.Wait(attempt))
		}
	}
	return lastErr
}

// IdempotencyCache suppresses duplicate broadcasts of the same raw
// transaction within a TTL window, keyed by the caller-supplied id
// (typically a hash of the raw tx bytes).
type IdempotencyCache struct {
	cache *lru.Cache[string, idempotencyEntry]
	ttl   time.Duration
	now   func() time.Time
}

type idempotencyEntry struct {
	txID      string
	expiresAt time.Time
}

// NewIdempotencyCache returns a cache bounded to size entries, each
// valid for ttl.
func NewIdempotencyCache(size int, ttl time.Duration) *IdempotencyCache {
	if size <= 0 {
		size = 1024
	}
	c, _ := lru.New[string, idempotencyEntry](size)
	return &IdempotencyCache{cache: c, ttl: ttl, now: time.Now}
}

// CheckAndSet returns (txID, true) if key was seen within the TTL
// window, without mutating the cache. Otherwise it records key -> txID
// and returns ("", false).
func (c *IdempotencyCache) CheckAndSet(key, txID string) (string, bool) {
	if entry, ok := c.cache.Get(key); ok {
		if c.now().Before(entry.expiresAt) {
			return entry.txID, true
		}
	}
	c.cache.Add(key, idempotencyEntry{txID: txID, expiresAt: c.now().Add(c.ttl)})
	return "", false
}
