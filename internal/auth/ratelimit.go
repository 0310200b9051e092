package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultLoginBurst  = 5
	defaultLoginWindow = 15 * time.Minute
)

// LoginLimiter throttles failed sign-ins per client IP and login name. Each
// pair gets a token bucket holding maxAttempts failures that refills over
// window; successful sign-ins clear the bucket.
type LoginLimiter struct {
	mu      sync.Mutex
	clients map[string]*loginClient
	limit   rate.Limit
	burst   int
	window  time.Duration
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

type loginClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewLoginLimiter(maxAttempts int, window time.Duration) *LoginLimiter {
	if maxAttempts <= 0 {
		maxAttempts = defaultLoginBurst
	}
	if window <= 0 {
		window = defaultLoginWindow
	}
	ll := &LoginLimiter{
		clients: make(map[string]*loginClient),
		limit:   rate.Limit(float64(maxAttempts) / window.Seconds()),
		burst:   maxAttempts,
		window:  window,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go ll.cleanupLoop()
	return ll
}

func (ll *LoginLimiter) Stop() {
	ll.stopOnce.Do(func() { close(ll.stop) })
}

func limiterKey(ip, login string) string {
	return ip + "|" + login
}

// Allow reports whether another attempt may be made and, if not, how long
// the client has to wait.
func (ll *LoginLimiter) Allow(ip, login string) (bool, time.Duration) {
	ll.mu.Lock()
	defer ll.mu.Unlock()

	client, ok := ll.clients[limiterKey(ip, login)]
	if !ok {
		return true, 0
	}
	now := ll.now()
	tokens := client.limiter.TokensAt(now)
	if tokens >= 1 {
		return true, 0
	}
	wait := time.Duration((1 - tokens) / float64(ll.limit) * float64(time.Second))
	return false, wait.Round(time.Second) + time.Second
}

// RecordFailure spends one attempt from the client's bucket.
func (ll *LoginLimiter) RecordFailure(ip, login string) {
	ll.mu.Lock()
	defer ll.mu.Unlock()

	key := limiterKey(ip, login)
	now := ll.now()
	client, ok := ll.clients[key]
	if !ok {
		client = &loginClient{limiter: rate.NewLimiter(ll.limit, ll.burst)}
		ll.clients[key] = client
	}
	client.lastSeen = now
	client.limiter.AllowN(now, 1)
}

func (ll *LoginLimiter) RecordSuccess(ip, login string) {
	ll.mu.Lock()
	delete(ll.clients, limiterKey(ip, login))
	ll.mu.Unlock()
}

func (ll *LoginLimiter) cleanupLoop() {
	ticker := time.NewTicker(ll.window)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ll.cleanup()
		case <-ll.stop:
			return
		}
	}
}

// cleanup drops buckets that have refilled completely.
func (ll *LoginLimiter) cleanup() {
	ll.mu.Lock()
	defer ll.mu.Unlock()

	now := ll.now()
	for key, client := range ll.clients {
		if client.limiter.TokensAt(now) >= float64(ll.burst) && now.Sub(client.lastSeen) > ll.window {
			delete(ll.clients, key)
		}
	}
}
