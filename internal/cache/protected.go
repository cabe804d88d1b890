package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("cache circuit breaker open")

type ProtectedConfig struct {
	Timeout          time.Duration // hard timeout per call
	FailureThreshold int           // consecutive failures to open circuit
	Cooldown         time.Duration // how long to stay open before half-open
	HalfOpenMaxCalls int           // allow N trial calls in half-open
}

// Protected stops calling a failing cache for a cooldown period, so an
// unreachable Redis costs one fast error per request instead of a dial timeout.
type Protected struct {
	inner Store
	cfg   ProtectedConfig
	now   func() time.Time
	mu    sync.Mutex

	state string // "closed" | "open" | "half_open"

	consecutiveFailures int
	openedAt            time.Time
	halfOpenInFlight    int
}

func NewProtected(inner Store, cfg ProtectedConfig) *Protected {
	//defaults
	if cfg.Timeout <= 0 {
		cfg.Timeout = 250 * time.Millisecond
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 15 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}

	return &Protected{
		inner: inner,
		cfg:   cfg,
		now:   time.Now,
		state: "closed",
	}
}

func (p *Protected) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		val []byte
		ok  bool
	)

	err := p.call(ctx, func(ctx context.Context) error {
		var err error
		val, ok, err = p.inner.Get(ctx, key)
		return err
	})

	return val, ok, err
}

func (p *Protected) Set(ctx context.Context, key string, val []byte) error {
	return p.call(ctx, func(ctx context.Context) error {
		return p.inner.Set(ctx, key, val)
	})
}

func (p *Protected) Delete(ctx context.Context, keys ...string) error {
	return p.call(ctx, func(ctx context.Context) error {
		return p.inner.Delete(ctx, keys...)
	})
}

func (p *Protected) call(ctx context.Context, fn func(context.Context) error) error {
	// fail-fast gate
	if !p.allowRequest() {
		return ErrCircuitOpen
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	err := fn(callCtx)

	// the caller giving up says nothing about the cache's health
	if err != nil && ctx.Err() != nil {
		p.release()
		return err
	}

	p.afterRequest(err)

	return err
}

func (p *Protected) allowRequest() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case "closed":
		return true
	case "open":
		// cooldown has passed? move to half open
		if p.now().Sub(p.openedAt) >= p.cfg.Cooldown {
			p.state = "half_open"
			p.halfOpenInFlight = 1
			return true
		}
		return false
	case "half_open":
		if p.halfOpenInFlight >= p.cfg.HalfOpenMaxCalls {
			return false
		}
		p.halfOpenInFlight++
		return true
	default:
		return true
	}
}

func (p *Protected) release() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == "half_open" && p.halfOpenInFlight > 0 {
		p.halfOpenInFlight--
	}
}

func (p *Protected) afterRequest(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// half-open call just finished
	if p.state == "half_open" && p.halfOpenInFlight > 0 {
		p.halfOpenInFlight--
	}

	if err == nil {
		// success => close circuit and reset counters
		p.consecutiveFailures = 0
		p.state = "closed"
		return
	}

	p.consecutiveFailures++

	// if half-open failed, reopen immediately
	if p.state == "half_open" {
		p.state = "open"
		p.openedAt = p.now()
		return
	}

	if p.consecutiveFailures >= p.cfg.FailureThreshold {
		p.state = "open"
		p.openedAt = p.now()
	}
}

// State is "closed", "open" or "half_open".
func (p *Protected) State() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state
}
