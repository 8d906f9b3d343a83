package scraper

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-scrape-grocery/config"
)

// retryManager re-issues failed page fetches with capped exponential backoff.
type retryManager struct {
	cfg     *config.Config
	metrics *Metrics
	ctx     context.Context

	mu           sync.Mutex
	attempts     map[string]int
	timers       map[string]*time.Timer
	totalRetries int
	stopped      bool

	pending sync.WaitGroup
	fired   int64
}

func newRetryManager(cfg *config.Config, metrics *Metrics) *retryManager {
	return &retryManager{
		cfg:      cfg,
		attempts: make(map[string]int),
		timers:   make(map[string]*time.Timer),
		metrics:  metrics,
		ctx:      context.Background(),
	}
}

// Schedule arranges for resend to run after the next backoff interval.
// It reports false once key has used up its attempts or the manager is stopped.
func (rm *retryManager) Schedule(key string, resend func() error) bool {
	if rm.cfg.MaxRetries == 0 {
		return false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.stopped || rm.ctx.Err() != nil {
		return false
	}

	attempt := rm.attempts[key]
	if attempt >= rm.cfg.MaxRetries {
		return false
	}

	attempt++
	rm.attempts[key] = attempt
	rm.totalRetries++
	rm.metrics.IncRetries()

	delay := rm.backoff(attempt)
	rm.resetTimerLocked(key)
	rm.pending.Add(1)
	rm.timers[key] = time.AfterFunc(delay, func() {
		rm.fire(key, resend)
	})
	return true
}

func (rm *retryManager) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := rm.cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := rm.cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

func (rm *retryManager) resetTimerLocked(key string) {
	if timer, ok := rm.timers[key]; ok {
		if timer.Stop() {
			rm.pending.Done()
		}
		delete(rm.timers, key)
	}
}

func (rm *retryManager) fire(key string, resend func() error) {
	defer rm.pending.Done()

	rm.mu.Lock()
	delete(rm.timers, key)
	if rm.stopped || rm.ctx.Err() != nil {
		rm.mu.Unlock()
		return
	}
	rm.mu.Unlock()

	if err := resend(); err != nil {
		slog.Debug("retry request failed", slog.String("url", key), slog.Any("error", err))
	}
	atomic.AddInt64(&rm.fired, 1)
}

// Wait blocks until every scheduled retry has fired or been cancelled.
func (rm *retryManager) Wait() {
	rm.pending.Wait()
}

// Fired counts retries that have been re-issued so far.
func (rm *retryManager) Fired() int64 {
	return atomic.LoadInt64(&rm.fired)
}

func (rm *retryManager) Stop() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.stopped {
		return
	}

	rm.stopped = true
	for key, timer := range rm.timers {
		if timer.Stop() {
			rm.pending.Done()
		}
		delete(rm.timers, key)
	}
}

func (rm *retryManager) TotalRetries() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.totalRetries
}

func (rm *retryManager) SetContext(ctx context.Context) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if ctx == nil {
		rm.ctx = context.Background()
		return
	}
	rm.ctx = ctx
}
