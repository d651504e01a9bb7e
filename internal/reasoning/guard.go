package reasoning

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/listing-trust/internal/config"
	"github.com/sells-group/listing-trust/internal/metrics"
	"github.com/sells-group/listing-trust/internal/resilience"
)

// GuardConfig bounds calls to a reasoning backend.
type GuardConfig struct {
	Timeout    time.Duration
	RatePerSec float64
	Burst      int
	Breaker    resilience.CircuitBreakerConfig
	MaxTokens  int
}

// GuardConfigFrom converts service config into a GuardConfig.
func GuardConfigFrom(cfg config.ReasoningConfig) GuardConfig {
	return GuardConfig{
		Timeout:    time.Duration(cfg.TimeoutSecs) * time.Second,
		RatePerSec: cfg.RatePerSec,
		Burst:      cfg.Burst,
		Breaker:    resilience.FromCircuitConfig(cfg.BreakerThreshold, time.Duration(cfg.BreakerResetSecs)*time.Second),
		MaxTokens:  cfg.MaxTokens,
	}
}

// Guard wraps a Reasoner with a per-call timeout, a local token-bucket
// budget and a circuit breaker. Each call is a single attempt: budget
// exhaustion and an open circuit fail immediately instead of waiting.
type Guard struct {
	inner     Reasoner
	timeout   time.Duration
	maxTokens int
	limiter   *rate.Limiter
	breaker   *resilience.CircuitBreaker
}

// NewGuard wraps inner. A nil inner produces an unconfigured guard.
func NewGuard(inner Reasoner, cfg GuardConfig) *Guard {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	provider := "none"
	if inner != nil {
		provider = inner.Name()
	}
	breakerCfg := cfg.Breaker
	breakerCfg.ShouldTrip = func(err error) bool {
		return resilience.IsTransient(err) || errors.Is(err, context.DeadlineExceeded)
	}
	breakerCfg.OnStateChange = func(from, to resilience.CircuitState) {
		zap.L().Warn("reasoning: circuit state change",
			zap.String("provider", provider),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}

	return &Guard{
		inner:     inner,
		timeout:   cfg.Timeout,
		maxTokens: cfg.MaxTokens,
		limiter:   rate.NewLimiter(limit, cfg.Burst),
		breaker:   resilience.NewCircuitBreaker(breakerCfg),
	}
}

// Configured reports whether a backend is attached.
func (g *Guard) Configured() bool {
	return g != nil && g.inner != nil
}

// Name implements Reasoner.
func (g *Guard) Name() string {
	if !g.Configured() {
		return "unconfigured"
	}
	return g.inner.Name()
}

// Complete implements Reasoner. Every failure maps to ErrUnconfigured or
// ErrUnavailable; the original cause stays in the chain.
func (g *Guard) Complete(ctx context.Context, req Request) (string, error) {
	if !g.Configured() {
		return "", resilience.ErrUnconfigured
	}
	provider := g.inner.Name()
	log := zap.L().With(zap.String("provider", provider), zap.String("purpose", req.Purpose))

	if !g.limiter.Allow() {
		metrics.ReasoningCallsTotal.WithLabelValues(provider, req.Purpose, "budget_exhausted").Inc()
		log.Warn("reasoning: local call budget exhausted")
		return "", eris.Wrap(resilience.ErrUnavailable, "local call budget exhausted")
	}

	if req.MaxTokens <= 0 {
		req.MaxTokens = g.maxTokens
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	out, err := resilience.Call(ctx, g.breaker, func(ctx context.Context) (string, error) {
		return g.inner.Complete(ctx, req)
	})
	metrics.ReasoningCallDuration.WithLabelValues(provider, req.Purpose).Observe(time.Since(start).Seconds())

	if err != nil {
		result := "error"
		switch {
		case errors.Is(err, resilience.ErrCircuitOpen):
			result = "circuit_open"
		case errors.Is(err, context.DeadlineExceeded):
			result = "timeout"
		}
		metrics.ReasoningCallsTotal.WithLabelValues(provider, req.Purpose, result).Inc()
		log.Warn("reasoning: call failed", zap.String("result", result), zap.Error(err))
		return "", eris.Wrapf(resilience.ErrUnavailable, "%s: %v", result, err)
	}

	metrics.ReasoningCallsTotal.WithLabelValues(provider, req.Purpose, "ok").Inc()
	return out, nil
}

// Breaker exposes the circuit breaker for health reporting.
func (g *Guard) Breaker() *resilience.CircuitBreaker {
	return g.breaker
}
