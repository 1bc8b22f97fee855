package llm

import (
	"context"
	"errors"
	"time"

	"github.com/harunnryd/aide/pkg/errorsx"
	"github.com/harunnryd/aide/pkg/metrics"
	"github.com/harunnryd/aide/pkg/resilience"
)

// CircuitBreakerAdapter stops calling the reply backend after it has failed
// several turns in a row, so a stopped Ollama or an exhausted quota is
// reported straight away instead of after every request timeout. It never
// retries.
type CircuitBreakerAdapter struct {
	inner   LLMAdapter
	breaker *resilience.CircuitBreaker
	obs     metrics.Observer
}

// NewBreaker builds the breaker used for reply backends: rate limits and
// failed generations count, cancelled turns and bad tool arguments do not.
func NewBreaker(threshold int, cooldown time.Duration) *resilience.CircuitBreaker {
	return resilience.NewCircuitBreakerWithOptions(resilience.BreakerOptions{
		Threshold: threshold,
		Cooldown:  cooldown,
		Counts:    countsAgainstBackend,
	})
}

func countsAgainstBackend(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return resilience.IsRateLimit(err) || errorsx.HasAny(err, errorsx.ReasonLLMGenerate, errorsx.ReasonLLMRateLimit)
}

func NewCircuitBreakerAdapter(inner LLMAdapter, breaker *resilience.CircuitBreaker) *CircuitBreakerAdapter {
	if breaker == nil {
		breaker = NewBreaker(3, 30*time.Second)
	}
	return &CircuitBreakerAdapter{inner: inner, breaker: breaker, obs: metrics.NoopObserver{}}
}

func (a *CircuitBreakerAdapter) Name() string { return a.inner.Name() }

func (a *CircuitBreakerAdapter) SetObserver(obs metrics.Observer) {
	if obs == nil {
		obs = metrics.NoopObserver{}
	}
	a.obs = obs
}

func (a *CircuitBreakerAdapter) Generate(ctx context.Context, input Context) (Response, error) {
	before := a.breaker.State()
	if !a.breaker.Allow() {
		a.record(metrics.EventBreakerDenied, before)
		err := resilience.RateLimitError{Provider: a.Name(), Message: "reply backend is unavailable, try again shortly"}
		return Response{}, errorsx.Wrap(err, errorsx.ReasonLLMCircuitOpen)
	}
	resp, err := a.inner.Generate(ctx, input)
	if err != nil {
		if resilience.IsRateLimit(err) {
			a.record(metrics.EventRateLimit, before)
			err = errorsx.Wrap(err, errorsx.ReasonLLMRateLimit)
		}
		err = errorsx.Wrap(err, errorsx.ReasonLLMGenerate)
		a.breaker.OnError(err)
		if after := a.breaker.State(); after == resilience.BreakerOpen && before != resilience.BreakerOpen {
			a.record(metrics.EventBreakerOpen, after)
		}
		return Response{}, err
	}
	a.breaker.OnSuccess()
	if before != resilience.BreakerClosed {
		a.record(metrics.EventBreakerClose, resilience.BreakerClosed)
	}
	return resp, nil
}

func (a *CircuitBreakerAdapter) record(name string, state resilience.BreakerState) {
	a.obs.RecordEvent(metrics.MetricsEvent{
		Name: name,
		Time: time.Now(),
		Tags: map[string]string{
			"provider":  a.inner.Name(),
			"component": "llm",
			"breaker":   state.String(),
		},
	})
}
