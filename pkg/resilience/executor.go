package resilience

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/logger"
)

// Outcome says what a failed call means for the pipeline.
type Outcome struct {
	// Retry the call in place.
	Retry bool
	// Trip counts the failure against the operation's breaker.
	Trip bool
}

// Classifier maps an error returned by a remote call to an Outcome.
type Classifier func(err error) Outcome

// Executor wraps every remote call of a stage (Textract, S3, SQS, model
// inference) with retry and a circuit breaker per operation name. Errors are
// classified as AWS errors unless another Classifier is given.
type Executor struct {
	policy   Policy
	classify Classifier
	logger   logger.Logger
	rnd      func() float64

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

type ExecutorOption func(*Executor)

// WithClassifier replaces the default AWS classification.
func WithClassifier(c Classifier) ExecutorOption {
	return func(e *Executor) { e.classify = c }
}

func NewExecutor(p Policy, log logger.Logger, opts ...ExecutorOption) *Executor {
	e := &Executor{
		policy:   p.withDefaults(),
		classify: ClassifyAWSError,
		logger:   log,
		rnd:      rand.Float64,
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Do runs fn under the executor's policy. A nil Executor calls fn once.
func (e *Executor) Do(ctx context.Context, operation string, fn func(context.Context) error) error {
	return e.DoWith(ctx, operation, fn, nil)
}

// DoWith is Do with a per-call Classifier, for services that do not speak
// the AWS error model.
func (e *Executor) DoWith(ctx context.Context, operation string, fn func(context.Context) error, classify Classifier) error {
	if fn == nil {
		return errors.New("resilience: operation callback is nil")
	}
	if e == nil {
		return fn(ctx)
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classify == nil {
		classify = e.classify
	}

	if !e.policy.Breaker.Enabled {
		return e.retry(ctx, op, fn, classify)
	}
	_, err := e.breaker(op).Execute(func() (struct{}, error) {
		return struct{}{}, e.retry(ctx, op, fn, classify)
	})
	if IsCircuitOpen(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return err
}

func (e *Executor) retry(ctx context.Context, op string, fn func(context.Context) error, classify Classifier) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		outcome := classify(err)
		if !outcome.Retry {
			return outcome.wrap(err)
		}
		if attempt >= e.policy.MaxAttempts {
			return outcome.wrap(fmt.Errorf("%s failed after %d attempts: %w", op, attempt, err))
		}

		wait := e.policy.backoff(attempt, e.rnd)
		if e.logger != nil {
			e.logger.Warn("Retrying remote call",
				logger.String("operation", op),
				logger.Int("attempt", attempt),
				logger.Duration("backoff", wait),
				logger.Error(err),
			)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

// tripError marks a failure that counts against the operation's breaker.
type tripError struct{ err error }

func (o Outcome) wrap(err error) error {
	if o.Trip {
		return &tripError{err: err}
	}
	return err
}

func (e *tripError) Error() string { return e.err.Error() }
func (e *tripError) Unwrap() error { return e.err }

func (e *Executor) breaker(op string) *gobreaker.CircuitBreaker[struct{}] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cb, ok := e.breakers[op]; ok {
		return cb
	}
	bp := e.policy.Breaker
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        op,
		MaxRequests: bp.HalfOpenProbes,
		Timeout:     bp.OpenFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.Requests >= bp.MinRequests &&
				float64(c.TotalFailures)/float64(c.Requests) >= bp.FailureRatio
		},
		// 客户端错误 (4xx) 不计入断路器
		IsSuccessful: func(err error) bool {
			var trip *tripError
			return !errors.As(err, &trip)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if e.logger != nil {
				e.logger.Warn("Circuit breaker state changed",
					logger.String("operation", name),
					logger.String("from", from.String()),
					logger.String("to", to.String()),
				)
			}
		},
	})
	e.breakers[op] = cb
	return cb
}

// IsCircuitOpen reports errors returned without calling the service because
// the operation's breaker is open or probing.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
