package resilience

import "time"

// Policy bounds how hard one stage leans on a remote service before the
// message is handed back to the queue for redelivery.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter shortens each delay by a random fraction up to Jitter, so the
	// workers of one batch do not retry a throttled API in lockstep.
	Jitter float64

	Breaker BreakerPolicy
}

// BreakerPolicy configures the circuit breaker kept per operation name.
type BreakerPolicy struct {
	Enabled      bool
	MinRequests  uint32
	FailureRatio float64
	OpenFor      time.Duration
	// HalfOpenProbes is how many calls may test a half-open breaker.
	HalfOpenProbes uint32
}

// DefaultPolicy is tuned for Textract, S3, SQS and Bedrock throttling: a
// handful of quick retries, then the breaker sheds load until the service
// recovers and SQS redelivers.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 4,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Jitter:      0.2,
		Breaker: BreakerPolicy{
			Enabled:        true,
			MinRequests:    10,
			FailureRatio:   0.5,
			OpenFor:        30 * time.Second,
			HalfOpenProbes: 2,
		},
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = max(def.MaxDelay, p.BaseDelay)
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		p.Jitter = 0
	}

	b := &p.Breaker
	if b.MinRequests == 0 {
		b.MinRequests = def.Breaker.MinRequests
	}
	if b.FailureRatio <= 0 || b.FailureRatio > 1 {
		b.FailureRatio = def.Breaker.FailureRatio
	}
	if b.OpenFor <= 0 {
		b.OpenFor = def.Breaker.OpenFor
	}
	if b.HalfOpenProbes == 0 {
		b.HalfOpenProbes = def.Breaker.HalfOpenProbes
	}
	return p
}

// backoff is the wait after the given failed attempt (1-based): BaseDelay
// doubled per attempt, capped at MaxDelay, shortened by jitter. rnd returns
// a value in [0,1).
func (p Policy) backoff(attempt int, rnd func() float64) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt && d < p.MaxDelay; i++ {
		d *= 2
	}
	d = min(d, p.MaxDelay)
	if p.Jitter > 0 && rnd != nil {
		d -= time.Duration(float64(d) * p.Jitter * rnd())
	}
	return d
}
