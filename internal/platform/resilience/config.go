package resilience

import "time"

type CircuitBreakerConfig struct {
	Enabled          bool
	FailureThreshold int
	OpenTimeout      time.Duration
	HalfOpenMaxReq   int
}

func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 5,
		OpenTimeout:      15 * time.Second,
		HalfOpenMaxReq:   2,
	}
}

func NormalizeCircuitBreakerConfig(cfg CircuitBreakerConfig) CircuitBreakerConfig {
	defaults := DefaultCircuitBreakerConfig()
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = defaults.FailureThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = defaults.OpenTimeout
	}
	if cfg.HalfOpenMaxReq < 1 {
		cfg.HalfOpenMaxReq = defaults.HalfOpenMaxReq
	}
	return cfg
}

// BackoffConfig describes capped exponential retry delays.
type BackoffConfig struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int
}

func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Base:        2 * time.Second,
		Max:         5 * time.Minute,
		MaxAttempts: 8,
	}
}

func NormalizeBackoffConfig(cfg BackoffConfig) BackoffConfig {
	defaults := DefaultBackoffConfig()
	if cfg.Base <= 0 {
		cfg.Base = defaults.Base
	}
	if cfg.Max < cfg.Base {
		cfg.Max = defaults.Max
		if cfg.Max < cfg.Base {
			cfg.Max = cfg.Base
		}
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	return cfg
}

// Delay returns the wait before the given retry attempt (1-based).
func (c BackoffConfig) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := c.Base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.Max || delay <= 0 {
			return c.Max
		}
	}
	if delay > c.Max {
		return c.Max
	}
	return delay
}
