package worker

import "time"

// Config controls outbox polling, retries and claim windows.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	SendTimeout  time.Duration
	// LockWindow bounds how long a claimed row may stay processing before
	// another worker releases it.
	LockWindow  time.Duration
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollInterval: 5 * time.Second,
		BatchSize:    50,
		MaxAttempts:  8,
		SendTimeout:  5 * time.Second,
		LockWindow:   2 * time.Minute,
		BaseBackoff:  30 * time.Second,
		MaxBackoff:   time.Hour,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = defaults.PollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaults.MaxAttempts
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = defaults.SendTimeout
	}
	if c.LockWindow <= 0 {
		c.LockWindow = defaults.LockWindow
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = defaults.BaseBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaults.MaxBackoff
	}
	return c
}

// backoff doubles from BaseBackoff per attempt, capped at MaxBackoff.
func (c Config) backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := c.BaseBackoff
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	return delay
}
