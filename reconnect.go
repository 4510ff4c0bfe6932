package mjpeg

import "time"

// ReconnectConfig controls how a View replaces a failed Controller.
type ReconnectConfig struct {
	MaxRetries    int           // consecutive attempts without a frame; 0 disables reconnection
	RetryDelay    time.Duration // delay before the first attempt
	MaxRetryDelay time.Duration // cap for the exponential delay
}

func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		MaxRetries:    5,
		RetryDelay:    1 * time.Second,
		MaxRetryDelay: 30 * time.Second,
	}
}

// calculateBackoff returns RetryDelay * 2^(attempt-1), capped at MaxRetryDelay.
func calculateBackoff(attempt int, cfg ReconnectConfig) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := cfg.RetryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if cfg.MaxRetryDelay > 0 && delay >= cfg.MaxRetryDelay {
			return cfg.MaxRetryDelay
		}
	}
	if cfg.MaxRetryDelay > 0 && delay > cfg.MaxRetryDelay {
		return cfg.MaxRetryDelay
	}
	return delay
}
