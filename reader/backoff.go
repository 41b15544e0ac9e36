package reader

import (
	"github.com/jpillora/backoff"

	"bookflow/config"
)

// newBackoff yields min(max, base * factor^attempt), advancing attempt on
// every call until Reset.
func newBackoff(cfg config.RetryConfig) *backoff.Backoff {
	return &backoff.Backoff{
		Min:    cfg.BaseDelay,
		Max:    cfg.MaxDelay,
		Factor: cfg.BackoffMultiplier,
		Jitter: cfg.Jitter,
	}
}
