package reader

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"bookflow/config"
)

func TestBackoffSequence(t *testing.T) {
	b := newBackoff(config.RetryConfig{
		BaseDelay:         250 * time.Millisecond,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2,
	})

	want := []time.Duration{
		250 * time.Millisecond,
		500 * time.Millisecond,
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for i, w := range want {
		assert.Equal(t, w, b.Duration(), "attempt %d", i)
	}

	b.Reset()
	assert.Equal(t, 250*time.Millisecond, b.Duration(), "reset restarts from the base delay")
}

func TestBackoffJitterStaysInRange(t *testing.T) {
	b := newBackoff(config.RetryConfig{
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 2,
		Jitter:            true,
	})
	for i := 0; i < 20; i++ {
		d := b.Duration()
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, time.Second)
	}
}
