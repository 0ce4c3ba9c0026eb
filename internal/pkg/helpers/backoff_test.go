package helpers

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextBackoffDelayDeterministicNoJitter(t *testing.T) {
	cfg := BackoffConfig{InitialDelay: 250 * time.Millisecond, Multiplier: 2, MaxDelay: time.Second}

	assert.Equal(t, 250*time.Millisecond, NextBackoffDelay(cfg, 1, nil))
	assert.Equal(t, 500*time.Millisecond, NextBackoffDelay(cfg, 2, nil))
	assert.Equal(t, time.Second, NextBackoffDelay(cfg, 3, nil))
	assert.Equal(t, time.Second, NextBackoffDelay(cfg, 10, nil), "capped at max")
}

func TestNextBackoffDelayJitterBounds(t *testing.T) {
	cfg := DefaultBackoff
	rng := rand.New(rand.NewSource(7))
	for attempt := 2; attempt < 12; attempt++ {
		d := NextBackoffDelay(cfg, attempt, rng)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Duration(1.5*float64(cfg.MaxDelay)))
	}
	assert.Equal(t, time.Duration(0), NextBackoffDelay(BackoffConfig{}, 3, nil))
}
