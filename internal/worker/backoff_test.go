package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelayGrowsAndClamps(t *testing.T) {
	base := 2 * time.Second
	ceiling := 30 * time.Second

	for retry := 1; retry <= 10; retry++ {
		want := base * time.Duration(1<<(retry-1))
		if want > ceiling {
			want = ceiling
		}
		for i := 0; i < 50; i++ {
			got := backoffDelay(retry, base, ceiling)
			assert.GreaterOrEqual(t, got, want*3/4, "retry %d", retry)
			assert.LessOrEqual(t, got, want*5/4, "retry %d", retry)
		}
	}
}

func TestBackoffDelayOverflowGuard(t *testing.T) {
	// Absurd retry counts must not overflow into negative durations.
	got := backoffDelay(500, time.Second, 30*time.Second)
	assert.Greater(t, got, time.Duration(0))
	assert.LessOrEqual(t, got, 30*time.Second*5/4)
}
