package fallback

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
)

func TestPolicy_PrimarySucceeds(t *testing.T) {
	var degraded []*DegradedError
	p := Policy[string]{
		Dependency: "test",
		Logger:     slog.Default(),
		OnDegraded: func(e *DegradedError) { degraded = append(degraded, e) },
	}
	got := p.Run(context.Background(),
		func(context.Context) (string, error) { return "remote", nil },
		func() string { return "local" },
	)
	assert.Equal(t, "remote", got)
	assert.Equal(t, 0, len(degraded))
}

func TestPolicy_PrimaryFails(t *testing.T) {
	boom := errors.New("boom")
	var degraded []*DegradedError
	p := Policy[string]{
		Dependency: "test",
		OnDegraded: func(e *DegradedError) { degraded = append(degraded, e) },
	}
	got := p.Run(context.Background(),
		func(context.Context) (string, error) { return "ignored", boom },
		func() string { return "local" },
	)
	assert.Equal(t, "local", got)
	assert.Equal(t, 1, len(degraded))
	assert.True(t, errors.Is(degraded[0], boom))
	assert.Equal(t, "test", degraded[0].Dependency)
}

func TestPolicy_TimeoutFallsBack(t *testing.T) {
	var degraded []*DegradedError
	p := Policy[int]{
		Dependency: "slow",
		Timeout:    10 * time.Millisecond,
		OnDegraded: func(e *DegradedError) { degraded = append(degraded, e) },
	}
	start := time.Now()
	got := p.Run(context.Background(),
		func(ctx context.Context) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		},
		func() int { return 7 },
	)
	assert.Equal(t, 7, got)
	assert.True(t, time.Since(start) < time.Second)
	assert.Equal(t, 1, len(degraded))
	assert.True(t, errors.Is(degraded[0], context.DeadlineExceeded))
}

func TestPolicy_PrimaryPanicFallsBack(t *testing.T) {
	var degraded []*DegradedError
	p := Policy[string]{
		Dependency: "flaky",
		OnDegraded: func(e *DegradedError) { degraded = append(degraded, e) },
	}
	got := p.Run(context.Background(),
		func(context.Context) (string, error) {
			var m map[string]int
			m["x"] = 1
			return "unreachable", nil
		},
		func() string { return "local" },
	)
	assert.Equal(t, "local", got)
	assert.Equal(t, 1, len(degraded))
	assert.Contains(t, degraded[0].Error(), "panic: assignment to entry in nil map")
}
