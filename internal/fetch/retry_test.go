package fetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/joseph-ayodele/datares-tracker/internal/common"
	"github.com/joseph-ayodele/datares-tracker/internal/entity"
)

func countingFetcher(calls *int, res Result) Fetcher {
	return FetcherFunc(func(context.Context, entity.Descriptor) Result {
		*calls++
		return res
	})
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestRetryCapIsExact(t *testing.T) {
	for _, maxAttempts := range []int{1, 2, 3, 5} {
		calls := 0
		f := NewRetrying(countingFetcher(&calls, Transient("status 503", nil)),
			Policy{MaxAttempts: maxAttempts}, nil, WithSleep(noSleep))

		res := f.Fetch(context.Background(), desc("http://example.test/a.pdf"))
		assert.Equal(t, maxAttempts, calls)
		assert.Equal(t, maxAttempts, res.Attempts)
		assert.Equal(t, KindTransient, res.Kind)
		assert.ErrorIs(t, res.Err, common.ErrTransientFetch)
	}
}

func TestRetryingSkipsPermanent(t *testing.T) {
	for _, res := range []Result{NotFound("status 404", nil), Fatal("malformed url", nil), Success([]byte(pdfBody))} {
		calls := 0
		f := NewRetrying(countingFetcher(&calls, res), Policy{MaxAttempts: 4}, nil, WithSleep(noSleep))
		got := f.Fetch(context.Background(), desc("http://example.test/a.pdf"))
		assert.Equal(t, 1, calls, res.Kind.String())
		assert.Equal(t, 1, got.Attempts)
		assert.Equal(t, res.Kind, got.Kind)
	}
}

func TestRetryingStopsWhenSleepInterrupted(t *testing.T) {
	calls := 0
	f := NewRetrying(countingFetcher(&calls, Transient("status 503", nil)), Policy{MaxAttempts: 5}, nil,
		WithSleep(func(context.Context, time.Duration) error { return context.Canceled }))

	res := f.Fetch(context.Background(), desc("http://example.test/a.pdf"))
	assert.Equal(t, 1, calls)
	assert.Equal(t, KindTransient, res.Kind)
	assert.True(t, errors.Is(res.Err, context.Canceled))
}

func TestPolicyDelay(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	assert.Equal(t, 100*time.Millisecond, p.Delay(1))
	assert.Equal(t, 200*time.Millisecond, p.Delay(2))
	assert.Equal(t, 400*time.Millisecond, p.Delay(3))
	assert.Equal(t, 800*time.Millisecond, p.Delay(4))
	assert.Equal(t, time.Second, p.Delay(5))
	assert.Equal(t, time.Second, p.Delay(40))

	p.Jitter = func(d time.Duration) time.Duration { return d / 10 }
	assert.Equal(t, 220*time.Millisecond, p.Delay(2))
}

func TestProportionalJitterRange(t *testing.T) {
	j := ProportionalJitter(0.5)
	for i := 0; i < 100; i++ {
		got := j(time.Second)
		assert.GreaterOrEqual(t, got, time.Duration(0))
		assert.Less(t, got, 500*time.Millisecond)
	}
	assert.Equal(t, time.Duration(0), ProportionalJitter(0)(time.Second))
}
