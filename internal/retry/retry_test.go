package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/imtaco/stream-coordinator/internal/log"
)

var errFlaky = errors.New("flaky")

func testConfig() Config {
	return Config{
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		MaxElapsedTime:  time.Second,
	}
}

func TestDoSucceedsAfterFailures(t *testing.T) {
	r := New(log.NewTest(t), testConfig())

	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoPermanent(t *testing.T) {
	r := New(log.NewNop(), testConfig())

	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return Permanent(errFlaky)
	})

	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 1, calls)
}

func TestDoCancelled(t *testing.T) {
	r := New(log.NewNop(), testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Do(ctx, func() error { return errFlaky })
	assert.Error(t, err)
}
