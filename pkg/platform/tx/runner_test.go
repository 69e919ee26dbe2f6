package tx

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "crowdfund/pkg/domain-errors"
)

func TestSharded_SerializesSameKey(t *testing.T) {
	runner := NewSharded(time.Second)
	var (
		active  atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := runner.RunInTx(context.Background(), "campaign:1", func(context.Context) error {
				n := active.Add(1)
				if n > maxSeen.Load() {
					maxSeen.Store(n)
				}
				time.Sleep(time.Millisecond)
				active.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxSeen.Load())
}

func TestSharded_AppliesDefaultDeadline(t *testing.T) {
	runner := NewSharded(0)
	err := runner.RunInTx(context.Background(), "k", func(ctx context.Context) error {
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(DefaultTimeout), deadline, time.Second)
		return nil
	})
	require.NoError(t, err)
}

func TestSharded_CancelledContext(t *testing.T) {
	runner := NewSharded(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := runner.RunInTx(ctx, "k", func(context.Context) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
	assert.False(t, called)
}

func TestHashKey_Distributes(t *testing.T) {
	assert.NotEqual(t, hashKey("campaign:1")%numShards, hashKey("campaign:2")%numShards)
}

func TestSharded_AfterCommit(t *testing.T) {
	runner := NewSharded(time.Second)

	t.Run("hooks run once fn succeeds", func(t *testing.T) {
		var ran []string
		err := runner.RunInTx(context.Background(), "k", func(ctx context.Context) error {
			AfterCommit(ctx, func() { ran = append(ran, "first") })
			AfterCommit(ctx, func() { ran = append(ran, "second") })
			assert.Empty(t, ran)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"first", "second"}, ran)
	})

	t.Run("hooks are dropped when fn fails", func(t *testing.T) {
		ran := false
		err := runner.RunInTx(context.Background(), "k", func(ctx context.Context) error {
			AfterCommit(ctx, func() { ran = true })
			return dErrors.New(dErrors.CodeInternal, "write failed")
		})
		require.Error(t, err)
		assert.False(t, ran)
	})

	t.Run("outside a transaction the hook runs immediately", func(t *testing.T) {
		ran := false
		AfterCommit(context.Background(), func() { ran = true })
		assert.True(t, ran)
	})
}
