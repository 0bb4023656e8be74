package spi_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-nio/api"
	"github.com/momentics/hioload-nio/spi"
)

// A channel without selector support: just the close protocol and the
// interrupt gate around a teardown func.
func TestStandaloneInterruptibleChannel(t *testing.T) {
	var teardowns atomic.Int32
	ch := spi.NewInterruptibleChannel(func() error {
		teardowns.Add(1)
		return nil
	})
	require.True(t, ch.IsOpen())

	op, err := ch.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, ch.End(op, true))
	assert.True(t, ch.IsOpen())

	ctx, cancel := context.WithCancelCause(context.Background())
	cause := errors.New("deadline from caller")
	op, err = ch.Begin(ctx)
	require.NoError(t, err)
	cancel(cause)
	require.Eventually(t, func() bool { return !ch.IsOpen() }, 5*time.Second, time.Millisecond)

	err = ch.End(op, false)
	assert.ErrorIs(t, err, api.ErrClosedByInterrupt)
	assert.ErrorIs(t, err, cause)
	assert.NoError(t, ch.Close())
	assert.Equal(t, int32(1), teardowns.Load())
}

func TestStandaloneInterruptibleChannelNilTeardown(t *testing.T) {
	ch := spi.NewInterruptibleChannel(nil)
	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())
	assert.False(t, ch.IsOpen())

	op, err := ch.Begin(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, ch.End(op, false), api.ErrAsynchronousClose)
}

func TestStandaloneInterruptibleChannelTeardownError(t *testing.T) {
	boom := errors.New("release failed")
	ch := spi.NewInterruptibleChannel(func() error { return boom })
	assert.ErrorIs(t, ch.Close(), boom)
	assert.NoError(t, ch.Close())
}
