package spi_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/momentics/hioload-nio/api"
	"github.com/momentics/hioload-nio/fake"
	"github.com/momentics/hioload-nio/spi"
)

func nonBlocking(t *testing.T, valid api.Ops) *fake.Channel {
	t.Helper()
	ch := fake.NewChannel(valid)
	require.NoError(t, ch.ConfigureBlocking(false))
	return ch
}

// foreignSelector is a selector not built on SelectorCore.
type foreignSelector struct{}

func (foreignSelector) IsOpen() bool  { return true }
func (foreignSelector) Close() error  { return nil }
func (foreignSelector) Wakeup() error { return nil }

func TestConfigureBlocking(t *testing.T) {
	ch := fake.NewChannel(api.OpRead | api.OpWrite)
	assert.True(t, ch.IsBlocking())

	require.NoError(t, ch.ConfigureBlocking(true))
	assert.Empty(t, ch.ModeChanges(), "unchanged mode must not reach the handle")

	require.NoError(t, ch.ConfigureBlocking(false))
	assert.False(t, ch.IsBlocking())
	require.NoError(t, ch.ConfigureBlocking(true))
	assert.True(t, ch.IsBlocking())
	assert.Equal(t, []bool{false, true}, ch.ModeChanges())

	require.NoError(t, ch.Close())
	assert.ErrorIs(t, ch.ConfigureBlocking(false), api.ErrClosedChannel)
}

func TestConfigureBlockingPropagatesHandleError(t *testing.T) {
	ch := fake.NewChannel(api.OpRead)
	boom := errors.New("fcntl failed")
	ch.SetModeError(boom)

	assert.ErrorIs(t, ch.ConfigureBlocking(false), boom)
	assert.True(t, ch.IsBlocking())
}

func TestRegisterRequiresNonBlocking(t *testing.T) {
	ch := fake.NewChannel(api.OpRead)
	sel := fake.NewSelector()

	k, err := ch.Register(sel, api.OpRead, nil)
	assert.Nil(t, k)
	assert.ErrorIs(t, err, api.ErrIllegalBlockingMode)
	assert.False(t, ch.IsRegistered())
}

func TestRegisterRejectsUnsupportedOps(t *testing.T) {
	ch := nonBlocking(t, api.OpRead)
	sel := fake.NewSelector()

	_, err := ch.Register(sel, api.OpRead|api.OpWrite, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)

	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, api.ErrCodeInvalidArgument, apiErr.Code)
	assert.False(t, ch.IsRegistered())
}

func TestReregisterReturnsSameKey(t *testing.T) {
	ch := nonBlocking(t, api.OpRead|api.OpWrite)
	sel := fake.NewSelector()

	k1, err := ch.Register(sel, api.OpRead, "A")
	require.NoError(t, err)
	k2, err := ch.Register(sel, api.OpWrite, "B")
	require.NoError(t, err)
	assert.Same(t, k1, k2)

	ops, err := k1.InterestOps()
	require.NoError(t, err)
	assert.Equal(t, api.OpWrite, ops)
	assert.Equal(t, "B", k1.Attachment())
	assert.Equal(t, 1, sel.Registered())

	assert.Same(t, k1, ch.KeyFor(sel))
	assert.Same(t, sel, k1.Selector())
	assert.Same(t, ch, k1.Channel())
}

func TestBlockingSwitchRejectedWhileRegistered(t *testing.T) {
	ch := nonBlocking(t, api.OpRead)
	sel := fake.NewSelector()

	k, err := ch.Register(sel, api.OpRead, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, ch.ConfigureBlocking(true), api.ErrIllegalBlockingMode)
	assert.False(t, ch.IsBlocking())

	// A cancelled key no longer pins the mode even before it is reaped.
	k.Cancel()
	assert.True(t, ch.IsRegistered())
	require.NoError(t, ch.ConfigureBlocking(true))
}

func TestRegisterErrors(t *testing.T) {
	t.Run("closed channel", func(t *testing.T) {
		ch := nonBlocking(t, api.OpRead)
		require.NoError(t, ch.Close())
		_, err := ch.Register(fake.NewSelector(), api.OpRead, nil)
		assert.ErrorIs(t, err, api.ErrClosedChannel)
	})
	t.Run("closed selector", func(t *testing.T) {
		ch := nonBlocking(t, api.OpRead)
		sel := fake.NewSelector()
		require.NoError(t, sel.Close())
		_, err := ch.Register(sel, api.OpRead, nil)
		assert.ErrorIs(t, err, api.ErrClosedSelector)
		assert.False(t, ch.IsRegistered())
	})
	t.Run("foreign selector", func(t *testing.T) {
		ch := nonBlocking(t, api.OpRead)
		_, err := ch.Register(foreignSelector{}, api.OpRead, nil)
		assert.ErrorIs(t, err, api.ErrIllegalSelector)
		assert.Nil(t, ch.KeyFor(foreignSelector{}))
	})
	t.Run("cancelled key awaiting deregistration", func(t *testing.T) {
		ch := nonBlocking(t, api.OpRead)
		sel := fake.NewSelector()
		k, err := ch.Register(sel, api.OpRead, nil)
		require.NoError(t, err)
		k.Cancel()

		_, err = ch.Register(sel, api.OpRead, nil)
		assert.ErrorIs(t, err, api.ErrCancelledKey)

		assert.Equal(t, 1, sel.Reap())
		k2, err := ch.Register(sel, api.OpRead, nil)
		require.NoError(t, err)
		assert.NotSame(t, k, k2)
	})
	t.Run("selector refuses", func(t *testing.T) {
		ch := nonBlocking(t, api.OpRead)
		sel := fake.NewSelector()
		boom := errors.New("poll set full")
		sel.SetRegisterError(boom)
		_, err := ch.Register(sel, api.OpRead, nil)
		assert.ErrorIs(t, err, boom)
		assert.False(t, ch.IsRegistered())
	})
}

func TestCloseCancelsEveryKey(t *testing.T) {
	ch := nonBlocking(t, api.OpRead)
	sels := []*fake.Selector{fake.NewSelector(), fake.NewSelector(), fake.NewSelector()}
	keys := make([]api.SelectionKey, 0, len(sels))
	for _, sel := range sels {
		k, err := ch.Register(sel, api.OpRead, nil)
		require.NoError(t, err)
		keys = append(keys, k)
	}

	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())
	assert.Equal(t, 1, ch.Teardowns())

	for i, sel := range sels {
		assert.False(t, keys[i].IsValid())
		cancelled := sel.CancelledKeys()
		require.Len(t, cancelled, 1, "selector %d", i)
		assert.Same(t, keys[i], cancelled[0])
	}

	// The table keeps the entries until each selector deregisters.
	assert.True(t, ch.IsRegistered())
	for _, sel := range sels {
		assert.Equal(t, 1, sel.Reap())
		assert.Zero(t, sel.Registered())
	}
	assert.False(t, ch.IsRegistered())
}

func TestCloseCancelsKeysEvenWhenTeardownFails(t *testing.T) {
	ch := nonBlocking(t, api.OpRead)
	sel := fake.NewSelector()
	k, err := ch.Register(sel, api.OpRead, nil)
	require.NoError(t, err)

	boom := errors.New("teardown failed")
	ch.SetTeardownError(boom)
	assert.ErrorIs(t, ch.Close(), boom)
	assert.False(t, k.IsValid())
	assert.Equal(t, 1, sel.PendingCancelled())
}

func TestDeregistrationClearsChannelEntry(t *testing.T) {
	ch := nonBlocking(t, api.OpRead)
	sel := fake.NewSelector()
	k, err := ch.Register(sel, api.OpRead, nil)
	require.NoError(t, err)

	k.Cancel()
	k.Cancel()
	assert.Equal(t, 1, sel.PendingCancelled())
	assert.Same(t, k, ch.KeyFor(sel))

	assert.Equal(t, 1, sel.Reap())
	assert.False(t, ch.IsRegistered())
	assert.Nil(t, ch.KeyFor(sel))
	assert.Zero(t, sel.PendingCancelled())
}

func TestSelectionKeyOperations(t *testing.T) {
	ch := nonBlocking(t, api.OpRead|api.OpWrite)
	sel := fake.NewSelector()
	key, err := ch.Register(sel, api.OpRead, 1)
	require.NoError(t, err)
	k := key.(*spi.SelectionKey)

	require.NoError(t, k.SetInterestOps(api.OpRead|api.OpWrite))
	assert.Equal(t, api.OpRead|api.OpWrite, k.Interest())
	assert.ErrorIs(t, k.SetInterestOps(api.OpAccept), api.ErrInvalidArgument)

	assert.Equal(t, 1, k.Attach(2))
	assert.Equal(t, 2, k.Attachment())

	assert.False(t, k.IsReadable())
	k.SetReadyOps(api.OpRead)
	assert.Equal(t, api.OpRead|api.OpWrite, k.AddReadyOps(api.OpWrite))
	assert.True(t, k.IsReadable())
	assert.True(t, k.IsWritable())
	assert.False(t, k.IsAcceptable())
	assert.False(t, k.IsConnectable())

	k.Cancel()
	_, err = k.InterestOps()
	assert.ErrorIs(t, err, api.ErrCancelledKey)
	_, err = k.ReadyOps()
	assert.ErrorIs(t, err, api.ErrCancelledKey)
	assert.ErrorIs(t, k.SetInterestOps(api.OpRead), api.ErrCancelledKey)
	assert.False(t, k.IsReadable())
	assert.Equal(t, 2, k.Attachment(), "attachment survives cancellation")
}

func TestSelectorCloseDeregistersKeys(t *testing.T) {
	sel := fake.NewSelector()
	a := nonBlocking(t, api.OpRead)
	b := nonBlocking(t, api.OpWrite)
	ka, err := a.Register(sel, api.OpRead, nil)
	require.NoError(t, err)
	kb, err := b.Register(sel, api.OpWrite, nil)
	require.NoError(t, err)

	require.NoError(t, sel.Close())
	require.NoError(t, sel.Close())
	assert.Equal(t, 1, sel.Closes())
	assert.False(t, sel.IsOpen())
	assert.False(t, ka.IsValid())
	assert.False(t, kb.IsValid())
	assert.False(t, a.IsRegistered())
	assert.False(t, b.IsRegistered())

	// Channels outlive the selector and may switch back to blocking mode.
	require.NoError(t, a.ConfigureBlocking(true))
	assert.True(t, a.IsOpen())
}

// A registration that reaches the hook after close started must not leave
// a key behind on the closed selector.
func TestSelectorRegisterHookRejectedAfterClose(t *testing.T) {
	sel := fake.NewSelector()
	ch := nonBlocking(t, api.OpRead)
	k, err := ch.Register(sel, api.OpRead, nil)
	require.NoError(t, err)
	require.NoError(t, sel.Close())

	err = sel.ImplRegister(k.(*spi.SelectionKey))
	assert.ErrorIs(t, err, api.ErrClosedSelector)
	assert.Zero(t, sel.Registered())
}

func TestSelectorPollInterrupted(t *testing.T) {
	sel := fake.NewSelector()
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- sel.Poll(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout: poll was not woken by the interrupt")
	}
	assert.True(t, sel.IsOpen(), "interrupting a poll must not close the selector")
	assert.GreaterOrEqual(t, sel.Wakeups(), int64(1))
}

func TestSelectorPollWokenExplicitly(t *testing.T) {
	sel := fake.NewSelector()
	require.NoError(t, sel.Wakeup())
	require.NoError(t, sel.Poll(context.Background()))

	require.NoError(t, sel.Close())
	assert.ErrorIs(t, sel.Poll(context.Background()), api.ErrClosedSelector)
}

func TestSelectorPollReapsCancelledKeys(t *testing.T) {
	sel := fake.NewSelector()
	ch := nonBlocking(t, api.OpRead)
	k, err := ch.Register(sel, api.OpRead, nil)
	require.NoError(t, err)
	k.Cancel()

	require.NoError(t, sel.Wakeup())
	require.NoError(t, sel.Poll(context.Background()))
	assert.False(t, ch.IsRegistered())
	assert.Zero(t, sel.Registered())
}

// Register, cancel, close and reap race from many goroutines; the test
// only asserts that everything terminates and ends up consistent.
func TestConcurrentRegistrationAndClose(t *testing.T) {
	const channels = 16
	sels := []*fake.Selector{fake.NewSelector(), fake.NewSelector()}

	done := make(chan struct{})
	var reapers sync.WaitGroup
	for _, sel := range sels {
		reapers.Add(1)
		go func(sel *fake.Selector) {
			defer reapers.Done()
			for {
				select {
				case <-done:
					sel.Reap()
					return
				default:
					sel.Reap()
				}
			}
		}(sel)
	}

	chs := make([]*fake.Channel, channels)
	for i := range chs {
		chs[i] = nonBlocking(t, api.OpRead|api.OpWrite)
	}

	var g errgroup.Group
	for _, ch := range chs {
		ch := ch
		g.Go(func() error {
			for i := 0; i < 50; i++ {
				sel := sels[i%len(sels)]
				k, err := ch.Register(sel, api.OpRead, i)
				switch {
				case err == nil:
					if i%3 == 0 {
						k.Cancel()
					}
				case errors.Is(err, api.ErrCancelledKey), errors.Is(err, api.ErrClosedChannel):
				default:
					return err
				}
			}
			return nil
		})
		g.Go(func() error {
			time.Sleep(time.Millisecond)
			return ch.Close()
		})
	}

	finished := make(chan error, 1)
	go func() { finished <- g.Wait() }()
	select {
	case err := <-finished:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("deadlock: registration and close did not finish")
	}
	close(done)
	reapers.Wait()

	for _, sel := range sels {
		sel.Reap()
		assert.Zero(t, sel.Registered())
	}
	for _, ch := range chs {
		assert.False(t, ch.IsOpen())
		assert.False(t, ch.IsRegistered())
		assert.Equal(t, 1, ch.Teardowns())
	}
}
