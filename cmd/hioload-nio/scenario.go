// File: cmd/hioload-nio/scenario.go
// Author: momentics <momentics@gmail.com>

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/momentics/hioload-nio/api"
	"github.com/momentics/hioload-nio/fake"
)

var scenarioCmd = &cobra.Command{
	Use:   "scenario",
	Short: "Run the registration, close and interrupt walkthrough against in-memory channels",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScenario(cmd.Context(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(scenarioCmd)
}

type step struct {
	name string
	run  func(context.Context) error
}

func runScenario(ctx context.Context, w io.Writer) error {
	steps := []step{
		{"register twice returns one key", registerTwice},
		{"interrupt before blocking closes the channel", interruptFirst},
		{"close while blocked reports asynchronous close", closeWhileBlocked},
	}
	failed := 0
	for _, s := range steps {
		if err := s.run(ctx); err != nil {
			failed++
			fmt.Fprintf(w, "FAIL  %s: %v\n", s.name, err)
			continue
		}
		fmt.Fprintf(w, "ok    %s\n", s.name)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d steps failed", failed, len(steps))
	}
	return nil
}

func registerTwice(context.Context) error {
	ch := fake.NewChannel(api.OpRead | api.OpWrite)
	sel := fake.NewSelector()
	defer sel.Close()

	if err := ch.ConfigureBlocking(false); err != nil {
		return err
	}
	k1, err := ch.Register(sel, api.OpRead, nil)
	if err != nil {
		return err
	}
	const att = "X"
	k2, err := ch.Register(sel, api.OpWrite, att)
	if err != nil {
		return err
	}
	if k1 != k2 {
		return errors.New("second registration minted a new key")
	}
	if ops, err := k2.InterestOps(); err != nil || ops != api.OpWrite {
		return fmt.Errorf("interest set is %v (%v), want %v", ops, err, api.OpWrite)
	}
	if got := k2.Attachment(); got != att {
		return fmt.Errorf("attachment is %v, want %v", got, att)
	}

	for i := 0; i < 2; i++ {
		if err := ch.Close(); err != nil {
			return fmt.Errorf("close #%d: %w", i+1, err)
		}
		if k1.IsValid() {
			return errors.New("key still valid after close")
		}
		if n := sel.PendingCancelled(); n != 1 {
			return fmt.Errorf("cancelled set holds %d entries after close #%d, want 1", n, i+1)
		}
	}
	if n := ch.Teardowns(); n != 1 {
		return fmt.Errorf("teardown ran %d times", n)
	}
	return nil
}

func interruptFirst(ctx context.Context) error {
	ch := fake.NewChannel(api.OpRead)
	ictx, cancel := context.WithCancel(ctx)
	cancel()
	err := ch.Block(ictx, nil)
	if !errors.Is(err, api.ErrClosedByInterrupt) {
		return fmt.Errorf("got %v, want %v", err, api.ErrClosedByInterrupt)
	}
	if ch.IsOpen() {
		return errors.New("channel still open")
	}
	return nil
}

func closeWhileBlocked(ctx context.Context) error {
	ch := fake.NewChannel(api.OpRead)
	errc := make(chan error, 1)
	go func() { errc <- ch.Block(ctx, nil) }()

	select {
	case <-ch.Parked():
	case <-time.After(5 * time.Second):
		return errors.New("operation never blocked")
	}
	if err := ch.Close(); err != nil {
		return err
	}
	select {
	case err := <-errc:
		if !errors.Is(err, api.ErrAsynchronousClose) || errors.Is(err, api.ErrClosedByInterrupt) {
			return fmt.Errorf("got %v, want %v", err, api.ErrAsynchronousClose)
		}
		return nil
	case <-time.After(5 * time.Second):
		return errors.New("blocked operation did not return after close")
	}
}
