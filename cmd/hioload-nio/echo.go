//go:build unix

// File: cmd/hioload-nio/echo.go
// Author: momentics <momentics@gmail.com>

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/momentics/hioload-nio/api"
	"github.com/momentics/hioload-nio/control"
	"github.com/momentics/hioload-nio/reactor"
	"github.com/momentics/hioload-nio/transport"
)

var (
	echoMessages int
	echoInterval time.Duration
)

var echoCmd = &cobra.Command{
	Use:   "echo",
	Short: "Pump messages through a pipe and read them back with a poll selector",
	Args:  cobra.NoArgs,
	RunE:  runEcho,
}

func init() {
	echoCmd.Flags().IntVarP(&echoMessages, "messages", "n", 10, "number of messages to send")
	echoCmd.Flags().DurationVar(&echoInterval, "interval", 100*time.Millisecond, "delay between messages")
	rootCmd.AddCommand(echoCmd)
}

func runEcho(cmd *cobra.Command, args []string) error {
	log := control.Component("echo")
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if configPath != "" {
		if err := control.WatchConfig(ctx, configPath, store); err != nil {
			return err
		}
	}

	metrics := control.NewMetricsRegistry()
	probes := control.NewDebugProbes()
	control.RegisterPlatformProbes(probes)

	sel, err := reactor.New(
		reactor.WithConfig(store.GetSnapshot().Reactor),
		reactor.WithMetrics(metrics),
		reactor.WithDebugProbes(probes),
	)
	if err != nil {
		return err
	}
	defer sel.Close()
	store.OnReload(func(c control.Config) { sel.ApplyConfig(c.Reactor) })

	src, sink, err := transport.Pipe()
	if err != nil {
		return err
	}
	defer src.Close()
	if err := src.ConfigureBlocking(false); err != nil {
		return err
	}
	if _, err := src.Register(sel, api.OpRead, "echo"); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer sink.Close()
		for i := 0; i < echoMessages; i++ {
			msg := fmt.Sprintf("message %d\n", i)
			// the sink is blocking; cancelling gctx closes it
			if _, err := sink.Write(gctx, []byte(msg)); err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return err
			}
			select {
			case <-gctx.Done():
				return nil
			case <-time.After(echoInterval):
			}
		}
		return nil
	})
	g.Go(func() error {
		out := cmd.OutOrStdout()
		buf := make([]byte, 4096)
		for {
			if _, err := sel.Select(gctx, sel.PollTimeout()); err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return err
			}
			for _, k := range sel.SelectedKeys() {
				sel.RemoveSelected(k)
				if !k.IsReadable() {
					continue
				}
				n, err := src.Read(gctx, buf)
				if err != nil {
					if errors.Is(err, io.EOF) || gctx.Err() != nil {
						return nil
					}
					return err
				}
				if _, err := out.Write(buf[:n]); err != nil {
					return err
				}
			}
		}
	})
	err = g.Wait()

	log.WithField("metrics", metrics.GetSnapshot()).
		WithField("probes", probes.DumpState()).
		Info("echo finished")
	return err
}
