package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/smartkitchen/smk/pkg/clock"
	"github.com/smartkitchen/smk/pkg/model"
	"github.com/smartkitchen/smk/pkg/peer"
)

type watchOptions struct {
	discover bool
	jsonOut  bool
}

func newWatchCommand(root *rootOptions) *cobra.Command {
	opts := &watchOptions{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream START and DONE events from the broker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, root, slog.LevelWarn)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			addr, err := a.resolveAddr(ctx, opts.discover)
			if err != nil {
				return err
			}
			return a.watch(ctx, addr, &lockedWriter{w: cmd.OutOrStdout()}, cmd.ErrOrStderr(), opts.jsonOut)
		},
	}
	cmd.Flags().BoolVar(&opts.discover, "discover", false, "find the broker over mDNS")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "JSON output (one object per line)")
	return cmd
}

func (a *app) watch(ctx context.Context, addr string, out, status io.Writer, jsonOut bool) error {
	show := func(m model.Message, after int64) { printEvent(out, m, after, jsonOut) }
	link, err := peer.Dial(ctx, addr, &clock.Clock{}, peer.Funcs{Ready: show, Event: show}, a.log)
	if err != nil {
		return err
	}
	defer link.Close()

	fmt.Fprintf(status, "watching %s (ctrl-c to stop)\n", addr)
	select {
	case <-ctx.Done():
		fmt.Fprintln(status, "\nstopped")
		return nil
	case <-link.Done():
		return fmt.Errorf("broker %s closed the connection", addr)
	}
}

// watchLine is the JSON shape of a watched event.
type watchLine struct {
	model.Message
	Clock int64 `json:"clock"`
}

func printEvent(w io.Writer, m model.Message, after int64, jsonOut bool) {
	if jsonOut {
		b, _ := json.Marshal(watchLine{Message: m, Clock: after})
		fmt.Fprintln(w, string(b))
		return
	}
	fmt.Fprintf(w, "[lamport=%d] %-5s %s %s (clock %d)\n", m.FusedTS, m.Kind, m.ClientID, m.Dish, after)
}
