package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/smartkitchen/smk/pkg/clock"
	"github.com/smartkitchen/smk/pkg/discovery"
	"github.com/smartkitchen/smk/pkg/model"
	"github.com/smartkitchen/smk/pkg/peer"
)

type orderOptions struct {
	client   string
	timeout  time.Duration
	discover bool
	jsonOut  bool
}

// orderResult is what `smk order` prints.
type orderResult struct {
	Client   string `json:"client"`
	Dish     string `json:"dish"`
	SenderTS int64  `json:"ts"`
	FusedTS  int64  `json:"lamport"`
	Clock    int64  `json:"clock"`
	Server   string `json:"server"`
}

var errNoReady = errors.New("no READY before timeout")

func newOrderCommand(root *rootOptions) *cobra.Command {
	opts := &orderOptions{}
	cmd := &cobra.Command{
		Use:   "order <dish> [dish...]",
		Short: "Submit one order per dish and wait for every READY",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, root, slog.LevelWarn)
			if err != nil {
				return err
			}
			if opts.client == "" {
				opts.client = newClientID()
			}
			addr, err := a.resolveAddr(cmd.Context(), opts.discover)
			if err != nil {
				return err
			}
			res, err := a.order(cmd.Context(), addr, opts.client, args, opts.timeout)
			if err != nil {
				return err
			}
			printOrders(cmd.OutOrStdout(), res, opts.jsonOut)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.client, "client", "", "client id (default random c-xxxxxxxx)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "how long to wait for all READY replies")
	cmd.Flags().BoolVar(&opts.discover, "discover", false, "find the broker over mDNS")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "JSON output")
	return cmd
}

// resolveAddr returns the configured broker address, or browses mDNS for
// one when discover is set.
func (a *app) resolveAddr(ctx context.Context, discover bool) (string, error) {
	if !discover {
		return a.cfg.Addr(), nil
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return discovery.Lookup(ctx, a.log)
}

type readyReply struct {
	msg   model.Message
	after int64
}

// order sends one ORDER per dish over a single link and waits until every
// one has been answered. Results follow the order of dishes.
func (a *app) order(ctx context.Context, addr, clientID string, dishes []string, timeout time.Duration) ([]orderResult, error) {
	replies := make(chan readyReply, len(dishes))
	link, err := peer.Dial(ctx, addr, &clock.Clock{}, peer.Funcs{
		Ready: func(m model.Message, after int64) {
			if m.ClientID != clientID {
				return
			}
			select {
			case replies <- readyReply{msg: m, after: after}:
			default:
			}
		},
	}, a.log)
	if err != nil {
		return nil, err
	}
	defer link.Close()

	// READY echoes the sender timestamp, which is unique per submission.
	pending := make(map[int64]int, len(dishes))
	for i, dish := range dishes {
		ts, ok := link.SubmitOrder(clientID, dish)
		if !ok {
			return nil, fmt.Errorf("order for %s not sent", dish)
		}
		pending[ts] = i
	}

	results := make([]orderResult, len(dishes))
	deadline := time.After(timeout)
	for len(pending) > 0 {
		select {
		case r := <-replies:
			i, ok := pending[r.msg.SenderTS]
			if !ok {
				continue
			}
			delete(pending, r.msg.SenderTS)
			results[i] = orderResult{
				Client:   clientID,
				Dish:     dishes[i],
				SenderTS: r.msg.SenderTS,
				FusedTS:  r.msg.FusedTS,
				Clock:    r.after,
				Server:   addr,
			}
		case <-link.Done():
			return nil, fmt.Errorf("broker %s closed the connection", addr)
		case <-deadline:
			return nil, fmt.Errorf("%w (%d of %d answered)", errNoReady, len(dishes)-len(pending), len(dishes))
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return results, nil
}

func printOrders(w io.Writer, rs []orderResult, jsonOut bool) {
	if jsonOut {
		printJSON(w, rs)
		return
	}
	for _, r := range rs {
		fmt.Fprintf(w, "READY %s %s ts=%d lamport=%d (local clock %d)\n",
			r.Client, r.Dish, r.SenderTS, r.FusedTS, r.Clock)
	}
}
