package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/smartkitchen/smk/pkg/broker"
	"github.com/smartkitchen/smk/pkg/clock"
	"github.com/smartkitchen/smk/pkg/discovery"
	"github.com/smartkitchen/smk/pkg/model"
	"github.com/smartkitchen/smk/pkg/status"
	"github.com/smartkitchen/smk/pkg/store"
)

type serveOptions struct {
	httpAddr string
	journal  string
	mdns     bool
}

func newServeCommand(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the order broker",
		Long: `Run the order broker and read kitchen commands from stdin:

  start   broadcast START for the head order
  end     remove the head order and broadcast DONE
  queue   show the queue in total order
  clock   show the server's Lamport clock
  clear   drop every queued order
  quit    stop the broker`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, root, slog.LevelInfo)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("http") {
				a.cfg.HTTPAddr = opts.httpAddr
			}
			if cmd.Flags().Changed("journal") {
				a.cfg.Journal = opts.journal
			}
			if cmd.Flags().Changed("mdns") {
				a.cfg.MDNS = opts.mdns
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.httpAddr, "http", "", "status HTTP address, e.g. :8080 (default $SMK_HTTP_ADDR, off)")
	cmd.Flags().StringVar(&opts.journal, "journal", "", "SQLite event journal path (default $SMK_JOURNAL, off)")
	cmd.Flags().BoolVar(&opts.mdns, "mdns", false, "advertise the broker over mDNS")
	return cmd
}

func (a *app) serve(ctx context.Context, in io.Reader, stdout io.Writer) error {
	out := &lockedWriter{w: stdout}

	var journal broker.Journal
	if a.cfg.Journal != "" {
		st, err := store.New(a.cfg.Journal)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer st.Close()
		journal = st
		a.log.Info("journal open", "path", a.cfg.Journal, "events", st.Count())
	}

	sess := broker.NewSession(&clock.Clock{}, journal, a.log)
	b := broker.New(sess, broker.ListenerFunc(func(e model.Entry) int64 {
		fmt.Fprintf(out, "ORDER  %-12s %-16s ts=%d lamport=%d\n", e.ClientID, e.Dish, e.SenderTS, e.FusedTS)
		return e.FusedTS
	}), a.log)
	if err := b.Start(a.cfg.Addr()); err != nil {
		return err
	}
	defer b.Stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	statusDone := make(chan struct{})
	if a.cfg.HTTPAddr != "" {
		ln, err := net.Listen("tcp", a.cfg.HTTPAddr)
		if err != nil {
			return fmt.Errorf("listen status %s: %w", a.cfg.HTTPAddr, err)
		}
		go func() {
			defer close(statusDone)
			if err := status.New(sess, a.log).Serve(ctx, ln); err != nil {
				a.log.Error("status server failed", "err", err)
			}
		}()
	} else {
		close(statusDone)
	}
	defer func() { <-statusDone }()
	// Registered after the wait so it runs first.
	defer cancel()

	if a.cfg.MDNS {
		port := b.Addr().(*net.TCPAddr).Port
		adv, err := discovery.Advertise(port, a.log)
		if err != nil {
			a.log.Warn("mDNS advertisement failed", "err", err)
		} else {
			defer adv.Close()
		}
	}

	fmt.Fprintf(out, "smk broker on %s (type 'help' for commands)\n", b.Addr())
	runConsole(ctx, in, &console{sess: sess, out: out})
	return nil
}

// runConsole feeds lines from in to c until quit, ctx ends, or in is
// exhausted. When in ends first it keeps waiting for ctx, so a broker with
// no terminal still runs until signalled.
func runConsole(ctx context.Context, in io.Reader, c *console) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if c.exec(line) {
				return
			}
		}
	}
}

// console executes kitchen commands against a session.
type console struct {
	sess *broker.Session
	out  io.Writer
}

// exec runs one command line and reports whether the broker should stop.
func (c *console) exec(line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "":
	case "start", "s":
		m, err := c.sess.StartHead()
		if err != nil {
			c.refuse("start", err)
			return false
		}
		fmt.Fprintf(c.out, "START  %-12s %-16s lamport=%d\n", m.ClientID, m.Dish, m.FusedTS)
	case "end", "done", "e":
		_, m, err := c.sess.EndHead()
		if err != nil {
			c.refuse("end", err)
			return false
		}
		fmt.Fprintf(c.out, "DONE   %-12s %-16s lamport=%d\n", m.ClientID, m.Dish, m.FusedTS)
	case "queue", "q":
		c.printQueue()
	case "clock":
		v := c.sess.Snapshot()
		fmt.Fprintf(c.out, "clock=%d queued=%d clients=%d done/min=%d\n",
			v.Clock, len(v.Entries), v.Peers, v.DoneLastMinute)
	case "clear":
		fmt.Fprintf(c.out, "cleared %d order(s)\n", c.sess.Clear())
	case "quit", "exit":
		return true
	case "help", "?":
		fmt.Fprintln(c.out, "commands: start, end, queue, clock, clear, quit")
	default:
		fmt.Fprintf(c.out, "unknown command %q (try 'help')\n", strings.TrimSpace(line))
	}
	return false
}

func (c *console) refuse(cmd string, err error) {
	switch {
	case errors.Is(err, broker.ErrEmptyQueue):
		fmt.Fprintf(c.out, "%s: queue is empty\n", cmd)
	default:
		fmt.Fprintf(c.out, "%s: %v\n", cmd, err)
	}
}

func (c *console) printQueue() {
	v := c.sess.Snapshot()
	if len(v.Entries) == 0 {
		fmt.Fprintln(c.out, "queue is empty")
		return
	}
	fmt.Fprintf(c.out, "   %-8s %-12s %-16s %s\n", "LAMPORT", "CLIENT", "DISH", "TS")
	for i, e := range v.Entries {
		mark := "  "
		if i == 0 {
			mark = "> "
		}
		fmt.Fprintf(c.out, "%s %-8d %-12s %-16s %d\n", mark, e.FusedTS, e.ClientID, e.Dish, e.SenderTS)
	}
}
