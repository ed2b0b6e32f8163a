package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smartkitchen/smk/pkg/model"
	"github.com/smartkitchen/smk/pkg/store"
)

type logOptions struct {
	journal string
	since   int64
	limit   int
	client  string
	kind    string
	jsonOut bool
}

func newLogCommand(root *rootOptions) *cobra.Command {
	opts := &logOptions{}
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Query the broker's event journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, root, slog.LevelWarn)
			if err != nil {
				return err
			}
			if opts.journal != "" {
				a.cfg.Journal = opts.journal
			}
			if a.cfg.Journal == "" {
				return fmt.Errorf("no journal: pass --journal or set SMK_JOURNAL")
			}
			s, err := store.New(a.cfg.Journal)
			if err != nil {
				return fmt.Errorf("cannot open journal %q: %w", a.cfg.Journal, err)
			}
			defer s.Close()
			return queryLog(cmd.OutOrStdout(), s, opts)
		},
	}
	cmd.Flags().StringVar(&opts.journal, "journal", "", "SQLite event journal path (default $SMK_JOURNAL)")
	cmd.Flags().Int64Var(&opts.since, "since", 0, "events with lamport_ts >= this")
	cmd.Flags().IntVar(&opts.limit, "limit", 50, "max events to return")
	cmd.Flags().StringVar(&opts.client, "client", "", "only events for this client")
	cmd.Flags().StringVar(&opts.kind, "kind", "", "only events of this kind (ORDER, START, DONE)")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "JSON output")
	return cmd
}

func queryLog(w io.Writer, s store.StoreInterface, opts *logOptions) error {
	var kind model.Kind
	if opts.kind != "" {
		if kind = model.ParseKind(strings.ToUpper(opts.kind)); kind == "" {
			return fmt.Errorf("unknown event kind %q", opts.kind)
		}
	}

	var (
		events []model.Event
		err    error
	)
	switch {
	case opts.client != "" && kind != "":
		events, err = s.ListForClientKind(opts.client, kind, opts.since, opts.limit)
	case opts.client != "":
		events, err = s.ListForClient(opts.client, opts.since, opts.limit)
	case kind != "":
		events, err = s.ListByKind(kind, opts.since, opts.limit)
	default:
		events, err = s.List(opts.since, opts.limit)
	}
	if err != nil {
		return fmt.Errorf("log: %w", err)
	}

	if opts.jsonOut {
		printJSON(w, map[string]interface{}{"events": events, "count": len(events)})
		return nil
	}
	if len(events) == 0 {
		fmt.Fprintln(w, "no events")
		return nil
	}
	for _, e := range events {
		printJournalEvent(w, e)
	}
	return nil
}

func printJournalEvent(w io.Writer, e model.Event) {
	switch e.Kind {
	case model.KindOrder:
		fmt.Fprintf(w, "[ts=%d] %s ordered %s (client ts=%d)\n", e.LamportTS, e.ClientID, e.Dish, e.SenderTS)
	case model.KindStart:
		fmt.Fprintf(w, "[ts=%d] start %s for %s\n", e.LamportTS, e.Dish, e.ClientID)
	case model.KindDone:
		fmt.Fprintf(w, "[ts=%d] done %s for %s\n", e.LamportTS, e.Dish, e.ClientID)
	default:
		fmt.Fprintf(w, "[ts=%d] %s %s %s %s\n", e.LamportTS, e.Kind, e.ClientID, e.Dish, e.Note)
	}
}
