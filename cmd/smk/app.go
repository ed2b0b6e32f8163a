package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/smartkitchen/smk/pkg/config"
	"github.com/smartkitchen/smk/pkg/logsink"
)

// rootOptions holds the global flags.
type rootOptions struct {
	configPath string
	host       string
	port       string
	verbose    bool
}

// app holds state shared by a subcommand run: resolved config and logger.
type app struct {
	cfg config.Config
	log *slog.Logger
}

// newApp resolves configuration (defaults, file, env, then flags) and
// builds a logger that writes one line per record to stderr. quiet is the
// level used when --verbose is off.
func newApp(cmd *cobra.Command, opts *rootOptions, quiet slog.Level) (*app, error) {
	level := quiet
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := logsink.Logger(stampedLines(cmd.ErrOrStderr()), level)

	cfg, err := config.Load(opts.configPath, logger)
	if err != nil {
		return nil, err
	}
	if opts.host != "" {
		cfg.Host = opts.host
	}
	if opts.port != "" {
		cfg.Port = config.ParsePort(opts.port, logger)
	}
	return &app{cfg: cfg, log: logger}, nil
}

// stampedLines returns a log sink that prefixes each line with the wall
// clock time.
func stampedLines(w io.Writer) func(string) {
	var mu sync.Mutex
	return func(line string) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, "%s %s\n", time.Now().Format("15:04:05.000"), line)
	}
}

// newClientID returns a short random participant id.
func newClientID() string {
	return "c-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// lockedWriter serializes writes from the console and connection
// goroutines.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// printJSON writes v to w as indented JSON.
func printJSON(w io.Writer, v interface{}) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
