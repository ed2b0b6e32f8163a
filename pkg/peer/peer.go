// Package peer implements the client role: one connection to the broker
// and a background goroutine that folds every received timestamp into the
// local Lamport clock before handing the message to the collaborator.
//
// A Link never reconnects. When the stream ends the link tears itself down
// and Done is closed; a caller that wants to retry dials again.
package peer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync/atomic"

	"github.com/smartkitchen/smk/pkg/clock"
	"github.com/smartkitchen/smk/pkg/model"
	"github.com/smartkitchen/smk/pkg/wire"
)

// Listener receives server events. Both methods run on the link's receive
// goroutine, after the local clock has applied the receive rule;
// lamportAfter is the clock value that event produced.
type Listener interface {
	OnReady(m model.Message, lamportAfter int64)
	OnEvent(m model.Message, lamportAfter int64)
}

// Funcs adapts plain functions to Listener. Nil fields are skipped.
type Funcs struct {
	Ready func(m model.Message, lamportAfter int64)
	Event func(m model.Message, lamportAfter int64)
}

func (f Funcs) OnReady(m model.Message, after int64) {
	if f.Ready != nil {
		f.Ready(m, after)
	}
}

func (f Funcs) OnEvent(m model.Message, after int64) {
	if f.Event != nil {
		f.Event(m, after)
	}
}

// Link is a client connection to the broker.
type Link struct {
	addr     string
	clock    *clock.Clock
	listener Listener
	log      *slog.Logger

	conn atomic.Pointer[wire.Conn]
	done chan struct{}
}

// Dial connects to addr and starts the receive goroutine. clk is the
// participant's clock; listener and logger may be nil.
func Dial(ctx context.Context, addr string, clk *clock.Clock, listener Listener, logger *slog.Logger) (*Link, error) {
	if clk == nil {
		clk = &clock.Clock{}
	}
	if listener == nil {
		listener = Funcs{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		logger.Error("connect failed", "addr", addr, "err", err)
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}

	l := &Link{
		addr:     addr,
		clock:    clk,
		listener: listener,
		log:      logger.With("server", addr),
		done:     make(chan struct{}),
	}
	conn := wire.NewConn(c)
	l.conn.Store(conn)
	go l.receiveLoop(conn)
	l.log.Info("connected")
	return l, nil
}

// Clock returns the participant's clock.
func (l *Link) Clock() *clock.Clock { return l.clock }

// Connected reports whether the link can still send.
func (l *Link) Connected() bool { return l.conn.Load() != nil }

// Done is closed when the receive goroutine has exited.
func (l *Link) Done() <-chan struct{} { return l.done }

// SubmitOrder ticks the clock and sends an ORDER stamped with the new
// value. When the link is down, or the order cannot be framed or sent, it
// logs a warning and returns false; the caller is expected to disable the
// action while disconnected.
func (l *Link) SubmitOrder(clientID, dish string) (int64, bool) {
	conn := l.conn.Load()
	if conn == nil {
		l.log.Warn("not connected, order dropped", "client", clientID, "dish", dish)
		return 0, false
	}
	m := model.Message{Kind: model.KindOrder, ClientID: clientID, Dish: dish}
	if err := wire.Validate(m); err != nil {
		l.log.Warn("order rejected", "client", clientID, "err", err)
		return 0, false
	}

	m.SenderTS = l.clock.Tick()
	if err := conn.Send(m); err != nil {
		l.log.Warn("order not sent", "client", clientID, "dish", dish, "ts", m.SenderTS, "err", err)
		l.teardown(conn)
		return 0, false
	}
	l.log.Info("order sent", "client", clientID, "dish", dish, "ts", m.SenderTS)
	return m.SenderTS, true
}

// Close disconnects. Safe to call more than once and from a listener
// callback; it does not wait for the receive goroutine (use Done).
func (l *Link) Close() error {
	if conn := l.conn.Swap(nil); conn != nil {
		return conn.Close()
	}
	return nil
}

func (l *Link) receiveLoop(conn *wire.Conn) {
	defer close(l.done)
	defer l.teardown(conn)

	for {
		f, err := conn.Receive()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				l.log.Warn("receive failed", "err", err)
			}
			return
		}
		l.log.Debug("frame received", "line", f.Line)

		switch m := f.Message; m.Kind {
		case model.KindReady:
			after := l.clock.Receive(m.FusedTS)
			l.listener.OnReady(m, after)
		case model.KindStart, model.KindDone:
			after := l.clock.Receive(m.FusedTS)
			l.listener.OnEvent(m, after)
		default:
			l.log.Warn("unexpected message, ignoring", "line", f.Line)
		}
	}
}

func (l *Link) teardown(conn *wire.Conn) {
	l.conn.CompareAndSwap(conn, nil)
	if !conn.Closed() {
		conn.Close()
		l.log.Info("disconnected")
	}
}
