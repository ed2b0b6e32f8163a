// Package broker implements the server role: it accepts client
// connections, admits ORDER messages into a Lamport-ordered queue, replies
// READY with the fused timestamp and broadcasts START/DONE for the head of
// the queue.
//
// Each accepted connection gets its own goroutine. All connections share a
// single Session, which owns the clock, the queue and the broadcast
// registry. Transport and decode failures end only the affected connection
// and are logged; nothing propagates to the caller.
package broker

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smartkitchen/smk/pkg/model"
	"github.com/smartkitchen/smk/pkg/wire"
)

// DefaultWriteTimeout bounds a single send to one peer.
const DefaultWriteTimeout = 5 * time.Second

// Listener is notified of every admitted order. OnOrder runs on the
// connection's goroutine; its return value is sent back to the client as
// the READY message's Lamport timestamp, so a collaborator that only
// records the order returns e.FusedTS unchanged.
type Listener interface {
	OnOrder(e model.Entry) int64
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(e model.Entry) int64

func (f ListenerFunc) OnOrder(e model.Entry) int64 { return f(e) }

// Broker accepts connections and feeds a Session.
type Broker struct {
	sess         *Session
	listener     Listener
	log          *slog.Logger
	WriteTimeout time.Duration

	mu      sync.Mutex
	ln      net.Listener
	running atomic.Bool
	wg      sync.WaitGroup
}

// New creates a broker for sess. listener and logger may be nil.
func New(sess *Session, listener Listener, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		sess:         sess,
		listener:     listener,
		log:          logger,
		WriteTimeout: DefaultWriteTimeout,
	}
}

// Session returns the session the broker feeds.
func (b *Broker) Session() *Session { return b.sess }

// Start binds addr and begins accepting connections in the background.
// Bind errors are returned; everything after that is logged.
func (b *Broker) Start(addr string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ln != nil {
		return errors.New("broker: already started")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	b.ln = ln
	b.running.Store(true)

	b.wg.Add(1)
	go b.acceptLoop(ln)
	b.log.Info("server listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Start and after Stop.
func (b *Broker) Addr() net.Addr {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ln == nil {
		return nil
	}
	return b.ln.Addr()
}

// Running reports whether the broker is accepting connections. It turns
// false on Stop or when Accept fails; Stop must still be called to close
// the remaining connections.
func (b *Broker) Running() bool { return b.running.Load() }

func (b *Broker) acceptLoop(ln net.Listener) {
	defer b.wg.Done()
	for {
		c, err := ln.Accept()
		if err != nil {
			if b.running.Swap(false) {
				b.log.Error("accept failed, no longer accepting", "err", err)
			}
			return
		}
		conn := wire.NewConn(c)
		conn.SetWriteTimeout(b.WriteTimeout)
		b.sess.Registry().Add(conn)
		if !b.running.Load() {
			// Stop raced with Accept; CloseAll may already have run.
			b.sess.Registry().Remove(conn.ID())
			conn.Close()
			return
		}
		b.wg.Add(1)
		go b.serve(conn)
	}
}

func (b *Broker) serve(conn *wire.Conn) {
	defer b.wg.Done()
	log := b.log.With("conn", conn.ID(), "remote", conn.RemoteAddr().String())
	log.Info("client connected")
	defer func() {
		b.sess.Registry().Remove(conn.ID())
		conn.Close()
		log.Info("client disconnected")
	}()

	for {
		f, err := conn.Receive()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Warn("receive failed", "err", err)
			}
			return
		}
		if !b.running.Load() {
			return
		}
		switch f.Message.Kind {
		case model.KindOrder:
			b.admit(conn, f.Message, log)
		default:
			log.Warn("unexpected message, ignoring", "line", f.Line)
		}
	}
}

func (b *Broker) admit(conn *wire.Conn, m model.Message, log *slog.Logger) {
	e := b.sess.Admit(m.ClientID, m.Dish, m.SenderTS)
	fused := e.FusedTS
	if b.listener != nil {
		fused = b.listener.OnOrder(e)
	}
	ready := model.Message{
		Kind:     model.KindReady,
		ClientID: m.ClientID,
		Dish:     m.Dish,
		SenderTS: m.SenderTS,
		FusedTS:  fused,
		Note:     model.NoteQueued,
	}
	if err := conn.Send(ready); err != nil {
		log.Warn("READY not delivered", "client", m.ClientID, "err", err)
	}
}

// Broadcast sends m to every registered peer, best-effort.
func (b *Broker) Broadcast(m model.Message) int {
	return b.sess.Broadcast(m)
}

// Stop closes the listener and every connection, then waits for the
// connection goroutines to exit. In-flight messages are not drained.
// Calling Stop on a stopped broker is a no-op.
func (b *Broker) Stop() {
	b.mu.Lock()
	ln := b.ln
	b.ln = nil
	b.running.Store(false)
	b.mu.Unlock()
	if ln == nil {
		return
	}

	_ = ln.Close()
	b.sess.Registry().CloseAll()
	b.wg.Wait()
	b.log.Info("server stopped")
}
