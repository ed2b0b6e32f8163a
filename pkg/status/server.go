// Package status exposes a broker session over HTTP: a JSON read view of
// the clock and queue, head-of-queue processing commands for a dashboard,
// and a websocket feed that receives every broadcast line.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/smartkitchen/smk/pkg/broker"
	"github.com/smartkitchen/smk/pkg/model"
)

// Server serves the status API for one session.
type Server struct {
	sess     *broker.Session
	log      *slog.Logger
	router   *mux.Router
	upgrader websocket.Upgrader

	mu    sync.Mutex
	feeds map[string]*wsPeer
}

// New builds the router. logger may be nil.
func New(sess *broker.Session, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		sess: sess,
		log:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		feeds: make(map[string]*wsPeer),
	}

	r := mux.NewRouter()
	r.Use(s.logRequests)
	r.HandleFunc("/clock", s.getClock).Methods(http.MethodGet)
	r.HandleFunc("/queue", s.getQueue).Methods(http.MethodGet)
	r.HandleFunc("/queue/start", s.postStart).Methods(http.MethodPost)
	r.HandleFunc("/queue/end", s.postEnd).Methods(http.MethodPost)
	r.HandleFunc("/queue/clear", s.postClear).Methods(http.MethodPost)
	r.HandleFunc("/events", s.events).Methods(http.MethodGet)
	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Serve runs an HTTP server on ln until ctx is cancelled, then closes it
// and every open event feed.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.router, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.log.Info("status server listening", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		s.closeFeeds()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.closeFeeds()
	if serr := <-errc; serr != nil && !errors.Is(serr, http.ErrServerClosed) {
		return serr
	}
	return err
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		s.log.Debug("handled", "method", r.Method, "url", r.URL.String(), "duration", m.Duration, "status", m.Code)
	})
}

type clockView struct {
	Clock          int64 `json:"clock"`
	Queued         int   `json:"queued"`
	Peers          int   `json:"peers"`
	DoneLastMinute int   `json:"done_last_minute"`
}

func (s *Server) getClock(w http.ResponseWriter, _ *http.Request) {
	v := s.sess.Snapshot()
	writeJSON(w, http.StatusOK, clockView{
		Clock:          v.Clock,
		Queued:         len(v.Entries),
		Peers:          v.Peers,
		DoneLastMinute: v.DoneLastMinute,
	})
}

func (s *Server) getQueue(w http.ResponseWriter, _ *http.Request) {
	v := s.sess.Snapshot()
	if v.Entries == nil {
		v.Entries = []model.Entry{}
	}
	writeJSON(w, http.StatusOK, v)
}

// target is the optional body of a processing command. An empty body, or
// one without a client, addresses the current head.
type target struct {
	Client  string `json:"client"`
	Lamport int64  `json:"lamport"`
}

func (t target) entry() model.Entry {
	return model.Entry{ClientID: t.Client, FusedTS: t.Lamport}
}

func readTarget(r *http.Request) (target, bool, error) {
	var t target
	err := json.NewDecoder(r.Body).Decode(&t)
	if errors.Is(err, io.EOF) {
		return t, false, nil
	}
	if err != nil {
		return t, false, err
	}
	return t, t.Client != "", nil
}

func (s *Server) postStart(w http.ResponseWriter, r *http.Request) {
	t, explicit, err := readTarget(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var m model.Message
	if explicit {
		m, err = s.sess.Start(t.entry())
	} else {
		m, err = s.sess.StartHead()
	}
	if err != nil {
		writeProcessError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) postEnd(w http.ResponseWriter, r *http.Request) {
	t, explicit, err := readTarget(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var m model.Message
	if explicit {
		_, m, err = s.sess.End(t.entry())
	} else {
		_, m, err = s.sess.EndHead()
	}
	if err != nil {
		writeProcessError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) postClear(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"cleared": s.sess.Clear()})
}

func writeProcessError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, broker.ErrEmptyQueue), errors.Is(err, broker.ErrNotHead):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
