package status

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/smartkitchen/smk/pkg/model"
	"github.com/smartkitchen/smk/pkg/wire"
)

const feedWriteTimeout = 5 * time.Second

// wsPeer is a websocket subscriber in the broadcast registry. Each
// broadcast arrives as one text frame holding the encoded line.
type wsPeer struct {
	id   string
	conn *websocket.Conn

	mu        sync.Mutex
	closeOnce sync.Once
}

func newWSPeer(conn *websocket.Conn) *wsPeer {
	return &wsPeer{id: "ws-" + uuid.NewString(), conn: conn}
}

func (p *wsPeer) ID() string { return p.id }

func (p *wsPeer) Send(m model.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout)); err != nil {
		return err
	}
	return p.conn.WriteMessage(websocket.TextMessage, []byte(wire.Encode(m)))
}

func (p *wsPeer) Close() error {
	var err error
	p.closeOnce.Do(func() { err = p.conn.Close() })
	return err
}

// events upgrades to a websocket and keeps the subscriber registered until
// the client goes away. Anything the client sends is discarded.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("failed to upgrade", "err", err)
		return
	}
	p := newWSPeer(conn)
	log := s.log.With("feed", p.ID(), "remote", r.RemoteAddr)

	s.mu.Lock()
	s.feeds[p.ID()] = p
	s.mu.Unlock()
	s.sess.Registry().Add(p)
	log.Info("feed subscribed")

	defer func() {
		s.sess.Registry().Remove(p.ID())
		s.mu.Lock()
		delete(s.feeds, p.ID())
		s.mu.Unlock()
		p.Close()
		log.Info("feed closed")
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) closeFeeds() {
	s.mu.Lock()
	feeds := make([]*wsPeer, 0, len(s.feeds))
	for _, p := range s.feeds {
		feeds = append(feeds, p)
	}
	s.mu.Unlock()
	for _, p := range feeds {
		p.Close()
	}
}
