package game

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/juedwards/minecraft-assessment-server/internal/chunk"
	"github.com/juedwards/minecraft-assessment-server/internal/config"
	"github.com/juedwards/minecraft-assessment-server/internal/session"
)

// Server accepts game-client connections (the in-game /connect target) and
// runs one Session per connection.
type Server struct {
	store    *chunk.Store
	registry *Registry
	recorder *session.Recorder
	bcast    Broadcaster
	cfg      config.Config
	log      *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(store *chunk.Store, registry *Registry, recorder *session.Recorder, bcast Broadcaster, cfg config.Config, logger *log.Logger) *Server {
	return &Server{
		store:    store,
		registry: registry,
		recorder: recorder,
		bcast:    bcast,
		cfg:      cfg,
		log:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // game clients send no Origin
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		ws, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		conn := newConn(ws)
		s.registry.addConn(conn)
		s.log.Printf("game client connected from %s", r.RemoteAddr)

		sess := NewSession(conn, s.store, s.registry, s.recorder, s.bcast, s.cfg, s.log)
		sess.Greet()

		for {
			_, msg, err := ws.ReadMessage()
			if err != nil {
				break
			}
			sess.Dispatch(msg)
		}

		s.registry.removeConn(conn)
		_ = conn.close()
		sess.Close()
		s.log.Printf("game client disconnected (%s)", r.RemoteAddr)
	}
}
