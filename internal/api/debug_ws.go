package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// debugSnapshot is one frame of the /debug/ws live lifecycle feed: the
// full component/state listing, polled rather than event-driven to keep
// the registry free of a dedicated pub/sub path for an ambient debug tool.
type debugSnapshot struct {
	Sources   any `json:"sources"`
	Queries   any `json:"queries"`
	Reactions any `json:"reactions"`
}

// handleDebugWS streams a component-state snapshot over a websocket
// connection once per tick until the client disconnects (spec ambient
// observability surface, not part of the core REST contract).
func (s *Server) handleDebugWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Named("api").WithField("error", err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	log := s.log.Named("api").WithField("conn_id", connID)
	log.Debug("debug websocket connected")
	defer log.Debug("debug websocket disconnected")

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			snap := debugSnapshot{
				Sources:   s.reg.ListSources(),
				Queries:   s.reg.ListQueries(),
				Reactions: s.reg.ListReactions(),
			}
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}
