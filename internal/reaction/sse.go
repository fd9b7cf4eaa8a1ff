package reaction

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/ruokun-niu/drasi-server/internal/logging"
	"github.com/ruokun-niu/drasi-server/internal/model"
)

func init() {
	Register("sse", newSSEReaction)
}

// SSEConfig is the sse reaction's declarative config payload: it runs its
// own HTTP listener and broadcasts every result delta to every client
// currently connected to its stream path.
type SSEConfig struct {
	ListenAddr string
	Path       string
}

// SSEReaction fans each result delta out to every subscribed
// text/event-stream client. Clients that connect late only see deltas
// published after they connect — SSE has no replay, so a client wanting
// history first calls the query's /results snapshot endpoint (spec §6.4).
type SSEReaction struct {
	id     string
	cfg    SSEConfig
	log    *logging.Logger
	server *http.Server

	mu      sync.Mutex
	clients map[chan model.ResultDelta]struct{}
}

func newSSEReaction(id string, properties map[string]any) (Handler, error) {
	cfg := SSEConfig{ListenAddr: ":0", Path: "/stream"}
	if v, ok := properties["listen_addr"].(string); ok {
		cfg.ListenAddr = v
	}
	if v, ok := properties["path"].(string); ok {
		cfg.Path = v
	}
	return &SSEReaction{
		id:      id,
		cfg:     cfg,
		log:     logging.NewDefault("reaction." + id),
		clients: make(map[chan model.ResultDelta]struct{}),
	}, nil
}

func (s *SSEReaction) Start(ctx context.Context, deltas <-chan model.ResultDelta) error {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.handleStream)
	s.server = &http.Server{Addr: s.cfg.ListenAddr, Handler: mux}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithField("error", err).Error("sse listener stopped")
		}
	}()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deltas:
				if !ok {
					return
				}
				s.broadcast(d)
			}
		}
	}()
	return nil
}

func (s *SSEReaction) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan model.ResultDelta, 64)
	s.mu.Lock()
	s.clients[ch] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.clients, ch)
		s.mu.Unlock()
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case d := <-ch:
			data, err := json.Marshal(d)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func (s *SSEReaction) broadcast(d model.ResultDelta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.clients {
		select {
		case ch <- d:
		default:
			// slow client drops a delta rather than blocking the broadcaster
		}
	}
}

func (s *SSEReaction) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
