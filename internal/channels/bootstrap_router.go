package channels

import (
	"context"
	"fmt"
	"sync"

	"github.com/ruokun-niu/drasi-server/internal/logging"
	"github.com/ruokun-niu/drasi-server/internal/model"
)

// BootstrapRequest is issued by a query to a source to begin a bootstrap
// session (spec §4.3 protocol step 1).
type BootstrapRequest struct {
	QueryID     string
	SourceID    string
	LabelFilter []string
	BufferSize  int
}

// BootstrapInsert is one Node/Relation insert produced by a bootstrap
// provider.
type BootstrapInsert struct {
	Element model.Element
}

// BootstrapComplete terminates a bootstrap session, optionally carrying a
// coordination watermark (spec §4.3).
type BootstrapComplete struct {
	Watermark    int64
	HasWatermark bool
	Err          error // non-nil if the provider failed mid-stream
}

// BootstrapSession is the reply-side handle a source hands back to the
// requesting query: a finite, totally ordered stream of inserts terminated
// by exactly one BootstrapComplete.
type BootstrapSession struct {
	Inserts  <-chan BootstrapInsert
	Complete <-chan BootstrapComplete
}

// bootstrapSessionHandle is the source-side writer half of a session.
type bootstrapSessionHandle struct {
	inserts  chan BootstrapInsert
	complete chan BootstrapComplete
}

// BootstrapRouter carries bootstrap requests from queries to sources and
// the resulting insert/complete streams back (spec §4.1.2).
type BootstrapRouter struct {
	mu       sync.Mutex
	sessions map[string]*bootstrapSessionHandle // keyed by requestKey(query,source)
	log      *logging.Logger
}

// NewBootstrapRouter builds a BootstrapRouter.
func NewBootstrapRouter(log *logging.Logger) *BootstrapRouter {
	return &BootstrapRouter{
		sessions: make(map[string]*bootstrapSessionHandle),
		log:      log,
	}
}

func requestKey(queryID, sourceID string) string {
	return queryID + "\x00" + sourceID
}

// OpenSession is called by the query side: it registers a new session and
// returns the read-only handle the query will drain.
func (r *BootstrapRouter) OpenSession(req BootstrapRequest) (BootstrapSession, error) {
	key := requestKey(req.QueryID, req.SourceID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[key]; exists {
		return BootstrapSession{}, fmt.Errorf("bootstrap router: session already open for %s/%s", req.QueryID, req.SourceID)
	}

	bufSize := req.BufferSize
	if bufSize <= 0 {
		bufSize = 10000
	}
	h := &bootstrapSessionHandle{
		inserts:  make(chan BootstrapInsert, bufSize),
		complete: make(chan BootstrapComplete, 1),
	}
	r.sessions[key] = h
	r.log.Named("bootstrap-router").WithField("query_id", req.QueryID).WithField("source_id", req.SourceID).Info("bootstrap session opened")

	return BootstrapSession{Inserts: h.inserts, Complete: h.complete}, nil
}

// PushInsert is called by the provider side (through the source) to stream
// one insert into the session.
func (r *BootstrapRouter) PushInsert(ctx context.Context, queryID, sourceID string, ins BootstrapInsert) error {
	h, err := r.handle(queryID, sourceID)
	if err != nil {
		return err
	}
	select {
	case h.inserts <- ins:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Complete is called exactly once by the provider side to terminate a
// session, then releases the session's registration.
func (r *BootstrapRouter) Complete(queryID, sourceID string, done BootstrapComplete) error {
	h, err := r.handle(queryID, sourceID)
	if err != nil {
		return err
	}
	h.complete <- done
	close(h.complete)
	close(h.inserts)

	r.mu.Lock()
	delete(r.sessions, requestKey(queryID, sourceID))
	r.mu.Unlock()
	return nil
}

func (r *BootstrapRouter) handle(queryID, sourceID string) (*bootstrapSessionHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.sessions[requestKey(queryID, sourceID)]
	if !ok {
		return nil, fmt.Errorf("bootstrap router: no open session for %s/%s", queryID, sourceID)
	}
	return h, nil
}
