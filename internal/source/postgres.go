package source

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/ruokun-niu/drasi-server/internal/model"
)

func init() {
	Register("postgres", newPostgresSource)
}

// PostgresConfig is the postgres source's declarative config payload.
type PostgresConfig struct {
	DSN           string `mapstructure:"dsn"`
	NotifyChannel string `mapstructure:"notify_channel"`
}

// wireChange is the JSON payload shape NOTIFY carries; it mirrors
// model.ChangeEvent but with plain fields for json.Unmarshal.
type wireChange struct {
	Op           string         `json:"op"`
	Kind         string         `json:"kind"`
	ID           string         `json:"id"`
	Labels       []string       `json:"labels"`
	FromNodeID   string         `json:"from_node_id"`
	ToNodeID     string         `json:"to_node_id"`
	Properties   map[string]any `json:"properties"`
	BeforeProps  map[string]any `json:"before_properties"`
	SourceTimeMs int64          `json:"source_time_ms"`
	Position     int64          `json:"position"`
}

// PostgresSource streams row-level changes notified over a Postgres
// LISTEN/NOTIFY channel. Full logical-replication WAL decoding is a
// concrete-connector concern explicitly out of scope (spec §1);
// LISTEN/NOTIFY is the idiomatic Go stand-in that exercises the same
// "live change stream from Postgres" shape without requiring a WAL
// decoding implementation. The bootstrap snapshot and LSN watermark
// (spec §4.3 table) are implemented for real in
// internal/bootstrap/postgres.go.
type PostgresSource struct {
	id  string
	cfg PostgresConfig

	mu       sync.Mutex
	listener *pq.Listener
	cancel   context.CancelFunc
}

func newPostgresSource(id string, properties map[string]any) (Source, error) {
	var cfg PostgresConfig
	if v, ok := properties["dsn"].(string); ok {
		cfg.DSN = v
	}
	if v, ok := properties["notify_channel"].(string); ok {
		cfg.NotifyChannel = v
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres source %s: dsn is required", id)
	}
	if cfg.NotifyChannel == "" {
		cfg.NotifyChannel = "drasi_changes"
	}
	return &PostgresSource{id: id, cfg: cfg}, nil
}

func (p *PostgresSource) Start(ctx context.Context, labelFilter []string, sink ChangeSink) error {
	filter := toSet(labelFilter)

	listener := pq.NewListener(p.cfg.DSN, 2*time.Second, time.Minute, nil)
	if err := listener.Listen(p.cfg.NotifyChannel); err != nil {
		return fmt.Errorf("postgres source %s: listen %s: %w", p.id, p.cfg.NotifyChannel, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.listener = listener
	p.cancel = cancel
	p.mu.Unlock()

	go p.pump(runCtx, listener, sink, filter)
	return nil
}

func (p *PostgresSource) pump(ctx context.Context, listener *pq.Listener, sink ChangeSink, filter map[string]bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-listener.Notify:
			if !ok {
				return
			}
			if n == nil {
				continue
			}
			ev, err := decodeWireChange(n.Extra)
			if err != nil {
				continue
			}
			if !matchesFilter(ev, filter) {
				continue
			}
			_ = sink.PublishChange(ctx, ev)
		}
	}
}

func decodeWireChange(payload string) (model.ChangeEvent, error) {
	var w wireChange
	if err := json.Unmarshal([]byte(payload), &w); err != nil {
		return model.ChangeEvent{}, err
	}
	return wireChangeToEvent(w)
}

// wireChangeToEvent converts an already-decoded wireChange payload into a
// model.ChangeEvent. Shared by the source kinds that carry wireChange over
// a different transport (NOTIFY payload, gRPC message).
func wireChangeToEvent(w wireChange) (model.ChangeEvent, error) {
	kind := model.ElementNode
	if w.Kind == "relation" {
		kind = model.ElementRelation
	}
	el := &model.Element{
		Kind:       kind,
		ID:         w.ID,
		Labels:     w.Labels,
		FromNodeID: w.FromNodeID,
		ToNodeID:   w.ToNodeID,
		Properties: w.Properties,
	}

	ev := model.ChangeEvent{
		SourceTimeMs: w.SourceTimeMs,
		Position:     w.Position,
		HasPosition:  w.Position > 0,
	}
	switch w.Op {
	case "insert":
		ev.Op = model.OpInsert
		ev.After = el
	case "update":
		ev.Op = model.OpUpdate
		before := *el
		before.Properties = w.BeforeProps
		ev.Before = &before
		ev.After = el
	case "delete":
		ev.Op = model.OpDelete
		ev.Before = el
	default:
		return model.ChangeEvent{}, fmt.Errorf("unknown op %q", w.Op)
	}
	return ev, ev.Validate()
}

func (p *PostgresSource) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
	if p.listener != nil {
		return p.listener.Close()
	}
	return nil
}

// BeginBootstrap: the postgres source has no native bootstrap logic of its
// own; the `postgres` bootstrap provider (internal/bootstrap/postgres.go)
// performs the repeatable-read snapshot independently against the same DSN.
func (p *PostgresSource) BeginBootstrap(ctx context.Context, labelFilter []string, bufferSize int) (Session, error) {
	return Session{}, ErrNoNativeProvider
}
