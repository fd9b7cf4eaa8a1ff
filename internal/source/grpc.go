package source

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/ruokun-niu/drasi-server/internal/model"
)

func init() {
	Register("grpc", newGRPCSource)
}

// GRPCConfig is the grpc source's declarative config payload. The remote
// endpoint is any gRPC server implementing the generic change-stream method
// below; Drasi does not ship a fixed .proto for this, since the exact
// upstream schema is a concrete-connector concern (spec §1) — the source
// only needs a JSON-codec byte stream of wire changes, so it talks to the
// method as a raw server-streaming call rather than depending on generated
// stubs.
type GRPCConfig struct {
	Addr         string
	Method       string // full gRPC method name, e.g. "/drasi.changes.v1.Feed/Stream"
	DialTimeout  time.Duration
	HealthPeriod time.Duration
}

// GRPCSource consumes a change-event stream from a remote gRPC service,
// health-checking the connection on an interval via the standard
// grpc.health.v1 protocol.
type GRPCSource struct {
	id  string
	cfg GRPCConfig

	mu     sync.Mutex
	conn   *grpc.ClientConn
	cancel context.CancelFunc
}

func newGRPCSource(id string, properties map[string]any) (Source, error) {
	cfg := GRPCConfig{DialTimeout: 10 * time.Second, HealthPeriod: 15 * time.Second}
	if v, ok := properties["addr"].(string); ok {
		cfg.Addr = v
	}
	if v, ok := properties["method"].(string); ok {
		cfg.Method = v
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("grpc source %s: addr is required", id)
	}
	if cfg.Method == "" {
		cfg.Method = "/drasi.changes.v1.Feed/Stream"
	}
	return &GRPCSource{id: id, cfg: cfg}, nil
}

func (g *GRPCSource) Start(ctx context.Context, labelFilter []string, sink ChangeSink) error {
	filter := toSet(labelFilter)

	conn, err := grpc.NewClient(g.cfg.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("grpc source %s: dial %s: %w", g.id, g.cfg.Addr, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	g.mu.Lock()
	g.conn = conn
	g.cancel = cancel
	g.mu.Unlock()

	go g.healthLoop(runCtx, conn)
	go g.streamLoop(runCtx, conn, sink, filter)
	return nil
}

// healthLoop polls grpc.health.v1, logging is left to the caller's sink
// error surface; a dead connection simply stops delivering changes and
// the registry's component state stays Running until Stop is called —
// full reconnect-with-backoff policy belongs to a future revision.
func (g *GRPCSource) healthLoop(ctx context.Context, conn *grpc.ClientConn) {
	client := grpc_health_v1.NewHealthClient(conn)
	ticker := time.NewTicker(g.cfg.HealthPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			_, err := client.Check(checkCtx, &grpc_health_v1.HealthCheckRequest{})
			cancel()
			if err != nil && status.Code(err) == codes.Unimplemented {
				// remote has no health service registered; nothing to poll
				return
			}
		}
	}
}

func (g *GRPCSource) streamLoop(ctx context.Context, conn *grpc.ClientConn, sink ChangeSink, filter map[string]bool) {
	stream, err := conn.NewStream(ctx, &grpc.StreamDesc{ServerStreams: true}, g.cfg.Method, grpc.ForceCodec(jsonCodec{}))
	if err != nil {
		return
	}
	for {
		var w wireChange
		if err := stream.RecvMsg(&w); err != nil {
			return
		}
		ev, err := wireChangeToEvent(w)
		if err != nil {
			continue
		}
		if !matchesFilter(ev, filter) {
			continue
		}
		_ = sink.PublishChange(ctx, ev)
	}
}

func (g *GRPCSource) Stop(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		g.cancel()
	}
	if g.conn != nil {
		return g.conn.Close()
	}
	return nil
}

// BeginBootstrap: the grpc source has no native bootstrap logic; remote
// services that want to drive bootstrap configure the `platform` provider
// against the same endpoint instead.
func (g *GRPCSource) BeginBootstrap(ctx context.Context, labelFilter []string, bufferSize int) (Session, error) {
	return Session{}, ErrNoNativeProvider
}

// jsonCodec implements grpc/encoding.Codec over JSON so the grpc source can
// carry change events without generated protobuf stubs for a schema Drasi
// doesn't own.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return "json" }
