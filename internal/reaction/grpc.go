package reaction

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/ruokun-niu/drasi-server/internal/logging"
	"github.com/ruokun-niu/drasi-server/internal/model"
)

func init() {
	Register("grpc", newGRPCReaction)
}

// GRPCConfig is the grpc reaction's declarative config payload: it runs a
// gRPC server exposing one generic streaming method (mirroring the grpc
// source's client side) and a standard grpc.health.v1 service, broadcasting
// every result delta to every currently-connected stream.
type GRPCConfig struct {
	ListenAddr string
	Method     string
}

// grpcServiceName and grpcMethodName must match the grpc source's default
// method string so the two connect out of the box when no override is set.
const (
	grpcServiceName = "drasi.changes.v1.Feed"
	grpcMethodName  = "Stream"
)

// GRPCReaction streams result deltas to connected gRPC clients over a
// JSON-codec server-streaming method, the mirror image of the grpc source
// kind.
type GRPCReaction struct {
	id     string
	cfg    GRPCConfig
	log    *logging.Logger
	server *grpc.Server

	mu      sync.Mutex
	clients map[chan model.ResultDelta]struct{}
}

func newGRPCReaction(id string, properties map[string]any) (Handler, error) {
	cfg := GRPCConfig{ListenAddr: ":0", Method: fmt.Sprintf("/%s/%s", grpcServiceName, grpcMethodName)}
	if v, ok := properties["listen_addr"].(string); ok {
		cfg.ListenAddr = v
	}
	return &GRPCReaction{
		id:      id,
		cfg:     cfg,
		log:     logging.NewDefault("reaction." + id),
		clients: make(map[chan model.ResultDelta]struct{}),
	}, nil
}

func (g *GRPCReaction) Start(ctx context.Context, deltas <-chan model.ResultDelta) error {
	lis, err := net.Listen("tcp", g.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("grpc reaction %s: listen %s: %w", g.id, g.cfg.ListenAddr, err)
	}

	desc := &grpc.ServiceDesc{
		ServiceName: grpcServiceName,
		HandlerType: (*any)(nil),
		Streams: []grpc.StreamDesc{{
			StreamName:    grpcMethodName,
			Handler:       g.streamHandler,
			ServerStreams: true,
		}},
	}

	g.server = grpc.NewServer(grpc.ForceServerCodec(jsonCodec{}))
	g.server.RegisterService(desc, nil)

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus(grpcServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	grpc_health_v1.RegisterHealthServer(g.server, healthSrv)

	go func() {
		if err := g.server.Serve(lis); err != nil {
			g.log.WithField("error", err).Error("grpc reaction server stopped")
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
				g.broadcast(d)
			}
		}
	}()
	return nil
}

func (g *GRPCReaction) streamHandler(srv any, stream grpc.ServerStream) error {
	ch := make(chan model.ResultDelta, 64)
	g.mu.Lock()
	g.clients[ch] = struct{}{}
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		delete(g.clients, ch)
		g.mu.Unlock()
	}()

	for {
		select {
		case <-stream.Context().Done():
			return stream.Context().Err()
		case d := <-ch:
			if err := stream.SendMsg(&d); err != nil {
				return err
			}
		}
	}
}

func (g *GRPCReaction) broadcast(d model.ResultDelta) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for ch := range g.clients {
		select {
		case ch <- d:
		default:
		}
	}
}

func (g *GRPCReaction) Stop(ctx context.Context) error {
	if g.server != nil {
		g.server.GracefulStop()
	}
	return nil
}

// jsonCodec mirrors the grpc source's codec so the two connect without
// generated protobuf stubs for a schema Drasi doesn't own.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return "json" }
