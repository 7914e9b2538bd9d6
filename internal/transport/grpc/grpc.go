// Package grpc implements the gRPC transport for statlg.
//
// The Renderer service has a single unary method, /statlg.v1.Renderer/Render.
// Requests and results are the JSON forms of message.RenderRequest and
// message.RenderResult, carried with the "json" content subtype
// (application/grpc+json). The standard gRPC health service is registered
// alongside it.
package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/nadzzz/statlg/internal/dispatch"
	"github.com/nadzzz/statlg/internal/message"
	"github.com/nadzzz/statlg/internal/transport"
)

const (
	// ServiceName is the fully qualified name of the render service.
	ServiceName = "statlg.v1.Renderer"
	// RenderMethod is the full method name clients invoke.
	RenderMethod = "/" + ServiceName + "/Render"
	// CodecName is the content subtype clients must select with
	// grpc.CallContentSubtype.
	CodecName = "json"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec marshals plain Go structs as JSON.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }

// RendererServer is the server API of the render service.
type RendererServer interface {
	Render(ctx context.Context, req *message.RenderRequest) (*message.RenderResult, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RendererServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Render", Handler: renderHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "statlg/v1/renderer",
}

func renderHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(message.RenderRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RendererServer).Render(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RenderMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RendererServer).Render(ctx, req.(*message.RenderRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// renderer adapts a transport.Handler to RendererServer.
type renderer struct {
	handler transport.Handler
}

func (s renderer) Render(ctx context.Context, req *message.RenderRequest) (*message.RenderResult, error) {
	result, err := s.handler(ctx, req)
	switch {
	case errors.Is(err, dispatch.ErrInvalidRequest):
		return nil, status.Error(codes.InvalidArgument, err.Error())
	case err != nil:
		slog.Error("render failed", "request_id", req.ID, "error", err)
		return nil, status.Error(codes.Internal, err.Error())
	}
	return result, nil
}

// Register adds the render and health services to s.
func Register(s *grpc.Server, handler transport.Handler) *health.Server {
	s.RegisterService(&serviceDesc, renderer{handler: handler})

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return hs
}

// Transport implements transport.Transport over gRPC.
type Transport struct {
	port   int
	server *grpc.Server
}

// New creates a new gRPC transport on the given port.
func New(port int) *Transport {
	return &Transport{port: port}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "grpc" }

// Listen starts the gRPC server and routes incoming requests to the handler.
func (t *Transport) Listen(ctx context.Context, handler transport.Handler) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", t.port))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	slog.Info("grpc transport listening", "port", t.port)
	return t.Serve(ctx, lis, handler)
}

// Serve serves on lis until ctx is cancelled.
func (t *Transport) Serve(ctx context.Context, lis net.Listener, handler transport.Handler) error {
	t.server = grpc.NewServer()
	hs := Register(t.server, handler)

	go func() {
		<-ctx.Done()
		slog.Info("grpc transport shutting down")
		hs.Shutdown()
		t.server.GracefulStop()
	}()

	if err := t.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// Close gracefully stops the gRPC server.
func (t *Transport) Close() error {
	if t.server != nil {
		t.server.GracefulStop()
	}
	return nil
}
