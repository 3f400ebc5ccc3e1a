package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/projectcontrols/internal/domain"
	"github.com/example/projectcontrols/internal/endpoint"
	"github.com/example/projectcontrols/internal/service"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "projectcontrols.v1.BranchLifecycle"

// LifecycleServer is the server API of the branch lifecycle service.
// Requests and responses are google.protobuf.Struct messages.
type LifecycleServer interface {
	Resolve(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Diff(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Merge(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Archive(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Compose(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var lifecycleServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LifecycleServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Resolve", Handler: unaryHandler("Resolve", LifecycleServer.Resolve)},
		{MethodName: "Diff", Handler: unaryHandler("Diff", LifecycleServer.Diff)},
		{MethodName: "Merge", Handler: unaryHandler("Merge", LifecycleServer.Merge)},
		{MethodName: "Archive", Handler: unaryHandler("Archive", LifecycleServer.Archive)},
		{MethodName: "Compose", Handler: unaryHandler("Compose", LifecycleServer.Compose)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "projectcontrols/v1/lifecycle",
}

// RegisterLifecycleServer registers srv on s.
func RegisterLifecycleServer(s grpc.ServiceRegistrar, srv LifecycleServer) {
	s.RegisterService(&lifecycleServiceDesc, srv)
}

func unaryHandler(method string, call func(LifecycleServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(LifecycleServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + ServiceName + "/" + method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(LifecycleServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Resolve implements the Resolve RPC.
func (s *Server) Resolve(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	resp, err := s.endpoints.Resolve(ctx, &service.ResolveRequest{
		EntityType:     domain.EntityType(stringField(req, "entity_type")),
		Scope:          scopeFromStruct(req),
		Branch:         stringField(req, "branch"),
		IncludeDeleted: boolField(req, "include_deleted"),
	})
	if err != nil {
		return nil, endpoint.MapErrorToStatus(err)
	}
	return encode(map[string]any{"records": recordsToList(resp.([]*domain.Record))})
}

// Diff implements the Diff RPC.
func (s *Server) Diff(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	resp, err := s.endpoints.Diff(ctx, branchRequest(req))
	if err != nil {
		return nil, endpoint.MapErrorToStatus(err)
	}
	return encode(map[string]any{"changes": changesToList(resp.([]domain.Change))})
}

// Merge implements the Merge RPC.
func (s *Server) Merge(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	resp, err := s.endpoints.Merge(ctx, branchRequest(req))
	if err != nil {
		return nil, endpoint.MapErrorToStatus(err)
	}
	return encode(mergeResultToMap(resp.(*domain.MergeResult)))
}

// Archive implements the Archive RPC.
func (s *Server) Archive(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	resp, err := s.endpoints.Archive(ctx, branchRequest(req))
	if err != nil {
		return nil, endpoint.MapErrorToStatus(err)
	}
	return encode(archiveResultToMap(resp.(*domain.ArchiveResult)))
}

// Compose implements the Compose RPC.
func (s *Server) Compose(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	resp, err := s.endpoints.Compose(ctx, &endpoint.ComposeRequest{
		ComposeRequest: service.ComposeRequest{
			EntityType: domain.EntityType(stringField(req, "entity_type")),
			Scope:      scopeFromStruct(req),
			Branch:     stringField(req, "branch"),
		},
		BranchOnly: boolField(req, "branch_only"),
	})
	if err != nil {
		return nil, endpoint.MapErrorToStatus(err)
	}
	return encode(map[string]any{"entries": entriesToList(resp.([]domain.ViewEntry))})
}

func branchRequest(req *structpb.Struct) *endpoint.BranchRequest {
	return &endpoint.BranchRequest{
		Branch: stringField(req, "branch"),
		Actor:  stringField(req, "actor"),
	}
}
