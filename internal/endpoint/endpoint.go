package endpoint

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/example/projectcontrols/internal/domain"
	"github.com/example/projectcontrols/internal/service"
)

// Endpoint is a function that takes a request and returns a response.
type Endpoint func(ctx context.Context, request any) (response any, err error)

// Endpoints holds all endpoint handlers.
type Endpoints struct {
	Resolve Endpoint
	Diff    Endpoint
	Merge   Endpoint
	Archive Endpoint
	Compose Endpoint
}

// Services bundles the services the endpoints delegate to.
type Services struct {
	Filter   *service.Filter
	Branches *service.BranchService
	Composer *service.ViewComposer
}

// BranchRequest addresses a branch lifecycle operation.
type BranchRequest struct {
	Branch string
	Actor  string
}

// ComposeRequest selects a merged or branch-only view.
type ComposeRequest struct {
	service.ComposeRequest
	BranchOnly bool
}

// MakeEndpoints creates all endpoints from the services.
func MakeEndpoints(svcs Services) Endpoints {
	return Endpoints{
		Resolve: makeResolveEndpoint(svcs.Filter),
		Diff:    makeDiffEndpoint(svcs.Branches),
		Merge:   makeMergeEndpoint(svcs.Branches),
		Archive: makeArchiveEndpoint(svcs.Branches),
		Compose: makeComposeEndpoint(svcs.Composer),
	}
}

func makeResolveEndpoint(svc *service.Filter) Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(*service.ResolveRequest)
		if err := validateEntityType(req.EntityType); err != nil {
			return nil, err
		}
		return svc.Resolve(ctx, req)
	}
}

func makeDiffEndpoint(svc *service.BranchService) Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(*BranchRequest)
		if err := validateBranchRequest(req); err != nil {
			return nil, err
		}
		return svc.Diff(ctx, req.Branch)
	}
}

func makeMergeEndpoint(svc *service.BranchService) Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(*BranchRequest)
		if err := validateBranchRequest(req); err != nil {
			return nil, err
		}
		return svc.Merge(ctx, req.Branch, req.Actor)
	}
}

func makeArchiveEndpoint(svc *service.BranchService) Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(*BranchRequest)
		if err := validateBranchRequest(req); err != nil {
			return nil, err
		}
		return svc.Archive(ctx, req.Branch, req.Actor)
	}
}

func makeComposeEndpoint(svc *service.ViewComposer) Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(*ComposeRequest)
		if err := validateEntityType(req.EntityType); err != nil {
			return nil, err
		}
		if req.BranchOnly {
			return svc.BranchOnly(ctx, &req.ComposeRequest)
		}
		return svc.Compose(ctx, &req.ComposeRequest)
	}
}

// MapErrorToStatus maps domain errors to gRPC status codes.
func MapErrorToStatus(err error) error {
	if err == nil {
		return status.Error(codes.Internal, "internal error")
	}

	// Already a gRPC status error
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrDuplicateEntity):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, domain.ErrInvalidState):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrBranchLocked):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrUnknownBranch):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrConcurrentModify):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, domain.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
