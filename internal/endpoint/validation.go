package endpoint

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/example/projectcontrols/internal/domain"
)

func validateBranchRequest(req *BranchRequest) error {
	if req.Branch == "" {
		return status.Error(codes.InvalidArgument, "branch is required")
	}
	if req.Branch == domain.BranchMain {
		return status.Error(codes.InvalidArgument, "branch must not be main")
	}
	if !domain.IsChangeOrderBranch(req.Branch) {
		return status.Errorf(codes.InvalidArgument, "branch %q is not a change order branch", req.Branch)
	}
	return nil
}

func validateEntityType(t domain.EntityType) error {
	if _, err := domain.ParseEntityType(string(t)); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return nil
}
