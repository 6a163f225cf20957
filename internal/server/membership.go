package server

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	errs "github.com/usaschooldata/schooldata/internal/errors"
	"github.com/usaschooldata/schooldata/internal/logctx"
	"github.com/usaschooldata/schooldata/internal/remote"
	"github.com/usaschooldata/schooldata/pkg/types"
)

// Backend is the local history the membership service answers from.
type Backend interface {
	History(ctx context.Context, code types.EntityCode) (*types.HistoricalSeries, error)
}

// MembershipService serves the remote membership contract from local
// partitions, so one schooldata process can act as the remote backend of
// another.
type MembershipService struct {
	backend Backend
}

var _ remote.MembershipServer = (*MembershipService)(nil)

// NewMembershipService creates a membership service over backend.
func NewMembershipService(backend Backend) *MembershipService {
	return &MembershipService{backend: backend}
}

// GetMembership returns every year of the school.
func (s *MembershipService) GetMembership(ctx context.Context, req *remote.GetMembershipRequest) (*remote.GetMembershipResponse, error) {
	records, err := s.records(ctx, req.NCESSCH)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, status.Error(codes.NotFound, "no enrollment data available for this school")
	}
	resp := &remote.GetMembershipResponse{NCESSCH: req.NCESSCH}
	for _, r := range records {
		resp.ByYear = append(resp.ByYear, &remote.TotalEnrollment{Record: r})
	}
	return resp, nil
}

// GetMembershipSummary returns one year of the school.
func (s *MembershipService) GetMembershipSummary(ctx context.Context, req *remote.GetMembershipSummaryRequest) (*remote.GetMembershipSummaryResponse, error) {
	year := types.SchoolYear(req.SchoolYear)
	if !year.Valid() {
		return nil, status.Errorf(codes.InvalidArgument, "invalid school year %q", req.SchoolYear)
	}
	records, err := s.records(ctx, req.NCESSCH)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if r.SchoolYear == year {
			return &remote.GetMembershipSummaryResponse{NCESSCH: req.NCESSCH, Summary: &remote.TotalEnrollment{Record: r}}, nil
		}
	}
	return nil, status.Error(codes.NotFound, "no enrollment data available for this school and year")
}

func (s *MembershipService) records(ctx context.Context, ncessch string) ([]types.YearRecord, error) {
	code := types.EntityCode(ncessch)
	if !code.IsSchool() {
		return nil, status.Errorf(codes.InvalidArgument, "invalid NCESSCH %q", ncessch)
	}
	series, err := s.backend.History(ctx, code)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	if series == nil {
		return nil, nil
	}
	out := make([]types.YearRecord, 0, len(series.Years))
	for _, y := range series.Years {
		if y.Total > 0 {
			out = append(out, types.RecordFromRollup(y))
		}
	}
	return out, nil
}

// toStatus maps local failures onto gRPC status codes.
func toStatus(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case errs.IsValidation(err):
		return status.Error(codes.InvalidArgument, err.Error())
	}
	if _, ok := errs.AsYearUnavailable(err); ok {
		return status.Error(codes.NotFound, err.Error())
	}
	logger := logctx.FromContext(ctx)
	logger.Error().Err(err).Msg("membership lookup failed")
	if errs.IsConnectionLost(err) || errs.IsEngineInit(err) {
		return status.Error(codes.Unavailable, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}
