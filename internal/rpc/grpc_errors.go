package rpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/psrinfo/core"
	"github.com/signalsfoundry/psrinfo/internal/dmdist"
	"github.com/signalsfoundry/psrinfo/internal/process"
	"github.com/signalsfoundry/psrinfo/internal/psrcat"
	"github.com/signalsfoundry/psrinfo/kb"
	"github.com/signalsfoundry/psrinfo/timectrl"
)

// ErrInvalidRequest is used for client-side validation failures.
var ErrInvalidRequest = errors.New("invalid request")

// ToStatusError maps domain errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, kb.ErrPulsarNotFound),
		errors.Is(err, psrcat.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, core.ErrUnsupportedFrame),
		errors.Is(err, core.ErrBadAngle),
		errors.Is(err, timectrl.ErrBadEpoch),
		errors.Is(err, psrcat.ErrUnknownParam),
		errors.Is(err, dmdist.ErrUnknownModel):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, core.ErrNoProperMotion),
		errors.Is(err, core.ErrSingularJacobian),
		errors.Is(err, core.ErrMissingCovariance),
		errors.Is(err, dmdist.ErrMissingInput):
		return status.Error(codes.FailedPrecondition, err.Error())

	case errors.Is(err, kb.ErrPulsarExists):
		return status.Error(codes.AlreadyExists, err.Error())

	case errors.Is(err, process.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())

	case errors.Is(err, process.ErrFailed),
		errors.Is(err, psrcat.ErrMalformedOutput),
		errors.Is(err, dmdist.ErrExternalModelParse):
		return status.Error(codes.Unavailable, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}
