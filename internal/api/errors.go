package api

import (
	"context"
	"errors"

	"github.com/matheus3301/waconsole/internal/domain"
	"github.com/matheus3301/waconsole/internal/wa"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// toStatus maps domain errors onto gRPC status codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := grpcstatus.FromError(err); ok {
		return err
	}
	code := codes.Internal
	switch {
	case domain.IsValidation(err):
		code = codes.InvalidArgument
	case domain.IsNotConfigured(err):
		code = codes.FailedPrecondition
	case errors.Is(err, domain.ErrSyncInProgress):
		code = codes.Aborted
	case errors.Is(err, wa.ErrAlreadyLoggedIn):
		code = codes.AlreadyExists
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case domain.IsRemote(err):
		code = codes.Unavailable
	}
	return grpcstatus.Error(code, err.Error())
}
