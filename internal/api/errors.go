// Package api implements the daemon's gRPC services on top of the hub and
// the local store.
package api

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/studyhall/chatsync/internal/apperr"
	"github.com/studyhall/chatsync/internal/conversation"
	"github.com/studyhall/chatsync/internal/transport"
)

// toStatus maps domain errors onto gRPC status codes.
func toStatus(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := grpcstatus.FromError(err); ok {
		return err
	}
	code := codes.Internal
	switch apperr.KindOf(err) {
	case apperr.AuthExpired:
		code = codes.Unauthenticated
	case apperr.TokenUnavailable, apperr.NetworkFailure:
		code = codes.Unavailable
	case apperr.ConnectionTimeout:
		code = codes.DeadlineExceeded
	case apperr.MalformedFrame:
		code = codes.DataLoss
	default:
		switch {
		case errors.Is(err, conversation.ErrEmptyBody):
			code = codes.InvalidArgument
		case errors.Is(err, conversation.ErrClosed), errors.Is(err, transport.ErrClosed):
			code = codes.FailedPrecondition
		case errors.Is(err, context.DeadlineExceeded):
			code = codes.DeadlineExceeded
		case errors.Is(err, context.Canceled):
			code = codes.Canceled
		}
	}
	return grpcstatus.Errorf(code, "%s: %v", op, err)
}
