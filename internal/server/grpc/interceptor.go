package grpc

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const userIDKey ctxKey = "userID"

const requestIDHeader = "x-request-id"

// protectedMethods require a valid access token in the metadata.
var protectedMethods = map[string]bool{
	WhoamiMethod: true,
}

// UserIDFromContext returns the user id set by the access token interceptor.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}

func firstValue(ctx context.Context, key string) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(key); len(values) > 0 {
			return values[0]
		}
	}
	return ""
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if !protectedMethods[info.FullMethod] {
		return handler(ctx, req)
	}

	userID, err := s.auth.Authenticate(ctx, firstValue(ctx, common.AccessTokenHeaderName))
	if err != nil {
		if errors.Is(err, common.ErrNoAccessToken) || errors.Is(err, common.ErrInvalidAccessToken) {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		s.logger.Error(ctx, "authenticate failed", "method", info.FullMethod, "error", err.Error())
		return nil, status.Error(codes.Internal, "an unexpected error occurred")
	}

	ctx = context.WithValue(ctx, userIDKey, userID)
	return handler(ctx, req)
}

// loggingInterceptor propagates or assigns a request id and logs each call.
func (s *GRPCServer) loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()

	rid := firstValue(ctx, requestIDHeader)
	if rid == "" {
		rid = uuid.NewString()
	}
	ctx = logging.WithRequestID(ctx, rid)

	resp, err := handler(ctx, req)

	attrs := []any{
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"duration_ms", float64(time.Since(start).Microseconds()) / 1000,
	}
	if err != nil {
		s.logger.Warn(ctx, "rpc", attrs...)
	} else {
		s.logger.Info(ctx, "rpc", attrs...)
	}
	return resp, err
}
