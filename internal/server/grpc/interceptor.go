package grpc

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/zappro/internal/common"
	"github.com/dmitrijs2005/zappro/internal/server/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	clientKey
	userKey
)

const retryAfterKey = "retry-after"

// Methods under these prefixes skip the access-token check.
var publicMethodPrefixes = []string{
	"/grpc.health.v1.Health/",
}

func RequestIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(requestIDKey).(string)
	return s
}

func ClientFromContext(ctx context.Context) string {
	s, _ := ctx.Value(clientKey).(string)
	return s
}

func UserFromContext(ctx context.Context) *models.User {
	u, _ := ctx.Value(userKey).(*models.User)
	return u
}

// headersFromMetadata copies incoming metadata into an http.Header so the
// gate sees canonical header names regardless of transport. Pseudo-headers
// are dropped.
func headersFromMetadata(ctx context.Context) http.Header {
	h := http.Header{}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return h
	}
	for k, values := range md {
		if strings.HasPrefix(k, ":") {
			continue
		}
		for _, v := range values {
			h.Add(k, v)
		}
	}
	return h
}

func peerAddress(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return ""
}

func (s *GRPCServer) edgeInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	a, err := s.gate.Admit(ctx, peerAddress(ctx), headersFromMetadata(ctx))
	if err != nil {
		s.logger.Error(ctx, "admission failed", "error", err, "method", info.FullMethod)
		return nil, status.Error(codes.Internal, "internal error")
	}
	if !a.Allowed() {
		if err := grpc.SetTrailer(ctx, metadata.Pairs(retryAfterKey, strconv.Itoa(a.Decision.RetryAfterSeconds()))); err != nil {
			s.logger.Debug(ctx, "set retry-after trailer failed", "error", err, "method", info.FullMethod)
		}
		return nil, status.Error(codes.ResourceExhausted, "Too Many Requests")
	}

	if err := grpc.SetHeader(ctx, metadata.Pairs(strings.ToLower(s.gate.RequestIDHeader()), a.RequestID)); err != nil {
		s.logger.Debug(ctx, "set request id header failed", "error", err, "method", info.FullMethod)
	}

	ctx = context.WithValue(ctx, requestIDKey, a.RequestID)
	ctx = context.WithValue(ctx, clientKey, a.Client)
	return handler(ctx, req)
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	for _, prefix := range publicMethodPrefixes {
		if strings.HasPrefix(info.FullMethod, prefix) {
			return handler(ctx, req)
		}
	}

	var accessToken string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(strings.ToLower(common.AuthorizationHeaderName)); len(values) > 0 {
			scheme, token, found := strings.Cut(values[0], " ")
			if found && strings.EqualFold(scheme, "bearer") {
				accessToken = strings.TrimSpace(token)
			}
		}
	}
	if accessToken == "" {
		return nil, status.Error(codes.Unauthenticated, "Not authenticated")
	}

	u, err := s.users.Authenticate(ctx, accessToken)
	if err != nil {
		if errors.Is(err, common.ErrInvalidToken) || errors.Is(err, common.ErrorUnauthorized) {
			return nil, status.Error(codes.Unauthenticated, common.ErrInvalidToken.Error())
		}
		s.logger.Error(ctx, "authentication failed", "error", err, "method", info.FullMethod)
		return nil, status.Error(codes.Internal, "internal error")
	}

	return handler(context.WithValue(ctx, userKey, u), req)
}
