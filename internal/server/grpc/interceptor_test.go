package grpc

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

func incoming(addr string, kv ...string) (context.Context, *captureStream) {
	stream := &captureStream{}
	ctx := grpc.NewContextWithServerTransportStream(context.Background(), stream)
	ctx = peer.NewContext(ctx, &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP(addr), Port: 40000}})
	if len(kv) > 0 {
		ctx = metadata.NewIncomingContext(ctx, metadata.Pairs(kv...))
	}
	return ctx, stream
}

func TestEdgeInterceptor_AssignsRequestID(t *testing.T) {
	f := newFixture(t, 10)
	ctx, stream := incoming("203.0.113.7", "x-request-id", "0123456789abcdef0123")

	var gotID, gotClient string
	_, err := f.server.edgeInterceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/x.Y/Z"},
		func(ctx context.Context, _ any) (any, error) {
			gotID = RequestIDFromContext(ctx)
			gotClient = ClientFromContext(ctx)
			return "ok", nil
		})
	require.NoError(t, err)

	assert.Equal(t, "203.0.113.7", gotClient)
	assert.Len(t, gotID, 32, "untrusted ids are replaced")
	assert.Equal(t, []string{gotID}, stream.header.Get("x-request-id"))
}

func TestEdgeInterceptor_RateLimited(t *testing.T) {
	f := newFixture(t, 1)
	info := &grpc.UnaryServerInfo{FullMethod: "/x.Y/Z"}
	ok := func(context.Context, any) (any, error) { return "ok", nil }

	ctx, _ := incoming("203.0.113.7")
	_, err := f.server.edgeInterceptor(ctx, nil, info, ok)
	require.NoError(t, err)

	ctx, stream := incoming("203.0.113.7")
	_, err = f.server.edgeInterceptor(ctx, nil, info, func(context.Context, any) (any, error) {
		t.Fatal("handler must not run when rate limited")
		return nil, nil
	})
	require.Error(t, err)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))

	retry := stream.trailer.Get("retry-after")
	require.Len(t, retry, 1)
	n, err := strconv.Atoi(retry[0])
	require.NoError(t, err)
	assert.Equal(t, 30, n)
	assert.Empty(t, stream.header.Get("x-request-id"))

	ctx, _ = incoming("198.51.100.1")
	_, err = f.server.edgeInterceptor(ctx, nil, info, ok)
	assert.NoError(t, err)
}

func TestHeadersFromMetadata(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.MD{
		"x-forwarded-for": {"1.2.3.4"},
		":authority":      {"example"},
	})
	h := headersFromMetadata(ctx)

	assert.Equal(t, "1.2.3.4", h.Get("X-Forwarded-For"))
	assert.Len(t, h, 1)
	assert.Empty(t, headersFromMetadata(context.Background()))
}

func TestAccessTokenInterceptor(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	_, err := f.users.Register(ctx, "ana@example.com", "Ana", "correct horse", "")
	require.NoError(t, err)
	_, pair, err := f.users.Login(ctx, "ana@example.com", "correct horse")
	require.NoError(t, err)

	expired, err := f.tokens.Issue("x", "access", -time.Minute)
	require.NoError(t, err)

	protected := &grpc.UnaryServerInfo{FullMethod: "/zappro.v1.Projects/List"}

	tests := []struct {
		name    string
		md      metadata.MD
		code    codes.Code
		message string
	}{
		{name: "missing", md: metadata.MD{}, code: codes.Unauthenticated, message: "Not authenticated"},
		{name: "wrong scheme", md: metadata.Pairs("authorization", "Basic abc"), code: codes.Unauthenticated, message: "Not authenticated"},
		{name: "garbage", md: metadata.Pairs("authorization", "Bearer a.b.c"), code: codes.Unauthenticated, message: "invalid token"},
		{name: "refresh token", md: metadata.Pairs("authorization", "Bearer "+pair.RefreshToken), code: codes.Unauthenticated, message: "invalid token"},
		{name: "expired", md: metadata.Pairs("authorization", "Bearer "+expired), code: codes.Unauthenticated, message: "invalid token"},
		{name: "valid", md: metadata.Pairs("authorization", "Bearer "+pair.AccessToken), code: codes.OK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var email string
			_, err := f.server.accessTokenInterceptor(metadata.NewIncomingContext(ctx, tt.md), nil, protected,
				func(ctx context.Context, _ any) (any, error) {
					email = UserFromContext(ctx).Email
					return "ok", nil
				})

			assert.Equal(t, tt.code, status.Code(err))
			if tt.code == codes.OK {
				assert.Equal(t, "ana@example.com", email)
				return
			}
			assert.Equal(t, tt.message, status.Convert(err).Message())
		})
	}
}

func TestAccessTokenInterceptor_PublicMethod(t *testing.T) {
	f := newFixture(t, 10)

	called := false
	_, err := f.server.accessTokenInterceptor(context.Background(), nil,
		&grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"},
		func(context.Context, any) (any, error) {
			called = true
			return "ok", nil
		})

	require.NoError(t, err)
	assert.True(t, called)
}

func TestEdgeInterceptor_LogsMetadataFailures(t *testing.T) {
	f := newFixture(t, 1)
	info := &grpc.UnaryServerInfo{FullMethod: "/x.Y/Z"}

	// No server transport stream, so header and trailer cannot be set.
	ctx := peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP("203.0.113.7"), Port: 1}})

	called := false
	_, err := f.server.edgeInterceptor(ctx, nil, info, func(context.Context, any) (any, error) {
		called = true
		return "ok", nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Contains(t, f.logs.String(), `level=DEBUG msg="set request id header failed"`)

	_, err = f.server.edgeInterceptor(ctx, nil, info, func(context.Context, any) (any, error) {
		t.Fatal("handler must not run when rate limited")
		return nil, nil
	})
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
	assert.Contains(t, f.logs.String(), `level=DEBUG msg="set retry-after trailer failed"`)
}
