// ABOUTME: Tests for the HTTP middleware and gRPC interceptors
// ABOUTME: Covers header parsing, role checks and the health skip list

package auth

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

var quiet = slog.New(slog.DiscardHandler)

func issue(t *testing.T, roles ...string) string {
	t.Helper()
	token, err := NewJWTVerifier(testSecret).Generate("ops-1", roles, time.Hour)
	require.NoError(t, err)
	return token
}

func echoPrincipal() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(FromContext(r.Context()).Actor()))
	})
}

func TestHTTPAuthMiddleware(t *testing.T) {
	handler := HTTPAuthMiddleware(NewJWTVerifier(testSecret), quiet)(echoPrincipal())

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"missing", "", http.StatusUnauthorized, `{"error":"missing authorization header"}`},
		{"basic", "Basic abc", http.StatusUnauthorized, `{"error":"invalid authorization header format"}`},
		{"empty bearer", "Bearer ", http.StatusUnauthorized, `{"error":"empty token"}`},
		{"bad token", "Bearer nope", http.StatusUnauthorized, `{"error":"invalid token"}`},
		{"valid", "Bearer " + issue(t, RoleOperator), http.StatusOK, "ops-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/states/1", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.body, rec.Body.String())
		})
	}
}

func TestRequireAdminHTTP(t *testing.T) {
	verifier := NewJWTVerifier(testSecret)
	chain := func(h http.Handler) http.Handler {
		return HTTPAuthMiddleware(verifier, quiet)(RequireAdminHTTP()(h))
	}
	handler := chain(echoPrincipal())

	req := httptest.NewRequest(http.MethodPost, "/api/devices", nil)
	req.Header.Set("Authorization", "Bearer "+issue(t, RoleOperator))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req.Header.Set("Authorization", "Bearer "+issue(t, RoleAdmin))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	RequireAdminHTTP()(echoPrincipal()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNoAuthHTTPIsAnonymousAdmin(t *testing.T) {
	handler := NoAuthHTTP()(RequireAdminHTTP()(echoPrincipal()))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", rec.Body.String())
}

func TestActorDefaultsToSystem(t *testing.T) {
	assert.Equal(t, "system", FromContext(context.Background()).Actor())
}

func unaryInfo(method string) *grpc.UnaryServerInfo {
	return &grpc.UnaryServerInfo{FullMethod: method}
}

func captureAuth(ctx context.Context, _ any) (any, error) {
	return FromContext(ctx), nil
}

func TestUnaryInterceptor(t *testing.T) {
	icpt := UnaryInterceptor(NewJWTVerifier(testSecret), quiet, HealthMethods...)

	t.Run("valid token", func(t *testing.T) {
		ctx := metadata.NewIncomingContext(t.Context(), metadata.Pairs("authorization", "Bearer "+issue(t, RoleAdmin)))
		got, err := icpt(ctx, nil, unaryInfo("/hvac.v1.Control/GetState"), captureAuth)
		require.NoError(t, err)
		a := got.(*AuthContext)
		assert.Equal(t, "ops-1", a.PrincipalID)
		assert.True(t, a.IsAdmin())
	})

	t.Run("missing metadata", func(t *testing.T) {
		_, err := icpt(t.Context(), nil, unaryInfo("/hvac.v1.Control/GetState"), captureAuth)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("bad token", func(t *testing.T) {
		ctx := metadata.NewIncomingContext(t.Context(), metadata.Pairs("authorization", "Bearer junk"))
		_, err := icpt(ctx, nil, unaryInfo("/hvac.v1.Control/GetState"), captureAuth)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("health is skipped", func(t *testing.T) {
		got, err := icpt(t.Context(), nil, unaryInfo("/grpc.health.v1.Health/Check"), captureAuth)
		require.NoError(t, err)
		assert.Nil(t, got.(*AuthContext))
	})
}

func TestNoAuthUnaryInterceptor(t *testing.T) {
	got, err := NoAuthUnaryInterceptor()(t.Context(), nil, unaryInfo("/x"), captureAuth)
	require.NoError(t, err)
	assert.Same(t, Anonymous, got.(*AuthContext))
}

type fakeStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (f fakeStream) Context() context.Context { return f.ctx }

func TestStreamInterceptor(t *testing.T) {
	icpt := StreamInterceptor(NewJWTVerifier(testSecret), quiet, HealthMethods...)
	var seen *AuthContext
	handler := func(_ any, ss grpc.ServerStream) error {
		seen = FromContext(ss.Context())
		return nil
	}

	ctx := metadata.NewIncomingContext(t.Context(), metadata.Pairs("authorization", "Bearer "+issue(t)))
	require.NoError(t, icpt(nil, fakeStream{ctx: ctx}, &grpc.StreamServerInfo{FullMethod: "/hvac.v1.Control/Watch"}, handler))
	require.NotNil(t, seen)
	assert.Equal(t, "ops-1", seen.PrincipalID)

	err := icpt(nil, fakeStream{ctx: t.Context()}, &grpc.StreamServerInfo{FullMethod: "/hvac.v1.Control/Watch"}, handler)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}
