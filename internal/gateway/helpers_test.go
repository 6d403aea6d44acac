// ABOUTME: Shared fixtures for gateway tests: a gateway over MockStore with two agents
// ABOUTME: Requests go through the real HTTP handler and a bufconn gRPC listener

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/2389/hvac-mesh/internal/config"
	"github.com/2389/hvac-mesh/internal/state"
	"github.com/2389/hvac-mesh/internal/store"
)

const testSecret = "0123456789abcdef0123456789abcdef"

const baseConfig = `
server:
  grpc_addr: "127.0.0.1:0"
  http_addr: "127.0.0.1:0"
database:
  path: ":memory:"
agents:
  definitions:
    - id: agent-1
      state_id: 1
    - id: agent-2
      state_id: 2
metrics:
  enabled: true
`

type testGateway struct {
	*Gateway
	ms *store.MockStore
}

func newTestGateway(t *testing.T, mutate ...func(*config.Config)) *testGateway {
	t.Helper()
	cfg, err := config.Parse(baseConfig, false)
	require.NoError(t, err)
	for _, m := range mutate {
		m(cfg)
	}

	ms := store.NewMockStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw, err := newGateway(cfg, ms, logger)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, gw.states.Put(ctx, state.Record{ID: 1, Temperature: 20, CorrelationVector: []float64{0.9, 0.9}}))
	require.NoError(t, gw.states.Put(ctx, state.Record{ID: 2, Temperature: 22, CorrelationVector: []float64{0.9, 0.9}}))

	require.NoError(t, gw.startBackground(ctx))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = gw.Shutdown(ctx)
	})
	return &testGateway{Gateway: gw, ms: ms}
}

func withAuth(cfg *config.Config) {
	cfg.Auth.JWTSecret = testSecret
}

func (g *testGateway) token(t *testing.T, subject string, roles ...string) string {
	t.Helper()
	tok, err := g.verifier.Generate(subject, roles, time.Hour)
	require.NoError(t, err)
	return tok
}

// do sends a request through the HTTP handler. body is JSON-encoded unless nil.
func (g *testGateway) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	g.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// dial serves the gateway's gRPC server on an in-memory listener.
func (g *testGateway) dial(t *testing.T) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	go func() { _ = g.grpcServer.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
