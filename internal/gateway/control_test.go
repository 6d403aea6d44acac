// ABOUTME: Tests for the hvac.v1.Control gRPC service over an in-memory listener
// ABOUTME: Covers the JSON codec, status code mapping, auth and health checks

package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/2389/hvac-mesh/internal/agent"
	"github.com/2389/hvac-mesh/internal/auth"
)

func TestControl_StateAndAgents(t *testing.T) {
	g := newTestGateway(t)
	client := NewControlClient(g.dial(t))
	ctx := t.Context()

	rec, err := client.GetState(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.ID)
	assert.InDelta(t, 22.0, rec.Temperature, 1e-9)

	_, err = client.GetState(ctx, 99)
	assert.Equal(t, codes.NotFound, status.Code(err))

	list, err := client.QueryStates(ctx, 0.5)
	require.NoError(t, err)
	assert.Len(t, list.Records, 2)

	agents, err := client.ListAgents(ctx)
	require.NoError(t, err)
	assert.Len(t, agents.Agents, 2)
}

func TestControl_SendMessage(t *testing.T) {
	g := newTestGateway(t)
	client := NewControlClient(g.dial(t))
	ctx := t.Context()

	resp, err := client.SendMessage(ctx, "", agent.Wire{
		Kind:     agent.KindParameterOptimizationRequested,
		TargetID: 2,
		Params:   map[string]float64{"temperature": 19},
	})
	require.NoError(t, err)
	assert.Equal(t, "agent-2", resp.AgentID)

	rec, err := client.GetState(ctx, 2)
	require.NoError(t, err)
	assert.InDelta(t, 19.0, rec.Temperature, 1e-9)

	_, err = client.SendMessage(ctx, "agent-1", agent.Wire{Kind: agent.KindStateRequested, TargetID: 2})
	assert.Equal(t, codes.Aborted, status.Code(err))

	_, err = client.SendMessage(ctx, "ghost", agent.Wire{Kind: agent.KindStateRequested, TargetID: 2})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.SendMessage(ctx, "", agent.Wire{Kind: "reboot"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	br, err := client.Broadcast(ctx, agent.Wire{Kind: agent.KindStateRequested, TargetID: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, br.Delivered)
}

func TestControl_Correlate(t *testing.T) {
	g := newTestGateway(t)
	client := NewControlClient(g.dial(t))
	ctx := t.Context()

	stats, err := client.Dashboard(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Devices)

	_, err = client.Correlate(ctx, 1, 1)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	res, err := client.CrossCheck(ctx, 404)
	require.NoError(t, err)
	assert.Empty(t, res.Checked)
	assert.Nil(t, res.Match)
}

func TestControl_Auth(t *testing.T) {
	g := newTestGateway(t, withAuth)
	conn := g.dial(t)
	client := NewControlClient(conn)

	_, err := client.ListAgents(t.Context())
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	health, err := healthpb.NewHealthClient(conn).Check(t.Context(), &healthpb.HealthCheckRequest{Service: ControlServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, health.GetStatus())

	withToken := func(tok string) context.Context {
		return metadata.AppendToOutgoingContext(t.Context(), "authorization", "Bearer "+tok)
	}
	operator := withToken(g.token(t, "olga", auth.RoleOperator))

	agents, err := client.ListAgents(operator)
	require.NoError(t, err)
	assert.Len(t, agents.Agents, 2)

	_, err = client.Broadcast(operator, agent.Wire{Kind: agent.KindStateRequested, TargetID: 1})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	admin := withToken(g.token(t, "alice", auth.RoleAdmin))
	_, err = client.Broadcast(admin, agent.Wire{Kind: agent.KindStateRequested, TargetID: 1})
	assert.NoError(t, err)
}
