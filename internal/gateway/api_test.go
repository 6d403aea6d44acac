// ABOUTME: HTTP API tests covering state, agent, business and auth endpoints
// ABOUTME: Error kinds must surface with their mapped status codes

package gateway

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/hvac-mesh/internal/agent"
	"github.com/2389/hvac-mesh/internal/auth"
	"github.com/2389/hvac-mesh/internal/integrator"
	"github.com/2389/hvac-mesh/internal/state"
	"github.com/2389/hvac-mesh/internal/store"
)

func TestHealthEndpoints(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = g.do(t, http.MethodGet, "/health/ready", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "2 agents")

	rec = g.do(t, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetState(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(t, http.MethodGet, "/api/states/1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[state.Record](t, rec)
	assert.Equal(t, int64(1), got.ID)
	assert.InDelta(t, 20.0, got.Temperature, 1e-9)

	tests := []struct {
		path string
		want int
	}{
		{"/api/states/99", http.StatusNotFound},
		{"/api/states/abc", http.StatusBadRequest},
		{"/api/states/-3", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := g.do(t, http.MethodGet, tt.path, nil, "")
			assert.Equal(t, tt.want, rec.Code)
			assert.NotEmpty(t, decode[errorBody](t, rec).Error)
		})
	}
}

func TestPutState(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(t, http.MethodPut, "/api/states/3", state.Record{Temperature: 18, Humidity: 40}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = g.do(t, http.MethodGet, "/api/states/3", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 40.0, decode[state.Record](t, rec).Humidity, 1e-9)

	rec = g.do(t, http.MethodPut, "/api/states/3", state.Record{ID: 4}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	bad := state.Record{Parameters: state.Parameters{
		FailurePredictions: []state.FailurePrediction{{Component: "fan", Probability: 1.5}},
	}}
	rec = g.do(t, http.MethodPut, "/api/states/3", bad, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestUpdatePredictions(t *testing.T) {
	g := newTestGateway(t)

	body := predictionsRequest{Predictions: []state.FailurePrediction{{Component: "fan", Probability: 0.2, EstimatedTime: 1700000000}}}
	rec := g.do(t, http.MethodPost, "/api/states/1/predictions", body, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	got := decode[state.Record](t, g.do(t, http.MethodGet, "/api/states/1", nil, ""))
	require.Len(t, got.Parameters.FailurePredictions, 1)
	assert.Equal(t, "fan", got.Parameters.FailurePredictions[0].Component)

	body.Predictions[0].Probability = -0.1
	rec = g.do(t, http.MethodPost, "/api/states/1/predictions", body, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestQueryStates(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(t, http.MethodGet, "/api/states?min_degree=0.5", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]state.Record](t, rec), 2)

	rec = g.do(t, http.MethodGet, "/api/states?min_degree=0.95", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]state.Record](t, rec))

	rec = g.do(t, http.MethodGet, "/api/states?min_degree=high", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListAgents(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(t, http.MethodGet, "/api/agents", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	infos := decode[[]agent.Info](t, rec)
	require.Len(t, infos, 2)
	ids := []string{infos[0].ID, infos[1].ID}
	assert.ElementsMatch(t, []string{"agent-1", "agent-2"}, ids)
}

func TestAgentMessage(t *testing.T) {
	g := newTestGateway(t)

	msg := agent.Wire{Kind: agent.KindFailurePredictionRequested, TargetID: 1, Components: []string{"compressor"}}
	rec := g.do(t, http.MethodPost, "/api/agents/agent-1/messages", msg, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "agent-1", decode[messageResponse](t, rec).AgentID)

	got := decode[state.Record](t, g.do(t, http.MethodGet, "/api/states/1", nil, ""))
	require.Len(t, got.Parameters.FailurePredictions, 1)
	assert.Equal(t, "compressor", got.Parameters.FailurePredictions[0].Component)

	t.Run("misrouted", func(t *testing.T) {
		rec := g.do(t, http.MethodPost, "/api/agents/agent-2/messages", msg, "")
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
	t.Run("unknown agent", func(t *testing.T) {
		rec := g.do(t, http.MethodPost, "/api/agents/ghost/messages", msg, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
	t.Run("unknown kind", func(t *testing.T) {
		rec := g.do(t, http.MethodPost, "/api/agents/agent-1/messages", agent.Wire{Kind: "reboot"}, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
	t.Run("missing record", func(t *testing.T) {
		rec := g.do(t, http.MethodPost, "/api/agents/agent-1/messages", agent.Wire{Kind: agent.KindStateUpdated}, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRoutedMessage(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(t, http.MethodPost, "/api/messages", agent.Wire{Kind: agent.KindStateRequested, TargetID: 2}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "agent-2", decode[messageResponse](t, rec).AgentID)

	rec = g.do(t, http.MethodPost, "/api/messages", agent.Wire{Kind: agent.KindStateRequested, TargetID: 99}, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBroadcast(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(t, http.MethodPost, "/api/broadcast", agent.Wire{Kind: agent.KindEntangledStatesRequested, MinDegree: 0.5}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string]int](t, rec)
	assert.Equal(t, 2, got["delivered"])
	assert.Equal(t, 0, got["dropped"])
}

func TestBusinessWorkflow(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(t, http.MethodPost, "/api/customers", store.Customer{Name: "Jan"}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	customerID := decode[idResponse](t, rec).ID

	rec = g.do(t, http.MethodPost, "/api/customers", store.Customer{}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = g.do(t, http.MethodPost, "/api/buildings", store.Building{CustomerID: customerID, Name: "Dom", Address: "Warszawa"}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	buildingID := decode[idResponse](t, rec).ID

	rec = g.do(t, http.MethodPost, "/api/devices", store.Device{BuildingID: buildingID, Model: "HX", StateID: 1}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[integrator.DeviceRegistration](t, rec)

	rec = g.do(t, http.MethodPost, "/api/devices", store.Device{BuildingID: buildingID, Model: "HX", StateID: 2}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	second := decode[integrator.DeviceRegistration](t, rec)
	assert.Equal(t, []int64{first.DeviceID}, second.CrossCheck.Checked)
	require.NotNil(t, second.CrossCheck.Match)
	assert.InDelta(t, 0.81, second.CrossCheck.Match.Degree, 1e-9)

	rec = g.do(t, http.MethodGet, "/api/devices/"+itoa(second.DeviceID)+"/correlations", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Body.String())

	rec = g.do(t, http.MethodPost, "/api/correlations", correlateRequest{DeviceA: first.DeviceID, DeviceB: first.DeviceID}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = g.do(t, http.MethodPut, "/api/customers/"+itoa(customerID)+"/wealth-score", map[string]float64{"score": 7.5}, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = g.do(t, http.MethodGet, "/api/customers/"+itoa(customerID), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	c := decode[store.Customer](t, rec)
	require.NotNil(t, c.WealthScore)
	assert.InDelta(t, 7.5, *c.WealthScore, 1e-9)

	rec = g.do(t, http.MethodGet, "/api/map?customer_id="+itoa(customerID), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]store.Building](t, rec), 1)

	rec = g.do(t, http.MethodGet, "/api/dashboard", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[store.DashboardStats](t, rec)
	assert.Equal(t, int64(1), stats.Customers)
	assert.Equal(t, int64(2), stats.Devices)

	rec = g.do(t, http.MethodPost, "/api/sweep", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode[map[string]any](t, rec)["devices"])
}

func TestRegisterDevice_StepErrorBody(t *testing.T) {
	g := newTestGateway(t)
	customerID, err := g.ms.CreateCustomer(t.Context(), &store.Customer{Name: "Jan"})
	require.NoError(t, err)
	buildingID, err := g.ms.CreateBuilding(t.Context(), &store.Building{CustomerID: customerID, Name: "Dom"})
	require.NoError(t, err)

	rec := g.do(t, http.MethodPost, "/api/devices", store.Device{BuildingID: buildingID, Model: "HX", StateID: 42}, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "register_device", body["workflow"])
	assert.Equal(t, string(integrator.StepVerifyState), body["step"])
	assert.NotZero(t, body["device_id"])
}

func TestStateReport(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(t, http.MethodGet, "/api/states/1/report?format=md", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "# State 1"))
	assert.Contains(t, rec.Body.String(), "agent-1")

	rec = g.do(t, http.MethodGet, "/api/states/1/report", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "<h1")
}

func TestAuthRequired(t *testing.T) {
	g := newTestGateway(t, withAuth)
	operator := g.token(t, "olga", auth.RoleOperator)
	admin := g.token(t, "alice", auth.RoleAdmin)

	assert.Equal(t, http.StatusOK, g.do(t, http.MethodGet, "/health", nil, "").Code)
	assert.Equal(t, http.StatusUnauthorized, g.do(t, http.MethodGet, "/api/agents", nil, "").Code)
	assert.Equal(t, http.StatusUnauthorized, g.do(t, http.MethodGet, "/api/agents", nil, "garbage").Code)
	assert.Equal(t, http.StatusOK, g.do(t, http.MethodGet, "/api/agents", nil, operator).Code)

	rec := g.do(t, http.MethodPost, "/api/customers", store.Customer{Name: "Jan"}, operator)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = g.do(t, http.MethodPost, "/api/customers", store.Customer{Name: "Jan"}, admin)
	require.Equal(t, http.StatusCreated, rec.Code)

	assert.Equal(t, http.StatusForbidden, g.do(t, http.MethodGet, "/api/audit", nil, operator).Code)
	rec = g.do(t, http.MethodGet, "/api/audit?action=register_customer", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]store.AuditEntry](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, "alice", entries[0].Actor)
	assert.Equal(t, store.OutcomeOK, entries[0].Outcome)

	assert.Equal(t, http.StatusBadRequest, g.do(t, http.MethodGet, "/api/audit?since=yesterday", nil, admin).Code)
}
