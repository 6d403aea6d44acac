// ABOUTME: hvac.v1.Control gRPC service for state, agent and correlation operations
// ABOUTME: Messages travel as JSON via a registered codec; no generated stubs

package gateway

import (
	"context"
	"encoding/json"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/2389/hvac-mesh/internal/agent"
	"github.com/2389/hvac-mesh/internal/auth"
	"github.com/2389/hvac-mesh/internal/correlation"
	"github.com/2389/hvac-mesh/internal/integrator"
	"github.com/2389/hvac-mesh/internal/state"
	"github.com/2389/hvac-mesh/internal/store"
)

// ControlServiceName is the fully qualified gRPC service name.
const ControlServiceName = "hvac.v1.Control"

// codecName is the content subtype clients must request.
const codecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return codecName }

// Empty is a request or response without fields.
type Empty struct{}

type StateRequest struct {
	ID int64 `json:"id"`
}

type QueryRequest struct {
	MinDegree float64 `json:"min_degree"`
}

type StateList struct {
	Records []state.Record `json:"records"`
}

type AgentList struct {
	Agents []agent.Info `json:"agents"`
}

// SendRequest delivers Message to AgentID, or to the agent owning the
// message target when AgentID is empty.
type SendRequest struct {
	AgentID string     `json:"agent_id,omitempty"`
	Message agent.Wire `json:"message"`
}

type SendResponse struct {
	AgentID string     `json:"agent_id"`
	Kind    agent.Kind `json:"kind"`
}

type BroadcastRequest struct {
	Message agent.Wire `json:"message"`
}

type BroadcastResponse struct {
	Delivered int `json:"delivered"`
	Dropped   int `json:"dropped"`
}

type CorrelateRequest struct {
	DeviceA int64 `json:"device_a"`
	DeviceB int64 `json:"device_b"`
}

type CorrelateResponse struct {
	Record   correlation.Record `json:"record"`
	Notified bool               `json:"notified"`
}

type DeviceRequest struct {
	DeviceID int64 `json:"device_id"`
}

// ControlService is the server side of hvac.v1.Control.
type ControlService interface {
	GetState(context.Context, *StateRequest) (*state.Record, error)
	QueryStates(context.Context, *QueryRequest) (*StateList, error)
	ListAgents(context.Context, *Empty) (*AgentList, error)
	SendMessage(context.Context, *SendRequest) (*SendResponse, error)
	Broadcast(context.Context, *BroadcastRequest) (*BroadcastResponse, error)
	Correlate(context.Context, *CorrelateRequest) (*CorrelateResponse, error)
	CrossCheck(context.Context, *DeviceRequest) (*integrator.CrossCheckResult, error)
	Dashboard(context.Context, *Empty) (*store.DashboardStats, error)
}

func unaryMethod[Req, Resp any](name string, call func(ControlService, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + ControlServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			svc := srv.(ControlService)
			if interceptor == nil {
				return call(svc, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(svc, ctx, req.(*Req))
			})
		},
	}
}

var controlServiceDesc = grpc.ServiceDesc{
	ServiceName: ControlServiceName,
	HandlerType: (*ControlService)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("GetState", ControlService.GetState),
		unaryMethod("QueryStates", ControlService.QueryStates),
		unaryMethod("ListAgents", ControlService.ListAgents),
		unaryMethod("SendMessage", ControlService.SendMessage),
		unaryMethod("Broadcast", ControlService.Broadcast),
		unaryMethod("Correlate", ControlService.Correlate),
		unaryMethod("CrossCheck", ControlService.CrossCheck),
		unaryMethod("Dashboard", ControlService.Dashboard),
	},
	Metadata: "hvac/v1/control",
}

// RegisterControlService registers srv on s.
func RegisterControlService(s grpc.ServiceRegistrar, srv ControlService) {
	s.RegisterService(&controlServiceDesc, srv)
}

// controlServer implements ControlService over a Gateway.
type controlServer struct {
	gateway *Gateway
}

func requireAdmin(ctx context.Context) error {
	if !auth.FromContext(ctx).IsAdmin() {
		return status.Error(codes.PermissionDenied, "admin role required")
	}
	return nil
}

func (c *controlServer) GetState(ctx context.Context, req *StateRequest) (*state.Record, error) {
	rec, err := c.gateway.states.Snapshot(ctx, req.ID)
	if err != nil {
		return nil, grpcError(err)
	}
	return &rec, nil
}

func (c *controlServer) QueryStates(ctx context.Context, req *QueryRequest) (*StateList, error) {
	recs, err := c.gateway.states.QueryByCorrelationThreshold(ctx, req.MinDegree)
	if err != nil {
		return nil, grpcError(err)
	}
	return &StateList{Records: recs}, nil
}

func (c *controlServer) ListAgents(_ context.Context, _ *Empty) (*AgentList, error) {
	return &AgentList{Agents: c.gateway.agents.ListAgents()}, nil
}

func (c *controlServer) SendMessage(ctx context.Context, req *SendRequest) (*SendResponse, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	msg, err := req.Message.Message()
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	var a *agent.Agent
	if req.AgentID != "" {
		var ok bool
		if a, ok = c.gateway.agents.GetAgent(req.AgentID); !ok {
			return nil, grpcError(agent.ErrAgentNotFound)
		}
	} else if a, err = c.gateway.router.SelectAgent(msg, c.gateway.agents.Agents()); err != nil {
		return nil, grpcError(err)
	}

	cfg := c.gateway.config.Agents
	ctx, cancel := context.WithTimeout(ctx, cfg.SendTimeout+cfg.LockTimeout+5*time.Second)
	defer cancel()
	if err := a.Request(ctx, auth.FromContext(ctx).Actor(), msg); err != nil {
		return nil, grpcError(err)
	}
	return &SendResponse{AgentID: a.ID(), Kind: msg.Kind()}, nil
}

func (c *controlServer) Broadcast(ctx context.Context, req *BroadcastRequest) (*BroadcastResponse, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	msg, err := req.Message.Message()
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	rep := c.gateway.broadcaster.Broadcast(ctx, auth.FromContext(ctx).Actor(), msg)
	return &BroadcastResponse{Delivered: rep.Delivered, Dropped: rep.Dropped}, nil
}

func (c *controlServer) Correlate(ctx context.Context, req *CorrelateRequest) (*CorrelateResponse, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	ctx = integrator.WithActor(ctx, auth.FromContext(ctx).Actor())
	res, err := c.gateway.integrator.ComputeCorrelation(ctx, req.DeviceA, req.DeviceB)
	if err != nil {
		return nil, grpcError(err)
	}
	return &CorrelateResponse{Record: res.Record, Notified: res.Notified}, nil
}

func (c *controlServer) CrossCheck(ctx context.Context, req *DeviceRequest) (*integrator.CrossCheckResult, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	ctx = integrator.WithActor(ctx, auth.FromContext(ctx).Actor())
	res, err := c.gateway.integrator.CrossCheck(ctx, req.DeviceID)
	if err != nil {
		return nil, grpcError(err)
	}
	return &res, nil
}

func (c *controlServer) Dashboard(ctx context.Context, _ *Empty) (*store.DashboardStats, error) {
	stats, err := c.gateway.integrator.Dashboard(ctx)
	if err != nil {
		return nil, grpcError(err)
	}
	return stats, nil
}

// ControlClient calls hvac.v1.Control over a client connection.
type ControlClient struct {
	conn grpc.ClientConnInterface
}

func NewControlClient(conn grpc.ClientConnInterface) *ControlClient {
	return &ControlClient{conn: conn}
}

func invoke[Resp any](ctx context.Context, c *ControlClient, method string, req any) (*Resp, error) {
	out := new(Resp)
	err := c.conn.Invoke(ctx, "/"+ControlServiceName+"/"+method, req, out, grpc.CallContentSubtype(codecName))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ControlClient) GetState(ctx context.Context, id int64) (*state.Record, error) {
	return invoke[state.Record](ctx, c, "GetState", &StateRequest{ID: id})
}

func (c *ControlClient) QueryStates(ctx context.Context, minDegree float64) (*StateList, error) {
	return invoke[StateList](ctx, c, "QueryStates", &QueryRequest{MinDegree: minDegree})
}

func (c *ControlClient) ListAgents(ctx context.Context) (*AgentList, error) {
	return invoke[AgentList](ctx, c, "ListAgents", &Empty{})
}

func (c *ControlClient) SendMessage(ctx context.Context, agentID string, msg agent.Wire) (*SendResponse, error) {
	return invoke[SendResponse](ctx, c, "SendMessage", &SendRequest{AgentID: agentID, Message: msg})
}

func (c *ControlClient) Broadcast(ctx context.Context, msg agent.Wire) (*BroadcastResponse, error) {
	return invoke[BroadcastResponse](ctx, c, "Broadcast", &BroadcastRequest{Message: msg})
}

func (c *ControlClient) Correlate(ctx context.Context, deviceA, deviceB int64) (*CorrelateResponse, error) {
	return invoke[CorrelateResponse](ctx, c, "Correlate", &CorrelateRequest{DeviceA: deviceA, DeviceB: deviceB})
}

func (c *ControlClient) CrossCheck(ctx context.Context, deviceID int64) (*integrator.CrossCheckResult, error) {
	return invoke[integrator.CrossCheckResult](ctx, c, "CrossCheck", &DeviceRequest{DeviceID: deviceID})
}

func (c *ControlClient) Dashboard(ctx context.Context) (*store.DashboardStats, error) {
	return invoke[store.DashboardStats](ctx, c, "Dashboard", &Empty{})
}
