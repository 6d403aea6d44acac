// ABOUTME: HTTP API over state records, agents, correlations and the business workflows
// ABOUTME: JSON in and out; state reports render as HTML or Markdown

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/hvac-mesh/internal/agent"
	"github.com/2389/hvac-mesh/internal/auth"
	"github.com/2389/hvac-mesh/internal/integrator"
	"github.com/2389/hvac-mesh/internal/metrics"
	"github.com/2389/hvac-mesh/internal/render"
	"github.com/2389/hvac-mesh/internal/state"
	"github.com/2389/hvac-mesh/internal/store"
)

const maxBodyBytes = 1 << 20

// routes builds the HTTP handler.
func (g *Gateway) routes() http.Handler {
	mux := http.NewServeMux()

	// Health endpoints - no auth required
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)
	if g.registry != nil {
		mux.Handle("GET "+g.config.Metrics.Path, metrics.HTTPHandler(g.registry))
	}

	authn := auth.NoAuthHTTP()
	if g.verifier != nil {
		authn = auth.HTTPAuthMiddleware(g.verifier, g.logger)
	}
	admin := auth.RequireAdminHTTP()
	read := func(h http.HandlerFunc) http.Handler { return authn(h) }
	write := func(h http.HandlerFunc) http.Handler { return authn(admin(h)) }

	mux.Handle("GET /api/states", read(g.handleQueryStates))
	mux.Handle("GET /api/states/{id}", read(g.handleGetState))
	mux.Handle("PUT /api/states/{id}", write(g.handlePutState))
	mux.Handle("POST /api/states/{id}/predictions", write(g.handleUpdatePredictions))
	mux.Handle("GET /api/states/{id}/report", read(g.handleStateReport))

	mux.Handle("GET /api/agents", read(g.handleListAgents))
	mux.Handle("POST /api/agents/{id}/messages", write(g.handleAgentMessage))
	mux.Handle("POST /api/messages", write(g.handleRoutedMessage))
	mux.Handle("POST /api/broadcast", write(g.handleBroadcast))

	mux.Handle("POST /api/customers", write(g.handleCreateCustomer))
	mux.Handle("GET /api/customers/{id}", read(g.handleGetCustomer))
	mux.Handle("PUT /api/customers/{id}/wealth-score", write(g.handleWealthScore))
	mux.Handle("POST /api/buildings", write(g.handleCreateBuilding))
	mux.Handle("POST /api/devices", write(g.handleCreateDevice))
	mux.Handle("GET /api/devices/{id}", read(g.handleGetDevice))
	mux.Handle("PUT /api/devices/{id}/state", write(g.handleLinkDevice))
	mux.Handle("POST /api/devices/{id}/crosscheck", write(g.handleCrossCheck))
	mux.Handle("GET /api/devices/{id}/correlations", read(g.handleDeviceCorrelations))
	mux.Handle("POST /api/correlations", write(g.handleCorrelate))
	mux.Handle("POST /api/communications", write(g.handleCreateCommunication))
	mux.Handle("POST /api/communications/{id}/analyze", write(g.handleAnalyze))
	mux.Handle("POST /api/tickets", write(g.handleCreateTicket))
	mux.Handle("POST /api/offers", write(g.handleCreateOffer))
	mux.Handle("GET /api/offers/{id}", read(g.handleGetOffer))
	mux.Handle("POST /api/offers/{id}/reactions", write(g.handleOfferReaction))
	mux.Handle("GET /api/map", read(g.handleMap))
	mux.Handle("GET /api/dashboard", read(g.handleDashboard))
	mux.Handle("POST /api/sweep", write(g.handleSweep))
	mux.Handle("GET /api/audit", authn(admin(http.HandlerFunc(g.handleAudit))))

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sendError writes err with the status its kind maps to.
func (g *Gateway) sendError(w http.ResponseWriter, r *http.Request, err error) {
	code := httpStatus(err)
	if code >= http.StatusInternalServerError {
		g.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", code, "error", err)
	} else {
		g.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", code, "error", err)
	}
	writeJSON(w, code, newErrorBody(err))
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %w", errBadRequest, err)
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", errBadRequest, raw)
	}
	return id, nil
}

func queryFloat(r *http.Request, key string, def float64) (float64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", errBadRequest, key, raw)
	}
	return v, nil
}

func queryInt(r *http.Request, key string) (int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", errBadRequest, key, raw)
	}
	return v, nil
}

func queryTime(r *http.Request, key string) (*time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s %q", errBadRequest, key, raw)
	}
	return &t, nil
}

// clientIP is the request's remote host without the port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// actor is the caller as recorded in audit entries and message envelopes.
func actor(r *http.Request) string {
	return auth.FromContext(r.Context()).Actor()
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type pinger interface {
	Ping(ctx context.Context) error
}

// handleReady returns 200 when the store is reachable.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if p, ok := g.store.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("store unavailable"))
			return
		}
	}
	missing, err := g.agentsWithoutState(r.Context())
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	if len(missing) > 0 {
		_, _ = fmt.Fprintf(w, "ready (%d agents, %d without a stored state record)", len(g.agents.ListAgents()), len(missing))
		return
	}
	_, _ = fmt.Fprintf(w, "ready (%d agents)", len(g.agents.ListAgents()))
}

func (g *Gateway) handleGetState(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	rec, err := g.states.Snapshot(r.Context(), id)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (g *Gateway) handlePutState(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	var rec state.Record
	if err := decodeBody(r, &rec); err != nil {
		g.sendError(w, r, err)
		return
	}
	if rec.ID != 0 && rec.ID != id {
		g.sendError(w, r, fmt.Errorf("%w: body id %d does not match path id %d", errBadRequest, rec.ID, id))
		return
	}
	rec.ID = id
	if err := g.states.Put(r.Context(), rec); err != nil {
		g.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type predictionsRequest struct {
	Predictions []state.FailurePrediction `json:"predictions"`
}

func (g *Gateway) handleUpdatePredictions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	var req predictionsRequest
	if err := decodeBody(r, &req); err != nil {
		g.sendError(w, r, err)
		return
	}
	if err := g.states.UpdatePredictions(r.Context(), id, req.Predictions); err != nil {
		g.sendError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handleQueryStates(w http.ResponseWriter, r *http.Request) {
	minDegree, err := queryFloat(r, "min_degree", 0)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	recs, err := g.states.QueryByCorrelationThreshold(r.Context(), minDegree)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	if recs == nil {
		recs = []state.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// handleStateReport renders a state record. ?device_id= adds that device's
// correlations; ?format=md returns Markdown instead of HTML.
func (g *Gateway) handleStateReport(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	deviceID, err := queryInt(r, "device_id")
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	rec, err := g.states.Snapshot(r.Context(), id)
	if err != nil {
		g.sendError(w, r, err)
		return
	}

	rep := render.Report{Record: rec, GeneratedAt: time.Now().UTC()}
	if a := g.agents.GetByStateID(id); a != nil {
		rep.Owner = a.ID()
	}
	if deviceID > 0 {
		rep.Correlations, err = g.engine.ForDevice(r.Context(), deviceID, 0)
		if err != nil {
			g.sendError(w, r, err)
			return
		}
	}

	if r.URL.Query().Get("format") == "md" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = io.WriteString(w, render.Markdown(rep))
		return
	}
	html, err := g.renderer.HTMLString(rep)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, html)
}

func (g *Gateway) handleListAgents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, g.agents.ListAgents())
}

func decodeMessage(r *http.Request) (agent.Message, error) {
	var wire agent.Wire
	if err := decodeBody(r, &wire); err != nil {
		return nil, err
	}
	msg, err := wire.Message()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return msg, nil
}

// messageResponse reports a handled message.
type messageResponse struct {
	AgentID string     `json:"agent_id"`
	Kind    agent.Kind `json:"kind"`
}

func (g *Gateway) deliverTo(w http.ResponseWriter, r *http.Request, a *agent.Agent, msg agent.Message) {
	ctx, cancel := context.WithTimeout(r.Context(), g.config.Agents.SendTimeout+g.config.Agents.LockTimeout+5*time.Second)
	defer cancel()
	if err := a.Request(ctx, actor(r), msg); err != nil {
		g.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{AgentID: a.ID(), Kind: msg.Kind()})
}

// handleAgentMessage sends a message to one agent and waits for it to be handled.
func (g *Gateway) handleAgentMessage(w http.ResponseWriter, r *http.Request) {
	a, ok := g.agents.GetAgent(r.PathValue("id"))
	if !ok {
		g.sendError(w, r, agent.ErrAgentNotFound)
		return
	}
	msg, err := decodeMessage(r)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	g.deliverTo(w, r, a, msg)
}

// handleRoutedMessage delivers to the agent owning the message target.
func (g *Gateway) handleRoutedMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := decodeMessage(r)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	a, err := g.router.SelectAgent(msg, g.agents.Agents())
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	g.deliverTo(w, r, a, msg)
}

func (g *Gateway) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	msg, err := decodeMessage(r)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	rep := g.broadcaster.Broadcast(r.Context(), actor(r), msg)
	writeJSON(w, http.StatusOK, map[string]int{"delivered": rep.Delivered, "dropped": rep.Dropped})
}

// workflowContext carries the caller into integrator audit entries.
func workflowContext(r *http.Request) context.Context {
	return integrator.WithActor(r.Context(), actor(r))
}

type idResponse struct {
	ID int64 `json:"id"`
}

func (g *Gateway) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var c store.Customer
	if err := decodeBody(r, &c); err != nil {
		g.sendError(w, r, err)
		return
	}
	if c.Name == "" {
		g.sendError(w, r, fmt.Errorf("%w: name is required", errBadRequest))
		return
	}
	id, err := g.integrator.RegisterCustomer(workflowContext(r), &c)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (g *Gateway) handleGetCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	c, err := g.store.GetCustomer(r.Context(), id)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type scoreRequest struct {
	Score *float64 `json:"score"`
}

func (g *Gateway) handleWealthScore(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	var req scoreRequest
	if err := decodeBody(r, &req); err != nil {
		g.sendError(w, r, err)
		return
	}
	if req.Score == nil {
		g.sendError(w, r, fmt.Errorf("%w: score is required", errBadRequest))
		return
	}
	if err := g.integrator.UpdateWealthScore(workflowContext(r), id, *req.Score); err != nil {
		g.sendError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handleCreateBuilding(w http.ResponseWriter, r *http.Request) {
	var b store.Building
	if err := decodeBody(r, &b); err != nil {
		g.sendError(w, r, err)
		return
	}
	id, err := g.integrator.RegisterBuilding(workflowContext(r), &b)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (g *Gateway) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var d store.Device
	if err := decodeBody(r, &d); err != nil {
		g.sendError(w, r, err)
		return
	}
	reg, err := g.integrator.RegisterDevice(workflowContext(r), &d)
	if err != nil {
		// The device may exist even though a later step failed.
		body := newErrorBody(err)
		writeJSON(w, httpStatus(err), struct {
			errorBody
			DeviceID int64 `json:"device_id,omitempty"`
		}{body, reg.DeviceID})
		return
	}
	writeJSON(w, http.StatusCreated, reg)
}

func (g *Gateway) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	d, err := g.store.GetDevice(r.Context(), id)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type linkRequest struct {
	StateID int64 `json:"state_id"`
}

func (g *Gateway) handleLinkDevice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	var req linkRequest
	if err := decodeBody(r, &req); err != nil {
		g.sendError(w, r, err)
		return
	}
	if req.StateID <= 0 {
		g.sendError(w, r, fmt.Errorf("%w: state_id must be positive", errBadRequest))
		return
	}
	if err := g.integrator.LinkDeviceState(workflowContext(r), id, req.StateID); err != nil {
		g.sendError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handleCrossCheck(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	res, err := g.integrator.CrossCheck(workflowContext(r), id)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (g *Gateway) handleDeviceCorrelations(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	minDegree, err := queryFloat(r, "min_degree", 0)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	recs, err := g.engine.ForDevice(r.Context(), id, minDegree)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

type correlateRequest struct {
	DeviceA int64 `json:"device_a"`
	DeviceB int64 `json:"device_b"`
}

func (g *Gateway) handleCorrelate(w http.ResponseWriter, r *http.Request) {
	var req correlateRequest
	if err := decodeBody(r, &req); err != nil {
		g.sendError(w, r, err)
		return
	}
	res, err := g.integrator.ComputeCorrelation(workflowContext(r), req.DeviceA, req.DeviceB)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, CorrelateResponse{Record: res.Record, Notified: res.Notified})
}

func (g *Gateway) handleCreateCommunication(w http.ResponseWriter, r *http.Request) {
	var c store.Communication
	if err := decodeBody(r, &c); err != nil {
		g.sendError(w, r, err)
		return
	}
	res, err := g.integrator.RecordCommunication(workflowContext(r), &c)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type analyzeRequest struct {
	Transcript string `json:"transcript"`
}

func (g *Gateway) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	var req analyzeRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
			g.sendError(w, r, err)
			return
		}
	}
	score, err := g.integrator.AnalyzeTranscript(workflowContext(r), id, req.Transcript)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"wealth_score": score})
}

func (g *Gateway) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	var t store.ServiceTicket
	if err := decodeBody(r, &t); err != nil {
		g.sendError(w, r, err)
		return
	}
	id, err := g.integrator.RegisterServiceTicket(workflowContext(r), &t)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		ID       int64 `json:"id"`
		Priority int   `json:"priority"`
	}{id, t.Priority})
}

func (g *Gateway) handleCreateOffer(w http.ResponseWriter, r *http.Request) {
	var o store.Offer
	if err := decodeBody(r, &o); err != nil {
		g.sendError(w, r, err)
		return
	}
	id, err := g.integrator.CreateOffer(workflowContext(r), &o)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (g *Gateway) handleGetOffer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	view, err := g.integrator.Offer(r.Context(), id)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (g *Gateway) handleOfferReaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	var re store.OfferReaction
	if err := decodeBody(r, &re); err != nil {
		g.sendError(w, r, err)
		return
	}
	if re.ReactionType == "" {
		g.sendError(w, r, fmt.Errorf("%w: reaction_type is required", errBadRequest))
		return
	}
	re.OfferID = id
	if re.IPAddress == "" {
		re.IPAddress = clientIP(r)
	}
	rid, err := g.integrator.RecordOfferReaction(workflowContext(r), &re)
	if err != nil {
		// The reaction may be stored even though marking the offer failed.
		writeJSON(w, httpStatus(err), struct {
			errorBody
			ReactionID int64 `json:"reaction_id,omitempty"`
		}{newErrorBody(err), rid})
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: rid})
}

func (g *Gateway) handleMap(w http.ResponseWriter, r *http.Request) {
	customerID, err := queryInt(r, "customer_id")
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	buildings, err := g.integrator.InstallationMap(r.Context(), store.MapFilter{
		CustomerID: customerID,
		Region:     r.URL.Query().Get("region"),
	})
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, buildings)
}

func (g *Gateway) handleDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := g.integrator.Dashboard(r.Context())
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (g *Gateway) handleSweep(w http.ResponseWriter, r *http.Request) {
	rep, err := g.sweeper.Sweep(workflowContext(r))
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices":  rep.Devices,
		"matches":  rep.Matches,
		"failures": rep.Failures,
		"duration": rep.Duration.String(),
	})
}

func (g *Gateway) handleAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.AuditFilter{
		Actor:      q.Get("actor"),
		Action:     store.AuditAction(q.Get("action")),
		TargetType: q.Get("target_type"),
		TargetID:   q.Get("target_id"),
	}
	var err error
	if f.Since, err = queryTime(r, "since"); err != nil {
		g.sendError(w, r, err)
		return
	}
	if f.Until, err = queryTime(r, "until"); err != nil {
		g.sendError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	f.Limit = int(limit)

	entries, err := g.store.ListAuditLog(r.Context(), f)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
