// ABOUTME: Gateway orchestrator wiring storage, agents, correlation and the outer servers
// ABOUTME: Owns the lifecycle of the gRPC and HTTP servers, relay and sweep scheduler

package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/hvac-mesh/internal/agent"
	"github.com/2389/hvac-mesh/internal/auth"
	"github.com/2389/hvac-mesh/internal/broadcast"
	"github.com/2389/hvac-mesh/internal/config"
	"github.com/2389/hvac-mesh/internal/correlation"
	"github.com/2389/hvac-mesh/internal/integrator"
	"github.com/2389/hvac-mesh/internal/metrics"
	"github.com/2389/hvac-mesh/internal/notify"
	"github.com/2389/hvac-mesh/internal/relay"
	"github.com/2389/hvac-mesh/internal/render"
	"github.com/2389/hvac-mesh/internal/schedule"
	"github.com/2389/hvac-mesh/internal/state"
	"github.com/2389/hvac-mesh/internal/store"
)

// Gateway orchestrates the hvac-gateway server components.
type Gateway struct {
	config      *config.Config
	store       store.Store
	states      *state.Store
	broadcaster *broadcast.Broadcaster
	engine      *correlation.Engine
	integrator  *integrator.Integrator
	agents      *agent.Manager
	router      *agent.Router
	sweeper     *schedule.Sweeper
	renderer    *render.Renderer
	predictor   agent.Predictor
	recorder    metrics.Recorder
	registry    *prom.Registry
	verifier    *auth.JWTVerifier

	grpcServer   *grpc.Server
	httpServer   *http.Server
	healthServer *health.Server
	tsnetServer  *tsnet.Server
	logger       *slog.Logger

	// serverID identifies this gateway instance and its relay node
	serverID  string
	startedAt time.Time

	mu        sync.Mutex
	relay     *relay.Relay
	transport *relay.NATSTransport
}

// initStore opens the SQLite store. HVAC_DB_PATH overrides database.path.
func initStore(cfg *config.Config) (*store.SQLiteStore, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("HVAC_DB_PATH"); envPath != "" {
		dbPath = envPath
	}
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// New creates a Gateway over a SQLite store at cfg.Database.Path.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}
	gw, err := newGateway(cfg, s, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return gw, nil
}

func newGateway(cfg *config.Config, s store.Store, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	gw := &Gateway{
		config:    cfg,
		store:     s,
		router:    agent.NewRouter(),
		renderer:  render.New(),
		logger:    logger.With("component", "gateway"),
		serverID:  generateServerID(),
		startedAt: time.Now().UTC(),
	}

	gw.recorder = metrics.NoopRecorder{}
	if cfg.Metrics.Enabled {
		gw.registry = prom.NewRegistry()
		gw.recorder = metrics.NewPrometheusRecorder(gw.registry)
	}

	predictor, err := agent.NewPredictor(cfg.Agents.Predictor)
	if err != nil {
		return nil, err
	}
	gw.predictor = predictor

	mode, err := broadcast.ParseMode(cfg.Agents.Delivery)
	if err != nil {
		return nil, err
	}

	gw.states = state.NewStore(s, state.Options{
		LockTimeout: cfg.Agents.LockTimeout,
		Logger:      logger,
		Observer:    gw.recorder,
	})
	gw.broadcaster = broadcast.New(broadcast.NewRegistry(), broadcast.Options{
		Mode:        mode,
		SendTimeout: cfg.Agents.SendTimeout,
		Logger:      logger,
		Observer:    gw.recorder,
	})
	gw.engine = correlation.NewEngine(gw.states, s, correlation.Options{
		Resolver: s,
		Logger:   logger,
		Observer: gw.recorder,
	})

	alerts, err := buildAlerts(cfg, logger)
	if err != nil {
		return nil, err
	}
	gw.integrator = integrator.New(integrator.Config{
		Business:       s,
		Audit:          s,
		States:         gw.states,
		Correlator:     gw.engine,
		Broadcaster:    gw.broadcaster,
		Alerts:         alerts,
		CandidateLimit: cfg.Correlation.CandidateLimit,
		Logger:         logger,
	})
	gw.agents = agent.NewManager(gw.broadcaster.Registry(), logger)
	gw.sweeper = schedule.NewSweeper(s, gw.integrator, cfg.Correlation.SweepInterval, logger)

	if cfg.Auth.JWTSecret != "" {
		gw.verifier = auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	}
	gw.grpcServer = gw.createGRPCServer()
	gw.healthServer = health.NewServer()
	healthpb.RegisterHealthServer(gw.grpcServer, gw.healthServer)
	RegisterControlService(gw.grpcServer, &controlServer{gateway: gw})

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return gw, nil
}

// buildAlerts returns the log sink plus Matrix when configured.
func buildAlerts(cfg *config.Config, logger *slog.Logger) (notify.Sink, error) {
	sinks := notify.Multi{notify.NewLogSink(logger)}
	if m := cfg.Notify.Matrix; m.Enabled {
		sink, err := notify.NewMatrixSink(notify.MatrixOptions{
			Homeserver:  m.Homeserver,
			UserID:      m.UserID,
			AccessToken: m.AccessToken,
			RoomID:      m.RoomID,
			Logger:      logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating matrix sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	return sinks, nil
}

func grpcServerOptions() []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    15 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	}
}

// createGRPCServer creates a gRPC server with or without auth based on config.
func (g *Gateway) createGRPCServer() *grpc.Server {
	opts := grpcServerOptions()
	if g.verifier != nil {
		opts = append(opts,
			grpc.ChainUnaryInterceptor(auth.UnaryInterceptor(g.verifier, g.logger, auth.HealthMethods...)),
			grpc.ChainStreamInterceptor(auth.StreamInterceptor(g.verifier, g.logger, auth.HealthMethods...)),
		)
		g.logger.Info("gRPC auth interceptors enabled")
	} else {
		opts = append(opts,
			grpc.ChainUnaryInterceptor(auth.NoAuthUnaryInterceptor()),
			grpc.ChainStreamInterceptor(auth.NoAuthStreamInterceptor()),
		)
		g.logger.Warn("auth disabled - no jwt_secret configured")
	}
	return grpc.NewServer(opts...)
}

// startAgents starts one agent per configured definition.
func (g *Gateway) startAgents(ctx context.Context) error {
	var peers agent.Peers
	if g.config.Agents.MeshEnabled() {
		peers = g.broadcaster
	}
	for _, def := range g.config.Agents.Definitions {
		_, err := g.agents.Start(ctx, agent.Config{
			ID:            def.ID,
			StateID:       def.StateID,
			Store:         g.states,
			Peers:         peers,
			Predictor:     g.predictor,
			InboxCapacity: g.config.Agents.InboxCapacity,
			Logger:        g.logger,
			Observer:      g.recorder,
		})
		if err != nil {
			return fmt.Errorf("starting agent %s: %w", def.ID, err)
		}
	}
	g.logger.Info("agents started", "count", len(g.config.Agents.Definitions), "mesh", g.config.Agents.MeshEnabled())

	missing, err := g.agentsWithoutState(ctx)
	if err != nil {
		g.logger.Warn("could not list stored state records", "error", err)
	} else if len(missing) > 0 {
		g.logger.Warn("agents own state records that are not stored yet", "agents", missing)
	}
	return nil
}

// agentsWithoutState returns the configured agents whose state record has
// no durable row. Such agents fail every handler until the record is put.
func (g *Gateway) agentsWithoutState(ctx context.Context) ([]string, error) {
	ids, err := g.store.ListStateIDs(ctx)
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, def := range g.config.Agents.Definitions {
		if _, found := slices.BinarySearch(ids, def.StateID); !found {
			missing = append(missing, def.ID)
		}
	}
	return missing, nil
}

// startRelay connects to NATS and forwards broadcasts between gateways.
func (g *Gateway) startRelay() error {
	rc := g.config.Relay
	if !rc.Enabled {
		return nil
	}
	nodeID := rc.NodeID
	if nodeID == "" {
		nodeID = g.serverID
	}
	transport, err := relay.Connect(rc.URL, nodeID)
	if err != nil {
		return err
	}
	r := relay.New(transport, g.broadcaster, relay.Options{
		NodeID:        nodeID,
		SubjectPrefix: rc.SubjectPrefix,
		SeenTTL:       rc.SeenTTL,
		Logger:        g.logger,
		Observer:      g.recorder,
	})
	if err := r.Start(); err != nil {
		_ = transport.Close()
		return err
	}
	g.broadcaster.AddForwarder(r)

	g.mu.Lock()
	g.relay, g.transport = r, transport
	g.mu.Unlock()
	return nil
}

// startBackground starts agents, relay and the sweep scheduler.
func (g *Gateway) startBackground(ctx context.Context) error {
	if err := g.startAgents(ctx); err != nil {
		return err
	}
	if err := g.startRelay(); err != nil {
		return err
	}
	if g.config.Correlation.SweepInterval > 0 {
		if err := g.sweeper.Start(ctx); err != nil {
			return err
		}
	}
	g.healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	g.healthServer.SetServingStatus(ControlServiceName, healthpb.HealthCheckResponse_SERVING)
	return nil
}

// setupTCPListeners creates standard TCP listeners for gRPC and HTTP.
func (g *Gateway) setupTCPListeners() (grpcLn, httpLn net.Listener, err error) {
	g.logger.Info("starting gateway",
		"grpc_addr", g.config.Server.GRPCAddr,
		"http_addr", g.config.Server.HTTPAddr,
	)
	grpcLn, err = net.Listen("tcp", g.config.Server.GRPCAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("listening on gRPC address: %w", err)
	}
	httpLn, err = net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		_ = grpcLn.Close()
		return nil, nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return grpcLn, httpLn, nil
}

// setupListeners creates listeners based on configuration (Tailscale or TCP).
func (g *Gateway) setupListeners(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	if g.config.Tailscale.Enabled {
		if g.config.Server.GRPCAddr != "" || g.config.Server.HTTPAddr != "" {
			g.logger.Warn("server.grpc_addr and server.http_addr are ignored when tailscale is enabled")
		}
		return g.setupTailscaleListeners(ctx)
	}
	return g.setupTCPListeners()
}

// startServers starts gRPC and HTTP servers in goroutines, returning error channel.
func (g *Gateway) startServers(grpcLn, httpLn net.Listener) chan error {
	errCh := make(chan error, 2)
	go func() {
		g.logger.Info("gRPC server listening", "addr", grpcLn.Addr().String())
		if err := g.grpcServer.Serve(grpcLn); err != nil {
			errCh <- fmt.Errorf("gRPC server: %w", err)
		}
	}()
	go func() {
		g.logger.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := g.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()
	return errCh
}

// Run starts the background components and servers and blocks until ctx is
// canceled or a server fails.
func (g *Gateway) Run(ctx context.Context) error {
	if err := g.startBackground(ctx); err != nil {
		_ = g.gracefulShutdown()
		return err
	}
	grpcLn, httpLn, err := g.setupListeners(ctx)
	if err != nil {
		_ = g.gracefulShutdown()
		return err
	}
	errCh := g.startServers(grpcLn, httpLn)

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown runs Shutdown with a fresh context since the run context
// is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "hvac-mesh", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListeners creates a tsnet server and returns listeners for gRPC and HTTP.
func (g *Gateway) setupTailscaleListeners(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	tsCfg := g.config.Tailscale
	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}
	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}
	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailscaleStatus(tsCfg.Hostname, status)

	grpcLn, err = g.tsnetServer.Listen("tcp", ":50051")
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, nil, fmt.Errorf("listening on tailscale gRPC port: %w", err)
	}
	if tsCfg.HTTPS {
		httpLn, err = g.createTailscaleTLSListener()
	} else {
		httpLn, err = g.tsnetServer.Listen("tcp", ":80")
	}
	if err != nil {
		_ = grpcLn.Close()
		_ = g.tsnetServer.Close()
		return nil, nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
	}
	return grpcLn, httpLn, nil
}

// logTailscaleStatus logs info about the tailscale node status.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// createTailscaleTLSListener creates a TLS listener using Tailscale's auto-provisioned certs.
func (g *Gateway) createTailscaleTLSListener() (net.Listener, error) {
	g.logger.Info("enabling HTTPS with Tailscale certs on :443")
	ln, err := g.tsnetServer.Listen("tcp", ":443")
	if err != nil {
		return nil, err
	}
	lc, err := g.tsnetServer.LocalClient()
	if err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("getting tailscale local client: %w", err)
	}
	return tls.NewListener(ln, &tls.Config{
		GetCertificate: lc.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}), nil
}

// shutdownGRPCServer gracefully stops the gRPC server or force-stops on context cancel.
func (g *Gateway) shutdownGRPCServer(ctx context.Context) {
	stopped := make(chan struct{})
	go func() {
		g.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		g.grpcServer.Stop()
	}
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the servers, background components and agents, then closes
// the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")
	g.healthServer.Shutdown()

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	g.shutdownGRPCServer(ctx)

	errs = appendCloseError(errs, "sweeper stop", g.sweeper.Stop())

	g.mu.Lock()
	r, transport := g.relay, g.transport
	g.relay, g.transport = nil, nil
	g.mu.Unlock()
	if r != nil {
		errs = appendCloseError(errs, "relay close", r.Close())
	}
	if transport != nil {
		errs = appendCloseError(errs, "nats close", transport.Close())
	}

	errs = appendCloseError(errs, "agents stop", g.agents.StopAll(ctx))

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "store close", g.store.Close())

	return errors.Join(errs...)
}

// generateServerID creates a unique identifier for this gateway instance.
func generateServerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "hvac-gateway"
	}
	return fmt.Sprintf("%s-%d", host, time.Now().UnixNano()%1000000)
}
