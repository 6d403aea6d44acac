// ABOUTME: Entry point for hvac-gateway, the HVAC state mesh server
// ABOUTME: Subcommands: serve, init, token, health, agents

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/2389/hvac-mesh/internal/auth"
	"github.com/2389/hvac-mesh/internal/config"
	"github.com/2389/hvac-mesh/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _                                                 _
| |____   ____ _  ___      _ __ ___   ___  ___| |__
| '_ \ \ / / _' |/ __|____| '_ ' _ \ / _ \/ __| '_ \
| | | \ V / (_| | (_|_____| | | | | |  __/\__ \ | | |
|_| |_|\_/ \__,_|\___|    |_| |_| |_|\___||___/_| |_|
`

func usage() {
	fmt.Println("Usage: hvac-gateway <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                      Start the gateway server")
	fmt.Println("  init                       Write an example config file")
	fmt.Println("  token --subject NAME       Issue a JWT for the configured secret")
	fmt.Println("  health                     Check gateway health")
	fmt.Println("  agents                     Show gateway readiness and agent count")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	// A missing .env is fine; a malformed one is not.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Error: loading .env: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	args := os.Args[2:]
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, args)
	case "init":
		err = runInit(args)
	case "token":
		err = runToken(args)
	case "health":
		err = runProbe(ctx, args, "/health")
	case "agents":
		err = runProbe(ctx, args, "/health/ready")
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newFlagSet(name string, configPath *string) *pflag.FlagSet {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.StringVarP(configPath, "config", "c", config.DefaultPath(), "path to the gateway config file")
	return flags
}

func runServe(ctx context.Context, args []string) error {
	var configPath string
	flags := newFlagSet("serve", &configPath)
	if err := flags.Parse(args); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("gRPC:      %s\n", cfg.Server.GRPCAddr)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Agents:    %d", len(cfg.Agents.Definitions))
	if !cfg.Agents.MeshEnabled() {
		gray.Print(" (mesh off)")
	}
	fmt.Println()
	if cfg.Relay.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Relay:     %s\n", cfg.Relay.URL)
	}
	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.HTTPS {
			yellow.Print(" [https]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}
	if cfg.Auth.JWTSecret == "" {
		yellow.Println("    ! auth disabled")
	}
	fmt.Println()

	logger.Info("starting hvac-gateway",
		"config", configPath,
		"grpc_addr", cfg.Server.GRPCAddr,
		"http_addr", cfg.Server.HTTPAddr,
		"version", version,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	return gw.Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = &colorHandler{level: level, out: os.Stdout, mu: &sync.Mutex{}}
	}
	return slog.New(handler)
}

// colorHandler provides colorized log output with serialized writes.
type colorHandler struct {
	mu     *sync.Mutex
	out    io.Writer
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}
	buf.WriteString(r.Message)

	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + prefix + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})
	buf.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, buf.String())
	return err
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &next
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.groups = append(append([]string(nil), h.groups...), name)
	return &next
}

func runInit(args []string) error {
	var configPath string
	var force bool
	flags := newFlagSet("init", &configPath)
	flags.BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(config.Example), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	color.New(color.FgGreen).Printf("  ✓ Config written to %s\n", configPath)
	fmt.Println("\nTo start the server:")
	fmt.Println("  hvac-gateway serve")
	return nil
}

// runToken issues a token signed with the configured jwt_secret.
func runToken(args []string) error {
	var (
		configPath string
		subject    string
		roles      []string
		ttl        time.Duration
	)
	flags := newFlagSet("token", &configPath)
	flags.StringVarP(&subject, "subject", "s", "", "principal name recorded as the audit actor")
	flags.StringSliceVarP(&roles, "role", "r", []string{auth.RoleOperator}, "roles to grant (operator, admin)")
	flags.DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime; 0 means no expiry")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if subject == "" {
		return errors.New("--subject is required")
	}
	for _, r := range roles {
		if r != auth.RoleOperator && r != auth.RoleAdmin {
			return fmt.Errorf("unknown role %q", r)
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret not configured in %s", configPath)
	}

	token, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret)).Generate(subject, roles, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	fmt.Println(token)
	return nil
}

// runProbe prints the body of a gateway health endpoint.
func runProbe(ctx context.Context, args []string, path string) error {
	var configPath string
	flags := newFlagSet("health", &configPath)
	if err := flags.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+cfg.Server.HTTPAddr+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	fmt.Println(strings.TrimSpace(string(body)))
	return nil
}
