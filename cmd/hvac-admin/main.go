// ABOUTME: Admin CLI for hvac-gateway state records, agents and correlations
// ABOUTME: Talks to the hvac.v1.Control gRPC service with JWT authentication

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/pflag"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/2389/hvac-mesh/internal/agent"
	"github.com/2389/hvac-mesh/internal/gateway"
	"github.com/2389/hvac-mesh/internal/state"
)

const banner = `
 _                                 _           _
| |____   ____ _  ___      __ _  __| |_ __ ___ (_)_ __
| '_ \ \ / / _' |/ __|____/ _' |/ _' | '_ ' _ \| | '_ \
| | | \ V / (_| | (_|_____| (_| | (_| | | | | | | | | | |
|_| |_|\_/ \__,_|\___|     \__,_|\__,_|_| |_| |_|_|_| |_|
`

const callTimeout = 10 * time.Second

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	grpcAddr := os.Getenv("HVAC_GATEWAY_GRPC")
	if grpcAddr == "" {
		grpcAddr = "localhost:50051"
	}
	token := getToken()

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "status":
		err = cmdStatus(grpcAddr, token)
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		err = withClient(grpcAddr, token, func(ctx context.Context, c *gateway.ControlClient) error {
			switch cmd {
			case "state":
				return cmdState(ctx, c, args)
			case "states":
				return cmdStates(ctx, c, args)
			case "agents":
				return cmdAgents(ctx, c)
			case "send":
				return cmdSend(ctx, c, args, false)
			case "broadcast":
				return cmdSend(ctx, c, args, true)
			case "correlate":
				return cmdCorrelate(ctx, c, args)
			case "crosscheck":
				return cmdCrossCheck(ctx, c, args)
			case "dashboard":
				return cmdDashboard(ctx, c)
			}
			printUsage()
			return fmt.Errorf("unknown command: %s", cmd)
		})
	}

	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: hvac-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  status                        Check gateway health")
	fmt.Println("  state <id>                    Show a state record")
	fmt.Println("  states [--min-degree N]       List records above a correlation degree")
	fmt.Println("  agents                        List running agents")
	fmt.Println("  send [--agent ID] --kind K    Send a message (routed by target without --agent)")
	fmt.Println("  broadcast --kind K            Broadcast a message to every agent")
	fmt.Println("  correlate <device> <device>   Measure and store a device correlation")
	fmt.Println("  crosscheck <device>           Cross-check a device against known devices")
	fmt.Println("  dashboard                     Show business totals")
	fmt.Println()
	yellow.Println("Message flags:")
	fmt.Println("  --target ID  --component NAME  --param name=value  --min-degree N  --record FILE")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  HVAC_GATEWAY_GRPC   Gateway gRPC address (default: localhost:50051)")
	fmt.Println("  HVAC_TOKEN          JWT authentication token")
	fmt.Println()
}

func createClient(addr string) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return conn, nil
}

// authContext creates a context with the JWT token in metadata.
func authContext(token string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	if token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
	}
	return ctx, cancel
}

func withClient(addr, token string, fn func(context.Context, *gateway.ControlClient) error) error {
	conn, err := createClient(addr)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := authContext(token)
	defer cancel()
	return fn(ctx, gateway.NewControlClient(conn))
}

func cmdStatus(addr, token string) error {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	conn, err := createClient(addr)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := authContext(token)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: gateway.ControlServiceName})
	if err != nil {
		yellow.Printf("  Gateway:  ")
		color.Red("UNREACHABLE (%v)\n", err)
		return nil
	}
	green.Printf("  Gateway:  ")
	fmt.Printf("%s\n", addr)
	out, err := protojson.MarshalOptions{Indent: "  "}.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encoding health response: %w", err)
	}
	fmt.Printf("  Health:   %s\n", string(out))

	if token == "" {
		yellow.Println("  Token:    not set (HVAC_TOKEN)")
	}
	return nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func cmdState(ctx context.Context, c *gateway.ControlClient, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: hvac-admin state <id>")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	rec, err := c.GetState(ctx, id)
	if err != nil {
		return fmt.Errorf("GetState: %w", err)
	}
	return printJSON(rec)
}

func cmdStates(ctx context.Context, c *gateway.ControlClient, args []string) error {
	var minDegree float64
	flags := pflag.NewFlagSet("states", pflag.ContinueOnError)
	flags.Float64Var(&minDegree, "min-degree", 0, "minimum correlation degree")
	if err := flags.Parse(args); err != nil {
		return err
	}
	list, err := c.QueryStates(ctx, minDegree)
	if err != nil {
		return fmt.Errorf("QueryStates: %w", err)
	}
	if len(list.Records) == 0 {
		fmt.Println("No matching state records.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tTEMP\tHUMIDITY\tPRESSURE\tAIRFLOW\tPREDICTIONS")
	fmt.Fprintln(w, "  --\t----\t--------\t--------\t-------\t-----------")
	for _, r := range list.Records {
		fmt.Fprintf(w, "  %d\t%.2f\t%.2f\t%.2f\t%.2f\t%d\n",
			r.ID, r.Temperature, r.Humidity, r.Pressure, r.Airflow, len(r.Parameters.FailurePredictions))
	}
	return w.Flush()
}

func cmdAgents(ctx context.Context, c *gateway.ControlClient) error {
	list, err := c.ListAgents(ctx)
	if err != nil {
		return fmt.Errorf("ListAgents: %w", err)
	}
	if len(list.Agents) == 0 {
		fmt.Println("No agents running.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tSTATE\tPREDICTOR\tINBOX\tPROCESSED\tFAILED")
	fmt.Fprintln(w, "  --\t-----\t---------\t-----\t---------\t------")
	for _, a := range list.Agents {
		fmt.Fprintf(w, "  %s\t%d\t%s\t%d/%d\t%d\t%d\n",
			a.ID, a.StateID, a.Predictor, a.Pending, a.Capacity, a.Processed, a.Failed)
	}
	return w.Flush()
}

// parseWire builds a message from flags. --record reads a state record as
// JSON from a file, or stdin for "-".
func parseWire(name string, args []string) (string, agent.Wire, error) {
	var (
		agentID    string
		kind       string
		target     int64
		components []string
		params     []string
		minDegree  float64
		recordPath string
	)
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.StringVar(&agentID, "agent", "", "deliver to this agent instead of the target owner")
	flags.StringVarP(&kind, "kind", "k", "", "message kind")
	flags.Int64VarP(&target, "target", "t", 0, "target state id")
	flags.StringSliceVar(&components, "component", nil, "component to predict (repeatable)")
	flags.StringArrayVar(&params, "param", nil, "scalar update as name=value (repeatable)")
	flags.Float64Var(&minDegree, "min-degree", 0, "minimum correlation degree")
	flags.StringVar(&recordPath, "record", "", "state record JSON file for state_updated")
	if err := flags.Parse(args); err != nil {
		return "", agent.Wire{}, err
	}
	if kind == "" {
		return "", agent.Wire{}, errors.New("--kind is required")
	}

	w := agent.Wire{Kind: agent.Kind(kind), TargetID: target, Components: components, MinDegree: minDegree}
	if len(params) > 0 {
		w.Params = make(map[string]float64, len(params))
		for _, p := range params {
			k, v, ok := strings.Cut(p, "=")
			if !ok {
				return "", agent.Wire{}, fmt.Errorf("invalid --param %q (want name=value)", p)
			}
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return "", agent.Wire{}, fmt.Errorf("invalid --param %q: %w", p, err)
			}
			w.Params[k] = f
		}
	}
	if recordPath != "" {
		var data []byte
		var err error
		if recordPath == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(recordPath)
		}
		if err != nil {
			return "", agent.Wire{}, fmt.Errorf("reading record: %w", err)
		}
		w.Record = new(state.Record)
		if err := json.Unmarshal(data, w.Record); err != nil {
			return "", agent.Wire{}, fmt.Errorf("decoding record: %w", err)
		}
	}
	return agentID, w, nil
}

func cmdSend(ctx context.Context, c *gateway.ControlClient, args []string, broadcast bool) error {
	name := "send"
	if broadcast {
		name = "broadcast"
	}
	agentID, msg, err := parseWire(name, args)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	if broadcast {
		resp, err := c.Broadcast(ctx, msg)
		if err != nil {
			return fmt.Errorf("Broadcast: %w", err)
		}
		green.Printf("  ✓ delivered to %d agents", resp.Delivered)
		if resp.Dropped > 0 {
			color.New(color.FgYellow).Printf(" (%d dropped)", resp.Dropped)
		}
		fmt.Println()
		return nil
	}

	resp, err := c.SendMessage(ctx, agentID, msg)
	if err != nil {
		return fmt.Errorf("SendMessage: %w", err)
	}
	green.Printf("  ✓ %s handled by %s\n", resp.Kind, resp.AgentID)
	return nil
}

func cmdCorrelate(ctx context.Context, c *gateway.ControlClient, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: hvac-admin correlate <device> <device>")
	}
	a, err := parseID(args[0])
	if err != nil {
		return err
	}
	b, err := parseID(args[1])
	if err != nil {
		return err
	}
	resp, err := c.Correlate(ctx, a, b)
	if err != nil {
		return fmt.Errorf("Correlate: %w", err)
	}
	fmt.Printf("  Correlation %d: devices %d and %d, degree %.4f\n",
		resp.Record.ID, resp.Record.DeviceA, resp.Record.DeviceB, resp.Record.Degree)
	if resp.Notified {
		color.New(color.FgYellow).Println("  ! above alert threshold, notification sent")
	}
	return nil
}

func cmdCrossCheck(ctx context.Context, c *gateway.ControlClient, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: hvac-admin crosscheck <device>")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	resp, err := c.CrossCheck(ctx, id)
	if err != nil {
		return fmt.Errorf("CrossCheck: %w", err)
	}
	return printJSON(resp)
}

func cmdDashboard(ctx context.Context, c *gateway.ControlClient) error {
	stats, err := c.Dashboard(ctx)
	if err != nil {
		return fmt.Errorf("Dashboard: %w", err)
	}
	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Dashboard")
	cyan.Println("  ---------")
	fmt.Printf("  Customers:       %d\n", stats.Customers)
	fmt.Printf("  Devices:         %d\n", stats.Devices)
	fmt.Printf("  Active tickets:  %d\n", stats.ActiveTickets)
	fmt.Printf("  Average degree:  %.4f\n", stats.AverageDegree)
	fmt.Println()
	return nil
}

// getToken reads HVAC_TOKEN, then ~/.config/hvac-mesh/token.
func getToken() string {
	if token := os.Getenv("HVAC_TOKEN"); token != "" {
		return token
	}
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	data, err := os.ReadFile(filepath.Join(configDir, "hvac-mesh", "token"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
