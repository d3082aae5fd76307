package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/config"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/gateway"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/metrics"
)

type cli struct {
	gw          config.Gateway
	verbose     bool
	showMetrics bool

	out     io.Writer
	errOut  io.Writer
	client  *gateway.Client
	metrics *metrics.Metrics
}

// run executes one command line. With --metrics, the gateway request
// counters and latencies are written to errOut afterwards, whether or not the
// command failed.
func run(ctx context.Context, args []string, out, errOut io.Writer, defaults config.Gateway) error {
	c := &cli{gw: defaults, out: out, errOut: errOut}
	root := c.rootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if c.showMetrics {
		if werr := c.metrics.WriteText(errOut, "gateway_"); werr != nil && err == nil {
			err = werr
		}
	}
	return err
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "aero-gateway",
		Short: "Operate a media gateway over its HTTP API",
		Long: `aero-gateway sends single requests to a media gateway and prints the
result as JSON. Session and handle ids are passed positionally so commands
compose in shell scripts.

Examples:
  SESSION=$(aero-gateway session create | jq .session_id)
  HANDLE=$(aero-gateway handle attach "$SESSION" | jq .handle_id)
  aero-gateway room create "$SESSION" "$HANDLE" --room 1234 --publishers 6
  aero-gateway publish "$SESSION" "$HANDLE" --room 1234 --offer offer.sdp`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.connect()
		},
	}
	root.SetOut(c.out)
	root.SetErr(c.errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&c.gw.URL, "gateway-url", c.gw.URL, "Gateway base URL (env AERO_GATEWAY_URL)")
	pf.StringVar(&c.gw.APISecret, "api-secret", c.gw.APISecret, "Gateway API secret (env AERO_GATEWAY_API_SECRET)")
	pf.StringVar(&c.gw.Token, "token", c.gw.Token, "Gateway auth token (env AERO_GATEWAY_TOKEN)")
	pf.DurationVar(&c.gw.Timeout, "timeout", c.gw.Timeout, "Per-request timeout (env AERO_GATEWAY_TIMEOUT)")
	pf.BoolVarP(&c.verbose, "verbose", "v", false, "Log each gateway request to stderr")
	pf.BoolVar(&c.showMetrics, "metrics", false, "Print gateway request metrics (Prometheus text format) to stderr when done")

	root.AddCommand(
		c.sessionCmd(),
		c.handleCmd(),
		c.roomCmd(),
		c.publishCmd(),
		c.trickleCmd(),
	)
	return root
}

func (c *cli) connect() error {
	if err := c.gw.Validate(); err != nil {
		return err
	}
	level := slog.LevelWarn
	if c.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(c.errOut, &slog.HandlerOptions{Level: level}))
	c.metrics = metrics.New()

	c.client = gateway.New(c.gw.URL,
		gateway.WithHTTPClient(&http.Client{Timeout: c.gw.Timeout}),
		gateway.WithLogger(logger),
		gateway.WithMetrics(c.metrics),
		gateway.WithAPISecret(c.gw.APISecret),
		gateway.WithToken(c.gw.Token),
	)
	return nil
}

func (c *cli) print(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseSession(raw string) (gateway.SessionID, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid session id %q", raw)
	}
	return gateway.SessionID(id), nil
}

func parseSessionHandle(args []string) (gateway.SessionID, gateway.HandleID, error) {
	session, err := parseSession(args[0])
	if err != nil {
		return 0, 0, err
	}
	id, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid handle id %q", args[1])
	}
	return session, gateway.HandleID(id), nil
}
