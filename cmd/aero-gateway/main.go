// Command aero-gateway drives a media gateway's HTTP API from the shell:
// sessions, plugin handles, videoroom rooms, publishing and trickle.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/config"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/gateway"
)

func main() {
	defaults, err := config.GatewayFromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr, defaults); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode is 3 for errors the gateway reported and 1 for everything else.
func exitCode(err error) int {
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		return 3
	}
	return 1
}
