package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	envVarGatewayURL       = "AERO_GATEWAY_URL"
	envVarGatewayAPISecret = "AERO_GATEWAY_API_SECRET"
	envVarGatewayToken     = "AERO_GATEWAY_TOKEN"
	envVarGatewayTimeout   = "AERO_GATEWAY_TIMEOUT"

	DefaultGatewayURL     = "http://127.0.0.1:8088/janus"
	DefaultGatewayTimeout = 10 * time.Second
)

// Gateway holds the settings for the aero-gateway operator CLI. Values
// resolved here are flag defaults; the CLI's own flags override them.
type Gateway struct {
	URL       string
	APISecret string
	Token     string
	Timeout   time.Duration
}

// GatewayFromEnv resolves gateway defaults from the environment and, when
// AERO_ROOM_RELAY_CONFIG_FILE is set, the relay's YAML config file.
func GatewayFromEnv() (Gateway, error) {
	return gatewayFromLookup(os.LookupEnv)
}

func gatewayFromLookup(lookupEnv func(string) (string, bool)) (Gateway, error) {
	lookup := lookupEnv
	if path := envOrDefault(lookupEnv, envVarConfigFile, ""); path != "" {
		file, err := readFileValues(path)
		if err != nil {
			return Gateway{}, err
		}
		lookup = chainLookup(lookupEnv, file.lookup)
	}

	timeout, err := envDurationOrDefault(lookup, envVarGatewayTimeout, DefaultGatewayTimeout)
	if err != nil {
		return Gateway{}, err
	}
	return Gateway{
		URL:       envOrDefault(lookup, envVarGatewayURL, DefaultGatewayURL),
		APISecret: envOrDefault(lookup, envVarGatewayAPISecret, ""),
		Token:     envOrDefault(lookup, envVarGatewayToken, ""),
		Timeout:   timeout,
	}, nil
}

// Validate checks the final values after flags have been applied and
// normalizes the URL.
func (g *Gateway) Validate() error {
	raw := strings.TrimSpace(g.URL)
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s/--gateway-url %q: %w", envVarGatewayURL, g.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid %s/--gateway-url %q: scheme must be http or https", envVarGatewayURL, g.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid %s/--gateway-url %q: missing host", envVarGatewayURL, g.URL)
	}
	if g.Timeout <= 0 {
		return fmt.Errorf("%s/--timeout must be > 0", envVarGatewayTimeout)
	}
	g.URL = strings.TrimRight(raw, "/")
	return nil
}
