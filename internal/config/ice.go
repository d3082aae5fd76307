package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

const (
	envICEServersJSON = "AERO_ICE_SERVERS_JSON"

	envStunURLs       = "AERO_STUN_URLS"
	envTurnURLs       = "AERO_TURN_URLS"
	envTurnUsername   = "AERO_TURN_USERNAME"
	envTurnCredential = "AERO_TURN_CREDENTIAL"
)

var (
	errMissingURLs    = errors.New("missing urls")
	errEmptyURL       = errors.New("urls must not contain empty entries")
	errTURNNeedsCreds = errors.New("turn urls require username and credential")
	errUnsupportedICE = errors.New("unsupported url scheme")
)

// iceOptions holds the raw ICE settings before they are turned into the list
// served at GET /webrtc/ice. A JSON list wins over the convenience settings.
type iceOptions struct {
	serversJSON    string
	stunURLs       string
	turnURLs       string
	turnUsername   string
	turnCredential string
}

func (o iceOptions) parse() ([]webrtc.ICEServer, error) {
	if raw := strings.TrimSpace(o.serversJSON); raw != "" {
		servers, err := ParseICEServersJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", envICEServersJSON, err)
		}
		return servers, nil
	}
	return ParseICEServersFromConvenienceEnv(o.stunURLs, o.turnURLs, o.turnUsername, o.turnCredential)
}

type iceServerEntry struct {
	URLs       urlList `json:"urls"`
	Username   string  `json:"username,omitempty"`
	Credential string  `json:"credential,omitempty"`
}

// urlList accepts both "urls": "stun:..." and "urls": ["stun:...", ...], the
// two shapes RTCIceServer allows.
type urlList []string

func (l *urlList) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*l = urlList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

// ParseICEServersJSON parses a browser-style RTCIceServer list.
func ParseICEServersJSON(raw string) ([]webrtc.ICEServer, error) {
	var entries []iceServerEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, err
	}

	servers := make([]webrtc.ICEServer, 0, len(entries))
	for i, e := range entries {
		server := newICEServer(splitList(e.URLs), e.Username, e.Credential)
		if err := validateICEServer(server); err != nil {
			return nil, fmt.Errorf("iceServers[%d]: %w", i, err)
		}
		servers = append(servers, server)
	}
	return servers, nil
}

// ParseICEServersFromConvenienceEnv builds at most two entries: one for the
// STUN list and one for the TURN list sharing a single credential.
func ParseICEServersFromConvenienceEnv(stunURLs, turnURLs, turnUsername, turnCredential string) ([]webrtc.ICEServer, error) {
	var servers []webrtc.ICEServer

	if urls := splitCommaSeparated(stunURLs); len(urls) > 0 {
		server := newICEServer(urls, "", "")
		if err := validateICEServer(server); err != nil {
			return nil, fmt.Errorf("%s: %w", envStunURLs, err)
		}
		servers = append(servers, server)
	}

	if urls := splitCommaSeparated(turnURLs); len(urls) > 0 {
		server := newICEServer(urls, turnUsername, turnCredential)
		if err := validateICEServer(server); err != nil {
			return nil, fmt.Errorf("%s (with %s/%s): %w", envTurnURLs, envTurnUsername, envTurnCredential, err)
		}
		servers = append(servers, server)
	}

	return servers, nil
}

func newICEServer(urls []string, username, credential string) webrtc.ICEServer {
	server := webrtc.ICEServer{
		URLs:     urls,
		Username: strings.TrimSpace(username),
	}
	if c := strings.TrimSpace(credential); c != "" {
		server.Credential = c
	}
	return server
}

func splitList(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

func splitCommaSeparated(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return splitList(strings.Split(value, ","))
}

func validateICEServer(server webrtc.ICEServer) error {
	if len(server.URLs) == 0 {
		return errMissingURLs
	}

	needsCreds := false
	for _, u := range server.URLs {
		if strings.TrimSpace(u) == "" {
			return errEmptyURL
		}
		scheme, _, _ := strings.Cut(u, ":")
		switch scheme {
		case "stun", "stuns":
		case "turn", "turns":
			needsCreds = true
		default:
			return fmt.Errorf("%w: %q", errUnsupportedICE, u)
		}
	}

	if needsCreds {
		cred, _ := server.Credential.(string)
		if server.Username == "" || cred == "" {
			return errTURNNeedsCreds
		}
	}
	return nil
}
