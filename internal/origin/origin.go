// Package origin decides which browser origins may open signaling sockets and
// call the relay's HTTP API.
package origin

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Policy is either an explicit allowlist or, when empty, same-host only.
type Policy struct {
	allowAny bool
	allowed  map[string]struct{}
}

// NewPolicy builds a policy from normalized origins (see NormalizeHeader).
// The entry "*" allows every origin.
func NewPolicy(allowed []string) *Policy {
	p := &Policy{}
	for _, o := range allowed {
		if o == "*" {
			p.allowAny = true
			continue
		}
		if p.allowed == nil {
			p.allowed = make(map[string]struct{}, len(allowed))
		}
		p.allowed[o] = struct{}{}
	}
	return p
}

// Check inspects the request's Origin header. Requests without one are not
// browser cross-origin requests and pass with an empty normalized origin.
func (p *Policy) Check(r *http.Request) (normalized string, ok bool) {
	header := strings.TrimSpace(r.Header.Get("Origin"))
	if header == "" {
		return "", true
	}
	normalized, host, ok := NormalizeHeader(header)
	if !ok {
		return "", false
	}
	return normalized, p.allows(normalized, host, r.Host)
}

// CheckOrigin has the shape websocket.Upgrader expects.
func (p *Policy) CheckOrigin(r *http.Request) bool {
	_, ok := p.Check(r)
	return ok
}

func (p *Policy) allows(normalized, originHost, requestHost string) bool {
	if p.allowAny {
		return true
	}
	if len(p.allowed) > 0 {
		_, ok := p.allowed[normalized]
		return ok
	}

	// Same host[:port]. Scheme is ignored because TLS may terminate in front
	// of the relay.
	scheme, _, found := strings.Cut(normalized, "://")
	if !found {
		return false
	}
	reqHost, ok := canonicalHost(scheme, strings.ToLower(strings.TrimSpace(requestHost)))
	if !ok {
		return false
	}
	return reqHost == originHost
}

// NormalizeHeader validates an Origin header value and returns it as
// scheme://host[:port] along with its host[:port]. Default ports are dropped.
// The opaque origin "null" is returned unchanged.
func NormalizeHeader(header string) (normalized string, host string, ok bool) {
	header = strings.TrimSpace(header)
	switch header {
	case "":
		return "", "", false
	case "null":
		return "null", "", true
	}

	u, err := url.Parse(header)
	if err != nil || u.Host == "" || u.User != nil || u.RawQuery != "" || u.Fragment != "" {
		return "", "", false
	}
	if u.Path != "" && u.Path != "/" {
		return "", "", false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", false
	}

	host, ok = canonicalHost(scheme, u.Host)
	if !ok {
		return "", "", false
	}
	return scheme + "://" + host, host, true
}

func canonicalHost(scheme, authority string) (string, bool) {
	name, rawPort, ok := splitHostPort(authority)
	if !ok {
		return "", false
	}
	name = strings.ToLower(name)
	if name == "" {
		return "", false
	}

	var port uint64
	if rawPort != "" {
		n, err := strconv.ParseUint(rawPort, 10, 16)
		if err != nil || n == 0 {
			return "", false
		}
		port = n
	}
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		port = 0
	}

	if strings.Contains(name, ":") {
		name = "[" + name + "]"
	}
	if port != 0 {
		name += ":" + strconv.FormatUint(port, 10)
	}
	return name, true
}

// splitHostPort splits host[:port], unbracketing IPv6 literals.
func splitHostPort(authority string) (name, port string, ok bool) {
	if authority == "" {
		return "", "", false
	}
	if rest, bracketed := strings.CutPrefix(authority, "["); bracketed {
		literal, after, closed := strings.Cut(rest, "]")
		if !closed {
			return "", "", false
		}
		if after == "" {
			return literal, "", true
		}
		p, hasPort := strings.CutPrefix(after, ":")
		if !hasPort || p == "" {
			return "", "", false
		}
		return literal, p, true
	}

	name, port, found := strings.Cut(authority, ":")
	if !found {
		return authority, "", true
	}
	if name == "" || port == "" || strings.Contains(port, ":") {
		return "", "", false
	}
	return name, port, true
}
