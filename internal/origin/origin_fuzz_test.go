package origin

import (
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func FuzzNormalizeHeader(f *testing.F) {
	f.Add("HTTPS://Example.COM:443")
	f.Add("http://010.0.0.1")
	f.Add("http://[::FFFF:192.0.2.1]")
	f.Add("http://localhost:5173/")
	f.Add("null")

	f.Add("")
	f.Add("   ")
	f.Add("ftp://example.com")
	f.Add("https://example.com/path")
	f.Add("https://example.com?query")
	f.Add("https://example.com#frag")
	f.Add("https://user@example.com")
	f.Add("https://example.com:0")
	f.Add("https://example.com:99999")
	f.Add("https://example.com,https://evil.example.com")

	f.Fuzz(func(t *testing.T, header string) {
		normalized, host, ok := NormalizeHeader(header)
		n2, h2, ok2 := NormalizeHeader(header)
		if ok != ok2 || normalized != n2 || host != h2 {
			t.Fatalf("non-deterministic result for %q", header)
		}
		if !ok {
			return
		}

		if strings.ContainsAny(normalized, " \t\r\n") {
			t.Fatalf("normalized origin contains whitespace: %q", normalized)
		}
		if normalized == "null" {
			if host != "" {
				t.Fatalf("null origin must have empty host, got %q", host)
			}
			return
		}

		scheme, rest, found := strings.Cut(normalized, "://")
		if !found || (scheme != "http" && scheme != "https") {
			t.Fatalf("normalized origin has bad scheme: %q", normalized)
		}
		if rest != host || host == "" {
			t.Fatalf("host mismatch: normalized=%q host=%q", normalized, host)
		}
		if strings.ContainsAny(host, "/?#@") {
			t.Fatalf("host contains path/query/userinfo delimiters: %q", host)
		}
		if host != strings.ToLower(host) {
			t.Fatalf("host not lowercased: %q", host)
		}
		if (scheme == "http" && strings.HasSuffix(host, ":80")) || (scheme == "https" && strings.HasSuffix(host, ":443")) {
			t.Fatalf("default port kept: %q", normalized)
		}

		u, err := url.Parse(normalized)
		if err != nil {
			t.Fatalf("url.Parse(%q): %v", normalized, err)
		}
		if u.Host != host || u.Path != "" || u.RawQuery != "" || u.Fragment != "" || u.User != nil {
			t.Fatalf("normalized origin parsed with unexpected components: %#v", u)
		}

		n3, h3, ok3 := NormalizeHeader(normalized)
		if !ok3 || n3 != normalized || h3 != host {
			t.Fatalf("NormalizeHeader not idempotent: %q -> %q (%q, %v)", normalized, n3, h3, ok3)
		}
	})
}

func FuzzPolicyCheck(f *testing.F) {
	f.Add("https://app.example.com", "app.example.com:443", "")
	f.Add("http://010.0.0.1", "010.0.0.1", "")
	f.Add("http://[::FFFF:192.0.2.1]", "[::ffff:192.0.2.1]:80", "")
	f.Add("null", "app.example.com", "")
	f.Add("https://good.example.com", "app.example.com", "*")
	f.Add("https://good.example.com", "app.example.com", "https://good.example.com,https://other.example.com")

	f.Fuzz(func(t *testing.T, header, requestHost, allowedList string) {
		var allowed []string
		if allowedList != "" {
			allowed = strings.Split(allowedList, ",")
			if len(allowed) > 8 {
				allowed = allowed[:8]
			}
		}

		req := httptest.NewRequest("GET", "/ws", nil)
		req.Host = requestHost
		req.Header.Set("Origin", header)

		// Must not panic on arbitrary input.
		_, _ = NewPolicy(allowed).Check(req)

		normalized, originHost, ok := NormalizeHeader(header)
		if !ok {
			if strings.TrimSpace(header) != "" {
				if _, allowedAny := NewPolicy([]string{"*"}).Check(req); allowedAny {
					t.Fatalf("malformed origin %q accepted by wildcard policy", header)
				}
			}
			return
		}

		if got, pass := NewPolicy([]string{"*"}).Check(req); !pass || got != normalized {
			t.Fatalf("wildcard policy: got (%q, %v), want (%q, true)", got, pass, normalized)
		}
		if _, pass := NewPolicy([]string{normalized}).Check(req); !pass {
			t.Fatalf("exact allow-list should accept %q", normalized)
		}
		if _, pass := NewPolicy([]string{normalized + "x"}).Check(req); pass {
			t.Fatalf("mismatched allow-list should reject %q", normalized)
		}

		if normalized == "null" {
			if _, pass := NewPolicy(nil).Check(req); pass {
				t.Fatalf("null origin accepted under same-host policy")
			}
			return
		}
		req.Host = originHost
		if _, pass := NewPolicy(nil).Check(req); !pass {
			t.Fatalf("same-host policy should accept %q for host %q", normalized, originHost)
		}
	})
}
