package main

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/config"
)

type recordedLog struct {
	level slog.Level
	msg   string
	attrs map[string]any
}

type recordingHandler struct {
	mu      *sync.Mutex
	records *[]recordedLog
	attrs   []slog.Attr
	groups  []string
}

func newRecordingLogger() (*slog.Logger, func() []recordedLog) {
	mu := &sync.Mutex{}
	records := &[]recordedLog{}
	h := &recordingHandler{mu: mu, records: records}
	logger := slog.New(h)
	return logger, func() []recordedLog {
		mu.Lock()
		defer mu.Unlock()
		out := make([]recordedLog, len(*records))
		copy(out, *records)
		return out
	}
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	rec := recordedLog{
		level: r.Level,
		msg:   r.Message,
		attrs: map[string]any{},
	}
	for _, a := range h.attrs {
		rec.attrs[h.key(a.Key)] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		rec.attrs[h.key(a.Key)] = a.Value.Any()
		return true
	})

	h.mu.Lock()
	*h.records = append(*h.records, rec)
	h.mu.Unlock()
	return nil
}

func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := h.clone()
	nh.attrs = append(nh.attrs, attrs...)
	return nh
}

func (h *recordingHandler) WithGroup(name string) slog.Handler {
	nh := h.clone()
	nh.groups = append(nh.groups, name)
	return nh
}

func (h *recordingHandler) clone() *recordingHandler {
	return &recordingHandler{
		mu:      h.mu,
		records: h.records,
		attrs:   append([]slog.Attr(nil), h.attrs...),
		groups:  append([]string(nil), h.groups...),
	}
}

func (h *recordingHandler) key(k string) string {
	if len(h.groups) == 0 {
		return k
	}
	return strings.Join(h.groups, ".") + "." + k
}

func warningCodes(records []recordedLog) map[string]bool {
	out := map[string]bool{}
	for _, r := range records {
		if r.level != slog.LevelWarn {
			continue
		}
		if code, ok := r.attrs["warning_code"].(string); ok {
			out[code] = true
		}
	}
	return out
}

func TestStartupSecurityWarnings(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.Config
		want []string
		deny []string
	}{
		{
			name: "quiet config",
			cfg: config.Config{
				Mode:            config.ModeProd,
				AllowedOrigins:  []string{"https://app.example.com"},
				RecordingAPIKey: "secret",
			},
			deny: []string{"allowed_origins_wildcard", "recording_auth_disabled", "allowed_origins_empty_in_prod"},
		},
		{
			name: "wildcard origins",
			cfg: config.Config{
				Mode:            config.ModeDev,
				AllowedOrigins:  []string{"*"},
				RecordingAPIKey: "secret",
			},
			want: []string{"allowed_origins_wildcard"},
		},
		{
			name: "recording auth disabled",
			cfg:  config.Config{Mode: config.ModeDev},
			want: []string{"recording_auth_disabled"},
			deny: []string{"allowed_origins_empty_in_prod"},
		},
		{
			name: "empty origins in prod",
			cfg:  config.Config{Mode: config.ModeProd, RecordingAPIKey: "secret"},
			want: []string{"allowed_origins_empty_in_prod"},
		},
		{
			name: "large limits",
			cfg: config.Config{
				Mode:                     config.ModeDev,
				RecordingAPIKey:          "secret",
				MaxSignalingMessageBytes: 4 << 20,
				SignalingWSIdleTimeout:   time.Hour,
			},
			want: []string{"max_signaling_message_bytes_large", "signaling_ws_idle_timeout_large"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			logger, records := newRecordingLogger()
			logStartupSecurityWarnings(logger, tc.cfg)

			got := warningCodes(records())
			for _, code := range tc.want {
				if !got[code] {
					t.Fatalf("missing warning_code=%s, got %#v", code, records())
				}
			}
			for _, code := range tc.deny {
				if got[code] {
					t.Fatalf("unexpected warning_code=%s", code)
				}
			}
		})
	}
}
