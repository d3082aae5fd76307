package signaling

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go4org/hashtriemap"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/auth"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/config"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/origin"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/rooms"
)

const maxRecordingBodyBytes = 64 * 1024

// Config wires together the runtime dependencies for the signaling service.
type Config struct {
	Registry *rooms.Registry
	Logger   *slog.Logger
	Metrics  *metrics.Metrics

	// Origins gates WebSocket upgrades. If nil, every origin is accepted.
	Origins *origin.Policy

	// RecordingAuth protects POST /recording/ice-candidate when enabled.
	RecordingAuth auth.APIKeyVerifier

	IdleTimeout  time.Duration
	PingInterval time.Duration

	MaxMessageBytes      int64
	MaxMessagesPerSecond int
	SendQueueSize        int
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Registry == nil {
		c.Registry = rooms.NewRegistry(c.Logger, c.Metrics)
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = config.DefaultSignalingWSIdleTimeout
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.IdleTimeout {
		c.PingInterval = c.IdleTimeout / 3
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = config.DefaultMaxSignalingMessageBytes
	}
	if c.MaxMessagesPerSecond <= 0 {
		c.MaxMessagesPerSecond = config.DefaultMaxSignalingMessagesPerSecond
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = config.DefaultSendQueueSize
	}
	return c
}

// Server implements the relay's signaling surface.
//
// Endpoints:
//   - GET  /ws                       : room signaling WebSocket
//   - POST /recording/ice-candidate  : ICE candidate push from the recording component
//   - GET  /rooms                    : room membership snapshot (same auth as recording)
type Server struct {
	cfg      Config
	log      *slog.Logger
	metrics  *metrics.Metrics
	registry *rooms.Registry
	upgrader websocket.Upgrader

	closed atomic.Bool
	conns  hashtriemap.HashTrieMap[uuid.UUID, *conn]
}

func NewServer(cfg Config) *Server {
	cfg = cfg.withDefaults()
	s := &Server{
		cfg:      cfg,
		log:      cfg.Logger,
		metrics:  cfg.Metrics,
		registry: cfg.Registry,
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if cfg.Origins == nil {
				return true
			}
			return cfg.Origins.CheckOrigin(r)
		},
	}
	return s
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("POST /recording/ice-candidate", s.handleRecordingICECandidate)
	mux.HandleFunc("GET /rooms", s.handleRooms)
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// Registry exposes the room registry, e.g. for in-process forwarding.
func (s *Server) Registry() *rooms.Registry { return s.registry }

// Close closes every live signaling connection. Each one runs its normal
// disconnect cleanup. Upgrades after Close are refused.
func (s *Server) Close() {
	s.closed.Store(true)
	s.conns.Range(func(_ uuid.UUID, c *conn) bool {
		c.closeWith(websocket.CloseGoingAway, "server shutting down")
		c.shutdown()
		return true
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.closed.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		s.log.Debug("websocket upgrade failed", "err", err, "remote_addr", r.RemoteAddr)
		return
	}

	c := newConn(s, ws, r.RemoteAddr)
	s.conns.Store(c.id, c)
	s.metrics.ConnectionOpened()
	c.log.Debug("signaling connection opened")
	if s.closed.Load() {
		// Raced with Close; make sure this connection does not outlive it.
		c.shutdown()
	}
	c.run()
}

func (s *Server) untrack(c *conn) {
	if _, ok := s.conns.LoadAndDelete(c.id); ok {
		s.metrics.ConnectionClosed()
	}
}

type recordingICECandidateRequest struct {
	TargetUserID string          `json:"targetUserId"`
	RoomID       string          `json:"roomId"`
	Candidate    json.RawMessage `json:"candidate"`
}

func (s *Server) handleRecordingICECandidate(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.RecordingAuth.VerifyRequest(r); err != nil {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRecordingBodyBytes)
	var req recordingICECandidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "too_large", "request body too large")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	switch {
	case req.TargetUserID == "":
		writeJSONError(w, http.StatusBadRequest, "bad_request", "targetUserId is required")
		return
	case req.RoomID == "":
		writeJSONError(w, http.StatusBadRequest, "bad_request", "roomId is required")
		return
	case isAbsent(req.Candidate):
		writeJSONError(w, http.StatusBadRequest, "bad_request", "candidate is required")
		return
	}

	delivered := s.registry.Forward(req.RoomID, req.TargetUserID, rooms.NewICECandidateRecordingFrame(req.Candidate))
	s.metrics.RecordingForward(delivered)
	s.log.Debug("recording ice candidate forwarded",
		"room", req.RoomID,
		"participant", req.TargetUserID,
		"delivered", delivered,
	)

	// Presence is not reported back to the caller.
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type roomsResponse struct {
	Rooms map[string][]string `json:"rooms"`
}

// handleRooms is gated by the WebSocket origin policy and the recording key:
// participant ids are routing keys.
func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	if !s.upgrader.CheckOrigin(r) {
		writeJSONError(w, http.StatusForbidden, "forbidden", "origin not allowed")
		return
	}
	if err := s.cfg.RecordingAuth.VerifyRequest(r); err != nil {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, roomsResponse{Rooms: s.registry.Snapshot()})
}

type httpErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, httpErrorResponse{Code: code, Message: message})
}
