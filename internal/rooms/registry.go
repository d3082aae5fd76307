// Package rooms tracks which participant connections belong to which room and
// routes frames between them.
//
// All membership changes and the fan-out that follows them happen under a
// single registry mutex, so peer lists and join/leave notifications are
// consistent across concurrent connections. Peer.Send must never block.
package rooms

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/metrics"
)

var (
	ErrQueueFull  = errors.New("peer send queue full")
	ErrPeerClosed = errors.New("peer closed")
)

// Peer is one participant connection's outbound side.
type Peer interface {
	// ConnID identifies the underlying connection in logs.
	ConnID() string
	// Send enqueues f without blocking. It returns ErrQueueFull or
	// ErrPeerClosed when the frame cannot be queued.
	Send(f Frame) error
}

type Registry struct {
	log     *slog.Logger
	metrics *metrics.Metrics

	mu    sync.Mutex
	rooms map[string]map[string]Peer
}

func NewRegistry(logger *slog.Logger, m *metrics.Metrics) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		log:     logger,
		metrics: m,
		rooms:   make(map[string]map[string]Peer),
	}
}

// Join registers p as id in room. p receives the ids already present and
// every other member is told about id. A previous entry for id in the same
// room is replaced without notice to its handle.
func (r *Registry) Join(room, id string, p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[room]
	if members == nil {
		members = make(map[string]Peer)
		r.rooms[room] = members
		r.metrics.SetRooms(len(r.rooms))
	}

	others := make([]string, 0, len(members))
	for other := range members {
		if other != id {
			others = append(others, other)
		}
	}
	sort.Strings(others)
	members[id] = p

	r.send(room, id, p, newPeersFrame(others))
	announce := NewPeerFrame{Type: TypeNewPeer, ID: id}
	for _, other := range others {
		r.send(room, other, members[other], announce)
	}
}

// Signal delivers payload from one participant to another in the same room.
// It reports whether the recipient was present.
func (r *Registry) Signal(room, to, from string, payload json.RawMessage) bool {
	return r.Forward(room, to, SignalFrame{Type: TypeSignal, From: from, Payload: payload})
}

// Chat sends message to every member of room except sender.
func (r *Registry) Chat(room, from, message string, sender Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f := ChatFrame{Type: TypeChat, From: from, Message: message}
	for id, p := range r.rooms[room] {
		if p == sender {
			continue
		}
		r.send(room, id, p, f)
	}
}

// Leave removes id from room if p still owns that entry and tells the
// remaining members. It reports whether anything was removed.
func (r *Registry) Leave(room, id string, p Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[room]
	if cur, ok := members[id]; !ok || cur != p {
		return false
	}
	delete(members, id)
	if len(members) == 0 {
		delete(r.rooms, room)
		r.metrics.SetRooms(len(r.rooms))
		return true
	}

	f := PeerLeftFrame{Type: TypePeerLeft, ID: id}
	for other, op := range members {
		r.send(room, other, op, f)
	}
	return true
}

// Forward delivers f to target in room, best-effort. It reports whether the
// target was present; an absent room or target is not an error.
func (r *Registry) Forward(room, target string, f Frame) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.rooms[room][target]
	if !ok {
		r.metrics.FrameDropped(metrics.DropReasonUnknownTarget)
		return false
	}
	r.send(room, target, p, f)
	return true
}

// Snapshot returns every room's participant ids, sorted.
func (r *Registry) Snapshot() map[string][]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string][]string, len(r.rooms))
	for room, members := range r.rooms {
		ids := make([]string, 0, len(members))
		for id := range members {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		out[room] = ids
	}
	return out
}

// send must be called with r.mu held. Failures are logged and counted; they
// never reach the caller.
func (r *Registry) send(room, id string, p Peer, f Frame) {
	err := p.Send(f)
	if err == nil {
		return
	}

	reason := metrics.DropReasonPeerClosed
	if errors.Is(err, ErrQueueFull) {
		reason = metrics.DropReasonQueueFull
	}
	r.metrics.FrameDropped(reason)
	r.log.Warn("dropped signaling frame",
		"room", room,
		"participant", id,
		"conn_id", p.ConnID(),
		"type", f.FrameType(),
		"err", err,
	)
}
