package rooms

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sort"
	"sync"
	"testing"
)

type fakePeer struct {
	id string

	mu     sync.Mutex
	frames []Frame
	err    error
}

func newFakePeer(id string) *fakePeer { return &fakePeer{id: id} }

func (p *fakePeer) ConnID() string { return p.id }

func (p *fakePeer) Send(f Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.frames = append(p.frames, f)
	return nil
}

func (p *fakePeer) received() []Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Frame(nil), p.frames...)
}

func (p *fakePeer) ofType(typ string) []Frame {
	var out []Frame
	for _, f := range p.received() {
		if f.FrameType() == typ {
			out = append(out, f)
		}
	}
	return out
}

func newTestRegistry() *Registry {
	return NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
}

func TestJoin_PeersAndNewPeer(t *testing.T) {
	r := newTestRegistry()
	a, b := newFakePeer("a"), newFakePeer("b")

	r.Join("r1", "A", a)
	got := a.received()
	if len(got) != 1 {
		t.Fatalf("A frames=%v, want 1", got)
	}
	peers, ok := got[0].(PeersFrame)
	if !ok || peers.Peers == nil || len(peers.Peers) != 0 {
		t.Fatalf("A first frame=%#v, want empty peers list", got[0])
	}

	r.Join("r1", "B", b)
	if got := b.received(); len(got) != 1 || !reflect.DeepEqual(got[0], PeersFrame{Type: TypePeers, Peers: []string{"A"}}) {
		t.Fatalf("B frames=%#v", got)
	}
	if got := a.ofType(TypeNewPeer); len(got) != 1 || got[0].(NewPeerFrame).ID != "B" {
		t.Fatalf("A new-peer frames=%#v", got)
	}
}

func TestJoin_PeersFrameMarshalsEmptyArray(t *testing.T) {
	b, err := json.Marshal(newPeersFrame(nil))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"type":"peers","peers":[]}` {
		t.Fatalf("json=%s", b)
	}
}

func TestJoin_SameIDReplacesEntry(t *testing.T) {
	r := newTestRegistry()
	first, second, other := newFakePeer("1"), newFakePeer("2"), newFakePeer("3")

	r.Join("r", "A", first)
	r.Join("r", "O", other)
	r.Join("r", "A", second)

	if got := second.received(); len(got) != 1 || !reflect.DeepEqual(got[0].(PeersFrame).Peers, []string{"O"}) {
		t.Fatalf("second frames=%#v", got)
	}
	if !r.Signal("r", "A", "O", json.RawMessage(`1`)) {
		t.Fatalf("signal to A not delivered")
	}
	if len(first.ofType(TypeSignal)) != 0 || len(second.ofType(TypeSignal)) != 1 {
		t.Fatalf("signal went to the replaced handle")
	}

	// The replaced handle no longer owns the entry.
	if r.Leave("r", "A", first) {
		t.Fatalf("Leave by replaced handle removed the newer owner")
	}
	if ids := r.Snapshot()["r"]; !reflect.DeepEqual(ids, []string{"A", "O"}) {
		t.Fatalf("snapshot=%v", ids)
	}
}

func TestSignal(t *testing.T) {
	r := newTestRegistry()
	a, b, c := newFakePeer("a"), newFakePeer("b"), newFakePeer("c")
	r.Join("r1", "A", a)
	r.Join("r1", "B", b)
	r.Join("r2", "C", c)

	payload := json.RawMessage(`{"sdp":"v=0\r\n...","type":"offer"}`)
	if !r.Signal("r1", "B", "A", payload) {
		t.Fatalf("Signal returned false for present recipient")
	}
	got := b.ofType(TypeSignal)
	if len(got) != 1 {
		t.Fatalf("B signal frames=%d, want 1", len(got))
	}
	sig := got[0].(SignalFrame)
	if sig.From != "A" || string(sig.Payload) != string(payload) {
		t.Fatalf("signal=%#v", sig)
	}

	t.Run("absent recipient is dropped", func(t *testing.T) {
		if r.Signal("r1", "Z", "A", payload) {
			t.Fatalf("Signal returned true for absent recipient")
		}
		if r.Signal("nope", "B", "A", payload) {
			t.Fatalf("Signal returned true for absent room")
		}
	})

	t.Run("routing stays within the room", func(t *testing.T) {
		if r.Signal("r1", "C", "A", payload) {
			t.Fatalf("Signal crossed rooms")
		}
		if len(c.ofType(TypeSignal)) != 0 {
			t.Fatalf("C received a signal")
		}
	})

	if len(a.ofType(TypeSignal)) != 0 {
		t.Fatalf("sender received its own signal")
	}
}

func TestChat_ExcludesSender(t *testing.T) {
	r := newTestRegistry()
	a, b, c := newFakePeer("a"), newFakePeer("b"), newFakePeer("c")
	r.Join("r", "A", a)
	r.Join("r", "B", b)
	r.Join("r", "C", c)

	r.Chat("r", "A", "hello", a)

	if got := a.ofType(TypeChat); len(got) != 0 {
		t.Fatalf("sender got chat: %#v", got)
	}
	for name, p := range map[string]*fakePeer{"B": b, "C": c} {
		got := p.ofType(TypeChat)
		if len(got) != 1 || got[0] != (ChatFrame{Type: TypeChat, From: "A", Message: "hello"}) {
			t.Fatalf("%s chat frames=%#v", name, got)
		}
	}
}

func TestLeave(t *testing.T) {
	r := newTestRegistry()
	a, b, c := newFakePeer("a"), newFakePeer("b"), newFakePeer("c")
	r.Join("r", "A", a)
	r.Join("r", "B", b)
	r.Join("r", "C", c)

	if !r.Leave("r", "A", a) {
		t.Fatalf("Leave returned false")
	}
	for name, p := range map[string]*fakePeer{"B": b, "C": c} {
		got := p.ofType(TypePeerLeft)
		if len(got) != 1 || got[0].(PeerLeftFrame).ID != "A" {
			t.Fatalf("%s peer-left frames=%#v", name, got)
		}
	}
	if got := a.ofType(TypePeerLeft); len(got) != 0 {
		t.Fatalf("leaver notified of its own departure")
	}
	if r.Leave("r", "A", a) {
		t.Fatalf("second Leave returned true")
	}
	if got := b.ofType(TypePeerLeft); len(got) != 1 {
		t.Fatalf("B got %d peer-left frames after double leave, want 1", len(got))
	}

	r.Leave("r", "B", b)
	r.Leave("r", "C", c)
	if _, ok := r.Snapshot()["r"]; ok {
		t.Fatalf("empty room still listed")
	}
}

func TestForward(t *testing.T) {
	r := newTestRegistry()
	a := newFakePeer("a")
	r.Join("r", "A", a)

	cand := json.RawMessage(`{"candidate":"candidate:1 1 udp 1 10.0.0.1 5000 typ host","sdpMid":"0"}`)
	if !r.Forward("r", "A", NewICECandidateRecordingFrame(cand)) {
		t.Fatalf("Forward returned false")
	}
	got := a.ofType(TypeICECandidateRecording)
	if len(got) != 1 || string(got[0].(ICECandidateRecordingFrame).Candidate) != string(cand) {
		t.Fatalf("forwarded frames=%#v", got)
	}
	if r.Forward("r", "missing", NewICECandidateRecordingFrame(cand)) {
		t.Fatalf("Forward to absent target returned true")
	}
}

func TestFanOutSurvivesFailedSend(t *testing.T) {
	r := newTestRegistry()
	a, broken, c := newFakePeer("a"), newFakePeer("broken"), newFakePeer("c")
	r.Join("r", "A", a)
	r.Join("r", "X", broken)
	r.Join("r", "C", c)
	broken.mu.Lock()
	broken.err = ErrQueueFull
	broken.mu.Unlock()

	r.Chat("r", "A", "hi", a)
	if len(c.ofType(TypeChat)) != 1 {
		t.Fatalf("C missed chat after a failed send to X")
	}
}

func TestConcurrentJoins(t *testing.T) {
	r := newTestRegistry()
	const n = 32

	peers := make([]*fakePeer, n)
	var wg sync.WaitGroup
	for i := range n {
		peers[i] = newFakePeer(fmt.Sprint(i))
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Join("room", fmt.Sprintf("p%02d", i), peers[i])
		}(i)
	}
	wg.Wait()

	// Order joins by the size of each joiner's peer list: the k-th joiner saw
	// exactly k others and must then have heard about every later joiner.
	type joined struct {
		id    string
		peers []string
		p     *fakePeer
	}
	all := make([]joined, n)
	for i, p := range peers {
		frames := p.ofType(TypePeers)
		if len(frames) != 1 {
			t.Fatalf("peer %d got %d peers frames, want 1", i, len(frames))
		}
		all[i] = joined{id: fmt.Sprintf("p%02d", i), peers: frames[0].(PeersFrame).Peers, p: p}
	}
	sort.Slice(all, func(i, j int) bool { return len(all[i].peers) < len(all[j].peers) })

	for k, j := range all {
		if len(j.peers) != k {
			t.Fatalf("joiner %s saw %d peers, want %d", j.id, len(j.peers), k)
		}
		want := make([]string, 0, n-k-1)
		for _, later := range all[k+1:] {
			want = append(want, later.id)
		}
		sort.Strings(want)
		var got []string
		for _, f := range j.p.ofType(TypeNewPeer) {
			got = append(got, f.(NewPeerFrame).ID)
		}
		sort.Strings(got)
		if len(want) == 0 {
			want = nil
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("joiner %s new-peer=%v, want %v", j.id, got, want)
		}
	}
}
