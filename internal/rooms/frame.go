package rooms

import "encoding/json"

// Outbound frame types.
const (
	TypePeers                 = "peers"
	TypeNewPeer               = "new-peer"
	TypeSignal                = "signal"
	TypeChat                  = "chat"
	TypePeerLeft              = "peer-left"
	TypeICECandidateRecording = "ice-candidate-recording"
)

// Frame is an outbound signaling message. Each implementation marshals to a
// JSON object whose "type" field equals FrameType.
type Frame interface {
	FrameType() string
}

type PeersFrame struct {
	Type  string   `json:"type"`
	Peers []string `json:"peers"`
}

func (PeersFrame) FrameType() string { return TypePeers }

type NewPeerFrame struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func (NewPeerFrame) FrameType() string { return TypeNewPeer }

type SignalFrame struct {
	Type    string          `json:"type"`
	From    string          `json:"from"`
	Payload json.RawMessage `json:"payload"`
}

func (SignalFrame) FrameType() string { return TypeSignal }

type ChatFrame struct {
	Type    string `json:"type"`
	From    string `json:"from"`
	Message string `json:"message"`
}

func (ChatFrame) FrameType() string { return TypeChat }

type PeerLeftFrame struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func (PeerLeftFrame) FrameType() string { return TypePeerLeft }

type ICECandidateRecordingFrame struct {
	Type      string          `json:"type"`
	Candidate json.RawMessage `json:"candidate"`
}

func (ICECandidateRecordingFrame) FrameType() string { return TypeICECandidateRecording }

func newPeersFrame(ids []string) PeersFrame {
	if ids == nil {
		ids = []string{}
	}
	return PeersFrame{Type: TypePeers, Peers: ids}
}

func NewICECandidateRecordingFrame(candidate json.RawMessage) ICECandidateRecordingFrame {
	return ICECandidateRecordingFrame{Type: TypeICECandidateRecording, Candidate: candidate}
}
