package signaling

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound frame types.
const (
	TypeJoin   = "join"
	TypeSignal = "signal"
	TypeChat   = "chat"
)

var (
	errUnknownType  = errors.New("unknown frame type")
	errMissingField = errors.New("missing required field")
)

// inboundFrame is the union of every field a client may send. Which fields
// are required depends on Type.
type inboundFrame struct {
	Type string `json:"type"`

	// join
	ID   string `json:"id,omitempty"`
	Room string `json:"sala,omitempty"`

	// signal
	To      string          `json:"to,omitempty"`
	From    string          `json:"from,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// chat
	Message string `json:"message,omitempty"`
}

func parseFrame(data []byte) (inboundFrame, error) {
	var f inboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return inboundFrame{}, err
	}
	if err := f.validate(); err != nil {
		return inboundFrame{}, err
	}
	return f, nil
}

func (f inboundFrame) validate() error {
	switch f.Type {
	case TypeJoin:
		return requireFields("id", f.ID, "sala", f.Room)
	case TypeSignal:
		if isAbsent(f.Payload) {
			return fmt.Errorf("%w: payload", errMissingField)
		}
		return requireFields("to", f.To, "from", f.From)
	case TypeChat:
		return requireFields("from", f.From, "message", f.Message)
	default:
		return fmt.Errorf("%w: %q", errUnknownType, f.Type)
	}
}

// requireFields takes name/value pairs.
func requireFields(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			return fmt.Errorf("%w: %s", errMissingField, pairs[i])
		}
	}
	return nil
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
