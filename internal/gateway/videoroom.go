package gateway

import (
	"context"
	"encoding/json"

	"github.com/pion/webrtc/v4"
)

// VideoRoomPlugin is the plugin package name CreateRoom and JoinAsPublisher
// expect the handle to be attached to.
const VideoRoomPlugin = "janus.plugin.videoroom"

type CreateRoomRequest struct {
	Room        uint64 `json:"room,omitempty"`
	Description string `json:"description,omitempty"`
	Secret      string `json:"secret,omitempty"`
	Pin         string `json:"pin,omitempty"`
	IsPrivate   bool   `json:"is_private,omitempty"`
	Publishers  int    `json:"publishers,omitempty"`
	Bitrate     uint64 `json:"bitrate,omitempty"`
	Record      bool   `json:"record,omitempty"`
	RecDir      string `json:"rec_dir,omitempty"`
}

type JoinPublisherRequest struct {
	Room    uint64 `json:"room"`
	ID      uint64 `json:"id,omitempty"`
	Display string `json:"display,omitempty"`
	Pin     string `json:"pin,omitempty"`
	Token   string `json:"token,omitempty"`
}

type createRoomBody struct {
	Request string `json:"request"`
	CreateRoomRequest
}

type joinPublisherBody struct {
	Request string `json:"request"`
	PType   string `json:"ptype"`
	JoinPublisherRequest
}

// CreateRoom asks the videoroom plugin to create a room.
func (c *Client) CreateRoom(ctx context.Context, session SessionID, handle HandleID, req CreateRoomRequest) (json.RawMessage, error) {
	return c.SendMessageToPlugin(ctx, session, handle, createRoomBody{Request: "create", CreateRoomRequest: req}, nil)
}

// JoinAsPublisher joins a videoroom as a publisher, optionally with an SDP
// offer.
func (c *Client) JoinAsPublisher(ctx context.Context, session SessionID, handle HandleID, req JoinPublisherRequest, offer *webrtc.SessionDescription) (json.RawMessage, error) {
	body := joinPublisherBody{Request: "join", PType: "publisher", JoinPublisherRequest: req}
	return c.SendMessageToPlugin(ctx, session, handle, body, offer)
}
