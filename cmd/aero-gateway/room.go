package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"

	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/gateway"
)

func (c *cli) roomCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "room",
		Short: "Manage videoroom rooms",
	}

	var req gateway.CreateRoomRequest
	create := &cobra.Command{
		Use:   "create <session> <handle>",
		Short: "Create a videoroom room and print the plugin's reply",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, handle, err := parseSessionHandle(args)
			if err != nil {
				return err
			}
			data, err := c.client.CreateRoom(cmd.Context(), session, handle, req)
			if err != nil {
				return err
			}
			return c.print(data)
		},
	}
	f := create.Flags()
	f.Uint64Var(&req.Room, "room", 0, "Room id (0 lets the gateway pick)")
	f.StringVar(&req.Description, "description", "", "Room description")
	f.StringVar(&req.Secret, "secret", "", "Secret required to edit or destroy the room")
	f.StringVar(&req.Pin, "pin", "", "PIN required to join")
	f.BoolVar(&req.IsPrivate, "private", false, "Hide the room from listings")
	f.IntVar(&req.Publishers, "publishers", 0, "Max concurrent publishers (0 uses the gateway default)")
	f.Uint64Var(&req.Bitrate, "bitrate", 0, "Max publisher bitrate in bits/s")
	f.BoolVar(&req.Record, "record", false, "Record publishers")
	f.StringVar(&req.RecDir, "rec-dir", "", "Directory recordings are written to")
	cmd.AddCommand(create)

	return cmd
}

func (c *cli) publishCmd() *cobra.Command {
	var (
		req       gateway.JoinPublisherRequest
		offerPath string
	)
	cmd := &cobra.Command{
		Use:   "publish <session> <handle>",
		Short: "Join a videoroom as a publisher, optionally sending an SDP offer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, handle, err := parseSessionHandle(args)
			if err != nil {
				return err
			}
			if req.Room == 0 {
				return fmt.Errorf("--room is required")
			}
			var offer *webrtc.SessionDescription
			if offerPath != "" {
				offer, err = readOffer(offerPath)
				if err != nil {
					return err
				}
			}
			data, err := c.client.JoinAsPublisher(cmd.Context(), session, handle, req, offer)
			if err != nil {
				return err
			}
			return c.print(data)
		},
	}
	f := cmd.Flags()
	f.Uint64Var(&req.Room, "room", 0, "Room id to join")
	f.Uint64Var(&req.ID, "id", 0, "Publisher id (0 lets the gateway pick)")
	f.StringVar(&req.Display, "display", "", "Display name")
	f.StringVar(&req.Pin, "pin", "", "Room PIN")
	f.StringVar(&req.Token, "room-token", "", "Room access token")
	f.StringVar(&offerPath, "offer", "", "File holding the SDP offer: raw SDP, or a JSON {type, sdp} object")

	return cmd
}

// readOffer accepts raw SDP text or a JSON session description as produced
// by RTCPeerConnection.localDescription.
func readOffer(path string) (*webrtc.SessionDescription, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read offer: %w", err)
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return nil, fmt.Errorf("offer file %s is empty", path)
	}

	if strings.HasPrefix(text, "{") {
		var desc webrtc.SessionDescription
		if err := json.Unmarshal([]byte(text), &desc); err != nil {
			return nil, fmt.Errorf("parse offer %s: %w", path, err)
		}
		if desc.Type != webrtc.SDPTypeOffer {
			return nil, fmt.Errorf("offer %s has type %q, want offer", path, desc.Type)
		}
		return &desc, nil
	}

	if !strings.HasPrefix(text, "v=") {
		return nil, fmt.Errorf("offer %s does not look like SDP", path)
	}
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: string(raw)}, nil
}

func (c *cli) trickleCmd() *cobra.Command {
	var (
		candidate string
		sdpMid    string
		mline     int
	)
	cmd := &cobra.Command{
		Use:   "trickle <session> <handle>",
		Short: "Send one ICE candidate to a plugin handle",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, handle, err := parseSessionHandle(args)
			if err != nil {
				return err
			}
			if strings.TrimSpace(candidate) == "" {
				return fmt.Errorf("--candidate is required")
			}
			cand := webrtc.ICECandidateInit{Candidate: candidate}
			if cmd.Flags().Changed("sdp-mid") {
				cand.SDPMid = &sdpMid
			}
			if cmd.Flags().Changed("sdp-mline-index") {
				if mline < 0 || mline > 0xffff {
					return fmt.Errorf("--sdp-mline-index out of range")
				}
				idx := uint16(mline)
				cand.SDPMLineIndex = &idx
			}
			if err := c.client.Trickle(cmd.Context(), session, handle, cand); err != nil {
				return err
			}
			return c.print(okResult{OK: true})
		},
	}
	f := cmd.Flags()
	f.StringVar(&candidate, "candidate", "", `Candidate line, e.g. "candidate:1 1 udp 2130706431 10.0.0.1 5000 typ host"`)
	f.StringVar(&sdpMid, "sdp-mid", "", "Media stream id the candidate belongs to")
	f.IntVar(&mline, "sdp-mline-index", 0, "Media line index the candidate belongs to")

	return cmd
}
