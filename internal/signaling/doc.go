// Package signaling serves the room signaling WebSocket and the HTTP endpoint
// trusted components use to push ICE candidates to a participant.
//
// Each connection moves through UNJOINED, JOINED(id, room) and CLOSED. Frames
// that are malformed or arrive in the wrong state are skipped; they never
// close the connection.
package signaling
