// Package gateway is a client for the Janus-style JSON-over-HTTP control API
// of an external media gateway: create a session, attach a plugin handle and
// send plugin messages.
//
// Every call is a single request/response round trip. The client keeps no
// per-session state, never retries and adds no timeout of its own; callers
// bound calls with their context or the http.Client they supply.
//
// Errors in this package are built with github.com/pkg/errors rather than
// fmt.Errorf: transport failures are wrapped with Wrapf so errors.Cause
// reaches the net/http error and "%+v" prints the stack where the request
// failed. Gateway replies are reported as *Error or *UnexpectedResponseError;
// both work with the standard errors.As.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"

	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/metrics"
)

// Request verbs.
const (
	verbCreate    = "create"
	verbAttach    = "attach"
	verbMessage   = "message"
	verbTrickle   = "trickle"
	verbKeepAlive = "keepalive"
	verbDetach    = "detach"
	verbDestroy   = "destroy"
)

// Reply kinds.
const (
	janusSuccess = "success"
	janusError   = "error"
	janusAck     = "ack"
)

// maxResponseBytes bounds how much of a reply is read.
const maxResponseBytes = 1 << 20

type (
	SessionID uint64
	HandleID  uint64
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
	apiSecret  string
	token      string
}

type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithAPISecret sets the "apisecret" field on every request.
func WithAPISecret(secret string) Option {
	return func(c *Client) { c.apiSecret = secret }
}

// WithToken sets the "token" field on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// request is the outbound envelope. Verb-specific fields are omitted when
// empty.
type request struct {
	Janus       string                     `json:"janus"`
	Transaction string                     `json:"transaction"`
	APISecret   string                     `json:"apisecret,omitempty"`
	Token       string                     `json:"token,omitempty"`
	Plugin      string                     `json:"plugin,omitempty"`
	Body        any                        `json:"body,omitempty"`
	JSEP        *webrtc.SessionDescription `json:"jsep,omitempty"`
	Candidate   *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

// Response is a successful reply envelope.
type Response struct {
	Janus       string          `json:"janus"`
	Transaction string          `json:"transaction"`
	SessionID   uint64          `json:"session_id,omitempty"`
	Sender      uint64          `json:"sender,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	PluginData  *PluginData     `json:"plugindata,omitempty"`
	Error       *errorBody      `json:"error,omitempty"`
}

type PluginData struct {
	Plugin string          `json:"plugin"`
	Data   json.RawMessage `json:"data"`
}

type errorBody struct {
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}

// CreateSession creates a gateway session and returns its id.
func (c *Client) CreateSession(ctx context.Context) (SessionID, error) {
	resp, err := c.sendRequest(ctx, "", request{Janus: verbCreate}, false)
	if err != nil {
		return 0, err
	}
	id, err := dataID(resp)
	if err != nil {
		return 0, err
	}
	return SessionID(id), nil
}

// AttachPlugin attaches plugin to session and returns the handle id.
func (c *Client) AttachPlugin(ctx context.Context, session SessionID, plugin string) (HandleID, error) {
	resp, err := c.sendRequest(ctx, sessionPath(session), request{Janus: verbAttach, Plugin: plugin}, false)
	if err != nil {
		return 0, err
	}
	id, err := dataID(resp)
	if err != nil {
		return 0, err
	}
	return HandleID(id), nil
}

// SendMessageToPlugin sends body, and jsep when non-nil, to a plugin handle.
// The reply's data is returned without interpretation: the top-level data
// object, else plugindata.data, else an empty object.
func (c *Client) SendMessageToPlugin(ctx context.Context, session SessionID, handle HandleID, body any, jsep *webrtc.SessionDescription) (json.RawMessage, error) {
	resp, err := c.sendRequest(ctx, handlePath(session, handle), request{Janus: verbMessage, Body: body, JSEP: jsep}, false)
	if err != nil {
		return nil, err
	}
	switch {
	case len(resp.Data) > 0:
		return resp.Data, nil
	case resp.PluginData != nil && len(resp.PluginData.Data) > 0:
		return resp.PluginData.Data, nil
	default:
		return json.RawMessage(`{}`), nil
	}
}

// Trickle sends one ICE candidate to a plugin handle. The gateway answers
// trickle with an ack.
func (c *Client) Trickle(ctx context.Context, session SessionID, handle HandleID, candidate webrtc.ICECandidateInit) error {
	_, err := c.sendRequest(ctx, handlePath(session, handle), request{Janus: verbTrickle, Candidate: &candidate}, true)
	return err
}

// KeepAlive refreshes the session's idle timer on the gateway.
func (c *Client) KeepAlive(ctx context.Context, session SessionID) error {
	_, err := c.sendRequest(ctx, sessionPath(session), request{Janus: verbKeepAlive}, true)
	return err
}

func (c *Client) Detach(ctx context.Context, session SessionID, handle HandleID) error {
	_, err := c.sendRequest(ctx, handlePath(session, handle), request{Janus: verbDetach}, false)
	return err
}

func (c *Client) Destroy(ctx context.Context, session SessionID) error {
	_, err := c.sendRequest(ctx, sessionPath(session), request{Janus: verbDestroy}, false)
	return err
}

// sendRequest performs one POST and classifies the reply. It is the only
// place that interprets the "janus" field.
func (c *Client) sendRequest(ctx context.Context, path string, req request, allowAck bool) (*Response, error) {
	verb := req.Janus
	req.Transaction = NewTransactionID(verb + "-")
	req.APISecret = c.apiSecret
	req.Token = c.token

	start := time.Now()
	resp, outcome, err := c.roundTrip(ctx, path, req, allowAck)
	c.metrics.GatewayRequest(verb, outcome, time.Since(start))

	log := c.logger.With("verb", verb, "transaction", req.Transaction, "path", path, "outcome", outcome)
	if err != nil {
		log.Debug("gateway request failed", "err", err)
		return nil, err
	}
	log.Debug("gateway request succeeded")
	return resp, nil
}

func (c *Client) roundTrip(ctx context.Context, path string, req request, allowAck bool) (*Response, string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, metrics.GatewayOutcomeTransport, errors.Wrapf(err, "encode %s request", req.Janus)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, metrics.GatewayOutcomeTransport, errors.Wrapf(err, "build %s request", req.Janus)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, metrics.GatewayOutcomeTransport, errors.Wrapf(err, "gateway %s %s", req.Janus, c.baseURL+path)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, metrics.GatewayOutcomeTransport, errors.Wrapf(err, "read %s response", req.Janus)
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, metrics.GatewayOutcomeUnexpected, &UnexpectedResponseError{
			Status: httpResp.StatusCode,
			Body:   string(raw),
			Err:    err,
		}
	}

	switch {
	case resp.Janus == janusSuccess, allowAck && resp.Janus == janusAck:
		return &resp, metrics.GatewayOutcomeSuccess, nil
	case resp.Janus == janusError:
		gwErr := &Error{}
		if resp.Error != nil {
			gwErr.Code, gwErr.Reason = resp.Error.Code, resp.Error.Reason
		}
		return nil, metrics.GatewayOutcomeError, gwErr
	default:
		return nil, metrics.GatewayOutcomeUnexpected, &UnexpectedResponseError{
			Status: httpResp.StatusCode,
			Janus:  resp.Janus,
			Body:   string(raw),
		}
	}
}

func dataID(resp *Response) (uint64, error) {
	if len(resp.Data) == 0 {
		return 0, ErrIDNotFound
	}
	var data struct {
		ID *uint64 `json:"id"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return 0, errors.Wrap(ErrIDNotFound, err.Error())
	}
	if data.ID == nil {
		return 0, ErrIDNotFound
	}
	return *data.ID, nil
}

func sessionPath(s SessionID) string {
	return "/" + strconv.FormatUint(uint64(s), 10)
}

func handlePath(s SessionID, h HandleID) string {
	return sessionPath(s) + "/" + strconv.FormatUint(uint64(h), 10)
}
