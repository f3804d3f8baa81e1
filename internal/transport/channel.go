package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/models"
	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/observability"
)

// ErrAuthentication is returned when the authenticate handshake is
// rejected or does not complete within the auth timeout.
var ErrAuthentication = errors.New("transport: authentication failed")

// State is the lifecycle state of a Channel.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReady
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReady:
		return "ready"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// Config holds the connection settings for a Channel.
type Config struct {
	// URL is the websocket endpoint, e.g. wss://host/ws.
	URL string
	// Token is the identity token sent in the authenticate frame.
	Token string

	// HandshakeTimeout bounds the websocket upgrade. Default 10s.
	HandshakeTimeout time.Duration
	// AuthTimeout bounds the wait for authentication_success. Default 10s.
	AuthTimeout time.Duration

	// Reconnect backoff. Defaults: 500ms initial, 30s cap, 5m ceiling.
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	BackoffCeiling time.Duration

	Logger zerolog.Logger
}

func (c *Config) applyDefaults() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = 10 * time.Second
	}
	if c.BackoffInitial <= 0 {
		c.BackoffInitial = 500 * time.Millisecond
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 30 * time.Second
	}
	if c.BackoffCeiling <= 0 {
		c.BackoffCeiling = 5 * time.Minute
	}
}

// Channel owns the single persistent websocket connection that multiplexes
// all real-time traffic for the authenticated user. Frames are dispatched
// in receipt order on a single read goroutine. Outbound sends while the
// channel is not ready are dropped, not queued: the UI disables input when
// disconnected, and replaying stale frames after a reconnect is worse than
// losing them.
type Channel struct {
	cfg        Config
	log        zerolog.Logger
	dispatcher *Dispatcher

	mu         sync.Mutex
	conn       *websocket.Conn
	state      State
	active     string
	closed     bool
	authFailed bool
	identity   models.AuthenticationSuccessPayload

	writeMu sync.Mutex

	stateSubs map[int]func(State)
	nextSubID int
	lastErr   error
}

// NewChannel creates a disconnected Channel.
func NewChannel(cfg Config) *Channel {
	cfg.applyDefaults()
	return &Channel{
		cfg:        cfg,
		log:        cfg.Logger,
		dispatcher: NewDispatcher(cfg.Logger),
		stateSubs:  make(map[int]func(State)),
	}
}

// Dispatcher exposes the typed frame subscription registry.
func (c *Channel) Dispatcher() *Dispatcher { return c.dispatcher }

// Connect dials the endpoint and runs the authenticate handshake. The
// channel is not usable until this returns nil. Handshake rejection or
// timeout yields an error wrapping ErrAuthentication; the caller must
// refresh credentials rather than retry blindly.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("transport: channel closed")
	}
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return fmt.Errorf("transport: connect called in state %s", c.state)
	}
	c.mu.Unlock()

	c.setState(StateConnecting)

	conn, identity, err := c.dialAndAuthenticate(ctx)
	if err != nil {
		c.setState(StateDisconnected)
		c.setLastErr(err)
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.identity = identity
	c.mu.Unlock()

	c.setState(StateReady)
	go c.readLoop(conn)
	return nil
}

func (c *Channel) dialAndAuthenticate(ctx context.Context) (*websocket.Conn, models.AuthenticationSuccessPayload, error) {
	var identity models.AuthenticationSuccessPayload

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return nil, identity, fmt.Errorf("transport: dial %s: %w", c.cfg.URL, err)
	}
	c.setState(StateConnected)

	authFrame, err := models.NewFrame(models.FrameAuthenticate, models.AuthenticatePayload{Token: c.cfg.Token})
	if err != nil {
		conn.Close()
		return nil, identity, err
	}
	if err := conn.WriteJSON(authFrame); err != nil {
		conn.Close()
		return nil, identity, fmt.Errorf("transport: send authenticate: %w", err)
	}

	deadline := time.Now().Add(c.cfg.AuthTimeout)
	_ = conn.SetReadDeadline(deadline)

	for {
		var frame models.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			conn.Close()
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil, identity, fmt.Errorf("%w: handshake timed out after %s", ErrAuthentication, c.cfg.AuthTimeout)
			}
			return nil, identity, fmt.Errorf("%w: %v", ErrAuthentication, err)
		}

		switch frame.Type {
		case models.FrameAuthenticationSuccess:
			if len(frame.Payload) > 0 {
				if err := json.Unmarshal(frame.Payload, &identity); err != nil {
					conn.Close()
					return nil, identity, fmt.Errorf("%w: malformed success payload: %v", ErrAuthentication, err)
				}
			}
			_ = conn.SetReadDeadline(time.Time{})
			return conn, identity, nil
		case models.FrameError:
			var ep models.ErrorPayload
			_ = json.Unmarshal(frame.Payload, &ep)
			conn.Close()
			return nil, identity, fmt.Errorf("%w: %s (code %d)", ErrAuthentication, ep.Message, ep.Code)
		default:
			// Anything else before the ack is not part of the handshake.
			continue
		}
	}
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		var frame models.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			c.handleDisconnect(conn, err)
			return
		}

		observability.IncFrameReceived(string(frame.Type))

		if frame.Type == models.FrameError {
			var ep models.ErrorPayload
			_ = json.Unmarshal(frame.Payload, &ep)
			c.log.Warn().Int("code", ep.Code).Str("message", ep.Message).Msg("server error frame")
			if models.IsAuthErrorCode(ep.Code) {
				c.mu.Lock()
				c.authFailed = true
				c.mu.Unlock()
				conn.Close()
				c.setState(StateDisconnected)
				c.setLastErr(fmt.Errorf("%w: %s (code %d)", ErrAuthentication, ep.Message, ep.Code))
				c.dispatcher.Dispatch(frame)
				return
			}
		}

		c.dispatcher.Dispatch(frame)
	}
}

func (c *Channel) handleDisconnect(conn *websocket.Conn, cause error) {
	conn.Close()

	c.mu.Lock()
	intentional := c.closed || c.authFailed
	c.conn = nil
	c.mu.Unlock()

	if intentional {
		c.setState(StateDisconnected)
		return
	}

	if websocket.IsCloseError(cause, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.log.Debug().Msg("connection closed by server")
	} else {
		c.log.Warn().Err(cause).Msg("connection dropped, reconnecting")
	}
	c.setState(StateReconnecting)
	c.reconnect()
}

// reconnect re-dials with capped exponential backoff, re-running the
// authenticate handshake and re-joining the active conversation. After
// the backoff ceiling the channel settles in StateDisconnected and the
// terminal error is available via LastError.
func (c *Channel) reconnect() {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.BackoffInitial
	bo.MaxInterval = c.cfg.BackoffMax
	bo.MaxElapsedTime = c.cfg.BackoffCeiling
	bo.Reset()

	var conn *websocket.Conn
	var identity models.AuthenticationSuccessPayload

	err := backoff.Retry(func() error {
		c.mu.Lock()
		stop := c.closed || c.authFailed
		c.mu.Unlock()
		if stop {
			return backoff.Permanent(errors.New("transport: channel closed"))
		}

		observability.IncReconnect()
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HandshakeTimeout+c.cfg.AuthTimeout)
		defer cancel()

		var dialErr error
		conn, identity, dialErr = c.dialAndAuthenticate(ctx)
		if dialErr != nil {
			if errors.Is(dialErr, ErrAuthentication) {
				return backoff.Permanent(dialErr)
			}
			c.log.Debug().Err(dialErr).Msg("reconnect attempt failed")
			c.setStateQuiet(StateReconnecting)
			return dialErr
		}
		return nil
	}, bo)
	if err != nil {
		c.log.Error().Err(err).Msg("reconnect gave up")
		c.setLastErr(err)
		c.setState(StateDisconnected)
		return
	}

	c.mu.Lock()
	c.conn = conn
	c.identity = identity
	active := c.active
	c.mu.Unlock()

	c.setState(StateReady)

	if active != "" {
		c.Send(models.FrameJoinConversation, models.JoinConversationPayload{ConversationID: active})
	}

	go c.readLoop(conn)
}

// Send writes a typed envelope to the open connection. When the channel
// is not ready the frame is dropped: logged, counted, no error. Only a
// payload that cannot be marshalled produces an error.
func (c *Channel) Send(t models.FrameType, payload any) error {
	frame, err := models.NewFrame(t, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	ready := c.state == StateReady
	c.mu.Unlock()

	if !ready || conn == nil {
		c.log.Debug().Str("frame_type", string(t)).Msg("dropping frame, channel not ready")
		observability.IncDroppedFrame()
		return nil
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(frame); err != nil {
		// The read loop will notice the broken connection and reconnect.
		c.log.Warn().Err(err).Str("frame_type", string(t)).Msg("write failed")
		return nil
	}
	observability.IncFrameSent(string(t))
	return nil
}

// JoinConversation marks the conversation as active and asks the server
// to join its room. The active conversation is re-joined automatically
// after a reconnect.
func (c *Channel) JoinConversation(conversationID string) {
	c.mu.Lock()
	c.active = conversationID
	c.mu.Unlock()
	c.Send(models.FrameJoinConversation, models.JoinConversationPayload{ConversationID: conversationID})
}

// LeaveConversation clears the active conversation so it is no longer
// re-joined after reconnects.
func (c *Channel) LeaveConversation() {
	c.mu.Lock()
	c.active = ""
	c.mu.Unlock()
}

// ActiveConversation returns the conversation joined on this channel, or
// empty when none is active.
func (c *Channel) ActiveConversation() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Identity returns the handshake-confirmed identity of this session.
func (c *Channel) Identity() models.AuthenticationSuccessPayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// State returns the current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsReady reports whether frames can currently be sent.
func (c *Channel) IsReady() bool { return c.State() == StateReady }

// LastError returns the most recent terminal error, if any.
func (c *Channel) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// OnStateChange registers a handler invoked on every state transition.
// Returns an unsubscribe func.
func (c *Channel) OnStateChange(h func(State)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSubID++
	id := c.nextSubID
	c.stateSubs[id] = h
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.stateSubs, id)
	}
}

// Close shuts the channel down for good; no reconnect is attempted.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}
	c.setState(StateDisconnected)
	return nil
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	subs := make([]func(State), 0, len(c.stateSubs))
	for _, h := range c.stateSubs {
		subs = append(subs, h)
	}
	c.mu.Unlock()

	c.log.Debug().Str("state", s.String()).Msg("channel state")
	for _, h := range subs {
		h(s)
	}
}

// setStateQuiet updates the state without notifying subscribers; used to
// keep StateReconnecting asserted between retry attempts.
func (c *Channel) setStateQuiet(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Channel) setLastErr(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}
