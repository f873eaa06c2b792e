package webchannel

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/kdevan/gchat-bridge/auth"
	"github.com/kdevan/gchat-bridge/domain"
	"github.com/kdevan/gchat-bridge/eventbus"
	"github.com/kdevan/gchat-bridge/logger"
	"github.com/kdevan/gchat-bridge/metrics"
	"github.com/kdevan/gchat-bridge/wire"
	"github.com/kdevan/gchat-bridge/xerrors"
)

// channelOrigin is where the handshake and long-poll endpoints live; the
// WebChannel speaks to the same service origin as the RPC Transport (§4.4,
// §6).
const channelOrigin = "https://chat.google.com"

const (
	handshakePath = channelOrigin + "/u/0/webchannel/webchannel/bind"
	receivePath   = channelOrigin + "/u/0/webchannel/webchannel/bind"
	bidiPath      = channelOrigin + "/u/0/webchannel/webchannel/bind"
)

// State is one member of the session lifecycle of §4.8.
type State int

const (
	StateInit State = iota
	StateConnecting
	StateConnected
	StateBackoffReconnect
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateBackoffReconnect:
		return "BackoffReconnect"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// backoffSchedule is the §8 testable reconnect sequence: 1, 2, 4, 8, 16, 30,
// 30, ... (capped at 30s), reset to the first element after any successful
// frame.
var backoffSchedule = []time.Duration{
	1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
	16 * time.Second, 30 * time.Second,
}

const maxBackoff = 30 * time.Second

// sendRequest is one item on the send serializer's queue (§4.8's
// "concurrency contract": sends are serialized through a send queue so aid
// is always current on outgoing frames).
type sendRequest struct {
	build  func(session *ChannelSession) (*http.Request, error)
	result chan error
}

// Channel is the WebChannel long-polling transport (§4.8): one receive loop
// goroutine and one send-serializer goroutine cooperate over a bounded
// queue, communicating session state through ChannelSession.
type Channel struct {
	client  *http.Client
	auth    *auth.Manager
	bus     *eventbus.Bus
	log     *logger.Logger
	metrics *metrics.Metrics

	frameTimeout time.Duration

	mu      sync.Mutex
	state   State
	session *ChannelSession

	sendQueue chan sendRequest
	closeOnce sync.Once
	done      chan struct{}
}

// New builds a Channel. frameTimeout is the §5 inactivity window (60s
// default) treated as a dropped connection.
func New(client *http.Client, authMgr *auth.Manager, bus *eventbus.Bus, m *metrics.Metrics, frameTimeout time.Duration, log *logger.Logger) *Channel {
	if frameTimeout <= 0 {
		frameTimeout = 60 * time.Second
	}
	return &Channel{
		client:       client,
		auth:         authMgr,
		bus:          bus,
		log:          log,
		metrics:      m,
		frameTimeout: frameTimeout,
		state:        StateInit,
		sendQueue:    make(chan sendRequest, 64),
		done:         make(chan struct{}),
	}
}

// State returns the Channel's current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Run drives the Channel's full lifecycle — handshake, connect, receive,
// reconnect-with-backoff — until ctx is cancelled or Close is called. It is
// meant to be run in its own goroutine; it returns once the session is
// permanently closed.
func (c *Channel) Run(ctx context.Context) {
	go c.sendLoop(ctx)

	backoffIdx := 0
	for {
		select {
		case <-ctx.Done():
			c.setState(StateClosed)
			return
		case <-c.done:
			c.setState(StateClosed)
			return
		default:
		}

		c.setState(StateConnecting)
		session, err := c.handshake(ctx)
		if err != nil {
			c.log.Errorf("webchannel: handshake failed: %v", err)
			if !c.sleepBackoff(ctx, &backoffIdx) {
				return
			}
			continue
		}

		c.mu.Lock()
		c.session = session
		c.mu.Unlock()

		err = c.receiveLoop(ctx, session, &backoffIdx)
		c.setState(StateBackoffReconnect)
		c.bus.Publish(eventbus.Event{Type: eventbus.EventDisconnect, Body: err})
		if c.metrics != nil {
			c.metrics.IncWebChannelReconnect()
		}
		session.clearSubscriptions()

		if err != nil && isFatalDisconnect(ctx, err) {
			return
		}
		if !c.sleepBackoff(ctx, &backoffIdx) {
			return
		}
	}
}

func isFatalDisconnect(ctx context.Context, err error) bool {
	return ctx.Err() != nil
}

// sleepBackoff waits the next scheduled backoff delay (§4.8, §8), returning
// false if ctx was cancelled during the wait.
func (c *Channel) sleepBackoff(ctx context.Context, idx *int) bool {
	delay := backoffSchedule[minInt(*idx, len(backoffSchedule)-1)]
	if delay > maxBackoff {
		delay = maxBackoff
	}
	*idx++
	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	case <-c.done:
		return false
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Close aborts the receive stream and drains the send queue, surfacing
// Disconnected to any in-flight sender (§4.8 "Cancellation").
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.setState(StateClosed)
		c.drainSendQueue()
	})
}

func (c *Channel) drainSendQueue() {
	for {
		select {
		case req := <-c.sendQueue:
			req.result <- xerrors.Wrap(xerrors.Disconnected, "webchannel", fmt.Errorf("channel closed"))
		default:
			return
		}
	}
}

// handshake performs the Init -> Connecting transition (§4.8): a POST that
// establishes a session, parsing sid and gsessionId from the first framed
// chunk of the response.
func (c *Channel) handshake(ctx context.Context) (*ChannelSession, error) {
	state, err := c.auth.Authenticate(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("webchannel: authenticate before handshake: %w", err)
	}

	form := url.Values{
		"VER":  {"8"},
		"RID":  {"81187"},
		"CVER": {"22"},
		"t":    {"1"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, handshakePath+"?"+form.Encode(), bytes.NewBufferString(""))
	if err != nil {
		return nil, fmt.Errorf("webchannel: build handshake request: %w", err)
	}
	applyCommonHeaders(req, state)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webchannel: handshake request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, xerrors.New(xerrors.Unauthorized, "webchannel", "handshake http 401")
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("webchannel: handshake http %d", resp.StatusCode)
	}

	fr := NewFrameReader(resp.Body)
	frames, err := fr.ReadChunk()
	if err != nil {
		return nil, fmt.Errorf("webchannel: read handshake chunk: %w", err)
	}

	session := newSession()
	for _, f := range frames {
		msg, ok := f.Payload.(*wire.Message)
		if !ok {
			continue
		}
		if sid := msg.String(1); sid != "" {
			session.setIdentifiers(sid, msg.String(2))
		}
	}
	if session.SID() == "" {
		return nil, xerrors.New(xerrors.BootstrapUnavailable, "webchannel", "handshake response carried no session id")
	}
	return session, nil
}

// receiveLoop opens the Connecting -> Connected GET long-poll and processes
// framed chunks until disconnect, per §4.8. The first array received is
// treated as the session-ack transition marker: it flips the Channel to
// Connected and emits "connect" before any later frame is demultiplexed.
// backoffIdx is reset to 0 after the first frame, per §8's reconnect law
// ("delay resets to 1s" once a frame is received).
func (c *Channel) receiveLoop(ctx context.Context, session *ChannelSession, backoffIdx *int) error {
	state, err := c.auth.Authenticate(ctx, false)
	if err != nil {
		return fmt.Errorf("webchannel: authenticate before receive: %w", err)
	}

	form := url.Values{
		"VER":        {"8"},
		"gsessionid": {session.GsessionID()},
		"SID":        {session.SID()},
		"CI":         {"0"},
		"TYPE":       {"xmlhttp"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, receivePath+"?"+form.Encode(), nil)
	if err != nil {
		return fmt.Errorf("webchannel: build receive request: %w", err)
	}
	applyCommonHeaders(req, state)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("webchannel: receive request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webchannel: receive http %d", resp.StatusCode)
	}

	fr := NewFrameReader(resp.Body)
	first := true
	for {
		frames, err := readChunkWithTimeout(fr, c.frameTimeout)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("webchannel: receive frame: %w", err)
		}
		if first {
			first = false
			*backoffIdx = 0
			c.setState(StateConnected)
			c.bus.Publish(eventbus.Event{Type: eventbus.EventConnect})
		}
		for _, fm := range frames {
			session.observeAID(fm.AckID)
			if c.metrics != nil {
				c.metrics.IncWebChannelFrame()
			}
			if ev, ok := demuxPayload(fm.Payload); ok {
				c.bus.Publish(ev)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		default:
		}
	}
}

// readChunkWithTimeout wraps fr.ReadChunk with the §5 frame-inactivity
// timeout: absence of frames longer than timeout is the heartbeat-failure
// proxy (§4.8), since the server sends no explicit heartbeat.
func readChunkWithTimeout(fr *FrameReader, timeout time.Duration) ([]Frame, error) {
	type result struct {
		frames []Frame
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		frames, err := fr.ReadChunk()
		ch <- result{frames, err}
	}()
	select {
	case r := <-ch:
		return r.frames, r.err
	case <-time.After(timeout):
		return nil, xerrors.New(xerrors.Disconnected, "webchannel", "no frame received within %s", timeout)
	}
}

func applyCommonHeaders(req *http.Request, state auth.AuthState) {
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Goog-Authuser", "0")
	req.Header.Set("Origin", channelOrigin)
	req.Header.Set("Referer", channelOrigin+"/")
	var cookieBuf bytes.Buffer
	first := true
	for name, value := range state.Cookies {
		if !first {
			cookieBuf.WriteString("; ")
		}
		first = false
		cookieBuf.WriteString(name)
		cookieBuf.WriteByte('=')
		cookieBuf.WriteString(value)
	}
	req.Header.Set("Cookie", cookieBuf.String())
	req.Header.Set("x-framework-xsrf-token", state.XSRFToken)
}

// Subscriptions returns the group set currently subscribed, or nil if no
// session is active.
func (c *Channel) Subscriptions() []domain.GroupId {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return nil
	}
	return session.SubscribedGroups()
}
