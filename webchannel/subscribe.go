package webchannel

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/kdevan/gchat-bridge/domain"
	"github.com/kdevan/gchat-bridge/xerrors"
)

// sendLoop is the send serializer of §4.8's concurrency contract: every
// outgoing POST (subscription change, ping) is funneled through this single
// goroutine so aid is always current on the wire, and so Close can drain
// pending sends deterministically.
func (c *Channel) sendLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case req := <-c.sendQueue:
			req.result <- c.dispatchSend(ctx, req)
		}
	}
}

func (c *Channel) dispatchSend(ctx context.Context, req sendRequest) error {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return xerrors.New(xerrors.Disconnected, "webchannel", "no active session")
	}

	httpReq, err := req.build(session)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(httpReq.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("webchannel: send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webchannel: send http %d", resp.StatusCode)
	}
	return nil
}

// enqueue submits build to the send serializer and waits for its result, or
// returns Disconnected immediately if the Channel is already closed (§4.8
// "Cancellation: closing the channel ... surfaces Disconnected to any
// in-flight sender").
func (c *Channel) enqueue(build func(session *ChannelSession) (*http.Request, error)) error {
	result := make(chan error, 1)
	select {
	case <-c.done:
		return xerrors.New(xerrors.Disconnected, "webchannel", "channel closed")
	case c.sendQueue <- sendRequest{build: build, result: result}:
	}
	return <-result
}

// SubscribeToAll registers the session for events across the given group
// IDs (§4.8). It is idempotent: calling it twice with the same set leaves
// SubscribedGroups unchanged (§8).
func (c *Channel) SubscribeToAll(groups []domain.GroupId) error {
	err := c.enqueue(func(session *ChannelSession) (*http.Request, error) {
		state, authErr := c.auth.Authenticate(context.Background(), false)
		if authErr != nil {
			return nil, fmt.Errorf("webchannel: authenticate before subscribe: %w", authErr)
		}
		form := url.Values{
			"gsessionid": {session.GsessionID()},
			"SID":        {session.SID()},
			"AID":        {fmt.Sprintf("%d", session.AID())},
		}
		for _, g := range groups {
			form.Add("group", groupWireID(g))
		}
		req, err := http.NewRequest(http.MethodPost, bidiPath+"?"+form.Encode(), bytes.NewBufferString(""))
		if err != nil {
			return nil, fmt.Errorf("webchannel: build subscribe request: %w", err)
		}
		applyCommonHeaders(req, state)
		return req, nil
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session != nil {
		session.addSubscriptions(groups)
	}
	return nil
}

func groupWireID(g domain.GroupId) string {
	switch g.Kind {
	case domain.GroupSpace:
		return "space/" + g.ID
	default:
		return "dm/" + g.ID
	}
}

// SendPing posts a small keepalive (§4.8 sendPing).
func (c *Channel) SendPing() error {
	return c.enqueue(func(session *ChannelSession) (*http.Request, error) {
		state, authErr := c.auth.Authenticate(context.Background(), false)
		if authErr != nil {
			return nil, fmt.Errorf("webchannel: authenticate before ping: %w", authErr)
		}
		form := url.Values{
			"gsessionid": {session.GsessionID()},
			"SID":        {session.SID()},
			"AID":        {fmt.Sprintf("%d", session.AID())},
			"type":       {"ping"},
		}
		req, err := http.NewRequest(http.MethodPost, bidiPath+"?"+form.Encode(), bytes.NewBufferString(""))
		if err != nil {
			return nil, fmt.Errorf("webchannel: build ping request: %w", err)
		}
		applyCommonHeaders(req, state)
		return req, nil
	})
}
