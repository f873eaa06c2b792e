// Package webchannel implements the WebChannel streaming subsystem (§4.8):
// a long-polling transport with a session handshake, framed-chunk receive
// loop, per-conversation subscription set, keepalive, event demultiplexing
// into the Event Bus, and reconnect with exponential backoff.
package webchannel

import (
	"sync"

	"github.com/kdevan/gchat-bridge/domain"
)

// ChannelSession is the exclusively-WebChannel-owned session state of §3:
// the long-poll session id, the gsession id, the last-ack-id, and the set of
// groups currently subscribed. It is created on handshake and destroyed on
// disconnect or explicit close.
type ChannelSession struct {
	mu               sync.Mutex
	sid              string
	gsessionID       string
	aid              int64
	subscribedGroups map[domain.GroupId]struct{}
}

func newSession() *ChannelSession {
	return &ChannelSession{subscribedGroups: make(map[domain.GroupId]struct{})}
}

// SID and GsessionID return the handshake-assigned identifiers.
func (s *ChannelSession) SID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sid
}

func (s *ChannelSession) GsessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gsessionID
}

func (s *ChannelSession) setIdentifiers(sid, gsessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sid = sid
	s.gsessionID = gsessionID
}

// AID returns the highest ack-id observed so far (monotonic, §3).
func (s *ChannelSession) AID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aid
}

// observeAID advances aid if ackID is newer, preserving monotonicity even if
// frames arrive with an out-of-order ack-id (shouldn't happen, but the
// invariant is cheap to hold here rather than trust the wire).
func (s *ChannelSession) observeAID(ackID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ackID > s.aid {
		s.aid = ackID
	}
}

// addSubscriptions merges groups into the subscribed set, idempotently
// (§4.8 "Subscription is idempotent").
func (s *ChannelSession) addSubscriptions(groups []domain.GroupId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range groups {
		s.subscribedGroups[g] = struct{}{}
	}
}

// SubscribedGroups returns a snapshot of the currently subscribed group set.
func (s *ChannelSession) SubscribedGroups() []domain.GroupId {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.GroupId, 0, len(s.subscribedGroups))
	for g := range s.subscribedGroups {
		out = append(out, g)
	}
	return out
}

// clearSubscriptions empties the set (implicit unsubscription on disconnect,
// §4.8).
func (s *ChannelSession) clearSubscriptions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribedGroups = make(map[domain.GroupId]struct{})
}
