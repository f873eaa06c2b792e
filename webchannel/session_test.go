package webchannel

import (
	"testing"

	"github.com/kdevan/gchat-bridge/domain"
)

func TestSessionSubscriptionsAreIdempotent(t *testing.T) {
	s := newSession()
	groups := []domain.GroupId{domain.SpaceID("a"), domain.SpaceID("b")}
	s.addSubscriptions(groups)
	s.addSubscriptions(groups)

	got := s.SubscribedGroups()
	if len(got) != 2 {
		t.Fatalf("expected 2 subscribed groups after duplicate subscribe, got %d", len(got))
	}
}

func TestSessionAIDIsMonotonic(t *testing.T) {
	s := newSession()
	s.observeAID(5)
	s.observeAID(3) // stale/out-of-order ack should not regress aid
	if s.AID() != 5 {
		t.Fatalf("expected aid to stay at 5, got %d", s.AID())
	}
	s.observeAID(9)
	if s.AID() != 9 {
		t.Fatalf("expected aid to advance to 9, got %d", s.AID())
	}
}

func TestSessionClearSubscriptions(t *testing.T) {
	s := newSession()
	s.addSubscriptions([]domain.GroupId{domain.SpaceID("a")})
	s.clearSubscriptions()
	if len(s.SubscribedGroups()) != 0 {
		t.Fatal("expected subscriptions cleared")
	}
}
