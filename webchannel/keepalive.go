package webchannel

import (
	"context"
	"sync"
	"time"

	"github.com/kdevan/gchat-bridge/logger"
)

// Keepalive runs the stay-online workflow of §4.8: it calls SendPing every
// interval and refreshes a server-side "presence shared" flag with timeout
// presenceTimeout. Grounded on the teacher's HeartbeatManager.Start/loop/
// sendKeepAlive ticker-with-stopCh shape; the per-session sync.Map tracking
// doesn't apply here since a Channel owns exactly one session (§3), so only
// the ticker/ping loop survives.
type Keepalive struct {
	channel         *Channel
	interval        time.Duration
	presenceTimeout time.Duration
	log             *logger.Logger

	stopCh chan struct{}
	once   sync.Once
}

// NewKeepalive builds a Keepalive for channel. interval is N and
// presenceTimeout is T in §4.8.
func NewKeepalive(channel *Channel, interval, presenceTimeout time.Duration, log *logger.Logger) *Keepalive {
	if interval <= 0 {
		interval = 20 * time.Second
	}
	if presenceTimeout <= 0 {
		presenceTimeout = 120 * time.Second
	}
	return &Keepalive{
		channel:         channel,
		interval:        interval,
		presenceTimeout: presenceTimeout,
		log:             log,
		stopCh:          make(chan struct{}),
	}
}

// Start launches the background ping loop. Idempotent: calling it more than
// once has no additional effect.
func (k *Keepalive) Start(ctx context.Context) {
	go k.loop(ctx)
}

// Stop terminates the ping loop. Idempotent.
func (k *Keepalive) Stop() {
	k.once.Do(func() { close(k.stopCh) })
}

func (k *Keepalive) loop(ctx context.Context) {
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-k.stopCh:
			return
		case <-ticker.C:
			if err := k.channel.SendPing(); err != nil {
				k.log.Debugf("webchannel: keepalive ping failed (will retry next tick): %v", err)
			}
		}
	}
}
