package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/kdevan/gchat-bridge/domain"
	"github.com/kdevan/gchat-bridge/logger"
	"github.com/kdevan/gchat-bridge/metrics"
	"github.com/kdevan/gchat-bridge/wire"
)

// RPCMarkRead is the rpcId the mark-as-read queue dispatches (§4.10).
const RPCMarkRead = "dfe.m.mr"

// markReadRPCCaller is the subset of *transport.Transport the queue needs.
type markReadRPCCaller interface {
	Call(ctx context.Context, rpcID string, payload *wire.Message) (*wire.Message, error)
}

// markReadRequest is one pending dispatch: groupID plus the unread count it
// was enqueued with (kept only for dedupe bookkeeping — the RPC itself just
// needs the groupID).
type markReadRequest struct {
	groupID     domain.GroupId
	unreadCount int
}

// MarkReadQueue is the bounded, per-group deduplicating FIFO of §4.10:
// enqueue replaces any pending entry for the same groupId with the latest
// unreadCount, and a single consumer dispatches one mark-as-read RPC at a
// time with fixed inter-dispatch spacing. Grounded on the teacher's
// Scheduler start/stop/sync.Once/stopCh control-goroutine shape, repurposed
// from "fan a job out to every session" to "drain one dedupe queue."
type MarkReadQueue struct {
	rpc     markReadRPCCaller
	spacing time.Duration
	log     *logger.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	order   []domain.GroupId // enqueue order of distinct group ids still pending
	pending map[domain.GroupId]markReadRequest
	notify  chan struct{}

	stopCh chan struct{}
	once   sync.Once
}

// NewMarkReadQueue builds a MarkReadQueue. spacing is the minimum interval
// between dispatched RPCs (§5: 100ms default).
func NewMarkReadQueue(rpc markReadRPCCaller, spacing time.Duration, m *metrics.Metrics, log *logger.Logger) *MarkReadQueue {
	if spacing <= 0 {
		spacing = 100 * time.Millisecond
	}
	return &MarkReadQueue{
		rpc:     rpc,
		spacing: spacing,
		log:     log,
		metrics: m,
		pending: make(map[domain.GroupId]markReadRequest),
		notify:  make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}
}

// Enqueue dedupe's by groupId, keeping the latest unreadCount (§4.10, §8).
// A group already pending is moved to the back of the dispatch order rather
// than updated in place: §8's law is "the RPCs actually dispatched are the
// unique-by-groupId suffix of S ... in enqueue order" — i.e. each group's
// dispatch slot is its *last* enqueue position, not its first. Scenario 5
// makes this concrete: enqueuing (g1,3),(g2,1),(g1,5),(g3,2),(g1,7) yields
// dispatch order (g2,1),(g3,2),(g1,7), with g1 pushed to the back by its
// later re-enqueues.
func (q *MarkReadQueue) Enqueue(groupID domain.GroupId, unreadCount int) {
	q.mu.Lock()
	if _, exists := q.pending[groupID]; exists {
		for i, g := range q.order {
			if g == groupID {
				q.order = append(q.order[:i], q.order[i+1:]...)
				break
			}
		}
	}
	q.order = append(q.order, groupID)
	q.pending[groupID] = markReadRequest{groupID: groupID, unreadCount: unreadCount}
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Run drains the queue until ctx is cancelled or Stop is called. It must be
// run in its own goroutine.
func (q *MarkReadQueue) Run(ctx context.Context) {
	for {
		req, ok := q.dequeue()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-q.stopCh:
				return
			case <-q.notify:
				continue
			}
		}

		if _, err := q.rpc.Call(ctx, RPCMarkRead, wire.NewMessage(wire.RequestHeader(), domain.EncodeMarkReadRequest(req.groupID))); err != nil {
			q.log.Errorf("gateway: mark-as-read for %s failed, dropping: %v", req.groupID.ID, err)
			if q.metrics != nil {
				q.metrics.IncMarkReadDropped()
			}
		} else if q.metrics != nil {
			q.metrics.IncMarkReadDispatched()
		}

		select {
		case <-time.After(q.spacing):
		case <-ctx.Done():
			return
		case <-q.stopCh:
			return
		}
	}
}

// dequeue pops the oldest pending group, if any.
func (q *MarkReadQueue) dequeue() (markReadRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.order) == 0 {
		return markReadRequest{}, false
	}
	groupID := q.order[0]
	q.order = q.order[1:]
	req := q.pending[groupID]
	delete(q.pending, groupID)
	return req, true
}

// Stop terminates Run. Idempotent.
func (q *MarkReadQueue) Stop() {
	q.once.Do(func() { close(q.stopCh) })
}

