// Package threadexpander implements the Thread Expander (§4.7): given a page
// of topics whose HasMoreReplies is true, it batch-fetches the full reply
// list per topic with bounded parallelism and merges the results back in,
// preserving topic order. A single topic's fetch failure is logged and
// non-fatal — its truncated replies are kept as-is.
package threadexpander

import (
	"context"
	"fmt"
	"sync"

	"github.com/kdevan/gchat-bridge/domain"
	"github.com/kdevan/gchat-bridge/logger"
	"github.com/kdevan/gchat-bridge/wire"
)

// DefaultParallelism is P of §4.7.
const DefaultParallelism = 5

// RPCCaller is the subset of *transport.Transport the expander needs.
type RPCCaller interface {
	Call(ctx context.Context, rpcID string, payload *wire.Message) (*wire.Message, error)
}

// Expander drives per-topic list_messages RPCs with a bounded worker pool.
type Expander struct {
	rpc         RPCCaller
	parallelism int
	log         *logger.Logger
}

// New builds an Expander. parallelism <= 0 uses DefaultParallelism.
func New(rpc RPCCaller, parallelism int, log *logger.Logger) *Expander {
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}
	return &Expander{rpc: rpc, parallelism: parallelism, log: log}
}

// Expand fetches full reply lists for every topic in topics whose
// HasMoreReplies is true, replacing their Replies in place, and returns a
// new slice in the original order (§4.7 "Ordering of returned topics is
// preserved"). Topics that don't need expansion pass through unchanged.
func (e *Expander) Expand(ctx context.Context, topics []domain.Topic) []domain.Topic {
	out := make([]domain.Topic, len(topics))
	copy(out, topics)

	pool := newReplyPool(e.parallelism)
	var wg sync.WaitGroup
	pool.start(func(job replyJob) {
		defer wg.Done()
		replies, err := e.fetchReplies(ctx, job.topic)
		if err != nil {
			if e.log != nil {
				e.log.Errorf("threadexpander: topic %s expansion failed, keeping truncated replies: %v", job.topic.TopicID, err)
			}
			return
		}
		out[job.index].Replies = replies
		out[job.index].ReplyCount = len(replies)
		out[job.index].HasMoreReplies = false
	})

	for i, t := range out {
		if !t.HasMoreReplies {
			continue
		}
		wg.Add(1)
		pool.submit(replyJob{index: i, topic: t})
	}
	wg.Wait()
	pool.stop()

	return out
}

// fetchReplies issues the list_messages RPC for one topic and decodes its
// full reply list.
func (e *Expander) fetchReplies(ctx context.Context, t domain.Topic) ([]domain.Message, error) {
	req := domain.EncodeListMessagesRequest(t.GroupID, t.TopicID)
	env := wire.NewMessage(wire.RequestHeader(), req)

	resp, err := e.rpc.Call(ctx, domain.RPCListMessages, env)
	if err != nil {
		return nil, fmt.Errorf("threadexpander: fetch replies for topic %q: %w", t.TopicID, err)
	}
	return domain.DecodeMessagesResponse(t.TopicID, t.GroupID, resp), nil
}
