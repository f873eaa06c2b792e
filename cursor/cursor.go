// Package cursor implements the Cursor Engine (§4.6): a stateful machine
// that drives the server's paginated list_topics RPC across a group and an
// optional time range, advancing a resumable cursor triple page by page.
package cursor

import (
	"context"
	"fmt"

	"github.com/kdevan/gchat-bridge/domain"
	"github.com/kdevan/gchat-bridge/metrics"
	"github.com/kdevan/gchat-bridge/wire"
	"github.com/kdevan/gchat-bridge/xerrors"
)

// RPCCaller is the subset of *transport.Transport the Cursor Engine needs;
// an interface here keeps the engine testable without a live HTTP stack.
type RPCCaller interface {
	Call(ctx context.Context, rpcID string, payload *wire.Message) (*wire.Message, error)
}

// DefaultPageSize and MaxPageSize bound the pageSize input (§4.6).
const (
	DefaultPageSize = 100
	MaxPageSize     = 500
)

// Page is one page of the lazy sequence the Cursor Engine produces (§4.6).
type Page struct {
	Topics               []domain.Topic
	NextCursors          domain.Cursor
	ReachedSinceBoundary bool
	ContainsFirstTopic   bool
	ContainsLastTopic    bool
}

// Options configures one pagination run.
type Options struct {
	GroupID  domain.GroupId
	PageSize int // default DefaultPageSize, clamped to MaxPageSize
	Since    int64
	Until    int64
	Resume   *domain.Cursor // persisted triple to continue a prior pagination; nil starts fresh
	MaxPages int            // safety bound; 0 uses the engine's configured default
}

// Engine drives list_topics pagination over the RPC Transport.
type Engine struct {
	rpc            RPCCaller
	metrics        *metrics.Metrics
	defaultMaxPage int
}

// New builds an Engine. defaultMaxPages is the safety bound used when an
// Options value leaves MaxPages at zero.
func New(rpc RPCCaller, m *metrics.Metrics, defaultMaxPages int) *Engine {
	if defaultMaxPages <= 0 {
		defaultMaxPages = 1000
	}
	return &Engine{rpc: rpc, metrics: m, defaultMaxPage: defaultMaxPages}
}

// Run drives the full pagination described by opts and returns every page
// produced, in order, plus the accumulated unique-by-topicId topic set
// (§4.6 "Ordering & de-duplication"). It stops as soon as any termination
// condition of §4.6 is met, or when ctx is cancelled — in which case it
// returns the partial results gathered so far (§5 "cancellation ... yields
// partial results up to the last fully-received page") alongside a
// Cancelled error.
func (e *Engine) Run(ctx context.Context, opts Options) ([]Page, []domain.Topic, error) {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = e.defaultMaxPage
	}

	resume := opts.Resume
	if resume != nil && resume.AnchorTimestamp == 0 && resume.SortTimeCursor == "" && resume.TimestampCursor == "" {
		resume = nil
	}

	var pages []Page
	seen := make(map[string]struct{})
	var topics []domain.Topic

	// anchor is fixed across the entire pagination (§3 "anchorTimestamp is
	// fixed across an entire pagination", §4.6 "the anchor must be echoed
	// unchanged on every subsequent request"). It is captured once — from a
	// resumed Cursor, or from the first page's response — and held sticky
	// from then on: a later page's response may omit it entirely once the
	// pagination nears its end (domain.DecodeTopicsResponse decodes that
	// absence as 0), and a 0 must never overwrite the anchor already in use.
	var anchor int64
	if resume != nil {
		anchor = resume.AnchorTimestamp
	}

	for pageNum := 0; pageNum < maxPages; pageNum++ {
		select {
		case <-ctx.Done():
			return pages, topics, xerrors.Wrap(xerrors.Cancelled, "cursor", ctx.Err())
		default:
		}

		page, nextResume, err := e.fetchOnePage(ctx, opts.GroupID, pageSize, opts.Since, opts.Until, resume)
		if err != nil {
			return pages, topics, err
		}
		if e.metrics != nil {
			e.metrics.AddCursorPage()
		}

		if anchor == 0 {
			anchor = nextResume.AnchorTimestamp
		}
		nextResume.AnchorTimestamp = anchor

		reachedSince := false
		if opts.Since != 0 && len(page.Topics) > 0 && page.Topics[0].SortTime < opts.Since {
			reachedSince = true
		}

		for _, t := range page.Topics {
			if _, dup := seen[t.TopicID]; dup {
				continue
			}
			seen[t.TopicID] = struct{}{}
			topics = append(topics, t)
		}

		out := Page{
			Topics:               page.Topics,
			NextCursors:          nextResume,
			ReachedSinceBoundary: reachedSince,
			ContainsFirstTopic:   page.ContainsFirstTopic,
			ContainsLastTopic:    page.ContainsLastTopic,
		}
		pages = append(pages, out)

		if page.ContainsFirstTopic || reachedSince {
			break
		}
		resume = &nextResume
	}

	return pages, topics, nil
}

// fetchOnePage issues one list_topics RPC and returns the decoded page
// alongside the resume triple a follow-up call should use.
func (e *Engine) fetchOnePage(ctx context.Context, groupID domain.GroupId, pageSize int, since, until int64, resume *domain.Cursor) (domain.TopicsPage, domain.Cursor, error) {
	req := domain.EncodeListTopicsRequest(groupID, pageSize, since, until, resume)

	env := wire.NewMessage(wire.RequestHeader(), req)
	resp, err := e.rpc.Call(ctx, domain.RPCListTopics, env)
	if err != nil {
		return domain.TopicsPage{}, domain.Cursor{}, fmt.Errorf("cursor: fetch page: %w", err)
	}

	page := domain.DecodeTopicsResponse(resp)
	next := domain.Cursor{
		SortTimeCursor:  page.SortTimeCursor,
		TimestampCursor: page.TimestampCursor,
		AnchorTimestamp: page.AnchorTimestamp,
	}
	return page, next, nil
}
