// Package gateway implements the REST+WebSocket adapter of §4.10: a thin
// HTTP layer that serializes the client's PBLite-derived entities to stable
// JSON, drives the Cursor Engine and Thread Expander for read paths, and
// owns the mark-as-read queue and WebSocket fan-out. Grounded on the
// teacher's dashboard.Server: an http.ServeMux built once in a constructor,
// JSON responses written with a small shared helper, and a *http.Server
// wrapping explicit timeouts rather than the zero-value ListenAndServe.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kdevan/gchat-bridge/config"
	"github.com/kdevan/gchat-bridge/cursor"
	"github.com/kdevan/gchat-bridge/domain"
	"github.com/kdevan/gchat-bridge/logger"
	"github.com/kdevan/gchat-bridge/metrics"
	"github.com/kdevan/gchat-bridge/threadexpander"
	"github.com/kdevan/gchat-bridge/webchannel"
	"github.com/kdevan/gchat-bridge/wire"
	"github.com/kdevan/gchat-bridge/xerrors"
)

// rpcCaller is the subset of *transport.Transport the REST handlers call
// directly (whoami, notifications, presence, create/reply, mark-read).
// Paginated reads go through cursor.Engine/threadexpander.Expander instead.
type rpcCaller interface {
	Call(ctx context.Context, rpcID string, payload *wire.Message) (*wire.Message, error)
}

// Server is the Gateway (§4.10). Construct with NewServer, then call
// ListenAndServe.
type Server struct {
	rpc       rpcCaller
	cursorEng *cursor.Engine
	expander  *threadexpander.Expander
	channel   *webchannel.Channel
	markRead  *MarkReadQueue
	proxy     *MediaProxy
	cfg       *config.Config
	log       *logger.Logger
	metrics   *metrics.Metrics

	mux *http.ServeMux
	hub *WSHub
}

// NewServer wires every REST route and the /ws upgrade handler.
func NewServer(rpc rpcCaller, cursorEng *cursor.Engine, expander *threadexpander.Expander, channel *webchannel.Channel, markRead *MarkReadQueue, proxy *MediaProxy, cfg *config.Config, m *metrics.Metrics, log *logger.Logger) *Server {
	s := &Server{
		rpc:       rpc,
		cursorEng: cursorEng,
		expander:  expander,
		channel:   channel,
		markRead:  markRead,
		proxy:     proxy,
		cfg:       cfg,
		log:       log,
		metrics:   m,
		mux:       http.NewServeMux(),
	}
	s.hub = NewWSHub(m, log)
	s.registerRoutes()
	return s
}

// Hub exposes the WebSocket fan-out hub so main can subscribe it to the
// Event Bus.
func (s *Server) Hub() *WSHub { return s.hub }

// Handler exposes the registered mux directly, for tests driving the server
// through httptest.Server without a real listener.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe starts the HTTP server on addr and blocks until it returns
// an error (including http.ErrServerClosed after a graceful Shutdown).
func (s *Server) ListenAndServe(addr string) error {
	if addr == "" {
		addr = s.cfg.GatewayListenAddr
	}
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // the WebSocket upgrade and proxy stream are long-lived
		IdleTimeout:  120 * time.Second,
	}
	s.log.Infof("gateway: listening on %s", addr)
	return srv.ListenAndServe()
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/whoami", s.handleWhoAmI)
	s.mux.HandleFunc("GET /api/spaces", s.handleListSpacesOrDMs(domain.GroupSpace))
	s.mux.HandleFunc("GET /api/dms", s.handleListSpacesOrDMs(domain.GroupDM))
	s.mux.HandleFunc("GET /api/spaces/{id}/threads", s.handleListThreads(domain.GroupSpace))
	s.mux.HandleFunc("GET /api/dms/{id}/threads", s.handleListThreads(domain.GroupDM))
	s.mux.HandleFunc("GET /api/spaces/{id}/threads/{topicId}", s.handleGetThread(domain.GroupSpace))
	s.mux.HandleFunc("GET /api/dms/{id}/threads/{topicId}", s.handleGetThread(domain.GroupDM))
	s.mux.HandleFunc("POST /api/spaces/{id}/messages", s.handleCreateTopic(domain.GroupSpace))
	s.mux.HandleFunc("POST /api/dms/{id}/messages", s.handleCreateTopic(domain.GroupDM))
	s.mux.HandleFunc("POST /api/spaces/{id}/threads/{topicId}/replies", s.handleAppendReply(domain.GroupSpace))
	s.mux.HandleFunc("POST /api/dms/{id}/threads/{topicId}/replies", s.handleAppendReply(domain.GroupDM))
	s.mux.HandleFunc("GET /api/notifications", s.handleNotifications)
	s.mux.HandleFunc("POST /api/mark-read/{id}", s.handleMarkRead)
	s.mux.HandleFunc("GET /api/presence", s.handlePresence)
	s.mux.HandleFunc("GET /api/proxy", s.handleProxy)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ws", s.hub.handleUpgrade)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, log *logger.Logger, err error) {
	status := http.StatusInternalServerError
	if xe, ok := xerrors.As(err); ok {
		switch xe.Kind {
		case xerrors.Unauthorized, xerrors.NotLoggedIn:
			status = http.StatusUnauthorized
		case xerrors.RateLimited:
			status = http.StatusTooManyRequests
		case xerrors.Cancelled:
			status = http.StatusRequestTimeout
		}
	}
	log.Errorf("gateway: request failed: %v", err)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// --- /api/whoami ---

func (s *Server) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	resp, err := s.rpc.Call(r.Context(), domain.RPCWhoAmI, wire.NewMessage(wire.RequestHeader()))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.DecodeWhoAmI(resp))
}

// --- /api/spaces, /api/dms ---

// handleListSpacesOrDMs reuses the notifications RPC's world-item list,
// filtered to one GroupKind: the upstream surface has no separate
// "enumerate groups" call distinct from the unread-summary one (§6's "list
// groups (paginated by microsecond cursor)" is served here by the same
// document the notifications endpoint decodes; pagination beyond one page
// isn't observable on that RPC and so isn't implemented).
func (s *Server) handleListSpacesOrDMs(kind domain.GroupKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := s.rpc.Call(r.Context(), domain.RPCNotify, wire.NewMessage(wire.RequestHeader()))
		if err != nil {
			writeError(w, s.log, err)
			return
		}
		items := domain.DecodeNotifications(resp)
		out := make([]domain.WorldItem, 0, len(items))
		for _, it := range items {
			if it.Type == kind {
				out = append(out, it)
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// --- /api/{spaces,dms}/{id}/threads ---

func (s *Server) handleListThreads(kind domain.GroupKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groupID := groupIDFromPath(kind, r.PathValue("id"))
		q := r.URL.Query()

		pageSize, _ := strconv.Atoi(q.Get("pageSize"))
		since, err := parseTimeParam(q.Get("since"), time.Now())
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		until, err := parseTimeParam(q.Get("until"), time.Now())
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		var resume *domain.Cursor
		if c := q.Get("cursor"); c != "" {
			decoded, err := decodeCursorParam(c)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
				return
			}
			resume = &decoded
		}

		pages, topics, err := s.cursorEng.Run(r.Context(), cursor.Options{
			GroupID:  groupID,
			PageSize: pageSize,
			Since:    since,
			Until:    until,
			Resume:   resume,
		})
		if err != nil {
			writeError(w, s.log, err)
			return
		}

		var nextCursor string
		if len(pages) > 0 {
			last := pages[len(pages)-1]
			if !last.ContainsFirstTopic && !last.ReachedSinceBoundary {
				nextCursor = encodeCursorParam(last.NextCursors)
			}
		}

		format := q.Get("format")
		if format == "messages" {
			expanded := s.expander.Expand(r.Context(), topics)
			var messages []domain.Message
			for _, t := range expanded {
				messages = append(messages, t.Replies...)
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{"messages": messages, "cursor": nextCursor})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"topics": topics, "cursor": nextCursor})
	}
}

// --- /api/{spaces,dms}/{id}/threads/{topicId} ---

func (s *Server) handleGetThread(kind domain.GroupKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groupID := groupIDFromPath(kind, r.PathValue("id"))
		topicID := r.PathValue("topicId")

		req := domain.EncodeListMessagesRequest(groupID, topicID)
		resp, err := s.rpc.Call(r.Context(), domain.RPCListMessages, wire.NewMessage(wire.RequestHeader(), req))
		if err != nil {
			writeError(w, s.log, err)
			return
		}
		replies := domain.DecodeMessagesResponse(topicID, groupID, resp)
		writeJSON(w, http.StatusOK, domain.Topic{
			TopicID:    topicID,
			GroupID:    groupID,
			Replies:    replies,
			ReplyCount: len(replies),
		})
	}
}

// --- POST /api/{spaces,dms}/{id}/messages ---

type postMessageRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleCreateTopic(kind domain.GroupKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groupID := groupIDFromPath(kind, r.PathValue("id"))

		var body postMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Text == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing or invalid 'text'"})
			return
		}

		req := domain.EncodeCreateTopicRequest(groupID, body.Text)
		resp, err := s.rpc.Call(r.Context(), domain.RPCCreateTopic, wire.NewMessage(wire.RequestHeader(), req))
		if err != nil {
			writeError(w, s.log, err)
			return
		}
		writeJSON(w, http.StatusCreated, domain.DecodeCreatedMessage("", groupID, resp))
	}
}

// --- POST /api/{spaces,dms}/{id}/threads/{topicId}/replies ---

func (s *Server) handleAppendReply(kind domain.GroupKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groupID := groupIDFromPath(kind, r.PathValue("id"))
		topicID := r.PathValue("topicId")

		var body postMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Text == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing or invalid 'text'"})
			return
		}

		req := domain.EncodeAppendReplyRequest(groupID, topicID, body.Text)
		resp, err := s.rpc.Call(r.Context(), domain.RPCAppendReply, wire.NewMessage(wire.RequestHeader(), req))
		if err != nil {
			writeError(w, s.log, err)
			return
		}
		writeJSON(w, http.StatusCreated, domain.DecodeCreatedMessage(topicID, groupID, resp))
	}
}

// --- /api/notifications ---

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	resp, err := s.rpc.Call(r.Context(), domain.RPCNotify, wire.NewMessage(wire.RequestHeader()))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.DecodeNotifications(resp))
}

// --- POST /api/mark-read/{id} ---

type markReadRequestBody struct {
	UnreadCount int `json:"unreadCount"`
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var body markReadRequestBody
	_ = json.NewDecoder(r.Body).Decode(&body) // absent body means unreadCount 0

	groupID := groupIDFromPath(domain.GroupSpace, id)
	if strings.HasPrefix(id, "dm/") {
		groupID = domain.DMID(strings.TrimPrefix(id, "dm/"))
	}
	s.markRead.Enqueue(groupID, body.UnreadCount)
	writeJSON(w, http.StatusAccepted, map[string]bool{"ok": true})
}

// --- /api/presence ---

func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("userIds")
	if raw == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing userIds"})
		return
	}
	userIDs := strings.Split(raw, ",")

	req := domain.EncodePresenceRequest(userIDs)
	resp, err := s.rpc.Call(r.Context(), domain.RPCPresence, wire.NewMessage(wire.RequestHeader(), req))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.DecodePresenceResponse(resp))
}

// --- /api/proxy ---

func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing url"})
		return
	}
	target, err := parseProxyURL(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	resp, err := s.proxy.Fetch(target)
	if err != nil {
		if _, disallowed := err.(*errDisallowedHost); disallowed {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
			return
		}
		writeError(w, s.log, err)
		return
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	copyBody(w, resp)
}

// --- /health ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	channelState := "unknown"
	if s.channel != nil {
		channelState = s.channel.State().String()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"channel": channelState,
		"metrics": s.metrics.Snapshot(),
	})
}

// groupIDFromPath builds a GroupId from a raw path segment, honoring the §3
// space-id distinguishing prefix when present so callers may pass either a
// bare id or the fully-qualified "space/xxx" form.
func groupIDFromPath(kind domain.GroupKind, raw string) domain.GroupId {
	if kind == domain.GroupSpace && strings.HasPrefix(raw, "space/") {
		return domain.SpaceID(strings.TrimPrefix(raw, "space/"))
	}
	if kind == domain.GroupDM && strings.HasPrefix(raw, "dm/") {
		return domain.DMID(strings.TrimPrefix(raw, "dm/"))
	}
	if kind == domain.GroupSpace {
		return domain.SpaceID(raw)
	}
	return domain.DMID(raw)
}

// encodeCursorParam is the inverse of decodeCursorParam: it renders a
// resume triple into the opaque string a client echoes back as the `cursor`
// query parameter of a follow-up request.
func encodeCursorParam(c domain.Cursor) string {
	return c.SortTimeCursor + ":" + c.TimestampCursor + ":" + strconv.FormatInt(c.AnchorTimestamp, 10)
}

// decodeCursorParam parses the opaque "sortTimeCursor:timestampCursor:anchor"
// triple a client echoes back from a prior page's NextCursors.
func decodeCursorParam(raw string) (domain.Cursor, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 {
		return domain.Cursor{}, fmt.Errorf("gateway: malformed cursor parameter %q", raw)
	}
	anchor, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return domain.Cursor{}, fmt.Errorf("gateway: malformed cursor anchor in %q: %w", raw, err)
	}
	return domain.Cursor{SortTimeCursor: parts[0], TimestampCursor: parts[1], AnchorTimestamp: anchor}, nil
}
