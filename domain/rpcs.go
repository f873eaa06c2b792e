package domain

import "github.com/kdevan/gchat-bridge/wire"

// Additional rpcIds beyond list_topics/list_messages, used by the Gateway's
// REST surface (§6). These are simpler single-document round trips than the
// paginated Cursor Engine calls, so they live alongside the endpoint table
// rather than in mapper.go's more involved topic/message decoding.
const (
	RPCWhoAmI      = "dfe.w.wai"
	RPCNotify      = "dfe.w.not"
	RPCPresence    = "dfe.p.gp"
	RPCCreateTopic = "dfe.t.ct"
	RPCAppendReply = "dfe.t.ar"
)

// DecodeWhoAmI maps the whoami RPC's response into a UserRef (§6 "GET
// /api/whoami"). Field 1 is the user id, field 2 the display name, field 3
// the email, field 4 the avatar URL.
func DecodeWhoAmI(m *wire.Message) UserRef {
	return UserRef{
		ID:          m.String(1),
		DisplayName: m.String(2),
		Email:       m.String(3),
		AvatarURL:   m.String(4),
	}
}

// DecodeNotifications maps the notifications RPC's response into the
// WorldItem list of §3/§6. Field 1 is the array of world items; each item's
// field 1 is the group id string, field 2 the group kind (0=space,
// 1=dm), field 3 the name, field 4 the notification category enum, field 5
// the unread count, field 6 the subscribed-thread id.
func DecodeNotifications(m *wire.Message) []WorldItem {
	itemsField, ok := m.Get(1).(*wire.Message)
	if !ok {
		return nil
	}
	out := make([]WorldItem, 0, itemsField.Len())
	for i := 1; i <= itemsField.Len(); i++ {
		sub := itemsField.Sub(i)
		if sub == nil {
			continue
		}
		kind := GroupSpace
		if n, ok := sub.Get(2).(float64); ok && int(n) == 1 {
			kind = GroupDM
		}
		out = append(out, WorldItem{
			ID:                   sub.String(1),
			Type:                 kind,
			Name:                 sub.String(3),
			NotificationCategory: notificationCategoryFromEnum(sub.Get(4)),
			UnreadCount:          int(getFloat(sub.Get(5))),
			SubscribedThreadID:   sub.String(6),
		})
	}
	return out
}

func getFloat(v wire.Value) float64 {
	f, _ := v.(float64)
	return f
}

func notificationCategoryFromEnum(v wire.Value) NotificationCategory {
	n := int(getFloat(v))
	switch n {
	case 1:
		return NotificationDirectMention
	case 2:
		return NotificationSubscribedThread
	case 3:
		return NotificationSubscribedSpace
	case 4:
		return NotificationDirectMessage
	default:
		return NotificationNone
	}
}

// EncodePresenceRequest builds the presence-batch request for a set of user
// ids (§6 "GET /api/presence?userIds=a,b,c").
func EncodePresenceRequest(userIDs []string) *wire.Message {
	fields := make([]wire.Value, len(userIDs))
	for i, id := range userIDs {
		fields[i] = id
	}
	idsArr := &wire.Message{Fields: fields}
	return wire.NewMessage(idsArr)
}

// DecodePresenceResponse maps the presence-batch RPC's response into
// Presence values (§3). Field 1 is the array of presence entries; each
// entry's field 1 is the user id, field 2 the presence-state enum, field 3
// the DND-state enum, field 4 the active-until timestamp, field 5 the
// custom status string.
func DecodePresenceResponse(m *wire.Message) []Presence {
	entriesField, ok := m.Get(1).(*wire.Message)
	if !ok {
		return nil
	}
	out := make([]Presence, 0, entriesField.Len())
	for i := 1; i <= entriesField.Len(); i++ {
		sub := entriesField.Sub(i)
		if sub == nil {
			continue
		}
		out = append(out, Presence{
			UserID:       sub.String(1),
			State:        presenceStateFromEnum(sub.Get(2)),
			DND:          dndStateFromEnum(sub.Get(3)),
			ActiveUntil:  decodeTimestamp(sub.Get(4)),
			CustomStatus: sub.String(5),
		})
	}
	return out
}

// EncodeMarkReadRequest builds the mark-as-read request body for a single
// group (§4.10, §6 "POST /api/mark-read/{id}").
func EncodeMarkReadRequest(groupID GroupId) *wire.Message {
	return wire.NewMessage(encodeGroupID(groupID))
}

// EncodeCreateTopicRequest builds the request to post a new topic-root
// message into groupID (§6 "POST /api/spaces/{id}/messages").
func EncodeCreateTopicRequest(groupID GroupId, text string) *wire.Message {
	return wire.NewMessage(encodeGroupID(groupID), text)
}

// EncodeAppendReplyRequest builds the request to post a reply into an
// existing topic (§6 "POST /api/spaces/{id}/threads/{topicId}/replies").
func EncodeAppendReplyRequest(groupID GroupId, topicID, text string) *wire.Message {
	identity := wire.NewMessage(nil, topicID)
	return wire.NewMessage(encodeGroupID(groupID), identity, text)
}

// DecodeCreatedMessage maps the response to a create-topic or append-reply
// call back into the Message that was created, the way the upstream server
// echoes the persisted value (best-effort: absent fields default to zero
// values rather than failing, per §7 SchemaMismatch policy).
func DecodeCreatedMessage(topicID string, groupID GroupId, m *wire.Message) Message {
	sub := m.Sub(1)
	if sub == nil {
		sub = m
	}
	return decodeMessage(topicID, groupID, sub)
}
