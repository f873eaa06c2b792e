package domain

import (
	"strconv"

	"github.com/kdevan/gchat-bridge/wire"
)

// RPCListTopics is the rpcId used by the batch endpoint's paginated
// list_topics call, consumed by the Cursor Engine.
const RPCListTopics = "dfe.t.lt"

// RPCListMessages is the rpcId used by the Thread Expander's per-topic
// reply fetch.
const RPCListMessages = "dfe.t.lm"

// TopicsPage is the decoded result of one list_topics response: the topics
// on this page plus the pagination flags and cursor triple the Cursor Engine
// needs (§4.6). SortTimeCursor and TimestampCursor are empty on a response
// that terminates the pagination; AnchorTimestamp is echoed unchanged by the
// server on every page of the same pagination.
type TopicsPage struct {
	Topics             []Topic
	ContainsFirstTopic bool
	ContainsLastTopic  bool
	SortTimeCursor     string
	TimestampCursor    string
	AnchorTimestamp    int64
}

// decodeTimestamp accepts both encodings described in §4.5: a JSON number,
// or a JSON string (used on the wire once the value exceeds 2^53 and would
// lose precision as a float64).
func decodeTimestamp(v wire.Value) int64 {
	switch t := v.(type) {
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	case float64:
		return int64(t)
	default:
		return 0
	}
}

// decodeGroupID reads the GroupId oneof: field 1 holds a spaceId submessage,
// field 2 a dmId submessage, each of which carries the raw id string at its
// own field 1. Exactly one of the two is populated on the wire.
func decodeGroupID(groupIDMsg *wire.Message) GroupId {
	if groupIDMsg == nil {
		return GroupId{}
	}
	if spaceSub := groupIDMsg.Sub(1); spaceSub != nil {
		return SpaceID(spaceSub.String(1))
	}
	if dmSub := groupIDMsg.Sub(2); dmSub != nil {
		return DMID(dmSub.String(1))
	}
	return GroupId{}
}

// decodeMessage maps one message submessage per the table below. Field
// numbers are fixed by the upstream wire shape (captured from traffic, not
// derivable from documentation); see §9's note on ad-hoc positional
// indices — this is the single declarative place that interpretation lives.
//
//	field 1: identity submessage, field 2 of which is the message id
//	field 2: sender submessage: field 1 is a user-identity submessage whose
//	         field 1 is the user id; field 2 is the display name
//	field 3: timestamp (µs), string or number
//	field 10: message text
//	field 11: attachment/url metadata array (best-effort, not yet mapped)
func decodeMessage(topicID string, groupID GroupId, m *wire.Message) Message {
	out := Message{TopicID: topicID, GroupID: groupID}

	if identity := m.Sub(1); identity != nil {
		out.ID = identity.String(2)
	}
	if senderSub := m.Sub(2); senderSub != nil {
		sender := UserRef{DisplayName: senderSub.String(2)}
		if uid := senderSub.Sub(1); uid != nil {
			sender.ID = uid.String(1)
		}
		out.Sender = sender
	}
	out.Timestamp = decodeTimestamp(m.Get(3))
	out.Text = m.String(10)
	out.IsThreadReply = true // every element of a topic's replies array except index 0

	return out
}

// decodeTopic maps one topic submessage: field 1 is the topic identity
// (field 2 = topicId, field 3 = group-identity submessage), field 2 is the
// sortTime, field 7 is the replies array.
func decodeTopic(m *wire.Message) Topic {
	var topic Topic

	if identity := m.Sub(1); identity != nil {
		topic.TopicID = identity.String(2)
		topic.GroupID = decodeGroupID(identity.Sub(3))
	}
	topic.SortTime = decodeTimestamp(m.Get(2))

	if repliesField, ok := m.Get(7).(*wire.Message); ok {
		topic.Replies = make([]Message, 0, repliesField.Len())
		for i := 1; i <= repliesField.Len(); i++ {
			replySub := repliesField.Sub(i)
			if replySub == nil {
				continue
			}
			msg := decodeMessage(topic.TopicID, topic.GroupID, replySub)
			if i == 1 {
				msg.IsThreadReply = false // replies[0] is the topic root, per §3
			}
			topic.Replies = append(topic.Replies, msg)
		}
	}
	topic.ReplyCount = len(topic.Replies)

	return topic
}

// DecodeTopicsResponse maps a decoded list_topics PBLite document into a
// TopicsPage. envelope is the per-rpc array: [rpcTag, topicsArray,
// sortTimeCursor, timestampCursor, containsFirstTopic, containsLastTopic,
// anchorTimestamp]. The cursor and anchor fields are absent on a response
// that carries no more pages.
func DecodeTopicsResponse(envelope *wire.Message) TopicsPage {
	var page TopicsPage

	if topicsField, ok := envelope.Get(2).(*wire.Message); ok {
		for i := 1; i <= topicsField.Len(); i++ {
			topicSub := topicsField.Sub(i)
			if topicSub == nil {
				continue
			}
			page.Topics = append(page.Topics, decodeTopic(topicSub))
		}
	}

	page.SortTimeCursor = envelope.String(3)
	page.TimestampCursor = envelope.String(4)

	if b, ok := envelope.Get(5).(bool); ok {
		page.ContainsFirstTopic = b
	}
	if b, ok := envelope.Get(6).(bool); ok {
		page.ContainsLastTopic = b
	}
	page.AnchorTimestamp = decodeTimestamp(envelope.Get(7))

	return page
}

// EncodeListTopicsRequest builds the list_topics request document (§4.6).
// resume, if non-nil, supplies the cursor triple to continue an existing
// pagination; a zero-value resume (all three fields empty/zero) requests
// the first page.
func EncodeListTopicsRequest(groupID GroupId, pageSize int, since, until int64, resume *Cursor) *wire.Message {
	fields := make([]wire.Value, 7)
	fields[0] = encodeGroupID(groupID)
	fields[1] = float64(pageSize)
	if resume != nil {
		fields[2] = resume.SortTimeCursor
		fields[3] = resume.TimestampCursor
		if resume.AnchorTimestamp != 0 {
			fields[4] = strconv.FormatInt(resume.AnchorTimestamp, 10)
		}
	}
	if since != 0 {
		fields[5] = strconv.FormatInt(since, 10)
	}
	if until != 0 {
		fields[6] = strconv.FormatInt(until, 10)
	}
	return &wire.Message{Fields: fields}
}

// encodeGroupID is the inverse of decodeGroupID: it rebuilds the GroupId
// oneof submessage from a typed GroupId.
func encodeGroupID(g GroupId) *wire.Message {
	idSub := wire.NewMessage(g.ID)
	switch g.Kind {
	case GroupSpace:
		return &wire.Message{Fields: []wire.Value{idSub}}
	case GroupDM:
		return &wire.Message{Fields: []wire.Value{nil, idSub}}
	default:
		return &wire.Message{}
	}
}

// EncodeListMessagesRequest builds the list_messages request document the
// Thread Expander uses to fetch a topic's full reply list (§4.7).
func EncodeListMessagesRequest(groupID GroupId, topicID string) *wire.Message {
	identity := wire.NewMessage(nil, topicID)
	return wire.NewMessage(encodeGroupID(groupID), identity)
}

// DecodeMessagesResponse maps a decoded list_messages PBLite document into
// the topic's full, ordered reply list (§4.7, §3 "replies[0] is the topic
// root"). envelope's field 2 holds the messages array, matching the topics
// response's shape in DecodeTopicsResponse.
func DecodeMessagesResponse(topicID string, groupID GroupId, envelope *wire.Message) []Message {
	msgsField, ok := envelope.Get(2).(*wire.Message)
	if !ok {
		return nil
	}
	out := make([]Message, 0, msgsField.Len())
	for i := 1; i <= msgsField.Len(); i++ {
		sub := msgsField.Sub(i)
		if sub == nil {
			continue
		}
		msg := decodeMessage(topicID, groupID, sub)
		if i == 1 {
			msg.IsThreadReply = false
		}
		out = append(out, msg)
	}
	return out
}

// DecodeEventMessage exposes decodeMessage to the WebChannel's event
// demultiplexer, which observes the identical per-message wire shape inside
// a MESSAGE_POSTED push event (§4.8) as the Domain Mapper does inside a
// list_topics/list_messages response.
func DecodeEventMessage(groupID GroupId, m *wire.Message) Message {
	return decodeMessage("", groupID, m)
}

// DecodeEventPresence maps a USER_STATUS_UPDATED push event body into a
// Presence value (§3, §4.8). Field 1 is the user id, field 2 the presence
// state enum, field 3 the DND state enum, field 4 the active-until
// timestamp, field 5 a custom status string.
func DecodeEventPresence(body *wire.Message) Presence {
	return Presence{
		UserID:       body.String(1),
		State:        presenceStateFromEnum(body.Get(2)),
		DND:          dndStateFromEnum(body.Get(3)),
		ActiveUntil:  decodeTimestamp(body.Get(4)),
		CustomStatus: body.String(5),
	}
}

// presenceStateFromEnum and dndStateFromEnum map the wire's small integer
// enums to the string labels of §3. Both default to the "unknown" member on
// an unrecognised or absent value, matching the SchemaMismatch "non-fatal,
// best-effort" policy of §7.
func presenceStateFromEnum(v wire.Value) PresenceState {
	n, _ := v.(float64)
	switch int(n) {
	case 1:
		return PresenceActive
	case 2:
		return PresenceInactive
	case 3:
		return PresenceSharingDisabled
	default:
		return PresenceUnknown
	}
}

func dndStateFromEnum(v wire.Value) DNDState {
	n, _ := v.(float64)
	switch int(n) {
	case 1:
		return DNDAvailable
	case 2:
		return DNDBusy
	default:
		return DNDUnknown
	}
}

// looksLikeMessage is the fallback heuristic discriminator for RPCs that
// have no table entry (§9): an array longer than 15 elements whose field-10
// position holds a short string is treated as a Message.
func looksLikeMessage(m *wire.Message) bool {
	if m.Len() <= 15 {
		return false
	}
	s, ok := m.Get(10).(string)
	return ok && len(s) > 0 && len(s) < 4096
}
