package webchannel

import (
	"github.com/kdevan/gchat-bridge/domain"
	"github.com/kdevan/gchat-bridge/eventbus"
	"github.com/kdevan/gchat-bridge/wire"
)

// Event-kind tags observed in captured traffic at field 1 of an
// eventPayload PBLite variant (§4.8). Unlike the Domain Mapper's rpcId
// table, these are WebChannel push-event tags, a disjoint namespace from
// RPC ids.
const (
	tagMessagePosted      = "MESSAGE_POSTED"
	tagTypingStateChanged = "TYPING_STATE_CHANGED"
	tagReadReceiptChanged = "READ_RECEIPT_CHANGED"
	tagUserStatusUpdated  = "USER_STATUS_UPDATED"
	tagGroupChanged       = "GROUP_CHANGED"
)

// demuxPayload maps one eventPayload PBLite variant into an eventbus.Event,
// or returns ok=false for a tag this gateway doesn't surface (e.g. a bare
// keepalive no-op).
func demuxPayload(payload wire.Value) (eventbus.Event, bool) {
	msg, ok := payload.(*wire.Message)
	if !ok {
		return eventbus.Event{}, false
	}
	tag := msg.String(1)
	body := msg.Sub(2)

	switch tag {
	case tagMessagePosted:
		groupID := decodeEventGroupID(body)
		return eventbus.Event{Type: eventbus.EventMessage, GroupID: groupID, Body: decodeEventMessage(body)}, true
	case tagTypingStateChanged:
		groupID := decodeEventGroupID(body)
		return eventbus.Event{Type: eventbus.EventTyping, GroupID: groupID, Body: body}, true
	case tagReadReceiptChanged:
		groupID := decodeEventGroupID(body)
		return eventbus.Event{Type: eventbus.EventReadReceipt, GroupID: groupID, Body: body}, true
	case tagUserStatusUpdated:
		return eventbus.Event{Type: eventbus.EventUserStatus, Body: decodeEventPresence(body)}, true
	case tagGroupChanged:
		groupID := decodeEventGroupID(body)
		return eventbus.Event{Type: eventbus.EventGroupChanged, GroupID: groupID, Body: body}, true
	default:
		return eventbus.Event{}, false
	}
}

// decodeEventGroupID reads the group-identity oneof carried by most event
// bodies at field 1, mirroring domain's GroupId oneof shape (§4.5).
func decodeEventGroupID(body *wire.Message) domain.GroupId {
	groupSub := body.Sub(1)
	if groupSub == nil {
		return domain.GroupId{}
	}
	if spaceSub := groupSub.Sub(1); spaceSub != nil {
		return domain.SpaceID(spaceSub.String(1))
	}
	if dmSub := groupSub.Sub(2); dmSub != nil {
		return domain.DMID(dmSub.String(1))
	}
	return domain.GroupId{}
}

// decodeEventMessage maps a MESSAGE_POSTED body's embedded message
// submessage (field 2) using the same positional rules as the Domain
// Mapper's decodeMessage, duplicated narrowly here since that function is
// unexported; both read the identical wire shape observed in traffic.
func decodeEventMessage(body *wire.Message) domain.Message {
	groupID := decodeEventGroupID(body)
	msgSub := body.Sub(2)
	if msgSub == nil {
		return domain.Message{GroupID: groupID}
	}
	return domain.DecodeEventMessage(groupID, msgSub)
}

func decodeEventPresence(body *wire.Message) domain.Presence {
	return domain.DecodeEventPresence(body)
}
