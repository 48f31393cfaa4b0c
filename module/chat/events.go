package chat

import (
	"huddle/tools/decode"
)

// Typed payload shapes for the update envelopes this module emits. The
// update-delivery core moves payloads opaquely; the tagged union exists only
// here at the edge (and mirrored in the UI).

type MessageEvent struct {
	OrgID     string `json:"orgId"`
	ChannelID string `json:"channelId"`
	MessageID string `json:"messageId"`
	SenderID  string `json:"senderId"`
	Body      string `json:"body,omitempty"`
	SentAtMS  int64  `json:"sentAtMs"`
}

type ChannelEvent struct {
	OrgID     string   `json:"orgId"`
	ChannelID string   `json:"channelId"`
	Name      string   `json:"name,omitempty"`
	MemberIDs []string `json:"memberIds,omitempty"`
	ActorID   string   `json:"actorId,omitempty"`
}

type TypingEvent struct {
	OrgID     string `json:"orgId"`
	ChannelID string `json:"channelId"`
	UserID    string `json:"userId"`
	ExpiresMS int64  `json:"expiresMs"`
}

type PresenceEvent struct {
	OrgID  string `json:"orgId"`
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

// ParseMessageEvent decodes an opaque envelope payload back into the typed
// shape (bot consumer, tests).
func ParseMessageEvent(payload map[string]any) (*MessageEvent, error) {
	return decode.DecodeMap[MessageEvent](payload)
}

// ParseChannelEvent decodes a channel lifecycle payload.
func ParseChannelEvent(payload map[string]any) (*ChannelEvent, error) {
	return decode.DecodeMap[ChannelEvent](payload)
}

func (e *MessageEvent) ToPayload() map[string]any {
	m := map[string]any{
		"orgId":     e.OrgID,
		"channelId": e.ChannelID,
		"messageId": e.MessageID,
		"senderId":  e.SenderID,
		"sentAtMs":  e.SentAtMS,
	}
	if e.Body != "" {
		m["body"] = e.Body
	}
	return m
}

func (e *ChannelEvent) ToPayload() map[string]any {
	m := map[string]any{
		"orgId":     e.OrgID,
		"channelId": e.ChannelID,
	}
	if e.Name != "" {
		m["name"] = e.Name
	}
	if len(e.MemberIDs) > 0 {
		m["memberIds"] = e.MemberIDs
	}
	if e.ActorID != "" {
		m["actorId"] = e.ActorID
	}
	return m
}

func (e *TypingEvent) ToPayload() map[string]any {
	return map[string]any{
		"orgId":     e.OrgID,
		"channelId": e.ChannelID,
		"userId":    e.UserID,
		"expiresMs": e.ExpiresMS,
	}
}

func (e *PresenceEvent) ToPayload() map[string]any {
	return map[string]any{
		"orgId":  e.OrgID,
		"userId": e.UserID,
		"online": e.Online,
	}
}
