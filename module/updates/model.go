package updates

import "time"

// Well-known event types. The core never interprets these; they exist so
// business callers and the UI agree on payload schemas.
const (
	EventMessageCreated = "message.created"
	EventMessageUpdated = "message.updated"
	EventMessageDeleted = "message.deleted"
	EventChannelCreated = "channel.created"
	EventChannelUpdated = "channel.updated"
	EventMemberAdded    = "channel.member_added"
	EventMemberRemoved  = "channel.member_removed"
	EventTyping         = "typing"
	EventPresence       = "presence"
)

// UpdateEnvelope is one durable update scoped to exactly one recipient's
// inbox. Fan-out to N recipients produces N rows with independent seqnos.
type UpdateEnvelope struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	Seqno     int64          `json:"seqno"`
	EventType string         `json:"eventType"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"createdAt"`
}

// DiffPage is one page of the catch-up query. NextOffset equals the seqno of
// the last returned envelope, or the request offset when the page is empty.
type DiffPage struct {
	Envelopes  []*UpdateEnvelope `json:"envelopes"`
	NextOffset int64             `json:"nextOffset"`
	HasMore    bool              `json:"hasMore"`
}

const (
	DefaultDiffLimit = 200
	MaxDiffLimit     = 500
)

// normLimit clamps a requested page size into [1, MaxDiffLimit].
func normLimit(limit int) int {
	if limit <= 0 {
		return DefaultDiffLimit
	}
	if limit > MaxDiffLimit {
		return MaxDiffLimit
	}
	return limit
}
