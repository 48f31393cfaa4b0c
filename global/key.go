package global

// Key naming for Redis and pub/sub. Channels are always scoped by user,
// never by organization: an update row carries its owning org in the payload.

const (
	updatesChanPrefix   = "hud:upd:u:"
	ephemeralChanPrefix = "hud:eph:u:"
	userSeqPrefix       = "hud:useq:"
	userSeqInitPrefix   = "hud:useq:init:"
)

// BotEventsTopic is the Kafka topic the AI-bot consumer reads from.
const BotEventsTopic = "hud-bot-events"

// UpdatesChannelKey is the per-user durable-notice channel.
func UpdatesChannelKey(userID string) string { return updatesChanPrefix + userID }

// EphemeralChannelKey is the per-user ephemeral channel (typing, presence blips).
func EphemeralChannelKey(userID string) string { return ephemeralChanPrefix + userID }

// UserSeqKey holds the per-user seqno counter.
func UserSeqKey(userID string) string { return userSeqPrefix + userID }

// UserSeqInitLockKey guards first-time counter initialization.
func UserSeqInitLockKey(userID string) string { return userSeqInitPrefix + userID }
