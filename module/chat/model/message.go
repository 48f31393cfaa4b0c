package model

import (
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"huddle/service/mgo"
)

// Message states
const (
	MsgStateNormal  int32 = 0
	MsgStateEdited  int32 = 1
	MsgStateDeleted int32 = 2 // tombstone; body cleared
)

const (
	MsgFieldOrgID     = "org_id"
	MsgFieldChannelID = "channel_id"
	MsgFieldMessageID = "message_id"
	MsgFieldSenderID  = "sender_id"
	MsgFieldState     = "state"
	MsgFieldBody      = "body"
	MsgFieldUpdatedAt = "update_time"
)

// Message is the business entity; delivery to recipients goes through the
// per-user update log, never through queries on this collection.
type Message struct {
	OrgID      string    `bson:"org_id"`
	ChannelID  string    `bson:"channel_id"`
	MessageID  string    `bson:"message_id"` // snowflake, globally unique
	SenderID   string    `bson:"sender_id"`
	Body       string    `bson:"body"`
	State      int32     `bson:"state"`
	CreateTime time.Time `bson:"create_time"`
	UpdateTime time.Time `bson:"update_time"`
}

func (Message) GetTableName() string { return "message" }

func (m Message) Collection() *mongo.Collection {
	return mgo.GetDB().Collection(m.GetTableName())
}
