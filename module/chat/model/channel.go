package model

import (
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"huddle/service/mgo"
)

// Channel types
const (
	ChannelTypePublic  int32 = 1
	ChannelTypePrivate int32 = 2
	ChannelTypeDirect  int32 = 3 // DM; members are exactly the two users
)

const (
	ChannelFieldOrgID     = "org_id"
	ChannelFieldChannelID = "channel_id"
	ChannelFieldMembers   = "member_ids"
	ChannelFieldUpdatedAt = "update_time"
)

// Channel holds the channel itself: config and membership, no messages.
// The member list is the fan-out recipient set for every event in the
// channel.
type Channel struct {
	OrgID       string    `bson:"org_id"`
	ChannelID   string    `bson:"channel_id"`
	Name        string    `bson:"name"`
	Topic       string    `bson:"topic"`
	ChannelType int32     `bson:"channel_type"`
	CreatorID   string    `bson:"creator_id"`
	MemberIDs   []string  `bson:"member_ids"`
	CreateTime  time.Time `bson:"create_time"`
	UpdateTime  time.Time `bson:"update_time"`
}

func (Channel) GetTableName() string { return "channel" }

func (c Channel) Collection() *mongo.Collection {
	return mgo.GetDB().Collection(c.GetTableName())
}
