package chat

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"huddle/logger"
	chatmodel "huddle/module/chat/model"
	"huddle/module/updates"
	"huddle/tools/ids"
)

// CreateChannel persists the channel and fans the creation out to every
// initial member's update log.
func (s *ChatService) CreateChannel(ctx context.Context, orgID, creatorID, name string, channelType int32, memberIDs []string) (*chatmodel.Channel, error) {
	now := time.Now()
	ch := &chatmodel.Channel{
		OrgID:       orgID,
		ChannelID:   ids.GenerateString(),
		Name:        name,
		ChannelType: channelType,
		CreatorID:   creatorID,
		MemberIDs:   withMember(memberIDs, creatorID),
		CreateTime:  now,
		UpdateTime:  now,
	}
	if _, err := ch.Collection().InsertOne(ctx, ch); err != nil {
		return nil, err
	}

	ev := &ChannelEvent{
		OrgID:     orgID,
		ChannelID: ch.ChannelID,
		Name:      name,
		MemberIDs: ch.MemberIDs,
		ActorID:   creatorID,
	}
	if err := s.Updates.PublishToUsers(ctx, ch.MemberIDs, updates.EventChannelCreated, ev.ToPayload()); err != nil {
		// channel exists; recipients who missed out recover on next diff anyway
		return ch, err
	}
	return ch, nil
}

// AddMember joins a user and notifies the whole (new) roster.
func (s *ChatService) AddMember(ctx context.Context, orgID, channelID, actorID, userID string) error {
	ch := chatmodel.Channel{}
	now := time.Now()
	res := ch.Collection().FindOneAndUpdate(ctx,
		bson.M{chatmodel.ChannelFieldOrgID: orgID, chatmodel.ChannelFieldChannelID: channelID},
		bson.M{
			"$addToSet": bson.M{chatmodel.ChannelFieldMembers: userID},
			"$set":      bson.M{chatmodel.ChannelFieldUpdatedAt: now},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	if err := res.Decode(&ch); err != nil {
		return err
	}

	ev := &ChannelEvent{OrgID: orgID, ChannelID: channelID, ActorID: actorID, MemberIDs: []string{userID}}
	return s.Updates.PublishToUsers(ctx, ch.MemberIDs, updates.EventMemberAdded, ev.ToPayload())
}

// RemoveMember leaves/kicks a user. The removed user is notified too, so
// their client can drop the channel.
func (s *ChatService) RemoveMember(ctx context.Context, orgID, channelID, actorID, userID string) error {
	ch := chatmodel.Channel{}
	now := time.Now()
	res := ch.Collection().FindOneAndUpdate(ctx,
		bson.M{chatmodel.ChannelFieldOrgID: orgID, chatmodel.ChannelFieldChannelID: channelID},
		bson.M{
			"$pull": bson.M{chatmodel.ChannelFieldMembers: userID},
			"$set":  bson.M{chatmodel.ChannelFieldUpdatedAt: now},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	if err := res.Decode(&ch); err != nil {
		return err
	}

	recipients := withMember(ch.MemberIDs, userID)
	ev := &ChannelEvent{OrgID: orgID, ChannelID: channelID, ActorID: actorID, MemberIDs: []string{userID}}
	return s.Updates.PublishToUsers(ctx, recipients, updates.EventMemberRemoved, ev.ToPayload())
}

// ChannelMembers resolves the current recipient set for a channel.
func (s *ChatService) ChannelMembers(ctx context.Context, orgID, channelID string) ([]string, error) {
	ch := chatmodel.Channel{}
	err := ch.Collection().FindOne(ctx,
		bson.M{chatmodel.ChannelFieldOrgID: orgID, chatmodel.ChannelFieldChannelID: channelID},
	).Decode(&ch)
	if err != nil {
		return nil, err
	}
	return ch.MemberIDs, nil
}

// NotifyPresence fans a user's online/offline transition out to everyone who
// shares a channel with them, over the ephemeral path. Hooked into the stream
// handler at bootstrap.
func (s *ChatService) NotifyPresence(ctx context.Context, orgID, userID string, online bool) {
	ch := chatmodel.Channel{}
	cur, err := ch.Collection().Find(ctx, bson.M{
		chatmodel.ChannelFieldOrgID:   orgID,
		chatmodel.ChannelFieldMembers: userID,
	})
	if err != nil {
		logger.Warnf("[chat] presence roster lookup failed user=%s err=%v", userID, err)
		return
	}
	defer cur.Close(ctx)

	seen := map[string]struct{}{userID: {}}
	var recipients []string
	for cur.Next(ctx) {
		c := chatmodel.Channel{}
		if err := cur.Decode(&c); err != nil {
			continue
		}
		for _, m := range c.MemberIDs {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			recipients = append(recipients, m)
		}
	}
	if len(recipients) == 0 {
		return
	}

	ev := &PresenceEvent{OrgID: orgID, UserID: userID, Online: online}
	s.Updates.PublishEphemeralToUsers(ctx, recipients, updates.EventPresence, ev.ToPayload())
}

// withMember returns ids with id appended if not already present.
func withMember(ids []string, id string) []string {
	for _, v := range ids {
		if v == id {
			return ids
		}
	}
	out := make([]string, 0, len(ids)+1)
	out = append(out, ids...)
	return append(out, id)
}
