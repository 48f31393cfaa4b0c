package chat

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"huddle/global"
	"huddle/logger"
	chatmodel "huddle/module/chat/model"
	"huddle/module/updates"
	kafka "huddle/service/dispatcher/kafka"
	"huddle/service/storage"
	"huddle/tools/decode"
	"huddle/tools/ids"
)

// TypingTTL is the validity window a typing signal carries.
const TypingTTL = 5 * time.Second

// ChatService wires the chat entities to the update-delivery core. Every
// durable state change is persisted first, then fanned out; typing only ever
// touches the ephemeral path.
type ChatService struct {
	Updates      *updates.Service
	KafkaEnabled bool
}

func NewChatService(upd *updates.Service, kafkaEnabled bool) *ChatService {
	return &ChatService{Updates: upd, KafkaEnabled: kafkaEnabled}
}

// SendMessage persists the message and fans it out to the channel roster.
func (s *ChatService) SendMessage(ctx context.Context, orgID, channelID, senderID, body string) (*chatmodel.Message, error) {
	members, err := s.ChannelMembers(ctx, orgID, channelID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	msg := &chatmodel.Message{
		OrgID:      orgID,
		ChannelID:  channelID,
		MessageID:  ids.GenerateString(),
		SenderID:   senderID,
		Body:       body,
		State:      chatmodel.MsgStateNormal,
		CreateTime: now,
		UpdateTime: now,
	}
	if _, err := msg.Collection().InsertOne(ctx, msg); err != nil {
		return nil, err
	}

	ev := &MessageEvent{
		OrgID:     orgID,
		ChannelID: channelID,
		MessageID: msg.MessageID,
		SenderID:  senderID,
		Body:      body,
		SentAtMS:  now.UnixMilli(),
	}
	payload := ev.ToPayload()
	if err := s.Updates.PublishToUsers(ctx, members, updates.EventMessageCreated, payload); err != nil {
		logger.Errorf("[chat] fan-out incomplete channel=%s msg=%s err=%v", channelID, msg.MessageID, err)
	}
	s.dispatchBot(channelID, updates.EventMessageCreated, payload)
	return msg, nil
}

// EditMessage updates the body and fans out the edit.
func (s *ChatService) EditMessage(ctx context.Context, orgID, channelID, messageID, editorID, body string) error {
	msg := chatmodel.Message{}
	now := time.Now()
	_, err := msg.Collection().UpdateOne(ctx,
		bson.M{
			chatmodel.MsgFieldOrgID:     orgID,
			chatmodel.MsgFieldMessageID: messageID,
			chatmodel.MsgFieldSenderID:  editorID, // only the author edits
		},
		bson.M{"$set": bson.M{
			chatmodel.MsgFieldBody:      body,
			chatmodel.MsgFieldState:     chatmodel.MsgStateEdited,
			chatmodel.MsgFieldUpdatedAt: now,
		}},
	)
	if err != nil {
		return err
	}

	members, err := s.ChannelMembers(ctx, orgID, channelID)
	if err != nil {
		return err
	}
	ev := &MessageEvent{OrgID: orgID, ChannelID: channelID, MessageID: messageID, SenderID: editorID, Body: body, SentAtMS: now.UnixMilli()}
	return s.Updates.PublishToUsers(ctx, members, updates.EventMessageUpdated, ev.ToPayload())
}

// DeleteMessage tombstones the row and fans out the deletion.
func (s *ChatService) DeleteMessage(ctx context.Context, orgID, channelID, messageID, actorID string) error {
	msg := chatmodel.Message{}
	now := time.Now()
	_, err := msg.Collection().UpdateOne(ctx,
		bson.M{chatmodel.MsgFieldOrgID: orgID, chatmodel.MsgFieldMessageID: messageID},
		bson.M{"$set": bson.M{
			chatmodel.MsgFieldBody:      "",
			chatmodel.MsgFieldState:     chatmodel.MsgStateDeleted,
			chatmodel.MsgFieldUpdatedAt: now,
		}},
	)
	if err != nil {
		return err
	}

	members, err := s.ChannelMembers(ctx, orgID, channelID)
	if err != nil {
		return err
	}
	ev := &MessageEvent{OrgID: orgID, ChannelID: channelID, MessageID: messageID, SenderID: actorID, SentAtMS: now.UnixMilli()}
	return s.Updates.PublishToUsers(ctx, members, updates.EventMessageDeleted, ev.ToPayload())
}

// Typing marks the typing window in Redis and pings the roster over the
// ephemeral path. Nothing here survives a restart, by design.
func (s *ChatService) Typing(ctx context.Context, orgID, channelID, userID string) error {
	members, err := s.ChannelMembers(ctx, orgID, channelID)
	if err != nil {
		return err
	}
	if err := storage.TypingMark(ctx, channelID, userID, TypingTTL); err != nil {
		logger.Warnf("[chat] typing mark failed channel=%s user=%s err=%v", channelID, userID, err)
	}
	ev := &TypingEvent{
		OrgID:     orgID,
		ChannelID: channelID,
		UserID:    userID,
		ExpiresMS: time.Now().Add(TypingTTL).UnixMilli(),
	}
	s.Updates.PublishEphemeralToUsers(ctx, members, updates.EventTyping, ev.ToPayload())
	return nil
}

func (s *ChatService) dispatchBot(channelID, eventType string, payload map[string]any) {
	if !s.KafkaEnabled {
		return
	}
	ev := kafka.BotEvent{
		ChannelID: channelID,
		EventType: eventType,
		Payload:   payload,
		SentAtMS:  time.Now().UnixMilli(),
	}
	if org, err := decode.ReadString(payload, "orgId"); err == nil {
		ev.OrgID = org
	}
	if err := kafka.SendBotEvent(global.BotEventsTopic, ev); err != nil {
		logger.Warnf("[chat] bot dispatch failed channel=%s err=%v", channelID, err)
	}
}
