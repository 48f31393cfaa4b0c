package kafka

import (
	"encoding/json"
	"fmt"

	"github.com/Shopify/sarama"
	"github.com/golang/glog"
)

// BotEvent is the record shape produced for the AI-bot consumer.
type BotEvent struct {
	OrgID     string         `json:"orgId"`
	ChannelID string         `json:"channelId"`
	EventType string         `json:"eventType"`
	Payload   map[string]any `json:"payload"`
	SentAtMS  int64          `json:"sentAtMs"`
}

// SendBotEvent produces one event; the channel id keys the partition so a
// channel's events stay ordered for the bot.
func SendBotEvent(topic string, ev BotEvent) error {
	if Producer == nil {
		return fmt.Errorf("producer not initialized")
	}

	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(ev.ChannelID),
		Value: sarama.ByteEncoder(value),
	}

	partition, offset, err := Producer.SendMessage(msg)
	if err != nil {
		return err
	}
	glog.Infof("[Kafka] bot event sent topic=%s partition=%d offset=%d type=%s", topic, partition, offset, ev.EventType)
	return nil
}
