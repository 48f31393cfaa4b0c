package kafka

import (
	"time"

	"github.com/Shopify/sarama"
	"github.com/golang/glog"
)

var (
	KafkaClient sarama.Client
	Producer    sarama.SyncProducer
)

type Config struct {
	Brokers         []string
	ProducerRetries int
}

var Cfg Config

func BuildBaseConfig() *sarama.Config {
	cfg := sarama.NewConfig()

	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	if Cfg.ProducerRetries <= 0 {
		Cfg.ProducerRetries = 1
	}
	cfg.Producer.Retry.Max = Cfg.ProducerRetries
	// Key controls partitioning so one channel's events stay ordered.
	cfg.Producer.Partitioner = sarama.NewHashPartitioner

	cfg.Net.DialTimeout = 10 * time.Second
	cfg.Net.ReadTimeout = 30 * time.Second
	cfg.Net.WriteTimeout = 30 * time.Second
	return cfg
}

// InitKafka connects the client and sync producer.
func InitKafka(brokers []string) error {
	Cfg.Brokers = brokers
	c, err := sarama.NewClient(brokers, BuildBaseConfig())
	if err != nil {
		return err
	}
	KafkaClient = c

	p, err := sarama.NewSyncProducerFromClient(KafkaClient)
	if err != nil {
		return err
	}
	Producer = p
	glog.Infof("[Kafka] connected brokers=%v", brokers)
	return nil
}

func CloseKafka() {
	if Producer != nil {
		_ = Producer.Close()
	}
	if KafkaClient != nil {
		_ = KafkaClient.Close()
	}
}
