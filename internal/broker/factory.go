package broker

import (
	"errors"

	"storehook/internal/config"
	"storehook/internal/logger"
)

// ErrNoBrokers is returned when broker.kafka.brokers is empty.
var ErrNoBrokers = errors.New("no kafka brokers configured")

func NewProducer(cfg config.BrokerConfig, log logger.Logger) (Producer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	return NewKafkaProducer(cfg.Kafka, log), nil
}

func NewConsumer(cfg config.BrokerConfig, log logger.Logger) (Consumer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	return NewKafkaConsumer(cfg.Kafka, log), nil
}
