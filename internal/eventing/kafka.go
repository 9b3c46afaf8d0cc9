package eventing

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/segmentio/kafka-go"
)

// KafkaSource consumes event envelopes from a Kafka topic and
// publishes them to the bus. Messages are committed only after the
// bus has seen them; duplicate deliveries are absorbed by the
// subscribers' ProcessedStore.
type KafkaSource struct {
	reader *kafka.Reader
	bus    *Bus
	logger *log.Logger
}

// KafkaConfig describes the consumer connection.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// NewKafkaSource constructs a source.
func NewKafkaSource(cfg KafkaConfig, bus *Bus, logger *log.Logger) (*KafkaSource, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("eventing: kafka brokers and topic required")
	}
	if bus == nil {
		return nil, errors.New("eventing: nil bus")
	}
	if logger == nil {
		logger = log.Default()
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
		GroupID: cfg.GroupID,
	})
	return &KafkaSource{reader: reader, bus: bus, logger: logger}, nil
}

// Run consumes until ctx is cancelled. Malformed messages are logged
// and committed so they do not wedge the partition.
func (s *KafkaSource) Run(ctx context.Context) error {
	defer s.reader.Close()
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		var env Envelope
		if err := json.Unmarshal(msg.Value, &env); err != nil {
			s.logger.Printf("eventing: dropping malformed message at offset %d: %v", msg.Offset, err)
		} else if err := env.Normalize(); err != nil {
			s.logger.Printf("eventing: dropping message at offset %d: %v", msg.Offset, err)
		} else {
			s.bus.Publish(ctx, env)
		}

		if err := s.reader.CommitMessages(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			s.logger.Printf("eventing: commit failed: %v", err)
		}
	}
}
