package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"

	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/config"
	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/models"
)

// Message is the JSON payload published per region and year.
type Message struct {
	Region          models.RegionCode `json:"region"`
	Name            string            `json:"name,omitempty"`
	DataZone        string            `json:"data_zone,omitempty"`
	Year            int               `json:"year"`
	SumConsumption  float64           `json:"sum_consumption_kwh"`
	MeterCount      float64           `json:"meter_count"`
	MeanConsumption *float64          `json:"mean_consumption_kwh"`
}

// NewMessage converts an aggregate; an undefined mean becomes null.
func NewMessage(agg models.RegionYearAggregate) Message {
	m := Message{
		Region:         agg.Region,
		Name:           agg.Name,
		DataZone:       agg.DataZone,
		Year:           agg.Year,
		SumConsumption: agg.SumConsumption,
		MeterCount:     agg.MeterCount,
	}
	if agg.MeanConsumption.Valid {
		mean := agg.MeanConsumption.Float64
		m.MeanConsumption = &mean
	}
	return m
}

// Producer publishes aggregates to a Kafka topic
type Producer struct {
	topic    string
	producer sarama.SyncProducer
	logger   *zap.Logger
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg config.KafkaConfig, logger *zap.Logger) (*Producer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.ClientID = cfg.ClientID
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Retry.Backoff = 250 * time.Millisecond
	saramaConfig.Producer.Idempotent = false

	client, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, err
	}
	return NewProducerWith(cfg.Topic, client, logger), nil
}

// NewProducerWith wraps an existing sarama producer.
func NewProducerWith(topic string, producer sarama.SyncProducer, logger *zap.Logger) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Producer{topic: topic, producer: producer, logger: logger}
}

// Name identifies the sink in logs and metrics.
func (p *Producer) Name() string {
	return "kafka"
}

// WriteAggregates sends one message per aggregate keyed by region, so all
// years of a region land on the same partition.
func (p *Producer) WriteAggregates(ctx context.Context, aggs []models.RegionYearAggregate) error {
	msgs := make([]*sarama.ProducerMessage, 0, len(aggs))
	for _, agg := range aggs {
		payload, err := json.Marshal(NewMessage(agg))
		if err != nil {
			return fmt.Errorf("kafka: encode %s/%d: %w", agg.Region, agg.Year, err)
		}
		key := string(agg.Region)
		if agg.DataZone != "" {
			key += "/" + agg.DataZone
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: p.topic,
			Key:   sarama.StringEncoder(key),
			Value: sarama.ByteEncoder(payload),
		})
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := p.producer.SendMessages(msgs); err != nil {
		return fmt.Errorf("kafka: send %d messages to %s: %w", len(msgs), p.topic, err)
	}
	p.logger.Debug("kafka messages sent", zap.String("topic", p.topic), zap.Int("messages", len(msgs)))
	return nil
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	return p.producer.Close()
}
