package kafka

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/fc-rank-search/internal/config"
	"github.com/fc-rank-search/internal/domain"
)

// Producer publishes refresh requests
type Producer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

// NewProducer connects a synchronous producer to the configured brokers
func NewProducer(cfg *config.KafkaConfig, logger *slog.Logger) (*Producer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating producer: %w", err)
	}
	return NewProducerWithClient(producer, cfg.Topic, logger), nil
}

// NewProducerWithClient wraps an existing sarama producer
func NewProducerWithClient(producer sarama.SyncProducer, topic string, logger *slog.Logger) *Producer {
	return &Producer{producer: producer, topic: topic, logger: logger}
}

// Publish enqueues req keyed by game id and returns the request as sent
func (p *Producer) Publish(req domain.RefreshRequest) (domain.RefreshRequest, error) {
	if req.GameID == "" {
		return req, fmt.Errorf("publishing refresh: %w", domain.ErrInvalidRequest)
	}
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}

	data, err := json.Marshal(req)
	if err != nil {
		return req, fmt.Errorf("marshaling refresh request: %w", err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(req.GameID),
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		return req, fmt.Errorf("sending refresh request for %s: %w", req.GameID, err)
	}

	p.logger.Info("refresh request published",
		"game_id", req.GameID,
		"request_id", req.RequestID,
		"partition", partition,
		"offset", offset,
	)
	return req, nil
}

// Close flushes and closes the producer
func (p *Producer) Close() error {
	return p.producer.Close()
}
