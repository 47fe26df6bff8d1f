package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/fc-rank-search/internal/config"
	"github.com/fc-rank-search/internal/domain"
)

// refreshTimeout bounds a single queued refresh, which pages through the whole ranking list
const refreshTimeout = 15 * time.Minute

// RefreshHandler runs a snapshot refresh
type RefreshHandler interface {
	Refresh(ctx context.Context, req domain.RefreshRequest) (*domain.RefreshResult, error)
}

// Consumer consumes refresh requests from Kafka
type Consumer struct {
	config        *config.KafkaConfig
	handler       RefreshHandler
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan bool
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *config.KafkaConfig, handler RefreshHandler, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating consumer group: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		config:        cfg,
		handler:       handler,
		logger:        logger,
		consumerGroup: consumerGroup,
		ctx:           ctx,
		cancel:        cancel,
		ready:         make(chan bool),
	}, nil
}

// Start begins consuming messages from Kafka
func (c *Consumer) Start() error {
	c.logger.Info("starting kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.Topic,
		"group_id", c.config.GroupID,
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			handler := &consumerGroupHandler{
				consumer: c,
				ready:    c.ready,
			}

			if err := c.consumerGroup.Consume(c.ctx, []string{c.config.Topic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.Error("error from consumer", "error", err)
			}

			if c.ctx.Err() != nil {
				return
			}

			c.ready = make(chan bool)
		}
	}()

	<-c.ready
	c.logger.Info("kafka consumer ready")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	c.logger.Info("stopping kafka consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

// dispatch refreshes every distinct game of a batch in order
func (c *Consumer) dispatch(batch []domain.RefreshRequest) {
	for _, req := range collapseRequests(batch) {
		ctx, cancel := context.WithTimeout(c.ctx, refreshTimeout)
		result, err := c.handler.Refresh(ctx, req)
		cancel()

		switch {
		case errors.Is(err, domain.ErrRefreshInProgress):
			c.logger.Info("refresh already running, skipping request", "game_id", req.GameID, "request_id", req.RequestID)
		case err != nil:
			c.logger.Error("queued refresh failed", "game_id", req.GameID, "request_id", req.RequestID, "error", err)
		default:
			c.logger.Info("queued refresh completed",
				"game_id", result.GameID,
				"players", result.TotalPlayers,
				"partial", result.Partial,
			)
		}
	}
}

// collapseRequests merges requests for the same game, keeping first-seen order.
// The merged request keeps the first request id and the first non-empty name.
// Its player cap is the largest requested, where zero (the configured default) wins.
func collapseRequests(batch []domain.RefreshRequest) []domain.RefreshRequest {
	byGame := make(map[string]int, len(batch))
	out := make([]domain.RefreshRequest, 0, len(batch))

	for _, req := range batch {
		idx, ok := byGame[req.GameID]
		if !ok {
			byGame[req.GameID] = len(out)
			out = append(out, req)
			continue
		}

		merged := &out[idx]
		if merged.GameName == "" {
			merged.GameName = req.GameName
		}
		if req.MaxPlayers == 0 || (merged.MaxPlayers != 0 && req.MaxPlayers > merged.MaxPlayers) {
			merged.MaxPlayers = req.MaxPlayers
		}
	}
	return out
}

// decodeRequest parses a message value, rejecting requests without a game id
func decodeRequest(value []byte) (domain.RefreshRequest, error) {
	var req domain.RefreshRequest
	if err := json.Unmarshal(value, &req); err != nil {
		return req, fmt.Errorf("decoding refresh request: %w", err)
	}
	req.GameID = strings.TrimSpace(req.GameID)
	if req.GameID == "" {
		return req, fmt.Errorf("refresh request without game_id: %w", domain.ErrInvalidRequest)
	}
	return req, nil
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
	ready    chan bool
}

// Setup is called at the beginning of a new session
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	close(h.ready)
	return nil
}

// Cleanup is called at the end of a session
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim collects requests for up to BatchTimeout or BatchSize messages, then dispatches them
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	cfg := h.consumer.config
	batch := make([]domain.RefreshRequest, 0, cfg.BatchSize)
	batchTimer := time.NewTimer(cfg.BatchTimeout)
	defer batchTimer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		h.consumer.dispatch(batch)
		batch = batch[:0]
	}

	for {
		select {
		case <-session.Context().Done():
			flush()
			return nil

		case <-batchTimer.C:
			flush()
			batchTimer.Reset(cfg.BatchTimeout)

		case message, ok := <-claim.Messages():
			if !ok {
				flush()
				return nil
			}

			req, err := decodeRequest(message.Value)
			session.MarkMessage(message, "")
			if err != nil {
				h.consumer.logger.Warn("dropping refresh request",
					"error", err,
					"offset", message.Offset,
					"partition", message.Partition,
				)
				continue
			}

			batch = append(batch, req)
			if len(batch) >= cfg.BatchSize {
				flush()
				batchTimer.Reset(cfg.BatchTimeout)
			}
		}
	}
}
