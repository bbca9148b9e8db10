// Package pos consumes POS-originated receipt events from Kafka in
// batches, generalizing the teacher's internal/kafka consumer-group
// handler (Setup/Cleanup/ConsumeClaim, dual size/timeout flush trigger)
// from score submissions to receipts routed through progression.Coordinator.
package pos

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/mallquest/mallquest/internal/authgate"
	"github.com/mallquest/mallquest/internal/config"
	"github.com/mallquest/mallquest/internal/domain"
	"github.com/mallquest/mallquest/internal/progression"
)

// ReceiptHandler is the surface the consumer needs from progression.
type ReceiptHandler interface {
	SubmitReceipt(ctx context.Context, claims *authgate.Claims, req progression.ReceiptRequest) (*progression.ReceiptResponse, error)
}

// Event is the wire shape of a POS-originated receipt message.
type Event struct {
	TenantID       string  `json:"tenant_id"`
	UserID         string  `json:"user_id"`
	Amount         float64 `json:"amount"`
	Store          string  `json:"store"`
	Category       string  `json:"category"`
	Timestamp      string  `json:"timestamp"`
	IdempotencyKey string  `json:"idempotency_key"`
}

// Consumer consumes receipt events from Kafka.
type Consumer struct {
	config        *config.KafkaConfig
	handler       ReceiptHandler
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan bool
}

// NewConsumer builds a Consumer bound to a consumer group.
func NewConsumer(cfg *config.KafkaConfig, handler ReceiptHandler, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		config:        cfg,
		handler:       handler,
		logger:        logger,
		consumerGroup: group,
		ctx:           ctx,
		cancel:        cancel,
		ready:         make(chan bool),
	}, nil
}

// Start begins consuming in a background goroutine and blocks until the
// first session is ready.
func (c *Consumer) Start() error {
	c.logger.Info("starting pos receipt consumer", "brokers", c.config.Brokers, "topic", c.config.Topic, "group_id", c.config.GroupID)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			handler := &groupHandler{consumer: c, ready: c.ready}
			if err := c.consumerGroup.Consume(c.ctx, []string{c.config.Topic}, handler); err != nil {
				if err == sarama.ErrClosedConsumerGroup {
					return
				}
				c.logger.Error("pos consumer: error from consumer group", "error", err)
			}
			if c.ctx.Err() != nil {
				return
			}
			c.ready = make(chan bool)
		}
	}()

	<-c.ready
	c.logger.Info("pos receipt consumer ready")

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
				c.logger.Error("pos consumer: consumer group error", "error", err)
			}
		}
	}()

	return nil
}

// Stop drains in-flight work and closes the consumer group.
func (c *Consumer) Stop() error {
	c.logger.Info("stopping pos receipt consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

type groupHandler struct {
	consumer *Consumer
	ready    chan bool
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error {
	close(h.ready)
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim processes one partition's messages, flushing on whichever of
// batch size or batch timeout comes first, same dual trigger the teacher's
// score-submission handler uses.
func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	cfg := h.consumer.config
	batch := make([]Event, 0, cfg.BatchSize)
	batchTimer := time.NewTimer(cfg.BatchTimeout)
	defer batchTimer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		h.processBatch(batch)
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

			var ev Event
			if err := json.Unmarshal(message.Value, &ev); err != nil {
				h.consumer.logger.Warn("pos consumer: failed to unmarshal event", "error", err, "offset", message.Offset)
				session.MarkMessage(message, "")
				continue
			}
			if ev.TenantID == "" || ev.UserID == "" || ev.IdempotencyKey == "" {
				h.consumer.logger.Warn("pos consumer: invalid receipt event", "tenant_id", ev.TenantID, "user_id", ev.UserID)
				session.MarkMessage(message, "")
				continue
			}

			batch = append(batch, ev)
			session.MarkMessage(message, "")

			if len(batch) >= cfg.BatchSize {
				flush()
				batchTimer.Reset(cfg.BatchTimeout)
			}
		}
	}
}

// processBatch submits each event through the same coordinator the HTTP
// transport uses, one at a time — SubmitReceipt already serializes per user
// via its keyed mutex, so batching here is purely a Kafka-consumption
// courtesy, not a bulk-write path.
func (h *groupHandler) processBatch(batch []Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, ev := range batch {
		ts := time.Now()
		if parsed, err := time.Parse(time.RFC3339, ev.Timestamp); err == nil {
			ts = parsed
		}

		claims := &authgate.Claims{TenantID: ev.TenantID, UserID: ev.UserID, Role: string(domain.RoleShopkeeper)}
		req := progression.ReceiptRequest{
			TenantID:       ev.TenantID,
			Amount:         ev.Amount,
			Store:          ev.Store,
			Category:       ev.Category,
			Timestamp:      ts,
			IdempotencyKey: ev.IdempotencyKey,
			Source:         domain.SourcePOS,
		}
		if _, err := h.consumer.handler.SubmitReceipt(ctx, claims, req); err != nil {
			h.consumer.logger.Error("pos consumer: failed to submit receipt", "error", err, "tenant_id", ev.TenantID, "user_id", ev.UserID)
		}
	}
}
