// internal/service/stock/interfaces/payment_outcome_consumer.go
package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"stockhub/internal/pkg/logger"
	"stockhub/internal/pkg/mq"
	"stockhub/internal/service/stock/application"
	"stockhub/internal/service/stock/domain"
)

// PaymentOutcomesTopic 是支付结果消息的默认主题
const PaymentOutcomesTopic = "payment-outcomes"

// PaymentOutcomeApplier 由 application.PaymentOutcomeService 实现
type PaymentOutcomeApplier interface {
	Apply(ctx context.Context, outcome domain.PaymentOutcome) (*application.PaymentOutcomeResponse, error)
}

// MessageReader 是 *kafka.Reader 中消费所需的部分
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// PaymentOutcomeConsumer 是一个驱动适配器，监听支付结果并驱动 PaymentOutcomeService。
// 瞬时故障按退避重试，仍然失败或无法解析的消息转入死信主题。
type PaymentOutcomeConsumer struct {
	reader      MessageReader
	dlt         mq.Writer
	svc         PaymentOutcomeApplier
	maxAttempts int
	backoff     time.Duration
}

func NewPaymentOutcomeConsumer(reader MessageReader, dlt mq.Writer, svc PaymentOutcomeApplier, maxAttempts int, backoff time.Duration) *PaymentOutcomeConsumer {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &PaymentOutcomeConsumer{reader: reader, dlt: dlt, svc: svc, maxAttempts: maxAttempts, backoff: backoff}
}

// Run 阻塞消费，直到 ctx 被取消
func (c *PaymentOutcomeConsumer) Run(ctx context.Context) error {
	logger.Ctx(ctx).Info().Msg("✅ Payment outcome consumer started.")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Ctx(ctx).Info().Msg("🛑 Payment outcome consumer shutting down.")
				return nil
			}
			logger.Ctx(ctx).Error().Err(err).Msg("Could not fetch message, retrying")
			if !sleep(ctx, time.Second) {
				return nil
			}
			continue
		}

		msgCtx := mq.ExtractTraceContext(ctx, msg.Headers)
		if err := c.processMessage(msgCtx, msg); err != nil {
			c.deadLetter(msgCtx, msg, err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			logger.Ctx(ctx).Error().Err(err).Int64("offset", msg.Offset).Msg("Failed to commit message")
		}
	}
}

// Close 关闭底层的 reader
func (c *PaymentOutcomeConsumer) Close() error {
	return c.reader.Close()
}

func (c *PaymentOutcomeConsumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var outcome domain.PaymentOutcome
	if err := json.Unmarshal(msg.Value, &outcome); err != nil {
		return fmt.Errorf("unmarshal payment outcome: %w", err)
	}
	if outcome.OrderID == "" && len(msg.Key) > 0 {
		outcome.OrderID = string(msg.Key)
	}

	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		_, err = c.svc.Apply(ctx, outcome)
		if err == nil {
			return nil
		}
		if !domain.IsRetryable(err) {
			return err
		}
		logger.Ctx(ctx).Warn().Err(err).Str("order_id", outcome.OrderID).Int("attempt", attempt).Msg("Retryable failure applying payment outcome")
		if !sleep(ctx, c.backoff*time.Duration(attempt)) {
			return ctx.Err()
		}
	}
	return err
}

func (c *PaymentOutcomeConsumer) deadLetter(ctx context.Context, msg kafka.Message, cause error) {
	log := logger.Ctx(ctx).With().Err(cause).Str("key", string(msg.Key)).Int64("offset", msg.Offset).Logger()
	if errors.Is(cause, context.Canceled) || c.dlt == nil {
		log.Error().Msg("Payment outcome dropped")
		return
	}
	if err := c.dlt.WriteMessages(ctx, mq.NewDeadLetter(msg, cause)); err != nil {
		log.Error().AnErr("dlt_error", err).Msg("🚨 CRITICAL: failed to write dead letter")
		return
	}
	log.Warn().Msg("Payment outcome moved to dead letter topic")
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
