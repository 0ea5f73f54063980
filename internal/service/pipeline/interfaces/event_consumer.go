// internal/service/pipeline/interfaces/event_consumer.go
package interfaces

import (
	"context"
	"encoding/json"
	"time"

	"dealflow/internal/pkg/logger"
	"dealflow/internal/pkg/metrics"
	"dealflow/internal/pkg/mq"
	"dealflow/internal/service/pipeline/domain"
	"dealflow/internal/service/pipeline/domain/port"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// messageReader 是 *kafka.Reader 中用到的部分
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// EventConsumerAdapter 监听流水线事件主题，把事件投递给通知 sink（notifier 进程使用）。
// 投递失败只记录日志，不重试；无法解析的消息直接跳过并提交。
type EventConsumerAdapter struct {
	reader  messageReader
	sink    port.EventSink
	timeout time.Duration
	retry   time.Duration
}

func NewEventConsumerAdapter(reader *kafka.Reader, sink port.EventSink, timeout time.Duration) *EventConsumerAdapter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &EventConsumerAdapter{reader: reader, sink: sink, timeout: timeout, retry: time.Second}
}

// Run 是一个长期运行的方法，ctx 结束时返回 nil
func (a *EventConsumerAdapter) Run(ctx context.Context) error {
	logger.Ctx(ctx).Info().Str("sink", a.sink.Name()).Msg("event consumer started")
	for {
		// 使用 FetchMessage 而不是 ReadMessage，处理完成后再提交 offset
		msg, err := a.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Ctx(ctx).Info().Msg("event consumer shutting down")
				return nil
			}
			logger.Ctx(ctx).Error().Err(err).Msg("could not fetch message, retrying")
			select {
			case <-time.After(a.retry): // 避免快速失败循环
			case <-ctx.Done():
				return nil
			}
			continue
		}

		a.processMessage(ctx, msg)

		if err := a.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			logger.Ctx(ctx).Error().Err(err).Int64("offset", msg.Offset).Msg("commit message")
		}
	}
}

func (a *EventConsumerAdapter) processMessage(parent context.Context, msg kafka.Message) {
	ctx := mq.ExtractContext(parent, msg)
	ctx, span := otel.Tracer("dealflow-notifier").Start(ctx, "consume "+msg.Topic, trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.Int("messaging.kafka.partition", msg.Partition),
		attribute.Int64("messaging.kafka.offset", msg.Offset),
	)

	var event domain.PipelineEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Error().Err(err).Str("key", string(msg.Key)).Msg("undecodable event, skipped")
		return
	}
	span.SetAttributes(attribute.String("event.type", string(event.Type)), attribute.String("event.id", event.EventID))

	deliverCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	if err := a.sink.Deliver(deliverCtx, &event); err != nil {
		span.RecordError(err)
		metrics.SinkDeliveries.WithLabelValues(a.sink.Name(), "error").Inc()
		logger.Ctx(ctx).Error().Err(err).Str("event_id", event.EventID).Str("sink", a.sink.Name()).Msg("deliver event")
		return
	}
	metrics.SinkDeliveries.WithLabelValues(a.sink.Name(), "ok").Inc()
}
