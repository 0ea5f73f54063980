// internal/service/pipeline/infrastructure/adapter/event_kafka_adapter.go
package adapter

import (
	"context"
	"encoding/json"
	"strconv"

	"dealflow/internal/pkg/mq"
	"dealflow/internal/service/pipeline/domain"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// EventTopic 是流水线事件的 Kafka 主题
const EventTopic = "pipeline-events"

type produceFunc func(ctx context.Context, key, value []byte) error

// EventKafkaAdapter 实现了 port.EventSink，把事件以 JSON 写入 Kafka。
// 以商谈 ID 作为消息 key，同一商谈的事件落在同一分区，保持顺序。
type EventKafkaAdapter struct {
	writer  *kafka.Writer
	produce produceFunc
}

// NewEventKafkaAdapter 创建一个新的事件生产者适配器。
func NewEventKafkaAdapter(writer *kafka.Writer) *EventKafkaAdapter {
	return &EventKafkaAdapter{
		writer: writer,
		produce: func(ctx context.Context, key, value []byte) error {
			// mq.ProduceMessage 会自动处理追踪上下文注入
			return mq.ProduceMessage(ctx, writer, key, value)
		},
	}
}

func (a *EventKafkaAdapter) Name() string { return "kafka" }

// Deliver 实现 port.EventSink
func (a *EventKafkaAdapter) Deliver(ctx context.Context, event *domain.PipelineEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal pipeline event")
	}
	return a.produce(ctx, eventKey(event), value)
}

func eventKey(event *domain.PipelineEvent) []byte {
	if event.Deal != nil {
		return []byte(strconv.FormatInt(event.Deal.ID, 10))
	}
	if event.ActionLog != nil {
		return []byte(strconv.FormatInt(event.ActionLog.DealID, 10))
	}
	return []byte(event.EventID)
}

// Close 关闭底层的Kafka writer。
func (a *EventKafkaAdapter) Close() error {
	if a.writer == nil {
		return nil
	}
	return a.writer.Close()
}
