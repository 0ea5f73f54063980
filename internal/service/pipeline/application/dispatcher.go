// internal/service/pipeline/application/dispatcher.go
package application

import (
	"context"
	"sync"
	"time"

	"dealflow/internal/pkg/logger"
	"dealflow/internal/pkg/metrics"
	"dealflow/internal/service/pipeline/domain"
	"dealflow/internal/service/pipeline/domain/port"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultQueueSize   = 256
	DefaultSinkTimeout = 10 * time.Second
)

type queuedEvent struct {
	spanCtx trace.SpanContext
	event   *domain.PipelineEvent
}

// Dispatcher 是写操作之后的出站事件队列。
// Publish 从不阻塞：队列满时丢弃事件并计数。Run 在后台逐个取出事件，
// 并发投递给所有 sink，单个 sink 的错误或 panic 只记录日志。
type Dispatcher struct {
	queue   chan queuedEvent
	sinks   []port.EventSink
	timeout time.Duration
	tracer  trace.Tracer
}

func NewDispatcher(queueSize int, sinkTimeout time.Duration, sinks ...port.EventSink) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if sinkTimeout <= 0 {
		sinkTimeout = DefaultSinkTimeout
	}
	return &Dispatcher{
		queue:   make(chan queuedEvent, queueSize),
		sinks:   sinks,
		timeout: sinkTimeout,
		tracer:  otel.Tracer(serviceName),
	}
}

// AddSink 必须在 Run 之前调用
func (d *Dispatcher) AddSink(sink port.EventSink) {
	d.sinks = append(d.sinks, sink)
}

func (d *Dispatcher) Publish(ctx context.Context, event *domain.PipelineEvent) {
	item := queuedEvent{spanCtx: trace.SpanContextFromContext(ctx), event: event}
	select {
	case d.queue <- item:
		metrics.EventsPublished.WithLabelValues(string(event.Type)).Inc()
	default:
		metrics.EventsDropped.WithLabelValues(string(event.Type)).Inc()
		logger.Ctx(ctx).Warn().Str("event_type", string(event.Type)).Str("event_id", event.EventID).Msg("event queue full, dropping event")
	}
}

// Run 持续消费队列直到 ctx 结束
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case item := <-d.queue:
			d.dispatch(item)
		}
	}
}

func (d *Dispatcher) dispatch(item queuedEvent) {
	// 请求的 ctx 在响应返回后就会被取消，这里只保留链路信息
	base := trace.ContextWithRemoteSpanContext(context.Background(), item.spanCtx)
	ctx, span := d.tracer.Start(base, "dispatch "+string(item.event.Type), trace.WithSpanKind(trace.SpanKindProducer))
	span.SetAttributes(attribute.String("event.id", item.event.EventID))
	defer span.End()

	var wg sync.WaitGroup
	for _, sink := range d.sinks {
		wg.Add(1)
		go func(sink port.EventSink) {
			defer wg.Done()
			d.deliver(ctx, sink, item.event)
		}(sink)
	}
	wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, sink port.EventSink, event *domain.PipelineEvent) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	err := safeDeliver(ctx, sink, event)
	if err != nil {
		metrics.SinkDeliveries.WithLabelValues(sink.Name(), "error").Inc()
		logger.Ctx(ctx).Error().Err(err).
			Str("sink", sink.Name()).
			Str("event_type", string(event.Type)).
			Str("event_id", event.EventID).
			Msg("event delivery failed")
		return
	}
	metrics.SinkDeliveries.WithLabelValues(sink.Name(), "ok").Inc()
}

func safeDeliver(ctx context.Context, sink port.EventSink, event *domain.PipelineEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("sink %s panicked: %v", sink.Name(), r)
		}
	}()
	return sink.Deliver(ctx, event)
}

// AnalysisSink 对新建的行动记录调用分析服务，并把摘要写回商谈
type AnalysisSink struct {
	analyzer port.Analyzer
	service  *PipelineService
}

func NewAnalysisSink(analyzer port.Analyzer, service *PipelineService) *AnalysisSink {
	return &AnalysisSink{analyzer: analyzer, service: service}
}

func (a *AnalysisSink) Name() string { return "analysis" }

func (a *AnalysisSink) Deliver(ctx context.Context, event *domain.PipelineEvent) error {
	if event.Type != domain.EventActionLogCreated || event.ActionLog == nil || event.Deal == nil {
		return nil
	}
	analysis, err := a.analyzer.Analyze(ctx, event.ActionLog, event.Deal)
	if err != nil {
		return err
	}
	logger.Ctx(ctx).Info().
		Int64("deal_id", event.Deal.ID).
		Int("progress_score", analysis.ProgressScore).
		Bool("status_appropriate", analysis.StatusAppropriate).
		Strs("risk_factors", analysis.RiskFactors).
		Msg("action log analysed")
	return a.service.RecordAnalysis(ctx, event.Deal.ID, analysis)
}
