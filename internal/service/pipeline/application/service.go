// internal/service/pipeline/application/service.go
package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"dealflow/internal/pkg/logger"
	"dealflow/internal/pkg/tracing"
	"dealflow/internal/service/pipeline/domain"
	"dealflow/internal/service/pipeline/domain/port"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "dealflow"

// Clock 返回当前时刻（应已转换到业务时区）
type Clock func() time.Time

// EventPublisher 接收提交后的事件。实现方不得阻塞调用方。
type EventPublisher interface {
	Publish(ctx context.Context, event *domain.PipelineEvent)
}

// PipelineService 编排商谈、行动记录、介绍人的全部用例。
//
// 所有写操作都在 mu 保护下作为一个不可分割的单元执行，
// 保证 "查找或创建商谈 -> 追加记录" 之间不会被其他请求插入。
// 多进程共享 MySQL 时，再由 locker 提供跨进程的键控互斥。
type PipelineService struct {
	store     domain.Store
	publisher EventPublisher
	locker    port.DealLocker
	attention *AttentionRule
	clock     Clock
	tracer    trace.Tracer

	mu sync.RWMutex
}

// NewPipelineService 创建服务实例。publisher / locker / attention / clock / tracer 均可为 nil，使用默认实现。
func NewPipelineService(store domain.Store, publisher EventPublisher, locker port.DealLocker, attention *AttentionRule, clock Clock, tracer trace.Tracer) *PipelineService {
	if publisher == nil {
		publisher = discardPublisher{}
	}
	if locker == nil {
		locker = noopLocker{}
	}
	if attention == nil {
		attention = MustAttentionRule(DefaultAttentionExpr)
	}
	if clock == nil {
		clock = time.Now
	}
	if tracer == nil {
		tracer = otel.Tracer(serviceName)
	}
	return &PipelineService{
		store:     store,
		publisher: publisher,
		locker:    locker,
		attention: attention,
		clock:     clock,
		tracer:    tracer,
	}
}

// Today 返回业务时区下的今天
func (s *PipelineService) Today() domain.Date { return s.today() }

func (s *PipelineService) today() domain.Date {
	return domain.DateOf(s.clock())
}

// finishSpan 统一记录错误并结束 span
func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// lockDeal 获取 (商品, 方案) 维度的跨进程锁
func (s *PipelineService) lockDeal(ctx context.Context, productName, proposalMenu string) (func(), error) {
	sum := sha256.Sum256([]byte(productName + "\x00" + proposalMenu))
	unlock, err := s.locker.Lock(ctx, "deal-"+hex.EncodeToString(sum[:12]))
	if err != nil {
		return nil, errors.Wrap(err, "acquire deal lock")
	}
	return unlock, nil
}

// publish 构造事件并投递给发布器，永不失败
func (s *PipelineService) publish(ctx context.Context, typ domain.EventType, deal *domain.Deal, log *domain.ActionLog, change *domain.StatusChange) {
	event := &domain.PipelineEvent{
		EventID:      uuid.New().String(),
		Type:         typ,
		OccurredAt:   s.clock(),
		Deal:         deal.Clone(),
		ActionLog:    log.Clone(),
		StatusChange: change,
		TraceID:      tracing.GetTraceIDFromContext(ctx),
	}
	if deal != nil && deal.IntroducerID != nil {
		event.IntroducerName = s.introducerName(ctx, deal.IntroducerID)
	}
	s.publisher.Publish(ctx, event)
}

// introducerName 解析介绍人名称，引用为空或悬空时返回占位名
func (s *PipelineService) introducerName(ctx context.Context, id *int64) string {
	if id == nil {
		return domain.UnknownIntroducerName
	}
	introducer, err := s.store.Introducers().Get(ctx, *id)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			logger.Ctx(ctx).Warn().Err(err).Int64("introducer_id", *id).Msg("failed to resolve introducer")
		}
		return domain.UnknownIntroducerName
	}
	return introducer.Name
}

type discardPublisher struct{}

func (discardPublisher) Publish(context.Context, *domain.PipelineEvent) {}

type noopLocker struct{}

func (noopLocker) Lock(context.Context, string) (func(), error) { return func() {}, nil }
