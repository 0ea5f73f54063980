// internal/service/pipeline/application/action_log_service.go
package application

import (
	"context"

	"dealflow/internal/pkg/logger"
	"dealflow/internal/pkg/metrics"
	"dealflow/internal/service/pipeline/domain"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

// CreateActionLog 为已存在的商谈追加一条记录，并根据最新记录刷新商谈
func (s *PipelineService) CreateActionLog(ctx context.Context, cmd CreateActionLogCommand) (log *domain.ActionLog, err error) {
	ctx, span := s.tracer.Start(ctx, "app.CreateActionLog")
	span.SetAttributes(attribute.Int64("deal.id", cmd.DealID))
	defer func() { finishSpan(span, err) }()

	candidate, err := domain.NewActionLog(domain.ActionLog{
		DealID:         cmd.DealID,
		Title:          cmd.Title,
		ActionDate:     cmd.ActionDate,
		ActionDetails:  cmd.ActionDetails,
		NextAction:     cmd.NextAction,
		NextActionDate: cmd.NextActionDate,
		Status:         cmd.Status,
		Attachments:    cmd.Attachments,
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	owner, err := s.store.Deals().Get(ctx, cmd.DealID)
	if err != nil {
		return nil, err
	}
	// 未指定状态时记录写入时刻的商谈状态
	if candidate.Status == "" {
		candidate.Status = owner.Status
	}
	log, err = s.store.ActionLogs().Insert(ctx, candidate)
	if err != nil {
		return nil, errors.Wrap(err, "insert action log")
	}
	metrics.ActionLogsCreated.Inc()

	deal, change, err := s.recomputeDealLocked(ctx, log.DealID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, domain.EventActionLogCreated, deal, log, nil)
	if change != nil {
		s.statusChanged(ctx, deal, log, change.From)
	}
	return log, nil
}

func (s *PipelineService) GetActionLog(ctx context.Context, id int64) (*domain.ActionLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.ActionLogs().Get(ctx, id)
}

// ListActionLogs 返回全部记录，dealID > 0 时只返回该商谈的记录。按行动日倒序。
func (s *PipelineService) ListActionLogs(ctx context.Context, dealID int64) ([]*domain.ActionLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		logs []*domain.ActionLog
		err  error
	)
	if dealID > 0 {
		logs, err = s.store.ActionLogs().ListByDeal(ctx, dealID)
	} else {
		logs, err = s.store.ActionLogs().List(ctx)
	}
	if err != nil {
		return nil, err
	}
	domain.SortByActionDateDesc(logs)
	return logs, nil
}

// LogsForDeal 返回商谈的全部记录，顺序不作保证
func (s *PipelineService) LogsForDeal(ctx context.Context, dealID int64) ([]*domain.ActionLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.ActionLogs().ListByDeal(ctx, dealID)
}

// UpdateActionLog 修正一条记录，并根据最新记录刷新商谈
func (s *PipelineService) UpdateActionLog(ctx context.Context, id int64, patch domain.ActionLogPatch) (log *domain.ActionLog, err error) {
	ctx, span := s.tracer.Start(ctx, "app.UpdateActionLog")
	span.SetAttributes(attribute.Int64("action_log.id", id))
	defer func() { finishSpan(span, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	log, err = s.store.ActionLogs().Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	deal, change, err := s.recomputeDealLocked(ctx, log.DealID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, domain.EventActionLogUpdated, deal, log, nil)
	if change != nil {
		s.statusChanged(ctx, deal, log, change.From)
	}
	return log, nil
}

// DeleteActionLog 删除记录。剩余记录为空时清空商谈的下次行动与摘要。
func (s *PipelineService) DeleteActionLog(ctx context.Context, id int64) (err error) {
	ctx, span := s.tracer.Start(ctx, "app.DeleteActionLog")
	span.SetAttributes(attribute.Int64("action_log.id", id))
	defer func() { finishSpan(span, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	log, err := s.store.ActionLogs().Get(ctx, id)
	if err != nil {
		return err
	}
	removed, err := s.store.ActionLogs().Remove(ctx, id)
	if err != nil {
		return errors.Wrap(err, "remove action log")
	}
	if !removed {
		return errors.Wrapf(domain.ErrNotFound, "action log %d", id)
	}
	deal, change, err := s.recomputeDealLocked(ctx, log.DealID)
	if err != nil {
		return err
	}
	s.publish(ctx, domain.EventActionLogDeleted, deal, log, nil)
	if change != nil {
		s.statusChanged(ctx, deal, nil, change.From)
	}
	return nil
}

// recomputeDealLocked 用商谈剩余记录中最新的一条刷新派生字段。
// 商谈已不存在时返回 (nil, nil, nil)。调用方必须持有 s.mu。
func (s *PipelineService) recomputeDealLocked(ctx context.Context, dealID int64) (*domain.Deal, *domain.StatusChange, error) {
	deal, err := s.store.Deals().Get(ctx, dealID)
	if errors.Is(err, domain.ErrNotFound) {
		logger.Ctx(ctx).Warn().Int64("deal_id", dealID).Msg("action log references a missing deal")
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	logs, err := s.store.ActionLogs().ListByDeal(ctx, dealID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "list action logs of deal")
	}

	before := deal.Status
	if latest := domain.LatestLog(logs); latest != nil {
		deal.ApplyLatestLog(latest)
	} else {
		deal.ClearNextAction()
	}
	deal, err = s.store.Deals().Update(ctx, dealID, domain.PatchFromDeal(deal))
	if err != nil {
		return nil, nil, errors.Wrap(err, "update derived deal fields")
	}
	if deal.Status != before {
		return deal, &domain.StatusChange{From: before, To: deal.Status}, nil
	}
	return deal, nil, nil
}
