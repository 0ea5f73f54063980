// internal/service/pipeline/application/deal_service.go
package application

import (
	"context"
	"sort"
	"strings"

	"dealflow/internal/pkg/logger"
	"dealflow/internal/pkg/metrics"
	"dealflow/internal/service/pipeline/domain"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

// FindDealByProductAndMenu 精确匹配，找不到返回 (nil, nil)
func (s *PipelineService) FindDealByProductAndMenu(ctx context.Context, productName, proposalMenu string) (*domain.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Deals().FindByProductAndMenu(ctx, productName, proposalMenu)
}

// CreateDeal 直接创建商谈。同一 (商品, 方案) 已存在时返回 ErrConflict。
func (s *PipelineService) CreateDeal(ctx context.Context, cmd CreateDealCommand) (deal *domain.Deal, err error) {
	ctx, span := s.tracer.Start(ctx, "app.CreateDeal")
	defer func() { finishSpan(span, err) }()

	unlock, err := s.lockDeal(ctx, strings.TrimSpace(cmd.ProductName), strings.TrimSpace(cmd.ProposalMenu))
	if err != nil {
		return nil, err
	}
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	candidate := domain.Deal{
		ProductName:     cmd.ProductName,
		ProposalMenu:    cmd.ProposalMenu,
		Representative:  cmd.Representative,
		IntroducerID:    cmd.IntroducerID,
		Status:          cmd.Status,
		Priority:        cmd.Priority,
		EstimatedAmount: cmd.EstimatedAmount,
		NextAction:      cmd.NextAction,
		NextActionDate:  cmd.NextActionDate,
		Summary:         cmd.Summary,
		ProgressRate:    domain.DefaultProgressRate,
	}
	if cmd.ProgressRate != nil {
		candidate.ProgressRate = *cmd.ProgressRate
	}
	deal, err = s.insertDealLocked(ctx, candidate)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("deal.id", deal.ID))

	s.publish(ctx, domain.EventDealCreated, deal, nil, nil)
	return deal, nil
}

// insertDealLocked 校验、查重并写入。调用方必须持有 s.mu。
func (s *PipelineService) insertDealLocked(ctx context.Context, candidate domain.Deal) (*domain.Deal, error) {
	deal, err := domain.NewDeal(candidate, s.today())
	if err != nil {
		return nil, err
	}
	existing, err := s.store.Deals().FindByProductAndMenu(ctx, deal.ProductName, deal.ProposalMenu)
	if err != nil {
		return nil, errors.Wrap(err, "check duplicate deal")
	}
	if existing != nil {
		return nil, errors.Wrapf(domain.ErrConflict, "deal for %q / %q already exists (id %d)", deal.ProductName, deal.ProposalMenu, existing.ID)
	}
	deal, err = s.store.Deals().Insert(ctx, deal)
	if err != nil {
		return nil, errors.Wrap(err, "insert deal")
	}
	metrics.DealsCreated.Inc()
	logger.Ctx(ctx).Info().Int64("deal_id", deal.ID).Str("product", deal.ProductName).Str("menu", deal.ProposalMenu).Msg("deal created")
	return deal, nil
}

func (s *PipelineService) GetDeal(ctx context.Context, id int64) (*domain.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Deals().Get(ctx, id)
}

func (s *PipelineService) ListDeals(ctx context.Context) ([]*domain.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Deals().List(ctx)
}

// UpdateDeal 合并补丁。状态变化时额外发布 deal.status_changed。
func (s *PipelineService) UpdateDeal(ctx context.Context, id int64, patch domain.DealPatch) (deal *domain.Deal, err error) {
	ctx, span := s.tracer.Start(ctx, "app.UpdateDeal")
	span.SetAttributes(attribute.Int64("deal.id", id))
	defer func() { finishSpan(span, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	before, err := s.store.Deals().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	deal, err = s.store.Deals().Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domain.EventDealUpdated, deal, nil, nil)
	if before.Status != deal.Status {
		s.statusChanged(ctx, deal, nil, before.Status)
	}
	return deal, nil
}

// DeleteDeal 删除商谈及其全部行动记录
func (s *PipelineService) DeleteDeal(ctx context.Context, id int64) (err error) {
	ctx, span := s.tracer.Start(ctx, "app.DeleteDeal")
	span.SetAttributes(attribute.Int64("deal.id", id))
	defer func() { finishSpan(span, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	deal, err := s.store.Deals().Get(ctx, id)
	if err != nil {
		return err
	}
	logs, err := s.store.ActionLogs().ListByDeal(ctx, id)
	if err != nil {
		return errors.Wrap(err, "list action logs of deal")
	}
	for _, l := range logs {
		if _, err := s.store.ActionLogs().Remove(ctx, l.ID); err != nil {
			return errors.Wrapf(err, "remove action log %d", l.ID)
		}
	}
	removed, err := s.store.Deals().Remove(ctx, id)
	if err != nil {
		return errors.Wrap(err, "remove deal")
	}
	if !removed {
		return errors.Wrapf(domain.ErrNotFound, "deal %d", id)
	}
	logger.Ctx(ctx).Info().Int64("deal_id", id).Int("action_logs", len(logs)).Msg("deal deleted")

	s.publish(ctx, domain.EventDealDeleted, deal, nil, nil)
	return nil
}

// DealsRequiringAttention 返回下次行动日临近或已过期的商谈，按下次行动日升序
func (s *PipelineService) DealsRequiringAttention(ctx context.Context, asOf domain.Date) ([]*domain.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	deals, err := s.store.Deals().List(ctx)
	if err != nil {
		return nil, err
	}
	return s.filterAttention(ctx, deals, asOf), nil
}

// filterAttention 规则求值失败的商谈记录日志后跳过
func (s *PipelineService) filterAttention(ctx context.Context, deals []*domain.Deal, asOf domain.Date) []*domain.Deal {
	out := make([]*domain.Deal, 0)
	for _, d := range deals {
		ok, err := s.attention.Matches(d, asOf)
		if err != nil {
			logger.Ctx(ctx).Warn().Err(err).Int64("deal_id", d.ID).Msg("attention rule failed")
			continue
		}
		if ok {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].NextActionDate.Before(*out[j].NextActionDate)
	})
	return out
}

// DealWithRelations 返回商谈、介绍人名称以及按行动日倒序的行动记录
func (s *PipelineService) DealWithRelations(ctx context.Context, id int64) (*DealDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	deal, err := s.store.Deals().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	logs, err := s.store.ActionLogs().ListByDeal(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "list action logs of deal")
	}
	domain.SortByActionDateDesc(logs)
	return &DealDetail{
		Deal:           deal,
		IntroducerName: s.introducerName(ctx, deal.IntroducerID),
		ActionLogs:     logs,
	}, nil
}

// RecordAnalysis 把分析结果中的摘要写回商谈。不发布事件。
func (s *PipelineService) RecordAnalysis(ctx context.Context, dealID int64, analysis *domain.Analysis) error {
	if analysis == nil || analysis.Summary == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	summary := analysis.Summary
	_, err := s.store.Deals().Update(ctx, dealID, domain.DealPatch{Summary: &summary})
	return err
}

// statusChanged 记录状态流转指标并发布事件
func (s *PipelineService) statusChanged(ctx context.Context, deal *domain.Deal, log *domain.ActionLog, from domain.Status) {
	metrics.StatusTransitions.WithLabelValues(string(deal.Status)).Inc()
	logger.Ctx(ctx).Info().Int64("deal_id", deal.ID).Str("from", string(from)).Str("to", string(deal.Status)).Msg("deal status changed")
	s.publish(ctx, domain.EventDealStatusChanged, deal, log, &domain.StatusChange{From: from, To: deal.Status})
}
