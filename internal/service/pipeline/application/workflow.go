// internal/service/pipeline/application/workflow.go
package application

import (
	"context"
	"fmt"
	"strings"

	"dealflow/internal/pkg/logger"
	"dealflow/internal/pkg/metrics"
	"dealflow/internal/service/pipeline/domain"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

const (
	contactLogTitle      = "Contact record"
	statusChangeLogTitle = "Status change"
)

func (c *SubmitContactCommand) validate() error {
	c.ProductName = strings.TrimSpace(c.ProductName)
	c.ProposalMenu = strings.TrimSpace(c.ProposalMenu)
	c.Representative = strings.TrimSpace(c.Representative)
	switch {
	case c.ProductName == "":
		return errors.Wrap(domain.ErrValidation, "productName is required")
	case c.ProposalMenu == "":
		return errors.Wrap(domain.ErrValidation, "proposalMenu is required")
	case c.Representative == "":
		return errors.Wrap(domain.ErrValidation, "representative is required")
	case c.ActionDate.IsZero():
		return errors.Wrap(domain.ErrValidation, "actionDate is required")
	}
	if c.Status != "" && !c.Status.Valid() {
		return errors.Wrapf(domain.ErrValidation, "unknown status %q", c.Status)
	}
	return nil
}

// SubmitContact 登记一次联系：查找或创建商谈，刷新商谈，再追加行动记录。
// 整个过程在同一个临界区内完成，同一 (商品, 方案) 的并发提交不会产生重复商谈。
func (s *PipelineService) SubmitContact(ctx context.Context, cmd SubmitContactCommand) (result *SubmitContactResult, err error) {
	ctx, span := s.tracer.Start(ctx, "app.SubmitContact")
	defer func() { finishSpan(span, err) }()

	if err := cmd.validate(); err != nil {
		return nil, err
	}

	unlock, err := s.lockDeal(ctx, cmd.ProductName, cmd.ProposalMenu)
	if err != nil {
		return nil, err
	}
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.store.Deals().FindByProductAndMenu(ctx, cmd.ProductName, cmd.ProposalMenu)
	if err != nil {
		return nil, errors.Wrap(err, "find deal")
	}

	var (
		deal    *domain.Deal
		updates ContactUpdates
	)
	if existing == nil {
		deal, err = s.insertDealLocked(ctx, domain.Deal{
			ProductName:     cmd.ProductName,
			ProposalMenu:    cmd.ProposalMenu,
			Representative:  cmd.Representative,
			IntroducerID:    cmd.IntroducerID,
			Status:          cmd.Status,
			ProgressRate:    domain.DefaultProgressRate,
			LastContactDate: cmd.ActionDate,
			NextAction:      deref(cmd.NextAction),
			NextActionDate:  cmd.NextActionDate,
		})
		if err != nil {
			return nil, err
		}
		updates.DealCreated = true
	} else {
		updates.OldStatus = existing.Status
		patch := domain.DealPatch{
			Representative:  &cmd.Representative,
			LastContactDate: &cmd.ActionDate,
		}
		if cmd.IntroducerID != nil {
			patch.IntroducerID = &cmd.IntroducerID
		}
		if cmd.NextAction != nil {
			patch.NextAction = cmd.NextAction
		}
		if cmd.NextActionDate != nil {
			patch.NextActionDate = &cmd.NextActionDate
		}
		if cmd.Status != "" {
			patch.Status = &cmd.Status
		}
		deal, err = s.store.Deals().Update(ctx, existing.ID, patch)
		if err != nil {
			return nil, errors.Wrap(err, "refresh deal")
		}
		updates.StatusChanged = deal.Status != existing.Status
	}
	updates.NewStatus = deal.Status
	span.SetAttributes(attribute.Int64("deal.id", deal.ID), attribute.Bool("deal.created", updates.DealCreated))

	title := strings.TrimSpace(cmd.Title)
	if title == "" {
		title = contactLogTitle
	}
	candidate, err := domain.NewActionLog(domain.ActionLog{
		DealID:         deal.ID,
		Title:          title,
		ActionDate:     cmd.ActionDate,
		ActionDetails:  cmd.ActionDetails,
		NextAction:     deref(cmd.NextAction),
		NextActionDate: cmd.NextActionDate,
		Status:         deal.Status,
		Attachments:    cmd.Attachments,
	})
	if err != nil {
		return nil, err
	}
	log, err := s.store.ActionLogs().Insert(ctx, candidate)
	if err != nil {
		return nil, errors.Wrap(err, "insert action log")
	}
	metrics.ActionLogsCreated.Inc()
	logger.Ctx(ctx).Info().
		Int64("deal_id", deal.ID).
		Int64("action_log_id", log.ID).
		Bool("deal_created", updates.DealCreated).
		Bool("status_changed", updates.StatusChanged).
		Msg("contact submitted")

	if updates.DealCreated {
		s.publish(ctx, domain.EventDealCreated, deal, nil, nil)
	}
	s.publish(ctx, domain.EventActionLogCreated, deal, log, nil)
	if updates.StatusChanged {
		s.statusChanged(ctx, deal, log, updates.OldStatus)
	}
	return &SubmitContactResult{ActionLog: log, Deal: deal, Updates: updates}, nil
}

// MoveCard 在看板上移动商谈：更新状态与最后联系日，并追加一条状态变更记录
func (s *PipelineService) MoveCard(ctx context.Context, cmd MoveCardCommand) (result *MoveCardResult, err error) {
	ctx, span := s.tracer.Start(ctx, "app.MoveCard")
	span.SetAttributes(attribute.Int64("deal.id", cmd.DealID), attribute.String("deal.new_status", string(cmd.NewStatus)))
	defer func() { finishSpan(span, err) }()

	if cmd.NewStatus == "" {
		return nil, errors.Wrap(domain.ErrValidation, "newStatus is required")
	}
	if !cmd.NewStatus.Valid() {
		return nil, errors.Wrapf(domain.ErrValidation, "unknown status %q", cmd.NewStatus)
	}
	if cmd.DealID <= 0 {
		return nil, errors.Wrap(domain.ErrValidation, "dealId is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.store.Deals().Get(ctx, cmd.DealID)
	if err != nil {
		return nil, err
	}
	from := current.Status
	if cmd.OldStatus != "" && cmd.OldStatus != from {
		logger.Ctx(ctx).Debug().Int64("deal_id", cmd.DealID).Str("client_status", string(cmd.OldStatus)).Str("stored_status", string(from)).Msg("stale board status from client")
	}

	today := s.today()
	deal, err := s.store.Deals().Update(ctx, cmd.DealID, domain.DealPatch{
		Status:          &cmd.NewStatus,
		LastContactDate: &today,
	})
	if err != nil {
		return nil, errors.Wrap(err, "update deal status")
	}

	candidate, err := domain.NewActionLog(domain.ActionLog{
		DealID:         deal.ID,
		Title:          statusChangeLogTitle,
		ActionDate:     today,
		ActionDetails:  fmt.Sprintf("Status changed from %s to %s", from, deal.Status),
		NextAction:     deal.NextAction,
		NextActionDate: deal.NextActionDate,
		Status:         deal.Status,
	})
	if err != nil {
		return nil, err
	}
	log, err := s.store.ActionLogs().Insert(ctx, candidate)
	if err != nil {
		return nil, errors.Wrap(err, "insert status change log")
	}
	metrics.ActionLogsCreated.Inc()

	change := domain.StatusChange{From: from, To: deal.Status}
	if from != deal.Status {
		s.statusChanged(ctx, deal, log, from)
	} else {
		s.publish(ctx, domain.EventDealUpdated, deal, log, nil)
	}
	return &MoveCardResult{Deal: deal, ChangeLog: log, StatusChange: change}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
