// internal/service/pipeline/application/views.go
package application

import (
	"context"
	"sort"

	"dealflow/internal/pkg/logger"
	"dealflow/internal/service/pipeline/domain"

	"github.com/pkg/errors"
)

// KanbanBoard 按固定列顺序分组商谈。列内按下次行动日升序，没有日期的排在最后。
func (s *PipelineService) KanbanBoard(ctx context.Context) (*KanbanBoard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	deals, err := s.store.Deals().List(ctx)
	if err != nil {
		return nil, err
	}
	logs, err := s.store.ActionLogs().List(ctx)
	if err != nil {
		return nil, err
	}
	names, err := s.introducerNames(ctx)
	if err != nil {
		return nil, err
	}

	type logStat struct {
		count int
		last  domain.Date
	}
	stats := make(map[int64]*logStat)
	for _, l := range logs {
		st, ok := stats[l.DealID]
		if !ok {
			st = &logStat{}
			stats[l.DealID] = st
		}
		st.count++
		if l.ActionDate.After(st.last) {
			st.last = l.ActionDate
		}
	}

	columns := make(map[domain.Status]*KanbanColumn, len(domain.BoardStatuses))
	board := &KanbanBoard{
		Columns: make([]*KanbanColumn, 0, len(domain.BoardStatuses)),
		Summary: KanbanSummary{Counts: make(map[domain.Status]int, len(domain.BoardStatuses))},
	}
	for _, status := range domain.BoardStatuses {
		col := &KanbanColumn{ID: status, Title: status.Title(), Deals: []*KanbanCard{}}
		columns[status] = col
		board.Columns = append(board.Columns, col)
	}

	for _, d := range deals {
		col, ok := columns[d.Status]
		if !ok {
			logger.Ctx(ctx).Warn().Int64("deal_id", d.ID).Str("status", string(d.Status)).Msg("deal has no board column")
			continue
		}
		card := &KanbanCard{Deal: d, IntroducerName: resolveName(names, d.IntroducerID)}
		if st, ok := stats[d.ID]; ok {
			card.LogCount = st.count
			if !st.last.IsZero() {
				card.LastLogDate = domain.DatePtr(st.last)
			}
		}
		col.Deals = append(col.Deals, card)
	}

	for _, col := range board.Columns {
		sortCards(col.Deals)
		col.Count = len(col.Deals)
		board.Summary.Counts[col.ID] = col.Count
		board.Summary.Total += col.Count
	}
	return board, nil
}

func sortCards(cards []*KanbanCard) {
	sort.SliceStable(cards, func(i, j int) bool {
		a, b := cards[i], cards[j]
		switch ah, bh := a.HasNextActionDate(), b.HasNextActionDate(); {
		case ah && !bh:
			return true
		case !ah && bh:
			return false
		case ah && bh && !a.NextActionDate.Equal(*b.NextActionDate):
			return a.NextActionDate.Before(*b.NextActionDate)
		}
		return a.ID < b.ID
	})
}

// Stats 汇总仪表盘统计。逾期数与 DealsRequiringAttention(今天) 一致。
func (s *PipelineService) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	deals, err := s.store.Deals().List(ctx)
	if err != nil {
		return nil, err
	}
	logs, err := s.store.ActionLogs().List(ctx)
	if err != nil {
		return nil, err
	}
	introducers, err := s.store.Introducers().List(ctx)
	if err != nil {
		return nil, err
	}

	today := s.today()
	out := &Stats{
		TotalDeals:       len(deals),
		TotalActionLogs:  len(logs),
		TotalIntroducers: len(introducers),
		StatusCounts:     make(map[domain.Status]int, len(domain.BoardStatuses)),
		OverdueDeals:     len(s.filterAttention(ctx, deals, today)),
		AsOf:             today,
		GeneratedAt:      s.clock(),
	}
	for _, status := range domain.BoardStatuses {
		out.StatusCounts[status] = 0
	}
	for _, d := range deals {
		out.StatusCounts[d.Status]++
	}
	return out, nil
}

func (s *PipelineService) CreateIntroducer(ctx context.Context, cmd CreateIntroducerCommand) (*domain.Introducer, error) {
	candidate, err := domain.NewIntroducer(domain.Introducer{
		Name:    cmd.Name,
		Company: cmd.Company,
		Role:    cmd.Role,
		Email:   cmd.Email,
		Phone:   cmd.Phone,
		Status:  cmd.Status,
	})
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	introducer, err := s.store.Introducers().Insert(ctx, candidate)
	if err != nil {
		return nil, errors.Wrap(err, "insert introducer")
	}
	logger.Ctx(ctx).Info().Int64("introducer_id", introducer.ID).Msg("introducer created")
	return introducer, nil
}

func (s *PipelineService) GetIntroducer(ctx context.Context, id int64) (*domain.Introducer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Introducers().Get(ctx, id)
}

func (s *PipelineService) ListIntroducers(ctx context.Context) ([]*domain.Introducer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Introducers().List(ctx)
}

func (s *PipelineService) introducerNames(ctx context.Context) (map[int64]string, error) {
	introducers, err := s.store.Introducers().List(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(introducers))
	for _, i := range introducers {
		names[i.ID] = i.Name
	}
	return names, nil
}

func resolveName(names map[int64]string, id *int64) string {
	if id == nil {
		return domain.UnknownIntroducerName
	}
	if name, ok := names[*id]; ok {
		return name
	}
	return domain.UnknownIntroducerName
}
