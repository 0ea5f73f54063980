package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"dealflow/internal/service/pipeline/domain"
	"dealflow/internal/service/pipeline/infrastructure/memory"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testToday = domain.NewDate(2024, time.March, 10)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*domain.PipelineEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event *domain.PipelineEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) types() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// storeClock 每次调用前进一秒，保证记录的时间戳互不相同
type storeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *storeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestService(t *testing.T) (*PipelineService, *recordingPublisher) {
	t.Helper()
	clock := &storeClock{t: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)}
	store := memory.NewStore(memory.WithClock(clock.now))
	pub := &recordingPublisher{}
	svc := NewPipelineService(store, pub, nil, nil, func() time.Time {
		return time.Date(2024, 3, 10, 15, 30, 0, 0, time.UTC)
	}, nil)
	return svc, pub
}

func mustCreateDeal(t *testing.T, svc *PipelineService, cmd CreateDealCommand) *domain.Deal {
	t.Helper()
	if cmd.Representative == "" {
		cmd.Representative = "Taro"
	}
	d, err := svc.CreateDeal(context.Background(), cmd)
	require.NoError(t, err)
	return d
}

func TestCreateDealAppliesDefaults(t *testing.T) {
	svc, pub := newTestService(t)

	d := mustCreateDeal(t, svc, CreateDealCommand{ProductName: " Widget ", ProposalMenu: "Basic"})

	assert.Equal(t, "Widget", d.ProductName)
	assert.Equal(t, domain.StatusAppointmentSet, d.Status)
	assert.Equal(t, domain.PriorityMedium, d.Priority)
	assert.Equal(t, domain.DefaultProgressRate, d.ProgressRate)
	assert.True(t, d.LastContactDate.Equal(testToday))
	assert.Equal(t, []domain.EventType{domain.EventDealCreated}, pub.types())
}

func TestCreateDealKeepsExplicitZeroProgress(t *testing.T) {
	svc, _ := newTestService(t)

	zero := 0
	d := mustCreateDeal(t, svc, CreateDealCommand{ProductName: "Widget", ProposalMenu: "Basic", ProgressRate: &zero})
	assert.Equal(t, 0, d.ProgressRate)

	got, err := svc.GetDeal(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.ProgressRate)
}

func TestCreateDealAssignsIncreasingIDs(t *testing.T) {
	svc, _ := newTestService(t)

	seen := map[int64]bool{}
	var last int64
	for _, menu := range []string{"a", "b", "c", "d"} {
		d := mustCreateDeal(t, svc, CreateDealCommand{ProductName: "p", ProposalMenu: menu})
		assert.Greater(t, d.ID, last)
		assert.False(t, seen[d.ID])
		seen[d.ID] = true
		last = d.ID
	}
}

func TestCreateDealValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []CreateDealCommand{
		{ProposalMenu: "m", Representative: "r"},
		{ProductName: "p", Representative: "r"},
		{ProductName: "p", ProposalMenu: "m"},
		{ProductName: "p", ProposalMenu: "m", Representative: "r", Status: "unknown"},
		{ProductName: "p", ProposalMenu: "m", Representative: "r", Priority: "urgent"},
	}
	for _, cmd := range cases {
		_, err := svc.CreateDeal(ctx, cmd)
		assert.True(t, errors.Is(err, domain.ErrValidation), "%+v", cmd)
	}
}

func TestCreateDealRejectsDuplicatePair(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	mustCreateDeal(t, svc, CreateDealCommand{ProductName: "Widget", ProposalMenu: "Basic"})

	_, err := svc.CreateDeal(ctx, CreateDealCommand{
		ProductName: "Widget", ProposalMenu: "Basic", Representative: "Someone else",
		Priority: domain.PriorityHigh, Status: domain.StatusProposed,
	})
	assert.True(t, errors.Is(err, domain.ErrConflict))

	// 名称在写入前去掉首尾空白，因此仍然冲突
	_, err = svc.CreateDeal(ctx, CreateDealCommand{ProductName: " Widget", ProposalMenu: "Basic ", Representative: "r"})
	assert.True(t, errors.Is(err, domain.ErrConflict))

	// 大小写不同视为不同的组合
	_, err = svc.CreateDeal(ctx, CreateDealCommand{ProductName: "widget", ProposalMenu: "Basic", Representative: "r"})
	assert.NoError(t, err)
}

func TestUpdateDeal(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()

	d := mustCreateDeal(t, svc, CreateDealCommand{ProductName: "p", ProposalMenu: "m"})
	amount := int64(5000000)
	amountPtr := &amount
	status := domain.StatusProposed
	updated, err := svc.UpdateDeal(ctx, d.ID, domain.DealPatch{EstimatedAmount: &amountPtr, Status: &status})
	require.NoError(t, err)

	require.NotNil(t, updated.EstimatedAmount)
	assert.Equal(t, int64(5000000), *updated.EstimatedAmount)
	assert.Equal(t, domain.StatusProposed, updated.Status)
	assert.Equal(t, d.ID, updated.ID)
	assert.Equal(t, d.CreatedAt, updated.CreatedAt)
	assert.Contains(t, pub.types(), domain.EventDealStatusChanged)

	_, err = svc.UpdateDeal(ctx, 999, domain.DealPatch{Status: &status})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestDeleteDealRemovesItsLogs(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	d := mustCreateDeal(t, svc, CreateDealCommand{ProductName: "p", ProposalMenu: "m"})
	other := mustCreateDeal(t, svc, CreateDealCommand{ProductName: "p", ProposalMenu: "other"})
	_, err := svc.CreateActionLog(ctx, CreateActionLogCommand{DealID: d.ID, ActionDate: testToday})
	require.NoError(t, err)
	_, err = svc.CreateActionLog(ctx, CreateActionLogCommand{DealID: other.ID, ActionDate: testToday})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteDeal(ctx, d.ID))

	_, err = svc.GetDeal(ctx, d.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	logs, err := svc.ListActionLogs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, other.ID, logs[0].DealID)

	assert.True(t, errors.Is(svc.DeleteDeal(ctx, d.ID), domain.ErrNotFound))
}

func TestDealsRequiringAttentionWindow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	plus3 := mustCreateDeal(t, svc, CreateDealCommand{ProductName: "p", ProposalMenu: "plus3", NextActionDate: domain.DatePtr(testToday.AddDays(3))})
	mustCreateDeal(t, svc, CreateDealCommand{ProductName: "p", ProposalMenu: "plus4", NextActionDate: domain.DatePtr(testToday.AddDays(4))})
	yesterday := mustCreateDeal(t, svc, CreateDealCommand{ProductName: "p", ProposalMenu: "yesterday", NextActionDate: domain.DatePtr(testToday.AddDays(-1))})
	today := mustCreateDeal(t, svc, CreateDealCommand{ProductName: "p", ProposalMenu: "today", NextActionDate: domain.DatePtr(testToday)})
	mustCreateDeal(t, svc, CreateDealCommand{ProductName: "p", ProposalMenu: "undated"})

	deals, err := svc.DealsRequiringAttention(ctx, testToday)
	require.NoError(t, err)

	var ids []int64
	for _, d := range deals {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []int64{yesterday.ID, today.ID, plus3.ID}, ids)
}

func TestDealWithRelations(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	intro, err := svc.CreateIntroducer(ctx, CreateIntroducerCommand{Name: "Hanako"})
	require.NoError(t, err)
	dangling := int64(404)

	d := mustCreateDeal(t, svc, CreateDealCommand{ProductName: "p", ProposalMenu: "m", IntroducerID: &intro.ID})
	orphan := mustCreateDeal(t, svc, CreateDealCommand{ProductName: "p", ProposalMenu: "o", IntroducerID: &dangling})

	for _, date := range []string{"2024-03-01", "2024-03-05", "2024-02-20"} {
		_, err := svc.CreateActionLog(ctx, CreateActionLogCommand{DealID: d.ID, ActionDate: domain.MustParseDate(date)})
		require.NoError(t, err)
	}

	detail, err := svc.DealWithRelations(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hanako", detail.IntroducerName)
	require.Len(t, detail.ActionLogs, 3)
	assert.Equal(t, "2024-03-05", detail.ActionLogs[0].ActionDate.String())
	assert.Equal(t, "2024-03-01", detail.ActionLogs[1].ActionDate.String())
	assert.Equal(t, "2024-02-20", detail.ActionLogs[2].ActionDate.String())

	detail, err = svc.DealWithRelations(ctx, orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.UnknownIntroducerName, detail.IntroducerName)
	assert.Empty(t, detail.ActionLogs)

	_, err = svc.DealWithRelations(ctx, 999)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestCreateActionLogRequiresExistingDeal(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateActionLog(ctx, CreateActionLogCommand{})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = svc.CreateActionLog(ctx, CreateActionLogCommand{DealID: 42})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestCreateActionLogRollsDealForward(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()

	d := mustCreateDeal(t, svc, CreateDealCommand{ProductName: "p", ProposalMenu: "m"})
	log, err := svc.CreateActionLog(ctx, CreateActionLogCommand{
		DealID:         d.ID,
		ActionDate:     domain.MustParseDate("2024-03-08"),
		NextAction:     "send quote",
		NextActionDate: domain.DatePtr(domain.MustParseDate("2024-03-15")),
		Status:         domain.StatusProposed,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{}, log.Attachments)
	assert.Equal(t, domain.StatusProposed, log.Status)

	got, err := svc.GetDeal(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProposed, got.Status)
	assert.Equal(t, "send quote", got.NextAction)
	assert.Equal(t, "2024-03-15", got.NextActionDate.String())
	assert.Equal(t, "2024-03-08", got.LastContactDate.String())
	assert.Contains(t, pub.types(), domain.EventActionLogCreated)
	assert.Contains(t, pub.types(), domain.EventDealStatusChanged)
}

func TestCreateActionLogSnapshotsDealStatus(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	d := mustCreateDeal(t, svc, CreateDealCommand{ProductName: "p", ProposalMenu: "m", Status: domain.StatusInNegotiation})
	log, err := svc.CreateActionLog(ctx, CreateActionLogCommand{
		DealID:     d.ID,
		Title:      "call",
		ActionDate: domain.MustParseDate("2024-03-08"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInNegotiation, log.Status)

	stored, err := svc.GetActionLog(ctx, log.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInNegotiation, stored.Status)

	got, err := svc.GetDeal(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInNegotiation, got.Status)
}

func TestDeleteOnlyLogClearsNextActionAndSummary(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	d := mustCreateDeal(t, svc, CreateDealCommand{ProductName: "p", ProposalMenu: "m", Summary: "old summary"})
	log, err := svc.CreateActionLog(ctx, CreateActionLogCommand{
		DealID:         d.ID,
		ActionDate:     testToday,
		NextAction:     "call",
		NextActionDate: domain.DatePtr(testToday.AddDays(2)),
		Status:         domain.StatusInNegotiation,
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteActionLog(ctx, log.ID))

	got, err := svc.GetDeal(ctx, d.ID)
	require.NoError(t, err)
	assert.Empty(t, got.NextAction)
	assert.Nil(t, got.NextActionDate)
	assert.Empty(t, got.Summary)
	assert.Equal(t, domain.StatusInNegotiation, got.Status)

	assert.True(t, errors.Is(svc.DeleteActionLog(ctx, log.ID), domain.ErrNotFound))
}

func TestDeleteOneOfSeveralLogsDerivesFromLatestRemaining(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	d := mustCreateDeal(t, svc, CreateDealCommand{ProductName: "p", ProposalMenu: "m"})
	create := func(next string, status domain.Status, date string) *domain.ActionLog {
		l, err := svc.CreateActionLog(ctx, CreateActionLogCommand{
			DealID:         d.ID,
			ActionDate:     domain.MustParseDate(date),
			NextAction:     next,
			NextActionDate: domain.DatePtr(domain.MustParseDate(date).AddDays(7)),
			Status:         status,
		})
		require.NoError(t, err)
		return l
	}
	a := create("a", domain.StatusInNegotiation, "2024-03-01")
	create("b", domain.StatusProposed, "2024-03-02")
	c := create("c", domain.StatusPendingApproval, "2024-03-03")

	// 修改 a 之后它成为最近更新的记录
	details := "corrected"
	_, err := svc.UpdateActionLog(ctx, a.ID, domain.ActionLogPatch{ActionDetails: &details})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteActionLog(ctx, c.ID))

	got, err := svc.GetDeal(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", got.NextAction)
	assert.Equal(t, domain.StatusInNegotiation, got.Status)
	assert.Equal(t, "2024-03-08", got.NextActionDate.String())
	assert.Equal(t, "2024-03-01", got.LastContactDate.String())
}

func TestUpdateActionLogNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	title := "x"
	_, err := svc.UpdateActionLog(context.Background(), 5, domain.ActionLogPatch{Title: &title})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestSubmitContactCreatesThenUpdatesSameDeal(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()

	first, err := svc.SubmitContact(ctx, SubmitContactCommand{
		ProductName: "X", ProposalMenu: "Y", Representative: "R",
		ActionDate: domain.MustParseDate("2024-01-01"),
	})
	require.NoError(t, err)
	assert.True(t, first.Updates.DealCreated)
	assert.False(t, first.Updates.StatusChanged)
	assert.Equal(t, domain.StatusAppointmentSet, first.Deal.Status)
	assert.Equal(t, 10, first.Deal.ProgressRate)
	assert.Equal(t, first.Deal.ID, first.ActionLog.DealID)
	assert.Equal(t, domain.StatusAppointmentSet, first.ActionLog.Status)

	next := "demo"
	second, err := svc.SubmitContact(ctx, SubmitContactCommand{
		ProductName: "X", ProposalMenu: "Y", Representative: "R2",
		ActionDate: domain.MustParseDate("2024-01-05"),
		NextAction: &next,
		Status:     domain.StatusInNegotiation,
	})
	require.NoError(t, err)
	assert.False(t, second.Updates.DealCreated)
	assert.True(t, second.Updates.StatusChanged)
	assert.Equal(t, domain.StatusAppointmentSet, second.Updates.OldStatus)
	assert.Equal(t, domain.StatusInNegotiation, second.Updates.NewStatus)
	assert.Equal(t, first.Deal.ID, second.Deal.ID)
	assert.Equal(t, "R2", second.Deal.Representative)
	assert.Equal(t, "demo", second.Deal.NextAction)
	assert.Equal(t, "2024-01-05", second.Deal.LastContactDate.String())
	assert.Equal(t, domain.StatusInNegotiation, second.ActionLog.Status)

	deals, err := svc.ListDeals(ctx)
	require.NoError(t, err)
	assert.Len(t, deals, 1)
	logs, err := svc.LogsForDeal(ctx, first.Deal.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 2)

	assert.Equal(t, []domain.EventType{
		domain.EventDealCreated,
		domain.EventActionLogCreated,
		domain.EventActionLogCreated,
		domain.EventDealStatusChanged,
	}, pub.types())
}

func TestSubmitContactKeepsUnsuppliedFields(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	next := "visit"
	due := domain.DatePtr(domain.MustParseDate("2024-03-20"))
	_, err := svc.SubmitContact(ctx, SubmitContactCommand{
		ProductName: "X", ProposalMenu: "Y", Representative: "R",
		ActionDate: testToday, NextAction: &next, NextActionDate: due, Status: domain.StatusProposed,
	})
	require.NoError(t, err)

	res, err := svc.SubmitContact(ctx, SubmitContactCommand{
		ProductName: "X", ProposalMenu: "Y", Representative: "R", ActionDate: testToday,
	})
	require.NoError(t, err)
	assert.Equal(t, "visit", res.Deal.NextAction)
	assert.Equal(t, "2024-03-20", res.Deal.NextActionDate.String())
	assert.Equal(t, domain.StatusProposed, res.Deal.Status)
	assert.False(t, res.Updates.StatusChanged)
}

func TestSubmitContactValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []SubmitContactCommand{
		{ProposalMenu: "Y", Representative: "R", ActionDate: testToday},
		{ProductName: "X", Representative: "R", ActionDate: testToday},
		{ProductName: "X", ProposalMenu: "Y", ActionDate: testToday},
		{ProductName: "X", ProposalMenu: "Y", Representative: "R"},
		{ProductName: "X", ProposalMenu: "Y", Representative: "R", ActionDate: testToday, Status: "bogus"},
	}
	for _, cmd := range cases {
		_, err := svc.SubmitContact(ctx, cmd)
		assert.True(t, errors.Is(err, domain.ErrValidation), "%+v", cmd)
	}
	deals, _ := svc.ListDeals(ctx)
	assert.Empty(t, deals)
}

func TestSubmitContactConcurrentSamePair(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.SubmitContact(ctx, SubmitContactCommand{
				ProductName: "X", ProposalMenu: "Y", Representative: "R", ActionDate: testToday,
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	deals, err := svc.ListDeals(ctx)
	require.NoError(t, err)
	require.Len(t, deals, 1)
	logs, err := svc.LogsForDeal(ctx, deals[0].ID)
	require.NoError(t, err)
	assert.Len(t, logs, n)
}

func TestMoveCard(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()

	d := mustCreateDeal(t, svc, CreateDealCommand{
		ProductName: "p", ProposalMenu: "m", Status: domain.StatusInNegotiation,
		NextAction: "sign", NextActionDate: domain.DatePtr(testToday.AddDays(5)),
	})
	_, err := svc.UpdateDeal(ctx, d.ID, domain.DealPatch{LastContactDate: domain.DatePtr(domain.MustParseDate("2024-01-01"))})
	require.NoError(t, err)

	res, err := svc.MoveCard(ctx, MoveCardCommand{DealID: d.ID, NewStatus: domain.StatusWon})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusWon, res.Deal.Status)
	assert.True(t, res.Deal.LastContactDate.Equal(testToday))
	assert.Equal(t, domain.StatusChange{From: domain.StatusInNegotiation, To: domain.StatusWon}, res.StatusChange)
	assert.Equal(t, d.ID, res.ChangeLog.DealID)
	assert.True(t, res.ChangeLog.ActionDate.Equal(testToday))
	assert.Contains(t, res.ChangeLog.ActionDetails, "in-negotiation")
	assert.Contains(t, res.ChangeLog.ActionDetails, "won")
	assert.Equal(t, "sign", res.ChangeLog.NextAction)
	assert.Equal(t, domain.StatusWon, res.ChangeLog.Status)

	logs, err := svc.LogsForDeal(ctx, d.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
	assert.Contains(t, pub.types(), domain.EventDealStatusChanged)
}

func TestMoveCardErrors(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	d := mustCreateDeal(t, svc, CreateDealCommand{ProductName: "p", ProposalMenu: "m"})

	_, err := svc.MoveCard(ctx, MoveCardCommand{DealID: d.ID})
	assert.True(t, errors.Is(err, domain.ErrValidation))
	_, err = svc.MoveCard(ctx, MoveCardCommand{NewStatus: domain.StatusWon})
	assert.True(t, errors.Is(err, domain.ErrValidation))
	_, err = svc.MoveCard(ctx, MoveCardCommand{DealID: d.ID, NewStatus: "archived"})
	assert.True(t, errors.Is(err, domain.ErrValidation))
	_, err = svc.MoveCard(ctx, MoveCardCommand{DealID: 999, NewStatus: domain.StatusWon})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestKanbanBoard(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	intro, err := svc.CreateIntroducer(ctx, CreateIntroducerCommand{Name: "Hanako"})
	require.NoError(t, err)

	undated := mustCreateDeal(t, svc, CreateDealCommand{ProductName: "p", ProposalMenu: "undated"})
	late := mustCreateDeal(t, svc, CreateDealCommand{ProductName: "p", ProposalMenu: "late", NextActionDate: domain.DatePtr(testToday.AddDays(10))})
	early := mustCreateDeal(t, svc, CreateDealCommand{ProductName: "p", ProposalMenu: "early", IntroducerID: &intro.ID, NextActionDate: domain.DatePtr(testToday.AddDays(1))})
	won := mustCreateDeal(t, svc, CreateDealCommand{ProductName: "p", ProposalMenu: "won", Status: domain.StatusWon})
	_, err = svc.CreateActionLog(ctx, CreateActionLogCommand{DealID: early.ID, ActionDate: domain.MustParseDate("2024-03-01"), NextActionDate: early.NextActionDate})
	require.NoError(t, err)
	_, err = svc.CreateActionLog(ctx, CreateActionLogCommand{DealID: early.ID, ActionDate: domain.MustParseDate("2024-03-04"), NextActionDate: early.NextActionDate})
	require.NoError(t, err)

	board, err := svc.KanbanBoard(ctx)
	require.NoError(t, err)
	require.Len(t, board.Columns, len(domain.BoardStatuses))

	placed := map[int64]int{}
	for i, col := range board.Columns {
		assert.Equal(t, domain.BoardStatuses[i], col.ID)
		assert.Equal(t, len(col.Deals), col.Count)
		for _, card := range col.Deals {
			assert.Equal(t, col.ID, card.Status)
			placed[card.ID]++
		}
	}
	for _, id := range []int64{undated.ID, late.ID, early.ID, won.ID} {
		assert.Equal(t, 1, placed[id])
	}

	first := board.Columns[0]
	require.Len(t, first.Deals, 3)
	assert.Equal(t, early.ID, first.Deals[0].ID)
	assert.Equal(t, late.ID, first.Deals[1].ID)
	assert.Equal(t, undated.ID, first.Deals[2].ID)
	assert.Equal(t, "Hanako", first.Deals[0].IntroducerName)
	assert.Equal(t, 2, first.Deals[0].LogCount)
	assert.Equal(t, "2024-03-04", first.Deals[0].LastLogDate.String())
	assert.Equal(t, domain.UnknownIntroducerName, first.Deals[1].IntroducerName)
	assert.Nil(t, first.Deals[1].LastLogDate)

	assert.Equal(t, 4, board.Summary.Total)
	assert.Equal(t, 3, board.Summary.Counts[domain.StatusAppointmentSet])
	assert.Equal(t, 1, board.Summary.Counts[domain.StatusWon])
	assert.Equal(t, 0, board.Summary.Counts[domain.StatusLost])
}

func TestStats(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateIntroducer(ctx, CreateIntroducerCommand{Name: "Hanako"})
	require.NoError(t, err)
	overdue := mustCreateDeal(t, svc, CreateDealCommand{ProductName: "p", ProposalMenu: "a", NextActionDate: domain.DatePtr(testToday.AddDays(-2))})
	mustCreateDeal(t, svc, CreateDealCommand{ProductName: "p", ProposalMenu: "b", Status: domain.StatusLost, NextActionDate: domain.DatePtr(testToday.AddDays(30))})
	_, err = svc.CreateActionLog(ctx, CreateActionLogCommand{DealID: overdue.ID, ActionDate: testToday, NextActionDate: overdue.NextActionDate})
	require.NoError(t, err)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalDeals)
	assert.Equal(t, 1, stats.TotalActionLogs)
	assert.Equal(t, 1, stats.TotalIntroducers)
	assert.Equal(t, 1, stats.StatusCounts[domain.StatusAppointmentSet])
	assert.Equal(t, 1, stats.StatusCounts[domain.StatusLost])
	assert.Equal(t, 0, stats.StatusCounts[domain.StatusWon])
	assert.Equal(t, 1, stats.OverdueDeals)
	assert.True(t, stats.AsOf.Equal(testToday))
}

func TestIntroducers(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateIntroducer(ctx, CreateIntroducerCommand{Name: "  "})
	assert.True(t, errors.Is(err, domain.ErrValidation))
	_, err = svc.CreateIntroducer(ctx, CreateIntroducerCommand{Name: "x", Status: "retired"})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	created, err := svc.CreateIntroducer(ctx, CreateIntroducerCommand{Name: "Hanako", Company: "Partner Inc."})
	require.NoError(t, err)
	assert.Equal(t, domain.IntroducerActive, created.Status)

	got, err := svc.GetIntroducer(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Partner Inc.", got.Company)

	list, err := svc.ListIntroducers(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = svc.GetIntroducer(ctx, 99)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

type failingLocker struct{}

func (failingLocker) Lock(context.Context, string) (func(), error) {
	return nil, errors.New("lock backend down")
}

func TestLockerFailureAbortsWrite(t *testing.T) {
	store := memory.NewStore()
	svc := NewPipelineService(store, nil, failingLocker{}, nil, nil, nil)

	_, err := svc.SubmitContact(context.Background(), SubmitContactCommand{
		ProductName: "X", ProposalMenu: "Y", Representative: "R", ActionDate: testToday,
	})
	require.Error(t, err)
	deals, _ := svc.ListDeals(context.Background())
	assert.Empty(t, deals)
}
