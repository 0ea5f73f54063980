// internal/service/pipeline/infrastructure/memory/store.go

// Package memory 提供进程内的实体存储。
// 进程重启后数据全部丢失，这与原系统的行为一致。
package memory

import (
	"context"
	"time"

	"dealflow/internal/service/pipeline/domain"

	"github.com/pkg/errors"
)

var (
	dealAccessor = accessor[domain.Deal]{
		id: func(d *domain.Deal) int64 { return d.ID },
		stamp: func(d *domain.Deal, id int64, now time.Time) {
			d.ID, d.CreatedAt, d.UpdatedAt = id, now, now
		},
		touch: func(d *domain.Deal, now time.Time) { d.UpdatedAt = now },
		clone: (*domain.Deal).Clone,
	}
	actionLogAccessor = accessor[domain.ActionLog]{
		id: func(l *domain.ActionLog) int64 { return l.ID },
		stamp: func(l *domain.ActionLog, id int64, now time.Time) {
			l.ID, l.CreatedAt, l.UpdatedAt = id, now, now
		},
		touch: func(l *domain.ActionLog, now time.Time) { l.UpdatedAt = now },
		clone: (*domain.ActionLog).Clone,
	}
	introducerAccessor = accessor[domain.Introducer]{
		id: func(i *domain.Introducer) int64 { return i.ID },
		stamp: func(i *domain.Introducer, id int64, now time.Time) {
			i.ID, i.CreatedAt, i.UpdatedAt = id, now, now
		},
		touch: func(i *domain.Introducer, now time.Time) { i.UpdatedAt = now },
		clone: (*domain.Introducer).Clone,
	}
)

// Store 是 domain.Store 的内存实现，每个实例拥有独立的集合与 ID 计数器
type Store struct {
	deals       *table[domain.Deal]
	actionLogs  *table[domain.ActionLog]
	introducers *table[domain.Introducer]
}

type options struct {
	now  func() time.Time
	seed *Seed
}

// Option 配置内存存储
type Option func(*options)

// WithClock 注入时钟，测试中用来固定时间戳
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithSeed 预加载样例数据
func WithSeed(seed *Seed) Option {
	return func(o *options) { o.seed = seed }
}

// NewStore 创建一个空的（或带种子数据的）内存存储
func NewStore(opts ...Option) *Store {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Store{
		deals:       newTable(o.now, dealAccessor),
		actionLogs:  newTable(o.now, actionLogAccessor),
		introducers: newTable(o.now, introducerAccessor),
	}
	if o.seed != nil {
		s.introducers.preload(o.seed.introducers())
		s.deals.preload(o.seed.deals())
		s.actionLogs.preload(o.seed.actionLogs())
	}
	return s
}

func (s *Store) Deals() domain.DealRepository             { return dealRepo{s.deals} }
func (s *Store) ActionLogs() domain.ActionLogRepository   { return actionLogRepo{s.actionLogs} }
func (s *Store) Introducers() domain.IntroducerRepository { return introducerRepo{s.introducers} }

type dealRepo struct{ t *table[domain.Deal] }

func (r dealRepo) Insert(_ context.Context, d *domain.Deal) (*domain.Deal, error) {
	return r.t.insert(d), nil
}

func (r dealRepo) Get(_ context.Context, id int64) (*domain.Deal, error) {
	d, ok := r.t.get(id)
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "deal %d", id)
	}
	return d, nil
}

func (r dealRepo) Update(_ context.Context, id int64, patch domain.DealPatch) (*domain.Deal, error) {
	d, found, err := r.t.update(id, patch.Apply)
	if !found {
		return nil, errors.Wrapf(domain.ErrNotFound, "deal %d", id)
	}
	return d, err
}

func (r dealRepo) Remove(_ context.Context, id int64) (bool, error) {
	return r.t.remove(id), nil
}

func (r dealRepo) List(_ context.Context) ([]*domain.Deal, error) {
	return r.t.list(nil), nil
}

func (r dealRepo) FindByProductAndMenu(_ context.Context, productName, proposalMenu string) (*domain.Deal, error) {
	d, ok := r.t.first(func(d *domain.Deal) bool {
		return d.ProductName == productName && d.ProposalMenu == proposalMenu
	})
	if !ok {
		return nil, nil
	}
	return d, nil
}

type actionLogRepo struct{ t *table[domain.ActionLog] }

func (r actionLogRepo) Insert(_ context.Context, l *domain.ActionLog) (*domain.ActionLog, error) {
	return r.t.insert(l), nil
}

func (r actionLogRepo) Get(_ context.Context, id int64) (*domain.ActionLog, error) {
	l, ok := r.t.get(id)
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "action log %d", id)
	}
	return l, nil
}

func (r actionLogRepo) Update(_ context.Context, id int64, patch domain.ActionLogPatch) (*domain.ActionLog, error) {
	l, found, err := r.t.update(id, patch.Apply)
	if !found {
		return nil, errors.Wrapf(domain.ErrNotFound, "action log %d", id)
	}
	return l, err
}

func (r actionLogRepo) Remove(_ context.Context, id int64) (bool, error) {
	return r.t.remove(id), nil
}

func (r actionLogRepo) List(_ context.Context) ([]*domain.ActionLog, error) {
	return r.t.list(nil), nil
}

func (r actionLogRepo) ListByDeal(_ context.Context, dealID int64) ([]*domain.ActionLog, error) {
	return r.t.list(func(l *domain.ActionLog) bool { return l.DealID == dealID }), nil
}

type introducerRepo struct{ t *table[domain.Introducer] }

func (r introducerRepo) Insert(_ context.Context, i *domain.Introducer) (*domain.Introducer, error) {
	return r.t.insert(i), nil
}

func (r introducerRepo) Get(_ context.Context, id int64) (*domain.Introducer, error) {
	i, ok := r.t.get(id)
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "introducer %d", id)
	}
	return i, nil
}

func (r introducerRepo) List(_ context.Context) ([]*domain.Introducer, error) {
	return r.t.list(nil), nil
}
