// internal/service/pipeline/infrastructure/persistence/gorm_repository.go
package persistence

import (
	"context"
	"time"

	"dealflow/internal/service/pipeline/domain"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store 是 domain.Store 的 GORM 实现。ID 由数据库自增列分配。
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStore(db *gorm.DB, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{db: db, now: now}
}

// AutoMigrate 创建或升级三张表
func (s *Store) AutoMigrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&IntroducerModel{}, &DealModel{}, &ActionLogModel{})
}

func (s *Store) Deals() domain.DealRepository             { return &gormDealRepo{s} }
func (s *Store) ActionLogs() domain.ActionLogRepository   { return &gormActionLogRepo{s} }
func (s *Store) Introducers() domain.IntroducerRepository { return &gormIntroducerRepo{s} }

func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Wrapf(domain.ErrNotFound, format, args...)
	}
	return errors.Wrapf(err, format, args...)
}

// --- deals ---

type gormDealRepo struct{ s *Store }

func (r *gormDealRepo) Insert(ctx context.Context, d *domain.Deal) (*domain.Deal, error) {
	model := toDealModel(d)
	now := r.s.now().UTC()
	model.ID, model.CreatedAt, model.UpdatedAt = 0, now, now
	if err := r.s.db.WithContext(ctx).Create(model).Error; err != nil {
		return nil, errors.Wrap(err, "insert deal")
	}
	return toDomainDeal(model), nil
}

func (r *gormDealRepo) Get(ctx context.Context, id int64) (*domain.Deal, error) {
	var model DealModel
	if err := r.s.db.WithContext(ctx).First(&model, id).Error; err != nil {
		return nil, notFound(err, "deal %d", id)
	}
	return toDomainDeal(&model), nil
}

// Update 在事务内加行锁读取、合并补丁后整行写回
func (r *gormDealRepo) Update(ctx context.Context, id int64, patch domain.DealPatch) (*domain.Deal, error) {
	var out *domain.Deal
	err := r.s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model DealModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&model, id).Error; err != nil {
			return notFound(err, "deal %d", id)
		}
		deal := toDomainDeal(&model)
		if err := patch.Apply(deal); err != nil {
			return err
		}
		deal.UpdatedAt = r.s.now().UTC()
		updated := toDealModel(deal)
		if err := tx.Save(updated).Error; err != nil {
			return errors.Wrapf(err, "save deal %d", id)
		}
		out = toDomainDeal(updated)
		return nil
	})
	return out, err
}

func (r *gormDealRepo) Remove(ctx context.Context, id int64) (bool, error) {
	res := r.s.db.WithContext(ctx).Delete(&DealModel{}, id)
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "delete deal %d", id)
	}
	return res.RowsAffected > 0, nil
}

func (r *gormDealRepo) List(ctx context.Context) ([]*domain.Deal, error) {
	var models []*DealModel
	if err := r.s.db.WithContext(ctx).Order("id ASC").Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "list deals")
	}
	out := make([]*domain.Deal, len(models))
	for i, m := range models {
		out[i] = toDomainDeal(m)
	}
	return out, nil
}

// FindByProductAndMenu 使用 BINARY 比较，避免默认排序规则下的大小写不敏感匹配
func (r *gormDealRepo) FindByProductAndMenu(ctx context.Context, productName, proposalMenu string) (*domain.Deal, error) {
	var model DealModel
	err := r.s.db.WithContext(ctx).
		Where("BINARY product_name = ? AND BINARY proposal_menu = ?", productName, proposalMenu).
		Order("id ASC").
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "find deal by product and menu")
	}
	return toDomainDeal(&model), nil
}

// --- action logs ---

type gormActionLogRepo struct{ s *Store }

func (r *gormActionLogRepo) Insert(ctx context.Context, l *domain.ActionLog) (*domain.ActionLog, error) {
	model, err := toActionLogModel(l)
	if err != nil {
		return nil, errors.Wrap(err, "encode action log")
	}
	now := r.s.now().UTC()
	model.ID, model.CreatedAt, model.UpdatedAt = 0, now, now
	if err := r.s.db.WithContext(ctx).Create(model).Error; err != nil {
		return nil, errors.Wrap(err, "insert action log")
	}
	return toDomainActionLog(model)
}

func (r *gormActionLogRepo) Get(ctx context.Context, id int64) (*domain.ActionLog, error) {
	var model ActionLogModel
	if err := r.s.db.WithContext(ctx).First(&model, id).Error; err != nil {
		return nil, notFound(err, "action log %d", id)
	}
	return toDomainActionLog(&model)
}

func (r *gormActionLogRepo) Update(ctx context.Context, id int64, patch domain.ActionLogPatch) (*domain.ActionLog, error) {
	var out *domain.ActionLog
	err := r.s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model ActionLogModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&model, id).Error; err != nil {
			return notFound(err, "action log %d", id)
		}
		log, err := toDomainActionLog(&model)
		if err != nil {
			return err
		}
		if err := patch.Apply(log); err != nil {
			return err
		}
		log.UpdatedAt = r.s.now().UTC()
		updated, err := toActionLogModel(log)
		if err != nil {
			return err
		}
		if err := tx.Save(updated).Error; err != nil {
			return errors.Wrapf(err, "save action log %d", id)
		}
		out, err = toDomainActionLog(updated)
		return err
	})
	return out, err
}

func (r *gormActionLogRepo) Remove(ctx context.Context, id int64) (bool, error) {
	res := r.s.db.WithContext(ctx).Delete(&ActionLogModel{}, id)
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "delete action log %d", id)
	}
	return res.RowsAffected > 0, nil
}

func (r *gormActionLogRepo) List(ctx context.Context) ([]*domain.ActionLog, error) {
	return r.find(ctx, r.s.db.WithContext(ctx))
}

func (r *gormActionLogRepo) ListByDeal(ctx context.Context, dealID int64) ([]*domain.ActionLog, error) {
	return r.find(ctx, r.s.db.WithContext(ctx).Where("deal_id = ?", dealID))
}

func (r *gormActionLogRepo) find(_ context.Context, q *gorm.DB) ([]*domain.ActionLog, error) {
	var models []*ActionLogModel
	if err := q.Order("id ASC").Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "list action logs")
	}
	out := make([]*domain.ActionLog, 0, len(models))
	for _, m := range models {
		l, err := toDomainActionLog(m)
		if err != nil {
			return nil, errors.Wrapf(err, "decode action log %d", m.ID)
		}
		out = append(out, l)
	}
	return out, nil
}

// --- introducers ---

type gormIntroducerRepo struct{ s *Store }

func (r *gormIntroducerRepo) Insert(ctx context.Context, i *domain.Introducer) (*domain.Introducer, error) {
	model := toIntroducerModel(i)
	now := r.s.now().UTC()
	model.ID, model.CreatedAt, model.UpdatedAt = 0, now, now
	if err := r.s.db.WithContext(ctx).Create(model).Error; err != nil {
		return nil, errors.Wrap(err, "insert introducer")
	}
	return toDomainIntroducer(model), nil
}

func (r *gormIntroducerRepo) Get(ctx context.Context, id int64) (*domain.Introducer, error) {
	var model IntroducerModel
	if err := r.s.db.WithContext(ctx).First(&model, id).Error; err != nil {
		return nil, notFound(err, "introducer %d", id)
	}
	return toDomainIntroducer(&model), nil
}

func (r *gormIntroducerRepo) List(ctx context.Context) ([]*domain.Introducer, error) {
	var models []*IntroducerModel
	if err := r.s.db.WithContext(ctx).Order("id ASC").Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "list introducers")
	}
	out := make([]*domain.Introducer, len(models))
	for i, m := range models {
		out[i] = toDomainIntroducer(m)
	}
	return out, nil
}
