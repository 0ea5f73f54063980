// internal/service/pipeline/domain/repository.go
package domain

import "context"

// DealRepository 定义了商谈集合的持久化接口。
// 它位于领域层，但由基础设施层（内存 / MySQL）实现。
// 所有返回的实体都是副本，调用方修改它们不会影响存储。
type DealRepository interface {
	// Insert 分配下一个 ID、写入时间戳并保存
	Insert(ctx context.Context, deal *Deal) (*Deal, error)
	// Get 找不到时返回 ErrNotFound
	Get(ctx context.Context, id int64) (*Deal, error)
	// Update 合并补丁并刷新 UpdatedAt
	Update(ctx context.Context, id int64, patch DealPatch) (*Deal, error)
	// Remove 返回是否真的删除了记录
	Remove(ctx context.Context, id int64) (bool, error)
	// List 按插入顺序返回全部记录
	List(ctx context.Context) ([]*Deal, error)
	// FindByProductAndMenu 精确、大小写敏感匹配，找不到时返回 (nil, nil)
	FindByProductAndMenu(ctx context.Context, productName, proposalMenu string) (*Deal, error)
}

// ActionLogRepository 定义了行动记录集合的持久化接口
type ActionLogRepository interface {
	Insert(ctx context.Context, log *ActionLog) (*ActionLog, error)
	Get(ctx context.Context, id int64) (*ActionLog, error)
	Update(ctx context.Context, id int64, patch ActionLogPatch) (*ActionLog, error)
	Remove(ctx context.Context, id int64) (bool, error)
	List(ctx context.Context) ([]*ActionLog, error)
	// ListByDeal 按插入顺序返回某商谈下的全部记录
	ListByDeal(ctx context.Context, dealID int64) ([]*ActionLog, error)
}

// IntroducerRepository 介绍人只支持新增与读取
type IntroducerRepository interface {
	Insert(ctx context.Context, introducer *Introducer) (*Introducer, error)
	Get(ctx context.Context, id int64) (*Introducer, error)
	List(ctx context.Context) ([]*Introducer, error)
}

// Store 聚合三个集合，方便以单个依赖注入到应用层
type Store interface {
	Deals() DealRepository
	ActionLogs() ActionLogRepository
	Introducers() IntroducerRepository
}
