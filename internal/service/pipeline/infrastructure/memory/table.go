// internal/service/pipeline/infrastructure/memory/table.go
package memory

import (
	"sync"
	"time"
)

// accessor 描述了 table 需要了解的实体字段：标识、时间戳和深拷贝
type accessor[T any] struct {
	id    func(*T) int64
	stamp func(r *T, id int64, now time.Time) // 新增时写入 ID 与 CreatedAt/UpdatedAt
	touch func(r *T, now time.Time)           // 更新时刷新 UpdatedAt
	clone func(*T) *T
}

// table 是单个集合：按插入顺序保存记录，自带单调递增的 ID 计数器。
// 对外一律返回副本，避免调用方绕过锁修改存储。
type table[T any] struct {
	mu     sync.RWMutex
	rows   []*T
	lastID int64
	now    func() time.Time
	acc    accessor[T]
}

func newTable[T any](now func() time.Time, acc accessor[T]) *table[T] {
	return &table[T]{now: now, acc: acc}
}

// preload 写入种子数据，保留原有 ID，并把计数器推进到最大 ID 之后
func (t *table[T]) preload(records []*T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range records {
		t.rows = append(t.rows, t.acc.clone(r))
		if id := t.acc.id(r); id > t.lastID {
			t.lastID = id
		}
	}
}

func (t *table[T]) insert(r *T) *T {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastID++
	c := t.acc.clone(r)
	t.acc.stamp(c, t.lastID, t.now())
	t.rows = append(t.rows, c)
	return t.acc.clone(c)
}

func (t *table[T]) indexOf(id int64) int {
	for i, r := range t.rows {
		if t.acc.id(r) == id {
			return i
		}
	}
	return -1
}

func (t *table[T]) get(id int64) (*T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if i := t.indexOf(id); i >= 0 {
		return t.acc.clone(t.rows[i]), true
	}
	return nil, false
}

// update 在副本上执行 mutate，成功后才替换存储中的记录
func (t *table[T]) update(id int64, mutate func(*T) error) (*T, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.indexOf(id)
	if i < 0 {
		return nil, false, nil
	}
	c := t.acc.clone(t.rows[i])
	if err := mutate(c); err != nil {
		return nil, true, err
	}
	t.acc.touch(c, t.now())
	t.rows[i] = c
	return t.acc.clone(c), true, nil
}

func (t *table[T]) remove(id int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.indexOf(id)
	if i < 0 {
		return false
	}
	t.rows = append(t.rows[:i], t.rows[i+1:]...)
	return true
}

func (t *table[T]) list(keep func(*T) bool) []*T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*T, 0, len(t.rows))
	for _, r := range t.rows {
		if keep == nil || keep(r) {
			out = append(out, t.acc.clone(r))
		}
	}
	return out
}

func (t *table[T]) first(match func(*T) bool) (*T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, r := range t.rows {
		if match(r) {
			return t.acc.clone(r), true
		}
	}
	return nil, false
}
