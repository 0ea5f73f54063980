// internal/service/pipeline/domain/port/locker.go
package port

import "context"

// DealLocker 是跨进程的键控互斥锁端口。
// 多个进程共享同一个存储时，用它防止同一 (商品, 方案) 被并发重复创建。
type DealLocker interface {
	// Lock 阻塞直到获取锁或 ctx 结束，返回的 unlock 必须被调用
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
