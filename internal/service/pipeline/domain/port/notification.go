// internal/service/pipeline/domain/port/notification.go
package port

import (
	"context"

	"dealflow/internal/service/pipeline/domain"
)

// EventSink 是出站通知的端口。Slack、Kafka、WebSocket 等适配器都实现它。
// 调用方不会等待它，也不会因为它失败而回滚写操作。
type EventSink interface {
	// Name 用于日志和指标标签
	Name() string
	// Deliver 投递一个已提交的事件
	Deliver(ctx context.Context, event *domain.PipelineEvent) error
}

// Analyzer 是 LLM 分析服务的出站端口
type Analyzer interface {
	Analyze(ctx context.Context, log *domain.ActionLog, deal *domain.Deal) (*domain.Analysis, error)
}
