// internal/service/pipeline/domain/event.go
package domain

import "time"

// EventType 标识出站事件的种类
type EventType string

const (
	EventActionLogCreated  EventType = "action_log.created"
	EventActionLogUpdated  EventType = "action_log.updated"
	EventActionLogDeleted  EventType = "action_log.deleted"
	EventDealCreated       EventType = "deal.created"
	EventDealUpdated       EventType = "deal.updated"
	EventDealDeleted       EventType = "deal.deleted"
	EventDealStatusChanged EventType = "deal.status_changed"
)

// StatusChange 记录一次状态流转
type StatusChange struct {
	From Status `json:"from"`
	To   Status `json:"to"`
}

// PipelineEvent 是写操作提交之后发布给通知/分析等协作者的事件。
// 它只携带快照，协作者不会回头修改存储（分析结果除外，见 RecordAnalysis）。
type PipelineEvent struct {
	EventID        string        `json:"eventId"`
	Type           EventType     `json:"type"`
	OccurredAt     time.Time     `json:"occurredAt"`
	TraceID        string        `json:"traceId,omitempty"`
	Deal           *Deal         `json:"deal,omitempty"`
	ActionLog      *ActionLog    `json:"actionLog,omitempty"`
	StatusChange   *StatusChange `json:"statusChange,omitempty"`
	IntroducerName string        `json:"introducerName,omitempty"`
}

// Analysis 是 LLM 对一次行动记录给出的结构化建议
type Analysis struct {
	StatusAppropriate   bool     `json:"statusAppropriate"`
	SuggestedStatus     Status   `json:"suggestedStatus,omitempty"`
	ProgressScore       int      `json:"progressScore"` // 1-5
	RiskFactors         []string `json:"riskFactors"`
	SuggestedNextAction string   `json:"suggestedNextAction"`
	Priority            Priority `json:"priority"`
	Summary             string   `json:"summary"`
}
