// internal/service/pipeline/application/dto.go
package application

import (
	"time"

	"dealflow/internal/service/pipeline/domain"
)

// CreateDealCommand 直接创建商谈的输入，由接口层完成类型转换
type CreateDealCommand struct {
	ProductName     string
	ProposalMenu    string
	Representative  string
	IntroducerID    *int64
	Status          domain.Status
	Priority        domain.Priority
	EstimatedAmount *int64
	ProgressRate    *int
	NextAction      string
	NextActionDate  *domain.Date
	Summary         string
}

// CreateActionLogCommand 单独新增一条行动记录
type CreateActionLogCommand struct {
	DealID         int64
	Title          string
	ActionDate     domain.Date
	ActionDetails  string
	NextAction     string
	NextActionDate *domain.Date
	Status         domain.Status
	Attachments    []string
}

// SubmitContactCommand 是 "登记联系记录" 工作流的输入。
// 指针字段为 nil 表示调用方没有提供，已有商谈的对应字段保持不变。
type SubmitContactCommand struct {
	ProductName    string
	ProposalMenu   string
	Representative string
	ActionDate     domain.Date
	Title          string
	ActionDetails  string
	NextAction     *string
	NextActionDate *domain.Date
	Status         domain.Status
	IntroducerID   *int64
	Attachments    []string
}

// ContactUpdates 汇总了一次提交对商谈造成的变化，供通知使用
type ContactUpdates struct {
	DealCreated   bool          `json:"dealCreated"`
	StatusChanged bool          `json:"statusChanged"`
	OldStatus     domain.Status `json:"oldStatus,omitempty"`
	NewStatus     domain.Status `json:"newStatus"`
}

type SubmitContactResult struct {
	ActionLog *domain.ActionLog `json:"actionLog"`
	Deal      *domain.Deal      `json:"deal"`
	Updates   ContactUpdates    `json:"updates"`
}

// MoveCardCommand 看板拖拽。OldStatus 只作参考，以存储中的状态为准。
type MoveCardCommand struct {
	DealID    int64
	NewStatus domain.Status
	OldStatus domain.Status
}

type MoveCardResult struct {
	Deal         *domain.Deal        `json:"deal"`
	ChangeLog    *domain.ActionLog   `json:"changeLog"`
	StatusChange domain.StatusChange `json:"statusChange"`
}

// DealDetail 是商谈连同介绍人名称与全部行动记录的视图
type DealDetail struct {
	*domain.Deal
	IntroducerName string              `json:"introducerName"`
	ActionLogs     []*domain.ActionLog `json:"actionLogs"`
}

// KanbanCard 看板上的一张卡片
type KanbanCard struct {
	*domain.Deal
	IntroducerName string       `json:"introducerName"`
	LogCount       int          `json:"logCount"`
	LastLogDate    *domain.Date `json:"lastLogDate"`
}

type KanbanColumn struct {
	ID    domain.Status `json:"id"`
	Title string        `json:"title"`
	Deals []*KanbanCard `json:"deals"`
	Count int           `json:"count"`
}

type KanbanSummary struct {
	Counts map[domain.Status]int `json:"counts"`
	Total  int                   `json:"total"`
}

type KanbanBoard struct {
	Columns []*KanbanColumn `json:"columns"`
	Summary KanbanSummary   `json:"summary"`
}

// Stats 是仪表盘统计
type Stats struct {
	TotalDeals       int                   `json:"totalDeals"`
	TotalActionLogs  int                   `json:"totalActionLogs"`
	TotalIntroducers int                   `json:"totalIntroducers"`
	StatusCounts     map[domain.Status]int `json:"statusCounts"`
	OverdueDeals     int                   `json:"overdueDeals"`
	AsOf             domain.Date           `json:"asOf"`
	GeneratedAt      time.Time             `json:"generatedAt"`
}

type CreateIntroducerCommand struct {
	Name    string
	Company string
	Role    string
	Email   string
	Phone   string
	Status  domain.IntroducerStatus
}
