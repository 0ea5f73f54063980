// internal/service/pipeline/domain/status.go
package domain

// Status 定义了商谈（Deal）在看板上的生命周期状态
type Status string

const (
	StatusAppointmentSet     Status = "appointment-set"     // 已约见
	StatusInNegotiation      Status = "in-negotiation"      // 商谈中
	StatusProposed           Status = "proposed"            // 已提案
	StatusUnderConsideration Status = "under-consideration" // 客户研讨中
	StatusPendingApproval    Status = "pending-approval"    // 等待审批
	StatusWon                Status = "won"                 // 成交
	StatusLost               Status = "lost"                // 失单
)

// BoardStatuses 是看板列的固定顺序
var BoardStatuses = []Status{
	StatusAppointmentSet,
	StatusInNegotiation,
	StatusProposed,
	StatusUnderConsideration,
	StatusPendingApproval,
	StatusWon,
	StatusLost,
}

var statusTitles = map[Status]string{
	StatusAppointmentSet:     "Appointment Set",
	StatusInNegotiation:      "In Negotiation",
	StatusProposed:           "Proposed",
	StatusUnderConsideration: "Under Consideration",
	StatusPendingApproval:    "Pending Approval",
	StatusWon:                "Won",
	StatusLost:               "Lost",
}

// Valid 判断状态是否属于固定状态集合
func (s Status) Valid() bool {
	_, ok := statusTitles[s]
	return ok
}

// Title 返回看板列的显示名称，未知状态原样返回
func (s Status) Title() string {
	if t, ok := statusTitles[s]; ok {
		return t
	}
	return string(s)
}

// Priority 商谈优先级
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// IntroducerStatus 介绍人状态
type IntroducerStatus string

const (
	IntroducerActive      IntroducerStatus = "active"
	IntroducerInactive    IntroducerStatus = "inactive"
	IntroducerNeedsReview IntroducerStatus = "needs-review"
)

func (s IntroducerStatus) Valid() bool {
	switch s {
	case IntroducerActive, IntroducerInactive, IntroducerNeedsReview:
		return true
	}
	return false
}
