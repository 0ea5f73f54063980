// internal/service/pipeline/domain/deal.go
package domain

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultProgressRate = 10
	// UnknownIntroducerName 在介绍人引用悬空或为空时返回
	UnknownIntroducerName = "Unknown"
)

// Deal 是商谈聚合的根实体。
// (ProductName, ProposalMenu) 在所有存活的商谈中唯一，仅在创建时校验。
type Deal struct {
	ID              int64     `json:"id"`
	ProductName     string    `json:"productName"`
	ProposalMenu    string    `json:"proposalMenu"`
	Representative  string    `json:"representative"`
	IntroducerID    *int64    `json:"introducerId"`
	Status          Status    `json:"status"`
	Priority        Priority  `json:"priority"`
	EstimatedAmount *int64    `json:"estimatedAmount"`
	ProgressRate    int       `json:"progressRate"`
	LastContactDate Date      `json:"lastContactDate"`
	NextAction      string    `json:"nextAction"`
	NextActionDate  *Date     `json:"nextActionDate"`
	Summary         string    `json:"summary"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// NewDeal 是创建商谈的工厂函数，负责必填校验和默认值。
// ProgressRate 原样保留（0 是合法值），未指定时由调用方填入 DefaultProgressRate。
func NewDeal(d Deal, today Date) (*Deal, error) {
	d.ProductName = strings.TrimSpace(d.ProductName)
	d.ProposalMenu = strings.TrimSpace(d.ProposalMenu)
	d.Representative = strings.TrimSpace(d.Representative)
	switch {
	case d.ProductName == "":
		return nil, errors.Wrap(ErrValidation, "productName is required")
	case d.ProposalMenu == "":
		return nil, errors.Wrap(ErrValidation, "proposalMenu is required")
	case d.Representative == "":
		return nil, errors.Wrap(ErrValidation, "representative is required")
	}

	if d.Status == "" {
		d.Status = StatusAppointmentSet
	}
	if d.Priority == "" {
		d.Priority = PriorityMedium
	}
	if d.LastContactDate.IsZero() {
		d.LastContactDate = today
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

func (d *Deal) validate() error {
	if !d.Status.Valid() {
		return errors.Wrapf(ErrValidation, "unknown status %q", d.Status)
	}
	if !d.Priority.Valid() {
		return errors.Wrapf(ErrValidation, "unknown priority %q", d.Priority)
	}
	if d.EstimatedAmount != nil && *d.EstimatedAmount < 0 {
		return errors.Wrap(ErrValidation, "estimatedAmount must not be negative")
	}
	if d.ProgressRate < 0 || d.ProgressRate > 100 {
		return errors.Wrap(ErrValidation, "progressRate must be between 0 and 100")
	}
	return nil
}

// HasNextActionDate 判断商谈是否设置了下次行动日
func (d *Deal) HasNextActionDate() bool {
	return d.NextActionDate != nil && !d.NextActionDate.IsZero()
}

// ApplyLatestLog 根据最新的行动记录滚动更新派生字段
func (d *Deal) ApplyLatestLog(latest *ActionLog) {
	if latest.Status != "" {
		d.Status = latest.Status
	}
	d.NextAction = latest.NextAction
	d.NextActionDate = latest.NextActionDate
	if !latest.ActionDate.IsZero() {
		d.LastContactDate = latest.ActionDate
	}
}

// ClearNextAction 在最后一条行动记录被删除后调用。
// 状态保持不变，但摘要一并清空。
func (d *Deal) ClearNextAction() {
	d.NextAction = ""
	d.NextActionDate = nil
	d.Summary = ""
}

// DealPatch 列举了商谈可被修改的字段，nil 表示不修改。
// ID 与 CreatedAt 不在其中，因此无法被覆盖。
type DealPatch struct {
	ProductName     *string
	ProposalMenu    *string
	Representative  *string
	IntroducerID    **int64
	Status          *Status
	Priority        *Priority
	EstimatedAmount **int64
	ProgressRate    *int
	LastContactDate *Date
	NextAction      *string
	NextActionDate  **Date
	Summary         *string
}

// IsEmpty 判断补丁是否没有任何字段
func (p DealPatch) IsEmpty() bool {
	return p == DealPatch{}
}

// Apply 将补丁合并到商谈上，返回校验错误
func (p DealPatch) Apply(d *Deal) error {
	if p.ProductName != nil {
		d.ProductName = strings.TrimSpace(*p.ProductName)
		if d.ProductName == "" {
			return errors.Wrap(ErrValidation, "productName must not be empty")
		}
	}
	if p.ProposalMenu != nil {
		d.ProposalMenu = strings.TrimSpace(*p.ProposalMenu)
		if d.ProposalMenu == "" {
			return errors.Wrap(ErrValidation, "proposalMenu must not be empty")
		}
	}
	if p.Representative != nil {
		d.Representative = strings.TrimSpace(*p.Representative)
		if d.Representative == "" {
			return errors.Wrap(ErrValidation, "representative must not be empty")
		}
	}
	if p.IntroducerID != nil {
		d.IntroducerID = *p.IntroducerID
	}
	if p.Status != nil {
		d.Status = *p.Status
	}
	if p.Priority != nil {
		d.Priority = *p.Priority
	}
	if p.EstimatedAmount != nil {
		d.EstimatedAmount = *p.EstimatedAmount
	}
	if p.ProgressRate != nil {
		d.ProgressRate = *p.ProgressRate
	}
	if p.LastContactDate != nil {
		d.LastContactDate = *p.LastContactDate
	}
	if p.NextAction != nil {
		d.NextAction = *p.NextAction
	}
	if p.NextActionDate != nil {
		d.NextActionDate = *p.NextActionDate
	}
	if p.Summary != nil {
		d.Summary = *p.Summary
	}
	return d.validate()
}

// PatchFromDeal 生成一个覆盖全部可变字段的补丁，用于把内存中修改好的实体写回仓储
func PatchFromDeal(d *Deal) DealPatch {
	introducerID := d.IntroducerID
	amount := d.EstimatedAmount
	nextActionDate := d.NextActionDate
	return DealPatch{
		ProductName:     &d.ProductName,
		ProposalMenu:    &d.ProposalMenu,
		Representative:  &d.Representative,
		IntroducerID:    &introducerID,
		Status:          &d.Status,
		Priority:        &d.Priority,
		EstimatedAmount: &amount,
		ProgressRate:    &d.ProgressRate,
		LastContactDate: &d.LastContactDate,
		NextAction:      &d.NextAction,
		NextActionDate:  &nextActionDate,
		Summary:         &d.Summary,
	}
}

// Clone 返回深拷贝
func (d *Deal) Clone() *Deal {
	if d == nil {
		return nil
	}
	c := *d
	if d.IntroducerID != nil {
		v := *d.IntroducerID
		c.IntroducerID = &v
	}
	if d.EstimatedAmount != nil {
		v := *d.EstimatedAmount
		c.EstimatedAmount = &v
	}
	if d.NextActionDate != nil {
		v := *d.NextActionDate
		c.NextActionDate = &v
	}
	return &c
}
