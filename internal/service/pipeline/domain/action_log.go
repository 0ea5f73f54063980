// internal/service/pipeline/domain/action_log.go
package domain

import (
	"sort"
	"time"

	"github.com/pkg/errors"
)

// ActionLog 是一次联系/推进的记录，通过 DealID 弱引用所属商谈
type ActionLog struct {
	ID             int64     `json:"id"`
	DealID         int64     `json:"dealId"`
	Title          string    `json:"title"`
	ActionDate     Date      `json:"actionDate"`
	ActionDetails  string    `json:"actionDetails"`
	NextAction     string    `json:"nextAction"`
	NextActionDate *Date     `json:"nextActionDate"`
	Status         Status    `json:"status"` // 写入时商谈状态的快照
	Attachments    []string  `json:"attachments"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// NewActionLog 校验外键并补齐默认值
func NewActionLog(l ActionLog) (*ActionLog, error) {
	if l.DealID <= 0 {
		return nil, errors.Wrap(ErrValidation, "dealId is required")
	}
	if l.Status != "" && !l.Status.Valid() {
		return nil, errors.Wrapf(ErrValidation, "unknown status %q", l.Status)
	}
	if l.Attachments == nil {
		l.Attachments = []string{}
	}
	return &l, nil
}

// Clone 返回深拷贝
func (l *ActionLog) Clone() *ActionLog {
	if l == nil {
		return nil
	}
	c := *l
	if l.NextActionDate != nil {
		v := *l.NextActionDate
		c.NextActionDate = &v
	}
	c.Attachments = append([]string{}, l.Attachments...)
	return &c
}

// ActionLogPatch 列举了行动记录可修改的字段。DealID 不可改。
type ActionLogPatch struct {
	Title          *string
	ActionDate     *Date
	ActionDetails  *string
	NextAction     *string
	NextActionDate **Date
	Status         *Status
	Attachments    *[]string
}

func (p ActionLogPatch) IsEmpty() bool {
	return p == ActionLogPatch{}
}

func (p ActionLogPatch) Apply(l *ActionLog) error {
	if p.Title != nil {
		l.Title = *p.Title
	}
	if p.ActionDate != nil {
		l.ActionDate = *p.ActionDate
	}
	if p.ActionDetails != nil {
		l.ActionDetails = *p.ActionDetails
	}
	if p.NextAction != nil {
		l.NextAction = *p.NextAction
	}
	if p.NextActionDate != nil {
		l.NextActionDate = *p.NextActionDate
	}
	if p.Status != nil {
		if *p.Status != "" && !p.Status.Valid() {
			return errors.Wrapf(ErrValidation, "unknown status %q", *p.Status)
		}
		l.Status = *p.Status
	}
	if p.Attachments != nil {
		l.Attachments = append([]string{}, (*p.Attachments)...)
	}
	return nil
}

// LatestLog 返回最新的一条记录：按 UpdatedAt，其次 CreatedAt，再次按插入顺序（靠后者胜出）。
// logs 需按插入顺序传入。
func LatestLog(logs []*ActionLog) *ActionLog {
	var latest *ActionLog
	for _, l := range logs {
		if latest == nil || notOlder(l, latest) {
			latest = l
		}
	}
	return latest
}

func notOlder(a, b *ActionLog) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return !a.CreatedAt.Before(b.CreatedAt)
}

// SortByActionDateDesc 按行动日倒序排列，同一天时 ID 大的在前
func SortByActionDateDesc(logs []*ActionLog) {
	sort.SliceStable(logs, func(i, j int) bool {
		if !logs[i].ActionDate.Equal(logs[j].ActionDate) {
			return logs[i].ActionDate.After(logs[j].ActionDate)
		}
		return logs[i].ID > logs[j].ID
	})
}
