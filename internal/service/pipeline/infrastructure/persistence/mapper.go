// internal/service/pipeline/infrastructure/persistence/mapper.go
package persistence

import (
	"encoding/json"
	"time"

	"dealflow/internal/service/pipeline/domain"
)

// --- 类型转换函数 ---

func dateToColumn(d domain.Date) *time.Time {
	if d.IsZero() {
		return nil
	}
	t := d.Time()
	return &t
}

func optionalDateToColumn(d *domain.Date) *time.Time {
	if d == nil {
		return nil
	}
	return dateToColumn(*d)
}

func dateFromColumn(t *time.Time) domain.Date {
	if t == nil {
		return domain.Date{}
	}
	return domain.DateOf(*t)
}

func optionalDateFromColumn(t *time.Time) *domain.Date {
	if t == nil {
		return nil
	}
	return domain.DatePtr(domain.DateOf(*t))
}

func toDealModel(d *domain.Deal) *DealModel {
	return &DealModel{
		ID:              d.ID,
		ProductName:     d.ProductName,
		ProposalMenu:    d.ProposalMenu,
		Representative:  d.Representative,
		IntroducerID:    d.IntroducerID,
		Status:          string(d.Status),
		Priority:        string(d.Priority),
		EstimatedAmount: d.EstimatedAmount,
		ProgressRate:    d.ProgressRate,
		LastContactDate: dateToColumn(d.LastContactDate),
		NextAction:      d.NextAction,
		NextActionDate:  optionalDateToColumn(d.NextActionDate),
		Summary:         d.Summary,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

func toDomainDeal(m *DealModel) *domain.Deal {
	return &domain.Deal{
		ID:              m.ID,
		ProductName:     m.ProductName,
		ProposalMenu:    m.ProposalMenu,
		Representative:  m.Representative,
		IntroducerID:    m.IntroducerID,
		Status:          domain.Status(m.Status),
		Priority:        domain.Priority(m.Priority),
		EstimatedAmount: m.EstimatedAmount,
		ProgressRate:    m.ProgressRate,
		LastContactDate: dateFromColumn(m.LastContactDate),
		NextAction:      m.NextAction,
		NextActionDate:  optionalDateFromColumn(m.NextActionDate),
		Summary:         m.Summary,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func toActionLogModel(l *domain.ActionLog) (*ActionLogModel, error) {
	attachments := l.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	raw, err := json.Marshal(attachments)
	if err != nil {
		return nil, err
	}
	return &ActionLogModel{
		ID:             l.ID,
		DealID:         l.DealID,
		Title:          l.Title,
		ActionDate:     dateToColumn(l.ActionDate),
		ActionDetails:  l.ActionDetails,
		NextAction:     l.NextAction,
		NextActionDate: optionalDateToColumn(l.NextActionDate),
		Status:         string(l.Status),
		Attachments:    string(raw),
		CreatedAt:      l.CreatedAt,
		UpdatedAt:      l.UpdatedAt,
	}, nil
}

func toDomainActionLog(m *ActionLogModel) (*domain.ActionLog, error) {
	attachments := []string{}
	if m.Attachments != "" {
		if err := json.Unmarshal([]byte(m.Attachments), &attachments); err != nil {
			return nil, err
		}
	}
	return &domain.ActionLog{
		ID:             m.ID,
		DealID:         m.DealID,
		Title:          m.Title,
		ActionDate:     dateFromColumn(m.ActionDate),
		ActionDetails:  m.ActionDetails,
		NextAction:     m.NextAction,
		NextActionDate: optionalDateFromColumn(m.NextActionDate),
		Status:         domain.Status(m.Status),
		Attachments:    attachments,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}, nil
}

func toIntroducerModel(i *domain.Introducer) *IntroducerModel {
	return &IntroducerModel{
		ID:        i.ID,
		Name:      i.Name,
		Company:   i.Company,
		Role:      i.Role,
		Email:     i.Email,
		Phone:     i.Phone,
		Status:    string(i.Status),
		CreatedAt: i.CreatedAt,
		UpdatedAt: i.UpdatedAt,
	}
}

func toDomainIntroducer(m *IntroducerModel) *domain.Introducer {
	return &domain.Introducer{
		ID:        m.ID,
		Name:      m.Name,
		Company:   m.Company,
		Role:      m.Role,
		Email:     m.Email,
		Phone:     m.Phone,
		Status:    domain.IntroducerStatus(m.Status),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
