// internal/service/pipeline/domain/introducer.go
package domain

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Introducer 介绍人（合作渠道）
type Introducer struct {
	ID        int64            `json:"id"`
	Name      string           `json:"name"`
	Company   string           `json:"company"`
	Role      string           `json:"role"`
	Email     string           `json:"email"`
	Phone     string           `json:"phone"`
	Status    IntroducerStatus `json:"status"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

func NewIntroducer(i Introducer) (*Introducer, error) {
	i.Name = strings.TrimSpace(i.Name)
	if i.Name == "" {
		return nil, errors.Wrap(ErrValidation, "name is required")
	}
	if i.Status == "" {
		i.Status = IntroducerActive
	}
	if !i.Status.Valid() {
		return nil, errors.Wrapf(ErrValidation, "unknown introducer status %q", i.Status)
	}
	return &i, nil
}

func (i *Introducer) Clone() *Introducer {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}
