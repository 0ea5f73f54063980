// internal/service/pipeline/infrastructure/memory/seed.go
package memory

import (
	"os"
	"time"

	"dealflow/internal/service/pipeline/domain"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Seed 是样例数据文件的结构（configs/seed.yaml）
type Seed struct {
	Introducers []SeedIntroducer `yaml:"introducers"`
	Deals       []SeedDeal       `yaml:"deals"`
	ActionLogs  []SeedActionLog  `yaml:"actionLogs"`
}

type SeedIntroducer struct {
	ID      int64  `yaml:"id"`
	Name    string `yaml:"name"`
	Company string `yaml:"company"`
	Role    string `yaml:"role"`
	Email   string `yaml:"email"`
	Phone   string `yaml:"phone"`
	Status  string `yaml:"status"`
}

type SeedDeal struct {
	ID              int64        `yaml:"id"`
	ProductName     string       `yaml:"productName"`
	ProposalMenu    string       `yaml:"proposalMenu"`
	Representative  string       `yaml:"representative"`
	IntroducerID    *int64       `yaml:"introducerId"`
	Status          string       `yaml:"status"`
	Priority        string       `yaml:"priority"`
	EstimatedAmount *int64       `yaml:"estimatedAmount"`
	ProgressRate    int          `yaml:"progressRate"`
	LastContactDate domain.Date  `yaml:"lastContactDate"`
	NextAction      string       `yaml:"nextAction"`
	NextActionDate  *domain.Date `yaml:"nextActionDate"`
	Summary         string       `yaml:"summary"`
}

type SeedActionLog struct {
	ID             int64        `yaml:"id"`
	DealID         int64        `yaml:"dealId"`
	Title          string       `yaml:"title"`
	ActionDate     domain.Date  `yaml:"actionDate"`
	ActionDetails  string       `yaml:"actionDetails"`
	NextAction     string       `yaml:"nextAction"`
	NextActionDate *domain.Date `yaml:"nextActionDate"`
	Status         string       `yaml:"status"`
	Attachments    []string     `yaml:"attachments"`
}

// LoadSeedFile 读取并校验样例数据文件
func LoadSeedFile(path string) (*Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read seed file")
	}
	return ParseSeed(raw)
}

// ParseSeed 解析 YAML 样例数据。ID 必须为正且在各自集合内唯一。
func ParseSeed(raw []byte) (*Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, errors.Wrap(err, "parse seed file")
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Seed) validate() error {
	check := func(kind string, ids []int64) error {
		seen := make(map[int64]struct{}, len(ids))
		for _, id := range ids {
			if id <= 0 {
				return errors.Errorf("seed %s: id must be positive, got %d", kind, id)
			}
			if _, dup := seen[id]; dup {
				return errors.Errorf("seed %s: duplicate id %d", kind, id)
			}
			seen[id] = struct{}{}
		}
		return nil
	}
	var introducerIDs, dealIDs, logIDs []int64
	for _, i := range s.Introducers {
		introducerIDs = append(introducerIDs, i.ID)
	}
	for _, d := range s.Deals {
		dealIDs = append(dealIDs, d.ID)
	}
	for _, l := range s.ActionLogs {
		logIDs = append(logIDs, l.ID)
	}
	if err := check("introducers", introducerIDs); err != nil {
		return err
	}
	if err := check("deals", dealIDs); err != nil {
		return err
	}
	if err := check("actionLogs", logIDs); err != nil {
		return err
	}

	known := make(map[int64]struct{}, len(dealIDs))
	for _, id := range dealIDs {
		known[id] = struct{}{}
	}
	for _, l := range s.ActionLogs {
		if _, ok := known[l.DealID]; !ok {
			return errors.Errorf("seed actionLogs: log %d references unknown deal %d", l.ID, l.DealID)
		}
	}
	return nil
}

// 种子数据使用固定时间戳，保证排序稳定
var seedTimestamp = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func (s *Seed) introducers() []*domain.Introducer {
	out := make([]*domain.Introducer, 0, len(s.Introducers))
	for _, i := range s.Introducers {
		status := domain.IntroducerStatus(i.Status)
		if status == "" {
			status = domain.IntroducerActive
		}
		out = append(out, &domain.Introducer{
			ID: i.ID, Name: i.Name, Company: i.Company, Role: i.Role,
			Email: i.Email, Phone: i.Phone, Status: status,
			CreatedAt: seedTimestamp, UpdatedAt: seedTimestamp,
		})
	}
	return out
}

func (s *Seed) deals() []*domain.Deal {
	out := make([]*domain.Deal, 0, len(s.Deals))
	for _, d := range s.Deals {
		deal := &domain.Deal{
			ID:              d.ID,
			ProductName:     d.ProductName,
			ProposalMenu:    d.ProposalMenu,
			Representative:  d.Representative,
			IntroducerID:    d.IntroducerID,
			Status:          domain.Status(d.Status),
			Priority:        domain.Priority(d.Priority),
			EstimatedAmount: d.EstimatedAmount,
			ProgressRate:    d.ProgressRate,
			LastContactDate: d.LastContactDate,
			NextAction:      d.NextAction,
			NextActionDate:  d.NextActionDate,
			Summary:         d.Summary,
			CreatedAt:       seedTimestamp,
			UpdatedAt:       seedTimestamp,
		}
		if deal.Status == "" {
			deal.Status = domain.StatusAppointmentSet
		}
		if deal.Priority == "" {
			deal.Priority = domain.PriorityMedium
		}
		out = append(out, deal)
	}
	return out
}

func (s *Seed) actionLogs() []*domain.ActionLog {
	out := make([]*domain.ActionLog, 0, len(s.ActionLogs))
	for _, l := range s.ActionLogs {
		attachments := l.Attachments
		if attachments == nil {
			attachments = []string{}
		}
		out = append(out, &domain.ActionLog{
			ID:             l.ID,
			DealID:         l.DealID,
			Title:          l.Title,
			ActionDate:     l.ActionDate,
			ActionDetails:  l.ActionDetails,
			NextAction:     l.NextAction,
			NextActionDate: l.NextActionDate,
			Status:         domain.Status(l.Status),
			Attachments:    attachments,
			CreatedAt:      seedTimestamp,
			UpdatedAt:      seedTimestamp,
		})
	}
	return out
}
