// internal/service/pipeline/infrastructure/persistence/models.go
package persistence

import "time"

// DealModel 对应 deals 表。
// 时间戳由仓储根据注入的时钟写入，关闭 GORM 的自动时间。
type DealModel struct {
	ID              int64      `gorm:"primaryKey;autoIncrement"`
	ProductName     string     `gorm:"size:191;not null;index:idx_deal_product_menu,priority:1"`
	ProposalMenu    string     `gorm:"size:191;not null;index:idx_deal_product_menu,priority:2"`
	Representative  string     `gorm:"size:191;not null"`
	IntroducerID    *int64     `gorm:"index"`
	Status          string     `gorm:"size:32;not null;index"`
	Priority        string     `gorm:"size:16;not null"`
	EstimatedAmount *int64
	ProgressRate    int        `gorm:"not null"`
	LastContactDate *time.Time `gorm:"type:date"`
	NextAction      string     `gorm:"type:text"`
	NextActionDate  *time.Time `gorm:"type:date"`
	Summary         string     `gorm:"type:text"`
	CreatedAt       time.Time  `gorm:"autoCreateTime:false"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime:false"`
}

func (DealModel) TableName() string {
	return "deals"
}

// ActionLogModel 对应 action_logs 表，附件以 JSON 数组保存
type ActionLogModel struct {
	ID             int64      `gorm:"primaryKey;autoIncrement"`
	DealID         int64      `gorm:"not null;index"`
	Title          string     `gorm:"size:255"`
	ActionDate     *time.Time `gorm:"type:date"`
	ActionDetails  string     `gorm:"type:text"`
	NextAction     string     `gorm:"type:text"`
	NextActionDate *time.Time `gorm:"type:date"`
	Status         string     `gorm:"size:32"`
	Attachments    string     `gorm:"type:text"`
	CreatedAt      time.Time  `gorm:"autoCreateTime:false"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime:false"`
}

func (ActionLogModel) TableName() string {
	return "action_logs"
}

// IntroducerModel 对应 introducers 表
type IntroducerModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	Name      string    `gorm:"size:191;not null"`
	Company   string    `gorm:"size:191"`
	Role      string    `gorm:"size:191"`
	Email     string    `gorm:"size:191"`
	Phone     string    `gorm:"size:64"`
	Status    string    `gorm:"size:32;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
}

func (IntroducerModel) TableName() string {
	return "introducers"
}
