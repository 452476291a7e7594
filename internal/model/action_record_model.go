package model

import (
	"time"
)

// ActionRecordModel 交易提交记录
type ActionRecordModel struct {
	Id        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Kind       string `json:"kind" gorm:"not null;index"`
	CampaignId int64  `json:"campaign_id" gorm:"index"`
	Account    string `json:"account" gorm:"not null;index"`
	TxHash     string `json:"tx_hash" gorm:"index"`
	BlockNum   int64  `json:"block_num"`
	Status     string `json:"status" gorm:"default:'pending'"` // pending, success, failed, timeout
	Reason     string `json:"reason" gorm:"type:text"`
}

// ActionStatus 交易提交状态
type ActionStatus string

const (
	ActionStatusPending ActionStatus = "pending" // 待上链
	ActionStatusSuccess ActionStatus = "success" // 成功
	ActionStatusFailed  ActionStatus = "failed"  // 失败
	ActionStatusTimeout ActionStatus = "timeout" // 等待超时
)

// TableName 自定义表名
func (ActionRecordModel) TableName() string {
	return "action_record"
}
