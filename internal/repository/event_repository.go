package repository

import (
	"context"
	"fmt"

	"github.com/blues/fundchain/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EventQuery 事件查询条件
type EventQuery struct {
	CampaignId int64 // <0 表示不过滤
	EventType  string
	Page       int
	PageSize   int
}

// EventRepository 链上事件审计表
type EventRepository struct {
	db *gorm.DB
}

// NewEventRepository 创建事件仓库
func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// SaveBatch 批量写入, (tx_hash, log_index) 重复时忽略
func (r *EventRepository) SaveBatch(ctx context.Context, events []model.EventModel) (int64, error) {
	if len(events) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tx_hash"}, {Name: "log_index"}},
			DoNothing: true,
		}).
		CreateInBatches(events, 100)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to save events: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// MaxBlock 已入库的最大区块号, 无记录时 ok=false
func (r *EventRepository) MaxBlock(ctx context.Context, contractAddress string) (uint64, bool, error) {
	var max *int64
	if err := r.db.WithContext(ctx).Model(&model.EventModel{}).
		Where("contract_address = ?", contractAddress).
		Select("MAX(block_num)").
		Scan(&max).Error; err != nil {
		return 0, false, fmt.Errorf("failed to query max block: %w", err)
	}
	if max == nil || *max < 0 {
		return 0, false, nil
	}
	return uint64(*max), true, nil
}

// List 分页查询, 按区块倒序
func (r *EventRepository) List(ctx context.Context, q EventQuery) ([]model.EventModel, int64, error) {
	var events []model.EventModel
	var total int64

	query := r.db.WithContext(ctx).Model(&model.EventModel{})
	if q.CampaignId >= 0 {
		query = query.Where("campaign_id = ?", q.CampaignId)
	}
	if q.EventType != "" {
		query = query.Where("event_type = ?", q.EventType)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count events: %w", err)
	}

	offset := (q.Page - 1) * q.PageSize
	if err := query.Offset(offset).Limit(q.PageSize).
		Order("block_num DESC, log_index DESC").
		Find(&events).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list events: %w", err)
	}
	return events, total, nil
}
