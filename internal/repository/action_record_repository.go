package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/blues/fundchain/internal/model"
	"gorm.io/gorm"
)

// ActionRecordRepository 交易提交记录
type ActionRecordRepository struct {
	db *gorm.DB
}

// NewActionRecordRepository 创建交易记录仓库
func NewActionRecordRepository(db *gorm.DB) *ActionRecordRepository {
	return &ActionRecordRepository{db: db}
}

// Create 写入一条 pending 记录
func (r *ActionRecordRepository) Create(ctx context.Context, record *model.ActionRecordModel) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create action record: %w", err)
	}
	return nil
}

// Finish 更新最终状态
func (r *ActionRecordRepository) Finish(ctx context.Context, id string, status model.ActionStatus, txHash string, blockNum int64, reason string) error {
	updates := map[string]interface{}{
		"status":     string(status),
		"reason":     reason,
		"updated_at": time.Now(),
	}
	if txHash != "" {
		updates["tx_hash"] = txHash
	}
	if blockNum > 0 {
		updates["block_num"] = blockNum
	}
	if err := r.db.WithContext(ctx).Model(&model.ActionRecordModel{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update action record %s: %w", id, err)
	}
	return nil
}

// ListByAccount 某账户最近的提交记录
func (r *ActionRecordRepository) ListByAccount(ctx context.Context, account string, limit int) ([]model.ActionRecordModel, error) {
	var records []model.ActionRecordModel
	if err := r.db.WithContext(ctx).
		Where("account = ?", account).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list action records: %w", err)
	}
	return records, nil
}
