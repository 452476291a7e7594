package logic

import (
	"context"
	"encoding/json"

	"github.com/blues/fundchain/internal/apperr"
	"github.com/blues/fundchain/internal/contract"
	"github.com/blues/fundchain/internal/model"
	"github.com/blues/fundchain/internal/repository"
)

const (
	defaultEventPageSize = 20
	maxEventPageSize     = 100
)

// EventStore 事件审计表的读取接口
type EventStore interface {
	List(ctx context.Context, q repository.EventQuery) ([]model.EventModel, int64, error)
}

// EventRecord 审计事件视图
type EventRecord struct {
	Name        string            `json:"name"`
	CampaignId  int64             `json:"campaign_id"`
	TxHash      string            `json:"tx_hash"`
	LogIndex    int64             `json:"log_index"`
	BlockNumber int64             `json:"block_number"`
	Fields      map[string]string `json:"fields"`
}

// EventLogic 事件业务逻辑
type EventLogic struct {
	store EventStore
}

// NewEventLogic 创建事件业务逻辑, store 为 nil 时表示未启用数据库
func NewEventLogic(store EventStore) *EventLogic {
	return &EventLogic{store: store}
}

// Enabled 是否启用了事件审计
func (e *EventLogic) Enabled() bool {
	return e.store != nil
}

// GetEvents 获取事件列表, campaignId<0 表示全部项目
func (e *EventLogic) GetEvents(ctx context.Context, campaignId int64, eventName string, page, pageSize int) ([]EventRecord, int64, error) {
	if e.store == nil {
		return nil, 0, apperr.New(apperr.KindNotFound, "events", "event audit is not enabled")
	}
	if eventName != "" && !contract.IsKnownEvent(eventName) {
		return nil, 0, apperr.Validation("events", "unknown event %q", eventName)
	}
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultEventPageSize
	}
	if pageSize > maxEventPageSize {
		pageSize = maxEventPageSize
	}

	rows, total, err := e.store.List(ctx, repository.EventQuery{
		CampaignId: campaignId,
		EventType:  eventName,
		Page:       page,
		PageSize:   pageSize,
	})
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.KindInternal, "events", err)
	}

	records := make([]EventRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, toEventRecord(row))
	}
	return records, total, nil
}

func toEventRecord(row model.EventModel) EventRecord {
	fields := map[string]string{}
	if row.Data != "" {
		// 历史数据格式异常时只返回空字段
		_ = json.Unmarshal([]byte(row.Data), &fields)
	}
	return EventRecord{
		Name:        row.EventType,
		CampaignId:  row.CampaignId,
		TxHash:      row.TxHash,
		LogIndex:    row.LogIndex,
		BlockNumber: row.BlockNum,
		Fields:      fields,
	}
}
