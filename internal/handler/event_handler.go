package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/blues/fundchain/internal/apperr"
	"github.com/blues/fundchain/internal/logic"
	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// EventQuerier 事件审计查询, *logic.EventLogic 满足
type EventQuerier interface {
	GetEvents(ctx context.Context, campaignId int64, eventName string, page, pageSize int) ([]logic.EventRecord, int64, error)
}

// EventHandler 事件处理器
type EventHandler struct {
	events EventQuerier
}

// NewEventHandler 创建事件处理器
func NewEventHandler(events EventQuerier) *EventHandler {
	return &EventHandler{events: events}
}

// GetEvents 获取合约事件, 可按项目与事件名过滤
func (h *EventHandler) GetEvents(c *gin.Context) {
	campaignId := int64(-1)
	if s := c.Query("campaign_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id < 0 {
			AppErrorResponse(c, apperr.Validation("events", "invalid campaign id %q", s))
			return
		}
		campaignId = id
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	records, total, err := h.events.GetEvents(c.Request.Context(), campaignId, c.Query("event"), page, pageSize)
	if err != nil {
		AppErrorResponse(c, err)
		return
	}

	pagination := Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	}

	SuccessResponse(c, http.StatusOK, "获取事件成功", GetEventsResponse{
		Events:     ToEventResponseList(records),
		Pagination: pagination,
	})
}
