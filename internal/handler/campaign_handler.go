package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/blues/fundchain/internal/apperr"
	"github.com/blues/fundchain/internal/logic"
	"github.com/blues/fundchain/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// CampaignReader 项目视图查询, *logic.CampaignLogic 满足
type CampaignReader interface {
	List(ctx context.Context, filter logic.ListFilter) ([]logic.CampaignView, error)
	Mine(ctx context.Context, account common.Address) (*logic.MyCampaigns, error)
	Detail(ctx context.Context, id uint64, account common.Address) (*logic.DetailView, error)
	Manage(ctx context.Context, id uint64, account common.Address) (*logic.ManageView, error)
	Stats(ctx context.Context) (model.PlatformStats, error)
}

// AccountFunc 当前会话账户, 未连接时返回零地址
type AccountFunc func() common.Address

// CampaignHandler 项目查询处理器
type CampaignHandler struct {
	campaigns CampaignReader
	versions  *logic.Versions
	account   AccountFunc
}

// NewCampaignHandler 创建项目查询处理器
func NewCampaignHandler(campaigns CampaignReader, versions *logic.Versions, account AccountFunc) *CampaignHandler {
	if versions == nil {
		versions = logic.NewVersions()
	}
	if account == nil {
		account = func() common.Address { return common.Address{} }
	}
	return &CampaignHandler{campaigns: campaigns, versions: versions, account: account}
}

func parseCampaignID(c *gin.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, apperr.Validation("campaign", "invalid campaign id %q", c.Param("id"))
	}
	return id, nil
}

func parseIndex(c *gin.Context) (uint64, error) {
	index, err := strconv.ParseUint(c.Param("index"), 10, 64)
	if err != nil {
		return 0, apperr.Validation("campaign", "invalid index %q", c.Param("index"))
	}
	return index, nil
}

func parseAddress(op, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, apperr.Validation(op, "invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

// queryAccount ?account= 优先, 否则使用当前会话账户
func (h *CampaignHandler) queryAccount(c *gin.Context, op string) (common.Address, error) {
	if s := strings.TrimSpace(c.Query("account")); s != "" {
		return parseAddress(op, s)
	}
	return h.account(), nil
}

// GetCampaigns 获取项目列表
func (h *CampaignHandler) GetCampaigns(c *gin.Context) {
	var filter logic.ListFilter
	if s := c.Query("state"); s != "" {
		state, err := model.ParseCampaignState(s)
		if err != nil {
			AppErrorResponse(c, apperr.Validation("list", "%v", err))
			return
		}
		filter.State = &state
	}
	if s := c.Query("category"); s != "" {
		category, err := model.ParseCategory(s)
		if err != nil {
			AppErrorResponse(c, apperr.Validation("list", "%v", err))
			return
		}
		filter.Category = &category
	}
	if s := c.Query("creator"); s != "" {
		creator, err := parseAddress("list", s)
		if err != nil {
			AppErrorResponse(c, err)
			return
		}
		filter.Creator = &creator
	}

	version := h.versions.List()
	views, err := h.campaigns.List(c.Request.Context(), filter)
	if err != nil {
		AppErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "获取项目列表成功", GetCampaignsResponse{
		Campaigns: ToCampaignResponseList(views),
		Version:   version,
	})
}

// GetCampaign 获取项目详情与当前账户可执行的动作
func (h *CampaignHandler) GetCampaign(c *gin.Context) {
	id, err := parseCampaignID(c)
	if err != nil {
		AppErrorResponse(c, err)
		return
	}
	account, err := h.queryAccount(c, "detail")
	if err != nil {
		AppErrorResponse(c, err)
		return
	}

	version := h.versions.Campaign(id)
	view, err := h.campaigns.Detail(c.Request.Context(), id, account)
	if err != nil {
		AppErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "获取项目详情成功", ToCampaignDetailResponse(view, version))
}

// GetManage 创建者管理页
func (h *CampaignHandler) GetManage(c *gin.Context) {
	id, err := parseCampaignID(c)
	if err != nil {
		AppErrorResponse(c, err)
		return
	}
	account, err := h.queryAccount(c, "manage")
	if err != nil {
		AppErrorResponse(c, err)
		return
	}

	version := h.versions.Campaign(id)
	view, err := h.campaigns.Manage(c.Request.Context(), id, account)
	if err != nil {
		AppErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "获取项目管理信息成功", ToManageResponse(view, version))
}

// GetAccountCampaigns 某地址创建与支持的项目
func (h *CampaignHandler) GetAccountCampaigns(c *gin.Context) {
	account, err := parseAddress("my_campaigns", c.Param("address"))
	if err != nil {
		AppErrorResponse(c, err)
		return
	}

	mine, err := h.campaigns.Mine(c.Request.Context(), account)
	if err != nil {
		AppErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "获取我的项目成功", ToMyCampaignsResponse(account.Hex(), mine))
}

// GetStats 平台统计
func (h *CampaignHandler) GetStats(c *gin.Context) {
	stats, err := h.campaigns.Stats(c.Request.Context())
	if err != nil {
		AppErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "获取平台统计成功", ToStatsResponse(stats))
}
