package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/blues/fundchain/internal/action"
	"github.com/blues/fundchain/internal/apperr"
	"github.com/gin-gonic/gin"
)

// ActionRunner 交易动作, *action.Service 满足
type ActionRunner interface {
	CreateCampaign(ctx context.Context, in action.CreateCampaignInput) (*action.Result, error)
	Donate(ctx context.Context, id uint64, in action.DonateInput) (*action.Result, error)
	Refund(ctx context.Context, id uint64) (*action.Result, error)
	Withdraw(ctx context.Context, id uint64) (*action.Result, error)
	WithdrawMilestone(ctx context.Context, id, index uint64) (*action.Result, error)
	Vote(ctx context.Context, id, index uint64, in action.VoteInput) (*action.Result, error)
	ClaimReward(ctx context.Context, id, index uint64) (*action.Result, error)
	AddMilestone(ctx context.Context, id uint64, in action.AddMilestoneInput) (*action.Result, error)
	AddReward(ctx context.Context, id uint64, in action.AddRewardInput) (*action.Result, error)
	AddReview(ctx context.Context, id uint64, in action.AddReviewInput) (*action.Result, error)
	Finalize(ctx context.Context, id uint64) (*action.Result, error)
	Status(kind action.Kind, campaignID *uint64) (action.Status, error)
}

// ActionHandler 交易动作处理器
type ActionHandler struct {
	actions ActionRunner
}

// NewActionHandler 创建交易动作处理器
func NewActionHandler(actions ActionRunner) *ActionHandler {
	return &ActionHandler{actions: actions}
}

func bindBody(c *gin.Context, op string, obj interface{}) error {
	if err := c.ShouldBindJSON(obj); err != nil {
		return apperr.Validation(op, "invalid request body: %v", err)
	}
	return nil
}

func (h *ActionHandler) respond(c *gin.Context, status int, message string, result *action.Result, err error) {
	if err != nil {
		AppErrorResponse(c, err)
		return
	}
	SuccessResponse(c, status, message, ToActionResultResponse(result))
}

// CreateCampaign 创建项目
func (h *ActionHandler) CreateCampaign(c *gin.Context) {
	var in action.CreateCampaignInput
	if err := bindBody(c, string(action.KindCreateCampaign), &in); err != nil {
		AppErrorResponse(c, err)
		return
	}
	result, err := h.actions.CreateCampaign(c.Request.Context(), in)
	h.respond(c, http.StatusCreated, "项目创建成功", result, err)
}

// withID 解析项目ID后执行无请求体的动作
func (h *ActionHandler) withID(message string, fn func(ctx context.Context, id uint64) (*action.Result, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseCampaignID(c)
		if err != nil {
			AppErrorResponse(c, err)
			return
		}
		result, err := fn(c.Request.Context(), id)
		h.respond(c, http.StatusOK, message, result, err)
	}
}

// withIndex 解析项目ID与序号后执行无请求体的动作
func (h *ActionHandler) withIndex(message string, fn func(ctx context.Context, id, index uint64) (*action.Result, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseCampaignID(c)
		if err != nil {
			AppErrorResponse(c, err)
			return
		}
		index, err := parseIndex(c)
		if err != nil {
			AppErrorResponse(c, err)
			return
		}
		result, err := fn(c.Request.Context(), id, index)
		h.respond(c, http.StatusOK, message, result, err)
	}
}

// Refund 退款
func (h *ActionHandler) Refund(c *gin.Context) {
	h.withID("退款成功", h.actions.Refund)(c)
}

// Withdraw 创建者提取全部资金
func (h *ActionHandler) Withdraw(c *gin.Context) {
	h.withID("提取资金成功", h.actions.Withdraw)(c)
}

// Finalize 截止后结算
func (h *ActionHandler) Finalize(c *gin.Context) {
	h.withID("项目结算成功", h.actions.Finalize)(c)
}

// WithdrawMilestone 提取里程碑资金
func (h *ActionHandler) WithdrawMilestone(c *gin.Context) {
	h.withIndex("提取里程碑资金成功", h.actions.WithdrawMilestone)(c)
}

// ClaimReward 领取回报
func (h *ActionHandler) ClaimReward(c *gin.Context) {
	h.withIndex("领取回报成功", h.actions.ClaimReward)(c)
}

// Donate 捐赠
func (h *ActionHandler) Donate(c *gin.Context) {
	id, err := parseCampaignID(c)
	if err != nil {
		AppErrorResponse(c, err)
		return
	}
	var in action.DonateInput
	if err := bindBody(c, string(action.KindDonate), &in); err != nil {
		AppErrorResponse(c, err)
		return
	}
	result, err := h.actions.Donate(c.Request.Context(), id, in)
	h.respond(c, http.StatusOK, "捐赠成功", result, err)
}

// Vote 里程碑投票
func (h *ActionHandler) Vote(c *gin.Context) {
	id, err := parseCampaignID(c)
	if err != nil {
		AppErrorResponse(c, err)
		return
	}
	index, err := parseIndex(c)
	if err != nil {
		AppErrorResponse(c, err)
		return
	}
	var in action.VoteInput
	if err := bindBody(c, string(action.KindVote), &in); err != nil {
		AppErrorResponse(c, err)
		return
	}
	result, err := h.actions.Vote(c.Request.Context(), id, index, in)
	h.respond(c, http.StatusOK, "投票成功", result, err)
}

// AddMilestone 新增里程碑
func (h *ActionHandler) AddMilestone(c *gin.Context) {
	id, err := parseCampaignID(c)
	if err != nil {
		AppErrorResponse(c, err)
		return
	}
	var in action.AddMilestoneInput
	if err := bindBody(c, string(action.KindAddMilestone), &in); err != nil {
		AppErrorResponse(c, err)
		return
	}
	result, err := h.actions.AddMilestone(c.Request.Context(), id, in)
	h.respond(c, http.StatusCreated, "新增里程碑成功", result, err)
}

// AddReward 新增回报档位
func (h *ActionHandler) AddReward(c *gin.Context) {
	id, err := parseCampaignID(c)
	if err != nil {
		AppErrorResponse(c, err)
		return
	}
	var in action.AddRewardInput
	if err := bindBody(c, string(action.KindAddReward), &in); err != nil {
		AppErrorResponse(c, err)
		return
	}
	result, err := h.actions.AddReward(c.Request.Context(), id, in)
	h.respond(c, http.StatusCreated, "新增回报成功", result, err)
}

// AddReview 评价
func (h *ActionHandler) AddReview(c *gin.Context) {
	id, err := parseCampaignID(c)
	if err != nil {
		AppErrorResponse(c, err)
		return
	}
	var in action.AddReviewInput
	if err := bindBody(c, string(action.KindAddReview), &in); err != nil {
		AppErrorResponse(c, err)
		return
	}
	result, err := h.actions.AddReview(c.Request.Context(), id, in)
	h.respond(c, http.StatusCreated, "评价成功", result, err)
}

// GetStatus 当前会话账户某类动作在 ?campaign= 上的状态
func (h *ActionHandler) GetStatus(c *gin.Context) {
	kind, err := action.ParseKind(c.Param("kind"))
	if err != nil {
		AppErrorResponse(c, err)
		return
	}
	var campaignID *uint64
	if raw := c.Query("campaign"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			AppErrorResponse(c, apperr.Validation("action", "invalid campaign %q", raw))
			return
		}
		campaignID = &id
	}
	status, err := h.actions.Status(kind, campaignID)
	if err != nil {
		AppErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "获取动作状态成功", ToActionStatusResponse(status))
}
