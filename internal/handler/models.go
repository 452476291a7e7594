package handler

import (
	"math/big"
	"time"

	"github.com/blues/fundchain/internal/action"
	"github.com/blues/fundchain/internal/logic"
	"github.com/blues/fundchain/internal/model"
	"github.com/blues/fundchain/internal/units"
	"github.com/ethereum/go-ethereum/common"
)

// 通用响应结构
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// 分页信息结构
type Pagination struct {
	Page      int   `json:"page"`
	PageSize  int   `json:"pageSize"`
	Total     int64 `json:"total"`
	TotalPage int64 `json:"totalPage"`
}

// ErrorDetail 错误响应的 data
type ErrorDetail struct {
	Kind      string `json:"kind"`
	Retryable bool   `json:"retryable"`
}

// Amount 金额: wei 原值与4位小数展示值
type Amount struct {
	Wei     string `json:"wei"`
	Display string `json:"display"`
}

func toAmount(v *big.Int) Amount {
	if v == nil {
		v = new(big.Int)
	}
	return Amount{Wei: v.String(), Display: units.FormatAmount(v)}
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

// 项目相关响应模型

// CampaignResponse 项目响应模型
type CampaignResponse struct {
	ID              uint64  `json:"id"`
	Creator         string  `json:"creator"`
	Title           string  `json:"title"`
	Description     string  `json:"description"`
	Image           string  `json:"image"`
	Category        string  `json:"category"`
	Goal            Amount  `json:"goal"`
	AmountCollected Amount  `json:"amountCollected"`
	MinDonation     Amount  `json:"minDonation"`
	Deadline        int64   `json:"deadline"`
	CreatedAt       int64   `json:"createdAt"`
	State           string  `json:"state"`
	DonorCount      uint64  `json:"donorCount"`
	FundsWithdrawn  bool    `json:"fundsWithdrawn"`
	AverageRating   float64 `json:"averageRating"`
	Progress        uint64  `json:"progress"`
	DaysRemaining   int64   `json:"daysRemaining"`
	Predicted       string  `json:"predictedOutcome"`
}

func toCampaign(c model.Campaign) CampaignResponse {
	return CampaignResponse{
		ID:              c.ID,
		Creator:         c.Creator.Hex(),
		Title:           c.Title,
		Description:     c.Description,
		Image:           c.Image,
		Category:        c.Category.String(),
		Goal:            toAmount(c.Goal),
		AmountCollected: toAmount(c.AmountCollected),
		MinDonation:     toAmount(c.MinDonation),
		Deadline:        unixOrZero(c.Deadline),
		CreatedAt:       unixOrZero(c.CreatedAt),
		State:           c.State.String(),
		DonorCount:      c.DonorCount,
		FundsWithdrawn:  c.FundsWithdrawn,
		AverageRating:   float64(c.AverageRating) / 100,
	}
}

// ToCampaignResponse 列表项转换
func ToCampaignResponse(v logic.CampaignView) CampaignResponse {
	resp := toCampaign(v.Campaign)
	resp.Progress = v.Progress
	resp.DaysRemaining = v.DaysRemaining
	resp.Predicted = v.Predicted.String()
	return resp
}

// ToCampaignResponseList 批量转换
func ToCampaignResponseList(views []logic.CampaignView) []CampaignResponse {
	out := make([]CampaignResponse, 0, len(views))
	for _, v := range views {
		out = append(out, ToCampaignResponse(v))
	}
	return out
}

// GetCampaignsResponse 项目列表
type GetCampaignsResponse struct {
	Campaigns []CampaignResponse `json:"campaigns"`
	Version   uint64             `json:"version"`
}

// MilestoneResponse 里程碑
type MilestoneResponse struct {
	Index         uint64  `json:"index"`
	Description   string  `json:"description"`
	Percentage    uint64  `json:"percentage"`
	Amount        Amount  `json:"amount"`
	TargetDate    int64   `json:"targetDate"`
	Completed     bool    `json:"completed"`
	Approved      bool    `json:"approved"`
	VotesFor      uint64  `json:"votesFor"`
	VotesAgainst  uint64  `json:"votesAgainst"`
	ApprovalRatio float64 `json:"approvalRatio"`
	ExpectApprove bool    `json:"expectApprove"`
	CanVote       bool    `json:"canVote"`
	CanWithdraw   bool    `json:"canWithdraw"`
}

// RewardResponse 回报档位, remaining 为 -1 表示不限量
type RewardResponse struct {
	Index       uint64 `json:"index"`
	Title       string `json:"title"`
	Description string `json:"description"`
	MinAmount   Amount `json:"minAmount"`
	MaxQuantity uint64 `json:"maxQuantity"`
	Claimed     uint64 `json:"claimed"`
	Remaining   int64  `json:"remaining"`
	Available   bool   `json:"available"`
	CanClaim    bool   `json:"canClaim"`
}

// DonationResponse 捐赠记录
type DonationResponse struct {
	Donor     string `json:"donor"`
	Amount    Amount `json:"amount"`
	Timestamp int64  `json:"timestamp"`
}

// ReviewResponse 评价
type ReviewResponse struct {
	Reviewer  string `json:"reviewer"`
	Rating    uint8  `json:"rating"`
	Comment   string `json:"comment"`
	Timestamp int64  `json:"timestamp"`
}

// EligibilityResponse 当前账户可执行的动作
type EligibilityResponse struct {
	Account     string `json:"account,omitempty"`
	Donation    Amount `json:"donation"`
	CanDonate   bool   `json:"canDonate"`
	CanRefund   bool   `json:"canRefund"`
	CanWithdraw bool   `json:"canWithdraw"`
	CanReview   bool   `json:"canReview"`
	Finalizable bool   `json:"finalizable"`
}

// ThresholdsResponse 规则参数
type ThresholdsResponse struct {
	ApprovalPercent int64  `json:"approvalPercent"`
	MaxDonation     Amount `json:"maxDonation"`
	DonationCeiling Amount `json:"donationCeiling"`
}

// CampaignDetailResponse 项目详情
type CampaignDetailResponse struct {
	Campaign    CampaignResponse    `json:"campaign"`
	Milestones  []MilestoneResponse `json:"milestones"`
	Rewards     []RewardResponse    `json:"rewards"`
	Donations   []DonationResponse  `json:"donations"`
	Reviews     []ReviewResponse    `json:"reviews"`
	Eligibility EligibilityResponse `json:"eligibility"`
	Thresholds  ThresholdsResponse  `json:"thresholds"`
	Version     uint64              `json:"version"`
}

// ToCampaignDetailResponse 详情转换
func ToCampaignDetailResponse(v *logic.DetailView, version uint64) CampaignDetailResponse {
	d := &v.Detail
	el := &v.Eligibility

	campaign := toCampaign(d.Campaign)
	campaign.Progress = el.Progress
	campaign.DaysRemaining = el.DaysRemaining
	campaign.Predicted = el.Predicted.String()

	milestoneFlags := make(map[uint64]logic.MilestoneEligibility, len(el.Milestones))
	for _, m := range el.Milestones {
		milestoneFlags[m.Index] = m
	}
	milestones := make([]MilestoneResponse, 0, len(d.Milestones))
	for i := range d.Milestones {
		m := &d.Milestones[i]
		flags := milestoneFlags[m.Index]
		milestones = append(milestones, MilestoneResponse{
			Index:         m.Index,
			Description:   m.Description,
			Percentage:    m.Percentage,
			Amount:        toAmount(m.Amount(d.Campaign.Goal)),
			TargetDate:    unixOrZero(m.TargetDate),
			Completed:     m.Completed,
			Approved:      m.Approved,
			VotesFor:      m.VotesFor,
			VotesAgainst:  m.VotesAgainst,
			ApprovalRatio: flags.Ratio,
			ExpectApprove: flags.ExpectApprove,
			CanVote:       flags.CanVote,
			CanWithdraw:   flags.CanWithdraw,
		})
	}

	rewardFlags := make(map[uint64]logic.RewardEligibility, len(el.Rewards))
	for _, r := range el.Rewards {
		rewardFlags[r.Index] = r
	}
	rewards := make([]RewardResponse, 0, len(d.Rewards))
	for i := range d.Rewards {
		r := &d.Rewards[i]
		flags := rewardFlags[r.Index]
		rewards = append(rewards, RewardResponse{
			Index:       r.Index,
			Title:       r.Title,
			Description: r.Description,
			MinAmount:   toAmount(r.MinAmount),
			MaxQuantity: r.MaxQuantity,
			Claimed:     r.Claimed,
			Remaining:   r.Remaining(),
			Available:   flags.Available,
			CanClaim:    flags.CanClaim,
		})
	}

	donations := make([]DonationResponse, 0, len(d.Donations))
	for _, dn := range d.Donations {
		donations = append(donations, DonationResponse{
			Donor:     dn.Donor.Hex(),
			Amount:    toAmount(dn.Amount),
			Timestamp: unixOrZero(dn.Timestamp),
		})
	}

	reviews := make([]ReviewResponse, 0, len(d.Reviews))
	for _, rv := range d.Reviews {
		reviews = append(reviews, ReviewResponse{
			Reviewer:  rv.Reviewer.Hex(),
			Rating:    rv.Rating,
			Comment:   rv.Comment,
			Timestamp: unixOrZero(rv.Timestamp),
		})
	}

	eligibility := EligibilityResponse{
		Donation:    toAmount(el.Donation),
		CanDonate:   el.CanDonate,
		CanRefund:   el.CanRefund,
		CanWithdraw: el.CanWithdraw,
		CanReview:   el.CanReview,
		Finalizable: el.Finalizable,
	}
	if el.Account != (common.Address{}) {
		eligibility.Account = el.Account.Hex()
	}

	return CampaignDetailResponse{
		Campaign:    campaign,
		Milestones:  milestones,
		Rewards:     rewards,
		Donations:   donations,
		Reviews:     reviews,
		Eligibility: eligibility,
		Thresholds: ThresholdsResponse{
			ApprovalPercent: v.Thresholds.ApprovalPercent,
			MaxDonation:     toAmount(v.Thresholds.MaxDonation),
			DonationCeiling: toAmount(v.Ceiling),
		},
		Version: version,
	}
}

// ManageResponse 创建者管理页
type ManageResponse struct {
	CampaignDetailResponse
	MilestonePercentUsed uint64 `json:"milestonePercentUsed"`
	CanAddMilestone      bool   `json:"canAddMilestone"`
	CanAddReward         bool   `json:"canAddReward"`
}

// ToManageResponse 管理页转换, 里程碑金额已包含在 milestones 中
func ToManageResponse(v *logic.ManageView, version uint64) ManageResponse {
	return ManageResponse{
		CampaignDetailResponse: ToCampaignDetailResponse(&v.DetailView, version),
		MilestonePercentUsed:   v.MilestonePercentUsed,
		CanAddMilestone:        v.CanAddMilestone,
		CanAddReward:           v.CanAddReward,
	}
}

// BackedCampaignResponse 我支持的项目
type BackedCampaignResponse struct {
	CampaignResponse
	Donation Amount `json:"donation"`
}

// MyCampaignsResponse 我创建的与我支持的项目
type MyCampaignsResponse struct {
	Account string                   `json:"account"`
	Created []CampaignResponse       `json:"created"`
	Backed  []BackedCampaignResponse `json:"backed"`
}

// ToMyCampaignsResponse 转换
func ToMyCampaignsResponse(account string, mine *logic.MyCampaigns) MyCampaignsResponse {
	backed := make([]BackedCampaignResponse, 0, len(mine.Backed))
	for _, b := range mine.Backed {
		backed = append(backed, BackedCampaignResponse{
			CampaignResponse: ToCampaignResponse(b.CampaignView),
			Donation:         toAmount(b.Donation),
		})
	}
	return MyCampaignsResponse{
		Account: account,
		Created: ToCampaignResponseList(mine.Created),
		Backed:  backed,
	}
}

// StatsResponse 平台统计
type StatsResponse struct {
	TotalCampaigns      uint64 `json:"totalCampaigns"`
	TotalRaised         Amount `json:"totalRaised"`
	SuccessfulCampaigns uint64 `json:"successfulCampaigns"`
	TotalDonors         uint64 `json:"totalDonors"`
}

// ToStatsResponse 转换
func ToStatsResponse(s model.PlatformStats) StatsResponse {
	return StatsResponse{
		TotalCampaigns:      s.TotalCampaigns,
		TotalRaised:         toAmount(s.TotalRaised),
		SuccessfulCampaigns: s.SuccessfulCampaigns,
		TotalDonors:         s.TotalDonors,
	}
}

// 会话相关响应模型

// SessionResponse 当前会话
type SessionResponse struct {
	Connected   bool   `json:"connected"`
	Account     string `json:"account,omitempty"`
	ChainID     string `json:"chainId,omitempty"`
	Contract    string `json:"contract,omitempty"`
	ReadOnly    bool   `json:"readOnly"`
	Balance     Amount `json:"balance"`
	ConnectedAt int64  `json:"connectedAt,omitempty"`
}

// 动作相关响应模型

// ActionResultResponse 已上链的交易
type ActionResultResponse struct {
	Kind        string  `json:"kind"`
	RecordID    string  `json:"recordId,omitempty"`
	CampaignID  *uint64 `json:"campaignId,omitempty"`
	TxHash      string  `json:"txHash"`
	BlockNumber uint64  `json:"blockNumber"`
	GasUsed     uint64  `json:"gasUsed"`
}

// ToActionResultResponse 转换
func ToActionResultResponse(r *action.Result) ActionResultResponse {
	return ActionResultResponse{
		Kind:        string(r.Kind),
		RecordID:    r.RecordID,
		CampaignID:  r.CampaignID,
		TxHash:      r.TxHash.Hex(),
		BlockNumber: r.BlockNumber,
		GasUsed:     r.GasUsed,
	}
}

// ActionStatusResponse 动作状态
type ActionStatusResponse struct {
	Kind       string  `json:"kind"`
	State      string  `json:"state"`
	CampaignID *uint64 `json:"campaignId,omitempty"`
	TxHash     string  `json:"txHash,omitempty"`
	ErrorKind  string  `json:"errorKind,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	UpdatedAt  int64   `json:"updatedAt,omitempty"`
}

// ToActionStatusResponse 转换
func ToActionStatusResponse(s action.Status) ActionStatusResponse {
	return ActionStatusResponse{
		Kind:       string(s.Kind),
		State:      string(s.State),
		CampaignID: s.CampaignID,
		TxHash:     s.TxHash,
		ErrorKind:  s.ErrorKind,
		Reason:     s.Reason,
		UpdatedAt:  unixOrZero(s.UpdatedAt),
	}
}

// 事件相关响应模型

// EventResponse 合约事件
type EventResponse struct {
	Name        string            `json:"name"`
	CampaignID  int64             `json:"campaignId"`
	TxHash      string            `json:"txHash"`
	LogIndex    int64             `json:"logIndex"`
	BlockNumber int64             `json:"blockNumber"`
	Fields      map[string]string `json:"fields"`
}

// GetEventsResponse 事件列表
type GetEventsResponse struct {
	Events     []EventResponse `json:"events"`
	Pagination Pagination      `json:"pagination"`
}

// ToEventResponseList 批量转换
func ToEventResponseList(records []logic.EventRecord) []EventResponse {
	out := make([]EventResponse, 0, len(records))
	for _, r := range records {
		out = append(out, EventResponse{
			Name:        r.Name,
			CampaignID:  r.CampaignId,
			TxHash:      r.TxHash,
			LogIndex:    r.LogIndex,
			BlockNumber: r.BlockNumber,
			Fields:      r.Fields,
		})
	}
	return out
}
