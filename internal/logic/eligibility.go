package logic

import (
	"math/big"
	"time"

	"github.com/blues/fundchain/internal/apperr"
	"github.com/blues/fundchain/internal/model"
	"github.com/blues/fundchain/internal/units"
	"github.com/ethereum/go-ethereum/common"
)

// 以下函数均为纯函数, 结果只用于提示与提交前的拦截, 合约才是最终裁决者.

const (
	// DefaultApprovalPercent 合约默认的里程碑通过阈值, 需严格大于
	DefaultApprovalPercent int64 = 51
	// MaxRating 评分上限
	MaxRating = 5
)

// Outcome 截止后的预测结果
type Outcome int

const (
	OutcomeNotFinalizable Outcome = iota
	OutcomeSuccessful
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccessful:
		return "successful"
	case OutcomeFailed:
		return "failed"
	default:
		return "not_finalizable"
	}
}

func hasAccount(account common.Address) bool {
	return account != (common.Address{})
}

func positive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}

// ProgressPercentage collected*100/goal, 上限100, goal为0时返回0
func ProgressPercentage(collected, goal *big.Int) uint64 {
	if goal == nil || goal.Sign() <= 0 || collected == nil || collected.Sign() <= 0 {
		return 0
	}
	p := new(big.Int).Mul(collected, big.NewInt(100))
	p.Div(p, goal)
	if p.Cmp(big.NewInt(100)) >= 0 {
		return 100
	}
	return p.Uint64()
}

// DaysRemaining 距截止的天数, 向上取整, 已过期返回0
func DaysRemaining(deadline, now time.Time) int64 {
	if !deadline.After(now) {
		return 0
	}
	left := deadline.Sub(now)
	days := int64(left / (24 * time.Hour))
	if left%(24*time.Hour) != 0 {
		days++
	}
	return days
}

// CanDonate 已连接且项目进行中
func CanDonate(c *model.Campaign, account common.Address) bool {
	return hasAccount(account) && c.State == model.CampaignStateActive
}

// DonationCeiling 合约上限与客户端提示上限中取较小者
func DonationCeiling(contractMax, advisory *big.Int) *big.Int {
	switch {
	case positive(contractMax) && positive(advisory):
		if contractMax.Cmp(advisory) < 0 {
			return contractMax
		}
		return advisory
	case positive(contractMax):
		return contractMax
	case positive(advisory):
		return advisory
	default:
		return nil
	}
}

// ValidateDonationAmount 金额需落在 [最小捐赠, 上限] 之间
func ValidateDonationAmount(c *model.Campaign, amount, ceiling *big.Int) error {
	if !positive(amount) {
		return apperr.Validation("donate", "donation amount must be greater than 0")
	}
	if positive(c.MinDonation) && amount.Cmp(c.MinDonation) < 0 {
		return apperr.Validation("donate", "donation below minimum of %s", units.FormatAmount(c.MinDonation))
	}
	if ceiling != nil && amount.Cmp(ceiling) > 0 {
		return apperr.Validation("donate", "donation above maximum of %s", units.FormatAmount(ceiling))
	}
	return nil
}

// CanRefund 只有失败的项目且有捐赠才能退款
func CanRefund(c *model.Campaign, donation *big.Int) bool {
	return c.State == model.CampaignStateFailed && positive(donation)
}

// CanWithdraw 无里程碑的成功项目由创建者一次性提取
func CanWithdraw(c *model.Campaign, account common.Address, milestoneCount int) bool {
	return c.IsCreator(account) &&
		c.State == model.CampaignStateSuccessful &&
		!c.FundsWithdrawn &&
		milestoneCount == 0
}

// MilestoneApprovalRatio 赞成票占比, 无人投票时为0, 仅用于展示
func MilestoneApprovalRatio(m *model.Milestone) float64 {
	cast := m.VotesCast()
	if cast == 0 {
		return 0
	}
	return float64(m.VotesFor) / float64(cast)
}

// IsMilestoneApproved 赞成票占比严格大于阈值, 用整数交叉相乘避免浮点误差
func IsMilestoneApproved(m *model.Milestone, thresholdPercent int64) bool {
	cast := m.VotesCast()
	if cast == 0 {
		return false
	}
	lhs := new(big.Int).Mul(new(big.Int).SetUint64(m.VotesFor), big.NewInt(100))
	rhs := new(big.Int).Mul(new(big.Int).SetUint64(cast), big.NewInt(thresholdPercent))
	return lhs.Cmp(rhs) > 0
}

// CanVoteMilestone 捐赠者对成功项目中未决的非首个里程碑投票, 每人一次
func CanVoteMilestone(c *model.Campaign, m *model.Milestone, donation *big.Int, account common.Address, hasVoted bool) bool {
	return hasAccount(account) &&
		positive(donation) &&
		!hasVoted &&
		m.RequiresVote() &&
		!m.Approved &&
		!m.Completed &&
		c.State == model.CampaignStateSuccessful
}

// CanWithdrawMilestone 第0个里程碑直接可提, 其余需已通过
func CanWithdrawMilestone(m *model.Milestone, c *model.Campaign, account common.Address) bool {
	return c.IsCreator(account) &&
		c.State == model.CampaignStateSuccessful &&
		!m.Completed &&
		(m.Index == 0 || m.Approved)
}

// RewardAvailable 是否还有剩余数量
func RewardAvailable(r *model.RewardTier) bool {
	return r.Unlimited() || r.Claimed < r.MaxQuantity
}

// CanClaimReward 捐赠达到门槛, 有剩余, 且未领取过
func CanClaimReward(r *model.RewardTier, donation *big.Int, alreadyClaimed bool) bool {
	if !positive(donation) || r.MinAmount == nil {
		return false
	}
	return donation.Cmp(r.MinAmount) >= 0 && RewardAvailable(r) && !alreadyClaimed
}

// CanReview 捐赠者在项目结束后评价一次
func CanReview(c *model.Campaign, donation *big.Int, hasReviewed bool) bool {
	if !positive(donation) || hasReviewed {
		return false
	}
	switch c.State {
	case model.CampaignStateSuccessful, model.CampaignStateCompleted, model.CampaignStateFailed:
		return true
	default:
		return false
	}
}

// IsFinalizable 截止后仍处于进行中, 任何人都可以调用 finalize
func IsFinalizable(c *model.Campaign, now time.Time) bool {
	return c.State == model.CampaignStateActive && !now.Before(c.Deadline)
}

// PredictedOutcome 预测 finalize 的结果
func PredictedOutcome(c *model.Campaign, now time.Time) Outcome {
	if !IsFinalizable(c, now) {
		return OutcomeNotFinalizable
	}
	if c.AmountCollected != nil && c.Goal != nil && c.AmountCollected.Cmp(c.Goal) >= 0 {
		return OutcomeSuccessful
	}
	return OutcomeFailed
}

// MilestonePercentageTotal 已有里程碑百分比之和
func MilestonePercentageTotal(milestones []model.Milestone) uint64 {
	var total uint64
	for _, m := range milestones {
		total += m.Percentage
	}
	return total
}

// ValidateMilestonePercentage 新增后总和不得超过100
func ValidateMilestonePercentage(existing []model.Milestone, percentage uint64) error {
	if percentage == 0 || percentage > 100 {
		return apperr.Validation("add_milestone", "milestone percentage must be between 1 and 100")
	}
	total := MilestonePercentageTotal(existing)
	if total+percentage > 100 {
		return apperr.Validation("add_milestone", "milestone percentages would total %d%%, limit is 100%%", total+percentage)
	}
	return nil
}

// ValidateRating 评分 1-5
func ValidateRating(rating int) error {
	if rating < 1 || rating > MaxRating {
		return apperr.Validation("add_review", "rating must be between 1 and %d", MaxRating)
	}
	return nil
}
