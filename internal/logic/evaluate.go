package logic

import (
	"math/big"
	"time"

	"github.com/blues/fundchain/internal/model"
	"github.com/ethereum/go-ethereum/common"
)

// AccountState 某地址在项目中的链上状态
type AccountState struct {
	Donation *big.Int
	Voted    map[uint64]bool // 按里程碑序号
	Claimed  map[uint64]bool // 按回报序号
	Reviewed bool
}

// MilestoneEligibility 单个里程碑的派生状态
type MilestoneEligibility struct {
	Index         uint64
	Ratio         float64
	ExpectApprove bool
	CanVote       bool
	CanWithdraw   bool
}

// RewardEligibility 单个回报档位的派生状态
type RewardEligibility struct {
	Index     uint64
	Available bool
	CanClaim  bool
}

// Eligibility 详情页的全部派生标记
type Eligibility struct {
	Account       common.Address
	Donation      *big.Int
	Progress      uint64
	DaysRemaining int64
	CanDonate     bool
	CanRefund     bool
	CanWithdraw   bool
	CanReview     bool
	Finalizable   bool
	Predicted     Outcome
	Milestones    []MilestoneEligibility
	Rewards       []RewardEligibility
}

// Evaluate 根据快照与账户状态计算所有可执行动作
func Evaluate(d *model.CampaignDetail, acct AccountState, account common.Address, thr model.Thresholds, now time.Time) Eligibility {
	c := &d.Campaign
	donation := acct.Donation
	if donation == nil {
		donation = new(big.Int)
	}
	threshold := thr.ApprovalPercent
	if threshold <= 0 {
		threshold = DefaultApprovalPercent
	}

	e := Eligibility{
		Account:       account,
		Donation:      donation,
		Progress:      ProgressPercentage(c.AmountCollected, c.Goal),
		DaysRemaining: DaysRemaining(c.Deadline, now),
		CanDonate:     CanDonate(c, account),
		CanRefund:     hasAccount(account) && CanRefund(c, donation),
		CanWithdraw:   CanWithdraw(c, account, len(d.Milestones)),
		CanReview:     hasAccount(account) && CanReview(c, donation, acct.Reviewed),
		Finalizable:   IsFinalizable(c, now),
		Predicted:     PredictedOutcome(c, now),
	}

	e.Milestones = make([]MilestoneEligibility, 0, len(d.Milestones))
	for i := range d.Milestones {
		m := &d.Milestones[i]
		e.Milestones = append(e.Milestones, MilestoneEligibility{
			Index:         m.Index,
			Ratio:         MilestoneApprovalRatio(m),
			ExpectApprove: IsMilestoneApproved(m, threshold),
			CanVote:       CanVoteMilestone(c, m, donation, account, acct.Voted[m.Index]),
			CanWithdraw:   CanWithdrawMilestone(m, c, account),
		})
	}

	e.Rewards = make([]RewardEligibility, 0, len(d.Rewards))
	for i := range d.Rewards {
		r := &d.Rewards[i]
		e.Rewards = append(e.Rewards, RewardEligibility{
			Index:     r.Index,
			Available: RewardAvailable(r),
			CanClaim:  hasAccount(account) && CanClaimReward(r, donation, acct.Claimed[r.Index]),
		})
	}

	return e
}
