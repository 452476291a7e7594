package model

import (
	"math/big"
	"time"
)

// Milestone 项目里程碑, 按 Index 排序
type Milestone struct {
	CampaignID   uint64
	Index        uint64
	Description  string
	Percentage   uint64 // 占目标金额的百分比
	TargetDate   time.Time
	Completed    bool
	Approved     bool
	VotesFor     uint64
	VotesAgainst uint64
}

// VotesCast 已投票总数
func (m *Milestone) VotesCast() uint64 {
	return m.VotesFor + m.VotesAgainst
}

// RequiresVote 第0个里程碑无需投票
func (m *Milestone) RequiresVote() bool {
	return m.Index > 0
}

// Amount 里程碑对应的金额 goal*percentage/100
func (m *Milestone) Amount(goal *big.Int) *big.Int {
	if goal == nil {
		return new(big.Int)
	}
	out := new(big.Int).Mul(goal, new(big.Int).SetUint64(m.Percentage))
	return out.Div(out, big.NewInt(100))
}

// RewardTier 回报档位
type RewardTier struct {
	CampaignID  uint64
	Index       uint64
	Title       string
	Description string
	MinAmount   *big.Int
	MaxQuantity uint64 // 0 表示不限量
	Claimed     uint64
}

// Unlimited 是否不限量
func (r *RewardTier) Unlimited() bool {
	return r.MaxQuantity == 0
}

// Remaining 剩余数量, 不限量时返回 -1
func (r *RewardTier) Remaining() int64 {
	if r.Unlimited() {
		return -1
	}
	if r.Claimed >= r.MaxQuantity {
		return 0
	}
	return int64(r.MaxQuantity - r.Claimed)
}
