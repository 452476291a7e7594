// Package action 提交合约写交易. 每类动作一个 Dispatcher, 同一账户同一项目同时只允许一笔在途交易.
package action

import (
	"context"
	"math/big"
	"time"

	"github.com/blues/fundchain/internal/apperr"
	"github.com/blues/fundchain/internal/chain"
	"github.com/blues/fundchain/internal/contract"
	"github.com/blues/fundchain/internal/logic"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Kind 动作类型
type Kind string

const (
	KindCreateCampaign    Kind = "create_campaign"
	KindDonate            Kind = "donate"
	KindRefund            Kind = "refund"
	KindWithdraw          Kind = "withdraw"
	KindWithdrawMilestone Kind = "withdraw_milestone"
	KindVote              Kind = "vote"
	KindClaimReward       Kind = "claim_reward"
	KindAddMilestone      Kind = "add_milestone"
	KindAddReward         Kind = "add_reward"
	KindAddReview         Kind = "add_review"
	KindFinalize          Kind = "finalize"
)

// Kinds 全部动作类型
var Kinds = []Kind{
	KindCreateCampaign, KindDonate, KindRefund, KindWithdraw, KindWithdrawMilestone,
	KindVote, KindClaimReward, KindAddMilestone, KindAddReward, KindAddReview, KindFinalize,
}

// ParseKind 解析动作类型
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", apperr.Validation("action", "unknown action %q", s)
}

// State 动作状态: idle -> pending -> success | failure -> idle
type State string

const (
	StateIdle    State = "idle"
	StatePending State = "pending"
	StateSuccess State = "success"
	StateFailure State = "failure"
)

// Status 某账户某类动作的最近状态
type Status struct {
	Kind       Kind      `json:"kind"`
	State      State     `json:"state"`
	CampaignID *uint64   `json:"campaign_id,omitempty"`
	TxHash     string    `json:"tx_hash,omitempty"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Result 已上链交易
type Result struct {
	Kind        Kind
	RecordID    string
	CampaignID  *uint64
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
}

// Writer 合约写接口, *contract.Crowdfunding 满足
type Writer interface {
	CreateCampaign(opts *bind.TransactOpts, in contract.CampaignInput) (*types.Transaction, error)
	Donate(opts *bind.TransactOpts, id uint64, amount *big.Int) (*types.Transaction, error)
	Refund(opts *bind.TransactOpts, id uint64) (*types.Transaction, error)
	Withdraw(opts *bind.TransactOpts, id uint64) (*types.Transaction, error)
	WithdrawMilestone(opts *bind.TransactOpts, id, index uint64) (*types.Transaction, error)
	VoteMilestone(opts *bind.TransactOpts, id, index uint64, support bool) (*types.Transaction, error)
	ClaimReward(opts *bind.TransactOpts, id, index uint64) (*types.Transaction, error)
	AddMilestone(opts *bind.TransactOpts, id uint64, description string, percentage uint64, targetDate int64) (*types.Transaction, error)
	AddReward(opts *bind.TransactOpts, id uint64, title, description string, minAmount *big.Int, maxQuantity uint64) (*types.Transaction, error)
	AddReview(opts *bind.TransactOpts, id uint64, rating uint8, comment string) (*types.Transaction, error)
	Finalize(opts *bind.TransactOpts, id uint64) (*types.Transaction, error)
	WaitMined(ctx context.Context, tx *types.Transaction, from common.Address) (*types.Receipt, error)
	ParseEvent(log types.Log) (contract.Event, bool, error)
}

// Contract 读写合约
type Contract interface {
	logic.Reader
	Writer
}

// Session 提交交易所需的会话能力
type Session interface {
	Account() common.Address
	CanSign() bool
	TransactOpts(ctx context.Context) (*bind.TransactOpts, error)
	Contract() Contract
}

// SessionSource 返回当前会话
type SessionSource func() (Session, error)

type chainSession struct {
	*chain.Session
}

func (s chainSession) Contract() Contract {
	cf := s.Session.Contract()
	if cf == nil {
		return nil
	}
	return cf
}

// FromManager 使用会话管理器的当前会话
func FromManager(m *chain.Manager) SessionSource {
	return func() (Session, error) {
		s, err := m.Session()
		if err != nil {
			return nil, err
		}
		return chainSession{s}, nil
	}
}
