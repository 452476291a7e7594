package contract

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/blues/fundchain/internal/apperr"
	"github.com/blues/fundchain/internal/logger"
	"github.com/blues/fundchain/internal/model"
	"github.com/blues/fundchain/internal/units"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// 合约未暴露阈值时使用的默认值
var (
	DefaultApprovalPercent int64 = 51
	DefaultMaxDonation           = units.Ether(100)
)

// Backend 合约调用所需的链接口, *ethclient.Client 满足
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Crowdfunding 众筹合约包装器
type Crowdfunding struct {
	address common.Address
	abi     abi.ABI
	bound   *bind.BoundContract
	caller  bind.ContractCaller
	waiter  bind.DeployBackend
}

// NewCrowdfunding 创建合约实例
func NewCrowdfunding(address common.Address, parsedABI abi.ABI, backend Backend) *Crowdfunding {
	return newCrowdfunding(address, parsedABI, backend, backend, backend, backend)
}

func newCrowdfunding(address common.Address, parsedABI abi.ABI, caller bind.ContractCaller, transactor bind.ContractTransactor, filterer bind.ContractFilterer, waiter bind.DeployBackend) *Crowdfunding {
	return &Crowdfunding{
		address: address,
		abi:     parsedABI,
		bound:   bind.NewBoundContract(address, parsedABI, caller, transactor, filterer),
		caller:  caller,
		waiter:  waiter,
	}
}

// GetAddress 获取合约地址
func (c *Crowdfunding) GetAddress() common.Address {
	return c.address
}

// GetABI 获取合约ABI
func (c *Crowdfunding) GetABI() abi.ABI {
	return c.abi
}

func (c *Crowdfunding) call(ctx context.Context, method string, params ...interface{}) ([]interface{}, error) {
	var out []interface{}
	if err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, method, params...); err != nil {
		return nil, err
	}
	return out, nil
}

func idArg(id uint64) *big.Int {
	return new(big.Int).SetUint64(id)
}

// readErr 读取失败统一归为可重试的读错误
func readErr(method string, err error) error {
	return apperr.Wrap(apperr.KindReadFailure, method, err)
}

// CampaignCount 项目总数, 项目ID为 0..count-1
func (c *Crowdfunding) CampaignCount(ctx context.Context) (uint64, error) {
	out, err := c.call(ctx, "campaignCount")
	if err != nil {
		return 0, readErr("campaignCount", err)
	}
	n, err := decodeUint64("campaignCount", out)
	if err != nil {
		return 0, readErr("campaignCount", err)
	}
	return n, nil
}

// GetCampaign 获取单个项目
func (c *Crowdfunding) GetCampaign(ctx context.Context, id uint64) (model.Campaign, error) {
	out, err := c.call(ctx, "getCampaign", idArg(id))
	if err != nil {
		return model.Campaign{}, readErr("getCampaign", err)
	}
	campaign, err := decodeCampaign(id, out)
	if err != nil {
		return model.Campaign{}, readErr("getCampaign", err)
	}
	return campaign, nil
}

func (c *Crowdfunding) count(ctx context.Context, method string, id uint64) (uint64, error) {
	out, err := c.call(ctx, method, idArg(id))
	if err != nil {
		return 0, readErr(method, err)
	}
	n, err := decodeUint64(method, out)
	if err != nil {
		return 0, readErr(method, err)
	}
	return n, nil
}

// GetMilestones 按序号读取全部里程碑
func (c *Crowdfunding) GetMilestones(ctx context.Context, id uint64) ([]model.Milestone, error) {
	n, err := c.count(ctx, "getMilestoneCount", id)
	if err != nil {
		return nil, err
	}
	milestones := make([]model.Milestone, 0, n)
	for i := uint64(0); i < n; i++ {
		out, err := c.call(ctx, "getMilestone", idArg(id), idArg(i))
		if err != nil {
			return nil, readErr("getMilestone", err)
		}
		m, err := decodeMilestone(id, i, out)
		if err != nil {
			return nil, readErr("getMilestone", err)
		}
		milestones = append(milestones, m)
	}
	return milestones, nil
}

// GetRewards 读取全部回报档位
func (c *Crowdfunding) GetRewards(ctx context.Context, id uint64) ([]model.RewardTier, error) {
	n, err := c.count(ctx, "getRewardCount", id)
	if err != nil {
		return nil, err
	}
	rewards := make([]model.RewardTier, 0, n)
	for i := uint64(0); i < n; i++ {
		out, err := c.call(ctx, "getReward", idArg(id), idArg(i))
		if err != nil {
			return nil, readErr("getReward", err)
		}
		r, err := decodeReward(id, i, out)
		if err != nil {
			return nil, readErr("getReward", err)
		}
		rewards = append(rewards, r)
	}
	return rewards, nil
}

// GetDonations 读取全部捐赠记录
func (c *Crowdfunding) GetDonations(ctx context.Context, id uint64) ([]model.Donation, error) {
	n, err := c.count(ctx, "getDonationCount", id)
	if err != nil {
		return nil, err
	}
	donations := make([]model.Donation, 0, n)
	for i := uint64(0); i < n; i++ {
		out, err := c.call(ctx, "getDonationAt", idArg(id), idArg(i))
		if err != nil {
			return nil, readErr("getDonationAt", err)
		}
		d, err := decodeDonation(id, out)
		if err != nil {
			return nil, readErr("getDonationAt", err)
		}
		donations = append(donations, d)
	}
	return donations, nil
}

// GetReviews 读取全部评价
func (c *Crowdfunding) GetReviews(ctx context.Context, id uint64) ([]model.Review, error) {
	n, err := c.count(ctx, "getReviewCount", id)
	if err != nil {
		return nil, err
	}
	reviews := make([]model.Review, 0, n)
	for i := uint64(0); i < n; i++ {
		out, err := c.call(ctx, "getReviewAt", idArg(id), idArg(i))
		if err != nil {
			return nil, readErr("getReviewAt", err)
		}
		r, err := decodeReview(id, out)
		if err != nil {
			return nil, readErr("getReviewAt", err)
		}
		reviews = append(reviews, r)
	}
	return reviews, nil
}

// DonationOf 某地址在项目中的累计捐赠
func (c *Crowdfunding) DonationOf(ctx context.Context, id uint64, donor common.Address) (*big.Int, error) {
	out, err := c.call(ctx, "getDonation", idArg(id), donor)
	if err != nil {
		return nil, readErr("getDonation", err)
	}
	v, err := decodeBigInt("getDonation", out)
	if err != nil {
		return nil, readErr("getDonation", err)
	}
	return v, nil
}

func (c *Crowdfunding) flag(ctx context.Context, method string, params ...interface{}) (bool, error) {
	out, err := c.call(ctx, method, params...)
	if err != nil {
		return false, readErr(method, err)
	}
	v, err := decodeBool(method, out)
	if err != nil {
		return false, readErr(method, err)
	}
	return v, nil
}

// HasVoted 是否已对里程碑投票
func (c *Crowdfunding) HasVoted(ctx context.Context, id, milestone uint64, voter common.Address) (bool, error) {
	return c.flag(ctx, "hasVoted", idArg(id), idArg(milestone), voter)
}

// HasClaimedReward 是否已领取回报
func (c *Crowdfunding) HasClaimedReward(ctx context.Context, id, reward uint64, claimer common.Address) (bool, error) {
	return c.flag(ctx, "hasClaimedReward", idArg(id), idArg(reward), claimer)
}

// HasReviewed 是否已评价
func (c *Crowdfunding) HasReviewed(ctx context.Context, id uint64, reviewer common.Address) (bool, error) {
	return c.flag(ctx, "hasReviewed", idArg(id), reviewer)
}

// PlatformStats 平台统计
func (c *Crowdfunding) PlatformStats(ctx context.Context) (model.PlatformStats, error) {
	out, err := c.call(ctx, "getPlatformStats")
	if err != nil {
		return model.PlatformStats{}, readErr("getPlatformStats", err)
	}
	stats, err := decodeStats(out)
	if err != nil {
		return model.PlatformStats{}, readErr("getPlatformStats", err)
	}
	return stats, nil
}

// Thresholds 读取合约的阈值. 合约没有对应方法时回退到默认值, 其他读取错误原样返回
func (c *Crowdfunding) Thresholds(ctx context.Context) (model.Thresholds, error) {
	thr := model.Thresholds{ApprovalPercent: DefaultApprovalPercent, MaxDonation: new(big.Int).Set(DefaultMaxDonation)}

	out, ok, err := c.optionalCall(ctx, "approvalThreshold")
	if err != nil {
		return model.Thresholds{}, readErr("approvalThreshold", err)
	}
	if ok {
		v, err := decodeUint64("approvalThreshold", out)
		if err != nil {
			return model.Thresholds{}, readErr("approvalThreshold", err)
		}
		if v == 0 || v >= 100 {
			logger.Warn("approvalThreshold returned unusable value %d, using default %d%%", v, DefaultApprovalPercent)
		} else {
			thr.ApprovalPercent = int64(v)
		}
	}

	out, ok, err = c.optionalCall(ctx, "maxDonation")
	if err != nil {
		return model.Thresholds{}, readErr("maxDonation", err)
	}
	if ok {
		v, err := decodeBigInt("maxDonation", out)
		if err != nil {
			return model.Thresholds{}, readErr("maxDonation", err)
		}
		if v.Sign() == 0 {
			logger.Warn("maxDonation returned 0, using default %s", units.FormatAmount(DefaultMaxDonation))
		} else {
			thr.MaxDonation = v
		}
	}

	return thr, nil
}

// optionalCall 调用可选的只读方法. ABI 中没有该方法或调用无原因回滚时 ok 为 false
func (c *Crowdfunding) optionalCall(ctx context.Context, method string) ([]interface{}, bool, error) {
	if _, exists := c.abi.Methods[method]; !exists {
		logger.Warn("%s not in contract ABI, using default", method)
		return nil, false, nil
	}
	out, err := c.call(ctx, method)
	if err != nil {
		if reason, reverted := RevertReason(err); reverted && reason == revertPrefix {
			logger.Warn("%s reverted without reason, using default", method)
			return nil, false, nil
		}
		return nil, false, err
	}
	return out, true, nil
}

func (c *Crowdfunding) transact(opts *bind.TransactOpts, method string, params ...interface{}) (*types.Transaction, error) {
	if opts == nil {
		return nil, apperr.New(apperr.KindConnectivity, method, "no signer available")
	}
	tx, err := c.bound.Transact(opts, method, params...)
	if err != nil {
		return nil, classifySubmit(method, err)
	}
	logger.Info("Submitted %s tx %s", method, tx.Hash().Hex())
	return tx, nil
}

// CampaignInput 创建项目参数
type CampaignInput struct {
	Title       string
	Description string
	Image       string
	Category    model.Category
	Goal        *big.Int
	Deadline    int64 // unix秒
	MinDonation *big.Int
}

// CreateCampaign 创建项目
func (c *Crowdfunding) CreateCampaign(opts *bind.TransactOpts, in CampaignInput) (*types.Transaction, error) {
	minDonation := in.MinDonation
	if minDonation == nil {
		minDonation = new(big.Int)
	}
	return c.transact(opts, "createCampaign",
		in.Title, in.Description, in.Image, uint8(in.Category),
		in.Goal, big.NewInt(in.Deadline), minDonation)
}

// Donate 捐赠, 金额放在交易的 value 中
func (c *Crowdfunding) Donate(opts *bind.TransactOpts, id uint64, amount *big.Int) (*types.Transaction, error) {
	if opts == nil {
		return c.transact(nil, "donate")
	}
	payable := *opts
	payable.Value = new(big.Int).Set(amount)
	return c.transact(&payable, "donate", idArg(id))
}

// Refund 失败项目退款
func (c *Crowdfunding) Refund(opts *bind.TransactOpts, id uint64) (*types.Transaction, error) {
	return c.transact(opts, "refund", idArg(id))
}

// Withdraw 无里程碑项目提款
func (c *Crowdfunding) Withdraw(opts *bind.TransactOpts, id uint64) (*types.Transaction, error) {
	return c.transact(opts, "withdraw", idArg(id))
}

// WithdrawMilestone 提取里程碑资金
func (c *Crowdfunding) WithdrawMilestone(opts *bind.TransactOpts, id, index uint64) (*types.Transaction, error) {
	return c.transact(opts, "withdrawMilestone", idArg(id), idArg(index))
}

// VoteMilestone 里程碑投票
func (c *Crowdfunding) VoteMilestone(opts *bind.TransactOpts, id, index uint64, support bool) (*types.Transaction, error) {
	return c.transact(opts, "voteMilestone", idArg(id), idArg(index), support)
}

// ClaimReward 领取回报
func (c *Crowdfunding) ClaimReward(opts *bind.TransactOpts, id, index uint64) (*types.Transaction, error) {
	return c.transact(opts, "claimReward", idArg(id), idArg(index))
}

// AddMilestone 新增里程碑
func (c *Crowdfunding) AddMilestone(opts *bind.TransactOpts, id uint64, description string, percentage uint64, targetDate int64) (*types.Transaction, error) {
	return c.transact(opts, "addMilestone", idArg(id), description, new(big.Int).SetUint64(percentage), big.NewInt(targetDate))
}

// AddReward 新增回报档位
func (c *Crowdfunding) AddReward(opts *bind.TransactOpts, id uint64, title, description string, minAmount *big.Int, maxQuantity uint64) (*types.Transaction, error) {
	return c.transact(opts, "addReward", idArg(id), title, description, minAmount, new(big.Int).SetUint64(maxQuantity))
}

// AddReview 新增评价
func (c *Crowdfunding) AddReview(opts *bind.TransactOpts, id uint64, rating uint8, comment string) (*types.Transaction, error) {
	return c.transact(opts, "addReview", idArg(id), rating, comment)
}

// Finalize 截止后结算项目状态
func (c *Crowdfunding) Finalize(opts *bind.TransactOpts, id uint64) (*types.Transaction, error) {
	return c.transact(opts, "finalize", idArg(id))
}

// WaitMined 等待交易上链, 失败的回执通过重放取回滚原因
func (c *Crowdfunding) WaitMined(ctx context.Context, tx *types.Transaction, from common.Address) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, c.waiter, tx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, apperr.New(apperr.KindTimeout, "wait_mined",
				fmt.Sprintf("transaction %s not mined before timeout", tx.Hash().Hex()))
		}
		return nil, apperr.Wrap(apperr.KindReadFailure, "wait_mined", err)
	}

	if receipt.Status == types.ReceiptStatusFailed {
		reason := c.replayRevert(ctx, tx, from, receipt.BlockNumber)
		return receipt, apperr.New(apperr.KindReverted, "wait_mined", reason)
	}
	return receipt, nil
}

// replayRevert 在回执所在区块重放调用以取回滚原因
func (c *Crowdfunding) replayRevert(ctx context.Context, tx *types.Transaction, from common.Address, block *big.Int) string {
	msg := ethereum.CallMsg{
		From:  from,
		To:    tx.To(),
		Gas:   tx.Gas(),
		Value: tx.Value(),
		Data:  tx.Data(),
	}
	out, err := c.caller.CallContract(ctx, msg, block)
	if err != nil {
		if reason, ok := RevertReason(err); ok {
			return reason
		}
		logger.Warn("Failed to replay reverted tx %s: %v", tx.Hash().Hex(), err)
		return revertPrefix
	}
	if reason, err := abi.UnpackRevert(out); err == nil {
		return reason
	}
	return revertPrefix
}
