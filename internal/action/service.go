package action

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/blues/fundchain/internal/apperr"
	"github.com/blues/fundchain/internal/contract"
	"github.com/blues/fundchain/internal/logic"
	"github.com/blues/fundchain/internal/model"
	"github.com/blues/fundchain/internal/units"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// DefaultTxTimeout 等待交易上链的默认超时
const DefaultTxTimeout = 180 * time.Second

// RecordStore 交易记录存储
type RecordStore interface {
	Create(ctx context.Context, record *model.ActionRecordModel) error
	Finish(ctx context.Context, id string, status model.ActionStatus, txHash string, blockNum int64, reason string) error
}

// Options 服务参数, 零值字段使用默认值
type Options struct {
	Locker      Locker
	Records     RecordStore
	AdvisoryMax *big.Int
	TxTimeout   time.Duration
	Now         func() time.Time
}

// Service 全部动作的入口
type Service struct {
	source    SessionSource
	locker    Locker
	records   RecordStore
	advisory  *big.Int
	txTimeout time.Duration
	now       func() time.Time

	dispatchers map[Kind]*Dispatcher

	hookMu sync.RWMutex
	hooks  []func(campaignID *uint64)
}

// NewService 创建动作服务
func NewService(source SessionSource, opts Options) *Service {
	s := &Service{
		source:    source,
		locker:    opts.Locker,
		records:   opts.Records,
		advisory:  opts.AdvisoryMax,
		txTimeout: opts.TxTimeout,
		now:       opts.Now,
	}
	if s.locker == nil {
		s.locker = NewMemoryLocker()
	}
	if s.txTimeout <= 0 {
		s.txTimeout = DefaultTxTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.dispatchers = make(map[Kind]*Dispatcher, len(Kinds))
	for _, k := range Kinds {
		s.dispatchers[k] = newDispatcher(k, s)
	}
	return s
}

func (s *Service) lockTTL() time.Duration {
	return s.txTimeout + 30*time.Second
}

// Dispatcher 按类型取执行器
func (s *Service) Dispatcher(kind Kind) (*Dispatcher, error) {
	d, ok := s.dispatchers[kind]
	if !ok {
		return nil, apperr.Validation("action", "unknown action %q", kind)
	}
	return d, nil
}

// Status 当前会话账户在某项目上的动作状态, 新建项目不带项目ID
func (s *Service) Status(kind Kind, campaignID *uint64) (Status, error) {
	d, err := s.Dispatcher(kind)
	if err != nil {
		return Status{}, err
	}
	if kind != KindCreateCampaign && campaignID == nil {
		return Status{}, apperr.Validation(string(kind), "campaign is required")
	}
	if kind == KindCreateCampaign {
		campaignID = nil
	}
	sess, err := s.source()
	if err != nil {
		return Status{}, err
	}
	return d.Status(sess.Account(), campaignID), nil
}

// Reset 会话变化时所有动作回到 idle
func (s *Service) Reset() {
	for _, d := range s.dispatchers {
		d.Reset()
	}
}

// OnInvalidate 注册成功后的失效回调, nil 表示项目列表整体失效
func (s *Service) OnInvalidate(fn func(campaignID *uint64)) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.hooks = append(s.hooks, fn)
}

func (s *Service) invalidate(campaignID *uint64) {
	s.hookMu.RLock()
	hooks := append([]func(*uint64){}, s.hooks...)
	s.hookMu.RUnlock()
	for _, fn := range hooks {
		fn(campaignID)
	}
}

// session 取可签名的会话
func (s *Service) session(op Kind) (Session, error) {
	sess, err := s.source()
	if err != nil {
		return nil, err
	}
	if !sess.CanSign() {
		return nil, apperr.New(apperr.KindConnectivity, string(op), "session is read-only, no signer available")
	}
	return sess, nil
}

func readErr(op Kind, err error) error {
	switch apperr.KindOf(err) {
	case apperr.KindConnectivity, apperr.KindReadFailure, apperr.KindNotFound:
		return err
	default:
		return apperr.Wrap(apperr.KindReadFailure, string(op), err)
	}
}

func ineligible(op Kind, format string, args ...interface{}) error {
	return apperr.Validation(string(op), format, args...)
}

// loadCampaign 读取最新项目状态, 不存在时返回 NotFound
func loadCampaign(ctx context.Context, op Kind, r logic.Reader, id uint64) (model.Campaign, error) {
	count, err := r.CampaignCount(ctx)
	if err != nil {
		return model.Campaign{}, readErr(op, err)
	}
	if id >= count {
		return model.Campaign{}, apperr.New(apperr.KindNotFound, string(op), fmt.Sprintf("campaign %d does not exist", id))
	}
	c, err := r.GetCampaign(ctx, id)
	if err != nil {
		return model.Campaign{}, readErr(op, err)
	}
	return c, nil
}

func loadMilestone(ctx context.Context, op Kind, r logic.Reader, id, index uint64) ([]model.Milestone, *model.Milestone, error) {
	milestones, err := r.GetMilestones(ctx, id)
	if err != nil {
		return nil, nil, readErr(op, err)
	}
	if index >= uint64(len(milestones)) {
		return nil, nil, apperr.New(apperr.KindNotFound, string(op), fmt.Sprintf("milestone %d does not exist", index))
	}
	return milestones, &milestones[index], nil
}

func (s *Service) dispatch(ctx context.Context, kind Kind, campaignID *uint64, gate gateFunc) (*Result, error) {
	sess, err := s.session(kind)
	if err != nil {
		return nil, err
	}
	return s.dispatchers[kind].run(ctx, sess, campaignID, gate)
}

func ptr(id uint64) *uint64 {
	return &id
}

// CreateCampaign 创建项目
func (s *Service) CreateCampaign(ctx context.Context, in CreateCampaignInput) (*Result, error) {
	if _, err := s.session(KindCreateCampaign); err != nil {
		return nil, err
	}
	if err := checkInput(string(KindCreateCampaign), in); err != nil {
		return nil, err
	}
	category, err := model.ParseCategory(in.Category)
	if err != nil {
		return nil, ineligible(KindCreateCampaign, "%v", err)
	}
	goal, _ := units.ParseAmount(in.Goal)
	if goal.Sign() <= 0 {
		return nil, ineligible(KindCreateCampaign, "goal must be greater than 0")
	}
	minDonation := new(big.Int)
	if in.MinDonation != "" {
		minDonation, _ = units.ParseAmount(in.MinDonation)
	}
	if minDonation.Cmp(goal) > 0 {
		return nil, ineligible(KindCreateCampaign, "min_donation cannot exceed goal")
	}
	if !time.Unix(in.Deadline, 0).After(s.now()) {
		return nil, ineligible(KindCreateCampaign, "deadline must be in the future")
	}

	input := contract.CampaignInput{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Image:       strings.TrimSpace(in.Image),
		Category:    category,
		Goal:        goal,
		Deadline:    in.Deadline,
		MinDonation: minDonation,
	}
	return s.dispatch(ctx, KindCreateCampaign, nil, func(ctx context.Context, r logic.Reader, account common.Address) (submitFunc, error) {
		return func(w Writer, opts *bind.TransactOpts) (*types.Transaction, error) {
			return w.CreateCampaign(opts, input)
		}, nil
	})
}

// Donate 捐赠, 金额校验使用合约上限与客户端提示上限中的较小者
func (s *Service) Donate(ctx context.Context, id uint64, in DonateInput) (*Result, error) {
	if _, err := s.session(KindDonate); err != nil {
		return nil, err
	}
	if err := checkInput(string(KindDonate), in); err != nil {
		return nil, err
	}
	amount, _ := units.ParseAmount(in.Amount)

	return s.dispatch(ctx, KindDonate, ptr(id), func(ctx context.Context, r logic.Reader, account common.Address) (submitFunc, error) {
		c, err := loadCampaign(ctx, KindDonate, r, id)
		if err != nil {
			return nil, err
		}
		if !logic.CanDonate(&c, account) {
			return nil, ineligible(KindDonate, "campaign %d is %s and not accepting donations", id, c.State)
		}
		if !s.now().Before(c.Deadline) {
			return nil, ineligible(KindDonate, "campaign %d deadline has passed", id)
		}
		thr, err := r.Thresholds(ctx)
		if err != nil {
			return nil, readErr(KindDonate, err)
		}
		if err := logic.ValidateDonationAmount(&c, amount, logic.DonationCeiling(thr.MaxDonation, s.advisory)); err != nil {
			return nil, err
		}
		return func(w Writer, opts *bind.TransactOpts) (*types.Transaction, error) {
			return w.Donate(opts, id, amount)
		}, nil
	})
}

// Refund 失败项目退款
func (s *Service) Refund(ctx context.Context, id uint64) (*Result, error) {
	return s.dispatch(ctx, KindRefund, ptr(id), func(ctx context.Context, r logic.Reader, account common.Address) (submitFunc, error) {
		c, err := loadCampaign(ctx, KindRefund, r, id)
		if err != nil {
			return nil, err
		}
		donation, err := r.DonationOf(ctx, id, account)
		if err != nil {
			return nil, readErr(KindRefund, err)
		}
		if !logic.CanRefund(&c, donation) {
			return nil, ineligible(KindRefund, "nothing to refund for campaign %d (state %s)", id, c.State)
		}
		return func(w Writer, opts *bind.TransactOpts) (*types.Transaction, error) {
			return w.Refund(opts, id)
		}, nil
	})
}

// Withdraw 无里程碑项目一次性提款
func (s *Service) Withdraw(ctx context.Context, id uint64) (*Result, error) {
	return s.dispatch(ctx, KindWithdraw, ptr(id), func(ctx context.Context, r logic.Reader, account common.Address) (submitFunc, error) {
		c, err := loadCampaign(ctx, KindWithdraw, r, id)
		if err != nil {
			return nil, err
		}
		milestones, err := r.GetMilestones(ctx, id)
		if err != nil {
			return nil, readErr(KindWithdraw, err)
		}
		if len(milestones) > 0 && c.IsCreator(account) {
			return nil, ineligible(KindWithdraw, "campaign %d has milestones, withdraw per milestone", id)
		}
		if !logic.CanWithdraw(&c, account, len(milestones)) {
			return nil, ineligible(KindWithdraw, "funds of campaign %d cannot be withdrawn", id)
		}
		return func(w Writer, opts *bind.TransactOpts) (*types.Transaction, error) {
			return w.Withdraw(opts, id)
		}, nil
	})
}

// WithdrawMilestone 提取里程碑资金
func (s *Service) WithdrawMilestone(ctx context.Context, id, index uint64) (*Result, error) {
	return s.dispatch(ctx, KindWithdrawMilestone, ptr(id), func(ctx context.Context, r logic.Reader, account common.Address) (submitFunc, error) {
		c, err := loadCampaign(ctx, KindWithdrawMilestone, r, id)
		if err != nil {
			return nil, err
		}
		_, m, err := loadMilestone(ctx, KindWithdrawMilestone, r, id, index)
		if err != nil {
			return nil, err
		}
		if !logic.CanWithdrawMilestone(m, &c, account) {
			return nil, ineligible(KindWithdrawMilestone, "milestone %d of campaign %d cannot be withdrawn", index, id)
		}
		return func(w Writer, opts *bind.TransactOpts) (*types.Transaction, error) {
			return w.WithdrawMilestone(opts, id, index)
		}, nil
	})
}

// Vote 里程碑投票
func (s *Service) Vote(ctx context.Context, id, index uint64, in VoteInput) (*Result, error) {
	if _, err := s.session(KindVote); err != nil {
		return nil, err
	}
	if err := checkInput(string(KindVote), in); err != nil {
		return nil, err
	}
	support := *in.Support

	return s.dispatch(ctx, KindVote, ptr(id), func(ctx context.Context, r logic.Reader, account common.Address) (submitFunc, error) {
		c, err := loadCampaign(ctx, KindVote, r, id)
		if err != nil {
			return nil, err
		}
		_, m, err := loadMilestone(ctx, KindVote, r, id, index)
		if err != nil {
			return nil, err
		}
		donation, err := r.DonationOf(ctx, id, account)
		if err != nil {
			return nil, readErr(KindVote, err)
		}
		voted, err := r.HasVoted(ctx, id, index, account)
		if err != nil {
			return nil, readErr(KindVote, err)
		}
		if voted {
			return nil, ineligible(KindVote, "already voted on milestone %d", index)
		}
		if !logic.CanVoteMilestone(&c, m, donation, account, voted) {
			return nil, ineligible(KindVote, "milestone %d of campaign %d is not open for your vote", index, id)
		}
		return func(w Writer, opts *bind.TransactOpts) (*types.Transaction, error) {
			return w.VoteMilestone(opts, id, index, support)
		}, nil
	})
}

// ClaimReward 领取回报
func (s *Service) ClaimReward(ctx context.Context, id, index uint64) (*Result, error) {
	return s.dispatch(ctx, KindClaimReward, ptr(id), func(ctx context.Context, r logic.Reader, account common.Address) (submitFunc, error) {
		if _, err := loadCampaign(ctx, KindClaimReward, r, id); err != nil {
			return nil, err
		}
		rewards, err := r.GetRewards(ctx, id)
		if err != nil {
			return nil, readErr(KindClaimReward, err)
		}
		if index >= uint64(len(rewards)) {
			return nil, apperr.New(apperr.KindNotFound, string(KindClaimReward), fmt.Sprintf("reward %d does not exist", index))
		}
		reward := &rewards[index]
		donation, err := r.DonationOf(ctx, id, account)
		if err != nil {
			return nil, readErr(KindClaimReward, err)
		}
		claimed, err := r.HasClaimedReward(ctx, id, index, account)
		if err != nil {
			return nil, readErr(KindClaimReward, err)
		}
		if !logic.CanClaimReward(reward, donation, claimed) {
			switch {
			case claimed:
				return nil, ineligible(KindClaimReward, "reward %d already claimed", index)
			case !logic.RewardAvailable(reward):
				return nil, ineligible(KindClaimReward, "reward %d is sold out", index)
			default:
				return nil, ineligible(KindClaimReward, "reward %d requires a donation of at least %s", index, units.FormatAmount(reward.MinAmount))
			}
		}
		return func(w Writer, opts *bind.TransactOpts) (*types.Transaction, error) {
			return w.ClaimReward(opts, id, index)
		}, nil
	})
}

// creatorCampaign 只有进行中项目的创建者可以修改
func creatorCampaign(ctx context.Context, op Kind, r logic.Reader, id uint64, account common.Address) (model.Campaign, error) {
	c, err := loadCampaign(ctx, op, r, id)
	if err != nil {
		return c, err
	}
	if !c.IsCreator(account) {
		return c, ineligible(op, "only the creator of campaign %d can do this", id)
	}
	if c.State != model.CampaignStateActive {
		return c, ineligible(op, "campaign %d is %s", id, c.State)
	}
	return c, nil
}

// AddMilestone 新增里程碑, 百分比之和不超过100
func (s *Service) AddMilestone(ctx context.Context, id uint64, in AddMilestoneInput) (*Result, error) {
	if _, err := s.session(KindAddMilestone); err != nil {
		return nil, err
	}
	if err := checkInput(string(KindAddMilestone), in); err != nil {
		return nil, err
	}
	if !time.Unix(in.TargetDate, 0).After(s.now()) {
		return nil, ineligible(KindAddMilestone, "target_date must be in the future")
	}

	return s.dispatch(ctx, KindAddMilestone, ptr(id), func(ctx context.Context, r logic.Reader, account common.Address) (submitFunc, error) {
		if _, err := creatorCampaign(ctx, KindAddMilestone, r, id, account); err != nil {
			return nil, err
		}
		milestones, err := r.GetMilestones(ctx, id)
		if err != nil {
			return nil, readErr(KindAddMilestone, err)
		}
		if err := logic.ValidateMilestonePercentage(milestones, in.Percentage); err != nil {
			return nil, err
		}
		return func(w Writer, opts *bind.TransactOpts) (*types.Transaction, error) {
			return w.AddMilestone(opts, id, strings.TrimSpace(in.Description), in.Percentage, in.TargetDate)
		}, nil
	})
}

// AddReward 新增回报档位
func (s *Service) AddReward(ctx context.Context, id uint64, in AddRewardInput) (*Result, error) {
	if _, err := s.session(KindAddReward); err != nil {
		return nil, err
	}
	if err := checkInput(string(KindAddReward), in); err != nil {
		return nil, err
	}
	minAmount, _ := units.ParseAmount(in.MinAmount)
	if minAmount.Sign() <= 0 {
		return nil, ineligible(KindAddReward, "min_amount must be greater than 0")
	}

	return s.dispatch(ctx, KindAddReward, ptr(id), func(ctx context.Context, r logic.Reader, account common.Address) (submitFunc, error) {
		if _, err := creatorCampaign(ctx, KindAddReward, r, id, account); err != nil {
			return nil, err
		}
		return func(w Writer, opts *bind.TransactOpts) (*types.Transaction, error) {
			return w.AddReward(opts, id, strings.TrimSpace(in.Title), strings.TrimSpace(in.Description), minAmount, in.MaxQuantity)
		}, nil
	})
}

// AddReview 捐赠者评价
func (s *Service) AddReview(ctx context.Context, id uint64, in AddReviewInput) (*Result, error) {
	if _, err := s.session(KindAddReview); err != nil {
		return nil, err
	}
	if err := logic.ValidateRating(in.Rating); err != nil {
		return nil, err
	}
	if err := checkInput(string(KindAddReview), in); err != nil {
		return nil, err
	}

	return s.dispatch(ctx, KindAddReview, ptr(id), func(ctx context.Context, r logic.Reader, account common.Address) (submitFunc, error) {
		c, err := loadCampaign(ctx, KindAddReview, r, id)
		if err != nil {
			return nil, err
		}
		donation, err := r.DonationOf(ctx, id, account)
		if err != nil {
			return nil, readErr(KindAddReview, err)
		}
		reviewed, err := r.HasReviewed(ctx, id, account)
		if err != nil {
			return nil, readErr(KindAddReview, err)
		}
		if !logic.CanReview(&c, donation, reviewed) {
			if reviewed {
				return nil, ineligible(KindAddReview, "campaign %d already reviewed", id)
			}
			return nil, ineligible(KindAddReview, "only donors can review campaign %d after it ends", id)
		}
		return func(w Writer, opts *bind.TransactOpts) (*types.Transaction, error) {
			return w.AddReview(opts, id, uint8(in.Rating), strings.TrimSpace(in.Comment))
		}, nil
	})
}

// Finalize 截止后结算, 任何人都可调用
func (s *Service) Finalize(ctx context.Context, id uint64) (*Result, error) {
	return s.dispatch(ctx, KindFinalize, ptr(id), func(ctx context.Context, r logic.Reader, account common.Address) (submitFunc, error) {
		c, err := loadCampaign(ctx, KindFinalize, r, id)
		if err != nil {
			return nil, err
		}
		if !logic.IsFinalizable(&c, s.now()) {
			return nil, ineligible(KindFinalize, "campaign %d cannot be finalized yet", id)
		}
		return func(w Writer, opts *bind.TransactOpts) (*types.Transaction, error) {
			return w.Finalize(opts, id)
		}, nil
	})
}
