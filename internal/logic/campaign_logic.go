package logic

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/blues/fundchain/internal/apperr"
	"github.com/blues/fundchain/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/panjf2000/ants/v2"
)

// Reader 合约只读接口, *contract.Crowdfunding 满足
type Reader interface {
	CampaignCount(ctx context.Context) (uint64, error)
	GetCampaign(ctx context.Context, id uint64) (model.Campaign, error)
	GetMilestones(ctx context.Context, id uint64) ([]model.Milestone, error)
	GetRewards(ctx context.Context, id uint64) ([]model.RewardTier, error)
	GetDonations(ctx context.Context, id uint64) ([]model.Donation, error)
	GetReviews(ctx context.Context, id uint64) ([]model.Review, error)
	DonationOf(ctx context.Context, id uint64, donor common.Address) (*big.Int, error)
	HasVoted(ctx context.Context, id, milestone uint64, voter common.Address) (bool, error)
	HasClaimedReward(ctx context.Context, id, reward uint64, claimer common.Address) (bool, error)
	HasReviewed(ctx context.Context, id uint64, reviewer common.Address) (bool, error)
	PlatformStats(ctx context.Context) (model.PlatformStats, error)
	Thresholds(ctx context.Context) (model.Thresholds, error)
}

// ReaderSource 返回当前会话的合约读取器, 未连接时返回连接错误
type ReaderSource func() (Reader, error)

// CampaignView 列表项: 项目快照与派生字段
type CampaignView struct {
	Campaign      model.Campaign
	Progress      uint64
	DaysRemaining int64
	Predicted     Outcome
}

// BackedView 我支持的项目
type BackedView struct {
	CampaignView
	Donation *big.Int
}

// MyCampaigns 我创建的与我支持的项目
type MyCampaigns struct {
	Created []CampaignView
	Backed  []BackedView
}

// DetailView 详情页
type DetailView struct {
	Detail      model.CampaignDetail
	Thresholds  model.Thresholds
	Ceiling     *big.Int
	Eligibility Eligibility
}

// ManageView 创建者管理页
type ManageView struct {
	DetailView
	MilestonePercentUsed uint64
	MilestoneAmounts     []*big.Int
	CanAddMilestone      bool
	CanAddReward         bool
}

// ListFilter 列表过滤条件, nil 表示不过滤
type ListFilter struct {
	State    *model.CampaignState
	Category *model.Category
	Creator  *common.Address
}

func (f ListFilter) match(c *model.Campaign) bool {
	if f.State != nil && c.State != *f.State {
		return false
	}
	if f.Category != nil && c.Category != *f.Category {
		return false
	}
	if f.Creator != nil && c.Creator != *f.Creator {
		return false
	}
	return true
}

// CampaignLogic 组装视图数据, 每次请求都从合约重新读取
type CampaignLogic struct {
	source   ReaderSource
	pool     *ants.Pool
	advisory *big.Int
	now      func() time.Time
}

// NewCampaignLogic 创建项目视图逻辑
func NewCampaignLogic(source ReaderSource, poolSize int, advisoryMax *big.Int) (*CampaignLogic, error) {
	if poolSize <= 0 {
		poolSize = 16
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create read pool: %w", err)
	}
	return &CampaignLogic{
		source:   source,
		pool:     pool,
		advisory: advisoryMax,
		now:      time.Now,
	}, nil
}

// Release 释放协程池
func (l *CampaignLogic) Release() {
	l.pool.Release()
}

// Now 当前时间
func (l *CampaignLogic) Now() time.Time {
	return l.now()
}

func (l *CampaignLogic) reader() (Reader, error) {
	r, err := l.source()
	if err != nil {
		return nil, err
	}
	return r, nil
}

// readFailure 读取错误统一为可重试错误, 保留连接与不存在错误
func readFailure(op string, err error) error {
	switch apperr.KindOf(err) {
	case apperr.KindConnectivity, apperr.KindReadFailure, apperr.KindNotFound:
		return err
	default:
		return apperr.Wrap(apperr.KindReadFailure, op, err)
	}
}

// parallel 在协程池中并发执行, 返回第一个错误
func (l *CampaignLogic) parallel(tasks ...func() error) error {
	var wg sync.WaitGroup
	errs := make([]error, len(tasks))
	for i, task := range tasks {
		i, task := i, task
		wg.Add(1)
		if err := l.pool.Submit(func() {
			defer wg.Done()
			errs[i] = task()
		}); err != nil {
			wg.Done()
			errs[i] = err
		}
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (l *CampaignLogic) view(c model.Campaign, now time.Time) CampaignView {
	return CampaignView{
		Campaign:      c,
		Progress:      ProgressPercentage(c.AmountCollected, c.Goal),
		DaysRemaining: DaysRemaining(c.Deadline, now),
		Predicted:     PredictedOutcome(&c, now),
	}
}

func (l *CampaignLogic) allCampaigns(ctx context.Context, r Reader) ([]model.Campaign, error) {
	count, err := r.CampaignCount(ctx)
	if err != nil {
		return nil, readFailure("list", err)
	}
	campaigns := make([]model.Campaign, count)
	tasks := make([]func() error, 0, count)
	for id := uint64(0); id < count; id++ {
		id := id
		tasks = append(tasks, func() error {
			c, err := r.GetCampaign(ctx, id)
			if err != nil {
				return err
			}
			campaigns[id] = c
			return nil
		})
	}
	if err := l.parallel(tasks...); err != nil {
		return nil, readFailure("list", err)
	}
	return campaigns, nil
}

// List 项目列表, 按ID倒序
func (l *CampaignLogic) List(ctx context.Context, filter ListFilter) ([]CampaignView, error) {
	r, err := l.reader()
	if err != nil {
		return nil, err
	}
	campaigns, err := l.allCampaigns(ctx, r)
	if err != nil {
		return nil, err
	}

	now := l.now()
	views := make([]CampaignView, 0, len(campaigns))
	for i := range campaigns {
		if filter.match(&campaigns[i]) {
			views = append(views, l.view(campaigns[i], now))
		}
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Campaign.ID > views[j].Campaign.ID })
	return views, nil
}

// ByCreator 某地址创建的项目
func (l *CampaignLogic) ByCreator(ctx context.Context, creator common.Address) ([]CampaignView, error) {
	return l.List(ctx, ListFilter{Creator: &creator})
}

// ByDonor 某地址有捐赠的项目
func (l *CampaignLogic) ByDonor(ctx context.Context, donor common.Address) ([]BackedView, error) {
	r, err := l.reader()
	if err != nil {
		return nil, err
	}
	campaigns, err := l.allCampaigns(ctx, r)
	if err != nil {
		return nil, err
	}

	donations := make([]*big.Int, len(campaigns))
	tasks := make([]func() error, 0, len(campaigns))
	for i := range campaigns {
		i := i
		tasks = append(tasks, func() error {
			amount, err := r.DonationOf(ctx, campaigns[i].ID, donor)
			if err != nil {
				return err
			}
			donations[i] = amount
			return nil
		})
	}
	if err := l.parallel(tasks...); err != nil {
		return nil, readFailure("my_campaigns", err)
	}

	now := l.now()
	backed := make([]BackedView, 0)
	for i := range campaigns {
		if positive(donations[i]) {
			backed = append(backed, BackedView{CampaignView: l.view(campaigns[i], now), Donation: donations[i]})
		}
	}
	sort.Slice(backed, func(i, j int) bool { return backed[i].Campaign.ID > backed[j].Campaign.ID })
	return backed, nil
}

// Mine 我的项目: 创建的与支持的
func (l *CampaignLogic) Mine(ctx context.Context, account common.Address) (*MyCampaigns, error) {
	if !hasAccount(account) {
		return nil, apperr.Validation("my_campaigns", "account address is required")
	}
	created, err := l.ByCreator(ctx, account)
	if err != nil {
		return nil, err
	}
	backed, err := l.ByDonor(ctx, account)
	if err != nil {
		return nil, err
	}
	return &MyCampaigns{Created: created, Backed: backed}, nil
}

// Stats 平台统计
func (l *CampaignLogic) Stats(ctx context.Context) (model.PlatformStats, error) {
	r, err := l.reader()
	if err != nil {
		return model.PlatformStats{}, err
	}
	stats, err := r.PlatformStats(ctx)
	if err != nil {
		return model.PlatformStats{}, readFailure("stats", err)
	}
	return stats, nil
}

// Campaign 只读取项目本身
func (l *CampaignLogic) Campaign(ctx context.Context, id uint64) (model.Campaign, error) {
	r, err := l.reader()
	if err != nil {
		return model.Campaign{}, err
	}
	if err := l.checkExists(ctx, r, id); err != nil {
		return model.Campaign{}, err
	}
	c, err := r.GetCampaign(ctx, id)
	if err != nil {
		return model.Campaign{}, readFailure("campaign", err)
	}
	return c, nil
}

func (l *CampaignLogic) checkExists(ctx context.Context, r Reader, id uint64) error {
	count, err := r.CampaignCount(ctx)
	if err != nil {
		return readFailure("campaign", err)
	}
	if id >= count {
		return apperr.New(apperr.KindNotFound, "campaign", fmt.Sprintf("campaign %d does not exist", id))
	}
	return nil
}

// Detail 详情: 并发读取项目, 里程碑, 回报, 捐赠, 评价以及账户状态
func (l *CampaignLogic) Detail(ctx context.Context, id uint64, account common.Address) (*DetailView, error) {
	r, err := l.reader()
	if err != nil {
		return nil, err
	}
	if err := l.checkExists(ctx, r, id); err != nil {
		return nil, err
	}

	var (
		d           = model.CampaignDetail{}
		thr         model.Thresholds
		acct        = AccountState{Voted: map[uint64]bool{}, Claimed: map[uint64]bool{}}
		withAccount = hasAccount(account)
	)

	tasks := []func() error{
		func() (err error) { d.Campaign, err = r.GetCampaign(ctx, id); return },
		func() (err error) { d.Milestones, err = r.GetMilestones(ctx, id); return },
		func() (err error) { d.Rewards, err = r.GetRewards(ctx, id); return },
		func() (err error) { d.Donations, err = r.GetDonations(ctx, id); return },
		func() (err error) { d.Reviews, err = r.GetReviews(ctx, id); return },
		func() (err error) { thr, err = r.Thresholds(ctx); return },
	}
	if withAccount {
		tasks = append(tasks,
			func() (err error) { acct.Donation, err = r.DonationOf(ctx, id, account); return },
			func() (err error) { acct.Reviewed, err = r.HasReviewed(ctx, id, account); return },
		)
	}
	if err := l.parallel(tasks...); err != nil {
		return nil, readFailure("detail", err)
	}

	if withAccount {
		if err := l.accountFlags(ctx, r, id, account, &d, &acct); err != nil {
			return nil, readFailure("detail", err)
		}
	}

	return &DetailView{
		Detail:      d,
		Thresholds:  thr,
		Ceiling:     DonationCeiling(thr.MaxDonation, l.advisory),
		Eligibility: Evaluate(&d, acct, account, thr, l.now()),
	}, nil
}

// accountFlags 读取每个里程碑的投票与每个回报的领取状态
func (l *CampaignLogic) accountFlags(ctx context.Context, r Reader, id uint64, account common.Address, d *model.CampaignDetail, acct *AccountState) error {
	var mu sync.Mutex
	tasks := make([]func() error, 0, len(d.Milestones)+len(d.Rewards))
	for _, m := range d.Milestones {
		if !m.RequiresVote() {
			continue
		}
		index := m.Index
		tasks = append(tasks, func() error {
			voted, err := r.HasVoted(ctx, id, index, account)
			if err != nil {
				return err
			}
			mu.Lock()
			acct.Voted[index] = voted
			mu.Unlock()
			return nil
		})
	}
	for _, rw := range d.Rewards {
		index := rw.Index
		tasks = append(tasks, func() error {
			claimed, err := r.HasClaimedReward(ctx, id, index, account)
			if err != nil {
				return err
			}
			mu.Lock()
			acct.Claimed[index] = claimed
			mu.Unlock()
			return nil
		})
	}
	return l.parallel(tasks...)
}

// Manage 创建者管理视图
func (l *CampaignLogic) Manage(ctx context.Context, id uint64, account common.Address) (*ManageView, error) {
	detail, err := l.Detail(ctx, id, account)
	if err != nil {
		return nil, err
	}
	c := &detail.Detail.Campaign
	if !c.IsCreator(account) {
		return nil, apperr.Validation("manage", "only the campaign creator can manage campaign %d", id)
	}

	used := MilestonePercentageTotal(detail.Detail.Milestones)
	amounts := make([]*big.Int, 0, len(detail.Detail.Milestones))
	for i := range detail.Detail.Milestones {
		amounts = append(amounts, detail.Detail.Milestones[i].Amount(c.Goal))
	}
	active := c.State == model.CampaignStateActive
	return &ManageView{
		DetailView:           *detail,
		MilestonePercentUsed: used,
		MilestoneAmounts:     amounts,
		CanAddMilestone:      active && used < 100,
		CanAddReward:         active,
	}, nil
}
