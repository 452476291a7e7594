package action

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/blues/fundchain/internal/contract"
	"github.com/blues/fundchain/internal/model"
	"github.com/blues/fundchain/internal/units"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	creator = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	donor   = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	testNow = time.Unix(1_900_000_000, 0)
)

// fakeContract 单个项目的内存合约, 记录写调用
type fakeContract struct {
	mu sync.Mutex

	campaign   model.Campaign
	milestones []model.Milestone
	rewards    []model.RewardTier
	donation   *big.Int
	voted      bool
	claimed    bool
	reviewed   bool
	thresholds model.Thresholds

	calls     []string
	lastValue *big.Int

	submitErr error
	waitErr   error
	started   chan struct{}
	release   chan struct{}
	createdID uint64

	thresholdsErr error
}

func campaign(id uint64) *uint64 { return &id }

func newFakeContract(state model.CampaignState) *fakeContract {
	return &fakeContract{
		campaign: model.Campaign{
			ID:              0,
			Creator:         creator,
			Goal:            units.Ether(10),
			AmountCollected: units.Ether(5),
			MinDonation:     big.NewInt(1e15),
			Deadline:        testNow.Add(72 * time.Hour),
			State:           state,
		},
		donation:   units.Ether(2),
		thresholds: model.Thresholds{ApprovalPercent: 51, MaxDonation: units.Ether(500)},
	}
}

func (f *fakeContract) CampaignCount(ctx context.Context) (uint64, error) { return 1, nil }

func (f *fakeContract) GetCampaign(ctx context.Context, id uint64) (model.Campaign, error) {
	return f.campaign, nil
}

func (f *fakeContract) GetMilestones(ctx context.Context, id uint64) ([]model.Milestone, error) {
	return f.milestones, nil
}

func (f *fakeContract) GetRewards(ctx context.Context, id uint64) ([]model.RewardTier, error) {
	return f.rewards, nil
}

func (f *fakeContract) GetDonations(ctx context.Context, id uint64) ([]model.Donation, error) {
	return nil, nil
}

func (f *fakeContract) GetReviews(ctx context.Context, id uint64) ([]model.Review, error) {
	return nil, nil
}

func (f *fakeContract) DonationOf(ctx context.Context, id uint64, d common.Address) (*big.Int, error) {
	if d != donor {
		return new(big.Int), nil
	}
	return f.donation, nil
}

func (f *fakeContract) HasVoted(ctx context.Context, id, m uint64, v common.Address) (bool, error) {
	return f.voted, nil
}

func (f *fakeContract) HasClaimedReward(ctx context.Context, id, r uint64, c common.Address) (bool, error) {
	return f.claimed, nil
}

func (f *fakeContract) HasReviewed(ctx context.Context, id uint64, r common.Address) (bool, error) {
	return f.reviewed, nil
}

func (f *fakeContract) PlatformStats(ctx context.Context) (model.PlatformStats, error) {
	return model.PlatformStats{}, nil
}

func (f *fakeContract) Thresholds(ctx context.Context) (model.Thresholds, error) {
	return f.thresholds, f.thresholdsErr
}

func (f *fakeContract) submit(name string) (*types.Transaction, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	nonce := uint64(len(f.calls))
	f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	return types.NewTx(&types.LegacyTx{Nonce: nonce, To: &to, Gas: 100000, GasPrice: big.NewInt(1), Value: new(big.Int)}), nil
}

func (f *fakeContract) CreateCampaign(opts *bind.TransactOpts, in contract.CampaignInput) (*types.Transaction, error) {
	return f.submit("createCampaign")
}

func (f *fakeContract) Donate(opts *bind.TransactOpts, id uint64, amount *big.Int) (*types.Transaction, error) {
	f.mu.Lock()
	f.lastValue = amount
	f.mu.Unlock()
	return f.submit("donate")
}

func (f *fakeContract) Refund(opts *bind.TransactOpts, id uint64) (*types.Transaction, error) {
	return f.submit("refund")
}

func (f *fakeContract) Withdraw(opts *bind.TransactOpts, id uint64) (*types.Transaction, error) {
	return f.submit("withdraw")
}

func (f *fakeContract) WithdrawMilestone(opts *bind.TransactOpts, id, index uint64) (*types.Transaction, error) {
	return f.submit("withdrawMilestone")
}

func (f *fakeContract) VoteMilestone(opts *bind.TransactOpts, id, index uint64, support bool) (*types.Transaction, error) {
	return f.submit("voteMilestone")
}

func (f *fakeContract) ClaimReward(opts *bind.TransactOpts, id, index uint64) (*types.Transaction, error) {
	return f.submit("claimReward")
}

func (f *fakeContract) AddMilestone(opts *bind.TransactOpts, id uint64, description string, percentage uint64, targetDate int64) (*types.Transaction, error) {
	return f.submit("addMilestone")
}

func (f *fakeContract) AddReward(opts *bind.TransactOpts, id uint64, title, description string, minAmount *big.Int, maxQuantity uint64) (*types.Transaction, error) {
	return f.submit("addReward")
}

func (f *fakeContract) AddReview(opts *bind.TransactOpts, id uint64, rating uint8, comment string) (*types.Transaction, error) {
	return f.submit("addReview")
}

func (f *fakeContract) Finalize(opts *bind.TransactOpts, id uint64) (*types.Transaction, error) {
	return f.submit("finalize")
}

func (f *fakeContract) WaitMined(ctx context.Context, tx *types.Transaction, from common.Address) (*types.Receipt, error) {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	receipt := &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		BlockNumber: big.NewInt(77),
		GasUsed:     42000,
		Logs:        []*types.Log{{Index: 0}},
	}
	if f.waitErr != nil {
		receipt.Status = types.ReceiptStatusFailed
		return receipt, f.waitErr
	}
	return receipt, nil
}

func (f *fakeContract) ParseEvent(log types.Log) (contract.Event, bool, error) {
	return contract.Event{Name: contract.EventCampaignCreated, CampaignID: f.createdID}, true, nil
}

func (f *fakeContract) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeSession struct {
	account  common.Address
	readOnly bool
	contract Contract
}

func (s *fakeSession) Account() common.Address { return s.account }
func (s *fakeSession) CanSign() bool           { return !s.readOnly }
func (s *fakeSession) Contract() Contract      { return s.contract }

func (s *fakeSession) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	return &bind.TransactOpts{From: s.account, Context: ctx}, nil
}

type fakeRecords struct {
	mu       sync.Mutex
	created  []model.ActionRecordModel
	finished map[string]model.ActionStatus
	reasons  map[string]string
	fail     bool
}

func (r *fakeRecords) Create(ctx context.Context, record *model.ActionRecordModel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("db down")
	}
	r.created = append(r.created, *record)
	return nil
}

func (r *fakeRecords) Finish(ctx context.Context, id string, status model.ActionStatus, txHash string, blockNum int64, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished == nil {
		r.finished = map[string]model.ActionStatus{}
		r.reasons = map[string]string{}
	}
	r.finished[id] = status
	r.reasons[id] = reason
	return nil
}

func newTestService(sess Session, records RecordStore) *Service {
	return NewService(func() (Session, error) { return sess, nil }, Options{
		Records:     records,
		AdvisoryMax: units.Ether(100),
		TxTimeout:   time.Second,
		Now:         func() time.Time { return testNow },
	})
}
