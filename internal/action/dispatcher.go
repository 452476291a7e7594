package action

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/blues/fundchain/internal/apperr"
	"github.com/blues/fundchain/internal/contract"
	"github.com/blues/fundchain/internal/logger"
	"github.com/blues/fundchain/internal/logic"
	"github.com/blues/fundchain/internal/model"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
)

// submitFunc 发出交易
type submitFunc func(w Writer, opts *bind.TransactOpts) (*types.Transaction, error)

// gateFunc 读取最新状态并判断资格, 通过时返回提交函数
type gateFunc func(ctx context.Context, r logic.Reader, account common.Address) (submitFunc, error)

// Dispatcher 某类动作的执行器, 按 (账户, 项目) 记录最近状态
type Dispatcher struct {
	kind Kind
	svc  *Service

	mu       sync.Mutex
	statuses map[statusKey]Status
}

// statusKey 与加锁粒度一致, 新建项目时 target 为 "new"
type statusKey struct {
	account common.Address
	target  string
}

func newDispatcher(kind Kind, svc *Service) *Dispatcher {
	return &Dispatcher{kind: kind, svc: svc, statuses: make(map[statusKey]Status)}
}

// Kind 动作类型
func (d *Dispatcher) Kind() Kind {
	return d.kind
}

// Status 账户在某项目上的最近状态, 没有记录时为 idle
func (d *Dispatcher) Status(account common.Address, campaignID *uint64) Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if st, ok := d.statuses[keyOf(account, campaignID)]; ok {
		return st
	}
	return Status{Kind: d.kind, State: StateIdle, CampaignID: campaignID}
}

// Reset 清空所有账户的状态, 回到 idle
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statuses = make(map[statusKey]Status)
}

func (d *Dispatcher) set(key statusKey, st Status) {
	st.Kind = d.kind
	st.UpdatedAt = d.svc.now()
	d.mu.Lock()
	d.statuses[key] = st
	d.mu.Unlock()
}

func keyOf(account common.Address, campaignID *uint64) statusKey {
	target := "new"
	if campaignID != nil {
		target = strconv.FormatUint(*campaignID, 10)
	}
	return statusKey{account: account, target: target}
}

func (d *Dispatcher) lockKey(key statusKey) string {
	return fmt.Sprintf("%s:%s:%s", d.kind, key.account.Hex(), key.target)
}

// run 加锁后执行一次动作, 同一 (动作, 账户, 项目) 已有在途交易时直接拒绝
func (d *Dispatcher) run(ctx context.Context, sess Session, campaignID *uint64, gate gateFunc) (*Result, error) {
	account := sess.Account()
	sk := keyOf(account, campaignID)
	key := d.lockKey(sk)

	acquired, err := d.svc.locker.Acquire(ctx, key, d.svc.lockTTL())
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, string(d.kind), err)
	}
	if !acquired {
		return nil, apperr.New(apperr.KindValidation, string(d.kind), "a transaction for this action is already pending")
	}
	defer func() {
		if err := d.svc.locker.Release(context.Background(), key); err != nil {
			logger.Warn("Failed to release %s lock: %v", d.kind, err)
		}
	}()

	d.set(sk, Status{State: StatePending, CampaignID: campaignID})

	result, err := d.execute(ctx, sess, account, campaignID, gate)
	if err != nil {
		st := Status{
			State:      StateFailure,
			CampaignID: campaignID,
			ErrorKind:  apperr.KindOf(err).String(),
			Reason:     apperr.ReasonOf(err),
		}
		if result != nil {
			st.TxHash = result.TxHash.Hex()
		}
		d.set(sk, st)
		logger.Warn("Action %s by %s failed: %v", d.kind, account.Hex(), err)
		return nil, err
	}

	d.set(sk, Status{State: StateSuccess, CampaignID: result.CampaignID, TxHash: result.TxHash.Hex()})
	d.svc.invalidate(result.CampaignID)
	return result, nil
}

// execute 校验资格, 提交, 等待上链; 已提交但失败时同时返回部分结果
func (d *Dispatcher) execute(ctx context.Context, sess Session, account common.Address, campaignID *uint64, gate gateFunc) (*Result, error) {
	c := sess.Contract()
	if c == nil {
		return nil, apperr.New(apperr.KindConnectivity, string(d.kind), "no contract handle")
	}

	submit, err := gate(ctx, c, account)
	if err != nil {
		return nil, err
	}

	opts, err := sess.TransactOpts(ctx)
	if err != nil {
		return nil, err
	}

	recordID := d.svc.startRecord(ctx, d.kind, campaignID, account)

	tx, err := submit(c, opts)
	if err != nil {
		d.svc.finishRecord(recordID, "", 0, err)
		return nil, err
	}
	result := &Result{Kind: d.kind, RecordID: recordID, CampaignID: campaignID, TxHash: tx.Hash()}
	logger.Info("Action %s by %s submitted: %s", d.kind, account.Hex(), tx.Hash().Hex())

	// 已提交的交易不随请求取消, 只受超时约束
	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.svc.txTimeout)
	defer cancel()

	receipt, err := c.WaitMined(waitCtx, tx, account)
	if receipt != nil {
		result.BlockNumber = receipt.BlockNumber.Uint64()
		result.GasUsed = receipt.GasUsed
	}
	if err != nil {
		d.svc.finishRecord(recordID, tx.Hash().Hex(), result.BlockNumber, err)
		return result, err
	}

	if result.CampaignID == nil {
		result.CampaignID = createdCampaignID(c, receipt)
	}
	d.svc.finishRecord(recordID, tx.Hash().Hex(), result.BlockNumber, nil)
	logger.Info("Action %s by %s mined in block %d", d.kind, account.Hex(), result.BlockNumber)
	return result, nil
}

// createdCampaignID 从回执的 CampaignCreated 事件中取新项目ID
func createdCampaignID(w Writer, receipt *types.Receipt) *uint64 {
	for _, l := range receipt.Logs {
		if l == nil {
			continue
		}
		ev, ok, err := w.ParseEvent(*l)
		if err != nil || !ok || ev.Name != contract.EventCampaignCreated {
			continue
		}
		id := ev.CampaignID
		return &id
	}
	return nil
}

func recordStatus(err error) model.ActionStatus {
	switch {
	case err == nil:
		return model.ActionStatusSuccess
	case apperr.Is(err, apperr.KindTimeout):
		return model.ActionStatusTimeout
	default:
		return model.ActionStatusFailed
	}
}

// startRecord 写入 pending 记录, 数据库不可用时只记日志
func (s *Service) startRecord(ctx context.Context, kind Kind, campaignID *uint64, account common.Address) string {
	id := uuid.NewString()
	if s.records == nil {
		return id
	}
	record := &model.ActionRecordModel{
		Id:         id,
		Kind:       string(kind),
		CampaignId: -1,
		Account:    account.Hex(),
		Status:     string(model.ActionStatusPending),
	}
	if campaignID != nil {
		record.CampaignId = int64(*campaignID)
	}
	if err := s.records.Create(ctx, record); err != nil {
		logger.Warn("Failed to store action record %s: %v", id, err)
	}
	return id
}

func (s *Service) finishRecord(id, txHash string, block uint64, err error) {
	if s.records == nil {
		return
	}
	reason := ""
	if err != nil {
		reason = apperr.ReasonOf(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if ferr := s.records.Finish(ctx, id, recordStatus(err), txHash, int64(block), reason); ferr != nil {
		logger.Warn("Failed to update action record %s: %v", id, ferr)
	}
}
