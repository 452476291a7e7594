package task

import (
	"context"
	"time"

	"github.com/blues/fundchain/internal/action"
	"github.com/blues/fundchain/internal/logger"
	"github.com/blues/fundchain/internal/logic"
	"github.com/blues/fundchain/internal/model"
	"github.com/go-co-op/gocron/v2"
)

// CampaignLister 项目列表
type CampaignLister interface {
	List(ctx context.Context, filter logic.ListFilter) ([]logic.CampaignView, error)
}

// Finalizer 提交 finalize 交易
type Finalizer interface {
	Finalize(ctx context.Context, id uint64) (*action.Result, error)
}

// FinalizeJob 为已过截止时间仍在进行中的项目调用 finalize
type FinalizeJob struct {
	lister    CampaignLister
	finalizer Finalizer
	interval  time.Duration
	timeout   time.Duration
}

// NewFinalizeJob 创建结算任务
func NewFinalizeJob(lister CampaignLister, finalizer Finalizer, interval, timeout time.Duration) *FinalizeJob {
	if interval <= 0 {
		interval = time.Minute
	}
	if timeout <= 0 {
		timeout = action.DefaultTxTimeout
	}
	return &FinalizeJob{lister: lister, finalizer: finalizer, interval: interval, timeout: timeout}
}

// GetName 获取任务名称
func (j *FinalizeJob) GetName() string {
	return "campaign_finalizer"
}

// GetSchedule 获取调度配置
func (j *FinalizeJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(j.interval)
}

// Execute 执行任务
func (j *FinalizeJob) Execute() {
	ctx, cancel := context.WithTimeout(context.Background(), j.interval+j.timeout)
	defer cancel()
	j.Run(ctx)
}

// Run 返回成功结算的项目数
func (j *FinalizeJob) Run(ctx context.Context) int {
	active := model.CampaignStateActive
	views, err := j.lister.List(ctx, logic.ListFilter{State: &active})
	if err != nil {
		logger.Error("Failed to list campaigns for finalizing: %v", err)
		return 0
	}

	finalized := 0
	for _, v := range views {
		if v.Predicted == logic.OutcomeNotFinalizable {
			continue
		}
		id := v.Campaign.ID
		result, err := j.finalizer.Finalize(ctx, id)
		if err != nil {
			logger.Error("Failed to finalize campaign %d: %v", id, err)
			continue
		}
		finalized++
		logger.Info("Campaign %d finalized, expected %s, tx %s", id, v.Predicted, result.TxHash.Hex())
	}

	if finalized > 0 {
		logger.Info("Finalize task completed: %d campaigns finalized", finalized)
	}
	return finalized
}
