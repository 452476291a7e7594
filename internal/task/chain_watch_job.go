package task

import (
	"context"
	"time"

	"github.com/blues/fundchain/internal/logger"
	"github.com/go-co-op/gocron/v2"
)

// ChainChecker 检查链ID是否变化
type ChainChecker interface {
	CheckChain(ctx context.Context) (bool, error)
}

// ChainWatchJob 定期检查节点的链ID, 变化时会话被整体重建
type ChainWatchJob struct {
	checker  ChainChecker
	interval time.Duration
}

// NewChainWatchJob 创建链切换检查任务
func NewChainWatchJob(checker ChainChecker, interval time.Duration) *ChainWatchJob {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &ChainWatchJob{checker: checker, interval: interval}
}

// GetName 获取任务名称
func (j *ChainWatchJob) GetName() string {
	return "chain_watcher"
}

// GetSchedule 获取调度配置
func (j *ChainWatchJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(j.interval)
}

// Execute 执行任务
func (j *ChainWatchJob) Execute() {
	ctx, cancel := context.WithTimeout(context.Background(), j.interval)
	defer cancel()
	changed, err := j.checker.CheckChain(ctx)
	if err != nil {
		logger.Error("Chain check failed: %v", err)
		return
	}
	if changed {
		logger.Warn("Chain changed, session reloaded")
	}
}
