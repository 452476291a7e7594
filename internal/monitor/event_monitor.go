package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/blues/fundchain/internal/chain"
	"github.com/blues/fundchain/internal/contract"
	"github.com/blues/fundchain/internal/logger"
	"github.com/blues/fundchain/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/panjf2000/ants/v2"
)

const defaultBatchSize = 500

// Parser 合约事件解析
type Parser interface {
	GetAddress() common.Address
	ParseEvent(log types.Log) (contract.Event, bool, error)
}

// Target 一次轮询使用的节点与合约
type Target struct {
	Logs     chain.LogReader
	Contract Parser
}

// TargetSource 返回当前会话的轮询目标
type TargetSource func() (Target, error)

// FromManager 使用会话管理器的当前会话
func FromManager(m *chain.Manager) TargetSource {
	return func() (Target, error) {
		s, err := m.Session()
		if err != nil {
			return Target{}, err
		}
		cf := s.Contract()
		if cf == nil {
			return Target{}, fmt.Errorf("session has no contract handle")
		}
		return Target{Logs: s.Client(), Contract: cf}, nil
	}
}

// EventStore 事件入库
type EventStore interface {
	SaveBatch(ctx context.Context, events []model.EventModel) (int64, error)
	MaxBlock(ctx context.Context, contractAddress string) (uint64, bool, error)
}

// Options 监控参数
type Options struct {
	Cursor      Cursor // 可选, 未配置 Redis 时为 nil
	DeployBlock uint64
	BatchSize   uint64
	Interval    time.Duration
	PoolSize    int
}

// EventMonitor 合约事件监控器
type EventMonitor struct {
	source TargetSource
	store  EventStore
	cursor Cursor
	opts   Options
	pool   *ants.Pool
	block  *chain.Block
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	hookMu sync.RWMutex
	hooks  []func(campaignID *uint64)

	mu              sync.RWMutex // 保护以下字段
	started         bool
	lastBlock       uint64
	loaded          bool
	retryCount      int
	lastRetryTime   time.Time
	backoffDuration time.Duration
	stored          int64
}

// NewEventMonitor 创建事件监控器
func NewEventMonitor(source TargetSource, store EventStore, opts Options) (*EventMonitor, error) {
	if opts.BatchSize == 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Interval <= 0 {
		opts.Interval = 15 * time.Second
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = 8
	}
	pool, err := ants.NewPool(opts.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create monitor pool: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &EventMonitor{
		source: source,
		store:  store,
		cursor: opts.Cursor,
		opts:   opts,
		pool:   pool,
		block:  chain.NewBlock(),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}, nil
}

// OnInvalidate 注册项目失效回调
func (m *EventMonitor) OnInvalidate(fn func(campaignID *uint64)) {
	m.hookMu.Lock()
	defer m.hookMu.Unlock()
	m.hooks = append(m.hooks, fn)
}

// Start 启动监控循环
func (m *EventMonitor) Start() {
	logger.Info("Starting contract event monitor (interval: %s, batch: %d)", m.opts.Interval, m.opts.BatchSize)
	m.mu.Lock()
	m.started = true
	m.mu.Unlock()
	go m.loop()
}

// Stop 停止监控并释放协程池
func (m *EventMonitor) Stop() {
	logger.Info("Stopping contract event monitor")
	m.cancel()
	m.mu.RLock()
	started := m.started
	m.mu.RUnlock()
	if started {
		<-m.done
	}
	m.pool.Release()
}

// Reset 会话变化后重新加载游标
func (m *EventMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = false
	m.lastBlock = 0
}

func (m *EventMonitor) loop() {
	defer close(m.done)
	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			logger.Info("Monitor stopped")
			return
		case <-ticker.C:
			if m.inBackoff() {
				continue
			}
			if err := m.PollOnce(m.ctx); err != nil {
				m.handleError(err)
				continue
			}
			m.resetBackoff()
		}
	}
}

// PollOnce 从游标处理到最新区块
func (m *EventMonitor) PollOnce(ctx context.Context) error {
	target, err := m.source()
	if err != nil {
		logger.Debug("Monitor skipped, no session: %v", err)
		return nil
	}

	latest, err := m.block.GetCurrentBlockNumber(ctx, target.Logs)
	if err != nil {
		return fmt.Errorf("failed to get current block number: %w", err)
	}

	cursor, err := m.startCursor(ctx, target, latest)
	if err != nil {
		return err
	}

	for {
		from, to, ok := chain.NextRange(cursor, latest, m.opts.BatchSize)
		if !ok {
			return nil
		}
		if err := m.processBatch(ctx, target, from, to); err != nil {
			if isAPIRateLimitError(err) {
				logger.Error("API rate limit hit while processing blocks %d-%d: %v", from, to, err)
			}
			return err
		}
		cursor = to
		m.advance(ctx, to)
	}
}

// startCursor 游标来源依次为 Redis, 数据库最大区块, 部署区块
func (m *EventMonitor) startCursor(ctx context.Context, target Target, latest uint64) (uint64, error) {
	m.mu.RLock()
	if m.loaded {
		c := m.lastBlock
		m.mu.RUnlock()
		return c, nil
	}
	m.mu.RUnlock()

	cursor, source, err := m.loadCursor(ctx, target.Contract.GetAddress().Hex(), latest)
	if err != nil {
		return 0, err
	}
	logger.Info("Monitor starting after block %d (source: %s)", cursor, source)

	m.mu.Lock()
	m.lastBlock = cursor
	m.loaded = true
	m.mu.Unlock()
	return cursor, nil
}

func (m *EventMonitor) loadCursor(ctx context.Context, address string, latest uint64) (uint64, string, error) {
	if m.cursor != nil {
		block, ok, err := m.cursor.Load(ctx)
		if err != nil {
			logger.Warn("Failed to load cursor from redis, falling back to database: %v", err)
		} else if ok {
			return block, "redis", nil
		}
	}

	block, ok, err := m.store.MaxBlock(ctx, address)
	if err != nil {
		return 0, "", err
	}
	if ok {
		return block, "database", nil
	}

	if m.opts.DeployBlock > 0 {
		return m.opts.DeployBlock - 1, "deploy_block", nil
	}
	logger.Warn("No deploy block configured, monitoring from current block %d", latest)
	return latest, "latest", nil
}

func (m *EventMonitor) advance(ctx context.Context, block uint64) {
	m.mu.Lock()
	m.lastBlock = block
	m.mu.Unlock()
	if m.cursor != nil {
		if err := m.cursor.Save(ctx, block); err != nil {
			logger.Warn("Failed to save monitor cursor: %v", err)
		}
	}
}

// processBatch 拉取并解析一批区块的日志, 按交易分组并发解析
func (m *EventMonitor) processBatch(ctx context.Context, target Target, from, to uint64) error {
	address := target.Contract.GetAddress()
	logs, err := m.block.GetBatchBlockLogs(ctx, target.Logs, []common.Address{address}, from, to)
	if err != nil {
		return fmt.Errorf("error getting logs for blocks %d-%d: %w", from, to, err)
	}
	if len(logs) == 0 {
		logger.Debug("No logs found for blocks %d-%d", from, to)
		return nil
	}
	logger.Debug("Found %d logs for blocks %d-%d", len(logs), from, to)

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		events = make([]model.EventModel, 0, len(logs))
	)
	for _, group := range groupLogsByTx(logs) {
		group := group
		wg.Add(1)
		if err := m.pool.Submit(func() {
			defer wg.Done()
			parsed := parseLogs(target.Contract, address.Hex(), group)
			mu.Lock()
			events = append(events, parsed...)
			mu.Unlock()
		}); err != nil {
			wg.Done()
			return fmt.Errorf("failed to submit task to pool: %w", err)
		}
	}
	wg.Wait()

	sort.Slice(events, func(i, j int) bool {
		if events[i].BlockNum != events[j].BlockNum {
			return events[i].BlockNum < events[j].BlockNum
		}
		return events[i].LogIndex < events[j].LogIndex
	})

	inserted, err := m.store.SaveBatch(ctx, events)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.stored += inserted
	m.mu.Unlock()
	logger.Info("Stored %d new events from blocks %d-%d", inserted, from, to)

	m.invalidate(events)
	return nil
}

func parseLogs(parser Parser, address string, logs []types.Log) []model.EventModel {
	out := make([]model.EventModel, 0, len(logs))
	for _, log := range logs {
		if log.Removed {
			continue
		}
		ev, ok, err := parser.ParseEvent(log)
		if !ok {
			continue
		}
		if err != nil {
			logger.Error("Error parsing event in tx %s: %v", log.TxHash.Hex(), err)
			continue
		}
		data, err := json.Marshal(ev.Fields)
		if err != nil {
			logger.Error("Failed to marshal event data to JSON: %v", err)
			continue
		}
		out = append(out, model.EventModel{
			ContractAddress: address,
			EventType:       ev.Name,
			CampaignId:      int64(ev.CampaignID),
			TxHash:          log.TxHash.Hex(),
			LogIndex:        int64(log.Index),
			BlockNum:        int64(log.BlockNumber),
			Data:            string(data),
		})
	}
	return out
}

// invalidate 每个涉及的项目只通知一次
func (m *EventMonitor) invalidate(events []model.EventModel) {
	seen := make(map[int64]bool)
	m.hookMu.RLock()
	hooks := append([]func(*uint64){}, m.hooks...)
	m.hookMu.RUnlock()
	for _, ev := range events {
		if seen[ev.CampaignId] {
			continue
		}
		seen[ev.CampaignId] = true
		id := uint64(ev.CampaignId)
		for _, fn := range hooks {
			fn(&id)
		}
	}
}

func groupLogsByTx(logs []types.Log) [][]types.Log {
	index := make(map[common.Hash]int)
	var groups [][]types.Log
	for _, log := range logs {
		i, ok := index[log.TxHash]
		if !ok {
			i = len(groups)
			index[log.TxHash] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], log)
	}
	return groups
}

func (m *EventMonitor) inBackoff() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.retryCount > 0 && time.Since(m.lastRetryTime) < m.backoffDuration
}

// handleError 指数退避
func (m *EventMonitor) handleError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retryCount++
	m.lastRetryTime = time.Now()
	if m.retryCount > 5 {
		m.backoffDuration = time.Minute * 5 // 最大退避时间5分钟
	} else {
		m.backoffDuration = time.Duration(m.retryCount) * time.Second * 10
	}
	logger.Error("Monitor encountered error (retry %d, backoff %s): %v", m.retryCount, m.backoffDuration, err)
}

func (m *EventMonitor) resetBackoff() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retryCount = 0
	m.backoffDuration = 0
}

// GetStatus 获取监控状态
func (m *EventMonitor) GetStatus() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]interface{}{
		"last_block":  m.lastBlock,
		"loaded":      m.loaded,
		"stored":      m.stored,
		"retry_count": m.retryCount,
		"pool": map[string]interface{}{
			"running": m.pool.Running(),
			"free":    m.pool.Free(),
			"cap":     m.pool.Cap(),
		},
	}
}

func isAPIRateLimitError(err error) bool {
	return strings.Contains(err.Error(), "Too Many Requests") || strings.Contains(err.Error(), "429")
}
