package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/blues/fundchain/internal/action"
	"github.com/blues/fundchain/internal/apperr"
	"github.com/blues/fundchain/internal/chain"
	"github.com/blues/fundchain/internal/config"
	"github.com/blues/fundchain/internal/contract"
	"github.com/blues/fundchain/internal/handler"
	"github.com/blues/fundchain/internal/logger"
	"github.com/blues/fundchain/internal/logic"
	"github.com/blues/fundchain/internal/monitor"
	"github.com/blues/fundchain/internal/repository"
	"github.com/blues/fundchain/internal/router"
	"github.com/blues/fundchain/internal/task"
	"github.com/blues/fundchain/internal/units"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := logger.Setup(cfg.Log); err != nil {
		log.Fatalf("Failed to setup logger: %v", err)
	}
	defer logger.Sync()

	if cfg.Limits.ApprovalThreshold > 0 {
		contract.DefaultApprovalPercent = cfg.Limits.ApprovalThreshold
	}
	advisory, err := units.ParseAmount(cfg.Limits.AdvisoryMaxDonation)
	if err != nil {
		logger.Fatal("Invalid limits.advisory_max_donation %q: %v", cfg.Limits.AdvisoryMaxDonation, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化数据库, 未启用时不记录动作与事件
	var (
		records    action.RecordStore
		eventStore logic.EventStore
		eventRepo  *repository.EventRepository
	)
	if cfg.Database.Enabled {
		db, err := repository.Init(cfg.Database)
		if err != nil {
			logger.Fatal("Failed to initialize database: %v", err)
		}
		defer repository.Close(db)
		records = repository.NewActionRecordRepository(db)
		eventRepo = repository.NewEventRepository(db)
		eventStore = eventRepo
	}

	// 初始化 Redis, 用于跨副本的动作锁与监控游标
	var rdb *redis.Client
	var locker action.Locker
	if cfg.Redis.Enabled() {
		rdb, err = repository.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to initialize redis: %v", err)
		}
		defer rdb.Close()
		locker = action.NewRedisLocker(rdb, "")
	}

	// 会话管理器
	manager, err := chain.NewManager(cfg.Chain)
	if err != nil {
		logger.Fatal("Failed to initialize chain manager: %v", err)
	}
	defer manager.Close()

	campaigns, err := logic.NewCampaignLogic(func() (logic.Reader, error) {
		s, err := manager.Session()
		if err != nil {
			return nil, err
		}
		cf := s.Contract()
		if cf == nil {
			return nil, apperr.New(apperr.KindConnectivity, "session", "no contract handle")
		}
		return cf, nil
	}, 16, advisory)
	if err != nil {
		logger.Fatal("Failed to initialize campaign logic: %v", err)
	}
	defer campaigns.Release()

	versions := logic.NewVersions()
	actions := action.NewService(action.FromManager(manager), action.Options{
		Locker:      locker,
		Records:     records,
		AdvisoryMax: advisory,
		TxTimeout:   cfg.Chain.TxTimeoutDuration(),
	})
	actions.OnInvalidate(versions.Invalidate)

	// 事件监控需要数据库
	var eventMonitor *monitor.EventMonitor
	if cfg.Monitor.Enabled {
		if eventRepo == nil {
			logger.Warn("monitor.enabled requires database.enabled, event monitor disabled")
		} else {
			var cursor monitor.Cursor
			if rdb != nil {
				cursor = monitor.NewRedisCursor(rdb, common.HexToAddress(cfg.Chain.ContractAddress).Hex())
			}
			eventMonitor, err = monitor.NewEventMonitor(monitor.FromManager(manager), eventRepo, monitor.Options{
				Cursor:      cursor,
				DeployBlock: uint64(max(cfg.Chain.DeployBlock, 0)),
				BatchSize:   uint64(max(cfg.Monitor.BatchSize, 0)),
				Interval:    time.Duration(cfg.Monitor.Interval) * time.Second,
			})
			if err != nil {
				logger.Fatal("Failed to initialize event monitor: %v", err)
			}
			eventMonitor.OnInvalidate(versions.Invalidate)
		}
	}

	// 会话变化时动作状态回到 idle, 监控从游标重新加载
	manager.OnChange(func(s *chain.Session) {
		actions.Reset()
		if eventMonitor != nil {
			eventMonitor.Reset()
		}
		versions.Invalidate(nil)
	})

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if _, err := manager.Connect(connectCtx); err != nil {
		logger.Warn("Initial chain connection failed, use POST /api/v1/session/connect to retry: %v", err)
	}
	cancel()

	if eventMonitor != nil {
		eventMonitor.Start()
		defer eventMonitor.Stop()
	}

	// 启动定时任务
	jobs := []task.Job{task.NewChainWatchJob(manager, time.Duration(cfg.Chain.WatchInterval)*time.Second)}
	if cfg.Task.AutoFinalize {
		jobs = append(jobs, task.NewFinalizeJob(campaigns, actions, time.Duration(cfg.Task.Interval)*time.Second, cfg.Chain.TxTimeoutDuration()))
	}
	taskManager, err := task.NewManager(jobs...)
	if err != nil {
		logger.Fatal("Failed to create task manager: %v", err)
	}
	taskManager.Start()
	defer taskManager.Stop()

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 初始化路由
	deps := router.Deps{
		Sessions: handler.NewSessionHandler(manager),
		Campaigns: handler.NewCampaignHandler(campaigns, versions, func() common.Address {
			s, err := manager.Session()
			if err != nil {
				return common.Address{}
			}
			return s.Account()
		}),
		Actions: handler.NewActionHandler(actions),
		Events:  handler.NewEventHandler(logic.NewEventLogic(eventStore)),
		Chain:   manager,
	}
	if eventMonitor != nil {
		deps.Monitor = eventMonitor
	}
	r := router.Setup(deps)

	// 启动服务器
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed: %v", err)
	}
}
