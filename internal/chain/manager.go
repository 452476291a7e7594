package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/blues/fundchain/internal/apperr"
	"github.com/blues/fundchain/internal/config"
	"github.com/blues/fundchain/internal/contract"
	"github.com/blues/fundchain/internal/logger"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/sync/singleflight"
)

// ErrNotConnected 当前没有会话
var ErrNotConnected = apperr.New(apperr.KindConnectivity, "session", "wallet not connected")

// Dialer 建立一个新会话
type Dialer func(ctx context.Context) (*Session, error)

// Manager 持有当前会话, 负责连接, 断开与链切换后的重建
type Manager struct {
	mu         sync.RWMutex
	config     config.ChainConfig
	dial       Dialer
	session    *Session
	listeners  []func(*Session)
	connecting singleflight.Group
}

// NewManager 创建会话管理器, 此时不连接
func NewManager(cfg config.ChainConfig) (*Manager, error) {
	parsedABI, err := contract.LoadABI(cfg.ABIPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load contract ABI: %w", err)
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}
	return NewManagerWithDialer(cfg, func(ctx context.Context) (*Session, error) {
		return dialSession(ctx, cfg, parsedABI)
	}), nil
}

// NewManagerWithDialer 使用自定义 Dialer 创建管理器
func NewManagerWithDialer(cfg config.ChainConfig, dial Dialer) *Manager {
	return &Manager{config: cfg, dial: dial}
}

// dialSession 连接节点, 校验链ID并加载签名私钥
func dialSession(ctx context.Context, cfg config.ChainConfig, parsedABI abi.ABI) (*Session, error) {
	if cfg.RpcUrl == "" {
		return nil, apperr.New(apperr.KindConnectivity, "connect", "no RPC URL configured")
	}

	logger.Info("Creating chain client connection (RPC: %s)", cfg.RpcUrl)
	client, err := ethclient.DialContext(ctx, cfg.RpcUrl)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConnectivity, "connect", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, apperr.Wrap(apperr.KindConnectivity, "connect", fmt.Errorf("failed to get chain id: %w", err))
	}
	if cfg.ChainId != 0 && chainID.Cmp(big.NewInt(cfg.ChainId)) != 0 {
		client.Close()
		return nil, apperr.New(apperr.KindConnectivity, "connect",
			fmt.Sprintf("connected to chain %s, expected %d", chainID, cfg.ChainId))
	}

	var account common.Address
	key, err := parsePrivateKey(cfg.PrivateKey)
	if err != nil {
		client.Close()
		return nil, apperr.Wrap(apperr.KindConnectivity, "connect", err)
	}
	if key != nil {
		account = crypto.PubkeyToAddress(key.PublicKey)
	} else {
		logger.Warn("No private key configured, session is read-only")
	}

	cf := contract.NewCrowdfunding(common.HexToAddress(cfg.ContractAddress), parsedABI, client)
	logger.Info("Connected to chain %s as %s, contract %s", chainID, account.Hex(), cf.GetAddress().Hex())
	return NewSession(client, chainID, key, account, cf), nil
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimSpace(hexKey)
	if hexKey == "" {
		return nil, nil
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return key, nil
}

// OnChange 注册会话变化回调, 断开时参数为 nil
func (m *Manager) OnChange(fn func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *Manager) notify(s *Session) {
	m.mu.RLock()
	listeners := append([]func(*Session){}, m.listeners...)
	m.mu.RUnlock()
	for _, fn := range listeners {
		fn(s)
	}
}

// Connect 建立会话, 已连接时返回现有会话. 拨号在锁外进行, 并发调用只拨号一次
func (m *Manager) Connect(ctx context.Context) (*Session, error) {
	if s, err := m.Session(); err == nil {
		return s, nil
	}
	v, err, _ := m.connecting.Do("connect", func() (interface{}, error) {
		if s, err := m.Session(); err == nil {
			return s, nil
		}
		s, err := m.dial(ctx)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		if existing := m.session; existing != nil {
			m.mu.Unlock()
			s.Close()
			return existing, nil
		}
		m.session = s
		m.mu.Unlock()

		m.notify(s)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// Disconnect 关闭并丢弃当前会话
func (m *Manager) Disconnect() {
	m.mu.Lock()
	s := m.session
	m.session = nil
	m.mu.Unlock()

	if s == nil {
		return
	}
	s.Close()
	logger.Info("Session for %s disconnected", s.Account().Hex())
	m.notify(nil)
}

// Session 当前会话, 未连接时返回 ErrNotConnected
func (m *Manager) Session() (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return nil, ErrNotConnected
	}
	return m.session, nil
}

// Balance 当前账户余额
func (m *Manager) Balance(ctx context.Context) (*big.Int, error) {
	s, err := m.Session()
	if err != nil {
		return nil, err
	}
	if !s.CanSign() {
		return new(big.Int), nil
	}
	balance, err := s.client.BalanceAt(ctx, s.account, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindReadFailure, "balance", err)
	}
	return balance, nil
}

// CheckChain 检查节点链ID, 变化时整体重建会话
func (m *Manager) CheckChain(ctx context.Context) (bool, error) {
	m.mu.RLock()
	s := m.session
	m.mu.RUnlock()
	if s == nil {
		return false, nil
	}

	current, err := s.client.ChainID(ctx)
	if err != nil {
		return false, apperr.Wrap(apperr.KindConnectivity, "check_chain", err)
	}
	if current.Cmp(s.chainID) == 0 {
		return false, nil
	}

	logger.Warn("Chain changed from %s to %s, reloading session", s.chainID, current)

	m.mu.Lock()
	if m.session == s {
		m.session = nil
	}
	m.mu.Unlock()
	s.Close()
	m.notify(nil)

	if _, err := m.Connect(ctx); err != nil {
		return true, err
	}
	return true, nil
}

// GetConfig 获取链配置
func (m *Manager) GetConfig() config.ChainConfig {
	return m.config
}

// GetHealthStatus 获取健康状态
func (m *Manager) GetHealthStatus(ctx context.Context) map[string]interface{} {
	health := map[string]interface{}{
		"client_status": "not_connected",
	}

	s, err := m.Session()
	if err != nil {
		return health
	}

	health["client_status"] = "connected"
	health["chain_id"] = s.chainID.String()
	health["account"] = s.account.Hex()
	health["read_only"] = !s.CanSign()
	if s.contract != nil {
		health["contract"] = s.contract.GetAddress().Hex()
	}
	if block, err := s.client.BlockNumber(ctx); err != nil {
		health["client_status"] = "disconnected"
	} else {
		health["block_number"] = block
	}
	return health
}

// Close 关闭管理器
func (m *Manager) Close() error {
	m.Disconnect()
	logger.Info("Chain manager closed")
	return nil
}
