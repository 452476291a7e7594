package chain

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"time"

	"github.com/blues/fundchain/internal/apperr"
	"github.com/blues/fundchain/internal/contract"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// Client 会话所需的链客户端, *ethclient.Client 满足
type Client interface {
	contract.Backend
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	Close()
}

// Session 一次钱包连接: 客户端, 链ID, 签名账户和合约句柄.
// 链切换或断开后整体丢弃, 不复用任何字段.
type Session struct {
	client      Client
	chainID     *big.Int
	key         *ecdsa.PrivateKey
	account     common.Address
	contract    *contract.Crowdfunding
	connectedAt time.Time
}

// NewSession 创建会话, key 为 nil 时为只读会话
func NewSession(client Client, chainID *big.Int, key *ecdsa.PrivateKey, account common.Address, cf *contract.Crowdfunding) *Session {
	return &Session{
		client:      client,
		chainID:     new(big.Int).Set(chainID),
		key:         key,
		account:     account,
		contract:    cf,
		connectedAt: time.Now(),
	}
}

// Account 当前账户, 只读会话为零地址
func (s *Session) Account() common.Address {
	return s.account
}

// ChainID 会话建立时的链ID
func (s *Session) ChainID() *big.Int {
	return new(big.Int).Set(s.chainID)
}

// Contract 合约句柄
func (s *Session) Contract() *contract.Crowdfunding {
	return s.contract
}

// Client 链客户端
func (s *Session) Client() Client {
	return s.client
}

// ConnectedAt 连接时间
func (s *Session) ConnectedAt() time.Time {
	return s.connectedAt
}

// CanSign 是否持有签名私钥
func (s *Session) CanSign() bool {
	return s.key != nil
}

// TransactOpts 为一次交易生成签名参数
func (s *Session) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if s.key == nil {
		return nil, apperr.New(apperr.KindConnectivity, "session", "session is read-only, no signer configured")
	}
	opts, err := bind.NewKeyedTransactorWithChainID(s.key, s.chainID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "session", err)
	}
	opts.Context = ctx
	return opts, nil
}

// Close 关闭底层连接
func (s *Session) Close() {
	if s.client != nil {
		s.client.Close()
	}
}
