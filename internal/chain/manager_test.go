package chain

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"

	"github.com/blues/fundchain/internal/apperr"
	"github.com/blues/fundchain/internal/config"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// fakeClient 只实现测试用到的方法, 其余方法调用会 panic
type fakeClient struct {
	Client
	chainID *atomic.Int64
	balance *big.Int
	closed  atomic.Bool
}

func (f *fakeClient) ChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(f.chainID.Load()), nil
}

func (f *fakeClient) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return f.balance, nil
}

func (f *fakeClient) BlockNumber(ctx context.Context) (uint64, error) {
	return 100, nil
}

func (f *fakeClient) Close() {
	f.closed.Store(true)
}

func testDialer(chainID *atomic.Int64, signer bool, dials *[]*fakeClient) Dialer {
	return func(ctx context.Context) (*Session, error) {
		c := &fakeClient{chainID: chainID, balance: big.NewInt(5e18)}
		*dials = append(*dials, c)
		if !signer {
			return NewSession(c, big.NewInt(chainID.Load()), nil, common.Address{}, nil), nil
		}
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		return NewSession(c, big.NewInt(chainID.Load()), key, crypto.PubkeyToAddress(key.PublicKey), nil), nil
	}
}

func TestManager_ConnectDisconnect(t *testing.T) {
	var chainID atomic.Int64
	chainID.Store(1)
	var dials []*fakeClient
	m := NewManagerWithDialer(config.ChainConfig{}, testDialer(&chainID, true, &dials))

	if _, err := m.Session(); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Session before connect = %v", err)
	}
	if _, err := m.Balance(context.Background()); !apperr.Is(err, apperr.KindConnectivity) {
		t.Fatalf("Balance before connect = %v", err)
	}

	var changes []*Session
	m.OnChange(func(s *Session) { changes = append(changes, s) })

	s1, err := m.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	s2, _ := m.Connect(context.Background())
	if s1 != s2 || len(dials) != 1 {
		t.Fatalf("second Connect should reuse session, dials = %d", len(dials))
	}

	balance, err := m.Balance(context.Background())
	if err != nil || balance.Cmp(big.NewInt(5e18)) != 0 {
		t.Fatalf("Balance = %v, %v", balance, err)
	}

	m.Disconnect()
	if !dials[0].closed.Load() {
		t.Error("client not closed on disconnect")
	}
	if _, err := m.Session(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Session after disconnect = %v", err)
	}
	if len(changes) != 2 || changes[0] != s1 || changes[1] != nil {
		t.Errorf("change notifications = %v", changes)
	}
}

func TestManager_CheckChainReloads(t *testing.T) {
	var chainID atomic.Int64
	chainID.Store(1)
	var dials []*fakeClient
	m := NewManagerWithDialer(config.ChainConfig{}, testDialer(&chainID, true, &dials))
	ctx := context.Background()

	if changed, err := m.CheckChain(ctx); changed || err != nil {
		t.Fatalf("CheckChain without session = %v, %v", changed, err)
	}

	old, err := m.Connect(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if changed, err := m.CheckChain(ctx); changed || err != nil {
		t.Fatalf("CheckChain on same chain = %v, %v", changed, err)
	}

	chainID.Store(5)
	changed, err := m.CheckChain(ctx)
	if !changed || err != nil {
		t.Fatalf("CheckChain after switch = %v, %v", changed, err)
	}
	fresh, err := m.Session()
	if err != nil {
		t.Fatal(err)
	}
	if fresh == old {
		t.Fatal("session must be rebuilt after chain change")
	}
	if fresh.ChainID().Int64() != 5 {
		t.Errorf("new session chain = %s", fresh.ChainID())
	}
	if !dials[0].closed.Load() {
		t.Error("old client must be closed")
	}
}

func TestManager_DialFailure(t *testing.T) {
	m := NewManagerWithDialer(config.ChainConfig{}, func(ctx context.Context) (*Session, error) {
		return nil, apperr.New(apperr.KindConnectivity, "connect", "refused")
	})
	if _, err := m.Connect(context.Background()); !apperr.Is(err, apperr.KindConnectivity) {
		t.Fatalf("Connect = %v", err)
	}
	if _, err := m.Session(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("failed dial must leave no session, got %v", err)
	}
}

func TestManager_ConnectDialsOutsideLock(t *testing.T) {
	var chainID atomic.Int64
	chainID.Store(1)
	var dials atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	m := NewManagerWithDialer(config.ChainConfig{}, func(ctx context.Context) (*Session, error) {
		if dials.Add(1) == 1 {
			close(entered)
		}
		<-release
		return NewSession(&fakeClient{chainID: &chainID}, big.NewInt(1), nil, common.Address{}, nil), nil
	})

	results := make(chan *Session, 2)
	for i := 0; i < 2; i++ {
		go func() {
			s, err := m.Connect(context.Background())
			if err != nil {
				t.Errorf("Connect: %v", err)
			}
			results <- s
		}()
	}
	<-entered

	// 拨号期间读取会话不被阻塞
	if _, err := m.Session(); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Session while dialing = %v", err)
	}
	if status := m.GetHealthStatus(context.Background()); status["client_status"] != "not_connected" {
		t.Errorf("health while dialing = %v", status)
	}

	close(release)
	a, b := <-results, <-results
	if a == nil || a != b {
		t.Fatalf("concurrent Connect returned %p and %p", a, b)
	}
	if n := dials.Load(); n != 1 {
		t.Errorf("dials = %d", n)
	}
	if s, err := m.Session(); err != nil || s != a {
		t.Errorf("installed session = %p, %v", s, err)
	}
}

func TestSession_ReadOnly(t *testing.T) {
	var chainID atomic.Int64
	chainID.Store(1)
	var dials []*fakeClient
	m := NewManagerWithDialer(config.ChainConfig{}, testDialer(&chainID, false, &dials))

	s, err := m.Connect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if s.CanSign() {
		t.Fatal("session without key must be read-only")
	}
	if _, err := s.TransactOpts(context.Background()); !apperr.Is(err, apperr.KindConnectivity) {
		t.Errorf("TransactOpts on read-only session = %v", err)
	}
	if b, err := m.Balance(context.Background()); err != nil || b.Sign() != 0 {
		t.Errorf("read-only balance = %v, %v", b, err)
	}
}

func TestSession_TransactOpts(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)
	s := NewSession(&fakeClient{}, big.NewInt(11155111), key, addr, nil)

	opts, err := s.TransactOpts(context.Background())
	if err != nil {
		t.Fatalf("TransactOpts: %v", err)
	}
	if opts.From != addr {
		t.Errorf("From = %s, want %s", opts.From.Hex(), addr.Hex())
	}
}

func TestNextRange(t *testing.T) {
	tests := []struct {
		cursor, latest, batch uint64
		from, to              uint64
		ok                    bool
	}{
		{100, 100, 500, 0, 0, false},
		{100, 90, 500, 0, 0, false},
		{100, 150, 500, 101, 150, true},
		{0, 2000, 500, 1, 500, true},
		{10, 11, 0, 11, 11, true},
	}
	for _, tt := range tests {
		from, to, ok := NextRange(tt.cursor, tt.latest, tt.batch)
		if from != tt.from || to != tt.to || ok != tt.ok {
			t.Errorf("NextRange(%d,%d,%d) = %d,%d,%v", tt.cursor, tt.latest, tt.batch, from, to, ok)
		}
	}
}
