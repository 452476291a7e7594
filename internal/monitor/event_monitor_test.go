package monitor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/blues/fundchain/internal/contract"
	"github.com/blues/fundchain/internal/model"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	contractAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	donorAddr    = common.HexToAddress("0x00000000000000000000000000000000000000d1")
)

type abiParser struct {
	abi abi.ABI
}

func (p abiParser) GetAddress() common.Address { return contractAddr }

func (p abiParser) ParseEvent(log types.Log) (contract.Event, bool, error) {
	return contract.ParseEvent(p.abi, log)
}

// fakeChain 按区块号保存日志
type fakeChain struct {
	latest  uint64
	logs    []types.Log
	queries [][2]uint64
	err     error
}

func (f *fakeChain) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	from, to := q.FromBlock.Uint64(), q.ToBlock.Uint64()
	f.queries = append(f.queries, [2]uint64{from, to})
	if f.err != nil {
		return nil, f.err
	}
	var out []types.Log
	for _, l := range f.logs {
		if l.BlockNumber >= from && l.BlockNumber <= to {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeChain) BlockNumber(ctx context.Context) (uint64, error) {
	return f.latest, nil
}

type fakeStore struct {
	mu     sync.Mutex
	events map[string]model.EventModel
	max    uint64
	hasMax bool
}

func (s *fakeStore) SaveBatch(ctx context.Context, events []model.EventModel) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.events == nil {
		s.events = map[string]model.EventModel{}
	}
	var inserted int64
	for _, ev := range events {
		key := fmt.Sprintf("%s:%d", ev.TxHash, ev.LogIndex)
		if _, ok := s.events[key]; ok {
			continue
		}
		s.events[key] = ev
		inserted++
	}
	return inserted, nil
}

func (s *fakeStore) MaxBlock(ctx context.Context, address string) (uint64, bool, error) {
	return s.max, s.hasMax, nil
}

type memCursor struct {
	block uint64
	ok    bool
	err   error
	saved []uint64
}

func (c *memCursor) Load(ctx context.Context) (uint64, bool, error) { return c.block, c.ok, c.err }

func (c *memCursor) Save(ctx context.Context, block uint64) error {
	c.saved = append(c.saved, block)
	c.block, c.ok = block, true
	return nil
}

func donationLog(t *testing.T, parsed abi.ABI, campaign int64, block uint64, tx string, index uint) types.Log {
	t.Helper()
	event := parsed.Events[contract.EventDonationMade]
	data, err := event.Inputs.NonIndexed().Pack(big.NewInt(1e18))
	if err != nil {
		t.Fatal(err)
	}
	return types.Log{
		Address:     contractAddr,
		Topics:      []common.Hash{event.ID, common.BigToHash(big.NewInt(campaign)), common.BytesToHash(donorAddr.Bytes())},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.HexToHash(tx),
		Index:       index,
	}
}

func newTestMonitor(t *testing.T, ch *fakeChain, store *fakeStore, opts Options) *EventMonitor {
	t.Helper()
	parsed, err := contract.LoadABI("")
	if err != nil {
		t.Fatal(err)
	}
	m, err := NewEventMonitor(func() (Target, error) {
		return Target{Logs: ch, Contract: abiParser{abi: parsed}}, nil
	}, store, opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(m.Stop)
	return m
}

func TestPollOnce_FromDeployBlock(t *testing.T) {
	parsed, _ := contract.LoadABI("")
	ch := &fakeChain{latest: 1250}
	ch.logs = []types.Log{
		donationLog(t, parsed, 1, 1001, "0x01", 0),
		donationLog(t, parsed, 1, 1001, "0x01", 1),
		donationLog(t, parsed, 2, 1600, "0x02", 0), // 超出最新区块
		{Address: contractAddr, Topics: []common.Hash{common.HexToHash("0xdead")}, BlockNumber: 1100},
	}
	store := &fakeStore{}
	cursor := &memCursor{}
	m := newTestMonitor(t, ch, store, Options{Cursor: cursor, DeployBlock: 1000, BatchSize: 100})

	var invalidated []uint64
	m.OnInvalidate(func(id *uint64) { invalidated = append(invalidated, *id) })

	if err := m.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if len(ch.queries) != 3 || ch.queries[0] != [2]uint64{1000, 1099} || ch.queries[2] != [2]uint64{1200, 1250} {
		t.Errorf("queries = %v", ch.queries)
	}
	if len(store.events) != 2 {
		t.Errorf("stored = %d events", len(store.events))
	}
	if len(invalidated) != 1 || invalidated[0] != 1 {
		t.Errorf("invalidated = %v", invalidated)
	}
	if cursor.block != 1250 || len(cursor.saved) != 3 {
		t.Errorf("cursor = %d, saves = %v", cursor.block, cursor.saved)
	}

	// 没有新区块时不再查询
	ch.queries = nil
	if err := m.PollOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(ch.queries) != 0 {
		t.Errorf("idle poll queried %v", ch.queries)
	}

	ch.latest = 1700
	if err := m.PollOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(store.events) != 3 || invalidated[len(invalidated)-1] != 2 {
		t.Errorf("after advance: stored %d, invalidated %v", len(store.events), invalidated)
	}
}

func TestPollOnce_CursorPrecedence(t *testing.T) {
	tests := []struct {
		name   string
		cursor *memCursor
		store  *fakeStore
		deploy uint64
		first  uint64
	}{
		{"redis", &memCursor{block: 500, ok: true}, &fakeStore{max: 300, hasMax: true}, 100, 501},
		{"redis error falls back to db", &memCursor{err: errors.New("down")}, &fakeStore{max: 300, hasMax: true}, 100, 301},
		{"database", nil, &fakeStore{max: 300, hasMax: true}, 100, 301},
		{"deploy block", nil, &fakeStore{}, 100, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := &fakeChain{latest: 900}
			opts := Options{DeployBlock: tt.deploy, BatchSize: 10000}
			if tt.cursor != nil {
				opts.Cursor = tt.cursor
			}
			m := newTestMonitor(t, ch, tt.store, opts)
			if err := m.PollOnce(context.Background()); err != nil {
				t.Fatal(err)
			}
			if len(ch.queries) != 1 || ch.queries[0][0] != tt.first {
				t.Errorf("queries = %v, want first block %d", ch.queries, tt.first)
			}
		})
	}
}

func TestPollOnce_ErrorKeepsCursor(t *testing.T) {
	ch := &fakeChain{latest: 200, err: errors.New("429 Too Many Requests")}
	cursor := &memCursor{block: 100, ok: true}
	m := newTestMonitor(t, ch, &fakeStore{}, Options{Cursor: cursor, BatchSize: 50})

	if err := m.PollOnce(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(cursor.saved) != 0 {
		t.Errorf("cursor advanced on failure: %v", cursor.saved)
	}
	m.handleError(errors.New("boom"))
	if !m.inBackoff() {
		t.Error("monitor should back off after an error")
	}
	m.resetBackoff()
	if m.inBackoff() {
		t.Error("backoff should clear")
	}
}

func TestPollOnce_NoSession(t *testing.T) {
	m, err := NewEventMonitor(func() (Target, error) { return Target{}, errors.New("not connected") }, &fakeStore{}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer m.Stop()
	if err := m.PollOnce(context.Background()); err != nil {
		t.Errorf("PollOnce without session = %v", err)
	}
}
