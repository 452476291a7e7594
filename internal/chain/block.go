package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// LogReader 拉取日志所需的最小接口
type LogReader interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Block 区块操作工具类
type Block struct{}

// NewBlock 创建区块工具类实例
func NewBlock() *Block {
	return &Block{}
}

// GetBatchBlockLogs 获取 [fromBlock, toBlock] 内合约的日志
func (b *Block) GetBatchBlockLogs(ctx context.Context, client LogReader, contractAddresses []common.Address, fromBlock, toBlock uint64) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: contractAddresses,
	}

	return client.FilterLogs(ctx, query)
}

// GetCurrentBlockNumber 获取当前最新区块号
func (b *Block) GetCurrentBlockNumber(ctx context.Context, client LogReader) (uint64, error) {
	return client.BlockNumber(ctx)
}

// NextRange 从 cursor 之后取不超过 batch 个区块, 没有新区块时 ok=false
func NextRange(cursor, latest, batch uint64) (from, to uint64, ok bool) {
	if latest <= cursor {
		return 0, 0, false
	}
	from = cursor + 1
	to = latest
	if batch > 0 && to-from+1 > batch {
		to = from + batch - 1
	}
	return from, to, true
}
