package contract

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/blues/fundchain/internal/logger"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// 监控关注的合约事件
const (
	EventCampaignCreated    = "CampaignCreated"
	EventDonationMade       = "DonationMade"
	EventRefundIssued       = "RefundIssued"
	EventFundsWithdrawn     = "FundsWithdrawn"
	EventMilestoneAdded     = "MilestoneAdded"
	EventMilestoneVoted     = "MilestoneVoted"
	EventMilestoneWithdrawn = "MilestoneWithdrawn"
	EventRewardAdded        = "RewardAdded"
	EventRewardClaimed      = "RewardClaimed"
	EventReviewAdded        = "ReviewAdded"
	EventCampaignFinalized  = "CampaignFinalized"
)

var knownEvents = map[string]bool{
	EventCampaignCreated: true, EventDonationMade: true, EventRefundIssued: true,
	EventFundsWithdrawn: true, EventMilestoneAdded: true, EventMilestoneVoted: true,
	EventMilestoneWithdrawn: true, EventRewardAdded: true, EventRewardClaimed: true,
	EventReviewAdded: true, EventCampaignFinalized: true,
}

// IsKnownEvent 是否为合约定义的事件名
func IsKnownEvent(name string) bool {
	return knownEvents[name]
}

// Event 解析后的合约事件, 字段值均已转为字符串
type Event struct {
	Name        string
	CampaignID  uint64
	TxHash      common.Hash
	BlockNumber uint64
	LogIndex    uint
	Fields      map[string]string
}

// ParseEvent 解析事件日志, 未知事件返回 ok=false
func (c *Crowdfunding) ParseEvent(log types.Log) (Event, bool, error) {
	return ParseEvent(c.abi, log)
}

// ParseEvent 按ABI解析事件日志
func ParseEvent(contractABI abi.ABI, log types.Log) (Event, bool, error) {
	if len(log.Topics) == 0 {
		return Event{}, false, nil
	}
	event, err := contractABI.EventByID(log.Topics[0])
	if err != nil {
		logger.Debug("Unknown event signature: %s", log.Topics[0].Hex())
		return Event{}, false, nil
	}

	ev := Event{
		Name:        event.Name,
		TxHash:      log.TxHash,
		BlockNumber: log.BlockNumber,
		LogIndex:    log.Index,
		Fields:      make(map[string]string, len(event.Inputs)),
	}

	// 索引参数
	topicIdx := 1
	for _, input := range event.Inputs {
		if !input.Indexed {
			continue
		}
		if topicIdx >= len(log.Topics) {
			return Event{}, true, fmt.Errorf("event %s: missing topic for %s", event.Name, input.Name)
		}
		ev.Fields[input.Name] = topicValue(log.Topics[topicIdx], input.Type)
		topicIdx++
	}

	// 非索引参数
	nonIndexed := event.Inputs.NonIndexed()
	if len(nonIndexed) > 0 {
		values, err := nonIndexed.Unpack(log.Data)
		if err != nil {
			return Event{}, true, fmt.Errorf("event %s: failed to unpack data: %w", event.Name, err)
		}
		for i, input := range nonIndexed {
			if i < len(values) {
				ev.Fields[input.Name] = formatValue(values[i])
			}
		}
	}

	if raw, ok := ev.Fields["campaignId"]; ok {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return Event{}, true, fmt.Errorf("event %s: invalid campaignId %q", event.Name, raw)
		}
		ev.CampaignID = id
	}

	return ev, true, nil
}

// topicValue 解析索引参数
func topicValue(topic common.Hash, t abi.Type) string {
	switch t.T {
	case abi.UintTy:
		return new(big.Int).SetBytes(topic.Bytes()).String()
	case abi.IntTy:
		v := new(big.Int).SetBytes(topic.Bytes())
		if topic[0]&0x80 != 0 {
			v.Sub(v, new(big.Int).Lsh(big.NewInt(1), 256))
		}
		return v.String()
	case abi.AddressTy:
		return common.BytesToAddress(topic.Bytes()).Hex()
	case abi.BoolTy:
		return strconv.FormatBool(topic.Big().Sign() > 0)
	default:
		// 动态类型只保留哈希
		return topic.Hex()
	}
}

func formatValue(v interface{}) string {
	switch x := v.(type) {
	case *big.Int:
		return x.String()
	case common.Address:
		return x.Hex()
	case bool:
		return strconv.FormatBool(x)
	case uint8:
		return strconv.FormatUint(uint64(x), 10)
	case string:
		return x
	case []byte:
		return hexutil.Encode(x)
	case common.Hash:
		return x.Hex()
	default:
		return fmt.Sprint(x)
	}
}
