package model

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Donation 捐赠记录, 上链后不可变
type Donation struct {
	CampaignID uint64
	Donor      common.Address
	Amount     *big.Int
	Timestamp  time.Time
}

// TotalDonatedBy 汇总某地址在同一项目中的累计捐赠
func TotalDonatedBy(donations []Donation, donor common.Address) *big.Int {
	total := new(big.Int)
	for _, d := range donations {
		if d.Donor == donor && d.Amount != nil {
			total.Add(total, d.Amount)
		}
	}
	return total
}

// Review 项目评价
type Review struct {
	CampaignID uint64
	Reviewer   common.Address
	Rating     uint8
	Comment    string
	Timestamp  time.Time
}

// PlatformStats 平台汇总统计
type PlatformStats struct {
	TotalCampaigns      uint64
	TotalRaised         *big.Int
	SuccessfulCampaigns uint64
	TotalDonors         uint64
}

// Thresholds 与合约共享的规则参数, 以合约返回值为准
type Thresholds struct {
	ApprovalPercent int64    // 里程碑通过所需百分比, 严格大于
	MaxDonation     *big.Int // 单笔捐赠上限
}
