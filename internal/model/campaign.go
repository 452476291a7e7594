package model

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// CampaignState 众筹状态, 与合约枚举顺序一致
type CampaignState uint8

const (
	CampaignStateActive     CampaignState = iota // 进行中
	CampaignStateSuccessful                      // 成功
	CampaignStateFailed                          // 失败
	CampaignStateCompleted                       // 已完成
)

var campaignStateNames = []string{"active", "successful", "failed", "completed"}

func (s CampaignState) String() string {
	if int(s) < len(campaignStateNames) {
		return campaignStateNames[s]
	}
	return fmt.Sprintf("unknown(%d)", uint8(s))
}

// Valid 是否为已知状态
func (s CampaignState) Valid() bool {
	return int(s) < len(campaignStateNames)
}

// ParseCampaignState 解析状态字符串
func ParseCampaignState(s string) (CampaignState, error) {
	for i, name := range campaignStateNames {
		if strings.EqualFold(s, name) {
			return CampaignState(i), nil
		}
	}
	return 0, fmt.Errorf("unknown campaign state %q", s)
}

// Category 众筹分类
type Category uint8

const (
	CategoryTechnology Category = iota
	CategoryArt
	CategoryMusic
	CategoryFilm
	CategoryGames
	CategoryCharity
	CategoryEducation
	CategoryOther
)

var categoryNames = []string{"technology", "art", "music", "film", "games", "charity", "education", "other"}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return fmt.Sprintf("unknown(%d)", uint8(c))
}

// Valid 是否为已知分类
func (c Category) Valid() bool {
	return int(c) < len(categoryNames)
}

// ParseCategory 解析分类字符串
func ParseCategory(s string) (Category, error) {
	for i, name := range categoryNames {
		if strings.EqualFold(s, name) {
			return Category(i), nil
		}
	}
	return 0, fmt.Errorf("unknown category %q", s)
}

// Campaign 合约中众筹项目的只读镜像
type Campaign struct {
	ID          uint64
	Creator     common.Address
	Title       string
	Description string
	Image       string
	Category    Category

	// 金额均为最小单位(wei)
	Goal            *big.Int
	AmountCollected *big.Int
	MinDonation     *big.Int

	Deadline  time.Time
	CreatedAt time.Time
	State     CampaignState

	DonorCount     uint64
	FundsWithdrawn bool
	// AverageRating 乘以100后的平均评分, 例如 450 表示 4.50
	AverageRating uint64
}

// IsCreator 判断地址是否为创建者
func (c *Campaign) IsCreator(account common.Address) bool {
	return account != (common.Address{}) && c.Creator == account
}

// CampaignDetail 详情页所需的全部数据
type CampaignDetail struct {
	Campaign   Campaign
	Milestones []Milestone
	Rewards    []RewardTier
	Donations  []Donation
	Reviews    []Review
}
