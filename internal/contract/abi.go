package contract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// CrowdfundingABI 众筹合约的内置ABI
const CrowdfundingABI = `[
	{"type":"function","name":"campaignCount","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getCampaign","stateMutability":"view",
		"inputs":[{"name":"_campaignId","type":"uint256"}],
		"outputs":[
			{"name":"creator","type":"address"},
			{"name":"title","type":"string"},
			{"name":"description","type":"string"},
			{"name":"image","type":"string"},
			{"name":"category","type":"uint8"},
			{"name":"goal","type":"uint256"},
			{"name":"amountCollected","type":"uint256"},
			{"name":"deadline","type":"uint256"},
			{"name":"createdAt","type":"uint256"},
			{"name":"state","type":"uint8"},
			{"name":"donorCount","type":"uint256"},
			{"name":"fundsWithdrawn","type":"bool"},
			{"name":"averageRating","type":"uint256"},
			{"name":"minDonation","type":"uint256"}
		]},
	{"type":"function","name":"getMilestoneCount","stateMutability":"view",
		"inputs":[{"name":"_campaignId","type":"uint256"}],
		"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getMilestone","stateMutability":"view",
		"inputs":[{"name":"_campaignId","type":"uint256"},{"name":"_index","type":"uint256"}],
		"outputs":[
			{"name":"description","type":"string"},
			{"name":"percentage","type":"uint256"},
			{"name":"targetDate","type":"uint256"},
			{"name":"completed","type":"bool"},
			{"name":"approved","type":"bool"},
			{"name":"votesFor","type":"uint256"},
			{"name":"votesAgainst","type":"uint256"}
		]},
	{"type":"function","name":"getRewardCount","stateMutability":"view",
		"inputs":[{"name":"_campaignId","type":"uint256"}],
		"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getReward","stateMutability":"view",
		"inputs":[{"name":"_campaignId","type":"uint256"},{"name":"_index","type":"uint256"}],
		"outputs":[
			{"name":"title","type":"string"},
			{"name":"description","type":"string"},
			{"name":"minAmount","type":"uint256"},
			{"name":"maxQuantity","type":"uint256"},
			{"name":"claimed","type":"uint256"}
		]},
	{"type":"function","name":"getDonationCount","stateMutability":"view",
		"inputs":[{"name":"_campaignId","type":"uint256"}],
		"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getDonationAt","stateMutability":"view",
		"inputs":[{"name":"_campaignId","type":"uint256"},{"name":"_index","type":"uint256"}],
		"outputs":[
			{"name":"donor","type":"address"},
			{"name":"amount","type":"uint256"},
			{"name":"timestamp","type":"uint256"}
		]},
	{"type":"function","name":"getDonation","stateMutability":"view",
		"inputs":[{"name":"_campaignId","type":"uint256"},{"name":"_donor","type":"address"}],
		"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getReviewCount","stateMutability":"view",
		"inputs":[{"name":"_campaignId","type":"uint256"}],
		"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getReviewAt","stateMutability":"view",
		"inputs":[{"name":"_campaignId","type":"uint256"},{"name":"_index","type":"uint256"}],
		"outputs":[
			{"name":"reviewer","type":"address"},
			{"name":"rating","type":"uint8"},
			{"name":"comment","type":"string"},
			{"name":"timestamp","type":"uint256"}
		]},
	{"type":"function","name":"hasVoted","stateMutability":"view",
		"inputs":[{"name":"_campaignId","type":"uint256"},{"name":"_milestoneIndex","type":"uint256"},{"name":"_voter","type":"address"}],
		"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"hasClaimedReward","stateMutability":"view",
		"inputs":[{"name":"_campaignId","type":"uint256"},{"name":"_rewardIndex","type":"uint256"},{"name":"_claimer","type":"address"}],
		"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"hasReviewed","stateMutability":"view",
		"inputs":[{"name":"_campaignId","type":"uint256"},{"name":"_reviewer","type":"address"}],
		"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"getPlatformStats","stateMutability":"view","inputs":[],
		"outputs":[
			{"name":"totalCampaigns","type":"uint256"},
			{"name":"totalRaised","type":"uint256"},
			{"name":"successfulCampaigns","type":"uint256"},
			{"name":"totalDonors","type":"uint256"}
		]},
	{"type":"function","name":"approvalThreshold","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"maxDonation","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},

	{"type":"function","name":"createCampaign","stateMutability":"nonpayable",
		"inputs":[
			{"name":"_title","type":"string"},
			{"name":"_description","type":"string"},
			{"name":"_image","type":"string"},
			{"name":"_category","type":"uint8"},
			{"name":"_goal","type":"uint256"},
			{"name":"_deadline","type":"uint256"},
			{"name":"_minDonation","type":"uint256"}
		],
		"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"donate","stateMutability":"payable","inputs":[{"name":"_campaignId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"refund","stateMutability":"nonpayable","inputs":[{"name":"_campaignId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[{"name":"_campaignId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"withdrawMilestone","stateMutability":"nonpayable",
		"inputs":[{"name":"_campaignId","type":"uint256"},{"name":"_milestoneIndex","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"voteMilestone","stateMutability":"nonpayable",
		"inputs":[{"name":"_campaignId","type":"uint256"},{"name":"_milestoneIndex","type":"uint256"},{"name":"_support","type":"bool"}],"outputs":[]},
	{"type":"function","name":"claimReward","stateMutability":"nonpayable",
		"inputs":[{"name":"_campaignId","type":"uint256"},{"name":"_rewardIndex","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"addMilestone","stateMutability":"nonpayable",
		"inputs":[
			{"name":"_campaignId","type":"uint256"},
			{"name":"_description","type":"string"},
			{"name":"_percentage","type":"uint256"},
			{"name":"_targetDate","type":"uint256"}
		],"outputs":[]},
	{"type":"function","name":"addReward","stateMutability":"nonpayable",
		"inputs":[
			{"name":"_campaignId","type":"uint256"},
			{"name":"_title","type":"string"},
			{"name":"_description","type":"string"},
			{"name":"_minAmount","type":"uint256"},
			{"name":"_maxQuantity","type":"uint256"}
		],"outputs":[]},
	{"type":"function","name":"addReview","stateMutability":"nonpayable",
		"inputs":[{"name":"_campaignId","type":"uint256"},{"name":"_rating","type":"uint8"},{"name":"_comment","type":"string"}],"outputs":[]},
	{"type":"function","name":"finalize","stateMutability":"nonpayable","inputs":[{"name":"_campaignId","type":"uint256"}],"outputs":[]},

	{"type":"event","name":"CampaignCreated","anonymous":false,"inputs":[
		{"name":"campaignId","type":"uint256","indexed":true},
		{"name":"creator","type":"address","indexed":true},
		{"name":"title","type":"string","indexed":false},
		{"name":"goal","type":"uint256","indexed":false},
		{"name":"deadline","type":"uint256","indexed":false}]},
	{"type":"event","name":"DonationMade","anonymous":false,"inputs":[
		{"name":"campaignId","type":"uint256","indexed":true},
		{"name":"donor","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"RefundIssued","anonymous":false,"inputs":[
		{"name":"campaignId","type":"uint256","indexed":true},
		{"name":"donor","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"FundsWithdrawn","anonymous":false,"inputs":[
		{"name":"campaignId","type":"uint256","indexed":true},
		{"name":"creator","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"MilestoneAdded","anonymous":false,"inputs":[
		{"name":"campaignId","type":"uint256","indexed":true},
		{"name":"milestoneIndex","type":"uint256","indexed":false},
		{"name":"percentage","type":"uint256","indexed":false}]},
	{"type":"event","name":"MilestoneVoted","anonymous":false,"inputs":[
		{"name":"campaignId","type":"uint256","indexed":true},
		{"name":"milestoneIndex","type":"uint256","indexed":true},
		{"name":"voter","type":"address","indexed":true},
		{"name":"support","type":"bool","indexed":false}]},
	{"type":"event","name":"MilestoneWithdrawn","anonymous":false,"inputs":[
		{"name":"campaignId","type":"uint256","indexed":true},
		{"name":"milestoneIndex","type":"uint256","indexed":true},
		{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"RewardAdded","anonymous":false,"inputs":[
		{"name":"campaignId","type":"uint256","indexed":true},
		{"name":"rewardIndex","type":"uint256","indexed":false},
		{"name":"minAmount","type":"uint256","indexed":false}]},
	{"type":"event","name":"RewardClaimed","anonymous":false,"inputs":[
		{"name":"campaignId","type":"uint256","indexed":true},
		{"name":"rewardIndex","type":"uint256","indexed":true},
		{"name":"claimer","type":"address","indexed":true}]},
	{"type":"event","name":"ReviewAdded","anonymous":false,"inputs":[
		{"name":"campaignId","type":"uint256","indexed":true},
		{"name":"reviewer","type":"address","indexed":true},
		{"name":"rating","type":"uint8","indexed":false}]},
	{"type":"event","name":"CampaignFinalized","anonymous":false,"inputs":[
		{"name":"campaignId","type":"uint256","indexed":true},
		{"name":"state","type":"uint8","indexed":false},
		{"name":"amountCollected","type":"uint256","indexed":false}]}
]`

// LoadABI 加载合约ABI, path为空时使用内置ABI
func LoadABI(path string) (abi.ABI, error) {
	if path == "" {
		return ParseABI([]byte(CrowdfundingABI))
	}

	abiData, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to load ABI from %s: %w", path, err)
	}
	return ParseABI(abiData)
}

// ParseABI 解析ABI, 支持完整编译输出或裸ABI数组
func ParseABI(data []byte) (abi.ABI, error) {
	var compiledOutput struct {
		ABI json.RawMessage `json:"abi"`
	}

	// 编译输出是对象, 裸ABI是数组, 对数组 Unmarshal 会报错
	if err := json.Unmarshal(data, &compiledOutput); err == nil && compiledOutput.ABI != nil {
		parsed, err := abi.JSON(bytes.NewReader(compiledOutput.ABI))
		if err != nil {
			return abi.ABI{}, fmt.Errorf("failed to parse ABI from compiled output: %w", err)
		}
		return parsed, nil
	}

	parsed, err := abi.JSON(bytes.NewReader(data))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse ABI: %w", err)
	}
	return parsed, nil
}
