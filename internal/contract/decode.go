package contract

import (
	"fmt"
	"math/big"
	"time"

	"github.com/blues/fundchain/internal/model"
	"github.com/ethereum/go-ethereum/common"
)

// DecodeError 合约返回值与预期结构不符
type DecodeError struct {
	Method string
	Field  string
	Want   string
	Got    string
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("decode %s: want %s, got %s", e.Method, e.Want, e.Got)
	}
	return fmt.Sprintf("decode %s.%s: want %s, got %s", e.Method, e.Field, e.Want, e.Got)
}

// decoder 按顺序读取返回值, 记录第一个错误
type decoder struct {
	method string
	vals   []interface{}
	pos    int
	err    error
}

func newDecoder(method string, vals []interface{}, arity int) *decoder {
	d := &decoder{method: method, vals: vals}
	if len(vals) != arity {
		d.err = &DecodeError{
			Method: method,
			Want:   fmt.Sprintf("%d values", arity),
			Got:    fmt.Sprintf("%d values", len(vals)),
		}
	}
	return d
}

func (d *decoder) next(field string) (interface{}, bool) {
	if d.err != nil {
		return nil, false
	}
	if d.pos >= len(d.vals) {
		d.err = &DecodeError{Method: d.method, Field: field, Want: "value", Got: "end of output"}
		return nil, false
	}
	v := d.vals[d.pos]
	d.pos++
	return v, true
}

func (d *decoder) fail(field, want string, got interface{}) {
	d.err = &DecodeError{Method: d.method, Field: field, Want: want, Got: fmt.Sprintf("%T", got)}
}

// bigInt uint256 -> *big.Int, 拒绝 nil 与负数
func (d *decoder) bigInt(field string) *big.Int {
	v, ok := d.next(field)
	if !ok {
		return new(big.Int)
	}
	b, ok := v.(*big.Int)
	if !ok || b == nil {
		d.fail(field, "*big.Int", v)
		return new(big.Int)
	}
	if b.Sign() < 0 {
		d.err = &DecodeError{Method: d.method, Field: field, Want: "non-negative integer", Got: b.String()}
		return new(big.Int)
	}
	return new(big.Int).Set(b)
}

// u64 uint256 -> uint64, 溢出视为解码错误
func (d *decoder) u64(field string) uint64 {
	b := d.bigInt(field)
	if d.err != nil {
		return 0
	}
	if !b.IsUint64() {
		d.err = &DecodeError{Method: d.method, Field: field, Want: "uint64", Got: b.String()}
		return 0
	}
	return b.Uint64()
}

func (d *decoder) timestamp(field string) time.Time {
	secs := d.u64(field)
	if d.err != nil || secs > 1<<62 {
		return time.Time{}
	}
	return time.Unix(int64(secs), 0).UTC()
}

func (d *decoder) u8(field string) uint8 {
	v, ok := d.next(field)
	if !ok {
		return 0
	}
	u, ok := v.(uint8)
	if !ok {
		d.fail(field, "uint8", v)
	}
	return u
}

func (d *decoder) flag(field string) bool {
	v, ok := d.next(field)
	if !ok {
		return false
	}
	b, ok := v.(bool)
	if !ok {
		d.fail(field, "bool", v)
	}
	return b
}

func (d *decoder) text(field string) string {
	v, ok := d.next(field)
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		d.fail(field, "string", v)
	}
	return s
}

func (d *decoder) address(field string) common.Address {
	v, ok := d.next(field)
	if !ok {
		return common.Address{}
	}
	a, ok := v.(common.Address)
	if !ok {
		d.fail(field, "address", v)
	}
	return a
}

func decodeCampaign(id uint64, vals []interface{}) (model.Campaign, error) {
	d := newDecoder("getCampaign", vals, 14)
	c := model.Campaign{
		ID:              id,
		Creator:         d.address("creator"),
		Title:           d.text("title"),
		Description:     d.text("description"),
		Image:           d.text("image"),
		Category:        model.Category(d.u8("category")),
		Goal:            d.bigInt("goal"),
		AmountCollected: d.bigInt("amountCollected"),
		Deadline:        d.timestamp("deadline"),
		CreatedAt:       d.timestamp("createdAt"),
		State:           model.CampaignState(d.u8("state")),
		DonorCount:      d.u64("donorCount"),
		FundsWithdrawn:  d.flag("fundsWithdrawn"),
		AverageRating:   d.u64("averageRating"),
		MinDonation:     d.bigInt("minDonation"),
	}
	if d.err != nil {
		return model.Campaign{}, d.err
	}
	if !c.State.Valid() {
		return model.Campaign{}, &DecodeError{Method: "getCampaign", Field: "state", Want: "state 0-3", Got: fmt.Sprint(uint8(c.State))}
	}
	if !c.Category.Valid() {
		return model.Campaign{}, &DecodeError{Method: "getCampaign", Field: "category", Want: "category 0-7", Got: fmt.Sprint(uint8(c.Category))}
	}
	return c, nil
}

func decodeMilestone(campaignID, index uint64, vals []interface{}) (model.Milestone, error) {
	d := newDecoder("getMilestone", vals, 7)
	m := model.Milestone{
		CampaignID:   campaignID,
		Index:        index,
		Description:  d.text("description"),
		Percentage:   d.u64("percentage"),
		TargetDate:   d.timestamp("targetDate"),
		Completed:    d.flag("completed"),
		Approved:     d.flag("approved"),
		VotesFor:     d.u64("votesFor"),
		VotesAgainst: d.u64("votesAgainst"),
	}
	if d.err != nil {
		return model.Milestone{}, d.err
	}
	if m.Percentage > 100 {
		return model.Milestone{}, &DecodeError{Method: "getMilestone", Field: "percentage", Want: "0-100", Got: fmt.Sprint(m.Percentage)}
	}
	return m, nil
}

func decodeReward(campaignID, index uint64, vals []interface{}) (model.RewardTier, error) {
	d := newDecoder("getReward", vals, 5)
	r := model.RewardTier{
		CampaignID:  campaignID,
		Index:       index,
		Title:       d.text("title"),
		Description: d.text("description"),
		MinAmount:   d.bigInt("minAmount"),
		MaxQuantity: d.u64("maxQuantity"),
		Claimed:     d.u64("claimed"),
	}
	if d.err != nil {
		return model.RewardTier{}, d.err
	}
	return r, nil
}

func decodeDonation(campaignID uint64, vals []interface{}) (model.Donation, error) {
	d := newDecoder("getDonationAt", vals, 3)
	don := model.Donation{
		CampaignID: campaignID,
		Donor:      d.address("donor"),
		Amount:     d.bigInt("amount"),
		Timestamp:  d.timestamp("timestamp"),
	}
	if d.err != nil {
		return model.Donation{}, d.err
	}
	return don, nil
}

func decodeReview(campaignID uint64, vals []interface{}) (model.Review, error) {
	d := newDecoder("getReviewAt", vals, 4)
	r := model.Review{
		CampaignID: campaignID,
		Reviewer:   d.address("reviewer"),
		Rating:     d.u8("rating"),
		Comment:    d.text("comment"),
		Timestamp:  d.timestamp("timestamp"),
	}
	if d.err != nil {
		return model.Review{}, d.err
	}
	return r, nil
}

func decodeStats(vals []interface{}) (model.PlatformStats, error) {
	d := newDecoder("getPlatformStats", vals, 4)
	s := model.PlatformStats{
		TotalCampaigns:      d.u64("totalCampaigns"),
		TotalRaised:         d.bigInt("totalRaised"),
		SuccessfulCampaigns: d.u64("successfulCampaigns"),
		TotalDonors:         d.u64("totalDonors"),
	}
	if d.err != nil {
		return model.PlatformStats{}, d.err
	}
	return s, nil
}

func decodeBigInt(method string, vals []interface{}) (*big.Int, error) {
	d := newDecoder(method, vals, 1)
	v := d.bigInt("")
	return v, d.err
}

func decodeUint64(method string, vals []interface{}) (uint64, error) {
	d := newDecoder(method, vals, 1)
	v := d.u64("")
	return v, d.err
}

func decodeBool(method string, vals []interface{}) (bool, error) {
	d := newDecoder(method, vals, 1)
	v := d.flag("")
	return v, d.err
}
