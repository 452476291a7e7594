package contract

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/blues/fundchain/internal/apperr"
	"github.com/blues/fundchain/internal/model"
	"github.com/blues/fundchain/internal/units"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var (
	testAddress = common.HexToAddress("0x0000000000000000000000000000000000001234")
	testCreator = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	testDonor   = common.HexToAddress("0x00000000000000000000000000000000000000d1")
)

// fakeCaller 按方法名返回预设结果, 未注册的方法视为回滚
type fakeCaller struct {
	abi      abi.ABI
	handlers map[string]func(args []interface{}) ([]interface{}, error)
	calls    []string
}

func (f *fakeCaller) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeCaller) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if len(call.Data) < 4 {
		return nil, errors.New("short calldata")
	}
	method, err := f.abi.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}
	f.calls = append(f.calls, method.Name)
	args, err := method.Inputs.Unpack(call.Data[4:])
	if err != nil {
		return nil, err
	}
	h, ok := f.handlers[method.Name]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	out, err := h(args)
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(out...)
}

func mustABI(t *testing.T) abi.ABI {
	t.Helper()
	parsed, err := LoadABI("")
	if err != nil {
		t.Fatalf("LoadABI: %v", err)
	}
	return parsed
}

func newTestContract(t *testing.T, handlers map[string]func([]interface{}) ([]interface{}, error)) (*Crowdfunding, *fakeCaller) {
	t.Helper()
	parsed := mustABI(t)
	caller := &fakeCaller{abi: parsed, handlers: handlers}
	return newCrowdfunding(testAddress, parsed, caller, nil, nil, nil), caller
}

func campaignTuple(state uint8) []interface{} {
	return []interface{}{
		testCreator,
		"Solar kit",
		"Panels for the school",
		"ipfs://image",
		uint8(model.CategoryTechnology),
		units.Ether(10),
		units.Ether(5),
		big.NewInt(2_000_000_000),
		big.NewInt(1_700_000_000),
		state,
		big.NewInt(3),
		false,
		big.NewInt(450),
		big.NewInt(1e15),
	}
}

func TestParseABI(t *testing.T) {
	parsed := mustABI(t)
	for _, name := range []string{"getCampaign", "donate", "finalize", "voteMilestone"} {
		if _, ok := parsed.Methods[name]; !ok {
			t.Errorf("embedded ABI missing method %s", name)
		}
	}
	if _, ok := parsed.Events[EventDonationMade]; !ok {
		t.Error("embedded ABI missing DonationMade event")
	}

	bare := `[{"type":"function","name":"campaignCount","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}]`
	compiled := `{"contractName":"Crowdfunding","abi":` + bare + `}`
	for name, data := range map[string]string{"bare": bare, "compiled": compiled} {
		got, err := ParseABI([]byte(data))
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if _, ok := got.Methods["campaignCount"]; !ok {
			t.Errorf("%s: campaignCount not parsed", name)
		}
	}

	if _, err := ParseABI([]byte("not json")); err == nil {
		t.Error("expected error for invalid ABI")
	}
}

func TestGetCampaign(t *testing.T) {
	c, _ := newTestContract(t, map[string]func([]interface{}) ([]interface{}, error){
		"getCampaign": func(args []interface{}) ([]interface{}, error) {
			if id := args[0].(*big.Int); id.Uint64() != 7 {
				return nil, fmt.Errorf("unexpected id %s", id)
			}
			return campaignTuple(uint8(model.CampaignStateActive)), nil
		},
	})

	got, err := c.GetCampaign(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetCampaign: %v", err)
	}
	if got.ID != 7 || got.Creator != testCreator || got.Title != "Solar kit" {
		t.Errorf("unexpected campaign identity: %+v", got)
	}
	if got.Goal.Cmp(units.Ether(10)) != 0 || got.AmountCollected.Cmp(units.Ether(5)) != 0 {
		t.Errorf("amounts = %s/%s", got.AmountCollected, got.Goal)
	}
	if got.State != model.CampaignStateActive || got.DonorCount != 3 || got.AverageRating != 450 {
		t.Errorf("unexpected state fields: %+v", got)
	}
	if got.Deadline.Unix() != 2_000_000_000 {
		t.Errorf("deadline = %v", got.Deadline)
	}
	if got.MinDonation.Int64() != 1e15 {
		t.Errorf("min donation = %s", got.MinDonation)
	}
}

func TestGetCampaign_UnknownStateIsDecodeError(t *testing.T) {
	c, _ := newTestContract(t, map[string]func([]interface{}) ([]interface{}, error){
		"getCampaign": func([]interface{}) ([]interface{}, error) {
			return campaignTuple(9), nil
		},
	})

	_, err := c.GetCampaign(context.Background(), 1)
	if !apperr.Is(err, apperr.KindReadFailure) {
		t.Fatalf("expected read failure, got %v", err)
	}
	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("expected DecodeError in chain, got %v", err)
	}
	if decErr.Field != "state" {
		t.Errorf("field = %q, want state", decErr.Field)
	}
}

func TestDecodeCampaign_Strict(t *testing.T) {
	tests := []struct {
		name  string
		vals  []interface{}
		field string
	}{
		{"short", campaignTuple(0)[:13], ""},
		{"wrong type", func() []interface{} {
			v := campaignTuple(0)
			v[5] = "10"
			return v
		}(), "goal"},
		{"nil amount", func() []interface{} {
			v := campaignTuple(0)
			v[6] = (*big.Int)(nil)
			return v
		}(), "amountCollected"},
		{"donor count overflow", func() []interface{} {
			v := campaignTuple(0)
			v[10] = new(big.Int).Lsh(big.NewInt(1), 70)
			return v
		}(), "donorCount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeCampaign(1, tt.vals)
			var decErr *DecodeError
			if !errors.As(err, &decErr) {
				t.Fatalf("expected DecodeError, got %v", err)
			}
			if decErr.Field != tt.field {
				t.Errorf("field = %q, want %q", decErr.Field, tt.field)
			}
		})
	}
}

func TestGetMilestones(t *testing.T) {
	c, caller := newTestContract(t, map[string]func([]interface{}) ([]interface{}, error){
		"getMilestoneCount": func([]interface{}) ([]interface{}, error) {
			return []interface{}{big.NewInt(2)}, nil
		},
		"getMilestone": func(args []interface{}) ([]interface{}, error) {
			idx := args[1].(*big.Int).Int64()
			return []interface{}{
				fmt.Sprintf("phase %d", idx),
				big.NewInt(50),
				big.NewInt(1_800_000_000),
				false,
				idx == 1,
				big.NewInt(52 * idx),
				big.NewInt(48 * idx),
			}, nil
		},
	})

	got, err := c.GetMilestones(context.Background(), 3)
	if err != nil {
		t.Fatalf("GetMilestones: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[1].Index != 1 || got[1].VotesFor != 52 || !got[1].Approved || got[1].CampaignID != 3 {
		t.Errorf("milestone 1 = %+v", got[1])
	}
	if got[0].Description != "phase 0" || got[0].Approved {
		t.Errorf("milestone 0 = %+v", got[0])
	}
	if len(caller.calls) != 3 {
		t.Errorf("calls = %v", caller.calls)
	}
}

func TestGetMilestones_PercentageOutOfRange(t *testing.T) {
	c, _ := newTestContract(t, map[string]func([]interface{}) ([]interface{}, error){
		"getMilestoneCount": func([]interface{}) ([]interface{}, error) {
			return []interface{}{big.NewInt(1)}, nil
		},
		"getMilestone": func([]interface{}) ([]interface{}, error) {
			return []interface{}{"x", big.NewInt(150), big.NewInt(0), false, false, big.NewInt(0), big.NewInt(0)}, nil
		},
	})
	if _, err := c.GetMilestones(context.Background(), 1); !apperr.Is(err, apperr.KindReadFailure) {
		t.Fatalf("expected read failure, got %v", err)
	}
}

func TestDonationsAndFlags(t *testing.T) {
	c, _ := newTestContract(t, map[string]func([]interface{}) ([]interface{}, error){
		"getDonationCount": func([]interface{}) ([]interface{}, error) {
			return []interface{}{big.NewInt(1)}, nil
		},
		"getDonationAt": func([]interface{}) ([]interface{}, error) {
			return []interface{}{testDonor, units.Ether(2), big.NewInt(1_750_000_000)}, nil
		},
		"getDonation": func(args []interface{}) ([]interface{}, error) {
			if args[1].(common.Address) == testDonor {
				return []interface{}{units.Ether(2)}, nil
			}
			return []interface{}{big.NewInt(0)}, nil
		},
		"hasVoted": func([]interface{}) ([]interface{}, error) {
			return []interface{}{true}, nil
		},
	})
	ctx := context.Background()

	donations, err := c.GetDonations(ctx, 1)
	if err != nil || len(donations) != 1 || donations[0].Donor != testDonor {
		t.Fatalf("GetDonations = %+v, %v", donations, err)
	}
	amount, err := c.DonationOf(ctx, 1, testDonor)
	if err != nil || amount.Cmp(units.Ether(2)) != 0 {
		t.Fatalf("DonationOf = %v, %v", amount, err)
	}
	voted, err := c.HasVoted(ctx, 1, 1, testDonor)
	if err != nil || !voted {
		t.Fatalf("HasVoted = %v, %v", voted, err)
	}
	if _, err := c.HasReviewed(ctx, 1, testDonor); !apperr.Is(err, apperr.KindReadFailure) {
		t.Errorf("missing method should be a read failure, got %v", err)
	}
}

func TestThresholds(t *testing.T) {
	ctx := context.Background()
	fixed := func(v *big.Int) func([]interface{}) ([]interface{}, error) {
		return func([]interface{}) ([]interface{}, error) { return []interface{}{v}, nil }
	}
	failing := func([]interface{}) ([]interface{}, error) { return nil, errors.New("connection reset by peer") }

	tests := []struct {
		name        string
		handlers    map[string]func([]interface{}) ([]interface{}, error)
		dropMethod  string
		wantPercent int64
		wantMax     *big.Int
		wantErr     bool
	}{
		{"empty revert falls back", nil, "", 51, units.Ether(100), false},
		{"contract values", map[string]func([]interface{}) ([]interface{}, error){
			"approvalThreshold": fixed(big.NewInt(60)),
			"maxDonation":       fixed(units.Ether(50)),
		}, "", 60, units.Ether(50), false},
		{"unusable percent keeps default", map[string]func([]interface{}) ([]interface{}, error){
			"approvalThreshold": fixed(big.NewInt(100)),
			"maxDonation":       fixed(units.Ether(50)),
		}, "", 51, units.Ether(50), false},
		{"method missing from ABI", map[string]func([]interface{}) ([]interface{}, error){
			"maxDonation": fixed(units.Ether(5)),
		}, "approvalThreshold", 51, units.Ether(5), false},
		{"transient failure surfaces", map[string]func([]interface{}) ([]interface{}, error){
			"approvalThreshold": fixed(big.NewInt(60)),
			"maxDonation":       failing,
		}, "", 0, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed := mustABI(t)
			caller := &fakeCaller{abi: parsed, handlers: tt.handlers}
			if tt.dropMethod != "" {
				delete(parsed.Methods, tt.dropMethod)
			}
			c := newCrowdfunding(testAddress, parsed, caller, nil, nil, nil)

			thr, err := c.Thresholds(ctx)
			if tt.wantErr {
				if !apperr.Is(err, apperr.KindReadFailure) {
					t.Fatalf("err = %v, want read failure", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Thresholds: %v", err)
			}
			if thr.ApprovalPercent != tt.wantPercent || thr.MaxDonation.Cmp(tt.wantMax) != 0 {
				t.Errorf("thresholds = %d%% / %s", thr.ApprovalPercent, thr.MaxDonation)
			}
		})
	}
}

func TestPlatformStats(t *testing.T) {
	c, _ := newTestContract(t, map[string]func([]interface{}) ([]interface{}, error){
		"getPlatformStats": func([]interface{}) ([]interface{}, error) {
			return []interface{}{big.NewInt(4), units.Ether(30), big.NewInt(2), big.NewInt(9)}, nil
		},
	})
	stats, err := c.PlatformStats(context.Background())
	if err != nil {
		t.Fatalf("PlatformStats: %v", err)
	}
	if stats.TotalCampaigns != 4 || stats.SuccessfulCampaigns != 2 || stats.TotalDonors != 9 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.TotalRaised.Cmp(units.Ether(30)) != 0 {
		t.Errorf("total raised = %s", stats.TotalRaised)
	}
}

func TestWritesWithoutSigner(t *testing.T) {
	c, _ := newTestContract(t, nil)
	if _, err := c.Donate(nil, 1, units.Ether(1)); !apperr.Is(err, apperr.KindConnectivity) {
		t.Errorf("Donate without signer: %v", err)
	}
	if _, err := c.Refund(nil, 1); !apperr.Is(err, apperr.KindConnectivity) {
		t.Errorf("Refund without signer: %v", err)
	}
}

func TestClassifySubmit(t *testing.T) {
	if err := classifySubmit("donate", errors.New("execution reverted: Campaign ended")); !apperr.Is(err, apperr.KindReverted) || apperr.ReasonOf(err) != "Campaign ended" {
		t.Errorf("revert: %v", err)
	}
	if err := classifySubmit("donate", errors.New("insufficient funds for gas * price + value")); !apperr.Is(err, apperr.KindRejected) {
		t.Errorf("rejection: %v", err)
	}
	if err := classifySubmit("donate", fmt.Errorf("send: %w", context.DeadlineExceeded)); !apperr.Is(err, apperr.KindTimeout) {
		t.Errorf("timeout: %v", err)
	}
}

func TestDecodeErrorMessage(t *testing.T) {
	err := &DecodeError{Method: "getReward", Field: "minAmount", Want: "*big.Int", Got: "string"}
	if !strings.Contains(err.Error(), "getReward.minAmount") {
		t.Errorf("message = %q", err.Error())
	}
}
