package contract

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

type rpcDataError struct {
	msg  string
	data interface{}
}

func (e *rpcDataError) Error() string          { return e.msg }
func (e *rpcDataError) ErrorData() interface{} { return e.data }

// encodeRevert 按 Error(string) 编码回滚数据
func encodeRevert(t *testing.T, reason string) []byte {
	t.Helper()
	stringType, err := abi.NewType("string", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	packed, err := abi.Arguments{{Type: stringType}}.Pack(reason)
	if err != nil {
		t.Fatal(err)
	}
	selector := crypto.Keccak256([]byte("Error(string)"))[:4]
	return append(selector, packed...)
}

func TestRevertReason(t *testing.T) {
	data := encodeRevert(t, "Not a donor")

	tests := []struct {
		name   string
		err    error
		want   string
		wantOK bool
	}{
		{"rpc data hex", &rpcDataError{msg: "execution reverted", data: hexutil.Encode(data)}, "Not a donor", true},
		{"rpc data wrapped", fmt.Errorf("estimate gas: %w", &rpcDataError{msg: "execution reverted", data: hexutil.Encode(data)}), "Not a donor", true},
		{"message only", errors.New("execution reverted: Campaign is not active"), "Campaign is not active", true},
		{"bare revert", errors.New("execution reverted"), "execution reverted", true},
		{"garbage data falls back to message", &rpcDataError{msg: "execution reverted: Already voted", data: "0xzz"}, "Already voted", true},
		{"not a revert", errors.New("connection refused"), "", false},
		{"nil", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := RevertReason(tt.err)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("RevertReason = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
