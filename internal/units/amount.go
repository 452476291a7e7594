// Package units 在最小单位整数与展示用的十进制字符串之间转换.
// 比较与校验一律使用整数, 只有展示时才转换.
package units

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// Decimals 原生币精度
	Decimals = 18
	// DisplayDecimals 展示时保留的小数位
	DisplayDecimals = 4
)

// OneEther 1 ETH 对应的 wei
var OneEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// Ether 把整数个 ETH 转成 wei
func Ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), OneEther)
}

// ToDecimal wei 转为以 ETH 计的 decimal
func ToDecimal(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -Decimals)
}

// FormatAmount 四舍五入保留4位小数, 去掉末尾的0
func FormatAmount(wei *big.Int) string {
	return ToDecimal(wei).Round(DisplayDecimals).String()
}

// FormatAmountFull 保留全部18位精度, 去掉末尾的0
func FormatAmountFull(wei *big.Int) string {
	return ToDecimal(wei).String()
}

// ParseAmount 把十进制 ETH 字符串解析为 wei, 最多18位小数, 不接受负数和指数
func ParseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	intStr, fracStr, ok := splitPlain(s)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}

	d, err := decimal.NewFromString(intStr + "." + fracStr)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.Exponent() < -Decimals {
		return nil, fmt.Errorf("amount %q has more than %d decimals", s, Decimals)
	}
	shifted := d.Shift(Decimals)
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("amount %q has more than %d decimals", s, Decimals)
	}
	return shifted.BigInt(), nil
}

// ParseWei 解析十进制 wei 字符串
func ParseWei(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if !isDigits(s) {
		return nil, fmt.Errorf("invalid wei amount %q", s)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid wei amount %q", s)
	}
	return v, nil
}

// splitPlain 只允许数字和至多一个小数点, 缺省的整数或小数部分补0
func splitPlain(s string) (string, string, bool) {
	intStr, fracStr, _ := strings.Cut(s, ".")
	if intStr == "" && fracStr == "" {
		return "", "", false
	}
	if intStr == "" {
		intStr = "0"
	}
	if fracStr == "" {
		fracStr = "0"
	}
	return intStr, fracStr, isDigits(intStr) && isDigits(fracStr)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
