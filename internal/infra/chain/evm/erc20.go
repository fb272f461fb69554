package evm

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABI = `[
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"_to","type":"address"},{"name":"_value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"_spender","type":"address"},{"name":"_value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

var erc20 abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		panic(fmt.Sprintf("parse erc20 abi: %v", err))
	}
	erc20 = parsed
}

// PackTransfer returns calldata for transfer(to, amount).
func PackTransfer(to string, amount *big.Int) ([]byte, error) {
	return erc20.Pack("transfer", common.HexToAddress(to), amount)
}

// PackApprove returns calldata for approve(spender, amount).
func PackApprove(spender string, amount *big.Int) ([]byte, error) {
	return erc20.Pack("approve", common.HexToAddress(spender), amount)
}

func packNoArgs(method string) []byte {
	data, _ := erc20.Pack(method)
	return data
}

// unpackText decodes a string return value. Some older tokens return
// bytes32 for name and symbol, so a raw 32-byte word is accepted too.
func unpackText(method string, data []byte) (string, error) {
	out, err := erc20.Unpack(method, data)
	if err == nil && len(out) == 1 {
		if s, ok := out[0].(string); ok {
			return s, nil
		}
	}
	if len(data) == 32 {
		return string(bytes.TrimRight(data, "\x00")), nil
	}
	if err == nil {
		err = fmt.Errorf("unexpected %s output", method)
	}
	return "", err
}

func unpackDecimals(data []byte) (int32, error) {
	out, err := erc20.Unpack("decimals", data)
	if err != nil {
		return 0, err
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected decimals output %T", out[0])
	}
	return int32(d), nil
}

// unpackBool decodes a transfer/approve return value. Tokens that return
// nothing are treated as success.
func unpackBool(method string, data []byte) (bool, error) {
	if len(data) == 0 {
		return true, nil
	}
	out, err := erc20.Unpack(method, data)
	if err != nil {
		return false, err
	}
	ok, _ := out[0].(bool)
	return ok, nil
}
