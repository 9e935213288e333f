package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// call is a single decoded request handed to a method.
type call struct {
	ctx    context.Context
	req    *RPCRequest
	caller common.Address
}

func (c *call) arity(min, max int) error {
	n := len(c.req.Params)
	if n < min || n > max {
		if min == max {
			return invalidParams(fmt.Sprintf("expected %d parameters, got %d", min, n), nil)
		}
		return invalidParams(fmt.Sprintf("expected %d to %d parameters, got %d", min, max, n), nil)
	}
	return nil
}

func (c *call) has(i int) bool {
	return i < len(c.req.Params)
}

// text returns parameter i as a string. Bare JSON numbers are accepted and
// kept verbatim so large integers do not lose precision.
func (c *call) text(i int, name string) (string, error) {
	if !c.has(i) {
		return "", invalidParams(fmt.Sprintf("%s is required", name), nil)
	}
	raw := bytes.TrimSpace(c.req.Params[i])
	if len(raw) > 0 && raw[0] == '"' {
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			return "", invalidParams(fmt.Sprintf("invalid %s", name), err.Error())
		}
		return strings.TrimSpace(value), nil
	}
	var number json.Number
	if err := json.Unmarshal(raw, &number); err != nil {
		return "", invalidParams(fmt.Sprintf("invalid %s", name), err.Error())
	}
	return number.String(), nil
}

func (c *call) amount(i int) (*big.Int, error) {
	raw, err := c.text(i, "amount")
	if err != nil {
		return nil, err
	}
	value, err := parseAmount(raw)
	if err != nil {
		return nil, invalidParams(err.Error(), nil)
	}
	return value, nil
}

func (c *call) address(i int, name string) (common.Address, error) {
	raw, err := c.text(i, name)
	if err != nil {
		return common.Address{}, err
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, invalidParams(fmt.Sprintf("invalid %s", name), raw)
	}
	return common.HexToAddress(raw), nil
}

func (c *call) unix(i int, name string) (int64, error) {
	raw, err := c.text(i, name)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < 0 {
		return 0, invalidParams(fmt.Sprintf("invalid %s", name), raw)
	}
	return value, nil
}

func (c *call) uint(i int, name string) (uint64, error) {
	raw, err := c.text(i, name)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, invalidParams(fmt.Sprintf("invalid %s", name), raw)
	}
	return value, nil
}

func (c *call) role(i int) (string, error) {
	raw, err := c.text(i, "role")
	if err != nil {
		return "", err
	}
	if raw == "" {
		return "", invalidParams("role is required", nil)
	}
	return raw, nil
}

// parseAmount accepts base-10 or 0x-prefixed hex amounts that fit in 256
// bits. Zero is passed through so the ledger reports it as a rejection.
func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount is required")
	}
	var (
		value *uint256.Int
		err   error
	)
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		value, err = uint256.FromHex(trimmed)
	} else {
		value, err = uint256.FromDecimal(trimmed)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %v", trimmed, err)
	}
	return value.ToBig(), nil
}
