package replay

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Operation names accepted in a script.
const (
	OpSetPrice  = "set_price"
	OpMint      = "mint"
	OpBurn      = "burn"
	OpDraw      = "draw"
	OpFulfill   = "fulfill"
	OpWithdraw  = "withdraw"
	OpReject    = "reject"
	OpSetPolicy = "set_policy"
)

// Op is one line of a replay script. Amounts and prices are human decimals.
type Op struct {
	Op      string `json:"op"`
	Account string `json:"account,omitempty"`
	Caller  string `json:"caller,omitempty"`
	Amount  string `json:"amount,omitempty"`
	Feed    string `json:"feed,omitempty"`
	Value   string `json:"value,omitempty"`
	Request string `json:"request,omitempty"`
	Word    string `json:"word,omitempty"`
	Reject  bool   `json:"reject,omitempty"`
	Policy  string `json:"policy,omitempty"`
}

// ParseOps reads a JSONL script. Blank lines and lines starting with # are skipped.
func ParseOps(r io.Reader) ([]Op, error) {
	var ops []Op
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var op Op
		if err := json.Unmarshal([]byte(text), &op); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		switch op.Op {
		case OpSetPrice, OpMint, OpBurn, OpDraw, OpFulfill, OpWithdraw, OpReject, OpSetPolicy:
		default:
			return nil, fmt.Errorf("line %d: unknown op %q", line, op.Op)
		}
		ops = append(ops, op)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan ops: %w", err)
	}
	return ops, nil
}
