// Package journal reads JSONL command journals and replays them through the
// engine service. One line is one command:
//
//	{"op":"create","ref":"rain","account":"0xc0ffee","question":"Will it rain?"}
//	{"op":"add_liquidity","market":"rain","account":"0xc0ffee","amount":"1000"}
//	{"op":"buy","market":"rain","account":"0xa11ce","side":"YES","amount":"100"}
//
// Collateral amounts are human decimals in the collateral's precision. Share
// amounts (redeem, min_out) are human decimals with 18 decimals.
package journal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Op names a journal command.
type Op string

const (
	OpFaucet       Op = "faucet"
	OpCreate       Op = "create"
	OpAddLiquidity Op = "add_liquidity"
	OpBuy          Op = "buy"
	OpQuote        Op = "quote"
	OpRedeem       Op = "redeem"
	OpResolve      Op = "resolve"
	OpClaim        Op = "claim"
)

var knownOps = map[Op]bool{
	OpFaucet: true, OpCreate: true, OpAddLiquidity: true, OpBuy: true,
	OpQuote: true, OpRedeem: true, OpResolve: true, OpClaim: true,
}

// Command is one decoded journal line.
type Command struct {
	ID   string `json:"id,omitempty"`
	Line int    `json:"-"`
	Op   Op     `json:"op"`

	// Market is a market address or the ref of an earlier create.
	Market  string `json:"market,omitempty"`
	Account string `json:"account,omitempty"`
	Side    string `json:"side,omitempty"`
	Amount  string `json:"amount,omitempty"`
	MinOut  string `json:"min_out,omitempty"`
	Outcome string `json:"outcome,omitempty"`
	// Attest resolves through a signed attestation from the configured
	// resolver key instead of Account.
	Attest bool `json:"attest,omitempty"`

	Ref         string     `json:"ref,omitempty"`
	Question    string     `json:"question,omitempty"`
	Description string     `json:"description,omitempty"`
	Category    string     `json:"category,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	ImageURL    string     `json:"image_url,omitempty"`
	MetadataURI string     `json:"metadata_uri,omitempty"`
	FeeBps      *uint16    `json:"fee_bps,omitempty"`
	Curve       string     `json:"curve,omitempty"`
}

// Validate checks the fields every op needs.
func (c Command) Validate() error {
	if !knownOps[c.Op] {
		return fmt.Errorf("unknown op %q", c.Op)
	}
	if c.Op != OpQuote && !(c.Op == OpResolve && c.Attest) {
		if !common.IsHexAddress(c.Account) {
			return fmt.Errorf("%s: account %q is not an address", c.Op, c.Account)
		}
	}
	switch c.Op {
	case OpCreate:
		if strings.TrimSpace(c.Question) == "" {
			return fmt.Errorf("create: question is required")
		}
	case OpFaucet:
		if c.Amount == "" {
			return fmt.Errorf("faucet: amount is required")
		}
	default:
		if c.Market == "" {
			return fmt.Errorf("%s: market is required", c.Op)
		}
	}
	switch c.Op {
	case OpAddLiquidity, OpRedeem:
		if c.Amount == "" {
			return fmt.Errorf("%s: amount is required", c.Op)
		}
	case OpBuy, OpQuote:
		if c.Amount == "" || c.Side == "" {
			return fmt.Errorf("%s: side and amount are required", c.Op)
		}
	case OpResolve:
		if c.Outcome == "" {
			return fmt.Errorf("resolve: outcome is required")
		}
	}
	return nil
}

// Read decodes a JSONL journal. Blank lines and lines starting with # are
// skipped. Commands without an id get a random one.
func Read(r io.Reader) ([]Command, error) {
	var cmds []Command
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 || raw[0] == '#' {
			continue
		}
		var c Command
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&c); err != nil {
			return nil, fmt.Errorf("journal: line %d: %w", line, err)
		}
		c.Op = Op(strings.ToLower(string(c.Op)))
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("journal: line %d: %w", line, err)
		}
		c.Line = line
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		cmds = append(cmds, c)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("journal: read: %w", err)
	}
	return cmds, nil
}

// Result is the outcome of one command.
type Result struct {
	ID        string `json:"id"`
	Line      int    `json:"line"`
	Op        Op     `json:"op"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`

	Market    string `json:"market,omitempty"`
	Sequence  uint64 `json:"sequence,omitempty"`
	SharesOut string `json:"shares_out,omitempty"`
	Fee       string `json:"fee,omitempty"`
	Payout    string `json:"payout,omitempty"`
	PriceYes  uint64 `json:"price_yes,omitempty"`
	PriceNo   uint64 `json:"price_no,omitempty"`
}

// WriteResults writes results as JSONL.
func WriteResults(w io.Writer, results []Result) error {
	enc := json.NewEncoder(w)
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("journal: write results: %w", err)
		}
	}
	return nil
}
