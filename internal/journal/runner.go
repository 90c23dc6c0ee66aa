package journal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/predictamm/internal/amm"
	"github.com/alanyoungcy/predictamm/internal/crypto"
	"github.com/alanyoungcy/predictamm/internal/domain"
	"github.com/alanyoungcy/predictamm/internal/fixedpoint"
	"github.com/alanyoungcy/predictamm/internal/metadata"
	"github.com/alanyoungcy/predictamm/internal/service"
)

// Engine is the subset of *service.EngineService the runner drives.
type Engine interface {
	Faucet(ctx context.Context, to common.Address, amount *uint256.Int) error
	CreateMarket(ctx context.Context, req service.CreateRequest) (domain.MarketSnapshot, error)
	AddLiquidity(ctx context.Context, marketID, provider common.Address, amount *uint256.Int) (domain.MarketEvent, error)
	Buy(ctx context.Context, req service.BuyRequest) (domain.MarketEvent, error)
	QuoteBuy(ctx context.Context, marketID common.Address, side domain.Side, collateralIn *uint256.Int) (amm.BuyQuote, error)
	Redeem(ctx context.Context, marketID, account common.Address, amount *uint256.Int) (domain.MarketEvent, error)
	Resolve(ctx context.Context, marketID, caller common.Address, outcomeIsYes bool) (domain.MarketEvent, error)
	ResolveAttested(ctx context.Context, att crypto.Attestation) (domain.MarketEvent, error)
	Claim(ctx context.Context, marketID, account common.Address) (domain.MarketEvent, error)
	Price(ctx context.Context, marketID common.Address) (domain.PriceQuote, error)
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Engine Engine
	// Decimals is the collateral precision used to parse amounts.
	Decimals uint8
	// Parallel bounds how many command groups replay at once. Values below 2 replay
	// the journal strictly in file order.
	Parallel int
	// Signer signs resolve commands with attest set.
	Signer  *crypto.Signer
	ChainID int64
	Logger  *slog.Logger
}

// Runner replays commands. With Parallel > 1 it runs every create first, in
// file order. The remaining commands are split into groups that share no
// market and no account; each group replays in file order and groups replay
// concurrently, so collateral an account wins in one market and spends in
// another is seen in the same order as a sequential replay.
type Runner struct {
	cfg    RunnerConfig
	logger *slog.Logger

	mu   sync.RWMutex
	refs map[string]common.Address
}

// NewRunner creates a Runner.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runner{
		cfg:    cfg,
		logger: cfg.Logger.With(slog.String("component", "journal")),
		refs:   make(map[string]common.Address),
	}
}

// Markets returns the markets created by the replay keyed by ref. Creates
// without a ref are keyed by their command id.
func (r *Runner) Markets() map[string]common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]common.Address, len(r.refs))
	for k, v := range r.refs {
		out[k] = v
	}
	return out
}

// Run replays cmds and returns one result per command ordered by line. A
// rejected command is reported in its result and does not stop the replay;
// Run itself fails only on context cancellation.
func (r *Runner) Run(ctx context.Context, cmds []Command) ([]Result, error) {
	results := make([]Result, len(cmds))

	if r.cfg.Parallel < 2 {
		for i, c := range cmds {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("journal: run: %w", err)
			}
			results[i] = r.execute(ctx, c)
		}
		r.logSummary(ctx, results)
		return results, nil
	}

	var rest []int
	for i, c := range cmds {
		if c.Op != OpCreate {
			rest = append(rest, i)
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("journal: run: %w", err)
		}
		results[i] = r.execute(ctx, c)
	}
	groups := r.partition(cmds, rest)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Parallel)
	for _, idx := range groups {
		g.Go(func() error {
			for _, i := range idx {
				if err := gctx.Err(); err != nil {
					return err
				}
				results[i] = r.execute(gctx, cmds[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("journal: run: %w", err)
	}
	r.logSummary(ctx, results)
	return results, nil
}

func (r *Runner) groupKey(market string) string {
	if id, err := r.resolveMarket(market); err == nil {
		return strings.ToLower(id.Hex())
	}
	return "unresolved:" + market
}

// partition splits idx into groups of commands linked, directly or through
// other commands, by a shared market or account. Groups and their members
// keep file order.
func (r *Runner) partition(cmds []Command, idx []int) [][]int {
	parent := make(map[string]string)
	var find func(string) string
	find = func(k string) string {
		p, ok := parent[k]
		if !ok {
			parent[k] = k
			return k
		}
		if p == k {
			return k
		}
		root := find(p)
		parent[k] = root
		return root
	}

	first := make([]string, len(idx))
	for n, i := range idx {
		c := cmds[i]
		var keys []string
		if c.Market != "" {
			keys = append(keys, "market:"+r.groupKey(c.Market))
		}
		if c.Account != "" {
			keys = append(keys, "account:"+strings.ToLower(common.HexToAddress(c.Account).Hex()))
		}
		if len(keys) == 0 {
			keys = append(keys, fmt.Sprintf("cmd:%d", i))
		}
		root := find(keys[0])
		for _, k := range keys[1:] {
			if other := find(k); other != root {
				parent[other] = root
			}
		}
		first[n] = keys[0]
	}

	slot := make(map[string]int)
	var groups [][]int
	for n, i := range idx {
		root := find(first[n])
		g, ok := slot[root]
		if !ok {
			g = len(groups)
			slot[root] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}
	return groups
}

func (r *Runner) logSummary(ctx context.Context, results []Result) {
	failed := 0
	for _, res := range results {
		if !res.OK {
			failed++
		}
	}
	r.logger.InfoContext(ctx, "journal: replay complete",
		slog.Int("commands", len(results)),
		slog.Int("rejected", failed),
	)
}

func (r *Runner) execute(ctx context.Context, c Command) Result {
	res := Result{ID: c.ID, Line: c.Line, Op: c.Op, Market: c.Market}
	if err := r.dispatch(ctx, c, &res); err != nil {
		res.OK = false
		res.Error = err.Error()
		res.ErrorKind = domain.ErrorKind(err)
		r.logger.DebugContext(ctx, "journal: command rejected",
			slog.Int("line", c.Line),
			slog.String("op", string(c.Op)),
			slog.String("error", err.Error()),
		)
		return res
	}
	res.OK = true
	return res
}

func (r *Runner) dispatch(ctx context.Context, c Command, res *Result) error {
	eng := r.cfg.Engine
	account := common.HexToAddress(c.Account)

	switch c.Op {
	case OpFaucet:
		amount, err := fixedpoint.ParseUnits(c.Amount, r.cfg.Decimals)
		if err != nil {
			return err
		}
		return eng.Faucet(ctx, account, amount)

	case OpCreate:
		req := service.CreateRequest{
			Creator:     account,
			Question:    c.Question,
			Description: c.Description,
			ImageURL:    c.ImageURL,
			MetadataURI: c.MetadataURI,
			ChainID:     r.cfg.ChainID,
			FeeBps:      c.FeeBps,
			Curve:       c.Curve,
		}
		if c.Category != "" {
			cat, err := metadata.ParseCategory(c.Category)
			if err != nil {
				return fmt.Errorf("%w: %v", domain.ErrInvalidQuestion, err)
			}
			req.Category = cat
		}
		if c.EndDate != nil {
			req.EndDate = *c.EndDate
		}
		snap, err := eng.CreateMarket(ctx, req)
		if err != nil {
			return err
		}
		ref := c.Ref
		if ref == "" {
			ref = c.ID
		}
		r.mu.Lock()
		r.refs[ref] = snap.ID
		r.mu.Unlock()
		res.Market = snap.ID.Hex()
		res.Sequence = snap.LastSequence
		res.PriceYes, res.PriceNo = snap.PriceYesCents, snap.PriceNoCents
		return nil
	}

	marketID, err := r.resolveMarket(c.Market)
	if err != nil {
		return err
	}
	res.Market = marketID.Hex()

	var ev domain.MarketEvent
	switch c.Op {
	case OpAddLiquidity:
		amount, err := fixedpoint.ParseUnits(c.Amount, r.cfg.Decimals)
		if err != nil {
			return err
		}
		ev, err = eng.AddLiquidity(ctx, marketID, account, amount)
		if err != nil {
			return err
		}

	case OpBuy:
		side, err := domain.ParseSide(c.Side)
		if err != nil {
			return err
		}
		amount, err := fixedpoint.ParseUnits(c.Amount, r.cfg.Decimals)
		if err != nil {
			return err
		}
		minOut := new(uint256.Int)
		if c.MinOut != "" {
			if minOut, err = fixedpoint.ParseUnits(c.MinOut, fixedpoint.InternalDecimals); err != nil {
				return err
			}
		}
		ev, err = eng.Buy(ctx, service.BuyRequest{
			Market:       marketID,
			Trader:       account,
			Side:         side,
			CollateralIn: amount,
			MinSharesOut: minOut,
		})
		if err != nil {
			return err
		}
		res.SharesOut = fixedpoint.Format(ev.Trade.SharesOut, fixedpoint.InternalDecimals)
		res.Fee = fixedpoint.Format(ev.Trade.Fee, r.cfg.Decimals)

	case OpQuote:
		side, err := domain.ParseSide(c.Side)
		if err != nil {
			return err
		}
		amount, err := fixedpoint.ParseUnits(c.Amount, r.cfg.Decimals)
		if err != nil {
			return err
		}
		q, err := eng.QuoteBuy(ctx, marketID, side, amount)
		if err != nil {
			return err
		}
		res.SharesOut = fixedpoint.Format(q.SharesOut, fixedpoint.InternalDecimals)
		res.Fee = fixedpoint.Format(q.Fee, r.cfg.Decimals)
		return r.fillPrice(ctx, marketID, res)

	case OpRedeem:
		amount, err := fixedpoint.ParseUnits(c.Amount, fixedpoint.InternalDecimals)
		if err != nil {
			return err
		}
		ev, err = eng.Redeem(ctx, marketID, account, amount)
		if err != nil {
			return err
		}

	case OpResolve:
		yes, err := parseOutcome(c.Outcome)
		if err != nil {
			return err
		}
		if c.Attest {
			if r.cfg.Signer == nil {
				return fmt.Errorf("resolve: no resolver key configured: %w", domain.ErrUnauthorized)
			}
			att, err := r.cfg.Signer.Attest(marketID, yes)
			if err != nil {
				return err
			}
			ev, err = eng.ResolveAttested(ctx, att)
			if err != nil {
				return err
			}
		} else {
			ev, err = eng.Resolve(ctx, marketID, account, yes)
			if err != nil {
				return err
			}
		}

	case OpClaim:
		ev, err = eng.Claim(ctx, marketID, account)
		if err != nil {
			return err
		}
	}

	res.Sequence = ev.Sequence
	if ev.Payout != nil {
		res.Payout = fixedpoint.Format(ev.Payout, r.cfg.Decimals)
	}
	return r.fillPrice(ctx, marketID, res)
}

func (r *Runner) fillPrice(ctx context.Context, marketID common.Address, res *Result) error {
	p, err := r.cfg.Engine.Price(ctx, marketID)
	if err != nil {
		return err
	}
	res.PriceYes, res.PriceNo = p.YesCents, p.NoCents
	return nil
}

// resolveMarket maps a ref or hex address to a market id.
func (r *Runner) resolveMarket(market string) (common.Address, error) {
	r.mu.RLock()
	id, ok := r.refs[market]
	r.mu.RUnlock()
	if ok {
		return id, nil
	}
	if common.IsHexAddress(market) {
		return common.HexToAddress(market), nil
	}
	return common.Address{}, fmt.Errorf("market ref %q: %w", market, domain.ErrMarketNotFound)
}

func parseOutcome(s string) (bool, error) {
	side, err := domain.ParseSide(s)
	if err != nil {
		return false, fmt.Errorf("outcome %q: %w", s, err)
	}
	return side == domain.SideYes, nil
}
