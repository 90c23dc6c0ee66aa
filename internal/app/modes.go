package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/predictamm/internal/domain"
	"github.com/alanyoungcy/predictamm/internal/journal"
	"github.com/alanyoungcy/predictamm/internal/metadata"
)

// ReplaySummary is printed at the end of replay mode.
type ReplaySummary struct {
	Commands int                     `json:"commands"`
	Rejected int                     `json:"rejected"`
	Markets  []domain.MarketSnapshot `json:"markets"`
}

// ReplayMode applies the configured journal through the engine, writes one
// result line per command, and prints the final snapshot of every market.
func (a *App) ReplayMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting replay mode", slog.String("journal", a.cfg.Journal.Path))

	f, err := os.Open(a.cfg.Journal.Path)
	if err != nil {
		return fmt.Errorf("replay: open journal: %w", err)
	}
	cmds, err := journal.Read(f)
	_ = f.Close()
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	runner := journal.NewRunner(journal.RunnerConfig{
		Engine:   deps.Engine,
		Decimals: deps.Collateral.Decimals(),
		Parallel: a.cfg.Journal.Parallel,
		Signer:   deps.Signer,
		ChainID:  a.cfg.Engine.ChainID,
		Logger:   a.logger,
	})
	results, err := runner.Run(ctx, cmds)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	if err := a.writeResults(results); err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	summary := ReplaySummary{Commands: len(results)}
	for _, r := range results {
		if !r.OK {
			summary.Rejected++
		}
	}
	for _, id := range deps.Engine.AllMarkets() {
		snap, err := deps.Engine.Snapshot(ctx, id)
		if err != nil {
			return fmt.Errorf("replay: %w", err)
		}
		summary.Markets = append(summary.Markets, snap)
	}
	if err := a.printJSON(summary); err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	if path := a.cfg.Metrics.TextfilePath; path != "" {
		if err := deps.Metrics.WriteTextfile(path); err != nil {
			return fmt.Errorf("replay: %w", err)
		}
	}

	a.logger.InfoContext(ctx, "replay mode finished",
		slog.Int("commands", summary.Commands),
		slog.Int("rejected", summary.Rejected),
		slog.Int("markets", len(summary.Markets)),
	)
	return nil
}

func (a *App) writeResults(results []journal.Result) error {
	if a.cfg.Journal.ResultsPath == "" {
		return journal.WriteResults(a.out, results)
	}
	f, err := os.Create(a.cfg.Journal.ResultsPath)
	if err != nil {
		return fmt.Errorf("create results file: %w", err)
	}
	if err := journal.WriteResults(f, results); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ArchiveMode exports market events older than the retention window to S3,
// optionally prunes them from Postgres, and optionally snapshots every
// market.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	if deps.Archiver == nil {
		return fmt.Errorf("archive: requires postgres and s3")
	}
	now := time.Now().UTC()
	before := now.AddDate(0, 0, -a.cfg.Archive.RetentionDays)
	a.logger.InfoContext(ctx, "starting archive mode", slog.Time("before", before))

	// Rows above this high-water mark were not necessarily in the upload.
	maxSeq, err := deps.EventStore.LastSequence(ctx)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := deps.Archiver.ArchiveEvents(gctx, before)
		if err != nil {
			return fmt.Errorf("archive events: %w", err)
		}
		a.logger.InfoContext(gctx, "archive: events uploaded", slog.Int64("count", n))
		if n == 0 || !a.cfg.Archive.Prune {
			return nil
		}
		deleted, err := deps.EventStore.DeleteBefore(gctx, before, maxSeq)
		if err != nil {
			return fmt.Errorf("prune events: %w", err)
		}
		a.logger.InfoContext(gctx, "archive: events pruned", slog.Int64("count", deleted))
		return nil
	})
	if a.cfg.Archive.Snapshots {
		g.Go(func() error {
			n, err := deps.Archiver.ArchiveSnapshots(gctx, now)
			if err != nil {
				return fmt.Errorf("archive snapshots: %w", err)
			}
			a.logger.InfoContext(gctx, "archive: snapshots uploaded", slog.Int64("count", n))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("archive: %w", err)
	}

	files, err := deps.BlobReader.ListArchives(ctx, "events")
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	var total int64
	for _, f := range files {
		total += f.Size
	}
	a.logger.InfoContext(ctx, "archive mode finished",
		slog.Int("event_files", len(files)),
		slog.Int64("event_bytes", total),
	)
	return nil
}

// MarketView is one market as printed by inspect mode.
type MarketView struct {
	domain.MarketSnapshot
	Title    string              `json:"title"`
	Quote    *domain.PriceQuote  `json:"quote,omitempty"`
	Metadata *metadata.Payload   `json:"metadata,omitempty"`
	Audit    []domain.AuditEntry `json:"audit,omitempty"`
}

// inspectPage bounds each snapshot query in inspect mode.
const inspectPage = 200

// inspectWorkers bounds concurrent per-market lookups.
const inspectWorkers = 8

// InspectMode prints every persisted market with its cached quote, its
// resolved metadata document and its audit trail.
func (a *App) InspectMode(ctx context.Context, deps *Dependencies) error {
	if deps.Markets == nil {
		return fmt.Errorf("inspect: requires postgres")
	}
	a.logger.InfoContext(ctx, "starting inspect mode")

	if deps.MarketCache != nil {
		if _, err := deps.Markets.WarmCache(ctx); err != nil {
			a.logger.WarnContext(ctx, "inspect: cache warm failed", slog.String("error", err.Error()))
		}
	}

	var snaps []domain.MarketSnapshot
	for offset := 0; ; offset += inspectPage {
		page, err := deps.Markets.ListMarkets(ctx, domain.ListOpts{Limit: inspectPage, Offset: offset})
		if err != nil {
			return fmt.Errorf("inspect: %w", err)
		}
		snaps = append(snaps, page...)
		if len(page) < inspectPage {
			break
		}
	}

	ids := make([]common.Address, len(snaps))
	for i, s := range snaps {
		ids[i] = s.ID
	}
	quotes, err := deps.Markets.Quotes(ctx, ids)
	if err != nil {
		return fmt.Errorf("inspect: %w", err)
	}

	views := make([]MarketView, len(snaps))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(inspectWorkers)
	for i, s := range snaps {
		text, uri := metadata.ExtractMarker(s.Question)
		views[i] = MarketView{MarketSnapshot: s, Title: text}
		if q, ok := quotes[s.ID]; ok {
			views[i].Quote = &q
		}
		if uri == "" {
			uri = s.MetadataURI
		}
		if deps.AuditStore != nil {
			g.Go(func() error {
				trail, err := deps.AuditStore.ListForMarket(gctx, s.ID, domain.ListOpts{})
				if err != nil {
					return fmt.Errorf("audit trail %s: %w", s.ID.Hex(), err)
				}
				mu.Lock()
				views[i].Audit = trail
				mu.Unlock()
				return nil
			})
		}
		if uri == "" {
			continue
		}
		g.Go(func() error {
			payload, err := deps.Metadata.Fetch(gctx, uri)
			if err != nil {
				a.logger.WarnContext(gctx, "inspect: metadata fetch failed",
					slog.String("market_id", s.ID.Hex()),
					slog.String("uri", uri),
					slog.String("error", err.Error()),
				)
				return nil
			}
			mu.Lock()
			views[i].Metadata = &payload
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("inspect: %w", err)
	}

	for _, v := range views {
		if err := a.printJSON(v); err != nil {
			return fmt.Errorf("inspect: %w", err)
		}
	}
	a.logger.InfoContext(ctx, "inspect mode finished", slog.Int("markets", len(views)))
	return nil
}

func (a *App) printJSON(v any) error {
	return writeJSON(a.out, v)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
