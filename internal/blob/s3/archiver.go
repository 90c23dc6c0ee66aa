package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/predictamm/internal/domain"
)

// EventArchiveStore is the slice of the event store the archiver needs.
type EventArchiveStore interface {
	// ListBefore returns all events with a timestamp strictly before the
	// given cutoff, in sequence order.
	ListBefore(ctx context.Context, before time.Time) ([]domain.MarketEvent, error)
}

// SnapshotSource lists the persisted market snapshots.
type SnapshotSource interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.MarketSnapshot, error)
}

// snapshotPageSize bounds each snapshot query.
const snapshotPageSize = 500

// ArchiveImpl implements domain.Archiver by querying the projection for old
// records, serializing them to JSONL, and uploading the result to S3.
//
// Deletion of archived events from Postgres is a separate step, run only
// after the upload succeeded.
//
// Event files are keyed by month and sequence range, so re-running over the
// same rows finds the existing file and skips the upload.
type ArchiveImpl struct {
	writer    domain.BlobWriter
	index     domain.ArchiveIndex
	events    EventArchiveStore
	snapshots SnapshotSource
	audit     domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl. index may be nil, in which case
// every run uploads.
func NewArchiver(
	writer domain.BlobWriter,
	index domain.ArchiveIndex,
	events EventArchiveStore,
	snapshots SnapshotSource,
	audit domain.AuditStore,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:    writer,
		index:     index,
		events:    events,
		snapshots: snapshots,
		audit:     audit,
	}
}

// multipartThreshold is the payload size above which uploads go through the
// multipart manager.
const multipartThreshold = minPartSize

var _ domain.Archiver = (*ArchiveImpl)(nil)

// ArchiveEvents uploads every market event before the cutoff to
// archive/events/YYYY-MM/<first>-<last>.jsonl and returns the number of
// events the archive now holds for that range.
func (a *ArchiveImpl) ArchiveEvents(ctx context.Context, before time.Time) (int64, error) {
	events, err := a.events.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events query: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	count := int64(len(events))
	path := eventArchivePath(before, events[0].Sequence, events[len(events)-1].Sequence)
	if a.index != nil {
		ok, err := a.index.Exists(ctx, path)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive events: %w", err)
		}
		if ok {
			return count, nil
		}
	}

	buf, err := marshalJSONL(events)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events marshal: %w", err)
	}
	if err := a.upload(ctx, path, buf); err != nil {
		return 0, fmt.Errorf("s3blob: archive events upload: %w", err)
	}

	if err := a.audit.Log(ctx, "archive.events", map[string]any{
		"path":           path,
		"count":          count,
		"before":         before.Format(time.RFC3339),
		"first_sequence": events[0].Sequence,
		"last_sequence":  events[len(events)-1].Sequence,
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive events audit log: %w", err)
	}

	return count, nil
}

// ArchiveSnapshots uploads the current snapshot of every market to
// archive/snapshots/<at>.jsonl.
func (a *ArchiveImpl) ArchiveSnapshots(ctx context.Context, at time.Time) (int64, error) {
	var all []domain.MarketSnapshot
	for offset := 0; ; offset += snapshotPageSize {
		page, err := a.snapshots.List(ctx, domain.ListOpts{Limit: snapshotPageSize, Offset: offset})
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive snapshots query: %w", err)
		}
		all = append(all, page...)
		if len(page) < snapshotPageSize {
			break
		}
	}
	if len(all) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(all)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive snapshots marshal: %w", err)
	}

	path := archivePrefix("snapshots") + at.UTC().Format("20060102T150405Z") + ".jsonl"
	if err := a.upload(ctx, path, buf); err != nil {
		return 0, fmt.Errorf("s3blob: archive snapshots upload: %w", err)
	}

	count := int64(len(all))
	if err := a.audit.Log(ctx, "archive.snapshots", map[string]any{
		"path":  path,
		"count": count,
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive snapshots audit log: %w", err)
	}
	return count, nil
}

func (a *ArchiveImpl) upload(ctx context.Context, path string, buf []byte) error {
	if int64(len(buf)) > multipartThreshold {
		return a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	}
	return a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
}

func archivePrefix(kind string) string {
	return "archive/" + kind + "/"
}

// eventArchivePath partitions event files by the year-month of the cutoff.
//
//	archive/events/2025-01/000000000001-000000000420.jsonl
func eventArchivePath(before time.Time, first, last uint64) string {
	return fmt.Sprintf("%s%s/%012d-%012d.jsonl", archivePrefix("events"), before.UTC().Format("2006-01"), first, last)
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
