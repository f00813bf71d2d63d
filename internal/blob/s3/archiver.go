package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/calebward/chainarb/internal/domain"
)

// Archiver moves aged quote and opportunity history out of the primary store
// into cold storage. Each run serialises rows older than the retention
// cutoff to JSONL, uploads them, and only then prunes the primary store.
type Archiver struct {
	writer        domain.BlobWriter
	quotes        domain.QuoteStore
	opportunities domain.OpportunityStore
	retentionDays int
	logger        *slog.Logger
	now           func() time.Time
}

// NewArchiver creates an Archiver with the given retention window in days.
func NewArchiver(
	writer domain.BlobWriter,
	quotes domain.QuoteStore,
	opportunities domain.OpportunityStore,
	retentionDays int,
	logger *slog.Logger,
) *Archiver {
	return &Archiver{
		writer:        writer,
		quotes:        quotes,
		opportunities: opportunities,
		retentionDays: retentionDays,
		logger:        logger.With(slog.String("component", "archiver")),
		now:           time.Now,
	}
}

// Run executes a single archive sweep. A failed upload leaves the primary
// rows in place so the next sweep retries them.
func (a *Archiver) Run(ctx context.Context) error {
	cutoff := a.now().UTC().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
	a.logger.Info("starting archive sweep",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	quotesArchived, err := a.archiveQuotes(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("s3blob: archive quotes before %v: %w", cutoff, err)
	}

	oppsArchived, err := a.archiveOpportunities(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("s3blob: archive opportunities before %v: %w", cutoff, err)
	}

	a.logger.Info("archive sweep complete",
		slog.Int64("quotes_archived", quotesArchived),
		slog.Int64("opportunities_archived", oppsArchived),
	)
	return nil
}

// RunLoop runs archive sweeps on the given interval until the context is
// cancelled. Failures are logged and retried on the next tick.
func (a *Archiver) RunLoop(ctx context.Context, interval time.Duration) error {
	a.logger.Info("archiver started", slog.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("archiver stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := a.Run(ctx); err != nil {
				a.logger.Error("archive sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (a *Archiver) archiveQuotes(ctx context.Context, cutoff time.Time) (int64, error) {
	rows, err := a.quotes.ListBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("query: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(rows)
	if err != nil {
		return 0, fmt.Errorf("marshal: %w", err)
	}

	path := archivePath("quotes", cutoff)
	if err := a.writer.Put(ctx, path, buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("upload %s: %w", path, err)
	}

	deleted, err := a.quotes.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}

	a.logger.Info("archived quotes",
		slog.String("path", path),
		slog.Int("uploaded", len(rows)),
		slog.Int64("pruned", deleted),
	)
	return int64(len(rows)), nil
}

func (a *Archiver) archiveOpportunities(ctx context.Context, cutoff time.Time) (int64, error) {
	rows, err := a.opportunities.ListBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("query: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(rows)
	if err != nil {
		return 0, fmt.Errorf("marshal: %w", err)
	}

	path := archivePath("opportunities", cutoff)
	if err := a.writer.Put(ctx, path, buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("upload %s: %w", path, err)
	}

	deleted, err := a.opportunities.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}

	a.logger.Info("archived opportunities",
		slog.String("path", path),
		slog.Int("uploaded", len(rows)),
		slog.Int64("pruned", deleted),
	)
	return int64(len(rows)), nil
}

// archivePath builds the object key for an archive file, partitioned by the
// year-month of the cutoff time:
//
//	archive/quotes/2026-08.jsonl
//	archive/opportunities/2026-08.jsonl
func archivePath(kind string, cutoff time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, cutoff.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON. Each
// element becomes one compact JSON line.
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
