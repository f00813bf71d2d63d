package s3blob

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calebward/chainarb/internal/domain"
)

type fakeWriter struct {
	puts map[string][]byte
	err  error
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{puts: make(map[string][]byte)}
}

func (f *fakeWriter) Put(ctx context.Context, path string, data []byte, contentType string) error {
	if f.err != nil {
		return f.err
	}
	f.puts[path] = data
	return nil
}

type fakeQuoteStore struct {
	rows    []domain.Quote
	deleted int64
}

func (f *fakeQuoteStore) InsertBatch(ctx context.Context, quotes []domain.Quote) error { return nil }

func (f *fakeQuoteStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Quote, error) {
	return f.rows, nil
}

func (f *fakeQuoteStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	f.deleted = int64(len(f.rows))
	f.rows = nil
	return f.deleted, nil
}

type fakeOppStore struct {
	rows    []domain.Opportunity
	deleted int64
}

func (f *fakeOppStore) Insert(ctx context.Context, opp domain.Opportunity) error { return nil }

func (f *fakeOppStore) ListRecent(ctx context.Context, limit int) ([]domain.Opportunity, error) {
	return nil, nil
}

func (f *fakeOppStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Opportunity, error) {
	return f.rows, nil
}

func (f *fakeOppStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	f.deleted = int64(len(f.rows))
	f.rows = nil
	return f.deleted, nil
}

func newTestArchiver(w domain.BlobWriter, qs domain.QuoteStore, os domain.OpportunityStore, now time.Time) *Archiver {
	a := NewArchiver(w, qs, os, 30, slog.New(slog.DiscardHandler))
	a.now = func() time.Time { return now }
	return a
}

func TestRun_ArchivesThenPrunes(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	writer := newFakeWriter()
	quotes := &fakeQuoteStore{rows: []domain.Quote{
		{Network: "ethereum", Venue: "uniswap", Pair: "WETH/USDC", Price: 2000, ObservedAt: now.AddDate(0, 0, -40)},
		{Network: "polygon", Venue: "quickswap", Pair: "WETH/USDC", Price: 2010, ObservedAt: now.AddDate(0, 0, -35)},
	}}
	opps := &fakeOppStore{rows: []domain.Opportunity{
		{ID: "abc", Pair: "WETH/USDC", NetProfitUSD: 42, DetectedAt: now.AddDate(0, 0, -40)},
	}}

	a := newTestArchiver(writer, quotes, opps, now)
	require.NoError(t, a.Run(context.Background()))

	// Cutoff is 30 days back, so both archives land in the July partition.
	qBody, ok := writer.puts["archive/quotes/2026-07.jsonl"]
	require.True(t, ok)
	assert.Equal(t, 2, bytes.Count(qBody, []byte("\n")))
	assert.Contains(t, string(qBody), `"ethereum"`)

	oBody, ok := writer.puts["archive/opportunities/2026-07.jsonl"]
	require.True(t, ok)
	assert.Equal(t, 1, bytes.Count(oBody, []byte("\n")))

	assert.Equal(t, int64(2), quotes.deleted)
	assert.Equal(t, int64(1), opps.deleted)
}

func TestRun_NothingToArchive(t *testing.T) {
	writer := newFakeWriter()
	a := newTestArchiver(writer, &fakeQuoteStore{}, &fakeOppStore{}, time.Now())

	require.NoError(t, a.Run(context.Background()))
	assert.Empty(t, writer.puts)
}

func TestRun_UploadFailureLeavesRows(t *testing.T) {
	now := time.Now().UTC()
	writer := newFakeWriter()
	writer.err = errors.New("access denied")
	quotes := &fakeQuoteStore{rows: []domain.Quote{
		{Network: "ethereum", Venue: "uniswap", Pair: "WETH/USDC", Price: 2000, ObservedAt: now.AddDate(0, 0, -40)},
	}}

	a := newTestArchiver(writer, quotes, &fakeOppStore{}, now)
	err := a.Run(context.Background())
	require.Error(t, err)
	assert.Len(t, quotes.rows, 1, "rows stay in the primary store for the next sweep")
	assert.Zero(t, quotes.deleted)
}

func TestArchivePath_MonthPartition(t *testing.T) {
	cutoff := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "archive/quotes/2026-01.jsonl", archivePath("quotes", cutoff))
	assert.Equal(t, "archive/opportunities/2026-01.jsonl", archivePath("opportunities", cutoff))
}

func TestMarshalJSONL_CompactLines(t *testing.T) {
	out, err := marshalJSONL([]domain.Quote{
		{Network: "ethereum", Venue: "uniswap", Pair: "WETH/USDC", Price: 2000},
		{Network: "polygon", Venue: "quickswap", Pair: "WETH/USDC", Price: 2010},
	})
	require.NoError(t, err)

	lines := bytes.Split(bytes.TrimRight(out, "\n"), []byte("\n"))
	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.True(t, bytes.HasPrefix(line, []byte("{")))
	}
}
