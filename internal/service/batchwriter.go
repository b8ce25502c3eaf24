package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jask/ledgersync/internal/database/repository"
)

// BatchWriter applies provider deltas to the local store in bounded chunks.
// Chunking exists purely to respect payload limits of the store, not as a
// business rule. Each chunk commits independently: a failed chunk is
// recorded and skipped, it never rolls back chunks already committed.
type BatchWriter struct {
	Transactions *repository.TransactionRepo
	ChunkSize    int
	Log          zerolog.Logger
}

// WriteStats reports what one Apply call committed. Counts cover committed
// chunks only; ChunkErrors carries one error per failed chunk.
type WriteStats struct {
	Added       int
	Modified    int
	Removed     int
	ChunkErrors []error
}

// Failed reports whether any chunk failed.
func (s WriteStats) Failed() bool { return len(s.ChunkErrors) > 0 }

// Apply runs the three passes in order: added, then modified, then removed.
// Added-before-modified is deliberate: when the provider reports the same
// transaction in both lists within one page, the modified pass supersedes
// the freshly upserted fields (category excepted, as always).
func (w *BatchWriter) Apply(ctx context.Context, added []repository.Transaction, modified []repository.TransactionUpdate, removed []string) WriteStats {
	stats := WriteStats{}

	for start := 0; start < len(added); start += w.ChunkSize {
		chunk := added[start:min(start+w.ChunkSize, len(added))]
		if err := w.Transactions.UpsertBatch(ctx, chunk); err != nil {
			w.Log.Warn().Err(err).Int("offset", start).Int("size", len(chunk)).Msg("added chunk failed")
			stats.ChunkErrors = append(stats.ChunkErrors, fmt.Errorf("added chunk at %d: %w", start, err))
			continue
		}
		stats.Added += len(chunk)
	}

	for start := 0; start < len(modified); start += w.ChunkSize {
		chunk := modified[start:min(start+w.ChunkSize, len(modified))]
		if err := w.Transactions.UpdateFieldsBatch(ctx, chunk); err != nil {
			w.Log.Warn().Err(err).Int("offset", start).Int("size", len(chunk)).Msg("modified chunk failed")
			stats.ChunkErrors = append(stats.ChunkErrors, fmt.Errorf("modified chunk at %d: %w", start, err))
			continue
		}
		stats.Modified += len(chunk)
	}

	for start := 0; start < len(removed); start += w.ChunkSize {
		chunk := removed[start:min(start+w.ChunkSize, len(removed))]
		if err := w.Transactions.DeleteBatch(ctx, chunk); err != nil {
			w.Log.Warn().Err(err).Int("offset", start).Int("size", len(chunk)).Msg("removed chunk failed")
			stats.ChunkErrors = append(stats.ChunkErrors, fmt.Errorf("removed chunk at %d: %w", start, err))
			continue
		}
		stats.Removed += len(chunk)
	}

	return stats
}
