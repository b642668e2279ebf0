package batch

import (
	"context"

	"github.com/chronominer/chronominer/pkg/journal"
)

// RepairPlan is Repair's result: what Repair did, plus which chunks remain
// uncovered by any batch and must be re-queued by the caller (spec §4.8
// repair()'s "the chunk is re-queued").
type RepairPlan struct {
	Downloaded []string // batch IDs that completed while offline and were downloaded
	StillOpen  []string // batch IDs still in a non-terminal state
	Orphaned   []int    // chunk indices with no response/error and no covering batch
}

// Repair reads the file's journal, re-queries every submitted/in_progress
// batch with no downloaded record, downloads anything that completed while
// offline, and reports chunks with neither a response nor an error and no
// batch covering them at all (spec §4.8).
func Repair(ctx context.Context, m *Manager, view *journal.View, chunksExpected int) (RepairPlan, error) {
	plan := RepairPlan{}

	covered := map[int]bool{}
	batchOfCustomID := map[string]string{}
	latestStatus := map[string]Status{}

	for _, rec := range view.BatchEvents {
		if rec.BatchID != "" {
			latestStatus[rec.BatchID] = Status(rec.Status)
		}
		if rec.CustomID != "" && rec.BatchID != "" {
			batchOfCustomID[rec.CustomID] = rec.BatchID
		}
	}

	for idx := range view.ByChunk {
		covered[idx] = true
	}

	// A chunk tracked by a batch that hasn't failed/expired/been cancelled
	// is covered even before its response lands: repair should wait on it
	// rather than re-queue it out from under the in-flight batch.
	for customID, batchID := range batchOfCustomID {
		status := latestStatus[batchID]
		if status == StatusFailed || status == StatusCancelled || status == StatusExpired {
			continue
		}
		if idx, ok := ChunkIndexFromCustomID(customID); ok {
			covered[idx] = true
		}
	}

	for batchID, status := range latestStatus {
		if status == StatusDownloaded || status == StatusIngested {
			continue // already ingested, nothing to repair
		}
		if terminal(status) {
			continue // failed/cancelled/expired: nothing to download
		}

		current, err := m.Status(ctx, batchID)
		if err != nil {
			return plan, err
		}

		if current == StatusCompleted {
			results, err := m.Download(ctx, batchID)
			if err != nil {
				return plan, err
			}
			plan.Downloaded = append(plan.Downloaded, batchID)
			for _, r := range results {
				covered[r.ChunkIndex] = true
			}
			continue
		}

		plan.StillOpen = append(plan.StillOpen, batchID)
	}

	for idx := 1; idx <= chunksExpected; idx++ {
		if !covered[idx] {
			plan.Orphaned = append(plan.Orphaned, idx)
		}
	}

	return plan, nil
}
