// Package batch implements C8, the Batch Lifecycle Manager: submit, poll,
// download, cancel, and repair for asynchronous provider batch jobs (spec
// §4.8). State transitions are driven by external polling, not a background
// loop, matching spec §4.8's "driven by polling (external observers call
// poll_all())".
package batch

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/chronominer/chronominer/pkg/journal"
	"github.com/chronominer/chronominer/pkg/model/provider"
	"github.com/chronominer/chronominer/pkg/xerrors"
)

// customIDMarker separates a file stem from its chunk index in the
// canonical custom_id format `{file_stem}-chunk-{chunk_index}` (spec §6).
// Vendor adapters never see a chunk index directly (the provider's wire
// format only carries custom_id), so encoding it here lets Download/Repair
// recover it even after a process restart, without an in-memory
// batchID->chunkIndex map.
const customIDMarker = "-chunk-"

// CustomIDFor builds the custom_id for fileStem's chunkIndex, stable across
// retries and batches (spec §6).
func CustomIDFor(fileStem string, chunkIndex int) string {
	return fileStem + customIDMarker + strconv.Itoa(chunkIndex)
}

// ChunkIndexFromCustomID reverses CustomIDFor's chunk-index suffix,
// tolerating file stems that themselves contain "-chunk-" by taking the
// last occurrence.
func ChunkIndexFromCustomID(customID string) (int, bool) {
	i := strings.LastIndex(customID, customIDMarker)
	if i < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(customID[i+len(customIDMarker):])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Status is the unified vocabulary from spec §4.8's state machine.
type Status string

const (
	StatusSubmitted  Status = "submitted"
	StatusValidating Status = "validating"
	StatusInProgress Status = "in_progress"
	StatusFinalizing Status = "finalizing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusExpired    Status = "expired"
	StatusDownloaded Status = "downloaded"
	StatusIngested   Status = "ingested"
)

// terminal reports whether a provider-reported status will never transition
// again without operator action (cancel is already terminal; completed
// still needs download/ingest, so it is not terminal for repair purposes).
func terminal(s Status) bool {
	switch s {
	case StatusFailed, StatusCancelled, StatusExpired, StatusIngested:
		return true
	}
	return false
}

// ChunkRequest is one chunk's worth of work to submit as part of a batch.
type ChunkRequest struct {
	ChunkIndex int
	CustomID   string
	Prompt     string
	Schema     map[string]any
	SchemaName string
}

// ChunkResult is one chunk's worth of batch output, matched back by CustomID
// (spec §4.8 "download(batch_id) ... matched back to custom_id").
type ChunkResult struct {
	CustomID     string
	ChunkIndex   int
	Object       map[string]any
	RawText      string
	InputTokens  int64
	OutputTokens int64
	Error        string // non-empty when the provider reports a per-item failure
}

// VendorBatch is implemented by each provider's batch adapter. Providers
// without a vendor adapter (or whose Capability.BatchSupported is false)
// never see this interface; C10 falls back to synchronous mode instead
// (spec §4.8's "other providers fall back to synchronous mode with an
// advisory").
type VendorBatch interface {
	// Submit uploads and starts a batch job, returning the provider's batch
	// identifier.
	Submit(ctx context.Context, model string, reqs []ChunkRequest) (batchID string, err error)

	// Status polls the provider for batch_id's current unified status.
	Status(ctx context.Context, batchID string) (Status, error)

	// Download retrieves completed batch_id's per-chunk results. Only
	// called once Status reports StatusCompleted.
	Download(ctx context.Context, batchID string) ([]ChunkResult, error)

	// Cancel best-effort cancels batch_id. Terminal states are left
	// unchanged by the provider; Cancel does not error on an
	// already-terminal batch.
	Cancel(ctx context.Context, batchID string) error
}

// Manager ties a vendor adapter to one file's journal.
type Manager struct {
	vendor VendorBatch
	model  string
	j      *journal.Journal
}

// New builds a Manager for one file's batch lifecycle.
func New(vendor VendorBatch, model string, j *journal.Journal) *Manager {
	return &Manager{vendor: vendor, model: model, j: j}
}

// Submit serializes chunk requests in the provider's batch format, starts
// the job, and writes a `submitted` tracking record to the journal for
// every chunk covered (spec §4.8 submit()).
func (m *Manager) Submit(ctx context.Context, reqs []ChunkRequest) (string, error) {
	if len(reqs) == 0 {
		return "", xerrors.Validation.New("batch: no chunk requests to submit")
	}

	batchID, err := m.vendor.Submit(ctx, m.model, reqs)
	if err != nil {
		return "", provider.ClassifyError(err)
	}

	customIDs := make([]string, len(reqs))
	for i, r := range reqs {
		customIDs[i] = r.CustomID
	}

	if err := m.j.AppendBatchEvent(batchID, string(StatusSubmitted), customIDs); err != nil {
		return batchID, err
	}

	return batchID, nil
}

// Status polls the provider for batch_id's unified status (spec §4.8
// status()). It does not write a journal record itself; callers decide
// whether a transition is worth recording (Download/Cancel do).
func (m *Manager) Status(ctx context.Context, batchID string) (Status, error) {
	return m.vendor.Status(ctx, batchID)
}

// Download fetches batch_id's results (only valid once Status reports
// StatusCompleted) and appends a response or error record per chunk to the
// journal, plus a per-chunk `downloaded` batch-tracking record (spec §4.8
// download()).
func (m *Manager) Download(ctx context.Context, batchID string) ([]ChunkResult, error) {
	results, err := m.vendor.Download(ctx, batchID)
	if err != nil {
		return nil, provider.ClassifyError(err)
	}

	customIDs := make([]string, 0, len(results))
	for i, r := range results {
		customIDs = append(customIDs, r.CustomID)
		if r.ChunkIndex == 0 {
			if idx, ok := ChunkIndexFromCustomID(r.CustomID); ok {
				r.ChunkIndex = idx
				results[i].ChunkIndex = idx
			}
		}
		if r.Error != "" {
			if err := m.j.AppendError(r.ChunkIndex, fmt.Errorf("%s", r.Error)); err != nil {
				return results, err
			}
			continue
		}
		resp := &provider.Response{
			Object:       r.Object,
			RawText:      r.RawText,
			InputTokens:  r.InputTokens,
			OutputTokens: r.OutputTokens,
		}
		if err := m.j.AppendResponse(r.ChunkIndex, resp); err != nil {
			return results, err
		}
	}

	if err := m.j.AppendBatchEvent(batchID, string(StatusDownloaded), customIDs); err != nil {
		return results, err
	}

	return results, nil
}

// Cancel best-effort cancels batch_id (spec §4.8 cancel()).
func (m *Manager) Cancel(ctx context.Context, batchID string) error {
	return m.vendor.Cancel(ctx, batchID)
}
