// Package journal implements C7, the Chunk Result Journal: an append-only
// record-per-line log co-located with a file's output, used as the single
// source of truth for crash recovery, repair, and aggregation (spec §4.7).
package journal

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/chronominer/chronominer/pkg/model/provider"
)

// RecordKind distinguishes the journal's record shapes.
type RecordKind string

const (
	KindHeader   RecordKind = "header"
	KindResponse RecordKind = "response"
	KindError    RecordKind = "error"
	KindBatch    RecordKind = "batch"
)

// Header is the one-per-file metadata record written before any chunk
// records (spec §4.7: "source path, schema, model, chunks expected").
type Header struct {
	Kind           RecordKind `json:"kind"`
	SourcePath     string     `json:"source_path"`
	Schema         string     `json:"schema"`
	Model          string     `json:"model"`
	ChunksExpected int        `json:"chunks_expected"`
	// RunID distinguishes which invocation of `process` produced this
	// journal, so a repair run reading a journal written by a prior,
	// possibly-crashed process can tell it apart from the current one.
	RunID     string `json:"run_id,omitempty"`
	WrittenAt string `json:"written_at"`
}

// Record is one journal line: either a chunk response, a chunk error, or a
// batch-tracking event. CustomID is the provider-facing identifier used to
// match batch downloads back to a chunk (spec §4.8).
type Record struct {
	Kind       RecordKind     `json:"kind"`
	ChunkIndex int            `json:"chunk_index"`
	CustomID   string         `json:"custom_id,omitempty"`
	Response   map[string]any `json:"response,omitempty"`
	RawText    string         `json:"raw_text,omitempty"`
	Error      string         `json:"error,omitempty"`
	BatchID    string         `json:"batch_id,omitempty"`
	Status     string         `json:"status,omitempty"`
	WrittenAt  string         `json:"written_at"`
}

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// Journal is one append-mode file, guarded by a per-file mutex (spec §4.7:
// "guarded by a per-file write mutex"). Writes are flushed at the bufio
// level but not fsynced, matching SPEC_FULL §3.7's durability/throughput
// tradeoff.
type Journal struct {
	mu    sync.Mutex
	path  string
	file  *os.File
	w     *bufio.Writer
	clock Clock
}

// Open creates or appends to the journal at path. If the file is new (or
// empty), header is written first.
func Open(path string, header Header, clock Clock) (*Journal, error) {
	if clock == nil {
		clock = time.Now
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	j := &Journal{path: path, file: f, w: bufio.NewWriter(f), clock: clock}

	if info.Size() == 0 {
		header.Kind = KindHeader
		header.WrittenAt = clock().Format(time.RFC3339)
		if err := j.writeLine(header); err != nil {
			f.Close()
			return nil, err
		}
	}

	return j, nil
}

func (j *Journal) writeLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := j.w.Write(data); err != nil {
		return err
	}
	if err := j.w.WriteByte('\n'); err != nil {
		return err
	}
	return j.w.Flush()
}

// AppendResponse writes a successful chunk response record.
func (j *Journal) AppendResponse(chunkIndex int, resp *provider.Response) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.writeLine(Record{
		Kind:       KindResponse,
		ChunkIndex: chunkIndex,
		Response:   resp.Object,
		RawText:    resp.RawText,
		WrittenAt:  j.clock().Format(time.RFC3339),
	})
}

// AppendError writes a chunk error record (spec §4.6 step 4).
func (j *Journal) AppendError(chunkIndex int, err error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.writeLine(Record{
		Kind:       KindError,
		ChunkIndex: chunkIndex,
		Error:      err.Error(),
		WrittenAt:  j.clock().Format(time.RFC3339),
	})
}

// AppendBatchEvent writes a batch-tracking record (spec §4.8).
func (j *Journal) AppendBatchEvent(batchID, status string, customIDs []string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, id := range customIDs {
		if err := j.writeLine(Record{
			Kind:      KindBatch,
			CustomID:  id,
			BatchID:   batchID,
			Status:    status,
			WrittenAt: j.clock().Format(time.RFC3339),
		}); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and closes the underlying file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.w.Flush(); err != nil {
		return err
	}
	return j.file.Close()
}

// Path returns the journal's file path, used by C10 for
// retain_temporary_jsonl deletion.
func (j *Journal) Path() string { return j.path }

// Delete removes the journal file from disk. Callers must Close first.
func Delete(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
