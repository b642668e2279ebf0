package batch

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/natefinch/atomic"
)

// submissionDebugSuffix matches paths.BatchDebugPath's sidecar naming.
const submissionDebugSuffix = "_batch_submission_debug.json"

// SubmissionDebug is the `<stem>_batch_submission_debug.json` artifact
// (spec §6's persisted state layout): batch IDs, chunk count, timestamps,
// provider tag. TrackingID is an internal correlation id distinct from the
// provider's own BatchID, useful for cross-referencing debug files across
// repeated submissions of the same file.
type SubmissionDebug struct {
	TrackingID  string `json:"tracking_id"`
	BatchID     string `json:"batch_id"`
	Provider    string `json:"provider"`
	ChunkCount  int    `json:"chunk_count"`
	Model       string `json:"model"`
	SubmittedAt string `json:"submitted_at"`
}

// WriteSubmissionDebug atomically writes the submission debug artifact,
// overwriting any prior one for the same file (a file may be submitted for
// batch processing more than once across repair cycles).
func WriteSubmissionDebug(path string, batchID, providerTag, model string, chunkCount int, submittedAt string) error {
	debug := SubmissionDebug{
		TrackingID:  uuid.NewString(),
		BatchID:     batchID,
		Provider:    providerTag,
		ChunkCount:  chunkCount,
		Model:       model,
		SubmittedAt: submittedAt,
	}

	data, err := json.MarshalIndent(debug, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(path, bytes.NewReader(data))
}

// ReadSubmissionDebug reads one submission debug artifact back.
func ReadSubmissionDebug(path string) (SubmissionDebug, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SubmissionDebug{}, err
	}
	var debug SubmissionDebug
	if err := json.Unmarshal(data, &debug); err != nil {
		return SubmissionDebug{}, err
	}
	return debug, nil
}

// Submission pairs a schema output directory's submission debug artifact
// with the file stem it covers, so check-batches/cancel-batches/
// repair-extractions can rediscover outstanding batches after a process
// restart without keeping an in-memory batch registry (spec §4.8: state
// lives in the persisted debug file and journal, not in process memory).
type Submission struct {
	Stem  string
	Debug SubmissionDebug
}

// ListSubmissions scans schemaOutputDir for every submission debug
// artifact, returning them sorted by file stem.
func ListSubmissions(schemaOutputDir string) ([]Submission, error) {
	entries, err := os.ReadDir(schemaOutputDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var submissions []Submission
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), submissionDebugSuffix) {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), submissionDebugSuffix)
		debug, err := ReadSubmissionDebug(filepath.Join(schemaOutputDir, e.Name()))
		if err != nil {
			return nil, err
		}
		submissions = append(submissions, Submission{Stem: stem, Debug: debug})
	}

	sort.Slice(submissions, func(i, j int) bool { return submissions[i].Stem < submissions[j].Stem })
	return submissions, nil
}
