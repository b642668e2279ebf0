// Package paths centralizes the persisted-state layout named in spec §6:
// the per-schema output directory, the process-wide token ledger file, and
// the per-file journal/line-ranges/batch-debug sibling files.
package paths

import (
	"os"
	"path/filepath"
)

// GetDataDir returns the user's data directory for chronominer (the home of
// the token ledger file and of the default debug log).
//
// If the home directory cannot be determined, it falls back to a directory
// under the system temporary directory. This is a best-effort fallback and
// not intended to be a security boundary.
func GetDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Clean(filepath.Join(os.TempDir(), ".chronominer"))
	}
	return filepath.Clean(filepath.Join(homeDir, ".chronominer"))
}

// LedgerFileName is the process-wide daily token ledger file (spec §6).
const LedgerFileName = ".chronominer_token_state.json"

// LedgerPath returns the ledger file path under dataDir, or under
// GetDataDir() if dataDir is empty.
func LedgerPath(dataDir string) string {
	if dataDir == "" {
		dataDir = GetDataDir()
	}
	return filepath.Join(dataDir, LedgerFileName)
}

// SchemaOutputDir returns the configured output directory for one schema,
// rooted under outputDir (spec §6: "Persisted state layout (under
// configured output directory per schema)").
func SchemaOutputDir(outputDir, schemaName string) string {
	return filepath.Join(outputDir, schemaName)
}

// stem is the helper every sibling-file path below is built from: the
// input file's base name with its extension removed.
func stem(sourceFile string) string {
	base := filepath.Base(sourceFile)
	ext := filepath.Ext(base)
	return base[:len(base)-len(ext)]
}

// AggregatePath returns "<stem>.json", the canonical per-file output.
func AggregatePath(outputDir, schemaName, sourceFile string) string {
	return filepath.Join(SchemaOutputDir(outputDir, schemaName), stem(sourceFile)+".json")
}

// JournalPath returns "<stem>_temporary.jsonl".
func JournalPath(outputDir, schemaName, sourceFile string) string {
	return filepath.Join(SchemaOutputDir(outputDir, schemaName), stem(sourceFile)+"_temporary.jsonl")
}

// BatchDebugPath returns "<stem>_batch_submission_debug.json".
func BatchDebugPath(outputDir, schemaName, sourceFile string) string {
	return filepath.Join(SchemaOutputDir(outputDir, schemaName), stem(sourceFile)+"_batch_submission_debug.json")
}

// LineRangesPath returns "<stem>_line_ranges.txt", co-located with the
// source file itself (not under the output directory) per spec §3's
// "line-range file... co-located with the source file".
func LineRangesPath(sourceFile string) string {
	dir := filepath.Dir(sourceFile)
	return filepath.Join(dir, stem(sourceFile)+"_line_ranges.txt")
}
