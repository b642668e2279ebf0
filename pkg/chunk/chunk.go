// Package chunk implements C3, the Chunker: it produces a finite ordered
// sequence of line-range chunks from a file under a token budget, using one
// of three strategies (spec §4.3).
package chunk

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/chronominer/chronominer/pkg/tokencount"
	"github.com/chronominer/chronominer/pkg/xerrors"
)

// Chunk is the data-model tuple from spec §3: (chunk_index, line_start,
// line_end, text). chunk_index is 1-based.
type Chunk struct {
	Index     int
	LineStart int
	LineEnd   int
	Text      string
}

// Strategy names the three chunking approaches from spec §4.3.
type Strategy string

const (
	Automatic         Strategy = "auto"
	LineRanges        Strategy = "line_ranges"
	RefinedLineRanges Strategy = "adjust-line-ranges"
)

// Range is a validated (start, end) line pair, 1-based and inclusive.
type Range struct {
	Start int
	End   int
}

// Lines splits source text into a slice of lines without the trailing
// newline, used by every strategy to materialize chunk text from ranges.
func Lines(source string) []string {
	if source == "" {
		return nil
	}
	// Preserve a final empty line only if the source doesn't end in "\n";
	// strings.Split already gives us exactly that behavior.
	lines := strings.Split(source, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" && strings.HasSuffix(source, "\n") {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func textFor(lines []string, start, end int) string {
	// start/end are 1-based inclusive; lines is 0-based.
	return strings.Join(lines[start-1:end], "\n")
}

// AutomaticChunks implements strategy 1: greedily extend line-by-line,
// accumulating tokens via tokencount.Count, until adding the next line
// would exceed tokensPerChunk. Never splits a line. The final chunk may be
// smaller than the budget. Empty input yields zero chunks.
func AutomaticChunks(source, model string, tokensPerChunk int) []Chunk {
	lines := Lines(source)
	if len(lines) == 0 {
		return nil
	}

	var chunks []Chunk
	start := 1
	var buf strings.Builder
	tokens := 0

	flush := func(end int) {
		if end < start {
			return
		}
		chunks = append(chunks, Chunk{
			Index:     len(chunks) + 1,
			LineStart: start,
			LineEnd:   end,
			Text:      textFor(lines, start, end),
		})
		start = end + 1
		buf.Reset()
		tokens = 0
	}

	for i, line := range lines {
		lineNo := i + 1

		candidate := line
		if buf.Len() > 0 {
			candidate = buf.String() + "\n" + line
		}
		candidateTokens := tokencount.Count(candidate, model)

		if tokens > 0 && candidateTokens > tokensPerChunk {
			// Adding this line would overflow: close the chunk before it.
			flush(lineNo - 1)
			buf.WriteString(line)
			tokens = tokencount.Count(line, model)
			continue
		}

		if buf.Len() > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(line)
		tokens = candidateTokens
	}

	flush(len(lines))
	return chunks
}

// ParseLineRanges implements strategy 2's file format: one "start-end" pair
// per line, co-located with the source file (spec §3 "Line-range file").
// An empty file is treated as missing per spec §3.
func ParseLineRanges(path string, lineCount int) ([]Range, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.MissingLineRanges.Wrap(err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, xerrors.MissingLineRanges.New("line-ranges file is empty: " + path)
	}

	var ranges []Range
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		parts := strings.SplitN(text, "-", 2)
		if len(parts) != 2 {
			return nil, xerrors.InvalidLineRanges.New(fmt.Sprintf("%s:%d: malformed range %q", path, lineNo, text))
		}

		start, errStart := strconv.Atoi(strings.TrimSpace(parts[0]))
		end, errEnd := strconv.Atoi(strings.TrimSpace(parts[1]))
		if errStart != nil || errEnd != nil {
			return nil, xerrors.InvalidLineRanges.New(fmt.Sprintf("%s:%d: non-numeric range %q", path, lineNo, text))
		}

		if start < 1 || end < start || end > lineCount {
			return nil, xerrors.InvalidLineRanges.New(fmt.Sprintf("%s:%d: range %d-%d out of bounds (file has %d lines)", path, lineNo, start, end, lineCount))
		}

		ranges = append(ranges, Range{Start: start, End: end})
	}
	if err := scanner.Err(); err != nil {
		return nil, xerrors.InvalidLineRanges.Wrap(err)
	}

	if err := validateSorted(ranges); err != nil {
		return nil, err
	}

	return ranges, nil
}

// validateSorted enforces spec §3's "pairs are sorted, non-overlapping".
func validateSorted(ranges []Range) error {
	for i := 1; i < len(ranges); i++ {
		if ranges[i].Start <= ranges[i-1].End {
			return xerrors.InvalidLineRanges.New(fmt.Sprintf(
				"range %d-%d overlaps or is out of order with preceding range %d-%d",
				ranges[i].Start, ranges[i].End, ranges[i-1].Start, ranges[i-1].End))
		}
	}
	return nil
}

// FromRanges builds Chunks from already-validated Ranges and the file's
// lines, implementing the emission half of strategy 2 and 3.
func FromRanges(lines []string, ranges []Range) []Chunk {
	chunks := make([]Chunk, 0, len(ranges))
	for i, r := range ranges {
		chunks = append(chunks, Chunk{
			Index:     i + 1,
			LineStart: r.Start,
			LineEnd:   r.End,
			Text:      textFor(lines, r.Start, r.End),
		})
	}
	return chunks
}

// WriteLineRanges serializes ranges back to the co-located line-ranges
// file, used after C4 refinement persists new boundaries (spec §4.3,
// strategy 3).
func WriteLineRanges(ranges []Range) string {
	var b strings.Builder
	for _, r := range ranges {
		fmt.Fprintf(&b, "%d-%d\n", r.Start, r.End)
	}
	return b.String()
}

// Validate checks the chunk-sequence invariants from spec §3: strictly
// increasing indices, no duplicate index, each chunk's line range valid.
func Validate(chunks []Chunk, lineCount int) error {
	for i, c := range chunks {
		if c.Index != i+1 {
			return xerrors.InvalidLineRanges.New(fmt.Sprintf("chunk at position %d has index %d, expected %d", i, c.Index, i+1))
		}
		if c.LineStart < 1 || c.LineEnd < c.LineStart || c.LineEnd > lineCount {
			return xerrors.InvalidLineRanges.New(fmt.Sprintf("chunk %d has invalid range %d-%d for a %d-line file", c.Index, c.LineStart, c.LineEnd, lineCount))
		}
	}
	return nil
}
