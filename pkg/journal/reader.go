package journal

import (
	"bufio"
	"encoding/json"
	"os"
)

// View is the journal's final-occurrence-wins read model (spec §4.7:
// "readers tolerate duplicate records for the same custom_id by taking the
// last occurrence"). ByChunk holds the last response or error record per
// chunk index; ByCustomID holds the last batch-tracking record per
// custom_id.
type View struct {
	Header      *Header
	ByChunk     map[int]Record
	ByCustomID  map[string]Record
	BatchEvents []Record // kept in file order; last status per batch_id wins via scan order
}

// Read loads path's entire journal into a View. A missing file yields an
// empty, non-nil View (repair and aggregation both treat "no journal yet"
// as "nothing has happened yet", not an error).
func Read(path string) (*View, error) {
	v := &View{ByChunk: map[int]Record{}, ByCustomID: map[string]Record{}}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return v, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var kindProbe struct {
			Kind RecordKind `json:"kind"`
		}
		if err := json.Unmarshal(line, &kindProbe); err != nil {
			continue // tolerate a torn trailing line from a crash mid-write
		}

		switch kindProbe.Kind {
		case KindHeader:
			var h Header
			if err := json.Unmarshal(line, &h); err == nil {
				v.Header = &h
			}
		case KindResponse, KindError:
			var r Record
			if err := json.Unmarshal(line, &r); err == nil {
				v.ByChunk[r.ChunkIndex] = r // last occurrence wins: later lines overwrite
			}
		case KindBatch:
			var r Record
			if err := json.Unmarshal(line, &r); err == nil {
				if r.CustomID != "" {
					v.ByCustomID[r.CustomID] = r
				}
				v.BatchEvents = append(v.BatchEvents, r)
			}
		}
	}

	return v, scanner.Err()
}
