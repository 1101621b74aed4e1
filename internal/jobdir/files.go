package jobdir

import (
	"fmt"
	"os"

	"github.com/tidwall/gjson"
)

// ValueFile is a single-value file: it exists or it doesn't, and once it
// exists it has exactly one line worth of content to read. `start`,
// `exit`, and `file` are all ValueFiles. Existence is cached once true,
// since a job_root file is never un-created once the producer writes it.
type ValueFile struct {
	path   string
	exists bool
	read   bool
	value  string
}

// NewValueFile returns a ValueFile for path, unopened.
func NewValueFile(path string) *ValueFile {
	return &ValueFile{path: path}
}

// Exists reports whether the file is present yet.
func (v *ValueFile) Exists() bool {
	if v.exists {
		return true
	}
	if _, err := os.Stat(v.path); err == nil {
		v.exists = true
	}
	return v.exists
}

// ReadLine returns the file's single line of content, reading it at most
// once. It returns ok=false if the file does not exist yet.
func (v *ValueFile) ReadLine() (string, bool) {
	if v.read {
		return v.value, true
	}
	if !v.Exists() {
		return "", false
	}
	data, err := os.ReadFile(v.path)
	if err != nil {
		return "", false
	}
	v.value = firstLine(string(data))
	v.read = true
	return v.value, true
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}

// StreamFile wraps a TailReader for the append-only text streams `stdout`
// and `stderr`.
type StreamFile struct {
	tr *TailReader
}

// NewStreamFile returns a StreamFile for path.
func NewStreamFile(path string) *StreamFile {
	return &StreamFile{tr: NewTailReader(path)}
}

// NextLine delegates to the underlying TailReader.
func (s *StreamFile) NextLine(producerDone bool) (string, bool, error) {
	return s.tr.NextLine(producerDone)
}

// Close releases the underlying handle.
func (s *StreamFile) Close() error { return s.tr.Close() }

// RawEvent is one structured event record, either tailed from an
// events/*.jsonl shard or carried inline by a T2-HARNESS-EVENT marker.
// FacetRaw is kept as undecoded JSON until the synchronizer actually
// releases the event.
type RawEvent struct {
	PID      int64
	TID      int64
	StreamID int64
	Stamp    *float64
	FacetRaw []byte
}

// JSONLFile wraps a TailReader over one events/*.jsonl shard, peeling each
// tailed line into a RawEvent via a cheap gjson field-peek rather than a
// full json.Unmarshal.
type JSONLFile struct {
	tr *TailReader
}

// NewJSONLFile returns a JSONLFile for the shard at path.
func NewJSONLFile(path string) *JSONLFile {
	return &JSONLFile{tr: NewTailReader(path)}
}

// NextRecord tails one more line and parses it into a RawEvent.
func (j *JSONLFile) NextRecord(producerDone bool) (*RawEvent, bool, error) {
	line, ok, err := j.tr.NextLine(producerDone)
	if err != nil || !ok {
		return nil, ok, err
	}
	rec, err := parseRawEvent([]byte(line))
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// Close releases the underlying handle.
func (j *JSONLFile) Close() error { return j.tr.Close() }

// parseRawEvent extracts pid/tid/stream_id/stamp/facet_data from one
// structured-event JSON object using gjson field peeks, without fully
// unmarshaling the record.
func parseRawEvent(raw []byte) (*RawEvent, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("jobdir: invalid structured event JSON: %s", raw)
	}
	rec := &RawEvent{
		PID:      gjson.GetBytes(raw, "pid").Int(),
		TID:      gjson.GetBytes(raw, "tid").Int(),
		StreamID: gjson.GetBytes(raw, "stream_id").Int(),
	}
	if s := gjson.GetBytes(raw, "stamp"); s.Exists() {
		v := s.Float()
		rec.Stamp = &v
	}
	if facet := gjson.GetBytes(raw, "facet_data"); facet.Exists() {
		rec.FacetRaw = []byte(facet.Raw)
	} else {
		rec.FacetRaw = []byte("{}")
	}
	return rec, nil
}
