package jobdir

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// markerRe locates a "T2-HARNESS-<KIND>: " token anywhere in a line. KIND is
// captured so an unrecognized kind can be reported as a fatal protocol
// error rather than silently ignored.
var markerRe = regexp.MustCompile(`T2-HARNESS-([A-Z]+): `)

// markerMatch describes one recognized marker occurrence: the free-form
// text before it, the barrier it resolves to, the event enqueued for an
// EVENT marker (nil for ESYNC), and the residue after it that belongs to
// the next logical input line.
type markerMatch struct {
	before  string
	after   string
	barrier Barrier
	event   *RawEvent // non-nil only for an EVENT marker
}

// findMarker scans line for the first T2-HARNESS marker. It returns
// ok=false if none is present. A recognized-but-unknown marker kind, or a
// malformed payload for a known kind, is reported via err.
func findMarker(line, sep string) (m *markerMatch, ok bool, err error) {
	loc := markerRe.FindStringSubmatchIndex(line)
	if loc == nil {
		return nil, false, nil
	}

	before := line[:loc[0]]
	kind := line[loc[2]:loc[3]]
	rest := line[loc[1]:]

	switch kind {
	case "ESYNC":
		payload, after := splitToken(rest)
		parts := strings.Split(payload, sep)
		if len(parts) != 3 {
			return nil, false, fatalf(ErrMalformedMarkerPayload, "ESYNC payload %q does not split into pid%stid%sstream_id", payload, sep, sep)
		}
		pid, e1 := strconv.ParseInt(parts[0], 10, 64)
		tid, e2 := strconv.ParseInt(parts[1], 10, 64)
		sid, e3 := strconv.ParseInt(parts[2], 10, 64)
		if e1 != nil || e2 != nil || e3 != nil {
			return nil, false, fatalf(ErrMalformedMarkerPayload, "ESYNC payload %q is not three integers", payload)
		}
		return &markerMatch{
			before:  before,
			after:   after,
			barrier: Barrier{PID: pid, TID: tid, StreamID: sid},
		}, true, nil

	case "EVENT":
		dec := json.NewDecoder(strings.NewReader(rest))
		var raw json.RawMessage
		if decErr := dec.Decode(&raw); decErr != nil {
			return nil, false, fatalf(ErrMalformedMarkerPayload, "EVENT payload is not valid JSON: %v", decErr)
		}
		after := strings.TrimPrefix(rest[dec.InputOffset():], " ")
		rec, recErr := parseRawEvent(raw)
		if recErr != nil {
			return nil, false, fatalf(ErrMalformedMarkerPayload, "%v", recErr)
		}
		return &markerMatch{
			before:  before,
			after:   after,
			barrier: Barrier{PID: rec.PID, TID: rec.TID, StreamID: rec.StreamID},
			event:   rec,
		}, true, nil

	default:
		return nil, false, fatalf(ErrUnknownMarkerType, "unrecognized marker kind %q", kind)
	}
}

// splitToken returns the first space-delimited token of s and
// whatever follows the single separating space, matching the ESYNC
// payload's "<payload> <trailing text>" shape.
func splitToken(s string) (token, rest string) {
	if idx := strings.IndexByte(s, ' '); idx != -1 {
		return s[:idx], s[idx+1:]
	}
	return s, ""
}
