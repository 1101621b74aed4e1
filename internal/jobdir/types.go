// Package jobdir re-synchronizes the three streams a running test-harness
// job writes into its output directory (stdout, stderr, and an out-of-band
// structured events stream) into a single ordered sequence of harness
// events, while the producing process is still writing them.
package jobdir

// FileKind enumerates the closed set of files this package knows how to
// open under a job_root. It is a closed enum on purpose: there is no open-extension requirement, so a
// tagged variant plus a small constructor table is enough.
type FileKind int

const (
	FileStart FileKind = iota
	FileExit
	FileScript
	FileStdout
	FileStderr
)

func (k FileKind) String() string {
	switch k {
	case FileStart:
		return "start"
	case FileExit:
		return "exit"
	case FileScript:
		return "file"
	case FileStdout:
		return "stdout"
	case FileStderr:
		return "stderr"
	default:
		return "unknown"
	}
}

// DefaultSeparator is the IPC separator used to join pid/tid/stream_id in
// ESYNC payloads and shard filenames when Config.IPCSeparator is unset. It
// is a configuration default, not process-wide global state.
const DefaultSeparator = "\x1f"

// StreamTag identifies which of the two text streams a line or synthesized
// diagnostic event came from.
type StreamTag string

const (
	TagStdout StreamTag = "STDOUT"
	TagStderr StreamTag = "STDERR"
)

// LineParser is the opaque, pure `parse_stdout_tap`/`parse_stderr_tap`
// collaborator: given one stripped output line it
// returns the raw JSON facet_data object to attach to the resulting event,
// or ok=false to let the poller synthesize a plain "info" facet instead.
// This package never interprets the bytes it returns beyond locating
// facet_data.about.uuid.
type LineParser func(line string) (facetRaw []byte, ok bool)

func passthroughParser(string) ([]byte, bool) { return nil, false }

// Barrier identifies an ESYNC synchronization point: the next structured
// event on shard (PID,TID) is numbered StreamID.
type Barrier struct {
	PID      int64
	TID      int64
	StreamID int64
}

// HarnessEvent is the package's sole output shape.
type HarnessEvent struct {
	EventID   string                 `json:"event_id"`
	JobID     string                 `json:"job_id"`
	RunID     string                 `json:"run_id"`
	Stamp     *float64               `json:"stamp"`
	FacetData map[string]interface{} `json:"facet_data"`
}

// eventSink receives harness events as they become ready, in emission
// order. The pollers and the synchronizer are threaded one of these rather
// than returning and re-merging slices (the lifecycle gate returns its two
// synthesized events to the Streamer directly), the same line-at-a-time delivery style
// internal/events.OutputParser uses for agent output instead of buffering
// a whole pass before returning it.
type eventSink func(HarnessEvent)
