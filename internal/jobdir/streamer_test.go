package jobdir

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func pollAll(t *testing.T, s *Streamer) []HarnessEvent {
	t.Helper()
	var all []HarnessEvent
	for i := 0; i < 50; i++ {
		batch, err := s.Poll(0)
		require.NoError(t, err)
		if len(batch) == 0 {
			break
		}
		all = append(all, batch...)
	}
	return all
}

func facetKeys(e HarnessEvent) []string {
	keys := make([]string, 0, len(e.FacetData))
	for k := range e.FacetData {
		keys = append(keys, k)
	}
	return keys
}

// TestMinimalHappyPath covers a start file, one TAP stdout line, a
// satisfied ESYNC barrier on both streams, one structured event shard, and
// a clean exit.
func TestMinimalHappyPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "events"), 0755))

	writeFile(t, dir, "start", "1000.5\n")
	writeFile(t, dir, "file", "t/basic.t\n")
	writeFile(t, dir, "stdout", "ok 1 - one\nT2-HARNESS-ESYNC: 10~20~1\n")
	writeFile(t, dir, "stderr", "T2-HARNESS-ESYNC: 10~20~1\n")
	writeFile(t, dir, "events/events-10~20.jsonl",
		`{"pid":10,"tid":20,"stream_id":1,"facet_data":{"assert":{"pass":1,"details":"one"}}}`+"\n")
	writeFile(t, dir, "exit", "0 1001.0\n")

	s, err := New(Config{RunID: "r1", JobID: "j1", JobRoot: dir, IPCSeparator: "~"})
	require.NoError(t, err)

	events := pollAll(t, s)
	require.Len(t, events, 4)

	assert.Contains(t, facetKeys(events[0]), "harness_job_start")
	assert.Equal(t, 1000.5, *events[0].Stamp)

	assert.Contains(t, facetKeys(events[1]), "info")
	assert.Contains(t, facetKeys(events[2]), "assert")
	assert.Equal(t, "j1", events[2].JobID)
	assert.Equal(t, "r1", events[2].RunID)

	assert.Contains(t, facetKeys(events[3]), "harness_job_exit")
	exitFacet := events[3].FacetData["harness_job_exit"].(map[string]interface{})
	assert.Equal(t, float64(0), exitFacet["code"])
	assert.Equal(t, 1001.0, *events[3].Stamp)
}

// TestInlineEventOnBothStreamsIsNotDuplicated covers the case where the same
// structured event is carried inline via a T2-HARNESS-EVENT marker on both
// stdout and stderr (the natural way an inline EVENT also forms its own
// barrier on each side): it must be released exactly once, with the second
// inline copy dropped at enqueue time so it neither re-emits nor keeps the
// event queue pending.
func TestInlineEventOnBothStreamsIsNotDuplicated(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "events"), 0755))

	inline := `T2-HARNESS-EVENT: {"pid":10,"tid":20,"stream_id":1,"facet_data":{"assert":{"pass":1,"details":"one"}}}` + "\n"
	writeFile(t, dir, "start", "1000.5\n")
	writeFile(t, dir, "file", "t/basic.t\n")
	writeFile(t, dir, "stdout", inline)
	writeFile(t, dir, "stderr", inline)
	writeFile(t, dir, "exit", "0 1001.0\n")

	s, err := New(Config{RunID: "r1", JobID: "j1", JobRoot: dir, IPCSeparator: "~"})
	require.NoError(t, err)

	events := pollAll(t, s)

	assertCount, exitCount := 0, 0
	for _, e := range events {
		if _, ok := e.FacetData["assert"]; ok {
			assertCount++
			assert.Equal(t, "j1", e.JobID)
			assert.Equal(t, "r1", e.RunID)
		}
		if _, ok := e.FacetData["harness_job_exit"]; ok {
			exitCount++
		}
	}
	assert.Equal(t, 1, assertCount, "inline event delivered on both streams must be emitted exactly once")
	assert.Equal(t, 1, exitCount, "the leftover duplicate must not leave the event queue permanently pending")
}

// TestMissingExitWithRunnerDeath covers B3: exit never appears, but the
// caller marks the runner exited, and the synthesized exit carries code -1
// with a null stamp.
func TestMissingExitWithRunnerDeath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "events"), 0755))

	writeFile(t, dir, "start", "500.0\n")
	writeFile(t, dir, "stdout", "T2-HARNESS-ESYNC: 1~1~1\n")
	writeFile(t, dir, "stderr", "T2-HARNESS-ESYNC: 1~1~1\n")
	writeFile(t, dir, "events/events-1~1.jsonl",
		`{"pid":1,"tid":1,"stream_id":1,"facet_data":{}}`+"\n")

	s, err := New(Config{RunID: "r2", JobID: "j2", JobRoot: dir, IPCSeparator: "~"})
	require.NoError(t, err)

	batch, err := s.Poll(0)
	require.NoError(t, err)
	require.NotEmpty(t, batch)

	s.SetRunnerExited()
	events := pollAll(t, s)
	batch = append(batch, events...)

	last := batch[len(batch)-1]
	exitFacet := last.FacetData["harness_job_exit"].(map[string]interface{})
	assert.Equal(t, float64(-1), exitFacet["code"])
	assert.Nil(t, last.Stamp)
}

// TestFileValueFieldDefaultsUnknown covers B4.
func TestFileValueFieldDefaultsUnknown(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "events"), 0755))
	writeFile(t, dir, "start", "1.0\n")
	writeFile(t, dir, "exit", "0 2.0\n")

	s, err := New(Config{RunID: "r3", JobID: "j3", JobRoot: dir})
	require.NoError(t, err)

	events := pollAll(t, s)
	require.NotEmpty(t, events)
	startFacet := events[0].FacetData["harness_job_start"].(map[string]interface{})
	fileInfo := startFacet["file"].(map[string]interface{})
	assert.Equal(t, "UNKNOWN", fileInfo["relative"])
}

// TestCommentGroupCoalescing verifies that consecutive same-indentation
// comment lines coalesce into one diag event, flushing on indentation
// change.
func TestCommentGroupCoalescing(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "events"), 0755))
	writeFile(t, dir, "start", "0.0\n")
	writeFile(t, dir, "stdout",
		"# group one line a\n# group one line b\n  # group two\nok 1\n")
	writeFile(t, dir, "stderr", "")
	writeFile(t, dir, "exit", "0 1.0\n")

	s, err := New(Config{RunID: "r4", JobID: "j4", JobRoot: dir})
	require.NoError(t, err)

	events := pollAll(t, s)

	var diagCount, infoCount int
	for _, e := range events {
		if d, ok := e.FacetData["diag"]; ok {
			diagCount++
			details := d.(map[string]interface{})["details"].(string)
			assert.NotEmpty(t, details)
		}
		if _, ok := e.FacetData["info"]; ok {
			infoCount++
		}
	}
	assert.Equal(t, 2, diagCount)
	assert.Equal(t, 1, infoCount)
}

// TestOrderingViolationIsFatal covers the FatalError path when a barrier's
// stream_id doesn't match the event actually queued on that shard.
func TestOrderingViolationIsFatal(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "events"), 0755))
	writeFile(t, dir, "start", "0.0\n")
	writeFile(t, dir, "stdout", "T2-HARNESS-ESYNC: 1~1~1\n")
	writeFile(t, dir, "stderr", "T2-HARNESS-ESYNC: 1~1~1\n")
	writeFile(t, dir, "events/events-1~1.jsonl",
		`{"pid":1,"tid":1,"stream_id":2,"facet_data":{}}`+"\n")

	s, err := New(Config{RunID: "r5", JobID: "j5", JobRoot: dir, IPCSeparator: "~"})
	require.NoError(t, err)

	_, err = s.Poll(0)
	require.Error(t, err)
	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, ErrOrderingViolation, fatal.Kind)
}

// TestPollMaxRespectsCapAndDeterminism verifies that many small polls
// and one big poll yield the same sequence, and no batch exceeds max.
func TestPollMaxRespectsCapAndDeterminism(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "events"), 0755))
	writeFile(t, dir, "start", "0.0\n")
	var stdout string
	for i := 0; i < 5; i++ {
		stdout += fmt.Sprintf("ok %d - line\n", i)
	}
	writeFile(t, dir, "stdout", stdout)
	writeFile(t, dir, "stderr", "")
	writeFile(t, dir, "exit", "0 1.0\n")

	s1, err := New(Config{RunID: "r6", JobID: "j6", JobRoot: dir})
	require.NoError(t, err)
	full := pollAll(t, s1)

	s2, err := New(Config{RunID: "r6", JobID: "j6", JobRoot: dir})
	require.NoError(t, err)
	var chunked []HarnessEvent
	for i := 0; i < 50; i++ {
		batch, err := s2.Poll(1)
		require.NoError(t, err)
		require.LessOrEqual(t, len(batch), 1)
		if len(batch) == 0 {
			break
		}
		chunked = append(chunked, batch...)
	}

	require.Equal(t, len(full), len(chunked))
	for i := range full {
		assert.Equal(t, facetKeys(full[i]), facetKeys(chunked[i]))
	}
}

// TestConfigRequiresFields covers the ConfigError path.
func TestConfigRequiresFields(t *testing.T) {
	_, err := New(Config{JobID: "j", JobRoot: "/tmp"})
	require.Error(t, err)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "run_id", cfgErr.Field)
}

// TestUnknownFileKey covers Streamer.File's error path for an out-of-range
// FileKind.
func TestUnknownFileKey(t *testing.T) {
	dir := t.TempDir()
	s, err := New(Config{RunID: "r7", JobID: "j7", JobRoot: dir})
	require.NoError(t, err)

	_, err = s.File(FileKind(99))
	require.Error(t, err)
	var keyErr *UnknownFileKeyError
	require.ErrorAs(t, err, &keyErr)
}

// TestStreamerNotYetStarted covers the pre-start gate: nothing is emitted
// until the start file appears.
func TestStreamerNotYetStarted(t *testing.T) {
	dir := t.TempDir()
	s, err := New(Config{RunID: "r8", JobID: "j8", JobRoot: dir})
	require.NoError(t, err)

	batch, err := s.Poll(0)
	require.NoError(t, err)
	assert.Empty(t, batch)

	writeFile(t, dir, "start", "42.0\n")
	writeFile(t, dir, "exit", "0 43.0\n")
	events := pollAll(t, s)
	require.NotEmpty(t, events)
	assert.Contains(t, facetKeys(events[0]), "harness_job_start")
}
