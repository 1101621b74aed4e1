package jobdir

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// TailReader returns only complete, newline-terminated lines from a file
// that may still be growing, unless the producer is known to have
// terminated, in which case a trailing partial line is accepted as-is.
//
// There's no off-the-shelf tail library in this dependency tree, so this is
// built directly on os.File + bufio. A fresh
// bufio.Reader is created for every read attempt, seeked to the reader's
// own committed offset, rather than one long-lived buffered reader: that
// sidesteps needing to track or clear a persistent EOF flag on the handle,
// since there is none to clear — each attempt starts over from the last
// confirmed-safe position.
type TailReader struct {
	path   string
	file   *os.File
	opened bool
	offset int64
}

// NewTailReader returns a reader positioned at the start of path. The file
// is not opened until the first read attempt.
func NewTailReader(path string) *TailReader {
	return &TailReader{path: path}
}

func (t *TailReader) ensureOpen() error {
	if t.opened {
		return nil
	}
	f, err := os.Open(t.path)
	if err != nil {
		return err
	}
	t.file = f
	t.opened = true
	return nil
}

// Close releases the underlying file handle, if one was opened.
func (t *TailReader) Close() error {
	if t.file == nil {
		return nil
	}
	return t.file.Close()
}

// NextLine attempts to read one more line. It returns ok=false (with no
// error) when the file doesn't exist yet or no complete line is available
// right now — both are recoverable, "try again on the next poll"
// conditions.
func (t *TailReader) NextLine(producerDone bool) (line string, ok bool, err error) {
	if err := t.ensureOpen(); err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}

	// Record the pre-read offset by seeking there explicitly;
	// the previous call never advanced t.offset past a line it didn't
	// accept, so this is always the last confirmed-safe position.
	if _, err := t.file.Seek(t.offset, io.SeekStart); err != nil {
		return "", false, err
	}

	r := bufio.NewReaderSize(t.file, 64*1024)
	raw, readErr := r.ReadBytes('\n')
	if readErr != nil && readErr != io.EOF {
		return "", false, readErr
	}
	if len(raw) == 0 {
		return "", false, nil
	}

	terminated := raw[len(raw)-1] == '\n'
	if !terminated && !producerDone {
		// Equivalent to "seek back to p": t.offset is left untouched, so
		// the next attempt re-reads from the same confirmed-safe point.
		return "", false, nil
	}

	t.offset += int64(len(raw))
	return strings.TrimRight(string(raw), "\n"), true, nil
}
