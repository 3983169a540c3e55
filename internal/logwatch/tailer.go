package logwatch

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Tailer reads complete lines appended to a file since the last call.
// It is not safe for concurrent use.
type Tailer struct {
	path     string
	offset   int64
	lastSize int64
	started  bool
	fromEnd  bool
}

// NewTailer starts at the current end of the file when fromEnd is set, so
// history written before startup is not replayed.
func NewTailer(path string, fromEnd bool) *Tailer {
	return &Tailer{path: path, fromEnd: fromEnd}
}

func (t *Tailer) Offset() int64 { return t.offset }

// ReadNew calls fn for each complete line past the saved offset. A trailing
// line without a newline is left for the next call. It reports whether the
// file shrank since the last call, in which case reading restarted at 0.
func (t *Tailer) ReadNew(fn func(line string)) (truncated bool, err error) {
	f, err := os.Open(t.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !t.started {
			// a file created later holds only new lines
			t.started = true
		}
		return false, fmt.Errorf("open %s: %w", t.path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", t.path, err)
	}
	size := st.Size()

	if !t.started {
		t.started = true
		if t.fromEnd {
			t.offset = size
		}
	}
	if size < t.lastSize || size < t.offset {
		t.offset = 0
		truncated = true
	}
	t.lastSize = size

	if t.offset == size {
		return truncated, nil
	}
	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return truncated, fmt.Errorf("seek %s: %w", t.path, err)
	}

	r := bufio.NewReader(f)
	for {
		line, err := r.ReadString('\n')
		if errors.Is(err, io.EOF) {
			return truncated, nil
		}
		if err != nil {
			return truncated, fmt.Errorf("read %s: %w", t.path, err)
		}
		t.offset += int64(len(line))
		fn(strings.TrimRight(line, "\r\n"))
	}
}
