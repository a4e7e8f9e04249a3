package logsink

import (
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Sink writes formatted log lines. Construction selects one of the
// two modes of spec.md §4.6: NewFileSink opens, appends, and closes
// the file around each write; NewDescriptorSink keeps a long-lived
// file descriptor open and serializes asynchronous appends through an
// internal writer goroutine. Both are best-effort — a write failure
// is logged at debug level via the ambient diagnostic logger and
// never propagated to the forwarding path.
type Sink struct {
	diag *logrus.Logger

	mode sinkMode

	// per-write-file mode
	path string

	// persistent-descriptor mode
	lines  chan string
	done   chan struct{}
	closed sync.Once
}

type sinkMode int

const (
	modeFile sinkMode = iota
	modeDescriptor
)

// NewFileSink creates a Sink that opens path in append mode, writes
// one record, and closes it again for every Write call.
func NewFileSink(path string, diag *logrus.Logger) *Sink {
	return &Sink{diag: diag, mode: modeFile, path: path}
}

// NewDescriptorSink creates a Sink around an already-opened, seeked-to-
// end file descriptor. Writes are queued to a single writer goroutine
// so callers never block on disk I/O.
func NewDescriptorSink(f *os.File, diag *logrus.Logger) *Sink {
	s := &Sink{
		diag:  diag,
		mode:  modeDescriptor,
		lines: make(chan string, 256),
		done:  make(chan struct{}),
	}
	go s.runDescriptorWriter(f)
	return s
}

func (s *Sink) runDescriptorWriter(f *os.File) {
	defer close(s.done)
	defer f.Close()
	for line := range s.lines {
		if _, err := f.WriteString(line); err != nil {
			s.logFailure(err)
		}
	}
}

// Write emits one formatted Record line, best-effort.
func (s *Sink) Write(r Record) {
	line := formatLine(r.String(), time.Now())

	switch s.mode {
	case modeDescriptor:
		select {
		case s.lines <- line:
		default:
			// Queue full: drop rather than block the forwarding path.
			s.logFailure(errQueueFull)
		}
	default:
		s.writeFile(line)
	}
}

func (s *Sink) writeFile(line string) {
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		s.logFailure(err)
		return
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		s.logFailure(err)
	}
}

func (s *Sink) logFailure(err error) {
	if s.diag == nil {
		return
	}
	s.diag.WithError(err).Debug("logsink: write failed, dropping record")
}

// Close stops the descriptor-mode writer goroutine, if any, and waits
// for it to drain. Safe to call multiple times and on file-mode sinks.
func (s *Sink) Close() {
	s.closed.Do(func() {
		if s.mode == modeDescriptor {
			close(s.lines)
			<-s.done
		}
	})
}

var errQueueFull = sinkError("logsink: descriptor write queue full")

type sinkError string

func (e sinkError) Error() string { return string(e) }
