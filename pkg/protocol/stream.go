package protocol

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"

	fx "github.com/robotalks/guard.go/pkg/framework"
)

// DefaultBacklog is the default number of buffered inbound lines.
const DefaultBacklog = 64

// LineReader takes complete inbound lines without blocking.
type LineReader interface {
	// ReadLine returns the next line if available.
	ReadLine() (string, bool)
}

// LineWriter writes a single line.
type LineWriter interface {
	WriteLine(string) error
}

// LineReadWriter combines LineReader and LineWriter.
type LineReadWriter interface {
	LineReader
	LineWriter
}

// Stream reads lines in the background and buffers them so tasks can
// take them without blocking.
type Stream struct {
	ReadWriter io.ReadWriter
	MaxLine    int
	Backlog    int
	// OnLineError is called when an inbound line is discarded.
	OnLineError func(error)
	// OnLineDropped is called when the oldest buffered line is dropped.
	OnLineDropped func(string)

	lines     chan string
	initOnce  sync.Once
	writeLock sync.Mutex
	dropped   atomic.Uint64
}

// NewStream creates a Stream.
func NewStream(rw io.ReadWriter) *Stream {
	return &Stream{ReadWriter: rw, Backlog: DefaultBacklog}
}

// Name implements Named.
func (s *Stream) Name() string {
	return "serial-stream"
}

// ReadLine implements LineReader.
func (s *Stream) ReadLine() (string, bool) {
	select {
	case line := <-s.queue():
		return line, true
	default:
		return "", false
	}
}

// WriteLine implements LineWriter.
func (s *Stream) WriteLine(line string) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()
	glog.V(2).Infof("TX %q", line)
	_, err := io.WriteString(s.ReadWriter, line+"\n")
	return err
}

// Dropped returns the number of lines dropped because the backlog was full.
func (s *Stream) Dropped() uint64 {
	return s.dropped.Load()
}

// Run implements Runnable. If ReadWriter is an io.Closer, it's closed
// when ctx is canceled to unblock pending reads.
func (s *Stream) Run(ctx context.Context) error {
	s.queue()
	if closer, ok := s.ReadWriter.(io.Closer); ok {
		return fx.RunWithContextCloser(ctx, closer, s.readLoop)
	}
	return fx.RunWithContext(ctx, s.readLoop)
}

func (s *Stream) queue() chan string {
	s.initOnce.Do(func() {
		backlog := s.Backlog
		if backlog <= 0 {
			backlog = DefaultBacklog
		}
		s.lines = make(chan string, backlog)
	})
	return s.lines
}

func (s *Stream) readLoop() error {
	parser := LineParser{MaxLen: s.MaxLine}
	buf := make([]byte, 256)
	for {
		n, err := s.ReadWriter.Read(buf)
		for _, b := range buf[:n] {
			pr := parser.Parse(b)
			if pr.Err != nil {
				glog.Warningf("serial: %v", pr.Err)
				if fn := s.OnLineError; fn != nil {
					fn(pr.Err)
				}
			}
			if pr.Complete {
				s.push(pr.Line)
			}
		}
		if err != nil {
			return err
		}
	}
}

func (s *Stream) push(line string) {
	glog.V(2).Infof("RX %q", line)
	lines := s.queue()
	for {
		select {
		case lines <- line:
			return
		default:
		}
		select {
		case old := <-lines:
			s.dropped.Add(1)
			glog.Warningf("serial: backlog full, dropped %q", old)
			if fn := s.OnLineDropped; fn != nil {
				fn(old)
			}
		default:
		}
	}
}
