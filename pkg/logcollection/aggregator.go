package logcollection

import (
	"fmt"
	"io"
	"sync"
)

// Aggregator merges the lines of all children into one prefixed stream
// and republishes them for live followers.
type Aggregator struct {
	mu          sync.Mutex
	out         io.Writer
	nameWidth   int
	broadcaster *Broadcaster[LogLine]
}

var _ LineSink = (*Aggregator)(nil)

// NewAggregator writes to out; a nil out only broadcasts
func NewAggregator(out io.Writer) *Aggregator {
	return &Aggregator{
		out:         out,
		broadcaster: NewBroadcaster[LogLine](),
	}
}

// AlignNames pads process names in the prefix to the longest of names
func (a *Aggregator) AlignNames(names []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, name := range names {
		if len(name) > a.nameWidth {
			a.nameWidth = len(name)
		}
	}
}

func (a *Aggregator) WriteLine(line LogLine) {
	a.mu.Lock()
	if a.out != nil {
		marker := "|"
		if line.Stream == StderrStream {
			marker = "!"
		}
		// a broken output must not stall child pipes
		_, _ = fmt.Fprintf(a.out, "%-*s %s %s\n", a.nameWidth, line.Process, marker, line.Line)
	}
	a.mu.Unlock()

	a.broadcaster.Publish(line)
}

// Writers builds the stdout and stderr writers for one run of a process
func (a *Aggregator) Writers(process, runID string) (stdout, stderr *LineWriter) {
	return NewLineWriter(process, runID, StdoutStream, a),
		NewLineWriter(process, runID, StderrStream, a)
}

// Follow subscribes to live lines
func (a *Aggregator) Follow(buffer int) (<-chan LogLine, func()) {
	return a.broadcaster.Subscribe(buffer)
}

// Close ends every follower stream
func (a *Aggregator) Close() {
	a.broadcaster.Close()
}
