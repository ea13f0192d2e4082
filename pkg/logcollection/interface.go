package logcollection

import (
	"time"
)

// StreamType identifies the source stream
type StreamType string

const (
	StdoutStream StreamType = "stdout"
	StderrStream StreamType = "stderr"
)

// LogLine is one complete line emitted by a supervised child
type LogLine struct {
	Process string     `json:"process"`
	RunID   string     `json:"run_id,omitempty"`
	Stream  StreamType `json:"stream"`
	Line    string     `json:"line"`
	Time    time.Time  `json:"time"`
}

// LineSink receives complete lines from LineWriters
type LineSink interface {
	WriteLine(line LogLine)
}

// LineSinkFunc adapts a function to LineSink
type LineSinkFunc func(line LogLine)

func (f LineSinkFunc) WriteLine(line LogLine) {
	f(line)
}
