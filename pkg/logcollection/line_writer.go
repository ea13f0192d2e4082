package logcollection

import (
	"bytes"
	"sync"
	"time"
	"unicode/utf8"
)

// MaxLineLength caps a buffered partial line; longer output is emitted in chunks
const MaxLineLength = 64 * 1024

// LineWriter is an io.Writer that splits a child stream into lines
type LineWriter struct {
	process string
	runID   string
	stream  StreamType
	sink    LineSink

	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func NewLineWriter(process, runID string, stream StreamType, sink LineSink) *LineWriter {
	return &LineWriter{
		process: process,
		runID:   runID,
		stream:  stream,
		sink:    sink,
	}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		// late output from orphaned descendants is discarded
		return len(p), nil
	}

	w.buf.Write(p)
	for {
		data := w.buf.Bytes()
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			if len(data) >= MaxLineLength {
				cut := chunkBoundary(data)
				w.emit(string(data[:cut]))
				w.buf.Next(cut)
				continue
			}
			break
		}
		w.emit(string(bytes.TrimSuffix(data[:i], []byte{'\r'})))
		w.buf.Next(i + 1)
	}

	return len(p), nil
}

// chunkBoundary returns where to cut an over-long line so the cut does not
// split a UTF-8 sequence. data must hold at least MaxLineLength bytes.
func chunkBoundary(data []byte) int {
	for cut := MaxLineLength; cut > MaxLineLength-utf8.UTFMax; cut-- {
		if utf8.RuneStart(data[cut]) {
			return cut
		}
	}
	// not valid UTF-8 around the cut
	return MaxLineLength
}

// Close flushes a trailing partial line
func (w *LineWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
	return nil
}

func (w *LineWriter) emit(line string) {
	if w.sink == nil {
		return
	}
	w.sink.WriteLine(LogLine{
		Process: w.process,
		RunID:   w.runID,
		Stream:  w.stream,
		Line:    line,
		Time:    time.Now(),
	})
}
