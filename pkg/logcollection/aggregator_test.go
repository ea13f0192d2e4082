package logcollection

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregator_PrefixesLines(t *testing.T) {
	var out bytes.Buffer
	a := NewAggregator(&out)
	a.AlignNames([]string{"web", "api", "agent-manager"})

	stdout, stderr := a.Writers("web", "run-1")
	_, _ = stdout.Write([]byte("ready on :3000\n"))
	_, _ = stderr.Write([]byte("warning\n"))

	assert.Equal(t,
		"web           | ready on :3000\n"+
			"web           ! warning\n",
		out.String())
}

func TestAggregator_Follow(t *testing.T) {
	a := NewAggregator(nil)
	lines, unsubscribe := a.Follow(8)
	defer unsubscribe()

	stdout, stderr := a.Writers("api", "run-2")
	_, _ = stdout.Write([]byte("started\n"))
	_, _ = stderr.Write([]byte("oops\n"))

	first := <-lines
	second := <-lines
	assert.Equal(t, LogLine{Process: "api", RunID: "run-2", Stream: StdoutStream, Line: "started", Time: first.Time}, first)
	assert.Equal(t, StderrStream, second.Stream)
	assert.Equal(t, "oops", second.Line)

	a.Close()
	_, ok := <-lines
	require.False(t, ok)
}
