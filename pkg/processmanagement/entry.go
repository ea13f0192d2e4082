package processmanagement

import (
	"sync"
	"time"

	"github.com/core-tools/hsu-procsup-go/pkg/logcollection"
	"github.com/core-tools/hsu-procsup-go/pkg/managedprocess"
	"github.com/core-tools/hsu-procsup-go/pkg/processmanagement/processstatemachine"
)

// processEntry is the supervisor's handle for one registered process
type processEntry struct {
	spec         managedprocess.ProcessSpec
	stateMachine *processstatemachine.ProcessStateMachine

	// opMutex serializes lifecycle operations: start, stop, exit handling,
	// scheduled restarts and removal. Never taken while holding mutex.
	opMutex sync.Mutex

	// guarded by opMutex
	backoff       *restartBackoff
	stopRequested bool

	// mutex guards the runtime fields below and is only held briefly
	mutex             sync.RWMutex
	child             *managedprocess.Child
	stdout            *logcollection.LineWriter
	stderr            *logcollection.LineWriter
	runID             string
	startedAt         time.Time
	lastExitCode      *int
	lastSignal        string
	restartCount      int
	lastTransition    time.Time
	lastError         string
	restartTimer      *time.Timer
	restartGeneration uint64
	nextRestartAt     time.Time
	nextRestartDelay  time.Duration
	removed           bool
}

func (e *processEntry) status() ProcessStatus {
	state := e.stateMachine.GetCurrentState()

	e.mutex.RLock()
	defer e.mutex.RUnlock()

	status := ProcessStatus{
		Name:             e.spec.Name,
		State:            state,
		RunID:            e.runID,
		LastSignal:       e.lastSignal,
		RestartCount:     e.restartCount,
		LastTransition:   e.lastTransition,
		RestartScheduled: e.restartTimer != nil,
		LastError:        e.lastError,
		AutoRestart:      e.spec.AutoRestart,
		Command:          e.spec.CommandLine(),
	}
	if e.child != nil {
		status.PID = e.child.PID()
		status.StartedAt = e.startedAt
	}
	if e.lastExitCode != nil {
		code := *e.lastExitCode
		status.LastExitCode = &code
	}
	if e.restartTimer != nil {
		status.NextRestartAt = e.nextRestartAt
		status.NextRestartDelay = e.nextRestartDelay
	}
	return status
}

func (e *processEntry) currentChild() *managedprocess.Child {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return e.child
}

func (e *processEntry) restartPending() bool {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return e.restartTimer != nil
}

func (e *processEntry) isRemoved() bool {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return e.removed
}

// attachChild records a freshly spawned run
func (e *processEntry) attachChild(child *managedprocess.Child, stdout, stderr *logcollection.LineWriter) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.child = child
	e.stdout = stdout
	e.stderr = stderr
	e.runID = child.RunID()
	e.startedAt = child.StartedAt()
	e.lastError = ""
}

// detachChild records the exit of child. It returns false when child is no
// longer the current run, meaning another path already finalized it.
func (e *processEntry) detachChild(child *managedprocess.Child, result managedprocess.ExitResult) bool {
	e.mutex.Lock()
	if e.child != child {
		e.mutex.Unlock()
		return false
	}

	e.child = nil
	if result.Code >= 0 {
		code := result.Code
		e.lastExitCode = &code
	} else {
		e.lastExitCode = nil
	}
	e.lastSignal = result.Signal
	if result.Err != nil {
		e.lastError = result.Err.Error()
	}

	stdout, stderr := e.stdout, e.stderr
	e.stdout, e.stderr = nil, nil
	e.mutex.Unlock()

	closeWriter(stdout)
	closeWriter(stderr)
	return true
}

func closeWriter(w *logcollection.LineWriter) {
	if w != nil {
		_ = w.Close()
	}
}
