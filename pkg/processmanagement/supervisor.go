package processmanagement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/core-tools/hsu-procsup-go/pkg/errors"
	"github.com/core-tools/hsu-procsup-go/pkg/logcollection"
	"github.com/core-tools/hsu-procsup-go/pkg/logging"
	"github.com/core-tools/hsu-procsup-go/pkg/managedprocess"
	"github.com/core-tools/hsu-procsup-go/pkg/processmanagement/processstatemachine"

	"github.com/google/uuid"
)

type ProcessRegistry interface {
	Register(spec managedprocess.ProcessSpec) error
	Remove(name string) error
	Names() []string
}

type ProcessLifecycle interface {
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
	Restart(ctx context.Context, name string) error
	Delete(ctx context.Context, name string) error
	StartAll(ctx context.Context) BulkResult
	StopAll(ctx context.Context) BulkResult
	RestartAll(ctx context.Context) BulkResult
	StartNames(ctx context.Context, names []string) BulkResult
	StopNames(ctx context.Context, names []string) BulkResult
	RestartNames(ctx context.Context, names []string) BulkResult
	Shutdown(ctx context.Context) BulkResult
}

type ProcessStatusReader interface {
	Status(name string) (ProcessStatus, error)
	StatusAll() []ProcessStatus
	Subscribe() (<-chan Event, func())
	GetSupervisorState() SupervisorState
}

// ProcessSupervisor is the full surface consumed by the control API
type ProcessSupervisor interface {
	ProcessRegistry
	ProcessLifecycle
	ProcessStatusReader
}

// OutputProvider builds the stdout/stderr writers of one run
type OutputProvider interface {
	Writers(process, runID string) (stdout, stderr *logcollection.LineWriter)
}

const (
	DefaultGracefulTimeout = 10 * time.Second
	DefaultKillTimeout     = 5 * time.Second
	DefaultOutputWaitDelay = 2 * time.Second
)

type SupervisorOptions struct {
	GracefulTimeout time.Duration
	KillTimeout     time.Duration
	Restart         RestartOptions

	// OutputWaitDelay bounds output copying after a child exits while descendants keep its pipes open
	OutputWaitDelay time.Duration

	// Output receives child stdout/stderr; nil discards it
	Output OutputProvider
}

func (o SupervisorOptions) withDefaults() SupervisorOptions {
	if o.GracefulTimeout <= 0 {
		o.GracefulTimeout = DefaultGracefulTimeout
	}
	if o.KillTimeout <= 0 {
		o.KillTimeout = DefaultKillTimeout
	}
	if o.OutputWaitDelay <= 0 {
		o.OutputWaitDelay = DefaultOutputWaitDelay
	}
	o.Restart = o.Restart.withDefaults()
	return o
}

// SupervisorState represents the current state of the supervisor
type SupervisorState string

const (
	// SupervisorStateRunning accepts registrations and lifecycle operations
	SupervisorStateRunning SupervisorState = "running"

	// SupervisorStateStopping means Shutdown is in progress
	SupervisorStateStopping SupervisorState = "stopping"

	// SupervisorStateStopped means Shutdown finished
	SupervisorStateStopped SupervisorState = "stopped"
)

// Supervisor owns the handle table and coordinates every lifecycle transition
type Supervisor struct {
	options SupervisorOptions
	entries map[string]*processEntry
	order   []string
	state   SupervisorState
	mutex   sync.RWMutex
	events  *logcollection.Broadcaster[Event]
	logger  logging.Logger
}

var _ ProcessSupervisor = (*Supervisor)(nil)

func NewSupervisor(options SupervisorOptions, logger logging.Logger) *Supervisor {
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	return &Supervisor{
		options: options.withDefaults(),
		entries: make(map[string]*processEntry),
		state:   SupervisorStateRunning,
		events:  logcollection.NewBroadcaster[Event](),
		logger:  logger,
	}
}

func (s *Supervisor) Register(spec managedprocess.ProcessSpec) error {
	if err := managedprocess.ValidateProcessSpec(spec); err != nil {
		return err
	}

	spec = spec.Clone()

	s.mutex.Lock()
	if s.state != SupervisorStateRunning {
		state := s.state
		s.mutex.Unlock()
		return errors.NewValidationError(
			fmt.Sprintf("supervisor must be running to register processes, current state: %s", state),
			nil,
		).WithContext("name", spec.Name)
	}
	if _, exists := s.entries[spec.Name]; exists {
		s.mutex.Unlock()
		return errors.NewDuplicateNameError("process already registered", nil).WithContext("name", spec.Name)
	}

	entry := s.newEntry(spec)
	s.entries[spec.Name] = entry
	s.order = append(s.order, spec.Name)
	s.mutex.Unlock()

	if spec.Watch {
		s.logger.Warnf("File watching is not supported, ignoring watch flag, name: %s", spec.Name)
	}

	s.logger.Infof("Registered process, name: %s, command: %s, auto_restart: %t", spec.Name, spec.CommandLine(), spec.AutoRestart)
	s.publish(Event{
		Type:      EventRegistered,
		Process:   spec.Name,
		To:        ProcessStateStopped,
		Operation: OperationRegister,
		Time:      time.Now(),
	})
	return nil
}

func (s *Supervisor) newEntry(spec managedprocess.ProcessSpec) *processEntry {
	entry := &processEntry{
		spec:           spec,
		backoff:        newRestartBackoff(s.options.Restart),
		lastTransition: time.Now(),
	}

	entry.stateMachine = processstatemachine.NewProcessStateMachine(spec.Name, s.logger,
		func(transition processstatemachine.ProcessStateTransition) {
			s.onTransition(entry, transition)
		})

	return entry
}

func (s *Supervisor) onTransition(entry *processEntry, transition processstatemachine.ProcessStateTransition) {
	entry.mutex.Lock()
	entry.lastTransition = transition.Timestamp
	runID := entry.runID
	var exitCode *int
	if entry.lastExitCode != nil {
		code := *entry.lastExitCode
		exitCode = &code
	}
	signal := entry.lastSignal
	entry.mutex.Unlock()

	event := Event{
		Type:      EventStateChanged,
		Process:   transition.ProcessName,
		RunID:     runID,
		From:      transition.From,
		To:        transition.To,
		Operation: transition.Operation,
		Time:      transition.Timestamp,
	}
	if transition.Operation == OperationExit || transition.To == ProcessStateStopped {
		event.ExitCode = exitCode
		event.Signal = signal
	}
	if transition.Error != nil {
		event.Error = transition.Error.Error()
	}
	s.publish(event)
}

func (s *Supervisor) publish(event Event) {
	s.events.Publish(event)
}

// Subscribe returns a stream of events and a function that ends the subscription.
// A subscriber that falls far behind loses its oldest events.
func (s *Supervisor) Subscribe() (<-chan Event, func()) {
	return s.events.Subscribe(logcollection.DefaultSubscriberBuffer)
}

func (s *Supervisor) Start(ctx context.Context, name string) error {
	entry, state, exists := s.getEntryAndSupervisorState(name)
	if !exists {
		return errors.NewNotFoundError("process not found", nil).WithContext("name", name)
	}
	if state != SupervisorStateRunning {
		return errors.NewValidationError(
			fmt.Sprintf("supervisor must be running to start processes, current state: %s", state),
			nil,
		).WithContext("name", name)
	}
	if err := ctx.Err(); err != nil {
		return errors.NewCancelledError("start was cancelled", err).WithContext("name", name)
	}

	entry.opMutex.Lock()
	defer entry.opMutex.Unlock()

	if entry.isRemoved() {
		return errors.NewNotFoundError("process not found", nil).WithContext("name", name)
	}

	s.logger.Infof("Starting process, name: %s", name)

	if err := entry.stateMachine.ValidateOperation(OperationStart); err != nil {
		return err
	}
	if entry.restartPending() {
		return errors.NewAlreadyRunningError("process has a restart pending", nil).
			WithContext("name", name).
			WithContext("current_state", string(entry.stateMachine.GetCurrentState()))
	}

	entry.stopRequested = false
	return s.spawnLocked(entry, OperationStart)
}

// spawnLocked moves the entry through Starting and launches a child. Requires opMutex.
func (s *Supervisor) spawnLocked(entry *processEntry, operation string) error {
	name := entry.spec.Name

	if err := entry.stateMachine.Transition(ProcessStateStarting, operation, nil); err != nil {
		return err
	}

	runID := uuid.NewString()
	spawnOptions := managedprocess.SpawnOptions{
		WaitDelay: s.options.OutputWaitDelay,
		RunID:     runID,
		Logger:    s.logger,
	}

	var stdout, stderr *logcollection.LineWriter
	if s.options.Output != nil {
		stdout, stderr = s.options.Output.Writers(name, runID)
		if stdout != nil {
			spawnOptions.Stdout = stdout
		}
		if stderr != nil {
			spawnOptions.Stderr = stderr
		}
	}

	child, err := managedprocess.Spawn(entry.spec, spawnOptions)
	if err != nil {
		closeWriter(stdout)
		closeWriter(stderr)

		entry.mutex.Lock()
		entry.lastError = err.Error()
		entry.mutex.Unlock()

		s.logger.Errorf("Failed to spawn process, name: %s, operation: %s, error: %v", name, operation, err)
		s.publish(Event{
			Type:      EventSpawnFailed,
			Process:   name,
			Operation: operation,
			Error:     err.Error(),
			Time:      time.Now(),
		})

		if operation == OperationAutoRestart {
			if transitionErr := entry.stateMachine.Transition(ProcessStateCrashed, operation, err); transitionErr != nil {
				s.logger.Errorf("Failed to transition process to crashed state, name: %s, error: %v", name, transitionErr)
			}
			// spawn failures never advance the backoff
			if s.GetSupervisorState() == SupervisorStateRunning {
				s.scheduleRestartLocked(entry, entry.backoff.Current())
			}
			return err
		}

		if transitionErr := entry.stateMachine.Transition(ProcessStateStopped, operation, err); transitionErr != nil {
			s.logger.Errorf("Failed to transition process to stopped state, name: %s, error: %v", name, transitionErr)
		}
		return err
	}

	entry.attachChild(child, stdout, stderr)

	if err := entry.stateMachine.Transition(ProcessStateRunning, operation, nil); err != nil {
		s.logger.Errorf("Failed to transition process to running state, name: %s, error: %v", name, err)
	}

	go s.monitor(entry, child)

	s.logger.Infof("Process started, name: %s, PID: %d, run: %s", name, child.PID(), child.RunID())
	return nil
}

// monitor waits for one child and hands its exit to the coordinator
func (s *Supervisor) monitor(entry *processEntry, child *managedprocess.Child) {
	<-child.Done()
	result := child.Exit()

	entry.opMutex.Lock()
	defer entry.opMutex.Unlock()

	s.handleExitLocked(entry, child, result)
}

func (s *Supervisor) handleExitLocked(entry *processEntry, child *managedprocess.Child, result managedprocess.ExitResult) {
	name := entry.spec.Name

	if !entry.detachChild(child, result) {
		// Stop already observed and recorded this exit
		return
	}

	uptime := result.ExitedAt.Sub(child.StartedAt())
	state := entry.stateMachine.GetCurrentState()

	switch {
	case state == ProcessStateStopping || entry.stopRequested:
		s.logger.Infof("Process exited after stop request, name: %s, %s", name, result)
		if err := entry.stateMachine.Transition(ProcessStateStopped, OperationStop, nil); err != nil {
			s.logger.Errorf("Failed to transition process to stopped state, name: %s, error: %v", name, err)
		}

	case result.Success():
		s.logger.Infof("Process exited on its own, name: %s, uptime: %v", name, uptime)
		if err := entry.stateMachine.Transition(ProcessStateStopped, OperationExit, nil); err != nil {
			s.logger.Errorf("Failed to transition process to stopped state, name: %s, error: %v", name, err)
		}

	default:
		exitErr := errors.NewProcessError("process exited unexpectedly", result.Err).
			WithContext("name", name).
			WithContext("exit_code", result.Code)
		if result.Signal != "" {
			exitErr = exitErr.WithContext("signal", result.Signal)
		}

		entry.mutex.Lock()
		entry.lastError = exitErr.Error()
		entry.mutex.Unlock()

		s.logger.Warnf("Process crashed, name: %s, %s, uptime: %v", name, result, uptime)
		if err := entry.stateMachine.Transition(ProcessStateCrashed, OperationExit, exitErr); err != nil {
			s.logger.Errorf("Failed to transition process to crashed state, name: %s, error: %v", name, err)
			return
		}

		if !entry.spec.AutoRestart {
			s.logger.Infof("Auto restart disabled, process stays crashed, name: %s", name)
			return
		}
		if s.GetSupervisorState() != SupervisorStateRunning {
			return
		}

		if uptime >= s.options.Restart.StabilityThreshold {
			entry.backoff.Reset()
		}
		s.scheduleRestartLocked(entry, entry.backoff.Next())
	}
}

// scheduleRestartLocked arms the single restart timer of the entry. Requires opMutex.
func (s *Supervisor) scheduleRestartLocked(entry *processEntry, delay time.Duration) {
	name := entry.spec.Name

	entry.mutex.Lock()
	if entry.restartTimer != nil {
		entry.restartTimer.Stop()
	}
	entry.restartGeneration++
	generation := entry.restartGeneration
	entry.nextRestartDelay = delay
	entry.nextRestartAt = time.Now().Add(delay)
	entry.restartTimer = time.AfterFunc(delay, func() {
		s.runScheduledRestart(entry, generation)
	})
	entry.mutex.Unlock()

	s.logger.Infof("Restart scheduled, name: %s, delay: %v", name, delay)
	s.publish(Event{
		Type:      EventRestartScheduled,
		Process:   name,
		Operation: OperationAutoRestart,
		Delay:     delay,
		Time:      time.Now(),
	})
}

// cancelRestartLocked disarms a pending restart. Requires opMutex.
func (s *Supervisor) cancelRestartLocked(entry *processEntry, operation string) bool {
	entry.mutex.Lock()
	timer := entry.restartTimer
	if timer == nil {
		entry.mutex.Unlock()
		return false
	}
	timer.Stop()
	entry.restartTimer = nil
	entry.restartGeneration++
	entry.nextRestartAt = time.Time{}
	entry.nextRestartDelay = 0
	entry.mutex.Unlock()

	s.logger.Infof("Pending restart cancelled, name: %s, operation: %s", entry.spec.Name, operation)
	s.publish(Event{
		Type:      EventRestartCancelled,
		Process:   entry.spec.Name,
		Operation: operation,
		Time:      time.Now(),
	})
	return true
}

func (s *Supervisor) runScheduledRestart(entry *processEntry, generation uint64) {
	entry.opMutex.Lock()
	defer entry.opMutex.Unlock()

	entry.mutex.Lock()
	if entry.restartTimer == nil || entry.restartGeneration != generation || entry.removed {
		// lost a race with Stop, Restart or Remove
		entry.mutex.Unlock()
		return
	}
	entry.restartTimer = nil
	entry.nextRestartAt = time.Time{}
	entry.nextRestartDelay = 0
	entry.mutex.Unlock()

	if s.GetSupervisorState() != SupervisorStateRunning {
		return
	}
	if entry.stateMachine.GetCurrentState() != ProcessStateCrashed {
		return
	}

	entry.mutex.Lock()
	entry.restartCount++
	entry.mutex.Unlock()

	s.logger.Infof("Restarting crashed process, name: %s", entry.spec.Name)
	entry.stopRequested = false
	_ = s.spawnLocked(entry, OperationAutoRestart)
}

func (s *Supervisor) Stop(ctx context.Context, name string) error {
	entry, _, exists := s.getEntryAndSupervisorState(name)
	if !exists {
		return errors.NewNotFoundError("process not found", nil).WithContext("name", name)
	}
	if err := ctx.Err(); err != nil {
		return errors.NewCancelledError("stop was cancelled", err).WithContext("name", name)
	}

	entry.opMutex.Lock()
	defer entry.opMutex.Unlock()

	if entry.isRemoved() {
		return errors.NewNotFoundError("process not found", nil).WithContext("name", name)
	}

	s.logger.Infof("Stopping process, name: %s", name)
	return s.stopLocked(ctx, entry, OperationStop)
}

// stopLocked terminates the current child, if any. Requires opMutex.
func (s *Supervisor) stopLocked(ctx context.Context, entry *processEntry, operation string) error {
	name := entry.spec.Name

	if err := entry.stateMachine.ValidateOperation(OperationStop); err != nil {
		return err
	}

	if entry.stateMachine.GetCurrentState() == ProcessStateCrashed {
		s.cancelRestartLocked(entry, operation)
		return entry.stateMachine.Transition(ProcessStateStopped, operation, nil)
	}

	// last point at which the caller may back out
	if err := ctx.Err(); err != nil {
		return errors.NewCancelledError("stop was cancelled", err).WithContext("name", name)
	}

	entry.stopRequested = true
	s.cancelRestartLocked(entry, operation)

	child := entry.currentChild()
	if child == nil {
		return errors.NewInternalError("process has no child to stop", nil).WithContext("name", name)
	}

	if entry.stateMachine.GetCurrentState() == ProcessStateRunning {
		if err := entry.stateMachine.Transition(ProcessStateStopping, operation, nil); err != nil {
			return err
		}
	}

	forced, err := child.Terminate(s.options.GracefulTimeout, s.options.KillTimeout)
	if err != nil {
		// still alive; the monitor finalizes the handle once the exit is observed
		s.logger.Errorf("Process did not exit after forced kill, name: %s, PID: %d", name, child.PID())
		return errors.NewTerminationTimeoutError("process did not exit after forced kill", err).
			WithContext("name", name).
			WithContext("pid", child.PID()).
			WithContext("kill_timeout", s.options.KillTimeout.String())
	}

	result := child.Exit()
	if entry.detachChild(child, result) {
		if err := entry.stateMachine.Transition(ProcessStateStopped, operation, nil); err != nil {
			s.logger.Errorf("Failed to transition process to stopped state, name: %s, error: %v", name, err)
		}
	}

	if forced {
		return errors.NewTerminationTimeoutError("process ignored the termination signal and was killed", nil).
			WithContext("name", name).
			WithContext("graceful_timeout", s.options.GracefulTimeout.String())
	}

	s.logger.Infof("Process stopped, name: %s, %s", name, result)
	return nil
}

func (s *Supervisor) Restart(ctx context.Context, name string) error {
	entry, state, exists := s.getEntryAndSupervisorState(name)
	if !exists {
		return errors.NewNotFoundError("process not found", nil).WithContext("name", name)
	}
	if state != SupervisorStateRunning {
		return errors.NewValidationError(
			fmt.Sprintf("supervisor must be running to restart processes, current state: %s", state),
			nil,
		).WithContext("name", name)
	}
	if err := ctx.Err(); err != nil {
		return errors.NewCancelledError("restart was cancelled", err).WithContext("name", name)
	}

	entry.opMutex.Lock()
	defer entry.opMutex.Unlock()

	if entry.isRemoved() {
		return errors.NewNotFoundError("process not found", nil).WithContext("name", name)
	}

	s.logger.Infof("Restarting process, name: %s", name)

	if err := entry.stateMachine.ValidateOperation(OperationRestart); err != nil {
		return err
	}

	switch entry.stateMachine.GetCurrentState() {
	case ProcessStateRunning, ProcessStateStopping:
		if err := s.stopLocked(ctx, entry, OperationRestart); err != nil {
			if !errors.IsTerminationTimeoutError(err) || entry.stateMachine.GetCurrentState() != ProcessStateStopped {
				return err
			}
			s.logger.Warnf("Process needed a forced kill during restart, name: %s, error: %v", name, err)
		}
	case ProcessStateCrashed:
		s.cancelRestartLocked(entry, OperationRestart)
	}

	entry.mutex.Lock()
	entry.restartCount++
	entry.mutex.Unlock()

	entry.stopRequested = false
	return s.spawnLocked(entry, OperationRestart)
}

// Remove deletes a handle that owns no child
func (s *Supervisor) Remove(name string) error {
	entry, _, exists := s.getEntryAndSupervisorState(name)
	if !exists {
		return errors.NewNotFoundError("process not found", nil).WithContext("name", name)
	}

	entry.opMutex.Lock()
	defer entry.opMutex.Unlock()

	if entry.isRemoved() {
		return errors.NewNotFoundError("process not found", nil).WithContext("name", name)
	}
	return s.removeLocked(entry)
}

// Delete stops the process if it is live or has a restart pending, then
// removes its handle. Both steps run under one operation lock so no restart
// can slip in between.
func (s *Supervisor) Delete(ctx context.Context, name string) error {
	entry, _, exists := s.getEntryAndSupervisorState(name)
	if !exists {
		return errors.NewNotFoundError("process not found", nil).WithContext("name", name)
	}

	entry.opMutex.Lock()
	defer entry.opMutex.Unlock()

	if entry.isRemoved() {
		return errors.NewNotFoundError("process not found", nil).WithContext("name", name)
	}

	s.logger.Infof("Deleting process, name: %s", name)

	if entry.stateMachine.GetCurrentState() != ProcessStateStopped {
		if err := s.stopLocked(ctx, entry, OperationStop); err != nil {
			if !errors.IsTerminationTimeoutError(err) || entry.stateMachine.GetCurrentState() != ProcessStateStopped {
				return err
			}
			s.logger.Warnf("Process needed a forced kill during delete, name: %s, error: %v", name, err)
		}
	}
	return s.removeLocked(entry)
}

// removeLocked unregisters a stopped entry. Requires opMutex.
func (s *Supervisor) removeLocked(entry *processEntry) error {
	name := entry.spec.Name

	if err := entry.stateMachine.ValidateOperation(OperationRemove); err != nil {
		return errors.NewValidationError("process must be stopped before removal", err).
			WithContext("name", name).
			WithContext("suggested_action", "stop the process first")
	}

	s.cancelRestartLocked(entry, OperationRemove)

	entry.mutex.Lock()
	entry.removed = true
	entry.mutex.Unlock()

	s.mutex.Lock()
	delete(s.entries, name)
	for i, existing := range s.order {
		if existing == name {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
	s.mutex.Unlock()

	s.logger.Infof("Removed process, name: %s", name)
	s.publish(Event{
		Type:      EventRemoved,
		Process:   name,
		Operation: OperationRemove,
		Time:      time.Now(),
	})
	return nil
}

func (s *Supervisor) Status(name string) (ProcessStatus, error) {
	entry, _, exists := s.getEntryAndSupervisorState(name)
	if !exists {
		return ProcessStatus{}, errors.NewNotFoundError("process not found", nil).WithContext("name", name)
	}
	return entry.status(), nil
}

// StatusAll returns snapshots in registration order
func (s *Supervisor) StatusAll() []ProcessStatus {
	entries := s.getOrderedEntries()
	statuses := make([]ProcessStatus, 0, len(entries))
	for _, entry := range entries {
		statuses = append(statuses, entry.status())
	}
	return statuses
}

// History returns the retained transitions of a handle, oldest first
func (s *Supervisor) History(name string) ([]processstatemachine.ProcessStateTransition, error) {
	entry, _, exists := s.getEntryAndSupervisorState(name)
	if !exists {
		return nil, errors.NewNotFoundError("process not found", nil).WithContext("name", name)
	}
	return entry.stateMachine.GetTransitionHistory(), nil
}

// Names returns registered names in registration order
func (s *Supervisor) Names() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	names := make([]string, len(s.order))
	copy(names, s.order)
	return names
}

func (s *Supervisor) StartAll(ctx context.Context) BulkResult {
	return s.StartNames(ctx, s.Names())
}

func (s *Supervisor) StopAll(ctx context.Context) BulkResult {
	return s.StopNames(ctx, s.Names())
}

func (s *Supervisor) RestartAll(ctx context.Context) BulkResult {
	return s.RestartNames(ctx, s.Names())
}

func (s *Supervisor) StartNames(ctx context.Context, names []string) BulkResult {
	return s.bulk(OperationStart, names, func(name string) error { return s.Start(ctx, name) })
}

func (s *Supervisor) StopNames(ctx context.Context, names []string) BulkResult {
	return s.bulk(OperationStop, names, func(name string) error { return s.Stop(ctx, name) })
}

func (s *Supervisor) RestartNames(ctx context.Context, names []string) BulkResult {
	return s.bulk(OperationRestart, names, func(name string) error { return s.Restart(ctx, name) })
}

// bulk applies op to every name in order and never stops early
func (s *Supervisor) bulk(operation string, names []string, op func(name string) error) BulkResult {
	result := BulkResult{Operation: operation}
	for _, name := range names {
		err := op(name)
		if err != nil {
			s.logger.Warnf("Bulk %s failed for process, name: %s, error: %v", operation, name, err)
		}
		result.add(name, err)
	}
	if result.HasFailures() {
		s.logger.Errorf("Bulk %s finished with failures: %v", operation, result.Err())
	}
	return result
}

// Shutdown cancels every pending restart and stops every child concurrently.
// Termination is bounded by the graceful and kill timeouts, so ctx is not
// allowed to abandon children that already received the signal.
func (s *Supervisor) Shutdown(ctx context.Context) BulkResult {
	s.mutex.Lock()
	if s.state != SupervisorStateRunning {
		s.mutex.Unlock()
		return BulkResult{Operation: OperationShutdown}
	}
	s.state = SupervisorStateStopping
	s.mutex.Unlock()

	s.logger.Infof("Shutting down supervisor...")

	entries := s.getOrderedEntries()
	stopCtx := context.WithoutCancel(ctx)

	errs := make([]error, len(entries))
	var wg sync.WaitGroup
	for i, entry := range entries {
		wg.Add(1)
		go func(i int, entry *processEntry) {
			defer wg.Done()

			entry.opMutex.Lock()
			defer entry.opMutex.Unlock()

			s.cancelRestartLocked(entry, OperationShutdown)
			errs[i] = s.stopLocked(stopCtx, entry, OperationStop)
		}(i, entry)
	}
	wg.Wait()

	result := BulkResult{Operation: OperationShutdown}
	for i, entry := range entries {
		result.add(entry.spec.Name, errs[i])
	}

	s.mutex.Lock()
	s.state = SupervisorStateStopped
	s.mutex.Unlock()

	if result.HasFailures() {
		s.logger.Errorf("Some processes failed to stop: %v", result.Err())
	}
	s.logger.Infof("Supervisor stopped")

	s.events.Close()
	return result
}

// GetSupervisorState returns the current state of the supervisor
func (s *Supervisor) GetSupervisorState() SupervisorState {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.state
}

func (s *Supervisor) getOrderedEntries() []*processEntry {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	entries := make([]*processEntry, 0, len(s.order))
	for _, name := range s.order {
		entries = append(entries, s.entries[name])
	}
	return entries
}

// getEntryAndSupervisorState returns entry, supervisor state, exists
func (s *Supervisor) getEntryAndSupervisorState(name string) (*processEntry, SupervisorState, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	entry, exists := s.entries[name]
	return entry, s.state, exists
}
