// Package runner wires configuration, supervisor, log aggregation, metrics
// and the control API into the procsup daemon.
package runner

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/core-tools/hsu-procsup-go/pkg/control"
	"github.com/core-tools/hsu-procsup-go/pkg/errors"
	"github.com/core-tools/hsu-procsup-go/pkg/logcollection"
	"github.com/core-tools/hsu-procsup-go/pkg/logging"
	"github.com/core-tools/hsu-procsup-go/pkg/logging/zaplogging"
	"github.com/core-tools/hsu-procsup-go/pkg/monitoring"
	"github.com/core-tools/hsu-procsup-go/pkg/processconfig"
	"github.com/core-tools/hsu-procsup-go/pkg/processmanagement"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const controlStopTimeout = 5 * time.Second

// Options selects what a daemon runs
type Options struct {
	// Profile names an environment profile; empty means base env only
	Profile string

	// Only restricts the daemon to the named apps
	Only []string

	// RunDuration stops the daemon after the given time; zero runs until signalled
	RunDuration time.Duration

	// Output receives aggregated child output; nil means os.Stdout
	Output io.Writer
}

// Daemon is one assembled supervisor instance
type Daemon struct {
	config      *processconfig.Config
	options     Options
	supervisor  *processmanagement.Supervisor
	aggregator  *logcollection.Aggregator
	server      *control.Server
	metrics     *monitoring.Metrics
	unsubscribe func()
	cancel      context.CancelFunc
	logger      logging.Logger
}

// ValidateConfigFile loads a configuration file and validates it
func ValidateConfigFile(configFile string) (*processconfig.Config, error) {
	config, err := processconfig.LoadConfigFromFile(configFile)
	if err != nil {
		return nil, err
	}

	if err := processconfig.ValidateConfig(config); err != nil {
		return nil, errors.NewValidationError("configuration validation failed", err).WithContext("config_file", configFile)
	}

	return config, nil
}

// NewLogger builds the daemon logger from the supervisor block. It writes to
// stderr so stdout carries only aggregated child output.
func NewLogger(config *processconfig.Config) (*zaplogging.ZapLogger, error) {
	return zaplogging.NewZapLogger(zaplogging.Config{
		Level:      config.Supervisor.LogLevel,
		Format:     config.Supervisor.LogFormat,
		OutputPath: "stderr",
	})
}

// NewDaemon registers every selected app; nothing is started yet
func NewDaemon(config *processconfig.Config, options Options, logger logging.Logger) (*Daemon, error) {
	if config == nil {
		return nil, errors.NewValidationError("configuration cannot be nil", nil)
	}
	if logger == nil {
		logger = logging.NewNullLogger()
	}

	specs, err := config.Specs(options.Profile, options.Only)
	if err != nil {
		return nil, err
	}

	output := options.Output
	if output == nil {
		output = os.Stdout
	}
	aggregator := logcollection.NewAggregator(output)

	supervisorOptions := config.SupervisorOptions()
	supervisorOptions.Output = aggregator
	supervisor := processmanagement.NewSupervisor(supervisorOptions, logger)

	d := &Daemon{
		config:     config,
		options:    options,
		supervisor: supervisor,
		aggregator: aggregator,
		logger:     logger,
	}

	var metricsHandler http.Handler
	if config.MetricsEnabled() {
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		d.metrics, err = monitoring.NewMetrics(registry, logger)
		if err != nil {
			return nil, err
		}
		metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

		// subscribe before registering so the metrics see every registration
		var events <-chan processmanagement.Event
		events, d.unsubscribe = supervisor.Subscribe()
		ctx, cancel := context.WithCancel(context.Background())
		d.cancel = cancel
		go d.metrics.Run(ctx, events)
	}

	names := make([]string, 0, len(specs))
	for _, spec := range specs {
		if err := supervisor.Register(spec); err != nil {
			d.release()
			return nil, err
		}
		names = append(names, spec.Name)
		logger.Infof("Registered process: %s", spec.Name)
	}
	aggregator.AlignNames(names)

	if config.Supervisor.Control.Transport != processconfig.TransportNone {
		d.server, err = control.NewServer(supervisor, control.ServerOptions{
			Transport: transportConfig(config.Supervisor.Control),
			Logs:      aggregator,
			Metrics:   metricsHandler,
		}, logger)
		if err != nil {
			d.release()
			return nil, err
		}
	}

	return d, nil
}

func transportConfig(config processconfig.ControlConfig) control.TransportConfig {
	if config.Transport == processconfig.TransportTCP {
		return control.TransportConfig{
			TransportType: control.TransportTCP,
			TCPAddress:    config.TCPAddress,
		}
	}
	return control.TransportConfig{
		TransportType: control.TransportUDS,
		SocketPath:    config.SocketPath,
	}
}

func (d *Daemon) Supervisor() *processmanagement.Supervisor {
	return d.supervisor
}

// ControlAddress returns where the control API listens, empty when disabled
func (d *Daemon) ControlAddress() string {
	if d.server == nil {
		return ""
	}
	return d.server.GetAddress()
}

// Start brings up the control API, then starts every registered process.
// Individual start failures are logged and returned in the result; they do
// not stop the daemon.
func (d *Daemon) Start(ctx context.Context) (processmanagement.BulkResult, error) {
	if d.server != nil {
		if err := d.server.Start(ctx); err != nil {
			return processmanagement.BulkResult{}, err
		}
	}

	d.logger.Infof("Supervisor is ready, starting processes...")
	result := d.supervisor.StartAll(ctx)
	for _, entry := range result.Entries {
		switch {
		case entry.Err == nil:
			d.logger.Infof("Started process: %s", entry.Name)
		case entry.Fatal():
			d.logger.Errorf("Failed to start process %s: %v", entry.Name, entry.Err)
		default:
			d.logger.Debugf("Process %s not started: %v", entry.Name, entry.Err)
		}
	}
	return result, nil
}

// Shutdown stops the control API and every process, then releases the log
// and metrics streams. It returns the aggregated stop failures.
func (d *Daemon) Shutdown(ctx context.Context) error {
	if d.server != nil {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), controlStopTimeout)
		if err := d.server.Stop(stopCtx); err != nil {
			d.logger.Warnf("Failed to stop control server: %v", err)
		}
		cancel()
	}

	result := d.supervisor.Shutdown(ctx)
	d.release()
	return result.Err()
}

func (d *Daemon) release() {
	if d.unsubscribe != nil {
		d.unsubscribe()
	}
	if d.cancel != nil {
		d.cancel()
	}
	d.aggregator.Close()
}

// Run assembles a daemon, starts it and blocks until ctx is done, a
// termination signal arrives or the run duration elapses; then it shuts down.
func Run(ctx context.Context, config *processconfig.Config, options Options, logger logging.Logger) error {
	if logger == nil {
		logger = logging.NewNullLogger()
	}

	logger.Infof("Process supervisor starting...")
	logger.Infof("Platform: OS=%s, Arch=%s, CPUs=%d, Go=%s",
		runtime.GOOS, runtime.GOARCH, runtime.NumCPU(), runtime.Version())

	daemon, err := NewDaemon(config, options, logger)
	if err != nil {
		return err
	}

	waitCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if options.RunDuration > 0 {
		logger.Infof("Using RUN DURATION of %v", options.RunDuration)
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(waitCtx, options.RunDuration)
		defer cancel()
	}

	if _, err := daemon.Start(waitCtx); err != nil {
		if shutdownErr := daemon.Shutdown(context.Background()); shutdownErr != nil {
			logger.Errorf("Shutdown after failed start: %v", shutdownErr)
		}
		return err
	}
	if address := daemon.ControlAddress(); address != "" {
		logger.Infof("Control API listening on %s", address)
	}

	<-waitCtx.Done()
	logger.Infof("Process supervisor stopping: %v", context.Cause(waitCtx))

	// reset to background so processes get their full graceful timeout
	if err := daemon.Shutdown(context.Background()); err != nil {
		return errors.NewProcessError("some processes did not stop cleanly", err)
	}

	logger.Infof("Process supervisor stopped")
	return nil
}
