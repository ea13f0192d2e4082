package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/core-tools/hsu-procsup-go/pkg/control"
	"github.com/core-tools/hsu-procsup-go/pkg/errors"

	flags "github.com/jessevdk/go-flags"
)

const (
	exitOK          = 0
	exitUsage       = 1
	exitNotFound    = 2
	exitFailed      = 3
	exitPartialBulk = 4
)

type globalOptions struct {
	Socket  string `long:"socket" description:"Control socket path" default:"/tmp/procsup.sock"`
	TCP     string `long:"tcp" description:"Control TCP address; overrides --socket"`
	Timeout int    `long:"timeout" description:"Request timeout in seconds" default:"60"`
}

var options globalOptions

// usageError marks local argument problems
type usageError struct {
	message string
}

func (e *usageError) Error() string {
	return e.message
}

// partialError reports a bulk operation where some names failed
type partialError struct {
	failed int
	total  int
}

func (e *partialError) Error() string {
	return fmt.Sprintf("%d of %d processes failed", e.failed, e.total)
}

func newClient() (*control.Client, error) {
	transport := control.TransportConfig{
		TransportType: control.TransportUDS,
		SocketPath:    options.Socket,
	}
	if options.TCP != "" {
		transport = control.TransportConfig{
			TransportType: control.TransportTCP,
			TCPAddress:    options.TCP,
		}
	}
	return control.NewClient(transport, time.Duration(options.Timeout)*time.Second)
}

func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func exitCode(err error) int {
	var usage *usageError
	var partial *partialError
	switch {
	case err == nil:
		return exitOK
	case stderrors.As(err, &usage):
		return exitUsage
	case stderrors.As(err, &partial):
		if partial.failed == partial.total {
			return exitFailed
		}
		return exitPartialBulk
	case errors.IsNotFoundError(err):
		return exitNotFound
	case errors.IsIOError(err):
		return exitUsage
	default:
		return exitFailed
	}
}

func main() {
	parser := flags.NewParser(&options, flags.HelpFlag|flags.PassDoubleDash)
	parser.Name = "procctl"

	mustAddCommand(parser, "status", "Show process status", "Show the status of all or the named processes", &statusCommand{})
	mustAddCommand(parser, "start", "Start processes", "Start the named processes, or all with --all", &operationCommand{operation: "start"})
	mustAddCommand(parser, "stop", "Stop processes", "Stop the named processes, or all with --all", &operationCommand{operation: "stop"})
	mustAddCommand(parser, "restart", "Restart processes", "Restart the named processes, or all with --all", &operationCommand{operation: "restart"})
	mustAddCommand(parser, "delete", "Remove a process", "Stop and unregister one process", &deleteCommand{})
	mustAddCommand(parser, "logs", "Follow aggregated output", "Follow the output of all or the named processes", &logsCommand{})

	_, err := parser.Parse()
	if err != nil {
		var flagsErr *flags.Error
		if stderrors.As(err, &flagsErr) {
			if flagsErr.Type == flags.ErrHelp {
				fmt.Println(flagsErr.Message)
				os.Exit(exitOK)
			}
			fmt.Fprintf(os.Stderr, "Command line flags parsing failed: %v\n", err)
			os.Exit(exitUsage)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCode(err))
}

func mustAddCommand(parser *flags.Parser, name, short, long string, data interface{}) {
	if _, err := parser.AddCommand(name, short, long, data); err != nil {
		panic(err)
	}
}
