package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/core-tools/hsu-procsup-go/pkg/control"
	"github.com/core-tools/hsu-procsup-go/pkg/logcollection"
	"github.com/core-tools/hsu-procsup-go/pkg/processmanagement"
)

type statusCommand struct{}

func (c *statusCommand) Execute(args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	client, err := newClient()
	if err != nil {
		return err
	}

	var statuses []processmanagement.ProcessStatus
	if len(args) == 0 {
		statuses, err = client.List(ctx)
		if err != nil {
			return err
		}
	} else {
		for _, name := range args {
			status, err := client.Status(ctx, name)
			if err != nil {
				return err
			}
			statuses = append(statuses, status)
		}
	}

	printStatuses(statuses, time.Now())
	return nil
}

func printStatuses(statuses []processmanagement.ProcessStatus, now time.Time) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATE\tPID\tUPTIME\tRESTARTS\tLAST EXIT\tNEXT RESTART")
	for _, status := range statuses {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			status.Name,
			status.State,
			pidColumn(status.PID),
			uptimeColumn(status, now),
			status.RestartCount,
			exitColumn(status),
			nextRestartColumn(status),
		)
	}
	_ = w.Flush()
}

func pidColumn(pid int) string {
	if pid == 0 {
		return "-"
	}
	return strconv.Itoa(pid)
}

func uptimeColumn(status processmanagement.ProcessStatus, now time.Time) string {
	uptime := status.Uptime(now)
	if uptime == 0 {
		return "-"
	}
	return uptime.Round(time.Second).String()
}

func exitColumn(status processmanagement.ProcessStatus) string {
	switch {
	case status.LastSignal != "":
		return status.LastSignal
	case status.LastExitCode != nil:
		return strconv.Itoa(*status.LastExitCode)
	default:
		return "-"
	}
}

func nextRestartColumn(status processmanagement.ProcessStatus) string {
	if !status.RestartScheduled {
		return "-"
	}
	return "in " + status.NextRestartDelay.String()
}

type operationCommand struct {
	operation string

	All bool `long:"all" description:"Apply to every registered process"`
}

func (c *operationCommand) Execute(args []string) error {
	if c.All == (len(args) > 0) {
		return &usageError{message: fmt.Sprintf("%s needs either --all or process names", c.operation)}
	}

	ctx, cancel := commandContext()
	defer cancel()

	client, err := newClient()
	if err != nil {
		return err
	}

	if len(args) == 1 {
		response, err := c.single(ctx, client, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", response.Name, stateOf(response))
		return nil
	}

	result, err := client.Bulk(ctx, c.operation, args)
	if err != nil {
		return err
	}
	return reportBulk(result)
}

func (c *operationCommand) single(ctx context.Context, client *control.Client, name string) (control.OperationResponse, error) {
	switch c.operation {
	case processmanagement.OperationStart:
		return client.Start(ctx, name)
	case processmanagement.OperationStop:
		return client.Stop(ctx, name)
	default:
		return client.Restart(ctx, name)
	}
}

func stateOf(response control.OperationResponse) string {
	if response.Status == nil {
		return "ok"
	}
	return string(response.Status.State)
}

func reportBulk(result processmanagement.BulkResult) error {
	failed := 0
	for _, entry := range result.Entries {
		switch {
		case entry.Err == nil:
			fmt.Printf("%s: ok\n", entry.Name)
		case entry.Fatal():
			failed++
			fmt.Printf("%s: failed: %v\n", entry.Name, entry.Err)
		default:
			fmt.Printf("%s: skipped: %v\n", entry.Name, entry.Err)
		}
	}
	if failed > 0 {
		return &partialError{failed: failed, total: len(result.Entries)}
	}
	return nil
}

type deleteCommand struct{}

func (c *deleteCommand) Execute(args []string) error {
	if len(args) != 1 {
		return &usageError{message: "delete needs exactly one process name"}
	}

	ctx, cancel := commandContext()
	defer cancel()

	client, err := newClient()
	if err != nil {
		return err
	}
	if err := client.Delete(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("%s: removed\n", args[0])
	return nil
}

type logsCommand struct{}

func (c *logsCommand) Execute(args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	client, err := newClient()
	if err != nil {
		return err
	}

	width := 0
	for _, name := range args {
		width = max(width, len(name))
	}
	return client.Logs(ctx, args, func(line logcollection.LogLine) error {
		width = max(width, len(line.Process))
		marker := "|"
		if line.Stream == logcollection.StderrStream {
			marker = "!"
		}
		_, err := fmt.Printf("%-*s %s %s\n", width, line.Process, marker, strings.TrimRight(line.Line, "\r"))
		return err
	})
}
