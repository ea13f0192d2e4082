package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/core-tools/hsu-procsup-go/pkg/logging"
	"github.com/core-tools/hsu-procsup-go/pkg/runner"

	"github.com/gin-gonic/gin"
	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	Config      string `long:"config" short:"c" description:"Configuration file path (YAML)" required:"true"`
	Env         string `long:"env" description:"Environment profile applied on top of each app's env"`
	Only        string `long:"only" description:"Comma separated list of apps to run"`
	Validate    bool   `long:"validate" description:"Validate the configuration and exit"`
	RunDuration int    `long:"run-duration" description:"Duration in seconds to run (debug feature)"`
}

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s , ", module)
}

func splitNames(list string) []string {
	var names []string
	for _, name := range strings.Split(list, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	var err error
	_, err = parser.ParseArgs(argv)
	if err != nil {
		if flags.WroteHelp(err) {
			fmt.Println(err)
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	config, err := runner.ValidateConfigFile(opts.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	if opts.Validate {
		fmt.Printf("Configuration is valid: %d apps, profiles: %s\n",
			len(config.Apps), strings.Join(config.Profiles(), ", "))
		os.Exit(0)
	}

	zapLogger, err := runner.NewLogger(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = zapLogger.Sync() }()

	logger := logging.NewLogger(
		logPrefix("procsup"), logging.LogFuncs{
			Debugf: zapLogger.Debugf,
			Infof:  zapLogger.Infof,
			Warnf:  zapLogger.Warnf,
			Errorf: zapLogger.Errorf,
		})

	gin.SetMode(gin.ReleaseMode)

	err = runner.Run(context.Background(), config, runner.Options{
		Profile:     opts.Env,
		Only:        splitNames(opts.Only),
		RunDuration: time.Duration(opts.RunDuration) * time.Second,
	}, logger)
	if err != nil {
		logger.Errorf("Failed to run: %v", err)
		_ = zapLogger.Sync()
		os.Exit(1)
	}
}
