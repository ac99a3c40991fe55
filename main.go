package main

import (
	"context"
	"fmt"
	"os"

	"github.com/etwm/sntrack/internal/cfg"
	"github.com/etwm/sntrack/internal/ctl"
	"github.com/etwm/sntrack/internal/log"
	"github.com/etwm/sntrack/internal/startup"
	"github.com/etwm/sntrack/internal/ui"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printHelp()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "--help", "-h", "help":
		printHelp()
	case "--version", "version":
		fmt.Printf("\n    sntrack %s - startup notification tracker\n\n", version)
	case "new":
		if len(os.Args) < 3 {
			printHelp()
			os.Exit(1)
		}
		if err := cfg.MakeProfile(os.Args[2]); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to make profile: %s\n", err)
			os.Exit(1)
		}
		fmt.Println("Created profile!")
	case "launch":
		if len(os.Args) < 4 {
			printHelp()
			os.Exit(1)
		}
		os.Exit(launch(os.Args[2], os.Args[3:]))
	case "monitor":
		if len(os.Args) < 3 {
			printHelp()
			os.Exit(1)
		}
		os.Exit(monitor(os.Args[2]))
	default:
		os.Exit(run(os.Args[1]))
	}
}

// setup reads the named profile and installs the default logger. The
// returned function closes the logger.
func setup(profileName string, console bool) (*cfg.Profile, func(), error) {
	profile, err := cfg.GetProfile(profileName)
	if err != nil {
		return nil, nil, fmt.Errorf("get profile: %w", err)
	}
	logPath, ok := os.LookupEnv("SNTRACK_LOG_PATH")
	if !ok {
		logPath = profile.Log.Path
	}
	logger, err := log.NewLogger(
		"sntrack",
		profile.LogLevel(),
		logPath,
		!(console && profile.Log.Console),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	log.SetDefault(logger)
	log.Info("Started logger")
	return &profile, func() {
		if err := logger.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to close logger: %s\n", err)
		}
	}, nil
}

func run(profileName string) int {
	profile, done, err := setup(profileName, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		return 1
	}
	defer done()
	if err := ctl.Run(context.Background(), profile, ctl.Options{}); err != nil {
		log.Error("Failed to run: %s", err)
		return 1
	}
	return 0
}

func monitor(profileName string) int {
	// Console logging would tear the monitor.
	profile, done, err := setup(profileName, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		return 1
	}
	defer done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates := make(chan []startup.SequenceInfo, 1)
	status := make(chan error, 1)
	go func() {
		defer close(status)
		err := ctl.Run(ctx, profile, ctl.Options{Updates: updates})
		if err != nil {
			log.Error("Failed to run: %s", err)
		}
		status <- err
	}()
	if err := ui.Run(ctx, updates, status); err != nil {
		log.Error("Monitor failed: %s", err)
		fmt.Fprintf(os.Stderr, "Monitor failed: %s\n", err)
		return 1
	}
	return 0
}

func launch(profileName string, argv []string) int {
	// Append to the log of a running tracker instead of truncating it.
	logger := log.FromName("sntrack")
	log.SetDefault(logger)
	defer logger.Close()
	profile, err := cfg.GetProfile(profileName)
	if err != nil {
		log.Error("Failed to get profile: %s", err)
		return 1
	}
	if _, err := ctl.Launch(&profile, argv); err != nil {
		log.Error("Failed to launch: %s", err)
		return 1
	}
	return 0
}

func printHelp() {
	fmt.Println(`
    sntrack - startup notification tracker
    USAGE:
        sntrack [PROFILE]               Track startup sequences with the
                                        given profile.

    SUBCOMMANDS:
        sntrack monitor [PROFILE]       Track startup sequences and show
                                        them in the terminal.
        sntrack launch [PROFILE] CMD... Run CMD with a startup sequence
                                        announcing it.
        sntrack new [PROFILE]           Create a new profile named PROFILE
                                        with the default configuration.
        sntrack help                    Print this message.
        sntrack version                 Get the version of sntrack installed.

    ENVIRONMENT:
        SNTRACK_LOG_PATH                Override the log file path.
    `)
}
