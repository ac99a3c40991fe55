package ctl

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/etwm/sntrack/internal/cfg"
	"github.com/etwm/sntrack/internal/log"
	"github.com/etwm/sntrack/internal/startup"
	"github.com/etwm/sntrack/internal/x11"
)

// The environment variable through which a launched program receives its
// startup ID.
const startupEnv = "DESKTOP_STARTUP_ID"

// launcher is the part of the X client used to announce a launch.
type launcher interface {
	startup.Transport
	ServerTime() (uint32, error)
}

// Launch starts a program with a startup notification sequence announcing
// it. It returns the startup ID given to the program.
func Launch(conf *cfg.Profile, argv []string) (string, error) {
	if len(argv) == 0 {
		return "", fmt.Errorf("no command given")
	}
	x, err := x11.NewClient()
	if err != nil {
		return "", fmt.Errorf("create X client: %w", err)
	}
	defer x.Close()
	return launch(conf, x, x.ScreenNumber(), argv, func(cmd *exec.Cmd) error {
		return cmd.Start()
	})
}

// launch announces the sequence, then runs start on the prepared command and
// reports its PID or the failure.
func launch(conf *cfg.Profile, x launcher, screen int, argv []string, start func(*exec.Cmd) error) (string, error) {
	hostname, err := startup.Hostname()
	if err != nil {
		log.Warn("Could not determine hostname: %s", err)
	}
	ts, err := x.ServerTime()
	if err != nil {
		return "", fmt.Errorf("get server time: %w", err)
	}

	desktop := -1
	if conf.Launch.Desktop != nil {
		desktop = *conf.Launch.Desktop
	}
	if conf.Launch.Screen != 0 {
		screen = conf.Launch.Screen
	}
	fields := startup.NewLaunchSequence(startup.LaunchFields{
		Argv:      argv,
		Hostname:  hostname,
		Screen:    screen,
		Desktop:   desktop,
		Timestamp: ts,
	})
	id := fields.Value(startup.FieldID)

	tracker := startup.NewTracker(x, nil, startup.Options{
		Screen:   screen,
		Hostname: hostname,
	})
	if err := tracker.Announce(&fields); err != nil {
		return "", fmt.Errorf("announce launch: %w", err)
	}
	log.Info("Announced startup sequence %q", id)

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), startupEnv+"="+id)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := start(cmd); err != nil {
		if cancelErr := tracker.Cancel(id); cancelErr != nil {
			log.Error("Failed to cancel startup sequence %q: %s", id, cancelErr)
		}
		return "", fmt.Errorf("start %s: %w", argv[0], err)
	}
	if cmd.Process == nil {
		return id, nil
	}

	pid := startup.Fields{}
	pid.Set(startup.FieldID, id)
	pid.Set(startup.FieldPid, strconv.Itoa(cmd.Process.Pid))
	if err := tracker.Amend(&pid); err != nil {
		log.Warn("Failed to report PID of %q: %s", id, err)
	}
	log.Info("Started %s (PID %d)", argv[0], cmd.Process.Pid)
	if err := cmd.Process.Release(); err != nil {
		log.Debug("Failed to release process: %s", err)
	}
	return id, nil
}
