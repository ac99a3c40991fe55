// Package cfg allows for reading the user's configuration.
package cfg

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/etwm/sntrack/internal/log"
	"github.com/etwm/sntrack/internal/res"
	"gopkg.in/yaml.v2"
)

// Default log path, used when neither the profile nor the environment
// specify one.
const defaultLogPath = "/tmp/sntrack.log"

// Profile file extensions, in lookup order.
var extensions = []string{".toml", ".yml", ".yaml"}

// Log contains the user's logging settings.
type Log struct {
	Level   string `toml:"level" yaml:"level"`     // Visibility level
	Path    string `toml:"path" yaml:"path"`       // Log file path
	Console bool   `toml:"console" yaml:"console"` // Also log to stdout
}

// Tracker contains the startup sequence tracking settings.
type Tracker struct {
	// Seconds before an unmatched sequence is dropped. 0 disables this.
	Timeout int `toml:"timeout" yaml:"timeout"`

	// Seconds between sweeps for timed out sequences.
	SweepInterval int `toml:"sweep_interval" yaml:"sweep_interval"`

	CheckPid     bool `toml:"check_pid" yaml:"check_pid"`
	ApplyDesktop bool `toml:"apply_desktop" yaml:"apply_desktop"`
}

// Launch contains the settings used by `sntrack launch`.
type Launch struct {
	Desktop *int `toml:"desktop" yaml:"desktop"`
	Screen  int  `toml:"screen" yaml:"screen"`
}

// Profile contains an entire configuration profile.
type Profile struct {
	Log     Log     `toml:"log" yaml:"log"`
	Tracker Tracker `toml:"tracker" yaml:"tracker"`
	Launch  Launch  `toml:"launch" yaml:"launch"`

	path  string
	level log.LogLevel
}

// LogLevel returns the parsed log level.
func (p *Profile) LogLevel() log.LogLevel {
	return p.level
}

// Path returns the file the profile was read from, if any.
func (p *Profile) Path() string {
	return p.path
}

// Timeout returns the unmatched sequence timeout.
func (p *Profile) Timeout() time.Duration {
	return time.Duration(p.Tracker.Timeout) * time.Second
}

// SweepInterval returns the time between sequence sweeps.
func (p *Profile) SweepInterval() time.Duration {
	return time.Duration(p.Tracker.SweepInterval) * time.Second
}

// GetDirectory returns the path to the user's configuration directory.
func GetDirectory() (string, error) {
	// UserConfigDir automatically checks for $XDG_CONFIG_HOME and falls back
	// to $HOME/.config, so we don't need to do any special checks ourselves.
	xdgDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(xdgDir, "sntrack"), nil
}

// ProfilePath returns the path of the named profile, trying each supported
// extension in turn.
func ProfilePath(name string) (string, error) {
	dir, err := GetDirectory()
	if err != nil {
		return "", fmt.Errorf("get config directory: %w", err)
	}
	for _, ext := range extensions {
		path := filepath.Join(dir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no profile named %q in %s", name, dir)
}

// GetProfile returns a parsed configuration profile.
func GetProfile(name string) (Profile, error) {
	path, err := ProfilePath(name)
	if err != nil {
		return Profile{}, err
	}
	return ReadProfile(path)
}

// ReadProfile reads and validates the profile at the given path. The format
// is chosen by extension.
func ReadProfile(path string) (Profile, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read config file: %w", err)
	}
	profile, err := ParseProfile(file, filepath.Ext(path))
	if err != nil {
		return Profile{}, err
	}
	profile.path = path
	return profile, nil
}

// ParseProfile parses and validates a profile in the format named by ext
// (".toml", ".yml" or ".yaml").
func ParseProfile(raw []byte, ext string) (Profile, error) {
	profile := Profile{}
	switch strings.ToLower(ext) {
	case ".toml":
		if err := toml.Unmarshal(raw, &profile); err != nil {
			return Profile{}, fmt.Errorf("parse config file: %w", err)
		}
	case ".yml", ".yaml":
		if err := yaml.UnmarshalStrict(raw, &profile); err != nil {
			return Profile{}, fmt.Errorf("parse config file: %w", err)
		}
	default:
		return Profile{}, fmt.Errorf("unknown config format %q", ext)
	}
	if err := validateProfile(&profile); err != nil {
		return Profile{}, fmt.Errorf("validate config: %w", err)
	}
	return profile, nil
}

// MakeProfile makes a new configuration profile with the given name and the
// default settings.
func MakeProfile(name string) error {
	dir, err := GetDirectory()
	if err != nil {
		return fmt.Errorf("get config directory: %w", err)
	}
	stat, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			err := os.MkdirAll(dir, 0755)
			if err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
		}
	} else {
		if !stat.IsDir() {
			return fmt.Errorf("config directory (%s) is not a directory", dir)
		}
	}
	path := filepath.Join(dir, name+".toml")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("profile %q already exists", name)
	}
	return os.WriteFile(path, res.DefaultConfig, 0644)
}

// validateProfile ensures that the user's configuration profile does not have
// any illegal or invalid settings.
func validateProfile(conf *Profile) error {
	if conf.Log.Level == "" {
		conf.Log.Level = "info"
	}
	level, err := log.ParseLevel(conf.Log.Level)
	if err != nil {
		return err
	}
	conf.level = level
	if conf.Log.Path == "" {
		if path, ok := os.LookupEnv("SNTRACK_LOG_PATH"); ok {
			conf.Log.Path = path
		} else {
			conf.Log.Path = defaultLogPath
		}
	}

	if conf.Tracker.Timeout < 0 {
		return errors.New("invalid sequence timeout")
	}
	if conf.Tracker.SweepInterval < 0 {
		return errors.New("invalid sweep interval")
	}
	if conf.Tracker.SweepInterval == 0 {
		conf.Tracker.SweepInterval = 5
	}
	if conf.Tracker.Timeout > 0 && conf.Tracker.Timeout < conf.Tracker.SweepInterval {
		log.Warn("Sequence timeout is shorter than the sweep interval.")
	}

	if conf.Launch.Screen < 0 {
		return fmt.Errorf("invalid launch screen %d", conf.Launch.Screen)
	}
	if d := conf.Launch.Desktop; d != nil && *d < 0 {
		return fmt.Errorf("invalid launch desktop %d", *d)
	}
	return nil
}
