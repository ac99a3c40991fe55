package log

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// LogConf stores enough about a running Logger for another process to
// append to the same log file.
type LogConf struct {
	LogLevel  LogLevel `json:"log_level"`
	FilePath  string   `json:"file_path"`
	FormatStr string   `json:"format_str"`
}

// confPath returns the location of the configuration for the named logger.
func confPath(name string) string {
	dir, ok := os.LookupEnv("XDG_RUNTIME_DIR")
	if !ok {
		dir = os.TempDir()
	}
	return filepath.Join(dir, name+".json")
}

// ConfRead reads the configuration written by the named logger.
func ConfRead(name string) (LogConf, error) {
	conf := LogConf{}
	raw, err := os.ReadFile(confPath(name))
	if err != nil {
		return LogConf{}, fmt.Errorf("read log conf: %w", err)
	}
	if err := json.Unmarshal(raw, &conf); err != nil {
		return LogConf{}, fmt.Errorf("parse log conf: %w", err)
	}
	return conf, nil
}

// Write stores the configuration for the named logger.
func (c *LogConf) Write(name string) error {
	raw, err := json.MarshalIndent(c, "", " ")
	if err != nil {
		return fmt.Errorf("marshal log conf: %w", err)
	}
	return os.WriteFile(confPath(name), raw, 0644)
}

// Remove deletes the configuration for the named logger.
func (c *LogConf) Remove(name string) error {
	err := os.Remove(confPath(name))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
