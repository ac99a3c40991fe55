package log

import (
	"errors"
	"strings"
	"time"
)

// DefaultFormat is the format used when none is configured.
const DefaultFormat = "{ascTime}: [{level}] {name} - {message}"

var errNoMessage = errors.New("missing {message} in format string")

// Formatter formats log lines. Its format string may use the following
// variables, enclosed in '{' and '}':
// `ascTime` - The time of the log print in human readable form.
// `level` - The visibility level of the log.
// `name` - The name of the logger.
// `message` - The log message itself. This is a compulsory format variable.
type Formatter struct {
	formatStr string
	now       func() time.Time
}

// NewFormatter creates a Formatter with the given format string.
func NewFormatter(formatStr string) (Formatter, error) {
	if !strings.Contains(formatStr, "{message}") {
		return Formatter{}, errNoMessage
	}
	return Formatter{formatStr, time.Now}, nil
}

// DefaultFormatter creates a Formatter using DefaultFormat.
func DefaultFormatter() Formatter {
	return Formatter{DefaultFormat, time.Now}
}

// Format replaces all variables in the format string and appends a newline.
func (f *Formatter) Format(name, level, message string) string {
	args := []string{"{message}", message}
	if strings.Contains(f.formatStr, "{ascTime}") {
		args = append(args, "{ascTime}", f.now().Format(time.RFC3339))
	}
	if strings.Contains(f.formatStr, "{level}") {
		args = append(args, "{level}", level)
	}
	if strings.Contains(f.formatStr, "{name}") {
		args = append(args, "{name}", name)
	}
	return strings.NewReplacer(args...).Replace(f.formatStr) + "\n"
}
