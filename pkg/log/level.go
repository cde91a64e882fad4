package log

import (
	"errors"
	"fmt"
	"strings"
)

// Level is the severity of an entry. A logger or sink configured at some
// level passes entries of that level and above.
type Level int

// Levels from least to most severe. Collectors that use the names Verbose,
// Information and Warning map onto Trace, Info and Warn.
const (
	Trace Level = iota
	Debug
	Info
	Warn
	Error
	Fatal
)

// ErrInvalidLevel is returned for a level name that is not recognised.
var ErrInvalidLevel = errors.New("invalid log level")

var canonicalNames = map[Level]string{
	Trace: "TRACE",
	Debug: "DEBUG",
	Info:  "INFO",
	Warn:  "WARN",
	Error: "ERROR",
	Fatal: "FATAL",
}

// namedLevels resolves upper-cased names, aliases included.
var namedLevels = map[string]Level{
	"TRACE":       Trace,
	"VERBOSE":     Trace,
	"DEBUG":       Debug,
	"INFO":        Info,
	"INFORMATION": Info,
	"WARN":        Warn,
	"WARNING":     Warn,
	"ERROR":       Error,
	"FATAL":       Fatal,
}

func (l Level) String() string {
	if name, ok := canonicalNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseLevel resolves a level name, ignoring case and surrounding space.
// Unknown names yield Info with ErrInvalidLevel.
func ParseLevel(s string) (Level, error) {
	if l, ok := namedLevels[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return l, nil
	}
	return Info, fmt.Errorf("%w: %q", ErrInvalidLevel, s)
}

// Enables reports whether an entry at target passes a threshold of l.
func (l Level) Enables(target Level) bool {
	return target >= l
}

func (l Level) MarshalText() ([]byte, error) {
	name, ok := canonicalNames[l]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLevel, int(l))
	}
	return []byte(name), nil
}

// UnmarshalText lets MinimumLevel and similar settings be read from YAML
// and the environment.
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
