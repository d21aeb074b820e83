// Package logging is a small leveled logger, adapted from minimega's
// pkg/minilog: a package-level default logger plus the ability to attach
// extra named sinks (for example a log file), each with its own level.
// No third-party logging dependency — this mirrors the teacher's own
// choice to hand-roll rather than import logrus/zap.
package logging

import (
	"fmt"
	"io"
	golog "log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
)

type sink struct {
	*golog.Logger
	level Level
}

var (
	mu     sync.RWMutex
	sinks  = map[string]*sink{"stderr": {golog.New(os.Stderr, "", golog.LstdFlags), WARN}}
)

// AddSink registers an additional named logger that receives every message
// at level or above, independently of the "stderr" sink's level.
func AddSink(name string, w io.Writer, level Level) {
	mu.Lock()
	defer mu.Unlock()
	sinks[name] = &sink{golog.New(w, "", golog.LstdFlags), level}
}

// SetLevel changes the level of a named sink ("stderr" by default).
func SetLevel(name string, level Level) {
	mu.Lock()
	defer mu.Unlock()
	if s, ok := sinks[name]; ok {
		s.level = level
	}
}

func caller() string {
	_, file, line, ok := runtime.Caller(3)
	if !ok {
		return "???"
	}
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}

func dispatch(level Level, format string, args []interface{}) {
	mu.RLock()
	defer mu.RUnlock()

	if len(sinks) == 0 {
		return
	}

	prefix := level.String() + " " + caller() + ": "
	msg := prefix + fmt.Sprintf(format, args...)

	for _, s := range sinks {
		if level >= s.level {
			s.Println(msg)
		}
	}

	if level == FATAL {
		os.Exit(1)
	}
}

func Debugf(format string, args ...interface{}) { dispatch(DEBUG, format, args) }
func Infof(format string, args ...interface{})  { dispatch(INFO, format, args) }
func Warnf(format string, args ...interface{})  { dispatch(WARN, format, args) }
func Errorf(format string, args ...interface{}) { dispatch(ERROR, format, args) }
func Fatalf(format string, args ...interface{}) { dispatch(FATAL, format, args) }
