package logger

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
)

// level is an internal ordinal so SetLevel/log can compare cheaply.
type level int

const (
	levelDebug level = iota
	levelInfo
	levelWarn
	levelError
)

func parseLevel(s string) level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return levelDebug
	case "WARN", "WARNING":
		return levelWarn
	case "ERROR":
		return levelError
	default:
		return levelInfo
	}
}

// SimpleLogger is a minimal stdlib `log`-backed Logger, the default
// production logger absent a structured sink. It carries a fixed
// component name and a base field set, both merged into every record.
type SimpleLogger struct {
	mu        sync.Mutex
	component string
	base      map[string]interface{}
	min       level
}

// NewSimpleLogger builds a root SimpleLogger reading its level from the
// LOG_LEVEL environment variable (default INFO).
func NewSimpleLogger() *SimpleLogger {
	return &SimpleLogger{min: parseLevel(os.Getenv("LOG_LEVEL"))}
}

// NewSimpleLoggerAt builds a root SimpleLogger at an explicit level,
// bypassing LOG_LEVEL — used when the config layer has already resolved
// logging.level.
func NewSimpleLoggerAt(levelName string) *SimpleLogger {
	return &SimpleLogger{min: parseLevel(levelName)}
}

func (l *SimpleLogger) WithComponent(name string) ComponentLogger {
	full := name
	if l.component != "" {
		full = l.component + "." + name
	}
	return &SimpleLogger{component: full, base: l.base, min: l.min}
}

func (l *SimpleLogger) log(lv level, levelName, msg string, fields map[string]interface{}) {
	if lv < l.min {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	var b strings.Builder
	b.WriteString(levelName)
	if l.component != "" {
		b.WriteString(" [")
		b.WriteString(l.component)
		b.WriteString("]")
	}
	b.WriteString(" ")
	b.WriteString(msg)

	merged := mergeFields(l.base, fields)
	if len(merged) > 0 {
		keys := make([]string, 0, len(merged))
		for k := range merged {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, merged[k])
		}
	}
	log.Println(b.String())
}

func mergeFields(base, extra map[string]interface{}) map[string]interface{} {
	if len(base) == 0 {
		return extra
	}
	merged := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}

func (l *SimpleLogger) Debug(msg string, fields map[string]interface{}) { l.log(levelDebug, "DEBUG", msg, fields) }
func (l *SimpleLogger) Info(msg string, fields map[string]interface{})  { l.log(levelInfo, "INFO", msg, fields) }
func (l *SimpleLogger) Warn(msg string, fields map[string]interface{})  { l.log(levelWarn, "WARN", msg, fields) }
func (l *SimpleLogger) Error(msg string, fields map[string]interface{}) { l.log(levelError, "ERROR", msg, fields) }

func (l *SimpleLogger) DebugContext(_ context.Context, msg string, fields map[string]interface{}) {
	l.Debug(msg, fields)
}
func (l *SimpleLogger) InfoContext(_ context.Context, msg string, fields map[string]interface{}) {
	l.Info(msg, fields)
}
func (l *SimpleLogger) WarnContext(_ context.Context, msg string, fields map[string]interface{}) {
	l.Warn(msg, fields)
}
func (l *SimpleLogger) ErrorContext(_ context.Context, msg string, fields map[string]interface{}) {
	l.Error(msg, fields)
}

var _ ComponentLogger = (*SimpleLogger)(nil)
