package indexer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// BuildLogger writes a per-build log file with key=value detail lines,
// so failed builds can be diagnosed after the progress bar is gone.
type BuildLogger struct {
	mu   sync.Mutex
	file *os.File
	echo io.Writer
	path string
}

// NewBuildLogger opens a timestamped log file under logDir
func NewBuildLogger(logDir string) (*BuildLogger, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	path := filepath.Join(logDir, fmt.Sprintf("index-%s.log", time.Now().Format("20060102-150405")))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return &BuildLogger{file: file, path: path}, nil
}

// Echo mirrors every log line to w in addition to the log file
func (l *BuildLogger) Echo(w io.Writer) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.echo = w
	l.mu.Unlock()
}

// Path returns the log file location
func (l *BuildLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Close closes the log file
func (l *BuildLogger) Close() error {
	if l == nil {
		return nil
	}
	return l.file.Close()
}

func (l *BuildLogger) log(level string, message string, details map[string]interface{}) {
	if l == nil {
		return
	}

	line := fmt.Sprintf("[%s] %s: %s", time.Now().Format("2006-01-02 15:04:05.000"), level, message)
	for k, v := range details {
		line += fmt.Sprintf(" %s=%v", k, v)
	}
	line += "\n"

	l.mu.Lock()
	defer l.mu.Unlock()
	l.file.WriteString(line)
	if l.echo != nil {
		io.WriteString(l.echo, line)
	}
}

func (l *BuildLogger) Info(message string, details map[string]interface{}) {
	l.log("INFO", message, details)
}

func (l *BuildLogger) Warn(message string, details map[string]interface{}) {
	l.log("WARN", message, details)
}

func (l *BuildLogger) Error(message string, details map[string]interface{}) {
	l.log("ERROR", message, details)
}
