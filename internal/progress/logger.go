package progress

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// JobLogger writes the per-job structured log file, one line per event:
//
//	YYYY-MM-DD HH:MM:SS - <logger> - <LEVEL> - <message> | STRUCTURED: <json>
//
// The path is logs/workflow_{workflow_id}.log. This is a bespoke wire
// format the job-tracking frontend tails, so it is hand-rolled atop os.File
// rather than fought out of a general-purpose logging framework; the
// operational stdout log stays on the stdlib log package like every other
// file in this codebase.
type JobLogger struct {
	mu   sync.Mutex
	file *os.File
	name string
	path string
}

// NewJobLogger opens (or creates) logs/workflow_{workflowID}.log under
// logsDir. The logger name appears in each line's <logger> field.
func NewJobLogger(logsDir, workflowID, name string) (*JobLogger, error) {
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", logsDir, err)
	}
	path := filepath.Join(logsDir, fmt.Sprintf("workflow_%s.log", workflowID))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open job log %s: %w", path, err)
	}
	return &JobLogger{file: file, name: name, path: path}, nil
}

// Path returns the log file's location.
func (l *JobLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Info writes an INFO line.
func (l *JobLogger) Info(message string, structured map[string]interface{}) {
	l.write("INFO", message, structured)
}

// Warning writes a WARNING line.
func (l *JobLogger) Warning(message string, structured map[string]interface{}) {
	l.write("WARNING", message, structured)
}

// Error writes an ERROR line.
func (l *JobLogger) Error(message string, structured map[string]interface{}) {
	l.write("ERROR", message, structured)
}

func (l *JobLogger) write(level, message string, structured map[string]interface{}) {
	if l == nil || l.file == nil {
		return
	}

	line := fmt.Sprintf("%s - %s - %s - %s",
		time.Now().Format("2006-01-02 15:04:05"), l.name, level, message)

	if len(structured) > 0 {
		payload, err := json.Marshal(structured)
		if err != nil {
			log.Printf("[joblog] failed to marshal structured payload: %v", err)
		} else {
			line += " | STRUCTURED: " + string(payload)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.WriteString(line + "\n"); err != nil {
		log.Printf("[joblog] failed to write log line: %v", err)
	}
}

// Close flushes and closes the underlying file.
func (l *JobLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}
