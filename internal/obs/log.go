package obs

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"
)

// Log output is one JSON object per line. Every line carries ts, level
// and msg; request ids, principals and audit fields ride alongside.

var (
	logMu  sync.Mutex
	logOut io.Writer = os.Stdout
)

// SetLogOutput redirects log lines and returns the previous writer.
// Tests use it to capture output.
func SetLogOutput(w io.Writer) io.Writer {
	logMu.Lock()
	defer logMu.Unlock()
	prev := logOut
	logOut = w
	return prev
}

// Log emits one line at the given level. The ts, level and msg keys are
// reserved and cannot be overridden by fields.
func Log(level, msg string, fields map[string]any) {
	entry := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		entry[k] = v
	}
	entry["level"] = level
	entry["msg"] = msg
	_ = LogEntry(entry)
}

// LogEntry writes a caller-assembled entry, stamping ts if absent.
// Audit events use it directly to keep their own field layout.
func LogEntry(entry map[string]any) error {
	if _, ok := entry["ts"]; !ok {
		entry["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	logMu.Lock()
	defer logMu.Unlock()
	_, err = logOut.Write(append(data, '\n'))
	return err
}
