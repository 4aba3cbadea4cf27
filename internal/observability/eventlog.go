package observability

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// DefaultEventLogFile is the event log file name in the base path.
const DefaultEventLogFile = ".heady_events.jsonl"

// Event is one line of the audit trail.
type Event struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Type    string         `json:"type"`
	Message string         `json:"msg"`
	Data    map[string]any `json:"data,omitempty"`
}

// EventFilter selects events on Read. Zero fields match everything.
type EventFilter struct {
	Since *time.Time
	Until *time.Time
	// Type matches exactly; TypePrefix matches a dotted family such as "task.".
	Type       string
	TypePrefix string
	Level      string
	// Limit keeps only the most recent matches when positive.
	Limit int
}

func (f EventFilter) match(e Event) bool {
	switch {
	case f.Since != nil && e.Time.Before(*f.Since):
		return false
	case f.Until != nil && e.Time.After(*f.Until):
		return false
	case f.Type != "" && e.Type != f.Type:
		return false
	case f.TypePrefix != "" && !strings.HasPrefix(e.Type, f.TypePrefix):
		return false
	case f.Level != "" && e.Level != f.Level:
		return false
	}
	return true
}

// EventLog appends and queries events.
type EventLog interface {
	Write(event Event) error
	Read(filter EventFilter) ([]Event, error)
	Close() error
}

// jsonlEventLog appends one JSON document per line. Lines that fail to decode
// are skipped on read.
type jsonlEventLog struct {
	mu   sync.Mutex
	path string
	f    *os.File
	enc  *json.Encoder
}

// NewJSONLEventLog opens (or creates) the JSONL file at path for appending.
func NewJSONLEventLog(path string) (EventLog, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	return &jsonlEventLog{path: path, f: f, enc: json.NewEncoder(f)}, nil
}

func (l *jsonlEventLog) Write(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return errors.New("event log closed")
	}
	if err := l.enc.Encode(event); err != nil {
		return fmt.Errorf("appending event: %w", err)
	}
	return nil
}

func (l *jsonlEventLog) Read(filter EventFilter) ([]Event, error) {
	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening event log for reading: %w", err)
	}
	defer f.Close()

	var out []Event
	r := bufio.NewReader(f)
	for {
		line, rerr := r.ReadBytes('\n')
		if line = bytes.TrimSpace(line); len(line) > 0 {
			var e Event
			if json.Unmarshal(line, &e) == nil && filter.match(e) {
				out = append(out, e)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, fmt.Errorf("reading event log: %w", rerr)
		}
	}

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}
	return out, nil
}

func (l *jsonlEventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	if err != nil {
		return fmt.Errorf("closing event log: %w", err)
	}
	return nil
}

// Recorder adapts an EventLog to the LogEvent(type, data) shape used by the
// dispatcher, pollers and coordinator. Failure events are logged at WARN.
type Recorder struct {
	log EventLog
	now func() time.Time
}

// NewRecorder wraps log.
func NewRecorder(log EventLog) *Recorder {
	return &Recorder{log: log, now: time.Now}
}

// LogEvent writes one event with a message derived from its type.
func (r *Recorder) LogEvent(eventType string, data map[string]any) error {
	return r.log.Write(Event{
		Time:    r.now().UTC(),
		Level:   levelFor(eventType, data),
		Type:    eventType,
		Message: strings.ReplaceAll(eventType, ".", " "),
		Data:    data,
	})
}

func levelFor(eventType string, data map[string]any) string {
	if strings.HasSuffix(eventType, ".failed") {
		return "WARN"
	}
	if status, _ := data["status"].(string); status == "unhealthy" {
		return "WARN"
	}
	return "INFO"
}
