// Package journal writes practice conversations as NDJSON, one file per
// candidate session plus an optional global stream.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Event types written by the practice loop.
const (
	EventUserUtterance    = "user_utterance"
	EventAssistantReply   = "assistant_reply"
	EventTurnFailed       = "turn_failed"
	EventRecognitionError = "recognition_error"
	EventSessionEnded     = "session_ended"
)

// Config controls journaling.
type Config struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Event is one NDJSON line.
type Event struct {
	Timestamp  string         `json:"ts"`
	UserID     string         `json:"user_id"`
	SessionID  string         `json:"session_id"`
	Channel    string         `json:"channel"`
	Direction  string         `json:"direction"`
	EventType  string         `json:"event_type"`
	Turn       int            `json:"turn,omitempty"`
	ContentRaw string         `json:"content_raw,omitempty"`
	Content    string         `json:"content,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// Logger records conversation events. Log never blocks the caller.
type Logger interface {
	Log(event Event)
	Close() error
}

// Nop discards everything.
type Nop struct{}

// Log implements Logger.
func (Nop) Log(Event) {}

// Close implements Logger.
func (Nop) Close() error { return nil }

type fileLogger struct {
	cfg    Config
	logger *slog.Logger
	queue  chan Event
	done   chan struct{}

	mu     sync.Mutex
	closed bool
	files  map[string]*os.File
}

var unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// NewLogger returns a Logger for cfg. A disabled config yields Nop.
func NewLogger(cfg Config, logger *slog.Logger) (Logger, error) {
	if !cfg.Enabled {
		return Nop{}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	if cfg.GlobalEnabled {
		if err := os.MkdirAll(filepath.Dir(cfg.GlobalPath), 0755); err != nil {
			return nil, fmt.Errorf("create global journal directory: %w", err)
		}
	}

	l := &fileLogger{
		cfg:    cfg,
		logger: logger,
		queue:  make(chan Event, cfg.QueueSize),
		done:   make(chan struct{}),
		files:  make(map[string]*os.File),
	}
	go l.run()
	return l, nil
}

func (l *fileLogger) Log(event Event) {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if event.Content == "" && event.ContentRaw != "" {
		event.Content = cleanForReadability(event.ContentRaw)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- event:
	default:
		l.logger.Warn("Conversation journal queue full, dropping event",
			"session_id", event.SessionID, "event_type", event.EventType)
	}
}

func (l *fileLogger) run() {
	defer close(l.done)
	for event := range l.queue {
		line, err := json.Marshal(event)
		if err != nil {
			l.logger.Warn("Failed to marshal journal event", "error", err)
			continue
		}
		line = append(line, '\n')

		if err := l.write(l.sessionPath(event), line); err != nil {
			l.logger.Warn("Failed to write journal event", "session_id", event.SessionID, "error", err)
		}
		if l.cfg.GlobalEnabled {
			if err := l.write(l.cfg.GlobalPath, line); err != nil {
				l.logger.Warn("Failed to write global journal event", "error", err)
			}
		}
	}
}

func (l *fileLogger) sessionPath(event Event) string {
	user := sanitizePathPart(event.UserID, "unknown")
	session := sanitizePathPart(event.SessionID, "default")
	return filepath.Join(l.cfg.Dir, user, session+".ndjson")
}

func (l *fileLogger) write(path string, line []byte) error {
	f, ok := l.files[path]
	if !ok {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("create journal dir: %w", err)
		}
		var err error
		f, err = os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("open journal file: %w", err)
		}
		l.files[path] = f
	}
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("append journal line: %w", err)
	}
	return nil
}

// Close drains pending events and closes all files.
func (l *fileLogger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	<-l.done

	var errs []error
	for path, f := range l.files {
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}

func sanitizePathPart(s, fallback string) string {
	s = unsafePathChars.ReplaceAllString(strings.TrimSpace(s), "_")
	s = strings.Trim(s, ".")
	if s == "" {
		return fallback
	}
	return s
}

// cleanForReadability collapses whitespace and drops control characters from
// recognizer output.
func cleanForReadability(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r == '\n' || r == '\t' || r == '\r' {
			b.WriteRune(' ')
			continue
		}
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
