// Package transcript keeps a durable, append-only record of every oracle
// exchange as JSON lines, one file per session.
package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Kind distinguishes the two halves of an exchange.
type Kind string

const (
	KindRequest  Kind = "request"
	KindResponse Kind = "response"
	KindError    Kind = "error"
)

// Entry is one transcript record.
type Entry struct {
	Timestamp        time.Time `json:"timestamp"`
	SessionID        string    `json:"session_id"`
	Seq              int       `json:"seq"`
	Kind             Kind      `json:"kind"`
	Stage            string    `json:"stage,omitempty"`
	Model            string    `json:"model,omitempty"`
	Content          string    `json:"content"`
	PromptTokens     int       `json:"prompt_tokens,omitempty"`
	CompletionTokens int       `json:"completion_tokens,omitempty"`
	Cost             float64   `json:"cost,omitempty"`
	Cached           bool      `json:"cached,omitempty"`
}

// Writer appends entries to <dir>/oracle-<session>.jsonl.
// It is safe for concurrent use; entries get increasing sequence numbers.
type Writer struct {
	path      string
	sessionID string
	file      *os.File
	seq       int
	mu        sync.Mutex
}

// FileName returns the transcript file name for a session.
func FileName(sessionID string) string {
	return fmt.Sprintf("oracle-%s.jsonl", sessionID)
}

// NewWriter opens (or creates) the transcript of sessionID under dir.
func NewWriter(dir, sessionID string) (*Writer, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("transcript requires a session id")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create transcript directory: %w", err)
	}

	path := filepath.Join(dir, FileName(sessionID))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript %s: %w", path, err)
	}

	return &Writer{path: path, sessionID: sessionID, file: file}, nil
}

// Append writes e as one JSON line and syncs it to disk before returning.
// Timestamp, SessionID and Seq are filled in when unset.
func (w *Writer) Append(ctx context.Context, e *Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return fmt.Errorf("transcript %s is closed", w.path)
	}

	w.seq++
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.SessionID == "" {
		e.SessionID = w.sessionID
	}
	if e.Seq == 0 {
		e.Seq = w.seq
	}

	jsonData, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to serialize transcript entry: %w", err)
	}
	jsonData = append(jsonData, '\n')

	if _, err := w.file.Write(jsonData); err != nil {
		return fmt.Errorf("failed to write transcript entry: %w", err)
	}

	// Ensure data is written to disk.
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync transcript: %w", err)
	}
	return nil
}

// Path returns the transcript file path.
func (w *Writer) Path() string {
	return w.path
}

// Close closes the transcript file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file != nil {
		err := w.file.Close()
		w.file = nil
		if err != nil {
			return fmt.Errorf("failed to close transcript: %w", err)
		}
	}
	return nil
}

// ReadEntries parses a transcript file. Blank lines are ignored.
func ReadEntries(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}

	var entries []Entry
	for i, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, fmt.Errorf("failed to parse transcript line %d: %w", i+1, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// List returns every transcript file in dir, sorted by name.
func List(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "oracle-*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("failed to list transcripts: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// WriteText renders entries in the plain "LLM REQUEST:" / "LLM RESPONSE:" form.
func WriteText(w io.Writer, entries []Entry) error {
	for i := range entries {
		e := &entries[i]
		var header string
		switch e.Kind {
		case KindRequest:
			header = "LLM REQUEST:"
		case KindResponse:
			header = "LLM RESPONSE:"
		default:
			header = "LLM ERROR:"
		}
		if _, err := fmt.Fprintf(w, "[%s] %s %s\n%s\n", e.Timestamp.Format(time.RFC3339), e.Stage, header, e.Content); err != nil {
			return err
		}
	}
	return nil
}
