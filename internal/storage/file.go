package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	// DefaultBaseDir is the default state directory, relative to the project.
	DefaultBaseDir = ".fastreact-agent"

	// LogsDir holds one transcript per session.
	LogsDir = "logs"

	// IndexFile is the append-only sessions index.
	IndexFile = "sessions.jsonl"

	// logTimestampFormat names log files so they sort chronologically.
	logTimestampFormat = "20060102_150405"

	sectionRule = "======================================================================"
)

// FileStorage implements Storage using the local filesystem.
type FileStorage struct {
	// BaseDir is the state directory (e.g., <project>/.fastreact-agent).
	BaseDir string

	mu sync.Mutex
}

// FileStorageOption configures a FileStorage instance.
type FileStorageOption func(*FileStorage)

// WithBaseDir sets the base directory.
func WithBaseDir(dir string) FileStorageOption {
	return func(fs *FileStorage) {
		fs.BaseDir = dir
	}
}

// NewFileStorage creates a new file-based storage.
func NewFileStorage(opts ...FileStorageOption) *FileStorage {
	fs := &FileStorage{BaseDir: DefaultBaseDir}
	for _, opt := range opts {
		opt(fs)
	}
	return fs
}

// Init creates the required directory structure.
func (fs *FileStorage) Init() error {
	dir := filepath.Join(fs.BaseDir, LogsDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}

// WriteSessionLog writes the session transcript to
// logs/<timestamp>_<mode>.log and returns the path.
func (fs *FileStorage) WriteSessionLog(log *SessionLog) (string, error) {
	if log.Mode == "" {
		return "", ErrModeRequired
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	name := fmt.Sprintf("%s_%s.log", log.StartedAt.Format(logTimestampFormat), log.Mode)
	path := filepath.Join(fs.BaseDir, LogsDir, name)

	if err := WriteFileAtomic(path, 0644, func(w io.Writer) error {
		return formatSessionLog(w, log)
	}); err != nil {
		return "", fmt.Errorf("write session log: %w", err)
	}
	return path, nil
}

// formatSessionLog renders the sectioned transcript: header, prompt, stdout
// and, when present, stderr.
func formatSessionLog(w io.Writer, log *SessionLog) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Session Type: %s\n", log.Mode)
	fmt.Fprintf(&b, "Timestamp: %s\n", log.StartedAt.Format("2006-01-02T15:04:05.000000"))
	fmt.Fprintf(&b, "Duration: %.1fs\n", log.Duration.Seconds())
	writeSection(&b, "PROMPT", log.Prompt)
	stdout := log.Stdout
	if stdout == "" {
		stdout = "(empty)"
	}
	writeSection(&b, "STDOUT", stdout)
	if log.Stderr != "" {
		writeSection(&b, "STDERR", log.Stderr)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeSection(b *strings.Builder, title, body string) {
	fmt.Fprintf(b, "\n%s\n%s:\n%s\n\n%s\n", sectionRule, title, sectionRule, body)
}

// AppendRecord appends a record to the sessions index.
func (fs *FileStorage) AppendRecord(record *SessionRecord) error {
	if record.ID == "" {
		return ErrSessionIDRequired
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	return appendJSONL(fs.IndexPath(), record)
}

// ListRecords returns all records in the sessions index, oldest first.
// Malformed lines are skipped.
func (fs *FileStorage) ListRecords() (records []SessionRecord, err error) {
	f, err := os.Open(fs.IndexPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var record SessionRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue // Skip malformed lines
		}
		records = append(records, record)
	}

	return records, scanner.Err()
}

// Close releases any resources.
func (fs *FileStorage) Close() error {
	return nil // No resources to release for file storage
}

// appendJSONL appends one JSON line to path and syncs it.
func appendJSONL(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer func() {
		_ = f.Close() //nolint:errcheck // sync already called, close best-effort
	}()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write line: %w", err)
	}

	return f.Sync()
}

// GetLogsDir returns the full path to the logs directory.
func (fs *FileStorage) GetLogsDir() string {
	return filepath.Join(fs.BaseDir, LogsDir)
}

// IndexPath returns the full path to the sessions index.
func (fs *FileStorage) IndexPath() string {
	return filepath.Join(fs.BaseDir, IndexFile)
}
