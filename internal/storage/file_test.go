package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestFileStorage_Init(t *testing.T) {
	baseDir := filepath.Join(t.TempDir(), DefaultBaseDir)

	fs := NewFileStorage(WithBaseDir(baseDir))
	if err := fs.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	if _, err := os.Stat(fs.GetLogsDir()); os.IsNotExist(err) {
		t.Errorf("Init() did not create directory %s", fs.GetLogsDir())
	}
}

func TestFileStorage_WriteSessionLog(t *testing.T) {
	baseDir := filepath.Join(t.TempDir(), DefaultBaseDir)
	fs := NewFileStorage(WithBaseDir(baseDir))

	started := time.Date(2026, 3, 4, 5, 6, 7, 0, time.Local)
	path, err := fs.WriteSessionLog(&SessionLog{
		Mode:      "coding",
		StartedAt: started,
		Duration:  1500 * time.Millisecond,
		Prompt:    "implement the next feature",
		Stdout:    "done",
		Stderr:    "warning: slow",
	})
	if err != nil {
		t.Fatalf("WriteSessionLog() error = %v", err)
	}

	if want := filepath.Join(baseDir, LogsDir, "20260304_050607_coding.log"); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	for _, want := range []string{
		"Session Type: coding\n",
		"Duration: 1.5s\n",
		"PROMPT:\n" + sectionRule + "\n\nimplement the next feature\n",
		"STDOUT:\n" + sectionRule + "\n\ndone\n",
		"STDERR:\n" + sectionRule + "\n\nwarning: slow\n",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("log missing %q\n---\n%s", want, content)
		}
	}
}

func TestFileStorage_WriteSessionLog_EmptyStdout(t *testing.T) {
	fs := NewFileStorage(WithBaseDir(t.TempDir()))
	path, err := fs.WriteSessionLog(&SessionLog{Mode: "initializer", StartedAt: time.Now()})
	if err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "(empty)") {
		t.Error("empty stdout should be rendered as (empty)")
	}
	if strings.Contains(string(data), "STDERR:") {
		t.Error("STDERR section should be omitted when stderr is empty")
	}
}

func TestFileStorage_WriteSessionLog_RequiresMode(t *testing.T) {
	fs := NewFileStorage(WithBaseDir(t.TempDir()))
	if _, err := fs.WriteSessionLog(&SessionLog{}); !errors.Is(err, ErrModeRequired) {
		t.Fatalf("error = %v, want ErrModeRequired", err)
	}
}

func TestFileStorage_Records(t *testing.T) {
	fs := NewFileStorage(WithBaseDir(t.TempDir()))

	records, err := fs.ListRecords()
	if err != nil {
		t.Fatalf("ListRecords() on empty index error = %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected 0 records, got %d", len(records))
	}

	for i, mode := range []string{"initializer", "coding"} {
		rec := &SessionRecord{ID: mode + "-id", Number: i + 1, Mode: mode, Status: "continue"}
		if err := fs.AppendRecord(rec); err != nil {
			t.Fatalf("AppendRecord() error = %v", err)
		}
	}

	// A corrupt line must not hide the rest of the history.
	f, err := os.OpenFile(fs.IndexPath(), os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString("{not json\n")
	_ = f.Close()
	if err := fs.AppendRecord(&SessionRecord{ID: "third", Number: 3, Mode: "coding", RolledBack: true}); err != nil {
		t.Fatal(err)
	}

	records, err = fs.ListRecords()
	if err != nil {
		t.Fatalf("ListRecords() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].Mode != "initializer" || records[2].ID != "third" || !records[2].RolledBack {
		t.Errorf("unexpected records: %+v", records)
	}
}

func TestFileStorage_AppendRecord_RequiresID(t *testing.T) {
	fs := NewFileStorage(WithBaseDir(t.TempDir()))
	if err := fs.AppendRecord(&SessionRecord{}); !errors.Is(err, ErrSessionIDRequired) {
		t.Fatalf("error = %v, want ErrSessionIDRequired", err)
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "test.txt")

	err := WriteFileAtomic(path, 0644, func(w io.Writer) error {
		_, err := w.Write([]byte("test content"))
		return err
	})
	if err != nil {
		t.Fatalf("WriteFileAtomic() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "test content" {
		t.Errorf("content = %q", string(data))
	}

	files, _ := filepath.Glob(filepath.Join(dir, "nested", ".test.txt.tmp-*"))
	if len(files) > 0 {
		t.Errorf("Temp files left behind: %v", files)
	}
}

func TestWriteFileAtomic_WriteErrorKeepsOriginal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keep.txt")
	if err := os.WriteFile(path, []byte("original"), 0644); err != nil {
		t.Fatal(err)
	}

	err := WriteFileAtomic(path, 0644, func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected error")
	}

	if !strings.Contains(err.Error(), path) {
		t.Errorf("error %q does not name the file", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "original" {
		t.Errorf("original file was modified: %q", string(data))
	}
	if files, _ := filepath.Glob(filepath.Join(filepath.Dir(path), ".keep.txt.tmp-*")); len(files) > 0 {
		t.Errorf("temp files left behind: %v", files)
	}
}

func TestWriteFileAtomic_Permissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}
	dir := t.TempDir()
	write := func(path string, perm os.FileMode) {
		t.Helper()
		if err := WriteFileAtomic(path, perm, func(w io.Writer) error {
			_, err := io.WriteString(w, "x")
			return err
		}); err != nil {
			t.Fatalf("WriteFileAtomic(%s) error = %v", path, err)
		}
	}

	fresh := filepath.Join(dir, "fresh.json")
	write(fresh, 0600)
	if info, _ := os.Stat(fresh); info.Mode().Perm() != 0600 {
		t.Errorf("new file mode = %v, want 0600", info.Mode().Perm())
	}

	existing := filepath.Join(dir, "feature_list.json")
	if err := os.WriteFile(existing, []byte("[]"), 0640); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(existing, 0640); err != nil {
		t.Fatal(err)
	}
	write(existing, 0644)
	if info, _ := os.Stat(existing); info.Mode().Perm() != 0640 {
		t.Errorf("existing file mode = %v, want 0640 kept", info.Mode().Perm())
	}
}
