package logging

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"
)

// Entry is one parsed debug log line.
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"msg"`
	RunID   string         `json:"run_id,omitempty"`
	Task    string         `json:"task,omitempty"`
	Step    string         `json:"step,omitempty"`
	Group   string         `json:"group,omitempty"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// Query narrows entries. Zero fields match everything; set fields are
// combined with AND.
type Query struct {
	// Level is the minimum level.
	Level string
	RunID string
	Task  string
	// Step matches the step id case-insensitively, or any step nested
	// below it ("Web" matches "Web.Bundle").
	Step     string
	Since    time.Time
	Contains string
}

var levelOrder = map[string]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

const maxLineSize = 1024 * 1024

// ReadEntries loads debug.log from logDir together with its rotated
// backups, sorted by time. Unparseable lines are dropped.
func ReadEntries(logDir string) ([]Entry, error) {
	path := filepath.Join(logDir, FileName)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no debug log in %s: %w", logDir, err)
		}
		return nil, fmt.Errorf("failed to stat debug log: %w", err)
	}

	var entries []Entry
	for _, p := range logFiles(path) {
		got, err := readFile(p)
		if err != nil {
			return nil, err
		}
		entries = append(entries, got...)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Time.Before(entries[j].Time)
	})
	return entries, nil
}

// logFiles lists the active file and every consecutive backup, oldest first.
func logFiles(path string) []string {
	files := []string{path}
	for n := 1; ; n++ {
		backup := BackupPath(path, n)
		if _, err := os.Stat(backup); err == nil {
			files = append(files, backup)
			continue
		}
		if _, err := os.Stat(backup + ".gz"); err == nil {
			files = append(files, backup+".gz")
			continue
		}
		break
	}
	slices.Reverse(files)
	return files
}

func readFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		defer func() { _ = zr.Close() }()
		r = zr
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var entries []Entry
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if entry, err := ParseEntry(line); err == nil {
			entries = append(entries, entry)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}
	return entries, nil
}

// ParseEntry parses one JSON log line.
func ParseEntry(line string) (Entry, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Entry{}, fmt.Errorf("invalid JSON: %w", err)
	}

	entry := Entry{Attrs: make(map[string]any)}
	for k, v := range raw {
		s, _ := v.(string)
		switch k {
		case "time":
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
				entry.Time = t
			}
		case "level":
			entry.Level = s
		case "msg":
			entry.Message = s
		case KeyRun:
			entry.RunID = s
		case KeyTask:
			entry.Task = s
		case KeyStep:
			entry.Step = s
		case KeyGroup:
			entry.Group = s
		default:
			entry.Attrs[k] = v
		}
	}
	return entry, nil
}

// FilterEntries returns the entries matching q.
func FilterEntries(entries []Entry, q Query) []Entry {
	var out []Entry
	for _, e := range entries {
		if q.matches(e) {
			out = append(out, e)
		}
	}
	return out
}

func (q Query) matches(e Entry) bool {
	if q.Level != "" {
		want := levelOrder[ParseLevel(q.Level)]
		if got, ok := levelOrder[e.Level]; ok && got < want {
			return false
		}
	}
	if !q.Since.IsZero() && e.Time.Before(q.Since) {
		return false
	}
	if q.RunID != "" && e.RunID != q.RunID {
		return false
	}
	if q.Task != "" && !strings.EqualFold(e.Task, q.Task) {
		return false
	}
	if q.Step != "" {
		id, want := strings.ToLower(e.Step), strings.ToLower(q.Step)
		if id != want && !strings.HasPrefix(id, want+".") {
			return false
		}
	}
	if q.Contains != "" && !strings.Contains(e.Message, q.Contains) {
		return false
	}
	return true
}

// LastRunID returns the run id of the newest entry that has one.
func LastRunID(entries []Entry) string {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].RunID != "" {
			return entries[i].RunID
		}
	}
	return ""
}

// WriteEntries prints entries as "text" (one readable line each) or "json"
// (an indented array).
func WriteEntries(w io.Writer, entries []Entry, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if entries == nil {
			entries = []Entry{}
		}
		return enc.Encode(entries)
	case "text", "":
		for _, e := range entries {
			if _, err := fmt.Fprintln(w, formatText(e)); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported log format %q (want text or json)", format)
	}
}

func formatText(e Entry) string {
	var b strings.Builder
	b.WriteString(e.Time.Format("15:04:05.000"))
	fmt.Fprintf(&b, " %-5s", e.Level)
	if e.Step != "" {
		fmt.Fprintf(&b, " [%s]", e.Step)
	}
	b.WriteString(" ")
	b.WriteString(e.Message)

	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Attrs[k])
	}
	return b.String()
}
