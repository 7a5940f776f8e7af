package eventlog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ReadFile parses every line of a log file.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read event log: %w", err)
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		e, err := Parse(line)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read event log: %w", err)
	}
	return entries, nil
}

// Files returns the machine log files in dir keyed by machine id.
func Files(dir string) (map[int]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "vm_*.log"))
	if err != nil {
		return nil, fmt.Errorf("list event logs: %w", err)
	}
	files := make(map[int]string, len(matches))
	for _, path := range matches {
		name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), "vm_"), ".log")
		id, err := strconv.Atoi(name)
		if err != nil {
			continue
		}
		files[id] = path
	}
	return files, nil
}

// ReadDir parses every machine log in dir keyed by machine id.
func ReadDir(dir string) (map[int][]Entry, error) {
	files, err := Files(dir)
	if err != nil {
		return nil, err
	}
	logs := make(map[int][]Entry, len(files))
	for id, path := range files {
		entries, err := ReadFile(path)
		if err != nil {
			return nil, err
		}
		logs[id] = entries
	}
	return logs, nil
}

// Clean removes every machine log in dir and returns the removed paths in
// sorted order. A missing dir is not an error.
func Clean(dir string) ([]string, error) {
	files, err := Files(dir)
	if err != nil {
		return nil, err
	}
	removed := make([]string, 0, len(files))
	for _, path := range files {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("clean event logs: %w", err)
		}
		removed = append(removed, path)
	}
	sort.Strings(removed)
	return removed, nil
}
