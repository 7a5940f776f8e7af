package eventlog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Sink receives a machine's entries in order. Implementations must not
// reorder or mutate entries once accepted.
type Sink interface {
	Append(e Entry) error
	Close() error
}

// File is a Sink writing the line format to a file opened in append mode.
type File struct {
	mu     sync.Mutex
	f      *os.File
	path   string
	closed bool
}

// Path returns the log file path for a machine inside dir.
func Path(dir string, machineID int) string {
	return filepath.Join(dir, fmt.Sprintf("vm_%d.log", machineID))
}

// OpenFile opens (creating if needed) the log file for machineID in dir.
func OpenFile(dir string, machineID int) (*File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	path := Path(dir, machineID)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	return &File{f: f, path: path}, nil
}

// Path returns the file's location.
func (l *File) Path() string {
	return l.path
}

// Append writes one line. The write goes straight to the file descriptor,
// so readers see complete lines without an explicit flush.
func (l *File) Append(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return fmt.Errorf("append to %s: %w", l.path, os.ErrClosed)
	}
	if _, err := l.f.WriteString(e.Format()); err != nil {
		return fmt.Errorf("append to %s: %w", l.path, err)
	}
	return nil
}

// Close closes the file. Safe to call more than once.
func (l *File) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.f.Close()
}

// multi fans entries out to several sinks.
type multi []Sink

// Multi returns a Sink that appends to every non-nil sink in order.
// Every sink is attempted even if an earlier one fails.
func Multi(sinks ...Sink) Sink {
	var m multi
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	if len(m) == 1 {
		return m[0]
	}
	return m
}

func (m multi) Append(e Entry) error {
	var errs []error
	for _, s := range m {
		if err := s.Append(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
