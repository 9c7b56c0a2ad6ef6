// Package snapshot reads and writes the identifier file that bridges
// enumeration and queue loading: plain text, one identifier per line.
package snapshot

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Writer appends identifiers to a snapshot file
type Writer struct {
	file  *os.File
	buf   *bufio.Writer
	count int64
}

// Create truncates or creates the snapshot at path
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot: %w", err)
	}
	return &Writer{file: f, buf: bufio.NewWriter(f)}, nil
}

// Add writes one identifier followed by a newline
func (w *Writer) Add(id string) error {
	if strings.ContainsAny(id, "\r\n") {
		return fmt.Errorf("identifier %q contains a line break", id)
	}
	if _, err := w.buf.WriteString(id); err != nil {
		return err
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return err
	}
	w.count++
	return nil
}

// Count returns the number of identifiers written so far
func (w *Writer) Count() int64 {
	return w.count
}

// Close flushes buffered lines, syncs and closes the file. The snapshot is
// only complete once Close returns nil.
func (w *Writer) Close() error {
	flushErr := w.buf.Flush()
	syncErr := w.file.Sync()
	closeErr := w.file.Close()

	switch {
	case flushErr != nil:
		return fmt.Errorf("failed to flush snapshot: %w", flushErr)
	case syncErr != nil:
		return fmt.Errorf("failed to sync snapshot: %w", syncErr)
	case closeErr != nil:
		return fmt.Errorf("failed to close snapshot: %w", closeErr)
	}
	return nil
}

// Read calls fn for every identifier in the snapshot, in file order.
// Surrounding whitespace is trimmed and blank lines are skipped. Reading
// stops at the first error returned by fn.
func Read(path string, fn func(id string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		id := strings.TrimSpace(scanner.Text())
		if id == "" {
			continue
		}
		if err := fn(id); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	return nil
}
