package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	errs "glexport/pkg/errors"
	"glexport/pkg/lock"
	"glexport/pkg/logger"
)

// WriterOptions control record serialization
type WriterOptions struct {
	// Pretty switches from compact one-line records to indented JSON
	Pretty bool
	// Compression transform applied to each serialized batch
	Compression Compression
}

// Writer appends or rewrites batches of serialized records, always inside
// the target file's advisory lock. It never retries I/O; only lock
// acquisition is retried, inside FileLock itself.
type Writer struct {
	resolver *Resolver
	flock    *lock.FileLock
	opts     WriterOptions
	logger   logger.Logger
}

// NewWriter creates a record writer over the given resolver and lock
func NewWriter(resolver *Resolver, flock *lock.FileLock, opts WriterOptions) *Writer {
	return &Writer{
		resolver: resolver,
		flock:    flock,
		opts:     opts,
		logger:   logger.GetLogger(),
	}
}

// Write serializes records one per line and writes them to path under the
// file's lock. An empty batch writes nothing and creates no file: absence
// of a file means "no data", not "empty dataset". Returns the number of
// records written.
//
// With append true and an existing file, the batch is appended as a single
// buffered write. Otherwise the file is replaced via a temp file and an
// atomic rename, so a crash mid-write never exposes a partial record.
func (w *Writer) Write(path string, records []interface{}, append bool) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	data, err := w.serialize(records)
	if err != nil {
		return 0, err
	}
	data, err = transform(data, w.opts.Compression)
	if err != nil {
		return 0, err
	}

	err = w.flock.WithLock(path, func() error {
		if append {
			if _, statErr := os.Stat(path); statErr == nil {
				return appendFile(path, data)
			}
		}
		return replaceFile(path, data)
	})
	if err != nil {
		// Contention keeps its own type so callers can tell it from disk failures
		return 0, err
	}

	w.logger.DebugWithFields("records written", map[string]interface{}{
		"path":    path,
		"records": len(records),
		"append":  append,
	})
	return len(records), nil
}

// WriteResource resolves the target path for a hierarchy and resource type
// and writes the batch there.
func (w *Writer) WriteResource(hierarchy []string, resourceType string, records []interface{}, append bool) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	path, err := w.resolver.Resolve(hierarchy, resourceType)
	if err != nil {
		return 0, err
	}
	return w.Write(path, records, append)
}

// serialize renders each record followed by a newline
func (w *Writer) serialize(records []interface{}) ([]byte, error) {
	var buf bytes.Buffer
	for _, record := range records {
		var (
			line []byte
			err  error
		)
		if w.opts.Pretty {
			line, err = json.MarshalIndent(record, "", "  ")
		} else {
			line, err = json.Marshal(record)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to serialize record: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// appendFile writes data to the end of path as one buffered write
func appendFile(path string, data []byte) error {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return errs.NewIO(path, err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return errs.NewIO(path, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return errs.NewIO(path, err)
	}
	if err := file.Close(); err != nil {
		return errs.NewIO(path, err)
	}
	return nil
}

// replaceFile writes data to a temp file, syncs, and renames it over path
func replaceFile(path string, data []byte) error {
	tempPath := path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return errs.NewIO(path, err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tempPath)
		return errs.NewIO(path, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return errs.NewIO(path, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return errs.NewIO(path, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return errs.NewIO(path, err)
	}
	return nil
}
