package csvlog

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"firewatch/internal/errors"
	"firewatch/internal/models"
)

// Sink appends every reading as one CSV row. Writes are serialized so
// concurrent requests never interleave partial rows.
type Sink struct {
	sem    chan struct{} // held while writing; select-able so waits honor ctx
	path   string
	file   *os.File // nil after a failed write until the next reopen
	closed bool
}

// Open opens path for appending, creating it with a header row if it does
// not exist or is empty.
func Open(path string) (*Sink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.New().Wrap(errors.ErrStorageInit, err)
	}

	s := &Sink{
		sem:  make(chan struct{}, 1),
		path: path,
	}
	if err := s.reopen(); err != nil {
		return nil, errors.New().Wrap(errors.ErrStorageInit, err)
	}
	return s, nil
}

// reopen opens the file in append mode. A new file gets the header; a file
// left without a trailing newline by an interrupted write is terminated so
// the next row starts on its own line.
func (s *Sink) reopen() error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}

	var prefix []byte
	if stat.Size() == 0 {
		prefix, err = encode(models.LogHeader)
		if err != nil {
			f.Close()
			return err
		}
	} else {
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, stat.Size()-1); err != nil {
			f.Close()
			return err
		}
		if last[0] != '\n' {
			prefix = []byte{'\n'}
		}
	}

	if len(prefix) > 0 {
		if _, err := f.Write(prefix); err != nil {
			f.Close()
			return err
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return err
		}
	}

	s.file = f
	return nil
}

func (s *Sink) Name() string { return "csv" }

// Path returns the log file location
func (s *Sink) Path() string { return s.path }

// Append writes one row for r and syncs it to disk. Waiting for a
// concurrent writer is bounded by ctx.
func (s *Sink) Append(ctx context.Context, r models.Reading) error {
	errFactory := errors.New()

	if err := s.acquire(ctx); err != nil {
		return errFactory.Wrap(errors.ErrSinkWrite, err)
	}
	defer s.release()

	if err := ctx.Err(); err != nil {
		return errFactory.Wrap(errors.ErrSinkWrite, err)
	}
	if s.closed {
		return errFactory.WithData(errors.ErrSinkWrite, "log is closed")
	}

	if s.file == nil {
		if err := s.reopen(); err != nil {
			return errFactory.Wrap(errors.ErrSinkWrite, err)
		}
	}

	if err := s.writeRow(r.Record()); err != nil {
		// drop the handle; the next append reopens and repairs the tail
		s.file.Close()
		s.file = nil
		return errFactory.Wrap(errors.ErrSinkWrite, err)
	}
	return nil
}

func (s *Sink) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sink) release() {
	<-s.sem
}

// writeRow must be called with the semaphore held
func (s *Sink) writeRow(row []string) error {
	data, err := encode(row)
	if err != nil {
		return err
	}
	if _, err := s.file.Write(data); err != nil {
		return err
	}
	return s.file.Sync()
}

// encode renders one CSV record, newline included
func encode(row []string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(row); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Close releases the file handle
func (s *Sink) Close() error {
	s.sem <- struct{}{}
	defer s.release()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// ReadAll parses every data row of the log at path, oldest first. Rows
// that cannot be parsed are skipped and counted.
func ReadAll(path string) ([]models.Reading, int, error) {
	errFactory := errors.New()

	f, err := os.Open(path)
	if err != nil {
		return nil, 0, errFactory.Wrap(errors.ErrStorageRead, err)
	}
	defer f.Close()

	reader := csv.NewReader(bufio.NewReader(f))
	reader.FieldsPerRecord = -1

	var (
		out     []models.Reading
		skipped int
		line    int
	)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			return out, skipped, nil
		}
		line++
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				skipped++
				continue
			}
			return nil, 0, errFactory.Wrap(errors.ErrStorageRead, err)
		}
		if line == 1 && row[0] == models.LogHeader[0] {
			continue
		}

		r, err := parseRow(row)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, r)
	}
}

func parseRow(row []string) (models.Reading, error) {
	if len(row) != len(models.LogHeader) {
		return models.Reading{}, fmt.Errorf("want %d fields, got %d", len(models.LogHeader), len(row))
	}

	ts, err := models.ParseTimestamp(row[0])
	if err != nil {
		return models.Reading{}, err
	}

	var vals [4]float64
	for i := range vals {
		v, err := strconv.ParseFloat(row[i+1], 64)
		if err != nil {
			return models.Reading{}, fmt.Errorf("%s: %w", models.LogHeader[i+1], err)
		}
		vals[i] = v
	}

	return models.Reading{
		Timestamp: ts,
		Temp:      vals[0],
		Hum:       vals[1],
		Gas:       vals[2],
		Flame:     vals[3],
		Status:    row[5],
	}, nil
}
