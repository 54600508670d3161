// Package recordlog persists cycle rows to the CSV collection log.
//
// The log's header only ever grows. When a row brings columns the header
// lacks (a disk appeared), the file is rewritten once with the new columns
// appended at the end and every earlier row backfilled with the missing
// token; otherwise the row is appended in place.
package recordlog

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	pdcerrors "github.com/rcourtman/pulse-disk-collector/internal/errors"
	"github.com/rcourtman/pulse-disk-collector/internal/models"
	"github.com/rs/zerolog/log"
)

const component = "recordlog"

var errForeignHeader = errors.New("existing file does not start with a collection log header")

// Writer appends rows to one CSV file. It holds no open handles between calls.
type Writer struct {
	path string
}

// NewWriter returns a Writer for path.
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Path returns the log file location.
func (w *Writer) Path() string { return w.path }

// Append writes row under the log's header, creating or extending the header
// as needed. Every failure is a write error; the row is then lost.
func (w *Writer) Append(row models.CycleRow) error {
	if row.Len() == 0 {
		return pdcerrors.WrapWriteError(w.path, errors.New("empty row"))
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return pdcerrors.WrapWriteError(w.path, err)
	}

	err := withLock(w.path+".lock", func() error {
		header, err := readHeader(w.path)
		if err != nil {
			return err
		}
		if header == nil {
			return w.create(row)
		}

		added := newColumns(header, row.Header())
		if len(added) == 0 {
			return w.appendRow(header, row)
		}
		return w.extend(header, added, row)
	})
	if err != nil {
		return pdcerrors.WrapWriteError(w.path, err)
	}
	return nil
}

func (w *Writer) create(row models.CycleRow) error {
	f, err := os.OpenFile(w.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	header := row.Header()
	if err := writeRecords(f, header, [][]string{cells(header, row)}); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	log.Debug().
		Str("component", component).
		Str("action", "create").
		Str("path", w.path).
		Int("columns", len(header)).
		Msg("Created collection log")
	return nil
}

func (w *Writer) appendRow(header []string, row models.CycleRow) error {
	f, err := os.OpenFile(w.path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(f)
	if err := cw.Write(cells(header, row)); err != nil {
		f.Close()
		return err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// extend rewrites the log with the wider header. Earlier rows get the
// missing token in the new trailing columns.
func (w *Writer) extend(header, added []string, row models.CycleRow) error {
	existing, err := Read(w.path)
	if err != nil {
		return err
	}

	wide := append(append([]string(nil), header...), added...)
	records := make([][]string, 0, len(existing.Rows)+1)
	for _, rec := range existing.Rows {
		padded := make([]string, len(wide))
		copy(padded, rec)
		for i := len(rec); i < len(wide); i++ {
			padded[i] = models.MissingToken
		}
		records = append(records, padded)
	}
	records = append(records, cells(wide, row))

	if err := atomicWrite(w.path, func(out io.Writer) error {
		return writeRecords(out, wide, records)
	}); err != nil {
		return err
	}

	log.Info().
		Str("component", component).
		Str("action", "extend_header").
		Str("path", w.path).
		Strs("added", added).
		Int("backfilled_rows", len(existing.Rows)).
		Msg("Extended collection log header")
	return nil
}

// cells lays the row out under header; columns the row lacks are missing.
func cells(header []string, row models.CycleRow) []string {
	out := make([]string, len(header))
	for i, name := range header {
		v, ok := row.Lookup(name)
		if !ok {
			out[i] = models.MissingToken
			continue
		}
		out[i] = v.String()
	}
	return out
}

func newColumns(header, columns []string) []string {
	have := make(map[string]struct{}, len(header))
	for _, h := range header {
		have[h] = struct{}{}
	}
	var added []string
	for _, c := range columns {
		if _, ok := have[c]; !ok {
			added = append(added, c)
			have[c] = struct{}{}
		}
	}
	return added
}

func writeRecords(out io.Writer, header []string, records [][]string) error {
	bw := bufio.NewWriter(out)
	cw := csv.NewWriter(bw)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(records); err != nil {
		return err
	}
	return bw.Flush()
}

// readHeader returns nil for a missing or empty file.
func readHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) == 0 || header[0] != models.TimestampColumn {
		return nil, errForeignHeader
	}
	return header, nil
}

// atomicWrite replaces path with what fill writes, via a temp file in the
// same directory and a rename.
func atomicWrite(path string, fill func(io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if err := fill(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	tmpPath = ""

	if d, err := os.Open(dir); err == nil {
		d.Sync() //nolint:errcheck
		d.Close()
	}
	return nil
}
