package recordlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
)

// Log is a fully read collection log.
type Log struct {
	Header []string
	Rows   [][]string
}

// Column returns the index of name in the header, or -1.
func (l Log) Column(name string) int {
	for i, h := range l.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Read loads the whole log. Rows shorter than the header are returned as
// stored; callers treat absent cells as missing.
func Read(path string) (Log, error) {
	f, err := os.Open(path)
	if err != nil {
		return Log{}, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return Log{}, nil
	}
	if err != nil {
		return Log{}, fmt.Errorf("read header: %w", err)
	}

	out := Log{Header: header}
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Log{}, fmt.Errorf("read row %d: %w", len(out.Rows)+1, err)
		}
		out.Rows = append(out.Rows, rec)
	}
	return out, nil
}
