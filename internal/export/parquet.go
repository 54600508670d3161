// Package export converts a collection log to columnar formats.
package export

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/parquet-go/parquet-go"
	"github.com/rcourtman/pulse-disk-collector/internal/models"
	"github.com/rcourtman/pulse-disk-collector/internal/recordlog"
	"github.com/rs/zerolog/log"
)

// BatchSize is the number of rows buffered per WriteRows call.
const BatchSize = 1000

// Summary describes a finished export.
type Summary struct {
	Rows    int
	Columns int
	Numeric int
}

// ToParquet writes the collection log at logPath to outPath. A column whose
// every present cell is numeric becomes an optional double; anything else
// an optional string. Missing cells are null.
func ToParquet(logPath, outPath string) (Summary, error) {
	src, err := recordlog.Read(logPath)
	if err != nil {
		return Summary{}, fmt.Errorf("read collection log: %w", err)
	}
	if len(src.Header) == 0 {
		return Summary{}, fmt.Errorf("collection log %s is empty", logPath)
	}

	// parquet.Group orders fields by name; row values must follow that order.
	columns := append([]string(nil), src.Header...)
	sort.Strings(columns)
	position := make(map[string]int, len(src.Header))
	for i, h := range src.Header {
		position[h] = i
	}

	numeric := make([]bool, len(columns))
	group := make(parquet.Group, len(columns))
	sum := Summary{Rows: len(src.Rows), Columns: len(columns)}
	for i, name := range columns {
		numeric[i] = isNumericColumn(src.Rows, position[name])
		if numeric[i] {
			group[name] = parquet.Optional(parquet.Leaf(parquet.DoubleType))
			sum.Numeric++
		} else {
			group[name] = parquet.Optional(parquet.String())
		}
	}
	schema := parquet.NewSchema("cycle_row", group)

	out, err := os.Create(outPath)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to create file: %w", err)
	}
	defer out.Close()

	writer := parquet.NewWriter(out, schema, parquet.Compression(&parquet.Snappy))
	batch := make([]parquet.Row, 0, BatchSize)
	for _, rec := range src.Rows {
		row := make(parquet.Row, len(columns))
		for i, name := range columns {
			row[i] = cellValue(rec, position[name], numeric[i], i)
		}
		batch = append(batch, row)
		if len(batch) == BatchSize {
			if _, err := writer.WriteRows(batch); err != nil {
				return Summary{}, fmt.Errorf("failed to write parquet rows: %w", err)
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if _, err := writer.WriteRows(batch); err != nil {
			return Summary{}, fmt.Errorf("failed to write parquet rows: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return Summary{}, fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	if err := out.Close(); err != nil {
		return Summary{}, err
	}

	log.Info().
		Str("component", "export").
		Str("action", "parquet").
		Str("source", logPath).
		Str("path", outPath).
		Int("rows", sum.Rows).
		Int("columns", sum.Columns).
		Msg("Exported collection log")
	return sum, nil
}

func present(rec []string, idx int) (string, bool) {
	if idx >= len(rec) || rec[idx] == "" || rec[idx] == models.MissingToken {
		return "", false
	}
	return rec[idx], true
}

func isNumericColumn(rows [][]string, idx int) bool {
	seen := false
	for _, rec := range rows {
		cell, ok := present(rec, idx)
		if !ok {
			continue
		}
		if _, err := strconv.ParseFloat(cell, 64); err != nil {
			return false
		}
		seen = true
	}
	return seen
}

func cellValue(rec []string, idx int, numeric bool, column int) parquet.Value {
	cell, ok := present(rec, idx)
	if !ok {
		return parquet.NullValue().Level(0, 0, column)
	}
	if numeric {
		f, _ := strconv.ParseFloat(cell, 64)
		return parquet.DoubleValue(f).Level(0, 1, column)
	}
	return parquet.ByteArrayValue([]byte(cell)).Level(0, 1, column)
}
