package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/flightbridge/flightbridge/pkg/core"
)

// csvSource reads a CSV file incrementally and yields fixed-size columnar
// batches. Column types are inferred from the first data row; empty cells
// are NULL.
type csvSource struct {
	rdr       *csv.Reader
	names     []string
	types     []core.ColumnType
	batchSize int

	// first holds the row consumed during type inference so that the first
	// batch still contains it.
	first []string
	done  bool
}

func newCSVSource(r io.Reader, batchSize int) (*csvSource, error) {
	rdr := csv.NewReader(r)
	rdr.ReuseRecord = false

	header, err := rdr.Read()
	if err != nil {
		return nil, fmt.Errorf("read CSV header: %w", err)
	}

	s := &csvSource{rdr: rdr, names: header, batchSize: batchSize}

	row, err := rdr.Read()
	if err == io.EOF {
		s.done = true
		s.types = make([]core.ColumnType, len(header))
		for i := range s.types {
			s.types[i] = core.TypeString
		}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read CSV row: %w", err)
	}
	if len(row) != len(header) {
		return nil, fmt.Errorf("CSV row has %d fields, header has %d", len(row), len(header))
	}

	s.first = row
	s.types = make([]core.ColumnType, len(header))
	for i, cell := range row {
		s.types[i] = inferType(cell)
	}
	return s, nil
}

// Next yields the next batch, or nil when the file is exhausted.
func (s *csvSource) Next() (*core.Batch, error) {
	if s.done {
		return nil, nil
	}

	values := make([][]any, len(s.names))
	for i := range values {
		values[i] = make([]any, 0, s.batchSize)
	}

	count := 0
	appendRow := func(row []string) error {
		if len(row) != len(s.names) {
			return fmt.Errorf("CSV row has %d fields, header has %d", len(row), len(s.names))
		}
		for i, cell := range row {
			v, err := parseCell(cell, s.types[i])
			if err != nil {
				return fmt.Errorf("column %q: %w", s.names[i], err)
			}
			values[i] = append(values[i], v)
		}
		count++
		return nil
	}

	if s.first != nil {
		if err := appendRow(s.first); err != nil {
			return nil, err
		}
		s.first = nil
	}

	for count < s.batchSize {
		row, err := s.rdr.Read()
		if err == io.EOF {
			s.done = true
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read CSV row: %w", err)
		}
		if err := appendRow(row); err != nil {
			return nil, err
		}
	}

	if count == 0 {
		return nil, nil
	}

	cols := make([]core.Column, len(s.names))
	for i, name := range s.names {
		cols[i] = core.Column{Name: name, Type: s.types[i], Values: values[i]}
	}
	return core.NewBatch(cols...)
}

const csvTimeLayout = "2006-01-02 15:04:05"

func inferType(cell string) core.ColumnType {
	if cell == "" {
		return core.TypeString
	}
	if _, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return core.TypeInteger
	}
	if _, err := strconv.ParseFloat(cell, 64); err == nil {
		return core.TypeFloat
	}
	switch strings.ToLower(cell) {
	case "true", "false":
		return core.TypeBoolean
	}
	if _, err := time.Parse(time.RFC3339, cell); err == nil {
		return core.TypeTimestamp
	}
	if _, err := time.Parse(csvTimeLayout, cell); err == nil {
		return core.TypeTimestamp
	}
	return core.TypeString
}

func parseCell(cell string, t core.ColumnType) (any, error) {
	if cell == "" && t != core.TypeString {
		return nil, nil
	}
	switch t {
	case core.TypeInteger:
		return strconv.ParseInt(cell, 10, 64)
	case core.TypeFloat:
		return strconv.ParseFloat(cell, 64)
	case core.TypeBoolean:
		return strconv.ParseBool(strings.ToLower(cell))
	case core.TypeTimestamp:
		if ts, err := time.Parse(time.RFC3339, cell); err == nil {
			return ts.UTC(), nil
		}
		ts, err := time.Parse(csvTimeLayout, cell)
		if err != nil {
			return nil, err
		}
		return ts.UTC(), nil
	default:
		return cell, nil
	}
}
