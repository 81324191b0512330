// Package extract turns an already-tabulated source document into a RawGrid.
//
// Layout analysis of scanned pages happens upstream; the documents seen here
// are the CSV or JSON tables such a tool emits. The original bytes are kept
// by the caller for content hashing.
package extract

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"turnocal/internal/model"
)

// Document is one uploaded source file.
type Document struct {
	Name string
	Body []byte
}

// Ext returns the lower-cased file extension including the dot.
func (d Document) Ext() string {
	return strings.ToLower(filepath.Ext(d.Name))
}

// Extractor produces a grid of optional text cells from a document.
type Extractor interface {
	Extract(ctx context.Context, doc Document) (model.RawGrid, error)
}

// ErrUnsupported is returned by ForName for an unknown extension.
var ErrUnsupported = errors.New("extract: unsupported document type")

// ForName picks an extractor from the document's file extension.
func ForName(name string) (Extractor, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt", ".tsv":
		return CSV{}, nil
	case ".json":
		return JSON{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, name)
	}
}

// Supported reports whether ForName accepts name.
func Supported(name string) bool {
	_, err := ForName(name)
	return err == nil
}

// CSV reads delimiter-separated text. The delimiter is sniffed from the
// first line (semicolon, tab or comma). Blank cells become nil.
type CSV struct{}

func (CSV) Extract(_ context.Context, doc Document) (model.RawGrid, error) {
	body := bytes.TrimPrefix(doc.Body, []byte("\xef\xbb\xbf"))
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, model.ErrEmptyExtraction
	}

	r := csv.NewReader(bytes.NewReader(body))
	r.Comma = sniffDelimiter(body)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var grid model.RawGrid
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("extract: csv %s: %w", doc.Name, err)
		}
		row := make([]*string, len(rec))
		for i, v := range rec {
			if strings.TrimSpace(v) != "" {
				row[i] = model.Cell(v)
			}
		}
		grid = append(grid, row)
	}
	return compact(grid)
}

func sniffDelimiter(body []byte) rune {
	line := body
	if i := bytes.IndexByte(body, '\n'); i >= 0 {
		line = body[:i]
	}
	best, bestN := ',', bytes.Count(line, []byte{','})
	for _, c := range []rune{';', '\t'} {
		if n := bytes.Count(line, []byte(string(c))); n > bestN {
			best, bestN = c, n
		}
	}
	return best
}

// JSON reads a two-dimensional array of strings and nulls. Numbers and
// booleans are kept as their literal text, except in the first column
// where only strings count as a name.
type JSON struct{}

func (JSON) Extract(_ context.Context, doc Document) (model.RawGrid, error) {
	var raw [][]any
	if err := json.Unmarshal(doc.Body, &raw); err != nil {
		return nil, fmt.Errorf("extract: json %s: %w", doc.Name, err)
	}
	grid := make(model.RawGrid, 0, len(raw))
	for _, rec := range raw {
		row := make([]*string, len(rec))
		for i, v := range rec {
			switch val := v.(type) {
			case nil:
			case string:
				if strings.TrimSpace(val) != "" {
					row[i] = model.Cell(val)
				}
			default:
				if i > 0 {
					row[i] = model.Cell(fmt.Sprint(val))
				}
			}
		}
		grid = append(grid, row)
	}
	return compact(grid)
}

// compact drops rows and columns that are entirely empty. Dropping a
// column empty in every row, header included, shifts the later columns
// left, so a day nobody worked moves the following days one position.
// Header day labels normally keep every day column.
func compact(grid model.RawGrid) (model.RawGrid, error) {
	rows := make(model.RawGrid, 0, len(grid))
	width := 0
	for _, row := range grid {
		if allNil(row) {
			continue
		}
		rows = append(rows, row)
		if len(row) > width {
			width = len(row)
		}
	}
	if len(rows) == 0 || width == 0 {
		return nil, model.ErrEmptyExtraction
	}

	keep := make([]bool, width)
	for _, row := range rows {
		for i, c := range row {
			if c != nil {
				keep[i] = true
			}
		}
	}

	out := make(model.RawGrid, len(rows))
	for r, row := range rows {
		line := make([]*string, 0, width)
		for i := 0; i < width; i++ {
			if !keep[i] {
				continue
			}
			if i < len(row) {
				line = append(line, row[i])
			} else {
				line = append(line, nil)
			}
		}
		out[r] = line
	}
	return out, nil
}

func allNil(row []*string) bool {
	for _, c := range row {
		if c != nil {
			return false
		}
	}
	return true
}
