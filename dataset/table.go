// Package dataset provides the read-only tabular collaborator consumed by the
// resolution engine: an ordered row index of date labels plus named columns.
package dataset

import (
	"math"

	"github.com/jyscao/tail-risk/internal/errs"
)

// IndexColumn is the header naming the row index in every supported file.
const IndexColumn = "Date"

// Table is the view of a dataset the resolver needs. Labels are the raw index
// strings as they appear in the source file.
type Table interface {
	Name() string
	Index() []string
	Columns() []string
	Len() int
	Has(label string) bool
	Label(i int) (string, bool)
	Position(label string) (int, bool)
	Slice(from, to string, step int) ([]string, error)
}

// Frame is an in-memory Table with float64 cells. Missing cells hold NaN.
type Frame struct {
	name     string
	index    []string
	columns  []string
	cells    [][]float64
	position map[string]int
}

// NewFrame builds a Frame. cells is row-major and must match index and
// columns in size; nil cells yields an all-NaN frame.
func NewFrame(name string, index, columns []string, cells [][]float64) (*Frame, error) {
	position := make(map[string]int, len(index))
	for i, label := range index {
		if _, dup := position[label]; dup {
			return nil, errs.New(errs.ErrValue, "dataset %s: duplicate %s label %q", name, IndexColumn, label)
		}
		position[label] = i
	}
	if cells == nil {
		cells = make([][]float64, len(index))
		for i := range cells {
			row := make([]float64, len(columns))
			for j := range row {
				row[j] = math.NaN()
			}
			cells[i] = row
		}
	}
	if len(cells) != len(index) {
		return nil, errs.New(errs.ErrValue, "dataset %s: %d rows for %d index labels", name, len(cells), len(index))
	}
	for i, row := range cells {
		if len(row) != len(columns) {
			return nil, errs.New(errs.ErrValue, "dataset %s: row %s has %d cells, want %d", name, index[i], len(row), len(columns))
		}
	}
	return &Frame{
		name:     name,
		index:    append([]string(nil), index...),
		columns:  append([]string(nil), columns...),
		cells:    cells,
		position: position,
	}, nil
}

func (f *Frame) Name() string { return f.name }

// Index returns a copy of the row labels.
func (f *Frame) Index() []string { return append([]string(nil), f.index...) }

// Columns returns a copy of the column names.
func (f *Frame) Columns() []string { return append([]string(nil), f.columns...) }

func (f *Frame) Len() int { return len(f.index) }

func (f *Frame) Has(label string) bool {
	_, ok := f.position[label]
	return ok
}

func (f *Frame) Label(i int) (string, bool) {
	if i < 0 {
		i += len(f.index)
	}
	if i < 0 || i >= len(f.index) {
		return "", false
	}
	return f.index[i], true
}

func (f *Frame) Position(label string) (int, bool) {
	i, ok := f.position[label]
	return i, ok
}

// Slice returns the labels from from to to, both inclusive, taking every
// step-th row starting at from.
func (f *Frame) Slice(from, to string, step int) ([]string, error) {
	if step < 1 {
		return nil, errs.New(errs.ErrRange, "slice step must be >= 1, given %d", step)
	}
	i, ok := f.position[from]
	if !ok {
		return nil, errs.New(errs.ErrMissingResource, "dataset %s: label %q not in index", f.name, from)
	}
	j, ok := f.position[to]
	if !ok {
		return nil, errs.New(errs.ErrMissingResource, "dataset %s: label %q not in index", f.name, to)
	}
	var out []string
	for k := i; k <= j; k += step {
		out = append(out, f.index[k])
	}
	return out, nil
}

// Column returns a copy of the named column.
func (f *Frame) Column(name string) ([]float64, bool) {
	for j, col := range f.columns {
		if col != name {
			continue
		}
		out := make([]float64, len(f.cells))
		for i, row := range f.cells {
			out[i] = row[j]
		}
		return out, true
	}
	return nil, false
}

// At returns the cell at the given label and column.
func (f *Frame) At(label, column string) (float64, bool) {
	i, ok := f.position[label]
	if !ok {
		return 0, false
	}
	for j, col := range f.columns {
		if col == column {
			return f.cells[i][j], true
		}
	}
	return 0, false
}
