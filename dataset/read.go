package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/jyscao/tail-risk/internal/errs"
)

// Extensions lists the supported file types in the order they are reported.
var Extensions = []string{".csv", ".txt", ".xlsx"}

// ReadFile loads path into a Frame named after the file stem. A missing file
// is an ErrMissingResource and an unsupported extension is an ErrType.
func ReadFile(path string) (*Frame, error) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		abs, _ := filepath.Abs(path)
		if abs == "" {
			abs = path
		}
		return nil, errs.New(errs.ErrMissingResource, "cannot find file '%s'", abs)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return readDelimited(path, name, ',')
	case ".txt":
		return readDelimited(path, name, '\t')
	case ".xlsx":
		return readWorkbook(path, name)
	default:
		return nil, errs.New(errs.ErrType, "only [%s] files are currently supported; given: %s",
			strings.Join(Extensions, ", "), filepath.Base(path))
	}
}

// FileSource resolves dataset paths on the local filesystem.
type FileSource struct {
	// Dir, when set, anchors relative paths.
	Dir string
}

func (s FileSource) resolve(path string) string {
	if s.Dir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.Dir, path)
}

// Exists reports whether path names a regular file.
func (s FileSource) Exists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(s.resolve(path))
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// Open reads the dataset at path.
func (s FileSource) Open(path string) (Table, error) {
	frame, err := ReadFile(s.resolve(path))
	if err != nil {
		return nil, err
	}
	return frame, nil
}

func readDelimited(path, name string, comma rune) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.New(errs.ErrMissingResource, "cannot find file '%s'", path)
		}
		return nil, fmt.Errorf("dataset: open %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errs.Wrap(errs.ErrValue, fmt.Errorf("dataset %s: %w", name, err))
		}
		records = append(records, record)
	}
	return fromRecords(name, records)
}

func readWorkbook(path, name string) (*Frame, error) {
	book, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrValue, fmt.Errorf("dataset %s: open workbook: %w", name, err))
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, errs.New(errs.ErrValue, "dataset %s: workbook has no sheets", name)
	}
	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, errs.Wrap(errs.ErrValue, fmt.Errorf("dataset %s: read sheet %s: %w", name, sheets[0], err))
	}
	return fromRecords(name, rows)
}

func fromRecords(name string, records [][]string) (*Frame, error) {
	if len(records) == 0 {
		return nil, errs.New(errs.ErrValue, "dataset %s: file is empty", name)
	}
	header := records[0]
	dateCol := -1
	for j, h := range header {
		if strings.TrimSpace(h) == IndexColumn {
			dateCol = j
			break
		}
	}
	if dateCol < 0 {
		return nil, errs.New(errs.ErrValue, "dataset %s: missing %q index column", name, IndexColumn)
	}

	var columns []string
	var colPos []int
	for j, h := range header {
		if j == dateCol {
			continue
		}
		columns = append(columns, strings.TrimSpace(h))
		colPos = append(colPos, j)
	}

	index := make([]string, 0, len(records)-1)
	cells := make([][]float64, 0, len(records)-1)
	for r, record := range records[1:] {
		if dateCol >= len(record) || strings.TrimSpace(record[dateCol]) == "" {
			continue
		}
		row := make([]float64, len(columns))
		for k, j := range colPos {
			row[k] = math.NaN()
			if j >= len(record) {
				continue
			}
			raw := strings.TrimSpace(record[j])
			if raw == "" {
				continue
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, errs.New(errs.ErrValue, "dataset %s: row %d column %s: %q is not a number",
					name, r+2, columns[k], raw)
			}
			row[k] = v
		}
		index = append(index, strings.TrimSpace(record[dateCol]))
		cells = append(cells, row)
	}
	return NewFrame(name, index, columns, cells)
}
