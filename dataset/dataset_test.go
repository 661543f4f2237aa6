package dataset

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/jyscao/tail-risk/internal/errs"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestReadCSV(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "prices.csv", "Date,DE 10Y,IT 10Y\n01-01-2020,1.5,2\n02-01-2020,,2.5\n")

	frame, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "prices", frame.Name())
	assert.Equal(t, []string{"01-01-2020", "02-01-2020"}, frame.Index())
	assert.Equal(t, []string{"DE 10Y", "IT 10Y"}, frame.Columns())

	v, ok := frame.At("01-01-2020", "DE 10Y")
	require.True(t, ok)
	assert.Equal(t, 1.5, v)
	v, ok = frame.At("02-01-2020", "DE 10Y")
	require.True(t, ok)
	assert.True(t, math.IsNaN(v))
}

func TestReadTabSeparated(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "xmins.txt", "Date\tA\n01-01-2020\t0.1\n")

	frame, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, frame.Len())
	col, ok := frame.Column("A")
	require.True(t, ok)
	assert.Equal(t, []float64{0.1}, col)
}

func TestReadWorkbook(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "book.xlsx")

	book := excelize.NewFile()
	require.NoError(t, book.SetCellValue("Sheet1", "A1", "Date"))
	require.NoError(t, book.SetCellValue("Sheet1", "B1", "X"))
	require.NoError(t, book.SetCellValue("Sheet1", "A2", "03-02-2020"))
	require.NoError(t, book.SetCellValue("Sheet1", "B2", "4"))
	require.NoError(t, book.SaveAs(path))
	require.NoError(t, book.Close())

	frame, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"03-02-2020"}, frame.Index())
	v, _ := frame.At("03-02-2020", "X")
	assert.Equal(t, 4.0, v)
}

func TestReadFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadFile(filepath.Join(dir, "absent.csv"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrMissingResource))

	json := writeFile(t, dir, "data.json", "{}")
	_, err = ReadFile(json)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrType))

	noIndex := writeFile(t, dir, "bad.csv", "When,A\n1,2\n")
	_, err = ReadFile(noIndex)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrValue))

	dup := writeFile(t, dir, "dup.csv", "Date,A\nx,1\nx,2\n")
	_, err = ReadFile(dup)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrValue))
}

func TestFrameLookups(t *testing.T) {
	frame, err := NewFrame("t", []string{"a", "b", "c", "d", "e"}, []string{"x"}, nil)
	require.NoError(t, err)

	label, ok := frame.Label(-1)
	require.True(t, ok)
	assert.Equal(t, "e", label)
	_, ok = frame.Label(5)
	assert.False(t, ok)

	pos, ok := frame.Position("c")
	require.True(t, ok)
	assert.Equal(t, 2, pos)

	got, err := frame.Slice("a", "e", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "e"}, got)

	got, err = frame.Slice("b", "d", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "d"}, got)

	_, err = frame.Slice("a", "z", 1)
	assert.True(t, errors.Is(err, errs.ErrMissingResource))
	_, err = frame.Slice("a", "b", 0)
	assert.True(t, errors.Is(err, errs.ErrRange))
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "x.csv", "Date,A\n01-01-2020,1\n")

	src := FileSource{Dir: dir}
	assert.True(t, src.Exists("x.csv"))
	assert.False(t, src.Exists("y.csv"))
	assert.False(t, src.Exists(""))

	table, err := src.Open("x.csv")
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())
}
