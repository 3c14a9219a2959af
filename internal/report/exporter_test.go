package report

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/blogshot/internal/capture"
)

type dirResolver struct{ dir string }

func (d dirResolver) Resolve(_ string, filename string) (string, error) {
	path := filepath.Join(d.dir, filename)
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	return path, nil
}

func writePNG(t *testing.T, dir, name string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0o600))
}

func open(t *testing.T, data []byte) *excelize.File {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func countPictures(t *testing.T, f *excelize.File, rows int) int {
	t.Helper()
	n := 0
	for row := 2; row <= rows+1; row++ {
		cell, err := excelize.CoordinatesToCellName(screenshotCol, row)
		require.NoError(t, err)
		pics, err := f.GetPictures(SheetName, cell)
		require.NoError(t, err)
		n += len(pics)
	}
	return n
}

func TestLayout(t *testing.T) {
	t.Parallel()

	p, err := Layout(1200, 900)
	require.NoError(t, err)
	assert.InDelta(t, 380, p.TargetWidthPx, 1e-9)
	assert.InDelta(t, 285, p.TargetHeightPx, 1e-9)
	assert.InDelta(t, p.ScaleX, p.ScaleY, 1e-9)
	assert.InDelta(t, 223.75, RowHeight(p.TargetHeightPx), 1e-9)

	_, err = Layout(0, 10)
	require.Error(t, err)
}

func TestExport_EmbedsSuccessfulRows(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writePNG(t, dir, "ok.png", 1200, 900)
	results := []capture.Result{
		capture.Succeeded(capture.Item{Index: 1, Date: "2024-01-05", Name: "Kim", Link: "https://blog.naver.com/a/1", Title: "sheet"}, "Blog Title", "ok.png"),
		capture.Failed(capture.Item{Index: 2, Date: "2024-01-06", Name: "Lee", Link: "https://blog.naver.com/b/2"}, assertErr("timeout")),
		capture.Succeeded(capture.Item{Index: 3, Link: "https://example.com"}, "Gone", "deleted.png"),
	}

	var out bytes.Buffer
	exp := NewExporter(dirResolver{dir: dir}, nil)
	require.NoError(t, exp.Export(context.Background(), "session", results, &out))

	f := open(t, out.Bytes())
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, Columns, rows[0])
	assert.Equal(t, []string{"1", "2024-01-05", "Kim", "https://blog.naver.com/a/1", "Blog Title", "", "success"}, rows[1])
	assert.Equal(t, "failed: timeout", rows[2][6])

	pics, err := f.GetPictures(SheetName, "F2")
	require.NoError(t, err)
	require.Len(t, pics, 1)
	assert.Equal(t, ".png", pics[0].Extension)

	h, err := f.GetRowHeight(SheetName, 2)
	require.NoError(t, err)
	assert.InDelta(t, 223.75, h, 0.01)

	for _, row := range []int{3, 4} {
		h, err := f.GetRowHeight(SheetName, row)
		require.NoError(t, err)
		assert.InDelta(t, MinRowHeightPt, h, 0.01, "row %d", row)
	}
	assert.Equal(t, 1, countPictures(t, f, len(results)), "missing artifacts do not abort the export")
}

func TestExport_ZeroSuccesses(t *testing.T) {
	t.Parallel()

	results := []capture.Result{
		capture.Failed(capture.Item{Index: 1, Link: "https://a.example"}, assertErr("dns")),
		capture.Failed(capture.Item{Index: 2, Link: "https://b.example"}, nil),
	}
	var out bytes.Buffer
	require.NoError(t, NewExporter(dirResolver{dir: t.TempDir()}, nil).Export(context.Background(), "s", results, &out))

	f := open(t, out.Bytes())
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.Zero(t, countPictures(t, f, len(results)))
	for row := 2; row <= 3; row++ {
		h, err := f.GetRowHeight(SheetName, row)
		require.NoError(t, err)
		assert.InDelta(t, MinRowHeightPt, h, 0.01)
	}
}

func TestExport_Idempotent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writePNG(t, dir, "a.png", 1200, 434)
	writePNG(t, dir, "b.png", 1200, 684)
	results := []capture.Result{
		capture.Succeeded(capture.Item{Index: 1}, "A", "a.png"),
		capture.Succeeded(capture.Item{Index: 2}, "B", "b.png"),
		capture.Failed(capture.Item{Index: 3}, assertErr("x")),
	}
	exp := NewExporter(dirResolver{dir: dir}, nil)

	var first, second bytes.Buffer
	require.NoError(t, exp.Export(context.Background(), "s", results, &first))
	require.NoError(t, exp.Export(context.Background(), "s", results, &second))

	f1, f2 := open(t, first.Bytes()), open(t, second.Bytes())
	rows1, err := f1.GetRows(SheetName)
	require.NoError(t, err)
	rows2, err := f2.GetRows(SheetName)
	require.NoError(t, err)
	assert.Equal(t, rows1, rows2)
	assert.Equal(t, 2, countPictures(t, f1, len(results)))
	assert.Equal(t, countPictures(t, f1, len(results)), countPictures(t, f2, len(results)))
}

func TestExport_EmptyResults(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	require.NoError(t, NewExporter(nil, nil).Export(context.Background(), "s", nil, &out))
	rows, err := open(t, out.Bytes()).GetRows(SheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestExport_CorruptArtifactDegrades(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.png"), []byte("not a png"), 0o600))
	results := []capture.Result{capture.Succeeded(capture.Item{Index: 1}, "t", "bad.png")}

	var out bytes.Buffer
	require.NoError(t, NewExporter(dirResolver{dir: dir}, nil).Export(context.Background(), "s", results, &out))
	assert.Zero(t, countPictures(t, open(t, out.Bytes()), 1))
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
