package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/blogshot/internal/capture"
	"github.com/JakeFAU/blogshot/internal/config"
)

type fakeApp struct {
	items      []capture.Item
	captureErr error
	ran        bool
	closed     bool
}

func (f *fakeApp) Run(context.Context) error {
	f.ran = true
	f.closed = true
	return nil
}

func (f *fakeApp) Close(context.Context) error {
	f.closed = true
	return nil
}

func (f *fakeApp) Logger() *zap.Logger { return zap.NewNop() }

func (f *fakeApp) Capture(_ context.Context, items []capture.Item) (*capture.Session, error) {
	f.items = items
	if f.captureErr != nil {
		return nil, f.captureErr
	}
	results := make([]capture.Result, 0, len(items))
	for i, item := range items {
		if i == 0 {
			results = append(results, capture.Succeeded(item, "title", capture.Filename(item)))
			continue
		}
		results = append(results, capture.Failed(item, fmt.Errorf("timeout")))
	}
	return &capture.Session{ID: "018f1c4e-5a4b-7cde-8f00-0123456789ab", Results: results}, nil
}

func (f *fakeApp) Export(_ context.Context, sessionID string, results []capture.Result, w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s:%d", sessionID, len(results))
	return err
}

func useFakeApp(t *testing.T, app *fakeApp) {
	t.Helper()
	prev := newApp
	newApp = func(context.Context, *config.Config) (App, error) { return app, nil }
	t.Cleanup(func() { newApp = prev })
}

func writeInput(t *testing.T, path string, rows [][]any) {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	require.NoError(t, f.SaveAs(path))
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCaptureCommandWritesReport(t *testing.T) {
	app := &fakeApp{}
	useFakeApp(t, app)

	dir := t.TempDir()
	input := filepath.Join(dir, "items.xlsx")
	output := filepath.Join(dir, "out", "report.xlsx")
	writeInput(t, input, [][]any{
		{"날짜", "이름", "링크", "제목"},
		{"2024-01-05", "Kim", "https://blog.naver.com/kim/1", "First"},
		{"2024-01-06", "Lee", "not a link", "Broken"},
		{"2024-01-07", "Park", "https://example.com/post", "Second"},
	})

	stdout, err := execute(t, "capture", "--input", input, "--output", output)
	require.NoError(t, err)

	require.Len(t, app.items, 2)
	assert.Equal(t, 1, app.items[0].Index)
	assert.Equal(t, "Park", app.items[1].Name)
	assert.True(t, app.closed)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "018f1c4e-5a4b-7cde-8f00-0123456789ab:2", string(data))
	assert.Contains(t, stdout, "1/2 captured, 1 skipped rows")
	assert.Contains(t, stdout, output)
}

func TestCaptureCommandFailureLeavesNoReport(t *testing.T) {
	app := &fakeApp{captureErr: capture.ErrEngineUnavailable}
	useFakeApp(t, app)

	dir := t.TempDir()
	input := filepath.Join(dir, "items.xlsx")
	output := filepath.Join(dir, "report.xlsx")
	writeInput(t, input, [][]any{{"link"}, {"https://example.com"}})

	_, err := execute(t, "capture", "-i", input, "-o", output)
	require.ErrorIs(t, err, capture.ErrEngineUnavailable)
	assert.True(t, app.closed)
	assert.NoFileExists(t, output)
}

func TestCaptureCommandRequiresInput(t *testing.T) {
	useFakeApp(t, &fakeApp{})

	_, err := execute(t, "capture")
	require.Error(t, err)
}

func TestCaptureCommandRejectsSheetWithoutLinks(t *testing.T) {
	app := &fakeApp{}
	useFakeApp(t, app)

	input := filepath.Join(t.TempDir(), "items.xlsx")
	writeInput(t, input, [][]any{{"name"}, {"Kim"}})

	_, err := execute(t, "capture", "--input", input)
	require.Error(t, err)
	assert.Nil(t, app.items)
	assert.True(t, app.closed)
}

func TestServeCommandRunsApp(t *testing.T) {
	app := &fakeApp{}
	useFakeApp(t, app)

	_, err := execute(t, "serve")
	require.NoError(t, err)
	assert.True(t, app.ran)
}

func TestResolveAppMissing(t *testing.T) {
	t.Parallel()

	_, err := resolveApp(context.Background())
	require.Error(t, err)
}
