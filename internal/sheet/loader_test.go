package sheet

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/blogshot/internal/capture"
)

func workbook(t *testing.T, sheet string, rows [][]any) *bytes.Reader {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if sheet != "Sheet1" {
		require.NoError(t, f.SetSheetName("Sheet1", sheet))
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return bytes.NewReader(buf.Bytes())
}

func TestLoad_EnglishHeaders(t *testing.T) {
	t.Parallel()

	r := workbook(t, "Sheet1", [][]any{
		{"Date", "Name", "Link", "Title"},
		{"2024-01-05", "Kim", "https://blog.naver.com/a/1", "First"},
		{"2024-01-06", "Lee", "not a link", "Bad"},
		{},
		{"2024-01-07", "Park", " http://example.com/p ", ""},
	})

	items, skipped, err := Load(r, "")
	require.NoError(t, err)
	assert.Equal(t, []capture.Item{
		{Index: 1, Date: "2024-01-05", Name: "Kim", Link: "https://blog.naver.com/a/1", Title: "First"},
		{Index: 2, Date: "2024-01-07", Name: "Park", Link: "http://example.com/p"},
	}, items)
	assert.Equal(t, []Skipped{{Row: 3, Reason: `invalid link "not a link"`}}, skipped)
}

func TestLoad_KoreanHeadersAndNamedSheet(t *testing.T) {
	t.Parallel()

	r := workbook(t, "블로그", [][]any{
		{"제목", "링크", "이름", "날짜"},
		{"후기", "https://blog.naver.com/x/9", "김민지", "2024.03.01"},
	})

	items, _, err := Load(r, "블로그")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, capture.Item{Index: 1, Date: "2024.03.01", Name: "김민지", Link: "https://blog.naver.com/x/9", Title: "후기"}, items[0])
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	_, _, err := Load(workbook(t, "Sheet1", [][]any{{"Date", "Name"}, {"d", "n"}}), "")
	require.ErrorIs(t, err, ErrMissingLinkColumn)

	_, _, err = Load(workbook(t, "Sheet1", [][]any{{"link"}, {"ftp://x"}}), "")
	require.ErrorIs(t, err, capture.ErrNoItems)

	_, _, err = Load(workbook(t, "Sheet1", nil), "")
	require.ErrorIs(t, err, capture.ErrNoItems)

	_, _, err = Load(workbook(t, "Sheet1", [][]any{{"link"}}), "Missing")
	require.Error(t, err)

	_, _, err = Load(bytes.NewReader([]byte("garbage")), "")
	require.Error(t, err)
}

func TestIsHTTPLink(t *testing.T) {
	t.Parallel()

	assert.True(t, IsHTTPLink("https://blog.naver.com/a"))
	assert.True(t, IsHTTPLink("http://example.com"))
	assert.False(t, IsHTTPLink("blog.naver.com/a"))
	assert.False(t, IsHTTPLink("javascript:alert(1)"))
	assert.False(t, IsHTTPLink("https://"))
}
