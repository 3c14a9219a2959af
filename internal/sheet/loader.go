// Package sheet reads capture items from an xlsx workbook. The first row is a
// header naming the date, name, link and title columns (English or Korean).
package sheet

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/blogshot/internal/capture"
)

// ErrMissingLinkColumn reports a header row without a link column.
var ErrMissingLinkColumn = errors.New("header row has no link column")

var headerAliases = map[string]string{
	"date":  "date",
	"날짜":    "date",
	"작성일":   "date",
	"name":  "name",
	"이름":    "name",
	"작성자":   "name",
	"link":  "link",
	"url":   "link",
	"링크":    "link",
	"주소":    "link",
	"title": "title",
	"제목":    "title",
}

// Skipped describes a row dropped during loading.
type Skipped struct {
	Row    int
	Reason string
}

// Load reads items from sheetName, or the first sheet when empty. Rows without
// an http(s) link are skipped and reported. Items are indexed from 1 in sheet
// order.
func Load(r io.Reader, sheetName string) ([]capture.Item, []Skipped, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	if sheetName == "" {
		sheetName = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %q: %w", sheetName, err)
	}
	if len(rows) == 0 {
		return nil, nil, capture.ErrNoItems
	}

	columns := mapHeader(rows[0])
	linkCol, ok := columns["link"]
	if !ok {
		return nil, nil, ErrMissingLinkColumn
	}

	var (
		items   []capture.Item
		skipped []Skipped
	)
	for i, row := range rows[1:] {
		rowNum := i + 2
		link := cell(row, linkCol)
		if link == "" && isBlank(row) {
			continue
		}
		if !IsHTTPLink(link) {
			skipped = append(skipped, Skipped{Row: rowNum, Reason: fmt.Sprintf("invalid link %q", link)})
			continue
		}
		items = append(items, capture.Item{
			Index: len(items) + 1,
			Date:  cellOf(row, columns, "date"),
			Name:  cellOf(row, columns, "name"),
			Link:  link,
			Title: cellOf(row, columns, "title"),
		})
	}
	if len(items) == 0 {
		return nil, skipped, capture.ErrNoItems
	}
	return items, skipped, nil
}

// IsHTTPLink accepts absolute http and https URLs with a host.
func IsHTTPLink(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

func mapHeader(header []string) map[string]int {
	columns := make(map[string]int, len(header))
	for i, h := range header {
		key, ok := headerAliases[strings.ToLower(strings.TrimSpace(h))]
		if !ok {
			continue
		}
		if _, dup := columns[key]; !dup {
			columns[key] = i
		}
	}
	return columns
}

func cellOf(row []string, columns map[string]int, key string) string {
	idx, ok := columns[key]
	if !ok {
		return ""
	}
	return cell(row, idx)
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
