// Package report turns a capture session into an xlsx workbook with one row
// per result and the composite screenshot embedded next to it.
package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/png" // registers the PNG decoder for DecodeConfig
	"io"
	"os"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/blogshot/internal/capture"
	"github.com/JakeFAU/blogshot/internal/metrics"
)

// Layout constants. Heights are in points, widths in pixels unless noted.
const (
	SheetName       = "Captures"
	TargetWidthPx   = 380
	PxToPoints      = 0.75
	RowPaddingPt    = 10
	MinRowHeightPt  = 20
	HeaderHeightPt  = 24
	ImageOffsetPx   = 5
	screenshotCol   = 6
	screenshotWidth = 56 // characters, fits TargetWidthPx plus offsets
)

// Columns is the fixed header row.
var Columns = []string{"index", "date", "name", "link", "title", "screenshot", "status"}

var columnWidths = []float64{8, 14, 18, 48, 40, screenshotWidth, 28}

// ContentType is the MIME type of the exported workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ArtifactResolver maps a session artifact to a readable path.
type ArtifactResolver interface {
	Resolve(sessionID, filename string) (string, error)
}

// Placement positions one image.
type Placement struct {
	TargetWidthPx  float64
	TargetHeightPx float64
	ScaleX         float64
	ScaleY         float64
}

// Layout scales an image of width x height pixels to TargetWidthPx, keeping
// its aspect ratio.
func Layout(width, height int) (Placement, error) {
	if width <= 0 || height <= 0 {
		return Placement{}, fmt.Errorf("invalid image size %dx%d", width, height)
	}
	target := float64(TargetWidthPx) * float64(height) / float64(width)
	return Placement{
		TargetWidthPx:  TargetWidthPx,
		TargetHeightPx: target,
		ScaleX:         float64(TargetWidthPx) / float64(width),
		ScaleY:         target / float64(height),
	}, nil
}

// RowHeight converts an image height in pixels to a padded row height in points.
func RowHeight(targetHeightPx float64) float64 {
	return targetHeightPx*PxToPoints + RowPaddingPt
}

// Exporter builds workbooks from session results.
type Exporter struct {
	resolver ArtifactResolver
	logger   *zap.Logger
}

// NewExporter creates an Exporter.
func NewExporter(resolver ArtifactResolver, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{resolver: resolver, logger: logger}
}

// Export writes the workbook for results to w. Missing artifacts degrade to
// rows without an image.
func (e *Exporter) Export(ctx context.Context, sessionID string, results []capture.Result, w io.Writer) (err error) {
	defer func() { metrics.ObserveExport(err == nil) }()

	f, err := e.Build(ctx, sessionID, results)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			e.logger.Debug("failed to close workbook", zap.Error(cerr))
		}
	}()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Build assembles the workbook in memory. Callers own the returned file.
func (e *Exporter) Build(ctx context.Context, sessionID string, results []capture.Result) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, closeOnError(f, fmt.Errorf("rename sheet: %w", err))
	}
	if err := writeHeader(f); err != nil {
		return nil, closeOnError(f, err)
	}
	if err := writeRows(f, results); err != nil {
		return nil, closeOnError(f, err)
	}
	images, err := e.collectImages(ctx, sessionID, results)
	if err != nil {
		return nil, closeOnError(f, err)
	}
	if err := placeImages(f, images); err != nil {
		return nil, closeOnError(f, err)
	}
	return f, nil
}

func closeOnError(f *excelize.File, err error) error {
	if cerr := f.Close(); cerr != nil {
		return errors.Join(err, cerr)
	}
	return err
}

func writeHeader(f *excelize.File) error {
	for i, name := range Columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return fmt.Errorf("header cell: %w", err)
		}
		if err := f.SetCellValue(SheetName, cell, name); err != nil {
			return fmt.Errorf("set header %s: %w", name, err)
		}
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return fmt.Errorf("column name: %w", err)
		}
		if err := f.SetColWidth(SheetName, col, col, columnWidths[i]); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}
	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"4472C4"}},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(Columns), 1)
	if err != nil {
		return fmt.Errorf("header range: %w", err)
	}
	if err := f.SetCellStyle(SheetName, "A1", last, style); err != nil {
		return fmt.Errorf("apply header style: %w", err)
	}
	if err := f.SetRowHeight(SheetName, 1, HeaderHeightPt); err != nil {
		return fmt.Errorf("header height: %w", err)
	}
	return nil
}

// writeRows is the data pass: every result gets a row at the minimal height.
func writeRows(f *excelize.File, results []capture.Result) error {
	for i, r := range results {
		row := i + 2
		title := r.Title
		if r.Success && r.BlogTitle != "" {
			title = r.BlogTitle
		}
		status := "success"
		if !r.Success {
			status = "failed: " + r.Error
		}
		values := []any{r.Index, r.Date, r.Name, r.Link, title, nil, status}
		for col, v := range values {
			if v == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return fmt.Errorf("row %d cell: %w", row, err)
			}
			if err := f.SetCellValue(SheetName, cell, v); err != nil {
				return fmt.Errorf("row %d value: %w", row, err)
			}
		}
		if r.Link != "" {
			cell, err := excelize.CoordinatesToCellName(4, row)
			if err != nil {
				return fmt.Errorf("row %d link cell: %w", row, err)
			}
			if err := f.SetCellHyperLink(SheetName, cell, r.Link, "External"); err != nil {
				return fmt.Errorf("row %d hyperlink: %w", row, err)
			}
		}
		if err := f.SetRowHeight(SheetName, row, MinRowHeightPt); err != nil {
			return fmt.Errorf("row %d height: %w", row, err)
		}
	}
	return nil
}

type rowImage struct {
	row       int
	data      []byte
	placement Placement
}

// collectImages is the placement pass: it resolves and measures artifacts
// for successful rows.
func (e *Exporter) collectImages(ctx context.Context, sessionID string, results []capture.Result) ([]rowImage, error) {
	var images []rowImage
	for i, r := range results {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("export canceled: %w", err)
		}
		if !r.Success || r.Filename == "" || e.resolver == nil {
			continue
		}
		img, err := e.load(sessionID, r.Filename)
		if err != nil {
			e.logger.Warn("artifact unavailable, leaving screenshot empty",
				zap.String("session_id", sessionID),
				zap.String("filename", r.Filename),
				zap.Error(err),
			)
			continue
		}
		img.row = i + 2
		images = append(images, img)
	}
	return images, nil
}

func (e *Exporter) load(sessionID, filename string) (rowImage, error) {
	path, err := e.resolver.Resolve(sessionID, filename)
	if err != nil {
		return rowImage{}, err
	}
	// #nosec G304 -- path comes from the artifact store resolver.
	data, err := os.ReadFile(path)
	if err != nil {
		return rowImage{}, fmt.Errorf("read artifact: %w", err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return rowImage{}, fmt.Errorf("decode artifact: %w", err)
	}
	placement, err := Layout(cfg.Width, cfg.Height)
	if err != nil {
		return rowImage{}, err
	}
	return rowImage{data: data, placement: placement}, nil
}

func placeImages(f *excelize.File, images []rowImage) error {
	for _, img := range images {
		cell, err := excelize.CoordinatesToCellName(screenshotCol, img.row)
		if err != nil {
			return fmt.Errorf("image cell: %w", err)
		}
		pic := &excelize.Picture{
			Extension: capture.ArtifactExt,
			File:      img.data,
			Format: &excelize.GraphicOptions{
				ScaleX:          img.placement.ScaleX,
				ScaleY:          img.placement.ScaleY,
				OffsetX:         ImageOffsetPx,
				OffsetY:         ImageOffsetPx,
				LockAspectRatio: true,
				Positioning:     "oneCell",
			},
		}
		if err := f.AddPictureFromBytes(SheetName, cell, pic); err != nil {
			return fmt.Errorf("embed image at %s: %w", cell, err)
		}
		if err := f.SetRowHeight(SheetName, img.row, RowHeight(img.placement.TargetHeightPx)); err != nil {
			return fmt.Errorf("row %d height: %w", img.row, err)
		}
	}
	return nil
}
