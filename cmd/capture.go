package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/blogshot/internal/capture"
	"github.com/JakeFAU/blogshot/internal/sheet"
)

type captureOptions struct {
	input  string
	sheet  string
	output string
}

func newCaptureCmd() *cobra.Command {
	opts := &captureOptions{}
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Captures every link in a workbook and writes the report",
		Long: `Reads items from an xlsx workbook (columns date, name, link, title; the
link column is required), captures them in order, and writes the report
workbook with the screenshots embedded.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCapture(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "input workbook (required)")
	cmd.Flags().StringVar(&opts.sheet, "sheet", "", "sheet name (default is the first sheet)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "report path (default is captures_<session>.xlsx)")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func runCapture(cmd *cobra.Command, opts *captureOptions) (err error) {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	logger := appInstance.Logger()
	defer func() {
		if cerr := appInstance.Close(ctx); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	// #nosec G304 -- the input path is supplied by the operator.
	in, err := os.Open(opts.input)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	items, skipped, err := sheet.Load(in, opts.sheet)
	_ = in.Close()
	if err != nil {
		return fmt.Errorf("load items: %w", err)
	}
	for _, s := range skipped {
		logger.Warn("row skipped", zap.Int("row", s.Row), zap.String("reason", s.Reason))
	}

	session, err := appInstance.Capture(ctx, items)
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}

	output := opts.output
	if output == "" {
		output = "captures_" + session.ID + ".xlsx"
	}
	if err := writeReport(ctx, appInstance, session, output); err != nil {
		return err
	}

	summary := session.Summarize()
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "session %s: %d/%d captured, %d skipped rows\nreport: %s\n",
		summary.SessionID, summary.Succeeded, summary.Total, len(skipped), output)
	return nil
}

// writeReport exports session to path, removing a partial file on failure.
func writeReport(ctx context.Context, appInstance App, session *capture.Session, path string) (err error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	// #nosec G304 -- the output path is supplied by the operator.
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close report: %w", cerr)
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()
	if err := appInstance.Export(ctx, session.ID, session.Results, out); err != nil {
		return fmt.Errorf("export report: %w", err)
	}
	return nil
}
