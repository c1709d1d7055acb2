package exporter

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/rakudev/auction-seller-scraper/internal/models"
)

// ExportError reports a failed CSV write. Export failures are fatal: a run
// without its output files is worthless.
type ExportError struct {
	Path string
	Err  error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("failed to export %s: %v", e.Path, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

var header = []string{"セラー名", "セラーページURL", "二次創作"}

// Excel on Windows needs the BOM to pick UTF-8 for Japanese text.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVExporter writes timestamped seller snapshots.
type CSVExporter struct {
	outputDir string
	logger    *slog.Logger
}

func NewCSVExporter(outputDir string) *CSVExporter {
	return &CSVExporter{
		outputDir: outputDir,
		logger:    slog.Default().With("component", "exporter"),
	}
}

func (e *CSVExporter) filePath(suffix string) (string, error) {
	if err := os.MkdirAll(e.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	name := fmt.Sprintf("sellers_%s%s.csv", time.Now().Format("20060102_150405"), suffix)
	return filepath.Join(e.outputDir, name), nil
}

// ExportIntermediate writes the pre-classification snapshot. Every row is
// marked undecided regardless of the seller's current state.
func (e *CSVExporter) ExportIntermediate(sellers []models.Seller) (string, error) {
	path, err := e.filePath("")
	if err != nil {
		return "", &ExportError{Path: e.outputDir, Err: err}
	}

	rows := make([][]string, 0, len(sellers))
	for _, s := range sellers {
		rows = append(rows, []string{s.Name, s.URL, models.ClassificationUnknown.Label()})
	}

	if err := e.write(path, rows); err != nil {
		return "", err
	}
	e.logger.Info("intermediate snapshot exported", "path", path, "sellers", len(sellers))
	return path, nil
}

// ExportFinal writes the post-classification snapshot with the tri-state
// label per seller.
func (e *CSVExporter) ExportFinal(sellers []models.Seller) (string, error) {
	path, err := e.filePath("_final")
	if err != nil {
		return "", &ExportError{Path: e.outputDir, Err: err}
	}

	rows := make([][]string, 0, len(sellers))
	for _, s := range sellers {
		rows = append(rows, []string{s.Name, s.URL, s.Classification.Label()})
	}

	if err := e.write(path, rows); err != nil {
		return "", err
	}
	e.logger.Info("final snapshot exported", "path", path, "sellers", len(sellers))
	return path, nil
}

func (e *CSVExporter) write(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return &ExportError{Path: path, Err: err}
	}
	defer f.Close()

	if _, err := f.Write(utf8BOM); err != nil {
		return &ExportError{Path: path, Err: err}
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return &ExportError{Path: path, Err: err}
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return &ExportError{Path: path, Err: err}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return &ExportError{Path: path, Err: err}
	}
	return nil
}
