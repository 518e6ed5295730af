package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/exp/constraints"

	"github.com/cwbudde/piyavskiy/internal/opt"
)

// ExportPrecision is the number of decimals kept in exported tables.
const ExportPrecision = 4

// Labels are the column headers of an exported iteration table.
type Labels struct {
	Iteration string
	X         string
	Lower     string
	Upper     string
	Delta     string
}

var (
	EnglishLabels = Labels{
		Iteration: "iteration",
		X:         "x",
		Lower:     "lower",
		Upper:     "upper",
		Delta:     "delta",
	}

	// RussianLabels follow the textbook notation: u is the sample point and
	// p is the minorant built from the previous n-1 samples.
	RussianLabels = Labels{
		Iteration: "Итерация",
		X:         "uₙ",
		Lower:     "pₙ₋₁(uₙ)",
		Upper:     "f(uₙ)",
		Delta:     "Δ",
	}
)

// LabelsFor returns the label set for a language code ("en" or "ru").
func LabelsFor(lang string) (Labels, error) {
	switch strings.ToLower(lang) {
	case "", "en":
		return EnglishLabels, nil
	case "ru":
		return RussianLabels, nil
	default:
		return Labels{}, fmt.Errorf("unknown label set %q", lang)
	}
}

// Header returns the labels in column order.
func (l Labels) Header() []string {
	return []string{l.Iteration, l.X, l.Lower, l.Upper, l.Delta}
}

// Round rounds v to the given number of decimal places. Negative zero is
// normalized to zero so tables never show "-0".
func Round[T constraints.Float](v T, places int) T {
	p := math.Pow(10, float64(places))
	r := T(math.Round(float64(v)*p) / p)
	if r == 0 {
		return 0
	}
	return r
}

func formatValue(v float64) string {
	return strconv.FormatFloat(Round(v, ExportPrecision), 'f', -1, 64)
}

// WriteCSV writes records as a CSV table with a header row.
func WriteCSV(w io.Writer, records []opt.IterationRecord, labels Labels) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(labels.Header()); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, r := range records {
		row := []string{
			strconv.Itoa(r.Iteration),
			formatValue(r.X),
			formatValue(r.Lower),
			formatValue(r.Upper),
			formatValue(r.Delta),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write iteration %d: %w", r.Iteration, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes records to a single-sheet workbook at path.
func WriteXLSX(path string, records []opt.IterationRecord, labels Labels) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	header := make([]interface{}, 0, 5)
	for _, h := range labels.Header() {
		header = append(header, h)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{
			r.Iteration,
			Round(r.X, ExportPrecision),
			Round(r.Lower, ExportPrecision),
			Round(r.Upper, ExportPrecision),
			Round(r.Delta, ExportPrecision),
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write iteration %d: %w", r.Iteration, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

// ExportRecords writes records to path, choosing the format from its
// extension (.csv or .xlsx).
func ExportRecords(path string, records []opt.IterationRecord, labels Labels) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		file, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create export file: %w", err)
		}
		if err := WriteCSV(file, records, labels); err != nil {
			file.Close()
			return err
		}
		return file.Close()
	case ".xlsx":
		return WriteXLSX(path, records, labels)
	default:
		return fmt.Errorf("unsupported export format %q", ext)
	}
}

// ExportPath returns the path of the results table of a run for format
// "csv" or "xlsx".
func ExportPath(baseDir, runID, format string) string {
	return filepath.Join(RunDir(baseDir, runID), "results."+format)
}
