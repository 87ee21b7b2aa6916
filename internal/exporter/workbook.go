package exporter

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	apperrors "twrevenue/internal/errors"
	"twrevenue/internal/infrastructure"
	"twrevenue/pkg/contracts/domain"
)

// Workbook collects one worksheet per source and saves them as a single XLSX
// file. Unlike the CSV output, every sheet carries its own header row.
type Workbook struct {
	file   *excelize.File
	sheets int
	logger *slog.Logger
}

// NewWorkbook creates an empty workbook
func NewWorkbook(logger *slog.Logger) *Workbook {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &Workbook{
		file:   excelize.NewFile(),
		logger: infrastructure.WithComponent(logger, "workbook_exporter"),
	}
}

// AddSheet writes batch to a new sheet called name. An empty batch still
// gets a sheet so every source is represented.
func (w *Workbook) AddSheet(name string, batch domain.RecordBatch) error {
	if w.sheets == 0 {
		if err := w.file.SetSheetName(w.file.GetSheetName(0), name); err != nil {
			return apperrors.NewStorageError("failed to name sheet", err).WithContext("sheet", name)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return apperrors.NewStorageError("failed to add sheet", err).WithContext("sheet", name)
	}
	w.sheets++

	columns := batch.Columns()
	if len(columns) == 0 {
		return nil
	}
	if err := w.setRow(name, 1, columns); err != nil {
		return err
	}
	for i, record := range batch {
		row, _ := record.Row(columns)
		if err := w.setRow(name, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func (w *Workbook) setRow(sheet string, rowNum int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return apperrors.NewStorageError("invalid cell", err)
	}
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	if err := w.file.SetSheetRow(sheet, cell, &row); err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("failed to write row %d", rowNum), err).WithContext("sheet", sheet)
	}
	return nil
}

// Save writes the workbook to path, replacing any existing file, and releases it.
func (w *Workbook) Save(ctx context.Context, path string) error {
	defer w.file.Close()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return apperrors.NewStorageError("failed to create directory", err).WithContext("path", dir)
		}
	}
	if err := w.file.SaveAs(path); err != nil {
		w.logger.ErrorContext(ctx, "Failed to save workbook",
			slog.String("file_path", path),
			slog.String("error", err.Error()))
		return apperrors.NewStorageError("failed to save workbook", err).WithContext("path", path)
	}

	w.logger.InfoContext(ctx, "Workbook written",
		slog.String("file_path", path),
		slog.Int("sheets", w.sheets))
	return nil
}
