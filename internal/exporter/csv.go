package exporter

import (
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	apperrors "twrevenue/internal/errors"
	"twrevenue/internal/infrastructure"
	"twrevenue/pkg/contracts/domain"
)

// WriteMode selects how the CSV file is opened for a block
type WriteMode int

const (
	// ModeCreate truncates the file and writes the header row before the block
	ModeCreate WriteMode = iota
	// ModeAppend adds the block to the end of the file without a header row
	ModeAppend
)

// String implements fmt.Stringer
func (m WriteMode) String() string {
	if m == ModeAppend {
		return "append"
	}
	return "create"
}

// CSVOptions configures CSV writing behavior
type CSVOptions struct {
	// BlockHeaders writes each appended block's own header row. Off by default,
	// in which case only the created block carries a header.
	BlockHeaders bool
	// CRLF terminates rows with \r\n instead of \n
	CRLF bool
}

// CSVWriter writes record batches as blocks of one CSV file
type CSVWriter struct {
	opts   CSVOptions
	logger *slog.Logger
}

// NewCSVWriter creates a new CSV writer instance
func NewCSVWriter(opts CSVOptions, logger *slog.Logger) *CSVWriter {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &CSVWriter{
		opts:   opts,
		logger: infrastructure.WithComponent(logger, "csv_exporter"),
	}
}

// WriteBatch serializes batch into the file at path.
//
// The block's columns are the keys of the batch's first record in their
// received order. Later records missing a column get an empty cell; keys a
// later record has beyond those columns are dropped with a warning. A UTF-8
// BOM is written only when the file is empty, so appending never embeds a
// BOM mid-file.
//
// An empty batch is logged and leaves the file untouched. Open and write
// failures are logged and returned as storage errors.
func (w *CSVWriter) WriteBatch(ctx context.Context, path string, batch domain.RecordBatch, mode WriteMode) error {
	if len(batch) == 0 {
		w.logger.ErrorContext(ctx, "No data available to write to CSV",
			slog.String("file_path", path),
			slog.String("mode", mode.String()))
		return nil
	}

	err := w.writeBatch(ctx, path, batch, mode)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to write data to CSV",
			slog.String("file_path", path),
			slog.String("error", err.Error()))
		return err
	}

	w.logger.InfoContext(ctx, "Data successfully written to CSV",
		slog.String("file_path", path),
		slog.String("mode", mode.String()),
		slog.Int("record_count", len(batch)))
	return nil
}

func (w *CSVWriter) writeBatch(ctx context.Context, path string, batch domain.RecordBatch, mode WriteMode) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return apperrors.NewStorageError("failed to create directory", err).WithContext("path", dir)
		}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if mode == ModeAppend {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return apperrors.NewStorageError("failed to open file", err).WithContext("path", path)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return apperrors.NewStorageError("failed to stat file", err).WithContext("path", path)
	}

	var out io.Writer = file
	var bom io.WriteCloser
	if info.Size() == 0 {
		// the BOM encoder prefixes its first write with EF BB BF
		bom = transform.NewWriter(file, unicode.UTF8BOM.NewEncoder())
		out = bom
	}

	writer := csv.NewWriter(out)
	writer.UseCRLF = w.opts.CRLF

	columns := batch.Columns()
	if mode == ModeCreate || w.opts.BlockHeaders {
		if err := writer.Write(columns); err != nil {
			return apperrors.NewStorageError("failed to write header", err).WithContext("path", path)
		}
	}

	dropped := 0
	for i, record := range batch {
		row, extras := record.Row(columns)
		if len(extras) > 0 {
			dropped++
			w.logger.WarnContext(ctx, "Record has fields outside the block header",
				slog.Int("record_index", i),
				slog.Any("fields", extras))
		}
		if err := writer.Write(row); err != nil {
			return apperrors.NewStorageError("failed to write record", err).
				WithContext("path", path).
				WithContext("record_index", i)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return apperrors.NewStorageError("failed to flush CSV", err).WithContext("path", path)
	}
	if bom != nil {
		if err := bom.Close(); err != nil {
			return apperrors.NewStorageError("failed to flush CSV", err).WithContext("path", path)
		}
	}
	if dropped > 0 {
		w.logger.WarnContext(ctx, "Extra fields dropped from CSV block",
			slog.String("file_path", path),
			slog.Int("records_affected", dropped))
	}
	return nil
}
