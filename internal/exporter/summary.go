package exporter

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	apperrors "twrevenue/internal/errors"
	"twrevenue/internal/infrastructure"
	"twrevenue/pkg/contracts/domain"
)

// SummaryWriter writes the per-source badge documents
type SummaryWriter struct {
	logger *slog.Logger
}

// NewSummaryWriter creates a summary writer
func NewSummaryWriter(logger *slog.Logger) *SummaryWriter {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &SummaryWriter{logger: infrastructure.WithComponent(logger, "summary_exporter")}
}

// Write replaces the file at path with the badge for label and count.
// Non-ASCII labels are written as-is and the object is indented by four spaces.
func (w *SummaryWriter) Write(ctx context.Context, path, label string, count int) error {
	summary := domain.NewSummary(label, count)

	data, err := encodeSummary(summary)
	if err == nil {
		err = writeFile(path, data)
	}
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to write summary JSON",
			slog.String("file_path", path),
			slog.String("error", err.Error()))
		return err
	}

	w.logger.InfoContext(ctx, "Summary JSON written",
		slog.String("file_path", path),
		slog.String("message", summary.Message))
	return nil
}

func encodeSummary(summary domain.Summary) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(summary); err != nil {
		return nil, apperrors.NewStorageError("failed to encode summary", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return apperrors.NewStorageError("failed to create directory", err).WithContext("path", dir)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return apperrors.NewStorageError("failed to write file", err).WithContext("path", path)
	}
	return nil
}
