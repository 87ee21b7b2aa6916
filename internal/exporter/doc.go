// Package exporter writes fetched revenue batches to disk.
//
// This package contains three components:
//
// CSVWriter: writes each source's batch as a block of one CSV file. The first
// block is written in create mode with a header row; later blocks are appended
// without one unless CSVOptions.BlockHeaders is set. The file starts with a
// UTF-8 BOM so spreadsheet tools detect the encoding.
//
// SummaryWriter: writes the per-source badge JSON holding the record count.
//
// Workbook: optionally mirrors all blocks into an XLSX file, one sheet per source.
//
// Example usage:
//
//	csvWriter := exporter.NewCSVWriter(exporter.CSVOptions{CRLF: true}, logger)
//	err := csvWriter.WriteBatch(ctx, "20241008.csv", batch, exporter.ModeCreate)
//
//	summaries := exporter.NewSummaryWriter(logger)
//	err = summaries.Write(ctx, "TPEX_ESB.json", "TPEX ESB Monthly Revenue Company", len(batch))
package exporter
