package config

import (
	"path/filepath"
	"time"
)

// Paths contains every file the exporter writes during one run
type Paths struct {
	CSVFile      string
	SummaryDir   string
	WorkbookFile string
	MetricsFile  string
}

// DefaultCSVFile returns the date-derived CSV name used when no path is given
func DefaultCSVFile(now time.Time) string {
	return now.Format(CSVDateLayout) + ".csv"
}

// ResolvePaths returns the output paths for a run. csvFile is the command-line
// argument; an empty value selects the date-derived default for now.
func (c *Config) ResolvePaths(csvFile string, now time.Time) Paths {
	if csvFile == "" {
		csvFile = DefaultCSVFile(now)
	}
	return Paths{
		CSVFile:      csvFile,
		SummaryDir:   c.Output.SummaryDir,
		WorkbookFile: c.Output.Workbook,
		MetricsFile:  c.Output.MetricsFile,
	}
}

// SummaryPath returns the location of a source's summary file
func (p Paths) SummaryPath(fileName string) string {
	return filepath.Join(p.SummaryDir, fileName)
}
