package infrastructure

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
)

// WriteMetricsTextfile writes everything gatherer collects to path in the
// Prometheus text exposition format, for the node exporter textfile collector.
// The file is replaced atomically.
func WriteMetricsTextfile(path string, gatherer prometheus.Gatherer) error {
	if gatherer == nil {
		return fmt.Errorf("no metrics registry")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create metrics directory: %w", err)
		}
	}
	return prometheus.WriteToTextfile(path, gatherer)
}
