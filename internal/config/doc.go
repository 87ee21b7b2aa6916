// Package config provides configuration management for the revenue exporter.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables (highest priority)
//	2. YAML configuration file (REVENUE_CONFIG_FILE, or config.yaml in the working directory)
//	3. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern REVENUE_<SECTION>_<FIELD>:
//
//	REVENUE_HTTP_TIMEOUT=30s
//	REVENUE_OUTPUT_SUMMARY_DIR=badges
//	REVENUE_OUTPUT_BLOCK_HEADERS=true
//	REVENUE_OUTPUT_WORKBOOK=revenue.xlsx
//	REVENUE_OUTPUT_METRICS_FILE=/var/lib/node_exporter/revenue.prom
//	REVENUE_LOGGING_LEVEL=debug
//	REVENUE_TELEMETRY_TRACE_EXPORTER=stdout
//
// # Paths
//
// Output files are resolved relative to the working directory. The CSV path
// comes from the command line or defaults to YYYYMMDD.csv for the current date:
//
//	paths := cfg.ResolvePaths("", time.Now())
//	summary := paths.SummaryPath("TWSE.json")
package config
