package config

const (
	// AppName is used for the logger, tracer and meter names
	AppName = "fetchrevenue"

	// EnvPrefix namespaces every environment variable (REVENUE_HTTP_TIMEOUT, ...)
	EnvPrefix = "REVENUE"

	// ConfigFileEnv points at an explicit YAML config file
	ConfigFileEnv = "REVENUE_CONFIG_FILE"

	// DefaultConfigFile is read from the working directory when present
	DefaultConfigFile = "config.yaml"

	// DefaultLogFile is used when logging output includes a file
	DefaultLogFile = "logs/fetchrevenue.log"

	// CSVDateLayout names the default CSV file (YYYYMMDD.csv)
	CSVDateLayout = "20060102"
)
