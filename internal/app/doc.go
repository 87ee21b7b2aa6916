// Package app runs the monthly revenue export.
//
// # Run Flow
//
// A Runner walks the fixed source table in order. For each source it:
//
//	1. fetches the source's record batch
//	2. writes the batch to the CSV file, creating the file for the first
//	   source and appending for the rest
//	3. writes the source's summary badge with the record count
//
// Failures in any step are logged and counted; a failed fetch is exported
// exactly like an empty result, so the run always finishes every source.
//
// # Application
//
// Application wraps a Runner with the process-level pieces: OpenTelemetry
// providers selected by configuration and their shutdown after the run.
//
// # Usage
//
//	application, err := app.NewApplication(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	report := application.Run(ctx, csvFile)
//
// The app does not call os.Exit(), allowing the main function to control
// the exit process.
package app
