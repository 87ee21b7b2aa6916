// Package sources holds the fixed table of exchange APIs the exporter reads from.
package sources

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Name identifies one of the upstream revenue disclosure APIs.
type Name string

const (
	TPExESB Name = "TPEX ESB"
	TPExMB  Name = "TPEX MB"
	TWSE    Name = "TWSE"
)

// Source binds an upstream endpoint to its summary badge output.
type Source struct {
	Name        Name   `validate:"required,oneof='TPEX ESB' 'TPEX MB' TWSE"`
	URL         string `validate:"required,http_url"`
	SummaryFile string `validate:"required,endswith=.json"`
	Label       string `validate:"required"`
}

// Headers are sent with every request. The If-Modified-Since date lies far in the
// past and the no-cache directives stop intermediaries from serving stale bodies.
var Headers = map[string]string{
	"accept":            "application/json",
	"If-Modified-Since": "Mon, 26 Jul 1997 05:00:00 GMT",
	"Cache-Control":     "no-cache",
	"Pragma":            "no-cache",
}

// Default returns the sources in processing order. The first entry creates the
// CSV file and every later entry appends to it.
func Default() []Source {
	return []Source{
		{
			Name:        TPExESB,
			URL:         "https://www.tpex.org.tw/openapi/v1/t187ap05_R",
			SummaryFile: "TPEX_ESB.json",
			Label:       "TPEX ESB Monthly Revenue Company",
		},
		{
			Name:        TPExMB,
			URL:         "https://www.tpex.org.tw/openapi/v1/mopsfin_t187ap05_O",
			SummaryFile: "TPEX_MB.json",
			Label:       "TPEX MB Monthly Revenue Company",
		},
		{
			Name:        TWSE,
			URL:         "https://openapi.twse.com.tw/v1/opendata/t187ap05_P",
			SummaryFile: "TWSE.json",
			Label:       "TWSE Monthly Revenue Company",
		},
	}
}

// Validate checks every entry of a source table and rejects duplicate names or summary files.
func Validate(table []Source) error {
	if len(table) == 0 {
		return fmt.Errorf("source table is empty")
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	names := make(map[Name]bool, len(table))
	files := make(map[string]bool, len(table))
	for i, src := range table {
		if err := v.Struct(src); err != nil {
			return fmt.Errorf("source %d (%s): %w", i, src.Name, err)
		}
		if names[src.Name] {
			return fmt.Errorf("duplicate source %q", src.Name)
		}
		if files[src.SummaryFile] {
			return fmt.Errorf("duplicate summary file %q", src.SummaryFile)
		}
		names[src.Name] = true
		files[src.SummaryFile] = true
	}
	return nil
}
