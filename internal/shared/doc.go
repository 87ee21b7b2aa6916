// Package shared holds helpers used across the exporter's packages.
//
// The testutil subpackage provides:
//
//   - BufferedSlogHandler, a slog.Handler that captures records for assertions
//   - RevenueServer, an httptest server answering with canned exchange API payloads
//   - sample payloads shaped like the TPEx and TWSE monthly revenue endpoints
//
// Example usage:
//
//	func TestSomething(t *testing.T) {
//	    logger, logs := testutil.NewTestLogger(t)
//	    srv := testutil.NewRevenueServer(t, map[string]testutil.Endpoint{
//	        "/twse": {Body: testutil.TWSEPayload},
//	    })
//	    ...
//	}
package shared
