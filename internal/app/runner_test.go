package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twrevenue/internal/config"
	"twrevenue/internal/exporter"
	"twrevenue/internal/shared/testutil"
	"twrevenue/internal/sources"
	"twrevenue/pkg/contracts/domain"
)

const bom = "\xEF\xBB\xBF"

// createTestLogger creates a logger that discards output for testing
func createTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Output.SummaryDir = t.TempDir()
	cfg.Output.CRLF = false
	return cfg
}

// testSources points the three exchanges at srv
func testSources(srv *testutil.RevenueServer) []sources.Source {
	table := sources.Default()
	table[0].URL = srv.URL("/esb")
	table[1].URL = srv.URL("/mb")
	table[2].URL = srv.URL("/twse")
	return table
}

func newServer(t *testing.T, esb, mb, twse testutil.Endpoint) *testutil.RevenueServer {
	return testutil.NewRevenueServer(t, map[string]testutil.Endpoint{
		"/esb":  esb,
		"/mb":   mb,
		"/twse": twse,
	})
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte(bom)), "CSV must start with a BOM")

	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte(bom))))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	require.NoError(t, err)
	return rows
}

func readSummary(t *testing.T, dir, name string) domain.Summary {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	var s domain.Summary
	require.NoError(t, json.Unmarshal(data, &s))
	return s
}

func TestRunner_AllSourcesSucceed(t *testing.T) {
	srv := newServer(t,
		testutil.Endpoint{Body: testutil.ESBPayload},
		testutil.Endpoint{Body: testutil.MBPayload},
		testutil.Endpoint{Body: testutil.TWSEPayload},
	)
	cfg := testConfig(t)
	csvPath := filepath.Join(t.TempDir(), "out.csv")

	runner, err := NewRunner(cfg, createTestLogger(), WithSources(testSources(srv)))
	require.NoError(t, err)
	report := runner.Run(context.Background(), csvPath)

	rows := readCSV(t, csvPath)
	require.Len(t, rows, 1+2+1+3)
	assert.Equal(t, []string{"出表日期", "資料年月", "公司代號", "公司名稱", "產業別", "營業收入-當月營收"}, rows[0])
	assert.Equal(t, "1260", rows[1][2])
	assert.Equal(t, "1258", rows[3][2])
	// TWSE rows use their own field order under the first header
	assert.Equal(t, []string{"1131008", "11309", "1101", "台泥", "11590340", "-"}, rows[4])

	headerRows := 0
	for _, row := range rows {
		if row[0] == "出表日期" {
			headerRows++
		}
	}
	assert.Equal(t, 1, headerRows)

	for name, want := range map[string]string{"TPEX_ESB.json": "2", "TPEX_MB.json": "1", "TWSE.json": "3"} {
		s := readSummary(t, cfg.Output.SummaryDir, name)
		assert.Equal(t, want, s.Message, name)
		assert.Equal(t, 1, s.SchemaVersion)
		assert.Equal(t, "blue", s.Color)
	}

	require.Len(t, report.Results, 3)
	assert.Equal(t, exporter.ModeCreate, report.Results[0].Mode)
	assert.Equal(t, exporter.ModeAppend, report.Results[1].Mode)
	assert.Equal(t, exporter.ModeAppend, report.Results[2].Mode)
	assert.Equal(t, 6, report.Total())
	assert.NotEmpty(t, report.RunID)

	reqs := srv.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, []string{"/esb", "/mb", "/twse"}, []string{reqs[0].URL.Path, reqs[1].URL.Path, reqs[2].URL.Path})
}

func TestRunner_SourceFailures(t *testing.T) {
	tests := []struct {
		name      string
		mb        testutil.Endpoint
		wantRows  int
		wantCount string
	}{
		{name: "server error", mb: testutil.Endpoint{Status: http.StatusInternalServerError}, wantRows: 1 + 2 + 3, wantCount: "0"},
		{name: "malformed json", mb: testutil.Endpoint{Body: `[{"公司代號"`}, wantRows: 1 + 2 + 3, wantCount: "0"},
		{name: "empty result", mb: testutil.Endpoint{Body: `[]`}, wantRows: 1 + 2 + 3, wantCount: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t,
				testutil.Endpoint{Body: testutil.ESBPayload},
				tt.mb,
				testutil.Endpoint{Body: testutil.TWSEPayload},
			)
			cfg := testConfig(t)
			csvPath := filepath.Join(t.TempDir(), "out.csv")

			runner, err := NewRunner(cfg, createTestLogger(), WithSources(testSources(srv)))
			require.NoError(t, err)
			report := runner.Run(context.Background(), csvPath)

			assert.Len(t, readCSV(t, csvPath), tt.wantRows)
			assert.Equal(t, tt.wantCount, readSummary(t, cfg.Output.SummaryDir, "TPEX_MB.json").Message)
			assert.Equal(t, "3", readSummary(t, cfg.Output.SummaryDir, "TWSE.json").Message)
			assert.Equal(t, 0, report.Results[1].Count)
		})
	}
}

func TestRunner_NetworkFailureContinues(t *testing.T) {
	srv := newServer(t,
		testutil.Endpoint{Body: testutil.ESBPayload},
		testutil.Endpoint{Body: testutil.MBPayload},
		testutil.Endpoint{Body: testutil.TWSEPayload},
	)
	table := testSources(srv)
	// nothing listens on port 1
	table[2].URL = "http://127.0.0.1:1/twse"

	cfg := testConfig(t)
	csvPath := filepath.Join(t.TempDir(), "out.csv")
	logger, logs := testutil.NewTestLogger(t)

	runner, err := NewRunner(cfg, logger, WithSources(table))
	require.NoError(t, err)
	report := runner.Run(context.Background(), csvPath)

	assert.Len(t, readCSV(t, csvPath), 1+2+1)
	assert.Equal(t, "0", readSummary(t, cfg.Output.SummaryDir, "TWSE.json").Message)
	assert.Error(t, report.Results[2].FetchErr)
	testutil.AssertLogContains(t, logs, slog.LevelError, "HTTP error occurred")
	testutil.AssertLogContains(t, logs, slog.LevelInfo, "Run completed")
}

func TestRunner_SingleRecordExample(t *testing.T) {
	srv := newServer(t,
		testutil.Endpoint{Body: `[{"Company":"A","Revenue":"100"}]`},
		testutil.Endpoint{Body: `[]`},
		testutil.Endpoint{Body: `[]`},
	)
	cfg := testConfig(t)
	cfg.Output.CRLF = true
	csvPath := filepath.Join(t.TempDir(), "out.csv")

	runner, err := NewRunner(cfg, createTestLogger(), WithSources(testSources(srv)))
	require.NoError(t, err)
	runner.Run(context.Background(), csvPath)

	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Equal(t, bom+"Company,Revenue\r\nA,100\r\n", string(data))

	summary, err := os.ReadFile(filepath.Join(cfg.Output.SummaryDir, "TPEX_ESB.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"schemaVersion":1,"label":"TPEX ESB Monthly Revenue Company","message":"1","color":"blue"}`, string(summary))
}

func TestRunner_RerunRecreatesOutputs(t *testing.T) {
	srv := newServer(t,
		testutil.Endpoint{Body: testutil.ESBPayload},
		testutil.Endpoint{Body: testutil.MBPayload},
		testutil.Endpoint{Body: testutil.TWSEPayload},
	)
	cfg := testConfig(t)
	csvPath := filepath.Join(t.TempDir(), "out.csv")

	runner, err := NewRunner(cfg, createTestLogger(), WithSources(testSources(srv)))
	require.NoError(t, err)

	runner.Run(context.Background(), csvPath)
	first, err := os.ReadFile(csvPath)
	require.NoError(t, err)

	runner.Run(context.Background(), csvPath)
	second, err := os.ReadFile(csvPath)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "2", readSummary(t, cfg.Output.SummaryDir, "TPEX_ESB.json").Message)
}

func TestRunner_FirstSourceFailureKeepsPreviousFile(t *testing.T) {
	srv := newServer(t,
		testutil.Endpoint{Status: http.StatusServiceUnavailable},
		testutil.Endpoint{Body: testutil.MBPayload},
		testutil.Endpoint{Body: `[]`},
	)
	cfg := testConfig(t)
	csvPath := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("previous,run\n"), 0644))

	runner, err := NewRunner(cfg, createTestLogger(), WithSources(testSources(srv)))
	require.NoError(t, err)
	runner.Run(context.Background(), csvPath)

	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	// the create step is skipped, so the append lands after the stale content
	assert.True(t, strings.HasPrefix(string(data), "previous,run\n1131008,"))
	assert.Equal(t, "0", readSummary(t, cfg.Output.SummaryDir, "TPEX_ESB.json").Message)
}

func TestRunner_BlockHeaders(t *testing.T) {
	srv := newServer(t,
		testutil.Endpoint{Body: testutil.ESBPayload},
		testutil.Endpoint{Body: testutil.MBPayload},
		testutil.Endpoint{Body: testutil.TWSEPayload},
	)
	cfg := testConfig(t)
	cfg.Output.BlockHeaders = true
	csvPath := filepath.Join(t.TempDir(), "out.csv")
	logger, logs := testutil.NewTestLogger(t)

	runner, err := NewRunner(cfg, logger, WithSources(testSources(srv)))
	require.NoError(t, err)
	runner.Run(context.Background(), csvPath)

	rows := readCSV(t, csvPath)
	require.Len(t, rows, 3+2+1+3)
	assert.Equal(t, "出表日期", rows[0][0])
	assert.Equal(t, "出表日期", rows[3][0])
	assert.Equal(t, "備註", rows[5][5])
	testutil.AssertLogContains(t, logs, slog.LevelWarn, "Per-block CSV headers enabled")
}

func TestRunner_DefaultFileName(t *testing.T) {
	srv := newServer(t,
		testutil.Endpoint{Body: testutil.ESBPayload},
		testutil.Endpoint{Body: `[]`},
		testutil.Endpoint{Body: `[]`},
	)
	cfg := testConfig(t)

	wd, err := os.Getwd()
	require.NoError(t, err)
	dir := t.TempDir()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	clock := func() time.Time { return time.Date(2024, 10, 8, 9, 30, 0, 0, time.Local) }
	runner, err := NewRunner(cfg, createTestLogger(), WithSources(testSources(srv)), WithClock(clock))
	require.NoError(t, err)
	report := runner.Run(context.Background(), "")

	assert.Equal(t, "20241008.csv", report.Paths.CSVFile)
	assert.FileExists(t, filepath.Join(dir, "20241008.csv"))
}

func TestRunner_Workbook(t *testing.T) {
	srv := newServer(t,
		testutil.Endpoint{Body: testutil.ESBPayload},
		testutil.Endpoint{Status: http.StatusNotFound},
		testutil.Endpoint{Body: testutil.TWSEPayload},
	)
	cfg := testConfig(t)
	cfg.Output.Workbook = filepath.Join(t.TempDir(), "revenue.xlsx")
	csvPath := filepath.Join(t.TempDir(), "out.csv")

	runner, err := NewRunner(cfg, createTestLogger(), WithSources(testSources(srv)))
	require.NoError(t, err)
	runner.Run(context.Background(), csvPath)

	assert.FileExists(t, cfg.Output.Workbook)
}

type stubFetcher struct {
	batches map[string]domain.RecordBatch
	calls   []string
}

func (s *stubFetcher) Fetch(_ context.Context, url string) (domain.RecordBatch, error) {
	s.calls = append(s.calls, url)
	if b, ok := s.batches[url]; ok {
		return b, nil
	}
	return domain.RecordBatch{}, errors.New("unreachable")
}

func TestRunner_WithFetcher(t *testing.T) {
	f := &stubFetcher{batches: map[string]domain.RecordBatch{
		"https://www.tpex.org.tw/openapi/v1/t187ap05_R": {domain.NewRecord("Company", "A", "Revenue", "100")},
	}}
	cfg := testConfig(t)
	csvPath := filepath.Join(t.TempDir(), "out.csv")

	runner, err := NewRunner(cfg, createTestLogger(), WithFetcher(f))
	require.NoError(t, err)
	report := runner.Run(context.Background(), csvPath)

	assert.Len(t, f.calls, 3)
	assert.Equal(t, 1, report.Total())
	assert.NoError(t, report.Results[0].FetchErr)
	assert.Error(t, report.Results[1].FetchErr)
	assert.Error(t, report.Results[2].FetchErr)
	assert.Equal(t, [][]string{{"Company", "Revenue"}, {"A", "100"}}, readCSV(t, csvPath))
}

func TestNewRunner_InvalidSources(t *testing.T) {
	table := sources.Default()
	table[1].SummaryFile = table[0].SummaryFile

	_, err := NewRunner(testConfig(t), createTestLogger(), WithSources(table))
	assert.Error(t, err)

	_, err = NewRunner(testConfig(t), createTestLogger(), WithSources(nil))
	assert.Error(t, err)
}

func TestRunner_CancelledContextKeepsPreviousOutputs(t *testing.T) {
	srv := newServer(t,
		testutil.Endpoint{Body: testutil.ESBPayload},
		testutil.Endpoint{Body: testutil.MBPayload},
		testutil.Endpoint{Body: testutil.TWSEPayload},
	)
	cfg := testConfig(t)
	csvPath := filepath.Join(t.TempDir(), "out.csv")

	runner, err := NewRunner(cfg, createTestLogger(), WithSources(testSources(srv)))
	require.NoError(t, err)

	good := runner.Run(context.Background(), csvPath)
	require.NoError(t, good.Err)
	before, err := os.ReadFile(csvPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report := runner.Run(ctx, csvPath)

	assert.ErrorIs(t, report.Err, context.Canceled)
	assert.Empty(t, report.Results)
	assert.Len(t, srv.Requests(), 3, "no request after cancellation")

	after, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	for name, want := range map[string]string{"TPEX_ESB.json": "2", "TPEX_MB.json": "1", "TWSE.json": "3"} {
		assert.Equal(t, want, readSummary(t, cfg.Output.SummaryDir, name).Message, name)
	}
}

// cancellingFetcher cancels the run while fetching the second source
type cancellingFetcher struct {
	cancel context.CancelCauseFunc
	cause  error
	calls  int
}

func (f *cancellingFetcher) Fetch(ctx context.Context, _ string) (domain.RecordBatch, error) {
	f.calls++
	if f.calls == 2 {
		f.cancel(f.cause)
		return domain.RecordBatch{}, ctx.Err()
	}
	return domain.RecordBatch{domain.NewRecord("Company", "A")}, nil
}

func TestRunner_CancelledMidRun(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.Workbook = filepath.Join(t.TempDir(), "revenue.xlsx")
	cfg.Output.MetricsFile = filepath.Join(t.TempDir(), "revenue.prom")
	csvPath := filepath.Join(t.TempDir(), "out.csv")
	logger, logs := testutil.NewTestLogger(t)

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)
	cause := errors.New("shutting down")
	f := &cancellingFetcher{cancel: cancel, cause: cause}

	runner, err := NewRunner(cfg, logger, WithFetcher(f))
	require.NoError(t, err)
	report := runner.Run(ctx, csvPath)

	assert.Equal(t, 2, f.calls)
	assert.ErrorIs(t, report.Err, cause)
	require.Len(t, report.Results, 1)
	assert.Equal(t, sources.TPExESB, report.Results[0].Source.Name)

	assert.Equal(t, [][]string{{"Company"}, {"A"}}, readCSV(t, csvPath))
	assert.Equal(t, "1", readSummary(t, cfg.Output.SummaryDir, "TPEX_ESB.json").Message)
	assert.NoFileExists(t, filepath.Join(cfg.Output.SummaryDir, "TPEX_MB.json"))
	assert.NoFileExists(t, filepath.Join(cfg.Output.SummaryDir, "TWSE.json"))
	assert.NoFileExists(t, cfg.Output.Workbook)
	assert.NoFileExists(t, cfg.Output.MetricsFile)
	testutil.AssertLogContains(t, logs, slog.LevelWarn, "Run interrupted")
}
