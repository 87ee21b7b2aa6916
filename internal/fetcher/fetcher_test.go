package fetcher

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twrevenue/internal/config"
	apperrors "twrevenue/internal/errors"
	"twrevenue/internal/shared/testutil"
)

func newTestFetcher(t *testing.T, cfg config.HTTPConfig) (*Fetcher, *testutil.BufferedSlogHandler) {
	t.Helper()
	logger, logs := testutil.NewTestLogger(t)
	return New(cfg, WithLogger(logger)), logs
}

func TestFetch_Success(t *testing.T) {
	srv := testutil.NewRevenueServer(t, map[string]testutil.Endpoint{
		"/twse": {Body: testutil.TWSEPayload},
	})
	f, logs := newTestFetcher(t, config.HTTPConfig{})

	batch, err := f.Fetch(context.Background(), srv.URL("/twse"))
	require.NoError(t, err)
	require.Len(t, batch, 3)

	assert.Equal(t, []string{"出表日期", "資料年月", "公司代號", "公司名稱", "營業收入-當月營收", "備註"}, batch.Columns())
	name, ok := batch[1].Get("公司名稱")
	assert.True(t, ok)
	assert.Equal(t, "亞泥", name)

	testutil.AssertLogContains(t, logs, slog.LevelInfo, "Fetching data from API")
	testutil.AssertLogContains(t, logs, slog.LevelInfo, "Successfully fetched records from the API")
	assert.True(t, logs.ContainsAttr("count", int64(3)))
	testutil.AssertNoErrors(t, logs)
}

func TestFetch_SendsFixedHeaders(t *testing.T) {
	srv := testutil.NewRevenueServer(t, map[string]testutil.Endpoint{
		"/esb": {Body: testutil.ESBPayload},
	})
	f, _ := newTestFetcher(t, config.HTTPConfig{UserAgent: "fetchrevenue-test"})

	_, err := f.Fetch(context.Background(), srv.URL("/esb"))
	require.NoError(t, err)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	h := reqs[0].Header
	assert.Equal(t, http.MethodGet, reqs[0].Method)
	assert.Equal(t, "application/json", h.Get("Accept"))
	assert.Equal(t, "Mon, 26 Jul 1997 05:00:00 GMT", h.Get("If-Modified-Since"))
	assert.Equal(t, "no-cache", h.Get("Cache-Control"))
	assert.Equal(t, "no-cache", h.Get("Pragma"))
	assert.Equal(t, "fetchrevenue-test", h.Get("User-Agent"))
}

func TestFetch_Failures(t *testing.T) {
	tests := []struct {
		name       string
		endpoint   testutil.Endpoint
		wantType   apperrors.ErrorType
		wantLogMsg string
	}{
		{
			name:       "server error",
			endpoint:   testutil.Endpoint{Status: http.StatusInternalServerError, Body: "oops"},
			wantType:   apperrors.ErrTypeHTTPStatus,
			wantLogMsg: "HTTP error occurred",
		},
		{
			name:       "not found",
			endpoint:   testutil.Endpoint{Status: http.StatusNotFound},
			wantType:   apperrors.ErrTypeHTTPStatus,
			wantLogMsg: "HTTP error occurred",
		},
		{
			name:       "malformed json",
			endpoint:   testutil.Endpoint{Body: `[{"公司代號":`},
			wantType:   apperrors.ErrTypeParsing,
			wantLogMsg: "An error occurred",
		},
		{
			name:       "object instead of array",
			endpoint:   testutil.Endpoint{Body: `{"公司代號":"1101"}`},
			wantType:   apperrors.ErrTypeParsing,
			wantLogMsg: "An error occurred",
		},
		{
			name:       "array of scalars",
			endpoint:   testutil.Endpoint{Body: `[1, 2]`},
			wantType:   apperrors.ErrTypeParsing,
			wantLogMsg: "An error occurred",
		},
		{
			name:       "html maintenance page",
			endpoint:   testutil.Endpoint{Body: `<html>maintenance</html>`},
			wantType:   apperrors.ErrTypeParsing,
			wantLogMsg: "An error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testutil.NewRevenueServer(t, map[string]testutil.Endpoint{"/api": tt.endpoint})
			f, logs := newTestFetcher(t, config.HTTPConfig{})

			batch, err := f.Fetch(context.Background(), srv.URL("/api"))
			require.Error(t, err)
			assert.NotNil(t, batch)
			assert.Empty(t, batch)
			assert.Equal(t, tt.wantType, apperrors.TypeOf(err))
			testutil.AssertLogContains(t, logs, slog.LevelError, tt.wantLogMsg)
			assert.False(t, logs.ContainsMessage("Successfully fetched"))
		})
	}
}

func TestFetch_HTTPStatusCarriesCode(t *testing.T) {
	srv := testutil.NewRevenueServer(t, map[string]testutil.Endpoint{
		"/api": {Status: http.StatusBadGateway},
	})
	f, _ := newTestFetcher(t, config.HTTPConfig{})

	_, err := f.Fetch(context.Background(), srv.URL("/api"))
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusBadGateway, appErr.Context["status_code"])
}

func TestFetch_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/gone"
	srv.Close()

	f, logs := newTestFetcher(t, config.HTTPConfig{})
	batch, err := f.Fetch(context.Background(), url)

	require.Error(t, err)
	assert.Empty(t, batch)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNetwork))
	testutil.AssertLogContains(t, logs, slog.LevelError, "HTTP error occurred")
}

func TestFetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	f, _ := newTestFetcher(t, config.HTTPConfig{Timeout: 50 * time.Millisecond})
	batch, err := f.Fetch(context.Background(), srv.URL)

	require.Error(t, err)
	assert.Empty(t, batch)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNetwork))
}

func TestFetch_EmptyAndNullBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty array", body: `[]`},
		{name: "null", body: `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testutil.NewRevenueServer(t, map[string]testutil.Endpoint{"/api": {Body: tt.body}})
			f, logs := newTestFetcher(t, config.HTTPConfig{})

			batch, err := f.Fetch(context.Background(), srv.URL("/api"))
			require.NoError(t, err)
			assert.NotNil(t, batch)
			assert.Empty(t, batch)
			assert.True(t, logs.ContainsAttr("count", int64(0)))
		})
	}
}

func TestDecodeBatch(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    int
		wantErr bool
	}{
		{name: "bom prefixed", body: "\xEF\xBB\xBF" + testutil.MBPayload, want: 1},
		{name: "whitespace", body: "\n  " + testutil.ESBPayload + "\n", want: 2},
		{name: "numbers kept", body: `[{"a":1,"b":2.50}]`, want: 1},
		{name: "empty body", body: ``, wantErr: true},
		{name: "trailing garbage", body: `[] x`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch, err := decodeBatch([]byte(tt.body))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.IsType(err, apperrors.ErrTypeParsing))
				return
			}
			require.NoError(t, err)
			assert.Len(t, batch, tt.want)
		})
	}
}
