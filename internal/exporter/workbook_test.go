package exporter

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"twrevenue/pkg/contracts/domain"
)

func TestWorkbook_SheetsPerSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "revenue.xlsx")
	wb := NewWorkbook(discardLogger())

	require.NoError(t, wb.AddSheet("TPEX ESB", domain.RecordBatch{
		domain.NewRecord("公司代號", "1260", "營收", "201442"),
		domain.NewRecord("公司代號", "1269"),
	}))
	require.NoError(t, wb.AddSheet("TPEX MB", domain.RecordBatch{}))
	require.NoError(t, wb.AddSheet("TWSE", domain.RecordBatch{
		domain.NewRecord("公司代號", "1101", "備註", "-"),
	}))
	require.NoError(t, wb.Save(context.Background(), path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"TPEX ESB", "TPEX MB", "TWSE"}, f.GetSheetList())

	rows, err := f.GetRows("TPEX ESB")
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"公司代號", "營收"},
		{"1260", "201442"},
		{"1269"},
	}, rows)

	rows, err = f.GetRows("TPEX MB")
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = f.GetRows("TWSE")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"公司代號", "備註"}, {"1101", "-"}}, rows)
}
