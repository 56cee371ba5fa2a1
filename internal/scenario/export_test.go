package scenario

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/urbangrammar/demoland-assistant/internal/testhelpers"
)

func TestExportCSV(t *testing.T) {
	l, ds := newTestLoader(t)
	ctx := context.Background()
	base, err := l.Load(ctx, ds.Baseline, nil)
	require.NoError(t, err)
	s, err := l.Load(ctx, ds.Scenario, base)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Export(s, FormatCSV, &buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, s.Columns(), records[0])
	assert.Len(t, records[0], 12)

	first := map[string]string{}
	for i, c := range records[0] {
		first[c] = records[1][i]
	}
	assert.Equal(t, testhelpers.UnitNW, first[ColCode])
	assert.Equal(t, "Disconnected suburbia", first[ColSignature])
	assert.Equal(t, "2", first[ChangeColumn("air_quality")])
	assert.Equal(t, "20.5", first[ColDeprivation])
	assert.Equal(t, "Newcastle upon Tyne", first[ColRegion])
}

func TestExportXLSX(t *testing.T) {
	l, ds := newTestLoader(t)
	s, err := l.Load(context.Background(), ds.Baseline, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Export(s, FormatXLSX, &buf))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	sheet, ok := f.Sheet["scenario"]
	require.True(t, ok)
	require.Len(t, sheet.Rows, 5)
	assert.Equal(t, ColCode, sheet.Rows[0].Cells[0].String())
	assert.Equal(t, testhelpers.UnitNW, sheet.Rows[1].Cells[0].String())

	air, err := sheet.Rows[1].Cells[2].Float()
	require.NoError(t, err)
	assert.Equal(t, 10.0, air)
}

func TestExport_UnknownFormat(t *testing.T) {
	l, ds := newTestLoader(t)
	s, err := l.Load(context.Background(), ds.Baseline, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	assert.Error(t, Export(s, "parquet", &buf))
}
