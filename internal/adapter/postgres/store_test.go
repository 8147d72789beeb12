package postgres

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/climate-region-stats/internal/domain"
)

func TestToDBRow(t *testing.T) {
	local := time.FixedZone("MST", -7*3600)
	row := domain.Row{
		Record: domain.Record{
			RegionID: "08001", RegionName: "Adams", State: "CO", Year: 1990,
			Variable: "tasmax", Scenario: "historical", ValidDays: 365,
			Stats: map[string]float64{"mean_annual_tasmax_c": 17.25},
		},
		RunID:     "run-1",
		Processed: time.Date(2026, 5, 1, 8, 0, 0, 0, local),
	}

	got, err := toDBRow(row)
	require.NoError(t, err)

	assert.Equal(t, "08001", got.RegionID)
	assert.Equal(t, 1990, got.Year)
	assert.Equal(t, 365, got.ValidDays)
	assert.Equal(t, time.UTC, got.Processed.Location())
	assert.True(t, got.Processed.Equal(row.Processed))
	require.NotNil(t, got.Stats)

	var stats map[string]float64
	require.NoError(t, json.Unmarshal([]byte(*got.Stats), &stats))
	assert.Equal(t, row.Stats, stats)
}

func TestToDBRow_MissingHasNullStats(t *testing.T) {
	got, err := toDBRow(domain.Row{Record: domain.Record{RegionID: "08001", Year: 1991, Missing: true}})
	require.NoError(t, err)
	assert.Nil(t, got.Stats)
	assert.True(t, got.Missing)
}

func TestUpsertCoversEveryColumn(t *testing.T) {
	for _, col := range []string{"region_name", "state", "valid_days", "stats", "missing", "run_id", "processed_at"} {
		assert.Contains(t, upsertRow, col+" ", col)
		assert.Contains(t, upsertRow, "EXCLUDED."+col)
		assert.Contains(t, schema, col)
	}
	assert.Contains(t, upsertRow, "ON CONFLICT (region_id, year, variable, scenario)")
}
