package collector

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaddingForColumns(t *testing.T) {
	// int at offset 0, char at 4, double padded from 5 up to 8
	cols := []columnFact{
		{align: "i", width: 4},
		{align: "c", width: 1},
		{align: "d", width: 8},
	}
	assert.Equal(t, int64(3), paddingForColumns(cols))
}

func TestPaddingForColumns_ZeroWidthColumn(t *testing.T) {
	cols := []columnFact{
		{align: "i", width: 4},
		{align: "c", width: 1},
		{align: "d", width: 8},
	}
	withEmpty := append(append([]columnFact{}, cols...), columnFact{align: "d", width: 0})

	// a zero-width column on an already aligned offset adds nothing
	assert.Equal(t, paddingForColumns(cols), paddingForColumns(withEmpty))
}

func TestPaddingForColumns_RowAlignment(t *testing.T) {
	// a lone 1-byte column still pads the tuple out to the 4-byte row
	// boundary
	cols := []columnFact{{align: "c", width: 1}}
	assert.Equal(t, int64(3), paddingForColumns(cols))
}

func TestPaddingForColumns_UnknownAlignCode(t *testing.T) {
	// unknown alignment classes degrade to byte alignment
	cols := []columnFact{
		{align: "i", width: 4},
		{align: "?", width: 3},
	}
	// 4 + 3 = 7, padded to 8 for the row boundary
	assert.Equal(t, int64(1), paddingForColumns(cols))
}

func TestPaddingByTable(t *testing.T) {
	facts := []columnFact{
		{relID: 100, align: "i", width: 4},
		{relID: 100, align: "d", width: 8},
		{relID: 200, align: "c", width: 1},
	}

	padding, err := paddingByTable(facts)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{100: 4, 200: 3}, padding)
}

func TestPaddingByTable_RejectsNonContiguous(t *testing.T) {
	facts := []columnFact{
		{relID: 100, align: "i", width: 4},
		{relID: 200, align: "c", width: 1},
		{relID: 100, align: "d", width: 8},
	}

	_, err := paddingByTable(facts)
	require.Error(t, err)
}

func TestParseColumnFacts(t *testing.T) {
	rows := [][]any{
		{int64(100), "id", "i", int64(4)},
		{int64(100), []byte("payload"), []byte("d"), []byte("8")},
	}

	facts, err := parseColumnFacts(rows)
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Equal(t, columnFact{relID: 100, name: "id", align: "i", width: 4}, facts[0])
	assert.Equal(t, columnFact{relID: 100, name: "payload", align: "d", width: 8}, facts[1])
}

func defaultNotApplicable(f BloatFactors) bool { return f.NotApplicable }

func testFactors() BloatFactors {
	return BloatFactors{
		TupleDataSize:   100,
		TupleHeaderSize: 23,
		MaxAlign:        8,
		Pages:           100,
		LiveTuples:      1000,
		BlockSize:       8192,
		PageHeader:      24,
		FillFactor:      100,
	}
}

func TestBloatRatio(t *testing.T) {
	// tuple size 4+23+100+16-7-4 = 132, estimated pages ceil(1000/61.87) = 17
	ratio, ok := bloatRatio(testFactors(), 0, defaultNotApplicable)
	require.True(t, ok)
	assert.InDelta(t, 83.0, ratio, 1e-9)
}

func TestBloatRatio_PaddingInflatesEstimate(t *testing.T) {
	base, ok := bloatRatio(testFactors(), 0, defaultNotApplicable)
	require.True(t, ok)
	padded, ok := bloatRatio(testFactors(), 16, defaultNotApplicable)
	require.True(t, ok)

	// padding widens the estimated tuple, raising the estimated page count
	// and lowering the reported bloat
	assert.Less(t, padded, base)
}

func TestBloatRatio_NotApplicable(t *testing.T) {
	f := testFactors()
	f.NotApplicable = true

	_, ok := bloatRatio(f, 0, defaultNotApplicable)
	assert.False(t, ok)
}

func TestBloatRatio_NonPositiveDifferenceIsZero(t *testing.T) {
	f := testFactors()
	f.Pages = 10 // fewer observed pages than the estimate

	ratio, ok := bloatRatio(f, 0, defaultNotApplicable)
	require.True(t, ok)
	assert.Zero(t, ratio)
}

func TestBloatRatioRows(t *testing.T) {
	c := newTestCollector(newFakeQueryer())

	na := testFactors()
	na.NotApplicable = true
	factors := map[int64]BloatFactors{
		100: testFactors(),
		200: na,
		300: testFactors(),
	}
	// table 300 has no padding entry and is treated as zero padding
	padding := map[int64]int64{100: 0, 200: 0}

	rows := c.bloatRatioRows(factors, []int64{100, 200, 300}, padding)
	require.Len(t, rows, 3)

	assert.Equal(t, int64(100), rows[0][0])
	assert.InDelta(t, 83.0, rows[0][1].(float64), 1e-9)

	// not-applicable tables get a null ratio, not zero
	assert.Equal(t, int64(200), rows[1][0])
	assert.Nil(t, rows[1][1])

	assert.InDelta(t, 83.0, rows[2][1].(float64), 1e-9)
}

func TestCollectTableMetrics_EmptyTargetsSkipsBloatQueries(t *testing.T) {
	fake := newFakeQueryer()
	empty := TargetTables{IDs: nil, List: "(0)"}
	for _, stat := range tableLevelSQLs {
		fake.results[fmt.Sprintf(stat.template, empty.List)] = fakeResult{
			rows: [][]any{},
			cols: []string{"relid"},
		}
	}
	c := newTestCollector(fake)

	metrics, err := c.CollectTableMetrics(context.Background(), empty)
	require.NoError(t, err)

	bloat := metrics["table_bloat_ratios"]
	require.NotNil(t, bloat)
	assert.Equal(t, []string{"relid", "bloat_ratio"}, bloat.Columns)
	assert.Empty(t, bloat.Rows)

	// no padding or factor query was issued for the empty selection
	assert.False(t, fake.issued(fmt.Sprintf(paddingSQLTemplate, empty.List)))
	assert.False(t, fake.issued(fmt.Sprintf(bloatFactorsSQLTemplate, empty.List)))
}

func TestCollectTableMetrics_WithTargets(t *testing.T) {
	fake := newFakeQueryer()
	targets := TargetTables{IDs: []int64{100}, List: "(100)"}
	for _, stat := range tableLevelSQLs {
		fake.results[fmt.Sprintf(stat.template, targets.List)] = fakeResult{
			rows: [][]any{{int64(100)}},
			cols: []string{"relid"},
		}
	}
	fake.results[fmt.Sprintf(paddingSQLTemplate, targets.List)] = fakeResult{
		rows: [][]any{
			{int64(100), "id", "i", int64(4)},
			{int64(100), "flag", "c", int64(1)},
			{int64(100), "weight", "d", int64(8)},
		},
		cols: []string{"relid", "attname", "attalign", "avg_width"},
	}
	fake.results[fmt.Sprintf(bloatFactorsSQLTemplate, targets.List)] = fakeResult{
		rows: [][]any{{int64(100), false, 100.0, 23.0, int64(8), 100.0, 1000.0, 8192.0, 24.0, int64(100)}},
		cols: []string{"relid", "is_na", "tpl_data_size", "tpl_hdr_size", "ma", "tblpages", "reltuples", "bs", "page_hdr", "fillfactor"},
	}
	c := newTestCollector(fake)

	metrics, err := c.CollectTableMetrics(context.Background(), targets)
	require.NoError(t, err)

	require.Contains(t, metrics, "pg_stat_user_tables_all_fields")
	require.Contains(t, metrics, "pg_statio_user_tables_all_fields")
	require.Contains(t, metrics, "pg_stat_user_tables_table_sizes")

	bloat := metrics["table_bloat_ratios"]
	require.Len(t, bloat.Rows, 1)
	assert.Equal(t, int64(100), bloat.Rows[0][0])
	// data size 103 after 3 bytes of padding shifts dataPad from 4 to 8
	ratio, ok := bloat.Rows[0][1].(float64)
	require.True(t, ok)
	assert.Greater(t, ratio, 0.0)
}
