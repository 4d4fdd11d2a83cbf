package collector

import (
	"context"
	"fmt"
	"math"
	"strconv"
)

// alignmentWidth maps a pg_attribute.attalign class code to its alignment
// requirement in bytes.
var alignmentWidth = map[string]int64{
	"c": 1,
	"s": 2,
	"i": 4,
	"d": 8,
}

// columnFact is one column's physical layout: owning table, alignment class,
// and average stored width from pg_stats.
type columnFact struct {
	relID int64
	name  string
	align string
	width int64
}

// BloatFactors holds the per-table tuple accounting inputs of the bloat
// estimate.
type BloatFactors struct {
	// NotApplicable flags tables whose statistics cannot support the
	// estimate.
	NotApplicable bool

	// TupleDataSize is the statistics-derived width of a tuple's column
	// data, before padding.
	TupleDataSize float64

	// TupleHeaderSize is the fixed per-row header size including the null
	// bitmap when present.
	TupleHeaderSize float64

	// MaxAlign is the machine alignment width of the server build.
	MaxAlign int64

	// Pages is the observed page count of the table.
	Pages float64

	// LiveTuples is the planner's live row estimate.
	LiveTuples float64

	// BlockSize is the storage block size.
	BlockSize float64

	// PageHeader is the per-page header size.
	PageHeader float64

	// FillFactor is the table's fill factor as a percentage (100 when
	// unset).
	FillFactor float64
}

// parseColumnFacts converts raw padding-query rows into column facts. Rows
// are expected in (relid, attname, attalign, avg_width) column order,
// pre-sorted by relid.
func parseColumnFacts(rows [][]any) ([]columnFact, error) {
	facts := make([]columnFact, 0, len(rows))
	for _, row := range rows {
		if len(row) < 4 {
			return nil, fmt.Errorf("padding row has %d columns, want 4", len(row))
		}
		relID, err := toInt64(row[0])
		if err != nil {
			return nil, fmt.Errorf("invalid relation id: %w", err)
		}
		width, err := toInt64(row[3])
		if err != nil {
			return nil, fmt.Errorf("invalid column width: %w", err)
		}
		facts = append(facts, columnFact{
			relID: relID,
			name:  toText(row[1]),
			align: toText(row[2]),
			width: width,
		})
	}
	return facts, nil
}

// paddingByTable computes the intra-tuple padding byte count per table.
// Facts must be grouped contiguously by relid; the grouping walks contiguous
// ranges rather than re-sorting, so out-of-order input is rejected.
func paddingByTable(facts []columnFact) (map[int64]int64, error) {
	padding := make(map[int64]int64)
	for start := 0; start < len(facts); {
		relID := facts[start].relID
		if _, seen := padding[relID]; seen {
			return nil, fmt.Errorf("padding rows for table %d are not contiguous", relID)
		}
		end := start
		for end < len(facts) && facts[end].relID == relID {
			end++
		}
		padding[relID] = paddingForColumns(facts[start:end])
		start = end
	}
	return padding, nil
}

// paddingForColumns walks a table's columns in physical order, rounding the
// running offset up to each column's alignment boundary and accumulating the
// filler bytes. Tuples themselves are assumed row-aligned to 4 bytes, which
// adds one final alignment step.
func paddingForColumns(cols []columnFact) int64 {
	var padding int64
	offset := cols[0].width
	for _, col := range cols[1:] {
		align, ok := alignmentWidth[col.align]
		if !ok {
			align = 1
		}
		mask := align - 1
		padded := (offset + mask) &^ mask
		padding += padded - offset
		offset = padded + col.width
	}

	padded := (offset + 3) &^ 3
	padding += padded - offset
	return padding
}

// bloatFactors retrieves the estimate inputs for every table in the rendered
// target list, keyed by relation id.
func (c *Collector) bloatFactors(ctx context.Context, tableList string) (map[int64]BloatFactors, []int64, error) {
	rows, columns, err := c.q.Execute(ctx, fmt.Sprintf(bloatFactorsSQLTemplate, tableList))
	if err != nil {
		return nil, nil, err
	}

	byName := make(map[string]int, len(columns))
	for i, col := range columns {
		byName[col] = i
	}

	factors := make(map[int64]BloatFactors, len(rows))
	order := make([]int64, 0, len(rows))
	for _, row := range rows {
		relID, err := toInt64(row[byName["relid"]])
		if err != nil {
			return nil, nil, fmt.Errorf("invalid relation id: %w", err)
		}

		var f BloatFactors
		f.NotApplicable = toBool(row[byName["is_na"]])
		if f.TupleDataSize, err = toFloat64(row[byName["tpl_data_size"]]); err != nil {
			return nil, nil, fmt.Errorf("table %d: tpl_data_size: %w", relID, err)
		}
		if f.TupleHeaderSize, err = toFloat64(row[byName["tpl_hdr_size"]]); err != nil {
			return nil, nil, fmt.Errorf("table %d: tpl_hdr_size: %w", relID, err)
		}
		if f.MaxAlign, err = toInt64(row[byName["ma"]]); err != nil {
			return nil, nil, fmt.Errorf("table %d: ma: %w", relID, err)
		}
		if f.Pages, err = toFloat64(row[byName["tblpages"]]); err != nil {
			return nil, nil, fmt.Errorf("table %d: tblpages: %w", relID, err)
		}
		if f.LiveTuples, err = toFloat64(row[byName["reltuples"]]); err != nil {
			return nil, nil, fmt.Errorf("table %d: reltuples: %w", relID, err)
		}
		if f.BlockSize, err = toFloat64(row[byName["bs"]]); err != nil {
			return nil, nil, fmt.Errorf("table %d: bs: %w", relID, err)
		}
		if f.PageHeader, err = toFloat64(row[byName["page_hdr"]]); err != nil {
			return nil, nil, fmt.Errorf("table %d: page_hdr: %w", relID, err)
		}
		if f.FillFactor, err = toFloat64(row[byName["fillfactor"]]); err != nil {
			return nil, nil, fmt.Errorf("table %d: fillfactor: %w", relID, err)
		}

		factors[relID] = f
		order = append(order, relID)
	}
	return factors, order, nil
}

// bloatRatio estimates what percentage of a table's allocated pages is slack
// rather than live data, replicating the community bloat-check arithmetic.
// The result is absent (ok = false) when the table does not qualify for the
// estimate. This is a heuristic over planner statistics, not ground truth.
func bloatRatio(f BloatFactors, padding int64, notApplicable func(BloatFactors) bool) (float64, bool) {
	if notApplicable(f) {
		return 0, false
	}

	ma := float64(f.MaxAlign)
	dataSize := f.TupleDataSize + float64(padding)

	hdrPad := ma
	if mod := math.Mod(f.TupleHeaderSize, ma); mod != 0 {
		hdrPad = mod
	}
	dataPad := ma
	if mod := math.Mod(math.Ceil(dataSize), ma); mod != 0 {
		dataPad = mod
	}
	tupleSize := 4 + f.TupleHeaderSize + dataSize + 2*ma - hdrPad - dataPad

	estPages := math.Ceil(f.LiveTuples / ((f.BlockSize - f.PageHeader) * f.FillFactor / (tupleSize * 100.0)))
	if f.Pages-estPages <= 0 {
		return 0, true
	}
	return 100.0 * (f.Pages - estPages) / f.Pages, true
}

// bloatRatioRows assembles the (relid, bloat_ratio) rows for the selected
// tables. Tables with no padding entry (zero non-key columns) are treated as
// zero padding; absent ratios are emitted as SQL-null row values.
func (c *Collector) bloatRatioRows(factors map[int64]BloatFactors, order []int64, padding map[int64]int64) [][]any {
	rows := make([][]any, 0, len(order))
	for _, relID := range order {
		ratio, ok := bloatRatio(factors[relID], padding[relID], c.notApplicable)
		if !ok {
			rows = append(rows, []any{relID, nil})
			continue
		}
		rows = append(rows, []any{relID, ratio})
	}
	return rows
}

// toFloat64 converts the driver representations a numeric factor can arrive
// in.
func toFloat64(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case []byte:
		return strconv.ParseFloat(string(v), 64)
	case string:
		return strconv.ParseFloat(v, 64)
	default:
		return 0, fmt.Errorf("unexpected value %v of type %T", raw, raw)
	}
}

func toBool(raw any) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		return v == "t" || v == "true"
	case []byte:
		return string(v) == "t" || string(v) == "true"
	default:
		return false
	}
}

func toText(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}
