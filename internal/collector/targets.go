package collector

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// TargetTables is the bounded set of tables selected for per-object
// collection, computed once per cycle and held fixed for every subsequent
// per-object query of that cycle.
type TargetTables struct {
	// IDs holds the selected relation ids in ranking order.
	IDs []int64

	// List is the pre-rendered SQL id list: "(id1,id2,...)", "(id)" for a
	// single id, or "(0)" when nothing was selected. Relation id 0 never
	// matches a real object, so an empty selection degrades scoped queries
	// to an empty result instead of a syntax error.
	List string
}

// TargetIndexes is the bounded index selection, scoped to the previously
// selected tables. Sizes preserves each index's size from the ranking query
// so it can be reused without a second lookup.
type TargetIndexes struct {
	IDs   []int64
	Sizes []int64
	List  string
}

// TargetTables ranks user tables by total relation size and returns the top
// n. n = 0 yields a well-formed empty selection.
func (c *Collector) TargetTables(ctx context.Context, n int) (TargetTables, error) {
	rows, _, err := c.q.Execute(ctx, fmt.Sprintf(topTablesSQLTemplate, n))
	if err != nil {
		return TargetTables{}, err
	}

	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		id, err := toInt64(row[0])
		if err != nil {
			return TargetTables{}, fmt.Errorf("invalid relation id: %w", err)
		}
		ids = append(ids, id)
	}
	return TargetTables{IDs: ids, List: renderIDList(ids)}, nil
}

// TargetIndexes ranks the indexes belonging to the selected tables by size
// and returns the top n along with their sizes.
func (c *Collector) TargetIndexes(ctx context.Context, tables TargetTables, n int) (TargetIndexes, error) {
	rows, _, err := c.q.Execute(ctx, fmt.Sprintf(topIndexesSQLTemplate, tables.List, n))
	if err != nil {
		return TargetIndexes{}, err
	}

	ids := make([]int64, 0, len(rows))
	sizes := make([]int64, 0, len(rows))
	for _, row := range rows {
		id, err := toInt64(row[0])
		if err != nil {
			return TargetIndexes{}, fmt.Errorf("invalid index id: %w", err)
		}
		size, err := toInt64(row[1])
		if err != nil {
			return TargetIndexes{}, fmt.Errorf("invalid index size: %w", err)
		}
		ids = append(ids, id)
		sizes = append(sizes, size)
	}
	return TargetIndexes{IDs: ids, Sizes: sizes, List: renderIDList(ids)}, nil
}

// renderIDList renders ids for interpolation into an IN clause.
func renderIDList(ids []int64) string {
	if len(ids) == 0 {
		return "(0)"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// toInt64 converts the driver representations an id or size column can
// arrive in.
func toInt64(raw any) (int64, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected value %v of type %T", raw, raw)
	}
}
