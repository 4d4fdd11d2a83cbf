package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	cerrors "github.com/ovoronin/pgobserve/internal/errors"
	models "github.com/ovoronin/pgobserve/internal/model"
)

// Statistics view groupings. Database-scoped views keep their raw per-object
// rows; table and index views are only collected as aggregated sums.
var (
	localStatViews = map[string][]string{
		"database": {"pg_stat_database", "pg_stat_database_conflicts"},
		"table":    {"pg_stat_user_tables", "pg_statio_user_tables"},
		"index":    {"pg_stat_user_indexes", "pg_statio_user_indexes"},
	}

	localRawViews = map[string][]string{
		"database": {"pg_stat_database", "pg_stat_database_conflicts"},
	}

	localKeyColumns = map[string]string{
		"database": "datid",
		"table":    "relid",
		"index":    "indexrelid",
	}

	aggregatedViewSQL = map[string]string{
		"pg_stat_database":           databaseStatSQL,
		"pg_stat_database_conflicts": databaseConflictsStatSQL,
		"pg_stat_user_tables":        tableStatSQL,
		"pg_statio_user_tables":      tableStatioSQL,
		"pg_stat_user_indexes":       indexStatSQL,
		"pg_statio_user_indexes":     indexStatioSQL,
	}
)

// localCategories fixes the iteration order of the aggregation loop.
// Activity is deliberately missing: it has a dedicated collection routine
// and must not be double-counted by the generic loop.
var localCategories = []string{"database", "table", "index"}

// Table-level and index-level statistics, keyed by their output field names.
var tableLevelSQLs = []struct {
	name     string
	template string
}{
	{"pg_stat_user_tables_all_fields", tableStatsAllSQLTemplate},
	{"pg_statio_user_tables_all_fields", tableStatioAllSQLTemplate},
	{"pg_stat_user_tables_table_sizes", tableSizesSQLTemplate},
}

var indexLevelSQLs = []struct {
	name     string
	template string
}{
	{"pg_stat_user_indexes_all_fields", indexStatsAllSQLTemplate},
	{"pg_statio_user_indexes_all_fields", indexStatioAllSQLTemplate},
	{"pg_index_all_fields", indexDefSQLTemplate},
}

// Collector drives full collection cycles against one server. It is not safe
// for concurrent cycles: the end-of-cycle statistics reset is a destructive
// side effect on shared server counters, so the caller must ensure at most
// one cycle runs against a given target at a time.
type Collector struct {
	q          Queryer
	version    string
	versionNum float64
	log        *zap.SugaredLogger

	notApplicable func(BloatFactors) bool
}

// Option configures a Collector.
type Option func(*Collector)

// WithNotApplicable overrides the predicate deciding which tables are
// excluded from the bloat estimate. The default trusts the is_na flag
// computed by the factor query.
func WithNotApplicable(pred func(BloatFactors) bool) Option {
	return func(c *Collector) { c.notApplicable = pred }
}

// New creates a Collector over an established connection. The caller owns
// the connection and closes it after the collector is done; version is the
// server's semantic version string.
func New(q Queryer, version string, logger *zap.SugaredLogger, opts ...Option) *Collector {
	c := &Collector{
		q:          q,
		version:    version,
		versionNum: parseVersionNum(version),
		log:        logger,
		notApplicable: func(f BloatFactors) bool {
			return f.NotApplicable
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Version returns the server version string supplied at construction.
func (c *Collector) Version() string {
	return c.version
}

// PermissionInfo describes a privilege the collector lacks and how to grant
// it.
type PermissionInfo struct {
	Query   string
	Missing string
	Grant   string
}

// CheckPermissions reports whether the user may run all collector queries.
// The PostgreSQL collector needs no privileges beyond pg_stat visibility, so
// this backend always reports success.
func (c *Collector) CheckPermissions() (bool, []PermissionInfo, string) {
	return true, nil, ""
}

// parseVersionNum reduces a server version string to a major.minor number
// for feature gating.
func parseVersionNum(version string) float64 {
	parts := strings.Split(version, ".")
	if len(parts) > 2 {
		parts = parts[:2]
	}
	n, err := strconv.ParseFloat(strings.Join(parts, "."), 64)
	if err != nil {
		return 0
	}
	return n
}

// statViews lists the instance-wide singleton views for this server
// version. pg_stat_archiver only exists from 9.4 on.
func (c *Collector) statViews() []string {
	if c.versionNum >= 9.4 {
		return []string{"pg_stat_archiver", "pg_stat_bgwriter"}
	}
	return []string{"pg_stat_bgwriter"}
}

// CollectKnobs snapshots every server setting, shaped as
// {"global": {"global": {name: value}}, "local": null}.
func (c *Collector) CollectKnobs(ctx context.Context) (*models.Knobs, error) {
	rows, _, err := c.q.Execute(ctx, knobsSQL)
	if err != nil {
		return nil, err
	}

	settings := make(map[string]any, len(rows))
	for _, row := range rows {
		val := row[1]
		switch v := val.(type) {
		case time.Time:
			val = v.Format(time.RFC3339Nano)
		case []byte:
			val = string(v)
		}
		settings[toText(row[0])] = val
	}
	return &models.Knobs{
		Global: map[string]map[string]any{"global": settings},
		Local:  nil,
	}, nil
}

// CollectRowStats reports the distribution of user tables by live row
// count as a flat mapping of bucket counts plus min/max row numbers.
func (c *Collector) CollectRowStats(ctx context.Context) (*models.Fields, error) {
	rows, columns, err := c.q.Execute(ctx, rowNumStatSQL)
	if err != nil {
		return nil, err
	}
	if len(rows) != 1 {
		return nil, fmt.Errorf("row number stats: %w", cerrors.ErrSingletonView)
	}

	f := models.NewFields()
	for i, col := range columns {
		if v, ok := normalizeValue(rows[0][i]); ok {
			f.Set(col, v)
		}
	}
	return f, nil
}

// CollectTableMetrics gathers per-table statistics for the selected
// targets: full pg_stat and pg_statio rows, size breakdowns, and the
// computed bloat ratios. The target set must stay fixed for the whole cycle.
func (c *Collector) CollectTableMetrics(ctx context.Context, tables TargetTables) (map[string]*models.ColumnSet, error) {
	metrics := make(map[string]*models.ColumnSet, len(tableLevelSQLs)+1)
	for _, stat := range tableLevelSQLs {
		rows, columns, err := c.q.Execute(ctx, fmt.Sprintf(stat.template, tables.List))
		if err != nil {
			return nil, err
		}
		metrics[stat.name] = &models.ColumnSet{Columns: columns, Rows: rows}
	}

	bloat := &models.ColumnSet{Columns: []string{"relid", "bloat_ratio"}, Rows: [][]any{}}
	metrics["table_bloat_ratios"] = bloat
	if len(tables.IDs) == 0 {
		return metrics, nil
	}

	paddingRows, _, err := c.q.Execute(ctx, fmt.Sprintf(paddingSQLTemplate, tables.List))
	if err != nil {
		return nil, err
	}
	facts, err := parseColumnFacts(paddingRows)
	if err != nil {
		return nil, err
	}
	padding, err := paddingByTable(facts)
	if err != nil {
		return nil, err
	}

	factors, order, err := c.bloatFactors(ctx, tables.List)
	if err != nil {
		return nil, err
	}
	bloat.Rows = c.bloatRatioRows(factors, order, padding)
	return metrics, nil
}

// CollectIndexMetrics gathers per-index statistics for the top n indexes of
// the selected tables. Index sizes are reused from the ranking query
// instead of being fetched again.
func (c *Collector) CollectIndexMetrics(ctx context.Context, tables TargetTables, n int) (map[string]*models.ColumnSet, error) {
	indexes, err := c.TargetIndexes(ctx, tables, n)
	if err != nil {
		return nil, err
	}

	metrics := make(map[string]*models.ColumnSet, len(indexLevelSQLs)+1)
	for _, stat := range indexLevelSQLs {
		rows, columns, err := c.q.Execute(ctx, fmt.Sprintf(stat.template, indexes.List))
		if err != nil {
			return nil, err
		}
		metrics[stat.name] = &models.ColumnSet{Columns: columns, Rows: rows}
	}

	sizes := &models.ColumnSet{Columns: []string{"indexrelid", "index_size"}, Rows: [][]any{}}
	for i, id := range indexes.IDs {
		sizes.Rows = append(sizes.Rows, []any{id, indexes.Sizes[i]})
	}
	metrics["indexes_size"] = sizes
	return metrics, nil
}

// CollectMetrics runs a full collection cycle in the hierarchical shape:
// global singleton views plus per-query statements under "global",
// aggregated and raw per-category statistics plus the activity subtree
// under "local". The cycle ends with an unconditional statistics reset.
func (c *Collector) CollectMetrics(ctx context.Context) (*models.MetricsTree, error) {
	tree := &models.MetricsTree{
		Global: make(map[string]*models.Fields),
		Local: &models.LocalTree{
			Database: make(map[string]*models.LocalStats),
			Table:    make(map[string]*models.LocalStats),
			Index:    make(map[string]*models.LocalStats),
		},
	}

	for _, view := range c.statViews() {
		rows, err := queryFields(ctx, c.q, "SELECT * FROM "+view+";")
		if err != nil {
			return nil, err
		}
		row, err := singleRow(view, rows)
		if err != nil {
			return nil, err
		}
		tree.Global[view] = row
	}

	stmtRows, _ := c.statementStats(ctx, false)
	if stmtRows == nil {
		stmtRows = []*models.Fields{}
	}
	encoded, err := json.Marshal(stmtRows)
	if err != nil {
		return nil, fmt.Errorf("encoding statement stats: %w", err)
	}
	statements := models.NewFields()
	statements.Set("statements", models.Text(string(encoded)))
	tree.Global["pg_stat_statements"] = statements

	if err := c.aggregatedLocalStats(ctx, tree.Local); err != nil {
		return nil, err
	}
	if err := c.rawLocalStats(ctx, tree.Local); err != nil {
		return nil, err
	}
	activity, err := c.collectActivity(ctx)
	if err != nil {
		return nil, err
	}
	tree.Local.Activity = activity

	if err := c.resetStats(ctx); err != nil {
		return nil, err
	}
	return tree, nil
}

// aggregatedLocalStats fills each category's views with their summed
// statistics.
func (c *Collector) aggregatedLocalStats(ctx context.Context, local *models.LocalTree) error {
	for _, category := range localCategories {
		target := local.Category(category)
		for _, view := range localStatViews[category] {
			rows, err := queryFields(ctx, c.q, aggregatedViewSQL[view])
			if err != nil {
				return err
			}
			entry := &models.LocalStats{}
			if len(rows) > 0 {
				entry.Aggregated = rows[0]
			}
			target[view] = entry
		}
	}
	return nil
}

// rawLocalStats keeps the raw per-object rows for the database category,
// keyed by catalog id. Table and index raw rows are intentionally omitted;
// they are covered by the bounded table-level and index-level collections.
func (c *Collector) rawLocalStats(ctx context.Context, local *models.LocalTree) error {
	for category, views := range localRawViews {
		keyColumn := localKeyColumns[category]
		target := local.Category(category)
		for _, view := range views {
			rows, err := queryFields(ctx, c.q, "SELECT * FROM "+view+";")
			if err != nil {
				return err
			}
			entry, ok := target[view]
			if !ok {
				entry = &models.LocalStats{}
				target[view] = entry
			}
			entry.Raw = make(map[int64]*models.Fields, len(rows))
			for _, row := range rows {
				key, ok := row.Get(keyColumn)
				if !ok {
					continue
				}
				entry.Raw[key.Int64()] = row
			}
		}
	}
	return nil
}

// collectActivity gathers the session activity subtree: merged scalar
// aggregates plus session counts grouped by state and by wait event type.
func (c *Collector) collectActivity(ctx context.Context) (*models.ActivityStats, error) {
	aggregated, err := c.activityAggregated(ctx)
	if err != nil {
		return nil, err
	}

	byState, err := c.sessionCounts(ctx, sessionsByStateSQL, "state", false)
	if err != nil {
		return nil, err
	}
	byWait, err := c.sessionCounts(ctx, sessionsByWaitSQL, "wait_event_type", false)
	if err != nil {
		return nil, err
	}

	raw := map[string]map[string]int64{
		"state":           make(map[string]int64, byState.Len()),
		"wait_event_type": make(map[string]int64, byWait.Len()),
	}
	for _, k := range byState.Keys() {
		v, _ := byState.Get(k)
		raw["state"][k] = v.Int64()
	}
	for _, k := range byWait.Keys() {
		v, _ := byWait.Get(k)
		raw["wait_event_type"][k] = v.Int64()
	}
	return &models.ActivityStats{Aggregated: aggregated, Raw: raw}, nil
}

// activityAggregated merges the five independent activity scalars into one
// field mapping keyed by each query's sole result column. Count fields are
// integer truncated.
func (c *Collector) activityAggregated(ctx context.Context) (*models.Fields, error) {
	f := models.NewFields()
	for _, query := range activityScalarSQLs {
		rows, columns, err := c.q.Execute(ctx, query)
		if err != nil {
			return nil, err
		}
		var val int64
		if len(rows) == 1 && rows[0][0] != nil {
			n, err := toFloat64(rows[0][0])
			if err != nil {
				return nil, fmt.Errorf("activity scalar %s: %w", columns[0], err)
			}
			val = int64(n)
		}
		f.Set(columns[0], models.Int(val))
	}
	return f, nil
}

// sessionCounts groups sessions by the given column. With underscoreKeys
// set, internal spaces in key values are replaced by underscores so they
// can serve as field names.
func (c *Collector) sessionCounts(ctx context.Context, query, keyColumn string, underscoreKeys bool) (*models.Fields, error) {
	rows, err := queryFields(ctx, c.q, query)
	if err != nil {
		return nil, err
	}

	f := models.NewFields()
	for _, row := range rows {
		key, ok := row.Get(keyColumn)
		if !ok {
			continue
		}
		name := key.String()
		if underscoreKeys {
			name = strings.ReplaceAll(name, " ", "_")
		}
		count, _ := row.Get("count")
		f.Set(name, count)
	}
	return f, nil
}

// resetStats issues the unconditional end-of-cycle statistics reset. It is
// irreversible and must be the last operation of the cycle.
func (c *Collector) resetStats(ctx context.Context) error {
	return c.q.ExecuteNoFetch(ctx, resetStatsSQL)
}

// singleRow asserts that a global view produced exactly one row.
func singleRow(view string, rows []*models.Fields) (*models.Fields, error) {
	if len(rows) != 1 {
		return nil, fmt.Errorf("%s returned %d rows: %w", view, len(rows), cerrors.ErrSingletonView)
	}
	return rows[0], nil
}

// viewMeasurement names the record emitted for a raw statistics view.
func viewMeasurement(view string) string {
	if view == "pg_stat_database" {
		return "database_statistics"
	}
	parts := strings.Split(view, "_")
	return parts[len(parts)-1]
}
