package collector

// Callers pre-render the target id list into the statement text; the catalog
// query layer takes no client-side parameters. %s placeholders receive the
// rendered "(id1,id2,...)" list, %d the top-N limit.

// knobsSQL reads every server setting. pg_settings does not carry units, so
// values arrive unit-less (2 rather than 2min).
const knobsSQL = "SELECT name, setting FROM pg_settings;"

// Aggregated sums across all objects of a category.
const (
	databaseStatSQL = `
SELECT
  sum(numbackends) as numbackends,
  sum(xact_commit) as xact_commit,
  sum(xact_rollback) as xact_rollback,
  sum(blks_read) as blks_read,
  sum(blks_hit) as blks_hit,
  sum(tup_returned) as tup_returned,
  sum(tup_fetched) as tup_fetched,
  sum(tup_inserted) as tup_inserted,
  sum(tup_updated) as tup_updated,
  sum(tup_deleted) as tup_deleted,
  sum(conflicts) as conflicts,
  sum(temp_files) as temp_files,
  sum(temp_bytes) as temp_bytes,
  sum(deadlocks) as deadlocks,
  sum(blk_read_time) as blk_read_time,
  sum(blk_write_time) as blk_write_time
FROM
  pg_stat_database;`

	databaseConflictsStatSQL = `
SELECT
  sum(confl_tablespace) as confl_tablespace,
  sum(confl_lock) as confl_lock,
  sum(confl_snapshot) as confl_snapshot,
  sum(confl_bufferpin) as confl_bufferpin,
  sum(confl_deadlock) as confl_deadlock
FROM
  pg_stat_database_conflicts;`

	tableStatSQL = `
SELECT
  sum(seq_scan) as seq_scan,
  sum(seq_tup_read) as seq_tup_read,
  sum(idx_scan) as idx_scan,
  sum(idx_tup_fetch) as idx_tup_fetch,
  sum(n_tup_ins) as n_tup_ins,
  sum(n_tup_upd) as n_tup_upd,
  sum(n_tup_del) as n_tup_del,
  sum(n_tup_hot_upd) as n_tup_hot_upd,
  sum(n_live_tup) as n_live_tup,
  sum(n_dead_tup) as n_dead_tup,
  sum(n_mod_since_analyze) as n_mod_since_analyze,
  sum(vacuum_count) as vacuum_count,
  sum(autovacuum_count) as autovacuum_count,
  sum(analyze_count) as analyze_count,
  sum(autoanalyze_count) as autoanalyze_count
FROM
  pg_stat_user_tables;`

	tableStatioSQL = `
SELECT
  sum(heap_blks_read) as heap_blks_read,
  sum(heap_blks_hit) as heap_blks_hit,
  sum(idx_blks_read) as idx_blks_read,
  sum(idx_blks_hit) as idx_blks_hit,
  sum(toast_blks_read) as toast_blks_read,
  sum(toast_blks_hit) as toast_blks_hit,
  sum(tidx_blks_read) as tidx_blks_read,
  sum(tidx_blks_hit) as tidx_blks_hit
FROM
  pg_statio_user_tables;`

	indexStatSQL = `
SELECT
  sum(idx_scan) as idx_scan,
  sum(idx_tup_read) as idx_tup_read,
  sum(idx_tup_fetch) as idx_tup_fetch
FROM
  pg_stat_user_indexes;`

	indexStatioSQL = `
SELECT
  sum(idx_blks_read) as idx_blks_read,
  sum(idx_blks_hit) as idx_blks_hit
FROM
  pg_statio_user_indexes;`
)

// rowNumStatSQL buckets user tables by live row count.
const rowNumStatSQL = `
SELECT
  count(*) as num_tables,
  count(nullif(n_live_tup = 0, false)) as num_empty_tables,
  count(nullif(n_live_tup > 0 and n_live_tup <= 1e4, false)) as num_tables_row_count_0_10k,
  count(nullif(n_live_tup > 1e4 and n_live_tup <= 1e5, false)) as num_tables_row_count_10k_100k,
  count(nullif(n_live_tup > 1e5 and n_live_tup <= 1e6, false)) as num_tables_row_count_100k_1m,
  count(nullif(n_live_tup > 1e6 and n_live_tup <= 1e7, false)) as num_tables_row_count_1m_10m,
  count(nullif(n_live_tup > 1e7 and n_live_tup <= 1e8, false)) as num_tables_row_count_10m_100m,
  count(nullif(n_live_tup > 1e8, false)) as num_tables_row_count_100m_inf,
  max(n_live_tup) as max_row_num,
  min(n_live_tup) as min_row_num
FROM
  pg_stat_user_tables;`

// Session activity. Each of activityScalarSQLs returns a single scalar whose
// column name becomes the field key.
var activityScalarSQLs = []string{
	"select extract(epoch from (NOW() - min(backend_start))) as oldest_backend_time_sec from pg_stat_activity;",
	"select extract(epoch from (NOW() - min(query_start))) as longest_query_time_sec from pg_stat_activity where state = 'active';",
	"select extract(epoch from (NOW() - min(xact_start))) as longest_transaction_time_sec from pg_stat_activity where state = 'active';",
	"SELECT count(*) as num_sessions FROM pg_stat_activity WHERE state = 'active';",
	"SELECT count(*) as num_wait_sessions FROM pg_stat_activity WHERE wait_event_type is not null;",
}

const (
	sessionsByStateSQL = "select state, count(*) from pg_stat_activity group by state having state is not null;"
	sessionsByWaitSQL  = "select wait_event_type, count(*) from pg_stat_activity group by wait_event_type having wait_event_type is not null;"
)

// Target selection. Objects are ranked by total on-disk size to bound the
// cost of per-object collection.
const (
	topTablesSQLTemplate  = "SELECT relid FROM pg_stat_user_tables ORDER BY pg_total_relation_size(relid) DESC LIMIT %d;"
	topIndexesSQLTemplate = "SELECT indexrelid, pg_total_relation_size(indexrelid) AS index_size FROM pg_stat_user_indexes WHERE relid IN %s ORDER BY index_size DESC LIMIT %d;"
)

// Per-object table and index statistics, scoped to the selected targets.
const (
	tableStatsAllSQLTemplate  = "SELECT * FROM pg_stat_user_tables WHERE relid IN %s;"
	tableStatioAllSQLTemplate = "SELECT * FROM pg_statio_user_tables WHERE relid IN %s;"
	tableSizesSQLTemplate     = `
SELECT relid,
       pg_indexes_size(relid) AS indexes_size,
       pg_relation_size(relid) AS relation_size,
       pg_table_size(relid) - pg_relation_size(relid) AS toast_size
FROM pg_stat_user_tables
WHERE relid IN %s;`

	indexStatsAllSQLTemplate  = "SELECT * FROM pg_stat_user_indexes WHERE indexrelid IN %s;"
	indexStatioAllSQLTemplate = "SELECT * FROM pg_statio_user_indexes WHERE indexrelid IN %s;"
	indexDefSQLTemplate       = "SELECT * FROM pg_index WHERE indexrelid IN %s;"
)

// paddingSQLTemplate lists the physical column layout facts needed for the
// intra-tuple padding computation: one row per visible column, ordered by
// table then by the column's position in storage. The ORDER BY is load
// bearing: the padding computation groups rows by contiguous relid ranges.
const paddingSQLTemplate = `
SELECT psut.relid, pg_attribute.attname, pg_attribute.attalign, pg_stats.avg_width
FROM pg_attribute
JOIN pg_stat_user_tables AS psut ON pg_attribute.attrelid = psut.relid
JOIN pg_stats ON pg_stats.schemaname = psut.schemaname
             AND pg_stats.tablename = psut.relname
             AND pg_stats.attname = pg_attribute.attname
WHERE psut.relid IN %s
  AND pg_attribute.attnum > 0
  AND NOT pg_attribute.attisdropped
ORDER BY psut.relid, pg_attribute.attnum;`

// bloatFactorsSQLTemplate gathers the tuple accounting inputs of the bloat
// estimate, following the community bloat-check heuristic (pgexperts/ioguix
// lineage): block size, page and tuple header sizes, machine alignment
// width, fill factor, and the statistics-derived tuple data width. is_na
// flags tables whose statistics cannot support the estimate (name-typed
// columns or columns missing from pg_stats).
const bloatFactorsSQLTemplate = `
SELECT relid, is_na, tpl_data_size, tpl_hdr_size, ma, tblpages, reltuples, bs, page_hdr, fillfactor
FROM (
  SELECT
    tbl.oid AS relid,
    bool_or(att.atttypid = 'pg_catalog.name'::regtype)
      OR count(s.attname) <> count(att.attname) AS is_na,
    sum((1 - coalesce(s.null_frac, 0)) * coalesce(s.avg_width, 0)) AS tpl_data_size,
    23 + CASE WHEN max(coalesce(s.null_frac, 0)) > 0
              THEN (7 + count(att.attname)) / 8
              ELSE 0 END AS tpl_hdr_size,
    CASE WHEN version() ~ 'mingw32|64-bit|x86_64|ppc64|ia64|amd64' THEN 8 ELSE 4 END AS ma,
    tbl.relpages::float AS tblpages,
    tbl.reltuples::float AS reltuples,
    current_setting('block_size')::float AS bs,
    24 AS page_hdr,
    coalesce(substring(array_to_string(tbl.reloptions, ' ')
                       FROM 'fillfactor=([0-9]+)')::smallint, 100) AS fillfactor
  FROM pg_attribute AS att
  JOIN pg_class AS tbl ON att.attrelid = tbl.oid
  JOIN pg_namespace AS ns ON ns.oid = tbl.relnamespace
  LEFT JOIN pg_stats AS s ON s.schemaname = ns.nspname
                         AND s.tablename = tbl.relname
                         AND s.attname = att.attname
  WHERE att.attnum > 0
    AND NOT att.attisdropped
    AND tbl.relkind = 'r'
    AND tbl.oid IN %s
  GROUP BY tbl.oid, tbl.relpages, tbl.reltuples, tbl.reloptions
) AS factors;`

// pg_stat_statements lifecycle.
const (
	checkStatementsExtSQL   = "SELECT count(*) FROM pg_extension WHERE extname = 'pg_stat_statements';"
	installStatementsExtSQL = "CREATE EXTENSION pg_stat_statements;"
	resetStatementsSQL      = "select pg_stat_statements_reset();"

	// statementStatsSQLTemplate receives the version-dependent total/mean
	// execution time column names.
	statementStatsSQLTemplate = `
SELECT queryid, query, calls,
       %[1]s as total_time_ms, %[2]s as avg_time_ms,
       blk_read_time + blk_write_time as io_time_ms,
       shared_blks_hit, shared_blks_read, shared_blks_dirtied, shared_blks_written,
       local_blks_hit, local_blks_read, local_blks_dirtied, local_blks_written,
       temp_blks_read, temp_blks_written,
       blk_read_time, blk_write_time
FROM pg_stat_statements;`

	statementsTpsSQL = `
SELECT total_calls / total_exec_time AS tps
FROM (
  SELECT sum(calls) AS total_calls, sum(%s) AS total_exec_time
  FROM pg_stat_statements
) AS totals;`

	statementsLatencySQL = `
SELECT percentile_cont(0.95) WITHIN GROUP (ORDER BY %s) AS latency_95th_percentile
FROM pg_stat_statements;`
)

// resetStatsSQL makes the next cycle's counters cover only the elapsed
// interval. Issued unconditionally as the last operation of a cycle.
const resetStatsSQL = "select pg_stat_reset();"
