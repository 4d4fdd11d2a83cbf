// Package pgobserve implements a PostgreSQL introspection collector that
// turns a live connection into a structured, versioned observation for an
// external tuning and anomaly-detection pipeline.
//
// One collection cycle reads the server's catalog and statistics views and
// assembles them into several complementary shapes:
//   - tagged measurement records, one per statistic source
//   - table-oriented bulk records grouping all rows of a source
//   - a hierarchical global/local tree used by the full knobs+metrics snapshot
//
// On top of the raw views the collector synthesizes session activity
// summaries, per-query statement statistics (bootstrapping the
// pg_stat_statements extension on demand), and a per-table bloat ratio
// estimated from column alignment arithmetic over catalog statistics.
//
// Every cycle ends with a statistics reset so that counters read by the next
// cycle cover only the elapsed interval. Cycles are strictly sequential: the
// reset is a destructive side effect on shared server counters, so at most
// one cycle may run against a given server at a time.
//
// The collector is read-only apart from the statistics resets and the
// best-effort CREATE EXTENSION for pg_stat_statements. It owns no schema in
// the target database.
package pgobserve
