package collector

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	models "github.com/ovoronin/pgobserve/internal/model"
)

// Per-query statistics follow a three-step lifecycle each cycle:
// ensure the pg_stat_statements extension exists, read the accumulated
// statistics, reset the accumulator. A failure in the ensure step downgrades
// the source to an empty sequence for this cycle instead of aborting the
// whole collection.

// timingColumns returns the version-dependent total/mean execution time
// column names of pg_stat_statements.
func (c *Collector) timingColumns() (total, mean string) {
	if c.versionNum >= 13 {
		return "total_exec_time", "mean_exec_time"
	}
	return "total_time", "mean_time"
}

// ensureStatements checks the extension catalog for pg_stat_statements and
// issues a best-effort install when absent.
func (c *Collector) ensureStatements(ctx context.Context) error {
	rows, _, err := c.q.Execute(ctx, checkStatementsExtSQL)
	if err != nil {
		return err
	}
	if len(rows) == 1 && len(rows[0]) == 1 {
		if n, err := toInt64(rows[0][0]); err == nil && n == 1 {
			return nil
		}
	}

	if err := c.q.ExecuteNoFetch(ctx, installStatementsExtSQL); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgerrcode.InsufficientPrivilege:
				return fmt.Errorf("installing pg_stat_statements requires superuser: %w", err)
			case pgerrcode.UndefinedFile:
				return fmt.Errorf("pg_stat_statements is not in shared_preload_libraries: %w", err)
			}
		}
		return err
	}
	return nil
}

// statementStats reads per-query statistics and resets the accumulator.
// When withPerformance is set, instance-wide throughput and tail latency are
// sampled from the same accumulator before the reset so they cover the full
// interval. Failures are logged and yield empty results; per-query
// statistics are never fatal to a cycle.
func (c *Collector) statementStats(ctx context.Context, withPerformance bool) (rows []*models.Fields, performance *models.Fields) {
	if err := c.ensureStatements(ctx); err != nil {
		c.log.Errorf("failed to load pg_stat_statements module: %v", err)
		return nil, nil
	}

	total, mean := c.timingColumns()
	rows, err := queryFields(ctx, c.q, fmt.Sprintf(statementStatsSQLTemplate, total, mean))
	if err != nil {
		c.log.Errorf("failed to read pg_stat_statements, you may need to add "+
			"pg_stat_statements to shared_preload_libraries: %v", err)
		return nil, nil
	}

	if withPerformance {
		performance = c.performanceStats(ctx, total)
	}

	if err := c.q.ExecuteNoFetch(ctx, resetStatementsSQL); err != nil {
		c.log.Errorf("failed to reset pg_stat_statements: %v", err)
	}
	return rows, performance
}

// performanceStats merges instance throughput (calls per unit of execution
// time) and 95th percentile statement latency into one field mapping.
func (c *Collector) performanceStats(ctx context.Context, totalColumn string) *models.Fields {
	perf := models.NewFields()

	tps, err := queryFields(ctx, c.q, fmt.Sprintf(statementsTpsSQL, totalColumn))
	if err != nil {
		c.log.Errorf("failed to compute statement throughput: %v", err)
	} else if len(tps) == 1 {
		perf.Merge(tps[0])
	}

	latency, err := queryFields(ctx, c.q, fmt.Sprintf(statementsLatencySQL, totalColumn))
	if err != nil {
		c.log.Errorf("failed to compute statement latency percentile: %v", err)
	} else if len(latency) == 1 {
		perf.Merge(latency[0])
	}

	if perf.Len() == 0 {
		return nil
	}
	return perf
}
