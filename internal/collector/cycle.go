package collector

import (
	"context"

	models "github.com/ovoronin/pgobserve/internal/model"
)

// observationSink receives the output of one collection cycle. The cycle
// runner is shape-agnostic: the two observation shapes share all query
// logic and differ only in how records are assembled.
type observationSink interface {
	// Global receives an instance-wide singleton source.
	Global(name string, fields *models.Fields)

	// PerObject receives all rows of a per-object source together with the
	// column that identifies each row's object.
	PerObject(name, tagKey string, rows []*models.Fields)

	// QueryStats receives the per-query statement statistics.
	QueryStats(rows []*models.Fields)

	// Performance receives the instance throughput/latency summary. Only
	// emitted when the cycle runs with performance sampling.
	Performance(fields *models.Fields)
}

// CollectObservations runs a collection cycle in the tagged-measurement
// shape: one record per source, per-object sources exploded into one record
// per row tagged by its catalog id.
func (c *Collector) CollectObservations(ctx context.Context) ([]models.Observation, error) {
	sink := &measurementSink{}
	if err := c.runCycle(ctx, sink, false); err != nil {
		return nil, err
	}
	return sink.records, nil
}

// CollectTableRecords runs a collection cycle in the table-oriented shape:
// each source becomes one record holding either a single field mapping or
// the full list of per-object rows. This shape additionally samples the
// instance performance summary.
func (c *Collector) CollectTableRecords(ctx context.Context) ([]models.TableRecord, error) {
	sink := &tableSink{}
	if err := c.runCycle(ctx, sink, true); err != nil {
		return nil, err
	}
	return sink.records, nil
}

// runCycle executes every read of a collection cycle against the sink and
// finishes with the unconditional statistics reset. No read may follow the
// reset.
func (c *Collector) runCycle(ctx context.Context, sink observationSink, withPerformance bool) error {
	// background writer
	rows, err := queryFields(ctx, c.q, "SELECT * FROM pg_stat_bgwriter;")
	if err != nil {
		return err
	}
	row, err := singleRow("pg_stat_bgwriter", rows)
	if err != nil {
		return err
	}
	row.Delete("stats_reset")
	sink.Global("bgwriter", row)

	// per-database raw views
	for _, view := range localRawViews["database"] {
		rows, err := queryFields(ctx, c.q, "SELECT * FROM "+view+";")
		if err != nil {
			return err
		}
		for _, r := range rows {
			r.Delete("stats_reset")
		}
		sink.PerObject(viewMeasurement(view), localKeyColumns["database"], rows)
	}

	// access and io merge table and index sums into one record each
	access, err := c.mergedAggregate(ctx, tableStatSQL, indexStatSQL)
	if err != nil {
		return err
	}
	sink.Global("access", access)

	io, err := c.mergedAggregate(ctx, tableStatioSQL, indexStatioSQL)
	if err != nil {
		return err
	}
	sink.Global("io", io)

	// session activity
	sessions, err := c.activityAggregated(ctx)
	if err != nil {
		return err
	}
	sink.Global("sessions", sessions)

	active, err := c.sessionCounts(ctx, sessionsByStateSQL, "state", true)
	if err != nil {
		return err
	}
	sink.Global("active_sessions", active)

	waiting, err := c.sessionCounts(ctx, sessionsByWaitSQL, "wait_event_type", false)
	if err != nil {
		return err
	}
	sink.Global("waiting_sessions", waiting)

	// per-query statistics, downgraded to empty on bootstrap failure
	stmtRows, performance := c.statementStats(ctx, withPerformance)
	sink.QueryStats(stmtRows)
	if performance != nil {
		sink.Performance(performance)
	}

	return c.resetStats(ctx)
}

// mergedAggregate merges the single rows of a table-scoped and an
// index-scoped aggregation query into one field mapping.
func (c *Collector) mergedAggregate(ctx context.Context, tableQuery, indexQuery string) (*models.Fields, error) {
	tableRows, err := queryFields(ctx, c.q, tableQuery)
	if err != nil {
		return nil, err
	}
	merged, err := singleRow("table aggregate", tableRows)
	if err != nil {
		return nil, err
	}
	merged.Delete("stats_reset")

	indexRows, err := queryFields(ctx, c.q, indexQuery)
	if err != nil {
		return nil, err
	}
	indexRow, err := singleRow("index aggregate", indexRows)
	if err != nil {
		return nil, err
	}
	merged.Merge(indexRow)
	return merged, nil
}

// measurementSink assembles the tagged-measurement shape.
type measurementSink struct {
	records []models.Observation
}

func (s *measurementSink) Global(name string, fields *models.Fields) {
	s.records = append(s.records, models.Observation{Measurement: name, Fields: fields})
}

func (s *measurementSink) PerObject(name, tagKey string, rows []*models.Fields) {
	for _, row := range rows {
		s.records = append(s.records, models.Observation{
			Measurement: name,
			Tags:        extractTag(row, tagKey),
			Fields:      row,
		})
	}
}

func (s *measurementSink) QueryStats(rows []*models.Fields) {
	for _, row := range rows {
		s.records = append(s.records, models.Observation{
			Measurement: "query_statistics",
			Tags:        extractTag(row, "queryid"),
			Fields:      row,
		})
	}
}

func (s *measurementSink) Performance(fields *models.Fields) {
	s.records = append(s.records, models.Observation{Measurement: "performance", Fields: fields})
}

// extractTag moves the identifying column out of the field mapping and into
// a tag set.
func extractTag(row *models.Fields, tagKey string) map[string]models.Value {
	v, ok := row.Get(tagKey)
	if !ok {
		return nil
	}
	row.Delete(tagKey)
	return map[string]models.Value{tagKey: v}
}

// tableSink assembles the table-oriented shape.
type tableSink struct {
	records []models.TableRecord
}

func (s *tableSink) Global(name string, fields *models.Fields) {
	s.records = append(s.records, models.TableRecord{Table: name, Data: fields})
}

func (s *tableSink) PerObject(name, _ string, rows []*models.Fields) {
	s.records = append(s.records, models.TableRecord{Table: name, Data: rows})
}

func (s *tableSink) QueryStats(rows []*models.Fields) {
	if rows == nil {
		rows = []*models.Fields{}
	}
	s.records = append(s.records, models.TableRecord{Table: "query_statistics", Data: rows})
}

func (s *tableSink) Performance(fields *models.Fields) {
	s.records = append(s.records, models.TableRecord{Table: "performance", Data: []*models.Fields{fields}})
}
