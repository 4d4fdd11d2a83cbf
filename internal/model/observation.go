package models

// Observation is one measurement produced by a collection sub-step: a named
// source, an optional identifying tag (the object's catalog id), and its
// field values.
type Observation struct {
	// Measurement is the name of the statistic source.
	Measurement string `json:"measurement"`

	// Tags identifies the object the fields belong to, keyed by the source's
	// primary catalog id column (relid, indexrelid, queryid). Nil for
	// instance-wide singleton sources.
	Tags map[string]Value `json:"tags,omitempty"`

	// Fields holds the metric values of this measurement.
	Fields *Fields `json:"fields"`
}

// TableRecord is the table-oriented counterpart of Observation: all rows of a
// source grouped under one record.
type TableRecord struct {
	// Table is the name of the statistic source.
	Table string `json:"table"`

	// Data is either a single *Fields (singleton sources) or a []*Fields
	// (per-object sources).
	Data any `json:"data"`
}

// ColumnSet is a raw columns/rows result preserved in column order.
type ColumnSet struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Knobs is the configuration snapshot of the server, shaped as
// {"global": {"global": {name: value}}, "local": null}.
type Knobs struct {
	Global map[string]map[string]any `json:"global"`
	Local  any                       `json:"local"`
}

// LocalStats groups one statistics view's aggregated sum with its raw
// per-object rows keyed by catalog id.
type LocalStats struct {
	Aggregated *Fields           `json:"aggregated,omitempty"`
	Raw        map[int64]*Fields `json:"raw,omitempty"`
}

// ActivityStats is the session activity subtree. Activity has no catalog id
// to key raw rows by, so its raw section groups session counts by state and
// by wait event type instead.
type ActivityStats struct {
	Aggregated *Fields                     `json:"aggregated"`
	Raw        map[string]map[string]int64 `json:"raw"`
}

// LocalTree holds the per-category statistics of the hierarchical shape.
type LocalTree struct {
	Database map[string]*LocalStats `json:"database"`
	Table    map[string]*LocalStats `json:"table"`
	Index    map[string]*LocalStats `json:"index"`
	Activity *ActivityStats         `json:"activity"`
}

// Category returns the view map of a named category. Unknown categories
// return nil; activity is not addressable this way because its subtree has a
// different shape.
func (t *LocalTree) Category(name string) map[string]*LocalStats {
	switch name {
	case "database":
		return t.Database
	case "table":
		return t.Table
	case "index":
		return t.Index
	default:
		return nil
	}
}

// MetricsTree is the hierarchical output of a full metrics collection.
type MetricsTree struct {
	Global map[string]*Fields `json:"global"`
	Local  *LocalTree         `json:"local"`
}

// Summary is the versioned observation handed to the downstream pipeline.
// DBKey and OrganizationID are opaque caller-supplied identifiers copied
// verbatim from the configuration.
type Summary struct {
	DBKey          string                `json:"db_key"`
	OrganizationID string                `json:"organization_id"`
	Version        string                `json:"version"`
	Knobs          *Knobs                `json:"knobs,omitempty"`
	Metrics        []TableRecord         `json:"metrics,omitempty"`
	TableMetrics   map[string]*ColumnSet `json:"table_metrics,omitempty"`
	IndexMetrics   map[string]*ColumnSet `json:"index_metrics,omitempty"`
	RowStats       *Fields               `json:"row_stats,omitempty"`
}
