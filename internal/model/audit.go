package models

// CycleEvent records one completed collection cycle for the audit trail.
// Every cycle ends with an irreversible statistics reset on the target
// server, so completed cycles are worth an auditable record.
type CycleEvent struct {
	TS         string `json:"ts"`
	DBKey      string `json:"db_key"`
	Records    int    `json:"records"`
	DurationMS int64  `json:"duration_ms"`
}
