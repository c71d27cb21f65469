package domain

// ReportFile is the persisted result of a run.
type ReportFile struct {
	RunID    string     `json:"runId"`
	Config   *RunConfig `json:"config,omitempty"`
	Reports  []*Report  `json:"reports"`
	UptimeMs int64      `json:"uptimeMs"`
}
