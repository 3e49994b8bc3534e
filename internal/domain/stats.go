package domain

// PipelineStats is a read-model projection derived by querying the durable
// entities. It is computed on demand; nothing caches it as a source of truth.
type PipelineStats struct {
	IssuesByStatus map[string]int64  `json:"issues_by_status"`
	Decisions      []DecisionStat    `json:"decisions"`
	Executions     []OutcomeStat     `json:"executions"`
	Calibration    []CalibrationStat `json:"calibration"`
}

// DecisionStat aggregates decisions per status.
type DecisionStat struct {
	Status        string  `json:"status"         db:"status"`
	Count         int64   `json:"count"          db:"count"`
	AvgConfidence float64 `json:"avg_confidence" db:"avg_confidence"`
}

// OutcomeStat aggregates terminal executions per outcome.
type OutcomeStat struct {
	Outcome string `json:"outcome" db:"outcome"`
	Count   int64  `json:"count"   db:"count"`
}

// CalibrationStat relates decision confidence to execution outcome, the raw
// material for confidence-vs-outcome calibration during offline training.
type CalibrationStat struct {
	Outcome       string  `json:"outcome"        db:"outcome"`
	Count         int64   `json:"count"          db:"count"`
	AvgConfidence float64 `json:"avg_confidence" db:"avg_confidence"`
}
