package entity

// AnalysisReport — структурированный отчет внешнего анализатора.
// Ядро зависит только от Summary; остальные поля передаются подписчикам как есть.
type AnalysisReport struct {
	Summary         AnalysisSummary `json:"summary"`
	Leaks           []LeakFinding   `json:"leaks,omitempty"`
	Offenders       []Offender      `json:"offenders,omitempty"`
	Recommendations []string        `json:"recommendations,omitempty"`
}

// AnalysisSummary — итоговые показатели роста памяти между снапшотами
type AnalysisSummary struct {
	TotalLeaksMB     float64 `json:"totalLeaksMB"`
	TotalGrowthMB    float64 `json:"totalGrowthMB"`
	SuspiciousGrowth bool    `json:"suspiciousGrowth"`
	Confidence       float64 `json:"confidence"`
}

// LeakFinding — отдельная найденная утечка
type LeakFinding struct {
	Constructor string  `json:"constructor,omitempty"`
	SizeMB      float64 `json:"sizeMB"`
	CountDelta  int64   `json:"countDelta,omitempty"`
	Detail      string  `json:"detail,omitempty"`
}

// Offender — объект с наибольшим вкладом в рост
type Offender struct {
	Name    string  `json:"name"`
	SizeMB  float64 `json:"sizeMB"`
	Percent float64 `json:"percent,omitempty"`
}
