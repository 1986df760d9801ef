package estimateprocessingtime

type Input struct {
	Category string `json:"category"`
	City     string `json:"city"`
	State    string `json:"state"`
	// Month is 1-12; zero means the current month.
	Month int `json:"month,omitempty"`
	// Workload overrides the live count when set.
	Workload *int `json:"workload,omitempty"`
}

type Output struct {
	PredictedDays int      `json:"predictedDays"`
	Confidence    *float64 `json:"confidence,omitempty"`
	ModelVersion  string   `json:"modelVersion"`
	Fallback      bool     `json:"fallback"`
	Workload      int      `json:"workload"`
}
