package verifystage

type Input struct {
	StageID     string `json:"stageId"`
	Action      string `json:"action"` // start, approve or reject
	OfficerID   string `json:"officerId"`
	OfficerRole string `json:"officerRole"`
	Remarks     string `json:"remarks,omitempty"`
}

type Output struct {
	ApplicationNumber string   `json:"applicationNumber"`
	ApplicationStatus string   `json:"applicationStatus"`
	StageName         string   `json:"stageName"`
	StageStatus       string   `json:"stageStatus"`
	Events            []string `json:"events"`
	Version           int64    `json:"version"`
	// Terminal tells the process whether the application has finished.
	Terminal bool `json:"terminal"`
}
