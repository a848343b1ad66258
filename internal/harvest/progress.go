package harvest

// Progress steps
const (
	StepStart    = "start"
	StepEntry    = "entry"
	StepNavigate = "navigate"
	StepSearch   = "search"
	StepSelect   = "select"
	StepDownload = "download"
	StepSkip     = "skip"
	StepError    = "error"
	StepComplete = "complete"
	StepStopped  = "stopped"
	StepAborted  = "aborted"
)

// ProgressEvent represents a progress update during a harvest run
type ProgressEvent struct {
	Step         string `json:"step"`
	Message      string `json:"message"`
	RunID        string `json:"run_id,omitempty"`
	Index        int    `json:"index"`
	Total        int    `json:"total"`
	SuccessCount int    `json:"success_count"`
	ErrorCount   int    `json:"error_count"`
	Content      any    `json:"content,omitempty"`
}

// ProgressCallback is called when harvest progress occurs
type ProgressCallback func(event ProgressEvent)

// Summary is the outcome of a start or resume call.
type Summary struct {
	RunID        string `json:"run_id,omitempty"`
	Resumed      bool   `json:"resumed"`
	Completed    bool   `json:"completed"`
	Stopped      bool   `json:"stopped"`
	Processed    int    `json:"processed"`
	SuccessCount int    `json:"success_count"`
	ErrorCount   int    `json:"error_count"`
}
