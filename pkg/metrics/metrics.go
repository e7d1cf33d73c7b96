package metrics

/*
Labels and so on for metrics used in Converge.
*/

const (
	LabelApplication = "application"
	LabelMethod      = "method"
	LabelSuccess     = "success"

	// Labels for sync metrics
	LabelAction = "action"
	LabelPhase  = "phase"
)
