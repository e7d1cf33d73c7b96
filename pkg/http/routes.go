package http

const (
	Ping    = "Ping"
	Version = "Version"
	Notify  = "Notify"

	ListApplications  = "ListApplications"
	Status            = "Status"
	TriggerSync       = "TriggerSync"
	RemoveApplication = "RemoveApplication"
	ListEvents        = "ListEvents"
)
