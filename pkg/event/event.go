package event

import (
	"sync"
	"time"
)

// These are all the types of events.
const (
	EventSync    = "sync"
	EventHealth  = "health"
	EventNotify  = "notify"
	EventFailure = "failure"

	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

type EventID int64

// Event records something that happened to an application: a sync, a
// health transition, a webhook nudge, a failed cycle.
type Event struct {
	// ID is set by the log when recording.
	ID EventID `json:"id"`

	// Application the event pertains to.
	Application string `json:"application"`

	// Type is one of the Event* constants above.
	Type string `json:"type"`

	// StartedAt is the time the event began; EndedAt the time it
	// ended. For instantaneous events they are the same.
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`

	// LogLevel indicates how important the event is,
	// `debug|info|warn|error`.
	LogLevel string `json:"logLevel"`

	// Message is a human-readable account.
	Message string `json:"message"`

	// Metadata carries type-specific details, e.g., the revision
	// synced.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Log is a bounded in-memory event history. When full, recording a
// new event drops the oldest. Not a durable store; it exists so the
// API can answer "what happened recently" without a database.
type Log struct {
	mu     sync.Mutex
	events []Event
	nextID EventID
	cap    int
}

func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = 256
	}
	return &Log{cap: capacity, nextID: 1}
}

// LogEvent records the event, assigning it an ID.
func (l *Log) LogEvent(e Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.ID = l.nextID
	l.nextID++
	l.events = append(l.events, e)
	if len(l.events) > l.cap {
		l.events = l.events[len(l.events)-l.cap:]
	}
	return nil
}

// Events returns up to n events, newest first; an empty application
// name means all applications.
func (l *Log) Events(application string, n int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for i := len(l.events) - 1; i >= 0 && (n <= 0 || len(out) < n); i-- {
		if application == "" || l.events[i].Application == application {
			out = append(out, l.events[i])
		}
	}
	return out
}
