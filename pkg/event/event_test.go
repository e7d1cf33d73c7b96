package event

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogBounded(t *testing.T) {
	l := NewLog(3)
	for i := 0; i < 5; i++ {
		require.NoError(t, l.LogEvent(Event{Application: "app", Type: EventSync, Message: fmt.Sprintf("sync %d", i)}))
	}
	events := l.Events("app", 0)
	require.Len(t, events, 3)
	// Newest first, oldest dropped.
	assert.Equal(t, "sync 4", events[0].Message)
	assert.Equal(t, "sync 2", events[2].Message)
}

func TestLogFilters(t *testing.T) {
	l := NewLog(10)
	l.LogEvent(Event{Application: "a", Type: EventSync})
	l.LogEvent(Event{Application: "b", Type: EventSync})
	l.LogEvent(Event{Application: "a", Type: EventHealth})

	assert.Len(t, l.Events("a", 0), 2)
	assert.Len(t, l.Events("", 0), 3)
	assert.Len(t, l.Events("a", 1), 1)
}
